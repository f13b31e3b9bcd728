package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"docingest/internal/domain"
	"docingest/internal/logger"
	"docingest/internal/port"
	"docingest/internal/usecase"
)

// Ingester is the part of the ingest use case the server calls.
type Ingester interface {
	Ingest(ctx context.Context, up domain.Upload) (*usecase.IngestResult, error)
}

type Config struct {
	Addr         string
	MaxFileBytes int64
}

// Server exposes document upload over HTTP.
type Server struct {
	config   Config
	ingest   Ingester
	reader   port.RecordReader
	registry prometheus.Gatherer
	log      logger.Logger
	router   chi.Router
}

// New builds the router. reader and registry may be nil, which disables the
// listing and /metrics routes.
func New(cfg Config, ingest Ingester, reader port.RecordReader, registry prometheus.Gatherer, log logger.Logger) *Server {
	if cfg.MaxFileBytes <= 0 {
		cfg.MaxFileBytes = 32 << 20
	}
	if log == nil {
		log = logger.NewLogger(nil)
	}
	s := &Server{
		config:   cfg,
		ingest:   ingest,
		reader:   reader,
		registry: registry,
		log:      log,
	}
	s.router = s.setupRouter()
	return s
}

func (s *Server) setupRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)

	r.Get("/healthz", s.handleHealth)
	if s.registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	}

	r.Route("/v1", func(r chi.Router) {
		r.Post("/documents", s.handleUpload)
		if s.reader != nil {
			r.Get("/documents", s.handleListDocuments)
			r.Get("/documents/{id}/chunks", s.handleDocumentChunks)
		}
	})

	return r
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.config.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	s.log.Info("server listening", "addr", ln.Addr().String())
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleUpload accepts multipart/form-data with a "file" part and the
// user_id, category and title fields.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxFileBytes+1<<20)
	if err := r.ParseMultipartForm(8 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, domain.Response{Error: "file too large"})
			return
		}
		writeJSON(w, http.StatusBadRequest, domain.Response{Error: "invalid multipart request: " + err.Error()})
		return
	}
	defer r.MultipartForm.RemoveAll()

	up := domain.Upload{
		UserID:   r.FormValue("user_id"),
		Category: r.FormValue("category"),
		Title:    r.FormValue("title"),
	}

	file, header, err := r.FormFile("file")
	switch {
	case errors.Is(err, http.ErrMissingFile):
	case err != nil:
		writeJSON(w, http.StatusBadRequest, domain.Response{Error: err.Error()})
		return
	default:
		defer file.Close()
		up.Filename = header.Filename
		up.Data, err = io.ReadAll(io.LimitReader(file, s.config.MaxFileBytes+1))
		if err != nil {
			writeJSON(w, http.StatusBadRequest, domain.Response{Error: err.Error()})
			return
		}
		if int64(len(up.Data)) > s.config.MaxFileBytes {
			writeJSON(w, http.StatusRequestEntityTooLarge, domain.Response{Error: "file too large"})
			return
		}
	}

	res, err := s.ingest.Ingest(r.Context(), up)
	writeJSON(w, statusFor(err), usecase.NewResponse(res, err))
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := s.reader.Documents(r.Context())
	if err != nil {
		s.log.Error("list documents", "error", err)
		writeJSON(w, http.StatusInternalServerError, domain.Response{Error: err.Error()})
		return
	}
	if docs == nil {
		docs = []domain.Document{}
	}
	writeJSON(w, http.StatusOK, docs)
}

type chunkView struct {
	ID       string                `json:"id"`
	Content  string                `json:"content"`
	Metadata domain.RecordMetadata `json:"metadata"`
}

func (s *Server) handleDocumentChunks(w http.ResponseWriter, r *http.Request) {
	records, err := s.reader.RecordsByDocument(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusNotFound, domain.Response{Error: err.Error()})
		return
	}
	views := make([]chunkView, len(records))
	for i, rec := range records {
		views[i] = chunkView{ID: rec.ID, Content: rec.Content, Metadata: rec.Metadata}
	}
	writeJSON(w, http.StatusOK, views)
}

// statusFor maps a pipeline error to an HTTP status. The body is always the
// same single Response.
func statusFor(err error) int {
	if err == nil {
		return http.StatusCreated
	}
	if errors.Is(err, usecase.ErrMissingFile) || errors.Is(err, usecase.ErrMissingUser) {
		return http.StatusBadRequest
	}
	var stageErr *usecase.StageError
	if errors.As(err, &stageErr) {
		switch stageErr.Stage {
		case domain.StageExtracted, domain.StageSegmented:
			return http.StatusUnprocessableEntity
		case domain.StageEmbedded:
			return http.StatusBadGateway
		}
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
