package server

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docingest/internal/adapter/chunker"
	"docingest/internal/adapter/embedding"
	"docingest/internal/adapter/extract"
	"docingest/internal/adapter/memstore"
	"docingest/internal/domain"
	"docingest/internal/logger"
	"docingest/internal/metrics"
	"docingest/internal/usecase"
)

func newTestServer(t *testing.T) (*Server, *memstore.MemoryStore) {
	t.Helper()
	seg, err := chunker.NewSegmenter(200, 40, chunker.Options{RespectSentences: true, MinChunkSize: 20})
	require.NoError(t, err)

	st := memstore.NewMemoryStore()
	m := metrics.New()
	log := logger.NewLogger(logger.TestConfig())
	ingest := usecase.NewIngestUseCase(
		extract.NewRouter(),
		seg,
		embedding.NewMockEmbedder(4),
		st,
		usecase.WithLogger(log),
		usecase.WithObserver(m.Observe),
	)
	return New(Config{Addr: ":0", MaxFileBytes: 1 << 16}, ingest, st, m.Registry(), log), st
}

func multipartBody(t *testing.T, fields map[string]string, filename, content string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if filename != "" {
		fw, err := mw.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func upload(t *testing.T, s *Server, fields map[string]string, filename, content string) (int, domain.Response) {
	t.Helper()
	body, ct := multipartBody(t, fields, filename, content)
	req := httptest.NewRequest(http.MethodPost, "/v1/documents", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	var resp domain.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return rec.Code, resp
}

func TestUploadSuccess(t *testing.T) {
	s, st := newTestServer(t)

	text := strings.Repeat("Chunking keeps sentences whole where it can. ", 30)
	code, resp := upload(t, s, map[string]string{"user_id": "u1", "category": "docs", "title": "Guide"}, "guide.txt", text)

	assert.Equal(t, http.StatusCreated, code)
	assert.True(t, resp.Success)
	assert.Equal(t, "guide.txt", resp.Filename)
	assert.Contains(t, resp.Message, "fragments")
	assert.Empty(t, resp.Error)

	docs, err := st.Documents(context.Background())
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "Guide", docs[0].Title)
	assert.Equal(t, "docs", docs[0].Category)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/documents/"+docs[0].DocumentID+"/chunks", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	var chunks []chunkView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &chunks))
	assert.Len(t, chunks, docs[0].ChunkCount)
	assert.Equal(t, 0, chunks[0].Metadata.Order)
}

func TestUploadErrors(t *testing.T) {
	s, _ := newTestServer(t)

	cases := []struct {
		name     string
		fields   map[string]string
		filename string
		content  string
		code     int
		errPart  string
	}{
		{"missing file", map[string]string{"user_id": "u1"}, "", "", http.StatusBadRequest, "missing file"},
		{"missing user", nil, "a.txt", "hello", http.StatusBadRequest, "missing user id"},
		{"unsupported type", map[string]string{"user_id": "u1"}, "a.png", "\x89PNG\r\n\x1a\n\x00\x00", http.StatusUnprocessableEntity, "extraction"},
		{"no text", map[string]string{"user_id": "u1"}, "a.txt", "  \n\n  ", http.StatusUnprocessableEntity, "no extractable text"},
		{"too large", map[string]string{"user_id": "u1"}, "a.txt", strings.Repeat("x", 1<<16+1), http.StatusRequestEntityTooLarge, "too large"},
		{"body over reader cap", map[string]string{"user_id": "u1"}, "a.txt", strings.Repeat("x", 2<<20), http.StatusRequestEntityTooLarge, "too large"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			code, resp := upload(t, s, tc.fields, tc.filename, tc.content)
			assert.Equal(t, tc.code, code)
			assert.False(t, resp.Success)
			assert.Contains(t, resp.Error, tc.errPart)
			assert.Empty(t, resp.Message)
		})
	}
}

func TestHealthAndMetrics(t *testing.T) {
	s, _ := newTestServer(t)
	upload(t, s, map[string]string{"user_id": "u1"}, "a.txt", "hello world")

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `docingest_pipeline_documents_total{outcome="completed"} 1`)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusCreated, statusFor(nil))
	assert.Equal(t, http.StatusBadGateway, statusFor(&usecase.StageError{Stage: domain.StageEmbedded}))
	assert.Equal(t, http.StatusInternalServerError, statusFor(&usecase.StageError{Stage: domain.StagePersisted}))
}
