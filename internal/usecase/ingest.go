package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"docingest/internal/adapter/chunker"
	"docingest/internal/domain"
	"docingest/internal/logger"
	"docingest/internal/port"
)

// Input errors. They are returned before a run starts and emit no events.
var (
	ErrMissingFile = errors.New("missing file")
	ErrMissingUser = errors.New("missing user id")
)

var (
	ErrNoExtractableText = errors.New("no extractable text")
	ErrEmbeddingCount    = errors.New("embedding count does not match chunk count")
)

// StageError wraps the cause of a failed run with the step that failed.
type StageError struct {
	Stage domain.Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage.Step(), e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// IngestUseCase runs one document at a time through
// extract, normalize, segment, validate, embed and persist.
// It holds no per-document state, so one instance may serve concurrent runs
// as long as its collaborators are safe for concurrent use.
type IngestUseCase struct {
	extractor port.Extractor
	chunker   port.Chunker
	embedder  port.Embedder
	store     port.RecordStore

	log     logger.Logger
	observe func(domain.StageEvent)
	newID   func() string
	now     func() time.Time
}

type IngestOption func(*IngestUseCase)

func WithLogger(l logger.Logger) IngestOption {
	return func(u *IngestUseCase) { u.log = l }
}

// WithObserver registers fn for every stage transition. fn runs on the
// ingesting goroutine and must not block.
func WithObserver(fn func(domain.StageEvent)) IngestOption {
	return func(u *IngestUseCase) { u.observe = fn }
}

func WithIDGenerator(fn func() string) IngestOption {
	return func(u *IngestUseCase) { u.newID = fn }
}

func NewIngestUseCase(
	extractor port.Extractor,
	chunker port.Chunker,
	embedder port.Embedder,
	store port.RecordStore,
	opts ...IngestOption,
) *IngestUseCase {
	u := &IngestUseCase{
		extractor: extractor,
		chunker:   chunker,
		embedder:  embedder,
		store:     store,
		newID:     uuid.NewString,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// IngestResult describes a completed run.
type IngestResult struct {
	DocumentID string
	Filename   string
	Chunks     int
	Report     domain.ValidationReport
}

// Message is the user-facing summary of a completed run.
func (r *IngestResult) Message() string {
	return fmt.Sprintf("processed %d fragments from %s", r.Chunks, r.Filename)
}

// Ingest processes one upload. Any failure after input validation is a
// *StageError naming the failed step.
func (u *IngestUseCase) Ingest(ctx context.Context, up domain.Upload) (*IngestResult, error) {
	if len(up.Data) == 0 {
		return nil, ErrMissingFile
	}
	if strings.TrimSpace(up.UserID) == "" {
		return nil, ErrMissingUser
	}

	r := u.start(ctx, up)

	text, err := u.extractor.Extract(ctx, up.Filename, up.Data)
	if err != nil {
		return nil, r.fail(domain.StageExtracted, err)
	}
	r.advance(domain.StageExtracted)

	text = chunker.Normalize(text)
	r.advance(domain.StageNormalized)

	chunks := u.chunker.Segment(text)
	if len(chunks) == 0 {
		return nil, r.fail(domain.StageSegmented, ErrNoExtractableText)
	}
	for i := range chunks {
		chunks[i].ID = generateChunkID(r.docID, chunks[i].Order)
	}
	batch := domain.ChunkBatch{
		Meta: domain.DocumentMeta{
			DocumentID: r.docID,
			Source:     up.Filename,
			Title:      up.Title,
			Category:   up.Category,
		},
		Chunks: chunks,
	}
	r.chunks = len(chunks)
	r.advance(domain.StageSegmented)

	report := chunker.Validate(batch.Chunks)
	if !report.IsValid {
		r.log.Warn("chunk coverage has gaps",
			"gaps", len(report.Gaps),
			"total_gap", report.TotalGap(),
		)
	}
	r.gaps = len(report.Gaps)
	r.advance(domain.StageValidated)

	vectors, err := u.embedder.Embed(ctx, batch.Contents())
	if err != nil {
		return nil, r.fail(domain.StageEmbedded, err)
	}
	if len(vectors) != len(batch.Chunks) {
		return nil, r.fail(domain.StageEmbedded,
			fmt.Errorf("%w: got %d vectors for %d chunks", ErrEmbeddingCount, len(vectors), len(batch.Chunks)))
	}
	r.advance(domain.StageEmbedded)

	records, err := buildRecords(up.UserID, batch, vectors)
	if err != nil {
		return nil, r.fail(domain.StagePersisted, err)
	}
	if err := u.store.InsertAll(ctx, records); err != nil {
		return nil, r.fail(domain.StagePersisted, err)
	}
	r.advance(domain.StagePersisted)

	r.advance(domain.StageCompleted)
	r.log.Info("document ingested", "chunks", len(records), "elapsed", u.now().Sub(r.started))

	return &IngestResult{
		DocumentID: r.docID,
		Filename:   up.Filename,
		Chunks:     len(records),
		Report:     report,
	}, nil
}

// Handle runs Ingest and folds the outcome into exactly one response.
func (u *IngestUseCase) Handle(ctx context.Context, up domain.Upload) domain.Response {
	return NewResponse(u.Ingest(ctx, up))
}

// NewResponse maps the result of Ingest to the upload-layer response.
func NewResponse(res *IngestResult, err error) domain.Response {
	if err != nil {
		return domain.Response{Success: false, Error: err.Error()}
	}
	return domain.Response{
		Success:  true,
		Message:  res.Message(),
		Filename: res.Filename,
	}
}

// buildRecords pairs chunks and vectors by chunk order.
func buildRecords(userID string, batch domain.ChunkBatch, vectors [][]float32) ([]domain.Record, error) {
	records := make([]domain.Record, len(batch.Chunks))
	for i, c := range batch.Chunks {
		if c.Order < 0 || c.Order >= len(vectors) {
			return nil, fmt.Errorf("chunk order %d has no embedding", c.Order)
		}
		vec := vectors[c.Order]
		if len(vec) == 0 {
			return nil, fmt.Errorf("empty embedding for chunk %d", c.Order)
		}
		records[i] = domain.Record{
			ID:        c.ID,
			UserID:    userID,
			Content:   c.Content,
			Embedding: vec,
			Metadata: domain.RecordMetadata{
				StartChar:  c.StartChar,
				EndChar:    c.EndChar,
				Order:      c.Order,
				Length:     c.Length,
				Source:     batch.Meta.Source,
				Title:      batch.Meta.Title,
				Category:   batch.Meta.Category,
				DocumentID: batch.Meta.DocumentID,
			},
		}
	}
	return records, nil
}

// run tracks the state of one document through the pipeline.
type run struct {
	u       *IngestUseCase
	log     logger.Logger
	docID   string
	stage   domain.Stage
	started time.Time
	chunks  int
	gaps    int
}

func (u *IngestUseCase) start(ctx context.Context, up domain.Upload) *run {
	log := u.log
	if log == nil {
		log = logger.FromContext(ctx)
	}
	docID := u.newID()
	r := &run{
		u:       u,
		log:     log.With("document_id", docID, "filename", up.Filename),
		docID:   docID,
		stage:   domain.StageReceived,
		started: u.now(),
	}
	r.log.Debug("stage", "to", domain.StageReceived)
	return r
}

func (r *run) advance(to domain.Stage) {
	from := r.stage
	r.stage = to
	r.log.Debug("stage", "from", from, "to", to)
	r.emit(domain.StageEvent{From: from, To: to})
}

// fail moves the run to StageFailed and returns the error to surface.
// attempted is the stage the run was trying to reach.
func (r *run) fail(attempted domain.Stage, cause error) error {
	err := &StageError{Stage: attempted, Err: cause}
	from := r.stage
	r.stage = domain.StageFailed
	r.log.Error("ingestion failed", "stage", attempted.Step(), "cause", cause)
	r.emit(domain.StageEvent{From: from, To: domain.StageFailed, Step: attempted.Step(), Err: err})
	return err
}

func (r *run) emit(ev domain.StageEvent) {
	if r.u.observe == nil {
		return
	}
	ev.DocumentID = r.docID
	ev.Chunks = r.chunks
	ev.Gaps = r.gaps
	ev.Elapsed = r.u.now().Sub(r.started)
	r.u.observe(ev)
}

// generateChunkID derives a stable record id from the document and order.
func generateChunkID(documentID string, order int) string {
	hash := sha256.Sum256([]byte(fmt.Sprintf("%s#%d", documentID, order)))
	return hex.EncodeToString(hash[:12])
}
