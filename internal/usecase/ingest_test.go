package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docingest/internal/adapter/chunker"
	"docingest/internal/adapter/embedding"
	"docingest/internal/adapter/memstore"
	"docingest/internal/adapter/store"
	"docingest/internal/domain"
	"docingest/internal/logger"
)

type fakeExtractor struct {
	text string
	err  error
}

func (f fakeExtractor) Extract(_ context.Context, _ string, _ []byte) (string, error) {
	return f.text, f.err
}

type fakeEmbedder struct {
	mu    sync.Mutex
	calls [][]string
	embed func(texts []string) ([][]float32, error)
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	f.calls = append(f.calls, texts)
	f.mu.Unlock()
	if f.embed != nil {
		return f.embed(texts)
	}
	return embedding.NewMockEmbedder(4).Embed(context.Background(), texts)
}

func (f *fakeEmbedder) Dimension() int    { return 4 }
func (f *fakeEmbedder) ModelName() string { return "fake" }

type failingStore struct{ err error }

func (f failingStore) InsertAll(context.Context, []domain.Record) error { return f.err }

type recorder struct {
	mu     sync.Mutex
	events []domain.StageEvent
}

func (r *recorder) observe(ev domain.StageEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) path() []domain.Stage {
	r.mu.Lock()
	defer r.mu.Unlock()
	var stages []domain.Stage
	for _, ev := range r.events {
		stages = append(stages, ev.To)
	}
	return stages
}

func newSegmenter(t *testing.T, target, overlap, minSize int) *chunker.Segmenter {
	t.Helper()
	seg, err := chunker.NewSegmenter(target, overlap, chunker.Options{
		RespectSentences:  true,
		RespectParagraphs: true,
		MinChunkSize:      minSize,
	})
	require.NoError(t, err)
	return seg
}

func upload() domain.Upload {
	return domain.Upload{
		Filename: "notes.txt",
		Data:     []byte("ignored by the fake extractor"),
		UserID:   "user-1",
		Category: "manuals",
		Title:    "Notes",
	}
}

func longText() string {
	var b strings.Builder
	for i := 0; i < 40; i++ {
		b.WriteString("The quick brown fox jumps over the lazy dog. ")
		if i%8 == 7 {
			b.WriteString("\r\n\r\n\r\n")
		}
	}
	return b.String()
}

func TestIngestSuccess(t *testing.T) {
	st := memstore.NewMemoryStore()
	emb := &fakeEmbedder{}
	rec := &recorder{}

	uc := NewIngestUseCase(
		fakeExtractor{text: longText()},
		newSegmenter(t, 200, 40, 20),
		emb,
		st,
		WithLogger(logger.NewLogger(logger.TestConfig())),
		WithObserver(rec.observe),
		WithIDGenerator(func() string { return "doc-1" }),
	)

	res, err := uc.Ingest(context.Background(), upload())
	require.NoError(t, err)

	assert.Equal(t, "doc-1", res.DocumentID)
	assert.Equal(t, "notes.txt", res.Filename)
	assert.Greater(t, res.Chunks, 1)
	assert.Contains(t, res.Message(), "notes.txt")

	// One embedding call carrying every chunk.
	require.Len(t, emb.calls, 1)
	assert.Len(t, emb.calls[0], res.Chunks)

	records, err := st.RecordsByDocument(context.Background(), "doc-1")
	require.NoError(t, err)
	require.Len(t, records, res.Chunks)

	normalized := []rune(chunker.Normalize(longText()))
	ids := make(map[string]struct{})
	for i, r := range records {
		assert.Equal(t, i, r.Metadata.Order)
		assert.Equal(t, "doc-1", r.Metadata.DocumentID)
		assert.Equal(t, "user-1", r.UserID)
		assert.Equal(t, "notes.txt", r.Metadata.Source)
		assert.Equal(t, "Notes", r.Metadata.Title)
		assert.Equal(t, "manuals", r.Metadata.Category)
		assert.Equal(t, emb.calls[0][i], r.Content)
		assert.Equal(t, strings.TrimSpace(string(normalized[r.Metadata.StartChar:r.Metadata.EndChar])), r.Content)
		assert.Len(t, r.Embedding, 4)
		ids[r.ID] = struct{}{}
	}
	assert.Len(t, ids, len(records))

	assert.Equal(t, []domain.Stage{
		domain.StageExtracted,
		domain.StageNormalized,
		domain.StageSegmented,
		domain.StageValidated,
		domain.StageEmbedded,
		domain.StagePersisted,
		domain.StageCompleted,
	}, rec.path())
	last := rec.events[len(rec.events)-1]
	assert.Equal(t, res.Chunks, last.Chunks)
	assert.Equal(t, "doc-1", last.DocumentID)
}

func TestIngestInputErrors(t *testing.T) {
	rec := &recorder{}
	uc := NewIngestUseCase(
		fakeExtractor{text: "text"},
		newSegmenter(t, 100, 10, 0),
		&fakeEmbedder{},
		memstore.NewMemoryStore(),
		WithLogger(logger.NewLogger(logger.TestConfig())),
		WithObserver(rec.observe),
	)

	up := upload()
	up.Data = nil
	_, err := uc.Ingest(context.Background(), up)
	assert.ErrorIs(t, err, ErrMissingFile)

	up = upload()
	up.UserID = "  "
	_, err = uc.Ingest(context.Background(), up)
	assert.ErrorIs(t, err, ErrMissingUser)

	assert.Empty(t, rec.path())
}

func TestIngestStageFailures(t *testing.T) {
	extractErr := errors.New("corrupt pdf")
	embedErr := errors.New("provider unavailable")
	storeErr := errors.New("disk full")

	cases := []struct {
		name      string
		extractor fakeExtractor
		embedder  *fakeEmbedder
		store     interface {
			InsertAll(context.Context, []domain.Record) error
		}
		stage    domain.Stage
		step     string
		cause    error
		lastGood domain.Stage
	}{
		{
			name:      "extraction",
			extractor: fakeExtractor{err: extractErr},
			embedder:  &fakeEmbedder{},
			store:     memstore.NewMemoryStore(),
			stage:     domain.StageExtracted,
			step:      "extraction",
			cause:     extractErr,
			lastGood:  domain.StageReceived,
		},
		{
			name:      "no extractable text",
			extractor: fakeExtractor{text: " \n\n \t "},
			embedder:  &fakeEmbedder{},
			store:     memstore.NewMemoryStore(),
			stage:     domain.StageSegmented,
			step:      "segmentation",
			cause:     ErrNoExtractableText,
			lastGood:  domain.StageNormalized,
		},
		{
			name:      "embedding",
			extractor: fakeExtractor{text: longText()},
			embedder: &fakeEmbedder{embed: func([]string) ([][]float32, error) {
				return nil, embedErr
			}},
			store:    memstore.NewMemoryStore(),
			stage:    domain.StageEmbedded,
			step:     "embedding",
			cause:    embedErr,
			lastGood: domain.StageValidated,
		},
		{
			name:      "vector count mismatch",
			extractor: fakeExtractor{text: longText()},
			embedder: &fakeEmbedder{embed: func(texts []string) ([][]float32, error) {
				return [][]float32{{1}}, nil
			}},
			store:    memstore.NewMemoryStore(),
			stage:    domain.StageEmbedded,
			step:     "embedding",
			cause:    ErrEmbeddingCount,
			lastGood: domain.StageValidated,
		},
		{
			name:      "persistence",
			extractor: fakeExtractor{text: longText()},
			embedder:  &fakeEmbedder{},
			store:     failingStore{err: storeErr},
			stage:     domain.StagePersisted,
			step:      "persistence",
			cause:     storeErr,
			lastGood:  domain.StageEmbedded,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := &recorder{}
			uc := NewIngestUseCase(
				tc.extractor,
				newSegmenter(t, 200, 40, 20),
				tc.embedder,
				tc.store,
				WithLogger(logger.NewLogger(logger.TestConfig())),
				WithObserver(rec.observe),
			)

			res, err := uc.Ingest(context.Background(), upload())
			require.Error(t, err)
			assert.Nil(t, res)
			assert.ErrorIs(t, err, tc.cause)

			var stageErr *StageError
			require.True(t, errors.As(err, &stageErr))
			assert.Equal(t, tc.stage, stageErr.Stage)
			assert.True(t, strings.HasPrefix(err.Error(), tc.step+": "))

			path := rec.path()
			require.NotEmpty(t, path)
			assert.Equal(t, domain.StageFailed, path[len(path)-1])
			last := rec.events[len(rec.events)-1]
			assert.Equal(t, tc.lastGood, last.From)
			assert.Equal(t, tc.step, last.Step)
			assert.NotContains(t, path, domain.StageCompleted)
		})
	}
}

func TestIngestPersistenceFailureLeavesNothing(t *testing.T) {
	st := memstore.NewMemoryStore()
	// Pre-seed a record id the run will collide with, forcing InsertAll to reject.
	collide := generateChunkID("doc-1", 2)
	require.NoError(t, st.InsertAll(context.Background(), []domain.Record{{
		ID:       collide,
		Metadata: domain.RecordMetadata{DocumentID: "other"},
	}}))

	uc := NewIngestUseCase(
		fakeExtractor{text: longText()},
		newSegmenter(t, 200, 40, 20),
		&fakeEmbedder{},
		st,
		WithLogger(logger.NewLogger(logger.TestConfig())),
		WithIDGenerator(func() string { return "doc-1" }),
	)

	_, err := uc.Ingest(context.Background(), upload())
	require.Error(t, err)

	_, err = st.RecordsByDocument(context.Background(), "doc-1")
	assert.Error(t, err)
	assert.Equal(t, 1, st.Len())
}

func TestIngestCancelledBeforePersistenceFails(t *testing.T) {
	st, err := store.NewChromemStore("", false)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	emb := &fakeEmbedder{embed: func(texts []string) ([][]float32, error) {
		// The request goes away while the vectors are on their way back.
		defer cancel()
		return embedding.NewMockEmbedder(4).Embed(context.Background(), texts)
	}}

	rec := &recorder{}
	uc := NewIngestUseCase(
		fakeExtractor{text: longText()},
		newSegmenter(t, 200, 40, 20),
		emb,
		st,
		WithLogger(logger.NewLogger(logger.TestConfig())),
		WithObserver(rec.observe),
	)

	resp := uc.Handle(ctx, upload())
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Error, "persistence")
	assert.Equal(t, 0, st.Count())

	path := rec.path()
	require.NotEmpty(t, path)
	last := path[len(path)-1]
	assert.True(t, last.Terminal())
	assert.Equal(t, domain.StageFailed, last)
}

func TestIngestGapsAreNotFatal(t *testing.T) {
	// Long words push the word-boundary cut back further than the overlap,
	// leaving holes between chunks.
	text := strings.Repeat("abcdefghijklmnopqrstuvwxy ", 20)
	rec := &recorder{}
	uc := NewIngestUseCase(
		fakeExtractor{text: text},
		newSegmenter(t, 40, 2, 0),
		&fakeEmbedder{},
		memstore.NewMemoryStore(),
		WithLogger(logger.NewLogger(logger.TestConfig())),
		WithObserver(rec.observe),
	)

	res, err := uc.Ingest(context.Background(), upload())
	require.NoError(t, err)
	assert.False(t, res.Report.IsValid)
	assert.NotEmpty(t, res.Report.Gaps)

	var validated domain.StageEvent
	for _, ev := range rec.events {
		if ev.To == domain.StageValidated {
			validated = ev
		}
	}
	assert.Equal(t, len(res.Report.Gaps), validated.Gaps)
}

func TestHandleResponses(t *testing.T) {
	ok := NewIngestUseCase(
		fakeExtractor{text: "hello world"},
		newSegmenter(t, 1000, 200, 100),
		&fakeEmbedder{},
		memstore.NewMemoryStore(),
		WithLogger(logger.NewLogger(logger.TestConfig())),
	)
	resp := ok.Handle(context.Background(), upload())
	assert.True(t, resp.Success)
	assert.Equal(t, "notes.txt", resp.Filename)
	assert.Equal(t, "processed 1 fragments from notes.txt", resp.Message)
	assert.Empty(t, resp.Error)

	bad := NewIngestUseCase(
		fakeExtractor{text: ""},
		newSegmenter(t, 1000, 200, 100),
		&fakeEmbedder{},
		memstore.NewMemoryStore(),
		WithLogger(logger.NewLogger(logger.TestConfig())),
	)
	resp = bad.Handle(context.Background(), upload())
	assert.False(t, resp.Success)
	assert.Equal(t, "segmentation: no extractable text", resp.Error)
	assert.Empty(t, resp.Message)
	assert.Empty(t, resp.Filename)
}

func TestGenerateChunkID(t *testing.T) {
	a := generateChunkID("doc", 0)
	assert.Equal(t, a, generateChunkID("doc", 0))
	assert.NotEqual(t, a, generateChunkID("doc", 1))
	assert.NotEqual(t, a, generateChunkID("doc2", 0))
	assert.Len(t, a, 24)
}
