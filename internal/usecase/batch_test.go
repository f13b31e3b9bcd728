package usecase

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docingest/internal/adapter/extract"
	"docingest/internal/adapter/fs"
	"docingest/internal/adapter/memstore"
	"docingest/internal/logger"
)

func TestBatchRun(t *testing.T) {
	root := t.TempDir()
	write := func(rel, content string) {
		path := filepath.Join(root, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}
	write("a.txt", longText())
	write("docs/b.md", "# Title\n\nSome markdown body text that is long enough.")
	write("empty.txt", "   \n\n  ")
	write("skip.png", "\x89PNG\r\n\x1a\n")

	st := memstore.NewMemoryStore()
	ingest := NewIngestUseCase(
		extract.NewRouter(),
		newSegmenter(t, 200, 40, 20),
		&fakeEmbedder{},
		st,
		WithLogger(logger.NewLogger(logger.TestConfig())),
	)
	walker := fs.NewWalker([]string{"**/*.txt", "**/*.md"}, nil)
	batch := NewBatchUseCase(ingest, walker, 2, 1<<20)

	var (
		mu    sync.Mutex
		seen  []string
		total int
	)
	res, err := batch.Run(context.Background(), BatchRequest{Root: root, UserID: "u"}, func(processed, n int, file string) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, file)
		total = n
	})
	require.NoError(t, err)

	assert.Equal(t, 3, total)
	sort.Strings(seen)
	assert.Equal(t, []string{"a.txt", "docs/b.md", "empty.txt"}, seen)

	assert.Equal(t, 2, res.Succeeded)
	assert.Equal(t, 1, res.Failed)

	byPath := make(map[string]FileOutcome)
	for _, o := range res.Outcomes {
		byPath[o.Path] = o
	}
	assert.ErrorIs(t, byPath["empty.txt"].Err, ErrNoExtractableText)
	assert.NoError(t, byPath["a.txt"].Err)
	assert.Equal(t, res.Chunks, byPath["a.txt"].Chunks+byPath["docs/b.md"].Chunks)

	docs, err := st.Documents(context.Background())
	require.NoError(t, err)
	assert.Len(t, docs, 2)
}

func TestBatchRunFileTooLarge(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "big.txt"), []byte(longText()), 0644))

	ingest := NewIngestUseCase(
		extract.NewRouter(),
		newSegmenter(t, 200, 40, 20),
		&fakeEmbedder{},
		memstore.NewMemoryStore(),
		WithLogger(logger.NewLogger(logger.TestConfig())),
	)
	batch := NewBatchUseCase(ingest, fs.NewWalker(nil, nil), 1, 16)

	res, err := batch.Run(context.Background(), BatchRequest{Root: root, UserID: "u"}, nil)
	require.NoError(t, err)
	require.Len(t, res.Outcomes, 1)
	assert.True(t, errors.Is(res.Outcomes[0].Err, fs.ErrFileTooLarge))
}

func TestBatchRunCancelled(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("hello"), 0644))

	ingest := NewIngestUseCase(
		extract.NewRouter(),
		newSegmenter(t, 200, 40, 0),
		&fakeEmbedder{},
		memstore.NewMemoryStore(),
		WithLogger(logger.NewLogger(logger.TestConfig())),
	)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewBatchUseCase(ingest, fs.NewWalker(nil, nil), 1, 0).Run(ctx, BatchRequest{Root: root, UserID: "u"}, nil)
	assert.ErrorIs(t, err, context.Canceled)
}
