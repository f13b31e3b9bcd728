package cli

import (
	"fmt"

	"docingest/config"
	"docingest/internal/adapter/chunker"
	"docingest/internal/adapter/embedding"
	"docingest/internal/adapter/extract"
	"docingest/internal/adapter/store"
	"docingest/internal/metrics"
	"docingest/internal/port"
	"docingest/internal/usecase"
)

func newEmbedder(cfg *config.Config) (port.Embedder, error) {
	e := cfg.Embedding
	opts := []embedding.Option{
		embedding.WithMaxBatch(e.MaxBatch),
		embedding.WithTimeout(e.Timeout),
		embedding.WithDimension(e.Dimension),
	}

	switch e.Provider {
	case "openai":
		if e.BaseURL != "" {
			return embedding.NewOpenAICompatibleEmbedder(e.APIKeyEnv, e.Model, e.BaseURL, opts...)
		}
		return embedding.NewOpenAIEmbedder(e.APIKeyEnv, e.Model, opts...)
	case "ollama":
		return embedding.NewOllamaEmbedder(e.Model, e.BaseURL, opts...)
	case "chromem-ollama":
		return embedding.NewChromemOllamaEmbedder(e.Model, e.BaseURL), nil
	case "mock":
		return embedding.NewMockEmbedder(e.Dimension), nil
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", e.Provider)
	}
}

// openedStore bundles a store with its optional reader side.
type openedStore struct {
	writer port.RecordStore
	reader port.RecordReader
	close  func() error
}

func openStore(cfg *config.Config, dir string) (*openedStore, error) {
	if err := config.EnsureDataDir(dir); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	path := cfg.StorePath(dir)

	switch cfg.Store.Backend {
	case "chromem":
		st, err := store.NewChromemStore(path, true)
		if err != nil {
			return nil, err
		}
		return &openedStore{writer: st, close: func() error { return nil }}, nil
	default:
		st, err := store.NewBoltStore(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open store: %w", err)
		}
		if err := checkSchema(st, cfg); err != nil {
			st.Close()
			return nil, err
		}
		return &openedStore{writer: st, reader: st, close: st.Close}, nil
	}
}

func checkSchema(st *store.BoltStore, cfg *config.Config) error {
	result, err := st.CheckMigration(cfg)
	if err != nil {
		return fmt.Errorf("failed to check migration: %w", err)
	}
	if result.Incompatible {
		return fmt.Errorf("store is incompatible: %s", result.Reason)
	}
	if result.ConfigChanged {
		log.Warn("chunking settings differ from those used for existing records", "reason", result.Reason)
	}
	if result.NeedsMigration || result.ConfigChanged {
		log.Debug("updating store schema info", "from", result.OldVersion, "to", result.NewVersion)
		return st.Migrate(cfg)
	}
	return nil
}

func newSegmenter(cfg *config.Config) (*chunker.Segmenter, error) {
	return chunker.NewSegmenter(cfg.Chunking.TargetSize, cfg.Chunking.Overlap, cfg.Chunking.Options())
}

func newIngestUseCase(cfg *config.Config, st port.RecordStore, m *metrics.Metrics) (*usecase.IngestUseCase, error) {
	seg, err := newSegmenter(cfg)
	if err != nil {
		return nil, err
	}
	emb, err := newEmbedder(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}

	opts := []usecase.IngestOption{usecase.WithLogger(log)}
	if m != nil {
		opts = append(opts, usecase.WithObserver(m.Observe))
	}
	return usecase.NewIngestUseCase(extract.NewRouter(), seg, emb, st, opts...), nil
}
