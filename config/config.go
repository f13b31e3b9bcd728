package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"docingest/internal/adapter/chunker"
)

// EnvPrefix prefixes every environment override, e.g. DOCINGEST_CHUNKING_TARGET_SIZE.
const EnvPrefix = "DOCINGEST_"

// Config holds all configuration for docingest.
type Config struct {
	Chunking  ChunkingConfig  `yaml:"chunking"  envPrefix:"CHUNKING_"`
	Embedding EmbeddingConfig `yaml:"embedding" envPrefix:"EMBEDDING_"`
	Store     StoreConfig     `yaml:"store"     envPrefix:"STORE_"`
	Ingest    IngestConfig    `yaml:"ingest"    envPrefix:"INGEST_"`
	Server    ServerConfig    `yaml:"server"    envPrefix:"SERVER_"`
	Logging   LoggingConfig   `yaml:"logging"   envPrefix:"LOGGING_"`
}

// ChunkingConfig drives the segmenter. Sizes are in characters.
type ChunkingConfig struct {
	TargetSize        int  `yaml:"target_size"        env:"TARGET_SIZE"`
	Overlap           int  `yaml:"overlap"            env:"OVERLAP"`
	MinChunkSize      int  `yaml:"min_chunk_size"     env:"MIN_CHUNK_SIZE"`
	RespectSentences  bool `yaml:"respect_sentences"  env:"RESPECT_SENTENCES"`
	RespectParagraphs bool `yaml:"respect_paragraphs" env:"RESPECT_PARAGRAPHS"`
}

// Options converts the section into segmenter options.
func (c ChunkingConfig) Options() chunker.Options {
	return chunker.Options{
		RespectSentences:  c.RespectSentences,
		RespectParagraphs: c.RespectParagraphs,
		MinChunkSize:      c.MinChunkSize,
	}
}

// EmbeddingConfig holds embedding configuration.
type EmbeddingConfig struct {
	Provider  string        `yaml:"provider"    env:"PROVIDER"` // "openai", "ollama", "chromem-ollama", "mock"
	Model     string        `yaml:"model"       env:"MODEL"`
	BaseURL   string        `yaml:"base_url"    env:"BASE_URL"`
	APIKeyEnv string        `yaml:"api_key_env" env:"API_KEY_ENV"` // Environment variable for API key
	Dimension int           `yaml:"dimension"   env:"DIMENSION"`
	Timeout   time.Duration `yaml:"timeout"     env:"TIMEOUT"`
	MaxBatch  int           `yaml:"max_batch"   env:"MAX_BATCH"` // 0 = one request per document
}

// StoreConfig selects where records are persisted.
type StoreConfig struct {
	Backend string `yaml:"backend" env:"BACKEND"` // "bolt", "chromem"
	Path    string `yaml:"path"    env:"PATH"`
}

// IngestConfig controls directory ingestion.
type IngestConfig struct {
	Includes     []string `yaml:"includes"       env:"INCLUDES"`
	Excludes     []string `yaml:"excludes"       env:"EXCLUDES"`
	Concurrency  int      `yaml:"concurrency"    env:"CONCURRENCY"`
	MaxFileBytes int64    `yaml:"max_file_bytes" env:"MAX_FILE_BYTES"`
}

type ServerConfig struct {
	Addr string `yaml:"addr" env:"ADDR"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level" env:"LEVEL"`
	JSON  bool   `yaml:"json"  env:"JSON"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Chunking: ChunkingConfig{
			TargetSize:        1000,
			Overlap:           200,
			MinChunkSize:      100,
			RespectSentences:  true,
			RespectParagraphs: true,
		},
		Embedding: EmbeddingConfig{
			Provider:  "openai",
			Model:     "text-embedding-3-small",
			APIKeyEnv: "OPENAI_API_KEY",
			Dimension: 1536,
			Timeout:   60 * time.Second,
		},
		Store: StoreConfig{
			Backend: "bolt",
		},
		Ingest: IngestConfig{
			Includes:     []string{"**/*.txt", "**/*.md", "**/*.markdown", "**/*.pdf"},
			Excludes:     []string{"**/.git/**", "**/node_modules/**", "**/.docingest/**"},
			Concurrency:  4,
			MaxFileBytes: 32 << 20,
		},
		Server: ServerConfig{
			Addr: ":8080",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from a YAML file and applies environment overrides.
// A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return finish(cfg)
		}
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	return finish(cfg)
}

func finish(cfg *Config) (*Config, error) {
	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromDir loads configuration from a directory (looks for docingest.yaml,
// then .docingest/config.yaml). A .env file in dir is loaded first.
func LoadFromDir(dir string) (*Config, error) {
	if err := loadDotEnv(filepath.Join(dir, ".env")); err != nil {
		return nil, err
	}

	for _, path := range []string{
		filepath.Join(dir, "docingest.yaml"),
		filepath.Join(dir, ".docingest", "config.yaml"),
	} {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}

	return finish(DefaultConfig())
}

func loadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	// godotenv.Load never overrides variables already set in the process.
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overlays DOCINGEST_* environment variables onto cfg.
func ApplyEnv(cfg *Config) error {
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("failed to parse environment: %w", err)
	}
	return nil
}

// Validate fails fast on settings the pipeline cannot run with.
func (c *Config) Validate() error {
	if err := chunker.ValidateSettings(c.Chunking.TargetSize, c.Chunking.Overlap, c.Chunking.Options()); err != nil {
		return fmt.Errorf("chunking: %w", err)
	}

	switch c.Embedding.Provider {
	case "openai", "ollama", "chromem-ollama", "mock":
	default:
		return fmt.Errorf("embedding: unsupported provider %q", c.Embedding.Provider)
	}
	if c.Embedding.MaxBatch < 0 {
		return fmt.Errorf("embedding: max_batch cannot be negative")
	}

	switch c.Store.Backend {
	case "bolt", "chromem":
	default:
		return fmt.Errorf("store: unsupported backend %q", c.Store.Backend)
	}

	if c.Ingest.Concurrency < 1 {
		return fmt.Errorf("ingest: concurrency must be at least 1")
	}
	return nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// StorePath resolves the store location for a workspace directory.
func (c *Config) StorePath(dir string) string {
	if c.Store.Path != "" {
		return c.Store.Path
	}
	if c.Store.Backend == "chromem" {
		return filepath.Join(dir, ".docingest", "chromem")
	}
	return filepath.Join(dir, ".docingest", "docingest.db")
}

// EnsureDataDir ensures the .docingest directory exists.
func EnsureDataDir(dir string) error {
	return os.MkdirAll(filepath.Join(dir, ".docingest"), 0755)
}
