// Package config loads the context memory engine's configuration surface.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"ctxmemoryd/internal/logging"
)

// EmbeddingConfig configures the Embedder.
type EmbeddingConfig struct {
	// Host is the base URL of an OpenAI-compatible embeddings endpoint.
	// Empty means no HTTP embedder is configured and the deterministic
	// fallback embedder is used instead.
	Host       string `yaml:"host"`
	Path       string `yaml:"path"`
	APIKey     string `yaml:"api_key"`
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`
	TimeoutSec int    `yaml:"timeout_seconds"`
}

// VectorDBConfig configures the HNSW vector index.
type VectorDBConfig struct {
	Dimensions     int `yaml:"dimensions"`
	MaxElements    int `yaml:"max_elements"`
	M              int `yaml:"m"`
	EfConstruction int `yaml:"ef_construction"`
	EfSearch       int `yaml:"ef_search"`
}

// Config is the full configuration surface described in the engine's
// external interfaces (the tool protocol, the optional HTTP
// side-channel, and the persisted state layout).
type Config struct {
	ContextDir string `yaml:"context_dir"`

	MessageLimitThreshold int     `yaml:"message_limit_threshold"`
	AutoSummarize         bool    `yaml:"auto_summarize"`
	UseVectorDB           bool    `yaml:"use_vector_db"`
	UseGraphDB            bool    `yaml:"use_graph_db"`
	SimilarityThreshold   float64 `yaml:"similarity_threshold"`

	VectorDB   VectorDBConfig  `yaml:"vector_db"`
	Embeddings EmbeddingConfig `yaml:"embeddings"`

	EnableHTTPServer bool   `yaml:"enable_http_server"`
	HTTPPort         int    `yaml:"http_port"`
	APIKey           string `yaml:"api_key"`

	// FallbackMode forces keyword-only similarity regardless of Embedder
	// availability. Intended for tests and explicit degraded-mode runs.
	FallbackMode bool `yaml:"fallback_mode"`
}

// Default returns the configuration defaults named in the engine's
// configuration surface.
func Default() Config {
	return Config{
		ContextDir:            "./data",
		MessageLimitThreshold: 10,
		AutoSummarize:         true,
		UseVectorDB:           true,
		UseGraphDB:            true,
		SimilarityThreshold:   0.6,
		VectorDB: VectorDBConfig{
			Dimensions:     384,
			MaxElements:    1000,
			M:              16,
			EfConstruction: 200,
			EfSearch:       100,
		},
		Embeddings: EmbeddingConfig{
			Dimensions: 384,
			TimeoutSec: 30,
		},
		HTTPPort: 3000,
	}
}

// Load reads the configuration from a YAML file, applies defaults for
// anything left unset, and lets environment variables override secrets.
// A missing file is not an error: the process starts with defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config file: %w", err)
			}
			logging.Log.Warnf("config file %s not found, using defaults", path)
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("unmarshal config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	abs, err := filepath.Abs(cfg.ContextDir)
	if err == nil {
		cfg.ContextDir = abs
	}
	if err := os.MkdirAll(cfg.ContextDir, 0o755); err != nil {
		return nil, fmt.Errorf("create context dir: %w", err)
	}

	logging.Log.Infof("configuration loaded (context_dir=%s)", cfg.ContextDir)
	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("CTXMEMORY_EMBEDDINGS_API_KEY"); v != "" {
		cfg.Embeddings.APIKey = v
	}
	if v := os.Getenv("CTXMEMORY_API_KEY"); v != "" {
		cfg.APIKey = v
	}
	if v := os.Getenv("CTXMEMORY_CONTEXT_DIR"); v != "" {
		cfg.ContextDir = v
	}
}

func applyDefaults(cfg *Config) {
	defaults := Default()
	if cfg.MessageLimitThreshold <= 0 {
		cfg.MessageLimitThreshold = defaults.MessageLimitThreshold
	}
	if cfg.SimilarityThreshold <= 0 {
		cfg.SimilarityThreshold = defaults.SimilarityThreshold
	}
	if cfg.VectorDB.Dimensions <= 0 {
		cfg.VectorDB.Dimensions = defaults.VectorDB.Dimensions
	}
	if cfg.VectorDB.MaxElements <= 0 {
		cfg.VectorDB.MaxElements = defaults.VectorDB.MaxElements
	}
	if cfg.VectorDB.M <= 0 {
		cfg.VectorDB.M = defaults.VectorDB.M
	}
	if cfg.VectorDB.EfConstruction <= 0 {
		cfg.VectorDB.EfConstruction = defaults.VectorDB.EfConstruction
	}
	if cfg.VectorDB.EfSearch <= 0 {
		cfg.VectorDB.EfSearch = defaults.VectorDB.EfSearch
	}
	if cfg.Embeddings.Dimensions <= 0 {
		cfg.Embeddings.Dimensions = cfg.VectorDB.Dimensions
	}
	if cfg.Embeddings.TimeoutSec <= 0 {
		cfg.Embeddings.TimeoutSec = defaults.Embeddings.TimeoutSec
	}
	if cfg.HTTPPort <= 0 {
		cfg.HTTPPort = defaults.HTTPPort
	}
	if cfg.ContextDir == "" {
		cfg.ContextDir = defaults.ContextDir
	}
}

// Validate rejects configuration combinations that would otherwise
// surface as confusing runtime errors later.
func (cfg *Config) Validate() error {
	if cfg.SimilarityThreshold < 0 || cfg.SimilarityThreshold > 1 {
		return fmt.Errorf("similarity_threshold must be within [0,1], got %v", cfg.SimilarityThreshold)
	}
	if cfg.VectorDB.Dimensions != cfg.Embeddings.Dimensions && cfg.Embeddings.Host != "" {
		return fmt.Errorf("vector_db.dimensions (%d) must match embeddings.dimensions (%d)",
			cfg.VectorDB.Dimensions, cfg.Embeddings.Dimensions)
	}
	return nil
}

// Redacted returns a copy of cfg with secret fields blanked, suitable
// for the GET /info HTTP side-channel endpoint.
func (cfg Config) Redacted() Config {
	cfg.APIKey = redact(cfg.APIKey)
	cfg.Embeddings.APIKey = redact(cfg.Embeddings.APIKey)
	return cfg
}

func redact(s string) string {
	if s == "" {
		return ""
	}
	return "***"
}
