// Package config loads the engine configuration.
//
// Precedence, lowest to highest:
//  1. Hardcoded defaults (NewConfig)
//  2. Config file (~/.kbretrieval/config.yaml, or an explicit path)
//  3. Environment variables (KBRETRIEVAL_*)
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/finova/kbretrieval/internal/kberr"
)

// Config is the full engine configuration.
type Config struct {
	Storage   StorageConfig   `yaml:"storage"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Chunking  ChunkingConfig  `yaml:"chunking"`
	Search    SearchConfig    `yaml:"search"`
	Rerank    RerankConfig    `yaml:"rerank"`
	Policy    PolicyConfig    `yaml:"policy"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// StorageConfig locates the persisted corpus.
type StorageConfig struct {
	DataDir string `yaml:"data_dir"` // empty = ~/.kbretrieval/data
}

// EmbeddingConfig configures the embedding provider.
type EmbeddingConfig struct {
	Provider       string `yaml:"provider"` // "ollama" or "static"
	OllamaHost     string `yaml:"ollama_host"`
	Model          string `yaml:"model"`
	Dimensions     int    `yaml:"dimensions"` // 0 = auto-detect
	BatchSize      int    `yaml:"batch_size"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	MaxRetries     int    `yaml:"max_retries"`
	CacheSize      int    `yaml:"cache_size"`
}

// ChunkingConfig sets the document splitter bounds.
type ChunkingConfig struct {
	ChunkSize    int `yaml:"chunk_size"`
	ChunkOverlap int `yaml:"chunk_overlap"`
}

// SearchConfig holds the retrieval tuning parameters.
type SearchConfig struct {
	CandidateWindow        int     `yaml:"candidate_window"`
	TopK                   int     `yaml:"top_k"`
	ScoreThreshold         float64 `yaml:"score_threshold"`
	LowConfidenceThreshold float64 `yaml:"low_confidence_threshold"`
	BoostPivot             float64 `yaml:"boost_pivot"`
	BoostScale             float64 `yaml:"boost_scale"`
	SingleResultThreshold  float64 `yaml:"single_result_threshold"`
	DualResultThreshold    float64 `yaml:"dual_result_threshold"`
	HybridEnabled          bool    `yaml:"hybrid_enabled"`
	Tokenizer              string  `yaml:"tokenizer"` // "unicode" or "regex"
}

// RerankConfig configures the optional cross-encoder stage.
type RerankConfig struct {
	Enabled        bool   `yaml:"enabled"`
	Endpoint       string `yaml:"endpoint"`
	Model          string `yaml:"model"`
	TopK           int    `yaml:"top_k"`
	FinalK         int    `yaml:"final_k"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// PolicyConfig locates the retrieval policy file.
type PolicyConfig struct {
	Path string `yaml:"path"` // empty = embedded defaults
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	Level     string `yaml:"level"`
	File      string `yaml:"file"` // empty = default log path
	MaxSizeMB int    `yaml:"max_size_mb"`
	MaxFiles  int    `yaml:"max_files"`
}

// NewConfig returns the hardcoded defaults.
func NewConfig() *Config {
	return &Config{
		Embedding: EmbeddingConfig{
			Provider:       "ollama",
			OllamaHost:     "http://localhost:11434",
			Model:          "nomic-embed-text",
			BatchSize:      32,
			TimeoutSeconds: 60,
			MaxRetries:     3,
			CacheSize:      4096,
		},
		Chunking: ChunkingConfig{
			ChunkSize:    800,
			ChunkOverlap: 120,
		},
		Search: SearchConfig{
			CandidateWindow:        12,
			TopK:                   3,
			ScoreThreshold:         0.40,
			LowConfidenceThreshold: 0.55,
			BoostPivot:             0.5,
			BoostScale:             0.1,
			SingleResultThreshold:  0.70,
			DualResultThreshold:    0.60,
			HybridEnabled:          true,
			Tokenizer:              "unicode",
		},
		Rerank: RerankConfig{
			TopK:           5,
			FinalK:         3,
			TimeoutSeconds: 10,
		},
		Logging: LoggingConfig{
			Level:     "info",
			MaxSizeMB: 10,
			MaxFiles:  3,
		},
	}
}

// DefaultConfigPath returns ~/.kbretrieval/config.yaml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.yaml"
	}
	return filepath.Join(home, ".kbretrieval", "config.yaml")
}

// DefaultDataDir returns ~/.kbretrieval/data.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "data"
	}
	return filepath.Join(home, ".kbretrieval", "data")
}

// Load builds the effective configuration. path may be empty, in which
// case the default location is tried; a missing file is not an error,
// an unreadable or invalid one is.
func Load(path string) (*Config, error) {
	cfg := NewConfig()

	explicit := path != ""
	if path == "" {
		path = DefaultConfigPath()
	}

	if err := cfg.loadYAML(path); err != nil {
		if explicit || !os.IsNotExist(err) {
			return nil, kberr.ConfigurationError(fmt.Sprintf("cannot load config %s", path), err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}

// applyEnvOverrides applies KBRETRIEVAL_* environment variables, the
// highest-precedence layer.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("KBRETRIEVAL_DATA_DIR"); v != "" {
		c.Storage.DataDir = v
	}
	if v := os.Getenv("KBRETRIEVAL_EMBEDDING_PROVIDER"); v != "" {
		c.Embedding.Provider = v
	}
	if v := os.Getenv("KBRETRIEVAL_OLLAMA_HOST"); v != "" {
		c.Embedding.OllamaHost = v
	}
	if v := os.Getenv("KBRETRIEVAL_EMBEDDING_MODEL"); v != "" {
		c.Embedding.Model = v
	}
	if v := os.Getenv("KBRETRIEVAL_SCORE_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Search.ScoreThreshold = f
		}
	}
	if v := os.Getenv("KBRETRIEVAL_TOP_K"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Search.TopK = n
		}
	}
	if v := os.Getenv("KBRETRIEVAL_HYBRID_ENABLED"); v != "" {
		c.Search.HybridEnabled = strings.EqualFold(v, "true") || v == "1"
	}
	if v := os.Getenv("KBRETRIEVAL_RERANK_ENABLED"); v != "" {
		c.Rerank.Enabled = strings.EqualFold(v, "true") || v == "1"
	}
	if v := os.Getenv("KBRETRIEVAL_RERANK_ENDPOINT"); v != "" {
		c.Rerank.Endpoint = v
	}
	if v := os.Getenv("KBRETRIEVAL_POLICY_PATH"); v != "" {
		c.Policy.Path = v
	}
	if v := os.Getenv("KBRETRIEVAL_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// Validate checks cross-field consistency.
func (c *Config) Validate() error {
	switch c.Embedding.Provider {
	case "ollama", "static":
	default:
		return kberr.ConfigurationError(
			fmt.Sprintf("unknown embedding provider %q (want ollama or static)", c.Embedding.Provider), nil)
	}

	if c.Chunking.ChunkOverlap >= c.Chunking.ChunkSize {
		return kberr.ConfigurationError("chunk_overlap must be smaller than chunk_size", nil)
	}
	if c.Search.ScoreThreshold < 0 || c.Search.ScoreThreshold > 1 {
		return kberr.ConfigurationError("score_threshold must be within [0,1]", nil)
	}
	if c.Search.BoostPivot < 0 || c.Search.BoostPivot > 1 {
		return kberr.ConfigurationError("boost_pivot must be within [0,1]", nil)
	}
	if c.Search.DualResultThreshold < 0 {
		return kberr.ConfigurationError("dual_result_threshold must not be negative", nil)
	}
	if c.Search.DualResultThreshold > c.Search.SingleResultThreshold {
		return kberr.ConfigurationError("dual_result_threshold must not exceed single_result_threshold", nil)
	}
	if c.Rerank.Enabled && c.Rerank.Endpoint == "" {
		return kberr.ConfigurationError("rerank.endpoint is required when reranking is enabled", nil)
	}
	return nil
}

// DataDir resolves the effective data directory.
func (c *Config) DataDir() string {
	if c.Storage.DataDir != "" {
		return c.Storage.DataDir
	}
	return DefaultDataDir()
}

// EmbedTimeout returns the embedding timeout as a duration.
func (c *Config) EmbedTimeout() time.Duration {
	return time.Duration(c.Embedding.TimeoutSeconds) * time.Second
}

// RerankTimeout returns the rerank timeout as a duration.
func (c *Config) RerankTimeout() time.Duration {
	return time.Duration(c.Rerank.TimeoutSeconds) * time.Second
}
