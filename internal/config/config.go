// Package config loads the engine configuration: an optional YAML file
// overlaid with environment variables, read once at startup. There is
// no hot reload.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/xplagiax/simengine/internal/ratelimit"
)

// Config is the full engine configuration.
type Config struct {
	// Server settings.
	ListenAddr string `yaml:"listen_addr"`
	Workers    int    `yaml:"workers"`
	LogLevel   string `yaml:"log_level"`
	LogFile    string `yaml:"log_file"`

	// DataDir holds the index files and the dedup ledger.
	DataDir string `yaml:"data_dir"`

	// CacheURL points at a shared result-cache backend. Empty selects
	// the in-process cache.
	CacheURL string `yaml:"cache_url"`

	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Similarity SimilarityConfig `yaml:"similarity"`
	Sources    SourcesConfig    `yaml:"sources"`
	Circuit    CircuitConfig    `yaml:"circuit"`
	Dedup      DedupConfig      `yaml:"dedup"`

	// RateLimits overrides the per-source token buckets.
	RateLimits map[string]ratelimit.Limit `yaml:"rate_limits"`
}

// EmbeddingConfig configures the embedding backend.
type EmbeddingConfig struct {
	// Host is the embedding server URL; empty selects the offline
	// static backend.
	Host string `yaml:"host"`
	// Model is the sentence-transformer model name.
	Model string `yaml:"model"`
	// Dimensions is the vector dimension (default: 384).
	Dimensions int `yaml:"dimensions"`
	// BatchSize caps texts per model request (default: 64).
	BatchSize int `yaml:"batch_size"`
	// CacheSize is the in-process embedding cache capacity.
	CacheSize int `yaml:"cache_size"`
}

// SimilarityConfig tunes the orchestrator.
type SimilarityConfig struct {
	// DefaultThreshold applies when a request omits one (default: 0.70).
	DefaultThreshold float64 `yaml:"default_threshold"`
	// DeadlineSeconds bounds one batch call (default: 30).
	DeadlineSeconds int `yaml:"deadline_seconds"`
	// SaveDebounceSeconds coalesces index saves (default: 5).
	SaveDebounceSeconds int `yaml:"save_debounce_seconds"`
	// CacheTTLSeconds is the result-cache TTL (default: 86400).
	CacheTTLSeconds int `yaml:"cache_ttl_seconds"`
	// ResultCacheSize bounds the in-process result cache.
	ResultCacheSize int `yaml:"result_cache_size"`
}

// SourcesConfig carries external-source credentials and limits.
type SourcesConfig struct {
	ContactEmail        string `yaml:"contact_email"`
	UserAgent           string `yaml:"user_agent"`
	SemanticScholarKey  string `yaml:"semantic_scholar_key"`
	COREKey             string `yaml:"core_key"`
	MaxResultsPerSource int    `yaml:"max_results_per_source"`
	// TimeoutSeconds is the per-source request timeout (default: 8).
	TimeoutSeconds int `yaml:"timeout_seconds"`
	// FederationDeadlineSeconds bounds the whole fan-out (default: 10).
	FederationDeadlineSeconds int `yaml:"federation_deadline_seconds"`
}

// CircuitConfig tunes the per-source circuit breakers.
type CircuitConfig struct {
	// FailureThreshold opens the circuit (default: 5).
	FailureThreshold int `yaml:"failure_threshold"`
	// CooldownSeconds before a half-open probe (default: 30).
	CooldownSeconds int `yaml:"cooldown_seconds"`
}

// DedupConfig sizes the deduplicator.
type DedupConfig struct {
	// ExpectedPapers sizes the probabilistic filter (default: 1e6).
	ExpectedPapers uint `yaml:"expected_papers"`
	// FalsePositiveRate for the filter (default: 0.01).
	FalsePositiveRate float64 `yaml:"false_positive_rate"`
}

// Default returns the baseline configuration.
func Default() Config {
	return Config{
		ListenAddr: ":8090",
		Workers:    4,
		LogLevel:   "info",
		DataDir:    "data",
		Embedding: EmbeddingConfig{
			Model:      "all-minilm",
			Dimensions: 384,
			BatchSize:  64,
			CacheSize:  10000,
		},
		Similarity: SimilarityConfig{
			DefaultThreshold:    0.70,
			DeadlineSeconds:     30,
			SaveDebounceSeconds: 5,
			CacheTTLSeconds:     86400,
			ResultCacheSize:     4096,
		},
		Sources: SourcesConfig{
			UserAgent:                 "simengine/1.0 (academic similarity engine)",
			MaxResultsPerSource:       5,
			TimeoutSeconds:            8,
			FederationDeadlineSeconds: 10,
		},
		Circuit: CircuitConfig{
			FailureThreshold: 5,
			CooldownSeconds:  30,
		},
		Dedup: DedupConfig{
			ExpectedPapers:    1_000_000,
			FalsePositiveRate: 0.01,
		},
	}
}

// Load reads the configuration: defaults, then the YAML file (if path
// is non-empty or the default file exists), then environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		if _, err := os.Stat("simengine.yaml"); err == nil {
			path = "simengine.yaml"
		}
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// applyEnv overlays SIMENGINE_* environment variables.
func (c *Config) applyEnv() {
	setString(&c.ListenAddr, "SIMENGINE_LISTEN_ADDR")
	setString(&c.DataDir, "SIMENGINE_DATA_DIR")
	setString(&c.CacheURL, "SIMENGINE_CACHE_URL")
	setString(&c.LogLevel, "SIMENGINE_LOG_LEVEL")
	setString(&c.LogFile, "SIMENGINE_LOG_FILE")
	setInt(&c.Workers, "SIMENGINE_WORKERS")

	setString(&c.Embedding.Host, "SIMENGINE_EMBEDDING_HOST")
	setString(&c.Embedding.Model, "SIMENGINE_EMBEDDING_MODEL")
	setInt(&c.Embedding.Dimensions, "SIMENGINE_EMBEDDING_DIMENSIONS")
	setInt(&c.Embedding.BatchSize, "SIMENGINE_EMBEDDING_BATCH_SIZE")

	setFloat(&c.Similarity.DefaultThreshold, "SIMENGINE_DEFAULT_THRESHOLD")

	setString(&c.Sources.ContactEmail, "SIMENGINE_CONTACT_EMAIL")
	setString(&c.Sources.SemanticScholarKey, "SEMANTIC_SCHOLAR_API_KEY")
	setString(&c.Sources.COREKey, "CORE_API_KEY")
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	if c.Embedding.Dimensions <= 0 {
		return fmt.Errorf("embedding dimensions must be positive")
	}
	if c.Embedding.BatchSize <= 0 || c.Embedding.BatchSize > 256 {
		return fmt.Errorf("embedding batch size must be in 1..256")
	}
	if c.Similarity.DefaultThreshold < 0 || c.Similarity.DefaultThreshold > 1 {
		return fmt.Errorf("default threshold must be in [0,1]")
	}
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be positive")
	}
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}
	return nil
}

// LedgerPath is the dedup ledger location under the data directory.
func (c *Config) LedgerPath() string {
	return filepath.Join(c.DataDir, "papers.db")
}

// FederationDeadline returns the fan-out deadline as a duration.
func (c *Config) FederationDeadline() time.Duration {
	return time.Duration(c.Sources.FederationDeadlineSeconds) * time.Second
}

// SourceTimeout returns the per-source timeout as a duration.
func (c *Config) SourceTimeout() time.Duration {
	return time.Duration(c.Sources.TimeoutSeconds) * time.Second
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}
