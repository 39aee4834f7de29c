// Package config loads and validates eywa configuration.
//
// Configuration is applied in order of increasing precedence:
//  1. Hardcoded defaults
//  2. eywa.yaml in the data directory
//  3. Environment variables (EYWA_*)
package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config represents the complete eywa configuration.
type Config struct {
	Version   int             `yaml:"version"`
	Storage   StorageConfig   `yaml:"storage"`
	Chunking  ChunkingConfig  `yaml:"chunking"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Search    SearchConfig    `yaml:"search"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// StorageConfig configures the content store and indexes.
type StorageConfig struct {
	// DataDir is the directory holding all stores. Defaults to ~/.eywa.
	DataDir string `yaml:"data_dir"`

	// LexicalBackend selects the BM25 index backend.
	// Options: "fts5" (default, concurrent access) or "bleve".
	LexicalBackend string `yaml:"lexical_backend"`

	// CompressionLevel is the zstd level for stored content (1-4).
	CompressionLevel int `yaml:"compression_level"`

	// SQLiteCacheMB is the SQLite page cache size in MB.
	SQLiteCacheMB int `yaml:"sqlite_cache_mb"`
}

// ChunkingConfig configures document chunking.
type ChunkingConfig struct {
	// MinChunkRunes is the lower bound of the target chunk size band.
	MinChunkRunes int `yaml:"min_chunk_runes"`

	// MaxChunkRunes is the upper bound; oversize sections are split.
	MaxChunkRunes int `yaml:"max_chunk_runes"`
}

// EmbeddingConfig configures the embedding provider.
type EmbeddingConfig struct {
	// Provider selects the embedder. Options: "static" (default).
	Provider string `yaml:"provider"`

	// Model names the embedding model; part of the cache key.
	Model string `yaml:"model"`

	// Dimensions is the embedding width. 0 means use the provider default.
	Dimensions int `yaml:"dimensions"`

	// BatchSize is the maximum texts per embed call.
	BatchSize int `yaml:"batch_size"`

	// CacheSize is the LRU entry count for the embed cache.
	CacheSize int `yaml:"cache_size"`

	// MaxRetries bounds retry attempts for retryable embed failures.
	MaxRetries int `yaml:"max_retries"`
}

// IngestConfig configures the ingestion pipeline.
type IngestConfig struct {
	// Workers is the per-job document parallelism.
	Workers int `yaml:"workers"`

	// PoolSize is the number of concurrent jobs processed.
	PoolSize int `yaml:"pool_size"`

	// BatchMaxDocs flushes the accumulator at this many finished documents.
	BatchMaxDocs int `yaml:"batch_max_docs"`

	// BatchMaxChunks flushes the accumulator at this many buffered chunks.
	BatchMaxChunks int `yaml:"batch_max_chunks"`

	// BatchMaxBytes flushes the accumulator at this much buffered text.
	BatchMaxBytes int `yaml:"batch_max_bytes"`
}

// SearchConfig configures hybrid retrieval.
type SearchConfig struct {
	// VectorWeight is the fused-score weight for the vector side (alpha).
	// Must sum to 1.0 with LexicalWeight.
	VectorWeight float64 `yaml:"vector_weight"`

	// LexicalWeight is the fused-score weight for the BM25 side (beta).
	LexicalWeight float64 `yaml:"lexical_weight"`

	// CandidateLimit is how many candidates each side contributes (top-N).
	CandidateLimit int `yaml:"candidate_limit"`

	// RerankLimit is how many fused candidates go to the reranker (top-M).
	RerankLimit int `yaml:"rerank_limit"`

	// TopK is the default result count.
	TopK int `yaml:"top_k"`

	// TimeoutMS bounds a single search request.
	TimeoutMS int `yaml:"timeout_ms"`

	// Reranker selects the reranking stage. Options: "none", "keyword".
	Reranker string `yaml:"reranker"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level     string `yaml:"level"`
	MaxSizeMB int    `yaml:"max_size_mb"`
	MaxFiles  int    `yaml:"max_files"`
}

// ConfigFileName is the config file looked up inside the data directory.
const ConfigFileName = "eywa.yaml"

// NewConfig creates a new Config with sensible defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Storage: StorageConfig{
			DataDir:          defaultDataDir(),
			LexicalBackend:   "fts5",
			CompressionLevel: 3,
			SQLiteCacheMB:    64,
		},
		Chunking: ChunkingConfig{
			MinChunkRunes: 200,
			MaxChunkRunes: 2000,
		},
		Embedding: EmbeddingConfig{
			Provider:   "static",
			Model:      "eywa-static",
			Dimensions: 0, // provider default
			BatchSize:  32,
			CacheSize:  10000,
			MaxRetries: 3,
		},
		Ingest: IngestConfig{
			Workers:        runtime.NumCPU(),
			PoolSize:       2,
			BatchMaxDocs:   8,
			BatchMaxChunks: 256,
			BatchMaxBytes:  8 * 1024 * 1024,
		},
		Search: SearchConfig{
			VectorWeight:   0.8,
			LexicalWeight:  0.2,
			CandidateLimit: 50,
			RerankLimit:    20,
			TopK:           5,
			TimeoutMS:      5000,
			Reranker:       "none",
		},
		Logging: LoggingConfig{
			Level:     "info",
			MaxSizeMB: 10,
			MaxFiles:  5,
		},
	}
}

// defaultDataDir returns the default data directory.
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".eywa")
	}
	return filepath.Join(home, ".eywa")
}

// Load loads configuration rooted at the given data directory.
// An empty dir uses the default data directory. A missing config file
// is fine; defaults apply.
func Load(dir string) (*Config, error) {
	cfg := NewConfig()
	if dir != "" {
		cfg.Storage.DataDir = dir
	}

	path := filepath.Join(cfg.Storage.DataDir, ConfigFileName)
	if _, err := os.Stat(path); err == nil {
		if err := cfg.loadYAML(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// loadYAML loads and merges configuration from a YAML file.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	c.mergeWith(&parsed)
	return nil
}

// mergeWith merges non-zero values from other into c.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}

	if other.Storage.DataDir != "" {
		c.Storage.DataDir = other.Storage.DataDir
	}
	if other.Storage.LexicalBackend != "" {
		c.Storage.LexicalBackend = other.Storage.LexicalBackend
	}
	if other.Storage.CompressionLevel != 0 {
		c.Storage.CompressionLevel = other.Storage.CompressionLevel
	}
	if other.Storage.SQLiteCacheMB != 0 {
		c.Storage.SQLiteCacheMB = other.Storage.SQLiteCacheMB
	}

	if other.Chunking.MinChunkRunes != 0 {
		c.Chunking.MinChunkRunes = other.Chunking.MinChunkRunes
	}
	if other.Chunking.MaxChunkRunes != 0 {
		c.Chunking.MaxChunkRunes = other.Chunking.MaxChunkRunes
	}

	if other.Embedding.Provider != "" {
		c.Embedding.Provider = other.Embedding.Provider
	}
	if other.Embedding.Model != "" {
		c.Embedding.Model = other.Embedding.Model
	}
	if other.Embedding.Dimensions != 0 {
		c.Embedding.Dimensions = other.Embedding.Dimensions
	}
	if other.Embedding.BatchSize != 0 {
		c.Embedding.BatchSize = other.Embedding.BatchSize
	}
	if other.Embedding.CacheSize != 0 {
		c.Embedding.CacheSize = other.Embedding.CacheSize
	}
	if other.Embedding.MaxRetries != 0 {
		c.Embedding.MaxRetries = other.Embedding.MaxRetries
	}

	if other.Ingest.Workers != 0 {
		c.Ingest.Workers = other.Ingest.Workers
	}
	if other.Ingest.PoolSize != 0 {
		c.Ingest.PoolSize = other.Ingest.PoolSize
	}
	if other.Ingest.BatchMaxDocs != 0 {
		c.Ingest.BatchMaxDocs = other.Ingest.BatchMaxDocs
	}
	if other.Ingest.BatchMaxChunks != 0 {
		c.Ingest.BatchMaxChunks = other.Ingest.BatchMaxChunks
	}
	if other.Ingest.BatchMaxBytes != 0 {
		c.Ingest.BatchMaxBytes = other.Ingest.BatchMaxBytes
	}

	// Weights can legitimately be 0 for one side; only merge when the pair
	// was set together so the convex constraint still holds.
	if other.Search.VectorWeight != 0 || other.Search.LexicalWeight != 0 {
		c.Search.VectorWeight = other.Search.VectorWeight
		c.Search.LexicalWeight = other.Search.LexicalWeight
	}
	if other.Search.CandidateLimit != 0 {
		c.Search.CandidateLimit = other.Search.CandidateLimit
	}
	if other.Search.RerankLimit != 0 {
		c.Search.RerankLimit = other.Search.RerankLimit
	}
	if other.Search.TopK != 0 {
		c.Search.TopK = other.Search.TopK
	}
	if other.Search.TimeoutMS != 0 {
		c.Search.TimeoutMS = other.Search.TimeoutMS
	}
	if other.Search.Reranker != "" {
		c.Search.Reranker = other.Search.Reranker
	}

	if other.Logging.Level != "" {
		c.Logging.Level = other.Logging.Level
	}
	if other.Logging.MaxSizeMB != 0 {
		c.Logging.MaxSizeMB = other.Logging.MaxSizeMB
	}
	if other.Logging.MaxFiles != 0 {
		c.Logging.MaxFiles = other.Logging.MaxFiles
	}
}

// applyEnvOverrides applies EYWA_* environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("EYWA_DATA_DIR"); v != "" {
		c.Storage.DataDir = v
	}
	if v := os.Getenv("EYWA_LEXICAL_BACKEND"); v != "" {
		c.Storage.LexicalBackend = v
	}
	if v := os.Getenv("EYWA_EMBEDDING_PROVIDER"); v != "" {
		c.Embedding.Provider = v
	}
	if v := os.Getenv("EYWA_VECTOR_WEIGHT"); v != "" {
		if w, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil && w >= 0 && w <= 1 {
			c.Search.VectorWeight = w
			c.Search.LexicalWeight = 1 - w
		}
	}
	if v := os.Getenv("EYWA_INGEST_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Ingest.Workers = n
		}
	}
	if v := os.Getenv("EYWA_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	if c.Search.VectorWeight < 0 || c.Search.VectorWeight > 1 {
		return fmt.Errorf("vector_weight must be between 0 and 1, got %f", c.Search.VectorWeight)
	}
	if c.Search.LexicalWeight < 0 || c.Search.LexicalWeight > 1 {
		return fmt.Errorf("lexical_weight must be between 0 and 1, got %f", c.Search.LexicalWeight)
	}
	sum := c.Search.VectorWeight + c.Search.LexicalWeight
	if math.Abs(sum-1.0) > 0.01 {
		return fmt.Errorf("vector_weight + lexical_weight must equal 1.0, got %.2f", sum)
	}
	if c.Search.TopK < 0 {
		return fmt.Errorf("top_k must be non-negative, got %d", c.Search.TopK)
	}
	if c.Search.CandidateLimit < c.Search.TopK {
		return fmt.Errorf("candidate_limit must be >= top_k, got %d < %d", c.Search.CandidateLimit, c.Search.TopK)
	}

	validBackends := map[string]bool{"fts5": true, "bleve": true}
	if !validBackends[strings.ToLower(c.Storage.LexicalBackend)] {
		return fmt.Errorf("storage.lexical_backend must be 'fts5' or 'bleve', got %s", c.Storage.LexicalBackend)
	}
	if c.Storage.CompressionLevel < 1 || c.Storage.CompressionLevel > 4 {
		return fmt.Errorf("storage.compression_level must be 1-4, got %d", c.Storage.CompressionLevel)
	}

	validProviders := map[string]bool{"static": true}
	if !validProviders[strings.ToLower(c.Embedding.Provider)] {
		return fmt.Errorf("embedding.provider must be 'static', got %s", c.Embedding.Provider)
	}

	if c.Chunking.MinChunkRunes <= 0 || c.Chunking.MaxChunkRunes <= c.Chunking.MinChunkRunes {
		return fmt.Errorf("chunking band invalid: min=%d max=%d", c.Chunking.MinChunkRunes, c.Chunking.MaxChunkRunes)
	}

	if c.Ingest.Workers < 1 {
		return fmt.Errorf("ingest.workers must be >= 1, got %d", c.Ingest.Workers)
	}
	if c.Ingest.BatchMaxDocs < 1 || c.Ingest.BatchMaxChunks < 1 || c.Ingest.BatchMaxBytes < 1 {
		return fmt.Errorf("ingest batch thresholds must be >= 1")
	}

	validRerankers := map[string]bool{"none": true, "keyword": true}
	if !validRerankers[strings.ToLower(c.Search.Reranker)] {
		return fmt.Errorf("search.reranker must be 'none' or 'keyword', got %s", c.Search.Reranker)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("logging.level must be 'debug', 'info', 'warn', or 'error', got %s", c.Logging.Level)
	}

	return nil
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
