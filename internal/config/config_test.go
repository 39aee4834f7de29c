package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfig_DefaultsAreValid(t *testing.T) {
	cfg := NewConfig()

	require.NoError(t, cfg.Validate())
	assert.Equal(t, 0.8, cfg.Search.VectorWeight)
	assert.Equal(t, 0.2, cfg.Search.LexicalWeight)
	assert.Equal(t, 50, cfg.Search.CandidateLimit)
	assert.Equal(t, 20, cfg.Search.RerankLimit)
	assert.Equal(t, 5, cfg.Search.TopK)
	assert.Equal(t, "fts5", cfg.Storage.LexicalBackend)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Load(dir)

	require.NoError(t, err)
	assert.Equal(t, dir, cfg.Storage.DataDir)
	assert.Equal(t, 8, cfg.Ingest.BatchMaxDocs)
}

func TestLoad_MergesYAMLOverDefaults(t *testing.T) {
	// Given: a config file overriding a few fields
	dir := t.TempDir()
	yaml := `
storage:
  lexical_backend: bleve
search:
  vector_weight: 0.6
  lexical_weight: 0.4
  top_k: 10
ingest:
  workers: 2
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFileName), []byte(yaml), 0o644))

	// When: loading
	cfg, err := Load(dir)

	// Then: overrides apply, untouched fields keep defaults
	require.NoError(t, err)
	assert.Equal(t, "bleve", cfg.Storage.LexicalBackend)
	assert.Equal(t, 0.6, cfg.Search.VectorWeight)
	assert.Equal(t, 10, cfg.Search.TopK)
	assert.Equal(t, 2, cfg.Ingest.Workers)
	assert.Equal(t, 256, cfg.Ingest.BatchMaxChunks)
}

func TestLoad_RejectsInvalidWeights(t *testing.T) {
	dir := t.TempDir()
	yaml := `
search:
  vector_weight: 0.9
  lexical_weight: 0.4
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFileName), []byte(yaml), 0o644))

	_, err := Load(dir)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "must equal 1.0")
}

func TestLoad_EnvOverridesWin(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("EYWA_VECTOR_WEIGHT", "0.5")
	t.Setenv("EYWA_INGEST_WORKERS", "3")

	cfg, err := Load(dir)

	require.NoError(t, err)
	assert.Equal(t, 0.5, cfg.Search.VectorWeight)
	assert.Equal(t, 0.5, cfg.Search.LexicalWeight)
	assert.Equal(t, 3, cfg.Ingest.Workers)
}

func TestValidate_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad backend", func(c *Config) { c.Storage.LexicalBackend = "tantivy" }},
		{"bad provider", func(c *Config) { c.Embedding.Provider = "remote" }},
		{"bad reranker", func(c *Config) { c.Search.Reranker = "cross-encoder" }},
		{"bad chunk band", func(c *Config) { c.Chunking.MaxChunkRunes = 100 }},
		{"candidate below topk", func(c *Config) { c.Search.CandidateLimit = 3 }},
		{"zero workers", func(c *Config) { c.Ingest.Workers = 0 }},
		{"bad log level", func(c *Config) { c.Logging.Level = "trace" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestWriteYAML_RoundTrips(t *testing.T) {
	dir := t.TempDir()
	cfg := NewConfig()
	cfg.Storage.DataDir = dir
	cfg.Search.TopK = 7

	path := filepath.Join(dir, ConfigFileName)
	require.NoError(t, cfg.WriteYAML(path))

	loaded, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 7, loaded.Search.TopK)
}
