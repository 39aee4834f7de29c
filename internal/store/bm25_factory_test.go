package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBM25Index_Backends(t *testing.T) {
	// Default and "fts5" produce the SQLite implementation
	idx, err := NewBM25Index("", DefaultBM25Config(), "")
	require.NoError(t, err)
	_, ok := idx.(*SQLiteBM25Index)
	assert.True(t, ok)
	_ = idx.Close()

	idx, err = NewBM25Index("", DefaultBM25Config(), "fts5")
	require.NoError(t, err)
	_, ok = idx.(*SQLiteBM25Index)
	assert.True(t, ok)
	_ = idx.Close()

	// "bleve" produces the Bleve implementation
	idx, err = NewBM25Index("", DefaultBM25Config(), "bleve")
	require.NoError(t, err)
	_, ok = idx.(*BleveBM25Index)
	assert.True(t, ok)
	_ = idx.Close()

	// Unknown backends are rejected
	_, err = NewBM25Index("", DefaultBM25Config(), "elasticsearch")
	assert.Error(t, err)
}

func TestDetectBM25Backend(t *testing.T) {
	dir := t.TempDir()
	basePath := filepath.Join(dir, "lexical")

	// Given: no index on disk
	assert.Equal(t, BM25Backend(""), DetectBM25Backend(basePath))

	// When: an FTS5 index is created
	idx, err := NewBM25Index(basePath, DefaultBM25Config(), "fts5")
	require.NoError(t, err)
	require.NoError(t, idx.Index(context.Background(),
		[]*LexicalDoc{{ID: "c1", DocID: "d1", Content: "content"}}))
	require.NoError(t, idx.Close())

	// Then: the backend is detected from the file layout
	assert.Equal(t, BM25BackendFTS5, DetectBM25Backend(basePath))
}

func TestBM25IndexPath(t *testing.T) {
	assert.Equal(t, filepath.Join("data", "lexical.db"), BM25IndexPath("data", "fts5"))
	assert.Equal(t, filepath.Join("data", "lexical.db"), BM25IndexPath("data", ""))
	assert.Equal(t, filepath.Join("data", "lexical.bleve"), BM25IndexPath("data", "bleve"))
}
