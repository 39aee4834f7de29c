package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBleveBM25Index_IndexAndSearch_Basic(t *testing.T) {
	// Given: empty in-memory index
	idx, err := NewBleveBM25Index("", DefaultBM25Config())
	require.NoError(t, err)
	defer func() { _ = idx.Close() }()

	// When: index chunks
	docs := []*LexicalDoc{
		{ID: "c1", DocID: "d1", SourceID: "notes", Content: "install the database server"},
		{ID: "c2", DocID: "d1", SourceID: "notes", Content: "configure the database connection pool"},
		{ID: "c3", DocID: "d2", SourceID: "wiki", Content: "deployment checklist"},
	}
	err = idx.Index(context.Background(), docs)
	require.NoError(t, err)

	// Then: search finds matching chunks, scored by BM25
	results, err := idx.Search(context.Background(), "database", 10, "")
	require.NoError(t, err)
	assert.Len(t, results, 2)
	assert.Greater(t, results[0].Score, 0.0)
}

func TestBleveBM25Index_Search_FindsCamelCase(t *testing.T) {
	// Given: index with a camelCase identifier
	idx, err := NewBleveBM25Index("", DefaultBM25Config())
	require.NoError(t, err)
	defer func() { _ = idx.Close() }()

	require.NoError(t, idx.Index(context.Background(),
		[]*LexicalDoc{{ID: "c1", DocID: "d1", Content: "call getUserById before rendering"}}))

	// When: searching for a partial term
	results, err := idx.Search(context.Background(), "user", 10, "")
	require.NoError(t, err)

	// Then: chunk is found
	require.Len(t, results, 1)
	assert.Equal(t, "c1", results[0].ChunkID)
}

func TestBleveBM25Index_Search_SourceFilter(t *testing.T) {
	// Given: chunks from two sources
	idx, err := NewBleveBM25Index("", DefaultBM25Config())
	require.NoError(t, err)
	defer func() { _ = idx.Close() }()

	docs := []*LexicalDoc{
		{ID: "c1", DocID: "d1", SourceID: "notes", Content: "backup schedule"},
		{ID: "c2", DocID: "d2", SourceID: "wiki", Content: "backup retention policy"},
	}
	require.NoError(t, idx.Index(context.Background(), docs))

	// When: searching with a source filter
	results, err := idx.Search(context.Background(), "backup", 10, "wiki")
	require.NoError(t, err)

	// Then: only chunks from that source match
	require.Len(t, results, 1)
	assert.Equal(t, "c2", results[0].ChunkID)
}

func TestBleveBM25Index_Delete(t *testing.T) {
	// Given: two indexed chunks
	idx, err := NewBleveBM25Index("", DefaultBM25Config())
	require.NoError(t, err)
	defer func() { _ = idx.Close() }()

	docs := []*LexicalDoc{
		{ID: "c1", DocID: "d1", Content: "alpha release notes"},
		{ID: "c2", DocID: "d1", Content: "beta release notes"},
	}
	require.NoError(t, idx.Index(context.Background(), docs))

	// When: deleting one chunk
	require.NoError(t, idx.Delete(context.Background(), []string{"c1"}))

	// Then: it no longer appears in results
	results, err := idx.Search(context.Background(), "alpha", 10, "")
	require.NoError(t, err)
	assert.Empty(t, results)

	assert.Equal(t, 1, idx.Stats().ChunkCount)
}

func TestBleveBM25Index_Search_EmptyQuery(t *testing.T) {
	// Given: an index with content
	idx, err := NewBleveBM25Index("", DefaultBM25Config())
	require.NoError(t, err)
	defer func() { _ = idx.Close() }()

	require.NoError(t, idx.Index(context.Background(),
		[]*LexicalDoc{{ID: "c1", DocID: "d1", Content: "something"}}))

	// When/Then: empty query returns no results, no error
	results, err := idx.Search(context.Background(), "   ", 10, "")
	require.NoError(t, err)
	assert.Empty(t, results)
}
