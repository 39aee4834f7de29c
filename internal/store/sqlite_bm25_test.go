package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteBM25Index_IndexAndSearch_Basic(t *testing.T) {
	// Given: empty index
	idx, err := NewSQLiteBM25Index("", DefaultBM25Config())
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

	// Then: search finds matching chunks
	results, err := idx.Search(context.Background(), "database", 10, "")
	require.NoError(t, err)
	assert.Len(t, results, 2)

	// And: results are scored by BM25
	assert.Greater(t, results[0].Score, 0.0)
}

func TestSQLiteBM25Index_Search_FindsCamelCase(t *testing.T) {
	// Given: index with camelCase identifiers in prose
	idx, err := NewSQLiteBM25Index("", DefaultBM25Config())
	require.NoError(t, err)
	defer func() { _ = idx.Close() }()

	docs := []*LexicalDoc{{ID: "c1", DocID: "d1", Content: "call getUserById before rendering"}}
	err = idx.Index(context.Background(), docs)
	require.NoError(t, err)

	// When: searching for a partial term
	results, err := idx.Search(context.Background(), "user", 10, "")
	require.NoError(t, err)

	// Then: chunk is found
	require.Len(t, results, 1)
	assert.Equal(t, "c1", results[0].ChunkID)

	// And: searching for the full identifier also works
	results, err = idx.Search(context.Background(), "getUserById", 10, "")
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestSQLiteBM25Index_Search_FindsSnakeCase(t *testing.T) {
	// Given: index with snake_case content
	idx, err := NewSQLiteBM25Index("", DefaultBM25Config())
	require.NoError(t, err)
	defer func() { _ = idx.Close() }()

	docs := []*LexicalDoc{{ID: "c1", DocID: "d1", Content: "set the max_batch_size option"}}
	err = idx.Index(context.Background(), docs)
	require.NoError(t, err)

	// When: searching for a component of the identifier
	results, err := idx.Search(context.Background(), "batch", 10, "")
	require.NoError(t, err)

	// Then: chunk is found
	require.Len(t, results, 1)
	assert.Equal(t, "c1", results[0].ChunkID)
}

func TestSQLiteBM25Index_Search_SourceFilter(t *testing.T) {
	// Given: chunks from two sources
	idx, err := NewSQLiteBM25Index("", DefaultBM25Config())
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

	// And: no filter returns both
	results, err = idx.Search(context.Background(), "backup", 10, "")
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestSQLiteBM25Index_Index_ReplacesExisting(t *testing.T) {
	// Given: an indexed chunk
	idx, err := NewSQLiteBM25Index("", DefaultBM25Config())
	require.NoError(t, err)
	defer func() { _ = idx.Close() }()

	require.NoError(t, idx.Index(context.Background(),
		[]*LexicalDoc{{ID: "c1", DocID: "d1", Content: "original wording"}}))

	// When: re-indexing the same ID with new content
	require.NoError(t, idx.Index(context.Background(),
		[]*LexicalDoc{{ID: "c1", DocID: "d1", Content: "replacement wording"}}))

	// Then: old content no longer matches
	results, err := idx.Search(context.Background(), "original", 10, "")
	require.NoError(t, err)
	assert.Empty(t, results)

	// And: new content matches, with no duplicate entries
	results, err = idx.Search(context.Background(), "replacement", 10, "")
	require.NoError(t, err)
	assert.Len(t, results, 1)

	ids, err := idx.AllIDs()
	require.NoError(t, err)
	assert.Equal(t, []string{"c1"}, ids)
}

func TestSQLiteBM25Index_Delete(t *testing.T) {
	// Given: two indexed chunks
	idx, err := NewSQLiteBM25Index("", DefaultBM25Config())
	require.NoError(t, err)
	defer func() { _ = idx.Close() }()

	docs := []*LexicalDoc{
		{ID: "c1", DocID: "d1", Content: "alpha release notes"},
		{ID: "c2", DocID: "d1", Content: "beta release notes"},
	}
	require.NoError(t, idx.Index(context.Background(), docs))

	// When: deleting one chunk
	require.NoError(t, idx.Delete(context.Background(), []string{"c1"}))

	// Then: it no longer appears in results or IDs
	results, err := idx.Search(context.Background(), "alpha", 10, "")
	require.NoError(t, err)
	assert.Empty(t, results)

	ids, err := idx.AllIDs()
	require.NoError(t, err)
	assert.Equal(t, []string{"c2"}, ids)
}

func TestSQLiteBM25Index_Search_EmptyQuery(t *testing.T) {
	// Given: an index with content
	idx, err := NewSQLiteBM25Index("", DefaultBM25Config())
	require.NoError(t, err)
	defer func() { _ = idx.Close() }()

	require.NoError(t, idx.Index(context.Background(),
		[]*LexicalDoc{{ID: "c1", DocID: "d1", Content: "something"}}))

	// When/Then: empty and whitespace queries return no results, no error
	results, err := idx.Search(context.Background(), "", 10, "")
	require.NoError(t, err)
	assert.Empty(t, results)

	results, err = idx.Search(context.Background(), "   ", 10, "")
	require.NoError(t, err)
	assert.Empty(t, results)

	// And: a query of only stop words also returns no results
	results, err = idx.Search(context.Background(), "the and of", 10, "")
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSQLiteBM25Index_PersistsAcrossReopen(t *testing.T) {
	// Given: a file-backed index with content
	path := filepath.Join(t.TempDir(), "lexical.db")
	idx, err := NewSQLiteBM25Index(path, DefaultBM25Config())
	require.NoError(t, err)

	require.NoError(t, idx.Index(context.Background(),
		[]*LexicalDoc{{ID: "c1", DocID: "d1", SourceID: "notes", Content: "durable content"}}))
	require.NoError(t, idx.Save(path))
	require.NoError(t, idx.Close())

	// When: reopening the index
	idx2, err := NewSQLiteBM25Index(path, DefaultBM25Config())
	require.NoError(t, err)
	defer func() { _ = idx2.Close() }()

	// Then: content is still searchable
	results, err := idx2.Search(context.Background(), "durable", 10, "")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "c1", results[0].ChunkID)
}

func TestSQLiteBM25Index_Stats(t *testing.T) {
	// Given: an index with three chunks
	idx, err := NewSQLiteBM25Index("", DefaultBM25Config())
	require.NoError(t, err)
	defer func() { _ = idx.Close() }()

	docs := []*LexicalDoc{
		{ID: "c1", DocID: "d1", Content: "one"},
		{ID: "c2", DocID: "d1", Content: "two"},
		{ID: "c3", DocID: "d2", Content: "three"},
	}
	require.NoError(t, idx.Index(context.Background(), docs))

	// Then: stats reflect the chunk count
	assert.Equal(t, 3, idx.Stats().ChunkCount)
}

func TestSQLiteBM25Index_ClosedOperationsFail(t *testing.T) {
	// Given: a closed index
	idx, err := NewSQLiteBM25Index("", DefaultBM25Config())
	require.NoError(t, err)
	require.NoError(t, idx.Close())

	// Then: close is idempotent
	require.NoError(t, idx.Close())

	// And: operations report the closed state
	err = idx.Index(context.Background(), []*LexicalDoc{{ID: "c1", Content: "x"}})
	assert.Error(t, err)

	_, err = idx.Search(context.Background(), "x", 10, "")
	assert.Error(t, err)
}
