// Package integration tests the full flow from ingestion to retrieval
// to verify the components work together correctly.
package integration

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ShankarKakumani/eywa/internal/config"
	"github.com/ShankarKakumani/eywa/internal/engine"
	"github.com/ShankarKakumani/eywa/internal/ingest"
	"github.com/ShankarKakumani/eywa/internal/job"
	"github.com/ShankarKakumani/eywa/internal/search"
)

func openTestEngine(t *testing.T, backend string) *engine.Engine {
	t.Helper()
	cfg := config.NewConfig()
	cfg.Storage.DataDir = t.TempDir()
	cfg.Storage.LexicalBackend = backend
	cfg.Search.Reranker = "keyword"

	e, err := engine.Open(cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func corpusDocs() []ingest.Document {
	return []ingest.Document{
		{ID: "raft", SourceID: "wiki", Title: "Raft", Format: "markdown",
			Content: "# Raft\n\n## Leader election\n\nthe raft protocol elects a single leader per term using randomized timeouts\n\n## Log replication\n\nthe leader appends entries and replicates them to followers"},
		{ID: "gc", SourceID: "wiki", Title: "GC",
			Content: "garbage collection pauses scale with the live heap, generational collectors shorten them"},
		{ID: "bloom", SourceID: "notes", Title: "Bloom",
			Content: "bloom filters trade a small false positive rate for constant memory"},
	}
}

func TestIntegration_IngestThenSearch(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	for _, backend := range []string{"fts5", "bleve"} {
		t.Run(backend, func(t *testing.T) {
			// Given: an engine with an ingested corpus
			e := openTestEngine(t, backend)
			ctx := context.Background()

			jb, err := e.Ingest(ctx, corpusDocs())
			require.NoError(t, err)
			final, err := e.WaitJob(ctx, jb.ID)
			require.NoError(t, err)
			require.Equal(t, job.StateDone, final.State)
			require.Equal(t, 3, final.CompletedDocs)

			// When: querying each topic
			for query, wantDoc := range map[string]string{
				"raft leader election": "raft",
				"garbage collection":   "gc",
				"bloom filter memory":  "bloom",
			} {
				results, err := e.Search(ctx, query, search.Options{})
				require.NoError(t, err, query)
				require.NotEmpty(t, results, query)

				// Then: the right document ranks first
				assert.Equal(t, wantDoc, results[0].DocID, query)
			}
		})
	}
}

func TestIntegration_ReingestReplacesChunks(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	// Given: a document ingested twice with different content
	e := openTestEngine(t, "fts5")
	ctx := context.Background()

	first := []ingest.Document{{ID: "d1", SourceID: "wiki", Content: "the original text mentions zookeeper coordination"}}
	jb, err := e.Ingest(ctx, first)
	require.NoError(t, err)
	_, err = e.WaitJob(ctx, jb.ID)
	require.NoError(t, err)

	second := []ingest.Document{{ID: "d1", SourceID: "wiki", Content: "the replacement text mentions etcd leases instead"}}
	jb, err = e.Ingest(ctx, second)
	require.NoError(t, err)
	_, err = e.WaitJob(ctx, jb.ID)
	require.NoError(t, err)

	// When: searching for the old and new terms
	oldResults, err := e.Search(ctx, "zookeeper coordination", search.Options{})
	require.NoError(t, err)
	newResults, err := e.Search(ctx, "etcd leases", search.Options{})
	require.NoError(t, err)

	// Then: the old chunk text is gone from every result
	for _, r := range oldResults {
		assert.NotContains(t, r.Text, "zookeeper")
	}
	require.NotEmpty(t, newResults)
	assert.Equal(t, "d1", newResults[0].DocID)
	assert.Contains(t, newResults[0].Text, "etcd")

	stats, err := e.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Documents)
	assert.Equal(t, stats.Chunks, stats.Vectors)

	check, err := e.CheckConsistency(ctx)
	require.NoError(t, err)
	assert.Empty(t, check.Inconsistencies)
}

func TestIntegration_ConcurrentJobs(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	// Given: several jobs submitted back to back
	e := openTestEngine(t, "fts5")
	ctx := context.Background()

	jobIDs := make([]string, 0, 4)
	for i := 0; i < 4; i++ {
		docs := []ingest.Document{
			{ID: fmt.Sprintf("batch%d-a", i), SourceID: "load", Content: fmt.Sprintf("document a of batch %d about consistent hashing", i)},
			{ID: fmt.Sprintf("batch%d-b", i), SourceID: "load", Content: fmt.Sprintf("document b of batch %d about vector clocks", i)},
		}
		jb, err := e.Ingest(ctx, docs)
		require.NoError(t, err)
		jobIDs = append(jobIDs, jb.ID)
	}

	// When: waiting for all of them
	for _, id := range jobIDs {
		final, err := e.WaitJob(ctx, id)
		require.NoError(t, err)

		// Then: every job completes fully
		assert.Equal(t, job.StateDone, final.State)
		assert.Equal(t, 2, final.CompletedDocs)
	}

	stats, err := e.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 8, stats.Documents)
}
