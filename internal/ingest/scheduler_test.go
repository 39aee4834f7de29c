package ingest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ShankarKakumani/eywa/internal/chunk"
	"github.com/ShankarKakumani/eywa/internal/embed"
	"github.com/ShankarKakumani/eywa/internal/errors"
	"github.com/ShankarKakumani/eywa/internal/index"
	"github.com/ShankarKakumani/eywa/internal/job"
	"github.com/ShankarKakumani/eywa/internal/store"
)

type testPipeline struct {
	queue   *job.Queue
	content store.ContentStore
	vectors store.VectorStore
	lexical store.BM25Index
	sched   *Scheduler
}

func newTestPipeline(t *testing.T, cfg Config) *testPipeline {
	t.Helper()

	queue, err := job.NewQueue("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = queue.Close() })

	content, err := store.NewSQLiteContentStore("", 2)
	require.NoError(t, err)
	t.Cleanup(func() { _ = content.Close() })

	vectors, err := store.NewHNSWStore(store.DefaultVectorStoreConfig(embed.StaticDimensions))
	require.NoError(t, err)
	t.Cleanup(func() { _ = vectors.Close() })

	lexical, err := store.NewSQLiteBM25Index("", store.DefaultBM25Config())
	require.NoError(t, err)
	t.Cleanup(func() { _ = lexical.Close() })

	writer := index.NewWriter(content, vectors, lexical, nil)

	sched, err := NewScheduler(cfg, queue, writer, embed.NewStaticEmbedder(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sched.Close() })

	return &testPipeline{
		queue:   queue,
		content: content,
		vectors: vectors,
		lexical: lexical,
		sched:   sched,
	}
}

func TestScheduler_SubmitReturnsPendingJob(t *testing.T) {
	// Given: a fresh pipeline
	p := newTestPipeline(t, Config{})
	ctx := context.Background()

	// When: submitting a batch
	jb, err := p.sched.Submit(ctx, []Document{
		{ID: "d1", SourceID: "notes", Content: "concurrency patterns in distributed systems"},
	})

	// Then: the job comes back immediately with its document count
	require.NoError(t, err)
	assert.NotEmpty(t, jb.ID)
	assert.Equal(t, 1, jb.TotalDocs)
	assert.Equal(t, "notes", jb.SourceID)
}

func TestScheduler_BatchWithOneEmptyDocument(t *testing.T) {
	// Given: a 5-document batch where the third document is empty
	p := newTestPipeline(t, Config{})
	ctx := context.Background()

	docs := []Document{
		{ID: "d1", SourceID: "notes", Title: "One", Content: "gradient descent converges on convex loss surfaces"},
		{ID: "d2", SourceID: "notes", Title: "Two", Content: "attention weights sum to one after softmax"},
		{ID: "d3", SourceID: "notes", Title: "Three", Content: "   "},
		{ID: "d4", SourceID: "notes", Title: "Four", Content: "transformer layers stack residual connections"},
		{ID: "d5", SourceID: "notes", Title: "Five", Content: "tokenizers split text into subword units"},
	}

	// When: the job runs to completion
	jb, err := p.sched.Submit(ctx, docs)
	require.NoError(t, err)
	p.sched.Wait()

	// Then: the job is done with exactly one failed document
	final, err := p.sched.Job(ctx, jb.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StateDone, final.State)
	assert.Equal(t, 4, final.CompletedDocs)
	assert.Equal(t, 1, final.FailedDocs)
	assert.Equal(t, "notes", final.SourceID)
	assert.Empty(t, final.CurrentDoc)

	// And: the failed document records the empty-document code
	statuses, err := p.sched.JobDocuments(ctx, jb.ID)
	require.NoError(t, err)
	byID := make(map[string]*job.DocumentStatus, len(statuses))
	for _, st := range statuses {
		byID[st.DocID] = st
	}
	require.Contains(t, byID, "d3")
	assert.Equal(t, "Three", byID["d3"].Title)
	assert.Equal(t, job.StateFailed, byID["d3"].State)
	assert.Contains(t, byID["d3"].Error, string(errors.ErrCodeEmptyDocument))
	assert.Equal(t, job.StateDone, byID["d1"].State)
	assert.Equal(t, job.StateDone, byID["d5"].State)

	// And: the committed documents are readable from the content store
	got, err := p.content.GetDocument(ctx, "d4")
	require.NoError(t, err)
	assert.Equal(t, "Four", got.Title)
	assert.NotEmpty(t, got.ContentHash)

	chunkIDs, err := p.content.ChunkIDsByDoc(ctx, "d1")
	require.NoError(t, err)
	assert.NotEmpty(t, chunkIDs)

	// And: the empty document never reached the stores
	_, err = p.content.GetDocument(ctx, "d3")
	assert.Equal(t, errors.ErrCodeDocNotFound, errors.GetCode(err))
}

func TestScheduler_AllDocumentsFailed(t *testing.T) {
	// Given: a batch of only empty documents
	p := newTestPipeline(t, Config{})
	ctx := context.Background()

	jb, err := p.sched.Submit(ctx, []Document{
		{ID: "d1", Content: ""},
		{ID: "d2", Content: "\n\t"},
	})
	require.NoError(t, err)

	// When: the job runs
	p.sched.Wait()

	// Then: it fails as a whole
	final, err := p.sched.Job(ctx, jb.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StateFailed, final.State)
	assert.Equal(t, 0, final.CompletedDocs)
	assert.Equal(t, 2, final.FailedDocs)
}

func TestScheduler_CommittedChunksAreSearchable(t *testing.T) {
	// Given: an ingested document
	p := newTestPipeline(t, Config{})
	ctx := context.Background()

	_, err := p.sched.Submit(ctx, []Document{
		{ID: "d1", SourceID: "wiki", Content: "the raft protocol elects a single leader per term"},
	})
	require.NoError(t, err)
	p.sched.Wait()

	// Then: lexical search finds its chunk
	hits, err := p.lexical.Search(ctx, "raft leader", 10, "")
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, chunk.ChunkID("d1", 0), hits[0].ChunkID)

	// And: the vector store holds at least one vector for it
	assert.Greater(t, p.vectors.Count(), 0)
}

func TestScheduler_SubmitValidation(t *testing.T) {
	p := newTestPipeline(t, Config{})
	ctx := context.Background()

	tests := []struct {
		name string
		docs []Document
	}{
		{"empty batch", nil},
		{"empty document ID", []Document{{ID: "  ", Content: "x"}}},
		{"duplicate document ID", []Document{
			{ID: "d1", Content: "x"},
			{ID: "d1", Content: "y"},
		}},
		{"unsupported format", []Document{{ID: "d1", Format: "pdf", Content: "x"}}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := p.sched.Submit(ctx, tc.docs)
			require.Error(t, err)
			assert.Equal(t, errors.ErrCodeInvalidInput, errors.GetCode(err))
		})
	}
}

func TestScheduler_WaitJobReturnsTerminalState(t *testing.T) {
	// Given: a submitted job
	p := newTestPipeline(t, Config{})
	ctx := context.Background()

	jb, err := p.sched.Submit(ctx, []Document{
		{ID: "d1", Content: "polling until the job reaches a terminal state"},
	})
	require.NoError(t, err)

	// When: waiting on it
	final, err := p.sched.WaitJob(ctx, jb.ID)

	// Then: the returned job is terminal
	require.NoError(t, err)
	assert.Equal(t, job.StateDone, final.State)
	assert.Equal(t, 1, final.CompletedDocs)
}

func TestScheduler_SubmitAfterClose(t *testing.T) {
	// Given: a closed scheduler
	p := newTestPipeline(t, Config{})
	require.NoError(t, p.sched.Close())

	// When: submitting
	_, err := p.sched.Submit(context.Background(), []Document{{ID: "d1", Content: "x"}})

	// Then: the submission is rejected
	require.Error(t, err)
}

func TestScheduler_SmallBatchThresholdStillCommits(t *testing.T) {
	// Given: batch thresholds forcing a mid-job flush
	p := newTestPipeline(t, Config{BatchMaxDocs: 2})
	ctx := context.Background()

	docs := []Document{
		{ID: "d1", Content: "first note about indexing"},
		{ID: "d2", Content: "second note about retrieval"},
		{ID: "d3", Content: "third note about ranking"},
	}

	// When: the job runs
	jb, err := p.sched.Submit(ctx, docs)
	require.NoError(t, err)
	p.sched.Wait()

	// Then: every document commits regardless of which flush carried it
	final, err := p.sched.Job(ctx, jb.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StateDone, final.State)
	assert.Equal(t, 3, final.CompletedDocs)

	for _, id := range []string{"d1", "d2", "d3"} {
		_, err := p.content.GetDocument(ctx, id)
		assert.NoError(t, err, id)
	}
}
