package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"golang.org/x/sync/errgroup"

	"github.com/ShankarKakumani/eywa/internal/chunk"
	"github.com/ShankarKakumani/eywa/internal/embed"
	"github.com/ShankarKakumani/eywa/internal/errors"
	"github.com/ShankarKakumani/eywa/internal/index"
	"github.com/ShankarKakumani/eywa/internal/job"
	"github.com/ShankarKakumani/eywa/internal/store"
)

// DefaultWorkers is the per-job document concurrency.
const DefaultWorkers = 4

// DefaultPoolSize is the number of jobs processed concurrently.
const DefaultPoolSize = 2

// Document is a document submitted for ingestion.
type Document struct {
	ID       string
	SourceID string
	Title    string
	Format   string // markdown, text, or empty for detection
	Content  string
}

// Config configures the scheduler.
type Config struct {
	// Workers is the number of documents processed concurrently per job.
	Workers int

	// PoolSize is the number of jobs processed concurrently.
	PoolSize int

	// Batch thresholds; see Accumulator.
	BatchMaxDocs   int
	BatchMaxChunks int
	BatchMaxBytes  int64

	// ChunkOptions configures the chunkers.
	ChunkOptions chunk.Options
}

// Scheduler runs ingestion jobs asynchronously. Submit returns as soon as
// the job is persisted; a worker pool drives each job through the
// per-document pipeline (chunk, embed, accumulate) and commits batches
// through the index writer. One document failing never fails the job.
type Scheduler struct {
	cfg      Config
	queue    *job.Queue
	writer   *index.Writer
	embedder embed.Embedder
	pool     *ants.Pool
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// NewScheduler creates a scheduler over the queue, writer and embedder.
func NewScheduler(cfg Config, queue *job.Queue, writer *index.Writer, embedder embed.Embedder, logger *slog.Logger) (*Scheduler, error) {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = DefaultPoolSize
	}
	if logger == nil {
		logger = slog.Default()
	}

	pool, err := ants.NewPool(cfg.PoolSize)
	if err != nil {
		return nil, errors.InternalError("failed to create worker pool", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cfg:      cfg,
		queue:    queue,
		writer:   writer,
		embedder: embedder,
		pool:     pool,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// Submit validates the batch, persists a pending job, and hands it to the
// worker pool. It returns the job without waiting for processing.
func (s *Scheduler) Submit(ctx context.Context, docs []Document) (*job.Job, error) {
	if len(docs) == 0 {
		return nil, errors.ValidationError("no documents submitted", nil)
	}

	seen := make(map[string]struct{}, len(docs))
	refs := make([]job.DocumentRef, len(docs))
	sourceID := docs[0].SourceID
	for i, doc := range docs {
		id := strings.TrimSpace(doc.ID)
		if id == "" {
			return nil, errors.ValidationError("document has empty ID", nil)
		}
		if _, dup := seen[id]; dup {
			return nil, errors.ValidationError("duplicate document ID in batch", nil).
				WithDetail("doc_id", id)
		}
		switch doc.Format {
		case "", string(chunk.FormatMarkdown), string(chunk.FormatText):
		default:
			return nil, errors.ValidationError("unsupported document format", nil).
				WithDetail("doc_id", id).
				WithDetail("format", doc.Format)
		}
		// The job snapshot records one source; a mixed batch records none.
		if doc.SourceID != sourceID {
			sourceID = ""
		}
		seen[id] = struct{}{}
		refs[i] = job.DocumentRef{ID: id, Title: doc.Title}
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, errors.InternalError("scheduler is closed", nil)
	}

	jb, err := s.queue.Enqueue(ctx, sourceID, refs)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}

	s.wg.Add(1)
	submitted := docs
	if err := s.pool.Submit(func() {
		defer s.wg.Done()
		s.runJob(jb, submitted)
	}); err != nil {
		s.wg.Done()
		s.mu.Unlock()
		// The job row stays pending; startup recovery fails it if the
		// process exits before a resubmit.
		return nil, errors.InternalError("failed to schedule job", err).
			WithDetail("job_id", jb.ID)
	}
	s.mu.Unlock()

	s.logger.Info("job submitted",
		slog.String("job_id", jb.ID),
		slog.Int("docs", len(docs)))

	return jb, nil
}

// runJob drives one job through the pipeline.
func (s *Scheduler) runJob(jb *job.Job, docs []Document) {
	ctx := s.ctx

	if err := s.queue.MarkJobProcessing(ctx, jb.ID); err != nil {
		s.logger.Warn("failed to mark job processing",
			slog.String("job_id", jb.ID),
			slog.String("error", err.Error()))
		return
	}

	acc := NewAccumulator(s.cfg.BatchMaxDocs, s.cfg.BatchMaxChunks, s.cfg.BatchMaxBytes)

	var g errgroup.Group
	g.SetLimit(s.cfg.Workers)

	for _, doc := range docs {
		doc := doc
		g.Go(func() error {
			if err := s.queue.MarkDocumentProcessing(ctx, jb.ID, doc.ID); err != nil {
				s.logger.Warn("failed to mark document processing",
					slog.String("doc_id", doc.ID),
					slog.String("error", err.Error()))
			}

			wr, err := s.processDocument(ctx, doc)
			if err != nil {
				s.failDocument(ctx, jb.ID, doc.ID, err)
				return nil // partial failure never fails the job
			}

			if batch := acc.Add(wr); batch != nil {
				s.commitBatch(ctx, jb.ID, batch)
			}
			return nil
		})
	}

	_ = g.Wait()

	// Remainder below the thresholds
	if batch := acc.Drain(); batch != nil {
		s.commitBatch(ctx, jb.ID, batch)
	}

	finished, err := s.queue.FinishJob(ctx, jb.ID)
	if err != nil {
		s.logger.Warn("failed to finish job",
			slog.String("job_id", jb.ID),
			slog.String("error", err.Error()))
		return
	}

	s.logger.Info("job finished",
		slog.String("job_id", finished.ID),
		slog.String("state", string(finished.State)),
		slog.Int("completed", finished.CompletedDocs),
		slog.Int("failed", finished.FailedDocs))
}

// processDocument runs the per-document pipeline: chunk, embed, assemble.
func (s *Scheduler) processDocument(ctx context.Context, doc Document) (*index.DocumentWrite, error) {
	cdoc := &chunk.Document{
		ID:      doc.ID,
		Title:   doc.Title,
		Format:  chunk.Format(doc.Format),
		Content: doc.Content,
	}

	format := chunk.DetectFormat(cdoc)
	cdoc.Format = format

	chunker := chunk.ForDocument(cdoc, s.cfg.ChunkOptions)
	chunks, err := chunker.Chunk(ctx, cdoc)
	if err != nil {
		return nil, err
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.EmbeddingText()
	}

	vectors, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, err
	}

	hash := sha256.Sum256([]byte(doc.Content))
	rows := make([]*store.ChunkRow, len(chunks))
	for i, c := range chunks {
		rows[i] = &store.ChunkRow{
			ID:          c.ID,
			DocID:       c.DocID,
			SourceID:    doc.SourceID,
			Ordinal:     c.Ordinal,
			Text:        c.Text,
			HeaderTrail: c.HeaderTrail,
			StartOffset: c.StartOffset,
			EndOffset:   c.EndOffset,
			Truncated:   c.Truncated,
		}
	}

	return &index.DocumentWrite{
		Document: &store.Document{
			ID:          doc.ID,
			SourceID:    doc.SourceID,
			Title:       doc.Title,
			Format:      string(format),
			Content:     doc.Content,
			ContentHash: hex.EncodeToString(hash[:]),
		},
		Chunks:  rows,
		Vectors: vectors,
	}, nil
}

// commitBatch writes a batch document-by-document and records each
// document's terminal state. A document counts as completed only after
// its chunk rows are committed.
func (s *Scheduler) commitBatch(ctx context.Context, jobID string, batch []*index.DocumentWrite) {
	for _, wr := range batch {
		if err := s.writer.CommitOne(ctx, wr); err != nil {
			s.failDocument(ctx, jobID, wr.Document.ID, err)
			continue
		}
		if err := s.queue.MarkDocumentDone(ctx, jobID, wr.Document.ID); err != nil {
			s.logger.Warn("failed to mark document done",
				slog.String("doc_id", wr.Document.ID),
				slog.String("error", err.Error()))
		}
	}
}

func (s *Scheduler) failDocument(ctx context.Context, jobID, docID string, cause error) {
	s.logger.Warn("document failed",
		slog.String("job_id", jobID),
		slog.String("doc_id", docID),
		slog.String("error", cause.Error()))

	if err := s.queue.MarkDocumentFailed(ctx, jobID, docID, cause.Error()); err != nil {
		s.logger.Warn("failed to mark document failed",
			slog.String("doc_id", docID),
			slog.String("error", err.Error()))
	}
}

// Job returns a job by ID.
func (s *Scheduler) Job(ctx context.Context, jobID string) (*job.Job, error) {
	return s.queue.GetJob(ctx, jobID)
}

// Jobs returns jobs newest first.
func (s *Scheduler) Jobs(ctx context.Context, limit int) ([]*job.Job, error) {
	return s.queue.ListJobs(ctx, limit)
}

// JobDocuments returns per-document statuses for a job.
func (s *Scheduler) JobDocuments(ctx context.Context, jobID string) ([]*job.DocumentStatus, error) {
	return s.queue.GetJobDocuments(ctx, jobID)
}

// Wait blocks until all submitted jobs have finished.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// WaitJob polls until the job reaches a terminal state or the context
// ends, returning the final job record.
func (s *Scheduler) WaitJob(ctx context.Context, jobID string) (*job.Job, error) {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		jb, err := s.queue.GetJob(ctx, jobID)
		if err != nil {
			return nil, err
		}
		if jb.State == job.StateDone || jb.State == job.StateFailed {
			return jb, nil
		}

		select {
		case <-ctx.Done():
			return jb, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Close drains in-flight jobs and releases the pool.
// Further submissions are rejected.
func (s *Scheduler) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.wg.Wait()
	s.pool.Release()
	s.cancel()
	return nil
}
