// Package engine wires the stores, the ingestion pipeline and the
// retrieval engine into one facade. A data directory belongs to a single
// engine at a time, enforced with a file lock.
package engine

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gofrs/flock"

	"github.com/ShankarKakumani/eywa/internal/chunk"
	"github.com/ShankarKakumani/eywa/internal/config"
	"github.com/ShankarKakumani/eywa/internal/embed"
	"github.com/ShankarKakumani/eywa/internal/errors"
	"github.com/ShankarKakumani/eywa/internal/index"
	"github.com/ShankarKakumani/eywa/internal/ingest"
	"github.com/ShankarKakumani/eywa/internal/job"
	"github.com/ShankarKakumani/eywa/internal/rerank"
	"github.com/ShankarKakumani/eywa/internal/search"
	"github.com/ShankarKakumani/eywa/internal/store"
)

// File names inside the data directory.
const (
	lockFileName    = "eywa.lock"
	contentFileName = "content.db"
	vectorFileName  = "vectors.hnsw"
	jobsFileName    = "jobs.db"
)

// Stats summarizes the state of the knowledge base.
type Stats struct {
	Documents    int                `json:"documents"`
	Chunks       int                `json:"chunks"`
	Vectors      int                `json:"vectors"`
	LexicalDocs  int                `json:"lexical_docs"`
	Sources      []*store.SourceStat `json:"sources"`
	ContentBytes int64              `json:"content_bytes,omitempty"`
}

// Engine owns every component of a data directory: content store, the
// two derived indexes, the job queue, the scheduler and the searcher.
type Engine struct {
	cfg    *config.Config
	logger *slog.Logger

	lock       *flock.Flock
	vectorPath string

	content   store.ContentStore
	vectors   store.VectorStore
	lexical   store.BM25Index
	embedder  embed.Embedder
	queue     *job.Queue
	writer    *index.Writer
	scheduler *ingest.Scheduler
	searcher  *search.Engine
	checker   *index.ConsistencyChecker
}

// Open acquires the data directory and brings up all components.
// Abandoned jobs from a previous run are failed during startup.
func Open(cfg *config.Config, logger *slog.Logger) (*Engine, error) {
	if cfg == nil {
		cfg = config.NewConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.New(errors.ErrCodeConfigInvalid, "invalid configuration", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	dataDir := cfg.Storage.DataDir
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, errors.StoreWriteError("failed to create data directory", err).
			WithDetail("path", dataDir)
	}

	lock := flock.New(filepath.Join(dataDir, lockFileName))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, errors.New(errors.ErrCodeDataDirLocked, "failed to acquire data directory lock", err).
			WithDetail("path", lock.Path())
	}
	if !locked {
		return nil, errors.New(errors.ErrCodeDataDirLocked, "data directory is in use by another process", nil).
			WithDetail("path", lock.Path())
	}

	e := &Engine{
		cfg:        cfg,
		logger:     logger,
		lock:       lock,
		vectorPath: filepath.Join(dataDir, vectorFileName),
	}
	if err := e.openComponents(); err != nil {
		_ = lock.Unlock()
		return nil, err
	}

	recovered, err := e.queue.RecoverAbandoned(context.Background())
	if err != nil {
		e.closeComponents()
		_ = lock.Unlock()
		return nil, err
	}
	if recovered > 0 {
		logger.Warn("failed jobs abandoned by a previous run",
			slog.Int("jobs", recovered))
	}

	logger.Info("engine opened",
		slog.String("data_dir", dataDir),
		slog.String("lexical_backend", cfg.Storage.LexicalBackend),
		slog.Int("dimensions", e.embedder.Dimensions()))
	return e, nil
}

// openComponents opens the stores and builds the pipeline and searcher.
// On error, everything opened so far is closed.
func (e *Engine) openComponents() (err error) {
	cfg := e.cfg
	dataDir := cfg.Storage.DataDir

	defer func() {
		if err != nil {
			e.closeComponents()
		}
	}()

	e.embedder, err = embed.NewEmbedder(cfg.Embedding)
	if err != nil {
		return errors.New(errors.ErrCodeConfigInvalid, "failed to create embedder", err)
	}

	dims := e.embedder.Dimensions()
	if stored, dimErr := store.ReadHNSWStoreDimensions(e.vectorPath); dimErr == nil && stored > 0 && stored != dims {
		return errors.New(errors.ErrCodeDimensionMismatch, "vector index dimension does not match embedder", nil).
			WithDetail("index_dimensions", strconv.Itoa(stored)).
			WithDetail("embedder_dimensions", strconv.Itoa(dims))
	}

	e.content, err = store.NewSQLiteContentStore(filepath.Join(dataDir, contentFileName), cfg.Storage.CompressionLevel)
	if err != nil {
		return err
	}

	vectors, err := store.NewHNSWStore(store.DefaultVectorStoreConfig(dims))
	if err != nil {
		return err
	}
	if _, statErr := os.Stat(e.vectorPath); statErr == nil {
		if loadErr := vectors.Load(e.vectorPath); loadErr != nil {
			// A rebuildable index; start empty and let re-ingest repopulate.
			e.logger.Warn("vector index load failed, starting empty",
				slog.String("error", loadErr.Error()))
		}
	}
	e.vectors = vectors

	e.lexical, err = store.NewBM25Index(filepath.Join(dataDir, "lexical"), store.DefaultBM25Config(), cfg.Storage.LexicalBackend)
	if err != nil {
		return err
	}

	e.queue, err = job.NewQueue(filepath.Join(dataDir, jobsFileName))
	if err != nil {
		return err
	}

	e.writer = index.NewWriter(e.content, e.vectors, e.lexical, e.logger)
	e.checker = index.NewConsistencyChecker(e.content, e.lexical, e.vectors)

	e.scheduler, err = ingest.NewScheduler(ingest.Config{
		Workers:        cfg.Ingest.Workers,
		PoolSize:       cfg.Ingest.PoolSize,
		BatchMaxDocs:   cfg.Ingest.BatchMaxDocs,
		BatchMaxChunks: cfg.Ingest.BatchMaxChunks,
		BatchMaxBytes:  int64(cfg.Ingest.BatchMaxBytes),
		ChunkOptions: chunk.Options{
			MinChunkRunes: cfg.Chunking.MinChunkRunes,
			MaxChunkRunes: cfg.Chunking.MaxChunkRunes,
		},
	}, e.queue, e.writer, e.embedder, e.logger)
	if err != nil {
		return err
	}

	var reranker rerank.Reranker
	if strings.EqualFold(cfg.Search.Reranker, "keyword") {
		reranker = rerank.NewKeywordReranker()
	}

	e.searcher, err = search.NewEngine(e.lexical, e.vectors, e.content, e.embedder, reranker, search.Config{
		CandidateLimit: cfg.Search.CandidateLimit,
		RerankLimit:    cfg.Search.RerankLimit,
		TopK:           cfg.Search.TopK,
		VectorWeight:   cfg.Search.VectorWeight,
		LexicalWeight:  cfg.Search.LexicalWeight,
		Timeout:        time.Duration(cfg.Search.TimeoutMS) * time.Millisecond,
	}, e.logger)
	return err
}

// Ingest submits a batch for asynchronous processing and returns the job.
func (e *Engine) Ingest(ctx context.Context, docs []ingest.Document) (*job.Job, error) {
	return e.scheduler.Submit(ctx, docs)
}

// Search runs hybrid retrieval.
func (e *Engine) Search(ctx context.Context, query string, opts search.Options) ([]*search.Result, error) {
	return e.searcher.Search(ctx, query, opts)
}

// Delete removes a document and its chunks from every store.
func (e *Engine) Delete(ctx context.Context, docID string) error {
	if _, err := e.content.GetDocument(ctx, docID); err != nil {
		return err
	}
	return e.writer.Delete(ctx, docID)
}

// DeleteSource removes every document belonging to a source, each through
// the index writer so all three stores stay consistent. Returns the number
// of documents removed.
func (e *Engine) DeleteSource(ctx context.Context, sourceID string) (int, error) {
	docs, err := e.content.ListDocuments(ctx, sourceID, 0)
	if err != nil {
		return 0, err
	}
	if len(docs) == 0 {
		return 0, errors.New(errors.ErrCodeDocNotFound, "source has no documents", nil).
			WithDetail("source_id", sourceID)
	}

	deleted := 0
	for _, doc := range docs {
		if err := e.writer.Delete(ctx, doc.ID); err != nil {
			return deleted, err
		}
		deleted++
	}

	e.logger.Info("source deleted",
		slog.String("source_id", sourceID),
		slog.Int("documents", deleted))
	return deleted, nil
}

// GetDocument returns a stored document.
func (e *Engine) GetDocument(ctx context.Context, docID string) (*store.Document, error) {
	return e.content.GetDocument(ctx, docID)
}

// Job returns one job by ID.
func (e *Engine) Job(ctx context.Context, jobID string) (*job.Job, error) {
	return e.scheduler.Job(ctx, jobID)
}

// Jobs lists jobs newest first.
func (e *Engine) Jobs(ctx context.Context, limit int) ([]*job.Job, error) {
	return e.scheduler.Jobs(ctx, limit)
}

// JobDocuments returns per-document statuses for a job.
func (e *Engine) JobDocuments(ctx context.Context, jobID string) ([]*job.DocumentStatus, error) {
	return e.scheduler.JobDocuments(ctx, jobID)
}

// WaitJob blocks until the job is terminal or the context ends.
func (e *Engine) WaitJob(ctx context.Context, jobID string) (*job.Job, error) {
	return e.scheduler.WaitJob(ctx, jobID)
}

// Stats collects counts across all stores.
func (e *Engine) Stats(ctx context.Context) (*Stats, error) {
	contentStats, err := e.content.Stats(ctx)
	if err != nil {
		return nil, err
	}
	sources, err := e.content.SourceStats(ctx)
	if err != nil {
		return nil, err
	}
	return &Stats{
		Documents:   contentStats.DocumentCount,
		Chunks:      contentStats.ChunkCount,
		Vectors:     e.vectors.Count(),
		LexicalDocs: e.lexical.Stats().ChunkCount,
		Sources:     sources,
	}, nil
}

// CheckConsistency scans the derived indexes against the content store.
func (e *Engine) CheckConsistency(ctx context.Context) (*index.CheckResult, error) {
	return e.checker.Check(ctx)
}

// RepairConsistency removes orphaned derived-index entries.
func (e *Engine) RepairConsistency(ctx context.Context, issues []index.Inconsistency) error {
	return e.checker.Repair(ctx, issues)
}

// Reset drops every store and the job queue, then reopens them empty.
// In-flight jobs are drained first.
func (e *Engine) Reset(ctx context.Context) error {
	e.closeComponents()

	dataDir := e.cfg.Storage.DataDir
	targets := []string{
		filepath.Join(dataDir, contentFileName),
		filepath.Join(dataDir, jobsFileName),
		e.vectorPath,
		store.BM25IndexPath(dataDir, e.cfg.Storage.LexicalBackend),
	}
	for _, path := range targets {
		if err := os.RemoveAll(path); err != nil {
			return errors.StoreWriteError("failed to remove store file", err).
				WithDetail("path", path)
		}
	}

	e.logger.Info("data directory reset", slog.String("data_dir", dataDir))
	return e.openComponents()
}

// Close drains in-flight jobs, persists the vector index, and releases
// the directory lock.
func (e *Engine) Close() error {
	var firstErr error

	// Drain before saving: vectors committed by in-flight jobs must make
	// it into the snapshot, or a restart would surface chunk rows whose
	// vectors are gone.
	if e.scheduler != nil {
		if err := e.scheduler.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		e.scheduler = nil
	}

	if e.vectors != nil {
		if err := e.vectors.Save(e.vectorPath); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	e.closeComponents()

	if e.lock != nil {
		if err := e.lock.Unlock(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	e.logger.Info("engine closed")
	return firstErr
}

// closeComponents shuts down whatever is open, scheduler first so no
// writes race the store closes.
func (e *Engine) closeComponents() {
	if e.scheduler != nil {
		_ = e.scheduler.Close()
		e.scheduler = nil
	}
	if e.searcher != nil {
		e.searcher = nil
	}
	if e.queue != nil {
		_ = e.queue.Close()
		e.queue = nil
	}
	if e.lexical != nil {
		_ = e.lexical.Close()
		e.lexical = nil
	}
	if e.vectors != nil {
		_ = e.vectors.Close()
		e.vectors = nil
	}
	if e.content != nil {
		_ = e.content.Close()
		e.content = nil
	}
	if e.embedder != nil {
		_ = e.embedder.Close()
		e.embedder = nil
	}
}
