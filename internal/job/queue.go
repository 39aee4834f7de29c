// Package job persists ingestion jobs and their per-document progress in
// SQLite. A job tracks a batch of submitted documents; individual document
// failures are recorded against the job without failing it.
package job

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/ShankarKakumani/eywa/internal/errors"
)

// State is a job or document lifecycle state.
type State string

const (
	StatePending    State = "pending"
	StateProcessing State = "processing"
	StateDone       State = "done"
	StateFailed     State = "failed"
)

// Job is one ingestion batch.
// CompletedDocs + FailedDocs never exceeds TotalDocs; both counters are
// updated in the same transaction as the document state they reflect.
type Job struct {
	ID            string
	SourceID      string
	State         State
	TotalDocs     int
	CompletedDocs int
	FailedDocs    int
	// CurrentDoc is the document most recently picked up by a worker;
	// empty once the job is terminal.
	CurrentDoc string
	Error      string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// DocumentRef identifies one document of a batch at enqueue time.
type DocumentRef struct {
	ID    string
	Title string
}

// DocumentStatus is the per-document progress record of a job.
type DocumentStatus struct {
	JobID     string
	DocID     string
	Title     string
	State     State
	Error     string
	UpdatedAt time.Time
}

// Queue is the SQLite-backed job store.
type Queue struct {
	mu     sync.Mutex
	db     *sql.DB
	path   string
	closed bool
}

// NewQueue opens (or creates) the job database at path.
// If path is empty, creates an in-memory queue for testing.
func NewQueue(path string) (*Queue, error) {
	var dsn string
	if path == "" {
		dsn = ":memory:"
	} else {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
		dsn = path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Single writer to prevent lock contention
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	q := &Queue{db: db, path: path}
	if err := q.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return q, nil
}

func (q *Queue) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY
	);

	CREATE TABLE IF NOT EXISTS jobs (
		job_id         TEXT PRIMARY KEY,
		source_id      TEXT NOT NULL DEFAULT '',
		state          TEXT NOT NULL,
		total_docs     INTEGER NOT NULL,
		completed_docs INTEGER NOT NULL DEFAULT 0,
		failed_docs    INTEGER NOT NULL DEFAULT 0,
		current_doc    TEXT NOT NULL DEFAULT '',
		error          TEXT NOT NULL DEFAULT '',
		created_at     INTEGER NOT NULL,
		updated_at     INTEGER NOT NULL,
		CHECK (completed_docs + failed_docs <= total_docs)
	);
	CREATE INDEX IF NOT EXISTS idx_jobs_state ON jobs(state);
	CREATE INDEX IF NOT EXISTS idx_jobs_created ON jobs(created_at);

	CREATE TABLE IF NOT EXISTS job_documents (
		job_id     TEXT NOT NULL,
		doc_id     TEXT NOT NULL,
		title      TEXT NOT NULL DEFAULT '',
		state      TEXT NOT NULL,
		error      TEXT NOT NULL DEFAULT '',
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (job_id, doc_id)
	);
	CREATE INDEX IF NOT EXISTS idx_job_documents_job ON job_documents(job_id);

	INSERT OR IGNORE INTO schema_version (version) VALUES (1);
	`

	_, err := q.db.Exec(schema)
	return err
}

// Enqueue records a new pending job for the given documents.
func (q *Queue) Enqueue(ctx context.Context, sourceID string, docs []DocumentRef) (*Job, error) {
	if len(docs) == 0 {
		return nil, errors.ValidationError("job has no documents", nil)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil, fmt.Errorf("job queue is closed")
	}

	now := time.Now().UTC()
	job := &Job{
		ID:        uuid.NewString(),
		SourceID:  sourceID,
		State:     StatePending,
		TotalDocs: len(docs),
		CreatedAt: now,
		UpdatedAt: now,
	}

	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO jobs (job_id, source_id, state, total_docs, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		job.ID, job.SourceID, job.State, job.TotalDocs, now.UnixMilli(), now.UnixMilli()); err != nil {
		return nil, fmt.Errorf("failed to insert job: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO job_documents (job_id, doc_id, title, state, updated_at)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare document statement: %w", err)
	}
	defer stmt.Close()

	for _, doc := range docs {
		if _, err := stmt.ExecContext(ctx, job.ID, doc.ID, doc.Title, StatePending, now.UnixMilli()); err != nil {
			return nil, fmt.Errorf("failed to insert job document %s: %w", doc.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit job: %w", err)
	}
	return job, nil
}

// MarkJobProcessing transitions a pending job to processing.
func (q *Queue) MarkJobProcessing(ctx context.Context, jobID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return fmt.Errorf("job queue is closed")
	}

	res, err := q.db.ExecContext(ctx, `
		UPDATE jobs SET state = ?, updated_at = ?
		WHERE job_id = ? AND state = ?`,
		StateProcessing, time.Now().UTC().UnixMilli(), jobID, StatePending)
	if err != nil {
		return fmt.Errorf("failed to mark job processing: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return errors.New(errors.ErrCodeJobNotFound, "job not pending", nil).
			WithDetail("job_id", jobID)
	}
	return nil
}

// MarkDocumentProcessing transitions a pending document to processing.
// Already-terminal documents are left untouched.
func (q *Queue) MarkDocumentProcessing(ctx context.Context, jobID, docID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return fmt.Errorf("job queue is closed")
	}

	now := time.Now().UTC().UnixMilli()
	res, err := q.db.ExecContext(ctx, `
		UPDATE job_documents SET state = ?, updated_at = ?
		WHERE job_id = ? AND doc_id = ? AND state = ?`,
		StateProcessing, now, jobID, docID, StatePending)
	if err != nil {
		return fmt.Errorf("failed to mark document processing: %w", err)
	}

	if n, _ := res.RowsAffected(); n > 0 {
		if _, err := q.db.ExecContext(ctx, `
			UPDATE jobs SET current_doc = ?, updated_at = ? WHERE job_id = ?`,
			docID, now, jobID); err != nil {
			return fmt.Errorf("failed to record current document: %w", err)
		}
	}
	return nil
}

// MarkDocumentDone records a document as completed and increments the job's
// completed counter in the same transaction. Marking an already-terminal
// document is a no-op, keeping the counters exact under retries.
func (q *Queue) MarkDocumentDone(ctx context.Context, jobID, docID string) error {
	return q.markDocumentTerminal(ctx, jobID, docID, StateDone, "")
}

// MarkDocumentFailed records a document as failed with a reason and
// increments the job's failed counter in the same transaction.
func (q *Queue) MarkDocumentFailed(ctx context.Context, jobID, docID, reason string) error {
	return q.markDocumentTerminal(ctx, jobID, docID, StateFailed, reason)
}

func (q *Queue) markDocumentTerminal(ctx context.Context, jobID, docID string, state State, reason string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return fmt.Errorf("job queue is closed")
	}

	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC().UnixMilli()

	// Only non-terminal documents transition; RowsAffected guards the
	// counter increment so it happens at most once per document.
	res, err := tx.ExecContext(ctx, `
		UPDATE job_documents SET state = ?, error = ?, updated_at = ?
		WHERE job_id = ? AND doc_id = ? AND state IN (?, ?)`,
		state, reason, now, jobID, docID, StatePending, StateProcessing)
	if err != nil {
		return fmt.Errorf("failed to update document state: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return tx.Commit() // already terminal, or unknown document
	}

	counter := "completed_docs"
	if state == StateFailed {
		counter = "failed_docs"
	}
	query := fmt.Sprintf(`
		UPDATE jobs SET %s = %s + 1, updated_at = ?
		WHERE job_id = ?`, counter, counter)
	if _, err := tx.ExecContext(ctx, query, now, jobID); err != nil {
		return fmt.Errorf("failed to update job counter: %w", err)
	}

	return tx.Commit()
}

// FinishJob transitions a processing job to its terminal state.
// The job fails only when no document succeeded; any completed document
// makes the job done, with per-document failures still recorded.
func (q *Queue) FinishJob(ctx context.Context, jobID string) (*Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil, fmt.Errorf("job queue is closed")
	}

	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	job, err := scanJob(tx.QueryRowContext(ctx, `
		SELECT job_id, source_id, state, total_docs, completed_docs, failed_docs, current_doc, error, created_at, updated_at
		FROM jobs WHERE job_id = ?`, jobID))
	if err == sql.ErrNoRows {
		return nil, errors.New(errors.ErrCodeJobNotFound, "job not found", nil).
			WithDetail("job_id", jobID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load job: %w", err)
	}

	final := StateDone
	errMsg := ""
	if job.CompletedDocs == 0 && job.FailedDocs > 0 {
		final = StateFailed
		errMsg = "all documents failed"
	}

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx, `
		UPDATE jobs SET state = ?, error = ?, current_doc = '', updated_at = ?
		WHERE job_id = ?`,
		final, errMsg, now.UnixMilli(), jobID); err != nil {
		return nil, fmt.Errorf("failed to finish job: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit: %w", err)
	}

	job.State = final
	job.Error = errMsg
	job.CurrentDoc = ""
	job.UpdatedAt = now
	return job, nil
}

// GetJob returns the job with the given ID.
func (q *Queue) GetJob(ctx context.Context, jobID string) (*Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil, fmt.Errorf("job queue is closed")
	}

	job, err := scanJob(q.db.QueryRowContext(ctx, `
		SELECT job_id, source_id, state, total_docs, completed_docs, failed_docs, current_doc, error, created_at, updated_at
		FROM jobs WHERE job_id = ?`, jobID))
	if err == sql.ErrNoRows {
		return nil, errors.New(errors.ErrCodeJobNotFound, "job not found", nil).
			WithDetail("job_id", jobID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return job, nil
}

// ListJobs returns jobs, newest first. limit <= 0 means no limit.
func (q *Queue) ListJobs(ctx context.Context, limit int) ([]*Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil, fmt.Errorf("job queue is closed")
	}

	query := `
		SELECT job_id, source_id, state, total_docs, completed_docs, failed_docs, current_doc, error, created_at, updated_at
		FROM jobs ORDER BY created_at DESC, job_id`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, job)
	}

	return jobs, rows.Err()
}

// GetJobDocuments returns the per-document statuses of a job.
func (q *Queue) GetJobDocuments(ctx context.Context, jobID string) ([]*DocumentStatus, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil, fmt.Errorf("job queue is closed")
	}

	rows, err := q.db.QueryContext(ctx, `
		SELECT job_id, doc_id, title, state, error, updated_at
		FROM job_documents WHERE job_id = ? ORDER BY doc_id`, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to query job documents: %w", err)
	}
	defer rows.Close()

	var statuses []*DocumentStatus
	for rows.Next() {
		var st DocumentStatus
		var updatedAt int64
		if err := rows.Scan(&st.JobID, &st.DocID, &st.Title, &st.State, &st.Error, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan job document: %w", err)
		}
		st.UpdatedAt = time.UnixMilli(updatedAt).UTC()
		statuses = append(statuses, &st)
	}

	return statuses, rows.Err()
}

// RecoverAbandoned fails jobs left in pending or processing by a previous
// process, along with their unfinished documents. Called once at startup,
// before the scheduler accepts new work. Returns the number of jobs failed.
func (q *Queue) RecoverAbandoned(ctx context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return 0, fmt.Errorf("job queue is closed")
	}

	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC().UnixMilli()

	if _, err := tx.ExecContext(ctx, `
		UPDATE job_documents SET state = ?, error = ?, updated_at = ?
		WHERE state IN (?, ?)
		AND job_id IN (SELECT job_id FROM jobs WHERE state IN (?, ?))`,
		StateFailed, "interrupted by shutdown", now,
		StatePending, StateProcessing,
		StatePending, StateProcessing); err != nil {
		return 0, fmt.Errorf("failed to fail abandoned documents: %w", err)
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE jobs SET state = ?, error = ?, current_doc = '',
			failed_docs = total_docs - completed_docs, updated_at = ?
		WHERE state IN (?, ?)`,
		StateFailed, "interrupted by shutdown", now,
		StatePending, StateProcessing)
	if err != nil {
		return 0, fmt.Errorf("failed to fail abandoned jobs: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read rows affected: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit recovery: %w", err)
	}
	return int(n), nil
}

// PurgeFinished deletes terminal jobs older than the given age.
// Returns the number of jobs removed.
func (q *Queue) PurgeFinished(ctx context.Context, olderThan time.Duration) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return 0, fmt.Errorf("job queue is closed")
	}

	cutoff := time.Now().UTC().Add(-olderThan).UnixMilli()

	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM job_documents WHERE job_id IN (
			SELECT job_id FROM jobs WHERE state IN (?, ?) AND updated_at < ?
		)`, StateDone, StateFailed, cutoff); err != nil {
		return 0, fmt.Errorf("failed to purge job documents: %w", err)
	}

	res, err := tx.ExecContext(ctx, `
		DELETE FROM jobs WHERE state IN (?, ?) AND updated_at < ?`,
		StateDone, StateFailed, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge jobs: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read rows affected: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit purge: %w", err)
	}
	return int(n), nil
}

// Close checkpoints and closes the database.
func (q *Queue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}

	q.closed = true
	if q.db != nil {
		_, _ = q.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
		return q.db.Close()
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*Job, error) {
	var job Job
	var createdAt, updatedAt int64
	if err := row.Scan(&job.ID, &job.SourceID, &job.State, &job.TotalDocs,
		&job.CompletedDocs, &job.FailedDocs, &job.CurrentDoc, &job.Error,
		&createdAt, &updatedAt); err != nil {
		return nil, err
	}
	job.CreatedAt = time.UnixMilli(createdAt).UTC()
	job.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	return &job, nil
}
