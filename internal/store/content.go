package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
	_ "modernc.org/sqlite"

	"github.com/ShankarKakumani/eywa/internal/errors"
)

// SQLiteContentStore implements ContentStore on SQLite.
// Document and chunk text is zstd compressed. Unlike the derived indexes,
// the content store is the source of truth: corruption is reported as a
// fatal error, never auto-cleared.
type SQLiteContentStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	path   string
	enc    *zstd.Encoder
	dec    *zstd.Decoder
	closed bool
}

var _ ContentStore = (*SQLiteContentStore)(nil)

// encoderLevel maps the 1-4 config scale onto zstd encoder levels.
func encoderLevel(level int) zstd.EncoderLevel {
	switch {
	case level <= 1:
		return zstd.SpeedFastest
	case level == 2:
		return zstd.SpeedDefault
	case level == 3:
		return zstd.SpeedBetterCompression
	default:
		return zstd.SpeedBestCompression
	}
}

// NewSQLiteContentStore opens (or creates) the content database at path.
// If path is empty, creates an in-memory store for testing.
// compressionLevel ranges 1 (fastest) to 4 (smallest).
func NewSQLiteContentStore(path string, compressionLevel int) (*SQLiteContentStore, error) {
	var dsn string
	if path == "" {
		dsn = ":memory:"
	} else {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}

		if _, err := os.Stat(path); err == nil {
			if validErr := validateContentIntegrity(path); validErr != nil {
				return nil, errors.New(errors.ErrCodeCorruptIndex,
					"content store corrupted", validErr).
					WithDetail("path", path)
			}
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
		"PRAGMA cache_size = -65536",
		"PRAGMA temp_store = MEMORY",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(encoderLevel(compressionLevel)))
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		_ = db.Close()
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}

	s := &SQLiteContentStore{
		db:   db,
		path: path,
		enc:  enc,
		dec:  dec,
	}

	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return s, nil
}

// validateContentIntegrity runs a read-only integrity check on an existing
// content database.
func validateContentIntegrity(path string) error {
	db, err := sql.Open("sqlite", path+"?mode=ro")
	if err != nil {
		return fmt.Errorf("cannot open for validation: %w", err)
	}
	defer db.Close()

	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check failed: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("database corrupted: %s", result)
	}
	return nil
}

func (s *SQLiteContentStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY
	);

	CREATE TABLE IF NOT EXISTS documents (
		doc_id       TEXT PRIMARY KEY,
		source_id    TEXT NOT NULL,
		title        TEXT NOT NULL,
		format       TEXT NOT NULL,
		content      BLOB NOT NULL,
		content_hash TEXT NOT NULL,
		created_at   INTEGER NOT NULL,
		updated_at   INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_documents_source ON documents(source_id);

	-- A chunk row here marks the chunk as committed: chunks are written
	-- after the vector and lexical indexes, so search can trust any chunk
	-- it can load from this table.
	CREATE TABLE IF NOT EXISTS chunks (
		chunk_id     TEXT PRIMARY KEY,
		doc_id       TEXT NOT NULL,
		source_id    TEXT NOT NULL,
		ordinal      INTEGER NOT NULL,
		text         BLOB NOT NULL,
		header_trail TEXT NOT NULL,
		start_offset INTEGER NOT NULL,
		end_offset   INTEGER NOT NULL,
		truncated    INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_chunks_doc ON chunks(doc_id);

	INSERT OR IGNORE INTO schema_version (version) VALUES (1);
	`

	_, err := s.db.Exec(schema)
	return err
}

// compress returns the zstd-compressed form of text.
func (s *SQLiteContentStore) compress(text string) []byte {
	return s.enc.EncodeAll([]byte(text), nil)
}

// decompress reverses compress.
func (s *SQLiteContentStore) decompress(blob []byte) (string, error) {
	out, err := s.dec.DecodeAll(blob, nil)
	if err != nil {
		return "", fmt.Errorf("decompress: %w", err)
	}
	return string(out), nil
}

// PutDocument inserts or updates a document row.
// CreatedAt is preserved on update; UpdatedAt is always refreshed.
func (s *SQLiteContentStore) PutDocument(ctx context.Context, doc *Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("content store is closed")
	}

	now := time.Now().UTC()
	createdAt := doc.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (doc_id, source_id, title, format, content, content_hash, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(doc_id) DO UPDATE SET
			source_id    = excluded.source_id,
			title        = excluded.title,
			format       = excluded.format,
			content      = excluded.content,
			content_hash = excluded.content_hash,
			updated_at   = excluded.updated_at`,
		doc.ID, doc.SourceID, doc.Title, doc.Format,
		s.compress(doc.Content), doc.ContentHash,
		createdAt.UnixMilli(), now.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to put document %s: %w", doc.ID, err)
	}

	return nil
}

// GetDocument returns the document with the given ID.
func (s *SQLiteContentStore) GetDocument(ctx context.Context, id string) (*Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("content store is closed")
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT doc_id, source_id, title, format, content, content_hash, created_at, updated_at
		FROM documents WHERE doc_id = ?`, id)

	doc, err := s.scanDocument(row)
	if err == sql.ErrNoRows {
		return nil, errors.NotFoundError("document not found", nil).WithDetail("doc_id", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document %s: %w", id, err)
	}
	return doc, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *SQLiteContentStore) scanDocument(row rowScanner) (*Document, error) {
	var doc Document
	var blob []byte
	var createdAt, updatedAt int64
	if err := row.Scan(&doc.ID, &doc.SourceID, &doc.Title, &doc.Format,
		&blob, &doc.ContentHash, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	content, err := s.decompress(blob)
	if err != nil {
		return nil, err
	}
	doc.Content = content
	doc.CreatedAt = time.UnixMilli(createdAt).UTC()
	doc.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	return &doc, nil
}

// DeleteDocument removes a document and its chunk rows.
// Deleting a missing document is not an error.
func (s *SQLiteContentStore) DeleteDocument(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("content store is closed")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE doc_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete chunks for %s: %w", id, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE doc_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete document %s: %w", id, err)
	}

	return tx.Commit()
}

// ListDocuments returns documents, most recently updated first.
// A non-empty sourceID restricts results to that source.
// limit <= 0 means no limit.
func (s *SQLiteContentStore) ListDocuments(ctx context.Context, sourceID string, limit int) ([]*Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("content store is closed")
	}

	query := `
		SELECT doc_id, source_id, title, format, content, content_hash, created_at, updated_at
		FROM documents`
	var args []any
	if sourceID != "" {
		query += ` WHERE source_id = ?`
		args = append(args, sourceID)
	}
	query += ` ORDER BY updated_at DESC, doc_id`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	var docs []*Document
	for rows.Next() {
		doc, err := s.scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, doc)
	}

	return docs, rows.Err()
}

// ReplaceChunks atomically replaces all chunk rows for a document.
func (s *SQLiteContentStore) ReplaceChunks(ctx context.Context, docID string, chunkRows []*ChunkRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("content store is closed")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE doc_id = ?`, docID); err != nil {
		return fmt.Errorf("failed to clear chunks for %s: %w", docID, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (chunk_id, doc_id, source_id, ordinal, text, header_trail, start_offset, end_offset, truncated)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare chunk statement: %w", err)
	}
	defer stmt.Close()

	for _, row := range chunkRows {
		trail, err := json.Marshal(row.HeaderTrail)
		if err != nil {
			return fmt.Errorf("failed to encode header trail for %s: %w", row.ID, err)
		}
		truncated := 0
		if row.Truncated {
			truncated = 1
		}
		if _, err := stmt.ExecContext(ctx, row.ID, row.DocID, row.SourceID,
			row.Ordinal, s.compress(row.Text), string(trail),
			row.StartOffset, row.EndOffset, truncated); err != nil {
			return fmt.Errorf("failed to insert chunk %s: %w", row.ID, err)
		}
	}

	return tx.Commit()
}

// GetChunks returns the chunk rows for the given IDs, in input order.
// Missing IDs are silently skipped: a chunk visible in a derived index but
// absent here was never committed.
func (s *SQLiteContentStore) GetChunks(ctx context.Context, ids []string) ([]*ChunkRow, error) {
	if len(ids) == 0 {
		return []*ChunkRow{}, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("content store is closed")
	}

	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}

	query := fmt.Sprintf(`
		SELECT chunk_id, doc_id, source_id, ordinal, text, header_trail, start_offset, end_offset, truncated
		FROM chunks WHERE chunk_id IN (%s)`, strings.Join(placeholders, ","))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get chunks: %w", err)
	}
	defer rows.Close()

	byID := make(map[string]*ChunkRow, len(ids))
	for rows.Next() {
		row, err := s.scanChunk(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		byID[row.ID] = row
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	result := make([]*ChunkRow, 0, len(byID))
	for _, id := range ids {
		if row, ok := byID[id]; ok {
			result = append(result, row)
		}
	}
	return result, nil
}

func (s *SQLiteContentStore) scanChunk(rows *sql.Rows) (*ChunkRow, error) {
	var row ChunkRow
	var blob []byte
	var trail string
	var truncated int
	if err := rows.Scan(&row.ID, &row.DocID, &row.SourceID, &row.Ordinal,
		&blob, &trail, &row.StartOffset, &row.EndOffset, &truncated); err != nil {
		return nil, err
	}

	text, err := s.decompress(blob)
	if err != nil {
		return nil, err
	}
	row.Text = text
	row.Truncated = truncated != 0
	if err := json.Unmarshal([]byte(trail), &row.HeaderTrail); err != nil {
		return nil, fmt.Errorf("decode header trail: %w", err)
	}
	return &row, nil
}

// ChunkIDsByDoc returns the committed chunk IDs for a document in ordinal order.
func (s *SQLiteContentStore) ChunkIDsByDoc(ctx context.Context, docID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("content store is closed")
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT chunk_id FROM chunks WHERE doc_id = ? ORDER BY ordinal`, docID)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunk IDs: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan chunk ID: %w", err)
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}

// AllChunkIDs returns every committed chunk ID, sorted.
// Used for consistency checking against the derived indexes.
func (s *SQLiteContentStore) AllChunkIDs(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("content store is closed")
	}

	rows, err := s.db.QueryContext(ctx, `SELECT chunk_id FROM chunks ORDER BY chunk_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunk IDs: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan chunk ID: %w", err)
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}

// DeleteChunksByDoc removes all chunk rows for a document.
func (s *SQLiteContentStore) DeleteChunksByDoc(ctx context.Context, docID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("content store is closed")
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM chunks WHERE doc_id = ?`, docID); err != nil {
		return fmt.Errorf("failed to delete chunks for %s: %w", docID, err)
	}
	return nil
}

// SourceStats returns per-source document and chunk counts, sorted by source ID.
func (s *SQLiteContentStore) SourceStats(ctx context.Context) ([]*SourceStat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("content store is closed")
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT d.source_id, COUNT(DISTINCT d.doc_id), COUNT(c.chunk_id)
		FROM documents d
		LEFT JOIN chunks c ON c.doc_id = d.doc_id
		GROUP BY d.source_id
		ORDER BY d.source_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query source stats: %w", err)
	}
	defer rows.Close()

	var stats []*SourceStat
	for rows.Next() {
		var stat SourceStat
		if err := rows.Scan(&stat.SourceID, &stat.DocumentCount, &stat.ChunkCount); err != nil {
			return nil, fmt.Errorf("failed to scan source stat: %w", err)
		}
		stats = append(stats, &stat)
	}

	return stats, rows.Err()
}

// Stats returns overall document and chunk counts.
func (s *SQLiteContentStore) Stats(ctx context.Context) (*ContentStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("content store is closed")
	}

	var stats ContentStats
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&stats.DocumentCount); err != nil {
		return nil, fmt.Errorf("failed to count documents: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&stats.ChunkCount); err != nil {
		return nil, fmt.Errorf("failed to count chunks: %w", err)
	}

	return &stats, nil
}

// Close checkpoints and closes the database.
func (s *SQLiteContentStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true
	s.enc.Close()
	s.dec.Close()
	if s.db != nil {
		_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
		return s.db.Close()
	}
	return nil
}
