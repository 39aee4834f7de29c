// Package store is the persistence layer: document and chunk content in
// SQLite (zstd compressed), BM25 lexical search via SQLite FTS5 or Bleve,
// and vector search via an HNSW graph.
package store

import (
	"context"
	"fmt"
	"time"
)

// Document is a persisted source document.
type Document struct {
	ID          string    // Caller-supplied document ID
	SourceID    string    // Logical source the document belongs to
	Title       string
	Format      string    // markdown, text
	Content     string    // Full original content
	ContentHash string    // SHA256 of content
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ChunkRow is a persisted chunk. Chunk rows are written after the vector
// and lexical indexes; a chunk row present in the content store marks the
// chunk as committed and visible to search.
type ChunkRow struct {
	ID          string   // Deterministic chunk ID
	DocID       string   // Parent document ID
	SourceID    string   // Denormalized from the document for filtering
	Ordinal     int      // 0-based position within the document
	Text        string
	HeaderTrail []string // Enclosing heading path, outermost first
	StartOffset int      // Rune offset into the document body
	EndOffset   int
	Truncated   bool     // True when a hard split cut mid-sentence
}

// SourceStat summarizes one logical source.
type SourceStat struct {
	SourceID      string
	DocumentCount int
	ChunkCount    int
}

// ContentStats summarizes the content store.
type ContentStats struct {
	DocumentCount int
	ChunkCount    int
}

// ContentStore persists documents and chunk rows.
type ContentStore interface {
	// Document operations
	PutDocument(ctx context.Context, doc *Document) error
	GetDocument(ctx context.Context, id string) (*Document, error)
	DeleteDocument(ctx context.Context, id string) error
	ListDocuments(ctx context.Context, sourceID string, limit int) ([]*Document, error)

	// Chunk operations
	ReplaceChunks(ctx context.Context, docID string, rows []*ChunkRow) error
	GetChunks(ctx context.Context, ids []string) ([]*ChunkRow, error)
	ChunkIDsByDoc(ctx context.Context, docID string) ([]string, error)
	AllChunkIDs(ctx context.Context) ([]string, error)
	DeleteChunksByDoc(ctx context.Context, docID string) error

	// Statistics
	SourceStats(ctx context.Context) ([]*SourceStat, error)
	Stats(ctx context.Context) (*ContentStats, error)

	Close() error
}

// LexicalDoc is a chunk to be indexed for keyword search.
type LexicalDoc struct {
	ID       string // Chunk ID
	DocID    string
	SourceID string
	Content  string
}

// LexicalHit is a single BM25 search result.
type LexicalHit struct {
	ChunkID      string
	Score        float64
	MatchedTerms []string
}

// LexicalStats provides statistics about the BM25 index.
type LexicalStats struct {
	ChunkCount int
}

// BM25Index provides keyword search over chunks using BM25 scoring.
type BM25Index interface {
	// Index adds chunks to the index. Existing IDs are replaced.
	Index(ctx context.Context, docs []*LexicalDoc) error

	// Search returns chunks matching query, scored by BM25.
	// A non-empty sourceID restricts hits to that source.
	Search(ctx context.Context, query string, limit int, sourceID string) ([]*LexicalHit, error)

	// Delete removes chunks from the index.
	Delete(ctx context.Context, chunkIDs []string) error

	// AllIDs returns all chunk IDs in the index (for consistency checks).
	AllIDs() ([]string, error)

	// Stats returns index statistics.
	Stats() *LexicalStats

	// Persistence
	Save(path string) error
	Close() error
}

// BM25Config configures the BM25 index.
type BM25Config struct {
	// K1 is the term frequency saturation parameter (default: 1.2)
	K1 float64

	// B is the length normalization parameter (default: 0.75)
	B float64

	// StopWords is a list of words to filter out during tokenization
	StopWords []string

	// MinTokenLength is minimum token length to index (default: 2)
	MinTokenLength int
}

// DefaultBM25Config returns default BM25 configuration.
func DefaultBM25Config() BM25Config {
	return BM25Config{
		K1:             1.2,
		B:              0.75,
		StopWords:      DefaultStopWords,
		MinTokenLength: 2,
	}
}

// DefaultStopWords contains high-frequency prose words excluded from the
// lexical index. Kept short so distinctive phrasing still matches.
var DefaultStopWords = []string{
	"the", "a", "an", "and", "or", "but", "is", "are", "was", "were",
	"to", "of", "in", "on", "for", "with", "as", "at", "by", "it",
	"this", "that", "be", "from",
}

// VectorHit is a single vector search result.
type VectorHit struct {
	ChunkID  string
	Distance float32 // Lower is more similar (0-2 for cosine)
	Score    float32 // Normalized similarity (0-1)
}

// VectorStoreConfig configures the vector store.
type VectorStoreConfig struct {
	// Dimensions is the vector dimension (256 for the static embedder)
	Dimensions int

	// Metric is the distance metric: "cos" (cosine), "l2" (euclidean) (default: "cos")
	Metric string

	// M is HNSW max connections per layer (default: 32)
	M int

	// EfConstruction is HNSW build-time search width (default: 128)
	EfConstruction int

	// EfSearch is HNSW query-time search width (default: 64)
	EfSearch int
}

// DefaultVectorStoreConfig returns sensible defaults for the vector store.
func DefaultVectorStoreConfig(dimensions int) VectorStoreConfig {
	return VectorStoreConfig{
		Dimensions:     dimensions,
		Metric:         "cos",
		M:              32,
		EfConstruction: 128,
		EfSearch:       64,
	}
}

// VectorStore provides nearest-neighbor search over chunk embeddings.
type VectorStore interface {
	// Add inserts vectors with their chunk IDs. If an ID exists, it is replaced.
	Add(ctx context.Context, ids []string, vectors [][]float32) error

	// Search finds k nearest neighbors to the query vector.
	Search(ctx context.Context, query []float32, k int) ([]*VectorHit, error)

	// Delete removes vectors by chunk ID.
	Delete(ctx context.Context, ids []string) error

	// AllIDs returns all chunk IDs in the store (for consistency checks).
	AllIDs() []string

	// Contains checks if an ID exists.
	Contains(id string) bool

	// Count returns the number of vectors.
	Count() int

	// Persistence
	Save(path string) error
	Load(path string) error
	Close() error
}

// ErrDimensionMismatch indicates vector dimension mismatch.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Got)
}
