// Package search implements hybrid retrieval: lexical and vector searches
// run in parallel, their candidate lists are fused with weighted min-max
// normalized scores, and a reranker refines the top of the fused list.
package search

import (
	"strconv"
	"time"

	"github.com/ShankarKakumani/eywa/internal/errors"
)

// Default retrieval parameters.
const (
	// DefaultCandidateLimit is the per-side candidate list size.
	DefaultCandidateLimit = 50

	// DefaultRerankLimit is how many fused candidates reach the reranker.
	DefaultRerankLimit = 20

	// DefaultTopK is the final result count.
	DefaultTopK = 5

	// DefaultVectorWeight and DefaultLexicalWeight are the fusion weights.
	// They must sum to 1.
	DefaultVectorWeight  = 0.8
	DefaultLexicalWeight = 0.2

	// DefaultTimeout bounds a single search end to end.
	DefaultTimeout = 5 * time.Second

	// sourceOverFetch is the multiplier applied to the vector candidate
	// limit when a source filter is active. The vector index has no
	// source column, so filtering happens after the fact against chunk
	// metadata.
	sourceOverFetch = 4
)

// Options control a single search.
type Options struct {
	// TopK is the number of results to return (default 5).
	TopK int

	// SourceID restricts results to one source when non-empty.
	SourceID string

	// MinScore drops fused results below the threshold (0 disables).
	MinScore float64

	// VectorWeight and LexicalWeight override the fusion weights when
	// both are set. They must be non-negative and sum to 1.
	VectorWeight  float64
	LexicalWeight float64

	// Timeout bounds the search (default 5s).
	Timeout time.Duration
}

// weightsOverridden reports whether the caller supplies fusion weights.
func (o Options) weightsOverridden() bool {
	return o.VectorWeight != 0 || o.LexicalWeight != 0
}

// validateWeights rejects a half-set override up front. A single non-zero
// weight only forms a convex pair when it is exactly 1; anything else is a
// caller mistake, reported against the option names rather than the sum.
func (o Options) validateWeights() error {
	if o.VectorWeight == 0 || o.LexicalWeight == 0 {
		if o.VectorWeight+o.LexicalWeight != 1 {
			return errors.ValidationError(
				"vector and lexical weight overrides must be set together", nil).
				WithDetail("vector_weight", strconv.FormatFloat(o.VectorWeight, 'f', -1, 64)).
				WithDetail("lexical_weight", strconv.FormatFloat(o.LexicalWeight, 'f', -1, 64))
		}
	}
	return nil
}

// Result is a single enriched search hit.
type Result struct {
	ChunkID     string   `json:"chunk_id"`
	DocID       string   `json:"doc_id"`
	SourceID    string   `json:"source_id"`
	Title       string   `json:"title,omitempty"`
	Text        string   `json:"text"`
	HeaderTrail []string `json:"header_trail,omitempty"`
	StartOffset int      `json:"start_offset"`
	EndOffset   int      `json:"end_offset"`

	// Score is the fused score after normalization and weighting.
	Score float64 `json:"score"`

	// RerankScore is the reranker's relevance score for this hit.
	RerankScore float64 `json:"rerank_score"`

	// Per-side diagnostics.
	VectorScore  float64  `json:"vector_score"`
	LexicalScore float64  `json:"lexical_score"`
	VectorRank   int      `json:"vector_rank,omitempty"`
	LexicalRank  int      `json:"lexical_rank,omitempty"`
	InBothLists  bool     `json:"in_both_lists"`
	MatchedTerms []string `json:"matched_terms,omitempty"`
}

// Config configures the engine.
type Config struct {
	CandidateLimit int
	RerankLimit    int
	TopK           int
	VectorWeight   float64
	LexicalWeight  float64
	Timeout        time.Duration
}

// DefaultConfig returns the standard retrieval parameters.
func DefaultConfig() Config {
	return Config{
		CandidateLimit: DefaultCandidateLimit,
		RerankLimit:    DefaultRerankLimit,
		TopK:           DefaultTopK,
		VectorWeight:   DefaultVectorWeight,
		LexicalWeight:  DefaultLexicalWeight,
		Timeout:        DefaultTimeout,
	}
}

func (c Config) withDefaults() Config {
	if c.CandidateLimit <= 0 {
		c.CandidateLimit = DefaultCandidateLimit
	}
	if c.RerankLimit <= 0 {
		c.RerankLimit = DefaultRerankLimit
	}
	if c.TopK <= 0 {
		c.TopK = DefaultTopK
	}
	if c.VectorWeight == 0 && c.LexicalWeight == 0 {
		c.VectorWeight = DefaultVectorWeight
		c.LexicalWeight = DefaultLexicalWeight
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	return c
}
