package index

import (
	"context"
	"log/slog"
	"time"

	"github.com/ShankarKakumani/eywa/internal/store"
)

// InconsistencyType categorizes detected issues.
type InconsistencyType int

const (
	// InconsistencyOrphanLexical indicates a lexical entry whose chunk was never committed.
	InconsistencyOrphanLexical InconsistencyType = iota
	// InconsistencyOrphanVector indicates a vector entry whose chunk was never committed.
	InconsistencyOrphanVector
	// InconsistencyMissingLexical indicates a committed chunk missing from the lexical index.
	InconsistencyMissingLexical
	// InconsistencyMissingVector indicates a committed chunk missing from the vector store.
	InconsistencyMissingVector
)

// String returns a human-readable description of the inconsistency type.
func (t InconsistencyType) String() string {
	switch t {
	case InconsistencyOrphanLexical:
		return "orphan_lexical"
	case InconsistencyOrphanVector:
		return "orphan_vector"
	case InconsistencyMissingLexical:
		return "missing_lexical"
	case InconsistencyMissingVector:
		return "missing_vector"
	default:
		return "unknown"
	}
}

// Inconsistency represents a detected cross-store issue.
type Inconsistency struct {
	Type    InconsistencyType
	ChunkID string
	Details string
}

// CheckResult contains the outcome of a consistency check.
type CheckResult struct {
	// Checked is the number of committed chunks verified.
	Checked int
	// Inconsistencies contains all detected issues.
	Inconsistencies []Inconsistency
	// Duration is how long the check took.
	Duration time.Duration
}

// ConsistencyChecker validates cross-store consistency. The content store's
// chunk rows are the source of truth: entries present only in the derived
// indexes are orphans from interrupted commits, entries present only in the
// content store mean a derived index lost data.
type ConsistencyChecker struct {
	content store.ContentStore
	lexical store.BM25Index
	vectors store.VectorStore
}

// NewConsistencyChecker creates a new checker over the three stores.
func NewConsistencyChecker(content store.ContentStore, lexical store.BM25Index, vectors store.VectorStore) *ConsistencyChecker {
	return &ConsistencyChecker{
		content: content,
		lexical: lexical,
		vectors: vectors,
	}
}

// Check scans all stores for inconsistencies.
// O(n) in the total number of entries across all stores.
func (c *ConsistencyChecker) Check(ctx context.Context) (*CheckResult, error) {
	start := time.Now()
	var issues []Inconsistency

	committedIDs, err := c.content.AllChunkIDs(ctx)
	if err != nil {
		return nil, err
	}
	committed := make(map[string]bool, len(committedIDs))
	for _, id := range committedIDs {
		committed[id] = true
	}

	lexicalIDs, err := c.lexical.AllIDs()
	if err != nil {
		slog.Warn("failed to get lexical IDs for consistency check", slog.String("error", err.Error()))
		// Continue with what we have
	}

	vectorIDs := c.vectors.AllIDs()

	// Orphans: derived entries without a committed chunk
	for _, id := range lexicalIDs {
		if !committed[id] {
			issues = append(issues, Inconsistency{
				Type:    InconsistencyOrphanLexical,
				ChunkID: id,
				Details: "lexical entry without committed chunk",
			})
		}
	}
	for _, id := range vectorIDs {
		if !committed[id] {
			issues = append(issues, Inconsistency{
				Type:    InconsistencyOrphanVector,
				ChunkID: id,
				Details: "vector entry without committed chunk",
			})
		}
	}

	lexicalSet := make(map[string]bool, len(lexicalIDs))
	for _, id := range lexicalIDs {
		lexicalSet[id] = true
	}
	vectorSet := make(map[string]bool, len(vectorIDs))
	for _, id := range vectorIDs {
		vectorSet[id] = true
	}

	// Missing: committed chunks absent from a derived index
	for _, id := range committedIDs {
		if !lexicalSet[id] {
			issues = append(issues, Inconsistency{
				Type:    InconsistencyMissingLexical,
				ChunkID: id,
				Details: "committed chunk missing from lexical index",
			})
		}
		if !vectorSet[id] {
			issues = append(issues, Inconsistency{
				Type:    InconsistencyMissingVector,
				ChunkID: id,
				Details: "committed chunk missing from vector store",
			})
		}
	}

	return &CheckResult{
		Checked:         len(committedIDs),
		Inconsistencies: issues,
		Duration:        time.Since(start),
	}, nil
}

// Repair fixes detected inconsistencies.
// Orphans are deleted from the derived indexes (best-effort).
// Missing entries are logged; re-ingesting the document rebuilds them.
func (c *ConsistencyChecker) Repair(ctx context.Context, issues []Inconsistency) error {
	var orphanLexical, orphanVector []string
	var missingCount int

	for _, issue := range issues {
		switch issue.Type {
		case InconsistencyOrphanLexical:
			orphanLexical = append(orphanLexical, issue.ChunkID)
		case InconsistencyOrphanVector:
			orphanVector = append(orphanVector, issue.ChunkID)
		case InconsistencyMissingLexical, InconsistencyMissingVector:
			missingCount++
		}
	}

	if len(orphanLexical) > 0 {
		if err := c.lexical.Delete(ctx, orphanLexical); err != nil {
			slog.Warn("failed to delete orphan lexical entries",
				slog.Int("count", len(orphanLexical)),
				slog.String("error", err.Error()))
		} else {
			slog.Info("deleted orphan lexical entries", slog.Int("count", len(orphanLexical)))
		}
	}

	if len(orphanVector) > 0 {
		if err := c.vectors.Delete(ctx, orphanVector); err != nil {
			slog.Warn("failed to delete orphan vector entries",
				slog.Int("count", len(orphanVector)),
				slog.String("error", err.Error()))
		} else {
			slog.Info("deleted orphan vector entries", slog.Int("count", len(orphanVector)))
		}
	}

	if missingCount > 0 {
		slog.Warn("index has missing entries, re-ingest affected documents to rebuild",
			slog.Int("missing_count", missingCount))
	}

	return nil
}

// QuickCheck performs a lightweight consistency check.
// It only verifies counts match across stores, not individual IDs.
// Returns true if counts are consistent.
func (c *ConsistencyChecker) QuickCheck(ctx context.Context) (bool, error) {
	contentStats, err := c.content.Stats(ctx)
	if err != nil {
		return false, err
	}
	chunkCount := contentStats.ChunkCount

	lexicalCount := 0
	if stats := c.lexical.Stats(); stats != nil {
		lexicalCount = stats.ChunkCount
	}

	vectorCount := c.vectors.Count()

	consistent := chunkCount == lexicalCount && chunkCount == vectorCount

	if !consistent {
		slog.Debug("index counts mismatch",
			slog.Int("content", chunkCount),
			slog.Int("lexical", lexicalCount),
			slog.Int("vector", vectorCount))
	}

	return consistent, nil
}
