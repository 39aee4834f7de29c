// Package rerank refines a small candidate set after fusion. Rerankers
// score (query, document) pairs and reorder by relevance.
package rerank

import (
	"context"
	"sort"

	"github.com/ShankarKakumani/eywa/internal/store"
)

// Result is a single reranked candidate.
type Result struct {
	// Index is the original position in the input documents slice.
	Index int
	// Score is the relevance score (0.0 to 1.0).
	Score float64
	// Document is the original document content.
	Document string
}

// Reranker scores and reorders documents by relevance to the query.
type Reranker interface {
	// Rerank returns results sorted by score descending. topK limits the
	// output when positive; 0 returns all.
	Rerank(ctx context.Context, query string, documents []string, topK int) ([]Result, error)

	// Close releases resources.
	Close() error
}

// NoopReranker returns candidates in their original order.
// Used when reranking is disabled.
type NoopReranker struct{}

// Rerank returns documents in original order with decreasing scores.
func (n *NoopReranker) Rerank(_ context.Context, _ string, documents []string, topK int) ([]Result, error) {
	results := make([]Result, len(documents))
	for i, doc := range documents {
		results[i] = Result{
			Index:    i,
			Score:    1.0 - float64(i)*0.01,
			Document: doc,
		}
	}
	return capResults(results, topK), nil
}

// Close is a no-op.
func (n *NoopReranker) Close() error { return nil }

var _ Reranker = (*NoopReranker)(nil)

// KeywordReranker scores candidates by query-term coverage: the fraction
// of distinct query terms that appear in the document, with stop words
// filtered on both sides. A cheap lexical proxy for a cross-encoder.
type KeywordReranker struct {
	stopWords map[string]struct{}
}

// NewKeywordReranker creates a keyword-overlap reranker using the default
// stop word list.
func NewKeywordReranker() *KeywordReranker {
	return &KeywordReranker{
		stopWords: store.BuildStopWordMap(store.DefaultStopWords),
	}
}

// Rerank scores each document by query-term coverage and sorts by score
// descending. Ties keep the input order, so fusion rank survives among
// equally-covered candidates.
func (k *KeywordReranker) Rerank(ctx context.Context, query string, documents []string, topK int) ([]Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	terms := k.termSet(query)

	results := make([]Result, len(documents))
	for i, doc := range documents {
		results[i] = Result{
			Index:    i,
			Score:    coverage(terms, k.termSet(doc)),
			Document: doc,
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	return capResults(results, topK), nil
}

// Close is a no-op.
func (k *KeywordReranker) Close() error { return nil }

var _ Reranker = (*KeywordReranker)(nil)

func (k *KeywordReranker) termSet(text string) map[string]struct{} {
	tokens := store.FilterStopWords(store.Tokenize(text), k.stopWords)
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		set[t] = struct{}{}
	}
	return set
}

// coverage returns the fraction of query terms present in the document.
func coverage(query, doc map[string]struct{}) float64 {
	if len(query) == 0 {
		return 0
	}
	matched := 0
	for t := range query {
		if _, ok := doc[t]; ok {
			matched++
		}
	}
	return float64(matched) / float64(len(query))
}

func capResults(results []Result, topK int) []Result {
	if topK > 0 && topK < len(results) {
		return results[:topK]
	}
	return results
}
