package search

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/ShankarKakumani/eywa/internal/embed"
	"github.com/ShankarKakumani/eywa/internal/errors"
	"github.com/ShankarKakumani/eywa/internal/rerank"
	"github.com/ShankarKakumani/eywa/internal/store"
)

// Engine runs hybrid retrieval over the three stores. The lexical and
// vector sides search in parallel; one side failing degrades to the other,
// both failing fails the search.
type Engine struct {
	lexical  store.BM25Index
	vectors  store.VectorStore
	content  store.ContentStore
	embedder embed.Embedder
	reranker rerank.Reranker
	fusion   *Fusion
	cfg      Config
	logger   *slog.Logger
}

// NewEngine creates a hybrid retrieval engine. A nil reranker defaults to
// NoopReranker; a nil logger defaults to slog.Default().
func NewEngine(
	lexical store.BM25Index,
	vectors store.VectorStore,
	content store.ContentStore,
	embedder embed.Embedder,
	reranker rerank.Reranker,
	cfg Config,
	logger *slog.Logger,
) (*Engine, error) {
	if lexical == nil || vectors == nil || content == nil || embedder == nil {
		return nil, errors.ValidationError("search engine requires lexical, vector, content and embedder dependencies", nil)
	}
	cfg = cfg.withDefaults()

	fusion, err := NewFusion(cfg.VectorWeight, cfg.LexicalWeight, nil)
	if err != nil {
		return nil, err
	}
	if reranker == nil {
		reranker = &rerank.NoopReranker{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Engine{
		lexical:  lexical,
		vectors:  vectors,
		content:  content,
		embedder: embedder,
		reranker: reranker,
		fusion:   fusion,
		cfg:      cfg,
		logger:   logger,
	}, nil
}

// Search runs the full retrieval pipeline: parallel dual search, fusion,
// enrichment from the content store, reranking, and the final cut.
// Only chunks with a committed content row can appear in the output.
func (e *Engine) Search(ctx context.Context, query string, opts Options) ([]*Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errors.ValidationError("empty search query", nil)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = e.cfg.Timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	fusion := e.fusion
	if opts.weightsOverridden() {
		if err := opts.validateWeights(); err != nil {
			return nil, err
		}
		var err error
		fusion, err = NewFusion(opts.VectorWeight, opts.LexicalWeight, nil)
		if err != nil {
			return nil, err
		}
	}

	vecHits, lexHits, err := e.parallelSearch(ctx, query, opts.SourceID)
	if err != nil {
		return nil, err
	}

	fused := fusion.Fuse(vecHits, lexHits)
	if len(fused) > e.cfg.RerankLimit {
		fused = fused[:e.cfg.RerankLimit]
	}

	results, err := e.enrich(ctx, fused, opts.SourceID)
	if err != nil {
		return nil, err
	}

	results, err = e.rerank(ctx, query, results)
	if err != nil {
		// Reranking is a refinement; fall back to fusion order.
		e.logger.Warn("reranking failed, using fusion order",
			slog.String("error", err.Error()))
	}

	if opts.MinScore > 0 {
		kept := results[:0]
		for _, r := range results {
			if r.Score >= opts.MinScore {
				kept = append(kept, r)
			}
		}
		results = kept
	}

	topK := opts.TopK
	if topK <= 0 {
		topK = e.cfg.TopK
	}
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// parallelSearch fans out to both sides. A single side failing logs a
// warning and degrades to the surviving side; both failing returns a
// search error.
func (e *Engine) parallelSearch(ctx context.Context, query, sourceID string) ([]*store.VectorHit, []*store.LexicalHit, error) {
	var (
		vecHits []*store.VectorHit
		lexHits []*store.LexicalHit
		vecErr  error
		lexErr  error
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		lexHits, lexErr = e.lexical.Search(gctx, query, e.cfg.CandidateLimit, sourceID)
		return nil
	})

	g.Go(func() error {
		vecHits, vecErr = e.vectorSearch(gctx, query, sourceID)
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	if vecErr != nil && lexErr != nil {
		return nil, nil, errors.SearchError("both retrieval sides failed", lexErr).
			WithDetail("vector_error", vecErr.Error())
	}
	if vecErr != nil {
		e.logger.Warn("vector search failed, degrading to lexical only",
			slog.String("error", vecErr.Error()))
		vecHits = nil
	}
	if lexErr != nil {
		e.logger.Warn("lexical search failed, degrading to vector only",
			slog.String("error", lexErr.Error()))
		lexHits = nil
	}
	return vecHits, lexHits, nil
}

// vectorSearch embeds the query and searches the vector index. With a
// source filter it over-fetches and trims after the metadata filter in
// enrich, since the vector index stores no source column.
func (e *Engine) vectorSearch(ctx context.Context, query, sourceID string) ([]*store.VectorHit, error) {
	embedding, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	k := e.cfg.CandidateLimit
	if sourceID != "" {
		k *= sourceOverFetch
	}
	hits, err := e.vectors.Search(ctx, embedding, k)
	if err != nil {
		return nil, err
	}

	if sourceID != "" {
		hits, err = e.filterHitsBySource(ctx, hits, sourceID)
		if err != nil {
			return nil, err
		}
		if len(hits) > e.cfg.CandidateLimit {
			hits = hits[:e.cfg.CandidateLimit]
		}
	}
	return hits, nil
}

// filterHitsBySource keeps vector hits whose committed chunk row belongs
// to the source. Hits with no chunk row are dropped here as well.
func (e *Engine) filterHitsBySource(ctx context.Context, hits []*store.VectorHit, sourceID string) ([]*store.VectorHit, error) {
	if len(hits) == 0 {
		return hits, nil
	}

	ids := make([]string, len(hits))
	for i, h := range hits {
		ids[i] = h.ChunkID
	}
	rows, err := e.content.GetChunks(ctx, ids)
	if err != nil {
		return nil, err
	}

	keep := make(map[string]struct{}, len(rows))
	for _, row := range rows {
		if row.SourceID == sourceID {
			keep[row.ID] = struct{}{}
		}
	}

	filtered := hits[:0]
	for _, h := range hits {
		if _, ok := keep[h.ChunkID]; ok {
			filtered = append(filtered, h)
		}
	}
	return filtered, nil
}

// enrich loads committed chunk rows for the fused candidates. Candidates
// with no row, from an interrupted commit or a stale index entry, are
// dropped. Order follows fused score descending with doc ID then chunk ID
// as tie-breaks.
func (e *Engine) enrich(ctx context.Context, fused []*fusedCandidate, sourceID string) ([]*Result, error) {
	if len(fused) == 0 {
		return []*Result{}, nil
	}

	ids := make([]string, len(fused))
	byID := make(map[string]*fusedCandidate, len(fused))
	for i, c := range fused {
		ids[i] = c.chunkID
		byID[c.chunkID] = c
	}

	rows, err := e.content.GetChunks(ctx, ids)
	if err != nil {
		return nil, errors.SearchError("failed to load result chunks", err)
	}

	titles := make(map[string]string, len(rows))
	results := make([]*Result, 0, len(rows))
	for _, row := range rows {
		if sourceID != "" && row.SourceID != sourceID {
			continue
		}
		c := byID[row.ID]
		if c == nil {
			continue
		}

		title, ok := titles[row.DocID]
		if !ok {
			if doc, docErr := e.content.GetDocument(ctx, row.DocID); docErr == nil {
				title = doc.Title
			}
			titles[row.DocID] = title
		}

		results = append(results, &Result{
			ChunkID:      row.ID,
			DocID:        row.DocID,
			SourceID:     row.SourceID,
			Title:        title,
			Text:         row.Text,
			HeaderTrail:  row.HeaderTrail,
			StartOffset:  row.StartOffset,
			EndOffset:    row.EndOffset,
			Score:        c.fusedScore,
			VectorScore:  c.vecScore,
			LexicalScore: c.lexScore,
			VectorRank:   c.vecRank,
			LexicalRank:  c.lexRank,
			InBothLists:  c.inBothLists,
			MatchedTerms: c.matchedTerms,
		})
	}

	sortResults(results)
	return results, nil
}

// rerank reorders the enriched results by reranker score, falling back to
// fused score then doc and chunk IDs on ties.
func (e *Engine) rerank(ctx context.Context, query string, results []*Result) ([]*Result, error) {
	if len(results) == 0 {
		return results, nil
	}

	docs := make([]string, len(results))
	for i, r := range results {
		docs[i] = r.Text
	}

	scored, err := e.reranker.Rerank(ctx, query, docs, 0)
	if err != nil {
		return results, err
	}

	for _, s := range scored {
		if s.Index >= 0 && s.Index < len(results) {
			results[s.Index].RerankScore = s.Score
		}
	}

	sort.Slice(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.RerankScore != b.RerankScore {
			return a.RerankScore > b.RerankScore
		}
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.DocID != b.DocID {
			return a.DocID < b.DocID
		}
		return a.ChunkID < b.ChunkID
	})
	return results, nil
}

// sortResults orders by fused score descending, then doc ID, then chunk ID.
func sortResults(results []*Result) {
	sort.Slice(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.DocID != b.DocID {
			return a.DocID < b.DocID
		}
		return a.ChunkID < b.ChunkID
	})
}
