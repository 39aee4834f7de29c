package search

import (
	"sort"

	"github.com/ShankarKakumani/eywa/internal/errors"
	"github.com/ShankarKakumani/eywa/internal/store"
)

// fusedCandidate holds one chunk's state during fusion.
type fusedCandidate struct {
	chunkID      string
	fusedScore   float64
	vecScore     float64 // raw similarity
	lexScore     float64 // raw BM25
	vecRank      int     // 1-indexed, 0 if absent
	lexRank      int     // 1-indexed, 0 if absent
	inBothLists  bool
	matchedTerms []string
}

// Fusion combines the two candidate lists with weighted normalized scores:
// fused = vecWeight * norm(vec) + lexWeight * norm(lex). A chunk missing
// from one side contributes 0 for that side.
type Fusion struct {
	vecWeight  float64
	lexWeight  float64
	normalizer Normalizer
}

// NewFusion creates a fusion stage. The weights must be non-negative and
// sum to 1. A nil normalizer defaults to MinMaxNormalizer.
func NewFusion(vecWeight, lexWeight float64, normalizer Normalizer) (*Fusion, error) {
	if vecWeight < 0 || lexWeight < 0 {
		return nil, errors.ValidationError("fusion weights must be non-negative", nil)
	}
	sum := vecWeight + lexWeight
	if sum < 0.999 || sum > 1.001 {
		return nil, errors.ValidationError("fusion weights must sum to 1", nil)
	}
	if normalizer == nil {
		normalizer = MinMaxNormalizer{}
	}
	return &Fusion{
		vecWeight:  vecWeight,
		lexWeight:  lexWeight,
		normalizer: normalizer,
	}, nil
}

// Fuse merges the candidate lists, returning candidates sorted by fused
// score descending with chunk ID as the stable tie-break. Both input
// lists are sorted best-first, so a duplicate ID within one list keeps
// its first (maximum) entry and later ones are dropped.
func (f *Fusion) Fuse(vec []*store.VectorHit, lex []*store.LexicalHit) []*fusedCandidate {
	if len(vec) == 0 && len(lex) == 0 {
		return []*fusedCandidate{}
	}

	byID := make(map[string]*fusedCandidate, len(vec)+len(lex))
	get := func(id string) *fusedCandidate {
		if c, ok := byID[id]; ok {
			return c
		}
		c := &fusedCandidate{chunkID: id}
		byID[id] = c
		return c
	}

	vecScores := f.normalizer.Normalize(rawVectorScores(vec))
	for i, hit := range vec {
		c := get(hit.ChunkID)
		if c.vecRank != 0 {
			continue
		}
		c.vecScore = float64(hit.Score)
		c.vecRank = i + 1
		c.fusedScore += f.vecWeight * vecScores[i]
	}

	lexScores := f.normalizer.Normalize(rawLexicalScores(lex))
	for i, hit := range lex {
		c := get(hit.ChunkID)
		if c.lexRank != 0 {
			continue
		}
		c.lexScore = hit.Score
		c.lexRank = i + 1
		c.matchedTerms = hit.MatchedTerms
		c.fusedScore += f.lexWeight * lexScores[i]
		if c.vecRank != 0 {
			c.inBothLists = true
		}
	}

	out := make([]*fusedCandidate, 0, len(byID))
	for _, c := range byID {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].fusedScore != out[j].fusedScore {
			return out[i].fusedScore > out[j].fusedScore
		}
		return out[i].chunkID < out[j].chunkID
	})
	return out
}

func rawVectorScores(hits []*store.VectorHit) []float64 {
	scores := make([]float64, len(hits))
	for i, h := range hits {
		scores[i] = float64(h.Score)
	}
	return scores
}

func rawLexicalScores(hits []*store.LexicalHit) []float64 {
	scores := make([]float64, len(hits))
	for i, h := range hits {
		scores[i] = h.Score
	}
	return scores
}
