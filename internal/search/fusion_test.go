package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ShankarKakumani/eywa/internal/errors"
	"github.com/ShankarKakumani/eywa/internal/store"
)

func vecHit(id string, score float32) *store.VectorHit {
	return &store.VectorHit{ChunkID: id, Score: score}
}

func lexHit(id string, score float64) *store.LexicalHit {
	return &store.LexicalHit{ChunkID: id, Score: score}
}

func TestNewFusion_RejectsBadWeights(t *testing.T) {
	tests := []struct {
		name     string
		vec, lex float64
	}{
		{"negative weight", -0.2, 1.2},
		{"sum above one", 0.8, 0.4},
		{"sum below one", 0.5, 0.2},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewFusion(tc.vec, tc.lex, nil)
			require.Error(t, err)
			assert.Equal(t, errors.ErrCodeInvalidInput, errors.GetCode(err))
		})
	}
}

func TestFusion_WeightedArithmetic(t *testing.T) {
	// Given: 0.8 vector / 0.2 lexical weights and two-candidate lists
	f, err := NewFusion(0.8, 0.2, nil)
	require.NoError(t, err)

	vec := []*store.VectorHit{vecHit("a", 0.9), vecHit("b", 0.5)}
	lex := []*store.LexicalHit{lexHit("b", 8.0), lexHit("a", 2.0)}

	// When: fusing
	fused := f.Fuse(vec, lex)
	require.Len(t, fused, 2)

	// Then: after min-max each side's best maps to 1 and worst to 0, so
	// a = 0.8*1 + 0.2*0 = 0.8 and b = 0.8*0 + 0.2*1 = 0.2
	assert.Equal(t, "a", fused[0].chunkID)
	assert.InDelta(t, 0.8, fused[0].fusedScore, 1e-9)
	assert.Equal(t, "b", fused[1].chunkID)
	assert.InDelta(t, 0.2, fused[1].fusedScore, 1e-9)
	assert.True(t, fused[0].inBothLists)
}

func TestFusion_MissingSideContributesZero(t *testing.T) {
	// Given: a chunk present only on the lexical side
	f, err := NewFusion(0.8, 0.2, nil)
	require.NoError(t, err)

	vec := []*store.VectorHit{vecHit("a", 0.9), vecHit("b", 0.3)}
	lex := []*store.LexicalHit{lexHit("c", 5.0), lexHit("a", 1.0)}

	// When: fusing
	fused := f.Fuse(vec, lex)
	require.Len(t, fused, 3)

	byID := make(map[string]*fusedCandidate)
	for _, c := range fused {
		byID[c.chunkID] = c
	}

	// Then: c gets only the lexical contribution, b only the vector one
	assert.InDelta(t, 0.2, byID["c"].fusedScore, 1e-9)
	assert.Equal(t, 0, byID["c"].vecRank)
	assert.InDelta(t, 0.0, byID["b"].fusedScore, 1e-9)
	assert.False(t, byID["b"].inBothLists)
}

func TestFusion_VectorOnlyDegradation(t *testing.T) {
	// Given: the lexical side returned nothing
	f, err := NewFusion(0.8, 0.2, nil)
	require.NoError(t, err)

	// When: fusing with one empty list
	fused := f.Fuse([]*store.VectorHit{vecHit("a", 0.7), vecHit("b", 0.4)}, nil)

	// Then: vector order carries through
	require.Len(t, fused, 2)
	assert.Equal(t, "a", fused[0].chunkID)
	assert.InDelta(t, 0.8, fused[0].fusedScore, 1e-9)
}

func TestFusion_TieBreaksByChunkID(t *testing.T) {
	// Given: two candidates with identical scores on the same side
	f, err := NewFusion(0.8, 0.2, nil)
	require.NoError(t, err)

	fused := f.Fuse([]*store.VectorHit{vecHit("zz", 0.5), vecHit("aa", 0.5)}, nil)

	// Then: equal fused scores order lexicographically
	require.Len(t, fused, 2)
	assert.Equal(t, "aa", fused[0].chunkID)
	assert.Equal(t, "zz", fused[1].chunkID)
}

func TestFusion_DuplicateIDKeepsBestEntry(t *testing.T) {
	// Given: a duplicated ID in the vector list, best first
	f, err := NewFusion(1.0, 0.0, nil)
	require.NoError(t, err)

	fused := f.Fuse([]*store.VectorHit{vecHit("a", 0.9), vecHit("a", 0.1), vecHit("b", 0.5)}, nil)

	// Then: only one candidate per ID, with the first entry's rank
	require.Len(t, fused, 2)
	assert.Equal(t, "a", fused[0].chunkID)
	assert.Equal(t, 1, fused[0].vecRank)
	// Raw vector scores are float32; compare at float32 precision.
	assert.InDelta(t, 0.9, fused[0].vecScore, 1e-6)
}

func TestFusion_BothEmpty(t *testing.T) {
	f, err := NewFusion(0.8, 0.2, nil)
	require.NoError(t, err)
	fused := f.Fuse(nil, nil)
	assert.NotNil(t, fused)
	assert.Empty(t, fused)
}

func TestFusion_MatchedTermsCarriedFromLexical(t *testing.T) {
	f, err := NewFusion(0.8, 0.2, nil)
	require.NoError(t, err)

	lex := []*store.LexicalHit{{ChunkID: "a", Score: 3.0, MatchedTerms: []string{"raft", "leader"}}}
	fused := f.Fuse(nil, lex)

	require.Len(t, fused, 1)
	assert.Equal(t, []string{"raft", "leader"}, fused[0].matchedTerms)
}

func TestFusion_RaisingOneSideNeverLowersFusedScore(t *testing.T) {
	// Given: fixed candidate lists
	f, err := NewFusion(0.8, 0.2, nil)
	require.NoError(t, err)

	baseVec := []*store.VectorHit{vecHit("a", 0.6), vecHit("b", 0.4), vecHit("c", 0.2)}
	baseLex := []*store.LexicalHit{lexHit("a", 3.0), lexHit("b", 2.0), lexHit("c", 1.0)}

	scores := func(fused []*fusedCandidate) map[string]float64 {
		out := make(map[string]float64, len(fused))
		for _, c := range fused {
			out[c.chunkID] = c.fusedScore
		}
		return out
	}
	base := scores(f.Fuse(baseVec, baseLex))

	// When: raising b's vector score within the same min/max band
	raisedVec := []*store.VectorHit{vecHit("a", 0.6), vecHit("b", 0.5), vecHit("c", 0.2)}
	withVec := scores(f.Fuse(raisedVec, baseLex))

	// Then: b's fused score does not drop
	assert.GreaterOrEqual(t, withVec["b"], base["b"])

	// When: raising b's lexical score
	raisedLex := []*store.LexicalHit{lexHit("a", 3.0), lexHit("b", 2.5), lexHit("c", 1.0)}
	withLex := scores(f.Fuse(baseVec, raisedLex))

	// Then: same on the lexical side
	assert.GreaterOrEqual(t, withLex["b"], base["b"])

	// And: raising the top candidate keeps it at full weight
	topVec := []*store.VectorHit{vecHit("a", 0.9), vecHit("b", 0.4), vecHit("c", 0.2)}
	withTop := scores(f.Fuse(topVec, baseLex))
	assert.GreaterOrEqual(t, withTop["a"], base["a"])
}
