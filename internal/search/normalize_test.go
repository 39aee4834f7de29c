package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMinMaxNormalizer_ScalesToUnitRange(t *testing.T) {
	// Given: scores spanning an arbitrary range
	n := MinMaxNormalizer{}

	// When: normalizing
	out := n.Normalize([]float64{2, 6, 10})

	// Then: min maps to 0, max to 1, midpoint to 0.5
	require.Len(t, out, 3)
	assert.InDelta(t, 0.0, out[0], 1e-9)
	assert.InDelta(t, 0.5, out[1], 1e-9)
	assert.InDelta(t, 1.0, out[2], 1e-9)
}

func TestMinMaxNormalizer_EqualScoresMapToOne(t *testing.T) {
	n := MinMaxNormalizer{}
	out := n.Normalize([]float64{3.5, 3.5, 3.5})
	for _, v := range out {
		assert.Equal(t, 1.0, v)
	}
}

func TestMinMaxNormalizer_SingleScore(t *testing.T) {
	n := MinMaxNormalizer{}
	out := n.Normalize([]float64{0.42})
	require.Len(t, out, 1)
	assert.Equal(t, 1.0, out[0])
}

func TestMinMaxNormalizer_Empty(t *testing.T) {
	n := MinMaxNormalizer{}
	assert.Nil(t, n.Normalize(nil))
}

func TestMinMaxNormalizer_NegativeScores(t *testing.T) {
	// BM25 scores can be negative before negation elsewhere; the
	// normalizer must not care about sign.
	n := MinMaxNormalizer{}
	out := n.Normalize([]float64{-4, 0, 4})
	assert.InDelta(t, 0.0, out[0], 1e-9)
	assert.InDelta(t, 0.5, out[1], 1e-9)
	assert.InDelta(t, 1.0, out[2], 1e-9)
}
