package embed

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticEmbedder_Deterministic(t *testing.T) {
	e := NewStaticEmbedder()
	defer e.Close()

	first, err := e.Embed(context.Background(), "hybrid retrieval engine")
	require.NoError(t, err)
	second, err := e.Embed(context.Background(), "hybrid retrieval engine")
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestStaticEmbedder_Dimensions(t *testing.T) {
	e := NewStaticEmbedder()
	defer e.Close()

	vec, err := e.Embed(context.Background(), "some text")
	require.NoError(t, err)
	assert.Len(t, vec, StaticDimensions)
	assert.Equal(t, StaticDimensions, e.Dimensions())
}

func TestStaticEmbedder_UnitLength(t *testing.T) {
	e := NewStaticEmbedder()
	defer e.Close()

	vec, err := e.Embed(context.Background(), "normalize me please")
	require.NoError(t, err)

	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, math.Sqrt(sum), 1e-5)
}

func TestStaticEmbedder_EmptyTextIsZeroVector(t *testing.T) {
	e := NewStaticEmbedder()
	defer e.Close()

	vec, err := e.Embed(context.Background(), "   ")
	require.NoError(t, err)

	for _, v := range vec {
		assert.Zero(t, v)
	}
}

func TestStaticEmbedder_SimilarTextMoreSimilar(t *testing.T) {
	// Given: two related texts and one unrelated
	e := NewStaticEmbedder()
	defer e.Close()
	ctx := context.Background()

	a, err := e.Embed(ctx, "database index write batching")
	require.NoError(t, err)
	b, err := e.Embed(ctx, "batched writes to the database index")
	require.NoError(t, err)
	c, err := e.Embed(ctx, "ocean weather forecast sailing")
	require.NoError(t, err)

	// Then: cosine(a,b) > cosine(a,c)
	assert.Greater(t, cosine(a, b), cosine(a, c))
}

func cosine(a, b []float32) float64 {
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot // inputs are unit length
}

func TestStaticEmbedder_EmbedBatch_OrderAndLength(t *testing.T) {
	e := NewStaticEmbedder()
	defer e.Close()

	texts := []string{"first", "second", "third"}
	vecs, err := e.EmbedBatch(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, vecs, len(texts))

	for i, text := range texts {
		single, err := e.Embed(context.Background(), text)
		require.NoError(t, err)
		assert.Equal(t, single, vecs[i])
	}
}

func TestStaticEmbedder_ClosedReturnsError(t *testing.T) {
	e := NewStaticEmbedder()
	require.NoError(t, e.Close())

	_, err := e.Embed(context.Background(), "text")
	assert.Error(t, err)
}

func TestTokenize_SplitsIdentifiers(t *testing.T) {
	tests := []struct {
		input    string
		expected []string
	}{
		{"camelCaseToken", []string{"camel", "case", "token"}},
		{"snake_case_token", []string{"snake", "case", "token"}},
		{"HTTPServer", []string{"http", "server"}},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, tokenize(tt.input))
		})
	}
}
