package embed

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ShankarKakumani/eywa/internal/errors"
)

// countingEmbedder wraps StaticEmbedder and counts inner calls.
type countingEmbedder struct {
	*StaticEmbedder
	calls atomic.Int64
}

func (c *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	c.calls.Add(1)
	return c.StaticEmbedder.Embed(ctx, text)
}

func (c *countingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	c.calls.Add(int64(len(texts)))
	return c.StaticEmbedder.EmbedBatch(ctx, texts)
}

func TestCachedEmbedder_ServesRepeatsFromCache(t *testing.T) {
	inner := &countingEmbedder{StaticEmbedder: NewStaticEmbedder()}
	cached := NewCachedEmbedder(inner, 100)
	defer cached.Close()
	ctx := context.Background()

	first, err := cached.Embed(ctx, "repeated query")
	require.NoError(t, err)
	second, err := cached.Embed(ctx, "repeated query")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int64(1), inner.calls.Load())
	assert.Equal(t, 1, cached.Len())
}

func TestCachedEmbedder_BatchMixesHitsAndMisses(t *testing.T) {
	inner := &countingEmbedder{StaticEmbedder: NewStaticEmbedder()}
	cached := NewCachedEmbedder(inner, 100)
	defer cached.Close()
	ctx := context.Background()

	_, err := cached.Embed(ctx, "warm")
	require.NoError(t, err)

	vecs, err := cached.EmbedBatch(ctx, []string{"warm", "cold-1", "cold-2"})
	require.NoError(t, err)
	require.Len(t, vecs, 3)

	// Only the two cold texts hit the inner embedder.
	assert.Equal(t, int64(3), inner.calls.Load())

	warm, err := cached.Embed(ctx, "warm")
	require.NoError(t, err)
	assert.Equal(t, warm, vecs[0])
}

func TestCachedEmbedder_EmptyBatch(t *testing.T) {
	cached := NewCachedEmbedder(NewStaticEmbedder(), 10)
	defer cached.Close()

	vecs, err := cached.EmbedBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, vecs)
}

// flakyEmbedder fails a fixed number of times with a retryable error.
type flakyEmbedder struct {
	*StaticEmbedder
	failures  int
	permanent bool
}

func (f *flakyEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if f.failures > 0 {
		f.failures--
		if f.permanent {
			return nil, errors.ValidationError("bad input", nil)
		}
		return nil, errors.New(errors.ErrCodeEmbedTimeout, "timeout", nil)
	}
	return f.StaticEmbedder.EmbedBatch(ctx, texts)
}

func TestRetryEmbedder_RecoversFromTransientFailure(t *testing.T) {
	inner := &flakyEmbedder{StaticEmbedder: NewStaticEmbedder(), failures: 2}
	r := NewRetryEmbedder(inner, 3)
	defer r.Close()

	vecs, err := r.EmbedBatch(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Len(t, vecs, 2)
}

func TestRetryEmbedder_DoesNotRetryPermanentErrors(t *testing.T) {
	inner := &flakyEmbedder{StaticEmbedder: NewStaticEmbedder(), failures: 10, permanent: true}
	r := NewRetryEmbedder(inner, 5)
	defer r.Close()

	_, err := r.EmbedBatch(context.Background(), []string{"a"})
	require.Error(t, err)
	// One initial attempt, no retries: nine budgeted failures remain.
	assert.Equal(t, 9, inner.failures)
}

func TestNewEmbedder_BuildsStack(t *testing.T) {
	e, err := NewEmbedder(configEmbedding("static"))
	require.NoError(t, err)
	defer e.Close()

	assert.Equal(t, StaticDimensions, e.Dimensions())
	assert.Equal(t, "static", e.ModelName())
}

func TestNewEmbedder_RejectsUnknownProvider(t *testing.T) {
	_, err := NewEmbedder(configEmbedding("remote"))
	assert.Error(t, err)
}
