package embed

import (
	"context"

	"github.com/ShankarKakumani/eywa/internal/errors"
)

// RetryEmbedder wraps an Embedder with exponential backoff retry.
// Only retryable failures (timeouts, provider unavailable) are
// retried; validation and permanent errors surface immediately.
type RetryEmbedder struct {
	inner Embedder
	cfg   errors.RetryConfig
}

// NewRetryEmbedder creates a retrying embedder with up to maxRetries attempts.
func NewRetryEmbedder(inner Embedder, maxRetries int) *RetryEmbedder {
	cfg := errors.DefaultRetryConfig()
	if maxRetries > 0 {
		cfg.MaxRetries = maxRetries
	}
	cfg.ShouldRetry = errors.IsRetryable
	return &RetryEmbedder{inner: inner, cfg: cfg}
}

// Embed generates the embedding for a single text with retry.
func (r *RetryEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return errors.RetryWithResult(ctx, r.cfg, func() ([]float32, error) {
		return r.inner.Embed(ctx, text)
	})
}

// EmbedBatch generates embeddings for multiple texts with retry.
// The whole batch is retried; providers treat batches atomically.
func (r *RetryEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return errors.RetryWithResult(ctx, r.cfg, func() ([][]float32, error) {
		return r.inner.EmbedBatch(ctx, texts)
	})
}

// Dimensions returns the embedding dimension (passthrough to inner).
func (r *RetryEmbedder) Dimensions() int {
	return r.inner.Dimensions()
}

// ModelName returns the model identifier (passthrough to inner).
func (r *RetryEmbedder) ModelName() string {
	return r.inner.ModelName()
}

// Close releases resources and closes the inner embedder.
func (r *RetryEmbedder) Close() error {
	return r.inner.Close()
}
