package embed

import (
	"fmt"
	"strings"

	"github.com/ShankarKakumani/eywa/internal/config"
)

// NewEmbedder builds the configured embedder stack:
// provider -> retry -> cache.
func NewEmbedder(cfg config.EmbeddingConfig) (Embedder, error) {
	var base Embedder

	switch strings.ToLower(cfg.Provider) {
	case "", "static":
		base = NewStaticEmbedder()
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s", cfg.Provider)
	}

	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}

	cacheSize := cfg.CacheSize
	if cacheSize <= 0 {
		cacheSize = DefaultEmbeddingCacheSize
	}

	return NewCachedEmbedder(NewRetryEmbedder(base, maxRetries), cacheSize), nil
}
