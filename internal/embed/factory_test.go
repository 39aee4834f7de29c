package embed

import (
	"github.com/ShankarKakumani/eywa/internal/config"
)

func configEmbedding(provider string) config.EmbeddingConfig {
	return config.EmbeddingConfig{
		Provider:   provider,
		Model:      "eywa-static",
		BatchSize:  8,
		CacheSize:  64,
		MaxRetries: 2,
	}
}
