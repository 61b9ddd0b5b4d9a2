// Package embeddingutils is the embeddings utility package
package embeddingutils

import (
	"context"
	"fmt"

	"github.com/papercomputeco/reel/pkg/embeddings"
	"github.com/papercomputeco/reel/pkg/embeddings/cache"
	"github.com/papercomputeco/reel/pkg/embeddings/genai"
	"github.com/papercomputeco/reel/pkg/embeddings/ollama"
)

type NewEmbedderOpts struct {
	ProviderType string
	TargetURL    string
	Model        string
	APIKey       string
	Dimensions   uint

	// CacheSize wraps the embedder in a cache when positive.
	CacheSize int64
}

func NewEmbedder(ctx context.Context, o *NewEmbedderOpts) (embeddings.Embedder, error) {
	var (
		e   embeddings.Embedder
		err error
	)

	switch o.ProviderType {
	case "ollama":
		e, err = ollama.NewEmbedder(ollama.EmbedderConfig{
			BaseURL:    o.TargetURL,
			Model:      o.Model,
			Dimensions: o.Dimensions,
		})
	case "genai":
		e, err = genai.NewEmbedder(ctx, genai.EmbedderConfig{
			APIKey:     o.APIKey,
			Model:      o.Model,
			Dimensions: o.Dimensions,
			BaseURL:    o.TargetURL,
		})
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", o.ProviderType)
	}
	if err != nil {
		return nil, err
	}

	if o.CacheSize > 0 {
		return cache.New(e, o.CacheSize)
	}
	return e, nil
}
