// Package embeddings turns text into vectors for the memory archive.
package embeddings

import (
	"context"
	"errors"
)

// ErrDimensionMismatch is returned when a provider yields vectors whose
// length differs from the configured dimensions.
var ErrDimensionMismatch = errors.New("embedding dimensions do not match configuration")

// Embedder provides text embedding capabilities.
type Embedder interface {
	// Embed converts text into a vector embedding.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch embeds texts in one call where the provider allows it.
	// The result has one vector per input, in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions is the length of every vector this embedder returns.
	Dimensions() uint

	// Close releases any resources held by the embedder.
	Close() error
}
