package memory

import (
	"fmt"

	"github.com/papercomputeco/reel/pkg/embeddings"
	"github.com/papercomputeco/reel/pkg/vector"
)

// CheckDimensions verifies that the configuration, the embedder and the
// index agree on the vector length. A mismatch is a fatal configuration
// error at startup.
func CheckDimensions(c Config, embedder embeddings.Embedder, index vector.VectorDriver) error {
	if got := embedder.Dimensions(); got != c.Dimensions {
		return fmt.Errorf("%w: embedder produces %d dimensions, configured %d",
			embeddings.ErrDimensionMismatch, got, c.Dimensions)
	}
	if got := index.Dimensions(); got != c.Dimensions {
		return fmt.Errorf("%w: vector index holds %d dimensions, configured %d",
			embeddings.ErrDimensionMismatch, got, c.Dimensions)
	}
	return nil
}
