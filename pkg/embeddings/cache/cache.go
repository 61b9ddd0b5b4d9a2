// Package cache memoizes embeddings in a bounded ristretto cache.
package cache

import (
	"context"
	"fmt"

	"github.com/dgraph-io/ristretto"

	"github.com/papercomputeco/reel/pkg/embeddings"
	"github.com/papercomputeco/reel/pkg/vector"
)

// Embedder decorates another Embedder. Retrieval embeds the same user
// message once per exchange, and chat clients often resend identical
// prompts, so repeated texts skip the provider round trip.
type Embedder struct {
	next  embeddings.Embedder
	cache *ristretto.Cache
}

// New wraps next with a cache holding at most size vectors.
func New(next embeddings.Embedder, size int64) (*Embedder, error) {
	if size <= 0 {
		return nil, fmt.Errorf("embedding cache size must be positive, got %d", size)
	}

	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: size * 10,
		MaxCost:     size,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("creating embedding cache: %w", err)
	}

	return &Embedder{next: next, cache: c}, nil
}

func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if v, ok := e.cache.Get(text); ok {
		return v.([]float32), nil
	}

	emb, err := e.next.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	e.cache.Set(text, emb, 1)
	return emb, nil
}

// EmbedBatch serves cached texts locally and sends the rest to the
// wrapped embedder in a single batch.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var (
		missing []string
		idx     []int
	)
	for i, text := range texts {
		if v, ok := e.cache.Get(text); ok {
			out[i] = v.([]float32)
			continue
		}
		missing = append(missing, text)
		idx = append(idx, i)
	}

	if len(missing) == 0 {
		return out, nil
	}

	fresh, err := e.next.EmbedBatch(ctx, missing)
	if err != nil {
		return nil, err
	}
	if len(fresh) != len(missing) {
		return nil, fmt.Errorf("%w: expected %d embeddings, got %d", vector.ErrEmbedding, len(missing), len(fresh))
	}
	for j, emb := range fresh {
		out[idx[j]] = emb
		e.cache.Set(missing[j], emb, 1)
	}
	return out, nil
}

func (e *Embedder) Dimensions() uint {
	return e.next.Dimensions()
}

// Wait blocks until pending cache writes are visible to Get.
func (e *Embedder) Wait() {
	e.cache.Wait()
}

func (e *Embedder) Close() error {
	e.cache.Close()
	return e.next.Close()
}

var _ embeddings.Embedder = (*Embedder)(nil)
