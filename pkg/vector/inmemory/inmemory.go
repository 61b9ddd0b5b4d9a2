// Package inmemory provides a brute-force vector driver for tests.
package inmemory

import (
	"context"
	"sort"
	"sync"

	"github.com/papercomputeco/reel/pkg/vector"
)

// Driver implements vector.VectorDriver with exhaustive cosine search.
type Driver struct {
	mu         sync.RWMutex
	dimensions uint
	namespaces map[string]map[string]vector.Record
}

func NewDriver(dimensions uint) *Driver {
	return &Driver{
		dimensions: dimensions,
		namespaces: make(map[string]map[string]vector.Record),
	}
}

func (d *Driver) Upsert(_ context.Context, namespace string, records []vector.Record) error {
	if err := vector.ValidateRecords(namespace, d.dimensions, records); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	ns, ok := d.namespaces[namespace]
	if !ok {
		ns = make(map[string]vector.Record)
		d.namespaces[namespace] = ns
	}
	for _, r := range records {
		r.Embedding = append([]float32(nil), r.Embedding...)
		ns[r.ID] = r
	}
	return nil
}

func (d *Driver) Query(_ context.Context, namespace string, embedding []float32, topK int) ([]vector.Match, error) {
	if namespace == "" {
		return nil, vector.ErrNamespaceRequired
	}
	if err := vector.CheckDimensions(d.dimensions, embedding); err != nil {
		return nil, err
	}
	if topK <= 0 {
		return []vector.Match{}, nil
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	matches := make([]vector.Match, 0, len(d.namespaces[namespace]))
	for _, r := range d.namespaces[namespace] {
		matches = append(matches, vector.Match{
			Record: r,
			Score:  vector.CosineSimilarity(embedding, r.Embedding),
		})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score == matches[j].Score {
			return matches[i].ID < matches[j].ID
		}
		return matches[i].Score > matches[j].Score
	})

	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

func (d *Driver) DeleteConversation(_ context.Context, namespace, conversationID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for id, r := range d.namespaces[namespace] {
		if r.Metadata.ConversationID == conversationID {
			delete(d.namespaces[namespace], id)
		}
	}
	return nil
}

// Count returns how many records a namespace holds.
func (d *Driver) Count(namespace string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.namespaces[namespace])
}

// Records returns a snapshot of a namespace.
func (d *Driver) Records(namespace string) []vector.Record {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]vector.Record, 0, len(d.namespaces[namespace]))
	for _, r := range d.namespaces[namespace] {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Metadata.FirstTurn < out[j].Metadata.FirstTurn
	})
	return out
}

func (d *Driver) Dimensions() uint {
	return d.dimensions
}

func (d *Driver) Close() error {
	return nil
}
