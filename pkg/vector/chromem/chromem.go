// Package chromem provides an embedded vector driver on chromem-go.
// Each namespace maps to its own collection.
package chromem

import (
	"context"
	"errors"
	"fmt"
	"sync"

	chromem "github.com/philippgille/chromem-go"
	"go.uber.org/zap"

	"github.com/papercomputeco/reel/pkg/vector"
)

// Config holds configuration for the chromem driver.
type Config struct {
	// Path persists collections to a directory. Empty keeps everything in
	// memory.
	Path string

	// Dimensions is the vector length every record must have.
	Dimensions uint
}

// ChromemDriver implements vector.VectorDriver on chromem-go.
type ChromemDriver struct {
	db          *chromem.DB
	dimensions  uint
	logger      *zap.Logger
	mu          sync.Mutex
	collections map[string]*chromem.Collection
}

var errNoEmbeddingFunc = errors.New("chromem collections only accept precomputed embeddings")

// noEmbed is installed on collections so chromem never reaches for its
// default remote embedding provider.
func noEmbed(context.Context, string) ([]float32, error) {
	return nil, errNoEmbeddingFunc
}

func NewChromemDriver(c Config, logger *zap.Logger) (*ChromemDriver, error) {
	if c.Dimensions == 0 {
		return nil, fmt.Errorf("chromem embedding dimensions cannot be 0, must be configured")
	}

	db := chromem.NewDB()
	if c.Path != "" {
		var err error
		db, err = chromem.NewPersistentDB(c.Path, false)
		if err != nil {
			return nil, fmt.Errorf("opening chromem database: %w", err)
		}
	}

	logger.Info("chromem vector driver initialized",
		zap.String("path", c.Path),
		zap.Uint("dimensions", c.Dimensions),
	)

	return &ChromemDriver{
		db:          db,
		dimensions:  c.Dimensions,
		logger:      logger,
		collections: make(map[string]*chromem.Collection),
	}, nil
}

func (d *ChromemDriver) collection(namespace string) (*chromem.Collection, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if col, ok := d.collections[namespace]; ok {
		return col, nil
	}

	col, err := d.db.GetOrCreateCollection(namespace, nil, noEmbed)
	if err != nil {
		return nil, fmt.Errorf("getting collection %q: %w", namespace, err)
	}

	d.collections[namespace] = col
	return col, nil
}

func (d *ChromemDriver) Upsert(ctx context.Context, namespace string, records []vector.Record) error {
	if err := vector.ValidateRecords(namespace, d.dimensions, records); err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}

	col, err := d.collection(namespace)
	if err != nil {
		return err
	}

	docs := make([]chromem.Document, len(records))
	for i, r := range records {
		docs[i] = chromem.Document{
			ID:        r.ID,
			Content:   r.Content,
			Embedding: r.Embedding,
			Metadata:  r.Metadata.ToMap(namespace),
		}
	}

	if err := col.AddDocuments(ctx, docs, 1); err != nil {
		return fmt.Errorf("adding documents: %w", err)
	}

	d.logger.Debug("added documents to chromem",
		zap.String("namespace", namespace),
		zap.Int("count", len(docs)),
	)
	return nil
}

func (d *ChromemDriver) Query(ctx context.Context, namespace string, embedding []float32, topK int) ([]vector.Match, error) {
	if namespace == "" {
		return nil, vector.ErrNamespaceRequired
	}
	if err := vector.CheckDimensions(d.dimensions, embedding); err != nil {
		return nil, err
	}

	col, err := d.collection(namespace)
	if err != nil {
		return nil, err
	}

	// chromem rejects nResults larger than the collection
	n := min(topK, col.Count())
	if n <= 0 {
		return []vector.Match{}, nil
	}

	results, err := col.QueryEmbedding(ctx, embedding, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("querying chromem: %w", err)
	}

	matches := make([]vector.Match, 0, len(results))
	for _, r := range results {
		matches = append(matches, vector.Match{
			Record: vector.Record{
				ID:        r.ID,
				Content:   r.Content,
				Embedding: r.Embedding,
				Metadata:  vector.MetadataFromMap(r.Metadata),
			},
			Score: vector.Clamp(r.Similarity),
		})
	}

	d.logger.Debug("queried chromem",
		zap.String("namespace", namespace),
		zap.Int("results", len(matches)),
	)
	return matches, nil
}

func (d *ChromemDriver) DeleteConversation(ctx context.Context, namespace, conversationID string) error {
	col, err := d.collection(namespace)
	if err != nil {
		return err
	}
	if col.Count() == 0 {
		return nil
	}

	if err := col.Delete(ctx, map[string]string{vector.KeyConversationID: conversationID}, nil); err != nil {
		return fmt.Errorf("deleting conversation records: %w", err)
	}
	return nil
}

func (d *ChromemDriver) Dimensions() uint {
	return d.dimensions
}

// Close is a no-op; persistent databases write through on every add.
func (d *ChromemDriver) Close() error {
	return nil
}
