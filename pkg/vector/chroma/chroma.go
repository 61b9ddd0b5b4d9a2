// Package chroma provides a Chroma vector database driver implementation.
package chroma

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/papercomputeco/reel/pkg/vector"
)

const (
	// DefaultCollectionName is the default collection name for storing reel embeddings.
	DefaultCollectionName = "reel"

	collectionsPath = "/api/v2/tenants/default_tenant/databases/default_database/collections"
)

// ChromaDriver implements vector.VectorDriver using Chroma's REST API.
// All namespaces share one cosine collection and are separated with a
// metadata filter on every request.
type ChromaDriver struct {
	baseURL        string
	collectionName string
	collectionID   string
	dimensions     uint
	httpClient     *http.Client
	logger         *zap.Logger
}

// Config holds configuration for the Chroma driver.
type Config struct {
	// URL is the Chroma server URL (e.g., "http://localhost:8000").
	URL string

	// CollectionName is the name of the collection to use.
	// Defaults to DefaultCollectionName if empty.
	CollectionName string

	// Dimensions is the vector length every record must have.
	Dimensions uint

	// HTTPClient overrides the default client. Used by tests.
	HTTPClient *http.Client

	// MaxRetries bounds how often connecting is retried while Chroma is
	// still starting up. Zero means a single attempt.
	MaxRetries int

	// RetryDelay is the first backoff delay; it doubles up to MaxRetryDelay.
	RetryDelay    time.Duration
	MaxRetryDelay time.Duration
}

// NewChromaDriver creates a new Chroma vector driver.
func NewChromaDriver(ctx context.Context, c Config, logger *zap.Logger) (*ChromaDriver, error) {
	if c.URL == "" {
		return nil, fmt.Errorf("chroma URL is required")
	}
	if c.Dimensions == 0 {
		return nil, fmt.Errorf("chroma embedding dimensions cannot be 0, must be configured")
	}

	collectionName := c.CollectionName
	if collectionName == "" {
		collectionName = DefaultCollectionName
	}

	httpClient := c.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}

	d := &ChromaDriver{
		baseURL:        c.URL,
		collectionName: collectionName,
		dimensions:     c.Dimensions,
		httpClient:     httpClient,
		logger:         logger,
	}

	collectionID, err := d.connect(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("%w: getting or creating collection %q: %w", vector.ErrConnection, collectionName, err)
	}
	d.collectionID = collectionID

	logger.Info("connected to Chroma",
		zap.String("url", c.URL),
		zap.String("collection", collectionName),
		zap.String("collection_id", collectionID),
	)

	return d, nil
}

// connect retries getOrCreateCollection with exponential backoff.
func (d *ChromaDriver) connect(ctx context.Context, c Config) (string, error) {
	delay := c.RetryDelay
	if delay <= 0 {
		delay = 500 * time.Millisecond
	}
	maxDelay := c.MaxRetryDelay
	if maxDelay <= 0 {
		maxDelay = 10 * time.Second
	}

	var lastErr error
	for attempt := 0; attempt <= c.MaxRetries; attempt++ {
		id, err := d.getOrCreateCollection(ctx)
		if err == nil {
			return id, nil
		}
		lastErr = err

		if attempt == c.MaxRetries {
			break
		}

		d.logger.Warn("chroma not ready, retrying",
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay),
			zap.Error(err),
		)

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(delay):
		}
		delay = min(delay*2, maxDelay)
	}

	return "", lastErr
}

func (d *ChromaDriver) getOrCreateCollection(ctx context.Context) (string, error) {
	var collection chromaCollection
	status, err := d.do(ctx, http.MethodGet, collectionsPath+"/"+d.collectionName, nil, &collection)
	if err == nil {
		return collection.ID, nil
	}
	if status != http.StatusNotFound {
		return "", err
	}

	create := chromaCreateCollectionRequest{
		Name:     d.collectionName,
		Metadata: map[string]string{"hnsw:space": "cosine"},
	}
	if _, err := d.do(ctx, http.MethodPost, collectionsPath, create, &collection); err != nil {
		return "", fmt.Errorf("creating collection: %w", err)
	}

	return collection.ID, nil
}

func (d *ChromaDriver) recordsPath(op string) string {
	return fmt.Sprintf("%s/%s/%s", collectionsPath, d.collectionID, op)
}

// do sends a JSON request and decodes a JSON response into out when out
// is non-nil. It returns the HTTP status when a response was received.
func (d *ChromaDriver) do(ctx context.Context, method, path string, body, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("marshaling request: %w", err)
		}
		reader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, d.baseURL+path, reader)
	if err != nil {
		return 0, fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		respBody, _ := io.ReadAll(resp.Body)
		return resp.StatusCode, fmt.Errorf("status %d: %s", resp.StatusCode, string(respBody))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decoding response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

// Upsert stores records in the namespace, replacing existing IDs.
func (d *ChromaDriver) Upsert(ctx context.Context, namespace string, records []vector.Record) error {
	if err := vector.ValidateRecords(namespace, d.dimensions, records); err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}

	req := chromaUpsertRequest{
		IDs:        make([]string, len(records)),
		Embeddings: make([][]float32, len(records)),
		Metadatas:  make([]map[string]string, len(records)),
		Documents:  make([]string, len(records)),
	}
	for i, r := range records {
		req.IDs[i] = r.ID
		req.Embeddings[i] = r.Embedding
		req.Metadatas[i] = r.Metadata.ToMap(namespace)
		req.Documents[i] = r.Content
	}

	if _, err := d.do(ctx, http.MethodPost, d.recordsPath("upsert"), req, nil); err != nil {
		return fmt.Errorf("failed to upsert records: %w", err)
	}

	d.logger.Debug("upserted records to chroma",
		zap.String("namespace", namespace),
		zap.Int("count", len(records)),
	)

	return nil
}

// Query finds the topK most similar records of the namespace.
func (d *ChromaDriver) Query(ctx context.Context, namespace string, embedding []float32, topK int) ([]vector.Match, error) {
	if namespace == "" {
		return nil, vector.ErrNamespaceRequired
	}
	if err := vector.CheckDimensions(d.dimensions, embedding); err != nil {
		return nil, err
	}
	if topK <= 0 {
		return []vector.Match{}, nil
	}

	req := chromaQueryRequest{
		QueryEmbeddings: [][]float32{embedding},
		NResults:        topK,
		Where:           map[string]any{vector.KeyNamespace: namespace},
		Include:         []string{"metadatas", "distances", "documents"},
	}

	var resp chromaQueryResponse
	if _, err := d.do(ctx, http.MethodPost, d.recordsPath("query"), req, &resp); err != nil {
		return nil, fmt.Errorf("failed to query: %w", err)
	}

	matches := []vector.Match{}

	// Only one query embedding is sent, so only the first group matters.
	if len(resp.IDs) == 0 {
		return matches, nil
	}

	for i, id := range resp.IDs[0] {
		m := vector.Match{Record: vector.Record{ID: id}}

		if len(resp.Metadatas) > 0 && i < len(resp.Metadatas[0]) {
			m.Metadata = vector.MetadataFromMap(resp.Metadatas[0][i])
		}
		if len(resp.Documents) > 0 && i < len(resp.Documents[0]) {
			m.Content = resp.Documents[0][i]
		}
		if len(resp.Distances) > 0 && i < len(resp.Distances[0]) {
			m.Score = vector.ScoreFromCosineDistance(resp.Distances[0][i])
		}

		matches = append(matches, m)
	}

	d.logger.Debug("queried chroma",
		zap.String("namespace", namespace),
		zap.Int("results", len(matches)),
	)

	return matches, nil
}

// DeleteConversation removes the conversation's records from the namespace.
func (d *ChromaDriver) DeleteConversation(ctx context.Context, namespace, conversationID string) error {
	req := chromaDeleteRequest{
		Where: map[string]any{
			"$and": []map[string]any{
				{vector.KeyNamespace: namespace},
				{vector.KeyConversationID: conversationID},
			},
		},
	}

	if _, err := d.do(ctx, http.MethodPost, d.recordsPath("delete"), req, nil); err != nil {
		return fmt.Errorf("failed to delete records: %w", err)
	}
	return nil
}

func (d *ChromaDriver) Dimensions() uint {
	return d.dimensions
}

// Close releases resources held by the driver.
func (d *ChromaDriver) Close() error {
	// HTTP client doesn't require explicit cleanup
	return nil
}
