// Package qdrant provides a vector driver on the Qdrant gRPC client.
// All namespaces share one collection with a keyword-indexed namespace
// payload that every request filters on.
package qdrant

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/qdrant/go-client/qdrant"
	"go.uber.org/zap"

	"github.com/papercomputeco/reel/pkg/vector"
)

const (
	// DefaultCollectionName is the default collection for reel records.
	DefaultCollectionName = "reel"

	defaultPort = 6334

	payloadContent = "content"
)

// Config holds configuration for the Qdrant driver.
type Config struct {
	// Target is host or host:port of the gRPC endpoint.
	Target string

	// CollectionName defaults to DefaultCollectionName.
	CollectionName string

	Dimensions uint
	APIKey     string
	UseTLS     bool
}

// QdrantDriver implements vector.VectorDriver on Qdrant.
type QdrantDriver struct {
	client     *qdrant.Client
	collection string
	dimensions uint
	logger     *zap.Logger
}

func NewQdrantDriver(ctx context.Context, c Config, logger *zap.Logger) (*QdrantDriver, error) {
	if c.Target == "" {
		return nil, fmt.Errorf("qdrant target is required")
	}
	if c.Dimensions == 0 {
		return nil, fmt.Errorf("qdrant embedding dimensions cannot be 0, must be configured")
	}

	host, port, err := splitTarget(c.Target)
	if err != nil {
		return nil, err
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		APIKey: c.APIKey,
		UseTLS: c.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", vector.ErrConnection, err)
	}

	collection := c.CollectionName
	if collection == "" {
		collection = DefaultCollectionName
	}

	d := &QdrantDriver{
		client:     client,
		collection: collection,
		dimensions: c.Dimensions,
		logger:     logger,
	}

	if err := d.ensureCollection(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %w", vector.ErrConnection, err)
	}

	logger.Info("connected to Qdrant",
		zap.String("target", c.Target),
		zap.String("collection", collection),
		zap.Uint("dimensions", c.Dimensions),
	)

	return d, nil
}

func splitTarget(target string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(target)
	if err != nil {
		// no port given
		return target, defaultPort, nil
	}

	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("invalid qdrant port %q: %w", portStr, err)
	}
	return host, port, nil
}

func (d *QdrantDriver) ensureCollection(ctx context.Context) error {
	exists, err := d.client.CollectionExists(ctx, d.collection)
	if err != nil {
		return fmt.Errorf("checking collection: %w", err)
	}
	if exists {
		return nil
	}

	err = d.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: d.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(d.dimensions),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("creating collection: %w", err)
	}

	for _, field := range []string{vector.KeyNamespace, vector.KeyConversationID} {
		_, err := d.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: d.collection,
			FieldName:      field,
			FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
		})
		if err != nil {
			return fmt.Errorf("indexing payload field %s: %w", field, err)
		}
	}
	return nil
}

// Upsert stores records in the namespace. Record IDs must be UUIDs.
func (d *QdrantDriver) Upsert(ctx context.Context, namespace string, records []vector.Record) error {
	if err := vector.ValidateRecords(namespace, d.dimensions, records); err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}

	points := make([]*qdrant.PointStruct, len(records))
	for i, r := range records {
		payload := make(map[string]any, 8)
		for k, v := range r.Metadata.ToMap(namespace) {
			payload[k] = v
		}
		payload[payloadContent] = r.Content

		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(r.ID),
			Vectors: qdrant.NewVectors(r.Embedding...),
			Payload: qdrant.NewValueMap(payload),
		}
	}

	wait := true
	_, err := d.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: d.collection,
		Wait:           &wait,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("upserting points: %w", err)
	}

	d.logger.Debug("upserted points to qdrant",
		zap.String("namespace", namespace),
		zap.Int("count", len(points)),
	)
	return nil
}

func (d *QdrantDriver) Query(ctx context.Context, namespace string, embedding []float32, topK int) ([]vector.Match, error) {
	if namespace == "" {
		return nil, vector.ErrNamespaceRequired
	}
	if err := vector.CheckDimensions(d.dimensions, embedding); err != nil {
		return nil, err
	}
	if topK <= 0 {
		return []vector.Match{}, nil
	}

	limit := uint64(topK)
	points, err := d.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: d.collection,
		Query:          qdrant.NewQuery(embedding...),
		Filter: &qdrant.Filter{
			Must: []*qdrant.Condition{qdrant.NewMatch(vector.KeyNamespace, namespace)},
		},
		Limit:       &limit,
		WithPayload: qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("querying points: %w", err)
	}

	matches := make([]vector.Match, 0, len(points))
	for _, p := range points {
		values := make(map[string]string, len(p.GetPayload()))
		for k, v := range p.GetPayload() {
			values[k] = v.GetStringValue()
		}

		matches = append(matches, vector.Match{
			Record: vector.Record{
				ID:       p.GetId().GetUuid(),
				Content:  values[payloadContent],
				Metadata: vector.MetadataFromMap(values),
			},
			Score: vector.Clamp(p.GetScore()),
		})
	}

	d.logger.Debug("queried qdrant",
		zap.String("namespace", namespace),
		zap.Int("results", len(matches)),
	)
	return matches, nil
}

func (d *QdrantDriver) DeleteConversation(ctx context.Context, namespace, conversationID string) error {
	wait := true
	_, err := d.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: d.collection,
		Wait:           &wait,
		Points: qdrant.NewPointsSelectorFilter(&qdrant.Filter{
			Must: []*qdrant.Condition{
				qdrant.NewMatch(vector.KeyNamespace, namespace),
				qdrant.NewMatch(vector.KeyConversationID, conversationID),
			},
		}),
	})
	if err != nil {
		return fmt.Errorf("deleting points: %w", err)
	}
	return nil
}

func (d *QdrantDriver) Dimensions() uint {
	return d.dimensions
}

func (d *QdrantDriver) Close() error {
	return d.client.Close()
}

// dialTimeout bounds the connectivity check in tests and health checks.
const dialTimeout = 3 * time.Second

// Ping verifies the server answers a health check.
func (d *QdrantDriver) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	if _, err := d.client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("%w: %w", vector.ErrConnection, err)
	}
	return nil
}
