// Package vector provides the namespaced vector index that backs the
// long-term conversation archive.
package vector

import (
	"context"
	"math"
	"strconv"
	"time"
)

// Metadata travels with every archived record.
type Metadata struct {
	ConversationID string
	OwnerID        string
	Kind           string
	ArchivedAt     time.Time

	// FirstTurn and LastTurn are zero-based ordinals of the turns the record
	// was built from, inclusive.
	FirstTurn int
	LastTurn  int
}

// Record is one write-once entry in the index.
type Record struct {
	ID        string
	Content   string
	Embedding []float32
	Metadata  Metadata
}

// Match is a query hit.
type Match struct {
	Record

	// Score is the cosine similarity clamped to [0, 1]; higher is closer.
	Score float32
}

// VectorDriver stores and searches embeddings partitioned by namespace.
// Every read and write is scoped to exactly one namespace.
type VectorDriver interface {
	// Upsert stores records in the namespace. Records with an existing ID
	// are replaced.
	Upsert(ctx context.Context, namespace string, records []Record) error

	// Query returns at most topK records of the namespace ordered by
	// descending score.
	Query(ctx context.Context, namespace string, embedding []float32, topK int) ([]Match, error)

	// DeleteConversation removes every record of the namespace that was
	// archived from the given conversation.
	DeleteConversation(ctx context.Context, namespace, conversationID string) error

	// Dimensions is the vector length the index was created with.
	Dimensions() uint

	// Close releases any resources held by the driver.
	Close() error
}

// Namespace returns the partition that holds an owner's records.
func Namespace(ownerID string) string {
	return "user_" + ownerID
}

// Metadata keys used by drivers that persist metadata as flat maps.
const (
	KeyNamespace      = "namespace"
	KeyConversationID = "conversation_id"
	KeyOwnerID        = "owner_id"
	KeyKind           = "kind"
	KeyArchivedAt     = "archived_at"
	KeyFirstTurn      = "first_turn"
	KeyLastTurn       = "last_turn"
)

// ToMap flattens metadata into string pairs, tagged with the namespace.
func (m Metadata) ToMap(namespace string) map[string]string {
	return map[string]string{
		KeyNamespace:      namespace,
		KeyConversationID: m.ConversationID,
		KeyOwnerID:        m.OwnerID,
		KeyKind:           m.Kind,
		KeyArchivedAt:     m.ArchivedAt.UTC().Format(time.RFC3339Nano),
		KeyFirstTurn:      strconv.Itoa(m.FirstTurn),
		KeyLastTurn:       strconv.Itoa(m.LastTurn),
	}
}

// MetadataFromMap is the inverse of ToMap. Malformed values are left zero.
func MetadataFromMap(values map[string]string) Metadata {
	m := Metadata{
		ConversationID: values[KeyConversationID],
		OwnerID:        values[KeyOwnerID],
		Kind:           values[KeyKind],
	}
	if at, err := time.Parse(time.RFC3339Nano, values[KeyArchivedAt]); err == nil {
		m.ArchivedAt = at
	}
	m.FirstTurn, _ = strconv.Atoi(values[KeyFirstTurn])
	m.LastTurn, _ = strconv.Atoi(values[KeyLastTurn])
	return m
}

// CosineSimilarity returns the cosine similarity of a and b clamped to
// [0, 1]. Mismatched lengths and zero vectors score 0.
func CosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}

	return Clamp(float32(dot / (math.Sqrt(normA) * math.Sqrt(normB))))
}

// ScoreFromCosineDistance converts a cosine distance (1 - similarity) into
// a clamped score.
func ScoreFromCosineDistance(distance float64) float32 {
	return Clamp(float32(1 - distance))
}

// Clamp bounds a score to [0, 1].
func Clamp(score float32) float32 {
	switch {
	case score < 0:
		return 0
	case score > 1:
		return 1
	default:
		return score
	}
}
