package storage

import (
	"time"

	"github.com/google/uuid"
)

// Origin tags which party produced a turn.
type Origin string

const (
	OriginRequester Origin = "requester"
	OriginGenerator Origin = "generator"
)

// Valid reports whether o is one of the two known origins.
func (o Origin) Valid() bool {
	return o == OriginRequester || o == OriginGenerator
}

// Conversation is a titled, persona-tagged thread owned by one user.
type Conversation struct {
	ID           string    `json:"id"`
	OwnerID      string    `json:"ownerId"`
	Title        string    `json:"title"`
	Persona      string    `json:"persona"`
	TurnCount    int       `json:"turnCount"`
	LastActivity time.Time `json:"lastActivity"`
	ArchivedOnce bool      `json:"archivedOnce"`

	// ArchivedTurns is the number of oldest turns already written to the
	// long-term archive.
	ArchivedTurns int       `json:"archivedTurns"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Turn is one immutable message within a conversation.
type Turn struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	Origin         Origin    `json:"origin"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"createdAt"`

	// Seq breaks CreatedAt ties; it increases with insertion order.
	Seq int64 `json:"-"`
}

// NewTurn builds a turn with a fresh ID and timestamp.
func NewTurn(conversationID string, origin Origin, content string) *Turn {
	return &Turn{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Origin:         origin,
		Content:        content,
		CreatedAt:      time.Now().UTC(),
	}
}

// Prepare fills the ID and timestamps of a conversation about to be created.
func (c *Conversation) Prepare(now time.Time) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	if c.LastActivity.IsZero() {
		c.LastActivity = c.CreatedAt
	}
}

// Prepare fills the ID and timestamp of a turn about to be appended.
func (t *Turn) Prepare(now time.Time) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
}

// Before orders turns by CreatedAt, then Seq.
func (t *Turn) Before(other *Turn) bool {
	if t.CreatedAt.Equal(other.CreatedAt) {
		return t.Seq < other.Seq
	}
	return t.CreatedAt.Before(other.CreatedAt)
}
