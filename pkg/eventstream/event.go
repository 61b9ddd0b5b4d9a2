package eventstream

import (
	"time"

	"github.com/google/uuid"
)

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypeExchangeCompleted is emitted after both turns of an exchange
	// are persisted.
	EventTypeExchangeCompleted = "reel.exchange.completed"
)

// ExchangeEvent is a transport-neutral event payload for a completed
// exchange. It carries identifiers and sizes, never turn content.
type ExchangeEvent struct {
	SchemaVersion int       `json:"schema_version"`
	EventType     string    `json:"event_type"`
	EventID       string    `json:"event_id"`
	EmittedAt     time.Time `json:"emitted_at"`

	ConversationID  string `json:"conversation_id"`
	OwnerID         string `json:"owner_id"`
	Persona         string `json:"persona"`
	RequesterTurnID string `json:"requester_turn_id"`
	GeneratorTurnID string `json:"generator_turn_id"`

	// TurnCount is the conversation's count after this exchange.
	TurnCount int `json:"turn_count"`

	Exchange ExchangeMeta `json:"exchange"`
}

// ExchangeMeta captures request lifecycle metadata for the event.
type ExchangeMeta struct {
	StartedAt      time.Time `json:"started_at"`
	CompletedAt    time.Time `json:"completed_at"`
	DurationMs     int64     `json:"duration_ms"`
	Streaming      bool      `json:"streaming"`
	FragmentCount  int       `json:"fragment_count"`
	ReplyCharCount int       `json:"reply_char_count"`
	ArchiveQueued  bool      `json:"archive_queued"`
}

// NewExchangeEvent fills the envelope fields of an event.
func NewExchangeEvent(now time.Time) *ExchangeEvent {
	return &ExchangeEvent{
		SchemaVersion: SchemaVersionV1,
		EventType:     EventTypeExchangeCompleted,
		EventID:       "evt_" + uuid.NewString(),
		EmittedAt:     now,
	}
}
