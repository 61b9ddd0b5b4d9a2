// Package storage defines the turn store: conversations and their
// append-only turn logs.
package storage

import (
	"context"
	"time"
)

// Driver defines the interface for persisting conversations and turns.
// Turns are immutable once appended; conversation counters only move forward.
type Driver interface {
	// CreateConversation stores a new conversation. ID, CreatedAt and
	// LastActivity are filled in when empty.
	CreateConversation(ctx context.Context, conv *Conversation) error

	// GetConversation retrieves a conversation by ID.
	GetConversation(ctx context.Context, id string) (*Conversation, error)

	// ListConversations returns the owner's conversations, most recently
	// active first.
	ListConversations(ctx context.Context, ownerID string) ([]*Conversation, error)

	// DeleteConversation removes a conversation and all of its turns.
	DeleteConversation(ctx context.Context, id string) error

	// AppendTurn persists a turn. ID and CreatedAt are filled in when empty
	// and Seq is always assigned by the store.
	AppendTurn(ctx context.Context, turn *Turn) error

	// RecentTurns returns at most limit of the newest turns in chronological
	// order (oldest first).
	RecentTurns(ctx context.Context, conversationID string, limit int) ([]*Turn, error)

	// Turns returns every turn of a conversation in chronological order.
	Turns(ctx context.Context, conversationID string) ([]*Turn, error)

	// RecordExchange atomically adds delta to the turn count, sets
	// LastActivity to at, and returns the new turn count.
	RecordExchange(ctx context.Context, conversationID string, delta int, at time.Time) (int, error)

	// MarkArchived sets ArchivedOnce and advances the archive watermark to
	// through. The watermark never moves backwards.
	MarkArchived(ctx context.Context, conversationID string, through int) error

	// Close closes the store and releases any resources.
	Close() error
}
