// Package inmemory provides a map-backed storage driver for tests and
// ephemeral servers.
package inmemory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/papercomputeco/reel/pkg/storage"
)

// Driver implements storage.Driver using in-memory maps.
type Driver struct {
	// mu guards every map below
	mu sync.RWMutex

	conversations map[string]*storage.Conversation

	// turns holds each conversation's log in insertion order
	turns map[string][]*storage.Turn

	seq int64
}

// NewDriver creates a new in-memory storer.
func NewDriver() *Driver {
	return &Driver{
		conversations: make(map[string]*storage.Conversation),
		turns:         make(map[string][]*storage.Turn),
	}
}

func (s *Driver) CreateConversation(_ context.Context, conv *storage.Conversation) error {
	if conv == nil {
		return errors.New("cannot store nil conversation")
	}
	conv.Prepare(time.Now().UTC())

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.conversations[conv.ID]; ok {
		return errors.New("conversation already exists: " + conv.ID)
	}

	stored := *conv
	s.conversations[conv.ID] = &stored
	return nil
}

func (s *Driver) GetConversation(_ context.Context, id string) (*storage.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.conversations[id]
	if !ok {
		return nil, storage.NotFoundError{ID: id}
	}

	out := *conv
	return &out, nil
}

func (s *Driver) ListConversations(_ context.Context, ownerID string) ([]*storage.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*storage.Conversation, 0)
	for _, conv := range s.conversations {
		if conv.OwnerID == ownerID {
			out := *conv
			result = append(result, &out)
		}
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].LastActivity.After(result[j].LastActivity)
	})
	return result, nil
}

func (s *Driver) DeleteConversation(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.conversations[id]; !ok {
		return storage.NotFoundError{ID: id}
	}

	delete(s.conversations, id)
	delete(s.turns, id)
	return nil
}

func (s *Driver) AppendTurn(_ context.Context, turn *storage.Turn) error {
	if turn == nil {
		return errors.New("cannot store nil turn")
	}
	if !turn.Origin.Valid() {
		return errors.New("invalid turn origin: " + string(turn.Origin))
	}
	turn.Prepare(time.Now().UTC())

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.conversations[turn.ConversationID]; !ok {
		return storage.NotFoundError{ID: turn.ConversationID}
	}

	s.seq++
	turn.Seq = s.seq

	stored := *turn
	s.turns[turn.ConversationID] = append(s.turns[turn.ConversationID], &stored)
	return nil
}

func (s *Driver) RecentTurns(ctx context.Context, conversationID string, limit int) ([]*storage.Turn, error) {
	all, err := s.Turns(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	if limit >= 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	return all, nil
}

func (s *Driver) Turns(_ context.Context, conversationID string) ([]*storage.Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.conversations[conversationID]; !ok {
		return nil, storage.NotFoundError{ID: conversationID}
	}

	log := s.turns[conversationID]
	result := make([]*storage.Turn, len(log))
	for i, t := range log {
		out := *t
		result[i] = &out
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Before(result[j])
	})
	return result, nil
}

func (s *Driver) RecordExchange(_ context.Context, conversationID string, delta int, at time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[conversationID]
	if !ok {
		return 0, storage.NotFoundError{ID: conversationID}
	}

	conv.TurnCount += delta
	conv.LastActivity = at
	return conv.TurnCount, nil
}

func (s *Driver) MarkArchived(_ context.Context, conversationID string, through int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[conversationID]
	if !ok {
		return storage.NotFoundError{ID: conversationID}
	}

	conv.ArchivedOnce = true
	if through > conv.ArchivedTurns {
		conv.ArchivedTurns = through
	}
	return nil
}

func (s *Driver) Close() error {
	return nil
}
