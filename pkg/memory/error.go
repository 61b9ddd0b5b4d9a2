package memory

import (
	"context"
	"errors"

	"github.com/papercomputeco/reel/pkg/storage"
)

// ErrNotFound is returned for conversations that do not exist and for
// conversations owned by someone else. Callers cannot tell the two apart.
var ErrNotFound = errors.New("conversation not found")

// OwnedConversation loads a conversation and checks that ownerID owns it.
func OwnedConversation(ctx context.Context, store storage.Driver, id, ownerID string) (*storage.Conversation, error) {
	conv, err := store.GetConversation(ctx, id)
	if err != nil {
		var nf storage.NotFoundError
		if errors.As(err, &nf) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if conv.OwnerID != ownerID {
		return nil, ErrNotFound
	}
	return conv, nil
}
