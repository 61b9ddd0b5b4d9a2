package exchange

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/papercomputeco/reel/pkg/memory"
	"github.com/papercomputeco/reel/pkg/persona"
	"github.com/papercomputeco/reel/pkg/storage"
	"github.com/papercomputeco/reel/pkg/utils"
	"github.com/papercomputeco/reel/pkg/vector"
)

const (
	defaultTitle   = "New conversation"
	maxTitleLength = 120
)

// CreateConversation starts an empty conversation for ownerID. An empty
// persona selects the default persona.
func (c *Controller) CreateConversation(ctx context.Context, ownerID, title, personaTag string) (*storage.Conversation, error) {
	if personaTag == "" {
		personaTag = persona.Default
	}
	if !persona.Valid(personaTag) {
		return nil, &ValidationError{
			Field:  "persona",
			Reason: "must be one of " + strings.Join(persona.Tags(), ", "),
		}
	}

	title = strings.TrimSpace(title)
	if title == "" {
		title = defaultTitle
	}

	conv := &storage.Conversation{
		OwnerID: ownerID,
		Title:   utils.Truncate(title, maxTitleLength),
		Persona: personaTag,
	}
	if err := c.config.Store.CreateConversation(ctx, conv); err != nil {
		return nil, err
	}

	c.logger.Info("conversation created",
		zap.String("conversation_id", conv.ID),
		zap.String("owner_id", ownerID),
		zap.String("persona", personaTag),
	)
	return conv, nil
}

// ListConversations returns ownerID's conversations, most recent first.
func (c *Controller) ListConversations(ctx context.Context, ownerID string) ([]*storage.Conversation, error) {
	return c.config.Store.ListConversations(ctx, ownerID)
}

// GetConversation returns a conversation owned by ownerID.
func (c *Controller) GetConversation(ctx context.Context, id, ownerID string) (*storage.Conversation, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}
	return memory.OwnedConversation(ctx, c.config.Store, id, ownerID)
}

// Turns returns every turn of a conversation owned by ownerID.
func (c *Controller) Turns(ctx context.Context, id, ownerID string) ([]*storage.Turn, error) {
	conv, err := c.GetConversation(ctx, id, ownerID)
	if err != nil {
		return nil, err
	}
	return c.config.Store.Turns(ctx, conv.ID)
}

// DeleteConversation removes a conversation and its turns. Archive records
// are retained unless cascade delete is configured.
func (c *Controller) DeleteConversation(ctx context.Context, id, ownerID string) error {
	conv, err := c.GetConversation(ctx, id, ownerID)
	if err != nil {
		return err
	}

	if err := c.config.Store.DeleteConversation(ctx, conv.ID); err != nil {
		return err
	}

	if c.config.Memory.CascadeDelete && c.config.Index != nil {
		if err := c.config.Index.DeleteConversation(ctx, vector.Namespace(ownerID), conv.ID); err != nil {
			c.logger.Warn("deleting archive records failed",
				zap.String("conversation_id", conv.ID),
				zap.Error(err),
			)
		}
	}

	c.logger.Info("conversation deleted",
		zap.String("conversation_id", conv.ID),
		zap.Bool("archive_dropped", c.config.Memory.CascadeDelete),
	)
	return nil
}

// SearchMemory searches ownerID's long-term archive.
func (c *Controller) SearchMemory(ctx context.Context, ownerID, query string) ([]memory.Fragment, error) {
	if strings.TrimSpace(query) == "" {
		return nil, &ValidationError{Field: "query", Reason: "must not be empty"}
	}
	if c.config.Retriever == nil {
		return []memory.Fragment{}, nil
	}
	return c.config.Retriever.Retrieve(ctx, query, ownerID), nil
}
