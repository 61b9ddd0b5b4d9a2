package api

import (
	"bufio"
	"context"
	"encoding/json"

	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/papercomputeco/reel/pkg/exchange"
	"github.com/papercomputeco/reel/pkg/identity"
	"github.com/papercomputeco/reel/pkg/sse"
	"github.com/papercomputeco/reel/pkg/storage"
)

const ownerLocal = "owner_id"

// CreateConversationRequest is the body of POST /v1/conversations.
type CreateConversationRequest struct {
	Title   string `json:"title"`
	Persona string `json:"persona"`
}

// MessageRequest is the body of the message endpoints.
type MessageRequest struct {
	Content string `json:"content"`
}

// handlePing returns a simple health check response.
func (s *Server) handlePing(c *fiber.Ctx) error {
	return c.JSON("pong")
}

// authenticate resolves the bearer token to an owner ID for every /v1 route.
func (s *Server) authenticate(c *fiber.Ctx) error {
	token, ok := identity.BearerToken(c.Get(fiber.HeaderAuthorization))
	if !ok {
		return identity.ErrUnauthorized
	}

	owner, err := s.config.Resolver.Resolve(c.UserContext(), token)
	if err != nil {
		return identity.ErrUnauthorized
	}

	c.Locals(ownerLocal, owner)
	return c.Next()
}

func owner(c *fiber.Ctx) string {
	id, _ := c.Locals(ownerLocal).(string)
	return id
}

func parseBody(c *fiber.Ctx, out any) error {
	if len(c.Body()) == 0 {
		return nil
	}
	if err := json.Unmarshal(c.Body(), out); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	return nil
}

// handleCreateConversation handles POST /v1/conversations.
func (s *Server) handleCreateConversation(c *fiber.Ctx) error {
	var req CreateConversationRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	conv, err := s.config.Controller.CreateConversation(c.UserContext(), owner(c), req.Title, req.Persona)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(conv)
}

// handleListConversations handles GET /v1/conversations.
func (s *Server) handleListConversations(c *fiber.Ctx) error {
	convs, err := s.config.Controller.ListConversations(c.UserContext(), owner(c))
	if err != nil {
		return err
	}
	if convs == nil {
		convs = []*storage.Conversation{}
	}
	return c.JSON(convs)
}

// handleGetConversation handles GET /v1/conversations/:id.
func (s *Server) handleGetConversation(c *fiber.Ctx) error {
	conv, err := s.config.Controller.GetConversation(c.UserContext(), c.Params("id"), owner(c))
	if err != nil {
		return err
	}
	return c.JSON(conv)
}

// handleDeleteConversation handles DELETE /v1/conversations/:id.
func (s *Server) handleDeleteConversation(c *fiber.Ctx) error {
	if err := s.config.Controller.DeleteConversation(c.UserContext(), c.Params("id"), owner(c)); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// handleListTurns handles GET /v1/conversations/:id/turns.
func (s *Server) handleListTurns(c *fiber.Ctx) error {
	turns, err := s.config.Controller.Turns(c.UserContext(), c.Params("id"), owner(c))
	if err != nil {
		return err
	}
	if turns == nil {
		turns = []*storage.Turn{}
	}
	return c.JSON(turns)
}

// handleSendMessage handles POST /v1/conversations/:id/messages.
func (s *Server) handleSendMessage(c *fiber.Ctx) error {
	var req MessageRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	result, err := s.config.Controller.Send(c.UserContext(), exchange.Request{
		ConversationID: c.Params("id"),
		OwnerID:        owner(c),
		Message:        req.Content,
	})
	if err != nil {
		return err
	}
	return c.JSON(result)
}

// handleStreamMessage handles POST /v1/conversations/:id/messages/stream.
// Errors before the first event are ordinary JSON errors; later failures
// arrive as an error event.
func (s *Server) handleStreamMessage(c *fiber.Ctx) error {
	var req MessageRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	// The body is written after the handler returns, so the stream gets
	// its own context, cancelled when the client stops reading.
	ctx, cancel := context.WithCancel(context.Background())
	events, err := s.config.Controller.Stream(ctx, exchange.Request{
		ConversationID: c.Params("id"),
		OwnerID:        owner(c),
		Message:        req.Content,
	})
	if err != nil {
		cancel()
		return err
	}

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")

	logger := s.logger.With(zap.String("conversation_id", c.Params("id")))
	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		defer cancel()
		for ev := range events {
			data, err := json.Marshal(ev)
			if err != nil {
				logger.Error("encoding stream event", zap.Error(err))
				return
			}
			if err := sse.Write(w, sse.Event{Data: string(data)}); err != nil {
				logger.Debug("stream client gone", zap.Error(err))
				return
			}
			if err := w.Flush(); err != nil {
				logger.Debug("stream client gone", zap.Error(err))
				return
			}
		}
	}))
	return nil
}

// handleMemorySearch handles GET /v1/memory/search?query=.
func (s *Server) handleMemorySearch(c *fiber.Ctx) error {
	fragments, err := s.config.Controller.SearchMemory(c.UserContext(), owner(c), c.Query("query"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"query":     c.Query("query"),
		"fragments": fragments,
		"count":     len(fragments),
	})
}
