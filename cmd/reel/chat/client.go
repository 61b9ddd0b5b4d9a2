package chatcmder

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/papercomputeco/reel/api"
	"github.com/papercomputeco/reel/pkg/exchange"
	"github.com/papercomputeco/reel/pkg/sse"
	"github.com/papercomputeco/reel/pkg/storage"
)

// errConversationGone is returned when the saved conversation no longer
// exists for the caller.
var errConversationGone = errors.New("conversation not found")

// client talks to a running reel API server.
type client struct {
	target string
	token  string
	http   *http.Client
}

func newClient(target, token string) *client {
	return &client{
		target: strings.TrimRight(target, "/"),
		token:  token,
		http: &http.Client{
			// LLM responses can be slow
			Timeout: 5 * time.Minute,
		},
	}
}

func (c *client) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshaling request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.target+path, reader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending request to %s: %w", c.target, err)
	}
	return resp, nil
}

// statusError reads an ErrorResponse body into an error.
func statusError(resp *http.Response) error {
	if resp.StatusCode == http.StatusNotFound {
		return errConversationGone
	}

	var body api.ErrorResponse
	data, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(data, &body); err != nil || body.Error == "" {
		return fmt.Errorf("server returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	return fmt.Errorf("server returned status %d: %s", resp.StatusCode, body.Error)
}

func (c *client) createConversation(ctx context.Context, title, persona string) (*storage.Conversation, error) {
	resp, err := c.do(ctx, http.MethodPost, "/v1/conversations", api.CreateConversationRequest{
		Title:   title,
		Persona: persona,
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return nil, statusError(resp)
	}

	conv := &storage.Conversation{}
	if err := json.NewDecoder(resp.Body).Decode(conv); err != nil {
		return nil, fmt.Errorf("decoding conversation: %w", err)
	}
	return conv, nil
}

func (c *client) getConversation(ctx context.Context, id string) (*storage.Conversation, error) {
	resp, err := c.do(ctx, http.MethodGet, "/v1/conversations/"+id, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp)
	}

	conv := &storage.Conversation{}
	if err := json.NewDecoder(resp.Body).Decode(conv); err != nil {
		return nil, fmt.Errorf("decoding conversation: %w", err)
	}
	return conv, nil
}

// stream sends content and calls onChunk for every chunk event. It returns
// the done event, or an error for an error event or a stream that ends
// without one.
func (c *client) stream(ctx context.Context, conversationID, content string, onChunk func(string)) (*exchange.Event, error) {
	resp, err := c.do(ctx, http.MethodPost, "/v1/conversations/"+conversationID+"/messages/stream", api.MessageRequest{
		Content: content,
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp)
	}

	reader := sse.NewReader(resp.Body)
	for {
		raw, err := reader.Next()
		if err != nil {
			return nil, fmt.Errorf("reading stream: %w", err)
		}
		if raw == nil {
			return nil, errors.New("stream ended without a reply")
		}

		var ev exchange.Event
		if err := json.Unmarshal([]byte(raw.Data), &ev); err != nil {
			return nil, fmt.Errorf("parsing stream event: %w", err)
		}

		switch ev.Type {
		case exchange.EventChunk:
			onChunk(ev.Content)
		case exchange.EventDone:
			return &ev, nil
		case exchange.EventError:
			return nil, errors.New(ev.Message)
		}
	}
}
