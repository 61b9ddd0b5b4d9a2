// Package openai implements generator.Generator on the OpenAI Chat
// Completions API and compatible servers.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/http"
	"strings"

	"github.com/papercomputeco/reel/pkg/llm"
	"github.com/papercomputeco/reel/pkg/llm/generator"
	"github.com/papercomputeco/reel/pkg/sse"
)

const (
	DefaultBaseURL = "https://api.openai.com"
	DefaultModel   = "gpt-4o-mini"

	doneSentinel = "[DONE]"
)

type Config struct {
	BaseURL    string
	APIKey     string
	Model      string
	MaxTokens  int64
	HTTPClient *http.Client
}

type Generator struct {
	baseURL    string
	apiKey     string
	model      string
	maxTokens  int64
	httpClient *http.Client
}

func New(c Config) (*Generator, error) {
	g := &Generator{
		baseURL:    strings.TrimSuffix(c.BaseURL, "/"),
		apiKey:     c.APIKey,
		model:      c.Model,
		maxTokens:  c.MaxTokens,
		httpClient: c.HTTPClient,
	}
	if g.baseURL == "" {
		g.baseURL = DefaultBaseURL
	}
	if g.baseURL == DefaultBaseURL && g.apiKey == "" {
		return nil, errors.New("openai API key is required")
	}
	if g.model == "" {
		g.model = DefaultModel
	}
	if g.httpClient == nil {
		g.httpClient = &http.Client{}
	}
	return g, nil
}

func (g *Generator) post(ctx context.Context, system string, history []llm.Message, stream bool) (*http.Response, error) {
	req := chatRequest{
		Model:     g.model,
		MaxTokens: g.maxTokens,
		Stream:    stream,
		Messages:  make([]chatMessage, 0, len(history)+1),
	}
	if system != "" {
		req.Messages = append(req.Messages, chatMessage{Role: "system", Content: system})
	}
	for _, m := range history {
		req.Messages = append(req.Messages, chatMessage{Role: m.Role, Content: m.Content})
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/v1/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if g.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+g.apiKey)
	}
	if stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	}

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("openai chat completions: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)

		var apiErr errorResponse
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error.Message != "" {
			return nil, fmt.Errorf("openai returned status %d: %s", resp.StatusCode, apiErr.Error.Message)
		}
		return nil, fmt.Errorf("openai returned status %d: %s", resp.StatusCode, string(body))
	}
	return resp, nil
}

func (g *Generator) Generate(ctx context.Context, system string, history []llm.Message) (string, error) {
	resp, err := g.post(ctx, system, history, false)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decoding openai response: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", errors.New("openai returned no choices")
	}
	return out.Choices[0].Message.Content, nil
}

func (g *Generator) GenerateStream(ctx context.Context, system string, history []llm.Message) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		resp, err := g.post(ctx, system, history, true)
		if err != nil {
			yield("", err)
			return
		}
		defer resp.Body.Close()

		reader := sse.NewReader(resp.Body)
		for {
			ev, err := reader.Next()
			if err != nil {
				yield("", fmt.Errorf("reading openai stream: %w", err))
				return
			}
			if ev == nil {
				yield("", io.ErrUnexpectedEOF)
				return
			}
			if ev.Data == doneSentinel {
				return
			}

			var chunk chatChunk
			if err := json.Unmarshal([]byte(ev.Data), &chunk); err != nil {
				yield("", fmt.Errorf("decoding openai chunk: %w", err))
				return
			}
			for _, choice := range chunk.Choices {
				if choice.Index != 0 || choice.Delta.Content == "" {
					continue
				}
				if !yield(choice.Delta.Content, nil) {
					return
				}
			}
		}
	}
}

func (g *Generator) Close() error {
	return nil
}

var _ generator.Generator = (*Generator)(nil)
