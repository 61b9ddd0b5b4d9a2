// Package ollama implements generator.Generator on Ollama's /api/chat.
package ollama

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/http"

	"github.com/papercomputeco/reel/pkg/llm"
	"github.com/papercomputeco/reel/pkg/llm/generator"
)

const (
	DefaultModel   = "llama3.2"
	DefaultBaseURL = "http://localhost:11434"
)

type Config struct {
	BaseURL    string
	Model      string
	MaxTokens  int64
	HTTPClient *http.Client
}

type Generator struct {
	baseURL    string
	model      string
	maxTokens  int64
	httpClient *http.Client
}

func New(c Config) *Generator {
	g := &Generator{
		baseURL:    c.BaseURL,
		model:      c.Model,
		maxTokens:  c.MaxTokens,
		httpClient: c.HTTPClient,
	}
	if g.baseURL == "" {
		g.baseURL = DefaultBaseURL
	}
	if g.model == "" {
		g.model = DefaultModel
	}
	if g.httpClient == nil {
		// no client timeout, streams are bounded by ctx
		g.httpClient = &http.Client{}
	}
	return g
}

func (g *Generator) post(ctx context.Context, system string, history []llm.Message, stream bool) (*http.Response, error) {
	req := chatRequest{
		Model:    g.model,
		Stream:   stream,
		Messages: make([]chatMessage, 0, len(history)+1),
	}
	if system != "" {
		req.Messages = append(req.Messages, chatMessage{Role: "system", Content: system})
	}
	for _, m := range history {
		req.Messages = append(req.Messages, chatMessage{Role: m.Role, Content: m.Content})
	}
	if g.maxTokens > 0 {
		req.Options = &chatOptions{NumPredict: g.maxTokens}
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/api/chat", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("ollama chat: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("ollama returned status %d: %s", resp.StatusCode, string(body))
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
		return "", fmt.Errorf("decoding ollama response: %w", err)
	}
	if out.Error != "" {
		return "", errors.New(out.Error)
	}
	return out.Message.Content, nil
}

func (g *Generator) GenerateStream(ctx context.Context, system string, history []llm.Message) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		resp, err := g.post(ctx, system, history, true)
		if err != nil {
			yield("", err)
			return
		}
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := scanner.Bytes()
			if len(bytes.TrimSpace(line)) == 0 {
				continue
			}

			var chunk chatResponse
			if err := json.Unmarshal(line, &chunk); err != nil {
				yield("", fmt.Errorf("decoding ollama chunk: %w", err))
				return
			}
			if chunk.Error != "" {
				yield("", errors.New(chunk.Error))
				return
			}
			if chunk.Message.Content != "" && !yield(chunk.Message.Content, nil) {
				return
			}
			if chunk.Done {
				return
			}
		}

		if err := scanner.Err(); err != nil {
			yield("", fmt.Errorf("reading ollama stream: %w", err))
			return
		}
		yield("", io.ErrUnexpectedEOF)
	}
}

func (g *Generator) Close() error {
	return nil
}

var _ generator.Generator = (*Generator)(nil)
