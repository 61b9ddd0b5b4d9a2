// Package genai implements generator.Generator on Google's Gemini API.
package genai

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"google.golang.org/genai"

	"github.com/papercomputeco/reel/pkg/llm"
	"github.com/papercomputeco/reel/pkg/llm/generator"
)

const DefaultModel = "gemini-2.5-flash"

type Config struct {
	APIKey    string
	Model     string
	MaxTokens int64

	// BaseURL overrides the Gemini endpoint, mainly for tests.
	BaseURL string
}

type Generator struct {
	client    *genai.Client
	model     string
	maxTokens int32
}

func New(ctx context.Context, c Config) (*Generator, error) {
	if c.APIKey == "" {
		return nil, errors.New("genai API key is required")
	}

	cc := &genai.ClientConfig{
		APIKey:  c.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if c.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: c.BaseURL}
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}

	model := c.Model
	if model == "" {
		model = DefaultModel
	}

	return &Generator{
		client:    client,
		model:     model,
		maxTokens: int32(c.MaxTokens),
	}, nil
}

func (g *Generator) request(system string, history []llm.Message) ([]*genai.Content, *genai.GenerateContentConfig) {
	contents := make([]*genai.Content, 0, len(history))
	for _, m := range history {
		role := genai.Role(genai.RoleUser)
		if m.Role == llm.RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Content, role))
	}

	cfg := &genai.GenerateContentConfig{}
	if system != "" {
		cfg.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}
	if g.maxTokens > 0 {
		cfg.MaxOutputTokens = g.maxTokens
	}
	return contents, cfg
}

func (g *Generator) Generate(ctx context.Context, system string, history []llm.Message) (string, error) {
	contents, cfg := g.request(system, history)
	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, cfg)
	if err != nil {
		return "", fmt.Errorf("genai generate: %w", err)
	}
	return resp.Text(), nil
}

func (g *Generator) GenerateStream(ctx context.Context, system string, history []llm.Message) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		contents, cfg := g.request(system, history)
		for resp, err := range g.client.Models.GenerateContentStream(ctx, g.model, contents, cfg) {
			if err != nil {
				yield("", fmt.Errorf("genai stream: %w", err))
				return
			}
			text := resp.Text()
			if text == "" {
				continue
			}
			if !yield(text, nil) {
				return
			}
		}
	}
}

func (g *Generator) Close() error {
	return nil
}

var _ generator.Generator = (*Generator)(nil)
