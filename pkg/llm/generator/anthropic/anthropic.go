// Package anthropic implements generator.Generator on Anthropic's Messages API.
package anthropic

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/papercomputeco/reel/pkg/llm"
	"github.com/papercomputeco/reel/pkg/llm/generator"
)

const (
	DefaultModel     = "claude-sonnet-4-5"
	DefaultMaxTokens = 2048
)

type Config struct {
	APIKey    string
	Model     string
	MaxTokens int64

	// BaseURL overrides the API endpoint, mainly for tests.
	BaseURL string
}

type Generator struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

func New(c Config) (*Generator, error) {
	if c.APIKey == "" {
		return nil, errors.New("anthropic API key is required")
	}

	opts := []option.RequestOption{option.WithAPIKey(c.APIKey)}
	if c.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(c.BaseURL), option.WithMaxRetries(0))
	}

	model := c.Model
	if model == "" {
		model = DefaultModel
	}
	maxTokens := c.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}

	return &Generator{
		client:    anthropic.NewClient(opts...),
		model:     model,
		maxTokens: maxTokens,
	}, nil
}

func (g *Generator) params(system string, history []llm.Message) anthropic.MessageNewParams {
	history = llm.TrimLeadingAssistant(history)
	msgs := make([]anthropic.MessageParam, 0, len(history))
	for _, m := range history {
		block := anthropic.NewTextBlock(m.Content)
		if m.Role == llm.RoleAssistant {
			msgs = append(msgs, anthropic.NewAssistantMessage(block))
		} else {
			msgs = append(msgs, anthropic.NewUserMessage(block))
		}
	}

	p := anthropic.MessageNewParams{
		Model:     anthropic.Model(g.model),
		MaxTokens: g.maxTokens,
		Messages:  msgs,
	}
	if system != "" {
		p.System = []anthropic.TextBlockParam{{Text: system}}
	}
	return p
}

func (g *Generator) Generate(ctx context.Context, system string, history []llm.Message) (string, error) {
	resp, err := g.client.Messages.New(ctx, g.params(system, history))
	if err != nil {
		return "", fmt.Errorf("anthropic messages: %w", err)
	}

	var b strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	return b.String(), nil
}

func (g *Generator) GenerateStream(ctx context.Context, system string, history []llm.Message) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		stream := g.client.Messages.NewStreaming(ctx, g.params(system, history))
		defer stream.Close()

		for stream.Next() {
			evt, ok := stream.Current().AsAny().(anthropic.ContentBlockDeltaEvent)
			if !ok {
				continue
			}
			delta, ok := evt.Delta.AsAny().(anthropic.TextDelta)
			if !ok || delta.Text == "" {
				continue
			}
			if !yield(delta.Text, nil) {
				return
			}
		}

		if err := stream.Err(); err != nil {
			yield("", fmt.Errorf("anthropic stream: %w", err))
		}
	}
}

func (g *Generator) Close() error {
	return nil
}

var _ generator.Generator = (*Generator)(nil)
