// Package generatorutils builds a generator.Generator from configuration.
package generatorutils

import (
	"context"
	"fmt"

	"github.com/papercomputeco/reel/pkg/llm/generator"
	"github.com/papercomputeco/reel/pkg/llm/generator/anthropic"
	"github.com/papercomputeco/reel/pkg/llm/generator/genai"
	"github.com/papercomputeco/reel/pkg/llm/generator/ollama"
	"github.com/papercomputeco/reel/pkg/llm/generator/openai"
)

type NewGeneratorOpts struct {
	ProviderType string
	Target       string
	Model        string
	APIKey       string
	MaxTokens    int64
}

func NewGenerator(ctx context.Context, o *NewGeneratorOpts) (generator.Generator, error) {
	switch o.ProviderType {
	case "anthropic":
		return anthropic.New(anthropic.Config{
			APIKey:    o.APIKey,
			Model:     o.Model,
			MaxTokens: o.MaxTokens,
			BaseURL:   o.Target,
		})
	case "genai":
		return genai.New(ctx, genai.Config{
			APIKey:    o.APIKey,
			Model:     o.Model,
			MaxTokens: o.MaxTokens,
			BaseURL:   o.Target,
		})
	case "ollama":
		return ollama.New(ollama.Config{
			BaseURL:   o.Target,
			Model:     o.Model,
			MaxTokens: o.MaxTokens,
		}), nil
	case "openai":
		return openai.New(openai.Config{
			BaseURL:   o.Target,
			APIKey:    o.APIKey,
			Model:     o.Model,
			MaxTokens: o.MaxTokens,
		})
	default:
		return nil, fmt.Errorf("unsupported generator provider: %s", o.ProviderType)
	}
}
