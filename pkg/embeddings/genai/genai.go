// Package genai implements pkg/embeddings' Embedder on Google's Gemini API.
package genai

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"github.com/papercomputeco/reel/pkg/embeddings"
	"github.com/papercomputeco/reel/pkg/vector"
)

const DefaultEmbeddingModel = "gemini-embedding-001"

type EmbedderConfig struct {
	APIKey     string
	Model      string
	Dimensions uint

	// BaseURL overrides the Gemini endpoint, mainly for tests.
	BaseURL string
}

// Embedder generates embeddings with the genai SDK.
type Embedder struct {
	client     *genai.Client
	model      string
	dimensions uint
}

func NewEmbedder(ctx context.Context, cfg EmbedderConfig) (*Embedder, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("genai API key is required")
	}
	if cfg.Dimensions == 0 {
		return nil, fmt.Errorf("genai embedding dimensions cannot be 0, must be configured")
	}

	model := cfg.Model
	if model == "" {
		model = DefaultEmbeddingModel
	}

	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}

	return &Embedder{
		client:     client,
		model:      model,
		dimensions: cfg.Dimensions,
	}, nil
}

func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	out, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// EmbedBatch embeds all texts in one EmbedContent call.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	contents := make([]*genai.Content, len(texts))
	for i, text := range texts {
		contents[i] = genai.NewContentFromText(text, genai.RoleUser)
	}

	dims := int32(e.dimensions)
	result, err := e.client.Models.EmbedContent(ctx, e.model, contents, &genai.EmbedContentConfig{
		TaskType:             "SEMANTIC_SIMILARITY",
		OutputDimensionality: &dims,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: genai embed: %v", vector.ErrEmbedding, err)
	}

	if len(result.Embeddings) != len(texts) {
		return nil, fmt.Errorf("%w: expected %d embeddings, got %d", vector.ErrEmbedding, len(texts), len(result.Embeddings))
	}

	out := make([][]float32, len(result.Embeddings))
	for i, emb := range result.Embeddings {
		if uint(len(emb.Values)) != e.dimensions {
			return nil, fmt.Errorf("%w: model %s returned %d dimensions, configured %d",
				embeddings.ErrDimensionMismatch, e.model, len(emb.Values), e.dimensions)
		}
		out[i] = emb.Values
	}
	return out, nil
}

func (e *Embedder) Dimensions() uint {
	return e.dimensions
}

// Close is a no-op, the genai client holds no releasable resources.
func (e *Embedder) Close() error {
	return nil
}

var _ embeddings.Embedder = (*Embedder)(nil)
