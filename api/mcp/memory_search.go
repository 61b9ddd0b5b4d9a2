package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"
)

var (
	memorySearchToolName    = "memory_search"
	memorySearchDescription = "Search the caller's archived conversations. Returns the most similar fragments of older exchanges, each a short transcript of Requester and Generator lines."
)

// MemorySearchInput represents the input arguments for the memory_search tool.
type MemorySearchInput struct {
	Query string `json:"query" jsonschema:"the text to find similar past exchanges for"`
}

// MemorySearchResult is one archived fragment.
type MemorySearchResult struct {
	Content        string    `json:"content"`
	Score          float32   `json:"score"`
	ConversationID string    `json:"conversation_id"`
	ArchivedAt     time.Time `json:"archived_at"`
}

// MemorySearchOutput represents the output of the memory_search tool.
type MemorySearchOutput struct {
	Query   string               `json:"query"`
	Results []MemorySearchResult `json:"results"`
	Count   int                  `json:"count"`
}

func toolError(format string, args ...any) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{
			&mcp.TextContent{Text: fmt.Sprintf(format, args...)},
		},
	}
}

// memorySearch returns the memory_search handler bound to ownerID.
func (s *Server) memorySearch(ownerID string) mcp.ToolHandlerFor[MemorySearchInput, MemorySearchOutput] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input MemorySearchInput) (*mcp.CallToolResult, MemorySearchOutput, error) {
		logger := s.config.Logger

		logger.Debug("MCP memory search request",
			zap.String("owner_id", ownerID),
			zap.String("query", input.Query),
		)

		fragments, err := s.config.Searcher.SearchMemory(ctx, ownerID, input.Query)
		if err != nil {
			return toolError("Memory search failed: %v", err), MemorySearchOutput{}, nil
		}

		output := MemorySearchOutput{
			Query:   input.Query,
			Results: make([]MemorySearchResult, 0, len(fragments)),
		}
		for _, f := range fragments {
			output.Results = append(output.Results, MemorySearchResult{
				Content:        f.Content,
				Score:          f.Score,
				ConversationID: f.ConversationID,
				ArchivedAt:     f.ArchivedAt,
			})
		}
		output.Count = len(output.Results)

		jsonBytes, err := json.Marshal(output)
		if err != nil {
			return toolError("Failed to serialize results: %v", err), MemorySearchOutput{}, nil
		}

		return &mcp.CallToolResult{
			Content: []mcp.Content{
				&mcp.TextContent{Text: string(jsonBytes)},
			},
		}, output, nil
	}
}
