// Package mcp serves the memory_search tool over the Model Context Protocol.
package mcp

import (
	"context"
	"errors"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/papercomputeco/reel/pkg/identity"
	"github.com/papercomputeco/reel/pkg/memory"
	"github.com/papercomputeco/reel/pkg/utils"
)

// Searcher searches one owner's long-term archive.
type Searcher interface {
	SearchMemory(ctx context.Context, ownerID, query string) ([]memory.Fragment, error)
}

type Config struct {
	// Searcher answers memory_search calls.
	Searcher Searcher

	// Resolver authenticates the bearer token of every MCP request. Tool
	// calls only see the resolved owner's archive.
	Resolver identity.Resolver

	// Logger is the configured zap logger
	Logger *zap.Logger
}

type Server struct {
	config  Config
	handler http.Handler
}

type ownerKey struct{}

// NewServer creates a new MCP server with the memory_search tool.
func NewServer(c Config) (*Server, error) {
	if c.Searcher == nil {
		return nil, errors.New("searcher is required")
	}
	if c.Resolver == nil {
		return nil, errors.New("identity resolver is required")
	}
	if c.Logger == nil {
		return nil, errors.New("logger is required")
	}

	s := &Server{config: c}

	// Stateless: every HTTP request gets a server bound to its caller.
	streamable := mcp.NewStreamableHTTPHandler(
		s.serverFor,
		&mcp.StreamableHTTPOptions{
			Stateless: true,
		},
	)
	s.handler = s.authenticate(streamable)

	return s, nil
}

// Handler returns the HTTP handler for the MCP server.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := identity.BearerToken(r.Header.Get("Authorization"))
		if !ok {
			http.Error(w, identity.ErrUnauthorized.Error(), http.StatusUnauthorized)
			return
		}

		owner, err := s.config.Resolver.Resolve(r.Context(), token)
		if err != nil {
			http.Error(w, identity.ErrUnauthorized.Error(), http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ownerKey{}, owner)))
	})
}

func (s *Server) serverFor(r *http.Request) *mcp.Server {
	owner, _ := r.Context().Value(ownerKey{}).(string)

	server := mcp.NewServer(
		&mcp.Implementation{
			Name:    "reel",
			Version: utils.Version,
		},
		&mcp.ServerOptions{},
	)

	mcp.AddTool(server, &mcp.Tool{
		Name:        memorySearchToolName,
		Description: memorySearchDescription,
	}, s.memorySearch(owner))

	return server
}
