// Package api provides the HTTP API for conversations, exchanges and memory.
package api

import (
	"github.com/papercomputeco/reel/pkg/exchange"
	"github.com/papercomputeco/reel/pkg/identity"
)

// Config is the API server configuration.
type Config struct {
	// ListenAddr is the address to listen on (e.g., ":8081")
	ListenAddr string

	// Controller runs exchanges and conversation operations.
	Controller *exchange.Controller

	// Resolver turns bearer tokens into owner IDs.
	Resolver identity.Resolver

	// DisableMCP skips mounting the MCP server at /mcp.
	DisableMCP bool
}
