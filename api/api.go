package api

import (
	"errors"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	apimcp "github.com/papercomputeco/reel/api/mcp"
)

// Server is the API server for conversations and exchanges.
type Server struct {
	config Config
	logger *zap.Logger
	app    *fiber.App
}

// NewServer creates a new API server.
func NewServer(config Config, logger *zap.Logger) (*Server, error) {
	if config.Controller == nil {
		return nil, errors.New("exchange controller is required")
	}
	if config.Resolver == nil {
		return nil, errors.New("identity resolver is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		config: config,
		logger: logger,
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler:          s.handleError,
	})
	s.app = app

	app.Get("/ping", s.handlePing)

	v1 := app.Group("/v1", s.authenticate)
	v1.Post("/conversations", s.handleCreateConversation)
	v1.Get("/conversations", s.handleListConversations)
	v1.Get("/conversations/:id", s.handleGetConversation)
	v1.Delete("/conversations/:id", s.handleDeleteConversation)
	v1.Get("/conversations/:id/turns", s.handleListTurns)
	v1.Post("/conversations/:id/messages", s.handleSendMessage)
	v1.Post("/conversations/:id/messages/stream", s.handleStreamMessage)
	v1.Get("/memory/search", s.handleMemorySearch)

	if !config.DisableMCP {
		mcpServer, err := apimcp.NewServer(apimcp.Config{
			Searcher: config.Controller,
			Resolver: config.Resolver,
			Logger:   logger,
		})
		if err != nil {
			return nil, err
		}
		app.All("/mcp", adaptor.HTTPHandler(mcpServer.Handler()))
	}

	return s, nil
}

// Run starts the API server on the configured address.
func (s *Server) Run() error {
	s.logger.Info("starting API server",
		zap.String("listen", s.config.ListenAddr),
	)
	return s.app.Listen(s.config.ListenAddr)
}

// Shutdown gracefully shuts down the API server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}
