package api

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/yashdodwani/anymind/pkg/store"
	"github.com/yashdodwani/anymind/pkg/turn"
)

// walletHeader carries the caller's wallet address. Signature verification is
// out of scope; the header value is trusted as-is.
const walletHeader = "X-Wallet-Address"

// Server is the HTTP API server.
type Server struct {
	config       Config
	store        store.Driver
	orchestrator *turn.Orchestrator
	logger       *zap.Logger
	app          *fiber.App
}

// NewServer creates the API server. The store and orchestrator are injected
// so they can be shared with the worker pool and CLI wiring.
func NewServer(config Config, storer store.Driver, orchestrator *turn.Orchestrator, logger *zap.Logger) *Server {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	s := &Server{
		config:       config,
		store:        storer,
		orchestrator: orchestrator,
		logger:       logger,
		app:          app,
	}

	app.Get("/ping", s.handlePing)

	agents := app.Group("/api/v1/agents")
	agents.Get("/", s.handleListAgents)
	agents.Post("/", s.requireWallet, s.handleCreateAgent)
	agents.Put("/:agent_id", s.requireWallet, s.handleUpdateAgent)
	agents.Delete("/:agent_id", s.requireWallet, s.handleDeleteAgent)

	agents.Get("/:agent_id/chats", s.handleListChats)
	agents.Post("/:agent_id/chats", s.requireWallet, s.handleCreateChat)
	agents.Get("/:agent_id/chats/:chat_id", s.handleGetChat)
	agents.Put("/:agent_id/chats/:chat_id", s.handleUpdateChat)
	agents.Delete("/:agent_id/chats/:chat_id", s.handleDeleteChat)

	agents.Get("/:agent_id/chats/:chat_id/messages", s.handleGetMessages)
	agents.Post("/:agent_id/chats/:chat_id/messages", s.requireWallet, s.handleSendMessage)
	agents.Post("/:agent_id/chats/:chat_id/messages/stream", s.requireWallet, s.handleStreamMessage)
	agents.Get("/:agent_id/chats/:chat_id/memories", s.requireWallet, s.handleChatMemories)

	return s
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

// handlePing returns a simple health check response.
func (s *Server) handlePing(c *fiber.Ctx) error {
	return c.JSON("pong")
}

// wallet returns the caller's wallet address, or "" when absent.
func wallet(c *fiber.Ctx) string {
	return c.Get(walletHeader)
}

// requireWallet rejects requests that carry no wallet address.
func (s *Server) requireWallet(c *fiber.Ctx) error {
	if wallet(c) == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(ErrorResponse{Error: "Wallet address required"})
	}
	return c.Next()
}
