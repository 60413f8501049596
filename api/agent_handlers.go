package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/yashdodwani/anymind/pkg/model"
	"github.com/yashdodwani/anymind/pkg/store"
)

// handleListAgents returns the caller's agents. API keys are never
// serialized into the response.
func (s *Server) handleListAgents(c *fiber.Ctx) error {
	agents, err := s.store.ListAgents(c.Context(), wallet(c))
	if err != nil {
		s.logger.Error("listing agents failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "failed to list agents"})
	}

	return c.JSON(agents)
}

// handleCreateAgent registers a new agent configuration for the wallet.
func (s *Server) handleCreateAgent(c *fiber.Ctx) error {
	var req CreateAgentRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "invalid request body"})
	}
	if req.Name == "" || req.Platform == "" {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "name and platform are required"})
	}

	agent := &model.Agent{
		ID:               uuid.New().String(),
		Name:             req.Name,
		DisplayName:      req.DisplayName,
		Platform:         req.Platform,
		Model:            req.Model,
		UserWallet:       wallet(c),
		APIKey:           req.APIKey,
		APIKeyConfigured: req.APIKey != "",
	}

	if err := s.store.PutAgent(c.Context(), agent); err != nil {
		s.logger.Error("storing agent failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "failed to create agent"})
	}

	return c.Status(fiber.StatusCreated).JSON(agent)
}

// handleUpdateAgent changes an agent's display name or model.
func (s *Server) handleUpdateAgent(c *fiber.Ctx) error {
	var req UpdateAgentRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "invalid request body"})
	}

	agent, ok := s.loadAgent(c, c.Params("agent_id"))
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{Error: "Agent not found"})
	}

	if req.DisplayName != nil {
		agent.DisplayName = *req.DisplayName
	}
	if req.Model != nil {
		agent.Model = *req.Model
	}

	if err := s.store.PutAgent(c.Context(), agent); err != nil {
		s.logger.Error("updating agent failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "failed to update agent"})
	}

	return c.JSON(agent)
}

// handleDeleteAgent removes an agent and cascades to its chats, their
// messages, and their memories.
func (s *Server) handleDeleteAgent(c *fiber.Ctx) error {
	ctx := c.Context()
	agentID := c.Params("agent_id")
	w := wallet(c)

	agent, ok := s.loadAgent(c, agentID)
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{Error: "Agent not found"})
	}

	chatIDs, err := s.store.ListChatIDs(ctx, agent.ID, w)
	if err != nil {
		s.logger.Error("listing chats for agent deletion failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "failed to delete agent"})
	}

	for _, chatID := range chatIDs {
		chat, err := s.store.GetChat(ctx, chatID)
		if err != nil {
			continue
		}
		if err := s.orchestrator.DeleteChatMemories(ctx, chat); err != nil {
			s.logger.Warn("deleting chat memories failed",
				zap.String("chat_id", chatID),
				zap.Error(err),
			)
		}
		if err := s.store.DeleteChat(ctx, chatID, agent.ID, w); err != nil {
			s.logger.Error("deleting chat during agent cascade failed",
				zap.String("chat_id", chatID),
				zap.Error(err),
			)
			return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "failed to delete agent"})
		}
	}

	if err := s.store.DeleteAgent(ctx, agent.ID, w); err != nil {
		s.logger.Error("deleting agent failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "failed to delete agent"})
	}

	return c.JSON(StatusResponse{Success: true, Message: "Agent deleted successfully"})
}

// loadAgent fetches an agent and applies wallet scoping. A false return
// means not found (or owned by someone else, indistinguishable by design).
func (s *Server) loadAgent(c *fiber.Ctx, id string) (*model.Agent, bool) {
	agent, err := s.store.GetAgent(c.Context(), id)
	if err != nil {
		if !store.IsNotFound(err) {
			s.logger.Error("loading agent failed", zap.String("agent_id", id), zap.Error(err))
		}
		return nil, false
	}
	if w := wallet(c); w != "" && agent.UserWallet != "" && agent.UserWallet != w {
		return nil, false
	}
	return agent, true
}
