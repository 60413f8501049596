package api

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/yashdodwani/anymind/pkg/model"
	"github.com/yashdodwani/anymind/pkg/store"
)

// handleListChats returns all chats bound to the agent, scoped to the
// caller's wallet.
func (s *Server) handleListChats(c *fiber.Ctx) error {
	ctx := c.Context()
	agentID := c.Params("agent_id")

	ids, err := s.store.ListChatIDs(ctx, agentID, wallet(c))
	if err != nil {
		s.logger.Error("listing chats failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "failed to list chats"})
	}

	chats := make([]*model.Chat, 0, len(ids))
	for _, id := range ids {
		chat, err := s.store.GetChat(ctx, id)
		if err != nil {
			s.logger.Warn("chat listed but not loadable",
				zap.String("chat_id", id),
				zap.Error(err),
			)
			continue
		}
		chats = append(chats, chat)
	}

	return c.JSON(chats)
}

// handleCreateChat creates a chat bound to the agent.
func (s *Server) handleCreateChat(c *fiber.Ctx) error {
	agentID := c.Params("agent_id")

	var req CreateChatRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "invalid request body"})
	}

	if _, ok := s.loadAgent(c, agentID); !ok {
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{
			Error: fmt.Sprintf("Agent %s not found", agentID),
		})
	}

	memorySize := req.MemorySize
	if memorySize == "" {
		memorySize = model.MemorySmall
	}

	chat := &model.Chat{
		ID:               uuid.New().String(),
		Name:             req.Name,
		AgentID:          agentID,
		UserWallet:       wallet(c),
		MemorySize:       memorySize,
		CapsuleID:        req.CapsuleID,
		WebSearchEnabled: req.WebSearchEnabled,
		CreatedAt:        time.Now().UTC(),
	}

	if err := s.store.PutChat(c.Context(), chat); err != nil {
		s.logger.Error("storing chat failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "failed to create chat"})
	}

	return c.Status(fiber.StatusCreated).JSON(chat)
}

// handleGetChat returns one chat with its full message history.
func (s *Server) handleGetChat(c *fiber.Ctx) error {
	chat, ok := s.loadChat(c, c.Params("chat_id"))
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{Error: "Chat not found"})
	}

	msgs, err := s.store.GetMessages(c.Context(), chat.ID)
	if err != nil {
		s.logger.Error("loading chat messages failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "failed to load messages"})
	}

	return c.JSON(ChatResponse{Chat: *chat, Messages: msgs})
}

// handleUpdateChat changes a chat's mutable metadata.
func (s *Server) handleUpdateChat(c *fiber.Ctx) error {
	var req UpdateChatRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "invalid request body"})
	}

	chat, ok := s.loadChat(c, c.Params("chat_id"))
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{Error: "Chat not found"})
	}

	if req.Name != nil {
		chat.Name = *req.Name
	}
	if req.MemorySize != nil {
		chat.MemorySize = *req.MemorySize
	}
	if req.WebSearchEnabled != nil {
		chat.WebSearchEnabled = *req.WebSearchEnabled
	}

	if err := s.store.PutChat(c.Context(), chat); err != nil {
		s.logger.Error("updating chat failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "failed to update chat"})
	}

	return c.JSON(chat)
}

// handleDeleteChat removes a chat, its messages, and its tagged memories.
func (s *Server) handleDeleteChat(c *fiber.Ctx) error {
	ctx := c.Context()

	chat, ok := s.loadChat(c, c.Params("chat_id"))
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{Error: "Chat not found"})
	}

	if err := s.orchestrator.DeleteChatMemories(ctx, chat); err != nil {
		s.logger.Warn("deleting chat memories failed",
			zap.String("chat_id", chat.ID),
			zap.Error(err),
		)
	}

	if err := s.store.DeleteChat(ctx, chat.ID, chat.AgentID, wallet(c)); err != nil {
		s.logger.Error("deleting chat failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "failed to delete chat"})
	}

	return c.JSON(StatusResponse{Success: true, Message: "Chat deleted"})
}

// loadChat fetches a chat and applies wallet scoping.
func (s *Server) loadChat(c *fiber.Ctx, id string) (*model.Chat, bool) {
	chat, err := s.store.GetChat(c.Context(), id)
	if err != nil {
		if !store.IsNotFound(err) {
			s.logger.Error("loading chat failed", zap.String("chat_id", id), zap.Error(err))
		}
		return nil, false
	}
	if w := wallet(c); w != "" && chat.UserWallet != "" && chat.UserWallet != w {
		return nil, false
	}
	return chat, true
}
