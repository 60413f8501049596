package api

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/yashdodwani/anymind/pkg/sse"
	"github.com/yashdodwani/anymind/pkg/turn"
)

// streamEvent is one SSE frame of the streaming completion surface. Exactly
// one field is set per frame.
type streamEvent struct {
	Content string `json:"content,omitempty"`
	Done    bool   `json:"done,omitempty"`
	Error   string `json:"error,omitempty"`
}

// handleGetMessages returns the chat's ordered message history.
func (s *Server) handleGetMessages(c *fiber.Ctx) error {
	chat, ok := s.loadChat(c, c.Params("chat_id"))
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{Error: "Chat not found"})
	}

	msgs, err := s.store.GetMessages(c.Context(), chat.ID)
	if err != nil {
		s.logger.Error("loading messages failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "failed to load messages"})
	}

	return c.JSON(msgs)
}

// handleSendMessage runs a full turn and returns the complete reply.
func (s *Server) handleSendMessage(c *fiber.Ctx) error {
	var req SendMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "invalid request body"})
	}
	if req.Content == "" {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "content is required"})
	}

	result, err := s.orchestrator.Run(c.Context(), turn.Request{
		AgentID: c.Params("agent_id"),
		ChatID:  c.Params("chat_id"),
		Wallet:  wallet(c),
		Content: req.Content,
	}, nil)
	if err != nil {
		return s.turnError(c, err)
	}

	return c.JSON(LLMResponse{Content: result.Content, Model: result.Model})
}

// handleStreamMessage runs a turn and relays assistant fragments as SSE
// frames, terminated by a done or error frame.
func (s *Server) handleStreamMessage(c *fiber.Ctx) error {
	var req SendMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "invalid request body"})
	}
	if req.Content == "" {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "content is required"})
	}

	turnReq := turn.Request{
		AgentID:   c.Params("agent_id"),
		ChatID:    c.Params("chat_id"),
		Wallet:    wallet(c),
		Content:   req.Content,
		Streaming: true,
	}

	// Validate before committing to a streaming response so missing chats
	// and agents still surface as plain 404s.
	if _, _, err := s.orchestrator.Resolve(c.Context(), turnReq.AgentID, turnReq.ChatID, turnReq.Wallet); err != nil {
		return s.turnError(c, err)
	}

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")
	// Disable buffering for nginx
	c.Set("X-Accel-Buffering", "no")

	// Use io.Pipe + SetBodyStream: pw.Write blocks until fasthttp's chunked
	// writer consumes the data, giving direct backpressure and true
	// per-fragment delivery instead of buffering the whole reply.
	//
	// The turn runs on context.Background() because fasthttp recycles its
	// RequestCtx after the handler returns, while the goroutine keeps
	// producing. A closed pipe stops the turn when the client goes away.
	pr, pw := io.Pipe()
	go s.streamTurn(pw, turnReq)

	// Unknown size (-1) triggers chunked transfer encoding.
	c.Context().Response.SetBodyStream(pr, -1)

	return nil
}

func (s *Server) streamTurn(pw *io.PipeWriter, req turn.Request) {
	defer pw.Close()

	_, err := s.orchestrator.Run(context.Background(), req, func(frag string) error {
		return sse.WriteEvent(pw, streamEvent{Content: frag})
	})
	if err != nil {
		s.logger.Error("streaming turn failed",
			zap.String("chat_id", req.ChatID),
			zap.Error(err),
		)
		_ = sse.WriteEvent(pw, streamEvent{Error: err.Error()})
		return
	}

	_ = sse.WriteEvent(pw, streamEvent{Done: true})
}

// handleChatMemories returns everything the memory adapter holds for a chat.
func (s *Server) handleChatMemories(c *fiber.Ctx) error {
	report, err := s.orchestrator.Memories(c.Context(), c.Params("agent_id"), c.Params("chat_id"), wallet(c))
	if err != nil {
		return s.turnError(c, err)
	}

	return c.JSON(report)
}

// turnError maps orchestrator errors onto the HTTP taxonomy.
func (s *Server) turnError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, turn.ErrChatNotFound):
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{Error: "Chat not found"})
	case errors.Is(err, turn.ErrAgentNotFound):
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{Error: "Agent not found"})
	default:
		s.logger.Error("turn failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
			Error: fmt.Sprintf("Failed to get AI response: %v", err),
		})
	}
}
