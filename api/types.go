package api

import (
	"github.com/yashdodwani/anymind/pkg/model"
)

// ErrorResponse is the uniform error payload.
type ErrorResponse struct {
	Error string `json:"error"`
}

// StatusResponse acknowledges a mutation with no payload.
type StatusResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// CreateAgentRequest is the POST /agents body.
type CreateAgentRequest struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	Platform    string `json:"platform"`
	APIKey      string `json:"api_key"`
	Model       string `json:"model,omitempty"`
}

// UpdateAgentRequest is the PUT /agents/:agent_id body. Only the display
// name and model are mutable.
type UpdateAgentRequest struct {
	DisplayName *string `json:"display_name,omitempty"`
	Model       *string `json:"model,omitempty"`
}

// CreateChatRequest is the POST chats body.
type CreateChatRequest struct {
	Name             string           `json:"name"`
	CapsuleID        string           `json:"capsule_id,omitempty"`
	MemorySize       model.MemorySize `json:"memory_size,omitempty"`
	WebSearchEnabled bool             `json:"web_search_enabled"`
}

// UpdateChatRequest is the PUT chat body; nil fields are left unchanged.
type UpdateChatRequest struct {
	Name             *string           `json:"name,omitempty"`
	MemorySize       *model.MemorySize `json:"memory_size,omitempty"`
	WebSearchEnabled *bool             `json:"web_search_enabled,omitempty"`
}

// ChatResponse is a chat record with its message history attached.
type ChatResponse struct {
	model.Chat
	Messages []*model.Message `json:"messages"`
}

// SendMessageRequest is the POST messages body.
type SendMessageRequest struct {
	Role    model.Role `json:"role"`
	Content string     `json:"content"`
}

// LLMResponse is the non-streaming completion payload.
type LLMResponse struct {
	Content string `json:"content"`
	Model   string `json:"model"`
}
