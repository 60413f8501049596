// Package model defines the core domain types shared across the anymind system.
package model

import "time"

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// MemorySize controls how many memory records are retrieved per turn.
type MemorySize string

const (
	MemorySmall  MemorySize = "Small"
	MemoryMedium MemorySize = "Medium"
	MemoryLarge  MemorySize = "Large"
)

// RetrievalLimit maps a memory size to the number of records fetched per turn.
// Unrecognized values fall back to the Medium limit.
func (m MemorySize) RetrievalLimit() int {
	switch m {
	case MemorySmall:
		return 3
	case MemoryMedium:
		return 5
	case MemoryLarge:
		return 10
	default:
		return 5
	}
}

// Agent is a named LLM configuration owned by a wallet.
// APIKey is the provider credential and must never be serialized into a read
// response; callers that return agents over the wire clear it first.
type Agent struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	DisplayName      string `json:"display_name"`
	Platform         string `json:"platform"`
	Model            string `json:"model,omitempty"`
	UserWallet       string `json:"user_wallet,omitempty"`
	APIKeyConfigured bool   `json:"api_key_configured"`
	APIKey           string `json:"-"`
}

// Chat is a conversation thread bound to one agent.
// MessageCount and LastMessage are denormalized and kept consistent by the
// orchestrator on every append.
type Chat struct {
	ID               string     `json:"id"`
	Name             string     `json:"name"`
	AgentID          string     `json:"agent_id"`
	UserWallet       string     `json:"user_wallet,omitempty"`
	MemorySize       MemorySize `json:"memory_size"`
	CapsuleID        string     `json:"capsule_id,omitempty"`
	WebSearchEnabled bool       `json:"web_search_enabled"`
	MessageCount     int        `json:"message_count"`
	LastMessage      string     `json:"last_message,omitempty"`
	CreatedAt        time.Time  `json:"timestamp"`
}

// Message is a single turn half within a chat. Append-only; ordering is by
// CreatedAt ascending.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"timestamp"`
}

// PreviewLen is the maximum length of a chat's denormalized last-message preview.
const PreviewLen = 100

// Preview truncates message content for the chat's last_message field.
func Preview(content string) string {
	runes := []rune(content)
	if len(runes) <= PreviewLen {
		return content
	}
	return string(runes[:PreviewLen])
}
