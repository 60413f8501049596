// Package llm holds the wire-level chat message shape and the prompt
// composition step that runs before every completion request.
package llm

import "github.com/yashdodwani/anymind/pkg/model"

// Chat message roles as sent to completion providers.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage is a single message in the provider wire format.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// FromHistory converts stored chat messages into the provider wire format.
func FromHistory(msgs []*model.Message) []ChatMessage {
	out := make([]ChatMessage, len(msgs))
	for i, m := range msgs {
		out[i] = ChatMessage{Role: string(m.Role), Content: m.Content}
	}
	return out
}
