// Package memory provides a pluggable semantic memory layer.
//
// Memory adapters distill durable facts from conversation turns and recall
// them on demand. Facts are scoped by a metadata [Tag]: every record carries
// the chat it came from, and recall never crosses chat boundaries even when
// two chats share an agent.
//
// Three adapters implement the same contract:
//
//   - platform: hosted memory provider behind a REST API.
//   - local: embedding pipeline over a vector.Driver.
//   - nop: degraded mode when neither is configured.
//
// All adapter methods are best-effort. Search and GetAll return empty slices
// on failure, Add reports false, and the caller proceeds without memory.
package memory

import (
	"context"

	"github.com/yashdodwani/anymind/pkg/llm"
)

// Tag scopes memory records to a chat, its agent, and optionally a capsule.
// It is passed through to the backend unmodified.
type Tag struct {
	ChatID    string
	AgentID   string
	CapsuleID string
}

// Metadata renders the tag as the metadata map stored on and filtered by
// every record. CapsuleID is omitted when empty.
func (t Tag) Metadata() map[string]string {
	meta := map[string]string{
		"chat_id":  t.ChatID,
		"agent_id": t.AgentID,
	}
	if t.CapsuleID != "" {
		meta["capsule_id"] = t.CapsuleID
	}
	return meta
}

// Record is a distilled piece of knowledge recalled from memory.
type Record struct {
	// Text is the fact text.
	Text string `json:"memory"`

	// Metadata carries the scoping tag the record was stored under.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Adapter handles storage and recall of conversation memory.
type Adapter interface {
	// Available reports whether the backend is configured and usable.
	// When false, every other method is a no-op.
	Available() bool

	// UsingPlatform reports whether records live in a hosted provider
	// rather than the local engine.
	UsingPlatform() bool

	// Search retrieves up to limit records relevant to the query, scoped
	// to the tag. Failures yield an empty slice.
	Search(ctx context.Context, agentID string, tag Tag, query string, limit int) []Record

	// Add distills the conversation messages into memory under the tag.
	// Fewer than two messages is a no-op. Returns whether anything was
	// stored.
	Add(ctx context.Context, agentID string, tag Tag, msgs []llm.ChatMessage) bool

	// GetAll returns every record stored under the tag.
	GetAll(ctx context.Context, agentID string, tag Tag) []Record

	// Delete removes every record stored under the tag.
	Delete(ctx context.Context, agentID string, tag Tag) error

	// Close releases adapter resources.
	Close() error
}
