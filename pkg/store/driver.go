// Package store
package store

import (
	"context"

	"github.com/yashdodwani/anymind/pkg/model"
)

// Driver defines the interface for persisting and retrieving agents, chats and
// per-chat message lists in a storage backend. Each backend (process-local
// map, key-value cache, durable SQL mirror) implements the same keyed-record
// contract; Layered composes them with a fixed precedence.
type Driver interface {
	// GetAgent retrieves an agent by id. Returns ErrNotFound if absent.
	GetAgent(ctx context.Context, id string) (*model.Agent, error)

	// PutAgent stores or replaces an agent record.
	PutAgent(ctx context.Context, agent *model.Agent) error

	// DeleteAgent removes an agent record and any index entries for it.
	DeleteAgent(ctx context.Context, id, wallet string) error

	// ListAgents returns all agents owned by the wallet. An empty wallet
	// matches every agent.
	ListAgents(ctx context.Context, wallet string) ([]*model.Agent, error)

	// GetChat retrieves a chat by id. Returns ErrNotFound if absent.
	GetChat(ctx context.Context, id string) (*model.Chat, error)

	// PutChat stores or replaces a chat record and maintains the per-agent
	// chat index.
	PutChat(ctx context.Context, chat *model.Chat) error

	// DeleteChat removes the chat record, its message list, and all index
	// entries referencing it.
	DeleteChat(ctx context.Context, id, agentID, wallet string) error

	// GetMessages returns the chat's messages ordered by creation time
	// ascending. A chat with no messages yields an empty slice, not an error.
	GetMessages(ctx context.Context, chatID string) ([]*model.Message, error)

	// AppendMessage appends a message to the chat's ordered message list.
	AppendMessage(ctx context.Context, chatID string, msg *model.Message) error

	// ListChatIDs returns the ids of all chats bound to the agent,
	// optionally restricted to a wallet.
	ListChatIDs(ctx context.Context, agentID, wallet string) ([]string, error)

	// Close closes the store and releases any resources.
	Close() error
}
