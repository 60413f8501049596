// Package cache provides the fast-path key-value backend of the conversation
// store, backed by ristretto. Values are JSON-serialized records; agent
// credentials never reach this layer because the APIKey field is excluded
// from serialization.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto"

	"github.com/yashdodwani/anymind/pkg/model"
	"github.com/yashdodwani/anymind/pkg/store"
)

// Config holds configuration for the cache backend.
type Config struct {
	// MaxBytes caps the total cost of cached values. Defaults to 64 MiB.
	MaxBytes int64

	// TTL is the expiry applied to every entry. Zero means no expiry.
	TTL time.Duration
}

// Driver implements store.Driver over a ristretto cache.
type Driver struct {
	cache *ristretto.Cache
	ttl   time.Duration
}

// NewDriver creates a new cache-backed storer.
func NewDriver(cfg Config) (*Driver, error) {
	maxBytes := cfg.MaxBytes
	if maxBytes == 0 {
		maxBytes = 64 << 20
	}

	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1e6,
		MaxCost:     maxBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("creating ristretto cache: %w", err)
	}

	return &Driver{cache: cache, ttl: cfg.TTL}, nil
}

func agentKey(id string) string               { return "agent:" + id }
func walletAgentsKey(wallet string) string    { return "wallet:agents:" + wallet }
func chatKey(id string) string                { return "chat:" + id }
func messagesKey(chatID string) string        { return "chat:messages:" + chatID }
func chatIndexKey(agent, wallet string) string { return "agent:chats:" + agent + ":" + wallet }

// set marshals v and stores it under key, waiting for the write buffers to
// drain so a subsequent get on the same goroutine observes the value.
func (d *Driver) set(key string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling %q: %w", key, err)
	}

	if d.ttl > 0 {
		d.cache.SetWithTTL(key, payload, int64(len(payload)), d.ttl)
	} else {
		d.cache.Set(key, payload, int64(len(payload)))
	}
	d.cache.Wait()

	return nil
}

func (d *Driver) get(key string, v any) error {
	raw, ok := d.cache.Get(key)
	if !ok {
		return store.ErrNotFound
	}

	payload, ok := raw.([]byte)
	if !ok {
		return store.ErrNotFound
	}

	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("unmarshaling %q: %w", key, err)
	}

	return nil
}

func (d *Driver) GetAgent(_ context.Context, id string) (*model.Agent, error) {
	var agent model.Agent
	if err := d.get(agentKey(id), &agent); err != nil {
		return nil, err
	}
	return &agent, nil
}

func (d *Driver) PutAgent(_ context.Context, agent *model.Agent) error {
	if err := d.set(agentKey(agent.ID), agent); err != nil {
		return err
	}

	// Maintain the per-wallet agent id index.
	if agent.UserWallet == "" {
		return nil
	}
	ids := d.stringList(walletAgentsKey(agent.UserWallet))
	if !contains(ids, agent.ID) {
		ids = append(ids, agent.ID)
	}
	return d.set(walletAgentsKey(agent.UserWallet), ids)
}

func (d *Driver) DeleteAgent(_ context.Context, id, wallet string) error {
	d.cache.Del(agentKey(id))

	if wallet != "" {
		ids := remove(d.stringList(walletAgentsKey(wallet)), id)
		if err := d.set(walletAgentsKey(wallet), ids); err != nil {
			return err
		}
	}

	return nil
}

func (d *Driver) ListAgents(ctx context.Context, wallet string) ([]*model.Agent, error) {
	if wallet == "" {
		// The cache has no scan surface; unscoped listing is served by the
		// durable mirror or the local map.
		return nil, store.ErrNotFound
	}

	ids := d.stringList(walletAgentsKey(wallet))
	if len(ids) == 0 {
		return nil, store.ErrNotFound
	}

	agents := make([]*model.Agent, 0, len(ids))
	for _, id := range ids {
		agent, err := d.GetAgent(ctx, id)
		if err != nil {
			continue
		}
		agents = append(agents, agent)
	}

	return agents, nil
}

func (d *Driver) GetChat(_ context.Context, id string) (*model.Chat, error) {
	var chat model.Chat
	if err := d.get(chatKey(id), &chat); err != nil {
		return nil, err
	}
	return &chat, nil
}

func (d *Driver) PutChat(_ context.Context, chat *model.Chat) error {
	if err := d.set(chatKey(chat.ID), chat); err != nil {
		return err
	}

	// Per-wallet index plus a global per-agent index for wallet-less reads.
	for _, key := range []string{
		chatIndexKey(chat.AgentID, chat.UserWallet),
		chatIndexKey(chat.AgentID, ""),
	} {
		ids := d.stringList(key)
		if !contains(ids, chat.ID) {
			ids = append(ids, chat.ID)
			if err := d.set(key, ids); err != nil {
				return err
			}
		}
	}

	return nil
}

func (d *Driver) DeleteChat(_ context.Context, id, agentID, wallet string) error {
	d.cache.Del(chatKey(id))
	d.cache.Del(messagesKey(id))

	for _, key := range []string{
		chatIndexKey(agentID, wallet),
		chatIndexKey(agentID, ""),
	} {
		ids := remove(d.stringList(key), id)
		if err := d.set(key, ids); err != nil {
			return err
		}
	}

	return nil
}

func (d *Driver) GetMessages(_ context.Context, chatID string) ([]*model.Message, error) {
	var msgs []*model.Message
	if err := d.get(messagesKey(chatID), &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

func (d *Driver) AppendMessage(ctx context.Context, chatID string, msg *model.Message) error {
	msgs, err := d.GetMessages(ctx, chatID)
	if err != nil && !store.IsNotFound(err) {
		return err
	}

	msgs = append(msgs, msg)
	return d.set(messagesKey(chatID), msgs)
}

func (d *Driver) ListChatIDs(_ context.Context, agentID, wallet string) ([]string, error) {
	ids := d.stringList(chatIndexKey(agentID, wallet))
	if len(ids) == 0 {
		return nil, store.ErrNotFound
	}
	return ids, nil
}

// SetMessages replaces a chat's full message list. Used by the layered store
// to backfill the cache after a durable-store read.
func (d *Driver) SetMessages(_ context.Context, chatID string, msgs []*model.Message) error {
	return d.set(messagesKey(chatID), msgs)
}

func (d *Driver) Close() error {
	d.cache.Close()
	return nil
}

func (d *Driver) stringList(key string) []string {
	var ids []string
	if err := d.get(key, &ids); err != nil {
		return nil
	}
	return ids
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func remove(ids []string, id string) []string {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
