package store

import (
	"context"

	"go.uber.org/zap"

	"github.com/yashdodwani/anymind/pkg/model"
)

// MessageSetter is implemented by backends that can replace a chat's full
// message list in one shot. The layered store uses it to backfill the cache
// after serving a read from a slower layer.
type MessageSetter interface {
	SetMessages(ctx context.Context, chatID string, msgs []*model.Message) error
}

// Layered composes up to three backends into one store.Driver:
//
//   - Cache: fast key-value layer, may evict or expire entries at any time.
//   - Durable: SQL mirror, survives restarts.
//   - Local: in-process map, always present and cannot fail.
//
// Reads for chats and messages go cache first, then durable (backfilling the
// cache on a hit), then local. Agent reads go local first: credentials live
// only in the local and durable layers, and the cache holds a redacted copy.
// Writes go to every configured layer; a cache or durable failure is logged
// and swallowed so a turn can still make progress on the layers that are up.
type Layered struct {
	cache   Driver
	durable Driver
	local   Driver
	log     *zap.Logger
}

// NewLayered builds the composite store. cache and durable may be nil; local
// must not be.
func NewLayered(cache, durable, local Driver, log *zap.Logger) *Layered {
	if log == nil {
		log = zap.NewNop()
	}
	return &Layered{cache: cache, durable: durable, local: local, log: log}
}

// fanOut applies op to every configured layer. Only a local-layer failure is
// returned; cache and durable failures are logged and swallowed.
func (l *Layered) fanOut(name string, op func(Driver) error) error {
	if l.cache != nil {
		if err := op(l.cache); err != nil {
			l.log.Warn("cache write failed", zap.String("op", name), zap.Error(err))
		}
	}
	if l.durable != nil {
		if err := op(l.durable); err != nil {
			l.log.Warn("durable write failed", zap.String("op", name), zap.Error(err))
		}
	}
	return op(l.local)
}

func (l *Layered) GetAgent(ctx context.Context, id string) (*model.Agent, error) {
	// Local first so the API key survives the round trip; the cache copy is
	// serialized without it.
	if agent, err := l.local.GetAgent(ctx, id); err == nil {
		return agent, nil
	}

	if l.durable != nil {
		if agent, err := l.durable.GetAgent(ctx, id); err == nil {
			if err := l.local.PutAgent(ctx, agent); err != nil {
				l.log.Warn("local backfill failed", zap.String("agent", id), zap.Error(err))
			}
			return agent, nil
		} else if !IsNotFound(err) {
			l.log.Warn("durable agent read failed", zap.String("agent", id), zap.Error(err))
		}
	}

	if l.cache != nil {
		if agent, err := l.cache.GetAgent(ctx, id); err == nil {
			return agent, nil
		}
	}

	return nil, ErrNotFound
}

func (l *Layered) PutAgent(ctx context.Context, agent *model.Agent) error {
	return l.fanOut("put agent", func(d Driver) error { return d.PutAgent(ctx, agent) })
}

func (l *Layered) DeleteAgent(ctx context.Context, id, wallet string) error {
	return l.fanOut("delete agent", func(d Driver) error { return d.DeleteAgent(ctx, id, wallet) })
}

func (l *Layered) ListAgents(ctx context.Context, wallet string) ([]*model.Agent, error) {
	if agents, err := l.local.ListAgents(ctx, wallet); err == nil && len(agents) > 0 {
		return agents, nil
	}

	if l.durable != nil {
		if agents, err := l.durable.ListAgents(ctx, wallet); err == nil {
			return agents, nil
		} else if !IsNotFound(err) {
			l.log.Warn("durable agent list failed", zap.String("wallet", wallet), zap.Error(err))
		}
	}

	if l.cache != nil {
		if agents, err := l.cache.ListAgents(ctx, wallet); err == nil {
			return agents, nil
		}
	}

	return []*model.Agent{}, nil
}

func (l *Layered) GetChat(ctx context.Context, id string) (*model.Chat, error) {
	if l.cache != nil {
		if chat, err := l.cache.GetChat(ctx, id); err == nil {
			return chat, nil
		}
	}

	if l.durable != nil {
		if chat, err := l.durable.GetChat(ctx, id); err == nil {
			l.backfillChat(ctx, chat)
			return chat, nil
		} else if !IsNotFound(err) {
			l.log.Warn("durable chat read failed", zap.String("chat", id), zap.Error(err))
		}
	}

	return l.local.GetChat(ctx, id)
}

func (l *Layered) PutChat(ctx context.Context, chat *model.Chat) error {
	return l.fanOut("put chat", func(d Driver) error { return d.PutChat(ctx, chat) })
}

func (l *Layered) DeleteChat(ctx context.Context, id, agentID, wallet string) error {
	return l.fanOut("delete chat", func(d Driver) error { return d.DeleteChat(ctx, id, agentID, wallet) })
}

func (l *Layered) GetMessages(ctx context.Context, chatID string) ([]*model.Message, error) {
	if l.cache != nil {
		if msgs, err := l.cache.GetMessages(ctx, chatID); err == nil {
			return msgs, nil
		}
	}

	if l.durable != nil {
		if msgs, err := l.durable.GetMessages(ctx, chatID); err == nil {
			if setter, ok := l.cache.(MessageSetter); ok && l.cache != nil {
				if err := setter.SetMessages(ctx, chatID, msgs); err != nil {
					l.log.Warn("cache backfill failed", zap.String("chat", chatID), zap.Error(err))
				}
			}
			return msgs, nil
		} else if !IsNotFound(err) {
			l.log.Warn("durable message read failed", zap.String("chat", chatID), zap.Error(err))
		}
	}

	return l.local.GetMessages(ctx, chatID)
}

func (l *Layered) AppendMessage(ctx context.Context, chatID string, msg *model.Message) error {
	return l.fanOut("append message", func(d Driver) error { return d.AppendMessage(ctx, chatID, msg) })
}

func (l *Layered) ListChatIDs(ctx context.Context, agentID, wallet string) ([]string, error) {
	if l.cache != nil {
		if ids, err := l.cache.ListChatIDs(ctx, agentID, wallet); err == nil {
			return ids, nil
		}
	}

	if l.durable != nil {
		if ids, err := l.durable.ListChatIDs(ctx, agentID, wallet); err == nil && len(ids) > 0 {
			return ids, nil
		} else if err != nil && !IsNotFound(err) {
			l.log.Warn("durable chat list failed", zap.String("agent", agentID), zap.Error(err))
		}
	}

	return l.local.ListChatIDs(ctx, agentID, wallet)
}

func (l *Layered) backfillChat(ctx context.Context, chat *model.Chat) {
	if l.cache == nil {
		return
	}
	if err := l.cache.PutChat(ctx, chat); err != nil {
		l.log.Warn("cache backfill failed", zap.String("chat", chat.ID), zap.Error(err))
	}
}

// Close closes every configured layer, returning the first error seen.
func (l *Layered) Close() error {
	var firstErr error
	for _, d := range []Driver{l.cache, l.durable, l.local} {
		if d == nil {
			continue
		}
		if err := d.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
