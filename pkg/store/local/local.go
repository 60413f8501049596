// Package local provides the always-available process-local storage backend.
// It is the last-resort layer of the conversation store: writes to it cannot
// fail, so a turn can always make progress even with the cache and the
// durable mirror both down.
package local

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/yashdodwani/anymind/pkg/model"
	"github.com/yashdodwani/anymind/pkg/store"
)

// Driver implements store.Driver using in-process maps. Each key-space
// (agents, chats, messages) is guarded by its own RWMutex so concurrent turns
// touching different record kinds don't contend.
type Driver struct {
	agentMu sync.RWMutex
	agents  map[string]*model.Agent

	chatMu sync.RWMutex
	chats  map[string]*model.Chat

	msgMu    sync.RWMutex
	messages map[string][]*model.Message
}

// NewDriver creates a new process-local storer.
func NewDriver() *Driver {
	return &Driver{
		agents:   make(map[string]*model.Agent),
		chats:    make(map[string]*model.Chat),
		messages: make(map[string][]*model.Message),
	}
}

func (d *Driver) GetAgent(_ context.Context, id string) (*model.Agent, error) {
	d.agentMu.RLock()
	defer d.agentMu.RUnlock()

	agent, ok := d.agents[id]
	if !ok {
		return nil, store.ErrNotFound
	}

	cp := *agent
	return &cp, nil
}

func (d *Driver) PutAgent(_ context.Context, agent *model.Agent) error {
	if agent == nil {
		return errors.New("cannot store nil agent")
	}

	d.agentMu.Lock()
	defer d.agentMu.Unlock()

	cp := *agent
	d.agents[agent.ID] = &cp
	return nil
}

func (d *Driver) DeleteAgent(_ context.Context, id, _ string) error {
	d.agentMu.Lock()
	defer d.agentMu.Unlock()

	delete(d.agents, id)
	return nil
}

func (d *Driver) ListAgents(_ context.Context, wallet string) ([]*model.Agent, error) {
	d.agentMu.RLock()
	defer d.agentMu.RUnlock()

	agents := make([]*model.Agent, 0, len(d.agents))
	for _, agent := range d.agents {
		if wallet != "" && agent.UserWallet != wallet {
			continue
		}
		cp := *agent
		agents = append(agents, &cp)
	}

	sort.Slice(agents, func(i, j int) bool { return agents[i].ID < agents[j].ID })
	return agents, nil
}

func (d *Driver) GetChat(_ context.Context, id string) (*model.Chat, error) {
	d.chatMu.RLock()
	defer d.chatMu.RUnlock()

	chat, ok := d.chats[id]
	if !ok {
		return nil, store.ErrNotFound
	}

	cp := *chat
	return &cp, nil
}

func (d *Driver) PutChat(_ context.Context, chat *model.Chat) error {
	if chat == nil {
		return errors.New("cannot store nil chat")
	}

	d.chatMu.Lock()
	defer d.chatMu.Unlock()

	cp := *chat
	d.chats[chat.ID] = &cp
	return nil
}

func (d *Driver) DeleteChat(_ context.Context, id, _, _ string) error {
	d.chatMu.Lock()
	delete(d.chats, id)
	d.chatMu.Unlock()

	d.msgMu.Lock()
	delete(d.messages, id)
	d.msgMu.Unlock()

	return nil
}

func (d *Driver) GetMessages(_ context.Context, chatID string) ([]*model.Message, error) {
	d.msgMu.RLock()
	defer d.msgMu.RUnlock()

	msgs := d.messages[chatID]
	out := make([]*model.Message, len(msgs))
	for i, m := range msgs {
		cp := *m
		out[i] = &cp
	}

	return out, nil
}

func (d *Driver) AppendMessage(_ context.Context, chatID string, msg *model.Message) error {
	if msg == nil {
		return errors.New("cannot store nil message")
	}

	d.msgMu.Lock()
	defer d.msgMu.Unlock()

	cp := *msg
	d.messages[chatID] = append(d.messages[chatID], &cp)
	return nil
}

func (d *Driver) ListChatIDs(_ context.Context, agentID, wallet string) ([]string, error) {
	d.chatMu.RLock()
	defer d.chatMu.RUnlock()

	var ids []string
	for id, chat := range d.chats {
		if chat.AgentID != agentID {
			continue
		}
		if wallet != "" && chat.UserWallet != wallet {
			continue
		}
		ids = append(ids, id)
	}

	sort.Strings(ids)
	return ids, nil
}

// Close is a no-op for the process-local storer.
func (d *Driver) Close() error {
	return nil
}
