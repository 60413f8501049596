// Package turn orchestrates a full conversation turn: validation,
// persistence, context retrieval, prompt composition, provider streaming,
// and the async memory write-back. The orchestrator is the only place these
// steps are sequenced; both the streaming and non-streaming HTTP surfaces
// drive the same state machine.
package turn

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/yashdodwani/anymind/pkg/eventstream"
	"github.com/yashdodwani/anymind/pkg/llm"
	"github.com/yashdodwani/anymind/pkg/llm/provider"
	"github.com/yashdodwani/anymind/pkg/memory"
	"github.com/yashdodwani/anymind/pkg/model"
	"github.com/yashdodwani/anymind/pkg/store"
	"github.com/yashdodwani/anymind/pkg/websearch"
	"github.com/yashdodwani/anymind/pkg/worker"
)

// Orchestration errors surfaced to the HTTP layer.
var (
	// ErrChatNotFound is returned when the chat doesn't exist or belongs
	// to a different wallet.
	ErrChatNotFound = errors.New("chat not found")

	// ErrAgentNotFound is returned when the chat's agent can't be
	// resolved for the caller's wallet.
	ErrAgentNotFound = errors.New("agent not found")
)

// state tracks where a turn is in its lifecycle. Transitions are linear;
// Errored is terminal and never rolls back the persisted user message.
type state int

const (
	stateIdle state = iota
	stateValidatingChat
	stateValidatingAgent
	statePersistingUserMessage
	stateRetrievingContext
	stateComposing
	stateStreaming
	statePersistingAssistantMessage
	stateStoringMemory
	stateDone
	stateErrored
)

func (s state) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateValidatingChat:
		return "validating_chat"
	case stateValidatingAgent:
		return "validating_agent"
	case statePersistingUserMessage:
		return "persisting_user_message"
	case stateRetrievingContext:
		return "retrieving_context"
	case stateComposing:
		return "composing"
	case stateStreaming:
		return "streaming"
	case statePersistingAssistantMessage:
		return "persisting_assistant_message"
	case stateStoringMemory:
		return "storing_memory"
	case stateDone:
		return "done"
	case stateErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// Request describes one inbound user message.
type Request struct {
	// AgentID is the path-level agent. The chat's stored AgentID wins
	// when the two disagree.
	AgentID string

	// ChatID identifies the conversation thread.
	ChatID string

	// Wallet scopes the lookup. Empty skips ownership checks.
	Wallet string

	// Content is the user's message text.
	Content string

	// Streaming marks whether fragments are relayed as they arrive.
	// Recorded on the published turn event.
	Streaming bool
}

// Result is the completed turn.
type Result struct {
	// Content is the full assistant reply.
	Content string `json:"content"`

	// Model is the model identifier the reply was generated with.
	Model string `json:"model"`
}

// Emit relays one assistant fragment to the caller. Returning an error stops
// production; the partial reply is not persisted.
type Emit func(fragment string) error

// MemoriesReport is the GET memories payload.
type MemoriesReport struct {
	ChatID        string          `json:"chat_id"`
	AgentID       string          `json:"agent_id"`
	MemoryCount   int             `json:"memory_count"`
	Memories      []memory.Record `json:"memories"`
	UsingPlatform bool            `json:"using_platform"`
}

// Config wires the orchestrator's collaborators.
type Config struct {
	Store  store.Driver
	Memory memory.Adapter
	Search *websearch.Client
	Pool   *worker.Pool
	Events eventstream.Publisher
	Logger *zap.Logger
}

// Orchestrator runs conversation turns.
type Orchestrator struct {
	store  store.Driver
	memory memory.Adapter
	search *websearch.Client
	pool   *worker.Pool
	events eventstream.Publisher
	logger *zap.Logger
}

// New creates a turn orchestrator.
func New(c Config) *Orchestrator {
	logger := c.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Orchestrator{
		store:  c.Store,
		memory: c.Memory,
		search: c.Search,
		pool:   c.Pool,
		events: c.Events,
		logger: logger,
	}
}

// run carries per-turn state through the step methods.
type run struct {
	req   Request
	state state

	chat    *model.Chat
	agent   *model.Agent
	history []*model.Message

	memoryText string
	searchText string

	composed []llm.ChatMessage
	reply    string

	startedAt time.Time
}

func (o *Orchestrator) advance(r *run, next state) {
	o.logger.Debug("turn state transition",
		zap.String("chat_id", r.req.ChatID),
		zap.Stringer("from", r.state),
		zap.Stringer("to", next),
	)
	r.state = next
}

// Run executes a full turn. emit may be nil for the non-streaming surface;
// when set, each assistant fragment is relayed through it as it arrives.
func (o *Orchestrator) Run(ctx context.Context, req Request, emit Emit) (*Result, error) {
	r := &run{req: req, state: stateIdle, startedAt: time.Now().UTC()}

	steps := []func(context.Context, *run, Emit) error{
		o.validateChat,
		o.validateAgent,
		o.persistUserMessage,
		o.retrieveContext,
		o.compose,
		o.stream,
		o.persistAssistantMessage,
		o.storeMemory,
	}

	for _, step := range steps {
		if err := step(ctx, r, emit); err != nil {
			o.advance(r, stateErrored)
			return nil, err
		}
	}

	o.advance(r, stateDone)
	o.publishEvent(ctx, r)

	return &Result{Content: r.reply, Model: r.agent.Model}, nil
}

func (o *Orchestrator) validateChat(ctx context.Context, r *run, _ Emit) error {
	o.advance(r, stateValidatingChat)

	chat, err := o.store.GetChat(ctx, r.req.ChatID)
	if err != nil {
		if store.IsNotFound(err) {
			return ErrChatNotFound
		}
		return fmt.Errorf("loading chat %s: %w", r.req.ChatID, err)
	}
	if r.req.Wallet != "" && chat.UserWallet != "" && chat.UserWallet != r.req.Wallet {
		return ErrChatNotFound
	}

	r.chat = chat
	return nil
}

func (o *Orchestrator) validateAgent(ctx context.Context, r *run, _ Emit) error {
	o.advance(r, stateValidatingAgent)

	// The chat's stored agent always wins over the path parameter.
	agentID := r.chat.AgentID
	if agentID == "" {
		agentID = r.req.AgentID
	}

	agent, err := o.store.GetAgent(ctx, agentID)
	if err != nil {
		if store.IsNotFound(err) {
			return ErrAgentNotFound
		}
		return fmt.Errorf("loading agent %s: %w", agentID, err)
	}
	if r.req.Wallet != "" && agent.UserWallet != "" && agent.UserWallet != r.req.Wallet {
		return ErrAgentNotFound
	}

	r.agent = agent
	return nil
}

func (o *Orchestrator) persistUserMessage(ctx context.Context, r *run, _ Emit) error {
	o.advance(r, statePersistingUserMessage)

	// The user message is persisted before any provider call and survives
	// provider failure.
	if err := o.appendMessage(ctx, r.chat, model.RoleUser, r.req.Content); err != nil {
		return fmt.Errorf("persisting user message: %w", err)
	}

	history, err := o.store.GetMessages(ctx, r.chat.ID)
	if err != nil {
		return fmt.Errorf("loading history for chat %s: %w", r.chat.ID, err)
	}
	r.history = history

	return nil
}

func (o *Orchestrator) retrieveContext(ctx context.Context, r *run, _ Emit) error {
	o.advance(r, stateRetrievingContext)

	// Memory and web search run concurrently; both are best-effort and
	// neither blocks the turn on failure.
	var wg sync.WaitGroup

	if o.memory != nil && o.memory.Available() {
		wg.Add(1)
		go func() {
			defer wg.Done()
			records := o.memory.Search(ctx, r.agent.ID, o.tag(r), r.req.Content,
				r.chat.MemorySize.RetrievalLimit())
			r.memoryText = formatMemoryContext(records)
		}()
	}

	if r.chat.WebSearchEnabled && o.search != nil && o.search.Available() {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.searchText = o.search.Search(ctx, r.req.Content, websearch.DefaultResultCount)
		}()
	}

	wg.Wait()
	return nil
}

func (o *Orchestrator) compose(_ context.Context, r *run, _ Emit) error {
	o.advance(r, stateComposing)
	r.composed = llm.Compose(llm.FromHistory(r.history), r.memoryText, r.searchText)
	return nil
}

func (o *Orchestrator) stream(ctx context.Context, r *run, emit Emit) error {
	o.advance(r, stateStreaming)

	streamer, err := provider.For(r.agent.Platform)
	if err != nil {
		return fmt.Errorf("resolving provider for platform %q: %w", r.agent.Platform, err)
	}

	stream, err := streamer.Stream(ctx, provider.Request{
		Model:    r.agent.Model,
		APIKey:   r.agent.APIKey,
		Messages: r.composed,
	})
	if err != nil {
		return fmt.Errorf("opening completion stream: %w", err)
	}
	defer stream.Close()

	var full strings.Builder
	for {
		frag, ok := stream.Next()
		if !ok {
			break
		}
		full.WriteString(frag)
		if emit != nil {
			if err := emit(frag); err != nil {
				// Caller went away. Stop producing; the partial
				// reply is not persisted.
				o.logger.Debug("caller disconnected mid-stream",
					zap.String("chat_id", r.chat.ID))
				return fmt.Errorf("relaying fragment: %w", err)
			}
		}
	}
	if err := stream.Err(); err != nil {
		return fmt.Errorf("completion stream failed: %w", err)
	}

	r.reply = full.String()
	return nil
}

func (o *Orchestrator) persistAssistantMessage(ctx context.Context, r *run, _ Emit) error {
	o.advance(r, statePersistingAssistantMessage)

	// An empty reply is not an error; there's just nothing to store.
	if r.reply == "" {
		return nil
	}

	if err := o.appendMessage(ctx, r.chat, model.RoleAssistant, r.reply); err != nil {
		return fmt.Errorf("persisting assistant message: %w", err)
	}

	return nil
}

func (o *Orchestrator) storeMemory(_ context.Context, r *run, _ Emit) error {
	o.advance(r, stateStoringMemory)

	if o.pool == nil || r.reply == "" {
		return nil
	}

	msgs := llm.FromHistory(r.history)
	msgs = append(msgs, llm.ChatMessage{Role: llm.RoleAssistant, Content: r.reply})

	o.pool.Enqueue(worker.Job{
		AgentID:  r.agent.ID,
		Tag:      o.tag(r),
		Messages: msgs,
	})

	return nil
}

// publishEvent emits the turn-persisted event. Best-effort: failures are
// logged and swallowed.
func (o *Orchestrator) publishEvent(ctx context.Context, r *run) {
	if o.events == nil {
		return
	}

	now := time.Now().UTC()
	event := &eventstream.TurnPersistedEvent{
		SchemaVersion: eventstream.SchemaVersionV1,
		EventType:     eventstream.EventTypeTurnPersisted,
		EventID:       uuid.New().String(),
		EmittedAt:     now,
		Source: eventstream.EventSource{
			AgentID:    r.agent.ID,
			Platform:   r.agent.Platform,
			UserWallet: r.chat.UserWallet,
		},
		RequestMeta: eventstream.TurnRequestMeta{
			StartedAt:   r.startedAt,
			CompletedAt: now,
			DurationMs:  now.Sub(r.startedAt).Milliseconds(),
			Streaming:   r.req.Streaming,
		},
		Turn: eventstream.TurnMeta{
			ChatID:           r.chat.ID,
			Model:            r.agent.Model,
			UserPreview:      model.Preview(r.req.Content),
			AssistantPreview: model.Preview(r.reply),
			MessageCount:     r.chat.MessageCount,
			MemoryStored:     o.memory != nil && o.memory.Available(),
		},
	}

	if err := o.events.PublishTurn(ctx, event); err != nil {
		o.logger.Warn("turn event publish failed",
			zap.String("chat_id", r.chat.ID),
			zap.Error(err),
		)
	}
}

// appendMessage stores one message and updates the chat's denormalized
// message_count and last_message fields.
func (o *Orchestrator) appendMessage(ctx context.Context, chat *model.Chat, role model.Role, content string) error {
	msg := &model.Message{
		ID:        uuid.New().String(),
		Role:      role,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}

	if err := o.store.AppendMessage(ctx, chat.ID, msg); err != nil {
		return err
	}

	chat.MessageCount++
	chat.LastMessage = model.Preview(content)
	if err := o.store.PutChat(ctx, chat); err != nil {
		return err
	}

	return nil
}

func (o *Orchestrator) tag(r *run) memory.Tag {
	return memory.Tag{
		ChatID:    r.chat.ID,
		AgentID:   r.agent.ID,
		CapsuleID: r.chat.CapsuleID,
	}
}

// Resolve loads a chat and its effective agent with wallet scoping applied.
// The HTTP layer uses it to validate a turn before committing to a streaming
// response.
func (o *Orchestrator) Resolve(ctx context.Context, agentID, chatID, wallet string) (*model.Chat, *model.Agent, error) {
	r := &run{req: Request{AgentID: agentID, ChatID: chatID, Wallet: wallet}}

	if err := o.validateChat(ctx, r, nil); err != nil {
		return nil, nil, err
	}
	if err := o.validateAgent(ctx, r, nil); err != nil {
		return nil, nil, err
	}

	return r.chat, r.agent, nil
}

// Memories builds the memory inspection payload for a chat.
func (o *Orchestrator) Memories(ctx context.Context, agentID, chatID, wallet string) (*MemoriesReport, error) {
	r := &run{req: Request{AgentID: agentID, ChatID: chatID, Wallet: wallet}}

	if err := o.validateChat(ctx, r, nil); err != nil {
		return nil, err
	}
	if err := o.validateAgent(ctx, r, nil); err != nil {
		return nil, err
	}

	var records []memory.Record
	usingPlatform := false
	if o.memory != nil {
		records = o.memory.GetAll(ctx, r.agent.ID, o.tag(r))
		usingPlatform = o.memory.UsingPlatform()
	}
	if records == nil {
		records = []memory.Record{}
	}

	return &MemoriesReport{
		ChatID:        chatID,
		AgentID:       r.agent.ID,
		MemoryCount:   len(records),
		Memories:      records,
		UsingPlatform: usingPlatform,
	}, nil
}

// DeleteChatMemories removes all memory records for a chat. Called by the
// API layer as part of chat deletion.
func (o *Orchestrator) DeleteChatMemories(ctx context.Context, chat *model.Chat) error {
	if o.memory == nil || !o.memory.Available() {
		return nil
	}
	return o.memory.Delete(ctx, chat.AgentID, memory.Tag{
		ChatID:    chat.ID,
		AgentID:   chat.AgentID,
		CapsuleID: chat.CapsuleID,
	})
}

// formatMemoryContext renders recalled records as dashed lines for the
// system prompt.
func formatMemoryContext(records []memory.Record) string {
	if len(records) == 0 {
		return ""
	}

	lines := make([]string, 0, len(records))
	for _, rec := range records {
		if rec.Text == "" {
			continue
		}
		lines = append(lines, "- "+rec.Text)
	}

	return strings.Join(lines, "\n")
}
