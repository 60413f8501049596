package eventstream

import "time"

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypeTurnPersisted is emitted after a conversation turn is persisted.
	EventTypeTurnPersisted = "anymind.turn.persisted"
)

// TurnPersistedEvent is a transport-neutral event payload for a persisted turn.
type TurnPersistedEvent struct {
	SchemaVersion int             `json:"schema_version"`
	EventType     string          `json:"event_type"`
	EventID       string          `json:"event_id"`
	EmittedAt     time.Time       `json:"emitted_at"`
	Source        EventSource     `json:"source"`
	RequestMeta   TurnRequestMeta `json:"request_meta"`
	Turn          TurnMeta        `json:"turn"`
}

// EventSource identifies where the turn originated.
type EventSource struct {
	AgentID    string `json:"agent_id"`
	Platform   string `json:"platform"`
	UserWallet string `json:"user_wallet,omitempty"`
}

// TurnRequestMeta captures request lifecycle metadata for the event.
type TurnRequestMeta struct {
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
	DurationMs  int64     `json:"duration_ms"`
	Streaming   bool      `json:"streaming"`
}

// TurnMeta captures the persisted turn itself.
type TurnMeta struct {
	ChatID           string `json:"chat_id"`
	Model            string `json:"model,omitempty"`
	UserPreview      string `json:"user_preview,omitempty"`
	AssistantPreview string `json:"assistant_preview,omitempty"`
	MessageCount     int    `json:"message_count"`
	MemoryStored     bool   `json:"memory_stored"`
}
