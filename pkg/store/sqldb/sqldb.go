// Package sqldb implements the conversation store's durable mirror on top of
// database/sql. The SQLite and PostgreSQL packages are thin wrappers that
// register their driver and hand the open connection to DB.
package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/yashdodwani/anymind/pkg/model"
	"github.com/yashdodwani/anymind/pkg/store"
)

// Dialect selects placeholder style for the underlying driver.
type Dialect int

const (
	DialectSQLite Dialect = iota
	DialectPostgres
)

const schema = `
CREATE TABLE IF NOT EXISTS agents (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	display_name TEXT NOT NULL,
	platform TEXT NOT NULL,
	model TEXT NOT NULL DEFAULT '',
	user_wallet TEXT NOT NULL DEFAULT '',
	api_key TEXT NOT NULL DEFAULT '',
	api_key_configured BOOLEAN NOT NULL DEFAULT FALSE
);
CREATE TABLE IF NOT EXISTS chats (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	agent_id TEXT NOT NULL,
	user_wallet TEXT NOT NULL DEFAULT '',
	memory_size TEXT NOT NULL DEFAULT 'Medium',
	capsule_id TEXT NOT NULL DEFAULT '',
	web_search_enabled BOOLEAN NOT NULL DEFAULT FALSE,
	message_count INTEGER NOT NULL DEFAULT 0,
	last_message TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS messages (
	id TEXT PRIMARY KEY,
	chat_id TEXT NOT NULL,
	role TEXT NOT NULL,
	content TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_chats_agent ON chats (agent_id, user_wallet);
CREATE INDEX IF NOT EXISTS idx_messages_chat ON messages (chat_id, created_at);
`

// DB implements store.Driver over an open *sql.DB.
type DB struct {
	db      *sql.DB
	dialect Dialect
}

// New wraps an open connection, creates the schema if needed, and returns
// the durable store driver.
func New(ctx context.Context, db *sql.DB, dialect Dialect) (*DB, error) {
	for _, stmt := range strings.Split(schema, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("creating schema: %w", err)
		}
	}

	return &DB{db: db, dialect: dialect}, nil
}

// rebind rewrites ? placeholders to $n for PostgreSQL.
func (d *DB) rebind(query string) string {
	if d.dialect != DialectPostgres {
		return query
	}

	var sb strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			sb.WriteByte('$')
			sb.WriteString(strconv.Itoa(n))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

func (d *DB) GetAgent(ctx context.Context, id string) (*model.Agent, error) {
	row := d.db.QueryRowContext(ctx, d.rebind(
		`SELECT id, name, display_name, platform, model, user_wallet, api_key, api_key_configured
		 FROM agents WHERE id = ?`), id)

	var a model.Agent
	err := row.Scan(&a.ID, &a.Name, &a.DisplayName, &a.Platform, &a.Model,
		&a.UserWallet, &a.APIKey, &a.APIKeyConfigured)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying agent %s: %w", id, err)
	}

	return &a, nil
}

func (d *DB) PutAgent(ctx context.Context, agent *model.Agent) error {
	_, err := d.db.ExecContext(ctx, d.rebind(
		`INSERT INTO agents (id, name, display_name, platform, model, user_wallet, api_key, api_key_configured)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			display_name = excluded.display_name,
			platform = excluded.platform,
			model = excluded.model,
			user_wallet = excluded.user_wallet,
			api_key = excluded.api_key,
			api_key_configured = excluded.api_key_configured`),
		agent.ID, agent.Name, agent.DisplayName, agent.Platform, agent.Model,
		agent.UserWallet, agent.APIKey, agent.APIKeyConfigured)
	if err != nil {
		return fmt.Errorf("storing agent %s: %w", agent.ID, err)
	}

	return nil
}

func (d *DB) DeleteAgent(ctx context.Context, id, wallet string) error {
	query := `DELETE FROM agents WHERE id = ?`
	args := []any{id}
	if wallet != "" {
		query += ` AND user_wallet = ?`
		args = append(args, wallet)
	}

	if _, err := d.db.ExecContext(ctx, d.rebind(query), args...); err != nil {
		return fmt.Errorf("deleting agent %s: %w", id, err)
	}

	return nil
}

func (d *DB) ListAgents(ctx context.Context, wallet string) ([]*model.Agent, error) {
	query := `SELECT id, name, display_name, platform, model, user_wallet, api_key, api_key_configured FROM agents`
	var args []any
	if wallet != "" {
		query += ` WHERE user_wallet = ?`
		args = append(args, wallet)
	}
	query += ` ORDER BY id`

	rows, err := d.db.QueryContext(ctx, d.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("listing agents: %w", err)
	}
	defer rows.Close()

	var agents []*model.Agent
	for rows.Next() {
		var a model.Agent
		if err := rows.Scan(&a.ID, &a.Name, &a.DisplayName, &a.Platform, &a.Model,
			&a.UserWallet, &a.APIKey, &a.APIKeyConfigured); err != nil {
			return nil, fmt.Errorf("scanning agent row: %w", err)
		}
		agents = append(agents, &a)
	}

	return agents, rows.Err()
}

func (d *DB) GetChat(ctx context.Context, id string) (*model.Chat, error) {
	row := d.db.QueryRowContext(ctx, d.rebind(
		`SELECT id, name, agent_id, user_wallet, memory_size, capsule_id,
			web_search_enabled, message_count, last_message, created_at
		 FROM chats WHERE id = ?`), id)

	var c model.Chat
	var size string
	err := row.Scan(&c.ID, &c.Name, &c.AgentID, &c.UserWallet, &size, &c.CapsuleID,
		&c.WebSearchEnabled, &c.MessageCount, &c.LastMessage, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying chat %s: %w", id, err)
	}
	c.MemorySize = model.MemorySize(size)

	return &c, nil
}

func (d *DB) PutChat(ctx context.Context, chat *model.Chat) error {
	_, err := d.db.ExecContext(ctx, d.rebind(
		`INSERT INTO chats (id, name, agent_id, user_wallet, memory_size, capsule_id,
			web_search_enabled, message_count, last_message, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			memory_size = excluded.memory_size,
			web_search_enabled = excluded.web_search_enabled,
			message_count = excluded.message_count,
			last_message = excluded.last_message`),
		chat.ID, chat.Name, chat.AgentID, chat.UserWallet, string(chat.MemorySize),
		chat.CapsuleID, chat.WebSearchEnabled, chat.MessageCount, chat.LastMessage,
		chat.CreatedAt)
	if err != nil {
		return fmt.Errorf("storing chat %s: %w", chat.ID, err)
	}

	return nil
}

func (d *DB) DeleteChat(ctx context.Context, id, _, _ string) error {
	if _, err := d.db.ExecContext(ctx, d.rebind(`DELETE FROM messages WHERE chat_id = ?`), id); err != nil {
		return fmt.Errorf("deleting messages for chat %s: %w", id, err)
	}
	if _, err := d.db.ExecContext(ctx, d.rebind(`DELETE FROM chats WHERE id = ?`), id); err != nil {
		return fmt.Errorf("deleting chat %s: %w", id, err)
	}

	return nil
}

func (d *DB) GetMessages(ctx context.Context, chatID string) ([]*model.Message, error) {
	rows, err := d.db.QueryContext(ctx, d.rebind(
		`SELECT id, role, content, created_at FROM messages
		 WHERE chat_id = ? ORDER BY created_at, id`), chatID)
	if err != nil {
		return nil, fmt.Errorf("querying messages for chat %s: %w", chatID, err)
	}
	defer rows.Close()

	msgs := make([]*model.Message, 0)
	for rows.Next() {
		var m model.Message
		var role string
		if err := rows.Scan(&m.ID, &role, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning message row: %w", err)
		}
		m.Role = model.Role(role)
		msgs = append(msgs, &m)
	}

	return msgs, rows.Err()
}

func (d *DB) AppendMessage(ctx context.Context, chatID string, msg *model.Message) error {
	_, err := d.db.ExecContext(ctx, d.rebind(
		`INSERT INTO messages (id, chat_id, role, content, created_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO NOTHING`),
		msg.ID, chatID, string(msg.Role), msg.Content, msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("storing message %s: %w", msg.ID, err)
	}

	return nil
}

func (d *DB) ListChatIDs(ctx context.Context, agentID, wallet string) ([]string, error) {
	query := `SELECT id FROM chats WHERE agent_id = ?`
	args := []any{agentID}
	if wallet != "" {
		query += ` AND user_wallet = ?`
		args = append(args, wallet)
	}
	query += ` ORDER BY created_at`

	rows, err := d.db.QueryContext(ctx, d.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("listing chats for agent %s: %w", agentID, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning chat id: %w", err)
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}

func (d *DB) Close() error {
	return d.db.Close()
}
