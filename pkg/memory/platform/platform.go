// Package platform implements the memory adapter against a hosted memory
// provider's REST API. Records are keyed by user_id (the agent) and filtered
// by the metadata tag.
package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/yashdodwani/anymind/pkg/llm"
	"github.com/yashdodwani/anymind/pkg/memory"
)

const (
	// DefaultBaseURL is the hosted memory provider's API root.
	DefaultBaseURL = "https://api.mem0.ai"
)

// Config holds configuration for the platform memory adapter.
type Config struct {
	// APIKey is the provider credential. Empty disables the adapter.
	APIKey string

	// BaseURL overrides DefaultBaseURL when set.
	BaseURL string
}

// Adapter implements memory.Adapter over the hosted provider's REST API.
type Adapter struct {
	cfg        Config
	httpClient *http.Client
	logger     *zap.Logger
}

// NewAdapter creates a hosted memory client.
func NewAdapter(cfg Config, logger *zap.Logger) *Adapter {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Adapter{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger,
	}
}

func (a *Adapter) Available() bool {
	return a.cfg.APIKey != ""
}

func (a *Adapter) UsingPlatform() bool { return true }

// searchRequest is the POST /v1/memories/search body.
type searchRequest struct {
	Query    string            `json:"query"`
	UserID   string            `json:"user_id"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Limit    int               `json:"limit,omitempty"`
}

// addRequest is the POST /v1/memories body.
type addRequest struct {
	Messages []llm.ChatMessage `json:"messages"`
	UserID   string            `json:"user_id"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// filterRequest is shared by get_all and delete.
type filterRequest struct {
	UserID   string            `json:"user_id"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

func (a *Adapter) Search(ctx context.Context, agentID string, tag memory.Tag, query string, limit int) []memory.Record {
	if !a.Available() {
		return nil
	}

	var records []memory.Record
	err := a.call(ctx, "POST", "/v1/memories/search", searchRequest{
		Query:    query,
		UserID:   agentID,
		Metadata: tag.Metadata(),
		Limit:    limit,
	}, &records)
	if err != nil {
		a.logger.Warn("platform memory search failed", zap.String("chat_id", tag.ChatID), zap.Error(err))
		return nil
	}

	// The provider filters server-side; drop anything that slipped through
	// so recall never crosses chat boundaries.
	scoped := records[:0]
	for _, r := range records {
		if r.Metadata == nil || r.Metadata["chat_id"] == tag.ChatID {
			scoped = append(scoped, r)
		}
	}

	return scoped
}

func (a *Adapter) Add(ctx context.Context, agentID string, tag memory.Tag, msgs []llm.ChatMessage) bool {
	if !a.Available() {
		return false
	}
	if len(msgs) < 2 {
		return false
	}

	err := a.call(ctx, "POST", "/v1/memories", addRequest{
		Messages: msgs,
		UserID:   agentID,
		Metadata: tag.Metadata(),
	}, nil)
	if err != nil {
		a.logger.Warn("platform memory add failed", zap.String("chat_id", tag.ChatID), zap.Error(err))
		return false
	}

	a.logger.Debug("stored platform memory", zap.String("chat_id", tag.ChatID))

	return true
}

func (a *Adapter) GetAll(ctx context.Context, agentID string, tag memory.Tag) []memory.Record {
	if !a.Available() {
		return nil
	}

	var records []memory.Record
	err := a.call(ctx, "POST", "/v1/memories/get_all", filterRequest{
		UserID:   agentID,
		Metadata: tag.Metadata(),
	}, &records)
	if err != nil {
		a.logger.Warn("platform memory listing failed", zap.String("chat_id", tag.ChatID), zap.Error(err))
		return nil
	}

	return records
}

func (a *Adapter) Delete(ctx context.Context, agentID string, tag memory.Tag) error {
	if !a.Available() {
		return nil
	}

	err := a.call(ctx, "DELETE", "/v1/memories", filterRequest{
		UserID:   agentID,
		Metadata: tag.Metadata(),
	}, nil)
	if err != nil {
		return fmt.Errorf("deleting platform memories for chat %s: %w", tag.ChatID, err)
	}

	return nil
}

func (a *Adapter) Close() error {
	return nil
}

// call sends a JSON request with the bearer credential and decodes the
// response into out when non-nil.
func (a *Adapter) call(ctx context.Context, method, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.cfg.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+a.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("provider returned status %d: %s", resp.StatusCode, string(raw))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}

	return nil
}

var _ memory.Adapter = (*Adapter)(nil)
