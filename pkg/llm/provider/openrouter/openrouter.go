// Package openrouter implements the completion provider contract against
// OpenRouter's OpenAI-compatible streaming API.
package openrouter

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
	"github.com/yashdodwani/anymind/pkg/llm/provider"
	"github.com/yashdodwani/anymind/pkg/sse"
)

const (
	// DefaultBaseURL is OpenRouter's OpenAI-compatible API root.
	DefaultBaseURL = "https://openrouter.ai/api/v1"

	// DefaultModel is used when neither the agent nor the config names one.
	DefaultModel = "openai/gpt-4-turbo"

	// doneSentinel terminates an OpenRouter SSE stream.
	doneSentinel = "[DONE]"
)

// Config holds configuration for the OpenRouter client.
type Config struct {
	// BaseURL overrides DefaultBaseURL when set.
	BaseURL string

	// APIKey is the fallback credential for agents without their own key.
	APIKey string

	// Model is the fallback model identifier. Defaults to DefaultModel.
	Model string

	// Referer and Title are forwarded as the HTTP-Referer and X-Title
	// attribution headers OpenRouter uses for rankings.
	Referer string
	Title   string
}

// Client implements provider.Streamer against OpenRouter.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *zap.Logger
}

// New creates an OpenRouter streaming client.
func New(cfg Config, logger *zap.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			// No overall timeout: streams stay open as long as the
			// model produces output. Cancellation comes from ctx.
			Timeout: 0,
		},
		logger: logger,
	}
}

// Name returns the canonical platform name.
func (c *Client) Name() string {
	return "openrouter"
}

// completionRequest is the chat/completions request body.
type completionRequest struct {
	Model    string            `json:"model"`
	Messages []llm.ChatMessage `json:"messages"`
	Stream   bool              `json:"stream"`
}

// completionChunk is a single streamed chat/completions chunk.
type completionChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

// Stream opens a streaming completion. The returned stream reads the HTTP
// response body lazily; closing it releases the connection.
func (c *Client) Stream(ctx context.Context, req provider.Request) (*provider.Stream, error) {
	model := req.Model
	if model == "" {
		model = c.cfg.Model
	}
	apiKey := req.APIKey
	if apiKey == "" {
		apiKey = c.cfg.APIKey
	}

	body, err := json.Marshal(completionRequest{
		Model:    model,
		Messages: req.Messages,
		Stream:   true,
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling completion request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.cfg.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating completion request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+apiKey)
	httpReq.Header.Set("Content-Type", "application/json")
	if c.cfg.Referer != "" {
		httpReq.Header.Set("HTTP-Referer", c.cfg.Referer)
	}
	if c.cfg.Title != "" {
		httpReq.Header.Set("X-Title", c.cfg.Title)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("sending completion request: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("openrouter returned status %d: %s", resp.StatusCode, string(raw))
	}

	c.logger.Debug("completion stream opened",
		zap.String("model", model),
		zap.Duration("connect", time.Since(start)),
	)

	reader := sse.NewReader(resp.Body)

	recv := func() (string, error) {
		for {
			event, err := reader.Next()
			if err != nil {
				return "", fmt.Errorf("reading completion stream: %w", err)
			}
			if event == nil || event.Data == doneSentinel {
				return "", io.EOF
			}

			var chunk completionChunk
			if err := json.Unmarshal([]byte(event.Data), &chunk); err != nil {
				return "", fmt.Errorf("decoding completion chunk: %w", err)
			}

			// Chunks without a content delta (role preludes, usage
			// frames) are skipped.
			if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
				continue
			}

			return chunk.Choices[0].Delta.Content, nil
		}
	}

	return provider.NewStream(recv, resp.Body.Close), nil
}

var _ provider.Streamer = (*Client)(nil)
