// Package websearch provides a best-effort web search client backed by the
// Tavily REST API. Search never returns an error: any failure, including a
// missing credential, yields an empty result string and the turn proceeds
// without web context.
package websearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultBaseURL is the Tavily API root.
	DefaultBaseURL = "https://api.tavily.com"

	// DefaultResultCount is the number of results requested when the
	// caller passes k <= 0.
	DefaultResultCount = 5
)

// Config holds configuration for the web search client.
type Config struct {
	// APIKey is the Tavily credential. Empty disables the client.
	APIKey string

	// BaseURL overrides DefaultBaseURL when set.
	BaseURL string
}

// Client performs web searches against Tavily.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a Tavily-backed search client.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		logger: logger,
	}
}

// Available reports whether a credential is configured.
func (c *Client) Available() bool {
	return c.cfg.APIKey != ""
}

// searchRequest is the POST /search body.
type searchRequest struct {
	Query             string `json:"query"`
	MaxResults        int    `json:"max_results"`
	IncludeAnswer     bool   `json:"include_answer"`
	IncludeRawContent bool   `json:"include_raw_content"`
}

// searchResponse is the /search response.
type searchResponse struct {
	Results []struct {
		Title   string `json:"title"`
		URL     string `json:"url"`
		Content string `json:"content"`
	} `json:"results"`
}

// Search runs a query and formats the top k results as newline-joined
// "- title (url): content" lines. Failures return an empty string.
func (c *Client) Search(ctx context.Context, query string, k int) string {
	if !c.Available() {
		return ""
	}
	if k <= 0 {
		k = DefaultResultCount
	}

	body, err := json.Marshal(searchRequest{
		Query:      query,
		MaxResults: k,
	})
	if err != nil {
		c.logger.Warn("web search request marshaling failed", zap.Error(err))
		return ""
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.cfg.BaseURL+"/search", bytes.NewReader(body))
	if err != nil {
		c.logger.Warn("web search request creation failed", zap.Error(err))
		return ""
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("web search failed", zap.Error(err))
		return ""
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn("web search returned non-OK status", zap.Int("status", resp.StatusCode))
		return ""
	}

	var result searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		c.logger.Warn("web search response decoding failed", zap.Error(err))
		return ""
	}

	lines := make([]string, 0, len(result.Results))
	for _, r := range result.Results {
		lines = append(lines, fmt.Sprintf("- %s (%s): %s", r.Title, r.URL, r.Content))
	}

	c.logger.Debug("web search completed",
		zap.String("query", query),
		zap.Int("results", len(lines)),
	)

	return strings.Join(lines, "\n")
}
