// Package agent queries a live agent endpoint to populate turn responses
// before evaluation. Only used when live-data mode is enabled.
package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/stellarlinkco/convo-eval/internal/dataset"
)

// Reply carries the agent's answer for one turn. ConversationID is threaded
// into subsequent queries of the same group.
type Reply struct {
	Response       string             `json:"response"`
	ToolCalls      []dataset.ToolCall `json:"tool_calls,omitempty"`
	ConversationID string             `json:"conversation_id,omitempty"`
}

// Client is the query collaborator contract the orchestrator depends on.
type Client interface {
	Query(ctx context.Context, query, conversationID string) (*Reply, error)
}

// HTTPClient queries an agent over a JSON POST endpoint.
type HTTPClient struct {
	BaseURL  string
	Provider string
	Model    string
	Timeout  time.Duration

	httpClient *http.Client
}

// NewHTTPClient builds a client for baseURL with the given provider/model
// identity attached to every query.
func NewHTTPClient(baseURL, provider, model string, timeout time.Duration) (*HTTPClient, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("agent: empty base url")
	}
	if timeout <= 0 {
		timeout = 300 * time.Second
	}
	return &HTTPClient{
		BaseURL:    baseURL,
		Provider:   provider,
		Model:      model,
		Timeout:    timeout,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

type queryRequest struct {
	Query          string `json:"query"`
	Provider       string `json:"provider,omitempty"`
	Model          string `json:"model,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
}

// Query sends one turn's query. conversationID is empty for the first turn
// of a group.
func (c *HTTPClient) Query(ctx context.Context, query, conversationID string) (*Reply, error) {
	if c == nil {
		return nil, errors.New("agent: nil client")
	}
	if ctx == nil {
		return nil, errors.New("agent: nil context")
	}
	if strings.TrimSpace(query) == "" {
		return nil, errors.New("agent: empty query")
	}

	body, err := json.Marshal(queryRequest{
		Query:          query,
		Provider:       c.Provider,
		Model:          c.Model,
		ConversationID: conversationID,
	})
	if err != nil {
		return nil, fmt.Errorf("agent: marshal query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/v1/query", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("agent: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("agent: query: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, fmt.Errorf("agent: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("agent: query returned %d: %s", resp.StatusCode, truncate(string(data), 512))
	}

	var out Reply
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("agent: decode response: %w", err)
	}
	return &out, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
