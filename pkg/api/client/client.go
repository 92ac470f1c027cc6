// Package client provides typed access to the release report API.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client provides typed access to the release report API for interactive tools.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	functionKey string
}

// Option customises client instantiation.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.httpClient = h
		}
	}
}

// WithFunctionKey authenticates requests made without a bearer token.
func WithFunctionKey(key string) Option {
	return func(c *Client) {
		c.functionKey = strings.TrimSpace(key)
	}
}

// New constructs a Client pointing at the provided API base URL.
func New(base string, opts ...Option) (*Client, error) {
	trimmed := strings.TrimSpace(base)
	if trimmed == "" {
		trimmed = "http://localhost:7071"
	}
	if !strings.HasPrefix(trimmed, "http://") && !strings.HasPrefix(trimmed, "https://") {
		trimmed = "http://" + trimmed
	}
	if _, err := url.Parse(trimmed); err != nil {
		return nil, fmt.Errorf("invalid api base url: %w", err)
	}
	cli := &Client{
		baseURL: strings.TrimRight(trimmed, "/"),
		// Listing releases walks every pipeline upstream on a cold cache.
		httpClient: &http.Client{Timeout: 2 * time.Minute},
	}
	for _, opt := range opts {
		opt(cli)
	}
	return cli, nil
}

// APIError represents an error response from the API.
type APIError struct {
	Status  int
	Message string
}

func (e APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api request failed with status %d", e.Status)
	}
	return fmt.Sprintf("api request failed (%d): %s", e.Status, e.Message)
}

// errNoContent marks an empty successful response.
var errNoContent = errors.New("no content")

func (c *Client) do(ctx context.Context, path, token string, v any) error {
	if c == nil {
		return fmt.Errorf("client is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if strings.TrimSpace(token) != "" {
		req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(token))
	} else if c.functionKey != "" {
		req.Header.Set("x-functions-key", c.functionKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return APIError{Status: resp.StatusCode, Message: extractError(resp.Body)}
	}
	if resp.StatusCode == http.StatusNoContent {
		return errNoContent
	}
	if v == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func extractError(body io.Reader) string {
	if body == nil {
		return ""
	}
	var payload struct {
		Error string `json:"error"`
	}
	data, err := io.ReadAll(body)
	if err != nil || len(data) == 0 {
		return ""
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return strings.TrimSpace(string(data))
	}
	return strings.TrimSpace(payload.Error)
}

// WorkItem is a backlog item or task shipped with a release.
type WorkItem struct {
	ID          int        `json:"id"`
	ParentID    *int       `json:"parentId,omitempty"`
	Type        string     `json:"type"`
	Description string     `json:"description"`
	Status      string     `json:"status"`
	URL         string     `json:"url,omitempty"`
	Tasks       []WorkItem `json:"tasks,omitempty"`
}

// Release is a deployment awaiting approval.
type Release struct {
	ID        int        `json:"id"`
	Name      string     `json:"name"`
	Version   string     `json:"version"`
	URL       string     `json:"url,omitempty"`
	WorkItems []WorkItem `json:"workItems"`
}

// ListPendingReleases returns releases awaiting approval. An empty environment
// uses the server default.
func (c *Client) ListPendingReleases(ctx context.Context, token, environment string) ([]Release, error) {
	path := "/api/ReleaseReport"
	if env := strings.TrimSpace(environment); env != "" {
		path += "?environment=" + url.QueryEscape(env)
	}
	var releases []Release
	if err := c.do(ctx, path, token, &releases); err != nil {
		if errors.Is(err, errNoContent) {
			return []Release{}, nil
		}
		return nil, err
	}
	return releases, nil
}

// Refresh recomputes the release of one pipeline definition. It returns nil
// when the definition does not exist.
func (c *Client) Refresh(ctx context.Context, token string, id int) (*Release, error) {
	var release Release
	if err := c.do(ctx, fmt.Sprintf("/api/Refresh/%d", id), token, &release); err != nil {
		if errors.Is(err, errNoContent) {
			return nil, nil
		}
		return nil, err
	}
	return &release, nil
}

// Health is the service health summary.
type Health struct {
	Status     string                    `json:"status"`
	Components map[string]map[string]any `json:"components"`
}

// Health reports the service and dependency status. A degraded service
// answers with 503 and is returned as an APIError.
func (c *Client) Health(ctx context.Context) (Health, error) {
	var health Health
	if err := c.do(ctx, "/healthz", "", &health); err != nil {
		return Health{}, err
	}
	return health, nil
}
