package devops

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/alanta/DevOpsReleaseReport/internal/repository"
)

const (
	apiVersion       = "7.1"
	maxErrorBodySize = 4096
	defaultTimeout   = 30 * time.Second
)

// Repository implements the upstream query contracts on the Azure DevOps REST API.
type Repository struct {
	orgURL     string
	releaseURL string
	token      string
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *metrics
}

// ensure Repository satisfies interfaces.
var (
	_ repository.BuildRepository    = (*Repository)(nil)
	_ repository.ChangeRepository   = (*Repository)(nil)
	_ repository.WorkItemRepository = (*Repository)(nil)
	_ repository.ReleaseRepository  = (*Repository)(nil)
)

// Option customises repository instantiation.
type Option func(*Repository)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(r *Repository) {
		if h != nil {
			r.httpClient = h
		}
	}
}

// WithReleaseURL overrides the classic release management endpoint.
func WithReleaseURL(base string) Option {
	return func(r *Repository) {
		if trimmed := strings.TrimRight(strings.TrimSpace(base), "/"); trimmed != "" {
			r.releaseURL = trimmed
		}
	}
}

// WithTimeout sets the timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(r *Repository) {
		if d > 0 {
			r.httpClient.Timeout = d
		}
	}
}

// WithLogger sets the logger used for upstream diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Repository) {
		if logger != nil {
			r.logger = logger.With("component", "devops")
		}
	}
}

// New constructs a Repository for the organisation URL authenticated with a personal access token.
func New(orgURL, token string, opts ...Option) (*Repository, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(orgURL), "/")
	if trimmed == "" {
		return nil, errors.New("organization url required")
	}
	if _, err := url.Parse(trimmed); err != nil {
		return nil, fmt.Errorf("invalid organization url: %w", err)
	}
	r := &Repository{
		orgURL:     trimmed,
		releaseURL: trimmed,
		token:      token,
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		metrics:    newMetrics(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Close releases idle upstream connections.
func (r *Repository) Close() {
	if r == nil || r.httpClient == nil {
		return
	}
	r.httpClient.CloseIdleConnections()
}

// Ping verifies the project is reachable with the configured credentials.
func (r *Repository) Ping(ctx context.Context, project string) error {
	endpoint := r.orgURL + "/_apis/projects/" + url.PathEscape(project)
	_, err := r.get(ctx, "ping", endpoint, nil, nil)
	return err
}

// APIError represents a non-successful upstream response.
type APIError struct {
	Status  int
	Message string
}

func (e APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("azure devops request failed with status %d", e.Status)
	}
	return fmt.Sprintf("azure devops request failed (%d): %s", e.Status, e.Message)
}

// Unwrap maps the response status onto repository sentinel errors.
func (e APIError) Unwrap() error {
	if e.Status == http.StatusNotFound {
		return repository.ErrNotFound
	}
	return repository.ErrUnavailable
}

func (r *Repository) projectURL(base, project, path string) string {
	return base + "/" + url.PathEscape(project) + "/_apis/" + strings.TrimLeft(path, "/")
}

// get performs a GET request and decodes the JSON body into v when present.
func (r *Repository) get(ctx context.Context, op, endpoint string, query url.Values, v any) (*http.Response, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if query == nil {
		query = url.Values{}
	}
	query.Set("api-version", apiVersion)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if r.token != "" {
		req.SetBasicAuth("", r.token)
	}

	start := time.Now()
	resp, err := r.httpClient.Do(req)
	if err != nil {
		r.metrics.observe(op, "error")
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		r.logger.Error("azure devops request failed", "op", op, "error", err)
		return nil, fmt.Errorf("%w: %s: %v", repository.ErrUnavailable, op, err)
	}
	defer resp.Body.Close()
	r.logger.Debug("azure devops request", "op", op, "status", resp.StatusCode, "duration_ms", time.Since(start).Milliseconds())

	if resp.StatusCode >= http.StatusBadRequest {
		r.metrics.observe(op, strconv.Itoa(resp.StatusCode))
		return resp, APIError{Status: resp.StatusCode, Message: extractError(resp.Body)}
	}
	r.metrics.observe(op, "ok")
	if v == nil || resp.StatusCode == http.StatusNoContent {
		return resp, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return resp, nil
		}
		return resp, fmt.Errorf("decode %s response: %w", op, err)
	}
	return resp, nil
}

func extractError(body io.Reader) string {
	if body == nil {
		return ""
	}
	data, err := io.ReadAll(io.LimitReader(body, maxErrorBodySize))
	if err != nil || len(data) == 0 {
		return ""
	}
	var payload struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return strings.TrimSpace(string(data))
	}
	return strings.TrimSpace(payload.Message)
}

type link struct {
	Href string `json:"href"`
}

type links struct {
	Web  *link `json:"web"`
	HTML *link `json:"html"`
}

func (l links) web() string {
	if l.Web == nil {
		return ""
	}
	return l.Web.Href
}

func (l links) html() string {
	if l.HTML == nil {
		return ""
	}
	return l.HTML.Href
}

// flexInt decodes identifiers the API emits either as numbers or strings.
type flexInt int

func (f *flexInt) UnmarshalJSON(data []byte) error {
	raw := strings.Trim(strings.TrimSpace(string(data)), `"`)
	if raw == "" || raw == "null" {
		*f = 0
		return nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fmt.Errorf("invalid identifier %q: %w", raw, err)
	}
	*f = flexInt(n)
	return nil
}

func joinInts(ids []int) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.Itoa(id)
	}
	return strings.Join(parts, ",")
}
