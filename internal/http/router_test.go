package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/alanta/DevOpsReleaseReport/internal/domain"
	"github.com/alanta/DevOpsReleaseReport/internal/repository"
	"github.com/alanta/DevOpsReleaseReport/internal/service/auth"
	"github.com/alanta/DevOpsReleaseReport/internal/service/report"
	"github.com/alanta/DevOpsReleaseReport/pkg/crypto"
)

const testSecret = "router-secret"

type reportStub struct {
	releases    []domain.Release
	release     *domain.Release
	err         error
	environment string
	lastID      int
}

func (s *reportStub) ListPendingReleases(_ context.Context, environment string) ([]domain.Release, error) {
	s.environment = environment
	return s.releases, s.err
}

func (s *reportStub) GetRelease(_ context.Context, id int) (*domain.Release, error) {
	s.lastID = id
	return s.release, s.err
}

func newTestRouter(t *testing.T, reports ReportService, keyHashes []string, checks map[string]HealthCheck) *Router {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	r := NewRouter(logger, auth.New(testSecret, keyHashes, logger), reports, newMemoryRateLimiter(time.Now), "Production", checks)
	t.Cleanup(r.Close)
	return r
}

func bearer(t *testing.T) string {
	t.Helper()
	token, err := auth.New(testSecret, nil, nil).IssueToken("ops", "Ops", time.Hour)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	return "Bearer " + token
}

func serve(r *Router, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestReleaseReportRequiresAuth(t *testing.T) {
	r := newTestRouter(t, &reportStub{}, nil, nil)

	rec := serve(r, httptest.NewRequest(http.MethodGet, "/api/ReleaseReport", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	req := httptest.NewRequest(http.MethodGet, "/api/ReleaseReport", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	if rec := serve(r, req); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for invalid token, got %d", rec.Code)
	}
}

func TestReleaseReportReturnsReleases(t *testing.T) {
	stub := &reportStub{releases: []domain.Release{{
		ID:      5,
		Name:    "api",
		Version: "1.1",
		WorkItems: []domain.WorkItem{{
			ID:    201,
			Type:  domain.TypePBI,
			Tasks: []domain.WorkItem{{ID: 101, Type: domain.TypeTask}},
		}},
	}}}
	r := newTestRouter(t, stub, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/ReleaseReport", nil)
	req.Header.Set("Authorization", bearer(t))
	rec := serve(r, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if stub.environment != "Production" {
		t.Fatalf("expected default environment, got %q", stub.environment)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Fatal("expected generated request id")
	}
	if rec.Header().Get("X-RateLimit-Limit") == "" {
		t.Fatal("expected rate limit headers")
	}
	var payload []map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	items, ok := payload[0]["workItems"].([]any)
	if !ok || len(items) != 1 {
		t.Fatalf("expected workItems array, got %v", payload[0])
	}
	tasks := items[0].(map[string]any)["tasks"].([]any)
	if len(tasks) != 1 {
		t.Fatalf("expected nested task, got %v", items[0])
	}
}

func TestReleaseReportEnvironmentQueryAndRequestID(t *testing.T) {
	stub := &reportStub{}
	r := newTestRouter(t, stub, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/ReleaseReport?environment=Staging", nil)
	req.Header.Set("Authorization", bearer(t))
	req.Header.Set("X-Request-ID", "req-1")
	rec := serve(r, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if stub.environment != "Staging" {
		t.Fatalf("expected query environment, got %q", stub.environment)
	}
	if rec.Header().Get("X-Request-ID") != "req-1" {
		t.Fatalf("expected request id echoed, got %q", rec.Header().Get("X-Request-ID"))
	}
	if strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Fatalf("expected empty array, got %s", rec.Body.String())
	}
}

func TestFunctionKeyAuth(t *testing.T) {
	hash, err := crypto.HashKey("fn-key")
	if err != nil {
		t.Fatalf("HashKey: %v", err)
	}
	r := newTestRouter(t, &reportStub{}, []string{string(hash)}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/ReleaseReport", nil)
	req.Header.Set("x-functions-key", "fn-key")
	if rec := serve(r, req); rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with header key, got %d", rec.Code)
	}
	req = httptest.NewRequest(http.MethodGet, "/api/ReleaseReport?code=fn-key", nil)
	if rec := serve(r, req); rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with code param, got %d", rec.Code)
	}
	req = httptest.NewRequest(http.MethodGet, "/api/ReleaseReport?code=wrong", nil)
	if rec := serve(r, req); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with wrong key, got %d", rec.Code)
	}
}

func TestServiceErrorsAreMapped(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{fmt.Errorf("list builds: %w", repository.ErrUnavailable), http.StatusBadGateway},
		{context.Canceled, http.StatusServiceUnavailable},
		{fmt.Errorf("lookup: %w", report.ErrNotSupported), http.StatusNotImplemented},
		{errors.New("something upstream said: secret detail"), http.StatusBadGateway},
	}
	for _, tc := range cases {
		r := newTestRouter(t, &reportStub{err: tc.err}, nil, nil)
		req := httptest.NewRequest(http.MethodGet, "/api/Refresh/5", nil)
		req.Header.Set("Authorization", bearer(t))
		rec := serve(r, req)
		if rec.Code != tc.code {
			t.Fatalf("%v: expected %d, got %d", tc.err, tc.code, rec.Code)
		}
		if strings.Contains(rec.Body.String(), "secret detail") {
			t.Fatalf("upstream detail leaked: %s", rec.Body.String())
		}
	}
}

func TestRefresh(t *testing.T) {
	stub := &reportStub{release: &domain.Release{ID: 9, Name: "web", WorkItems: []domain.WorkItem{}}}
	r := newTestRouter(t, stub, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/Refresh/9", nil)
	req.Header.Set("Authorization", bearer(t))
	rec := serve(r, req)
	if rec.Code != http.StatusOK || stub.lastID != 9 {
		t.Fatalf("expected 200 for id 9, got %d (id %d)", rec.Code, stub.lastID)
	}

	stub.release = nil
	req = httptest.NewRequest(http.MethodGet, "/api/Refresh/10", nil)
	req.Header.Set("Authorization", bearer(t))
	if rec := serve(r, req); rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 for unknown definition, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/Refresh/abc", nil)
	req.Header.Set("Authorization", bearer(t))
	if rec := serve(r, req); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid id, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/Refresh/9", nil)
	req.Header.Set("Authorization", bearer(t))
	if rec := serve(r, req); rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}

func TestRateLimit(t *testing.T) {
	r := newTestRouter(t, &reportStub{}, nil, nil)
	header := bearer(t)
	var last int
	for i := 0; i <= rateLimitReport; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/ReleaseReport", nil)
		req.Header.Set("Authorization", header)
		last = serve(r, req).Code
	}
	if last != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after %d requests, got %d", rateLimitReport, last)
	}
}

func TestHealthz(t *testing.T) {
	r := newTestRouter(t, &reportStub{}, nil, map[string]HealthCheck{
		"devops": func(context.Context) error { return nil },
	})
	if rec := serve(r, httptest.NewRequest(http.MethodGet, "/healthz", nil)); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	r = newTestRouter(t, &reportStub{}, nil, map[string]HealthCheck{
		"devops": func(context.Context) error { return nil },
		"cache":  func(context.Context) error { return errors.New("redis down") },
	})
	rec := serve(r, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	var payload struct {
		Status     string                    `json:"status"`
		Components map[string]map[string]any `json:"components"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.Status != "degraded" || payload.Components["cache"]["status"] != "down" {
		t.Fatalf("unexpected health payload %+v", payload)
	}
}

func TestMemoryRateLimiterWindow(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	rl := newMemoryRateLimiter(func() time.Time { return now })
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if !rl.Allow(ctx, "k", 2, time.Minute).allowed {
			t.Fatalf("request %d should be allowed", i)
		}
	}
	if rl.Allow(ctx, "k", 2, time.Minute).allowed {
		t.Fatal("third request should be limited")
	}
	now = now.Add(2 * time.Minute)
	if !rl.Allow(ctx, "k", 2, time.Minute).allowed {
		t.Fatal("request in new window should be allowed")
	}
	rl.cleanup(now.Add(time.Hour))
	if len(rl.entries) != 0 {
		t.Fatalf("expected cleanup to drop expired windows, got %d", len(rl.entries))
	}
}

func reportRequest(header string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/api/ReleaseReport", nil)
	req.Header.Set("Authorization", header)
	return req
}

func TestRedisRateLimit(t *testing.T) {
	mr := miniredis.RunT(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	limiter, err := NewRedisRateLimiter(mr.Addr(), "", 0, logger)
	if err != nil {
		t.Fatalf("NewRedisRateLimiter: %v", err)
	}
	r := NewRouter(logger, auth.New(testSecret, nil, logger), &reportStub{}, limiter, "Production", nil)
	t.Cleanup(r.Close)
	header := bearer(t)

	start := time.Now()
	first := serve(r, reportRequest(header))
	if first.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", first.Code)
	}
	if got := first.Header().Get("X-RateLimit-Limit"); got != strconv.Itoa(rateLimitReport) {
		t.Fatalf("unexpected limit header %q", got)
	}
	if got := first.Header().Get("X-RateLimit-Remaining"); got != strconv.Itoa(rateLimitReport-1) {
		t.Fatalf("unexpected remaining header %q", got)
	}
	reset, err := strconv.ParseInt(first.Header().Get("X-RateLimit-Reset"), 10, 64)
	if err != nil {
		t.Fatalf("parse reset header: %v", err)
	}
	if delta := time.Unix(reset, 0).Sub(start); delta < rateWindowDefault-2*time.Second || delta > rateWindowDefault+2*time.Second {
		t.Fatalf("expected reset one window ahead, got %s", delta)
	}

	const key = "releasereport:ratelimit:bearer:ops"
	if ttl := mr.TTL(key); ttl != rateWindowDefault {
		t.Fatalf("expected window ttl on %s, got %s", key, ttl)
	}

	var last *httptest.ResponseRecorder
	for i := 1; i <= rateLimitReport; i++ {
		last = serve(r, reportRequest(header))
	}
	if last.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after %d requests, got %d", rateLimitReport, last.Code)
	}
	if got := last.Header().Get("X-RateLimit-Remaining"); got != "0" {
		t.Fatalf("expected no remaining requests, got %q", got)
	}
	if ttl := mr.TTL(key); ttl != rateWindowDefault {
		t.Fatalf("expected window not to be extended, got %s", ttl)
	}

	mr.FastForward(rateWindowDefault)
	rec := serve(r, reportRequest(header))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 in a new window, got %d", rec.Code)
	}
	if got := rec.Header().Get("X-RateLimit-Remaining"); got != strconv.Itoa(rateLimitReport-1) {
		t.Fatalf("expected counter reset, got %q", got)
	}
}

func TestRedisRateLimitFailsOpen(t *testing.T) {
	mr := miniredis.RunT(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	limiter, err := NewRedisRateLimiter(mr.Addr(), "", 0, logger)
	if err != nil {
		t.Fatalf("NewRedisRateLimiter: %v", err)
	}
	r := NewRouter(logger, auth.New(testSecret, nil, logger), &reportStub{}, limiter, "Production", nil)
	t.Cleanup(r.Close)

	mr.Close()
	if rec := serve(r, reportRequest(bearer(t))); rec.Code != http.StatusOK {
		t.Fatalf("expected request to pass while redis is down, got %d", rec.Code)
	}
}
