// Package httpx exposes the release report over HTTP.
package httpx

import (
	"context"
	"net"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"log/slog"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/alanta/DevOpsReleaseReport/internal/domain"
	"github.com/alanta/DevOpsReleaseReport/internal/service/auth"
)

// ReportService is the report core consumed by the router.
type ReportService interface {
	ListPendingReleases(ctx context.Context, environment string) ([]domain.Release, error)
	GetRelease(ctx context.Context, id int) (*domain.Release, error)
}

// HealthCheck probes one dependency.
type HealthCheck func(context.Context) error

// Router wires HTTP endpoints to services.
type Router struct {
	mux         *http.ServeMux
	logger      *slog.Logger
	auth        auth.Service
	reports     ReportService
	limiter     RateLimiter
	environment string
	checks      map[string]HealthCheck

	metricsOnce        sync.Once
	metricsInitialized bool
	requestTotal       *prometheus.CounterVec
	requestLatency     *prometheus.HistogramVec
	rateLimitHits      *prometheus.CounterVec
}

const (
	routeReleaseReport = "/api/ReleaseReport"
	routeRefresh       = "/api/Refresh/"

	rateWindowDefault  = time.Minute
	rateLimitReport    = 30
	rateLimitRefresh   = 60
	healthCheckTimeout = 2 * time.Second
	requestIDHeader    = "X-Request-ID"
)

// NewRouter assembles routes with dependencies. environment is the default
// environment filter for release listings.
func NewRouter(logger *slog.Logger, authSvc auth.Service, reports ReportService, limiter RateLimiter, environment string, checks map[string]HealthCheck) *Router {
	r := &Router{
		mux:         http.NewServeMux(),
		logger:      logger,
		auth:        authSvc,
		reports:     reports,
		limiter:     limiter,
		environment: environment,
		checks:      checks,
	}
	if r.limiter == nil {
		r.limiter = NewMemoryRateLimiter()
	}
	r.initMetrics()
	r.register()
	return r
}

// ServeHTTP delegates to underlying mux.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// Close releases background resources.
func (r *Router) Close() {
	if r.limiter != nil {
		r.limiter.Close()
	}
}

func (r *Router) register() {
	r.mux.HandleFunc("/healthz", r.audit("/healthz", r.handleHealthz))
	r.mux.Handle("/metrics", promhttp.Handler())
	r.mux.HandleFunc(routeReleaseReport, r.audit(routeReleaseReport, r.requireAuth(r.withRateLimit(routeReleaseReport, rateLimitReport, rateWindowDefault, r.handleReleaseReport))))
	r.mux.HandleFunc(routeRefresh, r.audit(routeRefresh, r.requireAuth(r.withRateLimit(routeRefresh, rateLimitRefresh, rateWindowDefault, r.handleRefresh))))
}

func (r *Router) handleReleaseReport(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	environment := r.environment
	if q := strings.TrimSpace(req.URL.Query().Get("environment")); q != "" {
		environment = q
	}
	releases, err := r.reports.ListPendingReleases(req.Context(), environment)
	if err != nil {
		r.logger.Error("list pending releases failed", "environment", environment, "error", err)
		writeServiceError(w, err)
		return
	}
	if releases == nil {
		releases = []domain.Release{}
	}
	writeJSON(w, http.StatusOK, releases)
}

func (r *Router) handleRefresh(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	raw := strings.Trim(strings.TrimPrefix(req.URL.Path, routeRefresh), "/")
	id, err := strconv.Atoi(raw)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid release id")
		return
	}
	release, err := r.reports.GetRelease(req.Context(), id)
	if err != nil {
		r.logger.Error("refresh release failed", "release_id", id, "error", err)
		writeServiceError(w, err)
		return
	}
	if release == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, release)
}

func (r *Router) handleHealthz(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	components := make(map[string]any)
	status := "ok"
	names := make([]string, 0, len(r.checks))
	for name := range r.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		ctx, cancel := context.WithTimeout(req.Context(), healthCheckTimeout)
		err := r.checks[name](ctx)
		cancel()
		if err != nil {
			status = "degraded"
			r.logger.Warn("health check failed", "component", name, "error", err)
			components[name] = map[string]any{"status": "down"}
			continue
		}
		components[name] = map[string]any{"status": "up"}
	}
	payload := map[string]any{
		"status":     status,
		"components": components,
		"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
	}
	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, payload)
}

// audit assigns a request id, records metrics and writes one log line per request.
func (r *Router) audit(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		reqID := strings.TrimSpace(req.Header.Get(requestIDHeader))
		if reqID == "" {
			reqID = uuid.NewString()
			req.Header.Set(requestIDHeader, reqID)
		}
		w.Header().Set(requestIDHeader, reqID)

		recorder := &statusRecorder{ResponseWriter: w}
		start := time.Now()
		next(recorder, req)

		status := recorder.status
		if status == 0 {
			status = http.StatusOK
		}
		ctx := recorder.ctx
		if ctx == nil {
			ctx = req.Context()
		}
		duration := time.Since(start)
		r.recordRequestMetrics(req.Method, route, status, duration)

		actor := "anonymous"
		fields := []any{
			"method", req.Method,
			"path", req.URL.Path,
			"status", status,
			"bytes", recorder.bytes,
			"duration_ms", duration.Milliseconds(),
			"request_id", reqID,
		}
		if ip := clientIP(req); ip != "" {
			fields = append(fields, "ip", ip)
		}
		if info, ok := authInfoFromContext(ctx); ok {
			actor = info.Method
			fields = append(fields, "subject", info.Subject)
		}
		fields = append(fields, "actor", actor)

		switch {
		case status >= http.StatusInternalServerError:
			r.logger.Error("http_request", fields...)
		case status >= http.StatusBadRequest:
			r.logger.Warn("http_request", fields...)
		default:
			r.logger.Info("http_request", fields...)
		}
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
	ctx    context.Context
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	if sr.status == 0 {
		sr.status = http.StatusOK
	}
	n, err := sr.ResponseWriter.Write(b)
	sr.bytes += n
	return n, err
}

func (sr *statusRecorder) SetContext(ctx context.Context) {
	sr.ctx = ctx
}

func clientIP(req *http.Request) string {
	if forwarded := strings.TrimSpace(req.Header.Get("X-Forwarded-For")); forwarded != "" {
		if ip := strings.TrimSpace(strings.Split(forwarded, ",")[0]); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(req.RemoteAddr))
	if err != nil {
		return strings.TrimSpace(req.RemoteAddr)
	}
	return host
}

func (r *Router) methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}
