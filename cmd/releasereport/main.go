package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/alanta/DevOpsReleaseReport/internal/cache"
	"github.com/alanta/DevOpsReleaseReport/internal/domain"
	httpx "github.com/alanta/DevOpsReleaseReport/internal/http"
	"github.com/alanta/DevOpsReleaseReport/internal/repository/devops"
	"github.com/alanta/DevOpsReleaseReport/internal/service/auth"
	"github.com/alanta/DevOpsReleaseReport/internal/service/classic"
	"github.com/alanta/DevOpsReleaseReport/internal/service/report"
	"github.com/alanta/DevOpsReleaseReport/internal/service/status"
	"github.com/alanta/DevOpsReleaseReport/internal/service/workitems"
	"github.com/alanta/DevOpsReleaseReport/pkg/config"
	"github.com/alanta/DevOpsReleaseReport/pkg/logger"
)

func main() {
	cfg := config.LoadReportConfig()
	log := logger.New("releasereport", logger.ParseLevel(cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if strings.TrimSpace(cfg.ProjectName) == "" {
		log.Error("AZDO_PROJECT is required")
		os.Exit(1)
	}

	repo, err := devops.New(cfg.OrganizationURL, cfg.AccessToken,
		devops.WithReleaseURL(cfg.ReleaseURL),
		devops.WithTimeout(cfg.UpstreamTimeout),
		devops.WithLogger(log),
	)
	if err != nil {
		log.Error("failed to configure devops client", "error", err)
		os.Exit(1)
	}
	defer repo.Close()

	checks := map[string]httpx.HealthCheck{
		"devops": func(ctx context.Context) error { return repo.Ping(ctx, cfg.ProjectName) },
	}

	var backend cache.Backend = cache.NewMemory()
	if addr := strings.TrimSpace(cfg.CacheRedisAddr); addr != "" {
		redisCache, err := cache.NewRedis(addr, cfg.CacheRedisPass, cfg.CacheRedisDB)
		if err != nil {
			log.Warn("redis cache unavailable, using memory", "error", err)
		} else {
			_ = backend.Close()
			backend = redisCache
			checks["cache"] = redisCache.Ping
		}
	}
	defer backend.Close()

	itemCache := cache.New[domain.Item]("work_items", backend, log)
	loader := workitems.NewLoader(repo, itemCache, cfg.ProjectName, cfg.CacheTTL)
	assembler := workitems.NewAssembler(repo, loader, cfg.ProjectName)

	var source report.Source
	switch cfg.Source {
	case config.SourceClassic:
		source = classic.NewSource(repo, cfg.ProjectName, log)
	default:
		statusCfg := status.Config{
			Project:        cfg.ProjectName,
			BuildsPerQuery: cfg.BuildsPerQuery,
			TTL:            cfg.CacheTTL,
			Concurrency:    cfg.Concurrency,
		}
		statusCache := cache.New[domain.DeploymentStatus]("definitions", backend, log)
		resolver := status.NewResolver(repo, statusCache, statusCfg, log)
		scanner := status.NewScanner(repo, resolver, statusCfg)
		source = status.NewSource(repo, resolver, scanner, cfg.ProjectName, cfg.RecencyWindow)
	}
	reportSvc := report.New(source, assembler, cfg.Concurrency, log)

	if cfg.WarmInterval > 0 {
		warmer := report.NewWarmer(reportSvc, cfg.EnvironmentFilter, cfg.WarmInterval, log)
		go warmer.Run(ctx)
	}

	authSvc := auth.New(cfg.JWTSecret, cfg.FunctionKeyHashes, log)
	if !authSvc.Configured() {
		log.Warn("no JWT_SECRET or FUNCTION_KEY_HASHES configured; all report requests will be rejected")
	}

	limiter := httpx.NewMemoryRateLimiter()
	if addr := strings.TrimSpace(cfg.RateLimitRedisAddr); addr != "" {
		redisLimiter, err := httpx.NewRedisRateLimiter(addr, cfg.RateLimitRedisPass, cfg.RateLimitRedisDB, log)
		if err != nil {
			log.Warn("redis rate limiter unavailable", "error", err)
		} else {
			limiter.Close()
			limiter = redisLimiter
		}
	}

	router := httpx.NewRouter(log, authSvc, reportSvc, limiter, cfg.EnvironmentFilter, checks)
	defer router.Close()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errorCh := make(chan error, 1)
	go func() {
		log.Info("release report server starting",
			slog.String("addr", cfg.Addr),
			slog.String("source", cfg.Source),
			slog.String("project", cfg.ProjectName),
		)
		errorCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("graceful shutdown failed", "error", err)
		}
		log.Info("release report server stopped")
	case err := <-errorCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}
}
