package report

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/alanta/DevOpsReleaseReport/internal/domain"
)

// Lister lists pending releases.
type Lister interface {
	ListPendingReleases(ctx context.Context, environment string) ([]domain.Release, error)
}

// Warmer periodically lists pending releases so interactive requests find a
// warm cache.
type Warmer struct {
	lister      Lister
	environment string
	interval    time.Duration
	logger      *slog.Logger
}

// NewWarmer constructs a Warmer.
func NewWarmer(lister Lister, environment string, interval time.Duration, logger *slog.Logger) Warmer {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return Warmer{lister: lister, environment: environment, interval: interval, logger: logger.With("component", "warmer")}
}

// Run warms immediately and then on every tick until ctx is done. A
// non-positive interval disables warming.
func (w Warmer) Run(ctx context.Context) {
	if w.interval <= 0 || w.lister == nil {
		return
	}
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		w.warm(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (w Warmer) warm(ctx context.Context) {
	start := time.Now()
	releases, err := w.lister.ListPendingReleases(ctx, w.environment)
	if err != nil {
		if ctx.Err() == nil {
			w.logger.Warn("cache warm failed", "error", err)
		}
		return
	}
	w.logger.Debug("cache warmed", "releases", len(releases), "duration_ms", time.Since(start).Milliseconds())
}
