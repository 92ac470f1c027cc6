package status

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanta/DevOpsReleaseReport/internal/domain"
	"github.com/alanta/DevOpsReleaseReport/internal/repository"
)

const defaultConcurrency = 4

// Scanner resolves every recently built pipeline definition.
type Scanner struct {
	builds      repository.BuildRepository
	resolver    Resolver
	project     string
	concurrency int
	now         func() time.Time
}

// NewScanner constructs a Scanner.
func NewScanner(builds repository.BuildRepository, resolver Resolver, cfg Config) Scanner {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	return Scanner{
		builds:      builds,
		resolver:    resolver,
		project:     cfg.Project,
		concurrency: cfg.Concurrency,
		now:         time.Now,
	}
}

// Scan returns the pending statuses of YAML definitions built within window,
// in definition listing order. Any resolver failure fails the scan.
func (s Scanner) Scan(ctx context.Context, window time.Duration) ([]domain.DeploymentStatus, error) {
	builtAfter := time.Time{}
	if window > 0 {
		builtAfter = s.now().UTC().Add(-window).Truncate(24 * time.Hour)
	}
	defs, err := s.builds.ListDefinitions(ctx, s.project, builtAfter, domain.ProcessTypeYAML)
	if err != nil {
		return nil, fmt.Errorf("list definitions: %w", err)
	}

	statuses := make([]domain.DeploymentStatus, len(defs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, def := range defs {
		g.Go(func() error {
			status, err := s.resolver.Resolve(gctx, def)
			if err != nil {
				return fmt.Errorf("resolve definition %d: %w", def.ID, err)
			}
			statuses[i] = status
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, err
	}

	pending := make([]domain.DeploymentStatus, 0, len(statuses))
	for _, status := range statuses {
		if status.IsPending() {
			pending = append(pending, status)
		}
	}
	return pending, nil
}
