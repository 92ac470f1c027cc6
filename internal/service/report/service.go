// Package report combines deployment candidates with their work item forests.
package report

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/alanta/DevOpsReleaseReport/internal/domain"
)

// ErrNotSupported reports an operation the configured source cannot serve.
var ErrNotSupported = errors.New("operation not supported")

const defaultConcurrency = 4

// Source yields release candidates.
type Source interface {
	Pending(ctx context.Context, environment string) ([]domain.ReleaseCandidate, error)
	// Lookup returns nil without error when the release does not exist.
	Lookup(ctx context.Context, id int) (*domain.ReleaseCandidate, error)
}

// Assembler builds the work item forest shipped by a set of build deltas.
type Assembler interface {
	AssembleDeltas(ctx context.Context, deltas []domain.BuildDelta) ([]domain.WorkItem, error)
}

// Service builds release reports.
type Service struct {
	source      Source
	assembler   Assembler
	concurrency int
	logger      *slog.Logger
}

// New constructs a report Service.
func New(source Source, assembler Assembler, concurrency int, logger *slog.Logger) Service {
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return Service{
		source:      source,
		assembler:   assembler,
		concurrency: concurrency,
		logger:      logger.With("component", "report"),
	}
}

// ListPendingReleases returns every release awaiting approval, ordered by name.
func (s Service) ListPendingReleases(ctx context.Context, environment string) ([]domain.Release, error) {
	candidates, err := s.source.Pending(ctx, environment)
	if err != nil {
		return nil, err
	}
	releases := make([]domain.Release, len(candidates))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, candidate := range candidates {
		g.Go(func() error {
			release, err := s.build(gctx, candidate)
			if err != nil {
				return err
			}
			releases[i] = release
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	sort.SliceStable(releases, func(i, j int) bool {
		return releases[i].Name < releases[j].Name
	})
	return releases, nil
}

// GetRelease returns the release of one definition, nil when it does not exist.
func (s Service) GetRelease(ctx context.Context, id int) (*domain.Release, error) {
	candidate, err := s.source.Lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	if candidate == nil {
		return nil, nil
	}
	release, err := s.build(ctx, *candidate)
	if err != nil {
		return nil, err
	}
	return &release, nil
}

// build assembles the work items of a candidate. Assembly failures leave the
// release without work items; only cancellation is returned.
func (s Service) build(ctx context.Context, candidate domain.ReleaseCandidate) (domain.Release, error) {
	release := domain.Release{
		ID:        candidate.ID,
		Name:      candidate.Name,
		Version:   candidate.Version,
		URL:       candidate.URL,
		WorkItems: []domain.WorkItem{},
	}
	if len(candidate.Deltas) == 0 {
		return release, nil
	}
	items, err := s.assembler.AssembleDeltas(ctx, candidate.Deltas)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return domain.Release{}, ctxErr
		}
		s.logger.Warn("failed to load work items", "release_id", candidate.ID, "name", candidate.Name, "kind", candidate.Kind, "error", err)
		return release, nil
	}
	if items != nil {
		release.WorkItems = items
	}
	return release, nil
}
