// Package status infers per-pipeline deployment state from build timelines.
package status

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/alanta/DevOpsReleaseReport/internal/cache"
	"github.com/alanta/DevOpsReleaseReport/internal/domain"
	"github.com/alanta/DevOpsReleaseReport/internal/repository"
)

const (
	defaultBuildsPerQuery = 10
	defaultTTL            = 5 * time.Minute
)

var buildReasons = []string{domain.BuildReasonIndividualCI, domain.BuildReasonManual}

// Config tunes the resolver and scanner.
type Config struct {
	Project        string
	BuildsPerQuery int
	TTL            time.Duration
	Concurrency    int
}

// Resolver determines the production and pending deployment of a definition.
type Resolver struct {
	builds  repository.BuildRepository
	cache   *cache.Cache[domain.DeploymentStatus]
	project string
	top     int
	ttl     time.Duration
	logger  *slog.Logger
	group   *singleflight.Group
	now     func() time.Time
}

// NewResolver constructs a Resolver. A nil cache disables caching.
func NewResolver(builds repository.BuildRepository, c *cache.Cache[domain.DeploymentStatus], cfg Config, logger *slog.Logger) Resolver {
	if cfg.BuildsPerQuery <= 0 {
		cfg.BuildsPerQuery = defaultBuildsPerQuery
	}
	if cfg.TTL <= 0 {
		cfg.TTL = defaultTTL
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return Resolver{
		builds:  builds,
		cache:   c,
		project: cfg.Project,
		top:     cfg.BuildsPerQuery,
		ttl:     cfg.TTL,
		logger:  logger.With("component", "resolver"),
		group:   &singleflight.Group{},
		now:     time.Now,
	}
}

func cacheKey(definitionID int) string {
	return fmt.Sprintf("Definition%d", definitionID)
}

// Resolve returns the deployment status of def. A cached status is reused while
// def has not changed since it was computed. Concurrent resolves of the same
// definition share one upstream computation.
func (r Resolver) Resolve(ctx context.Context, def domain.Definition) (domain.DeploymentStatus, error) {
	key := cacheKey(def.ID)
	if cached, ok := r.cache.GetFresh(ctx, key, func(s domain.DeploymentStatus) bool {
		return !def.LastChanged.After(s.LastChanged)
	}); ok {
		return cached, nil
	}

	ch := r.group.DoChan(key, func() (any, error) {
		return r.compute(ctx, def)
	})
	select {
	case <-ctx.Done():
		return domain.DeploymentStatus{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			// The shared call ran on another caller's context.
			if isCancellation(res.Err) && ctx.Err() == nil {
				return r.compute(ctx, def)
			}
			return domain.DeploymentStatus{}, res.Err
		}
		return res.Val.(domain.DeploymentStatus), nil
	}
}

func (r Resolver) compute(ctx context.Context, def domain.Definition) (domain.DeploymentStatus, error) {
	if err := ctx.Err(); err != nil {
		return domain.DeploymentStatus{}, err
	}
	status := domain.DeploymentStatus{
		DefinitionID: def.ID,
		Name:         def.Name,
		LastChanged:  def.LastChanged,
	}
	if status.LastChanged.IsZero() {
		status.LastChanged = r.now()
	}

	completed, err := r.builds.ListBuilds(ctx, r.project, r.query(def.ID, domain.BuildStatusCompleted))
	if err != nil {
		return domain.DeploymentStatus{}, fmt.Errorf("list completed builds of %d: %w", def.ID, err)
	}
	var production *domain.Build
	for i := range completed {
		build := completed[i]
		timeline, err := r.timeline(ctx, build.ID)
		if err != nil {
			return domain.DeploymentStatus{}, err
		}
		if timeline == nil {
			continue
		}
		if !timeline.HasApproval() {
			r.logger.Info("pipeline has no approvals", "definition_id", def.ID, "build_id", build.ID)
			return status, nil
		}
		check, ok := timeline.Approval(domain.RecordStateCompleted)
		if !ok {
			continue
		}
		production = &build
		status.LastProductionDeployment = &domain.ProductionDeployment{At: check.FinishTime, BuildID: build.ID}
		r.logger.Debug("production deployment found", "definition_id", def.ID, "build", build.BuildNumber, "at", check.FinishTime)
		break
	}

	running, err := r.builds.ListBuilds(ctx, r.project, r.query(def.ID, domain.BuildStatusInProgress))
	if err != nil {
		return domain.DeploymentStatus{}, fmt.Errorf("list in-progress builds of %d: %w", def.ID, err)
	}
	for _, build := range running {
		timeline, err := r.timeline(ctx, build.ID)
		if err != nil {
			return domain.DeploymentStatus{}, err
		}
		check, ok := timeline.Approval(domain.RecordStateInProgress)
		if !ok {
			continue
		}
		if production != nil && !production.StartTime.Before(build.StartTime) {
			break
		}
		status.PendingDeployment = &domain.PendingDeployment{
			Since:   check.StartTime,
			BuildID: build.ID,
			Version: build.BuildNumber,
			URL:     build.WebURL,
		}
		r.logger.Debug("pending deployment found", "definition_id", def.ID, "build", build.BuildNumber, "since", check.StartTime)
		break
	}

	r.cache.Set(ctx, cacheKey(def.ID), status, r.ttl)
	return status, nil
}

func (r Resolver) query(definitionID int, status string) repository.BuildQuery {
	return repository.BuildQuery{
		DefinitionID: definitionID,
		Status:       status,
		Reasons:      buildReasons,
		Top:          r.top,
		Descending:   true,
	}
}

func (r Resolver) timeline(ctx context.Context, buildID int) (*domain.Timeline, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	timeline, err := r.builds.GetTimeline(ctx, r.project, buildID)
	if err != nil {
		return nil, fmt.Errorf("timeline of build %d: %w", buildID, err)
	}
	return timeline, nil
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
