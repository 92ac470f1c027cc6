// Package classic yields release candidates from classic release pipelines
// waiting on an environment approval.
package classic

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/alanta/DevOpsReleaseReport/internal/domain"
	"github.com/alanta/DevOpsReleaseReport/internal/repository"
	"github.com/alanta/DevOpsReleaseReport/internal/service/report"
)

// maxApprovalPages bounds paging when the continuation token never clears.
const maxApprovalPages = 100

// Source lists classic releases with pending approvals.
type Source struct {
	releases repository.ReleaseRepository
	project  string
	logger   *slog.Logger
}

var _ report.Source = Source{}

// NewSource constructs a classic Source.
func NewSource(releases repository.ReleaseRepository, project string, logger *slog.Logger) Source {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return Source{releases: releases, project: project, logger: logger.With("component", "classic")}
}

// Pending returns one candidate per release awaiting approval in an
// environment whose name contains environment, ignoring case. An empty
// environment matches every approval.
func (s Source) Pending(ctx context.Context, environment string) ([]domain.ReleaseCandidate, error) {
	approvals, err := s.approvals(ctx)
	if err != nil {
		return nil, err
	}
	filter := strings.ToLower(environment)
	seen := make(map[int]struct{}, len(approvals))
	candidates := make([]domain.ReleaseCandidate, 0, len(approvals))
	for _, approval := range approvals {
		if !strings.Contains(strings.ToLower(approval.EnvironmentName), filter) {
			continue
		}
		if _, ok := seen[approval.ReleaseID]; ok {
			continue
		}
		seen[approval.ReleaseID] = struct{}{}
		candidate, err := s.candidate(ctx, approval)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, candidate)
	}
	return candidates, nil
}

// Lookup is not available for classic releases; they are only reported in bulk.
func (s Source) Lookup(context.Context, int) (*domain.ReleaseCandidate, error) {
	return nil, fmt.Errorf("classic release lookup: %w", report.ErrNotSupported)
}

func (s Source) approvals(ctx context.Context) ([]domain.ReleaseApproval, error) {
	var all []domain.ReleaseApproval
	token := 0
	for page := 0; page < maxApprovalPages; page++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		result, err := s.releases.ListApprovals(ctx, s.project, token)
		if err != nil {
			return nil, fmt.Errorf("list approvals: %w", err)
		}
		all = append(all, result.Approvals...)
		if result.ContinuationToken == 0 || result.ContinuationToken == token {
			return all, nil
		}
		token = result.ContinuationToken
	}
	s.logger.Warn("approval paging truncated", "pages", maxApprovalPages)
	return all, nil
}

func (s Source) candidate(ctx context.Context, approval domain.ReleaseApproval) (domain.ReleaseCandidate, error) {
	release, err := s.releases.GetRelease(ctx, s.project, approval.ReleaseID)
	if err != nil {
		return domain.ReleaseCandidate{}, fmt.Errorf("get release %d: %w", approval.ReleaseID, err)
	}
	envID, _ := release.DefinitionEnvironment(approval.EnvironmentID)
	previous, err := s.releases.FindPreviousRelease(ctx, s.project, approval.DefinitionID, envID)
	if err != nil {
		return domain.ReleaseCandidate{}, fmt.Errorf("previous release of %d: %w", approval.ReleaseID, err)
	}
	return domain.ReleaseCandidate{
		Kind:    domain.CandidateClassic,
		ID:      release.ID,
		Name:    approval.DefinitionName,
		Version: release.Name,
		URL:     release.WebURL,
		Deltas:  s.deltas(release, previous),
	}, nil
}

// deltas pairs every artifact with the same alias in the previous release, or
// its first artifact when the alias is unknown there.
func (s Source) deltas(release, previous *domain.ClassicRelease) []domain.BuildDelta {
	deltas := make([]domain.BuildDelta, 0, len(release.Artifacts))
	for _, artifact := range release.Artifacts {
		target, err := strconv.Atoi(artifact.Version)
		if err != nil {
			s.logger.Warn("artifact version is not a build id", "release_id", release.ID, "alias", artifact.Alias, "version", artifact.Version)
			continue
		}
		delta := domain.BuildDelta{Alias: artifact.Alias, Target: target}
		if baseline, ok := baselineFor(previous, artifact.Alias); ok {
			delta.Baseline = &baseline
		} else if previous != nil {
			s.logger.Warn("previous artifact version is not a build id", "release_id", release.ID, "alias", artifact.Alias)
		}
		deltas = append(deltas, delta)
	}
	return deltas
}

func baselineFor(previous *domain.ClassicRelease, alias string) (int, bool) {
	if previous == nil || len(previous.Artifacts) == 0 {
		return 0, false
	}
	match := previous.Artifacts[0]
	for _, a := range previous.Artifacts {
		if strings.EqualFold(a.Alias, alias) {
			match = a
			break
		}
	}
	id, err := strconv.Atoi(match.Version)
	if err != nil {
		return 0, false
	}
	return id, true
}
