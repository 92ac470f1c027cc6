package status

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/alanta/DevOpsReleaseReport/internal/domain"
	"github.com/alanta/DevOpsReleaseReport/internal/repository"
)

// Source yields release candidates for YAML pipelines awaiting approval.
type Source struct {
	builds   repository.BuildRepository
	resolver Resolver
	scanner  Scanner
	project  string
	window   time.Duration
}

// NewSource constructs a pipeline Source scanning definitions built within window.
func NewSource(builds repository.BuildRepository, resolver Resolver, scanner Scanner, project string, window time.Duration) Source {
	return Source{builds: builds, resolver: resolver, scanner: scanner, project: project, window: window}
}

// Pending returns a candidate per pending definition. Pipelines carry no
// environment, so the environment filter does not apply.
func (s Source) Pending(ctx context.Context, _ string) ([]domain.ReleaseCandidate, error) {
	statuses, err := s.scanner.Scan(ctx, s.window)
	if err != nil {
		return nil, err
	}
	candidates := make([]domain.ReleaseCandidate, 0, len(statuses))
	for _, status := range statuses {
		candidates = append(candidates, Candidate(status))
	}
	return candidates, nil
}

// Lookup resolves one definition. It returns nil when the definition does not exist.
func (s Source) Lookup(ctx context.Context, definitionID int) (*domain.ReleaseCandidate, error) {
	def, err := s.builds.GetDefinition(ctx, s.project, definitionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get definition %d: %w", definitionID, err)
	}
	if def == nil {
		return nil, nil
	}
	status, err := s.resolver.Resolve(ctx, *def)
	if err != nil {
		return nil, err
	}
	candidate := Candidate(status)
	return &candidate, nil
}

// Candidate converts a status into a release candidate. Only pending statuses
// carry a build delta.
func Candidate(status domain.DeploymentStatus) domain.ReleaseCandidate {
	candidate := domain.ReleaseCandidate{
		Kind:   domain.CandidatePipeline,
		ID:     status.DefinitionID,
		Name:   status.Name,
		Status: &status,
	}
	pending := status.PendingDeployment
	if pending == nil {
		return candidate
	}
	candidate.Version = pending.Version
	candidate.URL = pending.URL
	delta := domain.BuildDelta{Target: pending.BuildID}
	if prod := status.LastProductionDeployment; prod != nil {
		baseline := prod.BuildID
		delta.Baseline = &baseline
	}
	candidate.Deltas = []domain.BuildDelta{delta}
	return candidate
}
