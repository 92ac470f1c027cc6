package devops

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/alanta/DevOpsReleaseReport/internal/domain"
	"github.com/alanta/DevOpsReleaseReport/internal/repository"
)

// environmentStatusSucceeded is the release environment status flag for succeeded deployments.
const environmentStatusSucceeded = 4

type namedRef struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type approvalPayload struct {
	ID                 int      `json:"id"`
	Release            namedRef `json:"release"`
	ReleaseDefinition  namedRef `json:"releaseDefinition"`
	ReleaseEnvironment namedRef `json:"releaseEnvironment"`
}

type releasePayload struct {
	ID                int      `json:"id"`
	Name              string   `json:"name"`
	ReleaseDefinition namedRef `json:"releaseDefinition"`
	Links             links    `json:"_links"`
	Artifacts         []struct {
		Alias               string `json:"alias"`
		DefinitionReference map[string]struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"definitionReference"`
	} `json:"artifacts"`
	Environments []struct {
		ID                      int    `json:"id"`
		DefinitionEnvironmentID int    `json:"definitionEnvironmentId"`
		Name                    string `json:"name"`
	} `json:"environments"`
}

func (p releasePayload) toDomain() *domain.ClassicRelease {
	rel := &domain.ClassicRelease{
		ID:           p.ID,
		Name:         p.Name,
		DefinitionID: p.ReleaseDefinition.ID,
		WebURL:       p.Links.web(),
	}
	for _, a := range p.Artifacts {
		rel.Artifacts = append(rel.Artifacts, domain.ReleaseArtifact{
			Alias:   a.Alias,
			Version: a.DefinitionReference["version"].ID,
		})
	}
	for _, env := range p.Environments {
		rel.Environments = append(rel.Environments, domain.ReleaseEnvironment{
			ID:                      env.ID,
			DefinitionEnvironmentID: env.DefinitionEnvironmentID,
			Name:                    env.Name,
		})
	}
	return rel
}

// ListApprovals returns one page of pending release approvals.
func (r *Repository) ListApprovals(ctx context.Context, project string, continuationToken int) (repository.ApprovalPage, error) {
	query := url.Values{}
	if continuationToken > 0 {
		query.Set("continuationToken", strconv.Itoa(continuationToken))
	}
	var payload struct {
		Value []approvalPayload `json:"value"`
	}
	resp, err := r.get(ctx, "list_approvals", r.projectURL(r.releaseURL, project, "release/approvals"), query, &payload)
	if err != nil {
		return repository.ApprovalPage{}, err
	}
	page := repository.ApprovalPage{Approvals: make([]domain.ReleaseApproval, 0, len(payload.Value))}
	for _, p := range payload.Value {
		page.Approvals = append(page.Approvals, domain.ReleaseApproval{
			ID:              p.ID,
			ReleaseID:       p.Release.ID,
			ReleaseName:     p.Release.Name,
			DefinitionID:    p.ReleaseDefinition.ID,
			DefinitionName:  p.ReleaseDefinition.Name,
			EnvironmentID:   p.ReleaseEnvironment.ID,
			EnvironmentName: p.ReleaseEnvironment.Name,
		})
	}
	if token := strings.TrimSpace(resp.Header.Get("x-ms-continuationtoken")); token != "" {
		if parsed, err := strconv.Atoi(token); err == nil {
			page.ContinuationToken = parsed
		}
	}
	return page, nil
}

// GetRelease fetches a classic release with artifacts and environments.
func (r *Repository) GetRelease(ctx context.Context, project string, releaseID int) (*domain.ClassicRelease, error) {
	var payload releasePayload
	path := fmt.Sprintf("release/releases/%d", releaseID)
	if _, err := r.get(ctx, "get_release", r.projectURL(r.releaseURL, project, path), nil, &payload); err != nil {
		return nil, err
	}
	return payload.toDomain(), nil
}

// FindPreviousRelease returns the most recent active release that succeeded in the definition environment.
func (r *Repository) FindPreviousRelease(ctx context.Context, project string, definitionID, definitionEnvironmentID int) (*domain.ClassicRelease, error) {
	query := url.Values{}
	query.Set("definitionId", strconv.Itoa(definitionID))
	if definitionEnvironmentID > 0 {
		query.Set("definitionEnvironmentId", strconv.Itoa(definitionEnvironmentID))
	}
	query.Set("statusFilter", "active")
	query.Set("environmentStatusFilter", strconv.Itoa(environmentStatusSucceeded))
	query.Set("queryOrder", "descending")
	query.Set("$top", "1")
	query.Set("$expand", "artifacts")
	var payload struct {
		Value []releasePayload `json:"value"`
	}
	if _, err := r.get(ctx, "find_previous_release", r.projectURL(r.releaseURL, project, "release/releases"), query, &payload); err != nil {
		return nil, err
	}
	if len(payload.Value) == 0 {
		return nil, nil
	}
	return payload.Value[0].toDomain(), nil
}
