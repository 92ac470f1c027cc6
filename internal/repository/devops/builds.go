package devops

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/alanta/DevOpsReleaseReport/internal/domain"
	"github.com/alanta/DevOpsReleaseReport/internal/repository"
)

type definitionPayload struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	LatestBuild *struct {
		LastChangedDate time.Time `json:"lastChangedDate"`
	} `json:"latestBuild"`
}

func (p definitionPayload) toDomain() domain.Definition {
	def := domain.Definition{ID: p.ID, Name: p.Name}
	if p.LatestBuild != nil {
		def.LastChanged = p.LatestBuild.LastChangedDate
	}
	return def
}

type buildPayload struct {
	ID          int       `json:"id"`
	BuildNumber string    `json:"buildNumber"`
	Status      string    `json:"status"`
	Reason      string    `json:"reason"`
	QueueTime   time.Time `json:"queueTime"`
	StartTime   time.Time `json:"startTime"`
	FinishTime  time.Time `json:"finishTime"`
	Definition  struct {
		ID int `json:"id"`
	} `json:"definition"`
	Links links `json:"_links"`
}

type timelinePayload struct {
	ID      string `json:"id"`
	Records []struct {
		ID         string    `json:"id"`
		Type       string    `json:"type"`
		Name       string    `json:"name"`
		State      string    `json:"state"`
		Result     string    `json:"result"`
		StartTime  time.Time `json:"startTime"`
		FinishTime time.Time `json:"finishTime"`
	} `json:"records"`
}

type refPayload struct {
	ID  flexInt `json:"id"`
	URL string  `json:"url"`
}

// ListDefinitions lists definitions of the given process type built after builtAfter.
func (r *Repository) ListDefinitions(ctx context.Context, project string, builtAfter time.Time, processType int) ([]domain.Definition, error) {
	query := url.Values{}
	query.Set("includeLatestBuilds", "true")
	if processType > 0 {
		query.Set("processType", strconv.Itoa(processType))
	}
	if !builtAfter.IsZero() {
		query.Set("builtAfter", builtAfter.UTC().Format(time.RFC3339))
	}
	var payload struct {
		Value []definitionPayload `json:"value"`
	}
	if _, err := r.get(ctx, "list_definitions", r.projectURL(r.orgURL, project, "build/definitions"), query, &payload); err != nil {
		return nil, err
	}
	defs := make([]domain.Definition, 0, len(payload.Value))
	for _, p := range payload.Value {
		defs = append(defs, p.toDomain())
	}
	return defs, nil
}

// GetDefinition fetches one definition, returning repository.ErrNotFound when it does not exist.
func (r *Repository) GetDefinition(ctx context.Context, project string, definitionID int) (*domain.Definition, error) {
	query := url.Values{}
	query.Set("includeLatestBuilds", "true")
	var payload definitionPayload
	path := fmt.Sprintf("build/definitions/%d", definitionID)
	if _, err := r.get(ctx, "get_definition", r.projectURL(r.orgURL, project, path), query, &payload); err != nil {
		return nil, err
	}
	if payload.ID == 0 {
		return nil, repository.ErrNotFound
	}
	def := payload.toDomain()
	return &def, nil
}

// ListBuilds lists builds of a definition matching the query.
func (r *Repository) ListBuilds(ctx context.Context, project string, q repository.BuildQuery) ([]domain.Build, error) {
	query := url.Values{}
	query.Set("definitions", strconv.Itoa(q.DefinitionID))
	if q.Status != "" {
		query.Set("statusFilter", q.Status)
	}
	if len(q.Reasons) > 0 {
		query.Set("reasonFilter", strings.Join(q.Reasons, ","))
	}
	if q.Top > 0 {
		query.Set("$top", strconv.Itoa(q.Top))
	}
	if q.Descending {
		query.Set("queryOrder", "queueTimeDescending")
	} else {
		query.Set("queryOrder", "queueTimeAscending")
	}
	var payload struct {
		Value []buildPayload `json:"value"`
	}
	if _, err := r.get(ctx, "list_builds", r.projectURL(r.orgURL, project, "build/builds"), query, &payload); err != nil {
		return nil, err
	}
	builds := make([]domain.Build, 0, len(payload.Value))
	for _, p := range payload.Value {
		builds = append(builds, domain.Build{
			ID:           p.ID,
			DefinitionID: p.Definition.ID,
			BuildNumber:  p.BuildNumber,
			Status:       p.Status,
			Reason:       p.Reason,
			QueueTime:    p.QueueTime,
			StartTime:    p.StartTime,
			FinishTime:   p.FinishTime,
			WebURL:       p.Links.web(),
		})
	}
	return builds, nil
}

// GetTimeline fetches the timeline of a build; a build without timeline yields nil.
func (r *Repository) GetTimeline(ctx context.Context, project string, buildID int) (*domain.Timeline, error) {
	var payload *timelinePayload
	path := fmt.Sprintf("build/builds/%d/timeline", buildID)
	if _, err := r.get(ctx, "get_timeline", r.projectURL(r.orgURL, project, path), nil, &payload); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if payload == nil {
		return nil, nil
	}
	timeline := &domain.Timeline{BuildID: buildID, Records: make([]domain.TimelineRecord, 0, len(payload.Records))}
	for _, rec := range payload.Records {
		timeline.Records = append(timeline.Records, domain.TimelineRecord{
			ID:         rec.ID,
			Type:       rec.Type,
			Name:       rec.Name,
			State:      rec.State,
			Result:     rec.Result,
			StartTime:  rec.StartTime,
			FinishTime: rec.FinishTime,
		})
	}
	return timeline, nil
}

// WorkItemsBetweenBuilds lists work items introduced after fromBuildID up to and including toBuildID.
func (r *Repository) WorkItemsBetweenBuilds(ctx context.Context, project string, fromBuildID, toBuildID int) ([]domain.ItemRef, error) {
	query := url.Values{}
	query.Set("fromBuildId", strconv.Itoa(fromBuildID))
	query.Set("toBuildId", strconv.Itoa(toBuildID))
	return r.listRefs(ctx, "work_items_between_builds", r.projectURL(r.orgURL, project, "build/workitems"), query)
}

// WorkItemsForBuild lists work items directly associated with a build.
func (r *Repository) WorkItemsForBuild(ctx context.Context, project string, buildID int) ([]domain.ItemRef, error) {
	path := fmt.Sprintf("build/builds/%d/workitems", buildID)
	return r.listRefs(ctx, "work_items_for_build", r.projectURL(r.orgURL, project, path), nil)
}

func (r *Repository) listRefs(ctx context.Context, op, endpoint string, query url.Values) ([]domain.ItemRef, error) {
	var payload struct {
		Value []refPayload `json:"value"`
	}
	if _, err := r.get(ctx, op, endpoint, query, &payload); err != nil {
		return nil, err
	}
	refs := make([]domain.ItemRef, 0, len(payload.Value))
	for _, p := range payload.Value {
		refs = append(refs, domain.ItemRef{ID: int(p.ID), URL: p.URL})
	}
	return refs, nil
}
