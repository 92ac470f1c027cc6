package repository

import (
	"context"
	"time"

	"github.com/alanta/DevOpsReleaseReport/internal/domain"
)

// BuildQuery filters a build listing.
type BuildQuery struct {
	DefinitionID int
	Status       string
	Reasons      []string
	Top          int
	// Descending orders by queue time, most recent first.
	Descending bool
}

// BuildRepository exposes pipeline definitions, builds and timelines.
type BuildRepository interface {
	ListDefinitions(ctx context.Context, project string, builtAfter time.Time, processType int) ([]domain.Definition, error)
	GetDefinition(ctx context.Context, project string, definitionID int) (*domain.Definition, error)
	ListBuilds(ctx context.Context, project string, query BuildQuery) ([]domain.Build, error)
	// GetTimeline returns nil without error when the build has no timeline yet.
	GetTimeline(ctx context.Context, project string, buildID int) (*domain.Timeline, error)
}

// ChangeRepository exposes the work items associated with builds.
type ChangeRepository interface {
	WorkItemsBetweenBuilds(ctx context.Context, project string, fromBuildID, toBuildID int) ([]domain.ItemRef, error)
	WorkItemsForBuild(ctx context.Context, project string, buildID int) ([]domain.ItemRef, error)
}

// WorkItemRepository loads full work item details.
type WorkItemRepository interface {
	GetWorkItems(ctx context.Context, project string, ids []int) ([]domain.Item, error)
}

// ApprovalPage is one page of pending classic release approvals.
type ApprovalPage struct {
	Approvals []domain.ReleaseApproval
	// ContinuationToken is zero on the last page.
	ContinuationToken int
}

// ReleaseRepository exposes classic release management data.
type ReleaseRepository interface {
	ListApprovals(ctx context.Context, project string, continuationToken int) (ApprovalPage, error)
	GetRelease(ctx context.Context, project string, releaseID int) (*domain.ClassicRelease, error)
	// FindPreviousRelease returns the latest release that succeeded in the definition environment, nil when none.
	FindPreviousRelease(ctx context.Context, project string, definitionID, definitionEnvironmentID int) (*domain.ClassicRelease, error)
}
