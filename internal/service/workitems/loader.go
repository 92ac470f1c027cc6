package workitems

import (
	"context"
	"fmt"
	"time"

	"github.com/alanta/DevOpsReleaseReport/internal/cache"
	"github.com/alanta/DevOpsReleaseReport/internal/domain"
	"github.com/alanta/DevOpsReleaseReport/internal/repository"
)

// DefaultTTL bounds how long fetched work items are reused.
const DefaultTTL = 5 * time.Minute

// Loader resolves work items through the cache, fetching only the misses.
type Loader struct {
	repo    repository.WorkItemRepository
	cache   *cache.Cache[domain.Item]
	project string
	ttl     time.Duration
}

// NewLoader constructs a Loader. A nil cache disables caching.
func NewLoader(repo repository.WorkItemRepository, c *cache.Cache[domain.Item], project string, ttl time.Duration) Loader {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return Loader{repo: repo, cache: c, project: project, ttl: ttl}
}

func cacheKey(id int) string {
	return fmt.Sprintf("WorkItem%d", id)
}

// Load returns the items for ids in request order. Ids unknown upstream are
// absent from the result. Missing ids are fetched in one batched call.
func (l Loader) Load(ctx context.Context, ids []int) ([]domain.Item, error) {
	ids = uniqueIDs(ids)
	if len(ids) == 0 {
		return []domain.Item{}, nil
	}
	found := make(map[int]domain.Item, len(ids))
	missing := make([]int, 0, len(ids))
	for _, id := range ids {
		if item, ok := l.cache.Get(ctx, cacheKey(id)); ok {
			found[id] = item
			continue
		}
		missing = append(missing, id)
	}
	if len(missing) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		fetched, err := l.repo.GetWorkItems(ctx, l.project, missing)
		if err != nil {
			return nil, fmt.Errorf("load work items: %w", err)
		}
		for _, item := range fetched {
			l.cache.Set(ctx, cacheKey(item.ID), item, l.ttl)
			found[item.ID] = item
		}
	}
	items := make([]domain.Item, 0, len(found))
	for _, id := range ids {
		if item, ok := found[id]; ok {
			items = append(items, item)
		}
	}
	return items, nil
}

func uniqueIDs(ids []int) []int {
	seen := make(map[int]struct{}, len(ids))
	out := make([]int, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
