// Package workitems turns the work items linked to a build delta into a
// backlog item / task forest.
package workitems

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/alanta/DevOpsReleaseReport/internal/domain"
	"github.com/alanta/DevOpsReleaseReport/internal/repository"
)

// ErrOrphanedTask reports a task whose parent could not be loaded, even after backfill.
var ErrOrphanedTask = errors.New("task parent not found")

// Assembler builds work item forests for build deltas.
type Assembler struct {
	changes repository.ChangeRepository
	loader  Loader
	project string
}

// NewAssembler constructs an Assembler.
func NewAssembler(changes repository.ChangeRepository, loader Loader, project string) Assembler {
	return Assembler{changes: changes, loader: loader, project: project}
}

// Assemble returns the forest of work items shipped by target since baseline.
// Without a baseline only the target build's own work items are used.
func (a Assembler) Assemble(ctx context.Context, baseline *int, target int) ([]domain.WorkItem, error) {
	return a.AssembleDeltas(ctx, []domain.BuildDelta{{Baseline: baseline, Target: target}})
}

// AssembleDeltas assembles one forest over the union of several deltas.
func (a Assembler) AssembleDeltas(ctx context.Context, deltas []domain.BuildDelta) ([]domain.WorkItem, error) {
	var ids []int
	for _, delta := range deltas {
		refs, err := a.refs(ctx, delta)
		if err != nil {
			return nil, err
		}
		for _, ref := range refs {
			ids = append(ids, ref.ID)
		}
	}
	return a.Build(ctx, ids)
}

func (a Assembler) refs(ctx context.Context, delta domain.BuildDelta) ([]domain.ItemRef, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if delta.Baseline != nil {
		refs, err := a.changes.WorkItemsBetweenBuilds(ctx, a.project, *delta.Baseline, delta.Target)
		if err != nil {
			return nil, fmt.Errorf("work items between builds %d and %d: %w", *delta.Baseline, delta.Target, err)
		}
		return refs, nil
	}
	refs, err := a.changes.WorkItemsForBuild(ctx, a.project, delta.Target)
	if err != nil {
		return nil, fmt.Errorf("work items for build %d: %w", delta.Target, err)
	}
	return refs, nil
}

// Build loads the given items, backfills missing parents with one extra load
// and nests every task under its parent.
func (a Assembler) Build(ctx context.Context, ids []int) ([]domain.WorkItem, error) {
	items, err := a.loader.Load(ctx, ids)
	if err != nil {
		return nil, err
	}
	flat := make([]domain.WorkItem, 0, len(items))
	known := make(map[int]struct{}, len(items))
	for _, item := range items {
		flat = append(flat, classify(item))
		known[item.ID] = struct{}{}
	}

	var missing []int
	for _, wi := range flat {
		if wi.ParentID == nil {
			continue
		}
		if _, ok := known[*wi.ParentID]; !ok {
			missing = append(missing, *wi.ParentID)
			known[*wi.ParentID] = struct{}{}
		}
	}
	if len(missing) > 0 {
		parents, err := a.loader.Load(ctx, missing)
		if err != nil {
			return nil, fmt.Errorf("backfill parents: %w", err)
		}
		for _, item := range parents {
			parent := classify(item)
			parent.ParentID = nil
			flat = append(flat, parent)
		}
	}
	return nest(flat)
}

// classify maps an upstream item onto a WorkItem with normalised type and defaults.
func classify(item domain.Item) domain.WorkItem {
	wi := domain.WorkItem{
		ID:          item.ID,
		Type:        item.Field(domain.FieldWorkItemType, domain.TypeUnknown),
		Description: item.Field(domain.FieldTitle, "-"),
		Status:      item.Field(domain.FieldState, "Unknown"),
		URL:         item.HTMLURL,
	}
	if wi.Type == domain.TypeProductBacklogItem {
		wi.Type = domain.TypePBI
	}
	if wi.Type == domain.TypeTask {
		wi.ParentID = parentID(item.Relations)
	}
	return wi
}

func parentID(relations []domain.Relation) *int {
	for _, rel := range relations {
		if rel.Rel != domain.RelationParent {
			continue
		}
		trimmed := strings.TrimRight(rel.URL, "/")
		segment := trimmed[strings.LastIndex(trimmed, "/")+1:]
		id, err := strconv.Atoi(segment)
		if err != nil {
			return nil
		}
		return &id
	}
	return nil
}

// nest moves every item with a parent into the parent's task list. Children
// keep discovery order.
func nest(flat []domain.WorkItem) ([]domain.WorkItem, error) {
	index := make(map[int]int, len(flat))
	for i, wi := range flat {
		index[wi.ID] = i
	}
	children := make(map[int][]int)
	var roots []int
	for i, wi := range flat {
		if wi.ParentID == nil {
			roots = append(roots, i)
			continue
		}
		p, ok := index[*wi.ParentID]
		if !ok {
			return nil, fmt.Errorf("%w: task %d references %d", ErrOrphanedTask, wi.ID, *wi.ParentID)
		}
		children[p] = append(children[p], i)
	}

	placed := make([]bool, len(flat))
	var build func(i int) domain.WorkItem
	build = func(i int) domain.WorkItem {
		placed[i] = true
		node := flat[i]
		node.Tasks = nil
		for _, c := range children[i] {
			if placed[c] {
				continue
			}
			node.Tasks = append(node.Tasks, build(c))
		}
		return node
	}
	forest := make([]domain.WorkItem, 0, len(roots))
	for _, i := range roots {
		forest = append(forest, build(i))
	}
	for i, ok := range placed {
		if !ok {
			return nil, fmt.Errorf("%w: task %d is part of a parent cycle", ErrOrphanedTask, flat[i].ID)
		}
	}
	return forest, nil
}
