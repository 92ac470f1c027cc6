package report

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alanta/DevOpsReleaseReport/internal/domain"
)

type fakeSource struct {
	candidates []domain.ReleaseCandidate
	lookup     map[int]domain.ReleaseCandidate
	err        error
}

func (f fakeSource) Pending(context.Context, string) ([]domain.ReleaseCandidate, error) {
	return f.candidates, f.err
}

func (f fakeSource) Lookup(_ context.Context, id int) (*domain.ReleaseCandidate, error) {
	if f.err != nil {
		return nil, f.err
	}
	c, ok := f.lookup[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

type fakeAssembler struct {
	mu     sync.Mutex
	items  map[int][]domain.WorkItem
	fail   map[int]error
	calls  int
	cancel context.CancelFunc
}

func (f *fakeAssembler) AssembleDeltas(_ context.Context, deltas []domain.BuildDelta) ([]domain.WorkItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	target := deltas[0].Target
	if f.cancel != nil {
		f.cancel()
		return nil, context.Canceled
	}
	if err := f.fail[target]; err != nil {
		return nil, err
	}
	return f.items[target], nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func candidate(id int, name string, target int) domain.ReleaseCandidate {
	return domain.ReleaseCandidate{
		Kind:    domain.CandidatePipeline,
		ID:      id,
		Name:    name,
		Version: name + "-v",
		Deltas:  []domain.BuildDelta{{Target: target}},
	}
}

func TestListPendingReleasesSortedWithItems(t *testing.T) {
	src := fakeSource{candidates: []domain.ReleaseCandidate{
		candidate(1, "web", 10),
		candidate(2, "api", 20),
		candidate(3, "billing", 30),
	}}
	asm := &fakeAssembler{items: map[int][]domain.WorkItem{
		10: {{ID: 101, Type: domain.TypePBI}},
		20: {{ID: 201, Type: domain.TypePBI, Tasks: []domain.WorkItem{{ID: 202}}}},
	}}

	releases, err := New(src, asm, 2, quietLogger()).ListPendingReleases(context.Background(), "")
	if err != nil {
		t.Fatalf("ListPendingReleases: %v", err)
	}
	if len(releases) != 3 {
		t.Fatalf("expected 3 releases, got %d", len(releases))
	}
	names := []string{releases[0].Name, releases[1].Name, releases[2].Name}
	if names[0] != "api" || names[1] != "billing" || names[2] != "web" {
		t.Fatalf("expected name order, got %v", names)
	}
	if domain.CountNodes(releases[0].WorkItems) != 2 {
		t.Fatalf("expected api work items, got %+v", releases[0].WorkItems)
	}
	if releases[1].WorkItems == nil || len(releases[1].WorkItems) != 0 {
		t.Fatalf("expected empty non-nil work items, got %#v", releases[1].WorkItems)
	}
	if releases[2].Version != "web-v" {
		t.Fatalf("unexpected version %q", releases[2].Version)
	}
}

func TestAssemblyFailureYieldsEmptyWorkItems(t *testing.T) {
	src := fakeSource{candidates: []domain.ReleaseCandidate{candidate(1, "api", 10), candidate(2, "web", 20)}}
	asm := &fakeAssembler{
		items: map[int][]domain.WorkItem{20: {{ID: 5}}},
		fail:  map[int]error{10: errors.New("task parent not found")},
	}

	releases, err := New(src, asm, 1, quietLogger()).ListPendingReleases(context.Background(), "")
	if err != nil {
		t.Fatalf("ListPendingReleases: %v", err)
	}
	if len(releases) != 2 {
		t.Fatalf("expected both releases, got %d", len(releases))
	}
	if len(releases[0].WorkItems) != 0 || len(releases[1].WorkItems) != 1 {
		t.Fatalf("unexpected work items %+v", releases)
	}
}

func TestCancellationIsNotSwallowed(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	src := fakeSource{candidates: []domain.ReleaseCandidate{candidate(1, "api", 10)}}
	asm := &fakeAssembler{cancel: cancel}

	_, err := New(src, asm, 1, quietLogger()).ListPendingReleases(ctx, "")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestSourceErrorPropagates(t *testing.T) {
	src := fakeSource{err: errors.New("upstream unavailable")}
	if _, err := New(src, &fakeAssembler{}, 1, quietLogger()).ListPendingReleases(context.Background(), ""); err == nil {
		t.Fatal("expected error")
	}
}

func TestGetRelease(t *testing.T) {
	idle := domain.ReleaseCandidate{ID: 2, Name: "idle"}
	src := fakeSource{lookup: map[int]domain.ReleaseCandidate{1: candidate(1, "api", 10), 2: idle}}
	asm := &fakeAssembler{items: map[int][]domain.WorkItem{10: {{ID: 7}}}}
	svc := New(src, asm, 1, quietLogger())

	release, err := svc.GetRelease(context.Background(), 1)
	if err != nil {
		t.Fatalf("GetRelease: %v", err)
	}
	if release == nil || release.ID != 1 || len(release.WorkItems) != 1 {
		t.Fatalf("unexpected release %+v", release)
	}

	release, err = svc.GetRelease(context.Background(), 2)
	if err != nil {
		t.Fatalf("GetRelease: %v", err)
	}
	if release == nil || len(release.WorkItems) != 0 || asm.calls != 1 {
		t.Fatalf("expected non-pending release without assembly, got %+v (calls %d)", release, asm.calls)
	}

	release, err = svc.GetRelease(context.Background(), 3)
	if err != nil || release != nil {
		t.Fatalf("expected nil release for unknown id, got %+v / %v", release, err)
	}
}

type countingLister struct {
	mu    sync.Mutex
	calls int
	done  chan struct{}
}

func (c *countingLister) ListPendingReleases(context.Context, string) ([]domain.Release, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.calls == 2 {
		close(c.done)
	}
	return nil, errors.New("upstream unavailable")
}

func TestWarmerRunsUntilCancelled(t *testing.T) {
	lister := &countingLister{done: make(chan struct{})}
	ctx, cancel := context.WithCancel(context.Background())
	finished := make(chan struct{})
	go func() {
		NewWarmer(lister, "", 5*time.Millisecond, quietLogger()).Run(ctx)
		close(finished)
	}()

	select {
	case <-lister.done:
	case <-time.After(2 * time.Second):
		t.Fatal("warmer did not retry after failure")
	}
	cancel()
	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("warmer did not stop after cancellation")
	}
}

func TestWarmerDisabled(t *testing.T) {
	lister := &countingLister{done: make(chan struct{})}
	NewWarmer(lister, "", 0, quietLogger()).Run(context.Background())
	if lister.calls != 0 {
		t.Fatalf("expected disabled warmer not to run, got %d calls", lister.calls)
	}
}
