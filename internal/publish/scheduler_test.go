package publish

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/gofrs/flock"

	"cratewalk/internal/checkpoint"
	"cratewalk/internal/history"
	"cratewalk/internal/manifest"
)

type fakePublisher struct {
	calls    []string
	dryCalls []string
	failOn   map[string]error
}

func (p *fakePublisher) Publish(_ context.Context, pkg manifest.Package, dryRun bool) error {
	if dryRun {
		p.dryCalls = append(p.dryCalls, pkg.Name)
		return nil
	}
	p.calls = append(p.calls, pkg.Name)
	if err, ok := p.failOn[pkg.Name]; ok {
		return err
	}
	return nil
}

type fakeChecker struct {
	published map[string]bool
	err       error
	queries   []string
}

func (c *fakeChecker) IsPublished(_ context.Context, name, _ string) (bool, error) {
	c.queries = append(c.queries, name)
	if c.err != nil {
		return false, c.err
	}
	return c.published[name], nil
}

type memoryJournal struct {
	attempts []history.Attempt
}

func (j *memoryJournal) Record(_ context.Context, a history.Attempt) error {
	j.attempts = append(j.attempts, a)
	return nil
}

func testPlan() []manifest.Package {
	mk := func(name string, deps ...string) manifest.Package {
		return manifest.Package{Name: name, Version: "0.1.0", Dir: "/ws/" + name, Publishable: true, WorkspaceDeps: deps}
	}
	return []manifest.Package{mk("utils"), mk("core", "utils"), mk("app", "core")}
}

func newScheduler(t *testing.T, root string, pub Publisher, opts Options, extras ...Option) (*Scheduler, *checkpoint.Store) {
	t.Helper()

	store := checkpoint.NewStore(root)
	s, err := New(root, store, pub, opts, extras...)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return s, store
}

func assertOrder(t *testing.T, got []string, want ...string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("call order: got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("call order: got %v, want %v", got, want)
		}
	}
}

func TestRunPublishesInPlanOrder(t *testing.T) {
	root := t.TempDir()
	pub := &fakePublisher{}
	s, store := newScheduler(t, root, pub, Options{})

	result, err := s.Run(context.Background(), testPlan())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	assertOrder(t, pub.calls, "utils", "core", "app")
	assertOrder(t, result.Published, "utils", "core", "app")

	// Completed plan leaves no checkpoint behind.
	cp, err := store.Load()
	if err != nil {
		t.Fatal(err)
	}
	if cp != nil {
		t.Errorf("checkpoint must be cleared after full success: %+v", cp)
	}
}

func TestRunStopsAtFirstFailureAndKeepsCheckpoint(t *testing.T) {
	root := t.TempDir()
	pub := &fakePublisher{failOn: map[string]error{"core": errors.New("registry rejected tarball")}}
	s, store := newScheduler(t, root, pub, Options{})

	result, err := s.Run(context.Background(), testPlan())
	if err == nil {
		t.Fatal("expected failure")
	}
	if result.Failed != "core" {
		t.Errorf("failed package: got %q, want core", result.Failed)
	}

	// app must never have been attempted past the failed dependency.
	assertOrder(t, pub.calls, "utils", "core")

	cp, loadErr := store.Load()
	if loadErr != nil {
		t.Fatal(loadErr)
	}
	if cp == nil {
		t.Fatal("checkpoint must survive a failed run")
	}
	if !cp.IsCompleted("utils") {
		t.Error("prior success missing from checkpoint")
	}
	if cp.IsCompleted("core") {
		t.Error("failed package must not be checkpointed")
	}
}

func TestRunResumeSkipsCompleted(t *testing.T) {
	root := t.TempDir()
	plan := testPlan()

	// First run fails on core.
	pub := &fakePublisher{failOn: map[string]error{"core": errors.New("boom")}}
	s, _ := newScheduler(t, root, pub, Options{})
	if _, err := s.Run(context.Background(), plan); err == nil {
		t.Fatal("expected first run to fail")
	}

	// Resumed run retries from the failure point, in order.
	resumed := &fakePublisher{}
	s2, _ := newScheduler(t, root, resumed, Options{Resume: true})
	result, err := s2.Run(context.Background(), plan)
	if err != nil {
		t.Fatalf("resume failed: %v", err)
	}

	assertOrder(t, resumed.calls, "core", "app")
	assertOrder(t, result.SkippedCompleted, "utils")
}

func TestRunResumeFailsFastOnStaleCheckpoint(t *testing.T) {
	root := t.TempDir()
	plan := testPlan()

	pub := &fakePublisher{failOn: map[string]error{"core": errors.New("boom")}}
	s, _ := newScheduler(t, root, pub, Options{})
	if _, err := s.Run(context.Background(), plan); err == nil {
		t.Fatal("expected first run to fail")
	}

	// The workspace changed: versions bumped, so the plan digest differs.
	changed := testPlan()
	for i := range changed {
		changed[i].Version = "0.2.0"
	}

	resumed := &fakePublisher{}
	s2, _ := newScheduler(t, root, resumed, Options{Resume: true})
	_, err := s2.Run(context.Background(), changed)
	if !errors.Is(err, checkpoint.ErrStale) {
		t.Fatalf("expected ErrStale, got %v", err)
	}
	if len(resumed.calls) != 0 {
		t.Errorf("no action may run against a stale checkpoint, got %v", resumed.calls)
	}
}

func TestRunResumeFailsOnCorruptCheckpoint(t *testing.T) {
	root := t.TempDir()
	store := checkpoint.NewStore(root)
	if err := os.MkdirAll(filepath.Dir(store.Path()), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(store.Path(), []byte("????"), 0o644); err != nil {
		t.Fatal(err)
	}

	pub := &fakePublisher{}
	s, err := New(root, store, pub, Options{Resume: true})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Run(context.Background(), testPlan()); !errors.Is(err, checkpoint.ErrCorrupt) {
		t.Fatalf("expected ErrCorrupt, got %v", err)
	}
	if len(pub.calls) != 0 {
		t.Errorf("no action may run with an unreadable checkpoint, got %v", pub.calls)
	}
}

func TestRunSkipsUnpublishable(t *testing.T) {
	root := t.TempDir()
	plan := testPlan()
	plan[1].Publishable = false // core

	pub := &fakePublisher{}
	s, _ := newScheduler(t, root, pub, Options{})
	result, err := s.Run(context.Background(), plan)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	assertOrder(t, pub.calls, "utils", "app")
	assertOrder(t, result.SkippedUnpublishable, "core")
}

func TestRunDryRunNeverWritesCheckpoint(t *testing.T) {
	root := t.TempDir()
	pub := &fakePublisher{}
	s, store := newScheduler(t, root, pub, Options{DryRun: true})

	result, err := s.Run(context.Background(), testPlan())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(pub.calls) != 0 {
		t.Errorf("dry run must not perform real publishes: %v", pub.calls)
	}
	assertOrder(t, pub.dryCalls, "utils", "core", "app")
	assertOrder(t, result.WouldPublish, "utils", "core", "app")

	if _, err := os.Stat(store.Path()); !errors.Is(err, os.ErrNotExist) {
		t.Error("dry run wrote a checkpoint")
	}
}

func TestRunDryRunPreservesExistingCheckpoint(t *testing.T) {
	root := t.TempDir()
	plan := testPlan()

	pub := &fakePublisher{failOn: map[string]error{"core": errors.New("boom")}}
	s, store := newScheduler(t, root, pub, Options{})
	if _, err := s.Run(context.Background(), plan); err == nil {
		t.Fatal("expected first run to fail")
	}

	dry := &fakePublisher{}
	s2, _ := newScheduler(t, root, dry, Options{DryRun: true})
	if _, err := s2.Run(context.Background(), plan); err != nil {
		t.Fatal(err)
	}

	cp, err := store.Load()
	if err != nil {
		t.Fatal(err)
	}
	if cp == nil || !cp.IsCompleted("utils") {
		t.Error("dry run clobbered the checkpoint of an interrupted session")
	}
}

func TestRunSkipPublishedRecordsCheckpoint(t *testing.T) {
	root := t.TempDir()
	checker := &fakeChecker{published: map[string]bool{"utils": true}}
	journal := &memoryJournal{}
	pub := &fakePublisher{}
	s, _ := newScheduler(t, root, pub, Options{SkipPublished: true}, WithChecker(checker), WithJournal(journal))

	result, err := s.Run(context.Background(), testPlan())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	assertOrder(t, pub.calls, "core", "app")
	assertOrder(t, result.SkippedPublished, "utils")
	assertOrder(t, checker.queries, "utils", "core", "app")

	outcomes := make(map[string]string)
	for _, a := range journal.attempts {
		outcomes[a.Package] = a.Outcome
	}
	if outcomes["utils"] != history.OutcomeAlreadyPublished {
		t.Errorf("journal outcomes: %v", outcomes)
	}
	if outcomes["core"] != history.OutcomePublished {
		t.Errorf("journal outcomes: %v", outcomes)
	}
}

func TestRunRegistryCheckFailureProceeds(t *testing.T) {
	root := t.TempDir()
	checker := &fakeChecker{err: errors.New("registry unreachable")}
	pub := &fakePublisher{}
	s, _ := newScheduler(t, root, pub, Options{SkipPublished: true}, WithChecker(checker))

	if _, err := s.Run(context.Background(), testPlan()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	assertOrder(t, pub.calls, "utils", "core", "app")
}

func TestRunFreshRunDiscardsOldCheckpoint(t *testing.T) {
	root := t.TempDir()
	plan := testPlan()

	pub := &fakePublisher{failOn: map[string]error{"core": errors.New("boom")}}
	s, _ := newScheduler(t, root, pub, Options{})
	if _, err := s.Run(context.Background(), plan); err == nil {
		t.Fatal("expected first run to fail")
	}

	// Without --resume the old session is discarded and utils publishes again.
	fresh := &fakePublisher{}
	s2, _ := newScheduler(t, root, fresh, Options{})
	if _, err := s2.Run(context.Background(), plan); err != nil {
		t.Fatal(err)
	}
	assertOrder(t, fresh.calls, "utils", "core", "app")
}

func TestRunLockedOutRunLeavesCheckpointIntact(t *testing.T) {
	root := t.TempDir()
	store := checkpoint.NewStore(root)

	// A run is in flight: it holds the lock and has already checkpointed
	// utils.
	cp := checkpoint.New(root, checkpoint.PlanDigest(testPlan()))
	cp.MarkCompleted("utils")
	if err := store.Save(cp); err != nil {
		t.Fatal(err)
	}
	holder := flock.New(filepath.Join(root, "target", "cratewalk-publish.lock"))
	locked, err := holder.TryLock()
	if err != nil || !locked {
		t.Fatalf("could not take lock: locked=%v err=%v", locked, err)
	}
	defer func() { _ = holder.Unlock() }()

	pub := &fakePublisher{}
	s, _ := newScheduler(t, root, pub, Options{})
	if _, err := s.Run(context.Background(), testPlan()); !errors.Is(err, ErrLocked) {
		t.Fatalf("expected ErrLocked, got %v", err)
	}
	if len(pub.calls) != 0 {
		t.Errorf("locked-out run invoked actions: %v", pub.calls)
	}

	// The in-flight run's checkpoint must survive the rejected fresh run.
	survivor, err := store.Load()
	if err != nil {
		t.Fatal(err)
	}
	if survivor == nil || !survivor.IsCompleted("utils") {
		t.Errorf("locked-out run clobbered the live checkpoint: %+v", survivor)
	}
}

func TestRunHonorsCancellation(t *testing.T) {
	root := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	pub := &fakePublisher{}
	s, _ := newScheduler(t, root, pub, Options{})
	if _, err := s.Run(ctx, testPlan()); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(pub.calls) != 0 {
		t.Errorf("cancelled run invoked actions: %v", pub.calls)
	}
}

func TestRunJournalsFailure(t *testing.T) {
	root := t.TempDir()
	journal := &memoryJournal{}
	pub := &fakePublisher{failOn: map[string]error{"utils": errors.New("bad tarball")}}
	s, _ := newScheduler(t, root, pub, Options{}, WithJournal(journal))

	if _, err := s.Run(context.Background(), testPlan()); err == nil {
		t.Fatal("expected failure")
	}

	if len(journal.attempts) != 1 {
		t.Fatalf("expected one journal row, got %d", len(journal.attempts))
	}
	a := journal.attempts[0]
	if a.Outcome != history.OutcomeFailed || a.Package != "utils" {
		t.Errorf("unexpected journal row: %+v", a)
	}
	if a.Detail == "" {
		t.Error("failure detail missing from journal")
	}
	if a.SessionID == "" {
		t.Error("session id missing from journal")
	}
}

func TestRunEndToEndResumeScenario(t *testing.T) {
	// core depends on utils, app depends on core; failure on core leaves
	// {utils} checkpointed and a resume publishes exactly [core, app].
	root := t.TempDir()
	plan := testPlan()

	first := &fakePublisher{failOn: map[string]error{"core": fmt.Errorf("simulated outage")}}
	s, store := newScheduler(t, root, first, Options{})
	if _, err := s.Run(context.Background(), plan); err == nil {
		t.Fatal("expected failure on core")
	}

	cp, err := store.Load()
	if err != nil {
		t.Fatal(err)
	}
	if cp == nil || len(cp.Completed) != 1 || cp.Completed[0] != "utils" {
		t.Fatalf("checkpoint after failure: %+v", cp)
	}

	second := &fakePublisher{}
	s2, store2 := newScheduler(t, root, second, Options{Resume: true})
	result, err := s2.Run(context.Background(), plan)
	if err != nil {
		t.Fatalf("resume failed: %v", err)
	}
	assertOrder(t, second.calls, "core", "app")
	if result.Failed != "" {
		t.Errorf("unexpected failure: %s", result.Failed)
	}

	final, err := store2.Load()
	if err != nil {
		t.Fatal(err)
	}
	if final != nil {
		t.Errorf("checkpoint must be cleared after the plan completes: %+v", final)
	}
}
