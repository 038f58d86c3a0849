package publish

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"cratewalk/internal/checkpoint"
	"cratewalk/internal/history"
	"cratewalk/internal/logging"
	"cratewalk/internal/manifest"
)

// ErrLocked indicates another publish run currently holds the workspace lock.
var ErrLocked = errors.New("another publish run is in progress")

// Publisher performs the external per-package publish action.
type Publisher interface {
	Publish(ctx context.Context, pkg manifest.Package, dryRun bool) error
}

// RegistryChecker answers whether a package version is already on the
// registry. Consulted only when skip-published is requested.
type RegistryChecker interface {
	IsPublished(ctx context.Context, name, version string) (bool, error)
}

// Journal records publish attempts for auditing. Optional.
type Journal interface {
	Record(ctx context.Context, attempt history.Attempt) error
}

// Options controls a scheduler run.
type Options struct {
	DryRun        bool
	SkipPublished bool
	Resume        bool
	// Interval is the pause between consecutive real publish invocations,
	// to respect registry rate limits.
	Interval time.Duration
}

// Option configures optional scheduler collaborators.
type Option func(*Scheduler)

// WithChecker wires the already-published registry check.
func WithChecker(checker RegistryChecker) Option {
	return func(s *Scheduler) {
		s.checker = checker
	}
}

// WithJournal wires the attempt journal.
func WithJournal(journal Journal) Option {
	return func(s *Scheduler) {
		s.journal = journal
	}
}

// WithLogger attaches a logger; the default discards.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Scheduler executes a validated publish plan.
type Scheduler struct {
	root      string
	store     *checkpoint.Store
	publisher Publisher
	checker   RegistryChecker
	journal   Journal
	logger    *slog.Logger
	opts      Options
}

// New constructs a scheduler for the workspace rooted at root.
func New(root string, store *checkpoint.Store, publisher Publisher, opts Options, extras ...Option) (*Scheduler, error) {
	if root == "" || store == nil || publisher == nil {
		return nil, errors.New("scheduler requires workspace root, checkpoint store, and publisher")
	}
	s := &Scheduler{
		root:      root,
		store:     store,
		publisher: publisher,
		logger:    logging.Nop(),
		opts:      opts,
	}
	for _, extra := range extras {
		extra(s)
	}
	return s, nil
}

// Result summarizes a run. Failed is empty on full success.
type Result struct {
	Planned              int
	Published            []string
	WouldPublish         []string
	SkippedUnpublishable []string
	SkippedCompleted     []string
	SkippedPublished     []string
	Failed               string
}

// Run walks the plan in order. It returns the partial result alongside the
// error when a package's action fails; everything already completed stays
// checkpointed for a later resume.
func (s *Scheduler) Run(ctx context.Context, plan []manifest.Package) (*Result, error) {
	result := &Result{Planned: len(plan)}

	// The lock must come first: resolving a fresh run clears any prior
	// checkpoint, which would destroy the live state of a run already
	// holding the lock.
	if !s.opts.DryRun {
		unlock, err := s.acquireLock()
		if err != nil {
			return result, err
		}
		defer unlock()
	}

	cp, err := s.resolveCheckpoint(plan)
	if err != nil {
		return result, err
	}

	published := 0
	for _, pkg := range plan {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		if !pkg.Publishable {
			s.logger.Debug("skipping non-publishable package", "package", pkg.Name)
			result.SkippedUnpublishable = append(result.SkippedUnpublishable, pkg.Name)
			continue
		}

		if s.opts.Resume && cp.IsCompleted(pkg.Name) {
			s.logger.Info("already completed in a previous session", "package", pkg.Name)
			result.SkippedCompleted = append(result.SkippedCompleted, pkg.Name)
			continue
		}

		if s.opts.SkipPublished && s.checker != nil {
			already, checkErr := s.checker.IsPublished(ctx, pkg.Name, pkg.Version)
			switch {
			case checkErr != nil:
				if ctx.Err() != nil {
					return result, ctx.Err()
				}
				s.logger.Warn("registry check failed, proceeding with publish", "package", pkg.Name, "error", checkErr)
			case already:
				s.logger.Info("already on the registry, skipping", "package", pkg.Name, "version", pkg.Version)
				result.SkippedPublished = append(result.SkippedPublished, pkg.Name)
				if !s.opts.DryRun {
					s.record(ctx, cp, pkg, history.OutcomeAlreadyPublished, "", 0)
					cp.MarkCompleted(pkg.Name)
					if err := s.store.Save(cp); err != nil {
						return result, err
					}
				}
				continue
			}
		}

		if s.opts.DryRun {
			s.logger.Info("dry run, would publish", "package", pkg.Name, "version", pkg.Version)
			if err := s.publisher.Publish(ctx, pkg, true); err != nil {
				result.Failed = pkg.Name
				return result, fmt.Errorf("dry run for %s failed: %w", pkg.Name, err)
			}
			result.WouldPublish = append(result.WouldPublish, pkg.Name)
			continue
		}

		if published > 0 {
			if err := wait(ctx, s.opts.Interval); err != nil {
				return result, err
			}
		}

		started := time.Now()
		publishErr := s.publisher.Publish(ctx, pkg, false)
		elapsed := time.Since(started)

		if publishErr != nil {
			s.record(ctx, cp, pkg, history.OutcomeFailed, publishErr.Error(), elapsed)
			result.Failed = pkg.Name
			return result, fmt.Errorf("publish %s@%s: %w", pkg.Name, pkg.Version, publishErr)
		}

		s.record(ctx, cp, pkg, history.OutcomePublished, "", elapsed)
		cp.MarkCompleted(pkg.Name)
		if err := s.store.Save(cp); err != nil {
			return result, err
		}
		s.logger.Info("published", "package", pkg.Name, "version", pkg.Version, "elapsed", elapsed)
		result.Published = append(result.Published, pkg.Name)
		published++
	}

	// Whole plan done: a fresh run starts clean.
	if !s.opts.DryRun {
		if err := s.store.Clear(); err != nil {
			return result, err
		}
	}
	return result, nil
}

// resolveCheckpoint loads and validates the prior session's checkpoint when
// resuming, or starts a fresh one otherwise.
func (s *Scheduler) resolveCheckpoint(plan []manifest.Package) (*checkpoint.Checkpoint, error) {
	digest := checkpoint.PlanDigest(plan)

	if s.opts.Resume {
		cp, err := s.store.Load()
		if err != nil {
			return nil, err
		}
		if cp == nil {
			s.logger.Info("no previous publish session found, starting fresh")
			return checkpoint.New(s.root, digest), nil
		}
		if err := cp.Validate(plan); err != nil {
			return nil, err
		}
		s.logger.Info("resuming previous publish session", "session", cp.SessionID, "completed", len(cp.Completed))
		return cp, nil
	}

	if !s.opts.DryRun {
		if err := s.store.Clear(); err != nil {
			return nil, err
		}
	}
	return checkpoint.New(s.root, digest), nil
}

// acquireLock takes the single-run workspace lock.
func (s *Scheduler) acquireLock() (func(), error) {
	lockPath := filepath.Join(s.root, "target", "cratewalk-publish.lock")
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return nil, fmt.Errorf("ensure lock directory: %w", err)
	}

	lock := flock.New(lockPath)
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire publish lock %s: %w", lockPath, err)
	}
	if !locked {
		return nil, fmt.Errorf("%w (lock file %s)", ErrLocked, lockPath)
	}
	return func() { _ = lock.Unlock() }, nil
}

func (s *Scheduler) record(ctx context.Context, cp *checkpoint.Checkpoint, pkg manifest.Package, outcome, detail string, elapsed time.Duration) {
	if s.journal == nil {
		return
	}
	attempt := history.Attempt{
		SessionID:     cp.SessionID,
		WorkspaceRoot: s.root,
		Package:       pkg.Name,
		Version:       pkg.Version,
		Outcome:       outcome,
		Detail:        detail,
		StartedAt:     time.Now().Add(-elapsed),
		Duration:      elapsed,
	}
	if err := s.journal.Record(ctx, attempt); err != nil {
		s.logger.Warn("failed to journal attempt", "package", pkg.Name, "error", err)
	}
}

// wait pauses between publishes, honoring cancellation.
func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
