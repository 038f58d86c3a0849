package checkpoint

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pelletier/go-toml/v2"

	"cratewalk/internal/fileutil"
	"cratewalk/internal/manifest"
)

var (
	// ErrCorrupt indicates a checkpoint file exists but cannot be decoded.
	// Callers must surface this rather than treat it as an empty checkpoint:
	// guessing risks a double publish or a silent skip.
	ErrCorrupt = errors.New("checkpoint unreadable")

	// ErrStale indicates the stored checkpoint does not match the freshly
	// computed plan.
	ErrStale = errors.New("stale checkpoint")
)

// Checkpoint records the completed slice of one publish session.
type Checkpoint struct {
	WorkspaceRoot string    `toml:"workspace_root"`
	SessionID     string    `toml:"session_id"`
	PlanDigest    string    `toml:"plan_digest"`
	Completed     []string  `toml:"completed"`
	UpdatedAt     time.Time `toml:"updated_at"`
}

// New creates an empty checkpoint bound to the given workspace and plan.
func New(workspaceRoot, planDigest string) *Checkpoint {
	return &Checkpoint{
		WorkspaceRoot: workspaceRoot,
		SessionID:     uuid.NewString(),
		PlanDigest:    planDigest,
		UpdatedAt:     time.Now().UTC(),
	}
}

// MarkCompleted appends name to the completed set, preserving completion
// order for human readers. Marking twice is a no-op.
func (c *Checkpoint) MarkCompleted(name string) {
	if c.IsCompleted(name) {
		return
	}
	c.Completed = append(c.Completed, name)
	c.UpdatedAt = time.Now().UTC()
}

// IsCompleted reports whether name already completed its publish action.
func (c *Checkpoint) IsCompleted(name string) bool {
	for _, done := range c.Completed {
		if done == name {
			return true
		}
	}
	return false
}

// Validate confirms the checkpoint may drive a resume of plan: the plan
// fingerprint must match exactly and every completed name must still be in
// the plan. Any mismatch is ErrStale; the operator decides whether to clear.
func (c *Checkpoint) Validate(plan []manifest.Package) error {
	digest := PlanDigest(plan)
	if c.PlanDigest != digest {
		return fmt.Errorf("%w: the workspace publish order changed since the checkpoint was written (clear it to start fresh)", ErrStale)
	}

	inPlan := make(map[string]struct{}, len(plan))
	for _, pkg := range plan {
		inPlan[pkg.Name] = struct{}{}
	}
	for _, done := range c.Completed {
		if _, ok := inPlan[done]; !ok {
			return fmt.Errorf("%w: completed package %q is no longer part of the plan", ErrStale, done)
		}
	}
	return nil
}

// PlanDigest fingerprints a plan as sha256 over the ordered name@version
// sequence. Identical workspaces produce identical digests because the sort
// order is deterministic.
func PlanDigest(plan []manifest.Package) string {
	var b strings.Builder
	for _, pkg := range plan {
		b.WriteString(pkg.Name)
		b.WriteByte('@')
		b.WriteString(pkg.Version)
		b.WriteByte('\n')
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// Store reads and writes the checkpoint file for one workspace.
type Store struct {
	path string
}

// NewStore returns the store for the workspace rooted at root. The file
// lives under target/ so standard cargo cleanup removes it.
func NewStore(root string) *Store {
	return &Store{path: filepath.Join(root, "target", "cratewalk-publish.toml")}
}

// Path returns the on-disk checkpoint location.
func (s *Store) Path() string {
	return s.path
}

// Load returns the stored checkpoint, or nil when none exists. A file that
// exists but fails to decode is ErrCorrupt.
func (s *Store) Load() (*Checkpoint, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read checkpoint %s: %w", s.path, err)
	}

	var cp Checkpoint
	if err := toml.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, s.path, err)
	}
	return &cp, nil
}

// Save persists the checkpoint atomically relative to any prior state.
func (s *Store) Save(cp *Checkpoint) error {
	data, err := toml.Marshal(cp)
	if err != nil {
		return fmt.Errorf("encode checkpoint: %w", err)
	}
	if err := fileutil.WriteFileAtomic(s.path, data, 0o644); err != nil {
		return fmt.Errorf("persist checkpoint: %w", err)
	}
	return nil
}

// Clear removes the checkpoint file. A missing file is not an error.
func (s *Store) Clear() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove checkpoint %s: %w", s.path, err)
	}
	return nil
}
