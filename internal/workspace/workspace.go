package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/pelletier/go-toml/v2"
)

// ErrNoWorkspace indicates no ancestor directory carries a Cargo.toml with a
// [workspace] table.
var ErrNoWorkspace = errors.New("no workspace found")

// Workspace describes a resolved Cargo workspace: its root, the shared fields
// members may inherit, and the concrete member directories the member
// patterns expanded to.
type Workspace struct {
	// Root is the absolute workspace root directory.
	Root string

	// SharedVersion is the [workspace.package] version value, empty when the
	// root does not declare one.
	SharedVersion string

	// DependencyPaths maps [workspace.dependencies] entries that carry a
	// path to that path resolved absolute. Entries without a path (registry
	// dependencies) are not present.
	DependencyPaths map[string]string

	// MemberDirs are the absolute member directories, sorted and
	// deduplicated. The root directory itself is included when the root
	// manifest declares a [package] alongside [workspace].
	MemberDirs []string

	// Warnings lists member patterns that matched no directory.
	Warnings []string
}

// rootManifest captures the slice of the root Cargo.toml this tool needs.
type rootManifest struct {
	Package   map[string]any `toml:"package"`
	Workspace struct {
		Members      []string       `toml:"members"`
		Package      map[string]any `toml:"package"`
		Dependencies map[string]any `toml:"dependencies"`
	} `toml:"workspace"`
}

// FindRoot walks upward from startDir until it finds a Cargo.toml declaring a
// [workspace] table and returns that directory.
func FindRoot(startDir string) (string, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("resolve start directory: %w", err)
	}

	for {
		manifestPath := filepath.Join(dir, "Cargo.toml")
		data, err := os.ReadFile(manifestPath)
		if err == nil {
			var doc map[string]any
			if toml.Unmarshal(data, &doc) == nil {
				if _, ok := doc["workspace"]; ok {
					return dir, nil
				}
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("read %s: %w", manifestPath, err)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", ErrNoWorkspace
		}
		dir = parent
	}
}

// Load parses the root manifest at root and resolves member patterns into
// directories.
func Load(root string) (*Workspace, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve workspace root: %w", err)
	}

	manifestPath := filepath.Join(absRoot, "Cargo.toml")
	data, err := os.ReadFile(manifestPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s has no Cargo.toml", ErrNoWorkspace, absRoot)
		}
		return nil, fmt.Errorf("read %s: %w", manifestPath, err)
	}

	var doc rootManifest
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", manifestPath, err)
	}

	ws := &Workspace{
		Root:            absRoot,
		DependencyPaths: make(map[string]string),
	}

	if version, ok := doc.Workspace.Package["version"].(string); ok {
		ws.SharedVersion = version
	}
	for name, spec := range doc.Workspace.Dependencies {
		table, ok := spec.(map[string]any)
		if !ok {
			continue
		}
		path, ok := table["path"].(string)
		if !ok {
			continue
		}
		ws.DependencyPaths[name] = filepath.Clean(filepath.Join(absRoot, path))
	}

	dirs, warnings, err := resolveMembers(absRoot, doc.Workspace.Members)
	if err != nil {
		return nil, err
	}
	if len(doc.Package) > 0 {
		dirs = append(dirs, absRoot)
	}
	ws.MemberDirs = dedupeSorted(dirs)
	ws.Warnings = warnings

	return ws, nil
}

// resolveMembers expands literal paths and glob patterns into member
// directories. A pattern that matches nothing produces a warning, not an
// error.
func resolveMembers(root string, patterns []string) ([]string, []string, error) {
	var dirs []string
	var warnings []string

	for _, pattern := range patterns {
		matches, err := filepath.Glob(filepath.Join(root, pattern))
		if err != nil {
			return nil, nil, fmt.Errorf("member pattern %q: %w", pattern, err)
		}

		found := 0
		for _, match := range matches {
			info, err := os.Stat(match)
			if err != nil || !info.IsDir() {
				continue
			}
			dirs = append(dirs, filepath.Clean(match))
			found++
		}
		if found == 0 {
			warnings = append(warnings, fmt.Sprintf("member pattern %q matched no directories", pattern))
		}
	}

	return dirs, warnings, nil
}

func dedupeSorted(dirs []string) []string {
	seen := make(map[string]struct{}, len(dirs))
	result := make([]string, 0, len(dirs))
	for _, dir := range dirs {
		if _, ok := seen[dir]; ok {
			continue
		}
		seen[dir] = struct{}{}
		result = append(result, dir)
	}
	sort.Strings(result)
	return result
}
