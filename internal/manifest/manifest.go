package manifest

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/pelletier/go-toml/v2"

	"cratewalk/internal/workspace"
)

// Package is one normalized workspace member. Records are immutable once
// built; ordering code treats them as values.
type Package struct {
	// Name is the crate name, unique within the workspace.
	Name string

	// Version is fully resolved; inheritance markers never survive
	// normalization.
	Version string

	// Dir is the absolute package directory.
	Dir string

	// Publishable is false only when the manifest disables publishing
	// explicitly (publish = false or an empty registry list).
	Publishable bool

	// WorkspaceDeps names the other workspace members this package depends
	// on, sorted. Version constraints are irrelevant for ordering.
	WorkspaceDeps []string
}

// rawManifest keeps the member Cargo.toml loosely typed: several fields
// (version, publish, dependency specs) are unions in the format.
type rawManifest struct {
	Package           map[string]any `toml:"package"`
	Dependencies      map[string]any `toml:"dependencies"`
	DevDependencies   map[string]any `toml:"dev-dependencies"`
	BuildDependencies map[string]any `toml:"build-dependencies"`
}

// LoadAll normalizes every member directory of the workspace. Directories
// without a manifest or without a [package] section are skipped.
func LoadAll(ws *workspace.Workspace) ([]Package, error) {
	memberSet := make(map[string]struct{}, len(ws.MemberDirs))
	for _, dir := range ws.MemberDirs {
		memberSet[dir] = struct{}{}
	}

	packages := make([]Package, 0, len(ws.MemberDirs))
	for _, dir := range ws.MemberDirs {
		pkg, err := load(dir, ws, memberSet)
		if err != nil {
			return nil, err
		}
		if pkg == nil {
			continue
		}
		packages = append(packages, *pkg)
	}
	return packages, nil
}

// load normalizes a single member directory. A nil package with nil error
// means the directory is out of scope (no manifest, or no [package] table).
func load(dir string, ws *workspace.Workspace, memberSet map[string]struct{}) (*Package, error) {
	manifestPath := filepath.Join(dir, "Cargo.toml")
	data, err := os.ReadFile(manifestPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read %s: %w", manifestPath, err)
	}

	var raw rawManifest
	if err := toml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse %s: %w", manifestPath, err)
	}
	if len(raw.Package) == 0 {
		return nil, nil
	}

	name, ok := raw.Package["name"].(string)
	if !ok || name == "" {
		return nil, fmt.Errorf("%s: missing package name", manifestPath)
	}

	version, err := resolveVersion(name, raw.Package["version"], ws.SharedVersion)
	if err != nil {
		return nil, err
	}

	deps := make(map[string]struct{})
	for _, section := range []map[string]any{raw.Dependencies, raw.DevDependencies, raw.BuildDependencies} {
		collectWorkspaceDeps(deps, section, dir, ws, memberSet)
	}

	names := make([]string, 0, len(deps))
	for dep := range deps {
		if dep == name {
			continue
		}
		names = append(names, dep)
	}
	sort.Strings(names)

	return &Package{
		Name:          name,
		Version:       version,
		Dir:           dir,
		Publishable:   resolvePublish(raw.Package["publish"]),
		WorkspaceDeps: names,
	}, nil
}

// resolveVersion substitutes the workspace-level version when the manifest
// declares version.workspace = true. A missing workspace value is a fatal
// configuration error naming the package.
func resolveVersion(name string, value any, shared string) (string, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case map[string]any:
		if inherit, ok := v["workspace"].(bool); ok && inherit {
			if shared == "" {
				return "", fmt.Errorf("package %s inherits its version but the workspace does not define [workspace.package] version", name)
			}
			return shared, nil
		}
		return "", fmt.Errorf("package %s: unsupported version declaration", name)
	case nil:
		return "", fmt.Errorf("package %s: missing version", name)
	default:
		return "", fmt.Errorf("package %s: unsupported version declaration", name)
	}
}

// resolvePublish interprets the publish field: absent means publishable,
// false or an empty registry list means not.
func resolvePublish(value any) bool {
	switch v := value.(type) {
	case bool:
		return v
	case []any:
		return len(v) > 0
	default:
		return true
	}
}

// collectWorkspaceDeps adds every dependency of section that resolves to a
// member directory. Two shapes qualify: an explicit path inside the
// workspace, and workspace = true pointing at a path-carrying
// [workspace.dependencies] entry.
func collectWorkspaceDeps(out map[string]struct{}, section map[string]any, pkgDir string, ws *workspace.Workspace, memberSet map[string]struct{}) {
	for key, spec := range section {
		table, ok := spec.(map[string]any)
		if !ok {
			// Bare version string: registry dependency.
			continue
		}

		var resolved string
		if path, ok := table["path"].(string); ok {
			resolved = filepath.Clean(filepath.Join(pkgDir, path))
		} else if inherit, ok := table["workspace"].(bool); ok && inherit {
			resolved = ws.DependencyPaths[key]
		}
		if resolved == "" {
			continue
		}
		if _, ok := memberSet[resolved]; !ok {
			continue
		}

		depName := key
		if renamed, ok := table["package"].(string); ok && renamed != "" {
			depName = renamed
		}
		out[depName] = struct{}{}
	}
}
