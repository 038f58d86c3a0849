package workspace

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"cratewalk/internal/testsupport"
)

const rootWithGlobs = `
[workspace]
members = ["crates/*", "tools/cli", "missing/*"]

[workspace.package]
version = "0.3.0"

[workspace.dependencies]
utils = { path = "crates/utils" }
serde = { version = "1.0" }
`

func TestLoadExpandsMembersAndWarnsOnEmptyPattern(t *testing.T) {
	root := testsupport.NewWorkspace(t, rootWithGlobs, map[string]string{
		"crates/utils": "[package]\nname = \"utils\"\nversion = \"0.3.0\"\n",
		"crates/core":  "[package]\nname = \"core\"\nversion = \"0.3.0\"\n",
		"tools/cli":    "[package]\nname = \"cli\"\nversion = \"0.3.0\"\n",
	})

	ws, err := Load(root)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	want := []string{
		filepath.Join(root, "crates", "core"),
		filepath.Join(root, "crates", "utils"),
		filepath.Join(root, "tools", "cli"),
	}
	if len(ws.MemberDirs) != len(want) {
		t.Fatalf("member dirs: got %v, want %v", ws.MemberDirs, want)
	}
	for i, dir := range want {
		if ws.MemberDirs[i] != dir {
			t.Errorf("member dir %d: got %s, want %s", i, ws.MemberDirs[i], dir)
		}
	}

	if len(ws.Warnings) != 1 || !strings.Contains(ws.Warnings[0], "missing/*") {
		t.Errorf("expected warning for empty pattern, got %v", ws.Warnings)
	}

	if ws.SharedVersion != "0.3.0" {
		t.Errorf("shared version: got %q", ws.SharedVersion)
	}

	if got := ws.DependencyPaths["utils"]; got != filepath.Join(root, "crates", "utils") {
		t.Errorf("dependency path for utils: got %q", got)
	}
	if _, ok := ws.DependencyPaths["serde"]; ok {
		t.Error("registry dependency serde must not carry a path")
	}
}

func TestLoadDeduplicatesOverlappingPatterns(t *testing.T) {
	root := testsupport.NewWorkspace(t, `
[workspace]
members = ["crates/*", "crates/utils"]
`, map[string]string{
		"crates/utils": "[package]\nname = \"utils\"\nversion = \"0.1.0\"\n",
	})

	ws, err := Load(root)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(ws.MemberDirs) != 1 {
		t.Errorf("expected deduplicated member set, got %v", ws.MemberDirs)
	}
}

func TestLoadIncludesRootPackage(t *testing.T) {
	root := testsupport.NewWorkspace(t, `
[package]
name = "root-crate"
version = "1.0.0"

[workspace]
members = ["crates/*"]
`, map[string]string{
		"crates/utils": "[package]\nname = \"utils\"\nversion = \"0.1.0\"\n",
	})

	ws, err := Load(root)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	found := false
	for _, dir := range ws.MemberDirs {
		if dir == root {
			found = true
		}
	}
	if !found {
		t.Errorf("root package dir missing from members: %v", ws.MemberDirs)
	}
}

func TestFindRootWalksUpward(t *testing.T) {
	root := testsupport.NewWorkspace(t, "[workspace]\nmembers = []\n", nil)
	nested := filepath.Join(root, "crates", "deep", "src")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatal(err)
	}

	found, err := FindRoot(nested)
	if err != nil {
		t.Fatalf("FindRoot failed: %v", err)
	}
	resolvedRoot, err := filepath.EvalSymlinks(root)
	if err != nil {
		t.Fatal(err)
	}
	resolvedFound, err := filepath.EvalSymlinks(found)
	if err != nil {
		t.Fatal(err)
	}
	if resolvedFound != resolvedRoot {
		t.Errorf("FindRoot: got %s, want %s", found, root)
	}
}

func TestFindRootSkipsPlainPackageManifest(t *testing.T) {
	dir := t.TempDir()
	testsupport.WriteManifest(t, dir, "[package]\nname = \"lonely\"\nversion = \"0.1.0\"\n")

	if _, err := FindRoot(dir); !errors.Is(err, ErrNoWorkspace) {
		t.Fatalf("expected ErrNoWorkspace, got %v", err)
	}
}

func TestLoadMissingManifest(t *testing.T) {
	if _, err := Load(t.TempDir()); !errors.Is(err, ErrNoWorkspace) {
		t.Fatalf("expected ErrNoWorkspace, got %v", err)
	}
}
