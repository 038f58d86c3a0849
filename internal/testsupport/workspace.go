// Package testsupport builds throwaway Cargo workspace fixtures for tests.
package testsupport

import (
	"os"
	"path/filepath"
	"testing"
)

// WriteManifest writes a Cargo.toml with the given content under dir,
// creating the directory as needed.
func WriteManifest(t testing.TB, dir, content string) {
	t.Helper()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", dir, err)
	}
	if err := os.WriteFile(filepath.Join(dir, "Cargo.toml"), []byte(content), 0o644); err != nil {
		t.Fatalf("write manifest in %s: %v", dir, err)
	}
}

// NewWorkspace creates a temp workspace with the given root manifest and one
// member manifest per entry in members (keys are root-relative directories).
// It returns the workspace root.
func NewWorkspace(t testing.TB, rootManifest string, members map[string]string) string {
	t.Helper()

	root := t.TempDir()
	WriteManifest(t, root, rootManifest)
	for rel, content := range members {
		WriteManifest(t, filepath.Join(root, rel), content)
	}
	return root
}
