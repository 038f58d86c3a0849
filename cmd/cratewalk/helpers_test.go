package main

import (
	"testing"

	"cratewalk/internal/checkpoint"
)

func writeTestCheckpoint(t *testing.T, root string, completed ...string) {
	t.Helper()

	store := checkpoint.NewStore(root)
	cp := checkpoint.New(root, "test-digest")
	for _, name := range completed {
		cp.MarkCompleted(name)
	}
	if err := store.Save(cp); err != nil {
		t.Fatalf("save checkpoint: %v", err)
	}
}
