package automount

import (
	"context"
	"testing"
)

// newTestSystem builds a System rooted at a fresh temp directory, suitable
// for exercising Classify/doMount/doUmount without a real FUSE mount.
func newTestSystem(t *testing.T, opts Options) *System {
	t.Helper()
	root := t.TempDir()
	sys, err := NewSystem(root, opts)
	if err != nil {
		t.Fatalf("NewSystem: %v", err)
	}
	return sys
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	return context.Background()
}
