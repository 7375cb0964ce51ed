package fskit

import (
	"context"
	"os"
	"testing"

	"github.com/afuse-go/afuse/automount"
)

// newTestFS builds an FS rooted at a fresh synthetic root. Callers pass
// no-op mount/unmount templates ("true"/"false"); the mount point directory
// itself is created and removed by the automount engine -- enough to
// exercise node dispatch without a real external filesystem.
func newTestFS(t *testing.T, opts automount.Options) *FS {
	t.Helper()
	root := t.TempDir()
	sys, err := automount.NewSystem(root, opts)
	if err != nil {
		t.Fatalf("automount.NewSystem: %v", err)
	}
	return &FS{Sys: sys}
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	return context.Background()
}

// mountChild forces rootName into existence as a mount, the way opening or
// creating something under it would, and returns the *node addressing it.
func mountChild(t *testing.T, f *FS, rootName string) *node {
	t.Helper()
	if _, err := f.Sys.Classify(testContext(t), "/"+rootName, true); err != nil {
		t.Fatalf("Classify(/%s, attemptMount=true): %v", rootName, err)
	}
	return &node{sys: f.Sys, path: "/" + rootName}
}

func mustStat(t *testing.T, path string) os.FileInfo {
	t.Helper()
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("os.Stat(%q): %v", path, err)
	}
	return info
}
