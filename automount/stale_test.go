package automount

import (
	"os"
	"testing"
)

func TestIsStaleDetectsUnmountedBackingDir(t *testing.T) {
	sys := newTestSystem(t, Options{MountTemplate: "true", UnmountTemplate: "true"})

	sys.mu.Lock()
	m, err := sys.doMount(testContext(t), "foo")
	sys.mu.Unlock()
	if err != nil {
		t.Fatalf("doMount: %v", err)
	}

	// mount_template "true" never actually mounts anything onto m.MountPoint,
	// so it remains on the synthetic root's own device -- the definition of
	// stale.
	stale, err := sys.isStale(m)
	if err != nil {
		t.Fatalf("isStale: %v", err)
	}
	if !stale {
		t.Fatal("expected an unmounted backing directory to be reported stale")
	}
}

func TestIsStaleTreatsMissingMountPointAsStale(t *testing.T) {
	sys := newTestSystem(t, Options{MountTemplate: "true", UnmountTemplate: "true"})

	sys.mu.Lock()
	m, err := sys.doMount(testContext(t), "foo")
	sys.mu.Unlock()
	if err != nil {
		t.Fatalf("doMount: %v", err)
	}

	if err := os.Remove(m.MountPoint); err != nil {
		t.Fatalf("removing mount point: %v", err)
	}

	stale, err := sys.isStale(m)
	if err != nil {
		t.Fatalf("isStale: %v", err)
	}
	if !stale {
		t.Fatal("expected a missing mount point to be reported stale, not an error")
	}
}
