package automount

import (
	"testing"
	"time"
)

func TestNotifyIdempotentWithNoMutation(t *testing.T) {
	sys := newTestSystem(t, Options{MountTemplate: "true", UnmountTemplate: "true", Timeout: time.Second})

	sys.mu.Lock()
	m, err := sys.doMount(testContext(t), "foo")
	sys.mu.Unlock()
	if err != nil {
		t.Fatalf("doMount: %v", err)
	}

	sys.Notify(m)
	sys.Notify(m)

	if !m.linked() {
		t.Fatal("expected idle mount to remain linked in the heap after repeated notify")
	}
	if sys.nextTimerFire != m.unmountDeadline {
		t.Fatalf("nextTimerFire (%d) should track the single mount's deadline (%d)", sys.nextTimerFire, m.unmountDeadline)
	}
	if sys.registry.Len() != 1 {
		t.Fatalf("registry.Len() = %d, want 1", sys.registry.Len())
	}
}

func TestNotifyPinsBusyMount(t *testing.T) {
	sys := newTestSystem(t, Options{MountTemplate: "true", UnmountTemplate: "true", Timeout: time.Second})

	sys.mu.Lock()
	m, err := sys.doMount(testContext(t), "foo")
	sys.mu.Unlock()
	if err != nil {
		t.Fatalf("doMount: %v", err)
	}

	m.AddFd(3)
	sys.Notify(m)

	if m.linked() {
		t.Fatal("expected a mount with an open handle not to be linked in the heap")
	}
	if m.unmountDeadline != unmountNever {
		t.Fatalf("unmountDeadline = %d, want unmountNever", m.unmountDeadline)
	}
}

func TestNotifyDisabledAutoUnmountNeverLinks(t *testing.T) {
	sys := newTestSystem(t, Options{MountTemplate: "true", UnmountTemplate: "true"})

	sys.mu.Lock()
	m, err := sys.doMount(testContext(t), "foo")
	sys.mu.Unlock()
	if err != nil {
		t.Fatalf("doMount: %v", err)
	}

	sys.Notify(m)
	if m.linked() {
		t.Fatal("expected auto-unmount to stay disabled with a zero timeout")
	}
}

func TestExpireUnmountsAfterDeadline(t *testing.T) {
	sys := newTestSystem(t, Options{MountTemplate: "true", UnmountTemplate: "true", Timeout: time.Millisecond})

	sys.mu.Lock()
	m, err := sys.doMount(testContext(t), "foo")
	sys.mu.Unlock()
	if err != nil {
		t.Fatalf("doMount: %v", err)
	}
	sys.Notify(m)

	time.Sleep(5 * time.Millisecond)
	sys.expire(testContext(t))

	if _, ok := sys.registry.Lookup("foo"); ok {
		t.Fatal("expected expired mount to be unmounted")
	}
}
