package fskit

import (
	"os"
	"path/filepath"
	"syscall"
	"testing"

	"bazil.org/fuse"

	"github.com/afuse-go/afuse/automount"
)

func TestFSRootReturnsRootNode(t *testing.T) {
	f := newTestFS(t, automount.Options{MountTemplate: "true", UnmountTemplate: "true"})
	n, err := f.Root()
	if err != nil {
		t.Fatalf("Root: %v", err)
	}
	rn, ok := n.(*node)
	if !ok || rn.path != "/" {
		t.Fatalf("Root() = %+v, want node at /", n)
	}
}

func TestNodeAttrRootSynthesizesDirectory(t *testing.T) {
	f := newTestFS(t, automount.Options{MountTemplate: "true", UnmountTemplate: "true"})
	n := &node{sys: f.Sys, path: "/"}

	var a fuse.Attr
	if err := n.Attr(testContext(t), &a); err != nil {
		t.Fatalf("Attr: %v", err)
	}
	if a.Mode != os.ModeDir|0700 {
		t.Fatalf("Mode = %v, want dir 0700", a.Mode)
	}
}

func TestNodeAttrUnmountedRootSubdirSynthesizesDirectory(t *testing.T) {
	f := newTestFS(t, automount.Options{MountTemplate: "true", UnmountTemplate: "true"})
	n := &node{sys: f.Sys, path: "/foo"}

	var a fuse.Attr
	if err := n.Attr(testContext(t), &a); err != nil {
		t.Fatalf("Attr: %v", err)
	}
	if a.Mode != os.ModeDir|0750 {
		t.Fatalf("Mode = %v, want dir 0750", a.Mode)
	}
}

func TestNodeAttrMountedRootSubdirForwardsLstat(t *testing.T) {
	f := newTestFS(t, automount.Options{MountTemplate: "true", UnmountTemplate: "true"})
	n := mountChild(t, f, "foo")

	var a fuse.Attr
	if err := n.Attr(testContext(t), &a); err != nil {
		t.Fatalf("Attr: %v", err)
	}
	if a.Mode&os.ModeDir == 0 {
		t.Fatalf("Mode = %v, want a directory bit set from the real lstat", a.Mode)
	}
}

func TestNodeOpenDirTracksHandleAndRelease(t *testing.T) {
	f := newTestFS(t, automount.Options{MountTemplate: "true", UnmountTemplate: "true"})
	n := mountChild(t, f, "foo")

	h, err := n.Open(testContext(t), &fuse.OpenRequest{Dir: true}, &fuse.OpenResponse{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	dh, ok := h.(*dirHandle)
	if !ok {
		t.Fatalf("Open returned %T, want *dirHandle", h)
	}
	if dh.mount.Idle() {
		t.Fatal("mount should no longer be idle with an open dir handle")
	}

	if _, err := dh.ReadDirAll(testContext(t)); err != nil {
		t.Fatalf("ReadDirAll: %v", err)
	}

	if err := dh.Release(testContext(t), &fuse.ReleaseRequest{}); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if !dh.mount.Idle() {
		t.Fatal("mount should be idle again after Release")
	}
}

func TestNodeCreateWriteAndRelease(t *testing.T) {
	f := newTestFS(t, automount.Options{MountTemplate: "true", UnmountTemplate: "true"})
	n := mountChild(t, f, "foo")

	_, h, err := n.Create(testContext(t), &fuse.CreateRequest{Name: "hello.txt", Flags: fuse.OpenReadWrite, Mode: 0644}, &fuse.CreateResponse{})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	fh, ok := h.(*fileHandle)
	if !ok {
		t.Fatalf("Create returned handle %T, want *fileHandle", h)
	}

	var wresp fuse.WriteResponse
	if err := fh.Write(testContext(t), &fuse.WriteRequest{Data: []byte("hi")}, &wresp); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if wresp.Size != 2 {
		t.Fatalf("wrote %d bytes, want 2", wresp.Size)
	}
	createdPath := filepath.Join(fh.mount.MountPoint, "hello.txt")
	if err := fh.Release(testContext(t), &fuse.ReleaseRequest{}); err != nil {
		t.Fatalf("Release: %v", err)
	}

	data, err := os.ReadFile(createdPath)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != "hi" {
		t.Fatalf("file content = %q, want %q", data, "hi")
	}
}

func TestNodeRenameWithinMount(t *testing.T) {
	f := newTestFS(t, automount.Options{MountTemplate: "true", UnmountTemplate: "true"})
	n := mountChild(t, f, "foo")

	_, h, err := n.Create(testContext(t), &fuse.CreateRequest{Name: "old.txt", Mode: 0644}, &fuse.CreateResponse{})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	h.(*fileHandle).Release(testContext(t), &fuse.ReleaseRequest{})

	if err := n.Rename(testContext(t), &fuse.RenameRequest{OldName: "old.txt", NewName: "new.txt"}, n); err != nil {
		t.Fatalf("Rename: %v", err)
	}

	cls, err := f.Sys.Classify(testContext(t), "/foo", false)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if _, err := os.Stat(filepath.Join(cls.Mount.MountPoint, "old.txt")); !os.IsNotExist(err) {
		t.Fatalf("old.txt should be gone after rename, stat err = %v", err)
	}
	mustStat(t, filepath.Join(cls.Mount.MountPoint, "new.txt"))
}

func TestNodeRemoveFileWithinMount(t *testing.T) {
	f := newTestFS(t, automount.Options{MountTemplate: "true", UnmountTemplate: "true"})
	n := mountChild(t, f, "foo")

	_, h, err := n.Create(testContext(t), &fuse.CreateRequest{Name: "doomed.txt", Mode: 0644}, &fuse.CreateResponse{})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	h.(*fileHandle).Release(testContext(t), &fuse.ReleaseRequest{})

	if err := n.Remove(testContext(t), &fuse.RemoveRequest{Name: "doomed.txt"}); err != nil {
		t.Fatalf("Remove: %v", err)
	}

	cls, err := f.Sys.Classify(testContext(t), "/foo", false)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if _, err := os.Stat(filepath.Join(cls.Mount.MountPoint, "doomed.txt")); !os.IsNotExist(err) {
		t.Fatalf("doomed.txt should be gone after Remove, stat err = %v", err)
	}
}

func TestNodeRemoveUnsupportedOutsideMount(t *testing.T) {
	// A root-level unlink (req.Dir == false) is always ENOTSUP, whether or
	// not the named root subdir can be mounted: Remove only forwards to the
	// real filesystem once the target classifies as Proxy, i.e. once it has
	// its own child segment.
	f := newTestFS(t, automount.Options{MountTemplate: "true", UnmountTemplate: "true"})
	n := &node{sys: f.Sys, path: "/"}

	err := n.Remove(testContext(t), &fuse.RemoveRequest{Name: "anything"})
	errno, ok := err.(errnoWrap)
	if !ok || errno.errno != syscall.ENOTSUP {
		t.Fatalf("Remove() = %v, want ENOTSUP", err)
	}
}

func TestNodeRemoveRootRmdirMount(t *testing.T) {
	f := newTestFS(t, automount.Options{MountTemplate: "true", UnmountTemplate: "true"})
	mountChild(t, f, "foo")
	root := &node{sys: f.Sys, path: "/"}

	if err := root.Remove(testContext(t), &fuse.RemoveRequest{Name: "foo", Dir: true}); err != nil {
		t.Fatalf("Remove(rmdir foo): %v", err)
	}

	cls, err := f.Sys.Classify(testContext(t), "/foo", false)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if cls.Mount != nil {
		t.Fatal("expected foo to no longer be mounted after rmdir")
	}
}

func TestNodeRemoveRootRmdirMountBusyWhileOpen(t *testing.T) {
	f := newTestFS(t, automount.Options{MountTemplate: "true", UnmountTemplate: "true"})
	n := mountChild(t, f, "foo")
	root := &node{sys: f.Sys, path: "/"}

	h, err := n.Open(testContext(t), &fuse.OpenRequest{Dir: true}, &fuse.OpenResponse{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer h.(*dirHandle).Release(testContext(t), &fuse.ReleaseRequest{})

	err = root.Remove(testContext(t), &fuse.RemoveRequest{Name: "foo", Dir: true})
	errno, ok := err.(errnoWrap)
	if !ok || errno.errno != syscall.EBUSY {
		t.Fatalf("Remove(rmdir busy foo) = %v, want EBUSY", err)
	}
}

func TestNodeAccessUnmountedRootSubdirNotMounted(t *testing.T) {
	f := newTestFS(t, automount.Options{MountTemplate: "false", UnmountTemplate: "true"})
	n := &node{sys: f.Sys, path: "/foo"}

	err := n.Access(testContext(t), &fuse.AccessRequest{})
	if err == nil {
		t.Fatal("expected Access on an unmounted root subdir to fail")
	}
}
