package fskit

import (
	"os"
	"path/filepath"
	"testing"
)

// TestStatToAttrPreservesFileTypeBits guards against rebuilding fuse.Attr's
// Mode from the raw POSIX st_mode field, which would lose the S_IFMT type
// bits (they sit at different bit positions than os.FileMode's own type
// bits). A symlink must come back as a symlink, not a regular file.
func TestStatToAttrPreservesFileTypeBits(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "target")
	if err := os.WriteFile(target, []byte("x"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	link := filepath.Join(dir, "link")
	if err := os.Symlink(target, link); err != nil {
		t.Fatalf("Symlink: %v", err)
	}

	info, err := os.Lstat(link)
	if err != nil {
		t.Fatalf("Lstat: %v", err)
	}
	a := statToAttr(info)
	if a.Mode&os.ModeSymlink == 0 {
		t.Fatalf("Mode = %v, want the symlink bit set", a.Mode)
	}

	dirInfo, err := os.Lstat(dir)
	if err != nil {
		t.Fatalf("Lstat(dir): %v", err)
	}
	da := statToAttr(dirInfo)
	if da.Mode&os.ModeDir == 0 {
		t.Fatalf("Mode = %v, want the directory bit set", da.Mode)
	}
}
