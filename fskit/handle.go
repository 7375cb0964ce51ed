package fskit

import (
	"context"
	"os"

	"bazil.org/fuse"
	"bazil.org/fuse/fs"

	"github.com/afuse-go/afuse/automount"
)

var (
	_ fs.HandleReadDirAller = (*rootHandle)(nil)
	_ fs.HandleReadDirAller = (*dirHandle)(nil)
	_ fs.HandleReleaser     = (*dirHandle)(nil)
	_ fs.HandleReader       = (*fileHandle)(nil)
	_ fs.HandleWriter       = (*fileHandle)(nil)
	_ fs.HandleFlusher      = (*fileHandle)(nil)
	_ fs.HandleReleaser     = (*fileHandle)(nil)
)

// rootHandle backs an open of the synthetic root directory. It carries no
// real descriptor -- the root has no backing file -- and is never tracked
// against any mount's handle set.
type rootHandle struct {
	sys *automount.System
}

func (h *rootHandle) ReadDirAll(ctx context.Context) ([]fuse.Dirent, error) {
	entries := []fuse.Dirent{
		{Name: ".", Type: fuse.DT_Dir},
		{Name: "..", Type: fuse.DT_Dir},
	}
	for _, name := range h.sys.RootEntries(ctx) {
		entries = append(entries, fuse.Dirent{Name: name, Type: fuse.DT_Dir})
	}
	return entries, nil
}

// dirHandle wraps a real directory stream opened against a mount's
// forwarded path, registered in the mount's dir handle set for the
// lifetime of the open.
type dirHandle struct {
	sys   *automount.System
	mount *automount.Mount
	f     *os.File
}

func (h *dirHandle) ReadDirAll(ctx context.Context) ([]fuse.Dirent, error) {
	infos, err := h.f.ReadDir(-1)
	if err != nil {
		return nil, toFuseError(err)
	}
	entries := make([]fuse.Dirent, 0, len(infos)+2)
	entries = append(entries,
		fuse.Dirent{Name: ".", Type: fuse.DT_Dir},
		fuse.Dirent{Name: "..", Type: fuse.DT_Dir},
	)
	for _, info := range infos {
		entries = append(entries, fuse.Dirent{
			Name: info.Name(),
			Type: directoryEntryType(info),
		})
	}
	return entries, nil
}

func (h *dirHandle) Release(ctx context.Context, req *fuse.ReleaseRequest) error {
	h.mount.RemoveDir(h.f.Fd())
	h.sys.Notify(h.mount)
	return toFuseError(h.f.Close())
}

func directoryEntryType(info os.DirEntry) fuse.DirentType {
	switch {
	case info.IsDir():
		return fuse.DT_Dir
	case info.Type()&os.ModeSymlink != 0:
		return fuse.DT_Link
	default:
		return fuse.DT_File
	}
}

// fileHandle wraps a real file descriptor opened against a mount's
// forwarded path. Read/Write/Fsync/Release are pure passthroughs over this
// descriptor, out of scope per the purpose statement's "passthrough data
// operations" exclusion -- only the handle-set bookkeeping on Release is
// this package's concern.
type fileHandle struct {
	sys   *automount.System
	mount *automount.Mount
	f     *os.File
	flush bool
}

func (h *fileHandle) Read(ctx context.Context, req *fuse.ReadRequest, resp *fuse.ReadResponse) error {
	buf := make([]byte, req.Size)
	n, err := h.f.ReadAt(buf, req.Offset)
	if err != nil && n == 0 {
		return toFuseError(err)
	}
	resp.Data = buf[:n]
	return nil
}

func (h *fileHandle) Write(ctx context.Context, req *fuse.WriteRequest, resp *fuse.WriteResponse) error {
	n, err := h.f.WriteAt(req.Data, req.Offset)
	resp.Size = n
	if err != nil {
		return toFuseError(err)
	}
	if h.flush {
		if err := h.f.Sync(); err != nil {
			return toFuseError(err)
		}
	}
	return nil
}

func (h *fileHandle) Flush(ctx context.Context, req *fuse.FlushRequest) error {
	return nil
}

func (h *fileHandle) Fsync(ctx context.Context, req *fuse.FsyncRequest) error {
	return toFuseError(h.f.Sync())
}

func (h *fileHandle) Release(ctx context.Context, req *fuse.ReleaseRequest) error {
	h.mount.RemoveFd(h.f.Fd())
	h.sys.Notify(h.mount)
	return toFuseError(h.f.Close())
}
