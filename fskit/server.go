package fskit

import (
	"context"
	"errors"

	"bazil.org/fuse"
	bazilfs "bazil.org/fuse/fs"
	"github.com/sirupsen/logrus"

	"github.com/afuse-go/afuse/automount"
)

// Server owns the lifetime of one FUSE mount: startup (mount the kernel
// connection, start the auto-unmount scheduler, serve requests) and
// shutdown (unmount, stop the scheduler). Grounded on fuseServer
// (fuse/server.go), generalized from a per-container registry of many fuse
// servers to the single long-lived mount this program manages.
type Server struct {
	mountPoint string
	sys        *automount.System

	conn     *fuse.Conn
	fsServer *bazilfs.Server
}

// New constructs a Server that will mount sys's synthetic root at
// mountPoint once Run is called.
func New(mountPoint string, sys *automount.System) *Server {
	return &Server{mountPoint: mountPoint, sys: sys}
}

// Run mounts the filesystem and serves requests until ctx is cancelled or
// the kernel tears down the mount. It blocks.
func (s *Server) Run(ctx context.Context) error {
	c, err := fuse.Mount(
		s.mountPoint,
		fuse.FSName("afuse"),
		fuse.Subtype("afuse"),
		fuse.AllowOther(),
		fuse.DefaultPermissions(),
	)
	if err != nil {
		return err
	}
	s.conn = c
	defer c.Close()

	if p := c.Protocol(); !p.HasInvalidate() {
		logrus.Warn("kernel FUSE support predates invalidation notifications; dentry caching may be stale")
	}

	s.sys.StartScheduler(ctx)
	defer s.sys.StopScheduler()

	s.fsServer = bazilfs.New(c, nil)
	if s.fsServer == nil {
		return errors.New("fskit: FUSE server could not be created")
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- s.fsServer.Serve(&FS{Sys: s.sys})
	}()

	select {
	case <-ctx.Done():
		fuse.Unmount(s.mountPoint)
		<-serveErr
		return ctx.Err()
	case err := <-serveErr:
		if err != nil {
			return err
		}
	}

	<-c.Ready
	if err := c.MountError; err != nil {
		return err
	}
	return nil
}

// Unmount requests the kernel tear down the mount, which in turn causes
// Run's Serve loop to return.
func (s *Server) Unmount() error {
	return fuse.Unmount(s.mountPoint)
}
