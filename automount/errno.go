package automount

import "syscall"

// OpError wraps a POSIX errno the way fuse/error.go's IOerror wraps one for
// bazil.org/fuse, except automount stays free of any FUSE-library import --
// package fskit adapts OpError to bazil's fuse.ErrorNumber interface at the
// boundary. Op names the dispatcher operation that failed, for logging.
type OpError struct {
	Op    string
	Errno syscall.Errno
}

func (e *OpError) Error() string {
	return e.Op + ": " + e.Errno.Error()
}

func (e *OpError) Unwrap() error { return e.Errno }

func errnoOp(op string, errno syscall.Errno) error {
	return &OpError{Op: op, Errno: errno}
}

// Well-known dispatcher errors returned by the classify/mount/unmount path.
var (
	ErrFiltered    = errnoOp("classify", syscall.ENXIO) // name matched a filter pattern
	ErrMountFailed = errnoOp("mount", syscall.ENXIO)    // mount_template failed / stale remount failed
	ErrNotAtRoot   = errnoOp("op", syscall.ENOENT)      // operation not meaningful at the root
	ErrUnsupported = errnoOp("op", syscall.ENOTSUP)     // mutation of the synthetic layer
	ErrNotMounted  = errnoOp("op", syscall.EACCES)      // access into a not-yet-mounted subdir
	ErrBusy        = errnoOp("rmdir", syscall.EBUSY)    // rmdir of a mount with open handles
)

// errnoFromErr maps an arbitrary error from an underlying syscall into an
// *OpError, passing syscall.Errno values through verbatim.
func errnoFromErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errno, ok := underlyingErrno(err); ok {
		return errnoOp(op, errno)
	}
	return errnoOp(op, syscall.EIO)
}

func underlyingErrno(err error) (syscall.Errno, bool) {
	switch e := err.(type) {
	case syscall.Errno:
		return e, true
	case interface{ Unwrap() error }:
		return underlyingErrno(e.Unwrap())
	default:
		return 0, false
	}
}
