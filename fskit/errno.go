package fskit

import (
	"syscall"

	"bazil.org/fuse"
)

// errnoWrap satisfies bazil.org/fuse's fuse.ErrorNumber interface, the way
// fuse/error.go's IOerror does for its own FUSE binding -- without it, every
// error returned from a node method would come back to the kernel as a bare
// EIO.
type errnoWrap struct {
	errno syscall.Errno
}

func (e errnoWrap) Error() string     { return e.errno.Error() }
func (e errnoWrap) Errno() fuse.Errno { return fuse.Errno(e.errno) }

// toFuseError maps any error from the automount package (or a raw syscall
// error bubbling up from a forwarded os/syscall call) to a value bazil.org/fuse
// knows how to turn into a FUSE protocol error code.
func toFuseError(err error) error {
	if err == nil {
		return nil
	}
	if errno, ok := underlyingErrno(err); ok {
		return errnoWrap{errno: errno}
	}
	return errnoWrap{errno: syscall.EIO}
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
