package automount

import "golang.org/x/sys/unix"

// isStale reports whether m's mount point is still backed by the synthetic
// root's own filesystem -- i.e. no real mount landed there, or one did and
// has since vanished. Grounded on check_mount(): lstat the mount point and
// compare st_dev against the device id captured for syntheticRoot at
// startup. Equal device ids mean the directory is still part of the
// synthetic root's filesystem. An lstat that fails with ENOENT counts as
// stale rather than as an error, so a mount point removed out from under
// the process is recovered via the normal unmount+remount path instead of
// surfacing as an opaque failure; any other lstat error is returned.
func (s *System) isStale(m *Mount) (bool, error) {
	var st unix.Stat_t
	if err := unix.Lstat(m.MountPoint, &st); err != nil {
		if err == unix.ENOENT {
			return true, nil
		}
		return false, err
	}
	return uint64(st.Dev) == s.syntheticRootDev, nil
}
