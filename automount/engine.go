package automount

import (
	"context"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

// doMount brings rootName's backing directory into existence and invokes
// the mount command template against it. Grounded on do_mount(): create the
// subdir (tolerating EEXIST), run the template, and on failure remove the
// subdir and report ENXIO. Directory creation/removal goes through s.dirs
// (an afero.Fs) rather than the os package directly, so tests can swap in
// an in-memory filesystem without touching the real disk.
// Callers must hold s.mu.
func (s *System) doMount(ctx context.Context, rootName string) (*Mount, error) {
	mountPoint := filepath.Join(s.syntheticRoot, rootName)

	if err := s.dirs.Mkdir(mountPoint, 0700); err != nil && !os.IsExist(err) {
		return nil, errnoFromErr("mount", err)
	}

	vars := templateVars{rootName: rootName, mountPoint: mountPoint}
	if err := runTemplate(ctx, s.opts.MountTemplate, vars); err != nil {
		logrus.Warnf("automount: mount_template failed for %q: %v", rootName, err)
		s.dirs.Remove(mountPoint)
		return nil, ErrMountFailed
	}

	m := newMount(rootName, mountPoint)
	s.registry.Add(m)
	s.notifyLocked(m)

	return m, nil
}

// doUmount invokes the unmount command template and tears down the
// registry entry regardless of whether that command succeeded, to avoid
// leaving a zombie registry entry behind a failed unmount command.
// Callers must hold s.mu.
func (s *System) doUmount(ctx context.Context, m *Mount) {
	vars := templateVars{rootName: m.RootName, mountPoint: m.MountPoint}
	if err := runTemplate(ctx, s.opts.UnmountTemplate, vars); err != nil {
		logrus.Warnf("automount: unmount_template failed for %q: %v", m.RootName, err)
	}

	if err := s.dirs.Remove(m.MountPoint); err != nil && !os.IsNotExist(err) {
		logrus.Warnf("automount: failed to remove mount point %q: %v", m.MountPoint, err)
	}

	if m.linked() {
		s.heap.remove(m)
		m.unmountDeadline = unmountNever
	}
	s.registry.Remove(m.RootName)
}
