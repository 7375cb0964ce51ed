package automount

import (
	"context"
	"os/exec"
	"strings"

	"github.com/sirupsen/logrus"
)

// mountNamesReapingStale returns the registered mount names, unmounting (and
// dropping from the result) any mount whose backing directory has gone
// stale -- readdir on the synthetic root purges stale mounts as it
// encounters them.
func (s *System) mountNamesReapingStale(ctx context.Context) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var names []string
	for _, m := range s.registry.Mounts() {
		stale, err := s.isStale(m)
		if err != nil {
			logrus.Warnf("automount: lstat of mount point %q failed during readdir: %v", m.MountPoint, err)
			continue
		}
		if stale {
			s.doUmount(ctx, m)
			continue
		}
		names = append(names, m.RootName)
	}
	return names
}

// populateRootNames runs the configured populate_root_command (no template
// substitution -- it names a fixed admin-configured command, not one built
// from attacker-controlled path segments) and returns one name per non-empty
// stdout line.
func (s *System) populateRootNames(ctx context.Context) ([]string, error) {
	if s.opts.PopulateRootCommand == "" {
		return nil, nil
	}
	argv, err := tokenizeTemplate(s.opts.PopulateRootCommand)
	if err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	out, err := cmd.Output()
	if err != nil {
		return nil, err
	}

	var names []string
	for _, line := range strings.Split(string(out), "\n") {
		if line == "" {
			continue
		}
		names = append(names, line)
	}
	return names, nil
}

// RootEntries computes the set of names to list in the synthetic root
// directory: registered mounts (after reaping any that went stale) merged
// with whatever populate_root_command prints, deduplicated.
func (s *System) RootEntries(ctx context.Context) []string {
	names := newSortedNameList()
	for _, n := range s.mountNamesReapingStale(ctx) {
		names.InsertIfUnique(n)
	}

	extra, err := s.populateRootNames(ctx)
	if err != nil {
		logrus.Warnf("automount: populate_root_command failed: %v", err)
	}
	for _, n := range extra {
		names.InsertIfUnique(n)
	}

	return names.Names()
}

// RmdirMount implements rmdir-as-unmount-trigger: rmdir of a root subdir
// unmounts it if idle, refuses with EBUSY if it still has open handles, and
// refuses with ENOTSUP if the name was never mounted.
func (s *System) RmdirMount(ctx context.Context, rootName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.registry.Lookup(rootName)
	if !ok {
		return ErrUnsupported
	}
	if !m.Idle() {
		return ErrBusy
	}
	s.doUmount(ctx, m)
	return nil
}
