// Copyright 2019-2020 Nestybox, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package automount implements the mount-lifecycle core of an on-demand
// automounter: path classification, the mount/unmount engine, per-mount
// handle tracking, and the inactivity-driven auto-unmount scheduler. It has
// no dependency on any particular FUSE binding -- package fskit adapts it to
// bazil.org/fuse's node-tree API.
package automount

import (
	"os"
	"sync"
	"time"

	"github.com/spf13/afero"
	"golang.org/x/sys/unix"
)

// Options mirrors the afuse `-o` option channel: mount and unmount command
// templates, an optional root-populating command, an optional filter file,
// the auto-unmount idle timeout, and the two boolean flags (flushwrites,
// exact_getattr).
type Options struct {
	MountTemplate       string
	UnmountTemplate     string
	PopulateRootCommand string
	FilterFile          string
	Timeout             time.Duration // zero disables auto-unmount
	FlushWrites         bool
	ExactGetattr        bool
}

// System bundles the process-scoped global mutable state into a single
// context value passed to every dispatcher operation: the registry, the
// pairing heap and its cached next-fire deadline, the filter set, and the
// synthetic root's identity. One System exists per mounted filesystem
// instance; fskit holds one and forwards every bazil.org/fuse callback
// into it.
//
// Generalized from the original's signal-masked critical sections (SIGALRM
// block/unblock around any registry/heap mutation) to a single mutex
// covering {registry, heap, nextTimerFire}, since Go has explicit
// goroutines instead of a signal-driven timer callback.
type System struct {
	mu sync.Mutex

	opts    Options
	filters *filterSet

	registry *registry
	heap     pairingHeap

	nextTimerFire int64 // microseconds; sentinel unmountNever means disarmed
	timer         *time.Timer
	timerStop     chan struct{}

	syntheticRoot    string
	syntheticRootDev uint64

	dirs afero.Fs // mount-point directory create/remove; afero.NewOsFs() in production
}

// NewSystem constructs a System rooted at syntheticRoot, whose device id is
// captured immediately for later use by the stale-mount detector.
func NewSystem(syntheticRoot string, opts Options) (*System, error) {
	return newSystemWithFs(syntheticRoot, opts, afero.NewOsFs())
}

// newSystemWithFs is NewSystem with an injectable afero.Fs for the
// mount-point directory bookkeeping, so tests can exercise doMount/doUmount
// against an in-memory filesystem instead of the real disk.
func newSystemWithFs(syntheticRoot string, opts Options, dirs afero.Fs) (*System, error) {
	var st unix.Stat_t
	if err := unix.Stat(syntheticRoot, &st); err != nil {
		return nil, err
	}

	s := &System{
		opts:             opts,
		filters:          newFilterSet(),
		registry:         newRegistry(),
		syntheticRoot:    syntheticRoot,
		syntheticRootDev: uint64(st.Dev),
		nextTimerFire:    unmountNever,
		dirs:             dirs,
	}

	if opts.FilterFile != "" {
		f, err := os.Open(opts.FilterFile)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		if err := loadFilterFile(s.filters, f); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// SyntheticRoot returns the absolute path of the temporary directory backing
// the FUSE mount.
func (s *System) SyntheticRoot() string {
	return s.syntheticRoot
}

// AutoUnmountEnabled reports whether a positive timeout was configured.
func (s *System) AutoUnmountEnabled() bool {
	return s.opts.Timeout > 0
}

// ExactGetattr reports whether getattr on an unmounted root subdir should
// attempt a mount before synthesizing (at the cost of one mount attempt per
// stat).
func (s *System) ExactGetattr() bool {
	return s.opts.ExactGetattr
}

// FlushWrites reports whether every write should be followed by an fsync.
func (s *System) FlushWrites() bool {
	return s.opts.FlushWrites
}

// Mounts returns the currently registered mounts in registration order.
func (s *System) Mounts() []*Mount {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registry.Mounts()
}

func nowMicro() int64 {
	return time.Now().UnixMicro()
}
