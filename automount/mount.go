//
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
//

// Package automount implements the on-demand mount-lifecycle core: path
// routing, the mount/unmount engine, per-mount handle tracking and the
// inactivity-driven auto-unmount scheduler. It has no knowledge of the FUSE
// kernel bridge; package fskit wires it to bazil.org/fuse.
package automount

import "math"

// unmountNever is the sentinel unmountDeadline meaning "not eligible for
// auto-unmount" -- equivalent to any open handle pinning the mount.
const unmountNever = int64(math.MaxInt64)

// Mount is one logical entry for a currently-mounted child. A Mount is
// created by MountEngine.doMount after the external mount program exits
// zero, and destroyed by doUmount after the external unmount program runs
// (destruction proceeds even if that program reports failure).
type Mount struct {
	// RootName is the first virtual path component. Non-empty, contains no
	// "/". Unique across the registry.
	RootName string

	// MountPoint is the absolute path of the real directory in the
	// synthetic root onto which the external mount program mounted.
	MountPoint string

	fds  *handleSet
	dirs *handleSet

	// unmountDeadline is a microsecond wall-clock timestamp. unmountNever
	// iff any handle is open.
	unmountDeadline int64

	// heapNode is linked into the pairing heap iff unmountDeadline !=
	// unmountNever.
	heapNode pairingHeapNode
}

func newMount(rootName, mountPoint string) *Mount {
	return &Mount{
		RootName:        rootName,
		MountPoint:      mountPoint,
		fds:             newHandleSet(),
		dirs:            newHandleSet(),
		unmountDeadline: unmountNever,
	}
}

// Idle reports whether the mount has no open file or directory handles, and
// is therefore eligible for auto-unmount.
func (m *Mount) Idle() bool {
	return m.fds.Empty() && m.dirs.Empty()
}

// AddFd registers an open file descriptor against this mount.
func (m *Mount) AddFd(fd uintptr) { m.fds.Add(fd) }

// RemoveFd deregisters a file descriptor previously added with AddFd.
func (m *Mount) RemoveFd(fd uintptr) { m.fds.Remove(fd) }

// AddDir registers an open directory handle against this mount.
func (m *Mount) AddDir(h uintptr) { m.dirs.Add(h) }

// RemoveDir deregisters a directory handle previously added with AddDir.
func (m *Mount) RemoveDir(h uintptr) { m.dirs.Remove(h) }

// linked reports whether the mount currently has a node in the pairing heap.
func (m *Mount) linked() bool {
	return m.unmountDeadline != unmountNever
}
