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

package fskit

import (
	"os"
	"syscall"
	"time"

	"bazil.org/fuse"
)

// statToAttr translates an os.FileInfo backed by a real lstat() into a
// fuse.Attr, the way convertFileInfoToFuse() does in fuse/file.go.
func statToAttr(info os.FileInfo) fuse.Attr {
	var a fuse.Attr
	a.Size = uint64(info.Size())

	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		a.Mode = info.Mode()
		a.Mtime = info.ModTime()
		a.Nlink = 1
		a.BlockSize = 4096
		return a
	}

	a.Inode = stat.Ino
	a.Blocks = uint64(stat.Blocks)
	a.Atime = time.Unix(stat.Atim.Sec, stat.Atim.Nsec)
	a.Mtime = time.Unix(stat.Mtim.Sec, stat.Mtim.Nsec)
	a.Ctime = time.Unix(stat.Ctim.Sec, stat.Ctim.Nsec)
	a.Mode = info.Mode()
	a.Nlink = uint32(stat.Nlink)
	a.Uid = stat.Uid
	a.Gid = stat.Gid
	a.Rdev = uint32(stat.Rdev)
	a.BlockSize = uint32(stat.Blksize)

	return a
}
