// Package config parses the afuse `-o key=value,...` mount option string
// into an automount.Options, the way fuse_opt_parse/afuse_opt_proc does in
// afuse.c, generalized from a single fixed option struct pre-populated by
// libfuse's option table to an explicit split-then-assign pass over a
// comma-joined option string.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/afuse-go/afuse/automount"
)

// knownKeys lists every recognized -o suboption, used to reject typos with
// a specific error instead of silently ignoring them.
var knownKeys = map[string]bool{
	"mount_template":        true,
	"unmount_template":      true,
	"populate_root_command": true,
	"filter_file":           true,
	"timeout":               true,
	"flushwrites":           true,
	"exact_getattr":         true,
}

// ParseOptions splits a comma-separated `-o` option string (e.g.
// "mount_template=sshfs %r: %m,timeout=60,flushwrites") into an
// automount.Options. A bare key with no '=' is treated as a boolean flag,
// matching flushwrites and exact_getattr in afuse_opts.
//
// Splitting on ',' is naive with respect to values that themselves contain
// a comma (e.g. a mount_template invoking a command with a comma-separated
// argument); afuse.c has the same limitation since libfuse's fuse_opt_parse
// splits the same way.
func ParseOptions(optString string) (automount.Options, error) {
	var opts automount.Options

	for _, field := range strings.Split(optString, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}

		key, value, hasValue := strings.Cut(field, "=")
		key = strings.TrimSpace(key)
		if !knownKeys[key] {
			return automount.Options{}, fmt.Errorf("config: unknown mount option %q", key)
		}

		switch key {
		case "mount_template":
			if !hasValue {
				return automount.Options{}, fmt.Errorf("config: %s requires a value", key)
			}
			opts.MountTemplate = value
		case "unmount_template":
			if !hasValue {
				return automount.Options{}, fmt.Errorf("config: %s requires a value", key)
			}
			opts.UnmountTemplate = value
		case "populate_root_command":
			if !hasValue {
				return automount.Options{}, fmt.Errorf("config: %s requires a value", key)
			}
			opts.PopulateRootCommand = value
		case "filter_file":
			if !hasValue {
				return automount.Options{}, fmt.Errorf("config: %s requires a value", key)
			}
			opts.FilterFile = value
		case "timeout":
			if !hasValue {
				return automount.Options{}, fmt.Errorf("config: %s requires a value", key)
			}
			seconds, err := strconv.ParseUint(value, 10, 64)
			if err != nil {
				return automount.Options{}, fmt.Errorf("config: invalid timeout %q: %w", value, err)
			}
			opts.Timeout = time.Duration(seconds) * time.Second
		case "flushwrites":
			opts.FlushWrites = true
		case "exact_getattr":
			opts.ExactGetattr = true
		}
	}

	if opts.MountTemplate == "" || opts.UnmountTemplate == "" {
		return automount.Options{}, fmt.Errorf("config: mount_template and unmount_template are required")
	}

	return opts, nil
}
