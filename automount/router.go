package automount

import (
	"context"
	"strings"
)

// Kind is the classification a virtual path resolves to.
type Kind int

const (
	// Root is the synthetic root directory itself.
	Root Kind = iota
	// RootSubdir is a direct child of the root, mounted or not;
	// Classification.Mount tells which. A mount attempt that fails is
	// reported as an error rather than as an unmounted RootSubdir.
	RootSubdir
	// Proxy is any path with more than one component; always forwarded to
	// an active mount.
	Proxy
)

func (k Kind) String() string {
	switch k {
	case Root:
		return "Root"
	case RootSubdir:
		return "RootSubdir"
	case Proxy:
		return "Proxy"
	default:
		return "Unknown"
	}
}

// Classification is the result of routing a virtual path.
type Classification struct {
	Kind          Kind
	ForwardedPath string // meaningful only for Proxy and mounted RootSubdir
	Mount         *Mount // nil unless a mount backs this path
}

// extractFirstComponent splits a virtual path of the form "/a/b/..." into
// its first component and whether further components follow. Grounded on
// extract_root_name()/process_path()'s path parsing.
func extractFirstComponent(path string) (name string, hasChildSegments bool) {
	trimmed := strings.TrimPrefix(path, "/")
	if trimmed == "" {
		return "", false
	}
	if idx := strings.IndexByte(trimmed, '/'); idx >= 0 {
		return trimmed[:idx], idx < len(trimmed)-1
	}
	return trimmed, false
}

// Classify routes path relative to the synthetic root. attemptMount controls
// whether an absent mount is created on the spot: data operations pass
// true, metadata-only operations (e.g. getattr) pass false so that a plain
// directory listing doesn't mount every child.
//
// A present mount is checked for staleness on every call and transparently
// remounted once if stale, mirroring the check_mount()-then-remount flow in
// process_path().
func (s *System) Classify(ctx context.Context, path string, attemptMount bool) (Classification, error) {
	name, hasChildSegments := extractFirstComponent(path)

	if name == "" {
		return Classification{Kind: Root}, nil
	}
	if s.filters.Filtered(name) {
		return Classification{}, ErrFiltered
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.registry.Lookup(name)
	if !ok && (hasChildSegments || attemptMount) {
		mounted, err := s.doMount(ctx, name)
		if err != nil {
			return Classification{}, err
		}
		m = mounted
		ok = true
	}

	if ok {
		stale, err := s.isStale(m)
		if err != nil {
			return Classification{}, errnoFromErr("classify", err)
		}
		if stale {
			s.doUmount(ctx, m)
			remounted, err := s.doMount(ctx, name)
			if err != nil {
				return Classification{}, ErrMountFailed
			}
			m = remounted
		}
	}

	var mountForResult *Mount
	if ok {
		mountForResult = m
	}

	kind := RootSubdir
	if hasChildSegments {
		kind = Proxy
	}

	result := Classification{
		Kind:  kind,
		Mount: mountForResult,
	}
	if mountForResult != nil {
		result.ForwardedPath = s.syntheticRoot + "/" + strings.TrimPrefix(path, "/")
	}
	return result, nil
}
