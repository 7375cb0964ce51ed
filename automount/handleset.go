package automount

// handleSet tracks a mount's live file or directory handles. The original
// fd_list/dir_list used intrusive doubly-linked lists for O(1) removal by
// pointer; a hash set keyed by the descriptor integer gives the same O(1)
// removal without the intrusive plumbing, so that's what we use here.
type handleSet struct {
	members map[uintptr]struct{}
}

func newHandleSet() *handleSet {
	return &handleSet{members: make(map[uintptr]struct{})}
}

// Add inserts h into the set. Adding an already-present handle is a no-op.
func (s *handleSet) Add(h uintptr) {
	s.members[h] = struct{}{}
}

// Remove deletes h from the set if present.
func (s *handleSet) Remove(h uintptr) {
	delete(s.members, h)
}

// Empty reports whether the set has no members.
func (s *handleSet) Empty() bool {
	return len(s.members) == 0
}

// Len returns the number of live handles.
func (s *handleSet) Len() int {
	return len(s.members)
}
