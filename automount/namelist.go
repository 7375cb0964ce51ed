package automount

// sortedNameList is a unique-insert ordered set used while materializing a
// root directory listing: the registry's own mount names plus whatever
// populate_root_command prints are merged into it so duplicates collapse to
// one entry. It is built fresh for a single readdir call and discarded
// afterwards -- grounded on string_sorted_list.c, generalized from a
// singly-linked insertion-sorted list to a Go map-backed set plus an order
// slice.
type sortedNameList struct {
	seen  map[string]struct{}
	order []string
}

func newSortedNameList() *sortedNameList {
	return &sortedNameList{seen: make(map[string]struct{})}
}

// InsertIfUnique inserts name if not already present. It reports true if the
// name was newly inserted, false if it was already present.
func (l *sortedNameList) InsertIfUnique(name string) bool {
	if _, ok := l.seen[name]; ok {
		return false
	}
	l.seen[name] = struct{}{}
	l.order = append(l.order, name)
	return true
}

// Names returns the entries in insertion order.
func (l *sortedNameList) Names() []string {
	return l.order
}
