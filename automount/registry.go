package automount

// registry is the set of active mounts keyed by rootName, with ordered
// iteration (insertion order) for deterministic root directory listings --
// grounded on FuseServerService.serversMap, generalized to also track
// iteration order for deterministic readdir on root.
type registry struct {
	byName map[string]*Mount
	order  []string
}

func newRegistry() *registry {
	return &registry{byName: make(map[string]*Mount)}
}

// Lookup returns the mount registered under name, if any.
func (r *registry) Lookup(name string) (*Mount, bool) {
	m, ok := r.byName[name]
	return m, ok
}

// Add registers m under its RootName. It panics if the name is already
// registered -- callers must check Lookup first, preserving the invariant
// that rootName is unique across the registry.
func (r *registry) Add(m *Mount) {
	if _, exists := r.byName[m.RootName]; exists {
		panic("automount: duplicate rootName registered: " + m.RootName)
	}
	r.byName[m.RootName] = m
	r.order = append(r.order, m.RootName)
}

// Remove deregisters the mount under name, if present.
func (r *registry) Remove(name string) {
	if _, ok := r.byName[name]; !ok {
		return
	}
	delete(r.byName, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// Mounts returns the currently registered mounts in registration order.
func (r *registry) Mounts() []*Mount {
	out := make([]*Mount, 0, len(r.order))
	for _, n := range r.order {
		out = append(out, r.byName[n])
	}
	return out
}

// Len reports the number of registered mounts.
func (r *registry) Len() int {
	return len(r.byName)
}
