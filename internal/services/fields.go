package services

import "sort"

// fieldSet tracks which columns of an entity changed during a unit of work,
// so saves and publish events cover exactly the changed fields.
type fieldSet map[string]struct{}

func (f fieldSet) add(names ...string) {
	for _, name := range names {
		f[name] = struct{}{}
	}
}

func (f fieldSet) has(name string) bool {
	_, ok := f[name]
	return ok
}

// list returns the field names sorted for deterministic SQL and events
func (f fieldSet) list() []string {
	if len(f) == 0 {
		return nil
	}
	names := make([]string, 0, len(f))
	for name := range f {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
