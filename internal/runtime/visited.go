package runtime

import "sync"

// visitedSet is the run-scoped memo of claimed node ids.
type visitedSet struct {
	m sync.Map
}

// claim marks id as visited and reports whether the caller is the first to do so.
// The check and the insert are a single atomic step, so two branches racing into
// the same merge node cannot both proceed.
func (v *visitedSet) claim(id string) bool {
	_, loaded := v.m.LoadOrStore(id, struct{}{})
	return !loaded
}
