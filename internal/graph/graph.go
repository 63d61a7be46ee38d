// Package graph provides dependency ordering for trace scheduling.
package graph

// Walker performs post-order depth-first traversals over a DAG of
// uint32-indexed nodes. Visited bookkeeping is shared across seeds so
// that a node reachable from several roots appears in the order exactly
// once.
type Walker struct {
	visited map[uint32]bool
	order   []uint32
}

// NewWalker creates an empty walker.
func NewWalker() *Walker {
	return &Walker{visited: make(map[uint32]bool)}
}

// Visit traverses the DAG rooted at seed. children supplies the
// dependency indices of a node in the order they should be descended;
// returning nil makes the node a leaf. Dependencies are appended to the
// order before the nodes that consume them.
func (w *Walker) Visit(seed uint32, children func(uint32) []uint32) {
	if w.visited[seed] {
		return
	}
	w.visited[seed] = true
	for _, dep := range children(seed) {
		w.Visit(dep, children)
	}
	w.order = append(w.order, seed)
}

// Order returns the accumulated post-order. The slice is owned by the
// walker; callers must not retain it across further Visit calls.
func (w *Walker) Order() []uint32 {
	return w.order
}

// Visited reports whether idx has been reached by any Visit so far.
func (w *Walker) Visited(idx uint32) bool {
	return w.visited[idx]
}
