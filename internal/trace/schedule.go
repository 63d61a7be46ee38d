package trace

import (
	"slices"

	"github.com/golangcuda/gotrace/internal/graph"
)

// partition buckets the active variable indices by element count. Each
// bucket is compiled and launched as an independent kernel. Bucket
// iteration order follows Go map order and is deliberately unstable
// across runs; it is observable only through side effects.
func (t *Trace) partition() map[int][]uint32 {
	buckets := make(map[int][]uint32)
	for _, idx := range t.active {
		n := t.vars[idx]
		if n == nil {
			continue
		}
		buckets[n.count] = append(buckets[n.count], idx)
	}
	return buckets
}

// scheduleBucket runs the post-order dependency walk for one bucket.
// Visited bookkeeping is shared across seeds so a sub-expression common
// to several outputs is emitted once. A node's dependency slots are
// descended heaviest-subtree first, which biases the schedule toward
// emitting deep sub-expressions early and reduces live-register
// pressure in the kernel; the node's declared operand order is left
// untouched, since $r placeholders resolve against it. Materialized
// variables are leaves, and operands below Reserved refer to preamble
// registers and are skipped.
func (t *Trace) scheduleBucket(seeds []uint32) []uint32 {
	w := graph.NewWalker()
	children := func(idx uint32) []uint32 {
		n := t.vars[idx]
		if n == nil || n.data != 0 {
			return nil
		}
		deps := make([]uint32, 0, 3)
		for _, d := range n.dep {
			if d >= Reserved {
				deps = append(deps, d)
			}
		}
		if len(deps) > 1 {
			slices.SortStableFunc(deps, func(a, b uint32) int {
				return t.subtreeOf(b) - t.subtreeOf(a)
			})
		}
		return deps
	}
	for _, s := range seeds {
		w.Visit(s, children)
	}
	return w.Order()
}

func (t *Trace) subtreeOf(idx uint32) int {
	if n := t.vars[idx]; n != nil {
		return n.subtree
	}
	return 0
}
