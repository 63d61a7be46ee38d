package graph

import (
	"testing"

	"github.com/golangcuda/gotrace/internal/testutil"
)

// deps describes a small DAG as an adjacency map.
func deps(edges map[uint32][]uint32) func(uint32) []uint32 {
	return func(idx uint32) []uint32 { return edges[idx] }
}

func TestPostOrderLinearChain(t *testing.T) {
	w := NewWalker()
	w.Visit(3, deps(map[uint32][]uint32{3: {2}, 2: {1}}))
	testutil.SliceEqual(t, []uint32{1, 2, 3}, w.Order())
}

func TestPostOrderDiamondVisitsSharedNodeOnce(t *testing.T) {
	// 4 depends on 2 and 3; both depend on 1.
	w := NewWalker()
	w.Visit(4, deps(map[uint32][]uint32{4: {2, 3}, 2: {1}, 3: {1}}))
	testutil.SliceEqual(t, []uint32{1, 2, 3, 4}, w.Order())
}

func TestSharedVisitedAcrossSeeds(t *testing.T) {
	edges := map[uint32][]uint32{5: {1}, 6: {1}}
	w := NewWalker()
	w.Visit(5, deps(edges))
	w.Visit(6, deps(edges))
	testutil.SliceEqual(t, []uint32{1, 5, 6}, w.Order())
	testutil.True(t, w.Visited(1))
	testutil.False(t, w.Visited(7))
}

func TestChildOrderControlsDescent(t *testing.T) {
	// The caller decides descent order; the walker follows it.
	w := NewWalker()
	w.Visit(9, deps(map[uint32][]uint32{9: {8, 7}}))
	testutil.SliceEqual(t, []uint32{8, 7, 9}, w.Order())
}

func TestRepeatSeedIsIgnored(t *testing.T) {
	w := NewWalker()
	w.Visit(2, deps(map[uint32][]uint32{2: {1}}))
	w.Visit(2, deps(map[uint32][]uint32{2: {1}}))
	testutil.Len(t, w.Order(), 2)
}
