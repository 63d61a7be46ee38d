package trace

import (
	"github.com/golangcuda/gotrace/internal/driver"
	"github.com/golangcuda/gotrace/ptx"
)

// EdgeCallback is the capability set an external layer (such as an
// autodiff graph) attaches to a dependency edge. OnForward fires when
// the edge's consumer is emitted into a kernel. OnBackward is never
// invoked by the tracer itself; it exists for the owning layer to drive
// reverse traversals through the same object. Release fires exactly
// once, when the edge is retired (collapsed after materialization or
// torn down with its node).
type EdgeCallback interface {
	OnForward()
	OnBackward()
	Release()
}

// node is one record in the append-only expression graph.
type node struct {
	vtype ptx.VarType
	tmpl  string    // PTX instruction template; empty for input nodes
	dep   [3]uint32 // operand indices, 0 = unused slot
	cb    [3]EdgeCallback

	count int        // lanes; 1 is a broadcast scalar
	data  driver.Ptr // device buffer; 0 until materialized
	owns  bool       // release data on destruction

	extRefs int
	intRefs int

	sideEffect bool // must be scheduled even without external references
	dirty      bool // overwritten by a scatter; consumers must wait for Eval

	subtree int    // cached height heuristic for schedule tie-breaks
	comment string // optional diagnostic text, emitted as a kernel comment

	reg int // schedule-assigned register index; valid only during Eval
}

// collected reports whether both refcounts have reached zero.
func (n *node) collected() bool {
	return n.extRefs == 0 && n.intRefs == 0
}
