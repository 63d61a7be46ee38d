// Package trace implements the tracing JIT compiler: an append-only
// expression graph of elementwise GPU operations, compiled on demand
// into PTX kernels and launched through a device driver.
//
// # Evaluation pipeline
//
// Eval executes the following phases in order:
//
//  1. Partition: bucket active nodes by element count
//  2. Schedule: weighted post-order dependency walk per bucket
//  3. Emit: expand instruction templates into one kernel per bucket
//  4. Launch: hand the kernel to the driver and run it
//  5. Collapse: release the internal edges of materialized nodes
//
// The trace is a single-threaded structure; concurrent mutation by
// multiple goroutines is not supported.
package trace

import (
	"log/slog"

	"github.com/golangcuda/gotrace/internal/driver"
	"github.com/golangcuda/gotrace/internal/types"
	"github.com/golangcuda/gotrace/ptx"
)

// Reserved is the number of reserved pseudo-register slots at the start
// of the index space. Index 0 means "no operand"; indices 1..Reserved-1
// name fixed roles in the kernel preamble (argument pointer, element
// count, lane index, stride, thread and block identifiers, address
// scratch) and are never handed out as variable indices.
const Reserved = 10

// Fixed roles of the reserved registers in every emitted kernel.
const (
	regArgPtr = 0 // %rd0: argument pointer table (global address)
	regCount  = 1 // %r1: element count
	regLane   = 2 // %r2: lane index
	regStride = 3 // %r3: grid stride
	regTid    = 4 // %r4..%r7: thread/block identifiers
	regAddrLo = 8 // %rd8, %rd9: address scratch
)

// Config carries construction parameters for a Trace.
type Config struct {
	// Logger for debug/trace output; nil disables logging.
	Logger *slog.Logger

	// Driver executes kernels and owns device memory. Required.
	Driver driver.Driver

	// GridDim and BlockDim set the launch geometry. Zero selects the
	// defaults (32 blocks of 128 threads).
	GridDim  int
	BlockDim int

	// KernelHook, if set, observes every emitted kernel before launch.
	KernelHook func(ptxSrc []byte)
}

// Trace is the process-wide tracing context: the variable table, the
// active root set, and the dirty queue.
type Trace struct {
	types.Logger

	drv  driver.Driver
	grid int
	blk  int
	hook func([]byte)

	vars   map[uint32]*node
	next   uint32   // next index to hand out
	active []uint32 // insertion-ordered roots for the next evaluation
	dirty  []uint32 // scatter targets awaiting the next evaluation
}

// New creates a Trace and installs the reserved slots.
func New(cfg Config) (*Trace, error) {
	if cfg.Driver == nil {
		return nil, errNoDriver()
	}
	grid, blk := cfg.GridDim, cfg.BlockDim
	if grid <= 0 {
		grid = 32
	}
	if blk <= 0 {
		blk = 128
	}
	t := &Trace{
		Logger: types.Logger{L: cfg.Logger},
		drv:    cfg.Driver,
		grid:   grid,
		blk:    blk,
		hook:   cfg.KernelHook,
		vars:   make(map[uint32]*node),
		next:   Reserved,
	}
	for i := uint32(0); i < Reserved; i++ {
		t.vars[i] = &node{vtype: ptx.Invalid}
	}
	return t, nil
}

// Close releases every owned device buffer and shuts down the driver.
// The trace is unusable afterwards.
func (t *Trace) Close() error {
	for i, n := range t.vars {
		if i < Reserved {
			continue
		}
		releaseCallbacks(n)
		if n.owns && n.data != 0 {
			_ = t.drv.MemFree(n.data)
			n.data = 0
		}
	}
	t.vars = nil
	t.active = nil
	t.dirty = nil
	return t.drv.Close()
}

// get returns the node at idx, which must be a user-visible index.
func (t *Trace) get(idx uint32) (*node, error) {
	if idx < Reserved {
		return nil, errInternalf("index %d is reserved", idx)
	}
	n := t.vars[idx]
	if n == nil {
		return nil, errInternalf("unknown variable %d", idx)
	}
	return n, nil
}

// activeRemove drops idx from the active list if present.
func (t *Trace) activeRemove(idx uint32) {
	for i, a := range t.active {
		if a == idx {
			t.active = append(t.active[:i], t.active[i+1:]...)
			return
		}
	}
}

func releaseCallbacks(n *node) {
	for s := range n.cb {
		if n.cb[s] != nil {
			n.cb[s].Release()
			n.cb[s] = nil
		}
	}
}
