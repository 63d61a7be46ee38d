package trace

import (
	"fmt"
	"slices"
	"strings"

	"github.com/golangcuda/gotrace/internal/driver"
	"github.com/golangcuda/gotrace/ptx"
)

// Dump returns a table of live trace variables for diagnostics.
func (t *Trace) Dump() string {
	var b strings.Builder
	b.WriteString("  index  type   e/i refs  count  storage     comment\n")
	b.WriteString("  =================================================\n")
	indices := make([]uint32, 0, len(t.vars))
	for idx := range t.vars {
		if idx >= Reserved {
			indices = append(indices, idx)
		}
	}
	slices.Sort(indices)
	total := 0
	for _, idx := range indices {
		n := t.vars[idx]
		storage := "-"
		if n.data != 0 {
			nbytes := n.count * n.vtype.Size()
			storage = fmt.Sprintf("%d bytes", nbytes)
			if n.owns {
				total += nbytes
			}
		}
		fmt.Fprintf(&b, "  %-6d %-6s %3d/%-3d    %-6d %-11s %s\n",
			idx, n.vtype, n.extRefs, n.intRefs, n.count, storage, n.comment)
	}
	b.WriteString("  =================================================\n")
	fmt.Fprintf(&b, "  owned device memory: %d bytes in %d variables\n", total, len(indices))
	return b.String()
}

// Exists reports whether idx is a live user-visible variable.
func (t *Trace) Exists(idx uint32) bool {
	return idx >= Reserved && t.vars[idx] != nil
}

// Refs returns the external and internal reference counts of idx.
func (t *Trace) Refs(idx uint32) (ext, internal int, err error) {
	n, err := t.get(idx)
	if err != nil {
		return 0, 0, err
	}
	return n.extRefs, n.intRefs, nil
}

// Count returns the element count of idx.
func (t *Trace) Count(idx uint32) (int, error) {
	n, err := t.get(idx)
	if err != nil {
		return 0, err
	}
	return n.count, nil
}

// SubtreeSize returns the cached scheduling weight of idx.
func (t *Trace) SubtreeSize(idx uint32) (int, error) {
	n, err := t.get(idx)
	if err != nil {
		return 0, err
	}
	return n.subtree, nil
}

// TypeOf returns the element type of idx.
func (t *Trace) TypeOf(idx uint32) (ptx.VarType, error) {
	n, err := t.get(idx)
	if err != nil {
		return ptx.Invalid, err
	}
	return n.vtype, nil
}

// Data returns the device pointer of idx, 0 if not materialized.
func (t *Trace) Data(idx uint32) (driver.Ptr, error) {
	n, err := t.get(idx)
	if err != nil {
		return 0, err
	}
	return n.data, nil
}

// IsDirty reports whether idx awaits an evaluation after a scatter.
func (t *Trace) IsDirty(idx uint32) (bool, error) {
	n, err := t.get(idx)
	if err != nil {
		return false, err
	}
	return n.dirty, nil
}

// ActiveLen returns the number of variables in the active set.
func (t *Trace) ActiveLen() int {
	return len(t.active)
}

// DirtyLen returns the number of entries in the dirty queue.
func (t *Trace) DirtyLen() int {
	return len(t.dirty)
}
