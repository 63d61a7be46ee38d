package trace

import (
	"log/slog"

	"github.com/golangcuda/gotrace/internal/driver"
	"github.com/golangcuda/gotrace/ptx"
)

// RegisterInput publishes an externally-allocated device buffer into
// the trace as an input node. The node carries no instruction, holds an
// initial external reference, and internally references parent when
// parent is non-zero (the buffer points into the parent's storage). If
// owns is true the buffer is released when the node is destroyed.
func (t *Trace) RegisterInput(vt ptx.VarType, count int, p driver.Ptr, parent uint32, owns bool) (uint32, error) {
	if !vt.Valid() {
		return 0, errInternalf("cannot register input of type %s", vt)
	}
	if count < 1 {
		return 0, errInternalf("cannot register input with count %d", count)
	}
	if p == 0 {
		return 0, errInternalf("cannot register input with null pointer")
	}
	n := &node{
		vtype:   vt,
		count:   count,
		data:    p,
		owns:    owns,
		extRefs: 1,
		subtree: 1,
	}
	if parent != 0 {
		n.dep[0] = parent
		if err := t.IncRefInt(parent); err != nil {
			return 0, err
		}
	}
	idx := t.next
	t.next++
	t.vars[idx] = n
	t.active = append(t.active, idx)
	t.Trace("registered input",
		slog.Int("index", int(idx)),
		slog.String("type", vt.String()),
		slog.Int("count", count))
	return idx, nil
}

// SetComment attaches a diagnostic comment to idx; it is emitted into
// the kernel body ahead of the variable's instruction.
func (t *Trace) SetComment(idx uint32, text string) error {
	n, err := t.get(idx)
	if err != nil {
		return err
	}
	n.comment = text
	return nil
}

// SetCount overrides the element count of idx. Used by front-end
// operations whose result size is not derivable from their operands
// (arange, linspace).
func (t *Trace) SetCount(idx uint32, count int) error {
	if count < 1 {
		return errInternalf("cannot set count %d on variable %d", count, idx)
	}
	n, err := t.get(idx)
	if err != nil {
		return err
	}
	n.count = count
	return nil
}

// FetchElement copies one element of idx from device to host. offset is
// the element index; len(dst) is the element byte size. If the variable
// has no device buffer yet, or is dirty from a pending scatter, a full
// evaluation runs first. After this call the variable is clean.
func (t *Trace) FetchElement(idx uint32, offset int, dst []byte) error {
	n, err := t.get(idx)
	if err != nil {
		return err
	}
	if n.data == 0 || n.dirty {
		if err := t.Eval(); err != nil {
			return err
		}
		if n, err = t.get(idx); err != nil {
			return err
		}
	}
	if n.data == 0 {
		return errInternalf("variable %d was not materialized by evaluation", idx)
	}
	if len(dst) == 0 {
		return nil
	}
	if (offset+1)*len(dst) > n.count*n.vtype.Size() {
		return errInternalf("element %d of variable %d is out of range", offset, idx)
	}
	src := n.data + driver.Ptr(offset*len(dst))
	if err := t.drv.MemcpyDtoH(dst, src); err != nil {
		return errDriver("copy", err)
	}
	return nil
}

// Alloc allocates device memory through the driver. Thin wrapper
// exposed for the front-end.
func (t *Trace) Alloc(nbytes int) (driver.Ptr, error) {
	p, err := t.drv.MemAlloc(nbytes)
	if err != nil {
		return 0, errDriver("alloc", err)
	}
	return p, nil
}

// Free releases device memory obtained from Alloc.
func (t *Trace) Free(p driver.Ptr) error {
	if err := t.drv.MemFree(p); err != nil {
		return errDriver("free", err)
	}
	return nil
}

// Upload copies host bytes to a device pointer.
func (t *Trace) Upload(dst driver.Ptr, src []byte) error {
	if err := t.drv.MemcpyHtoD(dst, src); err != nil {
		return errDriver("copy", err)
	}
	return nil
}

// Download copies device bytes to a host buffer.
func (t *Trace) Download(dst []byte, src driver.Ptr) error {
	if err := t.drv.MemcpyDtoH(dst, src); err != nil {
		return errDriver("copy", err)
	}
	return nil
}
