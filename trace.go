package gotrace

import "github.com/golangcuda/gotrace/internal/trace"

// Trace is a tracing JIT context: the variable table, the active root
// set, and the dirty queue, together with the device driver that
// executes the kernels it emits.
type Trace struct {
	t *trace.Trace
}

// Close releases every owned device buffer and shuts down the driver.
// The context is unusable afterwards.
func (tr *Trace) Close() error {
	return tr.t.Close()
}

// RegisterInput publishes an externally-allocated device buffer into
// the trace as an input node holding one external reference. parent,
// when non-zero, is internally referenced for as long as the input
// lives (the buffer points into the parent's storage). If owns is true
// the buffer is released when the node is destroyed.
func (tr *Trace) RegisterInput(vt VarType, count int, p DevicePtr, parent uint32, owns bool) (uint32, error) {
	return tr.t.RegisterInput(vt, count, p, parent, owns)
}

// Append records a new elementwise operation carrying a PTX instruction
// template and up to three operand indices, and returns its index.
// Appending a consumer of a dirty operand forces a full evaluation
// first.
func (tr *Trace) Append(vt VarType, tmpl string, deps ...uint32) (uint32, error) {
	return tr.t.Append(vt, tmpl, deps...)
}

// Printf appends a side-effectful node printing one formatted line per
// lane through the device-side vprintf. At most three arguments.
func (tr *Trace) Printf(format string, args ...uint32) (uint32, error) {
	return tr.t.Printf(format, args...)
}

// MarkSideEffect pins idx in the active set regardless of external
// references; the scheduler releases the pin once the node has been
// compiled into a kernel.
func (tr *Trace) MarkSideEffect(idx uint32) error {
	return tr.t.MarkSideEffect(idx)
}

// MarkDirty flags idx as overwritten by a scatter. Consumers appended
// before the next evaluation force that evaluation first.
func (tr *Trace) MarkDirty(idx uint32) error {
	return tr.t.MarkDirty(idx)
}

// SetEdgeCallback attaches cb to the dependency edge in slot (0..2) of
// idx. The edge owns the callback and releases it when retired.
func (tr *Trace) SetEdgeCallback(idx uint32, slot int, cb EdgeCallback) error {
	return tr.t.SetEdgeCallback(idx, slot, cb)
}

// SetComment attaches a diagnostic comment to idx, emitted into the
// kernel body ahead of the variable's instruction.
func (tr *Trace) SetComment(idx uint32, text string) error {
	return tr.t.SetComment(idx, text)
}

// SetCount overrides the element count of idx.
func (tr *Trace) SetCount(idx uint32, count int) error {
	return tr.t.SetCount(idx, count)
}

// Eval compiles and launches every pending computation: active
// variables are bucketed by element count, each bucket is scheduled,
// emitted as one kernel, and launched; materialized variables have
// their dependency edges collapsed.
func (tr *Trace) Eval() error {
	return tr.t.Eval()
}

// FetchElement copies one element of idx from device to host. offset
// is the element index; len(dst) is the element byte size. Forces an
// evaluation if the variable is unmaterialized or dirty.
func (tr *Trace) FetchElement(idx uint32, offset int, dst []byte) error {
	return tr.t.FetchElement(idx, offset, dst)
}

// IncRefExt increments the external reference count of idx.
func (tr *Trace) IncRefExt(idx uint32) error { return tr.t.IncRefExt(idx) }

// DecRefExt decrements the external reference count of idx, evicting
// it from the active set at zero and destroying it when both counts
// reach zero.
func (tr *Trace) DecRefExt(idx uint32) error { return tr.t.DecRefExt(idx) }

// IncRefInt increments the internal reference count of idx.
func (tr *Trace) IncRefInt(idx uint32) error { return tr.t.IncRefInt(idx) }

// DecRefInt decrements the internal reference count of idx, destroying
// it when both counts reach zero.
func (tr *Trace) DecRefInt(idx uint32) error { return tr.t.DecRefInt(idx) }

// Alloc allocates device memory. Thin wrapper exposed for the
// front-end.
func (tr *Trace) Alloc(nbytes int) (DevicePtr, error) { return tr.t.Alloc(nbytes) }

// Free releases device memory obtained from Alloc.
func (tr *Trace) Free(p DevicePtr) error { return tr.t.Free(p) }

// Upload copies host bytes to a device pointer.
func (tr *Trace) Upload(dst DevicePtr, src []byte) error { return tr.t.Upload(dst, src) }

// Download copies device bytes to a host buffer.
func (tr *Trace) Download(dst []byte, src DevicePtr) error { return tr.t.Download(dst, src) }

// Exists reports whether idx is a live variable.
func (tr *Trace) Exists(idx uint32) bool { return tr.t.Exists(idx) }

// Refs returns the external and internal reference counts of idx.
func (tr *Trace) Refs(idx uint32) (ext, internal int, err error) { return tr.t.Refs(idx) }

// Count returns the element count of idx.
func (tr *Trace) Count(idx uint32) (int, error) { return tr.t.Count(idx) }

// SubtreeSize returns the cached scheduling weight of idx.
func (tr *Trace) SubtreeSize(idx uint32) (int, error) { return tr.t.SubtreeSize(idx) }

// Data returns the device pointer of idx, 0 if not materialized.
func (tr *Trace) Data(idx uint32) (DevicePtr, error) { return tr.t.Data(idx) }

// IsDirty reports whether idx awaits an evaluation after a scatter.
func (tr *Trace) IsDirty(idx uint32) (bool, error) { return tr.t.IsDirty(idx) }

// Dump returns a table of live trace variables for diagnostics.
func (tr *Trace) Dump() string { return tr.t.Dump() }
