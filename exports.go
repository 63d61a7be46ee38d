package gotrace

import (
	"github.com/golangcuda/gotrace/internal/driver"
	"github.com/golangcuda/gotrace/internal/trace"
	"github.com/golangcuda/gotrace/ptx"
)

// VarType identifies the element type of a trace variable.
type VarType = ptx.VarType

// Element types, re-exported for front-end convenience.
const (
	I8      = ptx.I8
	U8      = ptx.U8
	I16     = ptx.I16
	U16     = ptx.U16
	I32     = ptx.I32
	U32     = ptx.U32
	I64     = ptx.I64
	U64     = ptx.U64
	F16     = ptx.F16
	F32     = ptx.F32
	F64     = ptx.F64
	Bool    = ptx.Bool
	Pointer = ptx.Pointer
)

// Driver is the device backend interface consumed by the tracer.
type Driver = driver.Driver

// DevicePtr is an opaque device pointer. 0 is the null pointer.
type DevicePtr = driver.Ptr

// EdgeCallback is the capability set an external layer (such as an
// autodiff graph) attaches to a dependency edge.
type EdgeCallback = trace.EdgeCallback

// Reserved is the number of reserved pseudo-register slots; variable
// indices start here. Index 0 denotes "no operand".
const Reserved = trace.Reserved

// KernelName is the exported entry point of every emitted kernel.
const KernelName = trace.KernelName

// Error kinds. All are fatal to the operation that produced them; the
// tracer never retries.
var (
	ErrInternal = trace.ErrInternal
	ErrTemplate = trace.ErrTemplate
	ErrShape    = trace.ErrShape
	ErrDriver   = trace.ErrDriver
	ErrNoDriver = driver.ErrNoDriver
)
