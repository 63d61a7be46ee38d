// Package ptx maps trace element types onto PTX register classes and
// memory encodings.
//
// The mapping is a pure, total table: every [VarType] resolves to a
// byte size, a type token (used in load/store and arithmetic suffixes),
// a binary-type token (used in untyped moves and register-file
// declarations), and a register-name prefix. There is no state.
package ptx

import "fmt"

// VarType identifies the element type of a trace variable.
type VarType int

const (
	I8 VarType = iota
	U8
	I16
	U16
	I32
	U32
	I64
	U64
	F16
	F32
	F64
	Bool
	// Pointer shares the encoding of U64.
	Pointer
	// Invalid marks placeholder nodes; its tokens are sentinels.
	Invalid
)

func (t VarType) String() string {
	switch t {
	case I8:
		return "i8"
	case U8:
		return "u8"
	case I16:
		return "i16"
	case U16:
		return "u16"
	case I32:
		return "i32"
	case U32:
		return "u32"
	case I64:
		return "i64"
	case U64:
		return "u64"
	case F16:
		return "f16"
	case F32:
		return "f32"
	case F64:
		return "f64"
	case Bool:
		return "bool"
	case Pointer:
		return "ptr"
	case Invalid:
		return "invalid"
	default:
		return fmt.Sprintf("VarType(%d)", int(t))
	}
}

// info is one row of the registry: byte size, PTX type token, PTX
// binary-type token, and register-name prefix.
type info struct {
	size   int
	name   string
	bin    string
	prefix string
}

// registry is indexed by VarType. Bool computes in the predicate
// register class but moves through memory as u8 (converted with
// setp/selp at load/store). Invalid carries sentinel tokens so that a
// placeholder leaking into emission is visible in the kernel text.
var registry = [...]info{
	I8:      {1, "s8", "b8", "%b"},
	U8:      {1, "u8", "b8", "%b"},
	I16:     {2, "s16", "b16", "%w"},
	U16:     {2, "u16", "b16", "%w"},
	I32:     {4, "s32", "b32", "%r"},
	U32:     {4, "u32", "b32", "%r"},
	I64:     {8, "s64", "b64", "%rd"},
	U64:     {8, "u64", "b64", "%rd"},
	F16:     {2, "f16", "b16", "%h"},
	F32:     {4, "f32", "b32", "%f"},
	F64:     {8, "f64", "b64", "%d"},
	Bool:    {1, "pred", "pred", "%p"},
	Pointer: {8, "u64", "b64", "%rd"},
	Invalid: {0, "???", "???", "%???"},
}

// Valid reports whether t is a usable element type.
func (t VarType) Valid() bool {
	return t >= I8 && t < Invalid
}

// Size returns the number of bytes one element occupies in memory.
// Bool occupies one byte even though it computes in a predicate.
func (t VarType) Size() int {
	return registry[t.clamp()].size
}

// Name returns the PTX type token, e.g. "f32" for F32.
func (t VarType) Name() string {
	return registry[t.clamp()].name
}

// Bin returns the PTX binary-type token, e.g. "b32" for F32.
func (t VarType) Bin() string {
	return registry[t.clamp()].bin
}

// Register returns the PTX register-name prefix, e.g. "%f" for F32.
func (t VarType) Register() string {
	return registry[t.clamp()].prefix
}

func (t VarType) clamp() VarType {
	if t < I8 || t > Invalid {
		return Invalid
	}
	return t
}
