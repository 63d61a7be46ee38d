package ptxsim

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// maxSteps bounds one thread's execution; the grid-stride loops the
// tracer emits terminate long before this.
const maxSteps = 1 << 22

// thread interprets one kernel thread. Registers hold raw 64-bit
// values; instruction type suffixes decide how they are read.
type thread struct {
	prog *program
	mem  *memory
	out  io.Writer
	syms map[string]uint64

	regs   map[string]uint64
	params map[string]uint64

	tid, ctaid, ntid, nctaid uint64
}

func (t *thread) run() error {
	pc := 0
	for steps := 0; ; steps++ {
		if steps > maxSteps {
			return fmt.Errorf("instruction budget exceeded")
		}
		if pc < 0 || pc >= len(t.prog.instrs) {
			return fmt.Errorf("fell off the end of the kernel")
		}
		ins := t.prog.instrs[pc]

		if ins.guard != "" {
			taken := t.regs[ins.guard] != 0
			if taken == ins.negate {
				pc++
				continue
			}
		}

		switch ins.op[0] {
		case "ret":
			return nil
		case "bra":
			target, ok := t.prog.labels[ins.args[len(ins.args)-1]]
			if !ok {
				return fmt.Errorf("unknown label in %q", ins.text)
			}
			pc = target
			continue
		case "call":
			if err := t.execCall(ins); err != nil {
				return err
			}
		default:
			if err := t.exec(ins); err != nil {
				return err
			}
		}
		pc++
	}
}

func (t *thread) exec(ins instr) error {
	op := ins.op[0]
	ty := opType(ins.op)
	switch op {
	case "mov":
		v, err := t.value(ins.args[1])
		if err != nil {
			return err
		}
		t.write(ins.args[0], truncate(v, ty))
	case "ld":
		return t.execLoad(ins, ty)
	case "st":
		return t.execStore(ins, ty)
	case "cvta":
		v, err := t.value(ins.args[1])
		if err != nil {
			return err
		}
		t.write(ins.args[0], v)
	case "cvt":
		return t.execCvt(ins)
	case "setp":
		return t.execSetp(ins, ty)
	case "selp":
		a, err := t.value(ins.args[1])
		if err != nil {
			return err
		}
		b, err := t.value(ins.args[2])
		if err != nil {
			return err
		}
		c, err := t.value(ins.args[3])
		if err != nil {
			return err
		}
		if c != 0 {
			t.write(ins.args[0], truncate(a, ty))
		} else {
			t.write(ins.args[0], truncate(b, ty))
		}
	case "add", "sub", "mul", "div", "rem", "min", "max", "and", "or", "xor", "shl", "shr":
		return t.execBinary(ins, ty)
	case "mad", "fma":
		return t.execTernary(ins, ty)
	case "neg", "abs", "not", "sqrt", "rcp":
		return t.execUnary(ins, ty)
	default:
		return fmt.Errorf("unsupported instruction %q", ins.text)
	}
	return nil
}

func (t *thread) execLoad(ins instr, ty ptxType) error {
	inner := strings.Trim(ins.args[1], "[]")
	if len(ins.op) > 1 && ins.op[1] == "param" {
		t.write(ins.args[0], truncate(t.params[strings.TrimSpace(inner)], ty))
		return nil
	}
	addr, err := t.address(inner)
	if err != nil {
		return err
	}
	b, err := t.mem.slice(addr, ty.size)
	if err != nil {
		return err
	}
	raw := readLE(b)
	if ty.signed {
		raw = signExtend(raw, ty.size)
	}
	t.write(ins.args[0], raw)
	return nil
}

func (t *thread) execStore(ins instr, ty ptxType) error {
	inner := strings.Trim(ins.args[0], "[]")
	v, err := t.value(ins.args[1])
	if err != nil {
		return err
	}
	if len(ins.op) > 1 && ins.op[1] == "param" {
		t.params[strings.TrimSpace(inner)] = v
		return nil
	}
	addr, err := t.address(inner)
	if err != nil {
		return err
	}
	b, err := t.mem.slice(addr, ty.size)
	if err != nil {
		return err
	}
	writeLE(b, v)
	return nil
}

func (t *thread) execBinary(ins instr, ty ptxType) error {
	a, err := t.value(ins.args[1])
	if err != nil {
		return err
	}
	b, err := t.value(ins.args[2])
	if err != nil {
		return err
	}
	op := ins.op[0]

	// mul.wide computes in the doubled width.
	if op == "mul" && hasTok(ins.op, "wide") {
		if ty.signed {
			t.write(ins.args[0], uint64(int64(signExtend(a, ty.size))*int64(signExtend(b, ty.size))))
		} else {
			t.write(ins.args[0], truncate(a, ty)*truncate(b, ty))
		}
		return nil
	}

	if ty.float {
		t.write(ins.args[0], encodeFloat(floatBinary(op, decodeFloat(a, ty), decodeFloat(b, ty)), ty))
		return nil
	}

	var r uint64
	switch op {
	case "add":
		r = a + b
	case "sub":
		r = a - b
	case "mul":
		r = a * b // .lo semantics
	case "div":
		if b == 0 {
			return fmt.Errorf("division by zero in %q", ins.text)
		}
		if ty.signed {
			r = uint64(int64(signExtend(a, ty.size)) / int64(signExtend(b, ty.size)))
		} else {
			r = a / b
		}
	case "rem":
		if b == 0 {
			return fmt.Errorf("division by zero in %q", ins.text)
		}
		r = a % b
	case "min", "max":
		ai, bi := int64(signExtend(a, ty.size)), int64(signExtend(b, ty.size))
		less := ai < bi
		if !ty.signed {
			less = truncate(a, ty) < truncate(b, ty)
		}
		if (op == "min") == less {
			r = a
		} else {
			r = b
		}
	case "and":
		r = a & b
	case "or":
		r = a | b
	case "xor":
		r = a ^ b
	case "shl":
		r = a << (b & 63)
	case "shr":
		if ty.signed {
			r = uint64(int64(signExtend(a, ty.size)) >> (b & 63))
		} else {
			r = a >> (b & 63)
		}
	}
	t.write(ins.args[0], truncate(r, ty))
	return nil
}

func (t *thread) execTernary(ins instr, ty ptxType) error {
	a, err := t.value(ins.args[1])
	if err != nil {
		return err
	}
	b, err := t.value(ins.args[2])
	if err != nil {
		return err
	}
	c, err := t.value(ins.args[3])
	if err != nil {
		return err
	}
	if ty.float {
		r := decodeFloat(a, ty)*decodeFloat(b, ty) + decodeFloat(c, ty)
		if ty.size == 4 {
			r = float64(float32(decodeFloat(a, ty))*float32(decodeFloat(b, ty)) + float32(decodeFloat(c, ty)))
		}
		t.write(ins.args[0], encodeFloat(r, ty))
		return nil
	}
	t.write(ins.args[0], truncate(a*b+c, ty))
	return nil
}

func (t *thread) execUnary(ins instr, ty ptxType) error {
	a, err := t.value(ins.args[1])
	if err != nil {
		return err
	}
	var r uint64
	switch ins.op[0] {
	case "not":
		if ty.pred {
			if a == 0 {
				r = 1
			}
		} else {
			r = ^a
		}
	case "neg":
		if ty.float {
			r = encodeFloat(-decodeFloat(a, ty), ty)
		} else {
			r = -a
		}
	case "abs":
		if ty.float {
			r = encodeFloat(math.Abs(decodeFloat(a, ty)), ty)
		} else if v := int64(signExtend(a, ty.size)); v < 0 {
			r = uint64(-v)
		} else {
			r = a
		}
	case "sqrt":
		r = encodeFloat(math.Sqrt(decodeFloat(a, ty)), ty)
	case "rcp":
		r = encodeFloat(1/decodeFloat(a, ty), ty)
	}
	t.write(ins.args[0], truncate(r, ty))
	return nil
}

func (t *thread) execSetp(ins instr, ty ptxType) error {
	a, err := t.value(ins.args[1])
	if err != nil {
		return err
	}
	b, err := t.value(ins.args[2])
	if err != nil {
		return err
	}
	cmp := ins.op[1]
	var res bool
	switch {
	case ty.float:
		fa, fb := decodeFloat(a, ty), decodeFloat(b, ty)
		switch cmp {
		case "eq":
			res = fa == fb
		case "ne":
			res = fa != fb
		case "lt":
			res = fa < fb
		case "le":
			res = fa <= fb
		case "gt":
			res = fa > fb
		case "ge":
			res = fa >= fb
		default:
			return fmt.Errorf("unsupported comparison %q", ins.text)
		}
	case ty.signed:
		ia, ib := int64(signExtend(a, ty.size)), int64(signExtend(b, ty.size))
		switch cmp {
		case "eq":
			res = ia == ib
		case "ne":
			res = ia != ib
		case "lt":
			res = ia < ib
		case "le":
			res = ia <= ib
		case "gt":
			res = ia > ib
		case "ge":
			res = ia >= ib
		default:
			return fmt.Errorf("unsupported comparison %q", ins.text)
		}
	default:
		ua, ub := truncate(a, ty), truncate(b, ty)
		switch cmp {
		case "eq":
			res = ua == ub
		case "ne":
			res = ua != ub
		case "lt", "lo":
			res = ua < ub
		case "le", "ls":
			res = ua <= ub
		case "gt", "hi":
			res = ua > ub
		case "ge", "hs":
			res = ua >= ub
		default:
			return fmt.Errorf("unsupported comparison %q", ins.text)
		}
	}
	if res {
		t.write(ins.args[0], 1)
	} else {
		t.write(ins.args[0], 0)
	}
	return nil
}

func (t *thread) execCvt(ins instr) error {
	// cvt[.round].dsttype.srctype — the last two tokens are types.
	dstTy := parseType(ins.op[len(ins.op)-2])
	srcTy := parseType(ins.op[len(ins.op)-1])
	raw, err := t.value(ins.args[1])
	if err != nil {
		return err
	}
	var out uint64
	switch {
	case srcTy.float && dstTy.float:
		out = encodeFloat(decodeFloat(raw, srcTy), dstTy)
	case srcTy.float:
		f := decodeFloat(raw, srcTy)
		if dstTy.signed {
			out = uint64(int64(f))
		} else {
			out = uint64(f)
		}
	case dstTy.float:
		if srcTy.signed {
			out = encodeFloat(float64(int64(signExtend(raw, srcTy.size))), dstTy)
		} else {
			out = encodeFloat(float64(truncate(raw, srcTy)), dstTy)
		}
	default:
		if srcTy.signed {
			out = signExtend(raw, srcTy.size)
		} else {
			out = truncate(raw, srcTy)
		}
	}
	t.write(ins.args[0], truncate(out, dstTy))
	return nil
}

// value evaluates a source operand: a register, a preamble special, an
// immediate, or a bare symbol/param name.
func (t *thread) value(s string) (uint64, error) {
	switch {
	case s == "":
		return 0, fmt.Errorf("empty operand")
	case strings.HasPrefix(s, "%"):
		switch s {
		case "%tid.x":
			return t.tid, nil
		case "%ctaid.x":
			return t.ctaid, nil
		case "%ntid.x":
			return t.ntid, nil
		case "%nctaid.x":
			return t.nctaid, nil
		}
		return t.regs[s], nil
	case strings.HasPrefix(s, "0f") || strings.HasPrefix(s, "0F"):
		bits, err := strconv.ParseUint(s[2:], 16, 32)
		if err != nil {
			return 0, fmt.Errorf("bad float immediate %q", s)
		}
		return bits, nil
	case strings.HasPrefix(s, "0d") || strings.HasPrefix(s, "0D"):
		bits, err := strconv.ParseUint(s[2:], 16, 64)
		if err != nil {
			return 0, fmt.Errorf("bad double immediate %q", s)
		}
		return bits, nil
	case s[0] == '-' || (s[0] >= '0' && s[0] <= '9'):
		v, err := strconv.ParseInt(s, 0, 64)
		if err != nil {
			return 0, fmt.Errorf("bad immediate %q", s)
		}
		return uint64(v), nil
	default:
		if addr, ok := t.syms[s]; ok {
			return addr, nil
		}
		if v, ok := t.params[s]; ok {
			return v, nil
		}
		return 0, fmt.Errorf("unknown operand %q", s)
	}
}

// address evaluates the inside of a memory operand: "%rd8",
// "%rd0 + 8", "buf_20+8", or a bare symbol.
func (t *thread) address(s string) (uint64, error) {
	base := s
	var off uint64
	if i := strings.IndexByte(s, '+'); i >= 0 {
		base = strings.TrimSpace(s[:i])
		v, err := strconv.ParseUint(strings.TrimSpace(s[i+1:]), 0, 64)
		if err != nil {
			return 0, fmt.Errorf("bad address offset %q", s)
		}
		off = v
	}
	b, err := t.value(base)
	if err != nil {
		return 0, err
	}
	return b + off, nil
}

func (t *thread) write(dst string, v uint64) {
	t.regs[dst] = v
}

// ptxType describes an instruction type suffix.
type ptxType struct {
	size   int
	signed bool
	float  bool
	pred   bool
}

func parseType(tok string) ptxType {
	if tok == "pred" {
		return ptxType{size: 1, pred: true}
	}
	if len(tok) < 2 {
		return ptxType{size: 8}
	}
	bits, err := strconv.Atoi(tok[1:])
	if err != nil {
		return ptxType{size: 8}
	}
	ty := ptxType{size: bits / 8}
	switch tok[0] {
	case 's':
		ty.signed = true
	case 'f', 'd':
		ty.float = true
	}
	return ty
}

// opType finds the type suffix of an opcode: the last token that parses
// as a type.
func opType(op []string) ptxType {
	for i := len(op) - 1; i > 0; i-- {
		tok := op[i]
		if tok == "pred" {
			return ptxType{size: 1, pred: true}
		}
		if len(tok) >= 2 && strings.ContainsRune("subf", rune(tok[0])) {
			if _, err := strconv.Atoi(tok[1:]); err == nil {
				return parseType(tok)
			}
		}
	}
	return ptxType{size: 8}
}

func hasTok(op []string, tok string) bool {
	for _, t := range op {
		if t == tok {
			return true
		}
	}
	return false
}

func truncate(v uint64, ty ptxType) uint64 {
	switch ty.size {
	case 1:
		return v & 0xff
	case 2:
		return v & 0xffff
	case 4:
		return v & 0xffffffff
	default:
		return v
	}
}

func signExtend(v uint64, size int) uint64 {
	switch size {
	case 1:
		return uint64(int64(int8(v)))
	case 2:
		return uint64(int64(int16(v)))
	case 4:
		return uint64(int64(int32(v)))
	default:
		return v
	}
}

func decodeFloat(v uint64, ty ptxType) float64 {
	if ty.size == 4 {
		return float64(math.Float32frombits(uint32(v)))
	}
	return math.Float64frombits(v)
}

func encodeFloat(f float64, ty ptxType) uint64 {
	if ty.size == 4 {
		return uint64(math.Float32bits(float32(f)))
	}
	return math.Float64bits(f)
}

func floatBinary(op string, a, b float64) float64 {
	switch op {
	case "add":
		return a + b
	case "sub":
		return a - b
	case "mul":
		return a * b
	case "div":
		return a / b
	case "min":
		return math.Min(a, b)
	case "max":
		return math.Max(a, b)
	}
	return math.NaN()
}

func readLE(b []byte) uint64 {
	switch len(b) {
	case 1:
		return uint64(b[0])
	case 2:
		return uint64(binary.LittleEndian.Uint16(b))
	case 4:
		return uint64(binary.LittleEndian.Uint32(b))
	default:
		return binary.LittleEndian.Uint64(b)
	}
}

func writeLE(b []byte, v uint64) {
	switch len(b) {
	case 1:
		b[0] = byte(v)
	case 2:
		binary.LittleEndian.PutUint16(b, uint16(v))
	case 4:
		binary.LittleEndian.PutUint32(b, uint32(v))
	default:
		binary.LittleEndian.PutUint64(b, v)
	}
}
