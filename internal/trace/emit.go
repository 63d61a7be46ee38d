package trace

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/golangcuda/gotrace/internal/driver"
	"github.com/golangcuda/gotrace/ptx"
)

// KernelName is the exported entry point of every emitted kernel. The
// kernel takes two parameters: a .u64 pointer to a device array of
// void* (the argument table) and the .u32 element count.
const KernelName = "enoki_kernel"

// kernelHeader precedes every kernel: PTX dialect, target, and the
// device-side vprintf declaration used by Printf nodes.
const kernelHeader = `.version 6.3
.target sm_75
.address_size 64

.extern .func (.param .b32 rv) vprintf (.param .b64 fmt, .param .b64 buf);

`

// kernelPreamble binds the reserved registers: %rd0 argument table,
// %r1 element count, %r2 lane index, %r3 grid stride, %r4..%r7 thread
// and block identifiers. %rd8/%rd9 are address scratch.
const kernelPreamble = `    ld.param.u64 %rd8, [ptr];
    cvta.to.global.u64 %rd0, %rd8;
    ld.param.u32 %r1, [size];
    mov.u32 %r4, %tid.x;
    mov.u32 %r5, %ctaid.x;
    mov.u32 %r6, %ntid.x;
    mad.lo.u32 %r2, %r5, %r6, %r4;
    mov.u32 %r7, %nctaid.x;
    mul.lo.u32 %r3, %r6, %r7;
    setp.ge.u32 %p0, %r2, %r1;
    @%p0 bra L_done;

L_body:
`

// kernelEpilogue closes the grid-stride loop. The store after ret is
// unreachable; it keeps the stride counter from being eliminated by the
// assembler and must be preserved.
const kernelEpilogue = `    add.u32 %r2, %r2, %r3;
    setp.lt.u32 %p0, %r2, %r1;
    @%p0 bra L_body;

L_done:
    ret;
    st.global.u32 [%rd9], %r3;
}
`

// emitKernel expands the scheduled variables of one bucket into a
// complete kernel and builds its argument table. Register indices must
// already be assigned. Device buffers for variables that are still
// externally referenced are allocated here; side-effect variables shed
// the scheduler's external reference as soon as they are emitted.
func (t *Trace) emitKernel(sched []uint32, bucketSize int) ([]byte, []driver.Ptr, error) {
	var body strings.Builder
	var args []driver.Ptr

	for _, idx := range sched {
		n := t.vars[idx]
		if n == nil {
			return nil, nil, errInternalf("scheduled variable %d is collected", idx)
		}
		if n.tmpl == "" && n.data == 0 {
			return nil, nil, errInternalf("variable %d has neither instruction nor data", idx)
		}
		if n.count != 1 && n.count != bucketSize {
			return nil, nil, errShapef("variable %d has count %d in a bucket of %d", idx, n.count, bucketSize)
		}
		if n.comment != "" {
			fmt.Fprintf(&body, "    // %s\n", n.comment)
		}

		if n.data != 0 {
			slot := len(args)
			args = append(args, n.data)
			emitLoad(&body, n, slot)
		} else {
			for _, cb := range n.cb {
				if cb != nil {
					cb.OnForward()
				}
			}
			text, err := t.expand(idx, n)
			if err != nil {
				return nil, nil, err
			}
			writeIndented(&body, text)
		}

		if n.sideEffect {
			n.sideEffect = false
			if err := t.DecRefExt(idx); err != nil {
				return nil, nil, err
			}
		}

		if n.data == 0 && n.tmpl != "" && n.extRefs > 0 && n.count == bucketSize {
			nbytes := n.count * n.vtype.Size()
			p, err := t.drv.MemAlloc(nbytes)
			if err != nil {
				return nil, nil, errDriver("alloc", err)
			}
			n.data = p
			n.owns = true
			slot := len(args)
			args = append(args, p)
			emitStore(&body, n, slot)
		}
	}

	var k strings.Builder
	k.WriteString(kernelHeader)
	fmt.Fprintf(&k, ".visible .entry %s(.param .u64 ptr, .param .u32 size) {\n", KernelName)
	nreg := Reserved + len(sched)
	for _, class := range []struct{ decl, prefix string }{
		{"b8", "%b"}, {"b16", "%w"}, {"b16", "%h"}, {"b32", "%r"},
		{"b64", "%rd"}, {"f32", "%f"}, {"f64", "%d"}, {"pred", "%p"},
	} {
		fmt.Fprintf(&k, "    .reg.%s %s<%d>;\n", class.decl, class.prefix, nreg)
	}
	k.WriteString("\n")
	k.WriteString(kernelPreamble)
	k.WriteString(body.String())
	k.WriteString(kernelEpilogue)
	return []byte(k.String()), args, nil
}

// emitLoad reads one element of a materialized variable: fetch the base
// pointer from the argument table, offset by lane unless the variable
// is a broadcast scalar, and load. Bool moves through memory as u8 and
// is converted into its predicate register.
func emitLoad(b *strings.Builder, n *node, slot int) {
	fmt.Fprintf(b, "    ld.global.u64 %%rd8, [%%rd0 + %d];\n", slot*8)
	if n.count != 1 {
		fmt.Fprintf(b, "    mul.wide.u32 %%rd9, %%r2, %d;\n", n.vtype.Size())
		fmt.Fprintf(b, "    add.u64 %%rd8, %%rd8, %%rd9;\n")
	}
	reg := n.vtype.Register() + strconv.Itoa(n.reg)
	if n.vtype == ptx.Bool {
		fmt.Fprintf(b, "    ld.global.u8 %%w0, [%%rd8];\n")
		fmt.Fprintf(b, "    setp.ne.u16 %s, %%w0, 0;\n", reg)
	} else {
		fmt.Fprintf(b, "    ld.global.%s %s, [%%rd8];\n", n.vtype.Name(), reg)
	}
}

// emitStore mirrors emitLoad for a freshly allocated output buffer.
func emitStore(b *strings.Builder, n *node, slot int) {
	fmt.Fprintf(b, "    ld.global.u64 %%rd8, [%%rd0 + %d];\n", slot*8)
	fmt.Fprintf(b, "    mul.wide.u32 %%rd9, %%r2, %d;\n", n.vtype.Size())
	fmt.Fprintf(b, "    add.u64 %%rd8, %%rd8, %%rd9;\n")
	reg := n.vtype.Register() + strconv.Itoa(n.reg)
	if n.vtype == ptx.Bool {
		fmt.Fprintf(b, "    selp.u16 %%w0, 1, 0, %s;\n", reg)
		fmt.Fprintf(b, "    st.global.u8 [%%rd8], %%w0;\n")
	} else {
		fmt.Fprintf(b, "    st.global.%s [%%rd8], %s;\n", n.vtype.Name(), reg)
	}
}

// expand resolves the $-placeholders of a variable's instruction
// template. $t<d> emits the operand's type token, $b<d> its binary-type
// token, $r<d> its register name. Operand 1 is the variable itself,
// 2..4 are its dependencies in declared order. Any other $-sequence is
// a compilation error. If the expansion does not end in a newline, a
// terminating ";" and newline are appended.
func (t *Trace) expand(idx uint32, n *node) (string, error) {
	var b strings.Builder
	s := n.tmpl
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '$' {
			b.WriteByte(c)
			continue
		}
		if i+2 >= len(s) {
			return "", errTemplatef("truncated placeholder in template of variable %d", idx)
		}
		kind, opch := s[i+1], s[i+2]
		if opch < '1' || opch > '4' {
			return "", errTemplatef("bad operand %q in template of variable %d", s[i:i+3], idx)
		}

		var vt ptx.VarType
		var reg int
		if opch == '1' {
			vt, reg = n.vtype, n.reg
		} else {
			d := n.dep[opch-'2']
			if d == 0 {
				return "", errTemplatef("template of variable %d names empty operand $%c%c", idx, kind, opch)
			}
			if d < Reserved {
				vt, reg = ptx.Invalid, int(d)
			} else {
				dn := t.vars[d]
				if dn == nil {
					return "", errInternalf("operand %d of variable %d is collected", d, idx)
				}
				vt, reg = dn.vtype, dn.reg
			}
		}

		switch kind {
		case 't':
			b.WriteString(vt.Name())
		case 'b':
			b.WriteString(vt.Bin())
		case 'r':
			b.WriteString(vt.Register())
			b.WriteString(strconv.Itoa(reg))
		default:
			return "", errTemplatef("unrecognized placeholder $%c in template of variable %d", kind, idx)
		}
		i += 2
	}
	out := b.String()
	if !strings.HasSuffix(out, "\n") {
		out += ";\n"
	}
	return out, nil
}

// writeIndented writes text into the kernel body with each non-empty
// line indented one level, unless the line already carries indentation
// (multi-line templates indent themselves).
func writeIndented(b *strings.Builder, text string) {
	for _, line := range strings.SplitAfter(text, "\n") {
		if trimmed := strings.TrimRight(line, "\n"); trimmed != "" && !strings.HasPrefix(trimmed, " ") {
			b.WriteString("    ")
		}
		b.WriteString(line)
	}
}
