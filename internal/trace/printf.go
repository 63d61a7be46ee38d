package trace

import (
	"fmt"
	"strings"

	"github.com/golangcuda/gotrace/ptx"
)

// Printf appends a side-effectful node that prints one formatted line
// per lane through the device-side vprintf. The format string becomes a
// .global byte array; up to three argument variables are packed into a
// local buffer of 8-byte slots (F32 values are widened to F64, as
// vprintf expects doubles). More than three arguments is a caller
// error.
func (t *Trace) Printf(format string, args ...uint32) (uint32, error) {
	if len(args) > 3 {
		return 0, errTemplatef("printf accepts at most three arguments, got %d", len(args))
	}
	argTypes := make([]ptx.VarType, len(args))
	for i, a := range args {
		if a < Reserved {
			return 0, errTemplatef("printf argument %d refers to a reserved register", i)
		}
		n, err := t.get(a)
		if err != nil {
			return 0, err
		}
		argTypes[i] = n.vtype
	}

	// The appended node will receive this index; it names the format
	// array and argument buffer uniquely within a kernel.
	idx := t.next

	var b strings.Builder
	b.WriteString("{\n")
	data := append([]byte(format), 0)
	elems := make([]string, len(data))
	for i, c := range data {
		elems[i] = fmt.Sprintf("%d", c)
	}
	fmt.Fprintf(&b, "    .global .align 1 .b8 fmt_%d[%d] = { %s };\n",
		idx, len(data), strings.Join(elems, ", "))
	if len(args) > 0 {
		fmt.Fprintf(&b, "    .local .align 8 .b8 buf_%d[%d];\n", idx, 8*len(args))
	}
	fmt.Fprintf(&b, "    .reg.b64 %%fp_%d, %%bp_%d;\n", idx, idx)
	fmt.Fprintf(&b, "    cvta.global.u64 %%fp_%d, fmt_%d;\n", idx, idx)
	if len(args) > 0 {
		fmt.Fprintf(&b, "    cvta.local.u64 %%bp_%d, buf_%d;\n", idx, idx)
	} else {
		fmt.Fprintf(&b, "    mov.u64 %%bp_%d, 0;\n", idx)
	}
	for i := range args {
		op := i + 2 // placeholder operand: 2..4 name the dependencies
		off := 8 * i
		switch argTypes[i] {
		case ptx.F32:
			fmt.Fprintf(&b, "    cvt.f64.f32 %%d0, $r%d;\n", op)
			fmt.Fprintf(&b, "    st.local.f64 [buf_%d+%d], %%d0;\n", idx, off)
		case ptx.Bool:
			fmt.Fprintf(&b, "    selp.u16 %%w0, 1, 0, $r%d;\n", op)
			fmt.Fprintf(&b, "    st.local.u8 [buf_%d+%d], %%w0;\n", idx, off)
		default:
			fmt.Fprintf(&b, "    st.local.$t%d [buf_%d+%d], $r%d;\n", op, idx, off, op)
		}
	}
	b.WriteString("    {\n")
	b.WriteString("        .param .b64 fmt_p;\n")
	b.WriteString("        .param .b64 buf_p;\n")
	b.WriteString("        .param .b32 rv_p;\n")
	fmt.Fprintf(&b, "        st.param.b64 [fmt_p], %%fp_%d;\n", idx)
	fmt.Fprintf(&b, "        st.param.b64 [buf_p], %%bp_%d;\n", idx)
	b.WriteString("        call.uni (rv_p), vprintf, (fmt_p, buf_p);\n")
	b.WriteString("    }\n")
	b.WriteString("}\n")

	out, err := t.Append(ptx.U32, b.String(), args...)
	if err != nil {
		return 0, err
	}
	if err := t.MarkSideEffect(out); err != nil {
		return 0, err
	}
	return out, nil
}
