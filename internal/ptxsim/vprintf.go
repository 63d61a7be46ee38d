package ptxsim

import (
	"fmt"
	"strings"
)

// execCall handles the one callable the emitted kernels use: the
// device-side vprintf. The format string address and argument buffer
// address arrive through the .param space; arguments occupy 8-byte
// slots, with floats always widened to f64 by the emitter.
func (t *thread) execCall(ins instr) error {
	if len(ins.args) != 4 || ins.args[1] != "vprintf" {
		return fmt.Errorf("unsupported call %q", ins.text)
	}
	format, err := t.cstring(t.params[ins.args[2]])
	if err != nil {
		return err
	}
	buf := t.params[ins.args[3]]

	var b strings.Builder
	slot := 0
	for i := 0; i < len(format); i++ {
		c := format[i]
		if c != '%' {
			b.WriteByte(c)
			continue
		}
		j := i + 1
		for j < len(format) && strings.IndexByte("-+ #0123456789.", format[j]) >= 0 {
			j++
		}
		for j < len(format) && (format[j] == 'l' || format[j] == 'h' || format[j] == 'z') {
			j++
		}
		if j >= len(format) {
			b.WriteByte('%')
			break
		}
		spec := format[i : j+1]
		conv := format[j]
		i = j
		if conv == '%' {
			b.WriteByte('%')
			continue
		}

		raw, err := t.argSlot(buf, slot)
		if err != nil {
			return err
		}
		slot++
		long := strings.Contains(spec, "ll")
		goSpec := strings.NewReplacer("ll", "", "l", "", "h", "", "z", "").Replace(spec)
		switch conv {
		case 'f', 'F', 'e', 'E', 'g', 'G':
			fmt.Fprintf(&b, goSpec, decodeFloat(raw, ptxType{size: 8, float: true}))
		case 'd', 'i':
			goSpec = goSpec[:len(goSpec)-1] + "d"
			if long {
				fmt.Fprintf(&b, goSpec, int64(raw))
			} else {
				fmt.Fprintf(&b, goSpec, int32(raw))
			}
		case 'u':
			goSpec = goSpec[:len(goSpec)-1] + "d"
			if long {
				fmt.Fprintf(&b, goSpec, raw)
			} else {
				fmt.Fprintf(&b, goSpec, uint32(raw))
			}
		case 'x', 'X', 'o':
			if long {
				fmt.Fprintf(&b, goSpec, raw)
			} else {
				fmt.Fprintf(&b, goSpec, uint32(raw))
			}
		case 'c':
			fmt.Fprintf(&b, goSpec, rune(uint32(raw)))
		case 's':
			s, err := t.cstring(raw)
			if err != nil {
				return err
			}
			fmt.Fprintf(&b, goSpec, s)
		default:
			b.WriteString(spec)
		}
	}

	if _, err := fmt.Fprint(t.out, b.String()); err != nil {
		return err
	}
	t.params[ins.args[0]] = 0 // vprintf return value
	return nil
}

func (t *thread) argSlot(buf uint64, slot int) (uint64, error) {
	b, err := t.mem.slice(buf+uint64(8*slot), 8)
	if err != nil {
		return 0, err
	}
	return readLE(b), nil
}

// cstring reads a NUL-terminated string from simulated memory.
func (t *thread) cstring(addr uint64) (string, error) {
	var b strings.Builder
	for i := 0; i < 1<<16; i++ {
		mb, err := t.mem.slice(addr+uint64(i), 1)
		if err != nil {
			return "", err
		}
		if mb[0] == 0 {
			return b.String(), nil
		}
		b.WriteByte(mb[0])
	}
	return "", fmt.Errorf("unterminated format string at %#x", addr)
}
