package trace

import (
	"log/slog"

	"github.com/golangcuda/gotrace/ptx"
)

// Append records a new elementwise operation. tmpl is a PTX instruction
// template carrying $t/$b/$r placeholders resolved at emission; deps
// are up to three operand indices. Operands below Reserved refer to the
// fixed preamble registers and are legal but carry no node.
//
// If any operand is dirty from a pending scatter, a full evaluation
// runs before the node is inserted, so that the new node observes the
// updated contents (read-after-write barrier).
//
// The result inherits the maximum element count of its operands (1 when
// there are none), carries subtree_size = 1 + sum of its operands'
// subtree sizes, holds one internal reference on each operand, one
// external reference for the caller, and joins the active set.
func (t *Trace) Append(vt ptx.VarType, tmpl string, deps ...uint32) (uint32, error) {
	if !vt.Valid() {
		return 0, errTemplatef("unsupported element type %s", vt)
	}
	if tmpl == "" {
		return 0, errTemplatef("empty instruction template")
	}
	if len(deps) > 3 {
		return 0, errTemplatef("at most three operands are supported, got %d", len(deps))
	}

	barrier := false
	for _, d := range deps {
		if d == 0 {
			return 0, errInternalf("operand index 0 is reserved for empty slots")
		}
		if d < Reserved {
			continue
		}
		n, err := t.get(d)
		if err != nil {
			return 0, err
		}
		if n.dirty {
			barrier = true
		}
	}
	if barrier {
		if err := t.Eval(); err != nil {
			return 0, err
		}
	}

	count := 1
	subtree := 1
	var n node
	n.vtype = vt
	n.tmpl = tmpl
	for i, d := range deps {
		if d >= Reserved {
			dn, err := t.get(d)
			if err != nil {
				return 0, err
			}
			if dn.dirty {
				return 0, errInternalf("operand %d is still dirty after evaluation", d)
			}
			if dn.count > count {
				count = dn.count
			}
			subtree += dn.subtree
		}
		n.dep[i] = d
	}
	n.count = count
	n.subtree = subtree
	n.extRefs = 1

	for _, d := range deps {
		if err := t.IncRefInt(d); err != nil {
			return 0, err
		}
	}

	idx := t.next
	t.next++
	t.vars[idx] = &n
	t.active = append(t.active, idx)
	if t.TraceEnabled() {
		t.Trace("appended",
			slog.Int("index", int(idx)),
			slog.String("type", vt.String()),
			slog.Int("count", count),
			slog.Int("subtree", subtree),
			slog.String("template", tmpl))
	}
	return idx, nil
}

// MarkSideEffect pins idx in the active set regardless of external
// references: the flag adds the scheduler's own external reference,
// which the emitter releases once the variable has been compiled into a
// kernel.
func (t *Trace) MarkSideEffect(idx uint32) error {
	n, err := t.get(idx)
	if err != nil {
		return err
	}
	if n.sideEffect {
		return nil
	}
	n.sideEffect = true
	n.extRefs++
	return nil
}

// MarkDirty flags idx as overwritten by a side-effectful operation
// (scatter). Consumers appended before the next evaluation force that
// evaluation first.
func (t *Trace) MarkDirty(idx uint32) error {
	n, err := t.get(idx)
	if err != nil {
		return err
	}
	n.dirty = true
	t.dirty = append(t.dirty, idx)
	return nil
}

// SetEdgeCallback attaches cb to the dependency edge in the given slot
// (0..2) of idx. The edge owns the callback: Release fires when the
// edge is retired. A previously attached callback is released first.
func (t *Trace) SetEdgeCallback(idx uint32, slot int, cb EdgeCallback) error {
	if slot < 0 || slot > 2 {
		return errInternalf("edge slot %d is out of range", slot)
	}
	n, err := t.get(idx)
	if err != nil {
		return err
	}
	if n.dep[slot] == 0 {
		return errInternalf("variable %d has no operand in slot %d", idx, slot)
	}
	if n.cb[slot] != nil {
		n.cb[slot].Release()
	}
	n.cb[slot] = cb
	return nil
}
