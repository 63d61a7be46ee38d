package trace

// Reference management. Every variable carries two counts: external
// references mirror front-end handles, internal references pin a
// variable while it is named as a dependency in the trace. A variable
// is destroyed only when both reach zero; destruction cascades to its
// dependencies and releases its device buffer if owned.
//
// Indices below Reserved are silently ignored by all four operations.

// IncRefExt increments the external reference count of idx.
func (t *Trace) IncRefExt(idx uint32) error {
	if idx < Reserved {
		return nil
	}
	n, err := t.get(idx)
	if err != nil {
		return err
	}
	n.extRefs++
	return nil
}

// DecRefExt decrements the external reference count of idx. Reaching
// zero evicts the variable from the active set; reaching zero on both
// counts destroys it.
func (t *Trace) DecRefExt(idx uint32) error {
	if idx < Reserved {
		return nil
	}
	n, err := t.get(idx)
	if err != nil {
		return err
	}
	if n.extRefs == 0 {
		return errInternalf("external refcount of variable %d went negative", idx)
	}
	n.extRefs--
	if n.extRefs == 0 {
		t.activeRemove(idx)
		if n.intRefs == 0 {
			return t.destroy(idx, n)
		}
	}
	return nil
}

// IncRefInt increments the internal reference count of idx.
func (t *Trace) IncRefInt(idx uint32) error {
	if idx < Reserved {
		return nil
	}
	n, err := t.get(idx)
	if err != nil {
		return err
	}
	n.intRefs++
	return nil
}

// DecRefInt decrements the internal reference count of idx, destroying
// the variable when both counts reach zero.
func (t *Trace) DecRefInt(idx uint32) error {
	if idx < Reserved {
		return nil
	}
	n, err := t.get(idx)
	if err != nil {
		return err
	}
	if n.intRefs == 0 {
		return errInternalf("internal refcount of variable %d went negative", idx)
	}
	n.intRefs--
	if n.collected() {
		return t.destroy(idx, n)
	}
	return nil
}

// destroy removes a collected variable: its edge callbacks are
// released, its device buffer freed if owned, and its dependencies
// decremented, chaining destruction down the expression DAG.
//
// Side-effectful variables that have not been emitted yet hold the
// scheduler's external reference and therefore never reach this point
// before evaluation.
func (t *Trace) destroy(idx uint32, n *node) error {
	delete(t.vars, idx)
	releaseCallbacks(n)
	if n.owns && n.data != 0 {
		if err := t.drv.MemFree(n.data); err != nil {
			return errDriver("free", err)
		}
		n.data = 0
	}
	for _, d := range n.dep {
		if d != 0 {
			if err := t.DecRefInt(d); err != nil {
				return err
			}
		}
	}
	return nil
}
