package trace

import "log/slog"

// Eval compiles and launches every pending computation. Active
// variables are bucketed by element count; each bucket is scheduled,
// emitted as one kernel, linked and launched through the driver, and
// its materialized variables have their dependency edges collapsed.
// Dirty flags are cleared, and the active set is emptied: materialized
// variables re-enter later kernels as loads through their device
// buffers.
//
// Any driver or consistency failure aborts the evaluation; nothing is
// retried. Buffers already attached to variables stay owned by them and
// are released through normal refcount decrement.
func (t *Trace) Eval() error {
	buckets := t.partition()

	t.Log(slog.LevelDebug, "starting phase", slog.String("phase", "partition"),
		slog.Int("active", len(t.active)), slog.Int("buckets", len(buckets)))

	for _, idx := range t.dirty {
		if n := t.vars[idx]; n != nil {
			n.dirty = false
		}
	}
	t.dirty = t.dirty[:0]

	for size, seeds := range buckets {
		sched := t.scheduleBucket(seeds)
		if len(sched) == 0 {
			continue
		}
		for i, idx := range sched {
			n := t.vars[idx]
			if n == nil {
				return errInternalf("scheduled variable %d is collected", idx)
			}
			n.reg = Reserved + i
			if t.TraceEnabled() {
				t.Trace("scheduled", slog.Int("index", int(idx)), slog.Int("register", n.reg))
			}
		}

		src, args, err := t.emitKernel(sched, size)
		if err != nil {
			return err
		}
		t.Log(slog.LevelDebug, "phase complete", slog.String("phase", "emit"),
			slog.Int("count", size), slog.Int("scheduled", len(sched)), slog.Int("args", len(args)))
		if t.hook != nil {
			t.hook(src)
		}

		if err := t.drv.Launch(src, KernelName, args, t.grid, t.blk, size); err != nil {
			return errDriver("launch", err)
		}
		t.Log(slog.LevelDebug, "phase complete", slog.String("phase", "launch"),
			slog.Int("count", size))

		if err := t.collapse(sched); err != nil {
			return err
		}
	}

	t.active = t.active[:0]
	return nil
}

// collapse releases the expression DAG below every variable that the
// bucket just materialized: each dependency slot is decremented and
// zeroed, and its edge callback released. Variables whose only
// consumers were compiled here are collected as a result.
func (t *Trace) collapse(sched []uint32) error {
	for _, idx := range sched {
		n := t.vars[idx]
		if n == nil || n.data == 0 || n.tmpl == "" {
			continue
		}
		for s := range n.dep {
			d := n.dep[s]
			if n.cb[s] != nil {
				n.cb[s].Release()
				n.cb[s] = nil
			}
			n.dep[s] = 0
			if d != 0 {
				if err := t.DecRefInt(d); err != nil {
					return err
				}
			}
		}
	}
	return nil
}
