package gotrace

// The trace is a process-wide structure by contract; a convenience
// global wraps a default context so front-end bindings can call the
// package-level operations directly. Explicitly-created contexts from
// New are independent of it.

var std *Trace

// Init creates the default context with the given options. Calling
// Init when a default context already exists replaces it without
// closing the old one; call Shutdown first to release it.
func Init(opts ...Option) error {
	t, err := New(opts...)
	if err != nil {
		return err
	}
	std = t
	return nil
}

// Default returns the default context, creating it with default
// options on first use.
func Default() (*Trace, error) {
	if std == nil {
		if err := Init(); err != nil {
			return nil, err
		}
	}
	return std, nil
}

// Shutdown closes the default context. A later call to Default or Init
// creates a fresh one.
func Shutdown() error {
	if std == nil {
		return nil
	}
	err := std.Close()
	std = nil
	return err
}

// RegisterInput publishes a device buffer into the default context.
func RegisterInput(vt VarType, count int, p DevicePtr, parent uint32, owns bool) (uint32, error) {
	t, err := Default()
	if err != nil {
		return 0, err
	}
	return t.RegisterInput(vt, count, p, parent, owns)
}

// Append records an operation in the default context.
func Append(vt VarType, tmpl string, deps ...uint32) (uint32, error) {
	t, err := Default()
	if err != nil {
		return 0, err
	}
	return t.Append(vt, tmpl, deps...)
}

// Printf appends a formatted-print node in the default context.
func Printf(format string, args ...uint32) (uint32, error) {
	t, err := Default()
	if err != nil {
		return 0, err
	}
	return t.Printf(format, args...)
}

// Eval evaluates the default context.
func Eval() error {
	t, err := Default()
	if err != nil {
		return err
	}
	return t.Eval()
}

// FetchElement copies one element from the default context.
func FetchElement(idx uint32, offset int, dst []byte) error {
	t, err := Default()
	if err != nil {
		return err
	}
	return t.FetchElement(idx, offset, dst)
}

// MarkSideEffect pins idx in the default context's active set.
func MarkSideEffect(idx uint32) error {
	t, err := Default()
	if err != nil {
		return err
	}
	return t.MarkSideEffect(idx)
}

// MarkDirty flags idx in the default context as scattered-to.
func MarkDirty(idx uint32) error {
	t, err := Default()
	if err != nil {
		return err
	}
	return t.MarkDirty(idx)
}
