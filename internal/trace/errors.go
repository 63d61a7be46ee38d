package trace

import (
	"errors"
	"fmt"

	"github.com/golangcuda/gotrace/internal/driver"
)

// Error kinds surfaced by the tracer. All of them are fatal to the
// operation that produced them; the tracer never retries.
var (
	// ErrInternal marks an invariant violation: dangling node,
	// negative refcount, collected node scheduled.
	ErrInternal = errors.New("internal trace error")

	// ErrTemplate marks a malformed instruction template or
	// out-of-range placeholder operand.
	ErrTemplate = errors.New("invalid instruction template")

	// ErrShape marks a bucket containing a node whose element count is
	// neither 1 nor the bucket size.
	ErrShape = errors.New("incompatible element count")

	// ErrDriver wraps allocation, copy, link, and launch failures.
	// The driver's message, including any linker log, is preserved.
	ErrDriver = errors.New("driver error")
)

func errInternalf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInternal, fmt.Sprintf(format, args...))
}

func errTemplatef(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrTemplate, fmt.Sprintf(format, args...))
}

func errShapef(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrShape, fmt.Sprintf(format, args...))
}

func errDriver(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrDriver, op, err)
}

func errNoDriver() error {
	return fmt.Errorf("%w: %w", ErrDriver, driver.ErrNoDriver)
}
