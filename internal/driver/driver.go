// Package driver defines the narrow GPU driver surface the tracer
// consumes: raw device allocation, host/device copies, and
// compile-and-launch of a PTX kernel.
//
// The production implementation wraps the CUDA driver API (see
// subpackage cudrv, built with the "cuda" tag). Tests and the CLI
// inject an interpreting implementation instead.
package driver

import "errors"

// Ptr is an opaque device pointer. 0 is the null pointer.
type Ptr uintptr

// ErrNoDriver is returned when the default driver is requested from a
// binary built without CUDA support.
var ErrNoDriver = errors.New("gotrace built without cuda support")

// Driver is the device backend used by the tracer. Implementations are
// not required to be safe for concurrent use; the tracer is
// single-threaded by contract.
type Driver interface {
	// MemAlloc allocates n bytes of device memory.
	MemAlloc(n int) (Ptr, error)

	// MemFree releases a pointer obtained from MemAlloc. Freeing the
	// null pointer is a no-op.
	MemFree(p Ptr) error

	// MemcpyHtoD copies len(src) bytes from host to device.
	MemcpyHtoD(dst Ptr, src []byte) error

	// MemcpyDtoH copies len(dst) bytes from device to host.
	MemcpyDtoH(dst []byte, src Ptr) error

	// Launch compiles the PTX image, resolves the named kernel, copies
	// the argument pointer table to the device, launches gridX blocks
	// of blockX threads over size elements, and blocks until the
	// kernel completes. All per-launch driver resources (linker state,
	// module, device-side argument table) are released before Launch
	// returns. Errors carry the driver's log text verbatim.
	Launch(ptxSrc []byte, kernel string, args []Ptr, gridX, blockX, size int) error

	// Close releases the driver context. The Driver is unusable
	// afterwards.
	Close() error
}
