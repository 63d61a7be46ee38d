//go:build cuda

// Package cudrv implements the driver interface on the CUDA driver API
// through gorgonia.org/cu. Built only with the "cuda" tag; in binaries
// built without it, opening the default driver fails with ErrNoDriver.
package cudrv

import (
	"encoding/binary"
	"fmt"
	"unsafe"

	"gorgonia.org/cu"

	"github.com/golangcuda/gotrace/internal/driver"
)

// Device is a CUDA device with its driver context.
type Device struct {
	dev cu.Device
	ctx cu.CUContext
}

var _ driver.Driver = (*Device)(nil)

// Open initializes the driver API and creates a context on the device
// with the given ordinal.
func Open(ordinal int) (*Device, error) {
	if err := cu.Init(0); err != nil {
		return nil, fmt.Errorf("cuda init: %w", err)
	}
	dev := cu.Device(ordinal)
	ctx, err := dev.MakeContext(cu.SchedAuto)
	if err != nil {
		return nil, fmt.Errorf("cuda context: %w", err)
	}
	return &Device{dev: dev, ctx: ctx}, nil
}

func (d *Device) MemAlloc(n int) (driver.Ptr, error) {
	p, err := cu.MemAlloc(int64(n))
	if err != nil {
		return 0, fmt.Errorf("cuda alloc of %d bytes: %w", n, err)
	}
	return driver.Ptr(p), nil
}

func (d *Device) MemFree(p driver.Ptr) error {
	if p == 0 {
		return nil
	}
	return cu.MemFree(cu.DevicePtr(p))
}

func (d *Device) MemcpyHtoD(dst driver.Ptr, src []byte) error {
	if len(src) == 0 {
		return nil
	}
	return cu.MemcpyHtoD(cu.DevicePtr(dst), unsafe.Pointer(&src[0]), int64(len(src)))
}

func (d *Device) MemcpyDtoH(dst []byte, src driver.Ptr) error {
	if len(dst) == 0 {
		return nil
	}
	return cu.MemcpyDtoH(unsafe.Pointer(&dst[0]), cu.DevicePtr(src), int64(len(dst)))
}

// Launch loads the PTX image through the driver JIT, copies the
// argument table to the device, and runs the kernel synchronously. The
// module and the device-side table are released before returning.
func (d *Device) Launch(ptxSrc []byte, kernel string, args []driver.Ptr, gridX, blockX, size int) error {
	mod, err := cu.LoadData(string(ptxSrc))
	if err != nil {
		return fmt.Errorf("cuda link: %w", err)
	}
	defer func() { _ = mod.Unload() }()

	fn, err := mod.Function(kernel)
	if err != nil {
		return fmt.Errorf("cuda kernel %q: %w", kernel, err)
	}

	var table cu.DevicePtr
	if len(args) > 0 {
		host := make([]byte, 8*len(args))
		for i, a := range args {
			binary.LittleEndian.PutUint64(host[8*i:], uint64(a))
		}
		table, err = cu.MemAlloc(int64(len(host)))
		if err != nil {
			return fmt.Errorf("cuda alloc of argument table: %w", err)
		}
		defer func() { _ = cu.MemFree(table) }()
		if err := cu.MemcpyHtoD(table, unsafe.Pointer(&host[0]), int64(len(host))); err != nil {
			return fmt.Errorf("cuda copy of argument table: %w", err)
		}
	}

	ptr := uint64(table)
	count := uint32(size)
	params := []unsafe.Pointer{unsafe.Pointer(&ptr), unsafe.Pointer(&count)}
	if err := fn.LaunchAndSync(gridX, 1, 1, blockX, 1, 1, 0, cu.Stream(0), params); err != nil {
		return fmt.Errorf("cuda launch: %w", err)
	}
	return nil
}

func (d *Device) Close() error {
	return cu.DestroyContext(&d.ctx)
}
