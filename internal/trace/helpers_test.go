package trace

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/golangcuda/gotrace/internal/driver"
	"github.com/golangcuda/gotrace/internal/ptxsim"
	"github.com/golangcuda/gotrace/internal/testutil"
	"github.com/golangcuda/gotrace/ptx"
)

// fakeDriver records allocations and frees without executing anything.
// Used where tests only exercise bookkeeping, not kernel semantics.
type fakeDriver struct {
	next     driver.Ptr
	allocs   map[driver.Ptr]int
	frees    []driver.Ptr
	launches int
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{next: 0x1000, allocs: make(map[driver.Ptr]int)}
}

func (d *fakeDriver) MemAlloc(n int) (driver.Ptr, error) {
	p := d.next
	d.next += driver.Ptr((n + 0xff) &^ 0xff)
	d.allocs[p] = n
	return p, nil
}

func (d *fakeDriver) MemFree(p driver.Ptr) error {
	if p != 0 {
		d.frees = append(d.frees, p)
		delete(d.allocs, p)
	}
	return nil
}

func (d *fakeDriver) MemcpyHtoD(driver.Ptr, []byte) error { return nil }

func (d *fakeDriver) MemcpyDtoH(dst []byte, _ driver.Ptr) error {
	clear(dst)
	return nil
}

func (d *fakeDriver) Launch([]byte, string, []driver.Ptr, int, int, int) error {
	d.launches++
	return nil
}

func (d *fakeDriver) Close() error { return nil }

// newFakeTrace builds a trace over the recording driver.
func newFakeTrace(t *testing.T) (*Trace, *fakeDriver) {
	t.Helper()
	drv := newFakeDriver()
	tr, err := New(Config{Driver: drv})
	testutil.NoError(t, err)
	return tr, drv
}

// newSimTrace builds a trace over the PTX simulator, with a hook that
// records every emitted kernel in emission order.
func newSimTrace(t *testing.T) (*Trace, *[]string) {
	t.Helper()
	kernels := &[]string{}
	tr, err := New(Config{
		Driver:     ptxsim.New(nil),
		KernelHook: func(src []byte) { *kernels = append(*kernels, string(src)) },
	})
	testutil.NoError(t, err)
	t.Cleanup(func() { _ = tr.Close() })
	return tr, kernels
}

// inputF32 allocates, uploads, and registers an F32 input buffer.
func inputF32(t *testing.T, tr *Trace, values []float32) uint32 {
	t.Helper()
	buf := make([]byte, 4*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(v))
	}
	p, err := tr.Alloc(len(buf))
	testutil.NoError(t, err)
	testutil.NoError(t, tr.Upload(p, buf))
	idx, err := tr.RegisterInput(ptx.F32, len(values), p, 0, true)
	testutil.NoError(t, err)
	return idx
}

// fetchF32 reads one element of an F32 variable.
func fetchF32(t *testing.T, tr *Trace, idx uint32, offset int) float32 {
	t.Helper()
	elem := make([]byte, 4)
	testutil.NoError(t, tr.FetchElement(idx, offset, elem))
	return math.Float32frombits(binary.LittleEndian.Uint32(elem))
}
