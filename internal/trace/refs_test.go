package trace

import (
	"errors"
	"testing"

	"github.com/golangcuda/gotrace/internal/driver"
	"github.com/golangcuda/gotrace/internal/testutil"
	"github.com/golangcuda/gotrace/ptx"
)

func TestReservedIndicesAreIgnored(t *testing.T) {
	tr, _ := newFakeTrace(t)
	for idx := uint32(0); idx < Reserved; idx++ {
		testutil.NoError(t, tr.IncRefExt(idx))
		testutil.NoError(t, tr.DecRefExt(idx))
		testutil.NoError(t, tr.IncRefInt(idx))
		testutil.NoError(t, tr.DecRefInt(idx))
	}
}

func TestDecrementBelowZeroIsFatal(t *testing.T) {
	tr, _ := newFakeTrace(t)
	a, _ := tr.RegisterInput(ptx.F32, 4, 0x1000, 0, false)

	err := tr.DecRefInt(a)
	testutil.True(t, errors.Is(err, ErrInternal), "internal decrement below zero: %v", err)

	testutil.NoError(t, tr.IncRefExt(a))
	testutil.NoError(t, tr.DecRefExt(a))
	testutil.NoError(t, tr.DecRefExt(a)) // drops the registration reference
	testutil.False(t, tr.Exists(a))

	err = tr.DecRefExt(a)
	testutil.True(t, errors.Is(err, ErrInternal), "decrement of a collected variable: %v", err)
}

func TestExternalZeroEvictsFromActiveSet(t *testing.T) {
	tr, _ := newFakeTrace(t)
	a, _ := tr.RegisterInput(ptx.F32, 4, 0x1000, 0, false)
	b, _ := tr.Append(ptx.F32, "add.f32 $r1, $r2, $r2", a)
	testutil.Equal(t, 2, tr.ActiveLen())

	// a stays alive through b's internal reference but leaves the
	// active set.
	testutil.NoError(t, tr.DecRefExt(a))
	testutil.Equal(t, 1, tr.ActiveLen())
	testutil.True(t, tr.Exists(a))

	testutil.NoError(t, tr.DecRefExt(b))
	testutil.Equal(t, 0, tr.ActiveLen())
	testutil.False(t, tr.Exists(b), "both counts zero destroys the node")
	testutil.False(t, tr.Exists(a), "destruction cascades through dependencies")
}

func TestCollectionCascadeReleasesEveryBufferOnce(t *testing.T) {
	drv := newFakeDriver()
	tr, err := New(Config{Driver: drv})
	testutil.NoError(t, err)

	p1, _ := drv.MemAlloc(16)
	p2, _ := drv.MemAlloc(16)
	p3, _ := drv.MemAlloc(16)
	i1, err := tr.RegisterInput(ptx.F32, 4, p1, 0, true)
	testutil.NoError(t, err)
	i2, err := tr.RegisterInput(ptx.F32, 4, p2, i1, true)
	testutil.NoError(t, err)
	i3, err := tr.RegisterInput(ptx.F32, 4, p3, i2, true)
	testutil.NoError(t, err)

	// Parents are pinned by their children's internal references.
	testutil.NoError(t, tr.DecRefExt(i1))
	testutil.NoError(t, tr.DecRefExt(i2))
	testutil.True(t, tr.Exists(i1))
	testutil.True(t, tr.Exists(i2))
	testutil.Len(t, drv.frees, 0)

	// Dropping the last handle releases the whole chain.
	testutil.NoError(t, tr.DecRefExt(i3))
	testutil.SliceEqual(t, []driver.Ptr{p3, p2, p1}, drv.frees)
}

func TestUnownedBufferSurvivesDestruction(t *testing.T) {
	drv := newFakeDriver()
	tr, err := New(Config{Driver: drv})
	testutil.NoError(t, err)

	p, _ := drv.MemAlloc(16)
	a, _ := tr.RegisterInput(ptx.F32, 4, p, 0, false)
	testutil.NoError(t, tr.DecRefExt(a))
	testutil.Len(t, drv.frees, 0, "owns=false leaves the buffer to its allocator")
}

func TestDestroyReleasesEdgeCallbacks(t *testing.T) {
	tr, _ := newFakeTrace(t)
	a, _ := tr.RegisterInput(ptx.F32, 4, 0x1000, 0, false)
	r, _ := tr.Append(ptx.F32, "add.f32 $r1, $r2, $r2", a)

	cb := &recordingCallback{}
	testutil.NoError(t, tr.SetEdgeCallback(r, 0, cb))
	testutil.NoError(t, tr.DecRefExt(r))
	testutil.Equal(t, 1, cb.released, "edge release fires exactly once")
	testutil.Equal(t, 0, cb.forward)
}
