package gotrace

import (
	"bytes"
	"encoding/binary"
	"errors"
	"log/slog"
	"math"
	"testing"

	"github.com/golangcuda/gotrace/internal/ptxsim"
	"github.com/golangcuda/gotrace/internal/testutil"
)

func newSimContext(t *testing.T, opts ...Option) *Trace {
	t.Helper()
	tr, err := New(append(opts, WithDriver(ptxsim.New(nil)))...)
	testutil.NoError(t, err)
	t.Cleanup(func() { _ = tr.Close() })
	return tr
}

func TestNewWithoutDriverFails(t *testing.T) {
	// Builds without the cuda tag have no default backend.
	_, err := New()
	testutil.True(t, errors.Is(err, ErrNoDriver), "got %v", err)
}

func TestRoundTripThroughPublicAPI(t *testing.T) {
	tr := newSimContext(t)

	values := []float32{1, 2, 3, 4}
	buf := make([]byte, 4*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(v))
	}
	p, err := tr.Alloc(len(buf))
	testutil.NoError(t, err)
	testutil.NoError(t, tr.Upload(p, buf))

	a, err := tr.RegisterInput(F32, 4, p, 0, true)
	testutil.NoError(t, err)
	r, err := tr.Append(F32, "mul.f32 $r1, $r2, $r2", a)
	testutil.NoError(t, err)
	testutil.NoError(t, tr.Eval())

	elem := make([]byte, 4)
	testutil.NoError(t, tr.FetchElement(r, 2, elem))
	testutil.Equal(t, float32(9), math.Float32frombits(binary.LittleEndian.Uint32(elem)))
}

func TestLoggerReceivesPhaseEvents(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: LevelTrace}))
	tr := newSimContext(t, WithLogger(logger))

	p, err := tr.Alloc(16)
	testutil.NoError(t, err)
	a, err := tr.RegisterInput(F32, 4, p, 0, true)
	testutil.NoError(t, err)
	_, err = tr.Append(F32, "add.f32 $r1, $r2, $r2", a)
	testutil.NoError(t, err)
	testutil.NoError(t, tr.Eval())

	out := logs.String()
	testutil.Contains(t, out, "registered input")
	testutil.Contains(t, out, "appended")
	testutil.Contains(t, out, "starting phase")
	testutil.Contains(t, out, "scheduled")
}

func TestDefaultContextLifecycle(t *testing.T) {
	testutil.NoError(t, Init(WithDriver(ptxsim.New(nil))))
	defer func() { testutil.NoError(t, Shutdown()) }()

	tr, err := Default()
	testutil.NoError(t, err)
	testutil.NotNil(t, tr)

	k, err := Append(U32, "mov.u32 $r1, 0")
	testutil.NoError(t, err)
	testutil.NoError(t, MarkSideEffect(k))
	testutil.NoError(t, Eval())

	testutil.NoError(t, Shutdown())
	testutil.NoError(t, Shutdown(), "repeated shutdown is a no-op")
}
