// Package integration exercises the public tracing API end to end on
// the PTX simulator: trace construction, kernel emission, launch, and
// result materialization.
package integration

import (
	"bytes"
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/golangcuda/gotrace"
	"github.com/golangcuda/gotrace/internal/ptxsim"
)

// harness bundles a simulator-backed trace with captured kernels and
// printf output.
type harness struct {
	*gotrace.Trace
	kernels []string
	printed *bytes.Buffer
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{printed: &bytes.Buffer{}}
	tr, err := gotrace.New(
		gotrace.WithDriver(ptxsim.New(h.printed)),
		gotrace.WithKernelHook(func(src []byte) {
			h.kernels = append(h.kernels, string(src))
		}),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = tr.Close() })
	h.Trace = tr
	return h
}

// inputF32 allocates, fills, and registers an F32 device buffer.
func (h *harness) inputF32(t *testing.T, values []float32) uint32 {
	t.Helper()
	buf := make([]byte, 4*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(v))
	}
	p, err := h.Alloc(len(buf))
	require.NoError(t, err)
	require.NoError(t, h.Upload(p, buf))
	idx, err := h.RegisterInput(gotrace.F32, len(values), p, 0, true)
	require.NoError(t, err)
	return idx
}

// fetchF32 reads one F32 element.
func (h *harness) fetchF32(t *testing.T, idx uint32, offset int) float32 {
	t.Helper()
	elem := make([]byte, 4)
	require.NoError(t, h.FetchElement(idx, offset, elem))
	return math.Float32frombits(binary.LittleEndian.Uint32(elem))
}
