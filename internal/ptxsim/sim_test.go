package ptxsim

import (
	"bytes"
	"encoding/binary"
	"math"
	"testing"

	"github.com/golangcuda/gotrace/internal/driver"
	"github.com/golangcuda/gotrace/internal/testutil"
)

const kernelHead = `.version 6.3
.target sm_75
.address_size 64

.visible .entry k(.param .u64 ptr, .param .u32 size) {
    .reg.b16 %w<16>;
    .reg.b32 %r<16>;
    .reg.b64 %rd<16>;
    .reg.f32 %f<16>;
    .reg.f64 %d<16>;
    .reg.pred %p<16>;

    ld.param.u64 %rd8, [ptr];
    cvta.to.global.u64 %rd0, %rd8;
    ld.param.u32 %r1, [size];
    mov.u32 %r4, %tid.x;
    mov.u32 %r5, %ctaid.x;
    mov.u32 %r6, %ntid.x;
    mad.lo.u32 %r2, %r5, %r6, %r4;
    mov.u32 %r7, %nctaid.x;
    mul.lo.u32 %r3, %r6, %r7;
    setp.ge.u32 %p0, %r2, %r1;
    @%p0 bra L_done;

L_body:
`

const kernelTail = `    add.u32 %r2, %r2, %r3;
    setp.lt.u32 %p0, %r2, %r1;
    @%p0 bra L_body;

L_done:
    ret;
    st.global.u32 [%rd9], %r3;
}
`

func launch(t *testing.T, s *Sim, body string, args []driver.Ptr, size int) {
	t.Helper()
	src := kernelHead + body + kernelTail
	testutil.NoError(t, s.Launch([]byte(src), "k", args, 4, 8, size))
}

func allocF32(t *testing.T, s *Sim, values []float32) driver.Ptr {
	t.Helper()
	buf := make([]byte, 4*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(v))
	}
	p, err := s.MemAlloc(len(buf))
	testutil.NoError(t, err)
	testutil.NoError(t, s.MemcpyHtoD(p, buf))
	return p
}

func readF32(t *testing.T, s *Sim, p driver.Ptr, n int) []float32 {
	t.Helper()
	buf := make([]byte, 4*n)
	testutil.NoError(t, s.MemcpyDtoH(buf, p))
	out := make([]float32, n)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:]))
	}
	return out
}

func TestMemcpyRoundTrip(t *testing.T) {
	s := New(nil)
	p, err := s.MemAlloc(8)
	testutil.NoError(t, err)
	testutil.NoError(t, s.MemcpyHtoD(p, []byte{1, 2, 3, 4, 5, 6, 7, 8}))
	got := make([]byte, 8)
	testutil.NoError(t, s.MemcpyDtoH(got, p))
	testutil.SliceEqual(t, []byte{1, 2, 3, 4, 5, 6, 7, 8}, got)

	// Interior addresses resolve into the containing block.
	got = make([]byte, 2)
	testutil.NoError(t, s.MemcpyDtoH(got, p+3))
	testutil.SliceEqual(t, []byte{4, 5}, got)

	testutil.NoError(t, s.MemFree(p))
	testutil.Error(t, s.MemcpyDtoH(got, p), "freed memory is unreachable")
}

func TestOutOfBoundsAccessFails(t *testing.T) {
	s := New(nil)
	p, _ := s.MemAlloc(4)
	testutil.Error(t, s.MemcpyDtoH(make([]byte, 8), p))
	testutil.Error(t, s.MemFree(p+1), "free requires the base pointer")
}

func TestGridStrideCoversAllLanes(t *testing.T) {
	// 100 elements with 4x8 threads: each thread handles several lanes.
	s := New(nil)
	in := make([]float32, 100)
	for i := range in {
		in[i] = float32(i)
	}
	src := allocF32(t, s, in)
	dst := allocF32(t, s, make([]float32, 100))
	body := `    ld.global.u64 %rd8, [%rd0 + 0];
    mul.wide.u32 %rd9, %r2, 4;
    add.u64 %rd8, %rd8, %rd9;
    ld.global.f32 %f10, [%rd8];
    add.f32 %f11, %f10, %f10;
    ld.global.u64 %rd8, [%rd0 + 8];
    mul.wide.u32 %rd9, %r2, 4;
    add.u64 %rd8, %rd8, %rd9;
    st.global.f32 [%rd8], %f11;
`
	launch(t, s, body, []driver.Ptr{src, dst}, 100)
	out := readF32(t, s, dst, 100)
	for i, v := range out {
		testutil.Equal(t, float32(2*i), v, "lane %d", i)
	}
}

func TestArithmeticAndPredicates(t *testing.T) {
	s := New(nil)
	dst := allocF32(t, s, make([]float32, 4))
	// lane < 2 ? lane*3.0 : sqrt(lane)
	body := `    cvt.rn.f32.u32 %f10, %r2;
    mul.f32 %f11, %f10, 0f40400000;
    sqrt.rn.f32 %f12, %f10;
    setp.lt.u32 %p10, %r2, 2;
    selp.f32 %f13, %f11, %f12, %p10;
    ld.global.u64 %rd8, [%rd0 + 0];
    mul.wide.u32 %rd9, %r2, 4;
    add.u64 %rd8, %rd8, %rd9;
    st.global.f32 [%rd8], %f13;
`
	launch(t, s, body, []driver.Ptr{dst}, 4)
	out := readF32(t, s, dst, 4)
	testutil.Equal(t, float32(0), out[0])
	testutil.Equal(t, float32(3), out[1])
	testutil.Equal(t, float32(math.Sqrt2), out[2])
	testutil.Equal(t, float32(math.Sqrt(3)), out[3])
}

func TestImmediateFormats(t *testing.T) {
	s := New(nil)
	dst := allocF32(t, s, make([]float32, 1))
	body := `    mov.f32 %f10, 0f3F800000;
    mov.u32 %r10, 0x10;
    cvt.rn.f32.u32 %f11, %r10;
    add.f32 %f12, %f10, %f11;
    ld.global.u64 %rd8, [%rd0 + 0];
    st.global.f32 [%rd8], %f12;
`
	launch(t, s, body, []driver.Ptr{dst}, 1)
	testutil.Equal(t, float32(17), readF32(t, s, dst, 1)[0])
}

func TestVprintfFormatsArguments(t *testing.T) {
	var out bytes.Buffer
	s := New(&out)
	body := `    {
    .global .align 1 .b8 fmt_20[14] = { 118, 61, 37, 102, 32, 105, 61, 37, 105, 37, 37, 120, 10, 0 };
    .local .align 8 .b8 buf_20[16];
    .reg.b64 %fp_20, %bp_20;
    cvta.global.u64 %fp_20, fmt_20;
    cvta.local.u64 %bp_20, buf_20;
    mov.f32 %f10, 0f40200000;
    cvt.f64.f32 %d0, %f10;
    st.local.f64 [buf_20+0], %d0;
    mov.u32 %r10, 7;
    st.local.u32 [buf_20+8], %r10;
    {
        .param .b64 fmt_p;
        .param .b64 buf_p;
        .param .b32 rv_p;
        st.param.b64 [fmt_p], %fp_20;
        st.param.b64 [buf_p], %bp_20;
        call.uni (rv_p), vprintf, (fmt_p, buf_p);
    }
    }
`
	launch(t, s, body, nil, 1)
	testutil.Equal(t, "v=2.500000 i=7%x\n", out.String())
}

func TestUnknownInstructionFails(t *testing.T) {
	s := New(nil)
	src := kernelHead + "    frobnicate.f32 %f10, %f11;\n" + kernelTail
	testutil.Error(t, s.Launch([]byte(src), "k", nil, 1, 1, 1))
}

func TestKernelNameMismatchFails(t *testing.T) {
	s := New(nil)
	src := kernelHead + kernelTail
	testutil.Error(t, s.Launch([]byte(src), "other", nil, 1, 1, 1))
}
