package trace

import (
	"testing"

	"github.com/golangcuda/gotrace/internal/ptxsim"
	"github.com/golangcuda/gotrace/ptx"
)

func BenchmarkAppend(b *testing.B) {
	tr, err := New(Config{Driver: ptxsim.New(nil)})
	if err != nil {
		b.Fatal(err)
	}
	a, err := tr.RegisterInput(ptx.F32, 1024, 0x1000, 0, false)
	if err != nil {
		b.Fatal(err)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		idx, err := tr.Append(ptx.F32, "add.f32 $r1, $r2, $r2", a)
		if err != nil {
			b.Fatal(err)
		}
		if err := tr.DecRefExt(idx); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkEvalSmallKernel(b *testing.B) {
	for i := 0; i < b.N; i++ {
		b.StopTimer()
		drv := ptxsim.New(nil)
		tr, err := New(Config{Driver: drv})
		if err != nil {
			b.Fatal(err)
		}
		buf := make([]byte, 4*64)
		p, err := tr.Alloc(len(buf))
		if err != nil {
			b.Fatal(err)
		}
		if err := tr.Upload(p, buf); err != nil {
			b.Fatal(err)
		}
		a, err := tr.RegisterInput(ptx.F32, 64, p, 0, true)
		if err != nil {
			b.Fatal(err)
		}
		if _, err := tr.Append(ptx.F32, "add.f32 $r1, $r2, $r2", a); err != nil {
			b.Fatal(err)
		}
		b.StartTimer()
		if err := tr.Eval(); err != nil {
			b.Fatal(err)
		}
		b.StopTimer()
		if err := tr.Close(); err != nil {
			b.Fatal(err)
		}
	}
}
