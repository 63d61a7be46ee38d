// Command gotrace is a CLI tool for inspecting the tracing JIT: it
// builds a small demonstration trace and shows its results or the PTX
// kernels it compiles to. Without a GPU build, kernels run on the
// bundled PTX simulator.
package main

import (
	"encoding/binary"
	"flag"
	"fmt"
	"math"
	"os"
	"runtime/debug"

	"github.com/golangcuda/gotrace"
	"github.com/golangcuda/gotrace/internal/ptxsim"
)

// Exit codes.
const (
	exitOK    = 0 // success
	exitError = 1 // user error or trace failure
)

const usage = `gotrace - tracing JIT inspection tool

Usage:
  gotrace <command> [options]

Commands:
  demo    Trace a small expression, evaluate it, and print the results
  dump    Print the PTX kernel emitted for the demo expression
  whos    Print the variable table after tracing the demo expression
  version Show version

Options:
  -cuda   Use the CUDA driver instead of the PTX simulator
          (requires a binary built with the cuda tag)
`

func main() {
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	useCUDA := flag.Bool("cuda", false, "use the CUDA driver")
	flag.Parse()

	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(exitError)
	}

	switch flag.Arg(0) {
	case "demo":
		os.Exit(runDemo(*useCUDA, false))
	case "dump":
		os.Exit(runDemo(*useCUDA, true))
	case "whos":
		os.Exit(runWhos(*useCUDA))
	case "version":
		if info, ok := debug.ReadBuildInfo(); ok {
			fmt.Println("gotrace", info.Main.Version)
		} else {
			fmt.Println("gotrace (unknown version)")
		}
		os.Exit(exitOK)
	default:
		fmt.Fprintf(os.Stderr, "gotrace: unknown command %q\n\n", flag.Arg(0))
		flag.Usage()
		os.Exit(exitError)
	}
}

func open(useCUDA bool, opts ...gotrace.Option) (*gotrace.Trace, error) {
	if !useCUDA {
		opts = append(opts, gotrace.WithDriver(ptxsim.New(os.Stdout)))
	}
	return gotrace.New(opts...)
}

// buildDemo traces y = x*x + x over the input [1, 2, 3, 4].
func buildDemo(t *gotrace.Trace) (uint32, error) {
	values := []float32{1, 2, 3, 4}
	buf := make([]byte, 4*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(v))
	}
	p, err := t.Alloc(len(buf))
	if err != nil {
		return 0, err
	}
	if err := t.Upload(p, buf); err != nil {
		return 0, err
	}
	x, err := t.RegisterInput(gotrace.F32, len(values), p, 0, true)
	if err != nil {
		return 0, err
	}
	if err := t.SetComment(x, "input x"); err != nil {
		return 0, err
	}
	sq, err := t.Append(gotrace.F32, "mul.f32 $r1, $r2, $r2", x)
	if err != nil {
		return 0, err
	}
	return t.Append(gotrace.F32, "add.f32 $r1, $r2, $r3", sq, x)
}

func runDemo(useCUDA, dump bool) int {
	var opts []gotrace.Option
	if dump {
		opts = append(opts, gotrace.WithKernelHook(func(src []byte) {
			os.Stdout.Write(src)
		}))
	}
	t, err := open(useCUDA, opts...)
	if err != nil {
		fmt.Fprintln(os.Stderr, "gotrace:", err)
		return exitError
	}
	defer t.Close()

	y, err := buildDemo(t)
	if err != nil {
		fmt.Fprintln(os.Stderr, "gotrace:", err)
		return exitError
	}
	if err := t.Eval(); err != nil {
		fmt.Fprintln(os.Stderr, "gotrace:", err)
		return exitError
	}
	if dump {
		return exitOK
	}

	fmt.Println("y = x*x + x over [1 2 3 4]:")
	elem := make([]byte, 4)
	for i := 0; i < 4; i++ {
		if err := t.FetchElement(y, i, elem); err != nil {
			fmt.Fprintln(os.Stderr, "gotrace:", err)
			return exitError
		}
		fmt.Printf("  y[%d] = %g\n", i, math.Float32frombits(binary.LittleEndian.Uint32(elem)))
	}
	return exitOK
}

func runWhos(useCUDA bool) int {
	t, err := open(useCUDA)
	if err != nil {
		fmt.Fprintln(os.Stderr, "gotrace:", err)
		return exitError
	}
	defer t.Close()

	if _, err := buildDemo(t); err != nil {
		fmt.Fprintln(os.Stderr, "gotrace:", err)
		return exitError
	}
	fmt.Print(t.Dump())
	return exitOK
}
