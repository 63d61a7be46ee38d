// Package gotrace records elementwise GPU arithmetic into an
// expression graph and compiles it on demand into PTX kernels.
//
// Call [New] to create a tracing context, publish device buffers with
// [Trace.RegisterInput], record operations with [Trace.Append], and
// force compilation and execution with [Trace.Eval]. Recording is lazy:
// nothing touches the device until an evaluation is forced by Eval, by
// [Trace.FetchElement], or by a read-after-write barrier against a
// scattered operand.
//
// The trace is a single-threaded structure. Concurrent use of one
// context by multiple goroutines is not supported.
package gotrace

import (
	"log/slog"

	"github.com/golangcuda/gotrace/internal/trace"
	"github.com/golangcuda/gotrace/internal/types"
)

// LevelTrace is a custom log level more verbose than Debug.
// Use for per-node iteration logging (schedule order, register
// assignment, emitted instructions).
// Enable with: &slog.HandlerOptions{Level: slog.Level(-8)}
const LevelTrace = types.LevelTrace

// Option configures New.
type Option func(*config)

type config struct {
	logger *slog.Logger
	drv    Driver
	device int
	grid   int
	block  int
	hook   func(ptxSrc []byte)
}

// WithLogger sets the logger for debug/trace output.
// If not set, no logging occurs (zero overhead).
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) { c.logger = logger }
}

// WithDriver injects a device backend, bypassing default driver
// discovery. Tests use this to run traces on the PTX simulator.
func WithDriver(d Driver) Option {
	return func(c *config) { c.drv = d }
}

// WithDevice selects the CUDA device ordinal for the default driver.
// Ignored when WithDriver is used.
func WithDevice(ordinal int) Option {
	return func(c *config) { c.device = ordinal }
}

// WithLaunchShape overrides the launch geometry. The default is 32
// blocks of 128 threads; the grid-stride loop covers any element count
// regardless.
func WithLaunchShape(blocks, threads int) Option {
	return func(c *config) { c.grid, c.block = blocks, threads }
}

// WithKernelHook registers an observer for every emitted kernel,
// invoked with the PTX text just before launch.
func WithKernelHook(hook func(ptxSrc []byte)) Option {
	return func(c *config) { c.hook = hook }
}

// New creates a tracing context. Without WithDriver, the default
// driver is opened: the CUDA driver API when built with the "cuda"
// tag, otherwise an error.
//
// Example:
//
//	t, err := gotrace.New(gotrace.WithDevice(0))
//	defer t.Close()
func New(opts ...Option) (*Trace, error) {
	var cfg config
	for _, opt := range opts {
		opt(&cfg)
	}
	drv := cfg.drv
	if drv == nil {
		var err error
		if drv, err = defaultDriver(cfg.device); err != nil {
			return nil, err
		}
	}
	t, err := trace.New(trace.Config{
		Logger:     cfg.logger,
		Driver:     drv,
		GridDim:    cfg.grid,
		BlockDim:   cfg.block,
		KernelHook: cfg.hook,
	})
	if err != nil {
		return nil, err
	}
	return &Trace{t: t}, nil
}
