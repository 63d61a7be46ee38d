// Package ptxsim interprets the PTX subset emitted by the tracer. It
// implements the driver interface with a flat virtual device memory and
// a sequential thread interpreter, so that traces can be evaluated and
// verified on machines without a GPU. It is a test and demo vehicle,
// not a general PTX implementation.
package ptxsim

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/golangcuda/gotrace/internal/driver"
)

// Sim is a simulated device. The zero value is not usable; call New.
type Sim struct {
	out io.Writer
	mem *memory
}

var _ driver.Driver = (*Sim)(nil)

// New creates a simulated device. Kernel vprintf output goes to out;
// nil discards it.
func New(out io.Writer) *Sim {
	if out == nil {
		out = io.Discard
	}
	return &Sim{out: out, mem: newMemory()}
}

// MemAlloc allocates device memory.
func (s *Sim) MemAlloc(n int) (driver.Ptr, error) {
	if n <= 0 {
		return 0, fmt.Errorf("ptxsim: alloc of %d bytes", n)
	}
	return driver.Ptr(s.mem.alloc(n)), nil
}

// MemFree releases device memory. Freeing the null pointer is a no-op.
func (s *Sim) MemFree(p driver.Ptr) error {
	if p == 0 {
		return nil
	}
	return s.mem.free(uint64(p))
}

// MemcpyHtoD copies host bytes into simulated device memory.
func (s *Sim) MemcpyHtoD(dst driver.Ptr, src []byte) error {
	b, err := s.mem.slice(uint64(dst), len(src))
	if err != nil {
		return err
	}
	copy(b, src)
	return nil
}

// MemcpyDtoH copies simulated device memory to host bytes.
func (s *Sim) MemcpyDtoH(dst []byte, src driver.Ptr) error {
	b, err := s.mem.slice(uint64(src), len(dst))
	if err != nil {
		return err
	}
	copy(dst, b)
	return nil
}

// Launch parses the kernel and interprets gridX*blockX threads over it.
// All per-launch state (argument table, global arrays, local buffers)
// is released before returning.
func (s *Sim) Launch(ptxSrc []byte, kernel string, args []driver.Ptr, gridX, blockX, size int) error {
	p, err := parse(string(ptxSrc))
	if err != nil {
		return fmt.Errorf("ptxsim: %w", err)
	}
	if p.entry != kernel {
		return fmt.Errorf("ptxsim: kernel %q not found (entry is %q)", kernel, p.entry)
	}

	var cleanup []uint64
	defer func() {
		for _, base := range cleanup {
			_ = s.mem.free(base)
		}
	}()

	var tableAddr uint64
	if len(args) > 0 {
		table := make([]byte, 8*len(args))
		for i, a := range args {
			binary.LittleEndian.PutUint64(table[8*i:], uint64(a))
		}
		tableAddr = s.mem.alloc(len(table))
		cleanup = append(cleanup, tableAddr)
		b, _ := s.mem.slice(tableAddr, len(table))
		copy(b, table)
	}

	syms := make(map[string]uint64)
	for name, data := range p.globals {
		base := s.mem.alloc(len(data))
		cleanup = append(cleanup, base)
		b, _ := s.mem.slice(base, len(data))
		copy(b, data)
		syms[name] = base
	}
	for name, sz := range p.locals {
		base := s.mem.alloc(sz)
		cleanup = append(cleanup, base)
		syms[name] = base
	}

	for tid := 0; tid < gridX*blockX; tid++ {
		for name, sz := range p.locals {
			b, _ := s.mem.slice(syms[name], sz)
			clear(b)
		}
		th := &thread{
			prog: p,
			mem:  s.mem,
			out:  s.out,
			syms: syms,
			regs: make(map[string]uint64),
			params: map[string]uint64{
				"ptr":  tableAddr,
				"size": uint64(uint32(size)),
			},
			tid:    uint64(tid % blockX),
			ctaid:  uint64(tid / blockX),
			ntid:   uint64(blockX),
			nctaid: uint64(gridX),
		}
		if err := th.run(); err != nil {
			return fmt.Errorf("ptxsim: thread %d: %w", tid, err)
		}
	}
	return nil
}

// Close releases all simulated memory.
func (s *Sim) Close() error {
	s.mem = newMemory()
	return nil
}

// memory is a flat bump-allocated address space. Allocations never
// overlap; addresses resolve to the block containing them.
type memory struct {
	next   uint64
	blocks map[uint64][]byte
}

func newMemory() *memory {
	return &memory{next: 0x10000, blocks: make(map[uint64][]byte)}
}

func (m *memory) alloc(n int) uint64 {
	base := m.next
	m.blocks[base] = make([]byte, n)
	m.next += (uint64(n) + 0xff) &^ 0xff
	if m.next == base { // zero-sized allocation still needs a unique base
		m.next += 0x100
	}
	return base
}

func (m *memory) free(base uint64) error {
	if _, ok := m.blocks[base]; !ok {
		return fmt.Errorf("ptxsim: free of unknown pointer %#x", base)
	}
	delete(m.blocks, base)
	return nil
}

// slice resolves [addr, addr+n) to the storage of the containing block.
func (m *memory) slice(addr uint64, n int) ([]byte, error) {
	for base, b := range m.blocks {
		if addr >= base && addr+uint64(n) <= base+uint64(len(b)) {
			off := addr - base
			return b[off : off+uint64(n)], nil
		}
	}
	return nil, fmt.Errorf("ptxsim: invalid device access at %#x (%d bytes)", addr, n)
}
