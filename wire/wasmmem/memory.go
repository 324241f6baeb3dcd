// Package wasmmem places message segments in wazero guest memory.
package wasmmem

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero/api"

	capnplayout "github.com/wippyai/capnp-layout"
)

const pageSize = 65536

// Wrap adapts a wazero api.Memory to capnplayout.Memory.
func Wrap(mem api.Memory) capnplayout.Memory {
	if mem == nil {
		return nil
	}
	return &Memory{Mem: mem}
}

// Memory adapts wazero api.Memory to the capnplayout.Memory interface.
type Memory struct {
	Mem api.Memory
}

func (m *Memory) Read(offset uint32, length uint32) ([]byte, error) {
	data, ok := m.Mem.Read(offset, length)
	if !ok {
		return nil, fmt.Errorf("guest memory read out of bounds: offset=%d, length=%d", offset, length)
	}
	return data, nil
}

func (m *Memory) Write(offset uint32, data []byte) error {
	if !m.Mem.Write(offset, data) {
		return fmt.Errorf("guest memory write out of bounds: offset=%d, length=%d", offset, len(data))
	}
	return nil
}

func (m *Memory) ReadU8(offset uint32) (uint8, error) {
	v, ok := m.Mem.ReadByte(offset)
	if !ok {
		return 0, fmt.Errorf("guest memory read out of bounds: offset=%d", offset)
	}
	return v, nil
}

func (m *Memory) ReadU16(offset uint32) (uint16, error) {
	v, ok := m.Mem.ReadUint16Le(offset)
	if !ok {
		return 0, fmt.Errorf("guest memory read out of bounds: offset=%d", offset)
	}
	return v, nil
}

func (m *Memory) ReadU32(offset uint32) (uint32, error) {
	v, ok := m.Mem.ReadUint32Le(offset)
	if !ok {
		return 0, fmt.Errorf("guest memory read out of bounds: offset=%d", offset)
	}
	return v, nil
}

func (m *Memory) ReadU64(offset uint32) (uint64, error) {
	v, ok := m.Mem.ReadUint64Le(offset)
	if !ok {
		return 0, fmt.Errorf("guest memory read out of bounds: offset=%d", offset)
	}
	return v, nil
}

func (m *Memory) WriteU8(offset uint32, value uint8) error {
	if !m.Mem.WriteByte(offset, value) {
		return fmt.Errorf("guest memory write out of bounds: offset=%d", offset)
	}
	return nil
}

func (m *Memory) WriteU16(offset uint32, value uint16) error {
	if !m.Mem.WriteUint16Le(offset, value) {
		return fmt.Errorf("guest memory write out of bounds: offset=%d", offset)
	}
	return nil
}

func (m *Memory) WriteU32(offset uint32, value uint32) error {
	if !m.Mem.WriteUint32Le(offset, value) {
		return fmt.Errorf("guest memory write out of bounds: offset=%d", offset)
	}
	return nil
}

func (m *Memory) WriteU64(offset uint32, value uint64) error {
	if !m.Mem.WriteUint64Le(offset, value) {
		return fmt.Errorf("guest memory write out of bounds: offset=%d", offset)
	}
	return nil
}

// Arena is a bump allocator over a region of guest memory starting at
// Base. It grows the memory by whole pages when the region runs out, and
// zeroes what it hands out, so a Builder can use it directly.
type Arena struct {
	Memory
	next uint32
}

// NewArena allocates from base upward.
func NewArena(mem api.Memory, base uint32) *Arena {
	return &Arena{Memory: Memory{Mem: mem}, next: base}
}

// Next is the address the following allocation starts from.
func (a *Arena) Next() uint32 {
	return a.next
}

func (a *Arena) Alloc(size, align uint32) (uint32, error) {
	if align == 0 {
		align = 1
	}
	start := (uint64(a.next) + uint64(align) - 1) / uint64(align) * uint64(align)
	end := start + uint64(size)
	if end > 1<<32-1 {
		return 0, fmt.Errorf("arena allocation of %d bytes exceeds the 32-bit address space", size)
	}
	if have := uint64(a.Mem.Size()); end > have {
		pages := (end - have + pageSize - 1) / pageSize
		if _, ok := a.Mem.Grow(uint32(pages)); !ok {
			return 0, fmt.Errorf("guest memory cannot grow by %d pages", pages)
		}
	}
	if size > 0 {
		if !a.Mem.Write(uint32(start), make([]byte, size)) {
			return 0, fmt.Errorf("guest memory write out of bounds: offset=%d, length=%d", start, size)
		}
	}
	a.next = uint32(end)
	return uint32(start), nil
}

// Free releases nothing; reset the arena by creating a new one.
func (a *Arena) Free(ptr, size, align uint32) {}

// GuestAllocator calls a guest's cabi_realloc export and zeroes the block
// it returns, since guest heaps hand back whatever they held before.
// Guest allocators do not promise contiguous blocks, so a Builder over one
// fails as soon as the guest places a block elsewhere.
type GuestAllocator struct {
	Ctx context.Context
	Mem api.Memory
	Fn  api.Function
}

// WrapAllocator wraps a guest realloc function allocating from mem.
func WrapAllocator(ctx context.Context, mem api.Memory, fn api.Function) capnplayout.Allocator {
	if mem == nil || fn == nil {
		return nil
	}
	return &GuestAllocator{Ctx: ctx, Mem: mem, Fn: fn}
}

func (a *GuestAllocator) Alloc(size, align uint32) (uint32, error) {
	results, err := a.Fn.Call(a.Ctx, 0, 0, uint64(align), uint64(size))
	if err != nil {
		return 0, fmt.Errorf("guest allocation failed: %w", err)
	}
	if len(results) == 0 {
		return 0, fmt.Errorf("guest allocation returned no result")
	}
	ptr := uint32(results[0])
	if size > 0 && !a.Mem.Write(ptr, make([]byte, size)) {
		return 0, fmt.Errorf("guest allocation out of bounds: offset=%d, length=%d", ptr, size)
	}
	return ptr, nil
}

func (a *GuestAllocator) Free(ptr, size, align uint32) {
	_, _ = a.Fn.Call(a.Ctx, uint64(ptr), uint64(size), uint64(align), 0)
}
