package wire

import (
	"encoding/binary"
	"fmt"
)

// Buffer is a heap Memory with a bump Allocator. Allocations append to
// the end of the buffer, so successive allocations are contiguous.
type Buffer struct {
	data []byte
}

// NewBuffer returns an empty buffer with room for capacity bytes.
func NewBuffer(capacity int) *Buffer {
	return &Buffer{data: make([]byte, 0, capacity)}
}

// WrapBytes exposes b as a Memory without copying.
func WrapBytes(b []byte) *Buffer {
	return &Buffer{data: b}
}

// Bytes returns the buffer contents. The slice aliases the buffer.
func (b *Buffer) Bytes() []byte {
	return b.data
}

func (b *Buffer) Len() uint32 {
	return uint32(len(b.data))
}

func (b *Buffer) check(offset, length uint32) error {
	if uint64(offset)+uint64(length) > uint64(len(b.data)) {
		return fmt.Errorf("buffer access out of bounds: offset=%d, length=%d, size=%d", offset, length, len(b.data))
	}
	return nil
}

func (b *Buffer) Read(offset uint32, length uint32) ([]byte, error) {
	if err := b.check(offset, length); err != nil {
		return nil, err
	}
	return b.data[offset : offset+length], nil
}

func (b *Buffer) Write(offset uint32, data []byte) error {
	if err := b.check(offset, uint32(len(data))); err != nil {
		return err
	}
	copy(b.data[offset:], data)
	return nil
}

func (b *Buffer) ReadU8(offset uint32) (uint8, error) {
	if err := b.check(offset, 1); err != nil {
		return 0, err
	}
	return b.data[offset], nil
}

func (b *Buffer) ReadU16(offset uint32) (uint16, error) {
	if err := b.check(offset, 2); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b.data[offset:]), nil
}

func (b *Buffer) ReadU32(offset uint32) (uint32, error) {
	if err := b.check(offset, 4); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b.data[offset:]), nil
}

func (b *Buffer) ReadU64(offset uint32) (uint64, error) {
	if err := b.check(offset, 8); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b.data[offset:]), nil
}

func (b *Buffer) WriteU8(offset uint32, value uint8) error {
	if err := b.check(offset, 1); err != nil {
		return err
	}
	b.data[offset] = value
	return nil
}

func (b *Buffer) WriteU16(offset uint32, value uint16) error {
	if err := b.check(offset, 2); err != nil {
		return err
	}
	binary.LittleEndian.PutUint16(b.data[offset:], value)
	return nil
}

func (b *Buffer) WriteU32(offset uint32, value uint32) error {
	if err := b.check(offset, 4); err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(b.data[offset:], value)
	return nil
}

func (b *Buffer) WriteU64(offset uint32, value uint64) error {
	if err := b.check(offset, 8); err != nil {
		return err
	}
	binary.LittleEndian.PutUint64(b.data[offset:], value)
	return nil
}

// Alloc appends size zeroed bytes at the next multiple of align.
func (b *Buffer) Alloc(size, align uint32) (uint32, error) {
	if align == 0 {
		align = 1
	}
	old := len(b.data)
	start := (uint64(old) + uint64(align) - 1) / uint64(align) * uint64(align)
	end := start + uint64(size)
	if end > 1<<32-1 {
		return 0, fmt.Errorf("buffer allocation of %d bytes exceeds 4GiB", size)
	}
	if end > uint64(cap(b.data)) {
		grown := make([]byte, old, max(end, uint64(cap(b.data))*2))
		copy(grown, b.data)
		b.data = grown
	}
	b.data = b.data[:end]
	clear(b.data[old:end])
	return uint32(start), nil
}

// Free is a no-op; buffers are released as a whole.
func (b *Buffer) Free(ptr, size, align uint32) {}

// Reset empties the buffer, keeping its capacity.
func (b *Buffer) Reset() {
	b.data = b.data[:0]
}
