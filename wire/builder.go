package wire

import (
	"fmt"

	"fortio.org/safecast"

	capnplayout "github.com/wippyai/capnp-layout"
	"github.com/wippyai/capnp-layout/errors"
)

// Builder grows a single message segment in a Memory. Every allocation
// must extend the segment contiguously; an allocator that places memory
// elsewhere would need a second segment, which is not supported.
type Builder struct {
	Segment
	alloc capnplayout.Allocator
	begun bool
}

// NewBuilder builds into a fresh heap buffer.
func NewBuilder() *Builder {
	buf := NewBuffer(256)
	return &Builder{Segment: Segment{mem: buf}, alloc: buf}
}

// NewBuilderIn builds into mem, taking space from alloc.
func NewBuilderIn(mem capnplayout.Memory, alloc capnplayout.Allocator) *Builder {
	return &Builder{Segment: Segment{mem: mem}, alloc: alloc}
}

// Allocate appends n zeroed words and returns the index of the first.
func (b *Builder) Allocate(n uint32) (uint32, error) {
	if n == 0 {
		return b.words, nil
	}
	bytes, err := safecast.Conv[uint32](uint64(n) * 8)
	if err != nil {
		return 0, errors.AllocationFailed(errors.PhaseEncode, n, err)
	}
	addr, err := b.alloc.Alloc(bytes, 8)
	if err != nil {
		return 0, errors.AllocationFailed(errors.PhaseEncode, bytes, err)
	}
	if !b.begun {
		b.base, b.begun = addr, true
	} else if addr != b.base+b.words*8 {
		b.alloc.Free(addr, bytes, 8)
		return 0, errors.Unsupported(errors.PhaseEncode,
			fmt.Sprintf("allocator returned %#x, segment ends at %#x; messages must be one contiguous segment", addr, b.base+b.words*8))
	}
	first := b.words
	b.words += n
	return first, nil
}

func (b *Builder) checkWrite(word, n uint64) error {
	if word+n > uint64(b.words) {
		return errors.OutOfBounds(errors.PhaseEncode, nil, word+n, uint64(b.words))
	}
	return nil
}

// SetWord writes word i.
func (b *Builder) SetWord(i uint32, v uint64) error {
	if err := b.checkWrite(uint64(i), 1); err != nil {
		return err
	}
	return b.mem.WriteU64(b.base+i*8, v)
}

// WriteBytes copies data to the first byte of word.
func (b *Builder) WriteBytes(word uint32, data []byte) error {
	if err := b.checkWrite(uint64(word), (uint64(len(data))+7)/8); err != nil {
		return err
	}
	return b.mem.Write(b.base+word*8, data)
}

// WriteBits stores the low width bits of v at absolute bit address bit.
func (b *Builder) WriteBits(bit uint64, width uint32, v uint64) error {
	if width == 0 {
		return nil
	}
	if err := b.checkWrite(bit/64, 1); err != nil {
		return err
	}
	addr := b.base + uint32(bit/8)
	switch width {
	case 1:
		cur, err := b.mem.ReadU8(addr)
		if err != nil {
			return err
		}
		mask := uint8(1) << (bit % 8)
		if v&1 != 0 {
			cur |= mask
		} else {
			cur &^= mask
		}
		return b.mem.WriteU8(addr, cur)
	case 8:
		return b.mem.WriteU8(addr, uint8(v))
	case 16:
		return b.mem.WriteU16(addr, uint16(v))
	case 32:
		return b.mem.WriteU32(addr, uint32(v))
	}
	return b.mem.WriteU64(addr, v)
}

// SetPointer writes at word at a pointer to an object at word target.
// encode turns the relative offset into the pointer word.
func (b *Builder) SetPointer(at, target uint32, encode func(offset int32) uint64) error {
	off, ok := RelativeOffset(at, target)
	if !ok {
		return errors.Overflow(errors.PhaseEncode, []string{fmt.Sprintf("word %d", at)}, int64(target)-int64(at)-1, "30-bit pointer offset")
	}
	return b.SetWord(at, encode(off))
}

// SegmentBytes returns a copy of the segment contents.
func (b *Builder) SegmentBytes() ([]byte, error) {
	data, err := b.mem.Read(b.base, b.words*8)
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), data...), nil
}

// Message returns the segment framed as a single-segment stream message.
func (b *Builder) Message() ([]byte, error) {
	seg, err := b.SegmentBytes()
	if err != nil {
		return nil, err
	}
	return Frame(seg)
}
