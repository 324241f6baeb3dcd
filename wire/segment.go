package wire

import (
	capnplayout "github.com/wippyai/capnp-layout"
	"github.com/wippyai/capnp-layout/errors"
)

// Segment is a window of whole words inside a Memory holding one message
// segment. Word 0 is the root pointer.
type Segment struct {
	mem   capnplayout.Memory
	base  uint32
	words uint32
}

// NewSegment views words words of mem starting at byte address base.
func NewSegment(mem capnplayout.Memory, base, words uint32) *Segment {
	return &Segment{mem: mem, base: base, words: words}
}

// SegmentOf views a heap byte slice. Trailing bytes short of a word are
// ignored.
func SegmentOf(b []byte) *Segment {
	return &Segment{mem: WrapBytes(b), words: uint32(len(b) / 8)}
}

func (s *Segment) Memory() capnplayout.Memory {
	return s.mem
}

// Start and End report the byte range of the segment.
func (s *Segment) Start() uint32 {
	return s.base
}

func (s *Segment) End() uint32 {
	return s.base + s.words*8
}

func (s *Segment) Words() uint32 {
	return s.words
}

func (s *Segment) checkWords(word, n uint64) error {
	if word+n > uint64(s.words) {
		return errors.OutOfBounds(errors.PhaseDecode, nil, word+n, uint64(s.words))
	}
	return nil
}

// Word reads word i.
func (s *Segment) Word(i uint32) (uint64, error) {
	if err := s.checkWords(uint64(i), 1); err != nil {
		return 0, err
	}
	return s.mem.ReadU64(s.base + i*8)
}

// ReadBytes reads n bytes starting at the first byte of word.
func (s *Segment) ReadBytes(word, n uint32) ([]byte, error) {
	if err := s.checkWords(uint64(word), (uint64(n)+7)/8); err != nil {
		return nil, err
	}
	return s.mem.Read(s.base+word*8, n)
}

// ReadBits reads width bits at absolute bit address bit. Widths above one
// are always naturally aligned.
func (s *Segment) ReadBits(bit uint64, width uint32) (uint64, error) {
	if width == 0 {
		return 0, nil
	}
	if err := s.checkWords(bit/64, 1); err != nil {
		return 0, err
	}
	addr := s.base + uint32(bit/8)
	switch width {
	case 1:
		b, err := s.mem.ReadU8(addr)
		return uint64(b>>(bit%8)) & 1, err
	case 8:
		v, err := s.mem.ReadU8(addr)
		return uint64(v), err
	case 16:
		v, err := s.mem.ReadU16(addr)
		return uint64(v), err
	case 32:
		v, err := s.mem.ReadU32(addr)
		return uint64(v), err
	}
	return s.mem.ReadU64(addr)
}
