package wire

import (
	"fmt"

	"github.com/wippyai/capnp-layout/errors"
)

// StructRef locates a struct's sections in a segment. DataBit is an
// absolute bit address so elements of compacted lists are addressable as
// structs too.
type StructRef struct {
	DataBit  uint64
	DataBits uint64
	PtrWord  uint32
	PtrCount uint32
}

// HasPointer reports whether slot lies inside the pointer section.
func (r StructRef) HasPointer(slot uint32) bool {
	return slot < r.PtrCount
}

// Words is the size of the struct's sections in whole words.
func (r StructRef) Words() uint64 {
	return (r.DataBits+63)/64 + uint64(r.PtrCount)
}

// ListRef locates a list's elements in a segment.
type ListRef struct {
	Start    uint64
	Step     uint64
	DataBits uint64
	PtrCount uint32
	Count    uint32
	Size     ElementSize
}

// Element addresses element i as a struct.
func (l ListRef) Element(i uint32) StructRef {
	bit := l.Start + uint64(i)*l.Step
	return StructRef{
		DataBit:  bit,
		DataBits: l.DataBits,
		PtrWord:  uint32((bit + l.DataBits) / 64),
		PtrCount: l.PtrCount,
	}
}

// Words is the size of the list body in words, tag word included.
func (l ListRef) Words() uint64 {
	w := (uint64(l.Count)*l.Step + 63) / 64
	if l.Size == SizeComposite {
		w++
	}
	return w
}

func pointerError(at uint32, word uint64, format string, args ...any) error {
	return errors.InvalidPointer([]string{fmt.Sprintf("word %d", at)}, word, fmt.Sprintf(format, args...))
}

// target resolves a pointer offset and checks the object fits.
func (s *Segment) target(at uint32, offset int32, words uint64) (uint32, error) {
	t := int64(at) + 1 + int64(offset)
	if t < 0 || uint64(t)+words > uint64(s.words) {
		return 0, errors.OutOfBounds(errors.PhaseDecode, []string{fmt.Sprintf("word %d", at)}, uint64(max(t, 0)), uint64(s.words))
	}
	return uint32(t), nil
}

// ReadStructPointer follows the struct pointer at word at. It reports
// null pointers with ok == false.
func (s *Segment) ReadStructPointer(at uint32) (ref StructRef, ok bool, err error) {
	word, err := s.Word(at)
	if err != nil || word == 0 {
		return StructRef{}, false, err
	}
	switch Kind(word) {
	case KindStruct:
	case KindFar:
		return StructRef{}, false, errors.Unsupported(errors.PhaseDecode, "far pointers (multi-segment messages)")
	default:
		return StructRef{}, false, pointerError(at, word, "expected struct pointer, found %s", Kind(word))
	}
	offset, dw, pc := StructFields(word)
	t, err := s.target(at, offset, uint64(dw)+uint64(pc))
	if err != nil {
		return StructRef{}, false, err
	}
	return StructRef{
		DataBit:  uint64(t) * 64,
		DataBits: uint64(dw) * 64,
		PtrWord:  t + uint32(dw),
		PtrCount: uint32(pc),
	}, true, nil
}

// ReadListPointer follows the list pointer at word at. Composite lists
// are validated against their tag word.
func (s *Segment) ReadListPointer(at uint32) (ref ListRef, ok bool, err error) {
	word, err := s.Word(at)
	if err != nil || word == 0 {
		return ListRef{}, false, err
	}
	switch Kind(word) {
	case KindList:
	case KindFar:
		return ListRef{}, false, errors.Unsupported(errors.PhaseDecode, "far pointers (multi-segment messages)")
	default:
		return ListRef{}, false, pointerError(at, word, "expected list pointer, found %s", Kind(word))
	}
	offset, size, count := ListFields(word)

	if size != SizeComposite {
		ref = ListRef{Size: size, Count: count, DataBits: size.DataBits(), Step: size.DataBits()}
		if size == SizePointer {
			ref.PtrCount, ref.Step = 1, 64
		}
		t, err := s.target(at, offset, ref.Words())
		if err != nil {
			return ListRef{}, false, err
		}
		ref.Start = uint64(t) * 64
		return ref, true, nil
	}

	t, err := s.target(at, offset, uint64(count)+1)
	if err != nil {
		return ListRef{}, false, err
	}
	tag, err := s.Word(t)
	if err != nil {
		return ListRef{}, false, err
	}
	if Kind(tag) != KindStruct {
		return ListRef{}, false, pointerError(t, tag, "composite list tag is not a struct word")
	}
	n, dw, pc := StructFields(tag)
	if n < 0 {
		return ListRef{}, false, pointerError(t, tag, "negative composite element count")
	}
	stride := uint64(dw) + uint64(pc)
	if uint64(n)*stride > uint64(count) {
		return ListRef{}, false, pointerError(t, tag, "%d elements of %d words exceed %d list words", n, stride, count)
	}
	return ListRef{
		Size:     SizeComposite,
		Count:    uint32(n),
		Start:    uint64(t+1) * 64,
		Step:     stride * 64,
		DataBits: uint64(dw) * 64,
		PtrCount: uint32(pc),
	}, true, nil
}
