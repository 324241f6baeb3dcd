package wire

import (
	"github.com/wippyai/capnp-layout/errors"
)

// Traversal bounds the work a reader does on untrusted input: the words
// it may visit and the depth of pointers it may follow.
type Traversal struct {
	remaining uint64
	maxDepth  int
}

func NewTraversal(words uint64, maxDepth int) *Traversal {
	return &Traversal{remaining: words, maxDepth: maxDepth}
}

// Charge spends words of the budget. Zero-sized objects still cost a word
// so a list of empty structs cannot amplify.
func (t *Traversal) Charge(words uint64) error {
	words = max(words, 1)
	if words > t.remaining {
		return errors.New(errors.PhaseDecode, errors.KindLimitExceeded).
			Detail("traversal limit exceeded").
			Build()
	}
	t.remaining -= words
	return nil
}

// Enter checks that following one more pointer stays within depth.
func (t *Traversal) Enter(depth int) error {
	if depth > t.maxDepth {
		return errors.New(errors.PhaseDecode, errors.KindLimitExceeded).
			Detail("nesting deeper than %d", t.maxDepth).
			Build()
	}
	return nil
}

// CopyPointer deep-copies the object referenced by the pointer at word src
// of from into b, and writes a pointer to the copy at word dst of b.
// Capability pointers are copied verbatim.
func (b *Builder) CopyPointer(dst uint32, from *Segment, src uint32, t *Traversal) error {
	return b.copyPointer(dst, from, src, t, 0)
}

func (b *Builder) copyPointer(dst uint32, from *Segment, src uint32, t *Traversal, depth int) error {
	if err := t.Enter(depth); err != nil {
		return err
	}
	word, err := from.Word(src)
	if err != nil {
		return err
	}
	switch {
	case word == 0:
		return b.SetWord(dst, 0)
	case Kind(word) == KindStruct:
		return b.copyStruct(dst, from, src, t, depth)
	case Kind(word) == KindList:
		return b.copyList(dst, from, src, t, depth)
	case IsCapability(word):
		return b.SetWord(dst, word)
	case Kind(word) == KindFar:
		return errors.Unsupported(errors.PhaseDecode, "far pointers (multi-segment messages)")
	}
	return pointerError(src, word, "unknown pointer kind")
}

func (b *Builder) copyStruct(dst uint32, from *Segment, src uint32, t *Traversal, depth int) error {
	ref, _, err := from.ReadStructPointer(src)
	if err != nil {
		return err
	}
	if err := t.Charge(ref.Words()); err != nil {
		return err
	}
	dw, pc := uint32(ref.DataBits/64), ref.PtrCount
	at, err := b.Allocate(dw + pc)
	if err != nil {
		return err
	}
	if err := b.copyStructBody(at, from, ref, t, depth); err != nil {
		return err
	}
	if dw+pc == 0 {
		return b.SetWord(dst, StructPointer(-1, 0, 0))
	}
	return b.SetPointer(dst, at, func(off int32) uint64 {
		return StructPointer(off, uint16(dw), uint16(pc))
	})
}

// copyStructBody copies a whole-word struct whose sections start at word
// at of b.
func (b *Builder) copyStructBody(at uint32, from *Segment, ref StructRef, t *Traversal, depth int) error {
	dw := uint32(ref.DataBits / 64)
	if dw > 0 {
		data, err := from.ReadBytes(uint32(ref.DataBit/64), dw*8)
		if err != nil {
			return err
		}
		if err := b.WriteBytes(at, data); err != nil {
			return err
		}
	}
	for i := uint32(0); i < ref.PtrCount; i++ {
		if err := b.copyPointer(at+dw+i, from, ref.PtrWord+i, t, depth+1); err != nil {
			return err
		}
	}
	return nil
}

func (b *Builder) copyList(dst uint32, from *Segment, src uint32, t *Traversal, depth int) error {
	ref, _, err := from.ReadListPointer(src)
	if err != nil {
		return err
	}
	if err := t.Charge(ref.Words()); err != nil {
		return err
	}
	if ref.Size == SizeComposite {
		return b.copyComposite(dst, from, ref, t, depth)
	}

	words := uint32(ref.Words())
	at, err := b.Allocate(words)
	if err != nil {
		return err
	}
	if ref.Size == SizePointer {
		for i := uint32(0); i < ref.Count; i++ {
			if err := b.copyPointer(at+i, from, uint32(ref.Start/64)+i, t, depth+1); err != nil {
				return err
			}
		}
	} else if words > 0 {
		data, err := from.ReadBytes(uint32(ref.Start/64), words*8)
		if err != nil {
			return err
		}
		if err := b.WriteBytes(at, data); err != nil {
			return err
		}
	}
	return b.SetPointer(dst, at, func(off int32) uint64 {
		return ListPointer(off, ref.Size, ref.Count)
	})
}

func (b *Builder) copyComposite(dst uint32, from *Segment, ref ListRef, t *Traversal, depth int) error {
	dw, pc := uint32(ref.DataBits/64), ref.PtrCount
	stride := dw + pc
	body := ref.Count * stride
	at, err := b.Allocate(1 + body)
	if err != nil {
		return err
	}
	if err := b.SetWord(at, StructPointer(int32(ref.Count), uint16(dw), uint16(pc))); err != nil {
		return err
	}
	for i := uint32(0); i < ref.Count; i++ {
		if err := b.copyStructBody(at+1+i*stride, from, ref.Element(i), t, depth); err != nil {
			return err
		}
	}
	return b.SetPointer(dst, at, func(off int32) uint64 {
		return ListPointer(off, SizeComposite, body)
	})
}
