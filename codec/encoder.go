package codec

import (
	stderrors "errors"
	"fmt"
	"strconv"

	"fortio.org/safecast"
	"go.uber.org/zap"

	"github.com/wippyai/capnp-layout/catalog"
	"github.com/wippyai/capnp-layout/errors"
	"github.com/wippyai/capnp-layout/layout"
	"github.com/wippyai/capnp-layout/schema"
	"github.com/wippyai/capnp-layout/wire"
)

// Encoder turns value trees into single-segment messages. It holds no
// mutable state and is safe for concurrent use.
type Encoder struct {
	src  layout.StructSource
	opts Options
}

// NewEncoder returns an encoder that looks up nested struct layouts in
// src, typically the *layout.Planner that produced the root layout.
func NewEncoder(src layout.StructSource, opts Options) *Encoder {
	return &Encoder{src: src, opts: opts.withDefaults()}
}

// Encode writes v as the root struct of a new framed message.
func (e *Encoder) Encode(st *layout.Struct, v schema.Struct) ([]byte, error) {
	buf := getBuffer()
	defer putBuffer(buf)

	b := wire.NewBuilderIn(buf, buf)
	if err := e.EncodeInto(b, st, v); err != nil {
		return nil, err
	}
	msg, err := b.Message()
	if err != nil {
		return nil, err
	}
	e.opts.Logger.Debug("encoded message",
		zap.String("struct", st.Name),
		zap.Uint32("words", b.Words()))
	return msg, nil
}

// EncodeInto writes v as the root of the segment b is building. b must be
// empty: the root pointer is its first word.
func (e *Encoder) EncodeInto(b *wire.Builder, st *layout.Struct, v schema.Struct) error {
	root, err := b.Allocate(1)
	if err != nil {
		return err
	}
	w := e.writer(b)
	return w.structPointer(root, st, v, []string{st.Name}, 0)
}

func (e *Encoder) writer(b *wire.Builder) *writer {
	return &writer{
		src: e.src,
		b:   b,
		t:   wire.NewTraversal(e.opts.TraversalLimitWords, e.opts.MaxDepth),
		max: e.opts.MaxDepth,
	}
}

type writer struct {
	src layout.StructSource
	b   *wire.Builder
	t   *wire.Traversal
	max int
}

func (w *writer) structPointer(at uint32, st *layout.Struct, v schema.Struct, path []string, depth int) error {
	size := st.DataWords + st.PointerCount
	first, err := w.b.Allocate(size)
	if err != nil {
		return err
	}
	ref := wire.StructRef{
		DataBit:  uint64(first) * 64,
		DataBits: st.DataBits(),
		PtrWord:  first + st.DataWords,
		PtrCount: st.PointerCount,
	}
	if err := w.group(ref, st.Root, v, path, depth); err != nil {
		return err
	}
	if size == 0 {
		return w.b.SetWord(at, wire.StructPointer(-1, 0, 0))
	}
	return w.b.SetPointer(at, first, func(off int32) uint64 {
		return wire.StructPointer(off, uint16(st.DataWords), uint16(st.PointerCount))
	})
}

// group writes the members of g assigned in v. Unassigned members keep
// zero storage and so read back as their defaults.
func (w *writer) group(ref wire.StructRef, g *layout.Group, v schema.Struct, path []string, depth int) error {
	for _, fv := range v {
		if !hasMember(g, fv.Name) {
			return errors.FieldUnknown(errors.PhaseEncode, path, fv.Name)
		}
	}
	for _, m := range g.Members {
		val, ok := v.Get(m.Name)
		if !ok {
			continue
		}
		if err := w.member(ref, m, val, childPath(path, m.Name), depth); err != nil {
			return err
		}
	}
	if g.Union != nil {
		return w.union(ref, g.Union, v, path, depth)
	}
	return nil
}

func hasMember(g *layout.Group, name string) bool {
	for _, m := range g.Members {
		if m.Name == name {
			return true
		}
	}
	return g.Union != nil && g.Union.Lookup(name) != nil
}

func (w *writer) member(ref wire.StructRef, m *layout.Member, val schema.Value, path []string, depth int) error {
	switch m.Kind {
	case layout.MemberField:
		return w.field(ref, m.Field, val, path, depth)
	case layout.MemberGroup:
		sv, ok := val.(schema.Struct)
		if !ok {
			return errors.TypeMismatch(errors.PhaseEncode, path, describe(val), "group")
		}
		return w.group(ref, m.Group, sv, path, depth)
	default:
		sv, ok := val.(schema.Struct)
		if !ok {
			return errors.TypeMismatch(errors.PhaseEncode, path, describe(val), "union")
		}
		for _, fv := range sv {
			if m.Union.Lookup(fv.Name) == nil {
				return errors.FieldUnknown(errors.PhaseEncode, path, fv.Name)
			}
		}
		return w.union(ref, m.Union, sv, path, depth)
	}
}

// union writes the one member of u assigned in v and its tag. With none
// assigned the tag stays zero, selecting the first member at its default.
func (w *writer) union(ref wire.StructRef, u *layout.Union, v schema.Struct, path []string, depth int) error {
	var active *layout.Member
	for _, m := range u.Members {
		if !v.Has(m.Name) {
			continue
		}
		if active != nil {
			return errors.New(errors.PhaseEncode, errors.KindInvalidVariant).
				Path(path...).
				Detail("union members %q and %q are both set", active.Name, m.Name).
				Build()
		}
		active = m
	}
	if active == nil {
		return nil
	}
	if err := w.b.WriteBits(ref.DataBit+u.DiscriminantBitOffset(), 16, uint64(active.Discriminant)); err != nil {
		return err
	}
	val, _ := v.Get(active.Name)
	return w.member(ref, active, val, childPath(path, active.Name), depth)
}

func (w *writer) field(ref wire.StructRef, f *layout.Field, val schema.Value, path []string, depth int) error {
	switch {
	case f.IsVoid():
		if _, ok := val.(schema.Void); !ok {
			return errors.TypeMismatch(errors.PhaseEncode, path, describe(val), "Void")
		}
		return nil
	case f.IsPointer():
		// a null pointer reads as the default only when one was encoded
		if f.DefaultBytes != nil && schema.Equal(val, f.Default) {
			return nil
		}
		return w.pointer(ref.PtrWord+f.Slot(), f.Type, val, path, depth+1)
	}
	bits, err := scalarBits(f.Type, val, path)
	if err != nil {
		return err
	}
	return w.b.WriteBits(ref.DataBit+f.BitOffset(), f.BitWidth(), bits^f.DefaultBits)
}

func scalarBits(t *catalog.Type, val schema.Value, path []string) (uint64, error) {
	bits, err := catalog.ScalarBits(t, val)
	if err == nil {
		return bits, nil
	}
	var ce *catalog.ConvertError
	if stderrors.As(err, &ce) && ce.Overflow {
		return 0, errors.Overflow(errors.PhaseEncode, path, schema.Format(val), t.String())
	}
	return 0, errors.TypeMismatch(errors.PhaseEncode, path, describe(val), t.String())
}

func (w *writer) pointer(at uint32, t *catalog.Type, val schema.Value, path []string, depth int) error {
	if depth > w.max {
		return errors.New(errors.PhaseEncode, errors.KindLimitExceeded).
			Path(path...).
			Detail("nesting deeper than %d", w.max).
			Build()
	}
	switch t.Kind {
	case catalog.KindText:
		s, ok := val.(schema.Text)
		if !ok {
			return errors.TypeMismatch(errors.PhaseEncode, path, describe(val), "Text")
		}
		return w.bytes(at, append([]byte(s), 0), path)
	case catalog.KindData:
		d, ok := val.(schema.Data)
		if !ok {
			return errors.TypeMismatch(errors.PhaseEncode, path, describe(val), "Data")
		}
		return w.bytes(at, d, path)
	case catalog.KindStruct:
		sv, ok := val.(schema.Struct)
		if !ok {
			return errors.TypeMismatch(errors.PhaseEncode, path, describe(val), t.String())
		}
		st, err := w.src.Layout(t.Node)
		if err != nil {
			return err
		}
		return w.structPointer(at, st, sv, path, depth)
	case catalog.KindList:
		items, ok := val.(schema.List)
		if !ok {
			return errors.TypeMismatch(errors.PhaseEncode, path, describe(val), t.String())
		}
		return w.list(at, t.Elem, items, path, depth)
	case catalog.KindInterface:
		c, ok := val.(schema.Capability)
		if !ok {
			return errors.TypeMismatch(errors.PhaseEncode, path, describe(val), t.String())
		}
		return w.b.SetWord(at, wire.CapabilityPointer(uint32(c)))
	case catalog.KindAnyPointer:
		switch x := val.(type) {
		case schema.Capability:
			return w.b.SetWord(at, wire.CapabilityPointer(uint32(x)))
		case schema.RawPointer:
			if len(x.Message) == 0 {
				return w.b.SetWord(at, 0)
			}
			seg, err := wire.Unframe(x.Message)
			if err != nil {
				return err
			}
			return w.b.CopyPointer(at, wire.SegmentOf(seg), 0, w.t)
		}
		return errors.TypeMismatch(errors.PhaseEncode, path, describe(val), t.String())
	}
	return errors.TypeMismatch(errors.PhaseEncode, path, describe(val), t.String())
}

func (w *writer) bytes(at uint32, data []byte, path []string) error {
	n, err := listCount(len(data), path)
	if err != nil {
		return err
	}
	first, err := w.b.Allocate((n + 7) / 8)
	if err != nil {
		return err
	}
	if err := w.b.WriteBytes(first, data); err != nil {
		return err
	}
	return w.b.SetPointer(at, first, func(off int32) uint64 {
		return wire.ListPointer(off, wire.SizeByte, n)
	})
}

func listCount(n int, path []string) (uint32, error) {
	c, err := safecast.Conv[uint32](n)
	if err != nil || c > wire.MaxListCount {
		return 0, errors.Overflow(errors.PhaseEncode, path, n, "list element count")
	}
	return c, nil
}

func (w *writer) list(at uint32, elem *catalog.Type, items schema.List, path []string, depth int) error {
	size, err := layout.ChooseListStrategy(w.src, elem)
	if err != nil {
		return err
	}
	count, err := listCount(len(items), path)
	if err != nil {
		return err
	}
	if size == wire.SizeComposite {
		return w.compositeList(at, elem, items, count, path, depth)
	}

	ref := wire.ListRef{Size: size, Count: count, DataBits: size.DataBits(), Step: size.DataBits()}
	if size == wire.SizePointer {
		ref.PtrCount, ref.Step = 1, 64
	}
	first, err := w.b.Allocate(uint32(ref.Words()))
	if err != nil {
		return err
	}
	ref.Start = uint64(first) * 64

	var st *layout.Struct
	if elem.Kind == catalog.KindStruct {
		if st, err = w.src.Layout(elem.Node); err != nil {
			return err
		}
	}
	for i, item := range items {
		el := ref.Element(uint32(i))
		ipath := childPath(path, "["+strconv.Itoa(i)+"]")
		if err := w.element(el, elem, st, item, ipath, depth); err != nil {
			return err
		}
	}
	return w.b.SetPointer(at, first, func(off int32) uint64 {
		return wire.ListPointer(off, size, count)
	})
}

// element writes one item of a non-composite list. Struct elements are
// written through their layout, whose single field sits at offset zero of
// the element slot.
func (w *writer) element(el wire.StructRef, elem *catalog.Type, st *layout.Struct, item schema.Value, path []string, depth int) error {
	switch {
	case st != nil:
		sv, ok := item.(schema.Struct)
		if !ok {
			return errors.TypeMismatch(errors.PhaseEncode, path, describe(item), st.Name)
		}
		return w.group(el, st.Root, sv, path, depth)
	case elem.Kind == catalog.KindVoid:
		if _, ok := item.(schema.Void); !ok {
			return errors.TypeMismatch(errors.PhaseEncode, path, describe(item), "Void")
		}
		return nil
	case elem.IsPointer():
		return w.pointer(el.PtrWord, elem, item, path, depth+1)
	}
	bits, err := scalarBits(elem, item, path)
	if err != nil {
		return err
	}
	return w.b.WriteBits(el.DataBit, elem.Kind.BitWidth(), bits)
}

func (w *writer) compositeList(at uint32, elem *catalog.Type, items schema.List, count uint32, path []string, depth int) error {
	st, err := w.src.Layout(elem.Node)
	if err != nil {
		return err
	}
	stride := st.DataWords + st.PointerCount
	words, err := safecast.Conv[uint32](uint64(count) * uint64(stride))
	if err != nil || words > wire.MaxListCount {
		return errors.Overflow(errors.PhaseEncode, path, uint64(count)*uint64(stride), "composite list words")
	}
	tag, err := w.b.Allocate(1 + words)
	if err != nil {
		return err
	}
	if err := w.b.SetWord(tag, wire.StructPointer(int32(count), uint16(st.DataWords), uint16(st.PointerCount))); err != nil {
		return err
	}
	for i, item := range items {
		sv, ok := item.(schema.Struct)
		ipath := childPath(path, "["+strconv.Itoa(i)+"]")
		if !ok {
			return errors.TypeMismatch(errors.PhaseEncode, ipath, describe(item), st.Name)
		}
		first := tag + 1 + uint32(i)*stride
		el := wire.StructRef{
			DataBit:  uint64(first) * 64,
			DataBits: st.DataBits(),
			PtrWord:  first + st.DataWords,
			PtrCount: st.PointerCount,
		}
		if err := w.group(el, st.Root, sv, ipath, depth); err != nil {
			return err
		}
	}
	return w.b.SetPointer(at, tag, func(off int32) uint64 {
		return wire.ListPointer(off, wire.SizeComposite, words)
	})
}

func childPath(path []string, name string) []string {
	return append(path[:len(path):len(path)], name)
}

// describe names the shape of a value for mismatch errors.
func describe(v schema.Value) string {
	switch v.(type) {
	case nil:
		return "nothing"
	case schema.Void:
		return "Void"
	case schema.Bool:
		return "Bool"
	case schema.Int, schema.Uint:
		return "integer"
	case schema.Float:
		return "float"
	case schema.Text:
		return "Text"
	case schema.Data:
		return "Data"
	case schema.List:
		return "list"
	case schema.Enum:
		return "enumerant"
	case schema.Struct:
		return "struct"
	case schema.Capability:
		return "capability"
	case schema.RawPointer:
		return "raw pointer"
	}
	return fmt.Sprintf("%T", v)
}
