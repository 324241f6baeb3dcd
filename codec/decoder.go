package codec

import (
	"strconv"

	"github.com/wippyai/capnp-layout/catalog"
	"github.com/wippyai/capnp-layout/errors"
	"github.com/wippyai/capnp-layout/layout"
	"github.com/wippyai/capnp-layout/schema"
	"github.com/wippyai/capnp-layout/wire"
)

// Decoder reads value trees out of single-segment messages. It holds no
// mutable state and is safe for concurrent use.
type Decoder struct {
	src  layout.StructSource
	opts Options
}

func NewDecoder(src layout.StructSource, opts Options) *Decoder {
	return &Decoder{src: src, opts: opts.withDefaults()}
}

// Decode reads the root struct of a framed message.
func (d *Decoder) Decode(st *layout.Struct, msg []byte) (schema.Struct, error) {
	seg, err := wire.Unframe(msg)
	if err != nil {
		return nil, err
	}
	return d.DecodeSegment(st, wire.SegmentOf(seg))
}

// DecodeSegment reads the root struct of seg, which may live in any
// Memory.
func (d *Decoder) DecodeSegment(st *layout.Struct, seg *wire.Segment) (schema.Struct, error) {
	if seg.Words() == 0 {
		return nil, errors.Truncated(errors.PhaseDecode, 8, 0)
	}
	r := &reader{
		d:   d,
		seg: seg,
		t:   wire.NewTraversal(d.opts.TraversalLimitWords, d.opts.MaxDepth),
	}
	return r.structAt(0, st, []string{st.Name}, 0)
}

type reader struct {
	d   *Decoder
	seg *wire.Segment
	t   *wire.Traversal
}

// on returns a reader over another segment sharing this one's budget.
func (r *reader) on(seg *wire.Segment) *reader {
	return &reader{d: r.d, seg: seg, t: r.t}
}

func (r *reader) structAt(at uint32, st *layout.Struct, path []string, depth int) (schema.Struct, error) {
	ref, ok, err := r.seg.ReadStructPointer(at)
	if err != nil {
		return nil, withPath(err, path)
	}
	if !ok {
		return r.group(wire.StructRef{}, st.Root, path, depth)
	}
	if err := r.t.Charge(ref.Words()); err != nil {
		return nil, err
	}
	return r.group(ref, st.Root, path, depth)
}

// group reads every member of g. Only the active member of a union is
// present in the result.
func (r *reader) group(ref wire.StructRef, g *layout.Group, path []string, depth int) (schema.Struct, error) {
	out := make(schema.Struct, 0, len(g.Members)+1)
	for _, m := range g.Members {
		v, ok, err := r.member(ref, m, childPath(path, m.Name), depth)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, schema.FieldValue{Name: m.Name, Value: v})
		}
	}
	if g.Union != nil {
		fv, ok, err := r.union(ref, g.Union, path, depth)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, fv)
		}
	}
	return out, nil
}

func (r *reader) member(ref wire.StructRef, m *layout.Member, path []string, depth int) (schema.Value, bool, error) {
	switch m.Kind {
	case layout.MemberField:
		return r.field(ref, m.Field, path, depth)
	case layout.MemberGroup:
		v, err := r.group(ref, m.Group, path, depth)
		return v, err == nil, err
	default:
		fv, ok, err := r.union(ref, m.Union, path, depth)
		if err != nil || !ok {
			return nil, false, err
		}
		return schema.Struct{fv}, true, nil
	}
}

func (r *reader) union(ref wire.StructRef, u *layout.Union, path []string, depth int) (schema.FieldValue, bool, error) {
	tag, err := r.bits(ref, u.DiscriminantBitOffset(), 16)
	if err != nil {
		return schema.FieldValue{}, false, err
	}
	m := u.Member(uint16(tag))
	if m == nil {
		return schema.FieldValue{}, false, errors.InvalidDiscriminant(errors.PhaseDecode, path, uint16(tag), len(u.Members))
	}
	v, ok, err := r.member(ref, m, childPath(path, m.Name), depth)
	if err != nil || !ok {
		return schema.FieldValue{}, false, err
	}
	return schema.FieldValue{Name: m.Name, Value: v}, true, nil
}

// bits reads a data section field. Fields past the end of the section
// were added after the writer's schema and read as zero.
func (r *reader) bits(ref wire.StructRef, offset uint64, width uint32) (uint64, error) {
	if offset+uint64(width) > ref.DataBits {
		return 0, nil
	}
	return r.seg.ReadBits(ref.DataBit+offset, width)
}

// field reports false for a null struct or interface field without a
// default, which has no value.
func (r *reader) field(ref wire.StructRef, f *layout.Field, path []string, depth int) (schema.Value, bool, error) {
	switch {
	case f.IsVoid():
		return schema.Void{}, true, nil
	case f.IsPointer():
		if !ref.HasPointer(f.Slot()) {
			return r.absent(f, path, depth)
		}
		at := ref.PtrWord + f.Slot()
		word, err := r.seg.Word(at)
		if err != nil {
			return nil, false, withPath(err, path)
		}
		if word == 0 {
			return r.absent(f, path, depth)
		}
		v, err := r.pointer(at, f.Type, path, depth+1)
		return v, err == nil, err
	}
	stored, err := r.bits(ref, f.BitOffset(), f.BitWidth())
	if err != nil {
		return nil, false, withPath(err, path)
	}
	return catalog.ScalarValue(f.Type, stored^f.DefaultBits), true, nil
}

// absent produces the value of a null pointer field: its default when it
// has one, otherwise the empty value of its type. Structs and capabilities
// have no empty value.
func (r *reader) absent(f *layout.Field, path []string, depth int) (schema.Value, bool, error) {
	if f.DefaultBytes != nil {
		seg, err := wire.Unframe(f.DefaultBytes)
		if err != nil {
			return nil, false, err
		}
		v, err := r.on(wire.SegmentOf(seg)).pointer(0, f.Type, path, depth+1)
		return v, err == nil, err
	}
	if f.Type.Kind == catalog.KindInterface || f.Type.Kind == catalog.KindStruct {
		return nil, false, nil
	}
	v, err := r.empty(f.Type, path)
	return v, err == nil, err
}

func (r *reader) empty(t *catalog.Type, path []string) (schema.Value, error) {
	switch t.Kind {
	case catalog.KindText:
		return schema.Text(""), nil
	case catalog.KindData:
		return schema.Data{}, nil
	case catalog.KindList:
		return schema.List{}, nil
	case catalog.KindAnyPointer:
		return schema.RawPointer{}, nil
	case catalog.KindInterface:
		// a null capability has no value
		return nil, nil
	}
	return nil, errors.TypeMismatch(errors.PhaseDecode, path, "null pointer", t.String())
}

func (r *reader) pointer(at uint32, t *catalog.Type, path []string, depth int) (schema.Value, error) {
	if err := r.t.Enter(depth); err != nil {
		return nil, withPath(err, path)
	}
	word, err := r.seg.Word(at)
	if err != nil {
		return nil, withPath(err, path)
	}
	if word == 0 {
		return r.empty(t, path)
	}

	switch t.Kind {
	case catalog.KindText:
		data, err := r.byteList(at, path)
		if err != nil {
			return nil, err
		}
		if len(data) == 0 || data[len(data)-1] != 0 {
			return nil, errors.InvalidPointer(path, word, "text is not NUL terminated")
		}
		return schema.Text(data[:len(data)-1]), nil
	case catalog.KindData:
		data, err := r.byteList(at, path)
		if err != nil {
			return nil, err
		}
		return schema.Data(append([]byte{}, data...)), nil
	case catalog.KindStruct:
		st, err := r.d.src.Layout(t.Node)
		if err != nil {
			return nil, err
		}
		return r.structAt(at, st, path, depth)
	case catalog.KindList:
		return r.list(at, t.Elem, path, depth)
	case catalog.KindInterface:
		if !wire.IsCapability(word) {
			return nil, errors.InvalidPointer(path, word, "expected capability pointer")
		}
		return schema.Capability(wire.CapabilityIndex(word)), nil
	case catalog.KindAnyPointer:
		if wire.IsCapability(word) {
			return schema.Capability(wire.CapabilityIndex(word)), nil
		}
		return r.raw(at)
	}
	return nil, errors.TypeMismatch(errors.PhaseDecode, path, "pointer", t.String())
}

// raw copies the object at word at into a standalone message.
func (r *reader) raw(at uint32) (schema.Value, error) {
	b := wire.NewBuilder()
	root, err := b.Allocate(1)
	if err != nil {
		return nil, err
	}
	if err := b.CopyPointer(root, r.seg, at, r.t); err != nil {
		return nil, err
	}
	msg, err := b.Message()
	if err != nil {
		return nil, err
	}
	return schema.RawPointer{Message: msg}, nil
}

func (r *reader) byteList(at uint32, path []string) ([]byte, error) {
	ref, _, err := r.seg.ReadListPointer(at)
	if err != nil {
		return nil, withPath(err, path)
	}
	if ref.Size != wire.SizeByte {
		return nil, errors.TypeMismatch(errors.PhaseDecode, path, ref.Size.String()+" list", "byte list")
	}
	if err := r.t.Charge(ref.Words()); err != nil {
		return nil, err
	}
	return r.seg.ReadBytes(uint32(ref.Start/64), ref.Count)
}

// list reads a list of elem. Struct lists accept any element encoding, so
// compacted and composite lists of the same values decode alike.
func (r *reader) list(at uint32, elem *catalog.Type, path []string, depth int) (schema.Value, error) {
	ref, _, err := r.seg.ReadListPointer(at)
	if err != nil {
		return nil, withPath(err, path)
	}
	words := ref.Words()
	if ref.Step == 0 {
		words = max(words, uint64(ref.Count))
	}
	if err := r.t.Charge(words); err != nil {
		return nil, err
	}

	var st *layout.Struct
	switch {
	case elem.Kind == catalog.KindStruct:
		if st, err = r.d.src.Layout(elem.Node); err != nil {
			return nil, err
		}
	case elem.Kind == catalog.KindVoid:
	case ref.Size == wire.SizeComposite:
		if elem.IsPointer() && ref.PtrCount == 0 {
			return nil, errors.TypeMismatch(errors.PhaseDecode, path, "struct list without pointers", "list of "+elem.String())
		}
	default:
		want, _ := layout.ChooseListStrategy(r.d.src, elem)
		if ref.Size != want {
			return nil, errors.TypeMismatch(errors.PhaseDecode, path, ref.Size.String()+" list", "list of "+elem.String())
		}
	}

	out := make(schema.List, 0, ref.Count)
	for i := uint32(0); i < ref.Count; i++ {
		el := ref.Element(i)
		ipath := childPath(path, "["+strconv.Itoa(int(i))+"]")
		var v schema.Value
		switch {
		case st != nil:
			v, err = r.group(el, st.Root, ipath, depth)
		case elem.Kind == catalog.KindVoid:
			v = schema.Void{}
		case elem.IsPointer():
			v, err = r.pointer(el.PtrWord, elem, ipath, depth+1)
		default:
			var stored uint64
			stored, err = r.bits(el, 0, elem.Kind.BitWidth())
			v = catalog.ScalarValue(elem, stored)
		}
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// withPath attaches path to wire errors, which know only word indexes.
func withPath(err error, path []string) error {
	if e, ok := err.(*errors.Error); ok && len(path) > 0 {
		c := *e
		c.Path = append(append([]string{}, path...), e.Path...)
		return &c
	}
	return err
}

// Which names the active member of the unnamed union of st in a decoded
// or to-be-encoded value.
func Which(st *layout.Struct, v schema.Struct) (string, bool) {
	if st.Root.Union == nil {
		return "", false
	}
	m, ok := st.Root.Union.Which(v)
	if !ok {
		return "", false
	}
	return m.Name, true
}
