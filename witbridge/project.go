package witbridge

import (
	"sort"
	"strings"
	"unicode"

	"go.bytecodealliance.org/wit"

	"github.com/wippyai/capnp-layout/catalog"
	"github.com/wippyai/capnp-layout/errors"
	"github.com/wippyai/capnp-layout/layout"
	"github.com/wippyai/capnp-layout/schema"
)

// WhichField names the record field that carries a scope's unnamed union.
const WhichField = "which"

// Info is the canonical ABI size and alignment of a projected struct,
// with the byte offset of each top-level record field.
type Info struct {
	FieldOffs map[string]uint32
	Size      uint32
	Align     uint32
}

// projected is a WIT type together with its canonical ABI footprint.
type projected struct {
	typ  wit.Type
	info Info
}

// Projector maps planned structs to WIT types and sizes them in the same
// walk. Results are cached per declaration, so a struct used in many
// places projects to one TypeDef. A Projector is not safe for concurrent
// use.
type Projector struct {
	src    layout.StructSource
	types  map[*schema.Node]projected
	enums  map[*schema.Node]projected
	active map[*schema.Node]bool
}

func NewProjector(src layout.StructSource) *Projector {
	return &Projector{
		src:    src,
		types:  make(map[*schema.Node]projected),
		enums:  make(map[*schema.Node]projected),
		active: make(map[*schema.Node]bool),
	}
}

// Struct projects st to a record. Fields follow ordinal order, named
// unions become variants and an unnamed union becomes a trailing
// "which" variant field. Void fields carry no data and are dropped.
// WIT types cannot be recursive, so a struct that reaches itself fails.
func (p *Projector) Struct(st *layout.Struct) (*wit.TypeDef, error) {
	pr, err := p.structOf(st)
	if err != nil {
		return nil, err
	}
	return pr.typ.(*wit.TypeDef), nil
}

// SizeOf projects st and returns its canonical ABI layout.
func SizeOf(p *Projector, st *layout.Struct) (Info, error) {
	pr, err := p.structOf(st)
	if err != nil {
		return Info{}, err
	}
	return pr.info, nil
}

func (p *Projector) structOf(st *layout.Struct) (projected, error) {
	if pr, ok := p.types[st.Node]; ok {
		return pr, nil
	}
	if p.active[st.Node] {
		return projected{}, errors.Unsupported(errors.PhasePlan, "recursive struct "+st.Name+" has no WIT projection")
	}
	p.active[st.Node] = true
	defer delete(p.active, st.Node)

	pr, err := p.group(st.Root)
	if err != nil {
		return projected{}, err
	}
	p.types[st.Node] = pr
	return pr, nil
}

// group lays a scope out as a record: each member at the next offset
// aligned for it, the whole padded to its widest alignment.
func (p *Projector) group(g *layout.Group) (projected, error) {
	members := append([]*layout.Member(nil), g.Members...)
	sort.SliceStable(members, func(i, j int) bool { return members[i].Ordinal < members[j].Ordinal })

	rec := &wit.Record{Fields: []wit.Field{}}
	info := Info{FieldOffs: make(map[string]uint32), Align: 1}
	add := func(name string, pr projected) {
		off := alignTo(info.Size, pr.info.Align)
		info.FieldOffs[name] = off
		info.Size = off + pr.info.Size
		info.Align = max(info.Align, pr.info.Align)
		rec.Fields = append(rec.Fields, wit.Field{Name: name, Type: pr.typ})
	}

	for _, m := range members {
		pr, ok, err := p.member(m)
		if err != nil {
			return projected{}, err
		}
		if ok {
			add(Kebab(m.Name), pr)
		}
	}
	if g.Union != nil {
		pr, err := p.union(g.Union)
		if err != nil {
			return projected{}, err
		}
		add(WhichField, pr)
	}
	info.Size = alignTo(info.Size, info.Align)
	return projected{typ: &wit.TypeDef{Kind: rec}, info: info}, nil
}

// member reports false for members that carry no data.
func (p *Projector) member(m *layout.Member) (projected, bool, error) {
	switch m.Kind {
	case layout.MemberField:
		if m.Field.IsVoid() {
			return projected{}, false, nil
		}
		pr, err := p.field(m.Field.Type)
		return pr, err == nil, err
	case layout.MemberGroup:
		pr, err := p.group(m.Group)
		return pr, err == nil, err
	default:
		pr, err := p.union(m.Union)
		return pr, err == nil, err
	}
}

// union lays members out as variant cases in tag order. The payload
// follows the tag at the widest case alignment.
func (p *Projector) union(u *layout.Union) (projected, error) {
	cases := make([]wit.Case, 0, len(u.Members))
	tag := tagSize(len(u.Members))
	align, payload := tag, uint32(0)
	for _, m := range u.Members {
		pr, ok, err := p.member(m)
		if err != nil {
			return projected{}, err
		}
		c := wit.Case{Name: Kebab(m.Name)}
		if ok {
			c.Type = pr.typ
			align = max(align, pr.info.Align)
			payload = max(payload, pr.info.Size)
		}
		cases = append(cases, c)
	}
	size := alignTo(alignTo(tag, align)+payload, align)
	return projected{
		typ:  &wit.TypeDef{Kind: &wit.Variant{Cases: cases}},
		info: Info{Size: size, Align: align},
	}, nil
}

// field projects the type of a struct field. Struct and capability
// fields may be null and so are optional.
func (p *Projector) field(t *catalog.Type) (projected, error) {
	inner, err := p.typeOf(t)
	if err != nil {
		return projected{}, err
	}
	if t.Kind != catalog.KindStruct && t.Kind != catalog.KindInterface {
		return inner, nil
	}
	align := inner.info.Align
	return projected{
		typ:  &wit.TypeDef{Kind: &wit.Option{Type: inner.typ}},
		info: Info{Size: alignTo(alignTo(1, align)+inner.info.Size, align), Align: align},
	}, nil
}

// Type projects a resolved type. AnyPointer carries its object as an
// encoded message and capabilities as their table index.
func (p *Projector) Type(t *catalog.Type) (wit.Type, error) {
	pr, err := p.typeOf(t)
	return pr.typ, err
}

var (
	// strings and lists are a (pointer, length) pair of u32
	sliceInfo = Info{Size: 8, Align: 4}
	byteList  = projected{typ: &wit.TypeDef{Kind: &wit.List{Type: wit.U8{}}}, info: sliceInfo}
)

func scalar(t wit.Type, size uint32) projected {
	return projected{typ: t, info: Info{Size: size, Align: size}}
}

func (p *Projector) typeOf(t *catalog.Type) (projected, error) {
	switch t.Kind {
	case catalog.KindBool:
		return scalar(wit.Bool{}, 1), nil
	case catalog.KindInt8:
		return scalar(wit.S8{}, 1), nil
	case catalog.KindInt16:
		return scalar(wit.S16{}, 2), nil
	case catalog.KindInt32:
		return scalar(wit.S32{}, 4), nil
	case catalog.KindInt64:
		return scalar(wit.S64{}, 8), nil
	case catalog.KindUInt8:
		return scalar(wit.U8{}, 1), nil
	case catalog.KindUInt16:
		return scalar(wit.U16{}, 2), nil
	case catalog.KindUInt32:
		return scalar(wit.U32{}, 4), nil
	case catalog.KindUInt64:
		return scalar(wit.U64{}, 8), nil
	case catalog.KindFloat32:
		return scalar(wit.F32{}, 4), nil
	case catalog.KindFloat64:
		return scalar(wit.F64{}, 8), nil
	case catalog.KindText:
		return projected{typ: wit.String{}, info: sliceInfo}, nil
	case catalog.KindData, catalog.KindAnyPointer:
		return byteList, nil
	case catalog.KindInterface:
		return scalar(wit.U32{}, 4), nil
	case catalog.KindEnum:
		return p.enum(t.Node), nil
	case catalog.KindList:
		if t.Elem.Kind == catalog.KindVoid {
			// a list of Void is only a length
			return scalar(wit.U32{}, 4), nil
		}
		elem, err := p.typeOf(t.Elem)
		if err != nil {
			return projected{}, err
		}
		return projected{typ: &wit.TypeDef{Kind: &wit.List{Type: elem.typ}}, info: sliceInfo}, nil
	case catalog.KindStruct:
		st, err := p.src.Layout(t.Node)
		if err != nil {
			return projected{}, err
		}
		return p.structOf(st)
	}
	return projected{}, errors.Unsupported(errors.PhasePlan, t.String()+" has no WIT projection")
}

func (p *Projector) enum(n *schema.Node) projected {
	if pr, ok := p.enums[n]; ok {
		return pr
	}
	enumerants := append([]schema.Enumerant(nil), n.Enumerants...)
	sort.SliceStable(enumerants, func(i, j int) bool { return enumerants[i].Ordinal < enumerants[j].Ordinal })
	cases := make([]wit.EnumCase, len(enumerants))
	for i, e := range enumerants {
		cases[i] = wit.EnumCase{Name: Kebab(e.Name)}
	}
	size := tagSize(len(cases))
	pr := projected{
		typ:  &wit.TypeDef{Kind: &wit.Enum{Cases: cases}},
		info: Info{Size: size, Align: size},
	}
	p.enums[n] = pr
	return pr
}

// tagSize is the width of an enum or variant tag. Unions and enums are
// bounded by their 16-bit discriminant, so a tag never needs 4 bytes.
func tagSize(cases int) uint32 {
	if cases <= 1<<8 {
		return 1
	}
	return 2
}

func alignTo(offset, align uint32) uint32 {
	if align <= 1 {
		return offset
	}
	return (offset + align - 1) &^ (align - 1)
}

// Kebab converts a camelCase or snake_case member name to a WIT
// identifier, e.g. "uInt8Field" to "u-int8-field".
func Kebab(name string) string {
	var b strings.Builder
	b.Grow(len(name) + 4)
	prev := rune(0)
	for _, r := range name {
		switch {
		case r == '_' || r == '-':
			if b.Len() > 0 && prev != '-' {
				b.WriteByte('-')
				prev = '-'
			}
			continue
		case unicode.IsUpper(r):
			if b.Len() > 0 && prev != '-' {
				b.WriteByte('-')
			}
			r = unicode.ToLower(r)
		}
		b.WriteRune(r)
		prev = r
	}
	return strings.TrimSuffix(b.String(), "-")
}
