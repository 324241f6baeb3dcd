package layout

import (
	"strings"

	"github.com/wippyai/capnp-layout/catalog"
	"github.com/wippyai/capnp-layout/schema"
	"github.com/wippyai/capnp-layout/wire"
)

// NoDiscriminant marks a field or member that is not directly a union member.
const NoDiscriminant uint16 = 0xffff

// Struct is the planned layout of one struct declaration. It is immutable
// once returned by a Planner.
type Struct struct {
	Node   *schema.Node
	Root   *Group
	Fields []*Field
	byPath map[string]*Field
	Name   string
	// DataWords and PointerCount are the section sizes in 64-bit words.
	DataWords    uint32
	PointerCount uint32
	// ListSize is how a list of this struct is encoded.
	ListSize wire.ElementSize
}

// Lookup returns the field at a dotted path of named members, e.g.
// "g.inner.f". Unnamed unions add no path component.
func (s *Struct) Lookup(path string) *Field {
	return s.byPath[path]
}

// FieldByOrdinal returns the field declared with @ordinal.
func (s *Struct) FieldByOrdinal(ordinal int) *Field {
	for _, f := range s.Fields {
		if f.Ordinal == ordinal {
			return f
		}
	}
	return nil
}

// DataBits is the size of the data section in bits.
func (s *Struct) DataBits() uint64 {
	return uint64(s.DataWords) * 64
}

// Field is the position and default of one field.
type Field struct {
	Type *catalog.Type
	// Default is the resolved default literal, nil if none was declared.
	Default schema.Value
	// DefaultBytes is a standalone message holding a pointer field's
	// default, nil when the field has none.
	DefaultBytes []byte
	Name         string
	Path         []string
	Ordinal      int
	// Offset is in units of BitWidth for scalars, a slot index for
	// pointers. Void fields have offset 0.
	Offset uint32
	// DefaultBits is XORed with a scalar's stored bits.
	DefaultBits  uint64
	Discriminant uint16
}

func (f *Field) IsPointer() bool {
	return f.Type.IsPointer()
}

func (f *Field) IsVoid() bool {
	return f.Type.Kind == catalog.KindVoid
}

func (f *Field) BitWidth() uint32 {
	if f.IsPointer() {
		return 64
	}
	return f.Type.Kind.BitWidth()
}

// BitOffset is the absolute bit position of a scalar in the data section.
func (f *Field) BitOffset() uint64 {
	return uint64(f.Offset) * uint64(f.Type.Kind.BitWidth())
}

// ByteOffset is the byte containing the scalar's first bit.
func (f *Field) ByteOffset() uint64 {
	return f.BitOffset() / 8
}

// Slot is the pointer section index of a pointer field.
func (f *Field) Slot() uint32 {
	return f.Offset
}

// DisplayPath is the dotted member path, e.g. "g.inner.f".
func (f *Field) DisplayPath() string {
	return strings.Join(f.Path, ".")
}

type MemberKind uint8

const (
	MemberField MemberKind = iota
	MemberGroup
	MemberUnion
)

var memberKindNames = [...]string{
	MemberField: "field",
	MemberGroup: "group",
	MemberUnion: "union",
}

func (k MemberKind) String() string {
	if int(k) < len(memberKindNames) {
		return memberKindNames[k]
	}
	return "unknown"
}

// Group is a scope of members sharing a namespace: the struct body, a
// named group, or a group that is a union member.
type Group struct {
	// Union is the scope's unnamed union, nil if it has none.
	Union   *Union
	Name    string
	Members []*Member
}

// Member is one named member of a group or union.
type Member struct {
	Field *Field
	Group *Group
	Union *Union
	Name  string
	// Ordinal is the member's own ordinal, or its lowest descendant's.
	Ordinal      int
	Discriminant uint16
	Kind         MemberKind
}

// Union records a discriminant and its members in tag order.
type Union struct {
	Name    string
	Members []*Member
	// Ordinal is the union's own ordinal, schema.NoOrdinal if it has none.
	Ordinal int
	// DiscriminantOffset is in 16-bit units.
	DiscriminantOffset uint32
}

// DiscriminantBitOffset is the absolute bit position of the tag.
func (u *Union) DiscriminantBitOffset() uint64 {
	return uint64(u.DiscriminantOffset) * 16
}

// Member returns the member with the given tag.
func (u *Union) Member(tag uint16) *Member {
	if int(tag) < len(u.Members) {
		return u.Members[tag]
	}
	return nil
}

// Lookup returns the member called name.
func (u *Union) Lookup(name string) *Member {
	for _, m := range u.Members {
		if m.Name == name {
			return m
		}
	}
	return nil
}

// Which returns the member of u assigned in v, reporting false if v sets
// none of them.
func (u *Union) Which(v schema.Struct) (*Member, bool) {
	for _, m := range u.Members {
		if v.Has(m.Name) {
			return m, true
		}
	}
	return nil, false
}
