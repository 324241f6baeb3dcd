package schema

import (
	"strings"
)

// NoOrdinal marks a union or group that carries no ordinal of its own.
const NoOrdinal = -1

type NodeKind uint8

const (
	NodeStruct NodeKind = iota
	NodeEnum
	NodeConst
	NodeInterface
	NodeAnnotation
)

var nodeKindNames = [...]string{
	NodeStruct:     "struct",
	NodeEnum:       "enum",
	NodeConst:      "const",
	NodeInterface:  "interface",
	NodeAnnotation: "annotation",
}

func (k NodeKind) String() string {
	if int(k) < len(nodeKindNames) {
		return nodeKindNames[k]
	}
	return "unknown"
}

// File is the root scope of a parsed schema.
type File struct {
	Name  string
	Nodes []*Node
}

// Node is a named declaration: struct, enum, const, interface or annotation.
// Nested declarations only namespace; they never affect storage.
type Node struct {
	parent      *Node
	file        *File
	Value       Value
	Name        string
	Type        TypeExpr
	Params      []string
	Members     []*Member
	Enumerants  []Enumerant
	Nested      []*Node
	Annotations []Annotation
	Kind        NodeKind
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

// Member is a struct member: a field, a group, or a union. An unnamed
// union has an empty Name and shares the enclosing namespace.
type Member struct {
	Default     Value
	Name        string
	Type        TypeExpr
	Members     []*Member
	Annotations []Annotation
	Ordinal     int
	Kind        MemberKind
}

// Enumerant is one named value of an enum. Ordinal is the stored UInt16.
type Enumerant struct {
	Name        string
	Annotations []Annotation
	Ordinal     int
}

// Annotation is inert metadata such as a target-language rename.
type Annotation struct {
	Value Value
	Name  string
}

// TypeExpr is an unresolved type reference. Args holds the element type of
// List or the arguments of a generic struct.
type TypeExpr struct {
	Name string
	Args []TypeExpr
}

func (t TypeExpr) String() string {
	if len(t.Args) == 0 {
		return t.Name
	}
	args := make([]string, len(t.Args))
	for i, a := range t.Args {
		args[i] = a.String()
	}
	return t.Name + "(" + strings.Join(args, ", ") + ")"
}

// IsZero reports whether the expression names nothing.
func (t TypeExpr) IsZero() bool {
	return t.Name == "" && len(t.Args) == 0
}

// IsUnnamedUnion reports whether m is a union sharing its parent's namespace.
func (m *Member) IsUnnamedUnion() bool {
	return m.Kind == MemberUnion && m.Name == ""
}

// HasOrdinal reports whether the member declares an ordinal of its own.
func (m *Member) HasOrdinal() bool {
	return m.Ordinal != NoOrdinal
}

// MinOrdinal returns the lowest ordinal of m or any of its descendants, or
// NoOrdinal if there is none.
func (m *Member) MinOrdinal() int {
	best := NoOrdinal
	if m.HasOrdinal() {
		best = m.Ordinal
	}
	for _, c := range m.Members {
		if o := c.MinOrdinal(); o != NoOrdinal && (best == NoOrdinal || o < best) {
			best = o
		}
	}
	return best
}

// FindMember returns the member called name, looking through unnamed
// unions, which share the enclosing namespace.
func FindMember(members []*Member, name string) *Member {
	for _, m := range members {
		if m.IsUnnamedUnion() {
			if found := FindMember(m.Members, name); found != nil {
				return found
			}
			continue
		}
		if m.Name == name {
			return m
		}
	}
	return nil
}

// Rename returns the value of the first annotation with the given name that
// carries a Text value. Renames are presentation only.
func Rename(anns []Annotation, name string) (string, bool) {
	for _, a := range anns {
		if a.Name != name {
			continue
		}
		if t, ok := a.Value.(Text); ok {
			return string(t), true
		}
	}
	return "", false
}
