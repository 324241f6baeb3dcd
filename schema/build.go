package schema

// Constructors for assembling schema graphs in Go. They mirror the shape a
// parser produces and are what fixtures and tests use.

// NewFile links the given declarations into a file.
func NewFile(name string, nodes ...*Node) *File {
	f := &File{Name: name, Nodes: nodes}
	f.Link()
	return f
}

// T names a type: a builtin ("UInt8"), a local name or a dotted path.
func T(name string) TypeExpr {
	return TypeExpr{Name: name}
}

// ListOf is List(elem).
func ListOf(elem TypeExpr) TypeExpr {
	return TypeExpr{Name: "List", Args: []TypeExpr{elem}}
}

// Generic applies type arguments to a generic struct.
func Generic(name string, args ...TypeExpr) TypeExpr {
	return TypeExpr{Name: name, Args: args}
}

// NewStruct declares a struct. Nested declarations are attached with
// (*Node).With.
func NewStruct(name string, members ...*Member) *Node {
	return &Node{Kind: NodeStruct, Name: name, Members: members}
}

// NewGenericStruct declares a struct with type parameters.
func NewGenericStruct(name string, params []string, members ...*Member) *Node {
	return &Node{Kind: NodeStruct, Name: name, Params: params, Members: members}
}

// NewEnum declares an enum whose enumerants take ordinals in order.
func NewEnum(name string, enumerants ...string) *Node {
	n := &Node{Kind: NodeEnum, Name: name}
	for i, e := range enumerants {
		n.Enumerants = append(n.Enumerants, Enumerant{Name: e, Ordinal: i})
	}
	return n
}

// NewConst declares a constant.
func NewConst(name string, typ TypeExpr, v Value) *Node {
	return &Node{Kind: NodeConst, Name: name, Type: typ, Value: v}
}

// NewInterface declares an interface; it is opaque to layout.
func NewInterface(name string) *Node {
	return &Node{Kind: NodeInterface, Name: name}
}

// With attaches nested declarations and returns n.
func (n *Node) With(nested ...*Node) *Node {
	n.Nested = append(n.Nested, nested...)
	return n
}

// Field declares a field without a default.
func Field(name string, ordinal int, typ TypeExpr) *Member {
	return &Member{Kind: MemberField, Name: name, Ordinal: ordinal, Type: typ}
}

// FieldDefault declares a field with a default literal.
func FieldDefault(name string, ordinal int, typ TypeExpr, def Value) *Member {
	return &Member{Kind: MemberField, Name: name, Ordinal: ordinal, Type: typ, Default: def}
}

// Group declares a named group.
func Group(name string, members ...*Member) *Member {
	return &Member{Kind: MemberGroup, Name: name, Ordinal: NoOrdinal, Members: members}
}

// Union declares a union; an empty name makes it unnamed.
func Union(name string, members ...*Member) *Member {
	return &Member{Kind: MemberUnion, Name: name, Ordinal: NoOrdinal, Members: members}
}

// UnionAt declares a union with its own ordinal. Its discriminant is
// planned at that ordinal.
func UnionAt(name string, ordinal int, members ...*Member) *Member {
	return &Member{Kind: MemberUnion, Name: name, Ordinal: ordinal, Members: members}
}

// Annotate attaches annotations and returns m.
func (m *Member) Annotate(anns ...Annotation) *Member {
	m.Annotations = append(m.Annotations, anns...)
	return m
}

// F is shorthand for a struct literal member assignment.
func F(name string, v Value) FieldValue {
	return FieldValue{Name: name, Value: v}
}
