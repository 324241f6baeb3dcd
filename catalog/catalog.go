package catalog

import (
	"strings"
	"sync"

	"github.com/wippyai/capnp-layout/errors"
	"github.com/wippyai/capnp-layout/schema"
)

// Type is a resolved type descriptor. Types are shared and must not be
// modified after Resolve returns them.
type Type struct {
	Elem  *Type
	Node  *schema.Node
	Param string
	Kind  Kind
}

func (t *Type) String() string {
	switch t.Kind {
	case KindList:
		return "List(" + t.Elem.String() + ")"
	case KindStruct, KindEnum, KindInterface:
		return t.Node.DisplayName()
	case KindAnyPointer:
		if t.Param != "" {
			return t.Param
		}
	}
	return t.Kind.String()
}

// IsPointer reports whether the type occupies a pointer slot.
func (t *Type) IsPointer() bool {
	return t.Kind.IsPointer()
}

var builtinTypes = func() map[Kind]*Type {
	m := make(map[Kind]*Type, len(builtins))
	for _, k := range builtins {
		m[k] = &Type{Kind: k}
	}
	return m
}()

// Builtin returns the shared descriptor of a builtin kind.
func Builtin(k Kind) *Type {
	if t, ok := builtinTypes[k]; ok {
		return t
	}
	return &Type{Kind: k}
}

type resolveKey struct {
	scope *schema.Node
	expr  string
}

type constState uint8

const (
	constResolving constState = iota + 1
	constResolved
)

// Catalog resolves type expressions and constants of one schema file.
// Results are cached; a Catalog is safe for concurrent use.
type Catalog struct {
	file       *schema.File
	types      map[resolveKey]*Type
	constState map[*schema.Node]constState
	constValue map[*schema.Node]schema.Value
	stack      []*schema.Node
	mu         sync.Mutex
}

func New(file *schema.File) *Catalog {
	return &Catalog{
		file:       file,
		types:      make(map[resolveKey]*Type),
		constState: make(map[*schema.Node]constState),
		constValue: make(map[*schema.Node]schema.Value),
	}
}

func (c *Catalog) File() *schema.File {
	return c.file
}

// Resolve turns expr into a type descriptor. Unqualified names walk the
// scope chain outward from scope to the file root; a leading "." resolves
// from the file root. A nil scope means file scope.
func (c *Catalog) Resolve(expr schema.TypeExpr, scope *schema.Node) (*Type, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.resolve(expr, scope)
}

func (c *Catalog) resolve(expr schema.TypeExpr, scope *schema.Node) (*Type, error) {
	key := resolveKey{scope: scope, expr: expr.String()}
	if t, ok := c.types[key]; ok {
		return t, nil
	}
	t, err := c.resolveUncached(expr, scope)
	if err != nil {
		return nil, err
	}
	c.types[key] = t
	return t, nil
}

func (c *Catalog) resolveUncached(expr schema.TypeExpr, scope *schema.Node) (*Type, error) {
	if expr.Name == "List" {
		if len(expr.Args) != 1 {
			return nil, errors.New(errors.PhaseResolve, errors.KindInvalidSchema).
				Path(scopePath(scope)...).
				Detail("List takes exactly one element type, got %d", len(expr.Args)).
				Build()
		}
		elem, err := c.resolve(expr.Args[0], scope)
		if err != nil {
			return nil, err
		}
		return &Type{Kind: KindList, Elem: elem}, nil
	}
	if k, ok := builtins[expr.Name]; ok {
		return builtinTypes[k], nil
	}
	if param, ok := c.param(expr.Name, scope); ok {
		return &Type{Kind: KindAnyPointer, Param: param}, nil
	}

	n := c.lookup(expr.Name, scope)
	if n == nil {
		return nil, errors.UnresolvedType(scopePath(scope), expr.Name)
	}
	switch n.Kind {
	case schema.NodeStruct:
		return &Type{Kind: KindStruct, Node: n}, nil
	case schema.NodeEnum:
		return &Type{Kind: KindEnum, Node: n}, nil
	case schema.NodeInterface:
		return &Type{Kind: KindInterface, Node: n}, nil
	}
	return nil, errors.New(errors.PhaseResolve, errors.KindUnresolvedType).
		Path(scopePath(scope)...).
		Detail("%s names a %s, not a type", expr.Name, n.Kind).
		Value(expr.Name).
		Build()
}

// param reports whether name is a generic parameter of scope or an
// enclosing struct.
func (c *Catalog) param(name string, scope *schema.Node) (string, bool) {
	if strings.Contains(name, ".") {
		return "", false
	}
	for s := scope; s != nil; s = s.Parent() {
		if s.HasParam(name) {
			return name, true
		}
	}
	return "", false
}

// Lookup finds the declaration a possibly dotted name refers to from scope.
func (c *Catalog) Lookup(name string, scope *schema.Node) *schema.Node {
	return c.lookup(name, scope)
}

func (c *Catalog) lookup(name string, scope *schema.Node) *schema.Node {
	if strings.HasPrefix(name, ".") {
		return c.file.Find(name)
	}
	parts := strings.Split(name, ".")
	n := c.lookupFirst(parts[0], scope)
	for _, p := range parts[1:] {
		if n == nil {
			return nil
		}
		n = n.Child(p)
	}
	return n
}

func (c *Catalog) lookupFirst(name string, scope *schema.Node) *schema.Node {
	for s := scope; s != nil; s = s.Parent() {
		if child := s.Child(name); child != nil {
			return child
		}
		if s.Name == name {
			return s
		}
	}
	return c.file.Lookup(name)
}

func scopePath(scope *schema.Node) []string {
	if scope == nil {
		return nil
	}
	return []string{scope.DisplayName()}
}
