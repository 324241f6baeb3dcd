package schema

import (
	"strings"
)

// Link wires every node to its enclosing scope. Builders and the JSON
// loader call it; it is idempotent.
func (f *File) Link() {
	for _, n := range f.Nodes {
		n.link(f, nil)
	}
}

func (n *Node) link(f *File, parent *Node) {
	n.file = f
	n.parent = parent
	for _, c := range n.Nested {
		c.link(f, n)
	}
}

// Parent returns the enclosing declaration, or nil at file scope.
func (n *Node) Parent() *Node {
	return n.parent
}

// File returns the file n was declared in.
func (n *Node) File() *File {
	return n.file
}

// Scopes returns the scope chain from the file root down to n.
func (n *Node) Scopes() []*Node {
	var chain []*Node
	for s := n; s != nil; s = s.parent {
		chain = append(chain, s)
	}
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain
}

// DisplayName is the dot-joined scope path, e.g. "TestLists.Struct8".
func (n *Node) DisplayName() string {
	chain := n.Scopes()
	names := make([]string, len(chain))
	for i, s := range chain {
		names[i] = s.Name
	}
	return strings.Join(names, ".")
}

// Child returns the nested declaration with the given name.
func (n *Node) Child(name string) *Node {
	for _, c := range n.Nested {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// Enumerant returns the enumerant with the given name.
func (n *Node) Enumerant(name string) (Enumerant, bool) {
	for _, e := range n.Enumerants {
		if e.Name == name {
			return e, true
		}
	}
	return Enumerant{}, false
}

// EnumerantByOrdinal returns the enumerant stored as v.
func (n *Node) EnumerantByOrdinal(v int) (Enumerant, bool) {
	for _, e := range n.Enumerants {
		if e.Ordinal == v {
			return e, true
		}
	}
	return Enumerant{}, false
}

// HasParam reports whether n declares a generic parameter called name.
func (n *Node) HasParam(name string) bool {
	for _, p := range n.Params {
		if p == name {
			return true
		}
	}
	return false
}

// Lookup returns the top-level declaration with the given name.
func (f *File) Lookup(name string) *Node {
	for _, n := range f.Nodes {
		if n.Name == name {
			return n
		}
	}
	return nil
}

// Find resolves a dotted path from the file root, e.g. "TestLists.Struct8".
func (f *File) Find(path string) *Node {
	parts := strings.Split(strings.TrimPrefix(path, "."), ".")
	n := f.Lookup(parts[0])
	for _, p := range parts[1:] {
		if n == nil {
			return nil
		}
		n = n.Child(p)
	}
	return n
}

// Walk visits every declaration depth-first in declaration order.
func (f *File) Walk(fn func(*Node) bool) {
	var walk func(n *Node) bool
	walk = func(n *Node) bool {
		if !fn(n) {
			return false
		}
		for _, c := range n.Nested {
			if !walk(c) {
				return false
			}
		}
		return true
	}
	for _, n := range f.Nodes {
		if !walk(n) {
			return
		}
	}
}

// Structs returns every struct declaration in the file, outer first.
func (f *File) Structs() []*Node {
	var out []*Node
	f.Walk(func(n *Node) bool {
		if n.Kind == NodeStruct {
			out = append(out, n)
		}
		return true
	})
	return out
}
