package catalog

import (
	"strings"

	"github.com/wippyai/capnp-layout/errors"
	"github.com/wippyai/capnp-layout/schema"
)

// Constant returns the value of a const declaration with every reference
// inside it resolved. A constant that reaches itself fails with
// CyclicReference. Failures are not cached.
func (c *Catalog) Constant(n *schema.Node) (schema.Value, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.constant(n)
}

func (c *Catalog) constant(n *schema.Node) (schema.Value, error) {
	switch c.constState[n] {
	case constResolved:
		return c.constValue[n], nil
	case constResolving:
		return nil, errors.CyclicReference(c.cycle(n))
	}
	if n.Kind != schema.NodeConst {
		return nil, errors.NotFound(errors.PhaseResolve, "constant", n.DisplayName())
	}

	c.constState[n] = constResolving
	c.stack = append(c.stack, n)
	defer func() { c.stack = c.stack[:len(c.stack)-1] }()

	v, err := c.evalConstant(n)
	if err != nil {
		delete(c.constState, n)
		return nil, err
	}
	c.constState[n] = constResolved
	c.constValue[n] = v
	return v, nil
}

func (c *Catalog) evalConstant(n *schema.Node) (schema.Value, error) {
	t, err := c.resolve(n.Type, n.Parent())
	if err != nil {
		return nil, err
	}
	if n.Value == nil {
		return nil, errors.InvalidDefault([]string{n.DisplayName()}, t.String(), nil, "constant has no value")
	}
	return c.resolveValue(t, n.Value, n.Parent(), []string{n.DisplayName()})
}

func (c *Catalog) cycle(n *schema.Node) []string {
	start := 0
	for i, s := range c.stack {
		if s == n {
			start = i
			break
		}
	}
	chain := make([]string, 0, len(c.stack)-start+1)
	for _, s := range c.stack[start:] {
		chain = append(chain, s.DisplayName())
	}
	return append(chain, n.DisplayName())
}

// ResolveValue replaces every Ref in v with the constant or enumerant it
// names, descending into lists and struct literals along t. Names resolve
// from scope, the declaration the literal was written in.
func (c *Catalog) ResolveValue(t *Type, v schema.Value, scope *schema.Node, path []string) (schema.Value, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.resolveValue(t, v, scope, path)
}

func (c *Catalog) resolveValue(t *Type, v schema.Value, scope *schema.Node, path []string) (schema.Value, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case schema.Ref:
		return c.resolveRef(t, string(x), scope, path)
	case schema.List:
		if t.Kind != KindList {
			return v, nil
		}
		out := make(schema.List, len(x))
		for i, e := range x {
			r, err := c.resolveValue(t.Elem, e, scope, path)
			if err != nil {
				return nil, err
			}
			out[i] = r
		}
		return out, nil
	case schema.Struct:
		if t.Kind != KindStruct {
			return v, nil
		}
		return c.resolveStruct(t.Node.Members, t.Node, x, scope, path)
	}
	return v, nil
}

// resolveStruct resolves a struct literal against members. Member types
// resolve from typeScope, references from valueScope.
func (c *Catalog) resolveStruct(members []*schema.Member, typeScope *schema.Node, v schema.Struct, valueScope *schema.Node, path []string) (schema.Value, error) {
	out := make(schema.Struct, 0, len(v))
	for _, fv := range v {
		fieldPath := append(path[:len(path):len(path)], fv.Name)
		m := schema.FindMember(members, fv.Name)
		if m == nil {
			return nil, errors.FieldUnknown(errors.PhaseResolve, path, fv.Name)
		}
		var (
			r   schema.Value
			err error
		)
		if m.Kind == schema.MemberField {
			var ft *Type
			if ft, err = c.resolve(m.Type, typeScope); err != nil {
				return nil, err
			}
			r, err = c.resolveValue(ft, fv.Value, valueScope, fieldPath)
		} else {
			sv, ok := fv.Value.(schema.Struct)
			if !ok {
				return nil, errors.InvalidDefault(fieldPath, m.Kind.String(), fv.Value, "expected a struct literal")
			}
			r, err = c.resolveStruct(m.Members, typeScope, sv, valueScope, fieldPath)
		}
		if err != nil {
			return nil, err
		}
		out = append(out, schema.FieldValue{Name: fv.Name, Value: r})
	}
	return out, nil
}

func (c *Catalog) resolveRef(t *Type, name string, scope *schema.Node, path []string) (schema.Value, error) {
	if n := c.lookup(name, scope); n != nil && n.Kind == schema.NodeConst {
		return c.constant(n)
	}
	if t.Kind == KindEnum && !strings.Contains(name, ".") {
		if _, ok := t.Node.Enumerant(name); ok {
			return schema.Enum(name), nil
		}
	}
	if i := strings.LastIndex(name, "."); i > 0 {
		en := c.lookup(name[:i], scope)
		if en != nil && en.Kind == schema.NodeEnum {
			if _, ok := en.Enumerant(name[i+1:]); ok {
				if t.Kind == KindEnum && t.Node != en {
					return nil, errors.InvalidDefault(path, t.String(), name, "enumerant of "+en.DisplayName())
				}
				return schema.Enum(name[i+1:]), nil
			}
		}
	}
	return nil, errors.New(errors.PhaseResolve, errors.KindUnresolvedType).
		Path(path...).
		Detail("no constant or enumerant named %q", name).
		Value(name).
		Build()
}
