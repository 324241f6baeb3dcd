package layout

import (
	stderrors "errors"
	"sort"
	"strings"

	"fortio.org/safecast"
	"go.uber.org/zap"

	"github.com/wippyai/capnp-layout/catalog"
	"github.com/wippyai/capnp-layout/errors"
	"github.com/wippyai/capnp-layout/schema"
)

// item is one allocation in ordinal order: a field, or a union that
// carries its own ordinal and places its discriminant there.
type item struct {
	field   *Field
	store   storage
	union   *unionInfo
	name    string
	ordinal int
}

type unionInfo struct {
	union *Union
	store *unionStorage
	path  []string
}

type builder struct {
	planner *Planner
	node    *schema.Node
	top     *topStorage
	items   []item
	unions  []*unionInfo
	fields  []*Field
	byPath  map[string]*Field
}

func (b *builder) build() (*Struct, error) {
	name := b.node.DisplayName()
	b.byPath = make(map[string]*Field)

	root := &Group{}
	if err := b.group(b.node.Members, b.top, nil, root); err != nil {
		return nil, err
	}
	if err := b.allocate(); err != nil {
		return nil, err
	}
	for _, u := range b.unions {
		if err := b.finishUnion(u); err != nil {
			return nil, err
		}
	}

	if _, err := safecast.Conv[uint16](b.top.dataWords); err != nil {
		return nil, errors.InvalidSchema([]string{name}, "data section exceeds 65535 words")
	}
	if _, err := safecast.Conv[uint16](b.top.pointerCount); err != nil {
		return nil, errors.InvalidSchema([]string{name}, "pointer section exceeds 65535 slots")
	}

	sort.SliceStable(b.fields, func(i, j int) bool { return b.fields[i].Ordinal < b.fields[j].Ordinal })
	s := &Struct{
		Node:         b.node,
		Name:         name,
		Root:         root,
		Fields:       b.fields,
		byPath:       b.byPath,
		DataWords:    b.top.dataWords,
		PointerCount: b.top.pointerCount,
	}
	s.ListSize = structListSize(s)
	return s, nil
}

func (b *builder) path(parent []string, name string) []string {
	return append(parent[:len(parent):len(parent)], name)
}

func (b *builder) errPath(path []string) []string {
	return []string{b.node.DisplayName() + "." + strings.Join(path, ".")}
}

// group records the members of one scope. Every field planned here
// allocates from st.
func (b *builder) group(members []*schema.Member, st storage, path []string, g *Group) error {
	for _, m := range members {
		switch m.Kind {
		case schema.MemberField:
			f, err := b.field(m, st, path)
			if err != nil {
				return err
			}
			g.Members = append(g.Members, &Member{
				Kind: MemberField, Name: m.Name, Field: f,
				Ordinal: m.Ordinal, Discriminant: NoDiscriminant,
			})
		case schema.MemberGroup:
			child := &Group{Name: m.Name}
			if err := b.group(m.Members, st, b.path(path, m.Name), child); err != nil {
				return err
			}
			g.Members = append(g.Members, &Member{
				Kind: MemberGroup, Name: m.Name, Group: child,
				Ordinal: m.MinOrdinal(), Discriminant: NoDiscriminant,
			})
		case schema.MemberUnion:
			if m.IsUnnamedUnion() {
				if g.Union != nil {
					return errors.InvalidSchema(b.errPath(path), "scope has more than one unnamed union")
				}
				u, err := b.union(m, st, path)
				if err != nil {
					return err
				}
				g.Union = u
				continue
			}
			u, err := b.union(m, st, b.path(path, m.Name))
			if err != nil {
				return err
			}
			g.Members = append(g.Members, &Member{
				Kind: MemberUnion, Name: m.Name, Union: u,
				Ordinal: m.MinOrdinal(), Discriminant: NoDiscriminant,
			})
		default:
			return errors.InvalidSchema(b.errPath(b.path(path, m.Name)), "unknown member kind "+m.Kind.String())
		}
	}
	return nil
}

func (b *builder) union(m *schema.Member, parent storage, path []string) (*Union, error) {
	if len(m.Members) < 2 {
		return nil, errors.InvalidSchema(b.errPath(b.path(path, m.Name)), "union must have at least two members")
	}
	us := newUnionStorage(parent)
	u := &Union{Name: m.Name, Ordinal: m.Ordinal}
	info := &unionInfo{union: u, store: us, path: path}
	b.unions = append(b.unions, info)
	if m.HasOrdinal() {
		b.items = append(b.items, item{union: info, name: m.Name, ordinal: m.Ordinal})
	}

	for _, sm := range m.Members {
		gs := newMemberStorage(us)
		mem := &Member{Name: sm.Name, Ordinal: sm.MinOrdinal()}
		switch sm.Kind {
		case schema.MemberField:
			f, err := b.field(sm, gs, path)
			if err != nil {
				return nil, err
			}
			mem.Kind, mem.Field = MemberField, f
		case schema.MemberGroup:
			child := &Group{Name: sm.Name}
			if err := b.group(sm.Members, gs, b.path(path, sm.Name), child); err != nil {
				return nil, err
			}
			mem.Kind, mem.Group = MemberGroup, child
		default:
			return nil, errors.InvalidSchema(b.errPath(b.path(path, sm.Name)), "union members must be fields or groups")
		}
		u.Members = append(u.Members, mem)
	}
	return u, nil
}

func (b *builder) field(m *schema.Member, st storage, parent []string) (*Field, error) {
	path := b.path(parent, m.Name)
	t, err := b.planner.catalog.Resolve(m.Type, b.node)
	if err != nil {
		return nil, err
	}
	f := &Field{
		Type:         t,
		Name:         m.Name,
		Path:         path,
		Ordinal:      m.Ordinal,
		Discriminant: NoDiscriminant,
	}
	if err := b.resolveDefault(f, m.Default); err != nil {
		return nil, err
	}
	if err := b.planElement(t); err != nil {
		return nil, err
	}

	key := strings.Join(path, ".")
	if _, dup := b.byPath[key]; dup {
		return nil, errors.InvalidSchema(b.errPath(path), "duplicate member name")
	}
	b.byPath[key] = f
	b.fields = append(b.fields, f)
	b.items = append(b.items, item{field: f, store: st, name: key, ordinal: m.Ordinal})
	return f, nil
}

func (b *builder) resolveDefault(f *Field, lit schema.Value) error {
	if lit == nil {
		return nil
	}
	errPath := b.errPath(f.Path)
	v, err := b.planner.catalog.ResolveValue(f.Type, lit, b.node, errPath)
	if err != nil {
		return err
	}
	f.Default = v

	switch {
	case f.Type.Kind == catalog.KindInterface:
		return errors.InvalidDefault(errPath, f.Type.String(), v, "interface fields take no default")
	case f.IsPointer():
	default:
		bits, err := catalog.ScalarBits(f.Type, v)
		if err != nil {
			var ce *catalog.ConvertError
			if stderrors.As(err, &ce) {
				return errors.New(errors.PhaseDefault, errors.KindInvalidDefault).
					Path(errPath...).
					Type(ce.Type).
					Value(v).
					Detail("%s", ce.Error()).
					Build()
			}
			return err
		}
		f.DefaultBits = bits
	}
	return nil
}

// planElement lays out the struct element of a list ahead of its user so
// the element encoding is known. Self-referencing lists are already in
// progress and skipped.
func (b *builder) planElement(t *catalog.Type) error {
	if t.Kind != catalog.KindList || t.Elem.Kind != catalog.KindStruct {
		return nil
	}
	_, err := b.planner.lay(t.Elem.Node)
	return err
}

func (b *builder) allocate() error {
	sort.SliceStable(b.items, func(i, j int) bool { return b.items[i].ordinal < b.items[j].ordinal })
	for i := 1; i < len(b.items); i++ {
		if prev, cur := b.items[i-1], b.items[i]; prev.ordinal == cur.ordinal {
			return errors.DuplicateOrdinal(b.node.DisplayName(), cur.ordinal, prev.name, cur.name)
		}
	}

	for _, it := range b.items {
		if it.union != nil {
			if !it.union.store.addDiscriminant() {
				return errors.InvalidSchema(b.errPath(it.union.path),
					"union ordinal must be lower than all but one member ordinal")
			}
			continue
		}
		f := it.field
		switch {
		case f.IsVoid():
			it.store.addVoid()
		case f.IsPointer():
			f.Offset = it.store.addPointer()
		default:
			f.Offset = it.store.addData(f.Type.Kind.LgSize())
		}
	}
	return nil
}

// finishUnion places a discriminant no member forced yet and assigns tags
// in ordinal order.
func (b *builder) finishUnion(info *unionInfo) error {
	info.store.addDiscriminant()
	u := info.union
	u.DiscriminantOffset = info.store.discriminant

	sort.SliceStable(u.Members, func(i, j int) bool {
		oi, oj := u.Members[i].Ordinal, u.Members[j].Ordinal
		if oi == schema.NoOrdinal || oj == schema.NoOrdinal {
			return oj == schema.NoOrdinal && oi != schema.NoOrdinal
		}
		return oi < oj
	})
	tags := make([]uint16, len(u.Members))
	for i, m := range u.Members {
		tag, err := safecast.Conv[uint16](i)
		if err != nil || tag == NoDiscriminant {
			return errors.InvalidSchema(b.errPath(info.path), "too many union members")
		}
		m.Discriminant = tag
		if m.Field != nil {
			m.Field.Discriminant = tag
		}
		tags[i] = tag
	}
	for i, tag := range tags {
		if int(tag) != i {
			return errors.NonMinimalUnionTag(b.errPath(info.path), tags)
		}
	}

	b.planner.logger.Debug("placed union discriminant",
		zap.String("struct", b.node.DisplayName()),
		zap.Strings("path", info.path),
		zap.Uint32("offset", u.DiscriminantOffset),
		zap.Int("members", len(u.Members)))
	return nil
}
