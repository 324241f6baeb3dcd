package layout

import (
	"github.com/wippyai/capnp-layout/catalog"
	"github.com/wippyai/capnp-layout/wire"
)

// ChooseListStrategy returns how a list with elements of type elem is
// encoded. Struct elements use the element struct's ListSize, so src is
// consulted only for them.
func ChooseListStrategy(src StructSource, elem *catalog.Type) (wire.ElementSize, error) {
	if elem.Kind == catalog.KindStruct {
		s, err := src.Layout(elem.Node)
		if err != nil {
			return 0, err
		}
		return s.ListSize, nil
	}
	return scalarListSize(elem.Kind), nil
}

func scalarListSize(k catalog.Kind) wire.ElementSize {
	if k.IsPointer() {
		return wire.SizePointer
	}
	switch k.BitWidth() {
	case 0:
		return wire.SizeVoid
	case 1:
		return wire.SizeBit
	case 8:
		return wire.SizeByte
	case 16:
		return wire.SizeTwoBytes
	case 32:
		return wire.SizeFourBytes
	default:
		return wire.SizeEightBytes
	}
}

// structListSize compacts a struct whose only member is one field into a
// list of that field's encoding. Anything more, a union included, keeps
// the general composite form.
func structListSize(s *Struct) wire.ElementSize {
	if hasUnion(s.Root) {
		return wire.SizeComposite
	}
	switch len(s.Fields) {
	case 0:
		return wire.SizeVoid
	case 1:
		return scalarListSize(s.Fields[0].Type.Kind)
	}
	return wire.SizeComposite
}

func hasUnion(g *Group) bool {
	if g.Union != nil {
		return true
	}
	for _, m := range g.Members {
		if m.Kind == MemberUnion || (m.Group != nil && hasUnion(m.Group)) {
			return true
		}
	}
	return false
}
