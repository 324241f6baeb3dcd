package codec

import (
	"bytes"
	"encoding/binary"
	stderrors "errors"
	"math"
	"sync"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/wippyai/capnp-layout/errors"
	"github.com/wippyai/capnp-layout/internal/fixtures"
	"github.com/wippyai/capnp-layout/layout"
	"github.com/wippyai/capnp-layout/schema"
	"github.com/wippyai/capnp-layout/wire"
)

type harness struct {
	planner *layout.Planner
	enc     *Encoder
	dec     *Decoder
}

func newHarness(t *testing.T, file *schema.File, opts Options) *harness {
	t.Helper()
	p := NewPlanner(file, layout.Options{})
	return &harness{planner: p, enc: NewEncoder(p, opts), dec: NewDecoder(p, opts)}
}

func (h *harness) layout(t *testing.T, name string) *layout.Struct {
	t.Helper()
	st, err := h.planner.PlanName(name)
	if err != nil {
		t.Fatalf("PlanName(%s): %v", name, err)
	}
	return st
}

func (h *harness) roundTrip(t *testing.T, name string, v schema.Struct) schema.Struct {
	t.Helper()
	st := h.layout(t, name)
	msg, err := h.enc.Encode(st, v)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := h.dec.Decode(st, msg)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	return got
}

// contains reports whether got holds everything in want. Structs in got
// may carry extra members, which hold decoded defaults.
func contains(got, want schema.Value) bool {
	switch w := want.(type) {
	case schema.Struct:
		g, ok := got.(schema.Struct)
		if !ok {
			return false
		}
		for _, fv := range w {
			v, ok := g.Get(fv.Name)
			if !ok || !contains(v, fv.Value) {
				return false
			}
		}
		return true
	case schema.List:
		g, ok := got.(schema.List)
		if !ok || len(g) != len(w) {
			return false
		}
		for i := range w {
			if !contains(g[i], w[i]) {
				return false
			}
		}
		return true
	}
	return schema.Equal(got, want)
}

func isKind(err error, kind errors.Kind) bool {
	return stderrors.Is(err, &errors.Error{Kind: kind})
}

func allTypes() schema.Struct {
	return schema.Struct{
		schema.F("voidField", schema.Void{}),
		schema.F("boolField", schema.Bool(true)),
		schema.F("int8Field", schema.Int(-12)),
		schema.F("int16Field", schema.Int(3456)),
		schema.F("int32Field", schema.Int(-78901234)),
		schema.F("int64Field", schema.Int(56789012345678)),
		schema.F("uInt8Field", schema.Uint(90)),
		schema.F("uInt16Field", schema.Uint(1234)),
		schema.F("uInt32Field", schema.Uint(56789012)),
		schema.F("uInt64Field", schema.Uint(345678901234567890)),
		schema.F("float32Field", schema.Float(-1.25)),
		schema.F("float64Field", schema.Float(-1.25e-300)),
		schema.F("textField", schema.Text("foo")),
		schema.F("dataField", schema.Data("bar")),
		schema.F("structField", schema.Struct{
			schema.F("textField", schema.Text("nested")),
			schema.F("structField", schema.Struct{schema.F("int8Field", schema.Int(-1))}),
		}),
		schema.F("enumField", schema.Enum("baz")),
		schema.F("interfaceField", schema.Void{}),
		schema.F("voidList", schema.List{schema.Void{}, schema.Void{}, schema.Void{}}),
		schema.F("boolList", schema.List{schema.Bool(false), schema.Bool(true), schema.Bool(false), schema.Bool(true), schema.Bool(true)}),
		schema.F("int8List", schema.List{schema.Int(12), schema.Int(-34)}),
		schema.F("int16List", schema.List{schema.Int(1234), schema.Int(-5678)}),
		schema.F("int32List", schema.List{schema.Int(12345678), schema.Int(-90123456)}),
		schema.F("int64List", schema.List{schema.Int(123456789012345), schema.Int(-678901234567890)}),
		schema.F("uInt8List", schema.List{schema.Uint(12), schema.Uint(34)}),
		schema.F("uInt16List", schema.List{schema.Uint(1234), schema.Uint(5678)}),
		schema.F("uInt32List", schema.List{schema.Uint(12345678), schema.Uint(90123456)}),
		schema.F("uInt64List", schema.List{schema.Uint(123456789012345), schema.Uint(678901234567890)}),
		schema.F("float32List", schema.List{schema.Float(0), schema.Float(1234.5), schema.Float(math.Inf(-1))}),
		schema.F("float64List", schema.List{schema.Float(0), schema.Float(123e45), schema.Float(math.Inf(1))}),
		schema.F("textList", schema.List{schema.Text("plugh"), schema.Text("xyzzy"), schema.Text("thud")}),
		schema.F("dataList", schema.List{schema.Data("oops"), schema.Data("exhausted"), schema.Data{}}),
		schema.F("structList", schema.List{
			schema.Struct{schema.F("textField", schema.Text("structlist 1"))},
			schema.Struct{schema.F("int32Field", schema.Int(2))},
		}),
		schema.F("enumList", schema.List{schema.Enum("qux"), schema.Enum("bar"), schema.Enum("grault")}),
		schema.F("interfaceList", schema.List{schema.Void{}}),
	}
}

func TestRoundTripAllTypes(t *testing.T) {
	h := newHarness(t, fixtures.Schema(), Options{})
	want := allTypes()
	got := h.roundTrip(t, "TestAllTypes", want)
	if !contains(got, want) {
		t.Fatalf("round trip mismatch:\n got %s\nwant %s", schema.Format(got), schema.Format(want))
	}
	// every top-level field was set, so nothing extra comes back
	if len(got) != len(want) {
		t.Errorf("decoded %d members, want %d", len(got), len(want))
	}
}

func TestEncodeFraming(t *testing.T) {
	h := newHarness(t, fixtures.Schema(), Options{})
	st := h.layout(t, "TestAllTypes")
	msg, err := h.enc.Encode(st, allTypes())
	if err != nil {
		t.Fatal(err)
	}
	if len(msg)%8 != 0 {
		t.Fatalf("message length %d is not word aligned", len(msg))
	}
	if got := binary.LittleEndian.Uint32(msg); got != 0 {
		t.Errorf("segment count field = %d, want 0", got)
	}
	if got := binary.LittleEndian.Uint32(msg[4:]); int(got)*8 != len(msg)-8 {
		t.Errorf("header says %d words, body has %d bytes", got, len(msg)-8)
	}
	root := binary.LittleEndian.Uint64(msg[8:])
	off, dw, pc := wire.StructFields(root)
	if wire.Kind(root) != wire.KindStruct || off != 0 || dw != 6 || pc != 20 {
		t.Errorf("root = kind %s offset %d sections (%d, %d)", wire.Kind(root), off, dw, pc)
	}
}

func TestEncodeDeterministic(t *testing.T) {
	h := newHarness(t, fixtures.Schema(), Options{})
	st := h.layout(t, "TestAllTypes")
	a, err := h.enc.Encode(st, allTypes())
	if err != nil {
		t.Fatal(err)
	}
	b, err := h.enc.Encode(st, allTypes())
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(a, b) {
		t.Error("encoding the same value twice produced different bytes")
	}
}

func TestDecodeDefaults(t *testing.T) {
	h := newHarness(t, fixtures.Schema(), Options{})
	st := h.layout(t, "TestDefaults")

	empty, err := h.enc.Encode(st, schema.Struct{})
	if err != nil {
		t.Fatal(err)
	}
	nullRoot, err := wire.Frame(make([]byte, 8))
	if err != nil {
		t.Fatal(err)
	}

	want := schema.Struct{
		schema.F("voidField", schema.Void{}),
		schema.F("boolField", schema.Bool(true)),
		schema.F("int8Field", schema.Int(-123)),
		schema.F("int16Field", schema.Int(-12345)),
		schema.F("int32Field", schema.Int(-12345678)),
		schema.F("int64Field", schema.Int(-123456789012345)),
		schema.F("uInt8Field", schema.Uint(234)),
		schema.F("uInt16Field", schema.Uint(45678)),
		schema.F("uInt32Field", schema.Uint(3456789012)),
		schema.F("uInt64Field", schema.Uint(12345678901234567890)),
		schema.F("float32Field", schema.Float(1234.5)),
		schema.F("float64Field", schema.Float(-123e45)),
		schema.F("textField", schema.Text("foo")),
		schema.F("dataField", schema.Data("bar")),
		schema.F("structField", schema.Struct{
			schema.F("int32Field", schema.Int(-1234567)),
			schema.F("textField", schema.Text("baz")),
			schema.F("structField", schema.Struct{schema.F("textField", schema.Text("nested"))}),
		}),
		schema.F("enumField", schema.Enum("corge")),
		schema.F("voidList", schema.List{schema.Void{}, schema.Void{}, schema.Void{}}),
		schema.F("boolList", schema.List{schema.Bool(true), schema.Bool(false), schema.Bool(false), schema.Bool(true)}),
		schema.F("int8List", schema.List{schema.Int(111), schema.Int(-111)}),
		schema.F("int64List", schema.List{schema.Int(1111111111111111111), schema.Int(-1111111111111111111)}),
		schema.F("uInt8List", schema.List{schema.Uint(111), schema.Uint(222)}),
		schema.F("float32List", schema.List{schema.Float(5555.5), schema.Float(0), schema.Float(2)}),
		schema.F("textList", schema.List{schema.Text("plugh"), schema.Text("xyzzy"), schema.Text("thud")}),
		schema.F("dataList", schema.List{schema.Data("oops"), schema.Data("exhausted")}),
		schema.F("structList", schema.List{
			schema.Struct{schema.F("textField", schema.Text("structlist 1"))},
			schema.Struct{schema.F("textField", schema.Text("structlist 2"))},
		}),
		schema.F("enumList", schema.List{schema.Enum("foo"), schema.Enum("garply")}),
		schema.F("float64Int", schema.Float(123)),
		schema.F("float32Exp", schema.Float(float32(2e30))),
	}

	for name, msg := range map[string][]byte{"empty struct": empty, "null root": nullRoot} {
		t.Run(name, func(t *testing.T) {
			got, err := h.dec.Decode(st, msg)
			if err != nil {
				t.Fatal(err)
			}
			if !contains(got, want) {
				t.Errorf("defaults mismatch:\n got %s\nwant %s", schema.Format(got), schema.Format(want))
			}
		})
	}
}

func TestEncodeDefaultIsUnset(t *testing.T) {
	h := newHarness(t, fixtures.Schema(), Options{})
	st := h.layout(t, "TestDefaults")
	unset, err := h.enc.Encode(st, schema.Struct{})
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name  string
		value schema.Value
	}{
		{"boolField", schema.Bool(true)},
		{"int8Field", schema.Int(-123)},
		{"uInt64Field", schema.Uint(12345678901234567890)},
		{"float64Field", schema.Float(-123e45)},
		{"textField", schema.Text("foo")},
		{"dataField", schema.Data("bar")},
		{"enumField", schema.Enum("corge")},
		{"textList", schema.List{schema.Text("plugh"), schema.Text("xyzzy"), schema.Text("thud")}},
		{"float64Int", schema.Int(123)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := h.enc.Encode(st, schema.Struct{schema.F(tt.name, tt.value)})
			if err != nil {
				t.Fatal(err)
			}
			if !bytes.Equal(msg, unset) {
				t.Error("writing the default changed the encoding")
			}
			ok, err := IsDefault(st.Lookup(tt.name), tt.value)
			if err != nil || !ok {
				t.Errorf("IsDefault = %v, %v", ok, err)
			}
		})
	}
}

func TestPointerDefaultsWithoutDefaultBytes(t *testing.T) {
	// a planner with no default encoder leaves DefaultBytes nil, so a
	// pointer equal to its default must still be written
	p := layout.NewPlanner(fixtures.Schema(), layout.Options{})
	st, err := p.PlanName("TestDefaults")
	if err != nil {
		t.Fatal(err)
	}
	enc, dec := NewEncoder(p, Options{}), NewDecoder(p, Options{})

	tests := []struct {
		name  string
		value schema.Value
	}{
		{"textField", schema.Text("foo")},
		{"dataField", schema.Data("bar")},
		{"textList", schema.List{schema.Text("plugh"), schema.Text("xyzzy"), schema.Text("thud")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := st.Lookup(tt.name)
			if f.DefaultBytes != nil {
				t.Fatal("expected no encoded default")
			}
			if ok, err := IsDefault(f, tt.value); err != nil || ok {
				t.Errorf("IsDefault = %v, %v; want false without an encoded default", ok, err)
			}
			msg, err := enc.Encode(st, schema.Struct{schema.F(tt.name, tt.value)})
			if err != nil {
				t.Fatal(err)
			}
			got, err := dec.Decode(st, msg)
			if err != nil {
				t.Fatal(err)
			}
			if v, _ := got.Get(tt.name); !schema.Equal(v, tt.value) {
				t.Errorf("%s = %s, want %s", tt.name, schema.Format(v), schema.Format(tt.value))
			}
		})
	}
}

func TestScalarDefaultsAreXored(t *testing.T) {
	h := newHarness(t, fixtures.Schema(), Options{})
	st := h.layout(t, "TestFieldZeroIsBit")
	msg, err := h.enc.Encode(st, schema.Struct{
		schema.F("bit", schema.Bool(true)),
		schema.F("secondBit", schema.Bool(false)),
		schema.F("thirdField", schema.Uint(123)),
	})
	if err != nil {
		t.Fatal(err)
	}
	// root pointer, then the single data word
	data := binary.LittleEndian.Uint64(msg[16:])
	if data != 0b11 {
		t.Errorf("data word = %#x, want 0x3", data)
	}
	got, err := h.dec.Decode(st, msg)
	if err != nil {
		t.Fatal(err)
	}
	want := schema.Struct{
		schema.F("bit", schema.Bool(true)),
		schema.F("secondBit", schema.Bool(false)),
		schema.F("thirdField", schema.Uint(123)),
	}
	if !schema.Equal(got, want) {
		t.Errorf("got %s", schema.Format(got))
	}
}

func TestDefaultValue(t *testing.T) {
	h := newHarness(t, fixtures.Schema(), Options{})
	st := h.layout(t, "TestDefaults")
	tests := map[string]schema.Value{
		"voidField":    schema.Void{},
		"int16Field":   schema.Int(-12345),
		"float32Field": schema.Float(1234.5),
		"float64Int":   schema.Float(123),
		"enumField":    schema.Enum("corge"),
		"textField":    schema.Text("foo"),
	}
	for name, want := range tests {
		if got := DefaultValue(st.Lookup(name)); !schema.Equal(got, want) {
			t.Errorf("DefaultValue(%s) = %s, want %s", name, schema.Format(got), schema.Format(want))
		}
	}
	if st.Lookup("structField").DefaultBytes == nil {
		t.Error("struct default was not encoded at plan time")
	}
}

func TestEncodeDefaultMessage(t *testing.T) {
	h := newHarness(t, fixtures.Schema(), Options{})
	st := h.layout(t, "TestDefaults")
	f := st.Lookup("textList")
	msg, err := EncodeDefault(h.planner, f)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(msg, f.DefaultBytes) {
		t.Error("EncodeDefault differs from the planned default")
	}
	if _, err := EncodeDefault(h.planner, st.Lookup("int8Field")); !isKind(err, errors.KindInvalidInput) {
		t.Errorf("scalar field error = %v", err)
	}
	if msg, err := EncodeDefault(h.planner, h.layout(t, "TestAllTypes").Lookup("textField")); msg != nil || err != nil {
		t.Errorf("field without default = %v, %v", msg, err)
	}
}

func TestConstantDefaultsDecode(t *testing.T) {
	h := newHarness(t, fixtures.Schema(), Options{})
	got := h.roundTrip(t, "TestConstRefs", schema.Struct{})
	want := schema.Struct{
		schema.F("limit", schema.Uint(1000)),
		schema.F("mode", schema.Enum("garply")),
		schema.F("name", schema.Text("hello")),
	}
	if !schema.Equal(got, want) {
		t.Errorf("got %s", schema.Format(got))
	}
}

func TestUnionRoundTrip(t *testing.T) {
	h := newHarness(t, fixtures.Schema(), Options{})
	tests := []struct {
		name  string
		value schema.Struct
	}{
		{"first members", schema.Struct{
			schema.F("union0", schema.Struct{schema.F("u0f0s0", schema.Void{})}),
			schema.F("union1", schema.Struct{schema.F("u1f0s0", schema.Void{})}),
			schema.F("union2", schema.Struct{schema.F("u2f0s1", schema.Bool(false))}),
			schema.F("union3", schema.Struct{schema.F("u3f0s1", schema.Bool(false))}),
		}},
		{"mixed widths", schema.Struct{
			schema.F("union0", schema.Struct{schema.F("u0f0s16", schema.Int(321))}),
			schema.F("union1", schema.Struct{schema.F("u1f0s8", schema.Int(123))}),
			schema.F("union2", schema.Struct{schema.F("u2f0s64", schema.Int(12345678901234567))}),
			schema.F("union3", schema.Struct{schema.F("u3f0s8", schema.Int(55))}),
			schema.F("bit0", schema.Bool(true)),
			schema.F("byte0", schema.Uint(200)),
		}},
		{"pointers", schema.Struct{
			schema.F("union0", schema.Struct{schema.F("u0f1sp", schema.Text("foo"))}),
			schema.F("union1", schema.Struct{schema.F("u1f2sp", schema.Text("bar"))}),
			schema.F("union2", schema.Struct{schema.F("u2f0s32", schema.Int(-1))}),
			schema.F("union3", schema.Struct{schema.F("u3f0s64", schema.Int(math.MinInt64))}),
			schema.F("bit7", schema.Bool(true)),
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := h.roundTrip(t, "TestUnion", tt.value)
			if !contains(got, tt.value) {
				t.Errorf("got %s", schema.Format(got))
			}
			for _, u := range []string{"union0", "union1", "union2", "union3"} {
				v, _ := got.Get(u)
				if sv, ok := v.(schema.Struct); !ok || len(sv) != 1 {
					t.Errorf("%s decoded as %s, want exactly one member", u, schema.Format(v))
				}
			}
		})
	}
}

func TestUnionDefaults(t *testing.T) {
	h := newHarness(t, fixtures.Schema(), Options{})
	got := h.roundTrip(t, "TestUnionDefaults", schema.Struct{})
	want := schema.Struct{
		schema.F("s16s8s64s8Set", schema.Struct{
			schema.F("union0", schema.Struct{schema.F("u0f0s16", schema.Int(321))}),
			schema.F("union1", schema.Struct{schema.F("u1f0s8", schema.Int(123))}),
			schema.F("union2", schema.Struct{schema.F("u2f0s64", schema.Int(12345678901234567))}),
			schema.F("union3", schema.Struct{schema.F("u3f0s8", schema.Int(55))}),
		}),
		schema.F("unnamed1", schema.Struct{schema.F("foo", schema.Uint(123))}),
		schema.F("unnamed2", schema.Struct{
			schema.F("bar", schema.Uint(321)),
			schema.F("before", schema.Text("foo")),
			schema.F("after", schema.Text("bar")),
		}),
	}
	if !contains(got, want) {
		t.Errorf("got %s", schema.Format(got))
	}
}

func TestUnnamedUnionWhich(t *testing.T) {
	h := newHarness(t, fixtures.Schema(), Options{})
	st := h.layout(t, "TestUnnamedUnion")

	tests := []struct {
		value schema.Struct
		which string
	}{
		{schema.Struct{}, "foo"},
		{schema.Struct{schema.F("foo", schema.Uint(7))}, "foo"},
		{schema.Struct{schema.F("bar", schema.Uint(70000)), schema.F("middle", schema.Uint(5))}, "bar"},
	}
	for _, tt := range tests {
		t.Run(tt.which, func(t *testing.T) {
			got := h.roundTrip(t, "TestUnnamedUnion", tt.value)
			which, ok := Which(st, got)
			if !ok || which != tt.which {
				t.Errorf("Which = %q, %v; want %q", which, ok, tt.which)
			}
			if !contains(got, tt.value) {
				t.Errorf("got %s", schema.Format(got))
			}
			other := "bar"
			if tt.which == "bar" {
				other = "foo"
			}
			if got.Has(other) {
				t.Errorf("inactive member %s decoded", other)
			}
		})
	}

	if _, ok := Which(h.layout(t, "TestAllTypes"), schema.Struct{}); ok {
		t.Error("Which reported a member for a struct without a union")
	}
}

func TestUnionInUnionRoundTrip(t *testing.T) {
	h := newHarness(t, fixtures.Schema(), Options{})
	for _, v := range []schema.Struct{
		{schema.F("outer", schema.Struct{schema.F("inner", schema.Struct{schema.F("bar", schema.Int(-5))})})},
		{schema.F("outer", schema.Struct{schema.F("baz", schema.Int(42))})},
	} {
		if got := h.roundTrip(t, "TestUnionInUnion", v); !schema.Equal(got, v) {
			t.Errorf("got %s, want %s", schema.Format(got), schema.Format(v))
		}
	}
}

func TestGroupsRoundTrip(t *testing.T) {
	h := newHarness(t, fixtures.Schema(), Options{})
	tests := []schema.Struct{
		{schema.F("groups", schema.Struct{schema.F("foo", schema.Struct{
			schema.F("corge", schema.Int(12345678)),
			schema.F("grault", schema.Int(123456789012345)),
			schema.F("garply", schema.Text("foobar")),
		})})},
		{schema.F("groups", schema.Struct{schema.F("bar", schema.Struct{
			schema.F("corge", schema.Int(23456789)),
			schema.F("grault", schema.Text("barbaz")),
			schema.F("garply", schema.Int(234567890123456)),
		})})},
		{schema.F("groups", schema.Struct{schema.F("baz", schema.Struct{
			schema.F("corge", schema.Int(34567890)),
			schema.F("grault", schema.Text("bazqux")),
			schema.F("garply", schema.Text("quxquux")),
		})})},
	}
	for _, v := range tests {
		if got := h.roundTrip(t, "TestGroups", v); !schema.Equal(got, v) {
			t.Errorf("got %s, want %s", schema.Format(got), schema.Format(v))
		}
	}
}

func TestInterleavedGroupsRoundTrip(t *testing.T) {
	h := newHarness(t, fixtures.Schema(), Options{})
	v := schema.Struct{
		schema.F("group1", schema.Struct{
			schema.F("foo", schema.Uint(12345678)),
			schema.F("bar", schema.Uint(123456789012345)),
			schema.F("corge", schema.Struct{
				schema.F("grault", schema.Uint(987654321098765)),
				schema.F("garply", schema.Uint(12345)),
				schema.F("plugh", schema.Text("plugh")),
				schema.F("xyzzy", schema.Text("xyzzy")),
			}),
			schema.F("waldo", schema.Text("waldo")),
		}),
		schema.F("group2", schema.Struct{
			schema.F("foo", schema.Uint(23456789)),
			schema.F("bar", schema.Uint(234567890123456)),
			schema.F("fred", schema.Text("fred")),
			schema.F("waldo", schema.Text("waldo2")),
		}),
	}
	got := h.roundTrip(t, "TestInterleavedGroups", v)
	if !schema.Equal(got, v) {
		t.Errorf("got %s\nwant %s", schema.Format(got), schema.Format(v))
	}
}

func TestListsRoundTrip(t *testing.T) {
	h := newHarness(t, fixtures.Schema(), Options{})
	v := schema.Struct{
		schema.F("list0", schema.List{schema.Struct{schema.F("f", schema.Void{})}, schema.Struct{schema.F("f", schema.Void{})}}),
		schema.F("list1", schema.List{schema.Struct{schema.F("f", schema.Bool(true))}, schema.Struct{schema.F("f", schema.Bool(false))}, schema.Struct{schema.F("f", schema.Bool(true))}}),
		schema.F("list8", schema.List{schema.Struct{schema.F("f", schema.Uint(123))}, schema.Struct{schema.F("f", schema.Uint(45))}}),
		schema.F("list16", schema.List{schema.Struct{schema.F("f", schema.Uint(12345))}}),
		schema.F("list32", schema.List{schema.Struct{schema.F("f", schema.Uint(123456789))}}),
		schema.F("list64", schema.List{schema.Struct{schema.F("f", schema.Uint(1234567890123456))}}),
		schema.F("listP", schema.List{schema.Struct{schema.F("f", schema.Text("foo"))}, schema.Struct{schema.F("f", schema.Text("bar"))}}),
		schema.F("int32ListList", schema.List{
			schema.List{schema.Int(1), schema.Int(2), schema.Int(3)},
			schema.List{schema.Int(4), schema.Int(5)},
			schema.List{schema.Int(12341234)},
		}),
		schema.F("textListList", schema.List{
			schema.List{schema.Text("foo"), schema.Text("bar")},
			schema.List{schema.Text("baz")},
			schema.List{schema.Text("qux"), schema.Text("corge")},
		}),
		schema.F("structListList", schema.List{
			schema.List{schema.Struct{schema.F("int32Field", schema.Int(123))}, schema.Struct{schema.F("int32Field", schema.Int(456))}},
			schema.List{schema.Struct{schema.F("int32Field", schema.Int(789))}},
		}),
		schema.F("list8c", schema.List{schema.Struct{schema.F("f", schema.Uint(9)), schema.F("pad", schema.Text("x"))}}),
		schema.F("listU", schema.List{schema.Struct{schema.F("a", schema.Uint(1))}, schema.Struct{schema.F("b", schema.Uint(2))}}),
		schema.F("self", schema.List{schema.Struct{schema.F("list8", schema.List{schema.Struct{schema.F("f", schema.Uint(7))}})}}),
	}
	got := h.roundTrip(t, "TestLists", v)
	if !contains(got, v) {
		t.Errorf("got %s", schema.Format(got))
	}
}

func TestCompactedListEncoding(t *testing.T) {
	h := newHarness(t, fixtures.Schema(), Options{})
	st := h.layout(t, "TestLists")
	msg, err := h.enc.Encode(st, schema.Struct{
		schema.F("list8", schema.List{
			schema.Struct{schema.F("f", schema.Uint(1))},
			schema.Struct{schema.F("f", schema.Uint(2))},
			schema.Struct{schema.F("f", schema.Uint(3))},
		}),
	})
	if err != nil {
		t.Fatal(err)
	}
	// header, root pointer, then 13 pointer slots; list8 is slot 2
	word := binary.LittleEndian.Uint64(msg[8+8*3:])
	_, size, count := wire.ListFields(word)
	if wire.Kind(word) != wire.KindList || size != wire.SizeByte || count != 3 {
		t.Fatalf("list8 pointer = %#x (%s, %d)", word, size, count)
	}
	body := msg[len(msg)-8:]
	if !bytes.Equal(body[:3], []byte{1, 2, 3}) {
		t.Errorf("list body = %v", body)
	}
}

// compactionSchemas declare the same list with a compactable and a
// padded element struct.
func compactionSchemas() (compact, padded *schema.File) {
	holder := func() *schema.Node {
		return schema.NewStruct("Holder", schema.Field("items", 0, schema.ListOf(schema.T("Elem"))))
	}
	compact = schema.NewFile("compact.capnp", holder(),
		schema.NewStruct("Elem", schema.Field("f", 0, schema.T("UInt16"))))
	padded = schema.NewFile("padded.capnp", holder(),
		schema.NewStruct("Elem",
			schema.Field("f", 0, schema.T("UInt16")),
			schema.Field("note", 1, schema.T("Text")),
			schema.FieldDefault("weight", 2, schema.T("Int32"), schema.Int(10)),
		))
	return compact, padded
}

func TestCompactedListCompatibility(t *testing.T) {
	compactFile, paddedFile := compactionSchemas()
	compact := newHarness(t, compactFile, Options{})
	padded := newHarness(t, paddedFile, Options{})
	items := func(vs ...schema.Struct) schema.Struct {
		l := make(schema.List, len(vs))
		for i, v := range vs {
			l[i] = v
		}
		return schema.Struct{schema.F("items", l)}
	}

	t.Run("compact read as padded", func(t *testing.T) {
		msg, err := compact.enc.Encode(compact.layout(t, "Holder"), items(
			schema.Struct{schema.F("f", schema.Uint(1))},
			schema.Struct{schema.F("f", schema.Uint(65535))},
		))
		if err != nil {
			t.Fatal(err)
		}
		got, err := padded.dec.Decode(padded.layout(t, "Holder"), msg)
		if err != nil {
			t.Fatal(err)
		}
		want := items(
			schema.Struct{schema.F("f", schema.Uint(1)), schema.F("note", schema.Text("")), schema.F("weight", schema.Int(10))},
			schema.Struct{schema.F("f", schema.Uint(65535)), schema.F("note", schema.Text("")), schema.F("weight", schema.Int(10))},
		)
		if !schema.Equal(got, want) {
			t.Errorf("got %s", schema.Format(got))
		}
	})

	t.Run("padded read as compact", func(t *testing.T) {
		msg, err := padded.enc.Encode(padded.layout(t, "Holder"), items(
			schema.Struct{schema.F("f", schema.Uint(7)), schema.F("note", schema.Text("dropped"))},
			schema.Struct{schema.F("f", schema.Uint(8)), schema.F("weight", schema.Int(3))},
		))
		if err != nil {
			t.Fatal(err)
		}
		got, err := compact.dec.Decode(compact.layout(t, "Holder"), msg)
		if err != nil {
			t.Fatal(err)
		}
		want := items(schema.Struct{schema.F("f", schema.Uint(7))}, schema.Struct{schema.F("f", schema.Uint(8))})
		if !schema.Equal(got, want) {
			t.Errorf("got %s", schema.Format(got))
		}
	})
}

func TestVersionCompatibility(t *testing.T) {
	h := newHarness(t, fixtures.Schema(), Options{})
	oldSt, newSt := h.layout(t, "TestOldVersion"), h.layout(t, "TestNewVersion")

	oldMsg, err := h.enc.Encode(oldSt, schema.Struct{
		schema.F("old1", schema.Int(123)),
		schema.F("old2", schema.Text("foo")),
		schema.F("old3", schema.Struct{schema.F("old1", schema.Int(456))}),
	})
	if err != nil {
		t.Fatal(err)
	}
	got, err := h.dec.Decode(newSt, oldMsg)
	if err != nil {
		t.Fatal(err)
	}
	want := schema.Struct{
		schema.F("old1", schema.Int(123)),
		schema.F("old2", schema.Text("foo")),
		schema.F("new1", schema.Int(987)),
		schema.F("new2", schema.Text("baz")),
		schema.F("old3", schema.Struct{
			schema.F("old1", schema.Int(456)),
			schema.F("new1", schema.Int(987)),
			schema.F("new2", schema.Text("baz")),
		}),
	}
	if !contains(got, want) {
		t.Errorf("old read as new: %s", schema.Format(got))
	}

	newMsg, err := h.enc.Encode(newSt, schema.Struct{
		schema.F("old1", schema.Int(1)),
		schema.F("new1", schema.Int(2)),
		schema.F("new2", schema.Text("qux")),
	})
	if err != nil {
		t.Fatal(err)
	}
	got, err = h.dec.Decode(oldSt, newMsg)
	if err != nil {
		t.Fatal(err)
	}
	want = schema.Struct{schema.F("old1", schema.Int(1)), schema.F("old2", schema.Text(""))}
	if !schema.Equal(got, want) {
		t.Errorf("new read as old: %s", schema.Format(got))
	}
}

func TestUnknownEnumerant(t *testing.T) {
	h := newHarness(t, fixtures.Schema(), Options{})
	got := h.roundTrip(t, "TestAllTypes", schema.Struct{schema.F("enumField", schema.Uint(42))})
	if v, _ := got.Get("enumField"); !schema.Equal(v, schema.Uint(42)) {
		t.Errorf("enumField = %s, want 42", schema.Format(v))
	}
}

func TestEmptyStruct(t *testing.T) {
	h := newHarness(t, fixtures.Schema(), Options{})
	st := h.layout(t, "TestEmptyStruct")
	v := schema.Struct{
		schema.F("empty", schema.Struct{}),
		schema.F("list", schema.List{schema.Struct{}, schema.Struct{}, schema.Struct{}}),
	}
	msg, err := h.enc.Encode(st, v)
	if err != nil {
		t.Fatal(err)
	}
	if got := binary.LittleEndian.Uint64(msg[16:]); got != wire.StructPointer(-1, 0, 0) {
		t.Errorf("empty struct pointer = %#x", got)
	}
	got, err := h.dec.Decode(st, msg)
	if err != nil {
		t.Fatal(err)
	}
	if !schema.Equal(got, v) {
		t.Errorf("got %s", schema.Format(got))
	}
}

func TestCapabilitiesAndAnyPointer(t *testing.T) {
	h := newHarness(t, fixtures.Schema(), Options{})
	inner, err := h.enc.Encode(h.layout(t, "TestOldVersion"), schema.Struct{
		schema.F("old1", schema.Int(5)),
		schema.F("old2", schema.Text("payload")),
	})
	if err != nil {
		t.Fatal(err)
	}

	got := h.roundTrip(t, "TestGenerics", schema.Struct{
		schema.F("box", schema.Struct{
			schema.F("value", schema.Capability(9)),
			schema.F("label", schema.Text("boxed")),
		}),
		schema.F("any", schema.RawPointer{Message: inner}),
		schema.F("cap", schema.Capability(3)),
	})

	if v, _ := got.Get("cap"); !schema.Equal(v, schema.Capability(3)) {
		t.Errorf("cap = %s", schema.Format(v))
	}
	box, _ := got.Get("box")
	if !contains(box, schema.Struct{schema.F("value", schema.Capability(9)), schema.F("label", schema.Text("boxed"))}) {
		t.Errorf("box = %s", schema.Format(box))
	}

	v, _ := got.Get("any")
	raw, ok := v.(schema.RawPointer)
	if !ok {
		t.Fatalf("any = %T", v)
	}
	payload, err := h.dec.Decode(h.layout(t, "TestOldVersion"), raw.Message)
	if err != nil {
		t.Fatal(err)
	}
	if !contains(payload, schema.Struct{schema.F("old1", schema.Int(5)), schema.F("old2", schema.Text("payload"))}) {
		t.Errorf("payload = %s", schema.Format(payload))
	}
}

func TestNullPointers(t *testing.T) {
	h := newHarness(t, fixtures.Schema(), Options{})
	got := h.roundTrip(t, "TestGenerics", schema.Struct{})
	for _, name := range []string{"box", "cap"} {
		if got.Has(name) {
			t.Errorf("null %s decoded", name)
		}
	}
	if v, _ := got.Get("any"); !schema.Equal(v, schema.RawPointer{}) {
		t.Errorf("null any = %s", schema.Format(v))
	}

	got = h.roundTrip(t, "TestAllTypes", schema.Struct{})
	for name, want := range map[string]schema.Value{
		"textField": schema.Text(""),
		"dataField": schema.Data{},
		"int32List": schema.List{},
	} {
		if v, _ := got.Get(name); !schema.Equal(v, want) {
			t.Errorf("null %s = %s", name, schema.Format(v))
		}
	}
	if got.Has("structField") {
		t.Error("null structField decoded")
	}
}

func TestEncodeErrors(t *testing.T) {
	h := newHarness(t, fixtures.Schema(), Options{})
	tests := []struct {
		name   string
		st     string
		value  schema.Struct
		kind   errors.Kind
		inPath string
	}{
		{"unknown field", "TestAllTypes", schema.Struct{schema.F("nope", schema.Int(1))}, errors.KindFieldUnknown, ""},
		{"unknown nested field", "TestAllTypes",
			schema.Struct{schema.F("structField", schema.Struct{schema.F("nope", schema.Int(1))})},
			errors.KindFieldUnknown, "structField"},
		{"text for int", "TestAllTypes", schema.Struct{schema.F("int32Field", schema.Text("1"))}, errors.KindTypeMismatch, "int32Field"},
		{"int for text", "TestAllTypes", schema.Struct{schema.F("textField", schema.Int(1))}, errors.KindTypeMismatch, "textField"},
		{"scalar for list", "TestAllTypes", schema.Struct{schema.F("int8List", schema.Int(1))}, errors.KindTypeMismatch, "int8List"},
		{"bad list element", "TestAllTypes", schema.Struct{schema.F("int8List", schema.List{schema.Int(1), schema.Text("x")})}, errors.KindTypeMismatch, "[1]"},
		{"int8 overflow", "TestAllTypes", schema.Struct{schema.F("int8Field", schema.Int(200))}, errors.KindOverflow, "int8Field"},
		{"negative unsigned", "TestAllTypes", schema.Struct{schema.F("uInt32Field", schema.Int(-1))}, errors.KindOverflow, "uInt32Field"},
		{"float32 overflow", "TestAllTypes", schema.Struct{schema.F("float32Field", schema.Float(1e300))}, errors.KindOverflow, "float32Field"},
		{"list element overflow", "TestAllTypes", schema.Struct{schema.F("uInt8List", schema.List{schema.Uint(256)})}, errors.KindOverflow, "uInt8List"},
		{"unknown enumerant", "TestAllTypes", schema.Struct{schema.F("enumField", schema.Enum("nope"))}, errors.KindTypeMismatch, "enumField"},
		{"void mismatch", "TestAllTypes", schema.Struct{schema.F("voidField", schema.Int(0))}, errors.KindTypeMismatch, "voidField"},
		{"two union members", "TestUnnamedUnion",
			schema.Struct{schema.F("foo", schema.Uint(1)), schema.F("bar", schema.Uint(2))},
			errors.KindInvalidVariant, ""},
		{"two named union members", "TestUnion",
			schema.Struct{schema.F("union0", schema.Struct{schema.F("u0f0s1", schema.Bool(true)), schema.F("u0f0s8", schema.Int(1))})},
			errors.KindInvalidVariant, "union0"},
		{"group not a struct", "TestGroups",
			schema.Struct{schema.F("groups", schema.Struct{schema.F("foo", schema.Int(1))})},
			errors.KindTypeMismatch, "foo"},
		{"capability for struct", "TestGenerics", schema.Struct{schema.F("box", schema.Capability(1))}, errors.KindTypeMismatch, "box"},
		{"text for any pointer", "TestGenerics", schema.Struct{schema.F("any", schema.Text("x"))}, errors.KindTypeMismatch, "any"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.enc.Encode(h.layout(t, tt.st), tt.value)
			if !isKind(err, tt.kind) {
				t.Fatalf("error = %v, want kind %s", err, tt.kind)
			}
			var e *errors.Error
			if !stderrors.As(err, &e) || e.Phase != errors.PhaseEncode {
				t.Errorf("error phase = %v", err)
			}
			if tt.inPath != "" && !hasPathElem(e.Path, tt.inPath) {
				t.Errorf("path %v does not name %s", e.Path, tt.inPath)
			}
		})
	}
}

func hasPathElem(path []string, elem string) bool {
	for _, p := range path {
		if p == elem {
			return true
		}
	}
	return false
}

func TestEncodeDepthLimit(t *testing.T) {
	h := newHarness(t, fixtures.Schema(), Options{MaxDepth: 4})
	v := schema.Struct{}
	for range 6 {
		v = schema.Struct{schema.F("structField", v)}
	}
	_, err := h.enc.Encode(h.layout(t, "TestAllTypes"), v)
	if !isKind(err, errors.KindLimitExceeded) {
		t.Fatalf("error = %v, want limit exceeded", err)
	}
}

func TestDecodeErrors(t *testing.T) {
	h := newHarness(t, fixtures.Schema(), Options{})
	st := h.layout(t, "TestUnnamedUnion")
	valid, err := h.enc.Encode(st, schema.Struct{schema.F("bar", schema.Uint(1))})
	if err != nil {
		t.Fatal(err)
	}

	badTag := bytes.Clone(valid)
	// data section starts after the header and root pointer; tag is bits 32..47
	binary.LittleEndian.PutUint16(badTag[16+4:], 5)

	far, err := wire.Frame(binary.LittleEndian.AppendUint64(nil, 2))
	if err != nil {
		t.Fatal(err)
	}
	listRoot, err := wire.Frame(binary.LittleEndian.AppendUint64(nil, wire.ListPointer(0, wire.SizeByte, 0)))
	if err != nil {
		t.Fatal(err)
	}
	outOfRange, err := wire.Frame(binary.LittleEndian.AppendUint64(nil, wire.StructPointer(10, 1, 0)))
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		msg  []byte
		kind errors.Kind
	}{
		{"empty input", nil, errors.KindTruncated},
		{"short header", valid[:6], errors.KindTruncated},
		{"short body", valid[:len(valid)-8], errors.KindTruncated},
		{"no segment words", []byte{0, 0, 0, 0, 0, 0, 0, 0}, errors.KindTruncated},
		{"bad discriminant", badTag, errors.KindInvalidVariant},
		{"far pointer", far, errors.KindUnsupported},
		{"list as root", listRoot, errors.KindInvalidData},
		{"pointer out of segment", outOfRange, errors.KindOutOfBounds},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.dec.Decode(st, tt.msg)
			if !isKind(err, tt.kind) {
				t.Fatalf("error = %v, want kind %s", err, tt.kind)
			}
		})
	}
}

func TestDecodeTypeMismatch(t *testing.T) {
	writer := newHarness(t, schema.NewFile("writer.capnp",
		schema.NewStruct("S", schema.Field("l", 0, schema.ListOf(schema.T("Int32")))),
	), Options{})
	reader := newHarness(t, schema.NewFile("reader.capnp",
		schema.NewStruct("S", schema.Field("l", 0, schema.ListOf(schema.T("Text")))),
	), Options{})
	msg, err := writer.enc.Encode(writer.layout(t, "S"), schema.Struct{schema.F("l", schema.List{schema.Int(1)})})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := reader.dec.Decode(reader.layout(t, "S"), msg); !isKind(err, errors.KindTypeMismatch) {
		t.Errorf("error = %v, want type mismatch", err)
	}
}

func TestTraversalLimit(t *testing.T) {
	h := newHarness(t, fixtures.Schema(), Options{})
	st := h.layout(t, "TestAllTypes")
	big := make(schema.List, 100)
	for i := range big {
		big[i] = schema.Int(int64(i))
	}
	msg, err := h.enc.Encode(st, schema.Struct{schema.F("int64List", big)})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := h.dec.Decode(st, msg); err != nil {
		t.Fatalf("default limit: %v", err)
	}
	tight := NewDecoder(h.planner, Options{TraversalLimitWords: 50})
	if _, err := tight.Decode(st, msg); !isKind(err, errors.KindLimitExceeded) {
		t.Errorf("error = %v, want limit exceeded", err)
	}
}

func TestTraversalLimitVoidAmplification(t *testing.T) {
	h := newHarness(t, fixtures.Schema(), Options{})
	st := h.layout(t, "TestAllTypes")
	// a void list of a million elements occupies no words
	seg := make([]byte, 8*27)
	binary.LittleEndian.PutUint64(seg, wire.StructPointer(0, 6, 20))
	voidList := 1 + 6 + 3
	binary.LittleEndian.PutUint64(seg[8*voidList:], wire.ListPointer(0, wire.SizeVoid, 1<<20))
	msg, err := wire.Frame(seg)
	if err != nil {
		t.Fatal(err)
	}
	dec := NewDecoder(h.planner, Options{TraversalLimitWords: 1 << 10})
	if _, err := dec.Decode(st, msg); !isKind(err, errors.KindLimitExceeded) {
		t.Errorf("error = %v, want limit exceeded", err)
	}
}

func TestDecodeDepthLimit(t *testing.T) {
	h := newHarness(t, fixtures.Schema(), Options{})
	st := h.layout(t, "TestAllTypes")
	v := schema.Struct{}
	for range 10 {
		v = schema.Struct{schema.F("structField", v)}
	}
	msg, err := h.enc.Encode(st, v)
	if err != nil {
		t.Fatal(err)
	}
	shallow := NewDecoder(h.planner, Options{MaxDepth: 5})
	if _, err := shallow.Decode(st, msg); !isKind(err, errors.KindLimitExceeded) {
		t.Errorf("error = %v, want limit exceeded", err)
	}
}

func TestDecodeSegment(t *testing.T) {
	h := newHarness(t, fixtures.Schema(), Options{})
	st := h.layout(t, "TestOutOfOrder")
	b := wire.NewBuilder()
	v := schema.Struct{
		schema.F("foo", schema.Text("foo")),
		schema.F("bar", schema.Text("bar")),
		schema.F("baz", schema.Text("baz")),
		schema.F("qux", schema.Text("qux")),
	}
	if err := h.enc.EncodeInto(b, st, v); err != nil {
		t.Fatal(err)
	}
	seg, err := b.SegmentBytes()
	if err != nil {
		t.Fatal(err)
	}
	got, err := h.dec.DecodeSegment(st, wire.SegmentOf(seg))
	if err != nil {
		t.Fatal(err)
	}
	if !schema.Equal(got, v) {
		t.Errorf("got %s", schema.Format(got))
	}
}

func TestConcurrentCodec(t *testing.T) {
	h := newHarness(t, fixtures.Schema(), Options{Logger: zaptest.NewLogger(t)})
	st := h.layout(t, "TestAllTypes")
	want, err := h.enc.Encode(st, allTypes())
	if err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 20 {
				msg, err := h.enc.Encode(st, allTypes())
				if err != nil {
					t.Error(err)
					return
				}
				if !bytes.Equal(msg, want) {
					t.Error("concurrent encode produced different bytes")
					return
				}
				got, err := h.dec.Decode(st, msg)
				if err != nil {
					t.Error(err)
					return
				}
				if !contains(got, allTypes()) {
					t.Error("concurrent decode mismatch")
					return
				}
			}
		}()
	}
	wg.Wait()
}

func BenchmarkEncodeAllTypes(b *testing.B) {
	p := NewPlanner(fixtures.Schema(), layout.Options{})
	st, err := p.PlanName("TestAllTypes")
	if err != nil {
		b.Fatal(err)
	}
	enc := NewEncoder(p, Options{})
	v := allTypes()
	b.ResetTimer()
	for range b.N {
		if _, err := enc.Encode(st, v); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkDecodeAllTypes(b *testing.B) {
	p := NewPlanner(fixtures.Schema(), layout.Options{})
	st, err := p.PlanName("TestAllTypes")
	if err != nil {
		b.Fatal(err)
	}
	msg, err := NewEncoder(p, Options{}).Encode(st, allTypes())
	if err != nil {
		b.Fatal(err)
	}
	dec := NewDecoder(p, Options{})
	b.ResetTimer()
	for range b.N {
		if _, err := dec.Decode(st, msg); err != nil {
			b.Fatal(err)
		}
	}
}

func TestIsDefaultBytes(t *testing.T) {
	h := newHarness(t, fixtures.Schema(), Options{})
	st := h.layout(t, "TestDefaults")
	def := st.Lookup("textField").DefaultBytes
	other := st.Lookup("dataField").DefaultBytes
	null := make([]byte, 16)
	binary.LittleEndian.PutUint32(null[4:], 1)

	tests := []struct {
		name   string
		stored []byte
		def    []byte
		want   bool
	}{
		{"same object", append([]byte(nil), def...), def, true},
		{"null root", null, def, true},
		{"null root without default", null, nil, true},
		{"different object", other, def, false},
		{"object without default", def, nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := IsDefaultBytes(tt.stored, tt.def)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("IsDefaultBytes = %v, want %v", got, tt.want)
			}
		})
	}

	if _, err := IsDefaultBytes([]byte{1, 2}, def); !isKind(err, errors.KindTruncated) {
		t.Errorf("short message error = %v", err)
	}
}
