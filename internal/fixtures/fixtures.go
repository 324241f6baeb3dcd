// Package fixtures holds the conformance schema shared by the layout,
// codec and witbridge tests.
package fixtures

import (
	"fmt"

	"github.com/wippyai/capnp-layout/schema"
)

// Schema returns a freshly linked copy of the conformance schema. Each
// call returns new nodes so planners never share state through it.
func Schema() *schema.File {
	return schema.NewFile("test.capnp",
		testEnum(),
		testAllTypes(),
		testDefaults(),
		testUnion(),
		testUnnamedUnion(),
		testUnionInUnion(),
		testUnionDefaults(),
		testGroups(),
		testInterleavedGroups(),
		testLists(),
		schema.NewStruct("TestOldVersion",
			schema.Field("old1", 0, schema.T("Int64")),
			schema.Field("old2", 1, schema.T("Text")),
			schema.Field("old3", 2, schema.T("TestOldVersion")),
		),
		schema.NewStruct("TestNewVersion",
			schema.Field("old1", 0, schema.T("Int64")),
			schema.Field("old2", 1, schema.T("Text")),
			schema.Field("old3", 2, schema.T("TestNewVersion")),
			schema.FieldDefault("new1", 3, schema.T("Int64"), schema.Int(987)),
			schema.FieldDefault("new2", 4, schema.T("Text"), schema.Text("baz")),
		),
		schema.NewStruct("TestOutOfOrder",
			schema.Field("foo", 3, schema.T("Text")),
			schema.Field("bar", 2, schema.T("Text")),
			schema.Field("baz", 8, schema.T("Text")),
			schema.Field("qux", 0, schema.T("Text")),
		),
		schema.NewStruct("TestFieldZeroIsBit",
			schema.Field("bit", 0, schema.T("Bool")),
			schema.FieldDefault("secondBit", 1, schema.T("Bool"), schema.Bool(true)),
			schema.FieldDefault("thirdField", 2, schema.T("UInt8"), schema.Uint(123)),
		),
		schema.NewGenericStruct("Box", []string{"T"},
			schema.Field("value", 0, schema.T("T")),
			schema.Field("label", 1, schema.T("Text")),
		),
		schema.NewStruct("TestGenerics",
			schema.Field("box", 0, schema.Generic("Box", schema.T("Text"))),
			schema.Field("any", 1, schema.T("AnyPointer")),
			schema.Field("cap", 2, schema.T("Service")),
		),
		schema.NewInterface("Service"),
		schema.NewStruct("TestConstRefs",
			schema.FieldDefault("limit", 0, schema.T("UInt32"), schema.Ref("defaultLimit")),
			schema.FieldDefault("mode", 1, schema.T("TestEnum"), schema.Ref("TestEnum.garply")),
			schema.FieldDefault("name", 2, schema.T("Text"), schema.Ref("Consts.greeting")),
		),
		schema.NewStruct("Consts").With(
			schema.NewConst("greeting", schema.T("Text"), schema.Text("hello")),
		),
		schema.NewConst("defaultLimit", schema.T("UInt32"), schema.Ref("baseLimit")),
		schema.NewConst("baseLimit", schema.T("UInt32"), schema.Uint(1000)),
		schema.NewStruct("Outer",
			schema.Field("inner", 0, schema.T("Inner")),
			schema.Field("kind", 1, schema.T("Kind")),
		).With(
			schema.NewStruct("Inner",
				schema.Field("value", 0, schema.T("Int32")),
				schema.Field("deep", 1, schema.T("Deep")),
			).With(
				schema.NewStruct("Deep", schema.Field("flag", 0, schema.T("Bool"))),
			),
			schema.NewEnum("Kind", "plain", "fancy"),
		),
		schema.NewStruct("Empty"),
		schema.NewStruct("TestEmptyStruct",
			schema.Field("empty", 0, schema.T("Empty")),
			schema.Field("list", 1, schema.ListOf(schema.T("Empty"))),
		),
	)
}

// CyclicSchema declares constants that reference each other.
func CyclicSchema() *schema.File {
	return schema.NewFile("cyclic.capnp",
		schema.NewConst("a", schema.T("UInt32"), schema.Ref("b")),
		schema.NewConst("b", schema.T("UInt32"), schema.Ref("c")),
		schema.NewConst("c", schema.T("UInt32"), schema.Ref("a")),
		schema.NewStruct("UsesCycle",
			schema.FieldDefault("v", 0, schema.T("UInt32"), schema.Ref("a")),
		),
	)
}

func testEnum() *schema.Node {
	return schema.NewEnum("TestEnum", "foo", "bar", "baz", "qux", "quux", "corge", "grault", "garply")
}

var scalarTypes = []string{
	"Bool", "Int8", "Int16", "Int32", "Int64",
	"UInt8", "UInt16", "UInt32", "UInt64", "Float32", "Float64",
}

func fieldName(typ, suffix string) string {
	return string(typ[0]+'a'-'A') + typ[1:] + suffix
}

func testAllTypes() *schema.Node {
	members := []*schema.Member{schema.Field("voidField", 0, schema.T("Void"))}
	for i, typ := range scalarTypes {
		members = append(members, schema.Field(fieldName(typ, "Field"), i+1, schema.T(typ)))
	}
	members = append(members,
		schema.Field("textField", 12, schema.T("Text")),
		schema.Field("dataField", 13, schema.T("Data")),
		schema.Field("structField", 14, schema.T("TestAllTypes")),
		schema.Field("enumField", 15, schema.T("TestEnum")),
		schema.Field("interfaceField", 16, schema.T("Void")),
		schema.Field("voidList", 17, schema.ListOf(schema.T("Void"))),
	)
	for i, typ := range scalarTypes {
		members = append(members, schema.Field(fieldName(typ, "List"), 18+i, schema.ListOf(schema.T(typ))))
	}
	members = append(members,
		schema.Field("textList", 29, schema.ListOf(schema.T("Text"))),
		schema.Field("dataList", 30, schema.ListOf(schema.T("Data"))),
		schema.Field("structList", 31, schema.ListOf(schema.T("TestAllTypes"))),
		schema.Field("enumList", 32, schema.ListOf(schema.T("TestEnum"))),
		schema.Field("interfaceList", 33, schema.ListOf(schema.T("Void"))),
	)
	return schema.NewStruct("TestAllTypes", members...)
}

func testDefaults() *schema.Node {
	return schema.NewStruct("TestDefaults",
		schema.Field("voidField", 0, schema.T("Void")),
		schema.FieldDefault("boolField", 1, schema.T("Bool"), schema.Bool(true)),
		schema.FieldDefault("int8Field", 2, schema.T("Int8"), schema.Int(-123)),
		schema.FieldDefault("int16Field", 3, schema.T("Int16"), schema.Int(-12345)),
		schema.FieldDefault("int32Field", 4, schema.T("Int32"), schema.Int(-12345678)),
		schema.FieldDefault("int64Field", 5, schema.T("Int64"), schema.Int(-123456789012345)),
		schema.FieldDefault("uInt8Field", 6, schema.T("UInt8"), schema.Uint(234)),
		schema.FieldDefault("uInt16Field", 7, schema.T("UInt16"), schema.Uint(45678)),
		schema.FieldDefault("uInt32Field", 8, schema.T("UInt32"), schema.Uint(3456789012)),
		schema.FieldDefault("uInt64Field", 9, schema.T("UInt64"), schema.Uint(12345678901234567890)),
		schema.FieldDefault("float32Field", 10, schema.T("Float32"), schema.Float(1234.5)),
		schema.FieldDefault("float64Field", 11, schema.T("Float64"), schema.Float(-123e45)),
		schema.FieldDefault("textField", 12, schema.T("Text"), schema.Text("foo")),
		schema.FieldDefault("dataField", 13, schema.T("Data"), schema.Data("bar")),
		schema.FieldDefault("structField", 14, schema.T("TestAllTypes"), schema.Struct{
			schema.F("int32Field", schema.Int(-1234567)),
			schema.F("textField", schema.Text("baz")),
			schema.F("structField", schema.Struct{schema.F("textField", schema.Text("nested"))}),
		}),
		schema.FieldDefault("enumField", 15, schema.T("TestEnum"), schema.Enum("corge")),
		schema.Field("interfaceField", 16, schema.T("Void")),
		schema.FieldDefault("voidList", 17, schema.ListOf(schema.T("Void")), schema.List{schema.Void{}, schema.Void{}, schema.Void{}}),
		schema.FieldDefault("boolList", 18, schema.ListOf(schema.T("Bool")), schema.List{schema.Bool(true), schema.Bool(false), schema.Bool(false), schema.Bool(true)}),
		schema.FieldDefault("int8List", 19, schema.ListOf(schema.T("Int8")), schema.List{schema.Int(111), schema.Int(-111)}),
		schema.FieldDefault("int16List", 20, schema.ListOf(schema.T("Int16")), schema.List{schema.Int(11111), schema.Int(-11111)}),
		schema.FieldDefault("int32List", 21, schema.ListOf(schema.T("Int32")), schema.List{schema.Int(111111111), schema.Int(-111111111)}),
		schema.FieldDefault("int64List", 22, schema.ListOf(schema.T("Int64")), schema.List{schema.Int(1111111111111111111), schema.Int(-1111111111111111111)}),
		schema.FieldDefault("uInt8List", 23, schema.ListOf(schema.T("UInt8")), schema.List{schema.Uint(111), schema.Uint(222)}),
		schema.FieldDefault("float32List", 24, schema.ListOf(schema.T("Float32")), schema.List{schema.Float(5555.5), schema.Float(0), schema.Float(2)}),
		schema.FieldDefault("textList", 25, schema.ListOf(schema.T("Text")), schema.List{schema.Text("plugh"), schema.Text("xyzzy"), schema.Text("thud")}),
		schema.FieldDefault("dataList", 26, schema.ListOf(schema.T("Data")), schema.List{schema.Data("oops"), schema.Data("exhausted")}),
		schema.FieldDefault("structList", 27, schema.ListOf(schema.T("TestAllTypes")), schema.List{
			schema.Struct{schema.F("textField", schema.Text("structlist 1"))},
			schema.Struct{schema.F("textField", schema.Text("structlist 2"))},
		}),
		schema.FieldDefault("enumList", 28, schema.ListOf(schema.T("TestEnum")), schema.List{schema.Enum("foo"), schema.Enum("garply")}),
		schema.FieldDefault("float64Int", 29, schema.T("Float64"), schema.Int(123)),
		schema.FieldDefault("float32Exp", 30, schema.T("Float32"), schema.Float(2e30)),
	)
}

// unionFields declares one member per width for a union, suffixed by tag
// group, e.g. u0f0s0 .. u0f0sp.
func unionFields(prefix string, ordinal int, widths ...string) []*schema.Member {
	types := map[string]string{
		"0": "Void", "1": "Bool", "8": "Int8", "16": "Int16",
		"32": "Int32", "64": "Int64", "p": "Text",
	}
	var out []*schema.Member
	for _, w := range widths {
		out = append(out, schema.Field(fmt.Sprintf("%ss%s", prefix, w), ordinal, schema.T(types[w])))
		ordinal++
	}
	return out
}

func testUnion() *schema.Node {
	all := []string{"0", "1", "8", "16", "32", "64", "p"}

	union0 := append(unionFields("u0f0", 4, all...), unionFields("u0f1", 11, all...)...)

	var union1 []*schema.Member
	union1 = append(union1, schema.Field("u1f0s0", 19, schema.T("Void")))
	ord := 20
	for _, w := range []string{"1", "8", "16", "32", "64", "p"} {
		union1 = append(union1,
			unionFields("u1f0", ord, w)[0],
			unionFields("u1f1", ord+1, w)[0])
		ord += 2
	}
	union1 = append(union1, unionFields("u1f2", 32, all...)...)

	members := []*schema.Member{
		schema.UnionAt("union0", 0, union0...),
		schema.Field("bit0", 18, schema.T("Bool")),
		schema.UnionAt("union1", 1, union1...),
	}
	for i := 2; i <= 7; i++ {
		members = append(members, schema.Field(fmt.Sprintf("bit%d", i), 37+i, schema.T("Bool")))
	}
	members = append(members,
		// declared in reverse so tags must follow ordinals, not declaration order
		schema.UnionAt("union2", 2,
			schema.Field("u2f0s64", 54, schema.T("Int64")),
			schema.Field("u2f0s32", 52, schema.T("Int32")),
			schema.Field("u2f0s16", 50, schema.T("Int16")),
			schema.Field("u2f0s8", 47, schema.T("Int8")),
			schema.Field("u2f0s1", 45, schema.T("Bool")),
		),
		schema.UnionAt("union3", 3,
			schema.Field("u3f0s64", 55, schema.T("Int64")),
			schema.Field("u3f0s32", 53, schema.T("Int32")),
			schema.Field("u3f0s16", 51, schema.T("Int16")),
			schema.Field("u3f0s8", 48, schema.T("Int8")),
			schema.Field("u3f0s1", 46, schema.T("Bool")),
		),
		schema.Field("byte0", 49, schema.T("UInt8")),
	)
	return schema.NewStruct("TestUnion", members...)
}

func testUnnamedUnion() *schema.Node {
	return schema.NewStruct("TestUnnamedUnion",
		schema.Field("before", 0, schema.T("Text")),
		schema.Union("",
			schema.Field("foo", 1, schema.T("UInt16")),
			schema.Field("bar", 3, schema.T("UInt32")),
		),
		schema.Field("middle", 2, schema.T("UInt16")),
		schema.Field("after", 4, schema.T("Text")),
	)
}

func testUnionInUnion() *schema.Node {
	return schema.NewStruct("TestUnionInUnion",
		schema.Union("outer",
			schema.Group("inner",
				schema.Union("",
					schema.Field("foo", 0, schema.T("Int32")),
					schema.Field("bar", 1, schema.T("Int32")),
				),
			),
			schema.Field("baz", 2, schema.T("Int32")),
		),
	)
}

func testUnionDefaults() *schema.Node {
	return schema.NewStruct("TestUnionDefaults",
		schema.FieldDefault("s16s8s64s8Set", 0, schema.T("TestUnion"), schema.Struct{
			schema.F("union0", schema.Struct{schema.F("u0f0s16", schema.Int(321))}),
			schema.F("union1", schema.Struct{schema.F("u1f0s8", schema.Int(123))}),
			schema.F("union2", schema.Struct{schema.F("u2f0s64", schema.Int(12345678901234567))}),
			schema.F("union3", schema.Struct{schema.F("u3f0s8", schema.Int(55))}),
		}),
		schema.FieldDefault("unnamed1", 1, schema.T("TestUnnamedUnion"), schema.Struct{schema.F("foo", schema.Uint(123))}),
		schema.FieldDefault("unnamed2", 2, schema.T("TestUnnamedUnion"), schema.Struct{
			schema.F("bar", schema.Uint(321)),
			schema.F("before", schema.Text("foo")),
			schema.F("after", schema.Text("bar")),
		}),
	)
}

func testGroups() *schema.Node {
	return schema.NewStruct("TestGroups",
		schema.Union("groups",
			schema.Group("foo",
				schema.Field("corge", 0, schema.T("Int32")),
				schema.Field("grault", 2, schema.T("Int64")),
				schema.Field("garply", 8, schema.T("Text")),
			),
			schema.Group("bar",
				schema.Field("corge", 3, schema.T("Int32")),
				schema.Field("grault", 4, schema.T("Text")),
				schema.Field("garply", 5, schema.T("Int64")),
			),
			schema.Group("baz",
				schema.Field("corge", 1, schema.T("Int32")),
				schema.Field("grault", 6, schema.T("Text")),
				schema.Field("garply", 7, schema.T("Text")),
			),
		),
	)
}

func testInterleavedGroups() *schema.Node {
	group := func(name string, base int) *schema.Member {
		return schema.Group(name,
			schema.Field("foo", base, schema.T("UInt32")),
			schema.Field("bar", base+2, schema.T("UInt64")),
			schema.Union("",
				schema.Field("qux", base+4, schema.T("UInt16")),
				schema.Group("corge",
					schema.Field("grault", base+6, schema.T("UInt64")),
					schema.Field("garply", base+8, schema.T("UInt16")),
					schema.Field("plugh", base+14, schema.T("Text")),
					schema.Field("xyzzy", base+16, schema.T("Text")),
				),
				schema.Field("fred", base+12, schema.T("Text")),
			),
			schema.Field("waldo", base+10, schema.T("Text")),
		)
	}
	return schema.NewStruct("TestInterleavedGroups",
		group("group1", 0),
		group("group2", 1),
	)
}

func testLists() *schema.Node {
	elem := func(name, typ string) *schema.Node {
		return schema.NewStruct(name, schema.Field("f", 0, schema.T(typ)))
	}
	padded := func(name, typ string) *schema.Node {
		return schema.NewStruct(name, schema.Field("f", 0, schema.T(typ)), schema.Field("pad", 1, schema.T("Text")))
	}
	return schema.NewStruct("TestLists",
		schema.Field("list0", 0, schema.ListOf(schema.T("Struct0"))),
		schema.Field("list1", 1, schema.ListOf(schema.T("Struct1"))),
		schema.Field("list8", 2, schema.ListOf(schema.T("Struct8"))),
		schema.Field("list16", 3, schema.ListOf(schema.T("Struct16"))),
		schema.Field("list32", 4, schema.ListOf(schema.T("Struct32"))),
		schema.Field("list64", 5, schema.ListOf(schema.T("Struct64"))),
		schema.Field("listP", 6, schema.ListOf(schema.T("StructP"))),
		schema.Field("int32ListList", 7, schema.ListOf(schema.ListOf(schema.T("Int32")))),
		schema.Field("textListList", 8, schema.ListOf(schema.ListOf(schema.T("Text")))),
		schema.Field("structListList", 9, schema.ListOf(schema.ListOf(schema.T("TestAllTypes")))),
		schema.Field("list8c", 10, schema.ListOf(schema.T("Struct8c"))),
		schema.Field("listU", 11, schema.ListOf(schema.T("StructU"))),
		schema.Field("self", 12, schema.ListOf(schema.T("TestLists"))),
	).With(
		schema.NewStruct("Struct0", schema.Field("f", 0, schema.T("Void"))),
		elem("Struct1", "Bool"),
		elem("Struct8", "UInt8"),
		elem("Struct16", "UInt16"),
		elem("Struct32", "UInt32"),
		elem("Struct64", "UInt64"),
		elem("StructP", "Text"),
		padded("Struct8c", "UInt8"),
		schema.NewStruct("StructU", schema.Union("",
			schema.Field("a", 0, schema.T("UInt8")),
			schema.Field("b", 1, schema.T("UInt8")),
		)),
	)
}
