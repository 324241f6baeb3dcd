package schema

import (
	"bytes"
	"encoding/hex"
	"math"
	"strconv"
	"strings"
)

// Value is a literal value tree: a default, a constant, or a decoded message.
type Value interface {
	isValue()
}

type (
	Void  struct{}
	Bool  bool
	Int   int64
	Uint  uint64
	Float float64
	Text  string
	Data  []byte
	List  []Value
	// Enum names an enumerant of the field's enum type.
	Enum string
	// Ref names a constant or enumerant, resolved at plan time.
	Ref string
	// Capability is an opaque index into a message's capability table.
	Capability uint32
)

// Struct is a set of named member assignments. Order carries no meaning.
type Struct []FieldValue

type FieldValue struct {
	Value Value
	Name  string
}

// RawPointer carries an untyped object as a standalone encoded message
// whose root pointer is the object. It is the value of AnyPointer fields.
type RawPointer struct {
	Message []byte
}

func (Void) isValue()       {}
func (Bool) isValue()       {}
func (Int) isValue()        {}
func (Uint) isValue()       {}
func (Float) isValue()      {}
func (Text) isValue()       {}
func (Data) isValue()       {}
func (List) isValue()       {}
func (Enum) isValue()       {}
func (Ref) isValue()        {}
func (Capability) isValue() {}
func (Struct) isValue()     {}
func (RawPointer) isValue() {}

// Get returns the value assigned to name.
func (s Struct) Get(name string) (Value, bool) {
	for _, f := range s {
		if f.Name == name {
			return f.Value, true
		}
	}
	return nil, false
}

// Has reports whether name is assigned.
func (s Struct) Has(name string) bool {
	_, ok := s.Get(name)
	return ok
}

// Equal compares two value trees. Struct members compare as sets, Int and
// Uint compare numerically, floats compare by bit pattern.
func Equal(a, b Value) bool {
	switch x := a.(type) {
	case nil:
		return b == nil
	case Void:
		_, ok := b.(Void)
		return ok
	case Bool:
		y, ok := b.(Bool)
		return ok && x == y
	case Int:
		switch y := b.(type) {
		case Int:
			return x == y
		case Uint:
			return x >= 0 && uint64(x) == uint64(y)
		}
		return false
	case Uint:
		switch y := b.(type) {
		case Uint:
			return x == y
		case Int:
			return y >= 0 && uint64(y) == uint64(x)
		}
		return false
	case Float:
		y, ok := b.(Float)
		return ok && math.Float64bits(float64(x)) == math.Float64bits(float64(y))
	case Text:
		y, ok := b.(Text)
		return ok && x == y
	case Data:
		y, ok := b.(Data)
		return ok && bytes.Equal(x, y)
	case Enum:
		y, ok := b.(Enum)
		return ok && x == y
	case Ref:
		y, ok := b.(Ref)
		return ok && x == y
	case Capability:
		y, ok := b.(Capability)
		return ok && x == y
	case RawPointer:
		y, ok := b.(RawPointer)
		return ok && bytes.Equal(x.Message, y.Message)
	case List:
		y, ok := b.(List)
		if !ok || len(x) != len(y) {
			return false
		}
		for i := range x {
			if !Equal(x[i], y[i]) {
				return false
			}
		}
		return true
	case Struct:
		y, ok := b.(Struct)
		if !ok || len(x) != len(y) {
			return false
		}
		for _, f := range x {
			v, ok := y.Get(f.Name)
			if !ok || !Equal(f.Value, v) {
				return false
			}
		}
		return true
	}
	return false
}

// Format renders a value in schema literal syntax.
func Format(v Value) string {
	var b strings.Builder
	format(&b, v)
	return b.String()
}

func format(b *strings.Builder, v Value) {
	switch x := v.(type) {
	case nil:
		b.WriteString("null")
	case Void:
		b.WriteString("void")
	case Bool:
		b.WriteString(strconv.FormatBool(bool(x)))
	case Int:
		b.WriteString(strconv.FormatInt(int64(x), 10))
	case Uint:
		b.WriteString(strconv.FormatUint(uint64(x), 10))
	case Float:
		b.WriteString(FormatFloat(float64(x), 64))
	case Text:
		b.WriteString(strconv.Quote(string(x)))
	case Data:
		b.WriteString("0x\"")
		b.WriteString(hex.EncodeToString(x))
		b.WriteByte('"')
	case Enum:
		b.WriteString(string(x))
	case Ref:
		b.WriteString(string(x))
	case Capability:
		b.WriteString("cap#")
		b.WriteString(strconv.FormatUint(uint64(x), 10))
	case RawPointer:
		b.WriteString("<")
		b.WriteString(strconv.Itoa(len(x.Message)))
		b.WriteString(" bytes>")
	case List:
		b.WriteByte('[')
		for i, e := range x {
			if i > 0 {
				b.WriteString(", ")
			}
			format(b, e)
		}
		b.WriteByte(']')
	case Struct:
		b.WriteByte('(')
		for i, f := range x {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(f.Name)
			b.WriteString(" = ")
			format(b, f.Value)
		}
		b.WriteByte(')')
	}
}

// FormatFloat renders f so that whole numbers keep a floating marker
// ("123.0", "2e+30") and the text reparses to the same bits.
func FormatFloat(f float64, bitSize int) string {
	switch {
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	case math.IsNaN(f):
		return "nan"
	}
	s := strconv.FormatFloat(f, 'g', -1, bitSize)
	if !strings.ContainsAny(s, ".e") {
		s += ".0"
	}
	return s
}
