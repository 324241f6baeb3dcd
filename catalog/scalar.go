package catalog

import (
	stderrors "errors"
	"fmt"
	"math"

	"fortio.org/safecast"

	"github.com/wippyai/capnp-layout/schema"
)

// ConvertError reports a literal that cannot be stored in a scalar type.
// Overflow distinguishes a range failure from a shape mismatch.
type ConvertError struct {
	Value    schema.Value
	Type     string
	Overflow bool
}

func (e *ConvertError) Error() string {
	if e.Overflow {
		return fmt.Sprintf("%s overflows %s", schema.Format(e.Value), e.Type)
	}
	return fmt.Sprintf("%s is not a valid %s", schema.Format(e.Value), e.Type)
}

// ScalarBits converts a literal to the raw little-endian bit pattern of a
// scalar of type t, in the low BitWidth bits of the result. Integer
// literals are accepted for float types and keep their exact value.
func ScalarBits(t *Type, v schema.Value) (uint64, error) {
	bits, err := scalarBits(t, v)
	if err != nil {
		overflow := stderrors.Is(err, safecast.ErrOutOfRange) || stderrors.Is(err, errFloatRange)
		return 0, &ConvertError{Value: v, Type: t.String(), Overflow: overflow}
	}
	return bits, nil
}

var (
	errShape      = stderrors.New("literal shape")
	errFloatRange = stderrors.New("float out of range")
)

func scalarBits(t *Type, v schema.Value) (uint64, error) {
	switch t.Kind {
	case KindVoid:
		if _, ok := v.(schema.Void); ok {
			return 0, nil
		}
	case KindBool:
		if b, ok := v.(schema.Bool); ok {
			if b {
				return 1, nil
			}
			return 0, nil
		}
	case KindInt8:
		i, err := signed[int8](v)
		return uint64(uint8(i)), err
	case KindInt16:
		i, err := signed[int16](v)
		return uint64(uint16(i)), err
	case KindInt32:
		i, err := signed[int32](v)
		return uint64(uint32(i)), err
	case KindInt64:
		i, err := signed[int64](v)
		return uint64(i), err
	case KindUInt8:
		u, err := unsigned[uint8](v)
		return uint64(u), err
	case KindUInt16:
		u, err := unsigned[uint16](v)
		return uint64(u), err
	case KindUInt32:
		u, err := unsigned[uint32](v)
		return uint64(u), err
	case KindUInt64:
		return unsigned[uint64](v)
	case KindFloat32:
		f, err := floatValue(v)
		if err != nil {
			return 0, err
		}
		if !math.IsInf(f, 0) && !math.IsNaN(f) && math.Abs(f) > math.MaxFloat32 {
			return 0, errFloatRange
		}
		return uint64(math.Float32bits(float32(f))), nil
	case KindFloat64:
		f, err := floatValue(v)
		return math.Float64bits(f), err
	case KindEnum:
		return enumBits(t, v)
	}
	return 0, errShape
}

func signed[T int8 | int16 | int32 | int64](v schema.Value) (T, error) {
	switch x := v.(type) {
	case schema.Int:
		return safecast.Conv[T](int64(x))
	case schema.Uint:
		return safecast.Conv[T](uint64(x))
	}
	return 0, errShape
}

func unsigned[T uint8 | uint16 | uint32 | uint64](v schema.Value) (T, error) {
	switch x := v.(type) {
	case schema.Int:
		return safecast.Conv[T](int64(x))
	case schema.Uint:
		return safecast.Conv[T](uint64(x))
	}
	return 0, errShape
}

func floatValue(v schema.Value) (float64, error) {
	switch x := v.(type) {
	case schema.Float:
		return float64(x), nil
	case schema.Int:
		return float64(x), nil
	case schema.Uint:
		return float64(x), nil
	}
	return 0, errShape
}

func enumBits(t *Type, v schema.Value) (uint64, error) {
	switch x := v.(type) {
	case schema.Enum:
		e, ok := t.Node.Enumerant(string(x))
		if !ok {
			return 0, errShape
		}
		u, err := safecast.Conv[uint16](e.Ordinal)
		return uint64(u), err
	case schema.Int, schema.Uint:
		u, err := unsigned[uint16](x)
		return uint64(u), err
	}
	return 0, errShape
}

// ScalarValue is the inverse of ScalarBits. Enum values without a known
// enumerant decode as Uint so newer writers stay readable.
func ScalarValue(t *Type, bits uint64) schema.Value {
	switch t.Kind {
	case KindVoid:
		return schema.Void{}
	case KindBool:
		return schema.Bool(bits&1 != 0)
	case KindInt8:
		return schema.Int(int8(bits))
	case KindInt16:
		return schema.Int(int16(bits))
	case KindInt32:
		return schema.Int(int32(bits))
	case KindInt64:
		return schema.Int(int64(bits))
	case KindUInt8:
		return schema.Uint(uint8(bits))
	case KindUInt16:
		return schema.Uint(uint16(bits))
	case KindUInt32:
		return schema.Uint(uint32(bits))
	case KindUInt64:
		return schema.Uint(bits)
	case KindFloat32:
		return schema.Float(math.Float32frombits(uint32(bits)))
	case KindFloat64:
		return schema.Float(math.Float64frombits(bits))
	case KindEnum:
		if e, ok := t.Node.EnumerantByOrdinal(int(uint16(bits))); ok {
			return schema.Enum(e.Name)
		}
		return schema.Uint(uint16(bits))
	}
	return nil
}
