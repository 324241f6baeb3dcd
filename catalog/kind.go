package catalog

type Kind uint8

const (
	KindVoid Kind = iota
	KindBool
	KindInt8
	KindInt16
	KindInt32
	KindInt64
	KindUInt8
	KindUInt16
	KindUInt32
	KindUInt64
	KindFloat32
	KindFloat64
	KindEnum
	KindText
	KindData
	KindList
	KindStruct
	KindInterface
	KindAnyPointer
)

var kindNames = [...]string{
	KindVoid:       "Void",
	KindBool:       "Bool",
	KindInt8:       "Int8",
	KindInt16:      "Int16",
	KindInt32:      "Int32",
	KindInt64:      "Int64",
	KindUInt8:      "UInt8",
	KindUInt16:     "UInt16",
	KindUInt32:     "UInt32",
	KindUInt64:     "UInt64",
	KindFloat32:    "Float32",
	KindFloat64:    "Float64",
	KindEnum:       "enum",
	KindText:       "Text",
	KindData:       "Data",
	KindList:       "List",
	KindStruct:     "struct",
	KindInterface:  "interface",
	KindAnyPointer: "AnyPointer",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// IsScalar reports whether values of kind k live in the data section.
// Void is scalar with zero width.
func (k Kind) IsScalar() bool {
	return k <= KindEnum
}

// IsPointer reports whether values of kind k occupy a pointer slot.
func (k Kind) IsPointer() bool {
	return k > KindEnum && k <= KindAnyPointer
}

func (k Kind) IsSigned() bool {
	return k >= KindInt8 && k <= KindInt64
}

func (k Kind) IsFloat() bool {
	return k == KindFloat32 || k == KindFloat64
}

// BitWidth is the data-section width of a scalar kind. Pointer kinds
// report 64, the width of a pointer word.
func (k Kind) BitWidth() uint32 {
	switch k {
	case KindVoid:
		return 0
	case KindBool:
		return 1
	case KindInt8, KindUInt8:
		return 8
	case KindInt16, KindUInt16, KindEnum:
		return 16
	case KindInt32, KindUInt32, KindFloat32:
		return 32
	default:
		return 64
	}
}

// LgSize is log2 of BitWidth for non-void scalars, -1 for Void.
func (k Kind) LgSize() int {
	switch k.BitWidth() {
	case 0:
		return -1
	case 1:
		return 0
	case 8:
		return 3
	case 16:
		return 4
	case 32:
		return 5
	default:
		return 6
	}
}

var builtins = map[string]Kind{
	"Void":       KindVoid,
	"Bool":       KindBool,
	"Int8":       KindInt8,
	"Int16":      KindInt16,
	"Int32":      KindInt32,
	"Int64":      KindInt64,
	"UInt8":      KindUInt8,
	"UInt16":     KindUInt16,
	"UInt32":     KindUInt32,
	"UInt64":     KindUInt64,
	"Float32":    KindFloat32,
	"Float64":    KindFloat64,
	"Text":       KindText,
	"Data":       KindData,
	"AnyPointer": KindAnyPointer,
}
