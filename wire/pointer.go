package wire

// ElementSize is the 3-bit element encoding of a list pointer.
type ElementSize uint8

const (
	SizeVoid ElementSize = iota
	SizeBit
	SizeByte
	SizeTwoBytes
	SizeFourBytes
	SizeEightBytes
	SizePointer
	SizeComposite
)

var elementSizeNames = [...]string{
	SizeVoid:       "void",
	SizeBit:        "bit",
	SizeByte:       "byte",
	SizeTwoBytes:   "two-bytes",
	SizeFourBytes:  "four-bytes",
	SizeEightBytes: "eight-bytes",
	SizePointer:    "pointer",
	SizeComposite:  "composite",
}

func (s ElementSize) String() string {
	if int(s) < len(elementSizeNames) {
		return elementSizeNames[s]
	}
	return "unknown"
}

// DataBits is the data width of one element. Pointer and composite
// elements carry no inline data bits.
func (s ElementSize) DataBits() uint64 {
	switch s {
	case SizeBit:
		return 1
	case SizeByte:
		return 8
	case SizeTwoBytes:
		return 16
	case SizeFourBytes:
		return 32
	case SizeEightBytes:
		return 64
	}
	return 0
}

// PointerKind is the 2-bit tag in the low bits of a pointer word.
type PointerKind uint8

const (
	KindStruct PointerKind = iota
	KindList
	KindFar
	KindOther
)

var pointerKindNames = [...]string{
	KindStruct: "struct",
	KindList:   "list",
	KindFar:    "far",
	KindOther:  "other",
}

func (k PointerKind) String() string {
	if int(k) < len(pointerKindNames) {
		return pointerKindNames[k]
	}
	return "unknown"
}

const (
	// MaxOffset bounds the signed 30-bit word offset of a pointer.
	MaxOffset = 1<<29 - 1
	MinOffset = -(1 << 29)
	// MaxListCount is the largest element count a list pointer holds.
	MaxListCount = 1<<29 - 1
)

func Kind(word uint64) PointerKind {
	return PointerKind(word & 3)
}

// StructPointer encodes a struct pointer. offset counts words from the
// end of the pointer to the start of the struct.
func StructPointer(offset int32, dataWords, pointerCount uint16) uint64 {
	return uint64(uint32(offset)<<2) | uint64(dataWords)<<32 | uint64(pointerCount)<<48
}

// StructFields decodes a struct pointer.
func StructFields(word uint64) (offset int32, dataWords, pointerCount uint16) {
	return int32(uint32(word)) >> 2, uint16(word >> 32), uint16(word >> 48)
}

// ListPointer encodes a list pointer. For composite lists count is the
// number of words after the tag.
func ListPointer(offset int32, size ElementSize, count uint32) uint64 {
	return uint64(uint32(offset)<<2) | uint64(KindList) | uint64(size)<<32 | uint64(count)<<35
}

// ListFields decodes a list pointer.
func ListFields(word uint64) (offset int32, size ElementSize, count uint32) {
	return int32(uint32(word)) >> 2, ElementSize(word>>32) & 7, uint32(word >> 35)
}

// CapabilityPointer encodes a reference to entry index of the message's
// capability table.
func CapabilityPointer(index uint32) uint64 {
	return uint64(KindOther) | uint64(index)<<32
}

// CapabilityIndex decodes a capability pointer.
func CapabilityIndex(word uint64) uint32 {
	return uint32(word >> 32)
}

// IsCapability reports whether word is a capability pointer rather than
// some other kind of "other" pointer.
func IsCapability(word uint64) bool {
	return Kind(word) == KindOther && uint32(word)>>2 == 0
}

// RelativeOffset is the offset a pointer at word at stores to reach
// word target.
func RelativeOffset(at, target uint32) (int32, bool) {
	off := int64(target) - int64(at) - 1
	if off < MinOffset || off > MaxOffset {
		return 0, false
	}
	return int32(off), true
}
