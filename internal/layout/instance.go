package layout

import "fmt"

// String instance type bits. Strings occupy instance types below 0x80.
const (
	IsNotStringMask = 0x80

	StringRepresentationMask = 0x03
	SeqStringTag             = 0x00
	ConsStringTag            = 0x01
	ExternalStringTag        = 0x02
	SlicedStringTag          = 0x03

	// Cons and sliced strings both have the low bit set.
	IsIndirectStringMask = 0x01
	SlicedNotConsMask    = 0x02

	StringEncodingMask = 0x04
	TwoByteStringTag   = 0x00
	OneByteStringTag   = 0x04

	ShortExternalStringMask = 0x10
	ShortExternalStringTag  = 0x10
)

// InstanceType is the representation byte stored in every map.
type InstanceType uint8

const (
	SeqTwoByteStringType           InstanceType = SeqStringTag | TwoByteStringTag
	ConsTwoByteStringType          InstanceType = ConsStringTag | TwoByteStringTag
	ExternalTwoByteStringType      InstanceType = ExternalStringTag | TwoByteStringTag
	SlicedTwoByteStringType        InstanceType = SlicedStringTag | TwoByteStringTag
	SeqOneByteStringType           InstanceType = SeqStringTag | OneByteStringTag
	ConsOneByteStringType          InstanceType = ConsStringTag | OneByteStringTag
	ExternalOneByteStringType      InstanceType = ExternalStringTag | OneByteStringTag
	SlicedOneByteStringType        InstanceType = SlicedStringTag | OneByteStringTag
	ShortExternalTwoByteStringType InstanceType = ExternalTwoByteStringType | ShortExternalStringTag
	ShortExternalOneByteStringType InstanceType = ExternalOneByteStringType | ShortExternalStringTag

	MapType              InstanceType = 0x80
	OddballType          InstanceType = 0x81
	HeapNumberType       InstanceType = 0x82
	FixedArrayType       InstanceType = 0x83
	FixedDoubleArrayType InstanceType = 0x84
	FillerType           InstanceType = 0x85
	JSArrayType          InstanceType = 0x86
)

// IsString reports whether the type describes a string.
func (t InstanceType) IsString() bool { return t&IsNotStringMask == 0 }

// IsOneByte reports whether a string type stores one byte per character.
func (t InstanceType) IsOneByte() bool {
	return t.IsString() && t&StringEncodingMask == OneByteStringTag
}

// Representation returns the string representation tag.
func (t InstanceType) Representation() int {
	return int(t) & StringRepresentationMask
}

// IsShortExternal reports whether an external string lacks a data cache.
func (t InstanceType) IsShortExternal() bool {
	return t.IsString() && t.Representation() == ExternalStringTag && t&ShortExternalStringMask != 0
}

func (t InstanceType) String() string {
	switch t {
	case SeqTwoByteStringType:
		return "SEQ_TWO_BYTE_STRING"
	case ConsTwoByteStringType:
		return "CONS_TWO_BYTE_STRING"
	case ExternalTwoByteStringType:
		return "EXTERNAL_TWO_BYTE_STRING"
	case SlicedTwoByteStringType:
		return "SLICED_TWO_BYTE_STRING"
	case SeqOneByteStringType:
		return "SEQ_ONE_BYTE_STRING"
	case ConsOneByteStringType:
		return "CONS_ONE_BYTE_STRING"
	case ExternalOneByteStringType:
		return "EXTERNAL_ONE_BYTE_STRING"
	case SlicedOneByteStringType:
		return "SLICED_ONE_BYTE_STRING"
	case ShortExternalTwoByteStringType:
		return "SHORT_EXTERNAL_TWO_BYTE_STRING"
	case ShortExternalOneByteStringType:
		return "SHORT_EXTERNAL_ONE_BYTE_STRING"
	case MapType:
		return "MAP"
	case OddballType:
		return "ODDBALL"
	case HeapNumberType:
		return "HEAP_NUMBER"
	case FixedArrayType:
		return "FIXED_ARRAY"
	case FixedDoubleArrayType:
		return "FIXED_DOUBLE_ARRAY"
	case FillerType:
		return "FILLER"
	case JSArrayType:
		return "JS_ARRAY"
	default:
		return fmt.Sprintf("INSTANCE_TYPE(0x%02x)", uint8(t))
	}
}

// ElementsKind orders array backing stores by width.
type ElementsKind uint8

const (
	FastSmiElements ElementsKind = iota
	FastDoubleElements
	FastElements
)

func (k ElementsKind) String() string {
	switch k {
	case FastSmiElements:
		return "FAST_SMI_ELEMENTS"
	case FastDoubleElements:
		return "FAST_DOUBLE_ELEMENTS"
	case FastElements:
		return "FAST_ELEMENTS"
	default:
		return fmt.Sprintf("ELEMENTS_KIND(%d)", uint8(k))
	}
}

// IsMoreGeneralThan reports whether k can hold every value of other.
func (k ElementsKind) IsMoreGeneralThan(other ElementsKind) bool {
	return k > other
}

// BackingStoreType is the instance type of a non-empty backing store of k.
func (k ElementsKind) BackingStoreType() InstanceType {
	if k == FastDoubleElements {
		return FixedDoubleArrayType
	}
	return FixedArrayType
}
