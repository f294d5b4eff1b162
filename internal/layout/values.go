package layout

// Tagging scheme: heap pointers carry HeapObjectTag in the low bits, small
// integers have a zero low bit.
const (
	HeapObjectTag     = 1
	HeapObjectTagMask = 3
	SmiTag            = 0
	SmiTagMask        = 1
)

// Double slot encodings.
const (
	DoubleAlignment     = 8
	DoubleAlignmentMask = DoubleAlignment - 1

	// The hole NaN is a signalling NaN payload that arithmetic never
	// produces; stores of computed NaNs are canonicalized first.
	HoleNanUpper32 uint32 = 0x7FF7FFFF
	HoleNanLower32 uint32 = 0xFFF7FFFF
	HoleNanInt64   uint64 = uint64(HoleNanUpper32)<<32 | uint64(HoleNanLower32)

	CanonicalNaN uint64 = 0x7FF8000000000000
)

// Oddball kinds stored in OddballKindOffset as small integers.
const (
	OddballKindTheHole   = 2
	OddballKindUndefined = 5
)
