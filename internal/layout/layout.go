package layout

// Layout holds the field offsets of every heap object shape the stubs touch.
// Offsets are relative to the untagged object start; use Field to address
// them through a tagged pointer.
type Layout struct {
	Target Target

	// HeapObject
	MapOffset int

	// Map
	MapInstanceTypeOffset int
	MapElementsKindOffset int
	MapSize               int

	// Oddball (the hole, undefined)
	OddballKindOffset int
	OddballSize       int

	// FixedArray / FixedDoubleArray
	FixedArrayLengthOffset     int
	FixedArrayHeaderSize       int
	FixedDoubleArrayHeaderSize int

	// JSObject / JSArray
	JSObjectPropertiesOffset int
	JSObjectElementsOffset   int
	JSArrayLengthOffset      int
	JSArraySize              int

	// HeapNumber
	HeapNumberValueOffset int
	HeapNumberSize        int

	// String
	StringLengthOffset         int
	StringHashOffset           int
	SeqStringHeaderSize        int
	ConsFirstOffset            int
	ConsSecondOffset           int
	ConsStringSize             int
	SlicedParentOffset         int
	SlicedOffsetOffset         int
	SlicedStringSize           int
	ExternalResourceOffset     int
	ExternalResourceDataOffset int
	ExternalStringSize         int
	ShortExternalStringSize    int
}

var layouts = newCache()

// For returns the (cached) object layout of a target.
func For(t Target) (*Layout, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	if l, ok := layouts.get(t); ok {
		return l, nil
	}
	l := compute(t)
	layouts.put(t, l)
	return l, nil
}

// MustFor is For for the built-in targets.
func MustFor(t Target) *Layout {
	l, err := For(t)
	if err != nil {
		panic(err)
	}
	return l
}

func compute(t Target) *Layout {
	p := t.PtrSize
	l := &Layout{Target: t}

	l.MapOffset = 0

	l.MapInstanceTypeOffset = p
	l.MapElementsKindOffset = p + 1
	l.MapSize = 2 * p

	l.OddballKindOffset = p
	l.OddballSize = 2 * p

	l.FixedArrayLengthOffset = p
	l.FixedArrayHeaderSize = 2 * p
	l.FixedDoubleArrayHeaderSize = 2 * p

	l.JSObjectPropertiesOffset = p
	l.JSObjectElementsOffset = 2 * p
	l.JSArrayLengthOffset = 3 * p
	l.JSArraySize = 4 * p

	// On 32-bit targets the value sits at offset 4 and is only word aligned;
	// stubs write it as two words there.
	l.HeapNumberValueOffset = p
	l.HeapNumberSize = p + 8

	l.StringLengthOffset = p
	l.StringHashOffset = 2 * p
	l.SeqStringHeaderSize = 3 * p
	l.ConsFirstOffset = 3 * p
	l.ConsSecondOffset = 4 * p
	l.ConsStringSize = 5 * p
	l.SlicedParentOffset = 3 * p
	l.SlicedOffsetOffset = 4 * p
	l.SlicedStringSize = 5 * p
	l.ExternalResourceOffset = 3 * p
	l.ExternalResourceDataOffset = 4 * p
	l.ExternalStringSize = 5 * p
	l.ShortExternalStringSize = 4 * p
	return l
}

// Field converts an object offset into a displacement from a tagged pointer.
func Field(offset int) int {
	return offset - HeapObjectTag
}

// RoundUp rounds size up to a multiple of the pointer size.
func (l *Layout) RoundUp(size int) int {
	p := l.Target.PtrSize
	return (size + p - 1) &^ (p - 1)
}

// FixedArraySize is the object size of a FixedArray with n slots.
func (l *Layout) FixedArraySize(n int) int {
	return l.FixedArrayHeaderSize + n*l.Target.PtrSize
}

// FixedDoubleArraySize is the object size of a FixedDoubleArray with n slots.
func (l *Layout) FixedDoubleArraySize(n int) int {
	return l.FixedDoubleArrayHeaderSize + n*8
}

// SeqStringSize is the object size of a sequential string of n characters.
func (l *Layout) SeqStringSize(n int, oneByte bool) int {
	width := 2
	if oneByte {
		width = 1
	}
	return l.RoundUp(l.SeqStringHeaderSize + n*width)
}
