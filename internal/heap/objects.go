package heap

import (
	"stubgen/internal/layout"
)

// MapOf returns the map word of obj.
func (h *Heap) MapOf(obj Tagged) (Tagged, error) {
	return h.LoadField(obj, h.lay.MapOffset)
}

// InstanceTypeOf reads the instance type out of obj's map.
func (h *Heap) InstanceTypeOf(obj Tagged) (layout.InstanceType, error) {
	m, err := h.MapOf(obj)
	if err != nil {
		return 0, err
	}
	return h.mapInstanceType(m)
}

func (h *Heap) mapInstanceType(m Tagged) (layout.InstanceType, error) {
	if !m.IsHeapObject() {
		return 0, errorf(CodeNotHeapObject, 0, "map word %s is not a pointer", m)
	}
	b, err := h.Load(m.Addr()+Addr(h.lay.MapInstanceTypeOffset), 1)
	return layout.InstanceType(b), err
}

// ElementsKindOf reads the elements kind out of an array's map.
func (h *Heap) ElementsKindOf(obj Tagged) (layout.ElementsKind, error) {
	m, err := h.MapOf(obj)
	if err != nil {
		return 0, err
	}
	b, err := h.Load(m.Addr()+Addr(h.lay.MapElementsKindOffset), 1)
	return layout.ElementsKind(b), err
}

func (h *Heap) expectType(obj Tagged, want layout.InstanceType) error {
	got, err := h.InstanceTypeOf(obj)
	if err != nil {
		return err
	}
	if got != want {
		return errorf(CodeUnexpectedShape, obj.Addr(), "expected %s, got %s", want, got)
	}
	return nil
}

// ElementsOf returns the backing store of a JSArray.
func (h *Heap) ElementsOf(arr Tagged) (Tagged, error) {
	if err := h.expectType(arr, layout.JSArrayType); err != nil {
		return 0, err
	}
	return h.LoadField(arr, h.lay.JSObjectElementsOffset)
}

// ArrayLength returns the length field of a FixedArray or FixedDoubleArray.
func (h *Heap) ArrayLength(store Tagged) (int, error) {
	t, err := h.InstanceTypeOf(store)
	if err != nil {
		return 0, err
	}
	if t != layout.FixedArrayType && t != layout.FixedDoubleArrayType {
		return 0, errorf(CodeUnexpectedShape, store.Addr(), "%s has no array length", t)
	}
	w, err := h.LoadField(store, h.lay.FixedArrayLengthOffset)
	if err != nil {
		return 0, err
	}
	n, err := h.SmiValue(w)
	return int(n), err
}

// FixedArrayGet returns slot i of a FixedArray.
func (h *Heap) FixedArrayGet(arr Tagged, i int) (Tagged, error) {
	if err := h.expectType(arr, layout.FixedArrayType); err != nil {
		return 0, err
	}
	n, err := h.ArrayLength(arr)
	if err != nil {
		return 0, err
	}
	if i < 0 || i >= n {
		return 0, errorf(CodeInvalidArgument, arr.Addr(), "index %d out of bounds for length %d", i, n)
	}
	return h.LoadField(arr, h.lay.FixedArrayHeaderSize+i*h.target.PtrSize)
}

// FixedDoubleArrayGet returns the bit pattern of slot i.
func (h *Heap) FixedDoubleArrayGet(arr Tagged, i int) (uint64, error) {
	if err := h.expectType(arr, layout.FixedDoubleArrayType); err != nil {
		return 0, err
	}
	n, err := h.ArrayLength(arr)
	if err != nil {
		return 0, err
	}
	if i < 0 || i >= n {
		return 0, errorf(CodeInvalidArgument, arr.Addr(), "index %d out of bounds for length %d", i, n)
	}
	return h.LoadDouble(arr.Addr() + Addr(h.lay.FixedDoubleArrayHeaderSize+i*8))
}

// HeapNumberBits returns the double bit pattern boxed in a heap number.
func (h *Heap) HeapNumberBits(num Tagged) (uint64, error) {
	if err := h.expectType(num, layout.HeapNumberType); err != nil {
		return 0, err
	}
	return h.LoadDouble(num.Addr() + Addr(h.lay.HeapNumberValueOffset))
}

// IsHole reports whether v is the hole sentinel.
func (h *Heap) IsHole(v Tagged) bool { return v == h.roots[layout.RootTheHole] }

// ObjectSize computes the size of the object starting at addr from its map.
func (h *Heap) ObjectSize(addr Addr) (int, error) {
	obj := FromAddr(addr)
	m, err := h.MapOf(obj)
	if err != nil {
		return 0, err
	}
	t, err := h.mapInstanceType(m)
	if err != nil {
		return 0, err
	}
	lay := h.lay
	switch t {
	case layout.MapType:
		return lay.MapSize, nil
	case layout.FillerType:
		return h.target.PtrSize, nil
	case layout.OddballType:
		return lay.OddballSize, nil
	case layout.HeapNumberType:
		return lay.HeapNumberSize, nil
	case layout.JSArrayType:
		return lay.JSArraySize, nil
	case layout.FixedArrayType, layout.FixedDoubleArrayType:
		w, err := h.LoadField(obj, lay.FixedArrayLengthOffset)
		if err != nil {
			return 0, err
		}
		n, err := h.SmiValue(w)
		if err != nil {
			return 0, err
		}
		if n < 0 {
			return 0, errorf(CodeUnexpectedShape, addr, "negative array length %d", n)
		}
		if t == layout.FixedArrayType {
			return lay.FixedArraySize(int(n)), nil
		}
		return lay.FixedDoubleArraySize(int(n)), nil
	}
	if !t.IsString() {
		return 0, errorf(CodeUnexpectedShape, addr, "unknown instance type %s", t)
	}
	switch t.Representation() {
	case layout.SeqStringTag:
		n, err := h.StringLength(obj)
		if err != nil {
			return 0, err
		}
		return lay.SeqStringSize(n, t.IsOneByte()), nil
	case layout.ConsStringTag:
		return lay.ConsStringSize, nil
	case layout.SlicedStringTag:
		return lay.SlicedStringSize, nil
	default:
		if t.IsShortExternal() {
			return lay.ShortExternalStringSize, nil
		}
		return lay.ExternalStringSize, nil
	}
}
