package heap

import (
	"math"

	"stubgen/internal/layout"
)

// Float returns the bit pattern stored for f in a double slot. Computed NaNs
// are canonicalized so they can never alias the hole NaN.
func Float(f float64) uint64 {
	if math.IsNaN(f) {
		return layout.CanonicalNaN
	}
	return math.Float64bits(f)
}

// HoleBits is the double slot encoding of the hole.
const HoleBits = layout.HoleNanInt64

// NewFixedArray allocates a tenured FixedArray holding elems.
func (h *Heap) NewFixedArray(elems []Tagged) (Tagged, error) {
	lay := h.lay
	addr, err := h.allocateOld(lay.FixedArraySize(len(elems)), 0)
	if err != nil {
		return 0, err
	}
	if err := h.initField(addr, lay.MapOffset, h.roots[layout.RootFixedArrayMap]); err != nil {
		return 0, err
	}
	if err := h.initField(addr, lay.FixedArrayLengthOffset, h.Smi(int64(len(elems)))); err != nil {
		return 0, err
	}
	for i, v := range elems {
		if err := h.initField(addr, lay.FixedArrayHeaderSize+i*h.target.PtrSize, v); err != nil {
			return 0, err
		}
	}
	return FromAddr(addr), nil
}

// NewFixedDoubleArray allocates a tenured, 8-byte aligned FixedDoubleArray.
// Use Float and HoleBits to build the slots.
func (h *Heap) NewFixedDoubleArray(slots []uint64) (Tagged, error) {
	lay := h.lay
	addr, err := h.allocateOld(lay.FixedDoubleArraySize(len(slots)), layout.DoubleAlignment)
	if err != nil {
		return 0, err
	}
	if err := h.initField(addr, lay.MapOffset, h.roots[layout.RootFixedDoubleArrayMap]); err != nil {
		return 0, err
	}
	if err := h.initField(addr, lay.FixedArrayLengthOffset, h.Smi(int64(len(slots)))); err != nil {
		return 0, err
	}
	for i, bits := range slots {
		if err := h.StoreDouble(addr+Addr(lay.FixedDoubleArrayHeaderSize+i*8), bits); err != nil {
			return 0, err
		}
	}
	return FromAddr(addr), nil
}

// NewHeapNumber boxes f in a tenured heap number.
func (h *Heap) NewHeapNumber(f float64) (Tagged, error) {
	lay := h.lay
	addr, err := h.allocateOld(lay.HeapNumberSize, 0)
	if err != nil {
		return 0, err
	}
	if err := h.initField(addr, lay.MapOffset, h.roots[layout.RootHeapNumberMap]); err != nil {
		return 0, err
	}
	if err := h.StoreDouble(addr+Addr(lay.HeapNumberValueOffset), Float(f)); err != nil {
		return 0, err
	}
	return FromAddr(addr), nil
}

// NewJSArray allocates a tenured array whose map matches kind and whose
// backing store is elements.
func (h *Heap) NewJSArray(kind layout.ElementsKind, elements Tagged) (Tagged, error) {
	lay := h.lay
	length := 0
	if elements != h.roots[layout.RootEmptyFixedArray] {
		n, err := h.ArrayLength(elements)
		if err != nil {
			return 0, err
		}
		length = n
		st, err := h.InstanceTypeOf(elements)
		if err != nil {
			return 0, err
		}
		if st != kind.BackingStoreType() {
			return 0, errorf(CodeInvalidArgument, elements.Addr(), "%s array cannot use a %s backing store", kind, st)
		}
	}
	addr, err := h.allocateOld(lay.JSArraySize, 0)
	if err != nil {
		return 0, err
	}
	fields := []struct {
		off int
		v   Tagged
	}{
		{lay.MapOffset, h.roots[layout.JSArrayMapRoot(kind)]},
		{lay.JSObjectPropertiesOffset, h.roots[layout.RootEmptyFixedArray]},
		{lay.JSObjectElementsOffset, elements},
		{lay.JSArrayLengthOffset, h.Smi(int64(length))},
	}
	for _, f := range fields {
		if err := h.initField(addr, f.off, f.v); err != nil {
			return 0, err
		}
	}
	return FromAddr(addr), nil
}

// NewSmiArray is a convenience for a FAST_SMI_ELEMENTS array. Slots for
// which hole reports true hold the hole sentinel.
func (h *Heap) NewSmiArray(values []int64, hole func(i int) bool) (Tagged, error) {
	if len(values) == 0 {
		return h.NewJSArray(layout.FastSmiElements, h.EmptyFixedArray())
	}
	elems := make([]Tagged, len(values))
	for i, v := range values {
		if hole != nil && hole(i) {
			elems[i] = h.Hole()
			continue
		}
		elems[i] = h.Smi(v)
	}
	store, err := h.NewFixedArray(elems)
	if err != nil {
		return 0, err
	}
	return h.NewJSArray(layout.FastSmiElements, store)
}

// NewDoubleArray is a convenience for a FAST_DOUBLE_ELEMENTS array.
func (h *Heap) NewDoubleArray(slots []uint64) (Tagged, error) {
	if len(slots) == 0 {
		return h.NewJSArray(layout.FastDoubleElements, h.EmptyFixedArray())
	}
	store, err := h.NewFixedDoubleArray(slots)
	if err != nil {
		return 0, err
	}
	return h.NewJSArray(layout.FastDoubleElements, store)
}
