package heap

import (
	"errors"
	"fmt"
	"math"

	"stubgen/internal/layout"
)

// object is one parsed heap object.
type object struct {
	addr  Addr
	size  int
	itype layout.InstanceType
}

// Verify checks the whole heap the way a collector would see it at a
// safepoint: both spaces parse from start to top, every pointer slot refers
// to a live object start, every old-to-young slot is remembered, arrays
// agree with their maps, and double slots hold no stray NaN payloads.
// All violations are joined into one error.
func (h *Heap) Verify() error {
	objs := make(map[Addr]object, 256)
	var order []object
	var errs []error
	for _, r := range []*region{&h.old, &h.young} {
		parsed, err := h.parse(r)
		if err != nil {
			errs = append(errs, err)
		}
		for _, o := range parsed {
			objs[o.addr] = o
			order = append(order, o)
		}
	}
	known := func(a Addr) bool {
		_, ok := objs[a]
		return ok
	}
	for _, o := range order {
		errs = append(errs, h.verifyObject(o, known)...)
	}
	return joinVerification(errs)
}

// VerifyReachable checks only objects reachable from the root table and
// extra. It is the view of a collector that runs at a safepoint while
// unlinked, partially initialized allocations may still exist.
func (h *Heap) VerifyReachable(extra ...Tagged) error {
	var errs []error
	seen := make(map[Addr]bool, 64)
	work := append([]Tagged(nil), h.roots[:]...)
	work = append(work, extra...)
	for len(work) > 0 {
		v := work[len(work)-1]
		work = work[:len(work)-1]
		if !v.IsHeapObject() || seen[v.Addr()] {
			continue
		}
		seen[v.Addr()] = true
		o, err := h.inspect(v.Addr())
		if err != nil {
			errs = append(errs, err)
			continue
		}
		errs = append(errs, h.verifyObject(o, h.isObjectStart)...)
		for _, off := range h.pointerSlots(o) {
			w, err := h.LoadWord(o.addr + Addr(off))
			if err == nil && h.isObjectStart(Tagged(w).Addr()) {
				work = append(work, Tagged(w))
			}
		}
	}
	return joinVerification(errs)
}

func joinVerification(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	return &Error{Code: CodeVerification, Message: errors.Join(errs...).Error()}
}

// isObjectStart reports whether a looks like the start of a live object in
// a managed space.
func (h *Heap) isObjectStart(a Addr) bool {
	var r *region
	switch h.SpaceOf(a) {
	case SpaceOld:
		r = &h.old
	case SpaceYoung:
		r = &h.young
	default:
		return false
	}
	if a >= r.top {
		return false
	}
	_, err := h.inspect(a)
	return err == nil
}

// inspect validates the map word at a and returns the object it heads.
func (h *Heap) inspect(a Addr) (object, error) {
	m, err := h.LoadWord(a)
	if err != nil {
		return object{}, err
	}
	mt := Tagged(m)
	if !mt.IsHeapObject() || h.SpaceOf(mt.Addr()) != SpaceOld {
		return object{}, errorf(CodeVerification, a, "bad map word %s", mt)
	}
	mm, err := h.LoadWord(mt.Addr())
	if err != nil {
		return object{}, err
	}
	if Tagged(mm) != h.roots[layout.RootMetaMap] {
		return object{}, errorf(CodeVerification, a, "map word %s is not a map", mt)
	}
	t, err := h.mapInstanceType(mt)
	if err != nil {
		return object{}, err
	}
	size, err := h.ObjectSize(a)
	if err != nil {
		return object{}, err
	}
	return object{addr: a, size: size, itype: t}, nil
}

func (h *Heap) parse(r *region) ([]object, error) {
	var out []object
	for a := r.start; a < r.top; {
		o, err := h.inspect(a)
		if err != nil {
			return out, fmt.Errorf("%s space: %w", r.kind, err)
		}
		if o.size <= 0 || a+Addr(o.size) > r.top {
			return out, errorf(CodeVerification, a, "%s space: object of %d bytes overruns top %s", r.kind, o.size, r.top)
		}
		out = append(out, o)
		a += Addr(o.size)
	}
	return out, nil
}

// pointerSlots lists the offsets of tagged fields in an object.
func (h *Heap) pointerSlots(o object) []int {
	lay := h.lay
	p := h.target.PtrSize
	switch o.itype {
	case layout.JSArrayType:
		return []int{lay.MapOffset, lay.JSObjectPropertiesOffset, lay.JSObjectElementsOffset, lay.JSArrayLengthOffset}
	case layout.FixedArrayType:
		slots := []int{lay.MapOffset, lay.FixedArrayLengthOffset}
		for off := lay.FixedArrayHeaderSize; off < o.size; off += p {
			slots = append(slots, off)
		}
		return slots
	case layout.FixedDoubleArrayType:
		return []int{lay.MapOffset, lay.FixedArrayLengthOffset}
	case layout.OddballType:
		return []int{lay.MapOffset, lay.OddballKindOffset}
	}
	if !o.itype.IsString() {
		return []int{lay.MapOffset}
	}
	switch o.itype.Representation() {
	case layout.ConsStringTag:
		return []int{lay.MapOffset, lay.StringLengthOffset, lay.ConsFirstOffset, lay.ConsSecondOffset}
	case layout.SlicedStringTag:
		return []int{lay.MapOffset, lay.StringLengthOffset, lay.SlicedParentOffset, lay.SlicedOffsetOffset}
	default:
		return []int{lay.MapOffset, lay.StringLengthOffset}
	}
}

func (h *Heap) verifyObject(o object, known func(Addr) bool) []error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, errorf(CodeVerification, o.addr, "%s: %s", o.itype, fmt.Sprintf(format, args...)))
	}
	for _, off := range h.pointerSlots(o) {
		slot := o.addr + Addr(off)
		w, err := h.LoadWord(slot)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		v := Tagged(w)
		if !v.IsHeapObject() {
			continue
		}
		if !known(v.Addr()) {
			bad("slot +%d holds dangling pointer %s", off, v)
			continue
		}
		if h.InYoung(v.Addr()) && !h.InYoung(slot) && !h.Remembered(slot) {
			bad("old-to-young slot +%d (%s) is not remembered", off, slot)
		}
	}
	obj := FromAddr(o.addr)
	switch o.itype {
	case layout.JSArrayType:
		errs = append(errs, h.verifyArray(obj)...)
	case layout.FixedDoubleArrayType:
		if (o.addr+Addr(h.lay.FixedDoubleArrayHeaderSize))%layout.DoubleAlignment != 0 {
			bad("payload is not 8-byte aligned")
		}
		n, err := h.ArrayLength(obj)
		if err != nil {
			return append(errs, err)
		}
		for i := 0; i < n; i++ {
			bits, err := h.LoadDouble(o.addr + Addr(h.lay.FixedDoubleArrayHeaderSize+i*8))
			if err != nil {
				return append(errs, err)
			}
			if math.IsNaN(math.Float64frombits(bits)) && bits != layout.CanonicalNaN && bits != HoleBits {
				bad("slot %d holds non-canonical NaN 0x%016x", i, bits)
			}
		}
	case layout.HeapNumberType:
		bits, err := h.HeapNumberBits(obj)
		if err != nil {
			return append(errs, err)
		}
		if bits == HoleBits {
			bad("boxes the hole NaN")
		}
	}
	return errs
}

func (h *Heap) verifyArray(arr Tagged) []error {
	kind, err := h.ElementsKindOf(arr)
	if err != nil {
		return []error{err}
	}
	elems, err := h.ElementsOf(arr)
	if err != nil {
		return []error{err}
	}
	lw, err := h.LoadField(arr, h.lay.JSArrayLengthOffset)
	if err != nil {
		return []error{err}
	}
	length, err := h.SmiValue(lw)
	if err != nil {
		return []error{err}
	}
	if elems == h.EmptyFixedArray() {
		if length != 0 {
			return []error{errorf(CodeVerification, arr.Addr(), "array of length %d has an empty store", length)}
		}
		return nil
	}
	st, err := h.InstanceTypeOf(elems)
	if err != nil {
		return []error{err}
	}
	if st != kind.BackingStoreType() {
		return []error{errorf(CodeVerification, arr.Addr(), "%s array has a %s backing store", kind, st)}
	}
	n, err := h.ArrayLength(elems)
	if err != nil {
		return []error{err}
	}
	if int64(n) != length {
		return []error{errorf(CodeVerification, arr.Addr(), "array length %d, store length %d", length, n)}
	}
	return nil
}
