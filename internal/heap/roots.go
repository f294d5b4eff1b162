package heap

import (
	"stubgen/internal/layout"
)

type mapSpec struct {
	root  layout.RootIndex
	itype layout.InstanceType
	kind  layout.ElementsKind
}

var bootstrapMaps = []mapSpec{
	{layout.RootOnePointerFillerMap, layout.FillerType, 0},
	{layout.RootOddballMap, layout.OddballType, 0},
	{layout.RootHeapNumberMap, layout.HeapNumberType, 0},
	{layout.RootFixedArrayMap, layout.FixedArrayType, 0},
	{layout.RootFixedDoubleArrayMap, layout.FixedDoubleArrayType, 0},
	{layout.RootSeqTwoByteStringMap, layout.SeqTwoByteStringType, 0},
	{layout.RootSeqOneByteStringMap, layout.SeqOneByteStringType, 0},
	{layout.RootConsTwoByteStringMap, layout.ConsTwoByteStringType, 0},
	{layout.RootConsOneByteStringMap, layout.ConsOneByteStringType, 0},
	{layout.RootSlicedTwoByteStringMap, layout.SlicedTwoByteStringType, 0},
	{layout.RootSlicedOneByteStringMap, layout.SlicedOneByteStringType, 0},
	{layout.RootExternalTwoByteStringMap, layout.ExternalTwoByteStringType, 0},
	{layout.RootExternalOneByteStringMap, layout.ExternalOneByteStringType, 0},
	{layout.RootShortExternalTwoByteStringMap, layout.ShortExternalTwoByteStringType, 0},
	{layout.RootShortExternalOneByteStringMap, layout.ShortExternalOneByteStringType, 0},
	{layout.RootJSArraySmiElementsMap, layout.JSArrayType, layout.FastSmiElements},
	{layout.RootJSArrayDoubleElementsMap, layout.JSArrayType, layout.FastDoubleElements},
	{layout.RootJSArrayObjectElementsMap, layout.JSArrayType, layout.FastElements},
}

// bootstrap creates the meta map, every other map, and the singleton
// objects, all in old space.
func (h *Heap) bootstrap() error {
	lay := h.lay
	meta, err := h.allocateOld(lay.MapSize, 0)
	if err != nil {
		return err
	}
	h.roots[layout.RootMetaMap] = FromAddr(meta)
	if err := h.writeMap(meta, meta, layout.MapType, 0); err != nil {
		return err
	}
	for _, bm := range bootstrapMaps {
		addr, err := h.allocateOld(lay.MapSize, 0)
		if err != nil {
			return err
		}
		if err := h.writeMap(addr, meta, bm.itype, bm.kind); err != nil {
			return err
		}
		h.roots[bm.root] = FromAddr(addr)
	}

	hole, err := h.newOddball(layout.OddballKindTheHole)
	if err != nil {
		return err
	}
	h.roots[layout.RootTheHole] = hole
	undef, err := h.newOddball(layout.OddballKindUndefined)
	if err != nil {
		return err
	}
	h.roots[layout.RootUndefined] = undef

	empty, err := h.NewFixedArray(nil)
	if err != nil {
		return err
	}
	h.roots[layout.RootEmptyFixedArray] = empty
	emptyString, err := h.newSeqString(nil, true)
	if err != nil {
		return err
	}
	h.roots[layout.RootEmptyString] = emptyString
	return nil
}

func (h *Heap) writeMap(addr, meta Addr, itype layout.InstanceType, kind layout.ElementsKind) error {
	if err := h.initField(addr, h.lay.MapOffset, FromAddr(meta)); err != nil {
		return err
	}
	if err := h.Store(addr+Addr(h.lay.MapInstanceTypeOffset), 1, uint64(itype)); err != nil {
		return err
	}
	return h.Store(addr+Addr(h.lay.MapElementsKindOffset), 1, uint64(kind))
}

func (h *Heap) newOddball(kind int64) (Tagged, error) {
	addr, err := h.allocateOld(h.lay.OddballSize, 0)
	if err != nil {
		return 0, err
	}
	if err := h.initField(addr, h.lay.MapOffset, h.roots[layout.RootOddballMap]); err != nil {
		return 0, err
	}
	if err := h.initField(addr, h.lay.OddballKindOffset, h.Smi(kind)); err != nil {
		return 0, err
	}
	return FromAddr(addr), nil
}

// Root returns the singleton stored at index r.
func (h *Heap) Root(r layout.RootIndex) Tagged {
	if r >= layout.RootCount {
		return 0
	}
	return h.roots[r]
}

// Hole returns the shared hole sentinel.
func (h *Heap) Hole() Tagged { return h.roots[layout.RootTheHole] }

// EmptyFixedArray returns the canonical empty backing store.
func (h *Heap) EmptyFixedArray() Tagged { return h.roots[layout.RootEmptyFixedArray] }

// EmptyString returns the canonical empty string.
func (h *Heap) EmptyString() Tagged { return h.roots[layout.RootEmptyString] }
