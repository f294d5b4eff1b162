// Package heap simulates the managed heap the generated stubs run against:
// a flat byte arena split into an old space, a bump-allocated young
// generation, and an off-heap region for external string data.
package heap

import (
	"fmt"

	"fortio.org/safecast"

	"stubgen/internal/layout"
)

// Space identifies a region of the arena.
type Space uint8

const (
	SpaceNone Space = iota
	SpaceOld
	SpaceYoung
	SpaceExternal
)

func (s Space) String() string {
	switch s {
	case SpaceOld:
		return "old"
	case SpaceYoung:
		return "young"
	case SpaceExternal:
		return "external"
	default:
		return "none"
	}
}

type region struct {
	kind  Space
	start Addr
	top   Addr
	limit Addr
}

func (r *region) contains(a Addr) bool { return a >= r.start && a < r.limit }

func (r *region) used() int { return int(r.top - r.start) }

// Options sizes the arena regions in bytes.
type Options struct {
	OldSize      int
	YoungSize    int
	ExternalSize int
}

// DefaultOptions returns sizes large enough for every self-check scenario.
func DefaultOptions() Options {
	return Options{
		OldSize:      64 << 10,
		YoungSize:    64 << 10,
		ExternalSize: 16 << 10,
	}
}

// Stats counts allocator and barrier activity.
type Stats struct {
	YoungAllocations  int
	FailedAllocations int
	BarrierCalls      int
	RememberedInserts int
}

// arenaBase keeps address zero unmapped.
const arenaBase Addr = 0x10000

// Heap stores every object the stubs can observe.
type Heap struct {
	target layout.Target
	lay    *layout.Layout

	mem      []byte
	old      region
	young    region
	external region

	roots      [layout.RootCount]Tagged
	remembered map[Addr]struct{}

	// budget is the number of young allocations that may still succeed;
	// negative means unlimited.
	budget int
	stats  Stats
}

// New creates a heap for target and populates the root table.
func New(target layout.Target, opts Options) (*Heap, error) {
	lay, err := layout.For(target)
	if err != nil {
		return nil, err
	}
	def := DefaultOptions()
	if opts.OldSize <= 0 {
		opts.OldSize = def.OldSize
	}
	if opts.YoungSize <= 0 {
		opts.YoungSize = def.YoungSize
	}
	if opts.ExternalSize <= 0 {
		opts.ExternalSize = def.ExternalSize
	}
	for _, size := range []int{opts.OldSize, opts.YoungSize, opts.ExternalSize} {
		if size%layout.DoubleAlignment != 0 {
			return nil, errorf(CodeInvalidArgument, 0, "region size %d is not a multiple of %d", size, layout.DoubleAlignment)
		}
	}
	total := opts.OldSize + opts.YoungSize + opts.ExternalSize
	h := &Heap{
		target:     target,
		lay:        lay,
		mem:        make([]byte, total),
		remembered: make(map[Addr]struct{}, 32),
		budget:     -1,
	}
	oldStart := arenaBase
	youngStart := oldStart + Addr(opts.OldSize)
	extStart := youngStart + Addr(opts.YoungSize)
	h.old = region{kind: SpaceOld, start: oldStart, top: oldStart, limit: youngStart}
	h.young = region{kind: SpaceYoung, start: youngStart, top: youngStart, limit: extStart}
	h.external = region{kind: SpaceExternal, start: extStart, top: extStart, limit: extStart + Addr(opts.ExternalSize)}
	if err := h.bootstrap(); err != nil {
		return nil, fmt.Errorf("heap bootstrap: %w", err)
	}
	return h, nil
}

// Target returns the target the heap encodes values for.
func (h *Heap) Target() layout.Target { return h.target }

// Layout returns the object layout of the heap's target.
func (h *Heap) Layout() *layout.Layout { return h.lay }

// Stats returns a copy of the activity counters.
func (h *Heap) Stats() Stats { return h.stats }

// SpaceOf reports which region holds a.
func (h *Heap) SpaceOf(a Addr) Space {
	switch {
	case h.old.contains(a):
		return SpaceOld
	case h.young.contains(a):
		return SpaceYoung
	case h.external.contains(a):
		return SpaceExternal
	default:
		return SpaceNone
	}
}

// InYoung reports whether a lies in the young generation.
func (h *Heap) InYoung(a Addr) bool { return h.young.contains(a) }

// YoungUsed is the number of bytes bump-allocated so far.
func (h *Heap) YoungUsed() int { return h.young.used() }

// YoungTop is the next young allocation address.
func (h *Heap) YoungTop() Addr { return h.young.top }

// SetAllocationBudget limits how many further young allocations succeed.
// A negative budget removes the limit.
func (h *Heap) SetAllocationBudget(n int) { h.budget = n }

// AllocateYoung bump-allocates size zeroed bytes from the young generation.
// On failure nothing is reserved and the error matches ErrExhausted.
func (h *Heap) AllocateYoung(size int) (Addr, error) {
	if size <= 0 || size%h.target.PtrSize != 0 {
		return 0, errorf(CodeMisaligned, 0, "allocation size %d is not a positive multiple of %d", size, h.target.PtrSize)
	}
	if h.budget == 0 {
		h.stats.FailedAllocations++
		return 0, errorf(CodeExhausted, 0, "allocation budget exhausted (%d bytes requested)", size)
	}
	n, err := safecast.Conv[uint64](size)
	if err != nil {
		return 0, errorf(CodeInvalidArgument, 0, "allocation size: %v", err)
	}
	if uint64(h.young.limit-h.young.top) < n {
		h.stats.FailedAllocations++
		return 0, errorf(CodeExhausted, 0, "young generation full (%d bytes requested)", size)
	}
	addr := h.young.top
	h.young.top += Addr(n)
	if h.budget > 0 {
		h.budget--
	}
	h.stats.YoungAllocations++
	return addr, nil
}

// AlignYoungTop forces the next young allocation to start on (or off) an
// 8-byte boundary by inserting a one-pointer filler when needed. Only
// 32-bit targets can produce a misaligned top.
func (h *Heap) AlignYoungTop(misaligned bool) error {
	aligned := h.young.top%layout.DoubleAlignment == 0
	if aligned != misaligned {
		return nil
	}
	if h.target.PtrSize == layout.DoubleAlignment {
		return errorf(CodeInvalidArgument, h.young.top, "%s cannot misalign the allocation top", h.target.Triple)
	}
	return h.fill(&h.young, h.target.PtrSize)
}

func (h *Heap) fill(r *region, size int) error {
	if size != h.target.PtrSize {
		return errorf(CodeMisaligned, r.top, "filler of %d bytes not supported", size)
	}
	if r.top+Addr(size) > r.limit {
		return errorf(CodeExhausted, r.top, "%s space full", r.kind)
	}
	addr := r.top
	r.top += Addr(size)
	return h.StoreWord(addr, uint64(h.roots[layout.RootOnePointerFillerMap]))
}

// allocateOld allocates tenured memory; align is 0 or the double alignment.
func (h *Heap) allocateOld(size, align int) (Addr, error) {
	if size <= 0 || size%h.target.PtrSize != 0 {
		return 0, errorf(CodeMisaligned, 0, "old allocation size %d is not a positive multiple of %d", size, h.target.PtrSize)
	}
	if align > h.target.PtrSize && h.old.top%Addr(align) != 0 {
		if err := h.fill(&h.old, h.target.PtrSize); err != nil {
			return 0, err
		}
	}
	if h.old.top+Addr(size) > h.old.limit {
		return 0, errorf(CodeExhausted, h.old.top, "old space full (%d bytes requested)", size)
	}
	addr := h.old.top
	h.old.top += Addr(size)
	return addr, nil
}

// allocateExternal reserves off-heap bytes for an external resource.
func (h *Heap) allocateExternal(size int) (Addr, error) {
	rounded := (size + layout.DoubleAlignmentMask) &^ layout.DoubleAlignmentMask
	if rounded == 0 {
		rounded = layout.DoubleAlignment
	}
	if h.external.top+Addr(rounded) > h.external.limit {
		return 0, errorf(CodeExhausted, h.external.top, "external region full (%d bytes requested)", size)
	}
	addr := h.external.top
	h.external.top += Addr(rounded)
	return addr, nil
}
