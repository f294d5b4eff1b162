package heap_test

import (
	"errors"
	"math"
	"testing"

	"stubgen/internal/heap"
	"stubgen/internal/layout"
)

func newHeap(t *testing.T, target layout.Target) *heap.Heap {
	t.Helper()
	h, err := heap.New(target, heap.DefaultOptions())
	if err != nil {
		t.Fatalf("heap.New(%s): %v", target, err)
	}
	return h
}

func forEachTarget(t *testing.T, fn func(t *testing.T, h *heap.Heap)) {
	for _, target := range layout.Targets() {
		t.Run(target.Triple, func(t *testing.T) {
			fn(t, newHeap(t, target))
		})
	}
}

func TestBootstrapVerifies(t *testing.T) {
	forEachTarget(t, func(t *testing.T, h *heap.Heap) {
		if err := h.Verify(); err != nil {
			t.Fatalf("fresh heap does not verify: %v", err)
		}
		for r := layout.RootIndex(0); r < layout.RootCount; r++ {
			if !h.Root(r).IsHeapObject() {
				t.Fatalf("root %s = %s, want heap object", r, h.Root(r))
			}
		}
		n, err := h.StringLength(h.EmptyString())
		if err != nil || n != 0 {
			t.Fatalf("empty string length = %d, %v", n, err)
		}
	})
}

func TestSmiRoundTrip(t *testing.T) {
	forEachTarget(t, func(t *testing.T, h *heap.Heap) {
		for _, n := range []int64{0, 1, -1, 42, -1 << 20, 1<<30 - 1} {
			v := h.Smi(n)
			if !v.IsSmi() {
				t.Fatalf("Smi(%d) = %s is not a smi", n, v)
			}
			got, err := h.SmiValue(v)
			if err != nil || got != n {
				t.Fatalf("SmiValue(Smi(%d)) = %d, %v", n, got, err)
			}
		}
	})
}

func TestFloatCanonicalizesNaN(t *testing.T) {
	payload := math.Float64frombits(layout.HoleNanInt64)
	if got := heap.Float(payload); got != layout.CanonicalNaN {
		t.Fatalf("Float(hole NaN) = 0x%x, want canonical NaN", got)
	}
	if got := heap.Float(2.5); got != math.Float64bits(2.5) {
		t.Fatalf("Float(2.5) = 0x%x", got)
	}
}

func TestDoubleWordOrder(t *testing.T) {
	forEachTarget(t, func(t *testing.T, h *heap.Heap) {
		arr, err := h.NewFixedDoubleArray([]uint64{heap.HoleBits})
		if err != nil {
			t.Fatalf("NewFixedDoubleArray: %v", err)
		}
		slot := arr.Addr() + heap.Addr(h.Layout().FixedDoubleArrayHeaderSize)
		if slot%layout.DoubleAlignment != 0 {
			t.Fatalf("double payload at %s is not 8-byte aligned", slot)
		}
		target := h.Target()
		hi, err := h.Load(slot+heap.Addr(target.HighWordOffset()), 4)
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if uint32(hi) != layout.HoleNanUpper32 {
			t.Fatalf("upper word = 0x%x, want 0x%x", hi, layout.HoleNanUpper32)
		}
		got, err := h.FixedDoubleArrayGet(arr, 0)
		if err != nil || got != heap.HoleBits {
			t.Fatalf("FixedDoubleArrayGet = 0x%x, %v", got, err)
		}
	})
}

func TestAllocationBudget(t *testing.T) {
	forEachTarget(t, func(t *testing.T, h *heap.Heap) {
		h.SetAllocationBudget(1)
		p := h.Target().PtrSize
		if _, err := h.AllocateYoung(2 * p); err != nil {
			t.Fatalf("first allocation failed: %v", err)
		}
		used := h.YoungUsed()
		_, err := h.AllocateYoung(2 * p)
		if !errors.Is(err, heap.ErrExhausted) {
			t.Fatalf("second allocation error = %v, want exhaustion", err)
		}
		if h.YoungUsed() != used {
			t.Fatalf("failed allocation reserved %d bytes", h.YoungUsed()-used)
		}
		if h.Stats().FailedAllocations != 1 {
			t.Fatalf("FailedAllocations = %d, want 1", h.Stats().FailedAllocations)
		}
	})
}

func TestAlignYoungTop(t *testing.T) {
	forEachTarget(t, func(t *testing.T, h *heap.Heap) {
		err := h.AlignYoungTop(true)
		if h.Target().Is64() {
			if err == nil {
				t.Fatalf("64-bit target accepted a misaligned top")
			}
			return
		}
		if err != nil {
			t.Fatalf("AlignYoungTop(true): %v", err)
		}
		if h.YoungTop()%layout.DoubleAlignment == 0 {
			t.Fatalf("top %s is still aligned", h.YoungTop())
		}
		if err := h.AlignYoungTop(false); err != nil {
			t.Fatalf("AlignYoungTop(false): %v", err)
		}
		if h.YoungTop()%layout.DoubleAlignment != 0 {
			t.Fatalf("top %s is misaligned", h.YoungTop())
		}
		if err := h.Verify(); err != nil {
			t.Fatalf("fillers break parseability: %v", err)
		}
	})
}

func TestRecordWrite(t *testing.T) {
	forEachTarget(t, func(t *testing.T, h *heap.Heap) {
		arr, err := h.NewSmiArray([]int64{1, 2}, nil)
		if err != nil {
			t.Fatalf("NewSmiArray: %v", err)
		}
		p := h.Target().PtrSize
		young, err := h.AllocateYoung(h.Layout().FixedArraySize(0))
		if err != nil {
			t.Fatalf("AllocateYoung: %v", err)
		}
		if err := h.StoreWord(young, uint64(h.Root(layout.RootFixedArrayMap))); err != nil {
			t.Fatalf("StoreWord: %v", err)
		}
		if err := h.StoreWord(young+heap.Addr(p), uint64(h.Smi(0))); err != nil {
			t.Fatalf("StoreWord: %v", err)
		}
		slot := arr.Addr() + heap.Addr(h.Layout().JSObjectPropertiesOffset)
		val := heap.FromAddr(young)
		if err := h.StoreWord(slot, uint64(val)); err != nil {
			t.Fatalf("StoreWord: %v", err)
		}
		if err := h.Verify(); err == nil {
			t.Fatalf("unrecorded old-to-young pointer passed verification")
		}
		if err := h.RecordWrite(arr, slot, val+8, true); err == nil {
			t.Fatalf("barrier accepted a value the slot does not hold")
		}
		if err := h.RecordWrite(arr, slot, val, true); err != nil {
			t.Fatalf("RecordWrite: %v", err)
		}
		if !h.Remembered(slot) {
			t.Fatalf("slot %s not remembered", slot)
		}
		if err := h.Verify(); err != nil {
			t.Fatalf("Verify after barrier: %v", err)
		}
		if got := h.RememberedSet(); len(got) != 1 || got[0] != slot {
			t.Fatalf("RememberedSet = %v", got)
		}
	})
}

func TestVerifyRejectsKindMismatch(t *testing.T) {
	forEachTarget(t, func(t *testing.T, h *heap.Heap) {
		arr, err := h.NewSmiArray([]int64{1}, nil)
		if err != nil {
			t.Fatalf("NewSmiArray: %v", err)
		}
		m := h.Root(layout.RootJSArrayDoubleElementsMap)
		if err := h.StoreWord(arr.Addr(), uint64(m)); err != nil {
			t.Fatalf("StoreWord: %v", err)
		}
		err = h.Verify()
		var herr *heap.Error
		if !errors.As(err, &herr) || herr.Code != heap.CodeVerification {
			t.Fatalf("Verify = %v, want %s", err, heap.CodeVerification)
		}
	})
}

func TestStrings(t *testing.T) {
	forEachTarget(t, func(t *testing.T, h *heap.Heap) {
		narrow, err := h.NewSeqString("héllo", heap.OneByte)
		if err != nil {
			t.Fatalf("NewSeqString: %v", err)
		}
		wide, err := h.NewSeqString("wörld€", heap.TwoByte)
		if err != nil {
			t.Fatalf("NewSeqString: %v", err)
		}
		cons, err := h.NewConsString(narrow, wide)
		if err != nil {
			t.Fatalf("NewConsString: %v", err)
		}
		slice, err := h.NewSlicedString(cons, 3, 6)
		if err != nil {
			t.Fatalf("NewSlicedString: %v", err)
		}
		ext, err := h.NewExternalString("ext€", heap.TwoByte, false)
		if err != nil {
			t.Fatalf("NewExternalString: %v", err)
		}
		short, err := h.NewExternalString("abc", heap.OneByte, true)
		if err != nil {
			t.Fatalf("NewExternalString: %v", err)
		}
		cases := []struct {
			s    heap.Tagged
			want string
		}{
			{narrow, "héllo"},
			{wide, "wörld€"},
			{cons, "héllowörld€"},
			{slice, "lowörl"},
			{ext, "ext€"},
			{short, "abc"},
		}
		for _, tc := range cases {
			got, err := h.StringValue(tc.s)
			if err != nil || got != tc.want {
				t.Fatalf("StringValue = %q, %v; want %q", got, err, tc.want)
			}
		}
		c, err := h.CharCodeAt(wide, 5)
		if err != nil || c != 0x20AC {
			t.Fatalf("CharCodeAt(wide, 5) = 0x%x, %v", c, err)
		}
		if _, err := h.CharCodeAt(narrow, 5); err == nil {
			t.Fatalf("out-of-bounds index accepted")
		}
		if _, err := h.NewSeqString("€", heap.OneByte); !errors.Is(err, &heap.Error{Code: heap.CodeEncoding}) {
			t.Fatalf("one-byte encoding of € = %v, want encoding error", err)
		}
		if err := h.Verify(); err != nil {
			t.Fatalf("Verify: %v", err)
		}
	})
}

func TestDescribe(t *testing.T) {
	h := newHeap(t, layout.PPC64LinuxGNU())
	arr, err := h.NewSmiArray([]int64{1, 0, 3}, func(i int) bool { return i == 1 })
	if err != nil {
		t.Fatalf("NewSmiArray: %v", err)
	}
	if got, want := h.Describe(arr), "FAST_SMI_ELEMENTS [1, hole, 3]"; got != want {
		t.Fatalf("Describe = %q, want %q", got, want)
	}
	darr, err := h.NewDoubleArray([]uint64{heap.Float(2.5), heap.HoleBits})
	if err != nil {
		t.Fatalf("NewDoubleArray: %v", err)
	}
	if got, want := h.Describe(darr), "FAST_DOUBLE_ELEMENTS [2.5, hole-double]"; got != want {
		t.Fatalf("Describe = %q, want %q", got, want)
	}
}

func TestVerifyReachableIgnoresUnlinkedMemory(t *testing.T) {
	forEachTarget(t, func(t *testing.T, h *heap.Heap) {
		arr, err := h.NewSmiArray([]int64{7}, nil)
		if err != nil {
			t.Fatalf("NewSmiArray: %v", err)
		}
		if _, err := h.AllocateYoung(4 * h.Target().PtrSize); err != nil {
			t.Fatalf("AllocateYoung: %v", err)
		}
		if err := h.Verify(); err == nil {
			t.Fatalf("full verification parsed an uninitialized object")
		}
		if err := h.VerifyReachable(arr); err != nil {
			t.Fatalf("VerifyReachable: %v", err)
		}
	})
}
