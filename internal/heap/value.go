package heap

import (
	"fmt"

	"stubgen/internal/layout"
)

// Addr is an untagged address in the simulated address space.
type Addr uint64

func (a Addr) String() string { return fmt.Sprintf("0x%x", uint64(a)) }

// Tagged is a machine word holding either a small integer or a tagged heap
// pointer.
type Tagged uint64

// IsSmi reports whether the word encodes a small integer.
func (v Tagged) IsSmi() bool { return v&layout.SmiTagMask == layout.SmiTag }

// IsHeapObject reports whether the word is a tagged heap pointer.
func (v Tagged) IsHeapObject() bool { return v&layout.HeapObjectTagMask == layout.HeapObjectTag }

// Addr strips the heap object tag.
func (v Tagged) Addr() Addr { return Addr(v - layout.HeapObjectTag) }

// FromAddr tags an object start address.
func FromAddr(a Addr) Tagged { return Tagged(a + layout.HeapObjectTag) }

func (v Tagged) String() string {
	if v.IsHeapObject() {
		return fmt.Sprintf("ptr(%s)", v.Addr())
	}
	return fmt.Sprintf("word(0x%x)", uint64(v))
}

// Smi encodes n for the heap's target.
func (h *Heap) Smi(n int64) Tagged {
	return Tagged(uint64(n)<<h.target.SmiShift()) & Tagged(h.target.WordMask())
}

// SmiValue decodes a small integer.
func (h *Heap) SmiValue(v Tagged) (int64, error) {
	if !v.IsSmi() {
		return 0, errorf(CodeUnexpectedShape, 0, "%s is not a small integer", v)
	}
	if h.target.Is64() {
		return int64(v) >> 32, nil
	}
	return int64(int32(uint32(v))) >> 1, nil
}
