package heap

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"stubgen/internal/layout"
)

// Describe renders a value for listings and the run command.
func (h *Heap) Describe(v Tagged) string {
	if v.IsSmi() {
		n, _ := h.SmiValue(v)
		return strconv.FormatInt(n, 10)
	}
	if h.IsHole(v) {
		return "hole"
	}
	if v == h.roots[layout.RootUndefined] {
		return "undefined"
	}
	t, err := h.InstanceTypeOf(v)
	if err != nil {
		return fmt.Sprintf("<%v>", err)
	}
	switch {
	case t == layout.HeapNumberType:
		bits, err := h.HeapNumberBits(v)
		if err != nil {
			return fmt.Sprintf("<%v>", err)
		}
		return "boxed(" + formatDouble(bits) + ")"
	case t == layout.JSArrayType:
		return h.describeArray(v)
	case t.IsString():
		s, err := h.StringValue(v)
		if err != nil {
			return fmt.Sprintf("<%v>", err)
		}
		return strconv.Quote(s)
	default:
		return fmt.Sprintf("%s@%s", t, v.Addr())
	}
}

func (h *Heap) describeArray(arr Tagged) string {
	kind, err := h.ElementsKindOf(arr)
	if err != nil {
		return fmt.Sprintf("<%v>", err)
	}
	elems, err := h.ElementsOf(arr)
	if err != nil {
		return fmt.Sprintf("<%v>", err)
	}
	var parts []string
	if elems != h.EmptyFixedArray() {
		n, err := h.ArrayLength(elems)
		if err != nil {
			return fmt.Sprintf("<%v>", err)
		}
		for i := 0; i < n; i++ {
			if kind == layout.FastDoubleElements {
				bits, err := h.FixedDoubleArrayGet(elems, i)
				if err != nil {
					return fmt.Sprintf("<%v>", err)
				}
				parts = append(parts, formatDouble(bits))
				continue
			}
			e, err := h.FixedArrayGet(elems, i)
			if err != nil {
				return fmt.Sprintf("<%v>", err)
			}
			parts = append(parts, h.Describe(e))
		}
	}
	return fmt.Sprintf("%s [%s]", kind, strings.Join(parts, ", "))
}

func formatDouble(bits uint64) string {
	if bits == HoleBits {
		return "hole-double"
	}
	f := math.Float64frombits(bits)
	if f == math.Trunc(f) && !math.IsInf(f, 0) {
		return strconv.FormatFloat(f, 'f', 1, 64)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}
