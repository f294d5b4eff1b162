package selfcheck

import (
	"fmt"

	"stubgen/internal/codegen"
	"stubgen/internal/heap"
	"stubgen/internal/machine"
)

func init() {
	register(
		Scenario{Stub: codegen.StubStringCharLoad, Name: "example-3", Example: true, Check: checkCharLoadExample},
		Scenario{Stub: codegen.StubStringCharLoad, Name: "flat-shapes", Check: checkCharLoadFlat},
		Scenario{Stub: codegen.StubStringCharLoad, Name: "non-flat-cons", Check: checkCharLoadFallback("non-flat-cons", nonFlatCons)},
		Scenario{Stub: codegen.StubStringCharLoad, Name: "short-external", Check: checkCharLoadFallback("short-external", shortExternal)},
		Scenario{Stub: codegen.StubStringCharLoad, Name: "nested-cons", Check: checkCharLoadFallback("nested-cons", nestedCons)},
	)
}

type shape struct {
	name  string
	build func(h *heap.Heap) (heap.Tagged, error)
}

func seq(s string, enc heap.Encoding) func(h *heap.Heap) (heap.Tagged, error) {
	return func(h *heap.Heap) (heap.Tagged, error) { return h.NewSeqString(s, enc) }
}

func sliced(parent func(h *heap.Heap) (heap.Tagged, error), offset, length int) func(h *heap.Heap) (heap.Tagged, error) {
	return func(h *heap.Heap) (heap.Tagged, error) {
		p, err := parent(h)
		if err != nil {
			return 0, err
		}
		return h.NewSlicedString(p, offset, length)
	}
}

// flatCons wraps first in a cons whose second part is empty.
func flatCons(first func(h *heap.Heap) (heap.Tagged, error)) func(h *heap.Heap) (heap.Tagged, error) {
	return func(h *heap.Heap) (heap.Tagged, error) {
		f, err := first(h)
		if err != nil {
			return 0, err
		}
		return h.NewConsString(f, h.EmptyString())
	}
}

func external(s string, enc heap.Encoding, short bool) func(h *heap.Heap) (heap.Tagged, error) {
	return func(h *heap.Heap) (heap.Tagged, error) { return h.NewExternalString(s, enc, short) }
}

var flatShapes = []shape{
	{"seq-one-byte", seq("stubs", heap.OneByte)},
	{"seq-two-byte", seq("héllo wörld", heap.TwoByte)},
	{"external-one-byte", external("outside", heap.OneByte, false)},
	{"external-two-byte", external("ünïcode", heap.TwoByte, false)},
	{"sliced-seq", sliced(seq("abcdefgh", heap.OneByte), 2, 5)},
	{"sliced-two-byte", sliced(seq("héllo", heap.TwoByte), 1, 4)},
	{"sliced-external", sliced(external("external data", heap.OneByte, false), 9, 4)},
	{"flat-cons", flatCons(seq("first", heap.OneByte))},
	{"flat-cons-sliced", flatCons(sliced(seq("0123456789", heap.TwoByte), 3, 6))},
	{"flat-cons-external", flatCons(external("ext", heap.TwoByte, false))},
}

func nonFlatCons(h *heap.Heap) (heap.Tagged, error) {
	a, err := h.NewSeqString("left", heap.OneByte)
	if err != nil {
		return 0, err
	}
	b, err := h.NewSeqString("right", heap.OneByte)
	if err != nil {
		return 0, err
	}
	return h.NewConsString(a, b)
}

func shortExternal(h *heap.Heap) (heap.Tagged, error) {
	return h.NewExternalString("short", heap.OneByte, true)
}

// nestedCons needs three hops to reach its characters.
func nestedCons(h *heap.Heap) (heap.Tagged, error) {
	return flatCons(flatCons(flatCons(seq("deep", heap.OneByte))))(h)
}

func checkCharLoadExample(c *Case) (string, error) {
	const name = "example-3"
	e, err := NewEnv(c.Target)
	if err != nil {
		return "", wrap(c, name, err)
	}
	str, err := sliced(seq("héllo", heap.TwoByte), 1, 4)(e.Heap)
	if err != nil {
		return "", wrap(c, name, err)
	}
	code, res, err := e.RunCharLoad(c.Program, c.Options.StringCharRegisters(), str, 0, seeds[0])
	if err != nil {
		return "", wrap(c, name, err)
	}
	if err := expectOutcome(c, name, res, machine.Completed); err != nil {
		return "", err
	}
	if code != 0xE9 {
		return "", failf(c, name, "loaded 0x%04x, want 0x00e9", code)
	}
	return fmt.Sprintf("%s[0] = 0x%04x", e.Heap.Describe(str), code), nil
}

func checkCharLoadFlat(c *Case) (string, error) {
	const name = "flat-shapes"
	loads := 0
	for _, sh := range flatShapes {
		e, err := NewEnv(c.Target)
		if err != nil {
			return "", wrap(c, name, err)
		}
		str, err := sh.build(e.Heap)
		if err != nil {
			return "", wrap(c, name, fmt.Errorf("%s: %w", sh.name, err))
		}
		n, err := e.Heap.StringLength(str)
		if err != nil {
			return "", wrap(c, name, err)
		}
		for i := 0; i < n; i++ {
			want, err := e.Heap.CharCodeAt(str, i)
			if err != nil {
				return "", wrap(c, name, err)
			}
			got, res, err := e.RunCharLoad(c.Program, c.Options.StringCharRegisters(), str, i, seeds[i%len(seeds)])
			if err != nil {
				return "", wrap(c, name, fmt.Errorf("%s[%d]: %w", sh.name, i, err))
			}
			if err := expectOutcome(c, name, res, machine.Completed); err != nil {
				return "", fmt.Errorf("%s[%d]: %w", sh.name, i, err)
			}
			if got != want {
				return "", failf(c, name, "%s[%d]: loaded 0x%04x, want 0x%04x", sh.name, i, got, want)
			}
			if cl := e.Machine.Stats().CharLoads(); cl != 1 {
				return "", failf(c, name, "%s[%d]: %d character loads", sh.name, i, cl)
			}
			loads++
		}
	}
	return fmt.Sprintf("%d loads over %d shapes", loads, len(flatShapes)), nil
}

// checkCharLoadFallback expects build's string to be left to the runtime
// without a character being read.
func checkCharLoadFallback(name string, build func(h *heap.Heap) (heap.Tagged, error)) func(c *Case) (string, error) {
	return func(c *Case) (string, error) {
		for _, seed := range seeds {
			e, err := NewEnv(c.Target)
			if err != nil {
				return "", wrap(c, name, err)
			}
			str, err := build(e.Heap)
			if err != nil {
				return "", wrap(c, name, err)
			}
			_, res, err := e.RunCharLoad(c.Program, c.Options.StringCharRegisters(), str, 0, seed)
			if err != nil {
				return "", wrap(c, name, err)
			}
			if err := expectOutcome(c, name, res, machine.Fallback); err != nil {
				return "", err
			}
			if cl := e.Machine.Stats().CharLoads(); cl != 0 {
				return "", failf(c, name, "read %d character(s) before falling back", cl)
			}
		}
		return "fallback", nil
	}
}
