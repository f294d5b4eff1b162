package selfcheck

import (
	"fmt"
	"math"

	"stubgen/internal/codegen"
	"stubgen/internal/heap"
	"stubgen/internal/layout"
	"stubgen/internal/machine"
)

func init() {
	register(
		Scenario{Stub: codegen.StubMapChange, Name: "empty", Check: checkMapChangeEmpty},
		Scenario{Stub: codegen.StubMapChange, Name: "non-empty", Check: checkMapChangeNonEmpty},

		Scenario{Stub: codegen.StubSmiToDouble, Name: "example-1", Example: true, Check: checkSmiToDoubleExample},
		Scenario{Stub: codegen.StubSmiToDouble, Name: "empty", Check: checkEmpty(layout.FastSmiElements, layout.FastDoubleElements)},
		Scenario{Stub: codegen.StubSmiToDouble, Name: "round-trip", Check: checkSmiToDoubleRoundTrip},
		Scenario{Stub: codegen.StubSmiToDouble, Name: "alignment", Check: checkSmiToDoubleAlignment},
		Scenario{Stub: codegen.StubSmiToDouble, Name: "allocation-failure", Check: checkSmiToDoubleFailure},
		Scenario{Stub: codegen.StubSmiToDouble, Name: "debug-assert", Check: checkSmiToDoubleAssert},

		Scenario{Stub: codegen.StubDoubleToObject, Name: "example-2", Example: true, Check: checkDoubleToObjectExample},
		Scenario{Stub: codegen.StubDoubleToObject, Name: "empty", Check: checkEmpty(layout.FastDoubleElements, layout.FastElements)},
		Scenario{Stub: codegen.StubDoubleToObject, Name: "hole-fidelity", Check: checkDoubleToObjectHoles},
		Scenario{Stub: codegen.StubDoubleToObject, Name: "allocation-failure", Check: checkDoubleToObjectFailure},
	)
}

type setupFunc func(e *Env) (heap.Tagged, error)

// transition runs c on a fresh heap with the receiver built by setup.
// budget limits the young allocations; negative means unlimited.
func transition(c *Case, name string, to layout.ElementsKind, seed uint64, budget int, setup setupFunc) (*Env, heap.Tagged, machine.Result, error) {
	e, err := NewEnv(c.Target)
	if err != nil {
		return nil, 0, machine.Result{}, wrap(c, name, err)
	}
	arr, err := setup(e)
	if err != nil {
		return nil, 0, machine.Result{}, wrap(c, name, fmt.Errorf("setup: %w", err))
	}
	e.Heap.SetAllocationBudget(budget)
	res, err := e.RunTransition(c.Program, c.Options.TransitionRegisters(), arr, to, seed)
	e.Heap.SetAllocationBudget(-1)
	if err != nil {
		return nil, 0, res, wrap(c, name, err)
	}
	return e, arr, res, nil
}

// completed checks a finished transition: outcome, a verifying heap and
// the receiver's new kind.
func completed(c *Case, name string, e *Env, arr heap.Tagged, res machine.Result, to layout.ElementsKind) error {
	if err := expectOutcome(c, name, res, machine.Completed); err != nil {
		return err
	}
	if err := e.Heap.Verify(); err != nil {
		return wrap(c, name, err)
	}
	kind, err := e.Heap.ElementsKindOf(arr)
	if err != nil {
		return wrap(c, name, err)
	}
	if kind != to {
		return failf(c, name, "receiver kind %s, want %s", kind, to)
	}
	return nil
}

func smiArray(values []int64, holes ...int) setupFunc {
	return func(e *Env) (heap.Tagged, error) {
		return e.Heap.NewSmiArray(values, func(i int) bool {
			for _, h := range holes {
				if h == i {
					return true
				}
			}
			return false
		})
	}
}

func doubleArray(slots []uint64) setupFunc {
	return func(e *Env) (heap.Tagged, error) { return e.Heap.NewDoubleArray(slots) }
}

func checkMapChangeEmpty(c *Case) (string, error) {
	const name = "empty"
	setup := smiArray(nil)
	for _, seed := range seeds {
		e, arr, res, err := transition(c, name, layout.FastElements, seed, -1, setup)
		if err != nil {
			return "", err
		}
		if err := completed(c, name, e, arr, res, layout.FastElements); err != nil {
			return "", err
		}
		if n := e.Machine.Stats().Allocations; n != 0 {
			return "", failf(c, name, "allocated %d object(s)", n)
		}
		first := e.Heap.Describe(arr)
		// A second run on an already transitioned receiver changes nothing.
		res, err = e.RunTransition(c.Program, c.Options.TransitionRegisters(), arr, layout.FastElements, seed)
		if err != nil {
			return "", wrap(c, name, err)
		}
		if err := completed(c, name, e, arr, res, layout.FastElements); err != nil {
			return "", err
		}
		if second := e.Heap.Describe(arr); second != first {
			return "", failf(c, name, "second run changed %s to %s", first, second)
		}
	}
	return "FAST_SMI_ELEMENTS [] -> FAST_ELEMENTS []", nil
}

func checkMapChangeNonEmpty(c *Case) (string, error) {
	const name = "non-empty"
	var before receiverState
	setup := func(e *Env) (heap.Tagged, error) {
		arr, err := smiArray([]int64{1, 2, 0}, 2)(e)
		if err != nil {
			return 0, err
		}
		before, err = e.snapshot(arr)
		return arr, err
	}
	e, arr, res, err := transition(c, name, layout.FastElements, seeds[0], -1, setup)
	if err != nil {
		return "", err
	}
	if err := completed(c, name, e, arr, res, layout.FastElements); err != nil {
		return "", err
	}
	if st := e.Machine.Stats(); st.Allocations != 0 || st.Barriers != 1 {
		return "", failf(c, name, "%d allocation(s) and %d barrier(s), want 0 and 1", st.Allocations, st.Barriers)
	}
	after, err := e.snapshot(arr)
	if err != nil {
		return "", wrap(c, name, err)
	}
	if after.elements != before.elements {
		return "", failf(c, name, "backing store replaced")
	}
	got := e.Heap.Describe(arr)
	if want := "FAST_ELEMENTS [1, 2, hole]"; got != want {
		return "", failf(c, name, "got %s, want %s", got, want)
	}
	return got, nil
}

func checkEmpty(from, to layout.ElementsKind) func(c *Case) (string, error) {
	return func(c *Case) (string, error) {
		const name = "empty"
		setup := func(e *Env) (heap.Tagged, error) {
			return e.Heap.NewJSArray(from, e.Heap.EmptyFixedArray())
		}
		e, arr, res, err := transition(c, name, to, seeds[0], 0, setup)
		if err != nil {
			return "", err
		}
		if err := completed(c, name, e, arr, res, to); err != nil {
			return "", err
		}
		elems, err := e.Heap.ElementsOf(arr)
		if err != nil {
			return "", wrap(c, name, err)
		}
		if elems != e.Heap.EmptyFixedArray() {
			return "", failf(c, name, "empty backing store replaced")
		}
		if st := e.Machine.Stats(); st.Allocations+st.FailedAllocations != 0 {
			return "", failf(c, name, "empty receiver allocated")
		}
		return e.Heap.Describe(arr), nil
	}
}

func checkSmiToDoubleExample(c *Case) (string, error) {
	const name = "example-1"
	e, arr, res, err := transition(c, name, layout.FastDoubleElements, seeds[0], -1, smiArray([]int64{1, 0, 3}, 1))
	if err != nil {
		return "", err
	}
	if err := completed(c, name, e, arr, res, layout.FastDoubleElements); err != nil {
		return "", err
	}
	got := e.Heap.Describe(arr)
	if want := "FAST_DOUBLE_ELEMENTS [1.0, hole-double, 3.0]"; got != want {
		return "", failf(c, name, "got %s, want %s", got, want)
	}
	return "FAST_SMI_ELEMENTS [1, hole, 3] -> " + got, nil
}

// smiValues returns n values covering both smi extremes, with a hole at
// every third index.
func smiValues(t layout.Target, n int) ([]int64, []int) {
	lo, hi := smiRange(t)
	pool := []int64{hi, lo, -1, 0, 1, 42, hi - 1, lo + 1}
	values := make([]int64, n)
	var holes []int
	for i := range values {
		values[i] = pool[i%len(pool)]
		if i%3 == 1 {
			holes = append(holes, i)
		}
	}
	return values, holes
}

func checkSmiToDoubleRoundTrip(c *Case) (string, error) {
	const name = "round-trip"
	lay := layout.MustFor(c.Target)
	runs := 0
	for n := 1; n <= 8; n++ {
		values, holes := smiValues(c.Target, n)
		for _, seed := range seeds {
			e, arr, res, err := transition(c, name, layout.FastDoubleElements, seed, -1, smiArray(values, holes...))
			if err != nil {
				return "", err
			}
			if err := completed(c, name, e, arr, res, layout.FastDoubleElements); err != nil {
				return "", err
			}
			store, err := e.Heap.ElementsOf(arr)
			if err != nil {
				return "", wrap(c, name, err)
			}
			isHole := make(map[int]bool, len(holes))
			for _, i := range holes {
				isHole[i] = true
			}
			for i, v := range values {
				bits, err := e.Heap.FixedDoubleArrayGet(store, i)
				if err != nil {
					return "", wrap(c, name, err)
				}
				want := heap.Float(float64(v))
				if isHole[i] {
					want = heap.HoleBits
				}
				if bits != want {
					return "", failf(c, name, "length %d slot %d: got 0x%016x, want 0x%016x", n, i, bits, want)
				}
			}
			if !e.Heap.Remembered(arr.Addr() + heap.Addr(lay.JSObjectElementsOffset)) {
				return "", failf(c, name, "old receiver's elements slot not remembered")
			}
			runs++
		}
	}
	return fmt.Sprintf("%d conversions", runs), nil
}

func checkSmiToDoubleAlignment(c *Case) (string, error) {
	const name = "alignment"
	lay := layout.MustFor(c.Target)
	p := c.Target.PtrSize
	filler := 0
	for _, misaligned := range []bool{false, true} {
		if misaligned && c.Target.Is64() {
			continue
		}
		var top heap.Addr
		setup := func(e *Env) (heap.Tagged, error) {
			arr, err := smiArray([]int64{5, 6, 7})(e)
			if err != nil {
				return 0, err
			}
			if err := e.Heap.AlignYoungTop(misaligned); err != nil {
				return 0, err
			}
			top = e.Heap.YoungTop()
			return arr, nil
		}
		e, arr, res, err := transition(c, name, layout.FastDoubleElements, seeds[0], -1, setup)
		if err != nil {
			return "", err
		}
		if err := completed(c, name, e, arr, res, layout.FastDoubleElements); err != nil {
			return "", err
		}
		store, err := e.Heap.ElementsOf(arr)
		if err != nil {
			return "", wrap(c, name, err)
		}
		start := store.Addr()
		if payload := start + heap.Addr(lay.FixedDoubleArrayHeaderSize); payload%layout.DoubleAlignment != 0 {
			return "", failf(c, name, "payload at %s is not 8-byte aligned", payload)
		}
		fillerAt := start + heap.Addr(lay.FixedDoubleArrayHeaderSize+3*8)
		if misaligned {
			fillerAt = top
			if start != top+heap.Addr(p) {
				return "", failf(c, name, "misaligned top %s: store at %s, want %s", top, start, top+heap.Addr(p))
			}
		} else if start != top {
			return "", failf(c, name, "aligned top %s: store at %s", top, start)
		}
		w, err := e.Heap.LoadWord(fillerAt)
		if err != nil {
			return "", wrap(c, name, err)
		}
		if heap.Tagged(w) != e.Heap.Root(layout.RootOnePointerFillerMap) {
			return "", failf(c, name, "no one-pointer filler at %s", fillerAt)
		}
		filler++
	}
	return fmt.Sprintf("%d allocator outcome(s)", filler), nil
}

func checkSmiToDoubleFailure(c *Case) (string, error) {
	const name = "allocation-failure"
	for _, seed := range seeds {
		var before receiverState
		setup := func(e *Env) (heap.Tagged, error) {
			arr, err := smiArray([]int64{1, 2, 3}, 1)(e)
			if err != nil {
				return 0, err
			}
			before, err = e.snapshot(arr)
			return arr, err
		}
		e, arr, res, err := transition(c, name, layout.FastDoubleElements, seed, 0, setup)
		if err != nil {
			return "", err
		}
		if err := untouched(c, name, e, arr, res, before); err != nil {
			return "", err
		}
	}
	return "fallback, receiver untouched", nil
}

// untouched checks a transition that fell back left the receiver as it
// was and the heap consistent.
func untouched(c *Case, name string, e *Env, arr heap.Tagged, res machine.Result, before receiverState) error {
	if err := expectOutcome(c, name, res, machine.Fallback); err != nil {
		return err
	}
	after, err := e.snapshot(arr)
	if err != nil {
		return wrap(c, name, err)
	}
	if after != before {
		return failf(c, name, "receiver changed on fallback")
	}
	return wrap(c, name, e.Heap.Verify())
}

func checkSmiToDoubleAssert(c *Case) (string, error) {
	const name = "debug-assert"
	if !c.Options.DebugCode {
		return "", ErrSkipped
	}
	setup := func(e *Env) (heap.Tagged, error) {
		store, err := e.Heap.NewFixedArray([]heap.Tagged{e.Heap.Smi(1), e.Heap.Root(layout.RootUndefined)})
		if err != nil {
			return 0, err
		}
		return e.Heap.NewJSArray(layout.FastSmiElements, store)
	}
	_, _, res, err := transition(c, name, layout.FastDoubleElements, seeds[0], -1, setup)
	if err != nil {
		return "", err
	}
	if res.Outcome != machine.Abort {
		return "", failf(c, name, "outcome %s, want abort", res.Outcome)
	}
	return "abort: " + res.AbortMessage, nil
}

func checkDoubleToObjectExample(c *Case) (string, error) {
	const name = "example-2"
	e, arr, res, err := transition(c, name, layout.FastElements, seeds[0], -1, doubleArray([]uint64{heap.Float(2.5), heap.HoleBits}))
	if err != nil {
		return "", err
	}
	if err := completed(c, name, e, arr, res, layout.FastElements); err != nil {
		return "", err
	}
	got := e.Heap.Describe(arr)
	if want := "FAST_ELEMENTS [boxed(2.5), hole]"; got != want {
		return "", failf(c, name, "got %s, want %s", got, want)
	}
	return "FAST_DOUBLE_ELEMENTS [2.5, hole-double] -> " + got, nil
}

// checkBoxed compares every element of a transitioned array with the
// double slots it was built from.
func checkBoxed(c *Case, name string, e *Env, arr heap.Tagged, slots []uint64) error {
	store, err := e.Heap.ElementsOf(arr)
	if err != nil {
		return wrap(c, name, err)
	}
	for i, want := range slots {
		v, err := e.Heap.FixedArrayGet(store, i)
		if err != nil {
			return wrap(c, name, err)
		}
		if want == heap.HoleBits {
			if !e.Heap.IsHole(v) {
				return failf(c, name, "slot %d: got %s, want hole", i, e.Heap.Describe(v))
			}
			continue
		}
		bits, err := e.Heap.HeapNumberBits(v)
		if err != nil {
			return wrap(c, name, fmt.Errorf("slot %d: %w", i, err))
		}
		if bits != want {
			return failf(c, name, "slot %d: boxed 0x%016x, want 0x%016x", i, bits, want)
		}
	}
	return nil
}

func checkDoubleToObjectHoles(c *Case) (string, error) {
	const name = "hole-fidelity"
	slots := []uint64{
		heap.Float(math.NaN()),
		heap.Float(math.Copysign(0, -1)),
		heap.HoleBits,
		heap.Float(math.Inf(1)),
		heap.Float(5e-324),
		heap.HoleBits,
	}
	for _, seed := range seeds {
		e, arr, res, err := transition(c, name, layout.FastElements, seed, -1, doubleArray(slots))
		if err != nil {
			return "", err
		}
		if err := completed(c, name, e, arr, res, layout.FastElements); err != nil {
			return "", err
		}
		if err := checkBoxed(c, name, e, arr, slots); err != nil {
			return "", err
		}
	}
	return "NaN, -0.0, infinity and denormals boxed; holes kept", nil
}

func checkDoubleToObjectFailure(c *Case) (string, error) {
	const name = "allocation-failure"
	slots := []uint64{heap.Float(1.5), heap.HoleBits, heap.Float(-2.25), heap.Float(3)}
	// One allocation for the store and one per non-hole element.
	points := 1 + 3
	for k := 0; k <= points; k++ {
		for _, seed := range seeds {
			var before receiverState
			setup := func(e *Env) (heap.Tagged, error) {
				arr, err := doubleArray(slots)(e)
				if err != nil {
					return 0, err
				}
				before, err = e.snapshot(arr)
				return arr, err
			}
			e, arr, res, err := transition(c, name, layout.FastElements, seed, k, setup)
			if err != nil {
				return "", err
			}
			if k < points {
				if err := untouched(c, name, e, arr, res, before); err != nil {
					return "", fmt.Errorf("failing allocation %d: %w", k, err)
				}
				continue
			}
			if err := completed(c, name, e, arr, res, layout.FastElements); err != nil {
				return "", err
			}
			if err := checkBoxed(c, name, e, arr, slots); err != nil {
				return "", err
			}
		}
	}
	return fmt.Sprintf("fallback at each of %d allocation points", points), nil
}
