// Package selfcheck runs generated stubs on the simulated machine and
// checks their effect on the heap against reference behaviour.
package selfcheck

import (
	"fmt"

	"stubgen/internal/codegen"
	"stubgen/internal/heap"
	"stubgen/internal/layout"
	"stubgen/internal/machine"
	"stubgen/internal/masm"
)

// Sentinels placed in registers the transition stubs must preserve.
const (
	lrSentinel    uint64 = 0x7E57C0DC
	spillSentinel uint64 = 0x5EED5EEC
)

// Env is a fresh heap and machine for one target. The machine verifies
// every object reachable from the roots and the current receiver at each
// safepoint.
type Env struct {
	Target  layout.Target
	Heap    *heap.Heap
	Machine *machine.Machine

	live []heap.Tagged
}

// NewEnv creates an environment with default heap sizes.
func NewEnv(target layout.Target) (*Env, error) {
	h, err := heap.New(target, heap.DefaultOptions())
	if err != nil {
		return nil, err
	}
	e := &Env{Target: target, Heap: h, Machine: machine.New(h)}
	e.Machine.Safepoint = func() error {
		return e.Heap.VerifyReachable(e.live...)
	}
	return e, nil
}

// PreservationError reports a register a stub failed to preserve.
type PreservationError struct {
	Reg  masm.Reg
	Role string
	Want uint64
	Got  uint64
}

func (e *PreservationError) Error() string {
	return fmt.Sprintf("%s register %s: want 0x%x, got 0x%x", e.Role, e.Reg, e.Want, e.Got)
}

type expectedReg struct {
	role string
	reg  masm.Reg
	want uint64
}

// RunTransition runs a transition stub that turns receiver into an array
// of kind to. Registers start out as junk derived from seed. Unless the
// stub aborted, the preserved registers and the stack are checked.
func (e *Env) RunTransition(p *masm.Program, regs codegen.TransitionRegs, receiver heap.Tagged, to layout.ElementsKind, seed uint64) (machine.Result, error) {
	h, m := e.Heap, e.Machine
	mask := e.Target.WordMask()
	m.Scramble(seed)
	m.ResetStats()
	preserved := []expectedReg{
		{"value", regs.Value, uint64(h.Smi(42))},
		{"key", regs.Key, uint64(h.Smi(7))},
		{"receiver", regs.Receiver, uint64(receiver)},
		{"spill", regs.Spill, spillSentinel & mask},
		{"link", masm.LR, lrSentinel & mask},
	}
	for _, x := range preserved {
		m.SetReg(x.reg, x.want)
	}
	m.SetReg(regs.TargetMap, uint64(h.Root(layout.JSArrayMapRoot(to))))
	e.live = []heap.Tagged{receiver}

	res, err := m.Run(p)
	if err != nil || res.Outcome == machine.Abort {
		return res, err
	}
	if d := m.StackDepth(); d != 0 {
		return res, fmt.Errorf("%s left %d word(s) on the stack", p.Name, d)
	}
	for _, x := range preserved {
		if got := m.Reg(x.reg); got != x.want {
			return res, &PreservationError{Reg: x.reg, Role: x.role, Want: x.want, Got: got}
		}
	}
	return res, nil
}

// RunCharLoad runs the character load stub and returns the loaded code
// unit.
func (e *Env) RunCharLoad(p *masm.Program, regs codegen.StringCharRegs, str heap.Tagged, index int, seed uint64) (uint16, machine.Result, error) {
	m := e.Machine
	m.Scramble(seed)
	m.ResetStats()
	m.SetReg(regs.String, uint64(str))
	m.SetReg(regs.Index, uint64(index))
	e.live = []heap.Tagged{str}
	res, err := m.Run(p)
	if err != nil {
		return 0, res, err
	}
	return uint16(m.Reg(regs.Result)), res, nil
}

// receiverState is the part of an array a failed transition must not
// change.
type receiverState struct {
	mapWord  heap.Tagged
	elements heap.Tagged
	length   heap.Tagged
}

func (e *Env) snapshot(arr heap.Tagged) (receiverState, error) {
	lay := e.Heap.Layout()
	var s receiverState
	var err error
	if s.mapWord, err = e.Heap.MapOf(arr); err != nil {
		return s, err
	}
	if s.elements, err = e.Heap.LoadField(arr, lay.JSObjectElementsOffset); err != nil {
		return s, err
	}
	s.length, err = e.Heap.LoadField(arr, lay.JSArrayLengthOffset)
	return s, err
}
