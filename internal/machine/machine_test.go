package machine_test

import (
	"errors"
	"testing"

	"stubgen/internal/heap"
	"stubgen/internal/layout"
	"stubgen/internal/machine"
	"stubgen/internal/masm"
)

func setup(t *testing.T, target layout.Target) (*heap.Heap, *machine.Machine, *masm.Assembler) {
	t.Helper()
	h, err := heap.New(target, heap.DefaultOptions())
	if err != nil {
		t.Fatalf("heap.New: %v", err)
	}
	a, err := masm.New(target, t.Name())
	if err != nil {
		t.Fatalf("masm.New: %v", err)
	}
	return h, machine.New(h), a
}

func finish(t *testing.T, a *masm.Assembler) *masm.Program {
	t.Helper()
	p, err := a.Finish()
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	return p
}

func TestCountingLoop(t *testing.T) {
	for _, target := range layout.Targets() {
		t.Run(target.Triple, func(t *testing.T) {
			_, m, a := setup(t, target)
			loop, entry := a.NewLabel("loop"), a.NewLabel("entry")
			a.Li(masm.R3, 0)
			a.Li(masm.R4, -5)
			a.B(entry)
			a.Bind(loop)
			a.Addi(masm.R3, masm.R3, 2)
			a.Addi(masm.R4, masm.R4, 1)
			a.Bind(entry)
			a.Cmpi(masm.R4, 0)
			a.Bc(masm.LT, loop)
			a.Exit(masm.ExitReturn)
			res, err := m.Run(finish(t, a))
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			if res.Outcome != machine.Completed || m.Reg(masm.R3) != 10 {
				t.Fatalf("outcome %s, r3 = %d", res.Outcome, m.Reg(masm.R3))
			}
		})
	}
}

func TestArithmeticShiftIsWordSized(t *testing.T) {
	_, m, a := setup(t, layout.PPCLinuxGNU())
	a.Li(masm.R3, -8)
	a.Srai(masm.R4, masm.R3, 1)
	a.Exit(masm.ExitReturn)
	if _, err := m.Run(finish(t, a)); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := m.Reg(masm.R4); got != 0xFFFFFFFC {
		t.Fatalf("-8 >> 1 = 0x%x, want 0xfffffffc", got)
	}
}

func TestAllocationFailureBranches(t *testing.T) {
	h, m, a := setup(t, layout.PPC64LinuxGNU())
	fail := a.NewLabel("fail")
	a.Li(masm.R3, 32)
	a.Allocate(masm.R9, masm.R3, masm.R10, masm.R11, fail, masm.AllocTagged)
	a.Exit(masm.ExitReturn)
	a.Bind(fail)
	a.Exit(masm.ExitFallback)
	p := finish(t, a)

	safepoints := 0
	m.Safepoint = func() error {
		safepoints++
		return nil
	}
	res, err := m.Run(p)
	if err != nil || res.Outcome != machine.Completed {
		t.Fatalf("Run = %+v, %v", res, err)
	}
	if !heap.Tagged(m.Reg(masm.R9)).IsHeapObject() || !h.InYoung(heap.Tagged(m.Reg(masm.R9)).Addr()) {
		t.Fatalf("r9 = 0x%x is not a young object", m.Reg(masm.R9))
	}
	if safepoints != 1 {
		t.Fatalf("safepoints = %d, want 1", safepoints)
	}

	h.SetAllocationBudget(0)
	used := h.YoungUsed()
	res, err = m.Run(p)
	if err != nil || res.Outcome != machine.Fallback {
		t.Fatalf("Run with no budget = %+v, %v", res, err)
	}
	if h.YoungUsed() != used || safepoints != 1 {
		t.Fatalf("failed allocation reserved memory or reached a safepoint")
	}
	if m.Stats().FailedAllocations != 1 {
		t.Fatalf("FailedAllocations = %d", m.Stats().FailedAllocations)
	}
}

func TestRecordWriteChecksSlotAndClobbers(t *testing.T) {
	h, m, a := setup(t, layout.PPC64LELinuxGNU())
	arr, err := h.NewSmiArray([]int64{1}, nil)
	if err != nil {
		t.Fatalf("NewSmiArray: %v", err)
	}
	lay := h.Layout()
	a.StoreFieldWithBarrier(masm.R5, lay.MapOffset, masm.R6, masm.R9, masm.BarrierLRSaved|masm.BarrierOmitRememberedSet)
	a.Exit(masm.ExitReturn)
	p := finish(t, a)

	m.SetReg(masm.R5, uint64(arr))
	m.SetReg(masm.R6, uint64(h.Root(layout.RootJSArrayObjectElementsMap)))
	m.SetReg(masm.LR, 0x4000)
	if _, err := m.Run(p); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if m.Reg(masm.LR) == 0x4000 || m.Reg(masm.R6) == uint64(h.Root(layout.RootJSArrayObjectElementsMap)) {
		t.Fatalf("barrier did not clobber lr and the value register")
	}
	if m.Stats().Barriers != 1 {
		t.Fatalf("Barriers = %d", m.Stats().Barriers)
	}

	b, err := masm.New(h.Target(), "mismatch")
	if err != nil {
		t.Fatalf("masm.New: %v", err)
	}
	b.RecordWriteField(masm.R5, lay.MapOffset, masm.R6, masm.R9, 0)
	b.Exit(masm.ExitReturn)
	m.SetReg(masm.R5, uint64(arr))
	m.SetReg(masm.R6, uint64(h.Root(layout.RootFixedArrayMap)))
	_, err = m.Run(finish(t, b))
	var merr *machine.Error
	if !errors.As(err, &merr) || merr.Kind != machine.ErrBarrier {
		t.Fatalf("mismatched barrier = %v, want %s", err, machine.ErrBarrier)
	}
}

func TestAssertAborts(t *testing.T) {
	_, m, a := setup(t, layout.PPC64LinuxGNU())
	a.SetEmitDebugCode(true)
	a.Li(masm.R3, 4)
	a.CompareRoot(masm.R3, layout.RootTheHole)
	a.Assert(masm.EQ, "expected the hole")
	a.Exit(masm.ExitReturn)
	res, err := m.Run(finish(t, a))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Outcome != machine.Abort || res.AbortMessage != "expected the hole" {
		t.Fatalf("Run = %+v", res)
	}
}

func TestStepLimit(t *testing.T) {
	_, m, a := setup(t, layout.PPC64LinuxGNU())
	loop := a.NewLabel("loop")
	a.Bind(loop)
	a.B(loop)
	m.StepLimit = 100
	_, err := m.Run(finish(t, a))
	var merr *machine.Error
	if !errors.As(err, &merr) || merr.Kind != machine.ErrStepLimit {
		t.Fatalf("Run = %v, want step limit", err)
	}
}

func TestTargetMismatch(t *testing.T) {
	_, m, _ := setup(t, layout.PPC64LinuxGNU())
	a, err := masm.New(layout.PPCLinuxGNU(), "other")
	if err != nil {
		t.Fatalf("masm.New: %v", err)
	}
	a.Exit(masm.ExitReturn)
	_, err = m.Run(finish(t, a))
	var merr *machine.Error
	if !errors.As(err, &merr) || merr.Kind != machine.ErrTarget {
		t.Fatalf("Run = %v, want target mismatch", err)
	}
}

func TestFramesRestoreLR(t *testing.T) {
	_, m, a := setup(t, layout.PPCLELinuxGNU())
	a.EnterFrame()
	a.Li(masm.R31, 0)
	a.LeaveFrame()
	a.Exit(masm.ExitReturn)
	p := finish(t, a)
	m.SetReg(masm.LR, 0x1234)
	if _, err := m.Run(p); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if m.Reg(masm.LR) != 0x1234 || m.StackDepth() != 0 {
		t.Fatalf("lr = 0x%x, stack depth %d", m.Reg(masm.LR), m.StackDepth())
	}
}
