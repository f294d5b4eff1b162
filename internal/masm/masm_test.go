package masm_test

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"stubgen/internal/layout"
	"stubgen/internal/masm"
)

func newAsm(t *testing.T, target layout.Target) *masm.Assembler {
	t.Helper()
	a, err := masm.New(target, "test")
	if err != nil {
		t.Fatalf("masm.New: %v", err)
	}
	return a
}

func asmErrorKind(t *testing.T, err error) masm.AsmErrorKind {
	t.Helper()
	var aerr *masm.AsmError
	if !errors.As(err, &aerr) {
		t.Fatalf("error %v is not an AsmError", err)
	}
	return aerr.Kind
}

func TestUnboundLabel(t *testing.T) {
	a := newAsm(t, layout.PPC64LinuxGNU())
	l := a.NewLabel("nowhere")
	a.B(l)
	_, err := a.Finish()
	if got := asmErrorKind(t, err); got != masm.AsmErrUnboundLabel {
		t.Fatalf("kind = %s, want %s", got, masm.AsmErrUnboundLabel)
	}
}

func TestDoublewordNeeds64Bit(t *testing.T) {
	a := newAsm(t, layout.PPCLinuxGNU())
	a.Std(masm.R3, masm.R4, 0)
	a.Exit(masm.ExitReturn)
	_, err := a.Finish()
	if got := asmErrorKind(t, err); got != masm.AsmErrUnsupported {
		t.Fatalf("kind = %s, want %s", got, masm.AsmErrUnsupported)
	}
}

func TestScopeMustBeRestored(t *testing.T) {
	a := newAsm(t, layout.PPC64LinuxGNU())
	s := a.Preserve(true, masm.R30)
	s.Close()
	a.Exit(masm.ExitReturn)
	_, err := a.Finish()
	if got := asmErrorKind(t, err); got != masm.AsmErrScope {
		t.Fatalf("kind = %s, want %s", got, masm.AsmErrScope)
	}
}

func TestScopeBailoutRestoresOutOfLine(t *testing.T) {
	a := newAsm(t, layout.PPC64LinuxGNU())
	fail := a.NewLabel("fail")
	s := a.Preserve(true, masm.R30, masm.R22)
	a.Li(masm.R3, 64)
	a.Allocate(masm.R9, masm.R3, masm.R10, masm.IP, s.Bailout(fail), masm.AllocUntagged)
	s.Restore()
	s.Close()
	a.Exit(masm.ExitReturn)
	a.Bind(fail)
	a.Exit(masm.ExitFallback)
	p, err := a.Finish()
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	bail, ok := p.LabelPC(p.Instrs[4].Label)
	if !ok {
		t.Fatalf("allocation failure label is unbound")
	}
	want := []masm.Op{masm.OpPop, masm.OpPop, masm.OpPop, masm.OpB}
	for i, op := range want {
		if got := p.Instrs[bail+i].Op; got != op {
			t.Fatalf("bailout[%d] = %s, want %s", i, got, op)
		}
	}
	if got := p.Instrs[bail+2].Rd; got != masm.LR {
		t.Fatalf("last pop restores %s, want lr", got)
	}
	if bail <= 8 {
		t.Fatalf("bailout block at %d is not out of line", bail)
	}
}

func TestLeaveFrameWithoutFrame(t *testing.T) {
	a := newAsm(t, layout.PPC64LinuxGNU())
	a.LeaveFrame()
	_, err := a.Finish()
	if got := asmErrorKind(t, err); got != masm.AsmErrFrame {
		t.Fatalf("kind = %s, want %s", got, masm.AsmErrFrame)
	}
}

func TestSmiScaling(t *testing.T) {
	cases := []struct {
		target layout.Target
		op     masm.Op
		double int64
		ptr    int64
	}{
		{layout.PPC64LinuxGNU(), masm.OpSrai, 29, 29},
		{layout.PPCLinuxGNU(), masm.OpShli, 2, 1},
	}
	for _, tc := range cases {
		a := newAsm(t, tc.target)
		a.SmiToDoubleArrayOffset(masm.R3, masm.R4)
		a.SmiToPtrArrayOffset(masm.R3, masm.R4)
		a.Exit(masm.ExitReturn)
		p, err := a.Finish()
		if err != nil {
			t.Fatalf("%s: Finish: %v", tc.target, err)
		}
		if p.Instrs[0].Op != tc.op || p.Instrs[0].Imm != tc.double {
			t.Fatalf("%s: double offset = %s %d", tc.target, p.Instrs[0].Op, p.Instrs[0].Imm)
		}
		if p.Instrs[1].Op != tc.op || p.Instrs[1].Imm != tc.ptr {
			t.Fatalf("%s: pointer offset = %s %d", tc.target, p.Instrs[1].Op, p.Instrs[1].Imm)
		}
	}
}

func TestBarrierRegistersMustDiffer(t *testing.T) {
	a := newAsm(t, layout.PPC64LinuxGNU())
	a.RecordWrite(masm.R5, masm.R6, masm.R6, 0)
	_, err := a.Finish()
	if got := asmErrorKind(t, err); got != masm.AsmErrBadRegister {
		t.Fatalf("kind = %s, want %s", got, masm.AsmErrBadRegister)
	}
}

func TestAssertOnlyInDebugCode(t *testing.T) {
	for _, debug := range []bool{false, true} {
		a := newAsm(t, layout.PPC64LinuxGNU())
		a.SetEmitDebugCode(debug)
		a.CompareRoot(masm.R3, layout.RootTheHole)
		a.Assert(masm.EQ, "not the hole")
		a.Exit(masm.ExitReturn)
		p, err := a.Finish()
		if err != nil {
			t.Fatalf("Finish: %v", err)
		}
		if got := p.Count(masm.OpAssert) == 1; got != debug {
			t.Fatalf("debug=%v: assert emitted = %v", debug, got)
		}
	}
}

func TestEncodeDecode(t *testing.T) {
	a := newAsm(t, layout.PPCLELinuxGNU())
	done := a.NewLabel("done")
	a.LoadRoot(masm.R7, layout.RootEmptyFixedArray)
	a.Cmp(masm.R7, masm.R5)
	a.Bc(masm.EQ, done)
	a.StoreFieldWithBarrier(masm.R5, 0, masm.R6, masm.R9, masm.BarrierOmitRememberedSet)
	a.Bind(done)
	a.Exit(masm.ExitReturn)
	p, err := a.Finish()
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	data, err := masm.EncodeProgram(p)
	if err != nil {
		t.Fatalf("EncodeProgram: %v", err)
	}
	q, err := masm.DecodeProgram(data)
	if err != nil {
		t.Fatalf("DecodeProgram: %v", err)
	}
	var want, got bytes.Buffer
	if err := p.WriteListing(&want, masm.ListingOptions{}); err != nil {
		t.Fatalf("WriteListing: %v", err)
	}
	if err := q.WriteListing(&got, masm.ListingOptions{}); err != nil {
		t.Fatalf("WriteListing: %v", err)
	}
	if want.String() != got.String() {
		t.Fatalf("decoded listing differs:\n%s\nwant:\n%s", got.String(), want.String())
	}
	for _, s := range []string{"done:", "record_write", "omit_remembered_set", "empty_fixed_array"} {
		if !strings.Contains(want.String(), s) {
			t.Fatalf("listing lacks %q:\n%s", s, want.String())
		}
	}
	if _, err := masm.DecodeProgram(data[:len(data)/2]); err == nil {
		t.Fatalf("truncated program decoded")
	}
}
