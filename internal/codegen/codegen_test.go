package codegen_test

import (
	"context"
	"errors"
	"math"
	"testing"

	"stubgen/internal/codegen"
	"stubgen/internal/layout"
	"stubgen/internal/masm"
	"stubgen/internal/trace"
)

func build(t *testing.T, stub codegen.Stub, target layout.Target, opts codegen.Options) *masm.Program {
	t.Helper()
	p, err := codegen.Build(context.Background(), stub, target, opts)
	if err != nil {
		t.Fatalf("Build(%s, %s): %v", stub, target.Triple, err)
	}
	return p
}

func TestBuildEveryStub(t *testing.T) {
	for _, target := range layout.Targets() {
		for _, stub := range codegen.Stubs() {
			t.Run(target.Triple+"/"+stub.String(), func(t *testing.T) {
				p := build(t, stub, target, codegen.Options{})
				if err := p.Validate(); err != nil {
					t.Fatalf("Validate: %v", err)
				}
				if p.Name != stub.String() || p.Target != target {
					t.Fatalf("program %q for %s", p.Name, p.Target.Triple)
				}
			})
		}
	}
}

func TestMapChangeNeverAllocates(t *testing.T) {
	for _, target := range layout.Targets() {
		p := build(t, codegen.StubMapChange, target, codegen.Options{DebugCode: true})
		if n := p.Count(masm.OpAllocate) + p.Count(masm.OpAllocateHeapNumber); n != 0 {
			t.Fatalf("%s: map change has %d allocation(s)", target.Triple, n)
		}
		if n := p.Count(masm.OpRecordWrite); n != 1 {
			t.Fatalf("%s: map change has %d barrier(s), want 1", target.Triple, n)
		}
	}
}

func TestDoublewordAccessOnlyOn64Bit(t *testing.T) {
	for _, target := range layout.Targets() {
		for _, stub := range []codegen.Stub{codegen.StubSmiToDouble, codegen.StubDoubleToObject} {
			p := build(t, stub, target, codegen.Options{})
			dw := p.Count(masm.OpLd) + p.Count(masm.OpStd)
			if target.Is64() && dw == 0 {
				t.Fatalf("%s/%s: no doubleword access", target.Triple, stub)
			}
			if !target.Is64() && dw != 0 {
				t.Fatalf("%s/%s: %d doubleword access(es)", target.Triple, stub, dw)
			}
		}
	}
}

func TestDebugCodeAddsHoleAssertion(t *testing.T) {
	target := layout.PPC64LinuxGNU()
	plain := build(t, codegen.StubSmiToDouble, target, codegen.Options{})
	debug := build(t, codegen.StubSmiToDouble, target, codegen.Options{DebugCode: true})
	if plain.Count(masm.OpAssert) != 0 || debug.Count(masm.OpAssert) != 1 {
		t.Fatalf("asserts: plain %d, debug %d", plain.Count(masm.OpAssert), debug.Count(masm.OpAssert))
	}
	if !debug.DebugCode || plain.DebugCode {
		t.Fatalf("DebugCode not recorded on the program")
	}
}

func TestInvalidRegisters(t *testing.T) {
	aliased := codegen.DefaultTransitionRegs()
	aliased.Temp = aliased.Receiver
	reserved := codegen.DefaultStringCharRegs()
	reserved.Result = masm.IP

	cases := []struct {
		name string
		stub codegen.Stub
		opts codegen.Options
	}{
		{"aliased", codegen.StubSmiToDouble, codegen.Options{Transition: aliased}},
		{"reserved", codegen.StubStringCharLoad, codegen.Options{StringChar: reserved}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := codegen.Build(context.Background(), tc.stub, layout.PPCLinuxGNU(), tc.opts)
			var cerr *codegen.Error
			if !errors.As(err, &cerr) || cerr.Kind != codegen.ErrInvalidRegisters {
				t.Fatalf("expected invalid registers, got %v", err)
			}
			if cerr.Stub != tc.stub.String() {
				t.Fatalf("error names stub %q", cerr.Stub)
			}
		})
	}
}

func TestStubByName(t *testing.T) {
	for _, stub := range codegen.Stubs() {
		got, err := codegen.StubByName(stub.String())
		if err != nil || got != stub {
			t.Fatalf("StubByName(%q) = %v, %v", stub, got, err)
		}
	}
	_, err := codegen.StubByName("object-to-smi")
	var cerr *codegen.Error
	if !errors.As(err, &cerr) || cerr.Kind != codegen.ErrUnknownStub {
		t.Fatalf("expected unknown stub, got %v", err)
	}
}

func TestBuildEmitsStubSpan(t *testing.T) {
	ring := trace.NewRingTracer(16, trace.LevelDetail)
	ctx := trace.WithTracer(context.Background(), ring)
	if _, err := codegen.Build(ctx, codegen.StubDoubleToObject, layout.PPCLELinuxGNU(), codegen.Options{}); err != nil {
		t.Fatalf("Build: %v", err)
	}
	var end *trace.Event
	events := ring.Snapshot()
	for i := range events {
		if events[i].Kind == trace.KindSpanEnd && events[i].Name == "stub:double-to-object" {
			end = &events[i]
		}
	}
	if end == nil {
		t.Fatalf("no stub span in %d event(s)", len(events))
	}
	if end.Extra["target"] != "ppcle-linux-gnu" || end.Extra["instructions"] == "" {
		t.Fatalf("span extras %v", end.Extra)
	}
}

func TestRuntimeCallHelper(t *testing.T) {
	a, err := masm.New(layout.PPC64LinuxGNU(), "helper")
	if err != nil {
		t.Fatalf("masm.New: %v", err)
	}
	var h codegen.RuntimeCallHelper
	if err := h.BeforeCall(a); err != nil {
		t.Fatalf("BeforeCall: %v", err)
	}
	if !a.HasFrame() {
		t.Fatalf("no frame after BeforeCall")
	}
	var cerr *codegen.Error
	if err := h.BeforeCall(a); !errors.As(err, &cerr) || cerr.Kind != codegen.ErrFrame {
		t.Fatalf("nested BeforeCall: %v", err)
	}
	if err := h.AfterCall(a); err != nil {
		t.Fatalf("AfterCall: %v", err)
	}
	if err := h.AfterCall(a); !errors.As(err, &cerr) || cerr.Kind != codegen.ErrFrame {
		t.Fatalf("unbalanced AfterCall: %v", err)
	}
	a.Exit(masm.ExitReturn)
	p, err := a.Finish()
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if p.Count(masm.OpEnterFrame) != 1 || p.Count(masm.OpLeaveFrame) != 1 {
		t.Fatalf("frame ops: %d enter, %d leave", p.Count(masm.OpEnterFrame), p.Count(masm.OpLeaveFrame))
	}
}

func TestMathFunctions(t *testing.T) {
	cases := []struct {
		kind codegen.Transcendental
		ref  func(float64) float64
	}{
		{codegen.Sin, math.Sin},
		{codegen.Cos, math.Cos},
		{codegen.Tan, math.Tan},
		{codegen.Log, math.Log},
	}
	for _, tc := range cases {
		fn, err := codegen.TranscendentalFunction(tc.kind)
		if err != nil {
			t.Fatalf("%s: %v", tc.kind, err)
		}
		for _, x := range []float64{0.5, 1, 2.75} {
			if got, want := fn(x), tc.ref(x); got != want {
				t.Fatalf("%s(%v) = %v, want %v", tc.kind, x, got, want)
			}
		}
	}
	if _, err := codegen.TranscendentalFunction(codegen.Log + 1); err == nil {
		t.Fatalf("unknown function accepted")
	}
	if got := codegen.SqrtFunction()(2); got != math.Sqrt2 {
		t.Fatalf("sqrt(2) = %v", got)
	}
}
