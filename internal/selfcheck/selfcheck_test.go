package selfcheck_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"stubgen/internal/codegen"
	"stubgen/internal/layout"
	"stubgen/internal/masm"
	"stubgen/internal/selfcheck"
)

func TestEveryStubPassesOnEveryTarget(t *testing.T) {
	for _, target := range layout.Targets() {
		for _, debug := range []bool{false, true} {
			name := target.Triple
			if debug {
				name += "/debug"
			}
			t.Run(name, func(t *testing.T) {
				results, err := selfcheck.Run(context.Background(), target, codegen.Options{DebugCode: debug})
				if err != nil {
					t.Fatalf("Run: %v", err)
				}
				if len(results) == 0 {
					t.Fatalf("no scenarios ran")
				}
				for _, r := range results {
					if r.Err != nil {
						t.Errorf("%s: %v", r.Scenario, r.Err)
					}
					if r.Skipped && (debug || !strings.HasSuffix(r.Scenario, "debug-assert")) {
						t.Errorf("%s skipped", r.Scenario)
					}
				}
			})
		}
	}
}

func TestCustomRegistersPass(t *testing.T) {
	opts := codegen.Options{
		Transition: codegen.TransitionRegs{
			Value: masm.R14, Key: masm.R15, Receiver: masm.R16, TargetMap: masm.R17,
			Elements: masm.R18, Length: masm.R19, Dest: masm.R20, Cursor: masm.R21,
			Temp: masm.R23, Spill: masm.R24,
		},
		StringChar: codegen.StringCharRegs{String: masm.R7, Index: masm.R8, Result: masm.R9},
	}
	target := layout.PPCLinuxGNU()
	results, err := selfcheck.Run(context.Background(), target, opts)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if err := selfcheck.Errors(results); err != nil {
		t.Fatalf("custom registers: %v", err)
	}
}

func TestWrongStubIsCaught(t *testing.T) {
	target := layout.PPC64LinuxGNU()
	prog, err := codegen.Build(context.Background(), codegen.StubMapChange, target, codegen.Options{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	// A map-only change leaves a smi store under a double map.
	results := selfcheck.Check(context.Background(), codegen.StubSmiToDouble, prog, codegen.Options{})
	if !selfcheck.Failed(results) {
		t.Fatalf("map change passed the smi-to-double scenarios")
	}
}

func TestClobberedValueIsReported(t *testing.T) {
	target := layout.PPC64LELinuxGNU()
	a, err := masm.New(target, "clobber")
	if err != nil {
		t.Fatalf("masm.New: %v", err)
	}
	regs := codegen.DefaultTransitionRegs()
	a.Li(regs.Value, 0)
	a.Exit(masm.ExitReturn)
	prog, err := a.Finish()
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	e, err := selfcheck.NewEnv(target)
	if err != nil {
		t.Fatalf("NewEnv: %v", err)
	}
	arr, err := e.Heap.NewSmiArray(nil, nil)
	if err != nil {
		t.Fatalf("NewSmiArray: %v", err)
	}
	_, err = e.RunTransition(prog, regs, arr, layout.FastElements, 1)
	var pe *selfcheck.PreservationError
	if !errors.As(err, &pe) || pe.Role != "value" {
		t.Fatalf("expected value preservation error, got %v", err)
	}
}

func TestExamples(t *testing.T) {
	examples := selfcheck.Examples()
	if len(examples) != 3 {
		t.Fatalf("got %d examples, want 3", len(examples))
	}
	want := map[string]string{
		"example-1": "FAST_DOUBLE_ELEMENTS [1.0, hole-double, 3.0]",
		"example-2": "FAST_ELEMENTS [boxed(2.5), hole]",
		"example-3": "0x00e9",
	}
	for _, target := range layout.Targets() {
		for _, ex := range examples {
			res, err := selfcheck.RunScenario(context.Background(), ex, target, codegen.Options{DebugCode: true})
			if err != nil {
				t.Fatalf("%s: %v", ex.Name, err)
			}
			if res.Err != nil {
				t.Fatalf("%s on %s: %v", ex.Name, target.Triple, res.Err)
			}
			if !strings.Contains(res.Detail, want[ex.Name]) {
				t.Fatalf("%s on %s: detail %q lacks %q", ex.Name, target.Triple, res.Detail, want[ex.Name])
			}
		}
	}
}

func TestFind(t *testing.T) {
	if s, ok := selfcheck.Find("example-2"); !ok || s.Stub != codegen.StubDoubleToObject {
		t.Fatalf("Find(example-2) = %v, %v", s.FullName(), ok)
	}
	if _, ok := selfcheck.Find("string-char-load/nested-cons"); !ok {
		t.Fatalf("full names are not found")
	}
	if _, ok := selfcheck.Find("round-trip"); ok {
		t.Fatalf("short names only resolve examples")
	}
}
