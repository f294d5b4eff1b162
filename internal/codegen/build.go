// Package codegen generates the elements-kind transition stubs and the
// string character load stub.
package codegen

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"stubgen/internal/layout"
	"stubgen/internal/masm"
	"stubgen/internal/trace"
)

// Stub identifies one generator.
type Stub uint8

const (
	StubMapChange Stub = iota + 1
	StubSmiToDouble
	StubDoubleToObject
	StubStringCharLoad
)

var stubNames = map[Stub]string{
	StubMapChange:      "map-change",
	StubSmiToDouble:    "smi-to-double",
	StubDoubleToObject: "double-to-object",
	StubStringCharLoad: "string-char-load",
}

func (s Stub) String() string {
	if n, ok := stubNames[s]; ok {
		return n
	}
	return fmt.Sprintf("stub(%d)", uint8(s))
}

// Stubs lists every generator in build order.
func Stubs() []Stub {
	return []Stub{StubMapChange, StubSmiToDouble, StubDoubleToObject, StubStringCharLoad}
}

// StubByName looks a stub up by its listing name.
func StubByName(name string) (Stub, error) {
	for s, n := range stubNames {
		if strings.EqualFold(n, name) {
			return s, nil
		}
	}
	return 0, &Error{Kind: ErrUnknownStub, Stub: name}
}

// Options control code generation.
type Options struct {
	// DebugCode emits internal assertions.
	DebugCode bool
	// Transition and StringChar override the register contracts; zero
	// values select the defaults.
	Transition TransitionRegs
	StringChar StringCharRegs
}

// TransitionRegisters returns the transition contract in effect.
func (o Options) TransitionRegisters() TransitionRegs {
	if o.Transition == (TransitionRegs{}) {
		return DefaultTransitionRegs()
	}
	return o.Transition
}

// StringCharRegisters returns the character load contract in effect.
func (o Options) StringCharRegisters() StringCharRegs {
	if o.StringChar == (StringCharRegs{}) {
		return DefaultStringCharRegs()
	}
	return o.StringChar
}

// Build generates stub for target. Falling off the end of the generated
// code exits with masm.ExitReturn and the fail label exits with
// masm.ExitFallback.
func Build(ctx context.Context, stub Stub, target layout.Target, opts Options) (*masm.Program, error) {
	_, span := trace.StartSpan(ctx, trace.ScopeStub, "stub:"+stub.String())
	span.WithExtra("target", target.Triple)

	prog, err := build(stub, target, opts)
	if err != nil {
		span.End("failed")
		return nil, err
	}
	span.WithExtra("instructions", strconv.Itoa(len(prog.Instrs)))
	span.End("")
	return prog, nil
}

func build(stub Stub, target layout.Target, opts Options) (*masm.Program, error) {
	a, err := masm.New(target, stub.String())
	if err != nil {
		return nil, &Error{Kind: ErrAssemble, Stub: stub.String(), Err: err}
	}
	a.SetEmitDebugCode(opts.DebugCode)
	fail := a.NewLabel("fail")
	switch stub {
	case StubMapChange:
		err = GenerateMapChange(a, opts.TransitionRegisters())
	case StubSmiToDouble:
		err = GenerateSmiToDouble(a, opts.TransitionRegisters(), fail)
	case StubDoubleToObject:
		err = GenerateDoubleToObject(a, opts.TransitionRegisters(), fail)
	case StubStringCharLoad:
		err = GenerateStringCharLoad(a, opts.StringCharRegisters(), fail)
	default:
		return nil, &Error{Kind: ErrUnknownStub, Stub: stub.String()}
	}
	if err != nil {
		var cerr *Error
		if errors.As(err, &cerr) {
			cerr.Stub = stub.String()
		}
		return nil, err
	}
	a.Exit(masm.ExitReturn)
	a.Bind(fail)
	a.Exit(masm.ExitFallback)
	prog, err := a.Finish()
	if err != nil {
		return nil, &Error{Kind: ErrAssemble, Stub: stub.String(), Err: err}
	}
	return prog, nil
}
