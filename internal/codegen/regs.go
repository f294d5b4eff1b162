package codegen

import (
	"fmt"

	"stubgen/internal/masm"
)

// TransitionRegs is the register contract of the elements transition
// generators. Value, Key, Receiver, Spill and LR hold the same values on
// every exit. TargetMap, Elements, Length, Dest, Cursor, Temp, r0, ip and d0
// may be overwritten.
type TransitionRegs struct {
	Value     masm.Reg
	Key       masm.Reg
	Receiver  masm.Reg
	TargetMap masm.Reg
	Elements  masm.Reg
	Length    masm.Reg
	Dest      masm.Reg
	Cursor    masm.Reg
	Temp      masm.Reg
	Spill     masm.Reg
}

// DefaultTransitionRegs is the calling convention of the keyed store IC.
func DefaultTransitionRegs() TransitionRegs {
	return TransitionRegs{
		Value:     masm.R3,
		Key:       masm.R4,
		Receiver:  masm.R5,
		TargetMap: masm.R6,
		Elements:  masm.R7,
		Length:    masm.R8,
		Dest:      masm.R9,
		Cursor:    masm.R10,
		Temp:      masm.R22,
		Spill:     masm.R30,
	}
}

type namedReg struct {
	name string
	reg  masm.Reg
}

func (r TransitionRegs) named() []namedReg {
	return []namedReg{
		{"value", r.Value}, {"key", r.Key}, {"receiver", r.Receiver},
		{"target map", r.TargetMap}, {"elements", r.Elements}, {"length", r.Length},
		{"dest", r.Dest}, {"cursor", r.Cursor}, {"temp", r.Temp}, {"spill", r.Spill},
	}
}

// Validate rejects aliased registers and registers the stubs use
// internally.
func (r TransitionRegs) Validate() error { return validate(r.named()) }

// StringCharRegs is the register contract of the character load. String
// and Index are consumed; the code unit is left in Result. r0 and ip are
// scratch.
type StringCharRegs struct {
	String masm.Reg
	Index  masm.Reg
	Result masm.Reg
}

// DefaultStringCharRegs matches the string char-code-at stub.
func DefaultStringCharRegs() StringCharRegs {
	return StringCharRegs{String: masm.R3, Index: masm.R4, Result: masm.R5}
}

// Validate rejects aliased or reserved registers.
func (r StringCharRegs) Validate() error {
	return validate([]namedReg{{"string", r.String}, {"index", r.Index}, {"result", r.Result}})
}

var reserved = map[masm.Reg]bool{masm.R0: true, masm.SP: true, masm.IP: true, masm.LR: true}

func validate(regs []namedReg) error {
	seen := make(map[masm.Reg]string, len(regs))
	for _, nr := range regs {
		switch {
		case !nr.reg.Valid():
			return &Error{Kind: ErrInvalidRegisters, Detail: fmt.Sprintf("%s register %s does not exist", nr.name, nr.reg)}
		case reserved[nr.reg]:
			return &Error{Kind: ErrInvalidRegisters, Detail: fmt.Sprintf("%s register %s is reserved", nr.name, nr.reg)}
		}
		if other, ok := seen[nr.reg]; ok {
			return &Error{Kind: ErrInvalidRegisters, Detail: fmt.Sprintf("%s and %s share %s", other, nr.name, nr.reg)}
		}
		seen[nr.reg] = nr.name
	}
	return nil
}
