package masm

import "fmt"

// Reg is a general purpose register. LR is modelled as an extra register
// so it can be pushed and popped like any other.
type Reg uint8

const (
	R0 Reg = iota
	R1
	R2
	R3
	R4
	R5
	R6
	R7
	R8
	R9
	R10
	R11
	R12
	R13
	R14
	R15
	R16
	R17
	R18
	R19
	R20
	R21
	R22
	R23
	R24
	R25
	R26
	R27
	R28
	R29
	R30
	R31
	LR

	NumRegs = int(LR) + 1

	NoReg Reg = 0xFF
)

// ABI aliases.
const (
	SP = R1
	IP = R12 // assembler scratch, clobbered by root comparisons
)

func (r Reg) String() string {
	switch {
	case r == LR:
		return "lr"
	case r == SP:
		return "sp"
	case r == IP:
		return "ip"
	case r == NoReg:
		return "-"
	case r < LR:
		return fmt.Sprintf("r%d", uint8(r))
	default:
		return fmt.Sprintf("reg(%d)", uint8(r))
	}
}

// Valid reports whether r names a register of the file.
func (r Reg) Valid() bool { return r <= LR }

// FReg is a floating point register.
type FReg uint8

const (
	D0 FReg = iota
	D1
	D2
	D3

	NumFRegs = 32
)

func (f FReg) String() string { return fmt.Sprintf("d%d", uint8(f)) }
