package masm

import "fmt"

// AsmErrorKind classifies assembler misuse.
type AsmErrorKind uint8

const (
	AsmErrUnknown AsmErrorKind = iota
	AsmErrUnboundLabel
	AsmErrReboundLabel
	AsmErrBadLabel
	AsmErrBadRegister
	AsmErrUnsupported
	AsmErrScope
	AsmErrFrame
	AsmErrFinished
	AsmErrDecode
)

func (k AsmErrorKind) String() string {
	switch k {
	case AsmErrUnboundLabel:
		return "unbound label"
	case AsmErrReboundLabel:
		return "label bound twice"
	case AsmErrBadLabel:
		return "unknown label"
	case AsmErrBadRegister:
		return "bad register"
	case AsmErrUnsupported:
		return "unsupported on target"
	case AsmErrScope:
		return "register scope misuse"
	case AsmErrFrame:
		return "frame misuse"
	case AsmErrFinished:
		return "assembler finished"
	case AsmErrDecode:
		return "malformed program"
	default:
		return "unknown"
	}
}

// AsmError reports a problem found while assembling a program.
type AsmError struct {
	Kind    AsmErrorKind
	Program string
	PC      int // instruction index, -1 when not tied to one
	Detail  string
}

func (e *AsmError) Error() string {
	if e.PC >= 0 {
		return fmt.Sprintf("%s@%d: %s: %s", e.Program, e.PC, e.Kind, e.Detail)
	}
	return fmt.Sprintf("%s: %s: %s", e.Program, e.Kind, e.Detail)
}
