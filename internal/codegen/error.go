package codegen

import "fmt"

// ErrorKind classifies generator failures.
type ErrorKind uint8

const (
	ErrUnknown ErrorKind = iota
	ErrInvalidRegisters
	ErrUnknownStub
	ErrUnknownFunction
	ErrAssemble
	ErrFrame
)

func (k ErrorKind) String() string {
	switch k {
	case ErrInvalidRegisters:
		return "invalid register assignment"
	case ErrUnknownStub:
		return "unknown stub"
	case ErrUnknownFunction:
		return "unknown math function"
	case ErrAssemble:
		return "assembly failed"
	case ErrFrame:
		return "frame misuse"
	default:
		return "unknown"
	}
}

// Error is returned by the generators and Build.
type Error struct {
	Kind   ErrorKind
	Stub   string
	Detail string
	Err    error
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Stub != "" {
		msg = e.Stub + ": " + msg
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }
