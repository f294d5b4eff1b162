package machine

import (
	"fmt"

	"stubgen/internal/masm"
)

// ErrorKind classifies machine faults. Faults are bugs in the executed
// program or its inputs; fallbacks and assertion aborts are outcomes, not
// errors.
type ErrorKind uint8

const (
	ErrUnknown ErrorKind = iota
	ErrMemory
	ErrBarrier
	ErrStack
	ErrStepLimit
	ErrTarget
	ErrBadProgram
	ErrSafepoint
)

func (k ErrorKind) String() string {
	switch k {
	case ErrMemory:
		return "memory fault"
	case ErrBarrier:
		return "write barrier fault"
	case ErrStack:
		return "stack fault"
	case ErrStepLimit:
		return "step limit exceeded"
	case ErrTarget:
		return "target mismatch"
	case ErrBadProgram:
		return "bad program"
	case ErrSafepoint:
		return "heap check failed at safepoint"
	default:
		return "unknown fault"
	}
}

// Error is a machine fault at a program counter.
type Error struct {
	Kind ErrorKind
	PC   int
	Op   masm.Op
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s at %d (%s): %v", e.Kind, e.PC, e.Op, e.Err)
	}
	return fmt.Sprintf("%s at %d (%s)", e.Kind, e.PC, e.Op)
}

func (e *Error) Unwrap() error { return e.Err }
