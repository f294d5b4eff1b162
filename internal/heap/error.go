package heap

import "fmt"

// ErrorCode identifies the kind of heap failure.
type ErrorCode int

// Stable error codes - do not change values.
const (
	CodeOutOfBounds     ErrorCode = 2001 // HEAP2001: access outside every space
	CodeMisaligned      ErrorCode = 2002 // HEAP2002: misaligned access or size
	CodeNotHeapObject   ErrorCode = 2003 // HEAP2003: expected a tagged heap pointer
	CodeExhausted       ErrorCode = 2004 // HEAP2004: young generation allocation failed
	CodeUnexpectedShape ErrorCode = 2005 // HEAP2005: object has an unexpected map
	CodeVerification    ErrorCode = 2006 // HEAP2006: heap verification failed
	CodeEncoding        ErrorCode = 2007 // HEAP2007: string cannot be encoded
	CodeBarrierMismatch ErrorCode = 2008 // HEAP2008: recorded slot does not hold the value
	CodeInvalidArgument ErrorCode = 2009 // HEAP2009: bad builder argument
)

// String returns the code as "HEAP2001" format.
func (c ErrorCode) String() string {
	return fmt.Sprintf("HEAP%d", c)
}

// Error is returned by every heap operation that can fail.
type Error struct {
	Code    ErrorCode
	Message string
	Addr    Addr
}

// ErrExhausted matches any allocation failure via errors.Is.
var ErrExhausted = &Error{Code: CodeExhausted, Message: "allocation failed"}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Addr != 0 {
		return fmt.Sprintf("%s: %s (at %s)", e.Code, e.Message, e.Addr)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is matches errors by code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || e == nil || t == nil {
		return false
	}
	return e.Code == t.Code
}

func errorf(code ErrorCode, addr Addr, format string, args ...any) *Error {
	return &Error{Code: code, Addr: addr, Message: fmt.Sprintf(format, args...)}
}
