package codegen

import (
	"fmt"
	"math"
)

// UnaryMathFunction is a host implementation the runtime calls for math
// builtins that have no generated fast path.
type UnaryMathFunction func(float64) float64

// Transcendental names a cached transcendental function.
type Transcendental uint8

const (
	Sin Transcendental = iota
	Cos
	Tan
	Log
)

func (t Transcendental) String() string {
	switch t {
	case Sin:
		return "sin"
	case Cos:
		return "cos"
	case Tan:
		return "tan"
	case Log:
		return "log"
	default:
		return fmt.Sprintf("transcendental(%d)", uint8(t))
	}
}

// TranscendentalFunction returns the implementation for kind.
func TranscendentalFunction(kind Transcendental) (UnaryMathFunction, error) {
	switch kind {
	case Sin:
		return math.Sin, nil
	case Cos:
		return math.Cos, nil
	case Tan:
		return math.Tan, nil
	case Log:
		return math.Log, nil
	default:
		return nil, &Error{Kind: ErrUnknownFunction, Detail: kind.String()}
	}
}

// SqrtFunction returns the square root implementation.
func SqrtFunction() UnaryMathFunction { return math.Sqrt }
