package layout

import "fmt"

// TargetErrorKind enumerates target validation errors.
type TargetErrorKind uint8

const (
	// TargetErrUnknown indicates a triple that is not registered.
	TargetErrUnknown TargetErrorKind = iota + 1
	TargetErrPointerSize
	TargetErrPointerAlign
	TargetErrDoubleAlign
	TargetErrByteOrder
	TargetErrFloatWordOrder
)

// TargetError represents an invalid or unknown target description.
type TargetError struct {
	Kind   TargetErrorKind
	Triple string
	Value  int
}

func (e *TargetError) Error() string {
	if e == nil {
		return "<nil>"
	}
	switch e.Kind {
	case TargetErrUnknown:
		return fmt.Sprintf("unknown target %q", e.Triple)
	case TargetErrPointerSize:
		return fmt.Sprintf("target %s: unsupported pointer size %d", e.Triple, e.Value)
	case TargetErrPointerAlign:
		return fmt.Sprintf("target %s: pointer alignment %d must equal pointer size", e.Triple, e.Value)
	case TargetErrDoubleAlign:
		return fmt.Sprintf("target %s: unsupported double alignment %d", e.Triple, e.Value)
	case TargetErrByteOrder:
		return fmt.Sprintf("target %s: byte order must be little or big", e.Triple)
	case TargetErrFloatWordOrder:
		return fmt.Sprintf("target %s: doubleword stores require float word order to match byte order", e.Triple)
	default:
		return fmt.Sprintf("target error kind=%d (%s)", e.Kind, e.Triple)
	}
}
