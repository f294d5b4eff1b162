package layout

import (
	"encoding/binary"
	"fmt"
	"sort"
	"strings"
)

// Endian selects the byte order of a target or the word order of a double.
type Endian uint8

const (
	LittleEndian Endian = iota + 1
	BigEndian
)

func (e Endian) String() string {
	switch e {
	case LittleEndian:
		return "little"
	case BigEndian:
		return "big"
	default:
		return "unknown"
	}
}

// Target describes the ABI target triple and its pointer properties.
type Target struct {
	Triple      string // e.g. "ppc64-linux-gnu"
	PtrSize     int    // bytes
	PtrAlign    int    // bytes
	DoubleAlign int    // bytes
	ByteOrder   Endian

	// FloatWordOrder is the order of the two 32-bit halves of a double in
	// memory. It only matters on targets without a doubleword store.
	FloatWordOrder Endian
}

func PPC64LinuxGNU() Target {
	return Target{
		Triple:         "ppc64-linux-gnu",
		PtrSize:        8,
		PtrAlign:       8,
		DoubleAlign:    8,
		ByteOrder:      BigEndian,
		FloatWordOrder: BigEndian,
	}
}

func PPC64LELinuxGNU() Target {
	return Target{
		Triple:         "ppc64le-linux-gnu",
		PtrSize:        8,
		PtrAlign:       8,
		DoubleAlign:    8,
		ByteOrder:      LittleEndian,
		FloatWordOrder: LittleEndian,
	}
}

func PPCLinuxGNU() Target {
	return Target{
		Triple:         "ppc-linux-gnu",
		PtrSize:        4,
		PtrAlign:       4,
		DoubleAlign:    8,
		ByteOrder:      BigEndian,
		FloatWordOrder: BigEndian,
	}
}

func PPCLELinuxGNU() Target {
	return Target{
		Triple:         "ppcle-linux-gnu",
		PtrSize:        4,
		PtrAlign:       4,
		DoubleAlign:    8,
		ByteOrder:      LittleEndian,
		FloatWordOrder: LittleEndian,
	}
}

var knownTargets = map[string]func() Target{
	"ppc64-linux-gnu":   PPC64LinuxGNU,
	"ppc64le-linux-gnu": PPC64LELinuxGNU,
	"ppc-linux-gnu":     PPCLinuxGNU,
	"ppcle-linux-gnu":   PPCLELinuxGNU,
}

// Targets returns every known target sorted by triple.
func Targets() []Target {
	names := make([]string, 0, len(knownTargets))
	for name := range knownTargets {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]Target, 0, len(names))
	for _, name := range names {
		out = append(out, knownTargets[name]())
	}
	return out
}

// TargetByName resolves a triple. The "-linux-gnu" suffix may be omitted.
func TargetByName(name string) (Target, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if mk, ok := knownTargets[key]; ok {
		return mk(), nil
	}
	if mk, ok := knownTargets[key+"-linux-gnu"]; ok {
		return mk(), nil
	}
	return Target{}, &TargetError{Kind: TargetErrUnknown, Triple: name}
}

// Validate checks that the target is internally consistent.
func (t Target) Validate() error {
	if t.PtrSize != 4 && t.PtrSize != 8 {
		return &TargetError{Kind: TargetErrPointerSize, Triple: t.Triple, Value: t.PtrSize}
	}
	if t.PtrAlign != t.PtrSize {
		return &TargetError{Kind: TargetErrPointerAlign, Triple: t.Triple, Value: t.PtrAlign}
	}
	if t.DoubleAlign != DoubleAlignment {
		return &TargetError{Kind: TargetErrDoubleAlign, Triple: t.Triple, Value: t.DoubleAlign}
	}
	if t.ByteOrder != LittleEndian && t.ByteOrder != BigEndian {
		return &TargetError{Kind: TargetErrByteOrder, Triple: t.Triple}
	}
	if t.FloatWordOrder != LittleEndian && t.FloatWordOrder != BigEndian {
		return &TargetError{Kind: TargetErrByteOrder, Triple: t.Triple}
	}
	if t.HasDoublewordStore() && t.FloatWordOrder != t.ByteOrder {
		return &TargetError{Kind: TargetErrFloatWordOrder, Triple: t.Triple}
	}
	return nil
}

// Is64 reports whether pointers are eight bytes wide.
func (t Target) Is64() bool { return t.PtrSize == 8 }

// HasDoublewordStore reports whether a general register can hold and store
// a full 64-bit double bit pattern.
func (t Target) HasDoublewordStore() bool { return t.PtrSize == 8 }

// Order returns the encoding/binary byte order of the target.
func (t Target) Order() binary.ByteOrder {
	if t.ByteOrder == BigEndian {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

// WordMask masks a value to the width of a general register.
func (t Target) WordMask() uint64 {
	if t.PtrSize == 8 {
		return ^uint64(0)
	}
	return 0xFFFFFFFF
}

// PtrSizeLog2 is log2 of the pointer size.
func (t Target) PtrSizeLog2() int {
	if t.PtrSize == 8 {
		return 3
	}
	return 2
}

// SmiShift is the distance between a small integer and its tagged form.
func (t Target) SmiShift() int {
	if t.PtrSize == 8 {
		return 32
	}
	return 1
}

// HighWordOffset is the byte offset of the upper 32 bits of a double stored
// at an 8-byte slot.
func (t Target) HighWordOffset() int {
	if t.FloatWordOrder == LittleEndian {
		return 4
	}
	return 0
}

// LowWordOffset is the byte offset of the lower 32 bits of a double.
func (t Target) LowWordOffset() int {
	return 4 - t.HighWordOffset()
}

func (t Target) String() string {
	return fmt.Sprintf("%s (ptr=%d, %s-endian)", t.Triple, t.PtrSize, t.ByteOrder)
}
