package masm

import (
	"stubgen/internal/layout"
)

func (a *Assembler) distinct(op Op, rs ...Reg) bool {
	for i := range rs {
		for j := i + 1; j < len(rs); j++ {
			if rs[i] == rs[j] {
				a.fail(AsmErrBadRegister, "%s: %s used for two operands", op, rs[i])
				return false
			}
		}
	}
	return a.regs(op, rs...)
}

// SmiUntag converts a small integer to a signed word.
func (a *Assembler) SmiUntag(rd, ra Reg) {
	a.Srai(rd, ra, a.target.SmiShift())
}

// SmiTag converts a signed word to a small integer.
func (a *Assembler) SmiTag(rd, ra Reg) {
	a.Shli(rd, ra, a.target.SmiShift())
}

// SmiToDoubleArrayOffset scales a small integer index to a byte offset in
// 8-byte slots.
func (a *Assembler) SmiToDoubleArrayOffset(rd, ra Reg) {
	a.scaleSmi(rd, ra, 3)
}

// SmiToPtrArrayOffset scales a small integer index to a byte offset in
// pointer-sized slots.
func (a *Assembler) SmiToPtrArrayOffset(rd, ra Reg) {
	a.scaleSmi(rd, ra, a.target.PtrSizeLog2())
}

func (a *Assembler) scaleSmi(rd, ra Reg, log2 int) {
	shift := a.target.SmiShift()
	if shift > log2 {
		a.Srai(rd, ra, shift-log2)
		return
	}
	a.Shli(rd, ra, log2-shift)
}

// AllocFlags modify Allocate.
type AllocFlags uint8

const (
	AllocUntagged AllocFlags = iota
	AllocTagged
)

// Allocate bump-allocates the number of bytes in size from the young
// generation into result. Zeroed memory is returned untagged unless
// AllocTagged is given. On failure nothing is reserved and control
// transfers to fail. The scratch registers are clobbered either way.
func (a *Assembler) Allocate(result, size, scratch1, scratch2 Reg, fail Label, flags AllocFlags) {
	if !a.distinct(OpAllocate, result, size, scratch1, scratch2) || !a.knownLabel(fail) {
		return
	}
	in := Instr{Op: OpAllocate, Rd: result, Ra: size, Rb: scratch1, Rc: scratch2, Label: fail}
	if flags == AllocTagged {
		in.Flags |= FlagTagObject
	}
	a.emit(in)
}

// AllocateHeapNumber allocates a tagged heap number with its map word set
// from heapNumberMap. The value field is left for the caller.
func (a *Assembler) AllocateHeapNumber(result, scratch1, scratch2, heapNumberMap Reg, fail Label) {
	if !a.distinct(OpAllocateHeapNumber, result, scratch1, scratch2, heapNumberMap) || !a.knownLabel(fail) {
		return
	}
	a.emit(Instr{Op: OpAllocateHeapNumber, Rd: result, Rb: scratch1, Rc: scratch2, Ra: heapNumberMap, Label: fail})
}

// BarrierMode configures a write barrier.
type BarrierMode uint8

const (
	// BarrierLRSaved declares LR saved by the caller, letting the barrier
	// clobber it.
	BarrierLRSaved BarrierMode = 1 << iota
	// BarrierOmitRememberedSet skips the remembered set; valid only for
	// values that are never in the young generation, such as maps.
	BarrierOmitRememberedSet
)

func (m BarrierMode) flags() Flags {
	var f Flags
	if m&BarrierLRSaved != 0 {
		f |= FlagLRSaved
	}
	if m&BarrierOmitRememberedSet == 0 {
		f |= FlagRemember
	}
	return f
}

// RecordWrite informs the collector that the slot at address inside object
// now holds value. The address and value registers are clobbered, and so
// is LR under BarrierLRSaved.
func (a *Assembler) RecordWrite(object, address, value Reg, mode BarrierMode) {
	if a.distinct(OpRecordWrite, object, address, value) {
		a.emit(Instr{Op: OpRecordWrite, Ra: object, Rb: address, Rc: value, Flags: mode.flags()})
	}
}

// RecordWriteField is RecordWrite for the field at offset of object,
// computing the slot address into scratch.
func (a *Assembler) RecordWriteField(object Reg, offset int, value, scratch Reg, mode BarrierMode) {
	a.Addi(scratch, object, int64(layout.Field(offset)))
	a.RecordWrite(object, scratch, value, mode)
}

// StoreFieldWithBarrier stores value into the pointer field at offset of
// an existing object and records the write. It is the only way to mutate
// pointer fields of objects the collector can already reach.
func (a *Assembler) StoreFieldWithBarrier(object Reg, offset int, value, scratch Reg, mode BarrierMode) {
	a.StoreP(value, object, layout.Field(offset))
	a.RecordWriteField(object, offset, value, scratch, mode)
}

// LoadRoot loads a root table entry.
func (a *Assembler) LoadRoot(rd Reg, root layout.RootIndex) {
	if root >= layout.RootCount {
		a.fail(AsmErrUnsupported, "unknown root %d", root)
		return
	}
	if a.regs(OpLoadRoot, rd) {
		a.emit(Instr{Op: OpLoadRoot, Rd: rd, Root: root})
	}
}

// CompareRoot compares ra with a root table entry, clobbering ip.
func (a *Assembler) CompareRoot(ra Reg, root layout.RootIndex) {
	if root >= layout.RootCount {
		a.fail(AsmErrUnsupported, "unknown root %d", root)
		return
	}
	if ra == IP {
		a.fail(AsmErrBadRegister, "compare_root clobbers %s", IP)
		return
	}
	if a.regs(OpCompareRoot, ra) {
		a.emit(Instr{Op: OpCompareRoot, Ra: ra, Root: root})
	}
}

// Assert aborts with msg unless cond holds. It emits nothing unless debug
// code is enabled.
func (a *Assembler) Assert(cond Cond, msg string) {
	if !a.debug {
		return
	}
	a.emit(Instr{Op: OpAssert, Cond: cond, Msg: msg})
}

// EnterFrame opens an internal frame, saving LR.
func (a *Assembler) EnterFrame() {
	a.frames++
	a.emit(Instr{Op: OpEnterFrame})
}

// LeaveFrame closes the innermost internal frame, restoring LR.
func (a *Assembler) LeaveFrame() {
	if a.frames == 0 {
		a.fail(AsmErrFrame, "leave_frame without a frame")
		return
	}
	a.frames--
	a.emit(Instr{Op: OpLeaveFrame})
}
