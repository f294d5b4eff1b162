// Package masm is an abstract macro assembler for PowerPC-style targets.
// Generators describe code as a sequence of instructions and runtime macros
// (allocation, write barrier, root access) which the machine package
// executes against a simulated heap.
package masm

import (
	"errors"
	"fmt"

	"stubgen/internal/layout"
)

// Assembler accumulates a Program. Misuse is recorded and reported by
// Finish, so generators can emit straight-line code without checking every
// call.
type Assembler struct {
	target layout.Target
	lay    *layout.Layout
	name   string
	debug  bool

	instrs     []Instr
	labels     []int
	labelNames []string
	deferred   []func()
	scopes     []*Scope
	frames     int
	errs       []error
	finished   bool
}

// New creates an assembler for a program called name.
func New(target layout.Target, name string) (*Assembler, error) {
	lay, err := layout.For(target)
	if err != nil {
		return nil, err
	}
	return &Assembler{target: target, lay: lay, name: name}, nil
}

// Target returns the target being assembled for.
func (a *Assembler) Target() layout.Target { return a.target }

// Layout returns the object layout of the target.
func (a *Assembler) Layout() *layout.Layout { return a.lay }

// SetEmitDebugCode enables internal assertions.
func (a *Assembler) SetEmitDebugCode(on bool) { a.debug = on }

// EmitDebugCode reports whether internal assertions are emitted.
func (a *Assembler) EmitDebugCode() bool { return a.debug }

// HasFrame reports whether an internal frame is open.
func (a *Assembler) HasFrame() bool { return a.frames > 0 }

// PC is the index of the next instruction.
func (a *Assembler) PC() int { return len(a.instrs) }

func (a *Assembler) fail(kind AsmErrorKind, format string, args ...any) {
	a.errs = append(a.errs, &AsmError{Kind: kind, Program: a.name, PC: len(a.instrs), Detail: fmt.Sprintf(format, args...)})
}

func (a *Assembler) emit(in Instr) {
	if a.finished {
		a.fail(AsmErrFinished, "%s after Finish", in.Op)
		return
	}
	a.instrs = append(a.instrs, in)
}

func (a *Assembler) regs(op Op, rs ...Reg) bool {
	for _, r := range rs {
		if !r.Valid() || (r == LR && op != OpPush && op != OpPop && op != OpMr) {
			a.fail(AsmErrBadRegister, "%s cannot use %s", op, r)
			return false
		}
	}
	return true
}

// NewLabel creates an unbound label; name is used in listings.
func (a *Assembler) NewLabel(name string) Label {
	a.labels = append(a.labels, -1)
	a.labelNames = append(a.labelNames, name)
	return Label(len(a.labels) - 1)
}

// Bind places l at the current position.
func (a *Assembler) Bind(l Label) {
	if !a.knownLabel(l) {
		return
	}
	if a.labels[l] >= 0 {
		a.fail(AsmErrReboundLabel, "%s", a.labelNames[l])
		return
	}
	a.labels[l] = len(a.instrs)
}

func (a *Assembler) knownLabel(l Label) bool {
	if l < 0 || int(l) >= len(a.labels) {
		a.fail(AsmErrBadLabel, "label %d", l)
		return false
	}
	return true
}

func (a *Assembler) immFits(op Op, imm int64) bool {
	if a.target.Is64() {
		return true
	}
	if imm < -(1<<31) || imm > 1<<32-1 {
		a.fail(AsmErrUnsupported, "%s immediate 0x%x exceeds the 32-bit word", op, imm)
		return false
	}
	return true
}

// Li loads an immediate.
func (a *Assembler) Li(rd Reg, imm int64) {
	if a.regs(OpLi, rd) && a.immFits(OpLi, imm) {
		a.emit(Instr{Op: OpLi, Rd: rd, Imm: imm})
	}
}

// Mr copies ra into rd.
func (a *Assembler) Mr(rd, ra Reg) {
	if a.regs(OpMr, rd, ra) {
		a.emit(Instr{Op: OpMr, Rd: rd, Ra: ra})
	}
}

// Addi adds an immediate.
func (a *Assembler) Addi(rd, ra Reg, imm int64) {
	if a.regs(OpAddi, rd, ra) && a.immFits(OpAddi, imm) {
		a.emit(Instr{Op: OpAddi, Rd: rd, Ra: ra, Imm: imm})
	}
}

func (a *Assembler) Add(rd, ra, rb Reg) {
	if a.regs(OpAdd, rd, ra, rb) {
		a.emit(Instr{Op: OpAdd, Rd: rd, Ra: ra, Rb: rb})
	}
}

func (a *Assembler) Sub(rd, ra, rb Reg) {
	if a.regs(OpSub, rd, ra, rb) {
		a.emit(Instr{Op: OpSub, Rd: rd, Ra: ra, Rb: rb})
	}
}

// Andi masks ra with an unsigned 16-bit immediate and sets cr0.
func (a *Assembler) Andi(rd, ra Reg, mask uint16) {
	if a.regs(OpAndi, rd, ra) {
		a.emit(Instr{Op: OpAndi, Rd: rd, Ra: ra, Imm: int64(mask)})
	}
}

func (a *Assembler) shift(op Op, rd, ra Reg, n int) {
	if n < 0 || n >= 8*a.target.PtrSize {
		a.fail(AsmErrUnsupported, "%s by %d on a %d-bit word", op, n, 8*a.target.PtrSize)
		return
	}
	if a.regs(op, rd, ra) {
		a.emit(Instr{Op: op, Rd: rd, Ra: ra, Imm: int64(n)})
	}
}

// Shli shifts left by n bits.
func (a *Assembler) Shli(rd, ra Reg, n int) { a.shift(OpShli, rd, ra, n) }

// Srai shifts right arithmetically by n bits.
func (a *Assembler) Srai(rd, ra Reg, n int) { a.shift(OpSrai, rd, ra, n) }

// Cmp compares signed words into cr0.
func (a *Assembler) Cmp(ra, rb Reg) {
	if a.regs(OpCmp, ra, rb) {
		a.emit(Instr{Op: OpCmp, Ra: ra, Rb: rb})
	}
}

// Cmpl compares unsigned words into cr0.
func (a *Assembler) Cmpl(ra, rb Reg) {
	if a.regs(OpCmpl, ra, rb) {
		a.emit(Instr{Op: OpCmpl, Ra: ra, Rb: rb})
	}
}

func (a *Assembler) Cmpi(ra Reg, imm int64) {
	if a.regs(OpCmpi, ra) && a.immFits(OpCmpi, imm) {
		a.emit(Instr{Op: OpCmpi, Ra: ra, Imm: imm})
	}
}

func (a *Assembler) Cmpli(ra Reg, imm uint32) {
	if a.regs(OpCmpli, ra) {
		a.emit(Instr{Op: OpCmpli, Ra: ra, Imm: int64(imm)})
	}
}

func (a *Assembler) mem(op Op, r, base Reg, off int) {
	if a.regs(op, r, base) {
		a.emit(Instr{Op: op, Rd: r, Ra: base, Imm: int64(off)})
	}
}

func (a *Assembler) memx(op Op, r, base, index Reg) {
	if a.regs(op, r, base, index) {
		a.emit(Instr{Op: op, Rd: r, Ra: base, Rb: index})
	}
}

// LoadP loads a pointer-sized word from off(base).
func (a *Assembler) LoadP(rd, base Reg, off int) { a.mem(OpLoadP, rd, base, off) }

// StoreP stores a pointer-sized word. It must only target memory that no
// other object references yet; use StoreFieldWithBarrier otherwise.
func (a *Assembler) StoreP(rs, base Reg, off int) { a.mem(OpStoreP, rs, base, off) }

// LoadPX loads a word from base+index.
func (a *Assembler) LoadPX(rd, base, index Reg) { a.memx(OpLoadPX, rd, base, index) }

// StorePX stores a word to base+index, under the same rule as StoreP.
func (a *Assembler) StorePX(rs, base, index Reg) { a.memx(OpStorePX, rs, base, index) }

// Lbz loads a zero-extended byte.
func (a *Assembler) Lbz(rd, base Reg, off int) { a.mem(OpLbz, rd, base, off) }

func (a *Assembler) Lbzx(rd, base, index Reg) { a.memx(OpLbzx, rd, base, index) }

// Lhzx loads a zero-extended halfword from base+index.
func (a *Assembler) Lhzx(rd, base, index Reg) { a.memx(OpLhzx, rd, base, index) }

// Lwz loads a zero-extended 32-bit word.
func (a *Assembler) Lwz(rd, base Reg, off int) { a.mem(OpLwz, rd, base, off) }

// Stw stores the low 32 bits of rs.
func (a *Assembler) Stw(rs, base Reg, off int) { a.mem(OpStw, rs, base, off) }

func (a *Assembler) doubleword(op Op) bool {
	if !a.target.HasDoublewordStore() {
		a.fail(AsmErrUnsupported, "%s needs 64-bit registers, %s has %d-bit", op, a.target.Triple, 8*a.target.PtrSize)
		return false
	}
	return true
}

// Ld loads a doubleword. 64-bit targets only.
func (a *Assembler) Ld(rd, base Reg, off int) {
	if a.doubleword(OpLd) {
		a.mem(OpLd, rd, base, off)
	}
}

// Std stores a doubleword. 64-bit targets only.
func (a *Assembler) Std(rs, base Reg, off int) {
	if a.doubleword(OpStd) {
		a.mem(OpStd, rs, base, off)
	}
}

// IntToDouble converts the signed word in ra.
func (a *Assembler) IntToDouble(fd FReg, ra Reg) {
	if a.regs(OpIntToDouble, ra) {
		a.emit(Instr{Op: OpIntToDouble, Fd: fd, Ra: ra})
	}
}

// Lfd loads a double in the target's float word order.
func (a *Assembler) Lfd(fd FReg, base Reg, off int) {
	if a.regs(OpLfd, base) {
		a.emit(Instr{Op: OpLfd, Fd: fd, Ra: base, Imm: int64(off)})
	}
}

// Stfd stores a double in the target's float word order.
func (a *Assembler) Stfd(fd FReg, base Reg, off int) {
	if a.regs(OpStfd, base) {
		a.emit(Instr{Op: OpStfd, Fd: fd, Ra: base, Imm: int64(off)})
	}
}

// B branches unconditionally.
func (a *Assembler) B(l Label) {
	if a.knownLabel(l) {
		a.emit(Instr{Op: OpB, Label: l})
	}
}

// Bc branches when cond holds on cr0.
func (a *Assembler) Bc(cond Cond, l Label) {
	if cond == CondAlways {
		a.B(l)
		return
	}
	if a.knownLabel(l) {
		a.emit(Instr{Op: OpBc, Cond: cond, Label: l})
	}
}

// Push pushes registers left to right.
func (a *Assembler) Push(rs ...Reg) {
	for _, r := range rs {
		if a.regs(OpPush, r) {
			a.emit(Instr{Op: OpPush, Rd: r})
		}
	}
}

// Pop undoes Push with the same register list.
func (a *Assembler) Pop(rs ...Reg) {
	for i := len(rs) - 1; i >= 0; i-- {
		if a.regs(OpPop, rs[i]) {
			a.emit(Instr{Op: OpPop, Rd: rs[i]})
		}
	}
}

// Exit leaves the program with the given outcome.
func (a *Assembler) Exit(kind ExitKind) {
	a.emit(Instr{Op: OpExit, Imm: int64(kind)})
}

// Defer queues out-of-line code, emitted by Finish after the main body.
func (a *Assembler) Defer(emit func()) {
	a.deferred = append(a.deferred, emit)
}

// Finish emits deferred code, checks labels, scopes and frames, and
// returns the program.
func (a *Assembler) Finish() (*Program, error) {
	for len(a.deferred) > 0 {
		d := a.deferred
		a.deferred = nil
		for _, emit := range d {
			emit()
		}
	}
	for _, s := range a.scopes {
		if !s.closed {
			a.fail(AsmErrScope, "scope preserving %v left open", s.regs)
		}
	}
	if a.frames != 0 {
		a.fail(AsmErrFrame, "%d internal frame(s) left open", a.frames)
	}
	for pc, in := range a.instrs {
		switch in.Op {
		case OpB, OpBc, OpAllocate, OpAllocateHeapNumber:
			if a.labels[in.Label] < 0 {
				a.errs = append(a.errs, &AsmError{Kind: AsmErrUnboundLabel, Program: a.name, PC: pc, Detail: a.labelNames[in.Label]})
			}
		}
	}
	a.finished = true
	if len(a.errs) > 0 {
		return nil, errors.Join(a.errs...)
	}
	return &Program{
		Name:       a.name,
		Target:     a.target,
		DebugCode:  a.debug,
		Instrs:     a.instrs,
		Labels:     a.labels,
		LabelNames: a.labelNames,
	}, nil
}
