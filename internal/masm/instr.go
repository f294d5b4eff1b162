package masm

import (
	"fmt"

	"stubgen/internal/layout"
)

// Op is an abstract instruction. Plain ops map onto single target
// instructions; the macro ops at the end stand for the runtime's shared
// sequences (allocation, write barrier, root access, frames).
type Op uint8

const (
	OpNop Op = iota
	OpLi
	OpMr
	OpAddi
	OpAdd
	OpSub
	OpAndi // sets cr0
	OpShli
	OpSrai
	OpCmp
	OpCmpl
	OpCmpi
	OpCmpli
	OpLoadP
	OpStoreP
	OpLoadPX
	OpStorePX
	OpLbz
	OpLbzx
	OpLhzx
	OpLwz
	OpStw
	OpLd
	OpStd
	OpIntToDouble
	OpLfd
	OpStfd
	OpB
	OpBc
	OpPush
	OpPop

	OpAllocate
	OpAllocateHeapNumber
	OpRecordWrite
	OpLoadRoot
	OpCompareRoot
	OpAssert
	OpEnterFrame
	OpLeaveFrame
	OpExit

	numOps
)

var opNames = [...]string{
	OpNop:                "nop",
	OpLi:                 "li",
	OpMr:                 "mr",
	OpAddi:               "addi",
	OpAdd:                "add",
	OpSub:                "sub",
	OpAndi:               "andi.",
	OpShli:               "slwi",
	OpSrai:               "srawi",
	OpCmp:                "cmp",
	OpCmpl:               "cmpl",
	OpCmpi:               "cmpi",
	OpCmpli:              "cmpli",
	OpLoadP:              "loadp",
	OpStoreP:             "storep",
	OpLoadPX:             "loadpx",
	OpStorePX:            "storepx",
	OpLbz:                "lbz",
	OpLbzx:               "lbzx",
	OpLhzx:               "lhzx",
	OpLwz:                "lwz",
	OpStw:                "stw",
	OpLd:                 "ld",
	OpStd:                "std",
	OpIntToDouble:        "itod",
	OpLfd:                "lfd",
	OpStfd:               "stfd",
	OpB:                  "b",
	OpBc:                 "b",
	OpPush:               "push",
	OpPop:                "pop",
	OpAllocate:           "allocate",
	OpAllocateHeapNumber: "allocate_heap_number",
	OpRecordWrite:        "record_write",
	OpLoadRoot:           "load_root",
	OpCompareRoot:        "compare_root",
	OpAssert:             "assert",
	OpEnterFrame:         "enter_frame",
	OpLeaveFrame:         "leave_frame",
	OpExit:               "exit",
}

func (o Op) String() string {
	if o < numOps {
		return opNames[o]
	}
	return fmt.Sprintf("op(%d)", uint8(o))
}

// IsMacro reports whether the op expands to a runtime sequence.
func (o Op) IsMacro() bool { return o >= OpAllocate && o < numOps }

// Cond is a branch condition evaluated against cr0.
type Cond uint8

const (
	CondAlways Cond = iota
	EQ
	NE
	LT
	GE
	GT
	LE
)

func (c Cond) String() string {
	switch c {
	case EQ:
		return "eq"
	case NE:
		return "ne"
	case LT:
		return "lt"
	case GE:
		return "ge"
	case GT:
		return "gt"
	case LE:
		return "le"
	default:
		return ""
	}
}

// Holds reports whether c is satisfied by a three-way comparison result.
func (c Cond) Holds(cmp int) bool {
	switch c {
	case EQ:
		return cmp == 0
	case NE:
		return cmp != 0
	case LT:
		return cmp < 0
	case GE:
		return cmp >= 0
	case GT:
		return cmp > 0
	case LE:
		return cmp <= 0
	default:
		return true
	}
}

// Flags modify macro ops.
type Flags uint8

const (
	// FlagTagObject makes Allocate return a tagged pointer.
	FlagTagObject Flags = 1 << iota
	// FlagLRSaved tells RecordWrite the caller already saved LR, so the
	// barrier may clobber it.
	FlagLRSaved
	// FlagRemember makes RecordWrite update the remembered set.
	FlagRemember
)

// ExitKind is carried in the immediate of OpExit.
type ExitKind int64

const (
	ExitReturn ExitKind = iota
	ExitFallback
)

func (k ExitKind) String() string {
	if k == ExitFallback {
		return "fallback"
	}
	return "return"
}

// Label names a position in a program.
type Label int32

// Instr is one abstract instruction. Unused operand fields are zero.
type Instr struct {
	Op    Op               `msgpack:"op"`
	Rd    Reg              `msgpack:"rd,omitempty"`
	Ra    Reg              `msgpack:"ra,omitempty"`
	Rb    Reg              `msgpack:"rb,omitempty"`
	Rc    Reg              `msgpack:"rc,omitempty"`
	Fd    FReg             `msgpack:"fd,omitempty"`
	Imm   int64            `msgpack:"imm,omitempty"`
	Cond  Cond             `msgpack:"cond,omitempty"`
	Label Label            `msgpack:"label,omitempty"`
	Root  layout.RootIndex `msgpack:"root,omitempty"`
	Flags Flags            `msgpack:"flags,omitempty"`
	Msg   string           `msgpack:"msg,omitempty"`
}

// Mnemonic is the op name with its condition suffix.
func (in Instr) Mnemonic() string {
	if in.Op == OpBc {
		return "b" + in.Cond.String()
	}
	return in.Op.String()
}

// Operands renders the operand list; labels are rendered by name.
func (in Instr) Operands(labelName func(Label) string) string {
	mem := func(r Reg, off int64) string { return fmt.Sprintf("%d(%s)", off, r) }
	switch in.Op {
	case OpLi:
		return fmt.Sprintf("%s, 0x%x", in.Rd, uint64(in.Imm))
	case OpMr:
		return fmt.Sprintf("%s, %s", in.Rd, in.Ra)
	case OpAddi, OpAndi, OpShli, OpSrai:
		return fmt.Sprintf("%s, %s, %d", in.Rd, in.Ra, in.Imm)
	case OpAdd, OpSub:
		return fmt.Sprintf("%s, %s, %s", in.Rd, in.Ra, in.Rb)
	case OpCmp, OpCmpl:
		return fmt.Sprintf("%s, %s", in.Ra, in.Rb)
	case OpCmpi, OpCmpli:
		return fmt.Sprintf("%s, 0x%x", in.Ra, uint64(in.Imm))
	case OpLoadP, OpLbz, OpLwz, OpLd:
		return fmt.Sprintf("%s, %s", in.Rd, mem(in.Ra, in.Imm))
	case OpStoreP, OpStw, OpStd:
		return fmt.Sprintf("%s, %s", in.Rd, mem(in.Ra, in.Imm))
	case OpLoadPX, OpStorePX, OpLbzx, OpLhzx:
		return fmt.Sprintf("%s, %s, %s", in.Rd, in.Ra, in.Rb)
	case OpIntToDouble:
		return fmt.Sprintf("%s, %s", in.Fd, in.Ra)
	case OpLfd, OpStfd:
		return fmt.Sprintf("%s, %s", in.Fd, mem(in.Ra, in.Imm))
	case OpB, OpBc:
		return labelName(in.Label)
	case OpPush, OpPop:
		return in.Rd.String()
	case OpAllocate:
		tag := ""
		if in.Flags&FlagTagObject != 0 {
			tag = ", tagged"
		}
		return fmt.Sprintf("%s <- [%s], %s, %s, %s%s", in.Rd, in.Ra, in.Rb, in.Rc, labelName(in.Label), tag)
	case OpAllocateHeapNumber:
		return fmt.Sprintf("%s, %s, %s, map=%s, %s", in.Rd, in.Rb, in.Rc, in.Ra, labelName(in.Label))
	case OpRecordWrite:
		s := fmt.Sprintf("%s, [%s], %s", in.Ra, in.Rb, in.Rc)
		if in.Flags&FlagLRSaved != 0 {
			s += ", lr_saved"
		}
		if in.Flags&FlagRemember == 0 {
			s += ", omit_remembered_set"
		}
		return s
	case OpLoadRoot:
		return fmt.Sprintf("%s, %s", in.Rd, in.Root)
	case OpCompareRoot:
		return fmt.Sprintf("%s, %s", in.Ra, in.Root)
	case OpAssert:
		return fmt.Sprintf("%s, %q", in.Cond, in.Msg)
	case OpExit:
		return ExitKind(in.Imm).String()
	default:
		return ""
	}
}
