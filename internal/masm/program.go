package masm

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"stubgen/internal/layout"
)

// ProgramSchemaVersion changes whenever the encoded form changes.
const ProgramSchemaVersion uint16 = 1

// Program is an assembled instruction sequence with resolved labels.
type Program struct {
	Name       string        `msgpack:"name"`
	Target     layout.Target `msgpack:"target"`
	DebugCode  bool          `msgpack:"debug_code"`
	Instrs     []Instr       `msgpack:"instrs"`
	Labels     []int         `msgpack:"labels"`
	LabelNames []string      `msgpack:"label_names"`
}

// LabelPC returns the instruction index l is bound to.
func (p *Program) LabelPC(l Label) (int, bool) {
	if l < 0 || int(l) >= len(p.Labels) || p.Labels[l] < 0 {
		return 0, false
	}
	return p.Labels[l], true
}

// LabelName returns the listing name of l.
func (p *Program) LabelName(l Label) string {
	if l < 0 || int(l) >= len(p.LabelNames) {
		return fmt.Sprintf("L%d", l)
	}
	return p.LabelNames[l]
}

// Count returns how many instructions use op.
func (p *Program) Count(op Op) int {
	n := 0
	for _, in := range p.Instrs {
		if in.Op == op {
			n++
		}
	}
	return n
}

type encodedProgram struct {
	Schema  uint16   `msgpack:"schema"`
	Program *Program `msgpack:"program"`
}

// EncodeProgram serializes p with msgpack.
func EncodeProgram(p *Program) ([]byte, error) {
	return msgpack.Marshal(&encodedProgram{Schema: ProgramSchemaVersion, Program: p})
}

// DecodeProgram parses and validates an encoded program.
func DecodeProgram(data []byte) (*Program, error) {
	var ep encodedProgram
	if err := msgpack.Unmarshal(data, &ep); err != nil {
		return nil, &AsmError{Kind: AsmErrDecode, PC: -1, Detail: err.Error()}
	}
	if ep.Schema != ProgramSchemaVersion {
		return nil, &AsmError{Kind: AsmErrDecode, PC: -1, Detail: fmt.Sprintf("schema %d, want %d", ep.Schema, ProgramSchemaVersion)}
	}
	p := ep.Program
	if p == nil {
		return nil, &AsmError{Kind: AsmErrDecode, PC: -1, Detail: "missing program"}
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Validate checks that the program is well formed for its target.
func (p *Program) Validate() error {
	bad := func(pc int, format string, args ...any) error {
		return &AsmError{Kind: AsmErrDecode, Program: p.Name, PC: pc, Detail: fmt.Sprintf(format, args...)}
	}
	if err := p.Target.Validate(); err != nil {
		return err
	}
	if len(p.Labels) != len(p.LabelNames) {
		return bad(-1, "%d labels but %d label names", len(p.Labels), len(p.LabelNames))
	}
	for l, pc := range p.Labels {
		if pc > len(p.Instrs) {
			return bad(-1, "label %s bound past the end", p.LabelNames[l])
		}
	}
	for pc, in := range p.Instrs {
		if in.Op >= numOps {
			return bad(pc, "unknown op %d", in.Op)
		}
		for _, r := range []Reg{in.Rd, in.Ra, in.Rb, in.Rc} {
			if !r.Valid() {
				return bad(pc, "bad register %d", r)
			}
		}
		if in.Fd >= NumFRegs {
			return bad(pc, "bad float register %d", in.Fd)
		}
		switch in.Op {
		case OpB, OpBc, OpAllocate, OpAllocateHeapNumber:
			if _, ok := p.LabelPC(in.Label); !ok {
				return bad(pc, "branch to unbound label %d", in.Label)
			}
		case OpLd, OpStd:
			if !p.Target.HasDoublewordStore() {
				return bad(pc, "%s on %s", in.Op, p.Target.Triple)
			}
		}
	}
	return nil
}
