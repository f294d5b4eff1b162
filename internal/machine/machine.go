// Package machine executes masm programs against a simulated heap.
package machine

import (
	"errors"
	"fmt"
	"strconv"

	"fortio.org/safecast"

	"stubgen/internal/heap"
	"stubgen/internal/layout"
	"stubgen/internal/masm"
	"stubgen/internal/trace"
)

// Outcome is how a program left.
type Outcome uint8

const (
	Completed Outcome = iota + 1
	Fallback
	Abort
)

func (o Outcome) String() string {
	switch o {
	case Completed:
		return "completed"
	case Fallback:
		return "fallback"
	case Abort:
		return "abort"
	default:
		return "unknown"
	}
}

// Result describes a finished run.
type Result struct {
	Outcome      Outcome
	AbortMessage string
	Steps        int
}

// Stats counts executed operations by class.
type Stats struct {
	ByteLoads         int
	IndexedByteLoads  int
	HalfwordLoads     int
	WordLoads         int
	DoublewordLoads   int
	Stores            int
	Allocations       int
	FailedAllocations int
	Barriers          int
	Safepoints        int
}

// DefaultStepLimit bounds a run; the stubs are loop-bounded by array length.
const DefaultStepLimit = 1 << 20

// zapPattern replaces clobbered registers.
const zapPattern uint64 = 0xBADC0FFEE0DDF00D

// Machine holds the register state of one simulated thread.
type Machine struct {
	heap   *heap.Heap
	target layout.Target
	mask   uint64

	regs  [masm.NumRegs]uint64
	fregs [masm.NumFRegs]uint64
	cr0   int
	stack []uint64

	// StepLimit stops runaway programs; zero means DefaultStepLimit.
	StepLimit int
	// Safepoint runs after every successful allocation, where a collector
	// may run. A returned error faults the program.
	Safepoint func() error
	// Tracer receives one point event per executed instruction at the
	// instruction scope.
	Tracer trace.Tracer

	stats Stats
}

// New creates a machine over h with every register zeroed.
func New(h *heap.Heap) *Machine {
	t := h.Target()
	return &Machine{heap: h, target: t, mask: t.WordMask(), Tracer: trace.Nop}
}

// Heap returns the heap the machine operates on.
func (m *Machine) Heap() *heap.Heap { return m.heap }

// Reg reads a general register.
func (m *Machine) Reg(r masm.Reg) uint64 { return m.regs[r] }

// SetReg writes a general register, truncated to the word size.
func (m *Machine) SetReg(r masm.Reg, v uint64) { m.regs[r] = v & m.mask }

// FReg reads the bit pattern of a float register.
func (m *Machine) FReg(f masm.FReg) uint64 { return m.fregs[f] }

// StackDepth returns the number of words on the stack.
func (m *Machine) StackDepth() int { return len(m.stack) }

// Stats returns the operation counters.
func (m *Machine) Stats() Stats { return m.stats }

// ResetStats zeroes the operation counters.
func (m *Machine) ResetStats() { m.stats = Stats{} }

// CharLoads counts the indexed byte and halfword loads that read string
// characters.
func (s Stats) CharLoads() int { return s.IndexedByteLoads + s.HalfwordLoads }

// Scramble fills every register with junk derived from seed, so results
// that depend on uninitialized registers show up as differences.
func (m *Machine) Scramble(seed uint64) {
	x := seed | 1
	for i := range m.regs {
		x ^= x << 13
		x ^= x >> 7
		x ^= x << 17
		m.regs[i] = x & m.mask
	}
	for i := range m.fregs {
		x ^= x << 13
		x ^= x >> 7
		x ^= x << 17
		m.fregs[i] = x
	}
}

func (m *Machine) signed(v uint64) int64 {
	if m.target.Is64() {
		return int64(v)
	}
	return int64(int32(uint32(v)))
}

func compare[T int64 | uint64](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func (m *Machine) zap(rs ...masm.Reg) {
	for _, r := range rs {
		m.regs[r] = zapPattern & m.mask
	}
}

// Run executes p from its first instruction until an exit, an assertion
// abort, or a fault.
func (m *Machine) Run(p *masm.Program) (Result, error) {
	if p.Target != m.target {
		return Result{}, &Error{Kind: ErrTarget, PC: -1, Err: fmt.Errorf("program for %s, heap for %s", p.Target.Triple, m.target.Triple)}
	}
	limit := m.StepLimit
	if limit <= 0 {
		limit = DefaultStepLimit
	}
	tracing := m.Tracer != nil && m.Tracer.Enabled() && m.Tracer.Level().ShouldEmit(trace.ScopeInstr)
	pc := 0
	for steps := 1; ; steps++ {
		if steps > limit {
			return Result{Steps: steps}, &Error{Kind: ErrStepLimit, PC: pc}
		}
		if pc < 0 || pc >= len(p.Instrs) {
			return Result{Steps: steps}, &Error{Kind: ErrBadProgram, PC: pc, Err: errors.New("fell off the end of the program")}
		}
		in := p.Instrs[pc]
		if tracing {
			m.traceInstr(p, pc, in)
		}
		next, res, err := m.step(p, pc, in)
		if err != nil {
			return Result{Steps: steps}, err
		}
		if res != nil {
			res.Steps = steps
			return *res, nil
		}
		pc = next
	}
}

func (m *Machine) traceInstr(p *masm.Program, pc int, in masm.Instr) {
	m.Tracer.Emit(&trace.Event{
		Kind:   trace.KindPoint,
		Scope:  trace.ScopeInstr,
		Name:   in.Mnemonic(),
		Detail: in.Operands(p.LabelName),
		Extra:  map[string]string{"pc": strconv.Itoa(pc), "program": p.Name},
	})
}

func (m *Machine) addr(base uint64, off int64) heap.Addr {
	return heap.Addr((base + uint64(off)) & m.mask)
}

func (m *Machine) branch(p *masm.Program, pc int, l masm.Label) (int, error) {
	target, ok := p.LabelPC(l)
	if !ok {
		return 0, &Error{Kind: ErrBadProgram, PC: pc, Op: p.Instrs[pc].Op, Err: fmt.Errorf("unbound label %s", p.LabelName(l))}
	}
	return target, nil
}

func (m *Machine) step(p *masm.Program, pc int, in masm.Instr) (int, *Result, error) {
	fault := func(kind ErrorKind, err error) (int, *Result, error) {
		return 0, nil, &Error{Kind: kind, PC: pc, Op: in.Op, Err: err}
	}
	h := m.heap
	r := &m.regs
	next := pc + 1
	switch in.Op {
	case masm.OpNop:
	case masm.OpLi:
		r[in.Rd] = uint64(in.Imm) & m.mask
	case masm.OpMr:
		r[in.Rd] = r[in.Ra]
	case masm.OpAddi:
		r[in.Rd] = (r[in.Ra] + uint64(in.Imm)) & m.mask
	case masm.OpAdd:
		r[in.Rd] = (r[in.Ra] + r[in.Rb]) & m.mask
	case masm.OpSub:
		r[in.Rd] = (r[in.Ra] - r[in.Rb]) & m.mask
	case masm.OpAndi:
		v := r[in.Ra] & uint64(in.Imm)
		r[in.Rd] = v
		m.cr0 = compare(m.signed(v), 0)
	case masm.OpShli:
		r[in.Rd] = (r[in.Ra] << uint(in.Imm)) & m.mask
	case masm.OpSrai:
		r[in.Rd] = uint64(m.signed(r[in.Ra])>>uint(in.Imm)) & m.mask
	case masm.OpCmp:
		m.cr0 = compare(m.signed(r[in.Ra]), m.signed(r[in.Rb]))
	case masm.OpCmpl:
		m.cr0 = compare(r[in.Ra], r[in.Rb])
	case masm.OpCmpi:
		m.cr0 = compare(m.signed(r[in.Ra]), in.Imm)
	case masm.OpCmpli:
		m.cr0 = compare(r[in.Ra], uint64(in.Imm)&m.mask)

	case masm.OpLoadP, masm.OpLoadPX, masm.OpLbz, masm.OpLbzx, masm.OpLhzx, masm.OpLwz, masm.OpLd:
		v, err := m.load(in)
		if err != nil {
			return fault(ErrMemory, err)
		}
		r[in.Rd] = v
	case masm.OpStoreP, masm.OpStorePX, masm.OpStw, masm.OpStd:
		if err := m.store(in); err != nil {
			return fault(ErrMemory, err)
		}
	case masm.OpIntToDouble:
		m.fregs[in.Fd] = heap.Float(float64(m.signed(r[in.Ra])))
	case masm.OpLfd:
		bits, err := h.LoadDouble(m.addr(r[in.Ra], in.Imm))
		if err != nil {
			return fault(ErrMemory, err)
		}
		m.stats.DoublewordLoads++
		m.fregs[in.Fd] = bits
	case masm.OpStfd:
		if err := h.StoreDouble(m.addr(r[in.Ra], in.Imm), m.fregs[in.Fd]); err != nil {
			return fault(ErrMemory, err)
		}
		m.stats.Stores++

	case masm.OpB:
		t, err := m.branch(p, pc, in.Label)
		if err != nil {
			return 0, nil, err
		}
		next = t
	case masm.OpBc:
		if in.Cond.Holds(m.cr0) {
			t, err := m.branch(p, pc, in.Label)
			if err != nil {
				return 0, nil, err
			}
			next = t
		}
	case masm.OpPush:
		m.stack = append(m.stack, r[in.Rd])
	case masm.OpPop:
		v, err := m.pop()
		if err != nil {
			return fault(ErrStack, err)
		}
		r[in.Rd] = v

	case masm.OpAllocate, masm.OpAllocateHeapNumber:
		ok, err := m.allocate(in)
		if err != nil {
			return fault(ErrMemory, err)
		}
		if !ok {
			t, err := m.branch(p, pc, in.Label)
			if err != nil {
				return 0, nil, err
			}
			return t, nil, nil
		}
		if m.Safepoint != nil {
			m.stats.Safepoints++
			if err := m.Safepoint(); err != nil {
				return fault(ErrSafepoint, err)
			}
		}
	case masm.OpRecordWrite:
		m.stats.Barriers++
		err := h.RecordWrite(heap.Tagged(r[in.Ra]), heap.Addr(r[in.Rb]), heap.Tagged(r[in.Rc]), in.Flags&masm.FlagRemember != 0)
		if err != nil {
			return fault(ErrBarrier, err)
		}
		m.zap(in.Rb, in.Rc)
		if in.Flags&masm.FlagLRSaved != 0 {
			m.zap(masm.LR)
		}
	case masm.OpLoadRoot:
		r[in.Rd] = uint64(h.Root(in.Root))
	case masm.OpCompareRoot:
		r[masm.IP] = uint64(h.Root(in.Root))
		m.cr0 = compare(r[in.Ra], r[masm.IP])
	case masm.OpAssert:
		if !in.Cond.Holds(m.cr0) {
			return 0, &Result{Outcome: Abort, AbortMessage: in.Msg}, nil
		}
	case masm.OpEnterFrame:
		m.stack = append(m.stack, r[masm.LR], frameMarker)
	case masm.OpLeaveFrame:
		marker, err := m.pop()
		if err == nil && marker != frameMarker {
			err = fmt.Errorf("frame marker 0x%x corrupted", marker)
		}
		if err != nil {
			return fault(ErrStack, err)
		}
		lr, err := m.pop()
		if err != nil {
			return fault(ErrStack, err)
		}
		r[masm.LR] = lr
	case masm.OpExit:
		if masm.ExitKind(in.Imm) == masm.ExitFallback {
			return 0, &Result{Outcome: Fallback}, nil
		}
		return 0, &Result{Outcome: Completed}, nil
	default:
		return fault(ErrBadProgram, fmt.Errorf("unknown op %s", in.Op))
	}
	return next, nil, nil
}

const frameMarker uint64 = 0x1F

func (m *Machine) pop() (uint64, error) {
	if len(m.stack) == 0 {
		return 0, errors.New("pop from empty stack")
	}
	v := m.stack[len(m.stack)-1]
	m.stack = m.stack[:len(m.stack)-1]
	return v, nil
}

func (m *Machine) load(in masm.Instr) (uint64, error) {
	h := m.heap
	r := &m.regs
	switch in.Op {
	case masm.OpLoadP:
		m.stats.WordLoads++
		return h.LoadWord(m.addr(r[in.Ra], in.Imm))
	case masm.OpLoadPX:
		m.stats.WordLoads++
		return h.LoadWord(m.addr(r[in.Ra], int64(r[in.Rb])))
	case masm.OpLbz:
		m.stats.ByteLoads++
		return h.Load(m.addr(r[in.Ra], in.Imm), 1)
	case masm.OpLbzx:
		m.stats.IndexedByteLoads++
		return h.Load(m.addr(r[in.Ra], int64(r[in.Rb])), 1)
	case masm.OpLhzx:
		m.stats.HalfwordLoads++
		return h.Load(m.addr(r[in.Ra], int64(r[in.Rb])), 2)
	case masm.OpLwz:
		m.stats.WordLoads++
		return h.Load(m.addr(r[in.Ra], in.Imm), 4)
	default:
		m.stats.DoublewordLoads++
		return h.Load(m.addr(r[in.Ra], in.Imm), 8)
	}
}

func (m *Machine) store(in masm.Instr) error {
	h := m.heap
	r := &m.regs
	m.stats.Stores++
	switch in.Op {
	case masm.OpStoreP:
		return h.StoreWord(m.addr(r[in.Ra], in.Imm), r[in.Rd])
	case masm.OpStorePX:
		return h.StoreWord(m.addr(r[in.Ra], int64(r[in.Rb])), r[in.Rd])
	case masm.OpStw:
		return h.Store(m.addr(r[in.Ra], in.Imm), 4, r[in.Rd])
	default:
		return h.Store(m.addr(r[in.Ra], in.Imm), 8, r[in.Rd])
	}
}

// allocate reports false when the young generation refuses the request.
func (m *Machine) allocate(in masm.Instr) (bool, error) {
	h := m.heap
	r := &m.regs
	size := h.Layout().HeapNumberSize
	if in.Op == masm.OpAllocate {
		n, err := safecast.Conv[int](m.signed(r[in.Ra]))
		if err != nil {
			return false, err
		}
		size = n
	}
	m.zap(in.Rb, in.Rc)
	a, err := h.AllocateYoung(size)
	if errors.Is(err, heap.ErrExhausted) {
		m.stats.FailedAllocations++
		m.zap(in.Rd)
		return false, nil
	}
	if err != nil {
		return false, err
	}
	m.stats.Allocations++
	if in.Op == masm.OpAllocateHeapNumber {
		if err := h.StoreWord(a, r[in.Ra]); err != nil {
			return false, err
		}
		r[in.Rd] = uint64(heap.FromAddr(a))
		return true, nil
	}
	if in.Flags&masm.FlagTagObject != 0 {
		r[in.Rd] = uint64(heap.FromAddr(a))
	} else {
		r[in.Rd] = uint64(a)
	}
	return true, nil
}
