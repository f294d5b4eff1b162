package masm

// Scope tracks registers saved on the stack so they can be reused as
// temporaries. Every exit from the scope must restore them: the
// fall-through path through Restore, and each failure path through a
// label obtained from Bailout.
type Scope struct {
	a        *Assembler
	regs     []Reg
	restored bool
	closed   bool
}

// Preserve pushes regs, preceded by LR when link is set, and opens a scope.
func (a *Assembler) Preserve(link bool, regs ...Reg) *Scope {
	saved := make([]Reg, 0, len(regs)+1)
	if link {
		saved = append(saved, LR)
	}
	saved = append(saved, regs...)
	a.Push(saved...)
	s := &Scope{a: a, regs: saved}
	a.scopes = append(a.scopes, s)
	return s
}

// Regs returns the preserved registers in push order.
func (s *Scope) Regs() []Reg { return append([]Reg(nil), s.regs...) }

// Bailout returns a label that restores the preserved registers and then
// jumps to fail. The restoring code is emitted out of line.
func (s *Scope) Bailout(fail Label) Label {
	a := s.a
	if s.closed {
		a.fail(AsmErrScope, "bailout from a closed scope")
		return fail
	}
	if !a.knownLabel(fail) {
		return fail
	}
	l := a.NewLabel(a.labelNames[fail] + ".restore")
	regs := s.regs
	a.Defer(func() {
		a.Bind(l)
		a.Pop(regs...)
		a.B(fail)
	})
	return l
}

// Restore pops the preserved registers on the current path.
func (s *Scope) Restore() {
	if s.restored {
		s.a.fail(AsmErrScope, "scope restored twice")
		return
	}
	s.restored = true
	s.a.Pop(s.regs...)
}

// Close ends the scope. A scope must be restored before it is closed.
func (s *Scope) Close() {
	if s.closed {
		s.a.fail(AsmErrScope, "scope closed twice")
		return
	}
	if !s.restored {
		s.a.fail(AsmErrScope, "scope preserving %v closed without restoring", s.regs)
	}
	s.closed = true
}
