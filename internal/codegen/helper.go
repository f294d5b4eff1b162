package codegen

import "stubgen/internal/masm"

// RuntimeCallHelper brackets a call from stub code into the runtime with
// an internal frame, so the runtime can walk the stack.
type RuntimeCallHelper struct{}

// BeforeCall opens the frame. Stubs run frameless, so a frame that is
// already open means the helper was misused.
func (RuntimeCallHelper) BeforeCall(a *masm.Assembler) error {
	if a.HasFrame() {
		return &Error{Kind: ErrFrame, Detail: "runtime call helper entered with a frame already open"}
	}
	a.EnterFrame()
	return nil
}

// AfterCall closes the frame opened by BeforeCall.
func (RuntimeCallHelper) AfterCall(a *masm.Assembler) error {
	if !a.HasFrame() {
		return &Error{Kind: ErrFrame, Detail: "runtime call helper left without a frame"}
	}
	a.LeaveFrame()
	return nil
}
