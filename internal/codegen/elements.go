package codegen

import (
	"stubgen/internal/layout"
	"stubgen/internal/masm"
)

// Elements transitions rewrite a JSArray in place when a store needs a more
// general elements kind. Each one has the same shape: an empty backing
// store only swaps the map; otherwise a new store is allocated and filled
// while still unreachable, then linked into the receiver, and the map is
// written last so the receiver never claims a kind its store does not have.

// GenerateMapChange changes the receiver's map without touching the
// backing store. It never allocates.
func GenerateMapChange(a *masm.Assembler, regs TransitionRegs) error {
	if err := regs.Validate(); err != nil {
		return err
	}
	lay := a.Layout()
	a.StoreFieldWithBarrier(regs.Receiver, lay.MapOffset, regs.TargetMap, regs.Dest, masm.BarrierOmitRememberedSet)
	return nil
}

// GenerateSmiToDouble converts a FAST_SMI_ELEMENTS receiver to
// FAST_DOUBLE_ELEMENTS. Control reaches fail only when the allocation
// fails, with the receiver untouched.
func GenerateSmiToDouble(a *masm.Assembler, regs TransitionRegs, fail masm.Label) error {
	if err := regs.Validate(); err != nil {
		return err
	}
	var (
		lay = a.Layout()
		t   = a.Target()
		p   = t.PtrSize
		r   = regs
	)
	loop := a.NewLabel("loop")
	entry := a.NewLabel("entry")
	convertHole := a.NewLabel("convert_hole")
	onlyChangeMap := a.NewLabel("only_change_map")
	done := a.NewLabel("done")

	a.LoadP(r.Elements, r.Receiver, layout.Field(lay.JSObjectElementsOffset))
	a.CompareRoot(r.Elements, layout.RootEmptyFixedArray)
	a.Bc(masm.EQ, onlyChangeMap)

	// The barriers below run with LR saved; Spill carries the hole pattern.
	scope := a.Preserve(true, r.Spill)

	// Room for a one-pointer filler keeps the payload 8-byte aligned
	// whatever the allocation top.
	a.LoadP(r.Length, r.Elements, layout.Field(lay.FixedArrayLengthOffset))
	a.SmiToDoubleArrayOffset(r.Cursor, r.Length)
	a.Addi(r.Cursor, r.Cursor, int64(lay.FixedDoubleArrayHeaderSize+p))
	a.Allocate(r.Dest, r.Cursor, r.Temp, masm.IP, scope.Bailout(fail), masm.AllocUntagged)

	aligned := a.NewLabel("aligned")
	alignedDone := a.NewLabel("aligned_done")
	a.LoadRoot(r.Temp, layout.RootOnePointerFillerMap)
	a.Andi(masm.R0, r.Dest, layout.DoubleAlignmentMask)
	a.Bc(masm.EQ, aligned)
	a.StoreP(r.Temp, r.Dest, 0)
	a.Addi(r.Dest, r.Dest, int64(p))
	a.B(alignedDone)
	a.Bind(aligned)
	a.Addi(r.Cursor, r.Cursor, int64(-p))
	a.StorePX(r.Temp, r.Dest, r.Cursor)
	a.Bind(alignedDone)

	a.LoadRoot(r.Temp, layout.RootFixedDoubleArrayMap)
	a.StoreP(r.Length, r.Dest, lay.FixedArrayLengthOffset)
	a.StoreP(r.Temp, r.Dest, lay.MapOffset)

	// Elements: source cursor; Cursor: destination cursor; Length: end.
	a.Addi(r.Elements, r.Elements, int64(layout.Field(lay.FixedArrayHeaderSize)))
	a.Addi(r.Cursor, r.Dest, int64(lay.FixedDoubleArrayHeaderSize))
	a.SmiToDoubleArrayOffset(r.Length, r.Length)
	a.Add(r.Length, r.Cursor, r.Length)
	if t.HasDoublewordStore() {
		a.Li(r.Spill, int64(layout.HoleNanInt64))
	} else {
		a.Li(r.Spill, int64(layout.HoleNanUpper32))
		a.Li(masm.R0, int64(layout.HoleNanLower32))
	}
	a.B(entry)

	a.Bind(loop)
	a.LoadP(r.Temp, r.Elements, 0)
	a.Addi(r.Elements, r.Elements, int64(p))
	a.Andi(masm.IP, r.Temp, layout.SmiTagMask)
	a.Bc(masm.NE, convertHole)
	a.SmiUntag(r.Temp, r.Temp)
	a.IntToDouble(masm.D0, r.Temp)
	a.Stfd(masm.D0, r.Cursor, 0)
	a.Addi(r.Cursor, r.Cursor, 8)
	a.B(entry)

	a.Bind(convertHole)
	if a.EmitDebugCode() {
		a.CompareRoot(r.Temp, layout.RootTheHole)
		a.Assert(masm.EQ, "object found in smi-only array")
	}
	if t.HasDoublewordStore() {
		a.Std(r.Spill, r.Cursor, 0)
	} else {
		a.Stw(r.Spill, r.Cursor, t.HighWordOffset())
		a.Stw(masm.R0, r.Cursor, t.LowWordOffset())
	}
	a.Addi(r.Cursor, r.Cursor, 8)

	a.Bind(entry)
	a.Cmpl(r.Cursor, r.Length)
	a.Bc(masm.LT, loop)

	a.Addi(r.Dest, r.Dest, layout.HeapObjectTag)
	a.StoreFieldWithBarrier(r.Receiver, lay.JSObjectElementsOffset, r.Dest, r.Temp, masm.BarrierLRSaved)
	a.StoreFieldWithBarrier(r.Receiver, lay.MapOffset, r.TargetMap, r.Temp, masm.BarrierLRSaved|masm.BarrierOmitRememberedSet)
	scope.Restore()
	a.B(done)

	// LR is live here, so the barrier must save it itself.
	a.Bind(onlyChangeMap)
	a.StoreFieldWithBarrier(r.Receiver, lay.MapOffset, r.TargetMap, r.Temp, masm.BarrierOmitRememberedSet)

	a.Bind(done)
	scope.Close()
	return nil
}

// GenerateDoubleToObject converts a FAST_DOUBLE_ELEMENTS receiver to
// FAST_ELEMENTS, boxing every non-hole double in a fresh heap number.
// Any allocation failure reaches fail with the receiver untouched; the
// partly filled store is unreachable and simply abandoned.
func GenerateDoubleToObject(a *masm.Assembler, regs TransitionRegs, fail masm.Label) error {
	if err := regs.Validate(); err != nil {
		return err
	}
	var (
		lay = a.Layout()
		t   = a.Target()
		p   = t.PtrSize
		r   = regs
	)
	loop := a.NewLabel("loop")
	entry := a.NewLabel("entry")
	convertHole := a.NewLabel("convert_hole")
	onlyChangeMap := a.NewLabel("only_change_map")

	a.LoadP(r.Elements, r.Receiver, layout.Field(lay.JSObjectElementsOffset))
	a.CompareRoot(r.Elements, layout.RootEmptyFixedArray)
	a.Bc(masm.EQ, onlyChangeMap)

	// The inputs double as temporaries until the loop is done.
	scope := a.Preserve(false, r.TargetMap, r.Receiver, r.Key, r.Value)
	bailout := scope.Bailout(fail)

	a.LoadP(r.Length, r.Elements, layout.Field(lay.FixedArrayLengthOffset))
	a.Li(r.Value, int64(lay.FixedArrayHeaderSize))
	a.SmiToPtrArrayOffset(masm.R0, r.Length)
	a.Add(r.Value, r.Value, masm.R0)
	a.Allocate(r.Dest, r.Value, r.TargetMap, r.Temp, bailout, masm.AllocUntagged)

	a.LoadRoot(r.Temp, layout.RootFixedArrayMap)
	a.StoreP(r.Length, r.Dest, lay.FixedArrayLengthOffset)
	a.StoreP(r.Temp, r.Dest, lay.MapOffset)
	a.Addi(r.Dest, r.Dest, layout.HeapObjectTag)

	// Elements: source cursor; Cursor: destination cursor; Length: end;
	// Temp: heap number map.
	a.Addi(r.Elements, r.Elements, int64(layout.Field(lay.FixedDoubleArrayHeaderSize)))
	a.Addi(r.Cursor, r.Dest, int64(layout.Field(lay.FixedArrayHeaderSize)))
	a.SmiToPtrArrayOffset(r.Length, r.Length)
	a.Add(r.Length, r.Cursor, r.Length)
	a.LoadRoot(r.Temp, layout.RootHeapNumberMap)
	a.B(entry)

	a.Bind(loop)
	upper := r.Key
	a.Lwz(upper, r.Elements, t.HighWordOffset())
	a.Addi(r.Elements, r.Elements, 8)
	a.Cmpli(upper, layout.HoleNanUpper32)
	a.Bc(masm.EQ, convertHole)

	number := r.Receiver
	a.AllocateHeapNumber(number, r.Value, masm.IP, r.Temp, bailout)
	value := layout.Field(lay.HeapNumberValueOffset)
	if t.HasDoublewordStore() {
		a.Ld(r.Value, r.Elements, -8)
		a.Std(r.Value, number, value)
	} else {
		a.Lwz(r.Value, r.Elements, t.LowWordOffset()-8)
		a.Lwz(upper, r.Elements, t.HighWordOffset()-8)
		a.Stw(r.Value, number, value+t.LowWordOffset())
		a.Stw(upper, number, value+t.HighWordOffset())
	}
	a.Mr(r.Value, r.Cursor)
	a.StoreP(number, r.Cursor, 0)
	a.Addi(r.Cursor, r.Cursor, int64(p))
	a.RecordWrite(r.Dest, r.Value, number, 0)
	a.B(entry)

	a.Bind(convertHole)
	a.LoadRoot(r.Value, layout.RootTheHole)
	a.StoreP(r.Value, r.Cursor, 0)
	a.Addi(r.Cursor, r.Cursor, int64(p))

	a.Bind(entry)
	a.Cmpl(r.Cursor, r.Length)
	a.Bc(masm.LT, loop)

	scope.Restore()
	a.StoreFieldWithBarrier(r.Receiver, lay.JSObjectElementsOffset, r.Dest, r.Temp, 0)

	a.Bind(onlyChangeMap)
	a.StoreFieldWithBarrier(r.Receiver, lay.MapOffset, r.TargetMap, r.Temp, masm.BarrierOmitRememberedSet)
	scope.Close()
	return nil
}
