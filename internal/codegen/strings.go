package codegen

import (
	"stubgen/internal/layout"
	"stubgen/internal/masm"
)

// maxIndirections bounds the sliced/cons unwrapping. A slice's parent is
// never sliced and a flat cons holds its characters in the first part, so
// two hops reach any flat string; anything deeper goes to the runtime.
const maxIndirections = 2

// GenerateStringCharLoad loads the code unit at Index of String into
// Result. Cons strings that are not flat and short external strings are
// left to the runtime by jumping to fail.
func GenerateStringCharLoad(a *masm.Assembler, regs StringCharRegs, fail masm.Label) error {
	if err := regs.Validate(); err != nil {
		return err
	}
	var (
		lay    = a.Layout()
		str    = regs.String
		index  = regs.Index
		result = regs.Result
	)
	loadInstanceType := func() {
		a.LoadP(result, str, layout.Field(lay.MapOffset))
		a.Lbz(result, result, layout.Field(lay.MapInstanceTypeOffset))
	}

	checkSequential := a.NewLabel("check_sequential")
	loadInstanceType()
	for hop := 0; hop < maxIndirections; hop++ {
		consString := a.NewLabel("cons_string")
		indirectLoaded := a.NewLabel("indirect_string_loaded")
		a.Andi(masm.R0, result, layout.IsIndirectStringMask)
		a.Bc(masm.EQ, checkSequential)

		a.Andi(masm.R0, result, layout.SlicedNotConsMask)
		a.Bc(masm.EQ, consString)

		a.LoadP(result, str, layout.Field(lay.SlicedOffsetOffset))
		a.LoadP(str, str, layout.Field(lay.SlicedParentOffset))
		a.SmiUntag(masm.IP, result)
		a.Add(index, index, masm.IP)
		a.B(indirectLoaded)

		// Only flat cons strings, whose second part is empty, are handled.
		a.Bind(consString)
		a.LoadP(result, str, layout.Field(lay.ConsSecondOffset))
		a.CompareRoot(result, layout.RootEmptyString)
		a.Bc(masm.NE, fail)
		a.LoadP(str, str, layout.Field(lay.ConsFirstOffset))

		a.Bind(indirectLoaded)
		loadInstanceType()
	}
	a.Andi(masm.R0, result, layout.IsIndirectStringMask)
	a.Bc(masm.NE, fail)

	externalString := a.NewLabel("external_string")
	checkEncoding := a.NewLabel("check_encoding")
	a.Bind(checkSequential)
	a.Andi(masm.R0, result, layout.StringRepresentationMask)
	a.Bc(masm.NE, externalString)
	a.Addi(str, str, int64(layout.Field(lay.SeqStringHeaderSize)))
	a.B(checkEncoding)

	a.Bind(externalString)
	a.Andi(masm.R0, result, layout.ShortExternalStringMask)
	a.Bc(masm.NE, fail)
	a.LoadP(str, str, layout.Field(lay.ExternalResourceDataOffset))

	oneByte := a.NewLabel("one_byte")
	done := a.NewLabel("done")
	a.Bind(checkEncoding)
	a.Andi(masm.R0, result, layout.StringEncodingMask)
	a.Bc(masm.NE, oneByte)
	a.Shli(result, index, 1)
	a.Lhzx(result, str, result)
	a.B(done)

	a.Bind(oneByte)
	a.Lbzx(result, str, index)
	a.Bind(done)
	return nil
}
