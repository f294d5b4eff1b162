package layout

import (
	"errors"
	"testing"
)

func TestTargetsAreValid(t *testing.T) {
	targets := Targets()
	if len(targets) != 4 {
		t.Fatalf("expected 4 targets, got %d", len(targets))
	}
	for _, tgt := range targets {
		if err := tgt.Validate(); err != nil {
			t.Fatalf("%s: %v", tgt.Triple, err)
		}
	}
}

func TestTargetByNameAcceptsShortForm(t *testing.T) {
	tgt, err := TargetByName("ppc64le")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tgt.Triple != "ppc64le-linux-gnu" {
		t.Fatalf("got %q", tgt.Triple)
	}
	_, err = TargetByName("mips")
	var te *TargetError
	if !errors.As(err, &te) || te.Kind != TargetErrUnknown {
		t.Fatalf("expected unknown target error, got %v", err)
	}
}

func TestValidateRejectsOddPointerSize(t *testing.T) {
	tgt := PPCLinuxGNU()
	tgt.PtrSize = 2
	if _, err := For(tgt); err == nil {
		t.Fatal("expected error for 2-byte pointers")
	}
}

func TestHeaderSizesKeepDoublePayloadAligned(t *testing.T) {
	for _, tgt := range Targets() {
		l := MustFor(tgt)
		if l.FixedDoubleArrayHeaderSize%DoubleAlignment != 0 {
			t.Fatalf("%s: double array header %d not 8-aligned", tgt.Triple, l.FixedDoubleArrayHeaderSize)
		}
		if l.FixedArrayHeaderSize != l.FixedDoubleArrayHeaderSize {
			t.Fatalf("%s: array headers differ", tgt.Triple)
		}
		if l.ShortExternalStringSize >= l.ExternalStringSize {
			t.Fatalf("%s: short external strings must be smaller", tgt.Triple)
		}
	}
}

func TestLayoutIsCached(t *testing.T) {
	a := MustFor(PPC64LinuxGNU())
	b := MustFor(PPC64LinuxGNU())
	if a != b {
		t.Fatal("expected the same cached layout")
	}
}

func TestWordOffsets(t *testing.T) {
	be := PPCLinuxGNU()
	if be.HighWordOffset() != 0 || be.LowWordOffset() != 4 {
		t.Fatalf("big-endian word offsets: high=%d low=%d", be.HighWordOffset(), be.LowWordOffset())
	}
	le := PPCLELinuxGNU()
	if le.HighWordOffset() != 4 || le.LowWordOffset() != 0 {
		t.Fatalf("little-endian word offsets: high=%d low=%d", le.HighWordOffset(), le.LowWordOffset())
	}
}

func TestStringInstanceTypeBits(t *testing.T) {
	if !ShortExternalOneByteStringType.IsShortExternal() {
		t.Fatal("short external one-byte string not recognized")
	}
	if ExternalOneByteStringType.IsShortExternal() {
		t.Fatal("regular external string reported as short")
	}
	if !SlicedOneByteStringType.IsOneByte() || SlicedTwoByteStringType.IsOneByte() {
		t.Fatal("encoding bit misread")
	}
	if int(ConsTwoByteStringType)&IsIndirectStringMask == 0 || int(SlicedTwoByteStringType)&IsIndirectStringMask == 0 {
		t.Fatal("indirect strings must have the indirect bit")
	}
	if int(ConsTwoByteStringType)&SlicedNotConsMask != 0 {
		t.Fatal("cons string must not have the sliced bit")
	}
	if FixedArrayType.IsString() {
		t.Fatal("fixed array reported as string")
	}
}

func TestHoleNanIsNotCanonical(t *testing.T) {
	if HoleNanInt64 == CanonicalNaN {
		t.Fatal("hole NaN collides with canonical NaN")
	}
	if HoleNanInt64>>32 != uint64(HoleNanUpper32) {
		t.Fatal("hole NaN upper half mismatch")
	}
}
