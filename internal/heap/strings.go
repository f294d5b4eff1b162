package heap

import (
	"encoding/binary"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"

	"stubgen/internal/layout"
)

// Encoding selects the character width of a flat string.
type Encoding uint8

const (
	OneByte Encoding = iota + 1 // Latin-1, one byte per character
	TwoByte                     // UTF-16 code units in target byte order
)

func (e Encoding) String() string {
	switch e {
	case OneByte:
		return "one-byte"
	case TwoByte:
		return "two-byte"
	default:
		return "unknown"
	}
}

func (h *Heap) utf16() encoding.Encoding {
	if h.target.ByteOrder == layout.BigEndian {
		return unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM)
	}
	return unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)
}

// encode converts s to raw character data and returns the data and its
// length in code units.
func (h *Heap) encode(s string, enc Encoding) ([]byte, int, error) {
	switch enc {
	case OneByte:
		data, err := charmap.ISO8859_1.NewEncoder().Bytes([]byte(s))
		if err != nil {
			return nil, 0, errorf(CodeEncoding, 0, "%q is not representable in one byte per character: %v", s, err)
		}
		return data, len(data), nil
	case TwoByte:
		data, err := h.utf16().NewEncoder().Bytes([]byte(s))
		if err != nil {
			return nil, 0, errorf(CodeEncoding, 0, "%q: %v", s, err)
		}
		return data, len(data) / 2, nil
	default:
		return nil, 0, errorf(CodeInvalidArgument, 0, "unknown encoding %d", enc)
	}
}

func (h *Heap) stringMap(t layout.InstanceType) (Tagged, error) {
	root, ok := layout.StringMapRoot(t)
	if !ok {
		return 0, errorf(CodeInvalidArgument, 0, "%s is not a string type", t)
	}
	return h.roots[root], nil
}

func (h *Heap) writeStringHeader(addr Addr, t layout.InstanceType, length int) error {
	m, err := h.stringMap(t)
	if err != nil {
		return err
	}
	if err := h.initField(addr, h.lay.MapOffset, m); err != nil {
		return err
	}
	if err := h.initField(addr, h.lay.StringLengthOffset, h.Smi(int64(length))); err != nil {
		return err
	}
	return h.initField(addr, h.lay.StringHashOffset, 0)
}

// NewSeqString allocates a tenured sequential string.
func (h *Heap) NewSeqString(s string, enc Encoding) (Tagged, error) {
	data, _, err := h.encode(s, enc)
	if err != nil {
		return 0, err
	}
	return h.newSeqString(data, enc == OneByte)
}

func (h *Heap) newSeqString(data []byte, oneByte bool) (Tagged, error) {
	t := layout.SeqTwoByteStringType
	length := len(data) / 2
	if oneByte {
		t = layout.SeqOneByteStringType
		length = len(data)
	}
	addr, err := h.allocateOld(h.lay.SeqStringSize(length, oneByte), 0)
	if err != nil {
		return 0, err
	}
	if err := h.writeStringHeader(addr, t, length); err != nil {
		return 0, err
	}
	if len(data) > 0 {
		dst, err := h.span(addr+Addr(h.lay.SeqStringHeaderSize), len(data))
		if err != nil {
			return 0, err
		}
		copy(dst, data)
	}
	return FromAddr(addr), nil
}

// NewConsString allocates the lazy concatenation first+second.
func (h *Heap) NewConsString(first, second Tagged) (Tagged, error) {
	ft, err := h.InstanceTypeOf(first)
	if err != nil {
		return 0, err
	}
	st, err := h.InstanceTypeOf(second)
	if err != nil {
		return 0, err
	}
	if !ft.IsString() || !st.IsString() {
		return 0, errorf(CodeInvalidArgument, 0, "cons parts must be strings, got %s and %s", ft, st)
	}
	fl, err := h.StringLength(first)
	if err != nil {
		return 0, err
	}
	sl, err := h.StringLength(second)
	if err != nil {
		return 0, err
	}
	t := layout.ConsTwoByteStringType
	if ft.IsOneByte() && st.IsOneByte() {
		t = layout.ConsOneByteStringType
	}
	addr, err := h.allocateOld(h.lay.ConsStringSize, 0)
	if err != nil {
		return 0, err
	}
	if err := h.writeStringHeader(addr, t, fl+sl); err != nil {
		return 0, err
	}
	if err := h.initField(addr, h.lay.ConsFirstOffset, first); err != nil {
		return 0, err
	}
	if err := h.initField(addr, h.lay.ConsSecondOffset, second); err != nil {
		return 0, err
	}
	return FromAddr(addr), nil
}

// NewSlicedString allocates a window of length characters into parent
// starting at offset.
func (h *Heap) NewSlicedString(parent Tagged, offset, length int) (Tagged, error) {
	pt, err := h.InstanceTypeOf(parent)
	if err != nil {
		return 0, err
	}
	if !pt.IsString() {
		return 0, errorf(CodeInvalidArgument, parent.Addr(), "slice parent is %s", pt)
	}
	pl, err := h.StringLength(parent)
	if err != nil {
		return 0, err
	}
	if offset < 0 || length < 0 || offset+length > pl {
		return 0, errorf(CodeInvalidArgument, parent.Addr(), "slice [%d:%d] out of range for length %d", offset, offset+length, pl)
	}
	t := layout.SlicedTwoByteStringType
	if pt.IsOneByte() {
		t = layout.SlicedOneByteStringType
	}
	addr, err := h.allocateOld(h.lay.SlicedStringSize, 0)
	if err != nil {
		return 0, err
	}
	if err := h.writeStringHeader(addr, t, length); err != nil {
		return 0, err
	}
	if err := h.initField(addr, h.lay.SlicedParentOffset, parent); err != nil {
		return 0, err
	}
	if err := h.initField(addr, h.lay.SlicedOffsetOffset, h.Smi(int64(offset))); err != nil {
		return 0, err
	}
	return FromAddr(addr), nil
}

// NewExternalString copies s into the off-heap region and allocates an
// external string pointing at it. Short external strings carry no cached
// data pointer.
func (h *Heap) NewExternalString(s string, enc Encoding, short bool) (Tagged, error) {
	data, length, err := h.encode(s, enc)
	if err != nil {
		return 0, err
	}
	buf, err := h.allocateExternal(len(data))
	if err != nil {
		return 0, err
	}
	if len(data) > 0 {
		dst, err := h.span(buf, len(data))
		if err != nil {
			return 0, err
		}
		copy(dst, data)
	}
	t := layout.ExternalTwoByteStringType
	if enc == OneByte {
		t = layout.ExternalOneByteStringType
	}
	size := h.lay.ExternalStringSize
	if short {
		t |= layout.ShortExternalStringTag
		size = h.lay.ShortExternalStringSize
	}
	addr, err := h.allocateOld(size, 0)
	if err != nil {
		return 0, err
	}
	if err := h.writeStringHeader(addr, t, length); err != nil {
		return 0, err
	}
	// Resource pointers are raw, 8-byte aligned addresses and so read as
	// small integers to the collector.
	if err := h.StoreWord(addr+Addr(h.lay.ExternalResourceOffset), uint64(buf)); err != nil {
		return 0, err
	}
	if !short {
		if err := h.StoreWord(addr+Addr(h.lay.ExternalResourceDataOffset), uint64(buf)); err != nil {
			return 0, err
		}
	}
	return FromAddr(addr), nil
}

// StringLength returns the character count of any string.
func (h *Heap) StringLength(s Tagged) (int, error) {
	w, err := h.LoadField(s, h.lay.StringLengthOffset)
	if err != nil {
		return 0, err
	}
	n, err := h.SmiValue(w)
	return int(n), err
}

// CharCodeAt is the reference implementation of character access. It
// follows any depth of cons and sliced layering.
func (h *Heap) CharCodeAt(s Tagged, index int) (uint16, error) {
	for {
		t, err := h.InstanceTypeOf(s)
		if err != nil {
			return 0, err
		}
		if !t.IsString() {
			return 0, errorf(CodeUnexpectedShape, s.Addr(), "%s is not a string", t)
		}
		n, err := h.StringLength(s)
		if err != nil {
			return 0, err
		}
		if index < 0 || index >= n {
			return 0, errorf(CodeInvalidArgument, s.Addr(), "index %d out of bounds for length %d", index, n)
		}
		switch t.Representation() {
		case layout.ConsStringTag:
			first, err := h.LoadField(s, h.lay.ConsFirstOffset)
			if err != nil {
				return 0, err
			}
			fl, err := h.StringLength(first)
			if err != nil {
				return 0, err
			}
			if index < fl {
				s = first
				continue
			}
			second, err := h.LoadField(s, h.lay.ConsSecondOffset)
			if err != nil {
				return 0, err
			}
			s, index = second, index-fl
		case layout.SlicedStringTag:
			off, err := h.LoadField(s, h.lay.SlicedOffsetOffset)
			if err != nil {
				return 0, err
			}
			o, err := h.SmiValue(off)
			if err != nil {
				return 0, err
			}
			parent, err := h.LoadField(s, h.lay.SlicedParentOffset)
			if err != nil {
				return 0, err
			}
			s, index = parent, index+int(o)
		default:
			base := s.Addr() + Addr(h.lay.SeqStringHeaderSize)
			if t.Representation() == layout.ExternalStringTag {
				res, err := h.LoadWord(s.Addr() + Addr(h.lay.ExternalResourceOffset))
				if err != nil {
					return 0, err
				}
				base = Addr(res)
			}
			if t.IsOneByte() {
				c, err := h.Load(base+Addr(index), 1)
				return uint16(c), err
			}
			c, err := h.Load(base+Addr(2*index), 2)
			return uint16(c), err
		}
	}
}

// StringValue flattens s into a Go string.
func (h *Heap) StringValue(s Tagged) (string, error) {
	n, err := h.StringLength(s)
	if err != nil {
		return "", err
	}
	units := make([]byte, 0, 2*n)
	for i := 0; i < n; i++ {
		c, err := h.CharCodeAt(s, i)
		if err != nil {
			return "", err
		}
		units = binary.BigEndian.AppendUint16(units, c)
	}
	out, err := unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM).NewDecoder().Bytes(units)
	if err != nil {
		return "", errorf(CodeEncoding, s.Addr(), "decode: %v", err)
	}
	return string(out), nil
}
