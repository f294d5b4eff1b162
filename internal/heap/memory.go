package heap

import (
	"fortio.org/safecast"
)

func (h *Heap) span(addr Addr, size int) ([]byte, error) {
	if addr < arenaBase {
		return nil, errorf(CodeOutOfBounds, addr, "access of %d bytes below the arena", size)
	}
	off, err := safecast.Conv[int](uint64(addr - arenaBase))
	if err != nil {
		return nil, errorf(CodeOutOfBounds, addr, "address out of range: %v", err)
	}
	if off+size > len(h.mem) || off+size < off {
		return nil, errorf(CodeOutOfBounds, addr, "access of %d bytes past the arena", size)
	}
	if h.SpaceOf(addr) != h.SpaceOf(addr+Addr(size-1)) {
		return nil, errorf(CodeOutOfBounds, addr, "access of %d bytes crosses a region boundary", size)
	}
	return h.mem[off : off+size], nil
}

// Load reads an unsigned value of size 1, 2, 4, or 8 bytes in target byte
// order. Only natural alignment of the access width up to 4 is required.
func (h *Heap) Load(addr Addr, size int) (uint64, error) {
	b, err := h.access(addr, size)
	if err != nil {
		return 0, err
	}
	order := h.target.Order()
	switch size {
	case 1:
		return uint64(b[0]), nil
	case 2:
		return uint64(order.Uint16(b)), nil
	case 4:
		return uint64(order.Uint32(b)), nil
	default:
		return order.Uint64(b), nil
	}
}

// Store writes the low size bytes of v in target byte order.
func (h *Heap) Store(addr Addr, size int, v uint64) error {
	b, err := h.access(addr, size)
	if err != nil {
		return err
	}
	order := h.target.Order()
	switch size {
	case 1:
		b[0] = byte(v)
	case 2:
		order.PutUint16(b, uint16(v))
	case 4:
		order.PutUint32(b, uint32(v))
	default:
		order.PutUint64(b, v)
	}
	return nil
}

func (h *Heap) access(addr Addr, size int) ([]byte, error) {
	switch size {
	case 1, 2, 4, 8:
	default:
		return nil, errorf(CodeMisaligned, addr, "unsupported access width %d", size)
	}
	natural := size
	if natural > 4 {
		natural = 4
	}
	if addr%Addr(natural) != 0 {
		return nil, errorf(CodeMisaligned, addr, "misaligned %d-byte access", size)
	}
	return h.span(addr, size)
}

// LoadWord reads a pointer-sized word.
func (h *Heap) LoadWord(addr Addr) (uint64, error) {
	return h.Load(addr, h.target.PtrSize)
}

// StoreWord writes a pointer-sized word.
func (h *Heap) StoreWord(addr Addr, v uint64) error {
	return h.Store(addr, h.target.PtrSize, v&h.target.WordMask())
}

// LoadDouble reads the bit pattern of the double at addr, honouring the
// target's float word order.
func (h *Heap) LoadDouble(addr Addr) (uint64, error) {
	if h.target.HasDoublewordStore() {
		return h.Load(addr, 8)
	}
	hi, err := h.Load(addr+Addr(h.target.HighWordOffset()), 4)
	if err != nil {
		return 0, err
	}
	lo, err := h.Load(addr+Addr(h.target.LowWordOffset()), 4)
	if err != nil {
		return 0, err
	}
	return hi<<32 | lo, nil
}

// StoreDouble writes a double bit pattern at addr.
func (h *Heap) StoreDouble(addr Addr, bits uint64) error {
	if h.target.HasDoublewordStore() {
		return h.Store(addr, 8, bits)
	}
	if err := h.Store(addr+Addr(h.target.HighWordOffset()), 4, bits>>32); err != nil {
		return err
	}
	return h.Store(addr+Addr(h.target.LowWordOffset()), 4, bits&0xFFFFFFFF)
}

// LoadField reads the tagged word at offset of obj.
func (h *Heap) LoadField(obj Tagged, offset int) (Tagged, error) {
	if !obj.IsHeapObject() {
		return 0, errorf(CodeNotHeapObject, 0, "field load from %s", obj)
	}
	w, err := h.LoadWord(obj.Addr() + Addr(offset))
	return Tagged(w), err
}

// initField writes a tagged word into an object that is not yet reachable
// from anything the collector scans, so no barrier is needed.
func (h *Heap) initField(obj Addr, offset int, v Tagged) error {
	return h.StoreWord(obj+Addr(offset), uint64(v))
}
