package heap

import (
	"slices"
)

// RecordWrite is the write barrier. It must be called after value has been
// stored into slot, a field of object. When remember is set and the store
// creates an old-to-young pointer, the slot enters the remembered set.
// Stores of permanent values such as maps may skip the remembered set.
func (h *Heap) RecordWrite(object Tagged, slot Addr, value Tagged, remember bool) error {
	h.stats.BarrierCalls++
	if !object.IsHeapObject() {
		return errorf(CodeNotHeapObject, slot, "barrier on non-object %s", object)
	}
	if slot < object.Addr() {
		return errorf(CodeBarrierMismatch, slot, "slot lies before object %s", object.Addr())
	}
	w, err := h.LoadWord(slot)
	if err != nil {
		return err
	}
	if Tagged(w) != value {
		return errorf(CodeBarrierMismatch, slot, "slot holds %s, barrier recorded %s", Tagged(w), value)
	}
	if !remember || !value.IsHeapObject() {
		return nil
	}
	if h.InYoung(value.Addr()) && !h.InYoung(slot) {
		if _, ok := h.remembered[slot]; !ok {
			h.remembered[slot] = struct{}{}
			h.stats.RememberedInserts++
		}
	}
	return nil
}

// Remembered reports whether slot is in the remembered set.
func (h *Heap) Remembered(slot Addr) bool {
	_, ok := h.remembered[slot]
	return ok
}

// RememberedSet returns the remembered slots in address order.
func (h *Heap) RememberedSet() []Addr {
	out := make([]Addr, 0, len(h.remembered))
	for a := range h.remembered {
		out = append(out, a)
	}
	slices.Sort(out)
	return out
}
