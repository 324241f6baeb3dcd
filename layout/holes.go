package layout

// Data is allocated in power-of-two bit sizes. lg is log2 of the size in
// bits: 0 for a bit, 3 for a byte, 6 for a whole word. Offsets are always in
// units of the size being allocated.
const lgWord = 6

// holeSet tracks at most one free slot per size below a word. A free slot
// of size 2^lg at offset o is recorded as holes[lg] = o. Zero means no
// hole, which is unambiguous because offset zero is always the first thing
// handed out.
type holeSet struct {
	holes [lgWord]uint32
}

// tryAllocate takes a hole of exactly 2^lg bits, splitting a larger hole
// if needed.
func (h *holeSet) tryAllocate(lg int) (uint32, bool) {
	if lg >= len(h.holes) {
		return 0, false
	}
	if h.holes[lg] != 0 {
		off := h.holes[lg]
		h.holes[lg] = 0
		return off, true
	}
	next, ok := h.tryAllocate(lg + 1)
	if !ok {
		return 0, false
	}
	off := next * 2
	h.holes[lg] = off + 1
	return off, true
}

// addHolesAtEnd records the free halves left over after allocating a
// 2^lg slot at the start of a region of size 2^limit. offset is the
// position of the first free slot and is always odd.
func (h *holeSet) addHolesAtEnd(lg int, offset uint32, limit int) {
	for ; lg < limit; lg++ {
		h.holes[lg] = offset
		offset = (offset + 1) / 2
	}
}

// tryExpand grows the slot of size 2^oldLg at oldOffset in place by
// 2^factor, consuming the holes directly after it.
func (h *holeSet) tryExpand(oldLg int, oldOffset uint32, factor int) bool {
	if factor == 0 {
		return true
	}
	if oldLg == len(h.holes) {
		return false
	}
	if h.holes[oldLg] != oldOffset+1 {
		return false
	}
	if h.tryExpand(oldLg+1, oldOffset>>1, factor-1) {
		h.holes[oldLg] = 0
		return true
	}
	return false
}

// smallestAtLeast returns the size of the smallest hole of at least 2^lg.
func (h *holeSet) smallestAtLeast(lg int) (int, bool) {
	for i := lg; i < len(h.holes); i++ {
		if h.holes[i] != 0 {
			return i, true
		}
	}
	return 0, false
}

// storage is a region fields allocate from: the struct itself, or one
// member's view of a union.
type storage interface {
	addData(lg int) uint32
	addPointer() uint32
	addVoid()
	tryExpandData(oldLg int, oldOffset uint32, factor int) bool
}

// topStorage is the struct's own data and pointer sections. Data grows a
// word at a time; pointers grow a slot at a time.
type topStorage struct {
	holes        holeSet
	dataWords    uint32
	pointerCount uint32
}

func (s *topStorage) addData(lg int) uint32 {
	if off, ok := s.holes.tryAllocate(lg); ok {
		return off
	}
	off := s.dataWords << (lgWord - lg)
	s.dataWords++
	s.holes.addHolesAtEnd(lg, off+1, lgWord)
	return off
}

func (s *topStorage) addPointer() uint32 {
	slot := s.pointerCount
	s.pointerCount++
	return slot
}

func (s *topStorage) addVoid() {}

func (s *topStorage) tryExpandData(oldLg int, oldOffset uint32, factor int) bool {
	return s.holes.tryExpand(oldLg, oldOffset, factor)
}
