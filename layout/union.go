package layout

// unionStorage is the space shared by the members of one union. Members
// never overlap each other's discriminant, but they do overlap each
// other: every member sees the same list of locations and carves its own
// fields out of them.
type unionStorage struct {
	parent           storage
	dataLocations    []dataLocation
	pointerLocations []uint32
	discriminant     uint32
	hasDiscriminant  bool
	groupCount       int
}

// dataLocation is one slot of size 2^lg allocated from the parent, at
// offset in units of that size.
type dataLocation struct {
	lg     int
	offset uint32
}

func newUnionStorage(parent storage) *unionStorage {
	return &unionStorage{parent: parent}
}

// addDiscriminant allocates the 16-bit tag. It reports false if the tag
// was already placed.
func (u *unionStorage) addDiscriminant() bool {
	if u.hasDiscriminant {
		return false
	}
	u.discriminant = u.parent.addData(4)
	u.hasDiscriminant = true
	return true
}

func (u *unionStorage) newGroupAddingFirstMember() {
	u.groupCount++
	if u.groupCount == 2 {
		u.addDiscriminant()
	}
}

func (u *unionStorage) addNewDataLocation(lg int) uint32 {
	off := u.parent.addData(lg)
	u.dataLocations = append(u.dataLocations, dataLocation{lg: lg, offset: off})
	return off
}

func (u *unionStorage) addNewPointerLocation() uint32 {
	slot := u.parent.addPointer()
	u.pointerLocations = append(u.pointerLocations, slot)
	return slot
}

func (u *unionStorage) tryExpandTo(loc *dataLocation, newLg int) bool {
	if newLg <= loc.lg {
		return true
	}
	if !u.parent.tryExpandData(loc.lg, loc.offset, newLg-loc.lg) {
		return false
	}
	loc.offset >>= uint(newLg - loc.lg)
	loc.lg = newLg
	return true
}

// locationUsage is how much of one union location a member has used.
// Offsets in holes are relative to the start of the location.
type locationUsage struct {
	holes  holeSet
	lgUsed int
	used   bool
}

// smallestHoleAtLeast reports the size of the smallest free piece of the
// location that can hold 2^lg bits.
func (m *locationUsage) smallestHoleAtLeast(loc *dataLocation, lg int) (int, bool) {
	switch {
	case !m.used:
		if lg <= loc.lg {
			return loc.lg, true
		}
		return 0, false
	case lg >= m.lgUsed:
		if lg < loc.lg {
			return lg, true
		}
		return 0, false
	}
	if size, ok := m.holes.smallestAtLeast(lg); ok {
		return size, true
	}
	if m.lgUsed < loc.lg {
		return m.lgUsed, true
	}
	return 0, false
}

// allocateFromHole places 2^lg bits, given that smallestHoleAtLeast
// succeeded. The result is an offset in the parent in units of 2^lg.
func (m *locationUsage) allocateFromHole(loc *dataLocation, lg int) uint32 {
	var result uint32
	switch {
	case !m.used:
		m.used = true
		m.lgUsed = lg
	case lg >= m.lgUsed:
		// Double the used region to twice the request and take the upper half.
		m.holes.addHolesAtEnd(m.lgUsed, 1, lg)
		m.lgUsed = lg + 1
		result = 1
	default:
		if off, ok := m.holes.tryAllocate(lg); ok {
			result = off
		} else {
			result = 1 << uint(m.lgUsed-lg)
			m.holes.addHolesAtEnd(lg, result+1, m.lgUsed)
			m.lgUsed++
		}
	}
	return loc.offset<<uint(loc.lg-lg) + result
}

func (m *locationUsage) tryAllocateByExpanding(u *unionStorage, loc *dataLocation, lg int) (uint32, bool) {
	if !m.used {
		if !u.tryExpandTo(loc, lg) {
			return 0, false
		}
		m.used = true
		m.lgUsed = lg
		return loc.offset << uint(loc.lg-lg), true
	}
	newSize := max(m.lgUsed, lg) + 1
	if !m.tryExpandUsage(u, loc, newSize, true) {
		return 0, false
	}
	off, ok := m.holes.tryAllocate(lg)
	if !ok {
		return 0, false
	}
	return loc.offset<<uint(loc.lg-lg) + off, true
}

func (m *locationUsage) tryExpand(u *unionStorage, loc *dataLocation, oldLg int, oldOffset uint32, factor int) bool {
	if oldOffset == 0 && m.lgUsed == oldLg {
		return m.tryExpandUsage(u, loc, oldLg+factor, false)
	}
	return m.holes.tryExpand(oldLg, oldOffset, factor)
}

func (m *locationUsage) tryExpandUsage(u *unionStorage, loc *dataLocation, desired int, newHoles bool) bool {
	if desired > loc.lg && !u.tryExpandTo(loc, desired) {
		return false
	}
	if newHoles {
		m.holes.addHolesAtEnd(m.lgUsed, 1, desired)
	}
	m.lgUsed = desired
	return true
}

// memberStorage is one union member's view of the union. The first field
// planned into it makes the member count toward the union; the second
// member to do so places the discriminant.
type memberStorage struct {
	union        *unionStorage
	usage        []locationUsage
	pointersUsed int
	hasMembers   bool
}

func newMemberStorage(u *unionStorage) *memberStorage {
	return &memberStorage{union: u}
}

func (g *memberStorage) addMember() {
	if !g.hasMembers {
		g.hasMembers = true
		g.union.newGroupAddingFirstMember()
	}
}

func (g *memberStorage) addData(lg int) uint32 {
	g.addMember()

	locs := g.union.dataLocations
	for len(g.usage) < len(locs) {
		g.usage = append(g.usage, locationUsage{})
	}

	best, bestSize := -1, lgWord+1
	for i := range locs {
		if size, ok := g.usage[i].smallestHoleAtLeast(&locs[i], lg); ok && size < bestSize {
			best, bestSize = i, size
		}
	}
	if best >= 0 {
		return g.usage[best].allocateFromHole(&g.union.dataLocations[best], lg)
	}

	for i := range locs {
		if off, ok := g.usage[i].tryAllocateByExpanding(g.union, &g.union.dataLocations[i], lg); ok {
			return off
		}
	}

	off := g.union.addNewDataLocation(lg)
	g.usage = append(g.usage, locationUsage{used: true, lgUsed: lg})
	return off
}

func (g *memberStorage) addPointer() uint32 {
	g.addMember()
	if g.pointersUsed < len(g.union.pointerLocations) {
		slot := g.union.pointerLocations[g.pointersUsed]
		g.pointersUsed++
		return slot
	}
	g.pointersUsed++
	return g.union.addNewPointerLocation()
}

func (g *memberStorage) addVoid() {
	g.addMember()
	g.union.parent.addVoid()
}

func (g *memberStorage) tryExpandData(oldLg int, oldOffset uint32, factor int) bool {
	mustFail := oldLg+factor > lgWord || oldOffset&(1<<uint(factor)-1) != 0
	for i := range g.usage {
		loc := &g.union.dataLocations[i]
		if loc.lg < oldLg || oldOffset>>uint(loc.lg-oldLg) != loc.offset {
			continue
		}
		local := oldOffset - loc.offset<<uint(loc.lg-oldLg)
		return !mustFail && g.usage[i].tryExpand(g.union, loc, oldLg, local, factor)
	}
	return false
}
