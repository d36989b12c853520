package surfacemesh

// cornerSlot records whether a lattice corner has been promoted to a vertex.
type cornerSlot struct {
	id       int32
	assigned bool
}

// cornerRegistry maps corner lattice points to vertex ids, handing out ids
// in first-claim order.
type cornerRegistry struct {
	rowStride   int // nx+1
	sliceStride int // (nx+1)*(ny+1)
	slots       []cornerSlot
	count       int32
}

func newCornerRegistry(nx, ny, nz int) *cornerRegistry {
	return &cornerRegistry{
		rowStride:   nx + 1,
		sliceStride: (nx + 1) * (ny + 1),
		slots:       make([]cornerSlot, (nx+1)*(ny+1)*(nz+1)),
	}
}

func (r *cornerRegistry) key(c [3]int) int {
	return c[2]*r.sliceStride + c[1]*r.rowStride + c[0]
}

// claim returns the vertex id of corner c, assigning the next id on first use.
func (r *cornerRegistry) claim(c [3]int) int32 {
	s := &r.slots[r.key(c)]
	if !s.assigned {
		s.id = r.count
		s.assigned = true
		r.count++
	}
	return s.id
}

// lookup returns the vertex id of corner c if it was claimed.
func (r *cornerRegistry) lookup(c [3]int) (int32, bool) {
	s := r.slots[r.key(c)]
	return s.id, s.assigned
}

// Len returns the number of claimed corners.
func (r *cornerRegistry) Len() int { return int(r.count) }
