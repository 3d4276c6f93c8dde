package heap

import (
	"fmt"
	"unsafe"
)

// CollectGarbage runs one stop-and-copy pass: flip the pool onto the
// currently inactive half-space, evacuate everything reachable from the
// root set into it (re-deriving reference counts as it goes), sweep the
// table of anything left pointing at the old half-space, and commit the
// flip. This is the only operation that reclaims cyclic garbage; it is
// synchronous and non-preemptive, per spec.md §5.
func (h *Heap) CollectGarbage() {
	before := h.alloc.Used()

	if h.interactive {
		fmt.Fprintln(h.diag, "Collecting garbage.")
	}

	// Phase 1: flip. The old active half-space is the scavenge source; the
	// new one is where everything reachable gets copied.
	newRegion := h.regionB
	if !h.activeIsA {
		newRegion = h.regionA
	}

	// Zero it so bump allocation finds Free headers, not leftovers from the
	// last time this half was active.
	clear(newRegion)
	h.alloc.Reset(newRegion)

	// Phase 2: evacuate from roots.
	h.roots.ForEachGlobal(func(_ string, ref Handle) {
		h.move(ref)
	})

	// Phase 3: sweep. Anything whose pointer still lies outside the new
	// half-space was unreachable from the root set — including cyclic
	// garbage reference counting alone could never free — so its slot is
	// dropped. Its storage sits in the abandoned old half-space and will be
	// overwritten the next time that half is flipped into active use.
	for i := range h.table {
		ptr := h.table[i].ptr
		if ptr == nil {
			continue
		}

		if !h.alloc.Contains(ptr) {
			h.table[i].ptr = nil
			h.numRefs--
		}
	}

	// Phase 4: commit.
	h.activeIsA = !h.activeIsA

	if h.interactive {
		fmt.Fprintf(h.diag, "Reclaimed %d bytes of garbage.\n", before-h.alloc.Used())
	}
}

// move evacuates the value ref points at, if it hasn't been already. The
// reference table itself is the forwarding map: no forwarding pointer is
// written into the source value. "Already evacuated?" is exactly "does the
// table entry for this handle already point into the new active
// half-space?" (tested via Contains, which after Phase 1's flip answers
// against the new half only).
func (h *Heap) move(ref Handle) {
	if ref == NullRef || ref == TombstoneRef {
		return
	}

	oldPtr := h.table[ref].ptr
	if oldPtr == nil {
		return
	}

	if h.alloc.Contains(oldPtr) {
		// Already evacuated by an earlier visit: one more incoming edge.
		headerAt(oldPtr).RefCount++

		return
	}

	oldHdr := headerAt(oldPtr)
	size := uintptr(oldHdr.ValueSize)

	newPtr := h.alloc.Alloc(size)
	if newPtr == nil {
		panic(fmt.Sprintf("heap: collector could not evacuate %d bytes into the new half-space", size))
	}

	copy(unsafe.Slice((*byte)(newPtr), size), unsafe.Slice((*byte)(oldPtr), size))

	newHdr := headerAt(newPtr)
	newHdr.RefCount = 1

	h.table[ref].ptr = newPtr

	visitChildren(newPtr, h.move)
}
