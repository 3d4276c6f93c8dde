package heap

// IncRef increments the target's reference count. Sentinel handles
// (NullRef, TombstoneRef) are no-ops, since they are legal stored values
// inside composite shapes and every caller is expected to pass them through
// uniformly rather than special-case them.
func (h *Heap) IncRef(ref Handle) {
	if ref == NullRef || ref == TombstoneRef {
		return
	}

	hdr := h.Deref(ref)
	hdr.RefCount++
}

// DecRef decrements the target's reference count. On reaching zero it
// recursively decrefs every child handle (via visitChildren) before
// returning the value's bytes to the allocator and emptying the table
// entry — children first, because visitChildren still needs to read the
// parent's fields at that point. Recursion depth is bounded by the deepest
// acyclic chain in the value graph; a pathologically deep chain could
// exhaust the call stack, which an explicit worklist would avoid without
// changing the observable contract.
func (h *Heap) DecRef(ref Handle) {
	if ref == NullRef || ref == TombstoneRef {
		return
	}

	hdr := h.Deref(ref)
	ptr := h.table[ref].ptr

	hdr.RefCount--
	if hdr.RefCount > 0 {
		return
	}

	visitChildren(ptr, h.DecRef)

	hdr.Type = Free
	h.alloc.Free(ptr)
	h.table[ref].ptr = nil
	h.numRefs--
}
