package heap

import "unsafe"

// visitChildren applies visit to every child handle of the value at ptr,
// per the shape table in spec.md §3. It is the single point of truth
// shared by decref and the copying collector: LIST carries one handle (its
// backing REF_ARRAY), DICT carries two (a REF_ARRAY of keys, one of
// values), REF_ARRAY carries capacity handles inline, and every other type
// has no children. visit is expected to tolerate NullRef and TombstoneRef;
// this function does not filter them out itself, matching spec.md's note
// that traversal "skips" sentinels only in the sense that both callers
// already do.
func visitChildren(ptr unsafe.Pointer, visit func(Handle)) {
	hdr := headerAt(ptr)

	switch hdr.Type {
	case List:
		for _, child := range handleSliceAt(ptr, 1) {
			visit(child)
		}
	case Dict:
		for _, child := range handleSliceAt(ptr, 2) {
			visit(child)
		}
	case RefArray:
		capacity := refArrayCapacity(hdr)
		for _, child := range handleSliceAt(ptr, capacity) {
			visit(child)
		}
	default:
		// Scalar types carry no child handles.
	}
}

// refArrayCapacity derives a REF_ARRAY's element count from its total
// value size: capacity is never stored separately, since value_size
// already pins it down exactly.
func refArrayCapacity(hdr *Header) int {
	return int((uintptr(hdr.ValueSize) - headerSize) / handleSize)
}
