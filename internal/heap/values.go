package heap

import "unsafe"

// The concrete payload layout of scalar and composite values beyond their
// shape category is explicitly out of scope for the heap core (spec.md §1
// lists "the concrete value-type payloads beyond shape categories" among
// the external collaborators). The constructors below exist so the core is
// exercisable end to end by tests and by cmd/heap-console; they hold no
// special status and a real evaluator would supply its own.

const int64Size = unsafe.Sizeof(int64(0))

// NewInt allocates an INT value holding v.
func (h *Heap) NewInt(v int64) Handle {
	ref := h.MakeRef(Int, headerSize+int64Size)
	if ref == NullRef {
		return NullRef
	}

	h.SetInt(ref, v)

	return ref
}

// SetInt overwrites an INT value's payload.
func (h *Heap) SetInt(ref Handle, v int64) {
	hdr := h.Deref(ref)
	*(*int64)(payloadAt(unsafe.Pointer(hdr))) = v
}

// Int reads an INT value's payload.
func (h *Heap) Int(ref Handle) int64 {
	hdr := h.Deref(ref)

	return *(*int64)(payloadAt(unsafe.Pointer(hdr)))
}

// NewString allocates a STRING value holding a copy of s. The payload is
// the byte length as an int64 followed by the bytes, so String can recover
// the exact length despite the 8-byte size rounding.
func (h *Heap) NewString(s string) Handle {
	ref := h.MakeRef(String, headerSize+int64Size+uintptr(len(s)))
	if ref == NullRef {
		return NullRef
	}

	hdr := h.Deref(ref)
	p := payloadAt(unsafe.Pointer(hdr))
	*(*int64)(p) = int64(len(s))
	copy(unsafe.Slice((*byte)(unsafe.Add(p, int64Size)), len(s)), s)

	return ref
}

// String reads a STRING value's payload.
func (h *Heap) String(ref Handle) string {
	hdr := h.Deref(ref)
	p := payloadAt(unsafe.Pointer(hdr))
	n := int(*(*int64)(p))

	return string(unsafe.Slice((*byte)(unsafe.Add(p, int64Size)), n))
}

// NewRefArray allocates a REF_ARRAY with capacity handle-sized slots, all
// initialized to NullRef.
func (h *Heap) NewRefArray(capacity int) Handle {
	ref := h.MakeRef(RefArray, headerSize+uintptr(capacity)*handleSize)
	if ref == NullRef {
		return NullRef
	}

	hdr := h.Deref(ref)
	for i := range handleSliceAt(unsafe.Pointer(hdr), capacity) {
		h.RefArraySet(ref, i, NullRef)
	}

	return ref
}

// RefArrayCapacity returns the number of handle slots in a REF_ARRAY.
func (h *Heap) RefArrayCapacity(ref Handle) int {
	return refArrayCapacity(h.Deref(ref))
}

// RefArrayGet reads slot i of a REF_ARRAY.
func (h *Heap) RefArrayGet(ref Handle, i int) Handle {
	hdr := h.Deref(ref)
	slots := handleSliceAt(unsafe.Pointer(hdr), refArrayCapacity(hdr))

	return slots[i]
}

// RefArraySet overwrites slot i of a REF_ARRAY. The caller is responsible
// for incref/decref bookkeeping of whatever handle was there before and
// whatever handle replaces it; RefArraySet itself only writes the slot.
func (h *Heap) RefArraySet(ref Handle, i int, child Handle) {
	hdr := h.Deref(ref)
	slots := handleSliceAt(unsafe.Pointer(hdr), refArrayCapacity(hdr))
	slots[i] = child
}

// NewList allocates a LIST backed by a fresh REF_ARRAY holding elems. Each
// element's reference count is incremented once for the new backing link.
func (h *Heap) NewList(elems []Handle) Handle {
	backing := h.NewRefArray(len(elems))
	if backing == NullRef {
		return NullRef
	}

	for i, e := range elems {
		h.RefArraySet(backing, i, e)
		h.IncRef(e)
	}

	list := h.MakeRef(List, headerSize+handleSize)
	if list == NullRef {
		h.DecRef(backing)
		return NullRef
	}

	hdr := h.Deref(list)
	handleSliceAt(unsafe.Pointer(hdr), 1)[0] = backing

	return list
}

// ListBacking returns a LIST's backing REF_ARRAY handle.
func (h *Heap) ListBacking(ref Handle) Handle {
	hdr := h.Deref(ref)

	return handleSliceAt(unsafe.Pointer(hdr), 1)[0]
}

// ListLen returns the number of elements in a LIST.
func (h *Heap) ListLen(ref Handle) int {
	return h.RefArrayCapacity(h.ListBacking(ref))
}

// ListGet returns element i of a LIST.
func (h *Heap) ListGet(ref Handle, i int) Handle {
	return h.RefArrayGet(h.ListBacking(ref), i)
}

// NewDict allocates a DICT backed by two fresh REF_ARRAYs of equal
// capacity: keys and values. Each key and value's reference count is
// incremented once for the new backing link.
func (h *Heap) NewDict(keys, values []Handle) Handle {
	if len(keys) != len(values) {
		panic("heap: NewDict keys/values length mismatch")
	}

	keyArray := h.NewRefArray(len(keys))
	if keyArray == NullRef {
		return NullRef
	}

	valArray := h.NewRefArray(len(values))
	if valArray == NullRef {
		h.DecRef(keyArray)
		return NullRef
	}

	for i := range keys {
		h.RefArraySet(keyArray, i, keys[i])
		h.IncRef(keys[i])
		h.RefArraySet(valArray, i, values[i])
		h.IncRef(values[i])
	}

	dict := h.MakeRef(Dict, headerSize+2*handleSize)
	if dict == NullRef {
		h.DecRef(keyArray)
		h.DecRef(valArray)

		return NullRef
	}

	hdr := h.Deref(dict)
	slots := handleSliceAt(unsafe.Pointer(hdr), 2)
	slots[0] = keyArray
	slots[1] = valArray

	return dict
}

// DictKeys returns a DICT's backing keys REF_ARRAY handle.
func (h *Heap) DictKeys(ref Handle) Handle {
	hdr := h.Deref(ref)

	return handleSliceAt(unsafe.Pointer(hdr), 2)[0]
}

// DictValues returns a DICT's backing values REF_ARRAY handle.
func (h *Heap) DictValues(ref Handle) Handle {
	hdr := h.Deref(ref)

	return handleSliceAt(unsafe.Pointer(hdr), 2)[1]
}
