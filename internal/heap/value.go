// Package heap implements the managed heap core: a reference table that
// hands out stable integer handles to values bump-allocated in a pool-backed
// half-space, reference counting over composite value shapes, and a
// stop-and-copy collector that reclaims both acyclic and cyclic garbage.
//
// The package never allocates raw memory itself — it consumes an Allocator
// (the bump-allocator-over-a-half-space contract) and a RootSet (the
// evaluator's global environment) and is agnostic to both concrete
// implementations. See internal/pool and internal/roots for the ones this
// module ships with.
package heap

import "unsafe"

// Handle is a stable integer index into the reference table (spec's
// reference_t). Handle identity survives collection; only the underlying
// pointer moves.
type Handle int64

const (
	// NullRef is the sentinel for "no handle". It is never dereferenced.
	NullRef Handle = -1
	// TombstoneRef marks a logically-deleted dictionary slot. Traversal and
	// reference counting skip it silently; this core never produces one.
	TombstoneRef Handle = -2
)

// Type tags the shape category of a value. Scalar types beyond the ones
// listed are legal and carried transparently (their payload is opaque to
// the heap core), but only the composite shapes below are ever traversed.
type Type uint32

const (
	// Free marks a header as not holding a live value. It is deliberately
	// the zero value: freshly bump-allocated bytes from a zeroed region
	// already read as Free without the allocator knowing anything about
	// value headers.
	Free Type = iota
	Int
	String
	List
	Dict
	RefArray
)

func (t Type) String() string {
	switch t {
	case Free:
		return "free"
	case Int:
		return "int"
	case String:
		return "string"
	case List:
		return "list"
	case Dict:
		return "dict"
	case RefArray:
		return "ref_array"
	default:
		return "scalar"
	}
}

// alignment all values are aligned to, per spec.md's ALIGNMENT.
const alignment = uintptr(8)

// debugFillByte is written across a freshly allocated payload so that
// reading an uninitialized field is obvious under a debugger.
const debugFillByte = 0xCC

// handleSize is the in-pool size of a single child handle slot.
const handleSize = unsafe.Sizeof(Handle(0))

// Header is the fixed prefix of every value in the pool. Its size is kept a
// multiple of the alignment so the payload that follows starts aligned too.
type Header struct {
	Type      Type
	ValueSize uint32 // total bytes: header + payload
	RefCount  uint32
	_         uint32 // padding, keeps unsafe.Sizeof(Header{}) a multiple of 8
}

var headerSize = unsafe.Sizeof(Header{})

func alignUp(size uintptr) uintptr {
	return (size + alignment - 1) &^ (alignment - 1)
}

func headerAt(ptr unsafe.Pointer) *Header {
	return (*Header)(ptr)
}

func payloadAt(ptr unsafe.Pointer) unsafe.Pointer {
	return unsafe.Add(ptr, headerSize)
}

// handleSliceAt views count consecutive Handle slots starting at the
// payload of the value at ptr.
func handleSliceAt(ptr unsafe.Pointer, count int) []Handle {
	if count == 0 {
		return nil
	}

	return unsafe.Slice((*Handle)(payloadAt(ptr)), count)
}
