package heap

import (
	"fmt"
	"io"
	"os"
	"unsafe"

	"github.com/blobodin/heapcore/internal/heaperrors"
)

// Allocator is the contract the heap core requires of the external bump
// allocator (spec.md's mm_init/mm_malloc/mm_free/mem_used/is_pool_address).
// internal/pool.Pool implements it; tests may supply a fake.
type Allocator interface {
	Alloc(size uintptr) unsafe.Pointer
	Free(ptr unsafe.Pointer)
	Used() uintptr
	Contains(ptr unsafe.Pointer) bool
	Reset(region []byte)
}

// RootSet is the contract the heap core requires of the evaluator's root
// enumerator (spec.md's foreach_global). internal/roots.Table implements it.
type RootSet interface {
	ForEachGlobal(visit func(name string, h Handle))
}

// InitialRefTableSize is the reference table's capacity on first growth
// (spec.md's INITIAL_SIZE), used when no Option overrides it.
const InitialRefTableSize = 64

// refEntry is one slot of the reference table. A nil ptr marks an empty,
// reusable slot.
type refEntry struct {
	ptr unsafe.Pointer
}

// Heap is the managed heap core: reference table, handle API, and
// stop-and-copy collector over a pool-backed pair of half-spaces.
type Heap struct {
	alloc Allocator
	roots RootSet

	regionA, regionB []byte
	activeIsA        bool

	table    []refEntry
	numRefs  int
	initial  int
	growStep int

	interactive bool
	diag        io.Writer
}

// Option configures a Heap constructed by New.
type Option func(*Heap)

// WithInitialRefTableSize overrides InitialRefTableSize.
func WithInitialRefTableSize(n int) Option {
	return func(h *Heap) { h.initial = n }
}

// WithInteractive enables the pre/post collection diagnostics spec.md §6
// describes, written to diag (defaults to os.Stderr if diag is nil).
func WithInteractive(diag io.Writer) Option {
	return func(h *Heap) {
		h.interactive = true
		if diag != nil {
			h.diag = diag
		}
	}
}

// New splits memoryPool into two equal half-spaces (each rounded down to a
// multiple of the pool's alignment) and initializes the active half via
// alloc. This is spec.md's init_refs(memory_size, memory_pool).
func New(memoryPool []byte, alloc Allocator, roots RootSet, opts ...Option) *Heap {
	half := (len(memoryPool) / 2 / int(alignment)) * int(alignment)

	h := &Heap{
		alloc:     alloc,
		roots:     roots,
		regionA:   memoryPool[:half:half],
		regionB:   memoryPool[half : 2*half : 2*half],
		activeIsA: true,
		initial:   InitialRefTableSize,
		diag:      os.Stderr,
	}

	for _, opt := range opts {
		opt(h)
	}

	h.alloc.Reset(h.regionA)

	return h
}

// Close tears the heap down: release of the pool region is left to the Go
// garbage collector (there is no manual free in this runtime), but the
// reference table and region slices are dropped so nothing in this Heap
// keeps them reachable after Close returns. This is spec.md's close_refs.
func (h *Heap) Close() {
	h.table = nil
	h.numRefs = 0
	h.regionA = nil
	h.regionB = nil
	h.alloc.Reset(nil)
}

func (h *Heap) activeRegion() []byte {
	if h.activeIsA {
		return h.regionA
	}

	return h.regionB
}

// assignReference stores ptr in the first empty slot, growing the table
// geometrically if none is free. Growth failure is fatal: spec.md §7.2
// treats it as unrecoverable, since no further forward progress is possible
// without a fresh handle.
func (h *Heap) assignReference(ptr unsafe.Pointer) Handle {
	for i := range h.table {
		if h.table[i].ptr == nil {
			h.table[i].ptr = ptr
			h.numRefs++

			return Handle(i)
		}
	}

	if len(h.table) == cap(h.table) {
		newCap := h.initial
		if newCap == 0 {
			newCap = InitialRefTableSize
		}

		if len(h.table) > 0 {
			newCap = len(h.table) * 2
		}

		h.growTable(newCap)
	}

	h.table = append(h.table, refEntry{ptr: ptr})
	h.numRefs++

	return Handle(len(h.table) - 1)
}

// growTable reallocates the reference table at newCap. A failure here
// (make/copy panicking, e.g. on allocation failure for a pathologically
// large table) is unrecoverable per spec.md §7.2: there is no handle to
// return and no way to make forward progress, so it is reported through
// heaperrors.Fatal rather than propagated as a normal error.
func (h *Heap) growTable(newCap int) {
	defer func() {
		if r := recover(); r != nil {
			heaperrors.Fatal(heaperrors.New(heaperrors.CategoryRefTable, "GROW_FAILED",
				fmt.Sprintf("could not grow reference table to capacity %d: %v", newCap, r)))
		}
	}()

	grown := make([]refEntry, len(h.table), newCap)
	copy(grown, h.table)
	h.table = grown
}

// MakeRef allocates size bytes (including the header) from the active
// half-space and assigns them a handle. Returns NullRef on allocator
// exhaustion; the caller is expected to call CollectGarbage and retry.
func (h *Heap) MakeRef(typ Type, size uintptr) Handle {
	aligned := alignUp(size)

	ptr := h.alloc.Alloc(aligned)
	if ptr == nil {
		return NullRef
	}

	hdr := headerAt(ptr)
	if hdr.Type != Free {
		panic(fmt.Sprintf("heap: allocator returned non-free slot (type=%s)", hdr.Type))
	}

	hdr.Type = typ
	hdr.ValueSize = uint32(aligned)
	hdr.RefCount = 1

	payloadLen := aligned - headerSize
	if payloadLen > 0 {
		payload := unsafe.Slice((*byte)(payloadAt(ptr)), payloadLen)
		for i := range payload {
			payload[i] = debugFillByte
		}
	}

	return h.assignReference(ptr)
}

// Deref returns the current header pointer for a handle. The pointer is
// stable only until the next operation that may allocate or collect;
// callers that need cross-call stability must hold the handle, not this
// pointer.
func (h *Heap) Deref(ref Handle) *Header {
	if ref < 0 || int(ref) >= len(h.table) {
		panic(fmt.Sprintf("heap: handle %d out of range [0,%d)", ref, len(h.table)))
	}

	ptr := h.table[ref].ptr
	if ptr == nil || !h.alloc.Contains(ptr) {
		panic(fmt.Sprintf("heap: handle %d does not reference a live pool value", ref))
	}

	return headerAt(ptr)
}

// GetRef returns the handle that maps to the given header pointer. It is
// used only in paths that already hold a freshly dereferenced pointer and
// need its handle back; a pointer with no table entry is a programmer
// error and fatal, mirroring the C original's assertion.
func (h *Heap) GetRef(hdr *Header) Handle {
	target := unsafe.Pointer(hdr)

	for i := range h.table {
		if h.table[i].ptr == target {
			return Handle(i)
		}
	}

	heaperrors.Fatal(heaperrors.New(heaperrors.CategoryHandle, "NO_REFERENCE", "value has no reference"))

	return NullRef
}

// RefsUsed counts non-empty reference table entries.
func (h *Heap) RefsUsed() int {
	return h.numRefs
}

// MemUsed reports bytes currently in use in the active half-space.
func (h *Heap) MemUsed() uintptr {
	return h.alloc.Used()
}
