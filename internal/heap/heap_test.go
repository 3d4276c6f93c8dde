package heap

import (
	"testing"

	"github.com/blobodin/heapcore/internal/pool"
)

// fakeRoots is a minimal RootSet for tests that don't need internal/roots.
type fakeRoots struct {
	names []string
	refs  []Handle
}

func (r *fakeRoots) set(name string, h Handle) {
	for i, n := range r.names {
		if n == name {
			r.refs[i] = h
			return
		}
	}

	r.names = append(r.names, name)
	r.refs = append(r.refs, h)
}

func (r *fakeRoots) clear() {
	r.names = nil
	r.refs = nil
}

func (r *fakeRoots) ForEachGlobal(visit func(name string, h Handle)) {
	for i, n := range r.names {
		visit(n, r.refs[i])
	}
}

func newTestHeap(t *testing.T, poolSize int) (*Heap, *fakeRoots) {
	t.Helper()

	roots := &fakeRoots{}
	region := make([]byte, poolSize)
	h := New(region, pool.New(), roots)

	return h, roots
}

// Scenario 1: allocate, read, free.
func TestAllocateReadFree(t *testing.T) {
	h, _ := newTestHeap(t, 4096)

	ref := h.NewInt(42)
	if ref == NullRef {
		t.Fatal("NewInt returned NullRef")
	}

	if got := h.Int(ref); got != 42 {
		t.Fatalf("Int(ref) = %d, want 42", got)
	}

	if h.Deref(ref).Type != Int {
		t.Fatalf("Deref(ref).Type = %v, want Int", h.Deref(ref).Type)
	}

	h.DecRef(ref)

	if got := h.RefsUsed(); got != 0 {
		t.Fatalf("RefsUsed() = %d, want 0 after dropping the only handle", got)
	}

	if got := h.MemUsed(); got != 0 {
		t.Fatalf("MemUsed() = %d, want 0 after dropping the only handle", got)
	}
}

// Scenario 2: acyclic list of 3 ints.
func TestAcyclicListDecrefReclaimsEverything(t *testing.T) {
	h, _ := newTestHeap(t, 4096)

	var elems []Handle
	for i := int64(0); i < 3; i++ {
		elems = append(elems, h.NewInt(i))
	}

	list := h.NewList(elems)
	if list == NullRef {
		t.Fatal("NewList returned NullRef")
	}

	// NewList incref'd each int for the backing link; drop the caller's
	// original handle to each int so the list is the only remaining owner.
	for _, e := range elems {
		h.DecRef(e)
	}

	if got := h.RefsUsed(); got != 5 {
		t.Fatalf("RefsUsed() = %d, want 5 (list + array + 3 ints)", got)
	}

	h.DecRef(list)

	if got := h.RefsUsed(); got != 0 {
		t.Fatalf("RefsUsed() = %d, want 0 after dropping the list", got)
	}

	if got := h.MemUsed(); got != 0 {
		t.Fatalf("MemUsed() = %d, want 0 after dropping the list", got)
	}
}

// Scenario 3: cycle without a root is trapped by refcounting, then
// reclaimed by collection.
func TestCycleWithoutRootNeedsCollection(t *testing.T) {
	h, roots := newTestHeap(t, 4096)

	a := h.NewRefArray(1)
	b := h.NewRefArray(1)

	h.RefArraySet(a, 0, b)
	h.IncRef(b)
	h.RefArraySet(b, 0, a)
	h.IncRef(a)

	// Drop the caller's original handles to a and b; the cross-edges keep
	// both alive at ref_count == 1.
	h.DecRef(a)
	h.DecRef(b)

	if got := h.RefsUsed(); got != 2 {
		t.Fatalf("RefsUsed() = %d, want 2 (cycle trapped by refcount)", got)
	}

	roots.clear()
	h.CollectGarbage()

	if got := h.RefsUsed(); got != 0 {
		t.Fatalf("RefsUsed() = %d, want 0 after collecting an unrooted cycle", got)
	}

	if got := h.MemUsed(); got != 0 {
		t.Fatalf("MemUsed() = %d, want 0 after collecting an unrooted cycle", got)
	}
}

// Scenario 4: cycle with one root survives collection with re-derived
// reference counts. With both cross-edges in place (a[0]=b, b[0]=a) and
// only a rooted, evacuation visits a twice (once as a root, once via
// b[0]) and b once (via a[0]): a.RefCount ends at 2, b.RefCount at 1.
func TestCycleWithRootSurvivesCollection(t *testing.T) {
	h, roots := newTestHeap(t, 4096)

	a := h.NewRefArray(1)
	b := h.NewRefArray(1)

	h.RefArraySet(a, 0, b)
	h.IncRef(b)
	h.RefArraySet(b, 0, a)
	h.IncRef(a)

	roots.set("a", a)
	h.DecRef(b) // drop the caller's original handle to b only

	h.CollectGarbage()

	if got := h.RefsUsed(); got != 2 {
		t.Fatalf("RefsUsed() = %d, want 2 (a and b both survive)", got)
	}

	if got := h.Deref(a).RefCount; got != 2 {
		t.Fatalf("a.RefCount = %d, want 2 (root edge plus b[0])", got)
	}

	newB := h.RefArrayGet(a, 0)

	if got := h.Deref(newB).RefCount; got != 1 {
		t.Fatalf("b.RefCount = %d, want 1 (single edge from a[0])", got)
	}

	newA := h.RefArrayGet(newB, 0)
	if newA != a {
		t.Fatal("b[0] should still reference a's handle after collection")
	}
}

// Scenario 5: DAG where root points to X and Y, and Y also points to X.
func TestEvacuationOrderIndependenceOnSharedDAG(t *testing.T) {
	h, roots := newTestHeap(t, 4096)

	x := h.NewInt(1)
	y := h.NewRefArray(1)
	h.RefArraySet(y, 0, x)
	h.IncRef(x)

	r := h.NewRefArray(2)
	h.RefArraySet(r, 0, x)
	h.IncRef(x)
	h.RefArraySet(r, 1, y)
	h.IncRef(y)

	// Drop the caller's original handles now owned by r's slots (and the
	// one inside y).
	h.DecRef(x)
	h.DecRef(y)

	roots.set("r", r)

	h.CollectGarbage()

	newX := h.RefArrayGet(r, 0)
	newY := h.RefArrayGet(r, 1)

	if got := h.Deref(newX).RefCount; got != 2 {
		t.Fatalf("X.RefCount = %d, want 2 (from r and from y)", got)
	}

	if got := h.Deref(newY).RefCount; got != 1 {
		t.Fatalf("Y.RefCount = %d, want 1 (from r only)", got)
	}

	if got := h.Deref(r).RefCount; got != 1 {
		t.Fatalf("R.RefCount = %d, want 1 (root edge only)", got)
	}
}

// Scenario 6: handle reuse picks the lowest empty slot.
func TestHandleReuse(t *testing.T) {
	h, _ := newTestHeap(t, 4096)

	h1 := h.NewInt(1)
	h.DecRef(h1)

	h2 := h.NewInt(2)
	if h2 != h1 {
		t.Fatalf("h2 = %d, want %d (lowest empty slot reused)", h2, h1)
	}
}

// P4: refs_used tracks non-empty table entries at all times.
func TestRefsUsedTracksLiveEntries(t *testing.T) {
	h, _ := newTestHeap(t, 4096)

	if got := h.RefsUsed(); got != 0 {
		t.Fatalf("RefsUsed() = %d, want 0 on an empty heap", got)
	}

	a := h.NewInt(1)
	b := h.NewInt(2)

	if got := h.RefsUsed(); got != 2 {
		t.Fatalf("RefsUsed() = %d, want 2", got)
	}

	h.DecRef(a)

	if got := h.RefsUsed(); got != 1 {
		t.Fatalf("RefsUsed() = %d, want 1 after dropping one handle", got)
	}

	h.DecRef(b)

	if got := h.RefsUsed(); got != 0 {
		t.Fatalf("RefsUsed() = %d, want 0 after dropping both handles", got)
	}
}

// Round-trip: deref(get_ref(deref(h))) == deref(h).
func TestGetRefRoundTrip(t *testing.T) {
	h, _ := newTestHeap(t, 4096)

	ref := h.NewInt(7)
	hdr := h.Deref(ref)

	back := h.GetRef(hdr)
	if back != ref {
		t.Fatalf("GetRef(Deref(ref)) = %d, want %d", back, ref)
	}

	if h.Deref(back) != hdr {
		t.Fatal("Deref(GetRef(Deref(ref))) != Deref(ref)")
	}
}

// Incref/decref tolerate sentinels silently.
func TestSentinelsAreNoOps(t *testing.T) {
	h, _ := newTestHeap(t, 4096)

	h.IncRef(NullRef)
	h.IncRef(TombstoneRef)
	h.DecRef(NullRef)
	h.DecRef(TombstoneRef)

	if got := h.RefsUsed(); got != 0 {
		t.Fatalf("RefsUsed() = %d, want 0; sentinel ops must not touch the table", got)
	}
}

func TestDerefOutOfRangeHandlePanics(t *testing.T) {
	h, _ := newTestHeap(t, 4096)

	defer func() {
		if recover() == nil {
			t.Fatal("Deref on an out-of-range handle should panic")
		}
	}()

	h.Deref(Handle(0))
}

func TestMakeRefReturnsNullRefOnExhaustion(t *testing.T) {
	h, _ := newTestHeap(t, 64) // 32-byte half-spaces, one 24-byte INT fits

	var last Handle

	for i := 0; i < 100; i++ {
		ref := h.NewInt(int64(i))
		if ref == NullRef {
			return
		}

		last = ref
	}

	t.Fatalf("expected allocator exhaustion within 100 allocations on a tiny pool, last ref %d", last)
}

func TestDictKeysAndValues(t *testing.T) {
	h, _ := newTestHeap(t, 4096)

	k1, k2 := h.NewString("a"), h.NewString("b")
	v1, v2 := h.NewInt(1), h.NewInt(2)

	dict := h.NewDict([]Handle{k1, k2}, []Handle{v1, v2})
	h.DecRef(k1)
	h.DecRef(k2)
	h.DecRef(v1)
	h.DecRef(v2)

	keys := h.DictKeys(dict)
	values := h.DictValues(dict)

	if h.String(h.RefArrayGet(keys, 0)) != "a" {
		t.Fatal("DictKeys slot 0 did not round-trip")
	}

	if h.Int(h.RefArrayGet(values, 1)) != 2 {
		t.Fatal("DictValues slot 1 did not round-trip")
	}

	h.DecRef(dict)

	if got := h.RefsUsed(); got != 0 {
		t.Fatalf("RefsUsed() = %d, want 0 after dropping the dict", got)
	}
}
