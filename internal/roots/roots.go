// Package roots provides a concrete root-set implementation standing in
// for "the evaluator's global environment" — spec.md's foreach_global,
// which this module treats as an external collaborator it only consumes.
// This module has no parser or evaluator of its own, so Table is what its
// tests and cmd/heap-console use to seed and mutate the handles
// collect_garbage scavenges from.
package roots

import (
	"sort"
	"sync"

	"github.com/blobodin/heapcore/internal/heap"
)

// Table is a name-keyed set of root handles.
type Table struct {
	mu      sync.RWMutex
	globals map[string]heap.Handle
}

// New returns an empty root table.
func New() *Table {
	return &Table{globals: make(map[string]heap.Handle)}
}

// Set binds name to h, replacing any previous binding. Callers are
// responsible for incref/decref bookkeeping of whatever handle name was
// previously bound to and of h itself; Set only records the binding.
func (t *Table) Set(name string, h heap.Handle) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.globals[name] = h
}

// Get returns the handle bound to name, or NullRef if unbound.
func (t *Table) Get(name string) heap.Handle {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if h, ok := t.globals[name]; ok {
		return h
	}

	return heap.NullRef
}

// Delete unbinds name.
func (t *Table) Delete(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.globals, name)
}

// Len returns the number of bound names.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return len(t.globals)
}

// ForEachGlobal invokes visit for every bound root handle, in a
// deterministic (sorted-by-name) order so collection results don't depend
// on Go's randomized map iteration. The collector's correctness never
// depends on this order (spec.md's evacuation-order-independence property),
// but deterministic tests do.
func (t *Table) ForEachGlobal(visit func(name string, h heap.Handle)) {
	t.mu.RLock()
	names := make([]string, 0, len(t.globals))

	for name := range t.globals {
		names = append(names, name)
	}

	sort.Strings(names)

	snapshot := make([]heap.Handle, len(names))
	for i, name := range names {
		snapshot[i] = t.globals[name]
	}
	t.mu.RUnlock()

	for i, name := range names {
		visit(name, snapshot[i])
	}
}
