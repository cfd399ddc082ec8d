// Package selection tracks which records are selected for a batch action.
package selection

import (
	"github.com/oklog/ulid/v2"

	"github.com/rcliao/casefile/internal/model"
)

// Engine holds a set of selected ids bound to the last reconciled snapshot.
// The set is always a subset of that snapshot's ids.
//
// An Engine is not safe for concurrent use.
type Engine struct {
	snapshot  model.Snapshot
	present   map[ulid.ULID]struct{}
	selected  map[ulid.ULID]struct{}
	observers []func(n int)
}

// New returns an engine bound to an empty snapshot.
func New() *Engine {
	return &Engine{
		present:  map[ulid.ULID]struct{}{},
		selected: map[ulid.ULID]struct{}{},
	}
}

// Observe registers fn to be called with the new set size after every change
// to the selection.
func (e *Engine) Observe(fn func(n int)) {
	e.observers = append(e.observers, fn)
}

// Toggle flips membership of id and reports whether it is now selected. Ids
// not in the last reconciled snapshot are ignored.
func (e *Engine) Toggle(id ulid.ULID) bool {
	if _, ok := e.present[id]; !ok {
		return false
	}
	_, was := e.selected[id]
	if was {
		delete(e.selected, id)
	} else {
		e.selected[id] = struct{}{}
	}
	e.notify()
	return !was
}

// Clear empties the selection.
func (e *Engine) Clear() {
	if len(e.selected) == 0 {
		return
	}
	e.selected = map[ulid.ULID]struct{}{}
	e.notify()
}

// Reconcile binds the engine to snap and drops selected ids that are no longer
// present. The dropped ids are returned in the order of the previous snapshot.
func (e *Engine) Reconcile(snap model.Snapshot) []ulid.ULID {
	present := make(map[ulid.ULID]struct{}, len(snap))
	for _, r := range snap {
		present[r.ID] = struct{}{}
	}

	var dropped []ulid.ULID
	for _, r := range e.snapshot {
		if _, sel := e.selected[r.ID]; !sel {
			continue
		}
		if _, ok := present[r.ID]; !ok {
			dropped = append(dropped, r.ID)
			delete(e.selected, r.ID)
		}
	}

	e.snapshot = snap
	e.present = present
	if len(dropped) > 0 {
		e.notify()
	}
	return dropped
}

// SelectedRecords projects the selection onto snap, in snap's order. Ids
// missing from snap are left out.
func (e *Engine) SelectedRecords(snap model.Snapshot) []model.Record {
	out := make([]model.Record, 0, len(e.selected))
	for _, r := range snap {
		if _, ok := e.selected[r.ID]; ok {
			out = append(out, r)
		}
	}
	return out
}

// IDs returns the selected ids in the order of the last reconciled snapshot.
func (e *Engine) IDs() []ulid.ULID {
	out := make([]ulid.ULID, 0, len(e.selected))
	for _, r := range e.snapshot {
		if _, ok := e.selected[r.ID]; ok {
			out = append(out, r.ID)
		}
	}
	return out
}

func (e *Engine) Len() int {
	return len(e.selected)
}

func (e *Engine) Contains(id ulid.ULID) bool {
	_, ok := e.selected[id]
	return ok
}

// Snapshot returns the last reconciled snapshot.
func (e *Engine) Snapshot() model.Snapshot {
	return e.snapshot
}

func (e *Engine) notify() {
	n := len(e.selected)
	for _, fn := range e.observers {
		fn(n)
	}
}
