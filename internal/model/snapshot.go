package model

import "github.com/oklog/ulid/v2"

// Snapshot is the full record list at one observation point, oldest first.
// A published snapshot is never modified; derive new ones instead.
type Snapshot []Record

// IDs returns the record ids in snapshot order.
func (s Snapshot) IDs() []ulid.ULID {
	ids := make([]ulid.ULID, len(s))
	for i, r := range s {
		ids[i] = r.ID
	}
	return ids
}

// Index returns the position of id, or -1.
func (s Snapshot) Index(id ulid.ULID) int {
	for i, r := range s {
		if r.ID == id {
			return i
		}
	}
	return -1
}

// Contains reports whether id is present.
func (s Snapshot) Contains(id ulid.ULID) bool {
	return s.Index(id) >= 0
}

// IndexSet returns id -> position for repeated lookups.
func (s Snapshot) IndexSet() map[ulid.ULID]int {
	m := make(map[ulid.ULID]int, len(s))
	for i, r := range s {
		m[r.ID] = i
	}
	return m
}

// Clone returns a copy that shares no backing array with s.
func (s Snapshot) Clone() Snapshot {
	if s == nil {
		return nil
	}
	out := make(Snapshot, len(s))
	copy(out, s)
	return out
}

// Presentation returns the list-facing order (newest first) as a new slice.
func (s Snapshot) Presentation() Snapshot {
	out := make(Snapshot, len(s))
	for i, r := range s {
		out[len(s)-1-i] = r
	}
	return out
}
