// Package model defines the case record and snapshot types.
package model

import (
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// Record is a single user-authored case.
type Record struct {
	ID        ulid.ULID `json:"id"`
	Title     string    `json:"title"`
	Timestamp time.Time `json:"timestamp"`
	Resolved  bool      `json:"resolved"`
	Suspect   string    `json:"suspect,omitempty"`
}

// NewRecord returns an untitled, unresolved record stamped with now and a
// freshly minted id.
func NewRecord(now time.Time) Record {
	return Record{
		ID:        ulid.Make(),
		Timestamp: now,
	}
}

// SameIdentity reports whether r and o refer to the same case.
func (r Record) SameIdentity(o Record) bool {
	return r.ID == o.ID
}

// SameContent reports whether every field of r and o matches.
func (r Record) SameContent(o Record) bool {
	return r.ID == o.ID &&
		r.Title == o.Title &&
		r.Timestamp.Equal(o.Timestamp) &&
		r.Resolved == o.Resolved &&
		r.Suspect == o.Suspect
}

// HasSuspect reports whether a suspect name is set.
func (r Record) HasSuspect() bool {
	return strings.TrimSpace(r.Suspect) != ""
}

// Untitled reports whether the title is blank. Untitled records are discarded
// when their editing session ends.
func (r Record) Untitled() bool {
	return strings.TrimSpace(r.Title) == ""
}

// ParseID parses the canonical string form of a record id.
func ParseID(s string) (ulid.ULID, error) {
	return ulid.ParseStrict(strings.TrimSpace(s))
}
