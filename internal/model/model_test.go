package model

import (
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReport(t *testing.T) {
	ts := time.Date(2023, time.May, 1, 14, 30, 0, 0, time.UTC)

	tests := []struct {
		name string
		rec  Record
		want string
	}{
		{
			name: "unsolved no suspect",
			rec:  Record{Title: "Stolen stapler", Timestamp: ts},
			want: "Stolen stapler! The case was discovered on Monday, 01 May 2023 at 14:30. " +
				"The case is not solved, and there is no suspect.",
		},
		{
			name: "solved with suspect",
			rec:  Record{Title: "Missing mug", Timestamp: ts, Resolved: true, Suspect: "Dana"},
			want: "Missing mug! The case was discovered on Monday, 01 May 2023 at 14:30. " +
				"The case is solved, and the suspect is Dana.",
		},
		{
			name: "blank suspect counts as none",
			rec:  Record{Title: "Spilled coffee", Timestamp: ts, Suspect: "   "},
			want: "Spilled coffee! The case was discovered on Monday, 01 May 2023 at 14:30. " +
				"The case is not solved, and there is no suspect.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.rec.Report())
		})
	}
}

func TestRecord_Untitled(t *testing.T) {
	assert.True(t, Record{}.Untitled())
	assert.True(t, Record{Title: " \t\n"}.Untitled())
	assert.False(t, Record{Title: "x"}.Untitled())
	assert.False(t, Record{Title: " "}.Reportable())
}

func TestRecord_SameContent(t *testing.T) {
	ts := time.Date(2023, time.May, 1, 14, 30, 0, 0, time.UTC)
	a := Record{ID: ulid.Make(), Title: "a", Timestamp: ts}

	b := a
	b.Timestamp = ts.In(time.FixedZone("X", 3600))
	assert.True(t, a.SameContent(b), "same instant in another zone")

	b.Suspect = "Lee"
	assert.False(t, a.SameContent(b))
	assert.True(t, a.SameIdentity(b))

	c := a
	c.ID = ulid.Make()
	assert.False(t, a.SameIdentity(c))
}

func TestNewRecord(t *testing.T) {
	now := time.Now()
	r := NewRecord(now)

	assert.NotEqual(t, ulid.ULID{}, r.ID)
	assert.True(t, r.Timestamp.Equal(now))
	assert.True(t, r.Untitled())
	assert.False(t, r.Resolved)
	assert.NotEqual(t, r.ID, NewRecord(now).ID)
}

func TestParseID(t *testing.T) {
	id := ulid.Make()

	got, err := ParseID("  " + id.String() + "\n")
	require.NoError(t, err)
	assert.Equal(t, id, got)

	_, err = ParseID("not-an-id")
	assert.Error(t, err)
}

func TestSnapshot(t *testing.T) {
	a := Record{ID: ulid.Make(), Title: "a"}
	b := Record{ID: ulid.Make(), Title: "b"}
	c := Record{ID: ulid.Make(), Title: "c"}
	s := Snapshot{a, b, c}

	assert.Equal(t, []ulid.ULID{a.ID, b.ID, c.ID}, s.IDs())
	assert.Equal(t, 1, s.Index(b.ID))
	assert.Equal(t, -1, s.Index(ulid.Make()))
	assert.True(t, s.Contains(c.ID))
	assert.Equal(t, map[ulid.ULID]int{a.ID: 0, b.ID: 1, c.ID: 2}, s.IndexSet())

	assert.Equal(t, Snapshot{c, b, a}, s.Presentation())
	assert.Equal(t, Snapshot{a, b, c}, s, "presentation leaves the snapshot alone")

	cl := s.Clone()
	cl[0].Title = "changed"
	assert.Equal(t, "a", s[0].Title)
	assert.Nil(t, Snapshot(nil).Clone())
	assert.Empty(t, Snapshot(nil).Presentation())
}
