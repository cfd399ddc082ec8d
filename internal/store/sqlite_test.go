package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcliao/casefile/internal/model"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dir := t.TempDir()
	s, err := NewSQLiteStore(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func newRecord(title string) model.Record {
	r := model.NewRecord(time.Date(2023, 5, 1, 14, 30, 0, 0, time.Local))
	r.Title = title
	return r
}

func TestCreateAndGet(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	r := newRecord("Stolen bike")
	r.Suspect = "Ann"
	require.NoError(t, s.Create(ctx, r))

	got, err := s.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.True(t, got.SameContent(r), "got %+v, want %+v", got, r)
}

func TestCreateDuplicateID(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	r := newRecord("a")
	require.NoError(t, s.Create(ctx, r))
	assert.ErrorIs(t, s.Create(ctx, r), ErrAlreadyExists)
}

func TestDeletedIDIsNeverReused(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	r := newRecord("a")
	require.NoError(t, s.Create(ctx, r))
	require.NoError(t, s.Delete(ctx, r.ID))

	assert.ErrorIs(t, s.Create(ctx, r), ErrAlreadyExists)
}

func TestGetMissing(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Get(context.Background(), ulid.Make())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdate(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	r := newRecord("before")
	require.NoError(t, s.Create(ctx, r))

	r.Title = "after"
	r.Resolved = true
	r.Timestamp = r.Timestamp.Add(90 * time.Minute)
	require.NoError(t, s.Update(ctx, r))

	got, err := s.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, "after", got.Title)
	assert.True(t, got.Resolved)
	assert.True(t, got.Timestamp.Equal(r.Timestamp))
}

func TestUpdateMissing(t *testing.T) {
	s := newTestStore(t)
	err := s.Update(context.Background(), newRecord("ghost"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteMissingIsNoop(t *testing.T) {
	s := newTestStore(t)
	assert.NoError(t, s.Delete(context.Background(), ulid.Make()))
}

func TestListCreationOrder(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	// Timestamps deliberately out of order: listing follows creation.
	titles := []string{"first", "second", "third"}
	for i, title := range titles {
		r := newRecord(title)
		r.Timestamp = r.Timestamp.Add(-time.Duration(i) * time.Hour)
		require.NoError(t, s.Create(ctx, r))
	}

	snap, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, snap, 3)
	for i, title := range titles {
		assert.Equal(t, title, snap[i].Title)
	}
}

func TestDBPathCreation(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "sub", "dir", "test.db")
	s, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	s.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("expected db file to be created")
	}
}

func TestReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "cases.db")

	s, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	r := newRecord("persisted")
	require.NoError(t, s.Create(ctx, r))
	require.NoError(t, s.Close())

	s, err = NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer s.Close()

	got, err := s.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, "persisted", got.Title)
}
