package session

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcliao/casefile/internal/attachment"
	"github.com/rcliao/casefile/internal/batch"
	"github.com/rcliao/casefile/internal/diff"
	"github.com/rcliao/casefile/internal/model"
	"github.com/rcliao/casefile/internal/store"
)

func newStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "cases.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func nextFrame(t *testing.T, l *List) Frame {
	t.Helper()
	select {
	case f, ok := <-l.Frames():
		require.True(t, ok, "frames closed")
		return f
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for frame")
		return Frame{}
	}
}

func startList(t *testing.T, s store.Store, opts ...ListOption) (*List, context.CancelFunc) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	l := NewList(s, opts...)
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return l, cancel
}

func seed(t *testing.T, s store.Store, titles ...string) []model.Record {
	t.Helper()
	var out []model.Record
	for _, title := range titles {
		r := model.NewRecord(time.Now())
		r.Title = title
		require.NoError(t, s.Create(context.Background(), r))
		out = append(out, r)
	}
	return out
}

func TestListInitialFrame(t *testing.T) {
	s := newStore(t)
	rs := seed(t, s, "A", "B", "C")
	l, _ := startList(t, s)

	f := nextFrame(t, l)

	ins, rem, upd := f.Script.Counts()
	assert.Equal(t, [3]int{3, 0, 0}, [3]int{ins, rem, upd})
	assert.Equal(t, []ulid.ULID{rs[0].ID, rs[1].ID, rs[2].ID}, f.Snapshot.IDs())
	assert.Equal(t, []ulid.ULID{rs[2].ID, rs[1].ID, rs[0].ID}, f.Presentation.IDs())
	assert.Equal(t, batch.Mode{State: batch.Idle}, f.Mode)
}

func TestListBatchDelete(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	rs := seed(t, s, "A", "B", "C")
	l, _ := startList(t, s)
	nextFrame(t, l)

	var modes []batch.Mode
	l.OnModeChange(func(m batch.Mode) { modes = append(modes, m) })

	require.True(t, l.ToggleSelection(rs[1].ID))
	assert.Equal(t, batch.Mode{State: batch.Selecting, Count: 1}, l.Mode())

	res, err := l.CommitDelete(ctx)
	require.NoError(t, err)
	assert.Equal(t, []ulid.ULID{rs[1].ID}, res.Deleted)

	f := nextFrame(t, l)
	require.Len(t, f.Script.Ops, 1)
	assert.Equal(t, diff.Remove, f.Script.Ops[0].Kind)
	assert.Equal(t, 1, f.Script.Ops[0].Pos)
	assert.Empty(t, f.Selected)
	assert.Equal(t, batch.Idle, f.Mode.State)
	assert.Equal(t, []batch.Mode{{State: batch.Selecting, Count: 1}, {State: batch.Idle}}, modes)
}

func TestListBatchDeleteRemovesPhotos(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	rs := seed(t, s, "A", "B", "C")
	layout := attachment.NewLayout(t.TempDir())
	for _, r := range rs {
		require.NoError(t, os.WriteFile(layout.Path(r.ID), []byte("jpeg"), 0o644))
	}

	l, _ := startList(t, s, WithAttachments(layout))
	nextFrame(t, l)

	require.True(t, l.ToggleSelection(rs[0].ID))
	require.True(t, l.ToggleSelection(rs[2].ID))
	res, err := l.CommitDelete(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []ulid.ULID{rs[0].ID, rs[2].ID}, res.Deleted)

	assert.False(t, layout.Exists(rs[0].ID))
	assert.True(t, layout.Exists(rs[1].ID), "unselected photo stays")
	assert.False(t, layout.Exists(rs[2].ID))
}

func TestListSelectionSurvivesUnrelatedChange(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	rs := seed(t, s, "A", "B")
	l, _ := startList(t, s)
	nextFrame(t, l)

	l.ToggleSelection(rs[0].ID)

	changed := rs[1]
	changed.Resolved = true
	require.NoError(t, s.Update(ctx, changed))

	f := nextFrame(t, l)
	require.Len(t, f.Script.Ops, 1)
	assert.Equal(t, diff.Update, f.Script.Ops[0].Kind)
	assert.Equal(t, []ulid.ULID{rs[0].ID}, f.Selected)
	assert.Equal(t, "1 selected", f.Title)
}

func TestListSelectionPurgedWhenRecordDisappears(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	rs := seed(t, s, "A", "B")
	l, _ := startList(t, s)
	nextFrame(t, l)

	l.ToggleSelection(rs[1].ID)
	require.NoError(t, s.Delete(ctx, rs[1].ID))

	f := nextFrame(t, l)
	assert.Empty(t, f.Selected)
	assert.Equal(t, batch.Idle, f.Mode.State)
}

func TestListCreateRecord(t *testing.T) {
	s := newStore(t)
	l, _ := startList(t, s)
	nextFrame(t, l)

	id, err := l.CreateRecord(context.Background())
	require.NoError(t, err)

	f := nextFrame(t, l)
	require.Len(t, f.Script.Ops, 1)
	assert.Equal(t, diff.Insert, f.Script.Ops[0].Kind)
	assert.Equal(t, id, f.Script.Ops[0].ID)
	assert.True(t, f.Script.Ops[0].Record.Untitled())
}

func TestListCancelSelection(t *testing.T) {
	s := newStore(t)
	rs := seed(t, s, "A", "B")
	l, _ := startList(t, s)
	nextFrame(t, l)

	l.ToggleSelection(rs[0].ID)
	l.ToggleSelection(rs[1].ID)
	l.CancelSelection()

	cur := l.Current()
	assert.Empty(t, cur.Selected)
	assert.Equal(t, batch.Idle, cur.Mode.State)
	assert.True(t, cur.Script.Empty())
}

func TestListRunClosesFramesOnCancel(t *testing.T) {
	s := newStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	l := NewList(s)
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()
	nextFrame(t, l)

	cancel()
	require.NoError(t, <-done)
	_, ok := <-l.Frames()
	assert.False(t, ok)
}
