package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcliao/casefile/internal/model"
)

func recv(t *testing.T, ch <-chan model.Snapshot) model.Snapshot {
	t.Helper()
	select {
	case snap, ok := <-ch:
		require.True(t, ok, "channel closed")
		return snap
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for snapshot")
		return nil
	}
}

func TestObserve_ReplaysCurrentSnapshot(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := newTestStore(t)

	require.NoError(t, s.Create(ctx, newRecord("a")))
	require.NoError(t, s.Create(ctx, newRecord("b")))

	ch, err := s.Observe(ctx)
	require.NoError(t, err)

	snap := recv(t, ch)
	require.Len(t, snap, 2)
	assert.Equal(t, "a", snap[0].Title)
}

func TestObserve_EmitsAfterEachMutation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := newTestStore(t)

	ch, err := s.Observe(ctx)
	require.NoError(t, err)
	assert.Empty(t, recv(t, ch))

	r := newRecord("a")
	require.NoError(t, s.Create(ctx, r))
	assert.Len(t, recv(t, ch), 1)

	r.Title = "renamed"
	require.NoError(t, s.Update(ctx, r))
	assert.Equal(t, "renamed", recv(t, ch)[0].Title)

	require.NoError(t, s.Delete(ctx, r.ID))
	assert.Empty(t, recv(t, ch))
}

func TestObserve_SlowReaderGetsLatest(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := newTestStore(t)

	ch, err := s.Observe(ctx)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		require.NoError(t, s.Create(ctx, newRecord("r")))
	}

	assert.Len(t, recv(t, ch), 5)
}

func TestObserve_SecondSubscriberSeesState(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := newTestStore(t)

	first, err := s.Observe(ctx)
	require.NoError(t, err)
	recv(t, first)

	require.NoError(t, s.Create(ctx, newRecord("a")))

	second, err := s.Observe(ctx)
	require.NoError(t, err)
	assert.Len(t, recv(t, second), 1)
}

func TestObserve_ClosesOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := newTestStore(t)

	ch, err := s.Observe(ctx)
	require.NoError(t, err)
	recv(t, ch)

	cancel()
	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("channel not closed after cancel")
	}
}

func TestObserve_AfterIdleMutationReloads(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := newTestStore(t)

	sub, cancelSub := context.WithCancel(ctx)
	ch, err := s.Observe(sub)
	require.NoError(t, err)
	recv(t, ch)
	cancelSub()
	time.Sleep(20 * time.Millisecond)

	// No observers: the cached snapshot must not be served stale.
	require.NoError(t, s.Create(ctx, newRecord("late")))

	ch, err = s.Observe(ctx)
	require.NoError(t, err)
	assert.Len(t, recv(t, ch), 1)
}

func TestObserve_ClosedStore(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Close())

	_, err := s.Observe(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}
