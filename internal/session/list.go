// Package session hosts the coordinating loops that sit between the record
// store and a renderer: a list session for browsing and batch actions, and an
// edit session for a single record.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/rcliao/casefile/internal/attachment"
	"github.com/rcliao/casefile/internal/batch"
	"github.com/rcliao/casefile/internal/diff"
	"github.com/rcliao/casefile/internal/logging"
	"github.com/rcliao/casefile/internal/model"
	"github.com/rcliao/casefile/internal/selection"
	"github.com/rcliao/casefile/internal/store"
)

// Frame is what a renderer paints for one snapshot transition.
type Frame struct {
	Script       diff.Script    `json:"script"`
	Snapshot     model.Snapshot `json:"-"`
	Presentation model.Snapshot `json:"presentation"`
	Selected     []ulid.ULID    `json:"selected"`
	Mode         batch.Mode     `json:"mode"`
	Title        string         `json:"title,omitempty"`
}

// List applies store snapshots to the selection and emits frames. All state
// changes happen under one lock, so store notifications and user intents
// never interleave.
type List struct {
	store  store.Store
	log    logging.Logger
	now    func() time.Time
	photos *attachment.Layout

	mu       sync.Mutex
	snapshot model.Snapshot
	sel      *selection.Engine
	coord    *batch.Coordinator

	frames chan Frame
}

// ListOption configures a List.
type ListOption func(*List)

func WithListLogger(l logging.Logger) ListOption {
	return func(ls *List) {
		if l != nil {
			ls.log = l
		}
	}
}

// WithClock sets the time source used to stamp new records.
func WithClock(now func() time.Time) ListOption {
	return func(ls *List) {
		if now != nil {
			ls.now = now
		}
	}
}

// WithAttachments makes CommitDelete remove the photos of deleted records.
func WithAttachments(layout attachment.Layout) ListOption {
	return func(ls *List) { ls.photos = &layout }
}

func NewList(s store.Store, opts ...ListOption) *List {
	l := &List{
		store:  s,
		log:    logging.Nop(),
		now:    time.Now,
		sel:    selection.New(),
		frames: make(chan Frame, 16),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.coord = batch.New(l.sel, s, batch.WithLogger(l.log))
	return l
}

// Frames delivers one frame per snapshot transition, starting with the
// initial snapshot. It is closed when Run returns.
func (l *List) Frames() <-chan Frame {
	return l.frames
}

// Run observes the store until ctx is done or the store closes.
func (l *List) Run(ctx context.Context) error {
	defer close(l.frames)

	snaps, err := l.store.Observe(ctx)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case snap, ok := <-snaps:
			if !ok {
				return nil
			}
			frame := l.apply(snap)
			select {
			case l.frames <- frame:
			case <-ctx.Done():
				return nil
			}
		}
	}
}

func (l *List) apply(snap model.Snapshot) Frame {
	l.mu.Lock()
	defer l.mu.Unlock()

	script := diff.Compute(l.snapshot, snap)
	l.snapshot = snap
	l.coord.Reconcile(snap)

	ins, rem, upd := script.Counts()
	l.log.Debug(context.Background(), "snapshot applied",
		"records", len(snap), "inserts", ins, "removes", rem, "updates", upd)

	return l.frameLocked(script)
}

func (l *List) frameLocked(script diff.Script) Frame {
	return Frame{
		Script:       script,
		Snapshot:     l.snapshot,
		Presentation: l.snapshot.Presentation(),
		Selected:     l.sel.IDs(),
		Mode:         l.coord.Mode(),
		Title:        l.coord.Title(),
	}
}

// Current returns the state as of the last applied snapshot, with an empty
// script.
func (l *List) Current() Frame {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.frameLocked(diff.Script{Ops: []diff.Op{}, Retained: []diff.Match{}})
}

// ToggleSelection flips selection of id and reports whether it is now
// selected. Unknown ids are ignored.
func (l *List) ToggleSelection(id ulid.ULID) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.coord.Toggle(id)
}

// CancelSelection leaves selection mode.
func (l *List) CancelSelection() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.coord.Cancel()
}

// Mode returns the selection-mode state.
func (l *List) Mode() batch.Mode {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.coord.Mode()
}

// OnModeChange registers fn for selection-mode transitions. fn runs with the
// session lock held and must not call back into the session.
func (l *List) OnModeChange(fn func(batch.Mode)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.coord.OnModeChange(fn)
}

// CommitDelete deletes the selected records and leaves selection mode. With
// WithAttachments the photos of deleted records are removed too; a photo that
// cannot be removed is logged, not reported.
func (l *List) CommitDelete(ctx context.Context) (batch.Result, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	res, err := l.coord.CommitDelete(ctx)
	if l.photos != nil {
		for _, id := range res.Deleted {
			if rerr := l.photos.Remove(id); rerr != nil {
				l.log.Warn(ctx, "remove photo", "id", id.String(), "err", rerr)
			}
		}
	}
	return res, err
}

// CreateRecord stores a new untitled record stamped now and returns its id.
func (l *List) CreateRecord(ctx context.Context) (ulid.ULID, error) {
	r := model.NewRecord(l.now())
	if err := l.store.Create(ctx, r); err != nil {
		return ulid.ULID{}, err
	}
	l.log.Info(ctx, "record created", "id", r.ID.String())
	return r.ID, nil
}
