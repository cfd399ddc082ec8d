// Package batch drives selection mode and bulk operations over the selection.
package batch

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/oklog/ulid/v2"

	"github.com/rcliao/casefile/internal/logging"
	"github.com/rcliao/casefile/internal/model"
	"github.com/rcliao/casefile/internal/selection"
	"github.com/rcliao/casefile/internal/store"
)

// ErrPartialBatch matches a PartialBatchError with errors.Is.
var ErrPartialBatch = errors.New("batch partially failed")

// State is the selection-mode state.
type State int

const (
	Idle State = iota
	Selecting
)

func (s State) String() string {
	if s == Selecting {
		return "selecting"
	}
	return "idle"
}

// Mode is the coordinator state plus the selection size while selecting.
type Mode struct {
	State State `json:"state"`
	Count int   `json:"count"`
}

func (m Mode) String() string {
	if m.State == Selecting {
		return fmt.Sprintf("selecting(%d)", m.Count)
	}
	return "idle"
}

// Deleter is the part of the record store the coordinator mutates.
type Deleter interface {
	Delete(ctx context.Context, id ulid.ULID) error
}

// Failure is one failed operation of a batch.
type Failure struct {
	ID  ulid.ULID
	Err error
}

// PartialBatchError lists the ids a batch could not process. Every other id in
// the batch was processed.
type PartialBatchError struct {
	Failures []Failure
}

func (e *PartialBatchError) Error() string {
	parts := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		parts[i] = fmt.Sprintf("%s: %v", f.ID, f.Err)
	}
	return fmt.Sprintf("%d of batch failed: %s", len(e.Failures), strings.Join(parts, "; "))
}

func (e *PartialBatchError) Is(target error) bool {
	return target == ErrPartialBatch
}

// FailedIDs returns the ids that failed, in batch order.
func (e *PartialBatchError) FailedIDs() []ulid.ULID {
	out := make([]ulid.ULID, len(e.Failures))
	for i, f := range e.Failures {
		out[i] = f.ID
	}
	return out
}

// Result reports what a committed batch did.
type Result struct {
	Deleted []ulid.ULID `json:"deleted"`
	Failed  []ulid.ULID `json:"failed,omitempty"`
}

// Coordinator translates selection intents into selection updates and store
// calls. Like the selection engine it is not safe for concurrent use.
type Coordinator struct {
	sel       *selection.Engine
	store     Deleter
	log       logging.Logger
	mode      Mode
	listeners []func(Mode)
}

// Option configures a Coordinator.
type Option func(*Coordinator)

func WithLogger(l logging.Logger) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.log = l
		}
	}
}

// New returns a coordinator in Idle mode over sel.
func New(sel *selection.Engine, d Deleter, opts ...Option) *Coordinator {
	c := &Coordinator{
		sel:   sel,
		store: d,
		log:   logging.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.mode = modeFor(sel.Len())
	sel.Observe(c.selectionChanged)
	return c
}

// OnModeChange registers fn to be called on every mode transition.
func (c *Coordinator) OnModeChange(fn func(Mode)) {
	c.listeners = append(c.listeners, fn)
}

func (c *Coordinator) Mode() Mode {
	return c.mode
}

// Title is the selection-mode title, e.g. "2 selected". Empty when idle.
func (c *Coordinator) Title() string {
	if c.mode.State != Selecting {
		return ""
	}
	return fmt.Sprintf("%d selected", c.mode.Count)
}

// Toggle flips selection of id and reports whether it is now selected.
func (c *Coordinator) Toggle(id ulid.ULID) bool {
	return c.sel.Toggle(id)
}

// Cancel clears the selection, leaving selection mode.
func (c *Coordinator) Cancel() {
	c.sel.Clear()
}

// Reconcile applies a new snapshot to the selection.
func (c *Coordinator) Reconcile(snap model.Snapshot) {
	if dropped := c.sel.Reconcile(snap); len(dropped) > 0 {
		c.log.Debug(context.Background(), "selection purged", "count", len(dropped))
	}
}

// CommitDelete deletes every selected record of the current snapshot, clears
// the selection and returns to Idle. Individual failures do not stop the
// batch; they are reported as a *PartialBatchError alongside the result.
// A record that is already gone counts as deleted.
func (c *Coordinator) CommitDelete(ctx context.Context) (Result, error) {
	targets := c.sel.SelectedRecords(c.sel.Snapshot())

	res := Result{Deleted: []ulid.ULID{}}
	var failures []Failure
	for _, r := range targets {
		err := c.store.Delete(ctx, r.ID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			c.log.Warn(ctx, "delete failed", "id", r.ID.String(), "err", err)
			failures = append(failures, Failure{ID: r.ID, Err: err})
			res.Failed = append(res.Failed, r.ID)
			continue
		}
		res.Deleted = append(res.Deleted, r.ID)
	}

	c.sel.Clear()
	c.log.Info(ctx, "batch delete", "deleted", len(res.Deleted), "failed", len(failures))

	if len(failures) > 0 {
		return res, &PartialBatchError{Failures: failures}
	}
	return res, nil
}

func (c *Coordinator) selectionChanged(n int) {
	next := modeFor(n)
	if next == c.mode {
		return
	}
	c.mode = next
	for _, fn := range c.listeners {
		fn(next)
	}
}

func modeFor(n int) Mode {
	if n == 0 {
		return Mode{State: Idle}
	}
	return Mode{State: Selecting, Count: n}
}
