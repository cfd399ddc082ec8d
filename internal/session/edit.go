package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/oklog/ulid/v2"

	"github.com/rcliao/casefile/internal/attachment"
	"github.com/rcliao/casefile/internal/imaging"
	"github.com/rcliao/casefile/internal/logging"
	"github.com/rcliao/casefile/internal/model"
	"github.com/rcliao/casefile/internal/store"
	"github.com/rcliao/casefile/internal/temporal"
)

var (
	// ErrUnavailable means the facility behind an action cannot be used.
	ErrUnavailable = errors.New("action unavailable")
	// ErrNotLoaded means the session has no record yet.
	ErrNotLoaded = errors.New("no record loaded")
	// ErrSessionClosed means the session was already closed.
	ErrSessionClosed = errors.New("session closed")
)

// Capturer writes a photo to path while a write window is open for it.
type Capturer interface {
	Capture(ctx context.Context, path string) error
}

// ContactPicker returns the display name of a chosen person.
type ContactPicker interface {
	Pick(ctx context.Context) (string, error)
}

// FileCapturer captures by copying an existing image file.
type FileCapturer struct {
	Source string
}

func (c FileCapturer) Capture(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	src, err := os.Open(c.Source)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer src.Close()

	dst, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("open attachment: %w", err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return fmt.Errorf("copy photo: %w", err)
	}
	return dst.Close()
}

// StaticPicker always picks Name.
type StaticPicker struct {
	Name string
}

func (p StaticPicker) Pick(context.Context) (string, error) {
	return p.Name, nil
}

// captureConsumer names the capture facility in write grants.
const captureConsumer = "capture"

// Edit is the editing session of one record. Changes stay in memory until
// Save or Close.
type Edit struct {
	store    store.Store
	layout   attachment.Layout
	granter  attachment.Granter
	windows  *attachment.Manager
	decoder  *imaging.Decoder
	capturer Capturer
	picker   ContactPicker
	avail    attachment.Availability
	viewport imaging.Bounds
	log      logging.Logger

	// done is cancelled by Close and bounds in-flight captures.
	done   context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	record model.Record
	loaded bool
	closed bool
}

// EditOption configures an Edit session.
type EditOption func(*Edit)

func WithEditLogger(l logging.Logger) EditOption {
	return func(e *Edit) {
		if l != nil {
			e.log = l
		}
	}
}

func WithCapturer(c Capturer) EditOption {
	return func(e *Edit) { e.capturer = c }
}

func WithPicker(p ContactPicker) EditOption {
	return func(e *Edit) { e.picker = p }
}

// WithAvailability sets the predicate consulted before offering capture or
// contact picking. Without it an action is offered whenever its facility is
// configured.
func WithAvailability(a attachment.Availability) EditOption {
	return func(e *Edit) {
		if a != nil {
			e.avail = a
		}
	}
}

func WithDecoder(d *imaging.Decoder) EditOption {
	return func(e *Edit) {
		if d != nil {
			e.decoder = d
		}
	}
}

func WithGranter(g attachment.Granter) EditOption {
	return func(e *Edit) {
		if g != nil {
			e.granter = g
		}
	}
}

// WithViewport sets the bound photos are decoded for.
func WithViewport(b imaging.Bounds) EditOption {
	return func(e *Edit) { e.viewport = b }
}

func NewEdit(s store.Store, layout attachment.Layout, opts ...EditOption) *Edit {
	e := &Edit{
		store:    s,
		layout:   layout,
		granter:  attachment.ModeGranter{},
		avail:    attachment.AllAvailable,
		viewport: imaging.Bounds{Width: 1080, Height: 1920},
		log:      logging.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.windows = attachment.NewManager(e.granter, attachment.WithLogger(e.log))
	e.done, e.cancel = context.WithCancel(context.Background())
	if e.decoder == nil {
		e.decoder = imaging.NewDecoder(imaging.WithLogger(e.log))
	}
	return e
}

// Load reads the record to edit.
func (e *Edit) Load(ctx context.Context, id ulid.ULID) (model.Record, error) {
	r, err := e.store.Get(ctx, id)
	if err != nil {
		return model.Record{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return model.Record{}, ErrSessionClosed
	}
	e.record = r
	e.loaded = true
	return r, nil
}

// Record returns the record as currently edited.
func (e *Edit) Record() model.Record {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.record
}

func (e *Edit) mutate(fn func(r *model.Record)) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrSessionClosed
	}
	if !e.loaded {
		return ErrNotLoaded
	}
	fn(&e.record)
	return nil
}

func (e *Edit) SetTitle(title string) error {
	return e.mutate(func(r *model.Record) { r.Title = title })
}

func (e *Edit) SetResolved(resolved bool) error {
	return e.mutate(func(r *model.Record) { r.Resolved = resolved })
}

// SetSuspect sets the suspect directly, with the same cleanup as a picked
// contact.
func (e *Edit) SetSuspect(name string) error {
	return e.mutate(func(r *model.Record) { r.Suspect = cleanName(name) })
}

// EditDate replaces the date of the timestamp, keeping its time of day.
func (e *Edit) EditDate(d temporal.Date) error {
	return e.mutate(func(r *model.Record) { r.Timestamp = temporal.MergeDate(r.Timestamp, d) })
}

// EditTime replaces the time of day of the timestamp, keeping its date.
func (e *Edit) EditTime(c temporal.Clock) error {
	return e.mutate(func(r *model.Record) { r.Timestamp = temporal.MergeTime(r.Timestamp, c) })
}

// CanPickSuspect reports whether a contact picker can be launched.
func (e *Edit) CanPickSuspect() bool {
	return e.picker != nil && e.avail(attachment.CapPickContact)
}

// CanCapture reports whether a photo can be captured.
func (e *Edit) CanCapture() bool {
	return e.capturer != nil && e.avail(attachment.CapCapture)
}

// PickSuspect asks the contact picker for a name and stores it. An empty pick
// leaves the suspect unchanged.
func (e *Edit) PickSuspect(ctx context.Context) (string, error) {
	if !e.CanPickSuspect() {
		return "", fmt.Errorf("pick suspect: %w", ErrUnavailable)
	}
	name, err := e.picker.Pick(ctx)
	if err != nil {
		return "", fmt.Errorf("pick suspect: %w", err)
	}
	name = cleanName(name)
	if name == "" {
		return e.Record().Suspect, nil
	}
	if err := e.mutate(func(r *model.Record) { r.Suspect = name }); err != nil {
		return "", err
	}
	return name, nil
}

func cleanName(s string) string {
	s = strings.ReplaceAll(s, "\r\n", " ")
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.TrimSpace(s)
}

// PhotoPath is the attachment file of the loaded record.
func (e *Edit) PhotoPath() (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.loaded {
		return "", ErrNotLoaded
	}
	return e.layout.Path(e.record.ID), nil
}

// CapturePhoto runs the capturer with write access to the attachment path.
// The access is revoked whatever the outcome. Close cancels a capture in
// flight.
func (e *Edit) CapturePhoto(ctx context.Context) error {
	if !e.CanCapture() {
		return fmt.Errorf("capture: %w", ErrUnavailable)
	}
	path, err := e.PhotoPath()
	if err != nil {
		return err
	}

	e.mu.Lock()
	closed := e.closed
	e.mu.Unlock()
	if closed {
		return ErrSessionClosed
	}

	ctx, stop := context.WithCancel(ctx)
	defer stop()
	defer context.AfterFunc(e.done, stop)()

	err = e.windows.Capture(ctx, path, []string{captureConsumer}, func(ctx context.Context) error {
		return e.capturer.Capture(ctx, path)
	})
	if errors.Is(err, attachment.ErrManagerClosed) {
		return ErrSessionClosed
	}
	if err != nil {
		return fmt.Errorf("capture: %w", err)
	}
	e.log.Info(ctx, "photo captured", "path", path)
	return nil
}

// Photo decodes the attachment for the session viewport. A missing or
// unreadable photo gives a Picture without an image.
func (e *Edit) Photo(ctx context.Context) imaging.Picture {
	path, err := e.PhotoPath()
	if err != nil {
		return imaging.Picture{Err: err}
	}
	return e.decoder.Load(ctx, path, e.viewport)
}

// PhotoAsync decodes on a worker goroutine.
func (e *Edit) PhotoAsync(ctx context.Context) <-chan imaging.Picture {
	path, err := e.PhotoPath()
	if err != nil {
		ch := make(chan imaging.Picture, 1)
		ch <- imaging.Picture{Err: err}
		close(ch)
		return ch
	}
	return e.decoder.LoadAsync(ctx, path, e.viewport)
}

// Report returns the case report text. ok is false for untitled records.
func (e *Edit) Report() (text string, ok bool) {
	r := e.Record()
	if !r.Reportable() {
		return "", false
	}
	return r.Report(), true
}

// Save writes the edited record. A record deleted in the meantime is not an
// error.
func (e *Edit) Save(ctx context.Context) error {
	e.mu.Lock()
	r, loaded, closed := e.record, e.loaded, e.closed
	e.mu.Unlock()

	if closed {
		return ErrSessionClosed
	}
	if !loaded {
		return ErrNotLoaded
	}
	return e.save(ctx, r)
}

func (e *Edit) save(ctx context.Context, r model.Record) error {
	err := e.store.Update(ctx, r)
	if errors.Is(err, store.ErrNotFound) {
		e.log.Warn(ctx, "record vanished while editing", "id", r.ID.String())
		return nil
	}
	return err
}

// Close ends the session. Open write windows are revoked. An untitled record
// is deleted together with its photo; any other record is saved. Close is
// idempotent.
func (e *Edit) Close(ctx context.Context) (deleted bool, err error) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return false, nil
	}
	e.closed = true
	r, loaded := e.record, e.loaded
	e.mu.Unlock()

	e.cancel()
	revokeErr := e.windows.Close()
	if !loaded {
		return false, revokeErr
	}

	if r.Untitled() {
		if err := e.store.Delete(ctx, r.ID); err != nil {
			return false, errors.Join(err, revokeErr)
		}
		if err := e.layout.Remove(r.ID); err != nil {
			e.log.Warn(ctx, "remove photo", "id", r.ID.String(), "err", err)
		}
		e.log.Info(ctx, "untitled record discarded", "id", r.ID.String())
		return true, revokeErr
	}

	return false, errors.Join(e.save(ctx, r), revokeErr)
}
