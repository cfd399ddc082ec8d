package session

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcliao/casefile/internal/attachment"
	"github.com/rcliao/casefile/internal/imaging"
	"github.com/rcliao/casefile/internal/model"
	"github.com/rcliao/casefile/internal/store"
	"github.com/rcliao/casefile/internal/temporal"
)

type countingGranter struct {
	attachment.ModeGranter
	grants, revokes int
}

func (g *countingGranter) Grant(path, consumer string) error {
	g.grants++
	return g.ModeGranter.Grant(path, consumer)
}

func (g *countingGranter) Revoke(path, consumer string) error {
	g.revokes++
	return g.ModeGranter.Revoke(path, consumer)
}

type capturerFunc func(ctx context.Context, path string) error

func (f capturerFunc) Capture(ctx context.Context, path string) error { return f(ctx, path) }

func newEdit(t *testing.T, s store.Store, opts ...EditOption) (*Edit, model.Record) {
	t.Helper()
	r := model.NewRecord(time.Date(2023, 5, 1, 14, 30, 0, 0, time.Local))
	r.Title = "Stolen bike"
	require.NoError(t, s.Create(context.Background(), r))

	e := NewEdit(s, attachment.NewLayout(filepath.Join(t.TempDir(), "photos")), opts...)
	_, err := e.Load(context.Background(), r.ID)
	require.NoError(t, err)
	return e, r
}

func samplePNG(t *testing.T, w, h int) string {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 0x80
	}
	path := filepath.Join(t.TempDir(), "camera.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
	return path
}

func TestEditSavesOnClose(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	e, r := newEdit(t, s)

	require.NoError(t, e.SetTitle("Stolen red bike"))
	require.NoError(t, e.SetResolved(true))
	require.NoError(t, e.EditDate(temporal.Date{Year: 2024, Month: time.June, Day: 2}))
	require.NoError(t, e.EditTime(temporal.Clock{Hour: 9, Minute: 5}))

	deleted, err := e.Close(ctx)
	require.NoError(t, err)
	assert.False(t, deleted)

	got, err := s.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, "Stolen red bike", got.Title)
	assert.True(t, got.Resolved)
	assert.True(t, got.Timestamp.Equal(time.Date(2024, 6, 2, 9, 5, 0, 0, time.Local)))
}

func TestEditBlankTitleDeletesOnClose(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	e, r := newEdit(t, s)

	require.NoError(t, e.SetTitle("   "))
	deleted, err := e.Close(ctx)
	require.NoError(t, err)
	assert.True(t, deleted)

	_, err = s.Get(ctx, r.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestEditCloseIsIdempotent(t *testing.T) {
	s := newStore(t)
	e, _ := newEdit(t, s)

	_, err := e.Close(context.Background())
	require.NoError(t, err)
	deleted, err := e.Close(context.Background())
	require.NoError(t, err)
	assert.False(t, deleted)

	assert.ErrorIs(t, e.SetTitle("late"), ErrSessionClosed)
}

func TestEditRecordDeletedElsewhere(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	e, r := newEdit(t, s)

	require.NoError(t, s.Delete(ctx, r.ID))
	require.NoError(t, e.SetTitle("still editing"))
	assert.NoError(t, e.Save(ctx))
}

func TestEditNotLoaded(t *testing.T) {
	e := NewEdit(newStore(t), attachment.NewLayout(t.TempDir()))
	assert.ErrorIs(t, e.SetTitle("x"), ErrNotLoaded)
	assert.ErrorIs(t, e.Save(context.Background()), ErrNotLoaded)
	assert.False(t, e.Photo(context.Background()).Present())
}

func TestPickSuspect(t *testing.T) {
	s := newStore(t)
	e, _ := newEdit(t, s, WithPicker(StaticPicker{Name: "  Ann\nBoleyn\r\n"}))

	require.True(t, e.CanPickSuspect())
	name, err := e.PickSuspect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Ann Boleyn", name)
	assert.Equal(t, "Ann Boleyn", e.Record().Suspect)
}

func TestPickSuspectEmptyKeepsCurrent(t *testing.T) {
	s := newStore(t)
	e, _ := newEdit(t, s, WithPicker(StaticPicker{Name: "\n"}))
	require.NoError(t, e.SetSuspect("Bob"))

	name, err := e.PickSuspect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Bob", name)
}

func TestActionsRespectAvailability(t *testing.T) {
	s := newStore(t)
	e, _ := newEdit(t, s,
		WithPicker(StaticPicker{Name: "Ann"}),
		WithCapturer(FileCapturer{Source: "unused"}),
		WithAvailability(attachment.Only(attachment.CapCapture)),
	)

	assert.True(t, e.CanCapture())
	assert.False(t, e.CanPickSuspect())
	_, err := e.PickSuspect(context.Background())
	assert.ErrorIs(t, err, ErrUnavailable)

	bare, _ := newEdit(t, s)
	assert.False(t, bare.CanCapture())
	assert.ErrorIs(t, bare.CapturePhoto(context.Background()), ErrUnavailable)
}

func TestCapturePhotoAndDecode(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	g := &countingGranter{}
	e, _ := newEdit(t, s,
		WithCapturer(FileCapturer{Source: samplePNG(t, 40, 60)}),
		WithGranter(g),
		WithViewport(imaging.Bounds{Width: 20, Height: 20}),
	)

	assert.False(t, e.Photo(ctx).Present())

	require.NoError(t, e.CapturePhoto(ctx))
	assert.Equal(t, 1, g.grants)
	assert.Equal(t, 1, g.revokes)

	pic := e.Photo(ctx)
	require.NoError(t, pic.Err)
	assert.Equal(t, 3, pic.Factor)
	assert.Equal(t, image.Rect(0, 0, 14, 20), pic.Image.Bounds())
	assert.Equal(t, color.NRGBA{R: 0x80, G: 0x80, B: 0x80, A: 0x80}, pic.Image.At(0, 0))

	async := <-e.PhotoAsync(ctx)
	assert.True(t, async.Present())
}

func TestCaptureFailureStillRevokes(t *testing.T) {
	s := newStore(t)
	g := &countingGranter{}
	boom := errors.New("user backed out")
	e, _ := newEdit(t, s,
		WithCapturer(capturerFunc(func(context.Context, string) error { return boom })),
		WithGranter(g),
	)

	err := e.CapturePhoto(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, g.revokes)

	_, err = e.Close(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, g.revokes, "no window left for teardown")
}

func TestCloseRevokesWindowLeftOpen(t *testing.T) {
	s := newStore(t)
	g := &countingGranter{}
	started := make(chan struct{})
	release := make(chan struct{})
	e, _ := newEdit(t, s,
		WithCapturer(capturerFunc(func(ctx context.Context, _ string) error {
			close(started)
			<-release
			return nil
		})),
		WithGranter(g),
	)

	done := make(chan error, 1)
	go func() { done <- e.CapturePhoto(context.Background()) }()
	<-started

	_, err := e.Close(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, g.revokes, "teardown revokes the in-flight window")

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, 1, g.revokes, "revoke happens exactly once")
}

// teardownGranter runs onGrant after each grant, standing in for a Close
// that lands while the grant is being made.
type teardownGranter struct {
	countingGranter
	onGrant func()
}

func (g *teardownGranter) Grant(path, consumer string) error {
	err := g.countingGranter.Grant(path, consumer)
	if g.onGrant != nil {
		g.onGrant()
	}
	return err
}

func TestCaptureRacingCloseIsRevoked(t *testing.T) {
	s := newStore(t)
	g := &teardownGranter{}
	ran := false
	e, _ := newEdit(t, s,
		WithCapturer(capturerFunc(func(context.Context, string) error {
			ran = true
			return nil
		})),
		WithGranter(g),
	)
	g.onGrant = func() {
		_, err := e.Close(context.Background())
		assert.NoError(t, err)
	}

	err := e.CapturePhoto(context.Background())
	assert.ErrorIs(t, err, ErrSessionClosed)
	assert.False(t, ran, "capturer must not run once the session is torn down")
	assert.Equal(t, 1, g.grants)
	assert.Equal(t, 1, g.revokes)
}

func TestCloseCancelsCaptureInFlight(t *testing.T) {
	s := newStore(t)
	g := &countingGranter{}
	started := make(chan struct{})
	e, _ := newEdit(t, s,
		WithCapturer(capturerFunc(func(ctx context.Context, _ string) error {
			close(started)
			<-ctx.Done()
			return ctx.Err()
		})),
		WithGranter(g),
	)

	done := make(chan error, 1)
	go func() { done <- e.CapturePhoto(context.Background()) }()
	<-started

	_, err := e.Close(context.Background())
	require.NoError(t, err)

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("capture still running after Close")
	}
	assert.Equal(t, 1, g.revokes)
}

func TestReport(t *testing.T) {
	s := newStore(t)
	e, _ := newEdit(t, s)
	require.NoError(t, e.SetSuspect("Ann"))

	text, ok := e.Report()
	require.True(t, ok)
	assert.Equal(t, "Stolen bike! The case was discovered on Monday, 01 May 2023 at 14:30. The case is not solved, and the suspect is Ann.", text)

	require.NoError(t, e.SetTitle(""))
	_, ok = e.Report()
	assert.False(t, ok)
}
