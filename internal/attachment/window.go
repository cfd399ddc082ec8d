package attachment

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rcliao/casefile/internal/logging"
)

// ErrManagerClosed means the session owning the manager has been torn down.
var ErrManagerClosed = errors.New("write windows closed")

// Granter is the OS facility that hands a consumer write access to a path.
type Granter interface {
	Grant(path, consumer string) error
	Revoke(path, consumer string) error
}

// ModeGranter grants write access on the local filesystem through permission
// bits. The consumer is not distinguished.
type ModeGranter struct{}

// Grant creates the parent directory and makes an existing file writable.
func (ModeGranter) Grant(path, _ string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	err := os.Chmod(path, 0o644)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// Revoke makes the file read-only. A file that was never written is fine.
func (ModeGranter) Revoke(path, _ string) error {
	err := os.Chmod(path, 0o444)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// Window is one open write grant. Revoke releases it exactly once.
type Window struct {
	path     string
	consumer string
	m        *Manager
	once     sync.Once
	err      error
}

func (w *Window) Path() string     { return w.path }
func (w *Window) Consumer() string { return w.consumer }

// Revoke releases the grant. Only the first call reaches the granter; later
// calls return the same result.
func (w *Window) Revoke() error {
	w.once.Do(func() {
		w.err = w.m.granter.Revoke(w.path, w.consumer)
		w.m.forget(w)
		if w.err != nil {
			w.m.log.Warn(context.Background(), "revoke failed", "path", w.path, "consumer", w.consumer, "err", w.err)
		} else {
			w.m.log.Debug(context.Background(), "write window closed", "path", w.path, "consumer", w.consumer)
		}
	})
	return w.err
}

// Manager tracks the write windows of one editing session.
type Manager struct {
	granter Granter
	log     logging.Logger

	mu     sync.Mutex
	open   map[*Window]struct{}
	closed bool
}

// Option configures a Manager.
type Option func(*Manager)

func WithLogger(l logging.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.log = l
		}
	}
}

func NewManager(g Granter, opts ...Option) *Manager {
	m := &Manager{
		granter: g,
		log:     logging.Nop(),
		open:    map[*Window]struct{}{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// GrantWriteWindow gives consumer write access to path until the returned
// window is revoked. After Close it fails with ErrManagerClosed; a grant that
// races Close is revoked before returning.
func (m *Manager) GrantWriteWindow(path, consumer string) (*Window, error) {
	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()
	if closed {
		return nil, ErrManagerClosed
	}

	if err := m.granter.Grant(path, consumer); err != nil {
		return nil, fmt.Errorf("grant %s to %s: %w", path, consumer, err)
	}
	w := &Window{path: path, consumer: consumer, m: m}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		if err := w.Revoke(); err != nil {
			return nil, errors.Join(ErrManagerClosed, err)
		}
		return nil, ErrManagerClosed
	}
	m.open[w] = struct{}{}
	m.mu.Unlock()

	m.log.Debug(context.Background(), "write window opened", "path", path, "consumer", consumer)
	return w, nil
}

// Open returns the number of windows not yet revoked.
func (m *Manager) Open() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.open)
}

// RevokeAll revokes every open window. Called on session teardown.
func (m *Manager) RevokeAll() error {
	m.mu.Lock()
	windows := make([]*Window, 0, len(m.open))
	for w := range m.open {
		windows = append(windows, w)
	}
	m.mu.Unlock()

	var errs []error
	for _, w := range windows {
		if err := w.Revoke(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close revokes every open window and refuses later grants. It is safe to
// call more than once.
func (m *Manager) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return m.RevokeAll()
}

// Capture grants every consumer write access to path, runs fn, and revokes
// the grants on every exit path.
func (m *Manager) Capture(ctx context.Context, path string, consumers []string, fn func(ctx context.Context) error) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}

	windows := make([]*Window, 0, len(consumers))
	defer func() {
		for _, w := range windows {
			if rerr := w.Revoke(); rerr != nil && err == nil {
				err = rerr
			}
		}
	}()

	for _, c := range consumers {
		w, err := m.GrantWriteWindow(path, c)
		if err != nil {
			return err
		}
		windows = append(windows, w)
	}

	return fn(ctx)
}

func (m *Manager) forget(w *Window) {
	m.mu.Lock()
	delete(m.open, w)
	m.mu.Unlock()
}
