package store

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultWatchDelay is how long Watch waits for a burst of filesystem events
// to settle before reloading.
const DefaultWatchDelay = 100 * time.Millisecond

// Watch reloads and republishes the snapshot when the database files change on
// disk, which picks up writes made by other processes. It returns once the
// watcher is installed; watching stops when ctx is done.
func (s *SQLiteStore) Watch(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		delay = DefaultWatchDelay
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("store: create watcher: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("store: watch %s: %w", dir, err)
	}

	base := filepath.Base(s.path)
	reload := func() {
		if ctx.Err() != nil {
			return
		}
		if err := s.reload(ctx, true); err != nil {
			s.log.Warn(ctx, "watch reload failed", "err", err)
		}
	}

	go func() {
		defer watcher.Close()

		throttle := newThrottle(delay)
		defer throttle.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				// We cannot tell what changed; reload everything.
				s.log.Warn(ctx, "watch error", "err", err)
				throttle.Trigger(reload)
			case evt, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !isDatabaseEvent(evt, base) {
					continue
				}
				throttle.Trigger(reload)
			}
		}
	}()

	return nil
}

// isDatabaseEvent matches writes to the database file and its -wal/-shm
// siblings.
func isDatabaseEvent(evt fsnotify.Event, base string) bool {
	if evt.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return false
	}
	name := filepath.Base(evt.Name)
	return name == base || strings.HasPrefix(name, base+"-")
}

// throttle coalesces rapid triggers into one call per delay window.
type throttle struct {
	mu    sync.Mutex
	timer *time.Timer
	delay time.Duration
}

func newThrottle(delay time.Duration) *throttle {
	return &throttle{delay: delay}
}

func (t *throttle) Trigger(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.timer != nil {
		return
	}
	t.timer = time.AfterFunc(t.delay, func() {
		t.mu.Lock()
		t.timer = nil
		t.mu.Unlock()
		fn()
	})
}

func (t *throttle) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}
