package store

import (
	"sync"

	"github.com/rcliao/casefile/internal/model"
)

// hub fans snapshots out to observers. Each subscriber channel holds one
// snapshot; a newer snapshot replaces an unread one, so publishing never
// blocks and readers always catch up to the latest state.
type hub struct {
	mu     sync.Mutex
	latest model.Snapshot
	have   bool
	subs   map[*subscriber]struct{}
	closed bool
}

type subscriber struct {
	ch   chan model.Snapshot
	done chan struct{}
}

func newHub() *hub {
	return &hub{subs: make(map[*subscriber]struct{})}
}

// subscribe registers a subscriber and hands it the cached snapshot, if any.
// primed reports whether that happened.
func (h *hub) subscribe() (sub *subscriber, primed, ok bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, false, false
	}

	sub = &subscriber{
		ch:   make(chan model.Snapshot, 1),
		done: make(chan struct{}),
	}
	if h.have {
		sub.ch <- h.latest
	}
	h.subs[sub] = struct{}{}
	return sub, h.have, true
}

func (h *hub) unsubscribe(sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.subs[sub]; !ok {
		return
	}
	delete(h.subs, sub)
	close(sub.ch)
	close(sub.done)
}

func (h *hub) publish(snap model.Snapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.publishLocked(snap)
}

// publishIfChanged skips snapshots identical to the cached one, which is what
// a filesystem event caused by our own write usually produces.
func (h *hub) publishIfChanged(snap model.Snapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.have && sameSnapshot(h.latest, snap) {
		return
	}
	h.publishLocked(snap)
}

func (h *hub) publishLocked(snap model.Snapshot) {
	if h.closed {
		return
	}
	h.latest = snap
	h.have = true

	for sub := range h.subs {
		select {
		case <-sub.ch:
		default:
		}
		sub.ch <- snap
	}
}

// invalidateIfIdle drops the cached snapshot when nobody is subscribed and
// reports whether it did.
func (h *hub) invalidateIfIdle() bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.subs) > 0 {
		return false
	}
	h.latest = nil
	h.have = false
	return true
}

func (h *hub) close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	for sub := range h.subs {
		close(sub.ch)
		close(sub.done)
	}
	h.subs = nil
	h.latest = nil
	h.have = false
}

func sameSnapshot(a, b model.Snapshot) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].SameContent(b[i]) {
			return false
		}
	}
	return true
}
