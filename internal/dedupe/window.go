// Package dedupe remembers recently indexed post versions so redelivered
// events are skipped.
package dedupe

import (
	"container/list"
	"sync"
	"time"
)

type entry struct {
	key string
	ts  time.Time
}

// Window is a bounded set of fingerprints that expire after ttl. Re-marking a
// key refreshes it; once full the least recently marked key is evicted.
type Window struct {
	mu       sync.Mutex
	items    map[string]*list.Element
	order    *list.List
	capacity int
	ttl      time.Duration
	now      func() time.Time
}

// NewWindow creates a window holding at most capacity keys for ttl each.
func NewWindow(capacity int, ttl time.Duration) *Window {
	if capacity <= 0 {
		capacity = 1
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Window{
		items:    make(map[string]*list.Element, capacity),
		order:    list.New(),
		capacity: capacity,
		ttl:      ttl,
		now:      time.Now,
	}
}

// IsSeen reports whether key was marked within the ttl. It does not mark it.
func (w *Window) IsSeen(key string) bool {
	now := w.now()

	w.mu.Lock()
	defer w.mu.Unlock()

	el, ok := w.items[key]
	if !ok {
		return false
	}
	return now.Sub(el.Value.(*entry).ts) <= w.ttl
}

// MarkSeen records key as processed now.
func (w *Window) MarkSeen(key string) {
	now := w.now()

	w.mu.Lock()
	defer w.mu.Unlock()

	if el, ok := w.items[key]; ok {
		el.Value.(*entry).ts = now
		w.order.MoveToBack(el)
	} else {
		w.items[key] = w.order.PushBack(&entry{key: key, ts: now})
	}
	w.compact(now)
}

// Len returns the number of keys currently held.
func (w *Window) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.items)
}

func (w *Window) compact(now time.Time) {
	cutoff := now.Add(-w.ttl)
	for el := w.order.Front(); el != nil; el = w.order.Front() {
		e := el.Value.(*entry)
		if len(w.items) <= w.capacity && !e.ts.Before(cutoff) {
			return
		}
		w.order.Remove(el)
		delete(w.items, e.key)
	}
}
