package ipc

import (
	"container/list"
	"sync"
	"time"
)

// senderTable tracks a sliding one-minute window of message timestamps per
// sender, bounded to maxEntries distinct senders via LRU eviction — the
// same bounded-map-plus-mutex idiom the rate limiter and permission
// checker packages use, generalized here to a sliding window rather than a
// token bucket since spec.md §4.15 specifies "messages / minute" directly.
type senderTable struct {
	maxEntries int

	mu      sync.Mutex
	entries map[string]*senderEntry
	lru     *list.List // front = most recently used
}

type senderEntry struct {
	sender    string
	timestamps []time.Time
	elem      *list.Element
}

func newSenderTable(maxEntries int) *senderTable {
	return &senderTable{
		maxEntries: maxEntries,
		entries:    make(map[string]*senderEntry),
		lru:        list.New(),
	}
}

// allow records one message from sender now and reports whether it is
// within RateLimitPerMinute for the trailing 60 seconds.
func (t *senderTable) allow(sender string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	e, ok := t.entries[sender]
	if !ok {
		e = &senderEntry{sender: sender}
		e.elem = t.lru.PushFront(e)
		t.entries[sender] = e
		t.evictIfNeededLocked()
	} else {
		t.lru.MoveToFront(e.elem)
	}

	cutoff := now.Add(-time.Minute)
	kept := e.timestamps[:0]
	for _, ts := range e.timestamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	e.timestamps = kept

	if len(e.timestamps) >= RateLimitPerMinute {
		return false
	}
	e.timestamps = append(e.timestamps, now)
	return true
}

// evictIfNeededLocked drops the least-recently-used sender once the table
// exceeds maxEntries. Must be called with t.mu held.
func (t *senderTable) evictIfNeededLocked() {
	for len(t.entries) > t.maxEntries {
		back := t.lru.Back()
		if back == nil {
			return
		}
		e := back.Value.(*senderEntry)
		delete(t.entries, e.sender)
		t.lru.Remove(back)
	}
}
