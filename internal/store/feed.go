package store

import "sync"

// Feed is a latest-wins event channel with a buffer of one. Publishing never
// blocks: when the reader has not consumed the previous event yet, that event
// is replaced. Because every snapshot describes the whole collection, a slow
// reader skips intermediate states but always ends on the newest one.
type Feed struct {
	mu     sync.Mutex
	ch     chan Event
	closed bool
}

// NewFeed creates an open Feed.
func NewFeed() *Feed {
	return &Feed{ch: make(chan Event, 1)}
}

// Events returns the receive side of the feed.
func (f *Feed) Events() <-chan Event {
	return f.ch
}

// Publish delivers ev, replacing any undelivered event. It reports false when
// the feed is already shut down.
func (f *Feed) Publish(ev Event) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return false
	}

	select {
	case f.ch <- ev:
		return true
	default:
	}

	// Drop the stale event. The reader may have taken it in the meantime,
	// in which case the buffer is already free.
	select {
	case <-f.ch:
	default:
	}
	f.ch <- ev
	return true
}

// Shutdown closes the channel. Further publishes are ignored.
func (f *Feed) Shutdown() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return
	}
	f.closed = true
	close(f.ch)
}
