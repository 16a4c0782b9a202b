// Package observe provides coalescing change notifications for observable state.
package observe

import "sync"

// Signal fans a "something changed" notification out to any number of
// subscribers. Each subscriber channel has a buffer of one, so a burst of
// notifications collapses into a single wake-up and Notify never blocks.
// Subscribers read the current state after waking.
//
// The zero value is ready to use.
type Signal struct {
	mu   sync.Mutex
	subs map[chan struct{}]struct{}
}

// Subscribe returns a notification channel and a function that releases it.
// The release function is idempotent and closes the channel.
func (s *Signal) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)

	s.mu.Lock()
	if s.subs == nil {
		s.subs = make(map[chan struct{}]struct{})
	}
	s.subs[ch] = struct{}{}
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, ch)
			s.mu.Unlock()
			close(ch)
		})
	}
}

// Notify wakes every subscriber that is not already pending.
func (s *Signal) Notify() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for ch := range s.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Len returns the number of live subscribers.
func (s *Signal) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}
