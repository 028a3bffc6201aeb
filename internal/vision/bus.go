package vision

import (
	"sync"
)

// bus fans one tick's snapshot out to every subscriber.
type bus struct {
	subscribers map[*subscription]bool
	mu          sync.RWMutex
}

type subscription struct {
	fn func(*Snapshot)
	ch chan *Snapshot
}

func newBus() *bus {
	return &bus{
		subscribers: make(map[*subscription]bool),
	}
}

// subscribe registers a callback for every snapshot. Returns an unsubscribe
// function.
func (b *bus) subscribe(fn func(*Snapshot)) func() {
	sub := &subscription{fn: fn}

	b.mu.Lock()
	b.subscribers[sub] = true
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.subscribers, sub)
		b.mu.Unlock()
	}
}

// subscribeChannel returns a channel receiving snapshots with the given
// buffer, and an unsubscribe function that also closes the channel.
func (b *bus) subscribeChannel(bufferSize int) (<-chan *Snapshot, func()) {
	if bufferSize <= 0 {
		bufferSize = 10
	}

	ch := make(chan *Snapshot, bufferSize)
	sub := &subscription{ch: ch}

	b.mu.Lock()
	b.subscribers[sub] = true
	b.mu.Unlock()

	unsubscribe := func() {
		b.mu.Lock()
		if _, ok := b.subscribers[sub]; ok {
			delete(b.subscribers, sub)
			close(ch)
		}
		b.mu.Unlock()
	}

	return ch, unsubscribe
}

// publish delivers a snapshot to all subscribers. Callbacks run
// synchronously so snapshots arrive in tick order; a full channel drops the
// snapshot for that subscriber rather than stalling the loop.
func (b *bus) publish(s *Snapshot) {
	if s == nil {
		return
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subscribers {
		if sub.fn != nil {
			sub.fn(s)
		} else if sub.ch != nil {
			select {
			case sub.ch <- s:
			default:
			}
		}
	}
}

// count returns the number of active subscribers.
func (b *bus) count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// close unsubscribes everyone and closes subscriber channels.
func (b *bus) close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for sub := range b.subscribers {
		if sub.ch != nil {
			close(sub.ch)
		}
		delete(b.subscribers, sub)
	}
}
