// Package pubsub provides a small fan-out broadcaster used for change
// notification. Publishing never blocks: each subscriber owns a bounded
// buffer, and when it overflows the oldest buffered event is discarded so
// the newest is kept. Subscribers that observe drops must resynchronize
// from source state rather than replay what they missed.
package pubsub

import (
	"sync"
	"sync/atomic"
)

// DefaultBuffer is the per-subscriber buffer size used by New.
const DefaultBuffer = 64

// Broadcaster delivers published values to every active subscription.
type Broadcaster[T any] struct {
	mu     sync.Mutex
	subs   map[*Subscription[T]]struct{}
	buffer int
	closed bool
}

// Subscription is one receiver attached to a Broadcaster. Values are read
// from C, which is closed when the subscription is cancelled or the
// broadcaster is closed.
type Subscription[T any] struct {
	C <-chan T

	b       *Broadcaster[T]
	ch      chan T
	dropped atomic.Uint64
}

// New returns a Broadcaster whose subscriptions buffer up to buffer values.
// A non-positive buffer falls back to DefaultBuffer.
func New[T any](buffer int) *Broadcaster[T] {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Broadcaster[T]{
		subs:   make(map[*Subscription[T]]struct{}),
		buffer: buffer,
	}
}

// Subscribe attaches a new independent receiver. Subscribing after Close
// returns a subscription whose channel is already closed.
func (b *Broadcaster[T]) Subscribe() *Subscription[T] {
	ch := make(chan T, b.buffer)
	s := &Subscription[T]{C: ch, ch: ch, b: b}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		close(ch)
		return s
	}
	b.subs[s] = struct{}{}
	return s
}

// Publish delivers v to every subscription without blocking. Subscribers
// whose buffer is full lose their oldest buffered value.
func (b *Broadcaster[T]) Publish(v T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	for s := range b.subs {
		select {
		case s.ch <- v:
		default:
			// Buffer full: evict the oldest value, then try once more.
			// Both operations happen under b.mu, so no other goroutine
			// can be sending on s.ch concurrently.
			select {
			case <-s.ch:
				s.dropped.Add(1)
			default:
			}
			select {
			case s.ch <- v:
			default:
				s.dropped.Add(1)
			}
		}
	}
}

// Close cancels every subscription. Publish becomes a no-op.
func (b *Broadcaster[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for s := range b.subs {
		close(s.ch)
		delete(b.subs, s)
	}
}

// Cancel detaches the subscription and closes its channel. Safe to call
// more than once.
func (s *Subscription[T]) Cancel() {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()

	if _, ok := s.b.subs[s]; !ok {
		return
	}
	delete(s.b.subs, s)
	close(s.ch)
}

// Dropped reports how many values this subscription has lost since the
// previous call, and resets the counter. A non-zero result means the
// subscriber fell behind and should re-read full state.
func (s *Subscription[T]) Dropped() uint64 {
	return s.dropped.Swap(0)
}
