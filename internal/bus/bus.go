// Package bus is a typed in-process publish/subscribe topic. Every subscriber
// sees every value published after it subscribed, in publish order.
package bus

import "sync"

type Topic[T any] struct {
	mu     sync.RWMutex
	subs   map[int]chan T
	next   int
	buffer int
	closed bool
}

func NewTopic[T any](buffer int) *Topic[T] {
	if buffer <= 0 {
		buffer = 64
	}
	return &Topic[T]{subs: make(map[int]chan T), buffer: buffer}
}

// Subscribe returns a channel of published values and a cancel func that
// closes it. Cancel is idempotent.
func (t *Topic[T]) Subscribe() (<-chan T, func()) {
	t.mu.Lock()
	defer t.mu.Unlock()

	ch := make(chan T, t.buffer)
	if t.closed {
		close(ch)
		return ch, func() {}
	}

	id := t.next
	t.next++
	t.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			t.mu.Lock()
			defer t.mu.Unlock()
			if c, ok := t.subs[id]; ok {
				delete(t.subs, id)
				close(c)
			}
		})
	}
}

// Publish hands v to every subscriber without blocking and returns how many
// received it. A subscriber with a full buffer misses v.
func (t *Topic[T]) Publish(v T) int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	n := 0
	for _, ch := range t.subs {
		select {
		case ch <- v:
			n++
		default:
		}
	}
	return n
}

// Close closes every subscriber channel. Later subscriptions get a closed
// channel.
func (t *Topic[T]) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.closed = true
	for id, ch := range t.subs {
		delete(t.subs, id)
		close(ch)
	}
}
