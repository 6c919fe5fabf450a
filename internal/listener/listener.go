// Package listener provides typed subscription lists. Each registration
// returns an owned Subscription that is the only way to revoke it.
package listener

import (
	"sync"
)

// Listener broadcasts values of type T to its subscribers
type Listener[T any] struct {
	mu     sync.Mutex
	nextID uint64
	subs   []*entry[T]
	closed bool
}

type entry[T any] struct {
	id uint64
	fn func(T)
}

// Subscription is the handle returned by Listen
type Subscription struct {
	once   sync.Once
	cancel func()
}

// Close revokes the subscription. Closing twice is a no-op.
func (s *Subscription) Close() {
	if s == nil {
		return
	}
	s.once.Do(s.cancel)
}

// Listen registers fn. Registering on a closed listener returns an inert
// subscription and fn is never called.
func (l *Listener[T]) Listen(fn func(T)) *Subscription {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return &Subscription{cancel: func() {}}
	}

	l.nextID++
	id := l.nextID
	l.subs = append(l.subs, &entry[T]{id: id, fn: fn})
	return &Subscription{cancel: func() { l.remove(id) }}
}

func (l *Listener[T]) remove(id uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i, e := range l.subs {
		if e.id == id {
			l.subs = append(l.subs[:i:i], l.subs[i+1:]...)
			return
		}
	}
}

// Trigger calls every subscriber in registration order. Subscribers added or
// removed during the call take effect on the next Trigger.
func (l *Listener[T]) Trigger(v T) {
	l.mu.Lock()
	subs := l.subs
	l.mu.Unlock()

	for _, e := range subs {
		e.fn(v)
	}
}

// Len returns the number of live subscriptions
func (l *Listener[T]) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.subs)
}

// Close drops every subscription and refuses new ones
func (l *Listener[T]) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.subs = nil
	l.closed = true
}
