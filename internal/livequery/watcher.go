package livequery

import (
	"context"
	"sync"
)

// Event is one emission of a live query: either the full current result set
// or a transport error. An error event does not terminate the stream; the
// watcher re-reads on the next notification, so consumers can distinguish a
// broken read from an empty result.
type Event[T any] struct {
	Docs []T
	Err  error
}

// Subscription is a handle on a running live query. Events delivers the
// snapshot stream; Unsubscribe stops it and closes the stream.
type Subscription[T any] struct {
	events chan Event[T]
	done   chan struct{}
	cancel func()
	once   sync.Once
}

// Events returns the snapshot stream. The channel is closed after
// Unsubscribe (or context cancellation) once the watcher goroutine drains.
func (s *Subscription[T]) Events() <-chan Event[T] {
	return s.events
}

// Unsubscribe detaches the watcher from the bus synchronously and stops the
// stream. It is safe to call more than once.
func (s *Subscription[T]) Unsubscribe() {
	s.once.Do(func() {
		s.cancel()
		close(s.done)
	})
}

// Watch runs fetch once immediately and again on every notification of the
// topic, emitting the full result set each time. The caller owns the
// returned subscription and must call Unsubscribe to release it.
func Watch[T any](ctx context.Context, bus *Bus, topic string, fetch func(context.Context) ([]T, error)) *Subscription[T] {
	notify, cancel := bus.Subscribe(topic)

	sub := &Subscription[T]{
		events: make(chan Event[T], 1),
		done:   make(chan struct{}),
		cancel: cancel,
	}

	go func() {
		defer close(sub.events)

		emit := func() bool {
			docs, err := fetch(ctx)
			event := Event[T]{Docs: docs, Err: err}
			select {
			case sub.events <- event:
				return true
			case <-sub.done:
				return false
			case <-ctx.Done():
				return false
			}
		}

		if !emit() {
			return
		}

		for {
			select {
			case <-notify:
				if !emit() {
					return
				}
			case <-sub.done:
				return
			case <-ctx.Done():
				sub.Unsubscribe()
				return
			}
		}
	}()

	return sub
}
