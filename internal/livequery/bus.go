// Package livequery provides the change-notification machinery behind live
// queries: a topic bus that mutations publish to, and a generic watcher that
// re-reads a query and emits the full result set on every notification.
package livequery

import "sync"

// Bus fans out change notifications per topic. Notifications carry no
// payload; subscribers re-read their query to obtain the current state, so a
// burst of publishes may coalesce into a single delivery.
type Bus struct {
	mu     sync.Mutex
	topics map[string]map[int]chan struct{}
	nextID int
}

// NewBus returns an empty notification bus.
func NewBus() *Bus {
	return &Bus{topics: make(map[string]map[int]chan struct{})}
}

// Publish notifies every subscriber of the topic. It never blocks: a
// subscriber that already has a pending notification is skipped.
func (b *Bus) Publish(topic string) {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.topics[topic] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Subscribe registers interest in a topic. The returned channel receives a
// value whenever the topic is published. The cancel function detaches the
// subscriber synchronously; no notification is delivered after it returns.
// On a nil receiver the channel is nil and never delivers.
func (b *Bus) Subscribe(topic string) (<-chan struct{}, func()) {
	if b == nil {
		// A nil channel never delivers, so a watcher on a nil bus idles
		// after its initial fetch instead of refetching in a tight loop.
		return nil, func() {}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	subscribers, ok := b.topics[topic]
	if !ok {
		subscribers = make(map[int]chan struct{})
		b.topics[topic] = subscribers
	}

	id := b.nextID
	b.nextID++
	ch := make(chan struct{}, 1)
	subscribers[id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if subs, ok := b.topics[topic]; ok {
			delete(subs, id)
			if len(subs) == 0 {
				delete(b.topics, topic)
			}
		}
	}

	return ch, cancel
}

// SubscriberCount reports how many subscribers a topic currently has. It
// exists for leak assertions in tests.
func (b *Bus) SubscriberCount(topic string) int {
	if b == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.topics[topic])
}
