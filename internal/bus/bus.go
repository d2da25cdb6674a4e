package bus

import (
	"strings"
	"sync"
)

// Listener receives events delivered by the bus.
type Listener func(Event)

// Bus is an in-process publish/subscribe event bus with namespace filtering.
// Dispatch is synchronous: all matching listeners run before Publish returns.
type Bus struct {
	mu   sync.RWMutex
	subs map[int]*subscription
	next int
}

type subscription struct {
	namespace string
	fn        Listener
}

// New creates a new event bus.
func New() *Bus {
	return &Bus{
		subs: make(map[int]*subscription),
	}
}

// Publish delivers an event to all listeners whose namespace is a prefix of
// event.Kind. The listener set is snapshotted before iteration, so a listener
// may unsubscribe itself (or any other listener) during its own invocation.
// Delivery order across listeners is unspecified.
func (b *Bus) Publish(evt Event) {
	b.mu.RLock()
	matched := make([]Listener, 0, len(b.subs))
	for _, sub := range b.subs {
		if strings.HasPrefix(evt.Kind, sub.namespace) {
			matched = append(matched, sub.fn)
		}
	}
	b.mu.RUnlock()

	for _, fn := range matched {
		fn(evt)
	}
}

// Subscribe registers a listener for events matching the given namespace
// prefix. Returns an unsubscribe function. Registering the same function
// twice yields two independent subscriptions.
func (b *Bus) Subscribe(namespace string, fn Listener) func() {
	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = &subscription{namespace: namespace, fn: fn}
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
}

// Reset removes all subscriptions. Used on connection teardown.
func (b *Bus) Reset() {
	b.mu.Lock()
	b.subs = make(map[int]*subscription)
	b.mu.Unlock()
}
