package events

import (
	"context"
	"sync"
)

// Handler consumes one event. Handlers run on the publishing goroutine and
// should hand slow work off themselves.
type Handler func(ctx context.Context, event *Event)

// Dispatcher is an in-process publisher that fans events out to subscribed
// handlers. A handler subscribed to TypeAll receives every event.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string][]subscription
	nextID   int
	closed   bool
}

// TypeAll subscribes a handler to every event type.
const TypeAll = "*"

type subscription struct {
	id      int
	handler Handler
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[string][]subscription)}
}

// Subscribe registers a handler for one event type and returns a function
// that removes the subscription.
func (d *Dispatcher) Subscribe(eventType string, handler Handler) (unsubscribe func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.nextID++
	id := d.nextID
	d.handlers[eventType] = append(d.handlers[eventType], subscription{id: id, handler: handler})

	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()

		subs := d.handlers[eventType]
		for i, sub := range subs {
			if sub.id == id {
				d.handlers[eventType] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
	}
}

// Publish invokes every handler subscribed to the event's type, then every
// handler subscribed to TypeAll. A panicking handler does not stop the rest.
func (d *Dispatcher) Publish(ctx context.Context, event *Event) error {
	d.mu.RLock()
	if d.closed {
		d.mu.RUnlock()
		return nil
	}
	subs := make([]subscription, 0, len(d.handlers[event.Type])+len(d.handlers[TypeAll]))
	subs = append(subs, d.handlers[event.Type]...)
	subs = append(subs, d.handlers[TypeAll]...)
	d.mu.RUnlock()

	for _, sub := range subs {
		invoke(ctx, sub.handler, event)
	}
	return nil
}

func invoke(ctx context.Context, handler Handler, event *Event) {
	defer func() {
		_ = recover()
	}()
	handler(ctx, event)
}

// Close drops all subscriptions. Publish becomes a no-op.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.closed = true
	d.handlers = make(map[string][]subscription)
	return nil
}
