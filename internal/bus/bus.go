// Package bus provides the in-process event bus for conversation events.
package bus

import (
	"context"
	"sync"
	"time"
)

// Event kinds published on the bus.
const (
	EventInboundObserved = "inbound_observed"
	EventReplyAppended   = "reply_appended"
	EventReplyDegraded   = "reply_degraded"
)

// Event describes something that happened to a conversation.
type Event struct {
	Kind           string    `json:"kind"`
	ConversationID string    `json:"conversation_id"`
	MessageID      string    `json:"message_id,omitempty"`
	GeneratedBy    string    `json:"generated_by,omitempty"`
	Text           string    `json:"text,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// Bus fans events out to subscribers without blocking the publisher.
type Bus struct {
	events chan Event
	subs   []func(Event)
	mu     sync.RWMutex
}

// New creates an event bus.
func New() *Bus {
	return &Bus{
		events: make(chan Event, 100),
	}
}

// Publish enqueues an event. Drops the event when the queue is full so the
// reply loop never stalls on a slow subscriber.
func (b *Bus) Publish(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	select {
	case b.events <- ev:
	default:
	}
}

// Subscribe registers a callback for all events.
func (b *Bus) Subscribe(callback func(Event)) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.subs = append(b.subs, callback)
}

// Dispatch runs the event dispatcher. This should be run as a goroutine.
func (b *Bus) Dispatch(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-b.events:
			b.mu.RLock()
			subs := b.subs
			b.mu.RUnlock()

			for _, cb := range subs {
				cb(ev)
			}
		}
	}
}

// Pending returns the number of queued events.
func (b *Bus) Pending() int {
	return len(b.events)
}
