// Package events provides the in-process event bus connecting the cycle
// engine to observers (the SSE stream, log subscribers).
package events

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// EventType identifies a kind of event.
type EventType string

const (
	CycleStarted     EventType = "cycle_started"
	CycleCompleted   EventType = "cycle_completed"
	CycleFailed      EventType = "cycle_failed"
	TradeExecuted    EventType = "trade_executed"
	TradeRefused     EventType = "trade_refused"
	PortfolioChanged EventType = "portfolio_changed"
)

// Event is one published occurrence. Data is a JSON-serializable payload
// owned by the publisher.
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data,omitempty"`
}

// Handler receives published events. Handlers must not block: publishing
// happens on the cycle's goroutine.
type Handler func(*Event)

type subscriber struct {
	id      uint64
	handler Handler
}

// Bus is a minimal synchronous publish/subscribe bus.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]subscriber
	nextID      uint64
	log         zerolog.Logger
}

// NewBus creates an event bus.
func NewBus(log zerolog.Logger) *Bus {
	return &Bus{
		subscribers: make(map[EventType][]subscriber),
		log:         log.With().Str("component", "events").Logger(),
	}
}

// Subscribe registers a handler for one event type and returns a function
// that removes it again. Short-lived subscribers (one SSE connection) must
// call it on disconnect or their handler lives for the process lifetime.
func (b *Bus) Subscribe(t EventType, h Handler) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.subscribers[t] = append(b.subscribers[t], subscriber{id: id, handler: h})

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.subscribers[t]
		for i, sub := range subs {
			if sub.id == id {
				b.subscribers[t] = append(subs[:i:i], subs[i+1:]...)
				return
			}
		}
	}
}

// Publish delivers an event to all handlers subscribed to its type. The
// timestamp is filled in when unset.
func (b *Bus) Publish(event *Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.subscribers[event.Type]))
	for _, sub := range b.subscribers[event.Type] {
		handlers = append(handlers, sub.handler)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(event)
	}

	b.log.Debug().Str("type", string(event.Type)).Int("handlers", len(handlers)).Msg("Event published")
}
