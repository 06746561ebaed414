package events

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestPublishDeliversToSubscribedType(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	var got []*Event
	bus.Subscribe(TradeExecuted, func(e *Event) { got = append(got, e) })
	bus.Subscribe(CycleCompleted, func(e *Event) { t.Fatal("wrong type delivered") })

	bus.Publish(&Event{Type: TradeExecuted, Data: "005930"})

	assert.Len(t, got, 1)
	assert.Equal(t, TradeExecuted, got[0].Type)
	assert.Equal(t, "005930", got[0].Data)
	assert.False(t, got[0].Timestamp.IsZero(), "timestamp filled in on publish")
}

func TestPublishMultipleHandlers(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	count := 0
	bus.Subscribe(CycleStarted, func(e *Event) { count++ })
	bus.Subscribe(CycleStarted, func(e *Event) { count++ })

	bus.Publish(&Event{Type: CycleStarted})
	assert.Equal(t, 2, count)
}

func TestPublishWithoutSubscribersIsNoop(t *testing.T) {
	bus := NewBus(zerolog.Nop())
	assert.NotPanics(t, func() {
		bus.Publish(&Event{Type: CycleFailed})
	})
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	count := 0
	unsubscribe := bus.Subscribe(TradeExecuted, func(e *Event) { count++ })
	bus.Subscribe(TradeExecuted, func(e *Event) { count += 10 })

	bus.Publish(&Event{Type: TradeExecuted})
	assert.Equal(t, 11, count)

	unsubscribe()
	bus.Publish(&Event{Type: TradeExecuted})
	assert.Equal(t, 21, count, "only the remaining handler fires")

	// Second call is a no-op, not a panic or a wrong removal.
	assert.NotPanics(t, unsubscribe)
	bus.Publish(&Event{Type: TradeExecuted})
	assert.Equal(t, 31, count)
}
