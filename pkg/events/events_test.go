package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmitDeliversToTypedSubscribers(t *testing.T) {
	bus := NewBus()

	var got []Event
	bus.Subscribe(ToolCallStarted, func(e Event) { got = append(got, e) })
	bus.Subscribe(ToolCallCompleted, func(e Event) { t.Fatal("wrong type delivered") })

	bus.Emit(Event{Type: ToolCallStarted, AgentID: "a1", Payload: ToolCallStartedPayload{Tool: "add"}})

	require.Len(t, got, 1)
	assert.Equal(t, "a1", got[0].AgentID)
	assert.NotEmpty(t, got[0].ID)
	assert.False(t, got[0].Timestamp.IsZero())
	payload, ok := got[0].Payload.(ToolCallStartedPayload)
	require.True(t, ok)
	assert.Equal(t, "add", payload.Tool)
}

func TestSubscribeAllSeesEverything(t *testing.T) {
	bus := NewBus()

	var types []Type
	bus.SubscribeAll(func(e Event) { types = append(types, e.Type) })

	bus.Emit(Event{Type: RunStarted})
	bus.Emit(Event{Type: StepStarted})
	bus.Emit(Event{Type: RunCompleted})

	assert.Equal(t, []Type{RunStarted, StepStarted, RunCompleted}, types)
}

func TestPanickingSubscriberIsIsolated(t *testing.T) {
	bus := NewBus()

	delivered := 0
	bus.Subscribe(StatusUpdate, func(e Event) { panic("subscriber bug") })
	bus.Subscribe(StatusUpdate, func(e Event) { delivered++ })

	assert.NotPanics(t, func() {
		bus.Emit(Event{Type: StatusUpdate, Payload: StatusUpdatePayload{Title: "ok"}})
	})
	assert.Equal(t, 1, delivered)
}

func TestOrderingWithinEmitter(t *testing.T) {
	bus := NewBus()

	var order []Type
	bus.SubscribeAll(func(e Event) { order = append(order, e.Type) })

	bus.Emit(Event{Type: ToolCallStarted})
	bus.Emit(Event{Type: ToolCallCompleted})

	require.Equal(t, []Type{ToolCallStarted, ToolCallCompleted}, order)
}

func TestNilBusDropsEvents(t *testing.T) {
	var bus *Bus
	assert.NotPanics(t, func() {
		bus.Emit(Event{Type: RunStarted, Timestamp: time.Now()})
	})
}
