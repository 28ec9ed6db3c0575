// Package events is the engine's typed lifecycle notification bus.
//
// The orchestrator emits; subscribers observe. Emission is synchronous on
// the emitting goroutine, so delivery within one run is sequential and a
// started event is always observed before its completed counterpart.
// Subscriber panics are logged and swallowed: the engine never fails because
// of a subscriber.
package events

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Type enumerates the lifecycle notifications.
type Type string

const (
	RunStarted        Type = "run_started"
	StepStarted       Type = "step_started"
	LLMCallStarted    Type = "llm_call_started"
	LLMChunkReceived  Type = "llm_chunk_received"
	LLMCallCompleted  Type = "llm_call_completed"
	ToolCallStarted   Type = "tool_call_started"
	ToolCallCompleted Type = "tool_call_completed"
	StepCompleted     Type = "step_completed"
	RunCompleted      Type = "run_completed"
	StatusUpdate      Type = "status_update"
)

// Event is the envelope delivered to subscribers. Payload values are shared
// between subscribers and must be treated as read-only.
type Event struct {
	ID        string
	Type      Type
	AgentID   string
	TurnIndex int
	Timestamp time.Time
	Payload   interface{}
}

// Payload shapes, one per event type.

type RunStartedPayload struct {
	Goal string
}

type StepStartedPayload struct {
	TurnIndex int
}

type LLMCallStartedPayload struct {
	Model        string
	MessageCount int
	Functions    int
}

type LLMChunkPayload struct {
	Content string
}

type LLMCallCompletedPayload struct {
	Duration time.Duration
	Error    string
	Tokens   int
}

type ToolCallStartedPayload struct {
	Tool     string
	Params   map[string]interface{}
	DedupeID string
}

type ToolCallCompletedPayload struct {
	Tool     string
	DedupeID string
	Success  bool
	Duration time.Duration
	Cached   bool
}

type StepCompletedPayload struct {
	TurnIndex    int
	ExecutedTool bool
	Continue     bool
}

type RunCompletedPayload struct {
	Succeeded   bool
	FinalOutput string
	Error       string
	ErrorType   string
	TotalTurns  int
	Duration    time.Duration
}

type StatusUpdatePayload struct {
	Title        string
	Details      string
	NextStepHint string
	ProgressPct  *float64
}

// Handler observes events. Handlers run on the emitter's goroutine and must
// not block for long.
type Handler func(Event)

// Bus multicasts events to subscribers with per-subscriber isolation.
type Bus struct {
	mu       sync.RWMutex
	byType   map[Type][]Handler
	catchAll []Handler
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{byType: make(map[Type][]Handler)}
}

// Subscribe registers a handler for one event type.
func (b *Bus) Subscribe(t Type, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.byType[t] = append(b.byType[t], h)
}

// SubscribeAll registers a handler for every event type.
func (b *Bus) SubscribeAll(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.catchAll = append(b.catchAll, h)
}

// Emit delivers an event to all matching subscribers. A nil bus is valid
// and drops everything, so components can emit unconditionally.
func (b *Bus) Emit(e Event) {
	if b == nil {
		return
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	b.mu.RLock()
	typed := b.byType[e.Type]
	catchAll := b.catchAll
	b.mu.RUnlock()

	for _, h := range typed {
		b.deliver(h, e)
	}
	for _, h := range catchAll {
		b.deliver(h, e)
	}
}

func (b *Bus) deliver(h Handler, e Event) {
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("Event subscriber panicked", "event", e.Type, "agent_id", e.AgentID, "panic", r)
		}
	}()
	h(e)
}
