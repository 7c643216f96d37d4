package orchestrator

import (
	"sync"
	"time"

	"github.com/Angleito/Seiron-sub010/internal/domain"
)

// EventType enumerates the orchestrator's public event bus topics.
type EventType string

const (
	EventIntentReceived      EventType = "intent_received"
	EventTaskStarted         EventType = "task_started"
	EventTaskCompleted       EventType = "task_completed"
	EventAgentStatusChanged  EventType = "agent_status_changed"
	EventErrorOccurred       EventType = "error_occurred"
	EventAdaptersInitialized EventType = "adapters_initialized"
	EventAdapterError        EventType = "adapter_error"
)

// Event is the payload delivered to every listener. Only the fields
// relevant to Type are populated; the rest are zero values.
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Intent    *domain.Intent         `json:"intent,omitempty"`
	Task      *domain.Task           `json:"task,omitempty"`
	Agent     *domain.Agent          `json:"agent,omitempty"`
	Result    *domain.TaskResult     `json:"result,omitempty"`
	AgentID   string                 `json:"agentId,omitempty"`
	FromState string                 `json:"from,omitempty"`
	ToState   string                 `json:"to,omitempty"`
	Family    domain.AdapterFamily   `json:"family,omitempty"`
	Err       error                  `json:"-"`
	Context   map[string]interface{} `json:"context,omitempty"`
}

// EventHandler receives events for the type(s) it was registered under.
type EventHandler func(Event)

// eventBus is a registry of listeners per event kind, invoked on a
// separate goroutine per emission so a slow or panicking listener can
// never stall the pipeline.
type eventBus struct {
	mu        sync.RWMutex
	listeners map[EventType][]EventHandler
}

func newEventBus() *eventBus {
	return &eventBus{listeners: make(map[EventType][]EventHandler)}
}

// on registers handler for eventType.
func (b *eventBus) on(eventType EventType, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners[eventType] = append(b.listeners[eventType], handler)
}

// emit dispatches evt to every listener of evt.Type without blocking the
// caller; a panicking listener is recovered and dropped silently, since
// listener failures must never propagate into the pipeline.
func (b *eventBus) emit(evt Event) {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.listeners[evt.Type]...)
	b.mu.RUnlock()
	for _, h := range handlers {
		go func(h EventHandler) {
			defer func() { recover() }()
			h(evt)
		}(h)
	}
}
