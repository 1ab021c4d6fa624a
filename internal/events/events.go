package events

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Wildcard subscribes a handler to every event type.
const Wildcard = "*"

// Event represents a lightweight domain event.
type Event struct {
	ID        int64
	Type      string
	Payload   interface{}
	CreatedAt time.Time
}

// EventHandler reacts to an event.
type EventHandler func(event Event) error

// EventBus provides in-process pub/sub for events.
type EventBus struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
	seq         atomic.Int64
	logger      zerolog.Logger
}

// NewEventBus constructs an empty bus.
func NewEventBus(logger zerolog.Logger) *EventBus {
	return &EventBus{
		subscribers: make(map[string][]EventHandler),
		logger:      logger.With().Str("component", "events").Logger(),
	}
}

// Subscribe registers a handler for a given event type, or Wildcard for all.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Publish notifies subscribers of the event type.
func (b *EventBus) Publish(eventType string, payload interface{}) {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[eventType]...)
	handlers = append(handlers, b.subscribers[Wildcard]...)
	b.mu.RUnlock()

	if len(handlers) == 0 {
		return
	}

	event := Event{
		ID:        b.seq.Add(1),
		Type:      eventType,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	}

	for _, handler := range handlers {
		// Handlers run synchronously; caller decides concurrency model.
		if err := handler(event); err != nil {
			b.logger.Warn().Err(err).Str("type", eventType).Int64("event_id", event.ID).Msg("event handler failed")
		}
	}
}
