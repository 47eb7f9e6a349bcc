package events

import (
	"sync"

	"go.uber.org/zap"
)

// Event is implemented by all domain events.
type Event interface {
	Type() string
}

// Handler processes a published event.
type Handler func(event Event)

// Publisher publishes domain events to registered handlers.
type Publisher interface {
	Publish(event Event)
}

// Bus is an in-process event bus. Handlers run synchronously in
// registration order; a handler must not block on external I/O.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
	logger   *zap.Logger
}

// NewBus creates a new event bus.
func NewBus(logger *zap.Logger) *Bus {
	return &Bus{
		handlers: make(map[string][]Handler),
		logger:   logger,
	}
}

// Subscribe registers a handler for an event type.
func (b *Bus) Subscribe(eventType string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventType] = append(b.handlers[eventType], h)
}

// Publish delivers an event to all handlers registered for its type.
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	handlers := b.handlers[event.Type()]
	b.mu.RUnlock()

	for _, h := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					b.logger.Error("event handler panicked",
						zap.String("event_type", event.Type()),
						zap.Any("panic", r),
					)
				}
			}()
			h(event)
		}()
	}
}
