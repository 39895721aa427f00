// Package events provides the per-provider event emitter. Each provider owns
// its own Emitter instance, constructed at provider creation time; there is
// no process-wide registry.
package events

import (
	"sync"

	"github.com/google/uuid"

	"triggerskit/internal/common/logging"
)

// Handler receives the payload of an emitted event
type Handler func(payload interface{})

type subscription struct {
	id string
	fn Handler
}

// Emitter delivers named events to subscribed handlers. Delivery is
// synchronous and in subscription order.
type Emitter struct {
	mu       sync.RWMutex
	handlers map[string][]subscription
	logger   logging.Logger
}

// New creates an emitter
func New(logger logging.Logger) *Emitter {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &Emitter{
		handlers: make(map[string][]subscription),
		logger:   logger,
	}
}

// On subscribes a handler to an event and returns a subscription id for Off
func (e *Emitter) On(event string, fn Handler) string {
	id := uuid.NewString()

	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers[event] = append(e.handlers[event], subscription{id: id, fn: fn})

	return id
}

// Off removes a subscription by id. Unknown ids are ignored.
func (e *Emitter) Off(event, id string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	subs := e.handlers[event]
	for i, sub := range subs {
		if sub.id == id {
			e.handlers[event] = append(subs[:i:i], subs[i+1:]...)
			return
		}
	}
}

// Emit delivers the payload to every handler subscribed to the event, in
// subscription order, and returns the number of handlers invoked.
func (e *Emitter) Emit(event string, payload interface{}) int {
	e.mu.RLock()
	subs := make([]subscription, len(e.handlers[event]))
	copy(subs, e.handlers[event])
	e.mu.RUnlock()

	if len(subs) == 0 {
		return 0
	}

	deliveryID := uuid.NewString()
	e.logger.Debug("Emitting event",
		logging.Field{Key: "event", Value: event},
		logging.Field{Key: "delivery_id", Value: deliveryID},
		logging.Field{Key: "handlers", Value: len(subs)},
	)

	for _, sub := range subs {
		sub.fn(payload)
	}

	return len(subs)
}

// ListenerCount returns the number of handlers subscribed to an event
func (e *Emitter) ListenerCount(event string) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.handlers[event])
}
