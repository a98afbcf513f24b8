package eventing

import (
	"context"
	"errors"
	"log"
	"reflect"
	"sync"
)

// EventHandler handles a published event.
type EventHandler func(ctx context.Context, event any) error

// ErrNilEvent is returned when a nil event is published.
var ErrNilEvent = errors.New("eventing: nil event")

// InMemoryBus delivers events synchronously to subscribed handlers. Each
// handler sees the event envelope in its context.
type InMemoryBus struct {
	mu       sync.RWMutex
	handlers map[string][]EventHandler
	logger   *log.Logger
}

// NewInMemoryBus constructs a bus.
func NewInMemoryBus(logger *log.Logger) *InMemoryBus {
	if logger == nil {
		logger = log.Default()
	}
	return &InMemoryBus{
		handlers: make(map[string][]EventHandler),
		logger:   logger,
	}
}

// Publish dispatches an event to all handlers of its type. Handler errors are
// logged and the first one is returned after every handler ran.
func (b *InMemoryBus) Publish(ctx context.Context, event any) error {
	if event == nil {
		return ErrNilEvent
	}
	env, err := BuildEnvelope(event, MetaFromContext(ctx))
	if err != nil {
		return err
	}

	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.handlers[env.EventType]...)
	b.mu.RUnlock()

	ctx = WithEnvelope(ctx, env)
	var firstErr error
	for _, handler := range handlers {
		if err := handler(ctx, event); err != nil {
			b.logger.Printf("event handler failed: type=%s id=%s err=%v", env.EventType, env.EventID, err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// Subscribe registers a handler for an event type.
func (b *InMemoryBus) Subscribe(eventType string, handler EventHandler) {
	if eventType == "" || handler == nil {
		return
	}
	b.mu.Lock()
	b.handlers[eventType] = append(b.handlers[eventType], handler)
	b.mu.Unlock()
}

// EventType returns the qualified type name of an event instance.
func EventType(event any) string {
	if event == nil {
		return ""
	}
	t := reflect.TypeOf(event)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.String()
}

// EventTypeOf returns the qualified type name of T.
func EventTypeOf[T any]() string {
	return reflect.TypeOf((*T)(nil)).Elem().String()
}
