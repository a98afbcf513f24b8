package eventing

import (
	"context"
	"sync"
)

// Subscriber registers handlers.
type Subscriber interface {
	Subscribe(eventType string, handler EventHandler)
}

// ProcessedStore provides idempotency checks per consumer.
type ProcessedStore interface {
	HasProcessed(ctx context.Context, eventID, consumerName string) (bool, error)
	MarkProcessed(ctx context.Context, eventID, consumerName string) error
}

// Subscribe wraps handler with idempotency if store is provided.
func Subscribe(bus Subscriber, eventType, consumerName string, handler EventHandler, store ProcessedStore) {
	if store == nil {
		bus.Subscribe(eventType, handler)
		return
	}
	bus.Subscribe(eventType, WrapHandler(consumerName, handler, store))
}

// WrapHandler skips events the consumer already handled.
func WrapHandler(consumerName string, handler EventHandler, store ProcessedStore) EventHandler {
	return func(ctx context.Context, event any) error {
		env, ok := EnvelopeFromContext(ctx)
		if !ok || env.EventID == "" {
			return handler(ctx, event)
		}
		processed, err := store.HasProcessed(ctx, env.EventID, consumerName)
		if err != nil {
			return err
		}
		if processed {
			return nil
		}
		if err := handler(ctx, event); err != nil {
			return err
		}
		return store.MarkProcessed(ctx, env.EventID, consumerName)
	}
}

// MemoryProcessedStore keeps processed markers in memory.
type MemoryProcessedStore struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

// NewMemoryProcessedStore creates an empty store.
func NewMemoryProcessedStore() *MemoryProcessedStore {
	return &MemoryProcessedStore{seen: make(map[string]struct{})}
}

func (s *MemoryProcessedStore) HasProcessed(ctx context.Context, eventID, consumerName string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.seen[consumerName+"/"+eventID]
	return ok, nil
}

func (s *MemoryProcessedStore) MarkProcessed(ctx context.Context, eventID, consumerName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen[consumerName+"/"+eventID] = struct{}{}
	return nil
}
