package eventing

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"
	"time"
)

type invoiceIssued struct {
	InvoiceID  string
	OccurredAt time.Time
}

func TestBusDeliversEnvelope(t *testing.T) {
	bus := NewInMemoryBus(log.New(io.Discard, "", 0))
	var got Envelope
	bus.Subscribe(EventTypeOf[invoiceIssued](), func(ctx context.Context, event any) error {
		env, ok := EnvelopeFromContext(ctx)
		if !ok {
			t.Fatalf("missing envelope")
		}
		got = env
		return nil
	})

	at := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	ctx := WithActor(WithCorrelationID(context.Background(), "req-1"), "alice")
	if err := bus.Publish(ctx, invoiceIssued{InvoiceID: "inv-1", OccurredAt: at}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if got.EventID == "" || got.CorrelationID != "req-1" || got.Actor != "alice" || !got.OccurredAt.Equal(at) {
		t.Fatalf("unexpected envelope %+v", got)
	}
	if got.EventType != EventType(&invoiceIssued{}) {
		t.Fatalf("unexpected type %s", got.EventType)
	}
}

func TestBusRunsAllHandlersAndReturnsFirstError(t *testing.T) {
	bus := NewInMemoryBus(log.New(io.Discard, "", 0))
	boom := errors.New("boom")
	calls := 0
	bus.Subscribe(EventTypeOf[invoiceIssued](), func(ctx context.Context, event any) error {
		calls++
		return boom
	})
	bus.Subscribe(EventTypeOf[invoiceIssued](), func(ctx context.Context, event any) error {
		calls++
		return nil
	})
	if err := bus.Publish(context.Background(), invoiceIssued{}); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected both handlers, got %d", calls)
	}
	if err := bus.Publish(context.Background(), nil); !errors.Is(err, ErrNilEvent) {
		t.Fatalf("expected ErrNilEvent, got %v", err)
	}
}

func TestWrapHandlerSkipsProcessed(t *testing.T) {
	store := NewMemoryProcessedStore()
	calls := 0
	handler := WrapHandler("notifier", func(ctx context.Context, event any) error {
		calls++
		return nil
	}, store)

	ctx := WithEnvelope(context.Background(), Envelope{EventID: "evt-1"})
	for i := 0; i < 3; i++ {
		if err := handler(ctx, invoiceIssued{}); err != nil {
			t.Fatalf("handle: %v", err)
		}
	}
	if calls != 1 {
		t.Fatalf("expected one delivery, got %d", calls)
	}
}
