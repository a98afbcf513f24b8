package application

import (
	"context"
	"sync"
	"time"

	billing "utility-billing/internal/billing/domain"
	circulation "utility-billing/internal/circulation/domain"
	portfolio "utility-billing/internal/portfolio/domain"
	readings "utility-billing/internal/readings/domain"
	tariffs "utility-billing/internal/tariffs/domain"
)

// ReadingStore loads meter readings.
type ReadingStore interface {
	PriorReading(ctx context.Context, meterID, zone string, before time.Time) (*readings.MeterReading, error)
	ReadingsInPeriod(ctx context.Context, meterID string, start, end time.Time) ([]readings.MeterReading, error)
}

// TariffStore returns the tariff version active at an instant, or nil.
type TariffStore interface {
	TariffFor(ctx context.Context, providerID string, service readings.ServiceType, at time.Time) (*tariffs.Tariff, error)
}

// InvoiceStore persists invoices. Save must reject a second invoice for the
// same tenant and period with ErrDuplicateInvoice; Update must fail with
// ErrInvalidTransition when the stored status is no longer from.
type InvoiceStore interface {
	ExistingInvoice(ctx context.Context, tenantID string, start, end time.Time) (*billing.Invoice, error)
	Save(ctx context.Context, invoice *billing.Invoice) error
	Get(ctx context.Context, id string) (*billing.Invoice, error)
	Update(ctx context.Context, invoice *billing.Invoice, from billing.Status) error
	Delete(ctx context.Context, id string) error
}

// Directory resolves tenants to properties, meters and buildings.
type Directory interface {
	PropertyOfTenant(ctx context.Context, tenantID string) (*portfolio.Property, error)
	MetersOf(ctx context.Context, propertyID string) ([]readings.Meter, error)
	Building(ctx context.Context, buildingID string) (*portfolio.Building, error)
}

// CirculationShares provides a property's circulation cost for a month.
type CirculationShares interface {
	ShareFor(ctx context.Context, buildingID, propertyID string, month time.Time) (*circulation.Allocation, circulation.Share, error)
}

// Locker serializes work on a key. The returned func releases the lock.
type Locker interface {
	Lock(ctx context.Context, key string) (func(), error)
}

// Publisher emits billing events.
type Publisher interface {
	Publish(ctx context.Context, event any) error
}

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// SystemClock uses time.Now.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// KeyedLocker is an in-process Locker with one mutex per key.
type KeyedLocker struct {
	mu    sync.Mutex
	locks map[string]*keyedEntry
}

type keyedEntry struct {
	ch   chan struct{}
	refs int
}

// NewKeyedLocker creates an in-process locker.
func NewKeyedLocker() *KeyedLocker {
	return &KeyedLocker{locks: make(map[string]*keyedEntry)}
}

// Lock blocks until key is free or ctx is done.
func (l *KeyedLocker) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	e, ok := l.locks[key]
	if !ok {
		e = &keyedEntry{ch: make(chan struct{}, 1)}
		l.locks[key] = e
	}
	e.refs++
	l.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(key, e)
		return nil, ctx.Err()
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.ch
			l.release(key, e)
		})
	}, nil
}

func (l *KeyedLocker) release(key string, e *keyedEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.locks, key)
	}
}
