package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	billing "utility-billing/internal/billing/domain"
)

type periodKey struct {
	tenantID string
	start    int64
	end      int64
}

func keyOf(tenantID string, start, end time.Time) periodKey {
	return periodKey{tenantID: tenantID, start: start.UnixNano(), end: end.UnixNano()}
}

// InvoiceRepository stores invoices in memory with a unique (tenant, period) index.
type InvoiceRepository struct {
	mu       sync.RWMutex
	invoices map[string]*billing.Invoice
	byPeriod map[periodKey]string
}

// NewInvoiceRepository creates an empty repository.
func NewInvoiceRepository() *InvoiceRepository {
	return &InvoiceRepository{
		invoices: make(map[string]*billing.Invoice),
		byPeriod: make(map[periodKey]string),
	}
}

// ExistingInvoice returns the invoice covering exactly this tenant and period, or nil.
func (r *InvoiceRepository) ExistingInvoice(ctx context.Context, tenantID string, start, end time.Time) (*billing.Invoice, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byPeriod[keyOf(tenantID, start, end)]
	if !ok {
		return nil, nil
	}
	return r.invoices[id].Clone(), nil
}

// Save inserts a new invoice.
func (r *InvoiceRepository) Save(ctx context.Context, invoice *billing.Invoice) error {
	if invoice == nil {
		return billing.ErrNilInvoice
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	key := keyOf(invoice.TenantID, invoice.PeriodStart, invoice.PeriodEnd)
	if existing, ok := r.byPeriod[key]; ok {
		return &billing.DuplicateInvoiceError{ExistingID: existing}
	}
	if _, ok := r.invoices[invoice.ID]; ok {
		return &billing.DuplicateInvoiceError{ExistingID: invoice.ID}
	}
	r.invoices[invoice.ID] = invoice.Clone()
	r.byPeriod[key] = invoice.ID
	return nil
}

// Get returns an invoice by id, or nil.
func (r *InvoiceRepository) Get(ctx context.Context, id string) (*billing.Invoice, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.invoices[id].Clone(), nil
}

// Update replaces a stored invoice whose status is still from.
func (r *InvoiceRepository) Update(ctx context.Context, invoice *billing.Invoice, from billing.Status) error {
	if invoice == nil {
		return billing.ErrNilInvoice
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.invoices[invoice.ID]
	if !ok {
		return billing.ErrInvoiceNotFound
	}
	if current.Status != from {
		return fmt.Errorf("%w: stored status %s, expected %s", billing.ErrInvalidTransition, current.Status, from)
	}
	r.invoices[invoice.ID] = invoice.Clone()
	return nil
}

// Delete removes a draft invoice.
func (r *InvoiceRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.invoices[id]
	if !ok {
		return billing.ErrInvoiceNotFound
	}
	if err := current.CanDelete(); err != nil {
		return err
	}
	delete(r.invoices, id)
	delete(r.byPeriod, keyOf(current.TenantID, current.PeriodStart, current.PeriodEnd))
	return nil
}

// DraftCount returns the number of draft invoices.
func (r *InvoiceRepository) DraftCount(ctx context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, inv := range r.invoices {
		if inv.Status == billing.StatusDraft {
			n++
		}
	}
	return n, nil
}
