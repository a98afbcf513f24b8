package application

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	billing "utility-billing/internal/billing/domain"
	"utility-billing/internal/observability/metrics"
)

// InvoiceServiceOption configures the invoice service.
type InvoiceServiceOption func(*InvoiceService)

// WithInvoicePublisher sets the event publisher.
func WithInvoicePublisher(p Publisher) InvoiceServiceOption {
	return func(s *InvoiceService) {
		s.publisher = p
	}
}

// WithInvoiceClock overrides the clock.
func WithInvoiceClock(c Clock) InvoiceServiceOption {
	return func(s *InvoiceService) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithInvoiceLogger sets the logger.
func WithInvoiceLogger(l *log.Logger) InvoiceServiceOption {
	return func(s *InvoiceService) {
		if l != nil {
			s.logger = l
		}
	}
}

// InvoiceService handles the invoice lifecycle after generation.
type InvoiceService struct {
	repo      InvoiceStore
	publisher Publisher
	clock     Clock
	logger    *log.Logger
}

// NewInvoiceService constructs an invoice service.
func NewInvoiceService(repo InvoiceStore, opts ...InvoiceServiceOption) (*InvoiceService, error) {
	if repo == nil {
		return nil, errors.New("invoice service: nil repo")
	}
	s := &InvoiceService{
		repo:   repo,
		clock:  SystemClock{},
		logger: log.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

// Get returns an invoice by id.
func (s *InvoiceService) Get(ctx context.Context, id string) (*billing.Invoice, error) {
	inv, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if inv == nil {
		return nil, billing.ErrInvoiceNotFound
	}
	return inv, nil
}

// Finalize freezes a draft and stamps its snapshot hash.
func (s *InvoiceService) Finalize(ctx context.Context, id string) (*billing.Invoice, error) {
	start := time.Now()
	result := metrics.ResultSuccess
	defer func() {
		metrics.ObserveInvoiceFinalize(result, time.Since(start))
	}()

	inv, err := s.Get(ctx, id)
	if err != nil {
		result = metrics.ResultError
		return nil, err
	}
	now := s.clock.Now()
	hash, err := computeSnapshotHash(inv, now)
	if err != nil {
		result = metrics.ResultError
		return nil, err
	}
	if err := inv.Finalize(hash, now); err != nil {
		result = metrics.ResultError
		return nil, err
	}
	if err := s.repo.Update(ctx, inv, billing.StatusDraft); err != nil {
		result = metrics.ResultError
		return nil, err
	}
	s.logger.Printf("invoice finalized: id=%s tenant=%s hash=%s", inv.ID, inv.TenantID, hash)
	s.publish(ctx, InvoiceFinalized{
		InvoiceID:    inv.ID,
		TenantID:     inv.TenantID,
		Total:        inv.TotalAmount,
		Currency:     inv.Currency,
		SnapshotHash: hash,
		OccurredAt:   now,
	})
	return inv, nil
}

// MarkPaid registers a payment on a finalized invoice.
func (s *InvoiceService) MarkPaid(ctx context.Context, id string, amount decimal.Decimal, reference string) (*billing.Invoice, error) {
	result := metrics.ResultSuccess
	defer func() {
		metrics.IncInvoicePayment(result)
	}()

	inv, err := s.Get(ctx, id)
	if err != nil {
		result = metrics.ResultError
		return nil, err
	}
	now := s.clock.Now()
	if err := inv.MarkPaid(amount, reference, now); err != nil {
		result = metrics.ResultError
		return nil, err
	}
	if err := s.repo.Update(ctx, inv, billing.StatusFinalized); err != nil {
		result = metrics.ResultError
		return nil, err
	}
	s.logger.Printf("invoice paid: id=%s amount=%s ref=%s", inv.ID, amount.StringFixed(2), reference)
	s.publish(ctx, InvoicePaid{
		InvoiceID:  inv.ID,
		TenantID:   inv.TenantID,
		Amount:     amount,
		Reference:  reference,
		OccurredAt: now,
	})
	return inv, nil
}

// Delete removes a draft invoice.
func (s *InvoiceService) Delete(ctx context.Context, id string) error {
	inv, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := inv.CanDelete(); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Printf("invoice deleted: id=%s tenant=%s", inv.ID, inv.TenantID)
	return nil
}

// ItemInput describes a manual line.
type ItemInput struct {
	Description string
	Unit        string
	Quantity    decimal.Decimal
	UnitPrice   decimal.Decimal
}

// AddItem appends a manual line to a draft.
func (s *InvoiceService) AddItem(ctx context.Context, id string, in ItemInput) (*billing.Invoice, error) {
	return s.editDraft(ctx, id, func(inv *billing.Invoice, now time.Time) error {
		item, err := billing.NewItem(uuid.NewString(), billing.ItemManual, in.Description, in.Unit, in.Quantity, in.UnitPrice)
		if err != nil {
			return err
		}
		return inv.AddItem(item, now)
	})
}

// RemoveItem deletes a line from a draft.
func (s *InvoiceService) RemoveItem(ctx context.Context, id, itemID string) (*billing.Invoice, error) {
	return s.editDraft(ctx, id, func(inv *billing.Invoice, now time.Time) error {
		return inv.RemoveItem(itemID, now)
	})
}

// UpdateItem changes quantity and price of a draft line.
func (s *InvoiceService) UpdateItem(ctx context.Context, id, itemID string, quantity, unitPrice decimal.Decimal) (*billing.Invoice, error) {
	return s.editDraft(ctx, id, func(inv *billing.Invoice, now time.Time) error {
		return inv.UpdateItem(itemID, quantity, unitPrice, now)
	})
}

func (s *InvoiceService) editDraft(ctx context.Context, id string, edit func(*billing.Invoice, time.Time) error) (*billing.Invoice, error) {
	inv, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := edit(inv, s.clock.Now()); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, inv, billing.StatusDraft); err != nil {
		return nil, err
	}
	return inv, nil
}

func (s *InvoiceService) publish(ctx context.Context, event any) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Printf("billing event publish failed: %T: %v", event, err)
	}
}

type hashedItem struct {
	ID          string           `json:"id"`
	Kind        billing.ItemKind `json:"kind"`
	Description string           `json:"description"`
	Quantity    string           `json:"quantity"`
	UnitPrice   string           `json:"unit_price"`
	Total       string           `json:"total"`
	Snapshot    billing.Snapshot `json:"snapshot"`
}

func computeSnapshotHash(inv *billing.Invoice, frozenAt time.Time) (string, error) {
	if inv == nil {
		return "", billing.ErrNilInvoice
	}
	items := make([]hashedItem, 0, len(inv.Items))
	for _, item := range inv.Items {
		snap := item.Snapshot
		snap.FrozenAt = frozenAt
		items = append(items, hashedItem{
			ID:          item.ID,
			Kind:        item.Kind,
			Description: item.Description,
			Quantity:    item.Quantity.String(),
			UnitPrice:   item.UnitPrice.String(),
			Total:       item.Total.StringFixed(2),
			Snapshot:    snap,
		})
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].ID < items[j].ID
	})
	payload := struct {
		InvoiceID   string       `json:"invoice_id"`
		TenantID    string       `json:"tenant_id"`
		PeriodStart time.Time    `json:"period_start"`
		PeriodEnd   time.Time    `json:"period_end"`
		Currency    string       `json:"currency"`
		Total       string       `json:"total"`
		Items       []hashedItem `json:"items"`
	}{
		InvoiceID:   inv.ID,
		TenantID:    inv.TenantID,
		PeriodStart: inv.PeriodStart,
		PeriodEnd:   inv.PeriodEnd,
		Currency:    inv.Currency,
		Total:       inv.TotalAmount.StringFixed(2),
		Items:       items,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:]), nil
}
