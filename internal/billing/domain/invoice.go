package billing

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ItemKind classifies invoice lines.
type ItemKind string

const (
	ItemConsumption ItemKind = "consumption"
	ItemFixedFee    ItemKind = "fixed_fee"
	ItemCirculation ItemKind = "circulation"
	ItemManual      ItemKind = "manual"
)

// ReadingSnapshot is a frozen copy of the two readings behind a delta.
type ReadingSnapshot struct {
	MeterID        string          `json:"meter_id"`
	MeterSerial    string          `json:"meter_serial,omitempty"`
	Zone           string          `json:"zone,omitempty"`
	StartReadingID string          `json:"start_reading_id"`
	StartValue     decimal.Decimal `json:"start_value"`
	StartDate      time.Time       `json:"start_date"`
	EndReadingID   string          `json:"end_reading_id"`
	EndValue       decimal.Decimal `json:"end_value"`
	EndDate        time.Time       `json:"end_date"`
	Quantity       decimal.Decimal `json:"quantity"`
}

// TariffSnapshot is a frozen copy of the tariff version used for pricing.
type TariffSnapshot struct {
	TariffID      string          `json:"tariff_id"`
	Name          string          `json:"name"`
	Version       int             `json:"version"`
	Kind          string          `json:"kind"`
	Currency      string          `json:"currency"`
	ZoneID        string          `json:"zone_id,omitempty"`
	Rate          decimal.Decimal `json:"rate"`
	Configuration json.RawMessage `json:"configuration,omitempty"`
}

// CirculationSnapshot is a frozen copy of the allocation behind a circulation line.
type CirculationSnapshot struct {
	BuildingID     string          `json:"building_id"`
	Month          time.Time       `json:"month"`
	Season         string          `json:"season"`
	Method         string          `json:"method"`
	CirculationKWh decimal.Decimal `json:"circulation_kwh"`
	BuildingCost   decimal.Decimal `json:"building_cost"`
	PropertyArea   decimal.Decimal `json:"property_area"`
}

// Snapshot holds everything an item was computed from.
type Snapshot struct {
	Readings    []ReadingSnapshot    `json:"readings,omitempty"`
	Tariff      *TariffSnapshot      `json:"tariff,omitempty"`
	Circulation *CirculationSnapshot `json:"circulation,omitempty"`
	FrozenAt    time.Time            `json:"frozen_at,omitempty"`
}

// InvoiceItem is one line of an invoice.
type InvoiceItem struct {
	ID           string
	Kind         ItemKind
	Description  string
	Unit         string
	Quantity     decimal.Decimal
	UnitPrice    decimal.Decimal
	Total        decimal.Decimal
	MeterID      string
	Zone         string
	TariffZoneID string
	Snapshot     Snapshot
}

// NewItem builds an item and computes its total rounded to cents.
func NewItem(id string, kind ItemKind, description, unit string, quantity, unitPrice decimal.Decimal) (InvoiceItem, error) {
	if id == "" || description == "" {
		return InvoiceItem{}, fmt.Errorf("%w: missing id or description", ErrInvalidItem)
	}
	if quantity.IsNegative() || unitPrice.IsNegative() {
		return InvoiceItem{}, fmt.Errorf("%w: negative quantity or price", ErrInvalidItem)
	}
	return InvoiceItem{
		ID:          id,
		Kind:        kind,
		Description: description,
		Unit:        unit,
		Quantity:    quantity,
		UnitPrice:   unitPrice,
		Total:       quantity.Mul(unitPrice).Round(2),
	}, nil
}

// Invoice bills one tenant for one period. Only drafts can be edited or deleted.
type Invoice struct {
	ID               string
	TenantID         string
	PropertyID       string
	PeriodStart      time.Time
	PeriodEnd        time.Time
	Status           Status
	Currency         string
	Items            []InvoiceItem
	TotalAmount      decimal.Decimal
	SnapshotHash     string
	CreatedAt        time.Time
	UpdatedAt        time.Time
	FinalizedAt      time.Time
	PaidAt           time.Time
	PaidAmount       decimal.Decimal
	PaymentReference string
}

// NewDraft builds an empty draft invoice.
func NewDraft(id, tenantID, propertyID string, start, end time.Time, currency string, now time.Time) (*Invoice, error) {
	if tenantID == "" {
		return nil, ErrEmptyTenantID
	}
	if end.Before(start) {
		return nil, ErrInvalidPeriod
	}
	return &Invoice{
		ID:          id,
		TenantID:    tenantID,
		PropertyID:  propertyID,
		PeriodStart: start,
		PeriodEnd:   end,
		Status:      StatusDraft,
		Currency:    currency,
		TotalAmount: decimal.Zero,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// AddItem appends an item to a draft.
func (i *Invoice) AddItem(item InvoiceItem, now time.Time) error {
	if i.Status != StatusDraft {
		return ErrNotDraft
	}
	if item.ID == "" || item.Quantity.IsNegative() || item.UnitPrice.IsNegative() {
		return ErrInvalidItem
	}
	i.Items = append(i.Items, item)
	i.recalculate(now)
	return nil
}

// RemoveItem deletes an item from a draft.
func (i *Invoice) RemoveItem(itemID string, now time.Time) error {
	if i.Status != StatusDraft {
		return ErrNotDraft
	}
	for idx, item := range i.Items {
		if item.ID == itemID {
			i.Items = append(i.Items[:idx:idx], i.Items[idx+1:]...)
			i.recalculate(now)
			return nil
		}
	}
	return ErrItemNotFound
}

// UpdateItem changes quantity and unit price of a draft item.
func (i *Invoice) UpdateItem(itemID string, quantity, unitPrice decimal.Decimal, now time.Time) error {
	if i.Status != StatusDraft {
		return ErrNotDraft
	}
	if quantity.IsNegative() || unitPrice.IsNegative() {
		return ErrInvalidItem
	}
	for idx := range i.Items {
		if i.Items[idx].ID == itemID {
			i.Items[idx].Quantity = quantity
			i.Items[idx].UnitPrice = unitPrice
			i.Items[idx].Total = quantity.Mul(unitPrice).Round(2)
			i.recalculate(now)
			return nil
		}
	}
	return ErrItemNotFound
}

// Finalize freezes the item snapshots and records their hash.
func (i *Invoice) Finalize(hash string, now time.Time) error {
	if err := ValidateTransition(i.Status, StatusFinalized); err != nil {
		return err
	}
	for idx := range i.Items {
		i.Items[idx].Snapshot.FrozenAt = now
	}
	i.Status = StatusFinalized
	i.SnapshotHash = hash
	i.FinalizedAt = now
	i.UpdatedAt = now
	return nil
}

// MarkPaid records a payment on a finalized invoice.
func (i *Invoice) MarkPaid(amount decimal.Decimal, reference string, now time.Time) error {
	if err := ValidateTransition(i.Status, StatusPaid); err != nil {
		return err
	}
	if !amount.IsPositive() {
		return ErrInvalidPayment
	}
	i.Status = StatusPaid
	i.PaidAmount = amount
	i.PaymentReference = reference
	i.PaidAt = now
	i.UpdatedAt = now
	return nil
}

// CanDelete reports whether the invoice may be removed.
func (i *Invoice) CanDelete() error {
	if i.Status != StatusDraft {
		return ErrNotDraft
	}
	return nil
}

func (i *Invoice) recalculate(now time.Time) {
	total := decimal.Zero
	for _, item := range i.Items {
		total = total.Add(item.Total)
	}
	i.TotalAmount = total
	i.UpdatedAt = now
}

// Recalculate refreshes the total from the items.
func (i *Invoice) Recalculate(now time.Time) {
	i.recalculate(now)
}

// Clone returns a deep copy.
func (i *Invoice) Clone() *Invoice {
	if i == nil {
		return nil
	}
	clone := *i
	clone.Items = make([]InvoiceItem, len(i.Items))
	for idx, item := range i.Items {
		clone.Items[idx] = item.clone()
	}
	return &clone
}

func (item InvoiceItem) clone() InvoiceItem {
	out := item
	out.Snapshot.Readings = append([]ReadingSnapshot(nil), item.Snapshot.Readings...)
	if item.Snapshot.Tariff != nil {
		t := *item.Snapshot.Tariff
		t.Configuration = append(json.RawMessage(nil), item.Snapshot.Tariff.Configuration...)
		out.Snapshot.Tariff = &t
	}
	if item.Snapshot.Circulation != nil {
		c := *item.Snapshot.Circulation
		out.Snapshot.Circulation = &c
	}
	return out
}
