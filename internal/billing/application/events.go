package application

import (
	"time"

	"github.com/shopspring/decimal"
)

// InvoiceGenerated is emitted when a draft invoice is stored.
type InvoiceGenerated struct {
	InvoiceID   string
	TenantID    string
	PeriodStart time.Time
	PeriodEnd   time.Time
	Total       decimal.Decimal
	Currency    string
	OccurredAt  time.Time
}

// InvoiceFinalized is emitted when an invoice is frozen.
type InvoiceFinalized struct {
	InvoiceID    string
	TenantID     string
	Total        decimal.Decimal
	Currency     string
	SnapshotHash string
	OccurredAt   time.Time
}

// InvoicePaid is emitted when a payment is registered.
type InvoicePaid struct {
	InvoiceID  string
	TenantID   string
	Amount     decimal.Decimal
	Reference  string
	OccurredAt time.Time
}
