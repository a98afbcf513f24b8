package billing

import "errors"

var (
	// ErrDuplicateInvoice is returned when an invoice already exists for the tenant and period.
	ErrDuplicateInvoice = errors.New("billing: invoice already exists for period")
	// ErrNoProperty is returned when the tenant has no property.
	ErrNoProperty = errors.New("billing: tenant has no property")
	// ErrNoMeters is returned when the property has no meters.
	ErrNoMeters = errors.New("billing: property has no meters")
	// ErrMissingReadings is returned when a meter has no billable readings in the period.
	ErrMissingReadings = errors.New("billing: missing readings")
	// ErrInvalidPeriod is returned when the period end is before its start.
	ErrInvalidPeriod = errors.New("billing: invalid period")
	// ErrPeriodTooLong is returned when the period exceeds the allowed span.
	ErrPeriodTooLong = errors.New("billing: period too long")
	// ErrFuturePeriod is returned when the period reaches into the future.
	ErrFuturePeriod = errors.New("billing: period in the future")
	// ErrCurrencyMismatch is returned when items would be priced in different currencies.
	ErrCurrencyMismatch = errors.New("billing: currency mismatch")
	// ErrEmptyTenantID is returned when tenant id is empty.
	ErrEmptyTenantID = errors.New("billing: empty tenant id")
	// ErrInvoiceNotFound is returned when an invoice is not found.
	ErrInvoiceNotFound = errors.New("billing: invoice not found")
	// ErrInvalidTransition is returned for a disallowed status change.
	ErrInvalidTransition = errors.New("billing: invalid status transition")
	// ErrNotDraft is returned when editing or deleting a non-draft invoice.
	ErrNotDraft = errors.New("billing: invoice is not a draft")
	// ErrItemNotFound is returned when an invoice item is not found.
	ErrItemNotFound = errors.New("billing: item not found")
	// ErrInvalidItem is returned for an item with missing or negative amounts.
	ErrInvalidItem = errors.New("billing: invalid item")
	// ErrInvalidPayment is returned for a non-positive payment.
	ErrInvalidPayment = errors.New("billing: invalid payment")
	// ErrNilInvoice is returned when saving a nil invoice.
	ErrNilInvoice = errors.New("billing: nil invoice")
)

// DuplicateInvoiceError carries the id of the invoice that already covers the period.
type DuplicateInvoiceError struct {
	ExistingID string
}

func (e *DuplicateInvoiceError) Error() string {
	if e.ExistingID == "" {
		return ErrDuplicateInvoice.Error()
	}
	return ErrDuplicateInvoice.Error() + ": " + e.ExistingID
}

// Is matches ErrDuplicateInvoice.
func (e *DuplicateInvoiceError) Is(target error) bool {
	return target == ErrDuplicateInvoice
}
