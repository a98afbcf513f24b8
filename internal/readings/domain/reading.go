package readings

import (
	"time"

	"github.com/shopspring/decimal"
)

// ValidationStatus is the lifecycle state of a reading.
type ValidationStatus string

const (
	StatusPending   ValidationStatus = "pending"
	StatusValidated ValidationStatus = "validated"
	StatusRejected  ValidationStatus = "rejected"
)

// InputMethod records how a reading entered the system.
type InputMethod string

const (
	InputManual    InputMethod = "manual"
	InputPhotoOCR  InputMethod = "photo_ocr"
	InputCSVImport InputMethod = "csv_import"
	InputAPI       InputMethod = "api"
	InputEstimated InputMethod = "estimated"
)

// MeterReading is a single register value taken at a point in time.
// Zone is empty for meters without zones.
type MeterReading struct {
	ID          string
	MeterID     string
	ReadingDate time.Time
	Value       decimal.Decimal
	Zone        string
	InputMethod InputMethod
	EnteredBy   string
	ValidatedBy string
	Status      ValidationStatus
	Corrections []Correction
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Correction is an audited change of a reading value.
type Correction struct {
	ID          string
	ReadingID   string
	OldValue    decimal.Decimal
	NewValue    decimal.Decimal
	Reason      string
	Actor       string
	CorrectedAt time.Time
}

// NewMeterReading builds a pending reading.
func NewMeterReading(id, meterID string, date time.Time, value decimal.Decimal, zone string, method InputMethod, enteredBy string) (*MeterReading, error) {
	if meterID == "" {
		return nil, ErrEmptyMeterID
	}
	if date.IsZero() {
		return nil, ErrInvalidReadingDate
	}
	if value.IsNegative() {
		return nil, ErrNegativeValue
	}
	return &MeterReading{
		ID:          id,
		MeterID:     meterID,
		ReadingDate: date,
		Value:       value,
		Zone:        zone,
		InputMethod: method,
		EnteredBy:   enteredBy,
		Status:      StatusPending,
		CreatedAt:   date,
		UpdatedAt:   date,
	}, nil
}

// Correct replaces the value and records who did it and why.
// The reading goes back to pending and must be validated again.
func (r *MeterReading) Correct(correctionID string, newValue decimal.Decimal, reason, actor string, at time.Time) (Correction, error) {
	if reason == "" {
		return Correction{}, ErrEmptyReason
	}
	if actor == "" {
		return Correction{}, ErrEmptyActor
	}
	if newValue.IsNegative() {
		return Correction{}, ErrNegativeValue
	}
	if newValue.Equal(r.Value) {
		return Correction{}, ErrUnchangedValue
	}
	c := Correction{
		ID:          correctionID,
		ReadingID:   r.ID,
		OldValue:    r.Value,
		NewValue:    newValue,
		Reason:      reason,
		Actor:       actor,
		CorrectedAt: at,
	}
	r.Value = newValue
	r.Status = StatusPending
	r.ValidatedBy = ""
	r.UpdatedAt = at
	r.Corrections = append(r.Corrections, c)
	return c, nil
}

// IsValidated reports whether the reading may be billed.
func (r MeterReading) IsValidated() bool {
	return r.Status == StatusValidated
}

// Clone returns a deep copy.
func (r *MeterReading) Clone() *MeterReading {
	if r == nil {
		return nil
	}
	clone := *r
	if len(r.Corrections) > 0 {
		clone.Corrections = append([]Correction(nil), r.Corrections...)
	}
	return &clone
}
