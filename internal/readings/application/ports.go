package application

import (
	"context"
	"time"

	readings "utility-billing/internal/readings/domain"
)

// ReadingRepository persists readings.
type ReadingRepository interface {
	Get(ctx context.Context, id string) (*readings.MeterReading, error)
	Save(ctx context.Context, r *readings.MeterReading) error
}

// MeterDirectory resolves meters. Meter returns nil when unknown.
type MeterDirectory interface {
	Meter(ctx context.Context, meterID string) (*readings.Meter, error)
}

// Publisher emits reading events.
type Publisher interface {
	Publish(ctx context.Context, event any) error
}

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// ReadingFlagged is emitted when a reading passes validation with warnings.
type ReadingFlagged struct {
	ReadingID   string
	MeterID     string
	Zone        string
	ReadingDate time.Time
	Value       string
	Warnings    []string
	OccurredAt  time.Time
}

// ReadingRejected is emitted when validation rejects a reading.
type ReadingRejected struct {
	ReadingID  string
	MeterID    string
	Violations []string
	OccurredAt time.Time
}

// ReadingCorrected is emitted after an audited correction.
type ReadingCorrected struct {
	ReadingID  string
	MeterID    string
	OldValue   string
	NewValue   string
	Actor      string
	OccurredAt time.Time
}
