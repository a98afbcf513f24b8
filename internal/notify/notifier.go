package notify

import (
	"context"
	"time"
)

// FlaggedReading describes a reading that needs a reviewer.
type FlaggedReading struct {
	ReadingID   string    `json:"reading_id"`
	MeterID     string    `json:"meter_id"`
	Zone        string    `json:"zone,omitempty"`
	ReadingDate time.Time `json:"reading_date"`
	Value       string    `json:"value"`
	Outcome     string    `json:"outcome"`
	Warnings    []string  `json:"warnings"`
	ReviewURL   string    `json:"review_url,omitempty"`
}

// Notifier sends reviewer notifications.
type Notifier interface {
	Notify(ctx context.Context, msg FlaggedReading) error
}

// Multi fans a message out to several notifiers and returns the first error.
type Multi []Notifier

// Notify implements Notifier.
func (m Multi) Notify(ctx context.Context, msg FlaggedReading) error {
	var first error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, msg); err != nil && first == nil {
			first = err
		}
	}
	return first
}
