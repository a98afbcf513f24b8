package readings

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestCorrectRecordsAuditTrail(t *testing.T) {
	at := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	r, err := NewMeterReading("r-1", "m-1", at, decimal.NewFromInt(140), "", InputManual, "alice")
	if err != nil {
		t.Fatalf("new reading: %v", err)
	}
	r.Status = StatusValidated

	c, err := r.Correct("c-1", decimal.NewFromInt(145), "typo", "bob", at.Add(time.Hour))
	if err != nil {
		t.Fatalf("correct: %v", err)
	}
	if !c.OldValue.Equal(decimal.NewFromInt(140)) || !c.NewValue.Equal(decimal.NewFromInt(145)) {
		t.Fatalf("unexpected correction values: %s -> %s", c.OldValue, c.NewValue)
	}
	if r.Status != StatusPending {
		t.Fatalf("expected pending after correction, got %s", r.Status)
	}
	if len(r.Corrections) != 1 || r.Corrections[0].Actor != "bob" {
		t.Fatalf("expected correction recorded, got %+v", r.Corrections)
	}
}

func TestCorrectRejectsInvalidInput(t *testing.T) {
	at := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	r, err := NewMeterReading("r-1", "m-1", at, decimal.NewFromInt(10), "", InputManual, "alice")
	if err != nil {
		t.Fatalf("new reading: %v", err)
	}
	cases := []struct {
		name   string
		value  decimal.Decimal
		reason string
		actor  string
		want   error
	}{
		{"no reason", decimal.NewFromInt(11), "", "bob", ErrEmptyReason},
		{"no actor", decimal.NewFromInt(11), "fix", "", ErrEmptyActor},
		{"negative", decimal.NewFromInt(-1), "fix", "bob", ErrNegativeValue},
		{"unchanged", decimal.NewFromInt(10), "fix", "bob", ErrUnchangedValue},
	}
	for _, tc := range cases {
		if _, err := r.Correct("c", tc.value, tc.reason, tc.actor, at); !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
	}
	if len(r.Corrections) != 0 {
		t.Fatalf("expected no corrections recorded")
	}
}

func TestNewMeterReadingRejectsNegative(t *testing.T) {
	_, err := NewMeterReading("r", "m", time.Now(), decimal.NewFromInt(-5), "", InputManual, "")
	if !errors.Is(err, ErrNegativeValue) {
		t.Fatalf("expected ErrNegativeValue, got %v", err)
	}
}
