package consumption

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	readings "utility-billing/internal/readings/domain"
)

func mk(id string, month time.Month, value int64, zone string) readings.MeterReading {
	return readings.MeterReading{
		ID:          id,
		MeterID:     "m-1",
		ReadingDate: time.Date(2026, month, 1, 0, 0, 0, 0, time.UTC),
		Value:       decimal.NewFromInt(value),
		Zone:        zone,
	}
}

func TestConsumptionNeverNegative(t *testing.T) {
	values := []int64{0, 1, 90, 100, 140, 99999}
	for _, prev := range values {
		for _, cur := range values {
			got := Consumption(decimal.NewFromInt(prev), decimal.NewFromInt(cur))
			if got.IsNegative() {
				t.Fatalf("consumption(%d, %d) = %s", prev, cur, got)
			}
			if cur >= prev && !got.Equal(decimal.NewFromInt(cur-prev)) {
				t.Fatalf("consumption(%d, %d) = %s", prev, cur, got)
			}
		}
	}
}

func TestBetweenRejectsCrossZone(t *testing.T) {
	if _, err := Between(mk("a", time.January, 10, "day"), mk("b", time.February, 20, "night")); !errors.Is(err, ErrZoneMismatch) {
		t.Fatalf("expected ErrZoneMismatch, got %v", err)
	}
	other := mk("b", time.February, 20, "")
	other.MeterID = "m-2"
	if _, err := Between(mk("a", time.January, 10, ""), other); !errors.Is(err, ErrMeterMismatch) {
		t.Fatalf("expected ErrMeterMismatch, got %v", err)
	}
}

func TestBatchPerZoneDeltas(t *testing.T) {
	list := []readings.MeterReading{
		mk("d3", time.March, 170, "day"),
		mk("n1", time.January, 50, "night"),
		mk("d1", time.January, 100, "day"),
		mk("n2", time.February, 65, "night"),
		mk("d2", time.February, 140, "day"),
	}
	deltas := Batch(list)
	if len(deltas) != 3 {
		t.Fatalf("expected 3 deltas, got %d", len(deltas))
	}
	want := []struct {
		zone string
		qty  int64
		from string
	}{
		{"day", 40, "d1"},
		{"day", 30, "d2"},
		{"night", 15, "n1"},
	}
	for i, w := range want {
		d := deltas[i]
		if d.Zone != w.zone || !d.Quantity.Equal(decimal.NewFromInt(w.qty)) || d.Previous.ID != w.from {
			t.Fatalf("delta %d: expected %+v, got zone=%s qty=%s from=%s", i, w, d.Zone, d.Quantity, d.Previous.ID)
		}
	}
	if !Total(deltas).Equal(decimal.NewFromInt(85)) {
		t.Fatalf("expected total 85, got %s", Total(deltas))
	}
}

func TestBatchFirstReadingProducesNothing(t *testing.T) {
	if deltas := Batch([]readings.MeterReading{mk("a", time.January, 100, "")}); len(deltas) != 0 {
		t.Fatalf("expected no deltas, got %d", len(deltas))
	}
}
