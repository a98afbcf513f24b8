package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"utility-billing/internal/consumption"
	readings "utility-billing/internal/readings/domain"
)

// ReadingStore is an in-memory reading repository.
type ReadingStore struct {
	mu    sync.RWMutex
	items map[string]*readings.MeterReading
}

// NewReadingStore creates an empty store.
func NewReadingStore() *ReadingStore {
	return &ReadingStore{items: make(map[string]*readings.MeterReading)}
}

// Save inserts or replaces a reading.
func (s *ReadingStore) Save(ctx context.Context, r *readings.MeterReading) error {
	if r == nil {
		return readings.ErrNilReading
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[r.ID] = r.Clone()
	return nil
}

// Get returns a reading by id.
func (s *ReadingStore) Get(ctx context.Context, id string) (*readings.MeterReading, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.items[id]
	if !ok {
		return nil, readings.ErrReadingNotFound
	}
	return r.Clone(), nil
}

// PriorReading returns the latest validated reading of meter and zone strictly before the instant.
func (s *ReadingStore) PriorReading(ctx context.Context, meterID, zone string, before time.Time) (*readings.MeterReading, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var best *readings.MeterReading
	for _, r := range s.items {
		if r.MeterID != meterID || r.Zone != zone || !r.IsValidated() || !r.ReadingDate.Before(before) {
			continue
		}
		if best == nil || r.ReadingDate.After(best.ReadingDate) {
			best = r
		}
	}
	return best.Clone(), nil
}

// NextReading returns the earliest validated reading of meter and zone at or after the instant.
func (s *ReadingStore) NextReading(ctx context.Context, meterID, zone string, from time.Time) (*readings.MeterReading, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var best *readings.MeterReading
	for _, r := range s.items {
		if r.MeterID != meterID || r.Zone != zone || !r.IsValidated() || r.ReadingDate.Before(from) {
			continue
		}
		if best == nil || r.ReadingDate.Before(best.ReadingDate) {
			best = r
		}
	}
	return best.Clone(), nil
}

// ReadingsBetween returns the pending and validated readings of meter and zone dated within [from, to], oldest first.
func (s *ReadingStore) ReadingsBetween(ctx context.Context, meterID, zone string, from, to time.Time) ([]readings.MeterReading, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []readings.MeterReading
	for _, r := range s.items {
		if r.MeterID != meterID || r.Zone != zone || r.Status == readings.StatusRejected {
			continue
		}
		if r.ReadingDate.Before(from) || r.ReadingDate.After(to) {
			continue
		}
		out = append(out, *r.Clone())
	}
	sortReadings(out)
	return out, nil
}

// ReadingsInPeriod returns all readings of a meter dated within [start, end], oldest first.
func (s *ReadingStore) ReadingsInPeriod(ctx context.Context, meterID string, start, end time.Time) ([]readings.MeterReading, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []readings.MeterReading
	for _, r := range s.items {
		if r.MeterID != meterID || r.ReadingDate.Before(start) || r.ReadingDate.After(end) {
			continue
		}
		out = append(out, *r.Clone())
	}
	sortReadings(out)
	return out, nil
}

// ConsumptionHistory returns the consumption between consecutive validated readings before the instant.
func (s *ReadingStore) ConsumptionHistory(ctx context.Context, meterID, zone string, before time.Time) ([]decimal.Decimal, error) {
	s.mu.RLock()
	var list []readings.MeterReading
	for _, r := range s.items {
		if r.MeterID == meterID && r.Zone == zone && r.IsValidated() && r.ReadingDate.Before(before) {
			list = append(list, *r.Clone())
		}
	}
	s.mu.RUnlock()

	deltas := consumption.Batch(list)
	out := make([]decimal.Decimal, 0, len(deltas))
	for _, d := range deltas {
		out = append(out, d.Quantity)
	}
	return out, nil
}

// PendingCount returns the number of readings awaiting validation.
func (s *ReadingStore) PendingCount(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, r := range s.items {
		if r.Status == readings.StatusPending {
			n++
		}
	}
	return n, nil
}

func sortReadings(list []readings.MeterReading) {
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].ReadingDate.Equal(list[j].ReadingDate) {
			return list[i].ID < list[j].ID
		}
		return list[i].ReadingDate.Before(list[j].ReadingDate)
	})
}
