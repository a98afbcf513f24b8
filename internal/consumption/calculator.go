// Package consumption turns consecutive meter readings into consumption deltas.
package consumption

import (
	"errors"
	"sort"

	"github.com/shopspring/decimal"

	readings "utility-billing/internal/readings/domain"
)

var (
	// ErrMeterMismatch is returned when two readings belong to different meters.
	ErrMeterMismatch = errors.New("consumption: readings belong to different meters")
	// ErrZoneMismatch is returned when two readings belong to different zones.
	ErrZoneMismatch = errors.New("consumption: readings belong to different zones")
	// ErrOutOfOrder is returned when the current reading is not after the previous one.
	ErrOutOfOrder = errors.New("consumption: readings out of order")
)

// Delta is the consumption between two readings of one meter and zone.
type Delta struct {
	MeterID  string
	Zone     string
	Previous readings.MeterReading
	Current  readings.MeterReading
	Quantity decimal.Decimal
}

// Consumption returns current minus previous, never below zero.
func Consumption(previous, current decimal.Decimal) decimal.Decimal {
	diff := current.Sub(previous)
	if diff.IsNegative() {
		return decimal.Zero
	}
	return diff
}

// Between builds the delta of two readings of the same meter and zone.
func Between(previous, current readings.MeterReading) (Delta, error) {
	if previous.MeterID != current.MeterID {
		return Delta{}, ErrMeterMismatch
	}
	if previous.Zone != current.Zone {
		return Delta{}, ErrZoneMismatch
	}
	if !current.ReadingDate.After(previous.ReadingDate) {
		return Delta{}, ErrOutOfOrder
	}
	return Delta{
		MeterID:  current.MeterID,
		Zone:     current.Zone,
		Previous: previous,
		Current:  current,
		Quantity: Consumption(previous.Value, current.Value),
	}, nil
}

// Batch groups readings of one meter by zone, orders each group by date and
// returns the deltas of consecutive readings. The first reading of a zone
// only opens the sequence. Zones are returned in name order.
func Batch(list []readings.MeterReading) []Delta {
	byZone := make(map[string][]readings.MeterReading)
	for _, r := range list {
		byZone[r.Zone] = append(byZone[r.Zone], r)
	}
	zones := make([]string, 0, len(byZone))
	for zone := range byZone {
		zones = append(zones, zone)
	}
	sort.Strings(zones)

	var deltas []Delta
	for _, zone := range zones {
		group := byZone[zone]
		sort.SliceStable(group, func(i, j int) bool {
			return group[i].ReadingDate.Before(group[j].ReadingDate)
		})
		for i := 1; i < len(group); i++ {
			d, err := Between(group[i-1], group[i])
			if err != nil {
				continue
			}
			deltas = append(deltas, d)
		}
	}
	return deltas
}

// Total sums delta quantities.
func Total(deltas []Delta) decimal.Decimal {
	sum := decimal.Zero
	for _, d := range deltas {
		sum = sum.Add(d.Quantity)
	}
	return sum
}
