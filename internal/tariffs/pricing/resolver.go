// Package pricing resolves the rate of a tariff at a billing instant.
package pricing

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	tariffs "utility-billing/internal/tariffs/domain"
)

// Rate is a resolved unit price. ZoneID is empty for flat tariffs.
type Rate struct {
	Value  decimal.Decimal
	ZoneID string
}

// Period is a billing period [Start, End].
type Period struct {
	Start time.Time
	End   time.Time
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithLocation sets the wall clock zones and weekends are evaluated in.
func WithLocation(loc *time.Location) ResolverOption {
	return func(r *Resolver) {
		if loc != nil {
			r.loc = loc
		}
	}
}

// Resolver is stateless apart from its location and safe for concurrent use.
type Resolver struct {
	loc *time.Location
}

// NewResolver creates a resolver evaluating clocks in UTC unless configured.
func NewResolver(opts ...ResolverOption) *Resolver {
	r := &Resolver{loc: time.UTC}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// SelectVersion picks the version whose active window contains at.
func (r *Resolver) SelectVersion(versions []*tariffs.Tariff, at time.Time) (*tariffs.Tariff, error) {
	candidates := make([]*tariffs.Tariff, 0, len(versions))
	for _, v := range versions {
		if v != nil && v.ActiveAt(at) {
			candidates = append(candidates, v)
		}
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: at %s", tariffs.ErrNoApplicableTariff, at.Format(time.RFC3339))
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Version > candidates[j].Version })
	return candidates[0], nil
}

// RateFor returns the unit rate of tariff at the given instant.
//
// Precedence for time-of-use pricing: a zoneHint naming one of the tariff's
// zones wins, then the weekend policy, then the zone covering the local time of
// day. A hinted delta comes from a multi register meter whose registers already
// split consumption by the meter's own schedule, so the weekend policy is not
// applied to it even when the reading is dated on a weekend.
func (r *Resolver) RateFor(tariff *tariffs.Tariff, at time.Time, zoneHint string) (Rate, error) {
	if tariff == nil || !tariff.ActiveAt(at) {
		return Rate{}, fmt.Errorf("%w: at %s", tariffs.ErrNoApplicableTariff, at.Format(time.RFC3339))
	}
	switch p := tariff.Pricing.(type) {
	case tariffs.FlatPricing:
		return Rate{Value: p.Rate}, nil
	case tariffs.TimeOfUsePricing:
		return r.timeOfUseRate(tariff.ID, p, at, zoneHint)
	default:
		return Rate{}, fmt.Errorf("%w: %T", tariffs.ErrUnknownPricing, tariff.Pricing)
	}
}

func (r *Resolver) timeOfUseRate(tariffID string, p tariffs.TimeOfUsePricing, at time.Time, zoneHint string) (Rate, error) {
	if zoneHint != "" {
		if z, ok := p.Zone(zoneHint); ok {
			return Rate{Value: z.Rate, ZoneID: z.ID}, nil
		}
	}
	local := at.In(r.loc)
	if isWeekend(local) {
		switch p.Weekend {
		case tariffs.WeekendNightRate:
			if z, ok := p.Zone(tariffs.ZoneNight); ok {
				return Rate{Value: z.Rate, ZoneID: z.ID}, nil
			}
		case tariffs.WeekendDayRate:
			if z, ok := p.Zone(tariffs.ZoneDay); ok {
				return Rate{Value: z.Rate, ZoneID: z.ID}, nil
			}
		case tariffs.WeekendOwnRate:
			if p.WeekendRate.Valid {
				return Rate{Value: p.WeekendRate.Decimal, ZoneID: tariffs.ZoneWeekend}, nil
			}
		}
	}
	minute := local.Hour()*60 + local.Minute()
	z, ok := p.ZoneAt(minute)
	if !ok {
		return Rate{}, fmt.Errorf("%w: tariff %s has no zone at %s", tariffs.ErrNoApplicableTariff, tariffID, tariffs.FormatClock(minute))
	}
	return Rate{Value: z.Rate, ZoneID: z.ID}, nil
}

// FixedFeeFor returns the fixed fee charged once for the period, if the tariff has one.
func (r *Resolver) FixedFeeFor(tariff *tariffs.Tariff, period Period) (decimal.Decimal, bool) {
	if tariff == nil || !tariff.FixedMonthlyFee.Valid {
		return decimal.Zero, false
	}
	if !tariff.ActiveAt(period.Start) && !tariff.ActiveAt(period.End) {
		return decimal.Zero, false
	}
	return tariff.FixedMonthlyFee.Decimal, true
}

func isWeekend(t time.Time) bool {
	wd := t.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}
