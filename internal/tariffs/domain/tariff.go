package tariffs

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	readings "utility-billing/internal/readings/domain"
)

// Kind tags the pricing variant.
type Kind string

const (
	KindFlat      Kind = "flat"
	KindTimeOfUse Kind = "time_of_use"
)

// WeekendPolicy decides which rate applies on Saturdays and Sundays.
type WeekendPolicy string

const (
	WeekendNone      WeekendPolicy = ""
	WeekendNightRate WeekendPolicy = "apply_night_rate"
	WeekendDayRate   WeekendPolicy = "apply_day_rate"
	WeekendOwnRate   WeekendPolicy = "apply_weekend_rate"
)

// Pricing is either FlatPricing or TimeOfUsePricing.
type Pricing interface {
	Kind() Kind
	validate() error
}

// FlatPricing charges one rate at all times.
type FlatPricing struct {
	Rate decimal.Decimal
}

func (FlatPricing) Kind() Kind { return KindFlat }

func (p FlatPricing) validate() error {
	if p.Rate.IsNegative() {
		return ErrNegativeRate
	}
	return nil
}

// TimeOfUsePricing charges by time of day; zones tile the day.
type TimeOfUsePricing struct {
	Zones       []Zone
	Weekend     WeekendPolicy
	WeekendRate decimal.NullDecimal
}

func (TimeOfUsePricing) Kind() Kind { return KindTimeOfUse }

// Zone looks a zone up by id.
func (p TimeOfUsePricing) Zone(id string) (Zone, bool) {
	for _, z := range p.Zones {
		if z.ID == id {
			return z, true
		}
	}
	return Zone{}, false
}

// ZoneAt returns the zone containing minute of day.
func (p TimeOfUsePricing) ZoneAt(minute int) (Zone, bool) {
	for _, z := range p.Zones {
		if z.Contains(minute) {
			return z, true
		}
	}
	return Zone{}, false
}

func (p TimeOfUsePricing) validate() error {
	if err := validateTiling(p.Zones); err != nil {
		return err
	}
	switch p.Weekend {
	case WeekendNone:
	case WeekendNightRate:
		if _, ok := p.Zone(ZoneNight); !ok {
			return fmt.Errorf("%w: %s", ErrMissingWeekendZone, ZoneNight)
		}
	case WeekendDayRate:
		if _, ok := p.Zone(ZoneDay); !ok {
			return fmt.Errorf("%w: %s", ErrMissingWeekendZone, ZoneDay)
		}
	case WeekendOwnRate:
		if !p.WeekendRate.Valid {
			return ErrMissingWeekendRate
		}
		if p.WeekendRate.Decimal.IsNegative() {
			return ErrNegativeRate
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownWeekendPolicy, p.Weekend)
	}
	return nil
}

// Tariff is an immutable pricing rule version for one provider and service.
// The active window is [ActiveFrom, ActiveUntil); a nil ActiveUntil is open ended.
type Tariff struct {
	ID              string
	ProviderID      string
	ServiceType     readings.ServiceType
	Name            string
	Version         int
	ActiveFrom      time.Time
	ActiveUntil     *time.Time
	Currency        string
	Pricing         Pricing
	FixedMonthlyFee decimal.NullDecimal
	CreatedAt       time.Time
}

// Params are the inputs of New.
type Params struct {
	ID              string
	ProviderID      string
	ServiceType     readings.ServiceType
	Name            string
	Version         int
	ActiveFrom      time.Time
	ActiveUntil     *time.Time
	Currency        string
	Pricing         Pricing
	FixedMonthlyFee decimal.NullDecimal
	CreatedAt       time.Time
}

// New validates params and builds a tariff. A time-of-use tariff whose zones
// do not tile the day exactly is rejected.
func New(p Params) (*Tariff, error) {
	if p.ID == "" {
		return nil, ErrEmptyTariffID
	}
	if p.ProviderID == "" {
		return nil, ErrEmptyProviderID
	}
	if _, err := readings.ParseServiceType(string(p.ServiceType)); err != nil {
		return nil, err
	}
	if p.Currency == "" {
		return nil, ErrEmptyCurrency
	}
	if p.ActiveFrom.IsZero() {
		return nil, ErrInvalidWindow
	}
	if p.ActiveUntil != nil && !p.ActiveUntil.After(p.ActiveFrom) {
		return nil, fmt.Errorf("%w: until %s not after from %s", ErrInvalidWindow,
			p.ActiveUntil.Format(time.RFC3339), p.ActiveFrom.Format(time.RFC3339))
	}
	if p.Pricing == nil {
		return nil, ErrNilPricing
	}
	if err := p.Pricing.validate(); err != nil {
		return nil, err
	}
	if p.FixedMonthlyFee.Valid && p.FixedMonthlyFee.Decimal.IsNegative() {
		return nil, fmt.Errorf("%w: fixed monthly fee", ErrNegativeRate)
	}
	version := p.Version
	if version <= 0 {
		version = 1
	}
	t := &Tariff{
		ID:              p.ID,
		ProviderID:      p.ProviderID,
		ServiceType:     p.ServiceType,
		Name:            p.Name,
		Version:         version,
		ActiveFrom:      p.ActiveFrom,
		Currency:        p.Currency,
		Pricing:         clonePricing(p.Pricing),
		FixedMonthlyFee: p.FixedMonthlyFee,
		CreatedAt:       p.CreatedAt,
	}
	if p.ActiveUntil != nil {
		until := *p.ActiveUntil
		t.ActiveUntil = &until
	}
	return t, nil
}

// ActiveAt reports whether at falls in the active window.
func (t *Tariff) ActiveAt(at time.Time) bool {
	if at.Before(t.ActiveFrom) {
		return false
	}
	return t.ActiveUntil == nil || at.Before(*t.ActiveUntil)
}

// Overlaps reports whether two tariffs for the same provider and service share any instant.
func (t *Tariff) Overlaps(other *Tariff) bool {
	if t.ProviderID != other.ProviderID || t.ServiceType != other.ServiceType {
		return false
	}
	startsBeforeOtherEnds := other.ActiveUntil == nil || t.ActiveFrom.Before(*other.ActiveUntil)
	otherStartsBeforeEnd := t.ActiveUntil == nil || other.ActiveFrom.Before(*t.ActiveUntil)
	return startsBeforeOtherEnds && otherStartsBeforeEnd
}

// Supersede derives the next version of t starting at from. The result keeps
// t's identity fields; t itself is not changed, callers store a closed copy
// returned as the first value.
func (t *Tariff) Supersede(nextID string, from time.Time, pricing Pricing, fee decimal.NullDecimal) (*Tariff, *Tariff, error) {
	if !from.After(t.ActiveFrom) {
		return nil, nil, fmt.Errorf("%w: successor must start after %s", ErrInvalidWindow, t.ActiveFrom.Format(time.RFC3339))
	}
	if t.ActiveUntil != nil && from.After(*t.ActiveUntil) {
		return nil, nil, fmt.Errorf("%w: successor leaves a gap after %s", ErrInvalidWindow, t.ActiveUntil.Format(time.RFC3339))
	}
	closed := t.Clone()
	until := from
	closed.ActiveUntil = &until

	next, err := New(Params{
		ID:              nextID,
		ProviderID:      t.ProviderID,
		ServiceType:     t.ServiceType,
		Name:            t.Name,
		Version:         t.Version + 1,
		ActiveFrom:      from,
		ActiveUntil:     t.ActiveUntil,
		Currency:        t.Currency,
		Pricing:         pricing,
		FixedMonthlyFee: fee,
		CreatedAt:       from,
	})
	if err != nil {
		return nil, nil, err
	}
	return closed, next, nil
}

// Clone returns a deep copy.
func (t *Tariff) Clone() *Tariff {
	if t == nil {
		return nil
	}
	clone := *t
	if t.ActiveUntil != nil {
		until := *t.ActiveUntil
		clone.ActiveUntil = &until
	}
	clone.Pricing = clonePricing(t.Pricing)
	return &clone
}

func clonePricing(p Pricing) Pricing {
	switch v := p.(type) {
	case *FlatPricing:
		return *v
	case *TimeOfUsePricing:
		return clonePricing(*v)
	case TimeOfUsePricing:
		v.Zones = append([]Zone(nil), v.Zones...)
		return v
	default:
		return p
	}
}
