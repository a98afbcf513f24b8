package tariffs

import "errors"

var (
	// ErrEmptyTariffID is returned when tariff id is empty.
	ErrEmptyTariffID = errors.New("tariffs: empty tariff id")
	// ErrEmptyProviderID is returned when provider id is empty.
	ErrEmptyProviderID = errors.New("tariffs: empty provider id")
	// ErrEmptyCurrency is returned when currency is empty.
	ErrEmptyCurrency = errors.New("tariffs: empty currency")
	// ErrInvalidWindow is returned when the active window is empty or unset.
	ErrInvalidWindow = errors.New("tariffs: invalid active window")
	// ErrNegativeRate is returned when a rate or fee is below zero.
	ErrNegativeRate = errors.New("tariffs: negative rate")
	// ErrNilPricing is returned when a tariff has no pricing.
	ErrNilPricing = errors.New("tariffs: nil pricing")
	// ErrUnknownPricing is returned for an unsupported pricing type.
	ErrUnknownPricing = errors.New("tariffs: unknown pricing type")
	// ErrEmptyZones is returned when a time-of-use tariff has no zones.
	ErrEmptyZones = errors.New("tariffs: time of use tariff has no zones")
	// ErrDuplicateZone is returned when two zones share an id.
	ErrDuplicateZone = errors.New("tariffs: duplicate zone id")
	// ErrZoneGap is returned when zones leave part of the day uncovered.
	ErrZoneGap = errors.New("tariffs: zones leave a gap")
	// ErrZoneOverlap is returned when zones cover a minute twice.
	ErrZoneOverlap = errors.New("tariffs: zones overlap")
	// ErrInvalidClock is returned for a malformed HH:MM value.
	ErrInvalidClock = errors.New("tariffs: invalid clock time")
	// ErrUnknownWeekendPolicy is returned for an unsupported weekend policy.
	ErrUnknownWeekendPolicy = errors.New("tariffs: unknown weekend policy")
	// ErrMissingWeekendZone is returned when a weekend policy names a zone the tariff lacks.
	ErrMissingWeekendZone = errors.New("tariffs: weekend policy zone missing")
	// ErrMissingWeekendRate is returned when apply_weekend_rate has no rate.
	ErrMissingWeekendRate = errors.New("tariffs: weekend rate missing")
	// ErrNoApplicableTariff is returned when no version covers an instant.
	ErrNoApplicableTariff = errors.New("tariffs: no applicable tariff")
	// ErrTariffOverlap is returned when two versions of a tariff overlap in time.
	ErrTariffOverlap = errors.New("tariffs: overlapping tariff versions")
	// ErrTariffNotFound is returned when a tariff is not found.
	ErrTariffNotFound = errors.New("tariffs: not found")
)
