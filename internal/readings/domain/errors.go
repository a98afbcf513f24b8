package readings

import "errors"

var (
	// ErrEmptyMeterID is returned when meter id is empty.
	ErrEmptyMeterID = errors.New("readings: empty meter id")
	// ErrNegativeValue is returned when a reading value is below zero.
	ErrNegativeValue = errors.New("readings: negative value")
	// ErrInvalidReadingDate is returned when reading date is zero.
	ErrInvalidReadingDate = errors.New("readings: invalid reading date")
	// ErrEmptyReason is returned when a correction has no reason.
	ErrEmptyReason = errors.New("readings: empty correction reason")
	// ErrEmptyActor is returned when a correction has no actor.
	ErrEmptyActor = errors.New("readings: empty correction actor")
	// ErrUnchangedValue is returned when a correction keeps the same value.
	ErrUnchangedValue = errors.New("readings: correction does not change value")
	// ErrReadingNotFound is returned when a reading is not found.
	ErrReadingNotFound = errors.New("readings: not found")
	// ErrNilReading is returned when saving a nil reading.
	ErrNilReading = errors.New("readings: nil reading")
	// ErrUnknownServiceType is returned for an unsupported service type.
	ErrUnknownServiceType = errors.New("readings: unknown service type")
)
