package application

import "errors"

var (
	// ErrNoReadings is returned when a validation request names no reading.
	ErrNoReadings = errors.New("readings service: no readings")
	// ErrUnknownMeter is returned when a reading refers to an unregistered meter.
	ErrUnknownMeter = errors.New("readings service: unknown meter")
	// ErrNotPending is returned when validating a reading that already has a verdict.
	ErrNotPending = errors.New("readings service: reading is not pending")
)
