package validation

import (
	"github.com/shopspring/decimal"

	readings "utility-billing/internal/readings/domain"
)

// Code identifies a validation finding.
type Code string

// Violations reject the reading.
const (
	CodeNegativeValue          Code = "negative_value"
	CodeMeterMismatch          Code = "meter_mismatch"
	CodeUnknownMeter           Code = "unknown_meter"
	CodeZoneRequired           Code = "zone_required"
	CodeZoneNotSupported       Code = "zone_not_supported"
	CodeValueDecreased         Code = "value_decreased"
	CodeDateNotAfterPrior      Code = "date_not_after_prior"
	CodeDateTaken              Code = "date_already_recorded"
	CodeValueAboveNext         Code = "value_above_next"
	CodeNonPositiveConsumption Code = "non_positive_consumption"
	CodeBelowMinimum           Code = "below_minimum"
	CodeAboveMaximum           Code = "above_maximum"
	CodeRolloverRejected       Code = "rollover_rejected"
)

// Warnings are surfaced to a reviewer and do not block the reading.
const (
	CodePossibleRollover    Code = "possible_rollover"
	CodeStatisticalOutlier  Code = "statistical_outlier"
	CodeInsufficientHistory Code = "insufficient_history"
	CodeSeasonalVariance    Code = "seasonal_variance"
	CodePossibleDuplicate   Code = "possible_duplicate"
	CodeNoPriorReading      Code = "no_prior_reading"
)

// Finding is a single violation or warning.
type Finding struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
}

// Outcome summarizes a result.
type Outcome string

const (
	OutcomeAccepted Outcome = "accepted"
	OutcomeFlagged  Outcome = "flagged"
	OutcomeRejected Outcome = "rejected"
)

// Result is the verdict on one reading.
type Result struct {
	ReadingID   string
	Outcome     Outcome
	Consumption decimal.NullDecimal
	Violations  []Finding
	Warnings    []Finding
}

// ReadingStatus maps the outcome to the reading lifecycle.
func (r Result) ReadingStatus() readings.ValidationStatus {
	if r.Outcome == OutcomeRejected {
		return readings.StatusRejected
	}
	return readings.StatusValidated
}

// Has reports whether a finding with code is present.
func (r Result) Has(code Code) bool {
	for _, f := range r.Violations {
		if f.Code == code {
			return true
		}
	}
	for _, f := range r.Warnings {
		if f.Code == code {
			return true
		}
	}
	return false
}

func (r *Result) reject(code Code, message string) {
	r.Violations = append(r.Violations, Finding{Code: code, Message: message})
}

func (r *Result) warn(code Code, message string) {
	r.Warnings = append(r.Warnings, Finding{Code: code, Message: message})
}

func (r *Result) settle() {
	switch {
	case len(r.Violations) > 0:
		r.Outcome = OutcomeRejected
	case len(r.Warnings) > 0:
		r.Outcome = OutcomeFlagged
	default:
		r.Outcome = OutcomeAccepted
	}
}
