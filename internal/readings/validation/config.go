package validation

import (
	"time"

	"github.com/shopspring/decimal"

	circulation "utility-billing/internal/circulation/domain"
	readings "utility-billing/internal/readings/domain"
)

// Bounds are hard limits on a single period's consumption.
type Bounds struct {
	Min decimal.Decimal
	Max decimal.Decimal
}

// Range is a typical consumption band used for advisory checks.
type Range struct {
	Min decimal.Decimal
	Max decimal.Decimal
}

func (r Range) contains(v decimal.Decimal) bool {
	return !v.LessThan(r.Min) && !v.GreaterThan(r.Max)
}

// Config holds validation thresholds.
type Config struct {
	Bounds map[readings.ServiceType]Bounds

	ZScoreThreshold   float64
	MinHistorySamples int

	HeatingSummerMax decimal.Decimal
	HeatingWinterMin decimal.Decimal
	WaterSummerRange Range
	WaterWinterRange Range

	DuplicateWindow time.Duration

	// A lower value is treated as a register wrap when the prior value is above
	// RolloverHighFraction of the register limit and the new one below RolloverLowFraction.
	RolloverHighFraction decimal.Decimal
	RolloverLowFraction  decimal.Decimal
	DefaultRegisterLimit decimal.Decimal

	Season circulation.Season
}

// DefaultConfig returns the standard thresholds.
func DefaultConfig() Config {
	return Config{
		Bounds: map[readings.ServiceType]Bounds{
			readings.ServiceElectricity: {Min: decimal.Zero, Max: decimal.NewFromInt(10000)},
			readings.ServiceWater:       {Min: decimal.Zero, Max: decimal.NewFromInt(1000)},
			readings.ServiceHeating:     {Min: decimal.Zero, Max: decimal.NewFromInt(5000)},
		},
		ZScoreThreshold:      2.0,
		MinHistorySamples:    3,
		HeatingSummerMax:     decimal.NewFromInt(50),
		HeatingWinterMin:     decimal.NewFromInt(100),
		WaterSummerRange:     Range{Min: decimal.NewFromInt(80), Max: decimal.NewFromInt(150)},
		WaterWinterRange:     Range{Min: decimal.NewFromInt(60), Max: decimal.NewFromInt(120)},
		DuplicateWindow:      6 * time.Hour,
		RolloverHighFraction: decimal.RequireFromString("0.9"),
		RolloverLowFraction:  decimal.RequireFromString("0.1"),
		DefaultRegisterLimit: decimal.NewFromInt(99999),
		Season:               circulation.DefaultSeason(),
	}
}
