package circulation

import (
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	// DefaultSpecificHeat is the energy to heat one cubic metre of water by one kelvin, kWh/(m3*K).
	DefaultSpecificHeat = decimal.RequireFromString("1.163")
	// DefaultDeltaT is the temperature rise of domestic hot water, K.
	DefaultDeltaT = decimal.NewFromInt(45)

	minSpecificHeat = decimal.RequireFromString("0.5")
	maxSpecificHeat = decimal.NewFromInt(2)
	minDeltaT       = decimal.NewFromInt(20)
	maxDeltaT       = decimal.NewFromInt(80)
)

// Constants are the physical parameters of the summer formula.
type Constants struct {
	SpecificHeat decimal.Decimal
	DeltaT       decimal.Decimal
}

// DefaultConstants returns c = 1.163 and dT = 45.
func DefaultConstants() Constants {
	return Constants{SpecificHeat: DefaultSpecificHeat, DeltaT: DefaultDeltaT}
}

// Validate checks the constants against physically sane ranges.
func (c Constants) Validate() error {
	if c.SpecificHeat.LessThan(minSpecificHeat) || c.SpecificHeat.GreaterThan(maxSpecificHeat) {
		return fmt.Errorf("%w: specific heat %s", ErrInvalidConstants, c.SpecificHeat)
	}
	if c.DeltaT.LessThan(minDeltaT) || c.DeltaT.GreaterThan(maxDeltaT) {
		return fmt.Errorf("%w: delta t %s", ErrInvalidConstants, c.DeltaT)
	}
	return nil
}

// HeatData is the building level heat and hot water metering for one month.
type HeatData struct {
	TotalHeatKWh decimal.Decimal
	HotWaterM3   decimal.NullDecimal
}

// SummerCirculation returns the heat not spent on warming water:
// Q_circ = Q_total - V_water * c * dT, in kWh rounded to 0.01.
func SummerCirculation(data HeatData, c Constants) (decimal.Decimal, error) {
	if !data.HotWaterM3.Valid {
		return decimal.Zero, ErrMissingWaterConsumption
	}
	if data.TotalHeatKWh.IsNegative() || data.HotWaterM3.Decimal.IsNegative() {
		return decimal.Zero, ErrNegativeInput
	}
	waterHeating := data.HotWaterM3.Decimal.Mul(c.SpecificHeat).Mul(c.DeltaT)
	q := data.TotalHeatKWh.Sub(waterHeating)
	if q.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: total=%s water_heating=%s", ErrNegativeCirculation, data.TotalHeatKWh, waterHeating.Round(2))
	}
	return q.Round(2), nil
}

// SummerBaseline averages monthly summer circulation values.
func SummerBaseline(monthly []decimal.Decimal) (decimal.Decimal, error) {
	if len(monthly) == 0 {
		return decimal.Zero, ErrNoSummerData
	}
	return decimal.Avg(monthly[0], monthly[1:]...).Round(2), nil
}
