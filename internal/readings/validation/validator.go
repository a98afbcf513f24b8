package validation

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	readings "utility-billing/internal/readings/domain"
)

// Input carries a reading and the context needed to judge it.
type Input struct {
	Meter   readings.Meter
	Reading readings.MeterReading
	// Prior is the latest validated reading of the same meter and zone before Reading.
	Prior *readings.MeterReading
	// Next is the earliest validated reading of the same meter and zone at or after Reading.
	Next *readings.MeterReading
	// History holds earlier per-period consumption values of the same meter and zone.
	History []decimal.Decimal
	// Recent holds nearby readings used for duplicate detection.
	Recent []readings.MeterReading
}

// Validator applies sequence, plausibility, statistical, seasonal, duplicate
// and zone checks to a reading. It is safe for concurrent use.
type Validator struct {
	cfg Config
}

// NewValidator creates a validator.
func NewValidator(cfg Config) *Validator {
	return &Validator{cfg: cfg}
}

// Validate never fails; problems are reported in the result.
func (v *Validator) Validate(in Input) Result {
	res := Result{ReadingID: in.Reading.ID}
	reading := in.Reading

	if reading.MeterID != in.Meter.ID {
		res.reject(CodeMeterMismatch, fmt.Sprintf("reading belongs to meter %s, not %s", reading.MeterID, in.Meter.ID))
	}
	if reading.Value.IsNegative() {
		res.reject(CodeNegativeValue, fmt.Sprintf("value %s is negative", reading.Value))
	}
	v.checkZone(in.Meter, reading, &res)

	if in.Prior == nil {
		res.warn(CodeNoPriorReading, "no prior reading, consumption not checked")
	} else if consumption, ok := v.checkSequence(in.Meter, reading, *in.Prior, &res); ok {
		res.Consumption = decimal.NewNullDecimal(consumption)
		v.checkPlausibility(in.Meter.ServiceType, consumption, &res)
		v.checkStatistics(consumption, in.History, &res)
		v.checkSeasonal(in.Meter.ServiceType, reading, consumption, &res)
	}
	if in.Next != nil && in.Next.ID != reading.ID {
		v.checkNext(in.Meter, reading, *in.Next, &res)
	}

	v.checkDuplicate(reading, in.Recent, &res)
	res.settle()
	return res
}

func (v *Validator) checkZone(meter readings.Meter, reading readings.MeterReading, res *Result) {
	switch {
	case meter.SupportsZones && reading.Zone == "":
		res.reject(CodeZoneRequired, "meter supports zones, reading has none")
	case !meter.SupportsZones && reading.Zone != "":
		res.reject(CodeZoneNotSupported, fmt.Sprintf("meter has no zones, reading has zone %q", reading.Zone))
	}
}

// checkSequence returns the consumption since prior when it can be determined.
func (v *Validator) checkSequence(meter readings.Meter, reading, prior readings.MeterReading, res *Result) (decimal.Decimal, bool) {
	if !reading.ReadingDate.After(prior.ReadingDate) {
		res.reject(CodeDateNotAfterPrior, fmt.Sprintf("reading date %s is not after prior %s",
			reading.ReadingDate.Format("2006-01-02 15:04"), prior.ReadingDate.Format("2006-01-02 15:04")))
		return decimal.Zero, false
	}
	if reading.Value.LessThan(prior.Value) {
		if v.looksLikeRollover(meter, prior.Value, reading.Value) {
			res.warn(CodePossibleRollover, fmt.Sprintf("value %s below prior %s, register may have wrapped", reading.Value, prior.Value))
		} else {
			res.reject(CodeValueDecreased, fmt.Sprintf("value %s is lower than prior %s", reading.Value, prior.Value))
		}
		return decimal.Zero, false
	}
	return reading.Value.Sub(prior.Value), true
}

// checkNext keeps a backdated reading below the validated reading that follows it.
func (v *Validator) checkNext(meter readings.Meter, reading, next readings.MeterReading, res *Result) {
	if !next.ReadingDate.After(reading.ReadingDate) {
		res.reject(CodeDateTaken, fmt.Sprintf("validated reading %s already recorded at %s",
			next.ID, next.ReadingDate.Format("2006-01-02 15:04")))
		return
	}
	if reading.Value.LessThan(next.Value) {
		return
	}
	if v.looksLikeRollover(meter, reading.Value, next.Value) {
		res.warn(CodePossibleRollover, fmt.Sprintf("value %s above next %s, register may have wrapped", reading.Value, next.Value))
		return
	}
	res.reject(CodeValueAboveNext, fmt.Sprintf("value %s is not below next reading %s on %s",
		reading.Value, next.Value, next.ReadingDate.Format("2006-01-02 15:04")))
}

func (v *Validator) looksLikeRollover(meter readings.Meter, prior, current decimal.Decimal) bool {
	limit := meter.RegisterLimit
	if !limit.IsPositive() {
		limit = v.cfg.DefaultRegisterLimit
	}
	if !limit.IsPositive() {
		return false
	}
	return prior.GreaterThan(limit.Mul(v.cfg.RolloverHighFraction)) &&
		current.LessThan(limit.Mul(v.cfg.RolloverLowFraction))
}

func (v *Validator) checkPlausibility(service readings.ServiceType, consumption decimal.Decimal, res *Result) {
	if !consumption.IsPositive() {
		res.reject(CodeNonPositiveConsumption, fmt.Sprintf("consumption %s is not positive", consumption))
		return
	}
	bounds, ok := v.cfg.Bounds[service]
	if !ok {
		return
	}
	if consumption.LessThan(bounds.Min) {
		res.reject(CodeBelowMinimum, fmt.Sprintf("consumption %s below minimum %s", consumption, bounds.Min))
	}
	if bounds.Max.IsPositive() && consumption.GreaterThan(bounds.Max) {
		res.reject(CodeAboveMaximum, fmt.Sprintf("consumption %s above maximum %s", consumption, bounds.Max))
	}
}

func (v *Validator) checkStatistics(consumption decimal.Decimal, history []decimal.Decimal, res *Result) {
	if len(history) < v.cfg.MinHistorySamples {
		res.warn(CodeInsufficientHistory, fmt.Sprintf("%d historical samples, need %d", len(history), v.cfg.MinHistorySamples))
		return
	}
	mean, stddev := meanStdDev(history)
	if stddev == 0 {
		return
	}
	value, _ := consumption.Float64()
	z := math.Abs(value-mean) / stddev
	if z > v.cfg.ZScoreThreshold {
		res.warn(CodeStatisticalOutlier, fmt.Sprintf("consumption %s is %.2f standard deviations from mean %.2f", consumption, z, mean))
	}
}

func (v *Validator) checkSeasonal(service readings.ServiceType, reading readings.MeterReading, consumption decimal.Decimal, res *Result) {
	heating := v.cfg.Season.IsHeatingSeason(reading.ReadingDate)
	switch service {
	case readings.ServiceHeating:
		if !heating && consumption.GreaterThan(v.cfg.HeatingSummerMax) {
			res.warn(CodeSeasonalVariance, fmt.Sprintf("summer heating consumption %s above %s", consumption, v.cfg.HeatingSummerMax))
		}
		if heating && consumption.LessThan(v.cfg.HeatingWinterMin) {
			res.warn(CodeSeasonalVariance, fmt.Sprintf("heating season consumption %s below %s", consumption, v.cfg.HeatingWinterMin))
		}
	case readings.ServiceWater:
		band := v.cfg.WaterSummerRange
		if heating {
			band = v.cfg.WaterWinterRange
		}
		if band.Max.IsPositive() && !band.contains(consumption) {
			res.warn(CodeSeasonalVariance, fmt.Sprintf("water consumption %s outside typical %s-%s", consumption, band.Min, band.Max))
		}
	}
}

func (v *Validator) checkDuplicate(reading readings.MeterReading, recent []readings.MeterReading, res *Result) {
	for _, other := range recent {
		if other.ID != "" && other.ID == reading.ID {
			continue
		}
		if other.MeterID != reading.MeterID || other.Zone != reading.Zone || !other.Value.Equal(reading.Value) {
			continue
		}
		gap := reading.ReadingDate.Sub(other.ReadingDate)
		if gap < 0 {
			gap = -gap
		}
		if gap <= v.cfg.DuplicateWindow {
			res.warn(CodePossibleDuplicate, fmt.Sprintf("same value as reading %s taken %s apart", other.ID, gap))
			return
		}
	}
}

// meanStdDev returns the mean and sample standard deviation.
func meanStdDev(values []decimal.Decimal) (float64, float64) {
	n := float64(len(values))
	var sum float64
	floats := make([]float64, len(values))
	for i, v := range values {
		floats[i], _ = v.Float64()
		sum += floats[i]
	}
	mean := sum / n
	if len(values) < 2 {
		return mean, 0
	}
	var sq float64
	for _, f := range floats {
		sq += (f - mean) * (f - mean)
	}
	return mean, math.Sqrt(sq / (n - 1))
}
