package circulation

import "errors"

var (
	// ErrMissingWaterConsumption is returned when a summer month has no hot water volume.
	ErrMissingWaterConsumption = errors.New("circulation: missing hot water consumption")
	// ErrNegativeCirculation is returned when water heating exceeds the metered heat.
	ErrNegativeCirculation = errors.New("circulation: negative circulation energy")
	// ErrNegativeInput is returned for negative heat or water volumes.
	ErrNegativeInput = errors.New("circulation: negative input")
	// ErrNoSummerData is returned when a baseline has no summer months to average.
	ErrNoSummerData = errors.New("circulation: no summer data")
	// ErrMissingBaseline is returned when a heating season month has no stored summer baseline.
	ErrMissingBaseline = errors.New("circulation: missing summer baseline")
	// ErrNoProperties is returned when a building has no properties to share the cost.
	ErrNoProperties = errors.New("circulation: building has no properties")
	// ErrZeroTotalArea is returned when area distribution has nothing to weigh by.
	ErrZeroTotalArea = errors.New("circulation: total area is zero")
	// ErrNegativeArea is returned when a property area is below zero.
	ErrNegativeArea = errors.New("circulation: negative area")
	// ErrNegativeTotal is returned when distributing a negative amount.
	ErrNegativeTotal = errors.New("circulation: negative total")
	// ErrUnknownMethod is returned for an unsupported distribution method.
	ErrUnknownMethod = errors.New("circulation: unknown distribution method")
	// ErrInvalidConstants is returned when physical constants are out of range.
	ErrInvalidConstants = errors.New("circulation: constants out of range")
	// ErrInvalidSeason is returned when heating months are malformed.
	ErrInvalidSeason = errors.New("circulation: invalid heating months")
	// ErrPropertyNotAllocated is returned when a property has no share in an allocation.
	ErrPropertyNotAllocated = errors.New("circulation: property not in allocation")
	// ErrNilAllocation is returned when saving a nil allocation.
	ErrNilAllocation = errors.New("circulation: nil allocation")
	// ErrMissingHeatData is returned when a month has no building heat metering.
	ErrMissingHeatData = errors.New("circulation: missing heat data")
	// ErrHeatingTariffNotFlat is returned when circulation would be priced with a
	// time-of-use heating tariff; a monthly circulation figure has no time of day.
	ErrHeatingTariffNotFlat = errors.New("circulation: heating tariff must be flat")
	// ErrEmptyBuildingID is returned when building id is empty.
	ErrEmptyBuildingID = errors.New("circulation: empty building id")
)
