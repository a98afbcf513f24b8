package application

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/shopspring/decimal"

	circulation "utility-billing/internal/circulation/domain"
	"utility-billing/internal/observability/metrics"
	portfolio "utility-billing/internal/portfolio/domain"
	readings "utility-billing/internal/readings/domain"
	tariffs "utility-billing/internal/tariffs/domain"
	"utility-billing/internal/tariffs/pricing"
)

// BuildingStore loads buildings and their properties.
type BuildingStore interface {
	Building(ctx context.Context, buildingID string) (*portfolio.Building, error)
	PropertiesOf(ctx context.Context, buildingID string) ([]portfolio.Property, error)
}

// HeatDataReader loads building level heat metering for a month.
type HeatDataReader interface {
	MonthlyHeatData(ctx context.Context, buildingID string, month time.Time) (*circulation.HeatData, error)
}

// AllocationStore persists allocations. Save replaces any allocation for the
// same building and month as a whole.
type AllocationStore interface {
	Find(ctx context.Context, buildingID string, month time.Time) (*circulation.Allocation, error)
	Save(ctx context.Context, allocation *circulation.Allocation) error
}

// BaselineStore keeps the summer circulation baseline per building.
type BaselineStore interface {
	SummerBaseline(ctx context.Context, buildingID string) (decimal.NullDecimal, error)
	SaveSummerBaseline(ctx context.Context, buildingID string, value decimal.Decimal, at time.Time) error
}

// TariffSource returns the tariff version active at an instant.
type TariffSource interface {
	TariffFor(ctx context.Context, providerID string, service readings.ServiceType, at time.Time) (*tariffs.Tariff, error)
}

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// AllocatorOption configures the allocator.
type AllocatorOption func(*Allocator)

// WithSeason overrides the heating season.
func WithSeason(season circulation.Season) AllocatorOption {
	return func(a *Allocator) {
		a.season = season
	}
}

// WithConstants overrides the physical constants.
func WithConstants(c circulation.Constants) AllocatorOption {
	return func(a *Allocator) {
		a.constants = c
	}
}

// WithDefaultMethod sets the method used when a building has none.
func WithDefaultMethod(m circulation.Method) AllocatorOption {
	return func(a *Allocator) {
		if m != "" {
			a.defaultMethod = m
		}
	}
}

// WithClock overrides the clock.
func WithClock(c Clock) AllocatorOption {
	return func(a *Allocator) {
		if c != nil {
			a.clock = c
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) AllocatorOption {
	return func(a *Allocator) {
		if l != nil {
			a.logger = l
		}
	}
}

// Allocator estimates hot water circulation losses and splits them between properties.
type Allocator struct {
	buildings     BuildingStore
	heat          HeatDataReader
	allocations   AllocationStore
	baselines     BaselineStore
	tariffs       TariffSource
	resolver      *pricing.Resolver
	season        circulation.Season
	constants     circulation.Constants
	defaultMethod circulation.Method
	clock         Clock
	logger        *log.Logger
}

// NewAllocator constructs an allocator.
func NewAllocator(buildings BuildingStore, heat HeatDataReader, allocations AllocationStore, baselines BaselineStore, tariffSource TariffSource, resolver *pricing.Resolver, opts ...AllocatorOption) (*Allocator, error) {
	if buildings == nil {
		return nil, errors.New("circulation allocator: nil building store")
	}
	if heat == nil {
		return nil, errors.New("circulation allocator: nil heat data reader")
	}
	if allocations == nil {
		return nil, errors.New("circulation allocator: nil allocation store")
	}
	if baselines == nil {
		return nil, errors.New("circulation allocator: nil baseline store")
	}
	if tariffSource == nil {
		return nil, errors.New("circulation allocator: nil tariff source")
	}
	if resolver == nil {
		resolver = pricing.NewResolver()
	}
	a := &Allocator{
		buildings:     buildings,
		heat:          heat,
		allocations:   allocations,
		baselines:     baselines,
		tariffs:       tariffSource,
		resolver:      resolver,
		season:        circulation.DefaultSeason(),
		constants:     circulation.DefaultConstants(),
		defaultMethod: circulation.MethodArea,
		clock:         systemClock{},
		logger:        log.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	if err := a.constants.Validate(); err != nil {
		return nil, err
	}
	return a, nil
}

// CalculateMonth computes and stores the allocation of a building for a month,
// replacing any earlier result.
func (a *Allocator) CalculateMonth(ctx context.Context, buildingID string, month time.Time) (alloc *circulation.Allocation, err error) {
	start := time.Now()
	month = circulation.MonthStart(month)
	season := a.season.KindOf(month)
	defer func() {
		result := metrics.ResultSuccess
		if err != nil {
			result = metrics.ResultError
		}
		metrics.ObserveAllocation(string(season), result, time.Since(start))
	}()

	if buildingID == "" {
		return nil, circulation.ErrEmptyBuildingID
	}
	building, err := a.buildings.Building(ctx, buildingID)
	if err != nil {
		return nil, err
	}
	props, err := a.buildings.PropertiesOf(ctx, buildingID)
	if err != nil {
		return nil, err
	}
	if len(props) == 0 {
		return nil, fmt.Errorf("%w: building=%s", circulation.ErrNoProperties, buildingID)
	}
	method := a.defaultMethod
	if building.DistributionMethod != "" {
		if method, err = circulation.ParseMethod(building.DistributionMethod); err != nil {
			return nil, err
		}
	}

	var kwh decimal.Decimal
	if season == circulation.SeasonSummer {
		kwh, err = a.summerMonth(ctx, buildingID, month)
	} else {
		kwh, err = a.winterMonth(ctx, buildingID)
	}
	if err != nil {
		return nil, err
	}

	tariff, err := a.tariffs.TariffFor(ctx, building.HeatingProviderID, readings.ServiceHeating, month)
	if err != nil {
		return nil, err
	}
	if tariff == nil {
		return nil, fmt.Errorf("%w: heating provider=%s", tariffs.ErrNoApplicableTariff, building.HeatingProviderID)
	}
	if kind := tariff.Pricing.Kind(); kind != tariffs.KindFlat {
		return nil, fmt.Errorf("%w: tariff %s is %s", circulation.ErrHeatingTariffNotFlat, tariff.ID, kind)
	}
	rate, err := a.resolver.RateFor(tariff, month, "")
	if err != nil {
		return nil, err
	}
	total := kwh.Mul(rate.Value).Round(2)

	recipients := make([]circulation.Recipient, len(props))
	for i, p := range props {
		recipients[i] = circulation.Recipient{PropertyID: p.ID, Area: p.Area}
	}
	shares, err := circulation.Distribute(total, recipients, method)
	if err != nil {
		return nil, err
	}

	alloc = &circulation.Allocation{
		BuildingID:     buildingID,
		Month:          month,
		Season:         season,
		CirculationKWh: kwh,
		UnitPrice:      rate.Value,
		TotalCost:      total,
		Currency:       tariff.Currency,
		Method:         method,
		Shares:         shares,
		CalculatedAt:   a.clock.Now(),
	}
	if err := a.allocations.Save(ctx, alloc); err != nil {
		return nil, err
	}
	a.logger.Printf("circulation allocated: building=%s month=%s season=%s kwh=%s total=%s properties=%d",
		buildingID, month.Format("2006-01"), season, kwh, total, len(shares))
	return alloc, nil
}

func (a *Allocator) summerMonth(ctx context.Context, buildingID string, month time.Time) (decimal.Decimal, error) {
	data, err := a.heat.MonthlyHeatData(ctx, buildingID, month)
	if err != nil {
		return decimal.Zero, err
	}
	if data == nil {
		return decimal.Zero, fmt.Errorf("%w: building=%s month=%s", circulation.ErrMissingHeatData, buildingID, month.Format("2006-01"))
	}
	kwh, err := circulation.SummerCirculation(*data, a.constants)
	if err != nil {
		return decimal.Zero, fmt.Errorf("building=%s month=%s: %w", buildingID, month.Format("2006-01"), err)
	}
	return kwh, nil
}

func (a *Allocator) winterMonth(ctx context.Context, buildingID string) (decimal.Decimal, error) {
	baseline, err := a.baselines.SummerBaseline(ctx, buildingID)
	if err != nil {
		return decimal.Zero, err
	}
	if !baseline.Valid {
		return decimal.Zero, fmt.Errorf("%w: building=%s", circulation.ErrMissingBaseline, buildingID)
	}
	return baseline.Decimal, nil
}

// RecomputeSummerBaseline averages the summer months of year and stores the result.
// Every summer month must have complete heat and hot water data.
func (a *Allocator) RecomputeSummerBaseline(ctx context.Context, buildingID string, year int) (decimal.Decimal, error) {
	if buildingID == "" {
		return decimal.Zero, circulation.ErrEmptyBuildingID
	}
	var monthly []decimal.Decimal
	for _, m := range a.season.SummerMonths() {
		month := time.Date(year, m, 1, 0, 0, 0, 0, time.UTC)
		kwh, err := a.summerMonth(ctx, buildingID, month)
		if err != nil {
			return decimal.Zero, err
		}
		monthly = append(monthly, kwh)
	}
	baseline, err := circulation.SummerBaseline(monthly)
	if err != nil {
		return decimal.Zero, err
	}
	if err := a.baselines.SaveSummerBaseline(ctx, buildingID, baseline, a.clock.Now()); err != nil {
		return decimal.Zero, err
	}
	a.logger.Printf("summer baseline stored: building=%s year=%d kwh=%s", buildingID, year, baseline)
	return baseline, nil
}

// ShareFor returns a property's share for a month, calculating the allocation
// when none is stored yet.
func (a *Allocator) ShareFor(ctx context.Context, buildingID, propertyID string, month time.Time) (*circulation.Allocation, circulation.Share, error) {
	alloc, err := a.allocations.Find(ctx, buildingID, circulation.MonthStart(month))
	if err != nil {
		return nil, circulation.Share{}, err
	}
	if alloc == nil {
		if alloc, err = a.CalculateMonth(ctx, buildingID, month); err != nil {
			return nil, circulation.Share{}, err
		}
	}
	share, err := alloc.ShareFor(propertyID)
	if err != nil {
		return nil, circulation.Share{}, fmt.Errorf("building=%s property=%s: %w", buildingID, propertyID, err)
	}
	return alloc, share, nil
}

// Allocation returns the stored allocation of a building for a month, or nil.
func (a *Allocator) Allocation(ctx context.Context, buildingID string, month time.Time) (*circulation.Allocation, error) {
	return a.allocations.Find(ctx, buildingID, circulation.MonthStart(month))
}
