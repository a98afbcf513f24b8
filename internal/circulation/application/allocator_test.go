package application

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	circulation "utility-billing/internal/circulation/domain"
	"utility-billing/internal/circulation/infrastructure/memory"
	portfolio "utility-billing/internal/portfolio/domain"
	portfoliomem "utility-billing/internal/portfolio/infrastructure/memory"
	readings "utility-billing/internal/readings/domain"
	tariffs "utility-billing/internal/tariffs/domain"
	tariffmem "utility-billing/internal/tariffs/infrastructure/memory"
)

type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now() time.Time { return c.now }

type fixture struct {
	allocator   *Allocator
	directory   *portfoliomem.Directory
	heat        *memory.HeatData
	allocations *memory.AllocationStore
	baselines   *memory.BaselineStore
}

func newFixture(t *testing.T, method string, areas ...int64) fixture {
	t.Helper()
	dir := portfoliomem.NewDirectory()
	dir.PutBuilding(portfolio.Building{ID: "b-1", HeatingProviderID: "heat-co", CirculationBilling: true, DistributionMethod: method})
	for i, a := range areas {
		dir.PutProperty(portfolio.Property{ID: string(rune('a' + i)), BuildingID: "b-1", Area: decimal.NewFromInt(a)})
	}
	catalog := tariffmem.NewCatalog(nil)
	tariff, err := tariffs.New(tariffs.Params{
		ID:          "heat",
		ProviderID:  "heat-co",
		ServiceType: readings.ServiceHeating,
		ActiveFrom:  time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
		Currency:    "EUR",
		Pricing:     tariffs.FlatPricing{Rate: decimal.RequireFromString("0.10")},
	})
	if err != nil {
		t.Fatalf("new tariff: %v", err)
	}
	if err := catalog.Add(tariff); err != nil {
		t.Fatalf("add tariff: %v", err)
	}
	f := fixture{
		directory:   dir,
		heat:        memory.NewHeatData(),
		allocations: memory.NewAllocationStore(),
		baselines:   memory.NewBaselineStore(),
	}
	f.allocator, err = NewAllocator(dir, f.heat, f.allocations, f.baselines, catalog, nil,
		WithClock(fixedClock{now: time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)}),
		WithLogger(log.New(io.Discard, "", 0)),
	)
	if err != nil {
		t.Fatalf("new allocator: %v", err)
	}
	return f
}

func water(v int64) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.NewFromInt(v))
}

func TestCalculateSummerMonth(t *testing.T) {
	f := newFixture(t, "area", 50, 50, 100)
	june := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	// 10000 - 100 * 1.163 * 45 = 4766.5 kWh at 0.10 = 476.65
	f.heat.Put("b-1", june, circulation.HeatData{TotalHeatKWh: decimal.NewFromInt(10000), HotWaterM3: water(100)})

	alloc, err := f.allocator.CalculateMonth(context.Background(), "b-1", june.AddDate(0, 0, 14))
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	if alloc.Season != circulation.SeasonSummer || alloc.TotalCost.StringFixed(2) != "476.65" {
		t.Fatalf("unexpected allocation %+v", alloc)
	}
	if !alloc.Allocated().Equal(alloc.TotalCost) {
		t.Fatalf("shares %s do not sum to total %s", alloc.Allocated(), alloc.TotalCost)
	}
	stored, err := f.allocations.Find(context.Background(), "b-1", june)
	if err != nil || stored == nil {
		t.Fatalf("expected stored allocation, got %v (%v)", stored, err)
	}
}

func TestCalculateWinterUsesBaseline(t *testing.T) {
	f := newFixture(t, "equal", 10, 20)
	jan := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	if _, err := f.allocator.CalculateMonth(context.Background(), "b-1", jan); !errors.Is(err, circulation.ErrMissingBaseline) {
		t.Fatalf("expected ErrMissingBaseline, got %v", err)
	}
	if err := f.baselines.SaveSummerBaseline(context.Background(), "b-1", decimal.NewFromInt(400), jan); err != nil {
		t.Fatalf("save baseline: %v", err)
	}
	alloc, err := f.allocator.CalculateMonth(context.Background(), "b-1", jan)
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	if alloc.Season != circulation.SeasonHeating || alloc.TotalCost.StringFixed(2) != "40.00" {
		t.Fatalf("unexpected allocation %+v", alloc)
	}
	for _, s := range alloc.Shares {
		if s.Amount.StringFixed(2) != "20.00" {
			t.Fatalf("expected equal shares of 20.00, got %s", s.Amount)
		}
	}
}

func TestCalculateFailsFastWithoutProperties(t *testing.T) {
	f := newFixture(t, "area")
	june := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	if _, err := f.allocator.CalculateMonth(context.Background(), "b-1", june); !errors.Is(err, circulation.ErrNoProperties) {
		t.Fatalf("expected ErrNoProperties, got %v", err)
	}
}

func TestCalculateMissingWater(t *testing.T) {
	f := newFixture(t, "area", 10)
	june := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	f.heat.Put("b-1", june, circulation.HeatData{TotalHeatKWh: decimal.NewFromInt(10000)})
	if _, err := f.allocator.CalculateMonth(context.Background(), "b-1", june); !errors.Is(err, circulation.ErrMissingWaterConsumption) {
		t.Fatalf("expected ErrMissingWaterConsumption, got %v", err)
	}
}

func TestCalculateRequiresFlatHeatingTariff(t *testing.T) {
	f := newFixture(t, "area", 10)
	catalog := tariffmem.NewCatalog(nil)
	tou, err := tariffs.New(tariffs.Params{
		ID:          "heat-tou",
		ProviderID:  "heat-co",
		ServiceType: readings.ServiceHeating,
		ActiveFrom:  time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
		Currency:    "EUR",
		Pricing: tariffs.TimeOfUsePricing{Zones: []tariffs.Zone{
			{ID: tariffs.ZoneDay, StartMinute: 7 * 60, EndMinute: 23 * 60, Rate: decimal.RequireFromString("0.12")},
			{ID: tariffs.ZoneNight, StartMinute: 23 * 60, EndMinute: 7 * 60, Rate: decimal.RequireFromString("0.06")},
		}},
	})
	if err != nil {
		t.Fatalf("new tariff: %v", err)
	}
	if err := catalog.Add(tou); err != nil {
		t.Fatalf("add tariff: %v", err)
	}
	allocator, err := NewAllocator(f.directory, f.heat, f.allocations, f.baselines, catalog, nil,
		WithLogger(log.New(io.Discard, "", 0)))
	if err != nil {
		t.Fatalf("new allocator: %v", err)
	}
	june := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	f.heat.Put("b-1", june, circulation.HeatData{TotalHeatKWh: decimal.NewFromInt(10000), HotWaterM3: water(100)})
	if _, err := allocator.CalculateMonth(context.Background(), "b-1", june); !errors.Is(err, circulation.ErrHeatingTariffNotFlat) {
		t.Fatalf("expected ErrHeatingTariffNotFlat, got %v", err)
	}
	if stored, _ := f.allocations.Find(context.Background(), "b-1", june); stored != nil {
		t.Fatalf("expected nothing stored, got %+v", stored)
	}
}

func TestRecomputeSummerBaseline(t *testing.T) {
	f := newFixture(t, "area", 10)
	for m := time.May; m <= time.September; m++ {
		// circulation = total - 10 * 1.163 * 45 = total - 523.35
		total := decimal.NewFromInt(int64(1000 + 100*int(m-time.May)))
		f.heat.Put("b-1", time.Date(2025, m, 1, 0, 0, 0, 0, time.UTC), circulation.HeatData{TotalHeatKWh: total, HotWaterM3: water(10)})
	}
	baseline, err := f.allocator.RecomputeSummerBaseline(context.Background(), "b-1", 2025)
	if err != nil {
		t.Fatalf("recompute: %v", err)
	}
	// mean total 1200 - 523.35
	if baseline.StringFixed(2) != "676.65" {
		t.Fatalf("expected 676.65, got %s", baseline)
	}
	stored, _ := f.baselines.SummerBaseline(context.Background(), "b-1")
	if !stored.Valid || !stored.Decimal.Equal(baseline) {
		t.Fatalf("expected stored baseline, got %+v", stored)
	}
}

func TestRecalculationOverwrites(t *testing.T) {
	f := newFixture(t, "area", 50, 50, 100)
	june := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	f.heat.Put("b-1", june, circulation.HeatData{TotalHeatKWh: decimal.NewFromInt(10000), HotWaterM3: water(100)})
	if _, err := f.allocator.CalculateMonth(context.Background(), "b-1", june); err != nil {
		t.Fatalf("calculate: %v", err)
	}
	f.heat.Put("b-1", june, circulation.HeatData{TotalHeatKWh: decimal.NewFromInt(20000), HotWaterM3: water(100)})

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := f.allocator.CalculateMonth(context.Background(), "b-1", june)
			errs <- err
		}()
		go func() {
			defer wg.Done()
			alloc, err := f.allocations.Find(context.Background(), "b-1", june)
			if err == nil && !alloc.Allocated().Equal(alloc.TotalCost) {
				err = errors.New("partial allocation observed")
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent recalculation: %v", err)
		}
	}
	alloc, _ := f.allocations.Find(context.Background(), "b-1", june)
	// 20000 - 5233.5 = 14766.5 kWh at 0.10
	if alloc.TotalCost.StringFixed(2) != "1476.65" {
		t.Fatalf("expected overwritten total 1476.65, got %s", alloc.TotalCost)
	}
}

func TestShareForTriggersCalculation(t *testing.T) {
	f := newFixture(t, "area", 50, 50, 100)
	june := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	f.heat.Put("b-1", june, circulation.HeatData{TotalHeatKWh: decimal.NewFromInt(10000), HotWaterM3: water(100)})
	_, share, err := f.allocator.ShareFor(context.Background(), "b-1", "c", june)
	if err != nil {
		t.Fatalf("share for: %v", err)
	}
	// 476.65 * 100/200
	if share.Amount.StringFixed(2) != "238.33" && share.Amount.StringFixed(2) != "238.32" {
		t.Fatalf("unexpected share %s", share.Amount)
	}
	if _, _, err := f.allocator.ShareFor(context.Background(), "b-1", "zz", june); !errors.Is(err, circulation.ErrPropertyNotAllocated) {
		t.Fatalf("expected ErrPropertyNotAllocated, got %v", err)
	}
}
