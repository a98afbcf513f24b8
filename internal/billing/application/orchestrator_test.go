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

	billing "utility-billing/internal/billing/domain"
	"utility-billing/internal/billing/infrastructure/memory"
	circulation "utility-billing/internal/circulation/domain"
	portfolio "utility-billing/internal/portfolio/domain"
	portfoliomem "utility-billing/internal/portfolio/infrastructure/memory"
	readings "utility-billing/internal/readings/domain"
	readingmem "utility-billing/internal/readings/infrastructure/memory"
	tariffs "utility-billing/internal/tariffs/domain"
	tariffmem "utility-billing/internal/tariffs/infrastructure/memory"
)

var (
	janStart = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	janEnd   = time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC)
)

type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now() time.Time { return c.now }

type recordingPublisher struct {
	mu     sync.Mutex
	events []any
}

func (p *recordingPublisher) Publish(ctx context.Context, event any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

type stubShares struct {
	alloc *circulation.Allocation
	share circulation.Share
	err   error
	calls int
}

func (s *stubShares) ShareFor(ctx context.Context, buildingID, propertyID string, month time.Time) (*circulation.Allocation, circulation.Share, error) {
	s.calls++
	return s.alloc, s.share, s.err
}

type billingFixture struct {
	directory *portfoliomem.Directory
	readings  *readingmem.ReadingStore
	catalog   *tariffmem.Catalog
	invoices  *memory.InvoiceRepository
	publisher *recordingPublisher
}

func newBillingFixture(t *testing.T) *billingFixture {
	t.Helper()
	dir := portfoliomem.NewDirectory()
	dir.PutBuilding(portfolio.Building{ID: "b-1", HeatingProviderID: "heat-co"})
	dir.PutProperty(portfolio.Property{ID: "p-1", BuildingID: "b-1", Area: decimal.NewFromInt(50)})
	dir.PutTenant(portfolio.Tenant{ID: "t-1", PropertyID: "p-1", Name: "Tenant One"})
	return &billingFixture{
		directory: dir,
		readings:  readingmem.NewReadingStore(),
		catalog:   tariffmem.NewCatalog(nil),
		invoices:  memory.NewInvoiceRepository(),
		publisher: &recordingPublisher{},
	}
}

func (f *billingFixture) orchestrator(t *testing.T, opts ...OrchestratorOption) *Orchestrator {
	t.Helper()
	base := []OrchestratorOption{
		WithOrchestratorClock(fixedClock{now: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)}),
		WithOrchestratorLogger(log.New(io.Discard, "", 0)),
		WithPublisher(f.publisher),
	}
	o, err := NewOrchestrator(f.readings, f.catalog, f.invoices, f.directory, append(base, opts...)...)
	if err != nil {
		t.Fatalf("new orchestrator: %v", err)
	}
	return o
}

func (f *billingFixture) meter(id string, service readings.ServiceType, provider string) {
	f.directory.PutMeter(readings.Meter{
		ID:           id,
		PropertyID:   "p-1",
		ProviderID:   provider,
		ServiceType:  service,
		SerialNumber: "SN-" + id,
	})
}

func (f *billingFixture) reading(t *testing.T, id, meterID string, at time.Time, value, zone string) {
	t.Helper()
	r, err := readings.NewMeterReading(id, meterID, at, decimal.RequireFromString(value), zone, readings.InputManual, "operator")
	if err != nil {
		t.Fatalf("new reading: %v", err)
	}
	r.Status = readings.StatusValidated
	if err := f.readings.Save(context.Background(), r); err != nil {
		t.Fatalf("save reading: %v", err)
	}
}

func (f *billingFixture) flatTariff(t *testing.T, id, provider string, service readings.ServiceType, rate string, fee *string) {
	t.Helper()
	p := tariffs.Params{
		ID:          id,
		ProviderID:  provider,
		ServiceType: service,
		Name:        id,
		ActiveFrom:  time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		Currency:    "EUR",
		Pricing:     tariffs.FlatPricing{Rate: decimal.RequireFromString(rate)},
	}
	if fee != nil {
		p.FixedMonthlyFee = decimal.NewNullDecimal(decimal.RequireFromString(*fee))
	}
	tariff, err := tariffs.New(p)
	if err != nil {
		t.Fatalf("new tariff: %v", err)
	}
	if err := f.catalog.Add(tariff); err != nil {
		t.Fatalf("add tariff: %v", err)
	}
}

func TestGenerateInvoiceFlatRate(t *testing.T) {
	f := newBillingFixture(t)
	f.meter("m-1", readings.ServiceElectricity, "power-co")
	f.flatTariff(t, "flat", "power-co", readings.ServiceElectricity, "0.20", nil)
	f.reading(t, "r-1", "m-1", janStart, "1000", "")
	f.reading(t, "r-2", "m-1", janEnd, "1040", "")

	inv, err := f.orchestrator(t).GenerateInvoice(context.Background(), "t-1", janStart, janEnd)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if inv.Status != billing.StatusDraft || inv.Currency != "EUR" || inv.PropertyID != "p-1" {
		t.Fatalf("unexpected invoice %+v", inv)
	}
	if len(inv.Items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(inv.Items))
	}
	item := inv.Items[0]
	if item.Kind != billing.ItemConsumption || item.Quantity.String() != "40" || item.Unit != "kWh" {
		t.Fatalf("unexpected item %+v", item)
	}
	if item.Total.StringFixed(2) != "8.00" || inv.TotalAmount.StringFixed(2) != "8.00" {
		t.Fatalf("expected 8.00, got item=%s invoice=%s", item.Total, inv.TotalAmount)
	}
	if item.Snapshot.Tariff == nil || item.Snapshot.Tariff.TariffID != "flat" || len(item.Snapshot.Tariff.Configuration) == 0 {
		t.Fatalf("missing tariff snapshot %+v", item.Snapshot.Tariff)
	}
	if len(item.Snapshot.Readings) != 1 || item.Snapshot.Readings[0].StartReadingID != "r-1" || item.Snapshot.Readings[0].EndReadingID != "r-2" {
		t.Fatalf("unexpected reading snapshot %+v", item.Snapshot.Readings)
	}
	stored, _ := f.invoices.Get(context.Background(), inv.ID)
	if stored == nil || !stored.TotalAmount.Equal(inv.TotalAmount) {
		t.Fatalf("invoice not stored")
	}
	if f.publisher.count() != 1 {
		t.Fatalf("expected 1 event, got %d", f.publisher.count())
	}
}

func TestGenerateInvoiceOpensFromPriorPeriod(t *testing.T) {
	f := newBillingFixture(t)
	f.meter("m-1", readings.ServiceWater, "water-co")
	f.flatTariff(t, "water", "water-co", readings.ServiceWater, "2.50", nil)
	f.reading(t, "r-0", "m-1", janStart.AddDate(0, 0, -1), "100", "")
	f.reading(t, "r-1", "m-1", janStart.AddDate(0, 0, 14), "104", "")
	f.reading(t, "r-2", "m-1", janEnd, "110", "")

	inv, err := f.orchestrator(t).GenerateInvoice(context.Background(), "t-1", janStart, janEnd)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(inv.Items) != 1 {
		t.Fatalf("expected deltas folded into 1 item, got %d", len(inv.Items))
	}
	item := inv.Items[0]
	if item.Quantity.String() != "10" || item.Unit != "m3" || item.Total.StringFixed(2) != "25.00" {
		t.Fatalf("unexpected item %+v", item)
	}
	if len(item.Snapshot.Readings) != 2 || item.Snapshot.Readings[0].StartReadingID != "r-0" {
		t.Fatalf("unexpected reading snapshots %+v", item.Snapshot.Readings)
	}
}

func TestGenerateInvoiceIgnoresUnvalidatedReadings(t *testing.T) {
	f := newBillingFixture(t)
	f.meter("m-1", readings.ServiceElectricity, "power-co")
	f.flatTariff(t, "flat", "power-co", readings.ServiceElectricity, "0.20", nil)
	f.reading(t, "r-1", "m-1", janStart, "1000", "")
	pending, _ := readings.NewMeterReading("r-2", "m-1", janEnd, decimal.NewFromInt(1040), "", readings.InputManual, "operator")
	_ = f.readings.Save(context.Background(), pending)

	_, err := f.orchestrator(t).GenerateInvoice(context.Background(), "t-1", janStart, janEnd)
	if !errors.Is(err, billing.ErrMissingReadings) {
		t.Fatalf("expected ErrMissingReadings, got %v", err)
	}
}

func TestGenerateInvoiceDuplicate(t *testing.T) {
	f := newBillingFixture(t)
	f.meter("m-1", readings.ServiceElectricity, "power-co")
	f.flatTariff(t, "flat", "power-co", readings.ServiceElectricity, "0.20", nil)
	f.reading(t, "r-1", "m-1", janStart, "1000", "")
	f.reading(t, "r-2", "m-1", janEnd, "1040", "")
	o := f.orchestrator(t)

	first, err := o.GenerateInvoice(context.Background(), "t-1", janStart, janEnd)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	_, err = o.GenerateInvoice(context.Background(), "t-1", janStart, janEnd)
	if !errors.Is(err, billing.ErrDuplicateInvoice) {
		t.Fatalf("expected ErrDuplicateInvoice, got %v", err)
	}
	var dup *billing.DuplicateInvoiceError
	if !errors.As(err, &dup) || dup.ExistingID != first.ID {
		t.Fatalf("expected existing id %s, got %v", first.ID, err)
	}
}

func TestGenerateInvoiceConcurrentCallsCreateOne(t *testing.T) {
	f := newBillingFixture(t)
	f.meter("m-1", readings.ServiceElectricity, "power-co")
	f.flatTariff(t, "flat", "power-co", readings.ServiceElectricity, "0.20", nil)
	f.reading(t, "r-1", "m-1", janStart, "1000", "")
	f.reading(t, "r-2", "m-1", janEnd, "1040", "")
	o := f.orchestrator(t)

	const workers = 8
	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded, duplicates := 0, 0
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := o.GenerateInvoice(context.Background(), "t-1", janStart, janEnd)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, billing.ErrDuplicateInvoice):
				duplicates++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	if succeeded != 1 || duplicates != workers-1 {
		t.Fatalf("expected 1 success and %d duplicates, got %d and %d", workers-1, succeeded, duplicates)
	}
}

func TestGenerateInvoiceConfigurationErrorsStoreNothing(t *testing.T) {
	cases := []struct {
		name   string
		tenant string
		setup  func(t *testing.T, f *billingFixture)
		want   error
	}{
		{
			name:   "no property",
			tenant: "ghost",
			setup:  func(t *testing.T, f *billingFixture) {},
			want:   billing.ErrNoProperty,
		},
		{
			name:   "no meters",
			tenant: "t-1",
			setup:  func(t *testing.T, f *billingFixture) {},
			want:   billing.ErrNoMeters,
		},
		{
			name:   "no tariff",
			tenant: "t-1",
			setup: func(t *testing.T, f *billingFixture) {
				f.meter("m-1", readings.ServiceElectricity, "power-co")
				f.reading(t, "r-1", "m-1", janStart, "1000", "")
				f.reading(t, "r-2", "m-1", janEnd, "1040", "")
			},
			want: tariffs.ErrNoApplicableTariff,
		},
		{
			name:   "one meter without tariff",
			tenant: "t-1",
			setup: func(t *testing.T, f *billingFixture) {
				f.meter("m-1", readings.ServiceElectricity, "power-co")
				f.flatTariff(t, "flat", "power-co", readings.ServiceElectricity, "0.20", nil)
				f.reading(t, "r-1", "m-1", janStart, "1000", "")
				f.reading(t, "r-2", "m-1", janEnd, "1040", "")
				f.meter("m-2", readings.ServiceWater, "water-co")
				f.reading(t, "r-3", "m-2", janStart, "10", "")
				f.reading(t, "r-4", "m-2", janEnd, "12", "")
			},
			want: tariffs.ErrNoApplicableTariff,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newBillingFixture(t)
			tc.setup(t, f)
			_, err := f.orchestrator(t).GenerateInvoice(context.Background(), tc.tenant, janStart, janEnd)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			existing, _ := f.invoices.ExistingInvoice(context.Background(), tc.tenant, janStart, janEnd)
			if existing != nil {
				t.Fatalf("expected nothing stored, got %s", existing.ID)
			}
			if f.publisher.count() != 0 {
				t.Fatalf("expected no events")
			}
		})
	}
}

func TestGenerateInvoicePeriodChecks(t *testing.T) {
	f := newBillingFixture(t)
	o := f.orchestrator(t)
	cases := []struct {
		name       string
		start, end time.Time
		want       error
	}{
		{"end before start", janEnd, janStart, billing.ErrInvalidPeriod},
		{"longer than three months", time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC), time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC), billing.ErrPeriodTooLong},
		{"future end", time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC), time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC), billing.ErrFuturePeriod},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := o.GenerateInvoice(context.Background(), "t-1", tc.start, tc.end)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
	if _, err := o.GenerateInvoice(context.Background(), "", janStart, janEnd); !errors.Is(err, billing.ErrEmptyTenantID) {
		t.Fatalf("expected ErrEmptyTenantID, got %v", err)
	}
}

func TestGenerateInvoiceTimeOfUseZones(t *testing.T) {
	f := newBillingFixture(t)
	f.directory.PutMeter(readings.Meter{
		ID: "m-1", PropertyID: "p-1", ProviderID: "power-co",
		ServiceType: readings.ServiceElectricity, SupportsZones: true,
	})
	tariff, err := tariffs.New(tariffs.Params{
		ID:          "tou",
		ProviderID:  "power-co",
		ServiceType: readings.ServiceElectricity,
		ActiveFrom:  time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		Currency:    "EUR",
		Pricing: tariffs.TimeOfUsePricing{Zones: []tariffs.Zone{
			{ID: tariffs.ZoneDay, StartMinute: 7 * 60, EndMinute: 23 * 60, Rate: decimal.RequireFromString("0.30")},
			{ID: tariffs.ZoneNight, StartMinute: 23 * 60, EndMinute: 7 * 60, Rate: decimal.RequireFromString("0.15")},
		}},
	})
	if err != nil {
		t.Fatalf("new tariff: %v", err)
	}
	if err := f.catalog.Add(tariff); err != nil {
		t.Fatalf("add tariff: %v", err)
	}
	f.reading(t, "d-1", "m-1", janStart, "500", tariffs.ZoneDay)
	f.reading(t, "d-2", "m-1", janEnd, "600", tariffs.ZoneDay)
	f.reading(t, "n-1", "m-1", janStart, "200", tariffs.ZoneNight)
	f.reading(t, "n-2", "m-1", janEnd, "240", tariffs.ZoneNight)

	inv, err := f.orchestrator(t).GenerateInvoice(context.Background(), "t-1", janStart, janEnd)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(inv.Items) != 2 {
		t.Fatalf("expected 2 zone items, got %d", len(inv.Items))
	}
	got := map[string]string{}
	for _, item := range inv.Items {
		got[item.TariffZoneID] = item.Total.StringFixed(2)
	}
	// day 100 * 0.30, night 40 * 0.15
	if got[tariffs.ZoneDay] != "30.00" || got[tariffs.ZoneNight] != "6.00" {
		t.Fatalf("unexpected zone totals %v", got)
	}
	if inv.TotalAmount.StringFixed(2) != "36.00" {
		t.Fatalf("expected 36.00, got %s", inv.TotalAmount)
	}
}

func TestGenerateInvoiceFixedFeeOncePerTariff(t *testing.T) {
	f := newBillingFixture(t)
	fee := "5.00"
	f.flatTariff(t, "flat", "power-co", readings.ServiceElectricity, "0.20", &fee)
	f.meter("m-1", readings.ServiceElectricity, "power-co")
	f.meter("m-2", readings.ServiceElectricity, "power-co")
	f.reading(t, "a-1", "m-1", janStart, "0", "")
	f.reading(t, "a-2", "m-1", janEnd, "10", "")
	f.reading(t, "b-1", "m-2", janStart, "0", "")
	f.reading(t, "b-2", "m-2", janEnd, "20", "")

	inv, err := f.orchestrator(t).GenerateInvoice(context.Background(), "t-1", janStart, janEnd)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	fees := 0
	for _, item := range inv.Items {
		if item.Kind == billing.ItemFixedFee {
			fees++
		}
	}
	if fees != 1 || len(inv.Items) != 3 {
		t.Fatalf("expected 2 consumption items and 1 fee, got %d items and %d fees", len(inv.Items), fees)
	}
	// 10*0.20 + 20*0.20 + 5.00
	if inv.TotalAmount.StringFixed(2) != "11.00" {
		t.Fatalf("expected 11.00, got %s", inv.TotalAmount)
	}
}

func TestGenerateInvoiceFixedFeeOncePerSupplyAcrossVersions(t *testing.T) {
	f := newBillingFixture(t)
	fee := "5.00"
	f.flatTariff(t, "flat-v1", "power-co", readings.ServiceElectricity, "0.20", &fee)
	v1, err := f.catalog.TariffFor(context.Background(), "power-co", readings.ServiceElectricity, janStart)
	if err != nil {
		t.Fatalf("tariff v1: %v", err)
	}
	closed, v2, err := v1.Supersede("flat-v2", time.Date(2026, 1, 16, 0, 0, 0, 0, time.UTC),
		tariffs.FlatPricing{Rate: decimal.RequireFromString("0.25")}, decimal.NewNullDecimal(decimal.RequireFromString("6.00")))
	if err != nil {
		t.Fatalf("supersede: %v", err)
	}
	if err := f.catalog.Supersede(closed, v2); err != nil {
		t.Fatalf("catalog supersede: %v", err)
	}
	f.meter("m-1", readings.ServiceElectricity, "power-co")
	f.reading(t, "r-1", "m-1", janStart, "0", "")
	f.reading(t, "r-2", "m-1", time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC), "10", "")
	f.reading(t, "r-3", "m-1", janEnd, "30", "")

	inv, err := f.orchestrator(t).GenerateInvoice(context.Background(), "t-1", janStart, janEnd)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	var fees []billing.InvoiceItem
	for _, item := range inv.Items {
		if item.Kind == billing.ItemFixedFee {
			fees = append(fees, item)
		}
	}
	if len(fees) != 1 {
		t.Fatalf("expected one fixed fee for the supply, got %d", len(fees))
	}
	if fees[0].Total.StringFixed(2) != "6.00" || fees[0].Snapshot.Tariff == nil || fees[0].Snapshot.Tariff.TariffID != "flat-v2" {
		t.Fatalf("expected fee of the version active at period end, got %+v", fees[0])
	}
	// 10*0.20 + 20*0.25 + 6.00
	if inv.TotalAmount.StringFixed(2) != "13.00" {
		t.Fatalf("expected 13.00, got %s", inv.TotalAmount)
	}
}

func TestGenerateInvoiceCirculationItem(t *testing.T) {
	f := newBillingFixture(t)
	f.directory.PutBuilding(portfolio.Building{ID: "b-1", HeatingProviderID: "heat-co", CirculationBilling: true})
	f.meter("m-1", readings.ServiceElectricity, "power-co")
	f.flatTariff(t, "flat", "power-co", readings.ServiceElectricity, "0.20", nil)
	f.reading(t, "r-1", "m-1", janStart, "1000", "")
	f.reading(t, "r-2", "m-1", janEnd, "1040", "")
	shares := &stubShares{
		alloc: &circulation.Allocation{
			BuildingID: "b-1", Month: janStart, Season: circulation.SeasonHeating,
			Method: circulation.MethodArea, CirculationKWh: decimal.NewFromInt(400),
			TotalCost: decimal.NewFromInt(40), Currency: "EUR",
		},
		share: circulation.Share{PropertyID: "p-1", Area: decimal.NewFromInt(50), Amount: decimal.RequireFromString("10.00")},
	}

	inv, err := f.orchestrator(t, WithCirculation(shares)).GenerateInvoice(context.Background(), "t-1", janStart, janEnd)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	var circ *billing.InvoiceItem
	for i := range inv.Items {
		if inv.Items[i].Kind == billing.ItemCirculation {
			circ = &inv.Items[i]
		}
	}
	if circ == nil || circ.Total.StringFixed(2) != "10.00" || circ.Snapshot.Circulation == nil {
		t.Fatalf("unexpected circulation item %+v", circ)
	}
	if inv.TotalAmount.StringFixed(2) != "18.00" {
		t.Fatalf("expected 18.00, got %s", inv.TotalAmount)
	}

	if err := f.invoices.Delete(context.Background(), inv.ID); err != nil {
		t.Fatalf("delete draft: %v", err)
	}
	shares.err = circulation.ErrMissingBaseline
	_, err = f.orchestrator(t, WithCirculation(shares)).GenerateInvoice(context.Background(), "t-1", janStart, janEnd)
	if !errors.Is(err, circulation.ErrMissingBaseline) {
		t.Fatalf("expected ErrMissingBaseline, got %v", err)
	}
}

func TestGenerateInvoiceCurrencyMismatch(t *testing.T) {
	f := newBillingFixture(t)
	f.meter("m-1", readings.ServiceElectricity, "power-co")
	f.meter("m-2", readings.ServiceWater, "water-co")
	f.flatTariff(t, "flat", "power-co", readings.ServiceElectricity, "0.20", nil)
	usd, err := tariffs.New(tariffs.Params{
		ID: "water", ProviderID: "water-co", ServiceType: readings.ServiceWater,
		ActiveFrom: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), Currency: "USD",
		Pricing: tariffs.FlatPricing{Rate: decimal.NewFromInt(2)},
	})
	if err != nil {
		t.Fatalf("new tariff: %v", err)
	}
	_ = f.catalog.Add(usd)
	f.reading(t, "a-1", "m-1", janStart, "0", "")
	f.reading(t, "a-2", "m-1", janEnd, "10", "")
	f.reading(t, "b-1", "m-2", janStart, "0", "")
	f.reading(t, "b-2", "m-2", janEnd, "1", "")

	_, err = f.orchestrator(t).GenerateInvoice(context.Background(), "t-1", janStart, janEnd)
	if !errors.Is(err, billing.ErrCurrencyMismatch) {
		t.Fatalf("expected ErrCurrencyMismatch, got %v", err)
	}
}

func TestGenerateInvoiceCanceledContext(t *testing.T) {
	f := newBillingFixture(t)
	f.meter("m-1", readings.ServiceElectricity, "power-co")
	f.flatTariff(t, "flat", "power-co", readings.ServiceElectricity, "0.20", nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.orchestrator(t).GenerateInvoice(ctx, "t-1", janStart, janEnd)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestKeyedLockerHonorsContext(t *testing.T) {
	l := NewKeyedLocker()
	unlock, err := l.Lock(context.Background(), "k")
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := l.Lock(ctx, "k"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	unlock()
	unlock()
	again, err := l.Lock(context.Background(), "k")
	if err != nil {
		t.Fatalf("relock: %v", err)
	}
	again()
}
