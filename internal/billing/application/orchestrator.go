package application

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	billing "utility-billing/internal/billing/domain"
	circulation "utility-billing/internal/circulation/domain"
	"utility-billing/internal/consumption"
	"utility-billing/internal/observability/metrics"
	portfolio "utility-billing/internal/portfolio/domain"
	readings "utility-billing/internal/readings/domain"
	tariffs "utility-billing/internal/tariffs/domain"
	"utility-billing/internal/tariffs/pricing"
)

const defaultMaxPeriodMonths = 3

// OrchestratorOption configures the orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithCirculation enables circulation lines for participating buildings.
func WithCirculation(shares CirculationShares) OrchestratorOption {
	return func(o *Orchestrator) {
		o.circulation = shares
	}
}

// WithLocker replaces the in-process locker.
func WithLocker(l Locker) OrchestratorOption {
	return func(o *Orchestrator) {
		if l != nil {
			o.locker = l
		}
	}
}

// WithPublisher sets the event publisher.
func WithPublisher(p Publisher) OrchestratorOption {
	return func(o *Orchestrator) {
		o.publisher = p
	}
}

// WithResolver sets the tariff resolver.
func WithResolver(r *pricing.Resolver) OrchestratorOption {
	return func(o *Orchestrator) {
		if r != nil {
			o.resolver = r
		}
	}
}

// WithOrchestratorClock overrides the clock.
func WithOrchestratorClock(c Clock) OrchestratorOption {
	return func(o *Orchestrator) {
		if c != nil {
			o.clock = c
		}
	}
}

// WithOrchestratorLogger sets the logger.
func WithOrchestratorLogger(l *log.Logger) OrchestratorOption {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMaxPeriodMonths bounds the billing period span.
func WithMaxPeriodMonths(n int) OrchestratorOption {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxPeriodMonths = n
		}
	}
}

// WithDefaultCurrency sets the currency of invoices without priced lines.
func WithDefaultCurrency(currency string) OrchestratorOption {
	return func(o *Orchestrator) {
		if currency != "" {
			o.defaultCurrency = currency
		}
	}
}

// Orchestrator assembles draft invoices from validated readings, tariffs and
// circulation allocations.
type Orchestrator struct {
	readings        ReadingStore
	tariffs         TariffStore
	invoices        InvoiceStore
	directory       Directory
	circulation     CirculationShares
	locker          Locker
	publisher       Publisher
	resolver        *pricing.Resolver
	clock           Clock
	logger          *log.Logger
	maxPeriodMonths int
	defaultCurrency string
}

// NewOrchestrator constructs an orchestrator.
func NewOrchestrator(readingStore ReadingStore, tariffStore TariffStore, invoices InvoiceStore, directory Directory, opts ...OrchestratorOption) (*Orchestrator, error) {
	if readingStore == nil {
		return nil, errors.New("billing orchestrator: nil reading store")
	}
	if tariffStore == nil {
		return nil, errors.New("billing orchestrator: nil tariff store")
	}
	if invoices == nil {
		return nil, errors.New("billing orchestrator: nil invoice store")
	}
	if directory == nil {
		return nil, errors.New("billing orchestrator: nil directory")
	}
	o := &Orchestrator{
		readings:        readingStore,
		tariffs:         tariffStore,
		invoices:        invoices,
		directory:       directory,
		locker:          NewKeyedLocker(),
		resolver:        pricing.NewResolver(),
		clock:           SystemClock{},
		logger:          log.Default(),
		maxPeriodMonths: defaultMaxPeriodMonths,
		defaultCurrency: "EUR",
	}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	return o, nil
}

// GenerateInvoice builds and stores a draft invoice for a tenant and period.
// It succeeds completely or stores nothing; a second call for the same tenant
// and period fails with ErrDuplicateInvoice.
func (o *Orchestrator) GenerateInvoice(ctx context.Context, tenantID string, start, end time.Time) (inv *billing.Invoice, err error) {
	started := time.Now()
	defer func() {
		result := metrics.ResultSuccess
		switch {
		case errors.Is(err, billing.ErrDuplicateInvoice):
			result = metrics.ResultDuplicate
		case err != nil:
			result = metrics.ResultError
		}
		metrics.ObserveInvoiceGenerate(result, time.Since(started))
	}()

	if tenantID == "" {
		return nil, billing.ErrEmptyTenantID
	}
	if err := o.checkPeriod(start, end); err != nil {
		return nil, err
	}

	unlock, err := o.locker.Lock(ctx, invoiceLockKey(tenantID, start, end))
	if err != nil {
		return nil, fmt.Errorf("invoice lock: %w", err)
	}
	defer unlock()

	existing, err := o.invoices.ExistingInvoice(ctx, tenantID, start, end)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, &billing.DuplicateInvoiceError{ExistingID: existing.ID}
	}

	property, err := o.directory.PropertyOfTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if property == nil {
		return nil, fmt.Errorf("%w: tenant=%s", billing.ErrNoProperty, tenantID)
	}
	meters, err := o.directory.MetersOf(ctx, property.ID)
	if err != nil {
		return nil, err
	}
	if len(meters) == 0 {
		return nil, fmt.Errorf("%w: property=%s", billing.ErrNoMeters, property.ID)
	}

	now := o.clock.Now()
	inv, err = billing.NewDraft(uuid.NewString(), tenantID, property.ID, start, end, "", now)
	if err != nil {
		return nil, err
	}
	b := &invoiceBuilder{
		invoice:  inv,
		now:      now,
		seen:     make(map[string]bool),
		supplies: make(map[supplyKey]*tariffs.Tariff),
	}

	for _, meter := range meters {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := o.addMeterItems(ctx, b, meter, start, end); err != nil {
			return nil, err
		}
	}
	if err := o.addFixedFees(ctx, b, start, end); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := o.addCirculation(ctx, b, property, start); err != nil {
		return nil, err
	}

	currency, err := b.currency(o.defaultCurrency)
	if err != nil {
		return nil, err
	}
	inv.Currency = currency
	inv.Recalculate(now)

	if err := o.invoices.Save(ctx, inv); err != nil {
		return nil, err
	}
	o.logger.Printf("invoice generated: id=%s tenant=%s period=%s..%s items=%d total=%s %s",
		inv.ID, tenantID, start.Format("2006-01-02"), end.Format("2006-01-02"), len(inv.Items), inv.TotalAmount.StringFixed(2), inv.Currency)
	o.publish(ctx, InvoiceGenerated{
		InvoiceID:   inv.ID,
		TenantID:    tenantID,
		PeriodStart: start,
		PeriodEnd:   end,
		Total:       inv.TotalAmount,
		Currency:    inv.Currency,
		OccurredAt:  now,
	})
	return inv.Clone(), nil
}

func (o *Orchestrator) checkPeriod(start, end time.Time) error {
	if start.IsZero() || end.IsZero() || end.Before(start) {
		return billing.ErrInvalidPeriod
	}
	if start.AddDate(0, o.maxPeriodMonths, 0).Before(end) {
		return fmt.Errorf("%w: more than %d months", billing.ErrPeriodTooLong, o.maxPeriodMonths)
	}
	now := o.clock.Now()
	if start.After(now) || end.After(now) {
		return billing.ErrFuturePeriod
	}
	return nil
}

func invoiceLockKey(tenantID string, start, end time.Time) string {
	return "invoice:" + tenantID + ":" + start.UTC().Format(time.RFC3339) + ":" + end.UTC().Format(time.RFC3339)
}

type lineKey struct {
	meterID  string
	zone     string
	tariffID string
	rateZone string
	rate     string
}

// supplyKey identifies one supply: a provider's service. Its tariff versions
// share a single fixed fee per billing period.
type supplyKey struct {
	providerID string
	service    readings.ServiceType
}

type invoiceBuilder struct {
	invoice     *billing.Invoice
	now         time.Time
	seen        map[string]bool
	supplies    map[supplyKey]*tariffs.Tariff
	supplyOrder []supplyKey
	currencies  []string
}

// useTariff records a priced version; per supply the most recent version wins.
func (b *invoiceBuilder) useTariff(t *tariffs.Tariff) {
	if !b.seen[t.ID] {
		b.seen[t.ID] = true
		b.currencies = append(b.currencies, t.Currency)
	}
	key := supplyKey{providerID: t.ProviderID, service: t.ServiceType}
	current, ok := b.supplies[key]
	if !ok {
		b.supplyOrder = append(b.supplyOrder, key)
	}
	if !ok || t.ActiveFrom.After(current.ActiveFrom) {
		b.supplies[key] = t
	}
}

func (b *invoiceBuilder) currency(fallback string) (string, error) {
	currency := ""
	for _, c := range b.currencies {
		if currency == "" {
			currency = c
			continue
		}
		if c != currency {
			return "", fmt.Errorf("%w: %s and %s", billing.ErrCurrencyMismatch, currency, c)
		}
	}
	if currency == "" {
		currency = fallback
	}
	return currency, nil
}

// addMeterItems prices every delta of a meter and folds deltas with the same
// zone, tariff and rate into one line.
func (o *Orchestrator) addMeterItems(ctx context.Context, b *invoiceBuilder, meter readings.Meter, start, end time.Time) error {
	list, err := o.readings.ReadingsInPeriod(ctx, meter.ID, start, end)
	if err != nil {
		return err
	}
	byZone := make(map[string][]readings.MeterReading)
	for _, r := range list {
		if r.IsValidated() {
			byZone[r.Zone] = append(byZone[r.Zone], r)
		}
	}
	if len(byZone) == 0 {
		return fmt.Errorf("%w: meter=%s", billing.ErrMissingReadings, meter.ID)
	}
	zones := make([]string, 0, len(byZone))
	for zone := range byZone {
		zones = append(zones, zone)
	}
	sort.Strings(zones)

	var keys []lineKey
	lines := make(map[lineKey]*billing.InvoiceItem)
	for _, zone := range zones {
		seq, err := o.zoneSequence(ctx, meter.ID, zone, start, byZone[zone])
		if err != nil {
			return err
		}
		deltas := consumption.Batch(seq)
		if len(deltas) == 0 {
			return fmt.Errorf("%w: meter=%s zone=%q has no opening reading", billing.ErrMissingReadings, meter.ID, zone)
		}
		for _, d := range deltas {
			at := d.Current.ReadingDate
			tariff, err := o.tariffs.TariffFor(ctx, meter.ProviderID, meter.ServiceType, at)
			if err != nil {
				return err
			}
			if tariff == nil {
				return fmt.Errorf("%w: provider=%s service=%s at=%s", tariffs.ErrNoApplicableTariff, meter.ProviderID, meter.ServiceType, at.Format(time.RFC3339))
			}
			rate, err := o.resolver.RateFor(tariff, at, zone)
			if err != nil {
				return err
			}
			b.useTariff(tariff)

			key := lineKey{meterID: meter.ID, zone: zone, tariffID: tariff.ID, rateZone: rate.ZoneID, rate: rate.Value.String()}
			line, ok := lines[key]
			if !ok {
				snap, err := tariffSnapshot(tariff, rate)
				if err != nil {
					return err
				}
				line = &billing.InvoiceItem{
					ID:           uuid.NewString(),
					Kind:         billing.ItemConsumption,
					Description:  consumptionDescription(meter, rate.ZoneID),
					Unit:         meter.ServiceType.Unit(),
					Quantity:     decimal.Zero,
					UnitPrice:    rate.Value,
					MeterID:      meter.ID,
					Zone:         zone,
					TariffZoneID: rate.ZoneID,
					Snapshot:     billing.Snapshot{Tariff: snap},
				}
				lines[key] = line
				keys = append(keys, key)
			}
			line.Quantity = line.Quantity.Add(d.Quantity)
			line.Snapshot.Readings = append(line.Snapshot.Readings, readingSnapshot(meter, d))
		}
	}
	for _, key := range keys {
		line := lines[key]
		line.Total = line.Quantity.Mul(line.UnitPrice).Round(2)
		if err := b.invoice.AddItem(*line, b.now); err != nil {
			return err
		}
	}
	return nil
}

// zoneSequence returns the readings that bound the period's consumption: the
// opening reading (at or before start) followed by the readings after start.
func (o *Orchestrator) zoneSequence(ctx context.Context, meterID, zone string, start time.Time, inPeriod []readings.MeterReading) ([]readings.MeterReading, error) {
	var opening *readings.MeterReading
	var rest []readings.MeterReading
	for i := range inPeriod {
		r := inPeriod[i]
		if r.ReadingDate.Equal(start) {
			opening = &r
			continue
		}
		rest = append(rest, r)
	}
	if opening == nil {
		prior, err := o.readings.PriorReading(ctx, meterID, zone, start)
		if err != nil {
			return nil, err
		}
		opening = prior
	}
	if opening == nil {
		return rest, nil
	}
	return append([]readings.MeterReading{*opening}, rest...), nil
}

// addFixedFees charges each supply's fixed fee once, using the version active
// at the end of the period, or the latest version billed when none is.
func (o *Orchestrator) addFixedFees(ctx context.Context, b *invoiceBuilder, start, end time.Time) error {
	period := pricing.Period{Start: start, End: end}
	for _, key := range b.supplyOrder {
		t := b.supplies[key]
		atEnd, err := o.tariffs.TariffFor(ctx, key.providerID, key.service, end)
		switch {
		case err == nil && atEnd != nil:
			t = atEnd
		case err != nil && !errors.Is(err, tariffs.ErrNoApplicableTariff):
			return err
		}
		fee, ok := o.resolver.FixedFeeFor(t, period)
		if !ok {
			continue
		}
		item, err := billing.NewItem(uuid.NewString(), billing.ItemFixedFee,
			fmt.Sprintf("%s fixed fee", serviceLabel(t.ServiceType)), "month", decimal.NewFromInt(1), fee)
		if err != nil {
			return err
		}
		snap, err := tariffSnapshot(t, pricing.Rate{Value: fee})
		if err != nil {
			return err
		}
		item.Snapshot.Tariff = snap
		if err := b.invoice.AddItem(item, b.now); err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) addCirculation(ctx context.Context, b *invoiceBuilder, property *portfolio.Property, start time.Time) error {
	if property.BuildingID == "" {
		return nil
	}
	building, err := o.directory.Building(ctx, property.BuildingID)
	if err != nil {
		return err
	}
	if building == nil || !building.CirculationBilling {
		return nil
	}
	if o.circulation == nil {
		return errors.New("billing orchestrator: circulation billing enabled without allocator")
	}
	alloc, share, err := o.circulation.ShareFor(ctx, building.ID, property.ID, circulation.MonthStart(start))
	if err != nil {
		return err
	}
	item, err := billing.NewItem(uuid.NewString(), billing.ItemCirculation, "Hot water circulation", "month", decimal.NewFromInt(1), share.Amount)
	if err != nil {
		return err
	}
	item.Snapshot.Circulation = &billing.CirculationSnapshot{
		BuildingID:     alloc.BuildingID,
		Month:          alloc.Month,
		Season:         string(alloc.Season),
		Method:         string(alloc.Method),
		CirculationKWh: alloc.CirculationKWh,
		BuildingCost:   alloc.TotalCost,
		PropertyArea:   share.Area,
	}
	if alloc.Currency != "" {
		b.currencies = append(b.currencies, alloc.Currency)
	}
	return b.invoice.AddItem(item, b.now)
}

func (o *Orchestrator) publish(ctx context.Context, event any) {
	if o.publisher == nil {
		return
	}
	if err := o.publisher.Publish(ctx, event); err != nil {
		o.logger.Printf("billing event publish failed: %T: %v", event, err)
	}
}

func tariffSnapshot(t *tariffs.Tariff, rate pricing.Rate) (*billing.TariffSnapshot, error) {
	config, err := tariffs.MarshalPricing(t.Pricing)
	if err != nil {
		return nil, err
	}
	return &billing.TariffSnapshot{
		TariffID:      t.ID,
		Name:          t.Name,
		Version:       t.Version,
		Kind:          string(t.Pricing.Kind()),
		Currency:      t.Currency,
		ZoneID:        rate.ZoneID,
		Rate:          rate.Value,
		Configuration: config,
	}, nil
}

func readingSnapshot(meter readings.Meter, d consumption.Delta) billing.ReadingSnapshot {
	return billing.ReadingSnapshot{
		MeterID:        meter.ID,
		MeterSerial:    meter.SerialNumber,
		Zone:           d.Zone,
		StartReadingID: d.Previous.ID,
		StartValue:     d.Previous.Value,
		StartDate:      d.Previous.ReadingDate,
		EndReadingID:   d.Current.ID,
		EndValue:       d.Current.Value,
		EndDate:        d.Current.ReadingDate,
		Quantity:       d.Quantity,
	}
}

func serviceLabel(s readings.ServiceType) string {
	switch s {
	case readings.ServiceElectricity:
		return "Electricity"
	case readings.ServiceWater:
		return "Water"
	case readings.ServiceHeating:
		return "Heating"
	default:
		return string(s)
	}
}

func consumptionDescription(meter readings.Meter, zoneID string) string {
	label := serviceLabel(meter.ServiceType)
	if meter.SerialNumber != "" {
		label += " meter " + meter.SerialNumber
	}
	if zoneID != "" {
		label += " (" + zoneID + ")"
	}
	return label
}
