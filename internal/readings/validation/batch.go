package validation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	readings "utility-billing/internal/readings/domain"
)

// SequenceSource loads the stored readings surrounding the ones being validated.
type SequenceSource interface {
	// PriorReading returns the latest validated reading strictly before the instant, or nil.
	PriorReading(ctx context.Context, meterID, zone string, before time.Time) (*readings.MeterReading, error)
	// NextReading returns the earliest validated reading at or after the instant, or nil.
	NextReading(ctx context.Context, meterID, zone string, from time.Time) (*readings.MeterReading, error)
	// ReadingsBetween returns pending and validated readings dated within [from, to].
	ReadingsBetween(ctx context.Context, meterID, zone string, from, to time.Time) ([]readings.MeterReading, error)
}

// HistorySource loads earlier per-period consumption values.
type HistorySource interface {
	ConsumptionHistory(ctx context.Context, meterID, zone string, before time.Time) ([]decimal.Decimal, error)
}

// BatchOption configures a BatchValidator.
type BatchOption func(*BatchValidator)

// WithHistorySource sets the source of historical consumption.
func WithHistorySource(source HistorySource) BatchOption {
	return func(b *BatchValidator) {
		b.history = source
	}
}

// WithRolloverRejection turns possible rollovers into rejections.
func WithRolloverRejection(reject bool) BatchOption {
	return func(b *BatchValidator) {
		b.rejectRollover = reject
	}
}

// WithConcurrency bounds the number of meters validated at once.
func WithConcurrency(n int) BatchOption {
	return func(b *BatchValidator) {
		if n > 0 {
			b.concurrency = n
		}
	}
}

// BatchValidator validates many readings: meters in parallel, readings of one
// meter and zone strictly in date order so each sees its accepted predecessor.
type BatchValidator struct {
	validator      *Validator
	sequence       SequenceSource
	history        HistorySource
	rejectRollover bool
	concurrency    int
}

// NewBatchValidator creates a batch validator.
func NewBatchValidator(validator *Validator, sequence SequenceSource, opts ...BatchOption) (*BatchValidator, error) {
	if validator == nil {
		return nil, errors.New("batch validator: nil validator")
	}
	if sequence == nil {
		return nil, errors.New("batch validator: nil sequence source")
	}
	b := &BatchValidator{
		validator:   validator,
		sequence:    sequence,
		concurrency: 8,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b, nil
}

// ValidateBatch returns one result per input reading, in input order.
func (b *BatchValidator) ValidateBatch(ctx context.Context, meters map[string]readings.Meter, batch []readings.MeterReading) ([]Result, error) {
	results := make([]Result, len(batch))
	byMeter := make(map[string][]int)
	for i, r := range batch {
		if _, ok := meters[r.MeterID]; !ok {
			res := Result{ReadingID: r.ID}
			res.reject(CodeUnknownMeter, fmt.Sprintf("meter %s is not registered", r.MeterID))
			res.settle()
			results[i] = res
			continue
		}
		byMeter[r.MeterID] = append(byMeter[r.MeterID], i)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.concurrency)
	for meterID, idx := range byMeter {
		meter := meters[meterID]
		idx := idx
		g.Go(func() error {
			return b.validateMeter(gctx, meter, batch, idx, results)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (b *BatchValidator) validateMeter(ctx context.Context, meter readings.Meter, batch []readings.MeterReading, idx []int, results []Result) error {
	byZone := make(map[string][]int)
	inBatch := make(map[string]bool, len(idx))
	for _, i := range idx {
		byZone[batch[i].Zone] = append(byZone[batch[i].Zone], i)
		inBatch[batch[i].ID] = true
	}
	window := b.validator.cfg.DuplicateWindow
	for zone, zoneIdx := range byZone {
		sort.SliceStable(zoneIdx, func(a, c int) bool {
			return batch[zoneIdx[a]].ReadingDate.Before(batch[zoneIdx[c]].ReadingDate)
		})
		first := batch[zoneIdx[0]].ReadingDate
		last := batch[zoneIdx[len(zoneIdx)-1]].ReadingDate
		var history []decimal.Decimal
		if b.history != nil {
			loaded, err := b.history.ConsumptionHistory(ctx, meter.ID, zone, first)
			if err != nil {
				return fmt.Errorf("consumption history meter=%s zone=%s: %w", meter.ID, zone, err)
			}
			history = append(history, loaded...)
		}
		nearby, err := b.sequence.ReadingsBetween(ctx, meter.ID, zone, first.Add(-window), last.Add(window))
		if err != nil {
			return fmt.Errorf("nearby readings meter=%s zone=%s: %w", meter.ID, zone, err)
		}
		recent := make([]readings.MeterReading, 0, len(nearby)+len(zoneIdx))
		for _, r := range nearby {
			if !inBatch[r.ID] {
				recent = append(recent, r)
			}
		}

		// accepted is the latest batch reading that passed; it shadows any stored
		// prior dated earlier than itself.
		var accepted *readings.MeterReading
		for _, i := range zoneIdx {
			if err := ctx.Err(); err != nil {
				return err
			}
			reading := batch[i]
			prior, err := b.sequence.PriorReading(ctx, meter.ID, zone, reading.ReadingDate)
			if err != nil {
				return fmt.Errorf("prior reading meter=%s zone=%s: %w", meter.ID, zone, err)
			}
			if accepted != nil && (prior == nil || !accepted.ReadingDate.Before(prior.ReadingDate)) {
				prior = accepted
			}
			next, err := b.sequence.NextReading(ctx, meter.ID, zone, reading.ReadingDate)
			if err != nil {
				return fmt.Errorf("next reading meter=%s zone=%s: %w", meter.ID, zone, err)
			}
			res := b.validator.Validate(Input{
				Meter:   meter,
				Reading: reading,
				Prior:   prior,
				Next:    next,
				History: history,
				Recent:  recent,
			})
			if b.rejectRollover && res.Has(CodePossibleRollover) {
				res.reject(CodeRolloverRejected, "rollover policy rejects lower values")
				res.settle()
			}
			results[i] = res
			recent = append(recent, reading)
			if res.Outcome == OutcomeRejected {
				continue
			}
			validated := reading
			validated.Status = readings.StatusValidated
			accepted = &validated
			if res.Consumption.Valid {
				history = append(history, res.Consumption.Decimal)
			}
		}
	}
	return nil
}
