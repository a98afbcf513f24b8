package application

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"utility-billing/internal/observability/metrics"
	readings "utility-billing/internal/readings/domain"
	"utility-billing/internal/readings/validation"
)

// ReadingInput is a raw reading submitted for the record.
type ReadingInput struct {
	MeterID     string
	ReadingDate time.Time
	Value       decimal.Decimal
	Zone        string
	InputMethod readings.InputMethod
	EnteredBy   string
}

// ValidationService records readings and runs them through the validator.
type ValidationService struct {
	repo      ReadingRepository
	meters    MeterDirectory
	batch     *validation.BatchValidator
	publisher Publisher
	clock     Clock
	logger    *log.Logger
}

// ValidationOption configures a ValidationService.
type ValidationOption func(*ValidationService)

// WithValidationPublisher sets the event publisher.
func WithValidationPublisher(p Publisher) ValidationOption {
	return func(s *ValidationService) { s.publisher = p }
}

// WithValidationClock overrides the clock.
func WithValidationClock(c Clock) ValidationOption {
	return func(s *ValidationService) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithValidationLogger sets the logger.
func WithValidationLogger(l *log.Logger) ValidationOption {
	return func(s *ValidationService) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewValidationService constructs the service.
func NewValidationService(repo ReadingRepository, meters MeterDirectory, batch *validation.BatchValidator, opts ...ValidationOption) (*ValidationService, error) {
	if repo == nil {
		return nil, errors.New("validation service: nil repo")
	}
	if meters == nil {
		return nil, errors.New("validation service: nil meter directory")
	}
	if batch == nil {
		return nil, errors.New("validation service: nil batch validator")
	}
	s := &ValidationService{
		repo:   repo,
		meters: meters,
		batch:  batch,
		clock:  systemClock{},
		logger: log.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

// Record stores a new pending reading.
func (s *ValidationService) Record(ctx context.Context, in ReadingInput) (*readings.MeterReading, error) {
	meter, err := s.meters.Meter(ctx, in.MeterID)
	if err != nil {
		return nil, err
	}
	if meter == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMeter, in.MeterID)
	}
	method := in.InputMethod
	if method == "" {
		method = readings.InputManual
	}
	r, err := readings.NewMeterReading(uuid.NewString(), in.MeterID, in.ReadingDate.UTC(), in.Value, in.Zone, method, in.EnteredBy)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now().UTC()
	r.CreatedAt, r.UpdatedAt = now, now
	if err := s.repo.Save(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

// Validate runs pending readings through the batch validator and stores each
// verdict. Rejected readings keep their value and become rejected; accepted and
// flagged readings become validated by actor.
func (s *ValidationService) Validate(ctx context.Context, ids []string, actor string) (results []validation.Result, err error) {
	started := s.clock.Now()
	defer func() {
		result := metrics.ResultSuccess
		if err != nil {
			result = metrics.ResultError
		}
		metrics.ObserveReadingBatch(result, time.Since(started))
	}()
	if len(ids) == 0 {
		return nil, ErrNoReadings
	}

	batch := make([]readings.MeterReading, 0, len(ids))
	meters := make(map[string]readings.Meter)
	for _, id := range ids {
		r, err := s.repo.Get(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("load reading %s: %w", id, err)
		}
		if r.Status != readings.StatusPending {
			return nil, fmt.Errorf("%w: %s is %s", ErrNotPending, id, r.Status)
		}
		if _, ok := meters[r.MeterID]; !ok {
			meter, err := s.meters.Meter(ctx, r.MeterID)
			if err != nil {
				return nil, err
			}
			if meter != nil {
				meters[r.MeterID] = *meter
			}
		}
		batch = append(batch, *r)
	}

	results, err = s.batch.ValidateBatch(ctx, meters, batch)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now().UTC()
	for i, res := range results {
		reading := batch[i]
		reading.Status = res.ReadingStatus()
		if reading.Status == readings.StatusValidated {
			reading.ValidatedBy = actor
		}
		reading.UpdatedAt = now
		if err := s.repo.Save(ctx, &reading); err != nil {
			return nil, fmt.Errorf("save reading %s: %w", reading.ID, err)
		}
		metrics.IncReadingValidation(string(res.Outcome))
		s.announce(ctx, reading, res, now)
	}
	s.logger.Printf("readings validated: count=%d actor=%s", len(results), actor)
	return results, nil
}

func (s *ValidationService) announce(ctx context.Context, reading readings.MeterReading, res validation.Result, now time.Time) {
	if s.publisher == nil {
		return
	}
	var event any
	switch res.Outcome {
	case validation.OutcomeFlagged:
		event = ReadingFlagged{
			ReadingID:   reading.ID,
			MeterID:     reading.MeterID,
			Zone:        reading.Zone,
			ReadingDate: reading.ReadingDate,
			Value:       reading.Value.String(),
			Warnings:    codes(res.Warnings),
			OccurredAt:  now,
		}
	case validation.OutcomeRejected:
		event = ReadingRejected{
			ReadingID:  reading.ID,
			MeterID:    reading.MeterID,
			Violations: codes(res.Violations),
			OccurredAt: now,
		}
	default:
		return
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Printf("reading event publish failed: reading=%s err=%v", reading.ID, err)
	}
}

func codes(findings []validation.Finding) []string {
	out := make([]string, 0, len(findings))
	for _, f := range findings {
		out = append(out, string(f.Code))
	}
	return out
}
