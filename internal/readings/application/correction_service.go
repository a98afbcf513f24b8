package application

import (
	"context"
	"errors"
	"log"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"utility-billing/internal/audit"
	readings "utility-billing/internal/readings/domain"
)

// CorrectionService applies audited corrections to stored readings.
type CorrectionService struct {
	repo      ReadingRepository
	audit     audit.Logger
	publisher Publisher
	clock     Clock
	logger    *log.Logger
}

// NewCorrectionService constructs the service. publisher and logger may be nil.
func NewCorrectionService(repo ReadingRepository, auditLogger audit.Logger, publisher Publisher, logger *log.Logger) (*CorrectionService, error) {
	if repo == nil {
		return nil, errors.New("correction service: nil repo")
	}
	if auditLogger == nil {
		return nil, errors.New("correction service: nil audit logger")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &CorrectionService{
		repo:      repo,
		audit:     auditLogger,
		publisher: publisher,
		clock:     systemClock{},
		logger:    logger,
	}, nil
}

// Correct replaces a reading value. The reading returns to pending and the
// change is written to the audit log before the call returns.
func (s *CorrectionService) Correct(ctx context.Context, readingID string, newValue decimal.Decimal, reason, actor string) (*readings.MeterReading, error) {
	r, err := s.repo.Get(ctx, readingID)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now().UTC()
	correction, err := r.Correct(uuid.NewString(), newValue, reason, actor, now)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, r); err != nil {
		return nil, err
	}

	meta := audit.Metadata(map[string]string{
		"meter_id":  r.MeterID,
		"old_value": correction.OldValue.String(),
		"new_value": correction.NewValue.String(),
		"reason":    reason,
	})
	entry := audit.Entry{
		ID:            audit.NewID(),
		Actor:         actor,
		Action:        audit.ActionReadingCorrect,
		ResourceType:  "meter_reading",
		ResourceID:    r.ID,
		Metadata:      meta,
		PayloadDigest: audit.DigestJSON(meta),
		CreatedAt:     now,
	}
	if err := s.audit.Log(ctx, entry); err != nil {
		return nil, err
	}
	if s.publisher != nil {
		event := ReadingCorrected{
			ReadingID:  r.ID,
			MeterID:    r.MeterID,
			OldValue:   correction.OldValue.String(),
			NewValue:   correction.NewValue.String(),
			Actor:      actor,
			OccurredAt: now,
		}
		if err := s.publisher.Publish(ctx, event); err != nil {
			s.logger.Printf("reading event publish failed: reading=%s err=%v", r.ID, err)
		}
	}
	s.logger.Printf("reading corrected: id=%s actor=%s old=%s new=%s", r.ID, actor, correction.OldValue, correction.NewValue)
	return r, nil
}
