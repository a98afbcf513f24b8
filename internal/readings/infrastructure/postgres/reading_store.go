package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/shopspring/decimal"

	"utility-billing/internal/consumption"
	readings "utility-billing/internal/readings/domain"
)

const (
	tableReadings    = "meter_readings"
	tableCorrections = "reading_corrections"

	historyDepth = 25
)

var readingColumns = []string{
	"id", "meter_id", "reading_date", "value", "zone", "input_method",
	"entered_by", "validated_by", "status", "created_at", "updated_at",
}

func builder() sq.StatementBuilderType {
	return sq.StatementBuilder.PlaceholderFormat(sq.Dollar)
}

// ReadingStore persists meter readings and their corrections.
type ReadingStore struct {
	db *sql.DB
}

// NewReadingStore constructs a store.
func NewReadingStore(db *sql.DB) *ReadingStore {
	return &ReadingStore{db: db}
}

// Save upserts a reading and appends corrections not stored yet.
func (s *ReadingStore) Save(ctx context.Context, r *readings.MeterReading) error {
	if s == nil || s.db == nil {
		return errors.New("reading store: nil db")
	}
	if r == nil {
		return readings.ErrNilReading
	}
	query, args, err := builder().Insert(tableReadings).
		Columns(readingColumns...).
		Values(r.ID, r.MeterID, r.ReadingDate, r.Value, r.Zone, string(r.InputMethod),
			r.EnteredBy, nullString(r.ValidatedBy), string(r.Status), r.CreatedAt, r.UpdatedAt).
		Suffix(`ON CONFLICT (id) DO UPDATE SET value = EXCLUDED.value, validated_by = EXCLUDED.validated_by,
	status = EXCLUDED.status, updated_at = EXCLUDED.updated_at`).
		ToSql()
	if err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		_ = tx.Rollback()
		return err
	}
	if len(r.Corrections) > 0 {
		insert := builder().Insert(tableCorrections).
			Columns("id", "reading_id", "old_value", "new_value", "reason", "actor", "corrected_at")
		for _, c := range r.Corrections {
			insert = insert.Values(c.ID, r.ID, c.OldValue, c.NewValue, c.Reason, c.Actor, c.CorrectedAt)
		}
		cq, cargs, err := insert.Suffix("ON CONFLICT (id) DO NOTHING").ToSql()
		if err != nil {
			_ = tx.Rollback()
			return err
		}
		if _, err := tx.ExecContext(ctx, cq, cargs...); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// Get fetches a reading with its correction history.
func (s *ReadingStore) Get(ctx context.Context, id string) (*readings.MeterReading, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("reading store: nil db")
	}
	query, args, err := builder().Select(readingColumns...).
		From(tableReadings).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, err
	}
	r, err := scanReading(s.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, readings.ErrReadingNotFound
		}
		return nil, err
	}
	r.Corrections, err = s.corrections(ctx, id)
	if err != nil {
		return nil, err
	}
	return r, nil
}

// PriorReading returns the latest validated reading of meter and zone strictly before the instant, or nil.
func (s *ReadingStore) PriorReading(ctx context.Context, meterID, zone string, before time.Time) (*readings.MeterReading, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("reading store: nil db")
	}
	query, args, err := builder().Select(readingColumns...).
		From(tableReadings).
		Where(sq.Eq{"meter_id": meterID, "zone": zone, "status": string(readings.StatusValidated)}).
		Where(sq.Lt{"reading_date": before}).
		OrderBy("reading_date DESC").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, err
	}
	r, err := scanReading(s.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return r, nil
}

// NextReading returns the earliest validated reading of meter and zone at or after the instant, or nil.
func (s *ReadingStore) NextReading(ctx context.Context, meterID, zone string, from time.Time) (*readings.MeterReading, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("reading store: nil db")
	}
	query, args, err := builder().Select(readingColumns...).
		From(tableReadings).
		Where(sq.Eq{"meter_id": meterID, "zone": zone, "status": string(readings.StatusValidated)}).
		Where(sq.GtOrEq{"reading_date": from}).
		OrderBy("reading_date ASC").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, err
	}
	r, err := scanReading(s.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return r, nil
}

// ReadingsBetween returns the pending and validated readings of meter and zone dated within [from, to], oldest first.
func (s *ReadingStore) ReadingsBetween(ctx context.Context, meterID, zone string, from, to time.Time) ([]readings.MeterReading, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("reading store: nil db")
	}
	query, args, err := builder().Select(readingColumns...).
		From(tableReadings).
		Where(sq.Eq{"meter_id": meterID, "zone": zone}).
		Where(sq.NotEq{"status": string(readings.StatusRejected)}).
		Where(sq.GtOrEq{"reading_date": from}).
		Where(sq.LtOrEq{"reading_date": to}).
		OrderBy("reading_date ASC", "id ASC").
		ToSql()
	if err != nil {
		return nil, err
	}
	return s.list(ctx, query, args)
}

// ReadingsInPeriod returns all readings of a meter dated within [start, end], oldest first.
func (s *ReadingStore) ReadingsInPeriod(ctx context.Context, meterID string, start, end time.Time) ([]readings.MeterReading, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("reading store: nil db")
	}
	query, args, err := builder().Select(readingColumns...).
		From(tableReadings).
		Where(sq.Eq{"meter_id": meterID}).
		Where(sq.GtOrEq{"reading_date": start}).
		Where(sq.LtOrEq{"reading_date": end}).
		OrderBy("reading_date ASC", "id ASC").
		ToSql()
	if err != nil {
		return nil, err
	}
	return s.list(ctx, query, args)
}

// ConsumptionHistory returns recent consumption between consecutive validated readings before the instant.
func (s *ReadingStore) ConsumptionHistory(ctx context.Context, meterID, zone string, before time.Time) ([]decimal.Decimal, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("reading store: nil db")
	}
	query, args, err := builder().Select(readingColumns...).
		From(tableReadings).
		Where(sq.Eq{"meter_id": meterID, "zone": zone, "status": string(readings.StatusValidated)}).
		Where(sq.Lt{"reading_date": before}).
		OrderBy("reading_date DESC").
		Limit(historyDepth).
		ToSql()
	if err != nil {
		return nil, err
	}
	list, err := s.list(ctx, query, args)
	if err != nil {
		return nil, err
	}
	deltas := consumption.Batch(list)
	out := make([]decimal.Decimal, 0, len(deltas))
	for _, d := range deltas {
		out = append(out, d.Quantity)
	}
	return out, nil
}

// PendingCount returns the number of readings awaiting validation.
func (s *ReadingStore) PendingCount(ctx context.Context) (int, error) {
	if s == nil || s.db == nil {
		return 0, errors.New("reading store: nil db")
	}
	query, args, err := builder().Select("COUNT(*)").
		From(tableReadings).
		Where(sq.Eq{"status": string(readings.StatusPending)}).
		ToSql()
	if err != nil {
		return 0, err
	}
	var n int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (s *ReadingStore) list(ctx context.Context, query string, args []any) ([]readings.MeterReading, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []readings.MeterReading
	for rows.Next() {
		r, err := scanReading(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *ReadingStore) corrections(ctx context.Context, readingID string) ([]readings.Correction, error) {
	query, args, err := builder().Select("id", "reading_id", "old_value", "new_value", "reason", "actor", "corrected_at").
		From(tableCorrections).
		Where(sq.Eq{"reading_id": readingID}).
		OrderBy("corrected_at ASC").
		ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []readings.Correction
	for rows.Next() {
		var c readings.Correction
		if err := rows.Scan(&c.ID, &c.ReadingID, &c.OldValue, &c.NewValue, &c.Reason, &c.Actor, &c.CorrectedAt); err != nil {
			return nil, err
		}
		c.CorrectedAt = c.CorrectedAt.UTC()
		out = append(out, c)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReading(row rowScanner) (*readings.MeterReading, error) {
	var r readings.MeterReading
	var method, status string
	var validatedBy sql.NullString
	if err := row.Scan(&r.ID, &r.MeterID, &r.ReadingDate, &r.Value, &r.Zone, &method,
		&r.EnteredBy, &validatedBy, &status, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	r.InputMethod = readings.InputMethod(method)
	r.Status = readings.ValidationStatus(status)
	r.ValidatedBy = validatedBy.String
	r.ReadingDate = r.ReadingDate.UTC()
	r.CreatedAt = r.CreatedAt.UTC()
	r.UpdatedAt = r.UpdatedAt.UTC()
	return &r, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
