package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/shopspring/decimal"

	readings "utility-billing/internal/readings/domain"
	tariffs "utility-billing/internal/tariffs/domain"
	"utility-billing/internal/tariffs/pricing"
)

const tableTariffs = "tariffs"

var tariffColumns = []string{
	"id", "provider_id", "service_type", "name", "version", "active_from", "active_until",
	"currency", "pricing", "fixed_monthly_fee", "created_at",
}

func builder() sq.StatementBuilderType {
	return sq.StatementBuilder.PlaceholderFormat(sq.Dollar)
}

// Catalog stores tariff versions; the pricing configuration is kept as JSON.
type Catalog struct {
	db       *sql.DB
	resolver *pricing.Resolver
}

// NewCatalog constructs a catalog.
func NewCatalog(db *sql.DB, resolver *pricing.Resolver) *Catalog {
	if resolver == nil {
		resolver = pricing.NewResolver()
	}
	return &Catalog{db: db, resolver: resolver}
}

// TariffFor returns the version active at the instant.
func (c *Catalog) TariffFor(ctx context.Context, providerID string, service readings.ServiceType, at time.Time) (*tariffs.Tariff, error) {
	if c == nil || c.db == nil {
		return nil, errors.New("tariff catalog: nil db")
	}
	query, args, err := builder().Select(tariffColumns...).
		From(tableTariffs).
		Where(sq.Eq{"provider_id": providerID, "service_type": string(service)}).
		Where(sq.LtOrEq{"active_from": at}).
		Where(sq.Or{sq.Eq{"active_until": nil}, sq.Gt{"active_until": at}}).
		OrderBy("version DESC").
		ToSql()
	if err != nil {
		return nil, err
	}
	versions, err := c.list(ctx, c.db, query, args)
	if err != nil {
		return nil, err
	}
	t, err := c.resolver.SelectVersion(versions, at)
	if err != nil {
		return nil, fmt.Errorf("provider=%s service=%s: %w", providerID, service, err)
	}
	return t, nil
}

// Add stores a new version. Versions of the same provider and service may not overlap.
func (c *Catalog) Add(ctx context.Context, t *tariffs.Tariff) error {
	if c == nil || c.db == nil {
		return errors.New("tariff catalog: nil db")
	}
	if t == nil {
		return tariffs.ErrNilPricing
	}
	return c.inTx(ctx, func(tx *sql.Tx) error {
		if err := c.checkOverlap(ctx, tx, t); err != nil {
			return err
		}
		return insertTariff(ctx, tx, t)
	})
}

// Supersede closes the stored version and inserts its successor atomically.
func (c *Catalog) Supersede(ctx context.Context, closed, next *tariffs.Tariff) error {
	if c == nil || c.db == nil {
		return errors.New("tariff catalog: nil db")
	}
	if closed == nil || next == nil || closed.ActiveUntil == nil {
		return tariffs.ErrInvalidWindow
	}
	return c.inTx(ctx, func(tx *sql.Tx) error {
		query, args, err := builder().Update(tableTariffs).
			Set("active_until", *closed.ActiveUntil).
			Where(sq.Eq{"id": closed.ID}).
			ToSql()
		if err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n == 0 {
			return tariffs.ErrTariffNotFound
		}
		if err := c.checkOverlap(ctx, tx, next); err != nil {
			return err
		}
		return insertTariff(ctx, tx, next)
	})
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (c *Catalog) checkOverlap(ctx context.Context, tx *sql.Tx, t *tariffs.Tariff) error {
	query, args, err := builder().Select(tariffColumns...).
		From(tableTariffs).
		Where(sq.Eq{"provider_id": t.ProviderID, "service_type": string(t.ServiceType)}).
		Suffix("FOR UPDATE").
		ToSql()
	if err != nil {
		return err
	}
	existing, err := c.list(ctx, tx, query, args)
	if err != nil {
		return err
	}
	for _, e := range existing {
		if e.ID != t.ID && e.Overlaps(t) {
			return fmt.Errorf("%w: %s and %s", tariffs.ErrTariffOverlap, e.ID, t.ID)
		}
	}
	return nil
}

func (c *Catalog) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func insertTariff(ctx context.Context, tx *sql.Tx, t *tariffs.Tariff) error {
	config, err := tariffs.MarshalPricing(t.Pricing)
	if err != nil {
		return err
	}
	var until sql.NullTime
	if t.ActiveUntil != nil {
		until = sql.NullTime{Time: *t.ActiveUntil, Valid: true}
	}
	query, args, err := builder().Insert(tableTariffs).
		Columns(tariffColumns...).
		Values(t.ID, t.ProviderID, string(t.ServiceType), t.Name, t.Version, t.ActiveFrom, until,
			t.Currency, config, t.FixedMonthlyFee, t.CreatedAt).
		ToSql()
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, query, args...)
	return err
}

func (c *Catalog) list(ctx context.Context, q queryer, query string, args []any) ([]*tariffs.Tariff, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*tariffs.Tariff
	for rows.Next() {
		var t tariffs.Tariff
		var service string
		var until sql.NullTime
		var config []byte
		var fee decimal.NullDecimal
		if err := rows.Scan(&t.ID, &t.ProviderID, &service, &t.Name, &t.Version, &t.ActiveFrom, &until,
			&t.Currency, &config, &fee, &t.CreatedAt); err != nil {
			return nil, err
		}
		p, err := tariffs.UnmarshalPricing(config)
		if err != nil {
			return nil, fmt.Errorf("tariff %s: %w", t.ID, err)
		}
		t.ServiceType = readings.ServiceType(service)
		t.Pricing = p
		t.FixedMonthlyFee = fee
		t.ActiveFrom = t.ActiveFrom.UTC()
		t.CreatedAt = t.CreatedAt.UTC()
		if until.Valid {
			u := until.Time.UTC()
			t.ActiveUntil = &u
		}
		out = append(out, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
