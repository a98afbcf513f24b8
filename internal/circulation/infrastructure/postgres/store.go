package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/shopspring/decimal"

	circulation "utility-billing/internal/circulation/domain"
)

const (
	tableAllocations = "circulation_allocations"
	tableShares      = "circulation_shares"
	tableBaselines   = "circulation_baselines"
	tableHeatData    = "building_heat_data"
)

func builder() sq.StatementBuilderType {
	return sq.StatementBuilder.PlaceholderFormat(sq.Dollar)
}

// AllocationStore persists monthly allocations. Save replaces the allocation
// and its shares in one transaction.
type AllocationStore struct {
	db *sql.DB
}

// NewAllocationStore constructs a store.
func NewAllocationStore(db *sql.DB) *AllocationStore {
	return &AllocationStore{db: db}
}

// Find returns the allocation of a building month, nil if none.
func (s *AllocationStore) Find(ctx context.Context, buildingID string, month time.Time) (*circulation.Allocation, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("allocation store: nil db")
	}
	month = circulation.MonthStart(month)
	query, args, err := builder().Select("building_id", "month", "season", "circulation_kwh", "unit_price",
		"total_cost", "currency", "method", "calculated_at").
		From(tableAllocations).
		Where(sq.Eq{"building_id": buildingID, "month": month}).
		ToSql()
	if err != nil {
		return nil, err
	}
	var a circulation.Allocation
	var season, method string
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&a.BuildingID, &a.Month, &season, &a.CirculationKWh,
		&a.UnitPrice, &a.TotalCost, &a.Currency, &method, &a.CalculatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	a.Season = circulation.SeasonKind(season)
	a.Method = circulation.Method(method)
	a.Month = a.Month.UTC()
	a.CalculatedAt = a.CalculatedAt.UTC()

	sharesQuery, sharesArgs, err := builder().Select("property_id", "area", "amount").
		From(tableShares).
		Where(sq.Eq{"building_id": buildingID, "month": month}).
		OrderBy("property_id ASC").
		ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, sharesQuery, sharesArgs...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var share circulation.Share
		if err := rows.Scan(&share.PropertyID, &share.Area, &share.Amount); err != nil {
			return nil, err
		}
		a.Shares = append(a.Shares, share)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &a, nil
}

// Save upserts the allocation and rewrites its shares.
func (s *AllocationStore) Save(ctx context.Context, a *circulation.Allocation) error {
	if s == nil || s.db == nil {
		return errors.New("allocation store: nil db")
	}
	if a == nil {
		return circulation.ErrNilAllocation
	}
	month := circulation.MonthStart(a.Month)
	upsert, upsertArgs, err := builder().Insert(tableAllocations).
		Columns("building_id", "month", "season", "circulation_kwh", "unit_price", "total_cost", "currency", "method", "calculated_at").
		Values(a.BuildingID, month, string(a.Season), a.CirculationKWh, a.UnitPrice, a.TotalCost, a.Currency, string(a.Method), a.CalculatedAt).
		Suffix(`ON CONFLICT (building_id, month) DO UPDATE SET season = EXCLUDED.season, circulation_kwh = EXCLUDED.circulation_kwh, unit_price = EXCLUDED.unit_price, total_cost = EXCLUDED.total_cost, currency = EXCLUDED.currency, method = EXCLUDED.method, calculated_at = EXCLUDED.calculated_at`).
		ToSql()
	if err != nil {
		return err
	}
	del, delArgs, err := builder().Delete(tableShares).
		Where(sq.Eq{"building_id": a.BuildingID, "month": month}).
		ToSql()
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, upsert, upsertArgs...); err != nil {
		_ = tx.Rollback()
		return err
	}
	if _, err := tx.ExecContext(ctx, del, delArgs...); err != nil {
		_ = tx.Rollback()
		return err
	}
	if len(a.Shares) > 0 {
		insert := builder().Insert(tableShares).Columns("building_id", "month", "property_id", "area", "amount")
		for _, share := range a.Shares {
			insert = insert.Values(a.BuildingID, month, share.PropertyID, share.Area, share.Amount)
		}
		query, args, err := insert.ToSql()
		if err != nil {
			_ = tx.Rollback()
			return err
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// BaselineStore persists summer circulation baselines.
type BaselineStore struct {
	db *sql.DB
}

// NewBaselineStore constructs a store.
func NewBaselineStore(db *sql.DB) *BaselineStore {
	return &BaselineStore{db: db}
}

// SummerBaseline returns the stored baseline; invalid when none.
func (s *BaselineStore) SummerBaseline(ctx context.Context, buildingID string) (decimal.NullDecimal, error) {
	if s == nil || s.db == nil {
		return decimal.NullDecimal{}, errors.New("baseline store: nil db")
	}
	query, args, err := builder().Select("value").
		From(tableBaselines).
		Where(sq.Eq{"building_id": buildingID}).
		ToSql()
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	var v decimal.NullDecimal
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&v); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return decimal.NullDecimal{}, nil
		}
		return decimal.NullDecimal{}, err
	}
	return v, nil
}

// SaveSummerBaseline upserts a baseline.
func (s *BaselineStore) SaveSummerBaseline(ctx context.Context, buildingID string, value decimal.Decimal, at time.Time) error {
	if s == nil || s.db == nil {
		return errors.New("baseline store: nil db")
	}
	query, args, err := builder().Insert(tableBaselines).
		Columns("building_id", "value", "updated_at").
		Values(buildingID, value, at).
		Suffix("ON CONFLICT (building_id) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at").
		ToSql()
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, query, args...)
	return err
}

// HeatData reads building level heat metering.
type HeatData struct {
	db *sql.DB
}

// NewHeatData constructs a reader.
func NewHeatData(db *sql.DB) *HeatData {
	return &HeatData{db: db}
}

// MonthlyHeatData returns the heat data of a building month, nil if none.
func (h *HeatData) MonthlyHeatData(ctx context.Context, buildingID string, month time.Time) (*circulation.HeatData, error) {
	if h == nil || h.db == nil {
		return nil, errors.New("heat data: nil db")
	}
	query, args, err := builder().Select("total_heat_kwh", "hot_water_m3").
		From(tableHeatData).
		Where(sq.Eq{"building_id": buildingID, "month": circulation.MonthStart(month)}).
		ToSql()
	if err != nil {
		return nil, err
	}
	var data circulation.HeatData
	if err := h.db.QueryRowContext(ctx, query, args...).Scan(&data.TotalHeatKWh, &data.HotWaterM3); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &data, nil
}
