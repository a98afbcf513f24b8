package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"

	circulation "utility-billing/internal/circulation/domain"
)

func TestAllocationSaveReplacesSharesInOneTx(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()
	store := NewAllocationStore(db)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO circulation_allocations .* ON CONFLICT \(building_id, month\) DO UPDATE`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`DELETE FROM circulation_shares`).WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(`INSERT INTO circulation_shares`).WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	err = store.Save(context.Background(), &circulation.Allocation{
		BuildingID: "b-1",
		Month:      time.Date(2026, 6, 15, 0, 0, 0, 0, time.UTC),
		Season:     circulation.SeasonSummer,
		TotalCost:  decimal.NewFromInt(20),
		Method:     circulation.MethodEqual,
		Shares: []circulation.Share{
			{PropertyID: "a", Amount: decimal.NewFromInt(10)},
			{PropertyID: "b", Amount: decimal.NewFromInt(10)},
		},
	})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestAllocationFindMissing(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()
	mock.ExpectQuery(`FROM circulation_allocations`).WillReturnRows(sqlmock.NewRows([]string{"building_id"}))

	a, err := NewAllocationStore(db).Find(context.Background(), "b-1", time.Now())
	if err != nil || a != nil {
		t.Fatalf("expected nil, nil; got %v, %v", a, err)
	}
}

func TestBaselineMissingIsInvalid(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()
	mock.ExpectQuery(`SELECT value FROM circulation_baselines WHERE building_id = \$1`).
		WithArgs("b-1").
		WillReturnRows(sqlmock.NewRows([]string{"value"}))

	v, err := NewBaselineStore(db).SummerBaseline(context.Background(), "b-1")
	if err != nil || v.Valid {
		t.Fatalf("expected invalid baseline, got %+v, %v", v, err)
	}
}

func TestHeatDataScansNullWater(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()
	mock.ExpectQuery(`FROM building_heat_data`).
		WillReturnRows(sqlmock.NewRows([]string{"total_heat_kwh", "hot_water_m3"}).AddRow("10000", nil))

	data, err := NewHeatData(db).MonthlyHeatData(context.Background(), "b-1", time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("heat data: %v", err)
	}
	if data == nil || data.HotWaterM3.Valid || data.TotalHeatKWh.String() != "10000" {
		t.Fatalf("unexpected heat data %+v", data)
	}
}
