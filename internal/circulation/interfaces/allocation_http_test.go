package interfaces

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"utility-billing/internal/audit"
	circulation "utility-billing/internal/circulation/domain"
)

type stubAllocations struct {
	stored   map[string]*circulation.Allocation
	err      error
	baseline decimal.Decimal
}

func (s *stubAllocations) CalculateMonth(ctx context.Context, buildingID string, month time.Time) (*circulation.Allocation, error) {
	if s.err != nil {
		return nil, s.err
	}
	alloc := &circulation.Allocation{
		BuildingID:     buildingID,
		Month:          month,
		Season:         circulation.SeasonSummer,
		CirculationKWh: decimal.RequireFromString("4766.5"),
		UnitPrice:      decimal.RequireFromString("0.10"),
		TotalCost:      decimal.RequireFromString("476.65"),
		Currency:       "EUR",
		Method:         circulation.MethodEqual,
		Shares: []circulation.Share{
			{PropertyID: "a", Amount: decimal.RequireFromString("238.33")},
			{PropertyID: "b", Amount: decimal.RequireFromString("238.32")},
		},
	}
	s.stored[buildingID+month.Format("2006-01")] = alloc
	return alloc, nil
}

func (s *stubAllocations) RecomputeSummerBaseline(ctx context.Context, buildingID string, year int) (decimal.Decimal, error) {
	return s.baseline, s.err
}

func (s *stubAllocations) Allocation(ctx context.Context, buildingID string, month time.Time) (*circulation.Allocation, error) {
	return s.stored[buildingID+month.Format("2006-01")], nil
}

func post(t *testing.T, h http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	_ = json.NewEncoder(&buf).Encode(body)
	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, path, &buf))
	return resp
}

func TestAllocationCalculateAndRead(t *testing.T) {
	service := &stubAllocations{stored: map[string]*circulation.Allocation{}}
	recorder := audit.NewRecorder()
	h, err := NewAllocationHandler(service, recorder, nil)
	if err != nil {
		t.Fatalf("handler: %v", err)
	}

	resp := post(t, h, "/api/v1/circulation/allocations", map[string]string{"building_id": "b-1", "month": "2026-06"})
	if resp.Code != http.StatusOK {
		t.Fatalf("calculate: expected 200, got %d (%s)", resp.Code, resp.Body.String())
	}
	var out allocationResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Month != "2026-06" || len(out.Shares) != 2 || out.TotalCost.StringFixed(2) != "476.65" {
		t.Fatalf("unexpected allocation %+v", out)
	}
	if entries := recorder.Entries(); len(entries) != 1 || entries[0].Action != audit.ActionAllocationRun {
		t.Fatalf("unexpected audit entries %+v", entries)
	}

	get := httptest.NewRecorder()
	h.ServeHTTP(get, httptest.NewRequest(http.MethodGet, "/api/v1/circulation/allocations?building_id=b-1&month=2026-06", nil))
	if get.Code != http.StatusOK {
		t.Fatalf("get: expected 200, got %d", get.Code)
	}
	missing := httptest.NewRecorder()
	h.ServeHTTP(missing, httptest.NewRequest(http.MethodGet, "/api/v1/circulation/allocations?building_id=b-1&month=2026-07", nil))
	if missing.Code != http.StatusNotFound {
		t.Fatalf("get missing: expected 404, got %d", missing.Code)
	}
}

func TestAllocationErrors(t *testing.T) {
	service := &stubAllocations{stored: map[string]*circulation.Allocation{}, err: circulation.ErrMissingBaseline}
	h, err := NewAllocationHandler(service, nil, nil)
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	if resp := post(t, h, "/api/v1/circulation/allocations", map[string]string{"building_id": "b-1", "month": "2026-01"}); resp.Code != http.StatusUnprocessableEntity {
		t.Fatalf("missing baseline: expected 422, got %d", resp.Code)
	}
	service.err = circulation.ErrHeatingTariffNotFlat
	if resp := post(t, h, "/api/v1/circulation/allocations", map[string]string{"building_id": "b-1", "month": "2026-06"}); resp.Code != http.StatusUnprocessableEntity {
		t.Fatalf("time-of-use heating tariff: expected 422, got %d", resp.Code)
	}
	if resp := post(t, h, "/api/v1/circulation/allocations", map[string]string{"building_id": "b-1", "month": "January"}); resp.Code != http.StatusBadRequest {
		t.Fatalf("bad month: expected 400, got %d", resp.Code)
	}
	if resp := post(t, h, "/api/v1/circulation/baselines", map[string]any{"building_id": "b-1"}); resp.Code != http.StatusBadRequest {
		t.Fatalf("missing year: expected 400, got %d", resp.Code)
	}
}

func TestBaselineRecompute(t *testing.T) {
	service := &stubAllocations{stored: map[string]*circulation.Allocation{}, baseline: decimal.RequireFromString("412.75")}
	h, _ := NewAllocationHandler(service, nil, nil)
	resp := post(t, h, "/api/v1/circulation/baselines", map[string]any{"building_id": "b-1", "year": 2025})
	if resp.Code != http.StatusOK {
		t.Fatalf("baseline: expected 200, got %d (%s)", resp.Code, resp.Body.String())
	}
	var out struct {
		BaselineKWh decimal.Decimal `json:"baseline_kwh"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &out); err != nil || !out.BaselineKWh.Equal(decimal.RequireFromString("412.75")) {
		t.Fatalf("unexpected baseline body %s", resp.Body.String())
	}
}
