package interfaces

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"utility-billing/internal/audit"
	"utility-billing/internal/auth"
	circulation "utility-billing/internal/circulation/domain"
	portfolio "utility-billing/internal/portfolio/domain"
	tariffs "utility-billing/internal/tariffs/domain"
)

// AllocationService computes and reads circulation allocations.
type AllocationService interface {
	CalculateMonth(ctx context.Context, buildingID string, month time.Time) (*circulation.Allocation, error)
	RecomputeSummerBaseline(ctx context.Context, buildingID string, year int) (decimal.Decimal, error)
	Allocation(ctx context.Context, buildingID string, month time.Time) (*circulation.Allocation, error)
}

// AllocationHandler serves /api/v1/circulation.
type AllocationHandler struct {
	service     AllocationService
	auditLogger audit.Logger
	validate    *validator.Validate
	logger      *log.Logger
}

// NewAllocationHandler constructs a handler. auditLogger may be nil.
func NewAllocationHandler(service AllocationService, auditLogger audit.Logger, logger *log.Logger) (*AllocationHandler, error) {
	if service == nil {
		return nil, errors.New("allocation handler: nil service")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &AllocationHandler{service: service, auditLogger: auditLogger, validate: validator.New(), logger: logger}, nil
}

type allocationRequest struct {
	BuildingID string `json:"building_id" validate:"required"`
	Month      string `json:"month" validate:"required,datetime=2006-01"`
}

type baselineRequest struct {
	BuildingID string `json:"building_id" validate:"required"`
	Year       int    `json:"year" validate:"required,gte=2000,lte=2100"`
}

type allocationResponse struct {
	BuildingID     string          `json:"building_id"`
	Month          string          `json:"month"`
	Season         string          `json:"season"`
	Method         string          `json:"method"`
	CirculationKWh decimal.Decimal `json:"circulation_kwh"`
	UnitPrice      decimal.Decimal `json:"unit_price"`
	TotalCost      decimal.Decimal `json:"total_cost"`
	Currency       string          `json:"currency"`
	CalculatedAt   time.Time       `json:"calculated_at"`
	Shares         []shareResponse `json:"shares"`
}

type shareResponse struct {
	PropertyID string          `json:"property_id"`
	Area       decimal.Decimal `json:"area"`
	Amount     decimal.Decimal `json:"amount"`
}

// ServeHTTP routes circulation requests.
func (h *AllocationHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/api/v1/circulation/allocations" && r.Method == http.MethodPost:
		h.handleCalculate(w, r)
	case r.URL.Path == "/api/v1/circulation/allocations" && r.Method == http.MethodGet:
		h.handleGet(w, r)
	case r.URL.Path == "/api/v1/circulation/baselines" && r.Method == http.MethodPost:
		h.handleBaseline(w, r)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *AllocationHandler) handleCalculate(w http.ResponseWriter, r *http.Request) {
	var req allocationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "building_id and month (YYYY-MM) are required")
		return
	}
	month, _ := time.Parse("2006-01", req.Month)
	alloc, err := h.service.CalculateMonth(r.Context(), req.BuildingID, month)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newAllocationResponse(alloc))
	h.logAudit(r, alloc)
}

func (h *AllocationHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	req := allocationRequest{
		BuildingID: r.URL.Query().Get("building_id"),
		Month:      r.URL.Query().Get("month"),
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "building_id and month (YYYY-MM) are required")
		return
	}
	month, _ := time.Parse("2006-01", req.Month)
	alloc, err := h.service.Allocation(r.Context(), req.BuildingID, month)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if alloc == nil {
		writeError(w, http.StatusNotFound, "allocation not found")
		return
	}
	writeJSON(w, http.StatusOK, newAllocationResponse(alloc))
}

func (h *AllocationHandler) handleBaseline(w http.ResponseWriter, r *http.Request) {
	var req baselineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "building_id and year are required")
		return
	}
	baseline, err := h.service.RecomputeSummerBaseline(r.Context(), req.BuildingID, req.Year)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"building_id":  req.BuildingID,
		"year":         req.Year,
		"baseline_kwh": baseline,
	})
}

func (h *AllocationHandler) logAudit(r *http.Request, alloc *circulation.Allocation) {
	if h.auditLogger == nil {
		return
	}
	payload := audit.Metadata(map[string]any{
		"month":      alloc.Month.Format("2006-01"),
		"season":     alloc.Season,
		"total_cost": alloc.TotalCost.StringFixed(2),
	})
	entry := audit.FromRequest(r, audit.Entry{
		ID:            audit.NewID(),
		Actor:         auth.SubjectFromContext(r.Context()),
		Role:          string(auth.RoleFromContext(r.Context())),
		Action:        audit.ActionAllocationRun,
		ResourceType:  "building",
		ResourceID:    alloc.BuildingID,
		Metadata:      payload,
		PayloadDigest: audit.DigestJSON(payload),
		CreatedAt:     time.Now().UTC(),
	})
	if err := h.auditLogger.Log(r.Context(), entry); err != nil {
		h.logger.Printf("audit log failed: action=%s building=%s err=%v", entry.Action, alloc.BuildingID, err)
	}
}

func newAllocationResponse(alloc *circulation.Allocation) allocationResponse {
	resp := allocationResponse{
		BuildingID:     alloc.BuildingID,
		Month:          alloc.Month.Format("2006-01"),
		Season:         string(alloc.Season),
		Method:         string(alloc.Method),
		CirculationKWh: alloc.CirculationKWh,
		UnitPrice:      alloc.UnitPrice,
		TotalCost:      alloc.TotalCost,
		Currency:       alloc.Currency,
		CalculatedAt:   alloc.CalculatedAt,
		Shares:         make([]shareResponse, 0, len(alloc.Shares)),
	}
	for _, s := range alloc.Shares {
		resp.Shares = append(resp.Shares, shareResponse{PropertyID: s.PropertyID, Area: s.Area, Amount: s.Amount})
	}
	return resp
}

func respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, portfolio.ErrBuildingNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, circulation.ErrEmptyBuildingID):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, circulation.ErrMissingBaseline),
		errors.Is(err, circulation.ErrMissingWaterConsumption),
		errors.Is(err, circulation.ErrNegativeCirculation),
		errors.Is(err, circulation.ErrNoSummerData),
		errors.Is(err, circulation.ErrMissingHeatData),
		errors.Is(err, circulation.ErrNoProperties),
		errors.Is(err, circulation.ErrZeroTotalArea),
		errors.Is(err, circulation.ErrUnknownMethod),
		errors.Is(err, circulation.ErrHeatingTariffNotFlat),
		errors.Is(err, tariffs.ErrNoApplicableTariff):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
