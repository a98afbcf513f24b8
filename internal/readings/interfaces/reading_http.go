package interfaces

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"utility-billing/internal/auth"
	readingsapp "utility-billing/internal/readings/application"
	readings "utility-billing/internal/readings/domain"
	"utility-billing/internal/readings/validation"
)

// ReadingIntake records and validates readings.
type ReadingIntake interface {
	Record(ctx context.Context, in readingsapp.ReadingInput) (*readings.MeterReading, error)
	Validate(ctx context.Context, ids []string, actor string) ([]validation.Result, error)
}

// ReadingCorrector applies audited corrections.
type ReadingCorrector interface {
	Correct(ctx context.Context, readingID string, newValue decimal.Decimal, reason, actor string) (*readings.MeterReading, error)
}

// ReadingReader loads a reading by id.
type ReadingReader interface {
	Get(ctx context.Context, id string) (*readings.MeterReading, error)
}

// ReadingHandler serves /api/v1/readings.
type ReadingHandler struct {
	intake    ReadingIntake
	corrector ReadingCorrector
	reader    ReadingReader
	validate  *validator.Validate
	logger    *log.Logger
}

// NewReadingHandler constructs a handler.
func NewReadingHandler(intake ReadingIntake, corrector ReadingCorrector, reader ReadingReader, logger *log.Logger) (*ReadingHandler, error) {
	if intake == nil || corrector == nil || reader == nil {
		return nil, errors.New("reading handler: nil dependency")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &ReadingHandler{intake: intake, corrector: corrector, reader: reader, validate: validator.New(), logger: logger}, nil
}

type recordRequest struct {
	MeterID     string `json:"meter_id" validate:"required"`
	ReadingDate string `json:"reading_date" validate:"required"`
	Value       string `json:"value" validate:"required,numeric"`
	Zone        string `json:"zone"`
	InputMethod string `json:"input_method" validate:"omitempty,oneof=manual photo_ocr csv_import api estimated"`
}

type validateRequest struct {
	ReadingIDs []string `json:"reading_ids" validate:"required,min=1,dive,required"`
}

type correctionRequest struct {
	Value  string `json:"value" validate:"required,numeric"`
	Reason string `json:"reason" validate:"required"`
}

type readingResponse struct {
	ID          string               `json:"id"`
	MeterID     string               `json:"meter_id"`
	ReadingDate time.Time            `json:"reading_date"`
	Value       decimal.Decimal      `json:"value"`
	Zone        string               `json:"zone,omitempty"`
	InputMethod string               `json:"input_method"`
	EnteredBy   string               `json:"entered_by,omitempty"`
	ValidatedBy string               `json:"validated_by,omitempty"`
	Status      string               `json:"status"`
	Corrections []correctionResponse `json:"corrections"`
}

type correctionResponse struct {
	ID          string          `json:"id"`
	OldValue    decimal.Decimal `json:"old_value"`
	NewValue    decimal.Decimal `json:"new_value"`
	Reason      string          `json:"reason"`
	Actor       string          `json:"actor"`
	CorrectedAt time.Time       `json:"corrected_at"`
}

type resultResponse struct {
	ReadingID   string               `json:"reading_id"`
	Outcome     string               `json:"outcome"`
	Consumption *decimal.Decimal     `json:"consumption,omitempty"`
	Violations  []validation.Finding `json:"violations"`
	Warnings    []validation.Finding `json:"warnings"`
}

// ServeHTTP routes reading requests.
func (h *ReadingHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/readings"), "/")
	parts := []string{}
	if path != "" {
		parts = strings.Split(path, "/")
	}
	switch {
	case len(parts) == 0 && r.Method == http.MethodPost:
		h.handleRecord(w, r)
	case len(parts) == 1 && parts[0] == "validate" && r.Method == http.MethodPost:
		h.handleValidate(w, r)
	case len(parts) == 1 && r.Method == http.MethodGet:
		h.handleGet(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "corrections" && r.Method == http.MethodPost:
		h.handleCorrect(w, r, parts[0])
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *ReadingHandler) handleRecord(w http.ResponseWriter, r *http.Request) {
	var req recordRequest
	if !h.decode(w, r, &req) {
		return
	}
	date, err := parseDate(req.ReadingDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "reading_date must be RFC3339 or YYYY-MM-DD")
		return
	}
	value, _ := decimal.NewFromString(req.Value)
	reading, err := h.intake.Record(r.Context(), readingsapp.ReadingInput{
		MeterID:     req.MeterID,
		ReadingDate: date,
		Value:       value,
		Zone:        req.Zone,
		InputMethod: readings.InputMethod(req.InputMethod),
		EnteredBy:   auth.SubjectFromContext(r.Context()),
	})
	if err != nil {
		respondServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, newReadingResponse(reading))
}

func (h *ReadingHandler) handleValidate(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if !h.decode(w, r, &req) {
		return
	}
	results, err := h.intake.Validate(r.Context(), req.ReadingIDs, auth.SubjectFromContext(r.Context()))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	out := make([]resultResponse, 0, len(results))
	for _, res := range results {
		item := resultResponse{
			ReadingID:  res.ReadingID,
			Outcome:    string(res.Outcome),
			Violations: nonNil(res.Violations),
			Warnings:   nonNil(res.Warnings),
		}
		if res.Consumption.Valid {
			c := res.Consumption.Decimal
			item.Consumption = &c
		}
		out = append(out, item)
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": out})
}

func (h *ReadingHandler) handleGet(w http.ResponseWriter, r *http.Request, id string) {
	reading, err := h.reader.Get(r.Context(), id)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newReadingResponse(reading))
}

func (h *ReadingHandler) handleCorrect(w http.ResponseWriter, r *http.Request, id string) {
	var req correctionRequest
	if !h.decode(w, r, &req) {
		return
	}
	value, _ := decimal.NewFromString(req.Value)
	reading, err := h.corrector.Correct(r.Context(), id, value, req.Reason, auth.SubjectFromContext(r.Context()))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newReadingResponse(reading))
}

func (h *ReadingHandler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			writeError(w, http.StatusBadRequest, "invalid field "+verrs[0].Field())
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid request")
		return false
	}
	return true
}

func parseDate(value string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t.UTC(), nil
	}
	return time.Parse("2006-01-02", value)
}

func nonNil(findings []validation.Finding) []validation.Finding {
	if findings == nil {
		return []validation.Finding{}
	}
	return findings
}

func newReadingResponse(r *readings.MeterReading) readingResponse {
	resp := readingResponse{
		ID:          r.ID,
		MeterID:     r.MeterID,
		ReadingDate: r.ReadingDate,
		Value:       r.Value,
		Zone:        r.Zone,
		InputMethod: string(r.InputMethod),
		EnteredBy:   r.EnteredBy,
		ValidatedBy: r.ValidatedBy,
		Status:      string(r.Status),
		Corrections: make([]correctionResponse, 0, len(r.Corrections)),
	}
	for _, c := range r.Corrections {
		resp.Corrections = append(resp.Corrections, correctionResponse{
			ID: c.ID, OldValue: c.OldValue, NewValue: c.NewValue,
			Reason: c.Reason, Actor: c.Actor, CorrectedAt: c.CorrectedAt,
		})
	}
	return resp
}

func respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, readings.ErrReadingNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, readingsapp.ErrNotPending):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, readingsapp.ErrUnknownMeter):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, readingsapp.ErrNoReadings),
		errors.Is(err, readings.ErrEmptyMeterID),
		errors.Is(err, readings.ErrNegativeValue),
		errors.Is(err, readings.ErrInvalidReadingDate),
		errors.Is(err, readings.ErrEmptyReason),
		errors.Is(err, readings.ErrEmptyActor),
		errors.Is(err, readings.ErrUnchangedValue):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusServiceUnavailable, "timeout")
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
