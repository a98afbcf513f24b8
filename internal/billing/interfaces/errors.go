package interfaces

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	billing "utility-billing/internal/billing/domain"
	"utility-billing/internal/billing/infrastructure/lock"
	circulation "utility-billing/internal/circulation/domain"
	portfolio "utility-billing/internal/portfolio/domain"
	tariffs "utility-billing/internal/tariffs/domain"
)

type errorResponse struct {
	Error             string `json:"error"`
	ExistingInvoiceID string `json:"existing_invoice_id,omitempty"`
}

var unprocessable = []error{
	billing.ErrNoProperty,
	billing.ErrNoMeters,
	billing.ErrMissingReadings,
	billing.ErrCurrencyMismatch,
	tariffs.ErrNoApplicableTariff,
	portfolio.ErrBuildingNotFound,
	circulation.ErrMissingBaseline,
	circulation.ErrMissingWaterConsumption,
	circulation.ErrNegativeCirculation,
	circulation.ErrNoProperties,
	circulation.ErrZeroTotalArea,
	circulation.ErrPropertyNotAllocated,
	circulation.ErrHeatingTariffNotFlat,
	circulation.ErrMissingHeatData,
}

var badRequest = []error{
	billing.ErrEmptyTenantID,
	billing.ErrInvalidPeriod,
	billing.ErrPeriodTooLong,
	billing.ErrFuturePeriod,
	billing.ErrInvalidItem,
	billing.ErrInvalidPayment,
}

func respondServiceError(w http.ResponseWriter, err error) {
	var dup *billing.DuplicateInvoiceError
	switch {
	case err == nil:
		return
	case errors.As(err, &dup):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error(), ExistingInvoiceID: dup.ExistingID})
	case errors.Is(err, billing.ErrDuplicateInvoice),
		errors.Is(err, billing.ErrInvalidTransition),
		errors.Is(err, billing.ErrNotDraft):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, billing.ErrInvoiceNotFound), errors.Is(err, billing.ErrItemNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case matchesAny(err, badRequest):
		writeError(w, http.StatusBadRequest, err.Error())
	case matchesAny(err, unprocessable):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, lock.ErrNotAcquired), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusServiceUnavailable, "invoice generation busy, retry later")
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func matchesAny(err error, targets []error) bool {
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func validationMessage(err error) string {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return "invalid request"
	}
	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, fmt.Sprintf("%s: %s", fe.Field(), fe.Tag()))
	}
	return "invalid request: " + strings.Join(msgs, ", ")
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
