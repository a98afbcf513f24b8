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

	"utility-billing/internal/audit"
	"utility-billing/internal/auth"
	billingapp "utility-billing/internal/billing/application"
	billing "utility-billing/internal/billing/domain"
	"utility-billing/internal/observability/metrics"
)

// InvoiceGenerator creates draft invoices.
type InvoiceGenerator interface {
	GenerateInvoice(ctx context.Context, tenantID string, start, end time.Time) (*billing.Invoice, error)
}

// InvoiceManager runs the invoice lifecycle.
type InvoiceManager interface {
	Get(ctx context.Context, id string) (*billing.Invoice, error)
	Finalize(ctx context.Context, id string) (*billing.Invoice, error)
	MarkPaid(ctx context.Context, id string, amount decimal.Decimal, reference string) (*billing.Invoice, error)
	Delete(ctx context.Context, id string) error
	AddItem(ctx context.Context, id string, in billingapp.ItemInput) (*billing.Invoice, error)
	RemoveItem(ctx context.Context, id, itemID string) (*billing.Invoice, error)
	UpdateItem(ctx context.Context, id, itemID string, quantity, unitPrice decimal.Decimal) (*billing.Invoice, error)
}

// InvoiceHandler serves /api/v1/invoices.
type InvoiceHandler struct {
	generator   InvoiceGenerator
	invoices    InvoiceManager
	auditLogger audit.Logger
	validate    *validator.Validate
	logger      *log.Logger
}

// NewInvoiceHandler constructs a handler. auditLogger may be nil.
func NewInvoiceHandler(generator InvoiceGenerator, invoices InvoiceManager, auditLogger audit.Logger, logger *log.Logger) (*InvoiceHandler, error) {
	if generator == nil {
		return nil, errors.New("invoice handler: nil generator")
	}
	if invoices == nil {
		return nil, errors.New("invoice handler: nil invoice service")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &InvoiceHandler{
		generator:   generator,
		invoices:    invoices,
		auditLogger: auditLogger,
		validate:    newValidator(),
		logger:      logger,
	}, nil
}

type generateRequest struct {
	TenantID    string `json:"tenant_id" validate:"required,max=64"`
	PeriodStart string `json:"period_start" validate:"required"`
	PeriodEnd   string `json:"period_end" validate:"required"`
}

type payRequest struct {
	Amount    string `json:"amount" validate:"required,numeric"`
	Reference string `json:"reference" validate:"required,max=128"`
}

type itemRequest struct {
	Description string `json:"description" validate:"required,max=200"`
	Unit        string `json:"unit" validate:"required,max=16"`
	Quantity    string `json:"quantity" validate:"required,numeric"`
	UnitPrice   string `json:"unit_price" validate:"required,numeric"`
}

type itemUpdateRequest struct {
	Quantity  string `json:"quantity" validate:"required,numeric"`
	UnitPrice string `json:"unit_price" validate:"required,numeric"`
}

// ServeHTTP routes invoice requests.
func (h *InvoiceHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path
	if path == "/api/v1/invoices/generate" {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleGenerate(w, r)
		return
	}
	if !strings.HasPrefix(path, "/api/v1/invoices/") {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	parts := strings.Split(strings.TrimPrefix(path, "/api/v1/invoices/"), "/")
	id := parts[0]
	if id == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	switch {
	case len(parts) == 1 && r.Method == http.MethodGet:
		h.handleGet(w, r, id)
	case len(parts) == 1 && r.Method == http.MethodDelete:
		h.handleDelete(w, r, id)
	case len(parts) == 2 && parts[1] == "finalize" && r.Method == http.MethodPost:
		h.handleFinalize(w, r, id)
	case len(parts) == 2 && parts[1] == "pay" && r.Method == http.MethodPost:
		h.handlePay(w, r, id)
	case len(parts) == 2 && parts[1] == "items" && r.Method == http.MethodPost:
		h.handleAddItem(w, r, id)
	case len(parts) == 3 && parts[1] == "items" && r.Method == http.MethodPut:
		h.handleUpdateItem(w, r, id, parts[2])
	case len(parts) == 3 && parts[1] == "items" && r.Method == http.MethodDelete:
		h.handleRemoveItem(w, r, id, parts[2])
	case len(parts) == 2 && parts[1] == "export.pdf" && r.Method == http.MethodGet:
		h.handleExport(w, r, id, "pdf")
	case len(parts) == 2 && parts[1] == "export.xlsx" && r.Method == http.MethodGet:
		h.handleExport(w, r, id, "xlsx")
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *InvoiceHandler) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if !h.decode(w, r, &req) {
		return
	}
	start, err := parseInstant(req.PeriodStart)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid period_start")
		return
	}
	end, err := parseInstant(req.PeriodEnd)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid period_end")
		return
	}

	inv, err := h.generator.GenerateInvoice(r.Context(), req.TenantID, start, end)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, newInvoiceResponse(inv))
	h.logAudit(r, inv.ID, audit.ActionInvoiceGenerate, map[string]any{
		"tenant_id":    inv.TenantID,
		"period_start": inv.PeriodStart.Format(time.RFC3339),
		"period_end":   inv.PeriodEnd.Format(time.RFC3339),
		"total":        inv.TotalAmount.StringFixed(2),
	})
}

func (h *InvoiceHandler) handleGet(w http.ResponseWriter, r *http.Request, id string) {
	inv, err := h.invoices.Get(r.Context(), id)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newInvoiceResponse(inv))
}

func (h *InvoiceHandler) handleDelete(w http.ResponseWriter, r *http.Request, id string) {
	if err := h.invoices.Delete(r.Context(), id); err != nil {
		respondServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
	h.logAudit(r, id, audit.ActionInvoiceDelete, nil)
}

func (h *InvoiceHandler) handleFinalize(w http.ResponseWriter, r *http.Request, id string) {
	inv, err := h.invoices.Finalize(r.Context(), id)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newInvoiceResponse(inv))
	h.logAudit(r, inv.ID, audit.ActionInvoiceFinalize, map[string]any{
		"snapshot_hash": inv.SnapshotHash,
		"total":         inv.TotalAmount.StringFixed(2),
	})
}

func (h *InvoiceHandler) handlePay(w http.ResponseWriter, r *http.Request, id string) {
	var req payRequest
	if !h.decode(w, r, &req) {
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid amount")
		return
	}
	inv, err := h.invoices.MarkPaid(r.Context(), id, amount, req.Reference)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newInvoiceResponse(inv))
	h.logAudit(r, inv.ID, audit.ActionInvoicePay, map[string]any{
		"amount":    amount.StringFixed(2),
		"reference": req.Reference,
	})
}

func (h *InvoiceHandler) handleAddItem(w http.ResponseWriter, r *http.Request, id string) {
	var req itemRequest
	if !h.decode(w, r, &req) {
		return
	}
	quantity, qerr := decimal.NewFromString(req.Quantity)
	price, perr := decimal.NewFromString(req.UnitPrice)
	if qerr != nil || perr != nil {
		writeError(w, http.StatusBadRequest, "invalid quantity or unit_price")
		return
	}
	inv, err := h.invoices.AddItem(r.Context(), id, billingapp.ItemInput{
		Description: req.Description,
		Unit:        req.Unit,
		Quantity:    quantity,
		UnitPrice:   price,
	})
	if err != nil {
		respondServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newInvoiceResponse(inv))
	h.logAudit(r, inv.ID, audit.ActionInvoiceEdit, map[string]any{
		"op":          "add_item",
		"description": req.Description,
		"quantity":    req.Quantity,
		"unit_price":  req.UnitPrice,
	})
}

func (h *InvoiceHandler) handleUpdateItem(w http.ResponseWriter, r *http.Request, id, itemID string) {
	var req itemUpdateRequest
	if !h.decode(w, r, &req) {
		return
	}
	quantity, qerr := decimal.NewFromString(req.Quantity)
	price, perr := decimal.NewFromString(req.UnitPrice)
	if qerr != nil || perr != nil {
		writeError(w, http.StatusBadRequest, "invalid quantity or unit_price")
		return
	}
	inv, err := h.invoices.UpdateItem(r.Context(), id, itemID, quantity, price)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newInvoiceResponse(inv))
	h.logAudit(r, inv.ID, audit.ActionInvoiceEdit, map[string]any{
		"op":         "update_item",
		"item_id":    itemID,
		"quantity":   req.Quantity,
		"unit_price": req.UnitPrice,
	})
}

func (h *InvoiceHandler) handleRemoveItem(w http.ResponseWriter, r *http.Request, id, itemID string) {
	inv, err := h.invoices.RemoveItem(r.Context(), id, itemID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newInvoiceResponse(inv))
	h.logAudit(r, inv.ID, audit.ActionInvoiceEdit, map[string]any{"op": "remove_item", "item_id": itemID})
}

func (h *InvoiceHandler) handleExport(w http.ResponseWriter, r *http.Request, id, format string) {
	start := time.Now()
	result := metrics.ResultSuccess
	defer func() {
		metrics.ObserveInvoiceExport(format, result, time.Since(start))
	}()

	inv, err := h.invoices.Get(r.Context(), id)
	if err != nil {
		result = metrics.ResultError
		respondServiceError(w, err)
		return
	}
	var (
		data        []byte
		contentType string
	)
	switch format {
	case "pdf":
		data, err = BuildInvoicePDF(inv)
		contentType = "application/pdf"
	default:
		data, err = BuildInvoiceXLSX(inv)
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	if err != nil {
		result = metrics.ResultError
		h.logger.Printf("invoice export failed: id=%s format=%s err=%v", id, format, err)
		writeError(w, http.StatusInternalServerError, "export "+format+" error")
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="invoice-`+inv.ID+`.`+format+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
	h.logAudit(r, inv.ID, audit.ActionInvoiceExport, map[string]any{"format": format})
}

func (h *InvoiceHandler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return false
	}
	return true
}

func (h *InvoiceHandler) logAudit(r *http.Request, invoiceID, action string, meta map[string]any) {
	if h.auditLogger == nil {
		return
	}
	payload := audit.Metadata(meta)
	entry := audit.FromRequest(r, audit.Entry{
		ID:            audit.NewID(),
		Actor:         auth.SubjectFromContext(r.Context()),
		Role:          string(auth.RoleFromContext(r.Context())),
		Action:        action,
		ResourceType:  "invoice",
		ResourceID:    invoiceID,
		Metadata:      payload,
		PayloadDigest: audit.DigestJSON(payload),
		CreatedAt:     time.Now().UTC(),
	})
	if err := h.auditLogger.Log(r.Context(), entry); err != nil {
		h.logger.Printf("audit log failed: action=%s invoice=%s err=%v", action, invoiceID, err)
	}
}

// parseInstant accepts RFC 3339 timestamps or plain dates, read as midnight UTC.
func parseInstant(value string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t.UTC(), nil
	}
	return time.Parse("2006-01-02", value)
}
