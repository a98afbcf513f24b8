package interfaces

import (
	"time"

	"github.com/shopspring/decimal"

	billing "utility-billing/internal/billing/domain"
)

type invoiceResponse struct {
	ID               string          `json:"id"`
	TenantID         string          `json:"tenant_id"`
	PropertyID       string          `json:"property_id"`
	PeriodStart      time.Time       `json:"period_start"`
	PeriodEnd        time.Time       `json:"period_end"`
	Status           billing.Status  `json:"status"`
	Currency         string          `json:"currency"`
	TotalAmount      decimal.Decimal `json:"total_amount"`
	SnapshotHash     string          `json:"snapshot_hash,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
	FinalizedAt      *time.Time      `json:"finalized_at,omitempty"`
	PaidAt           *time.Time      `json:"paid_at,omitempty"`
	PaidAmount       *string         `json:"paid_amount,omitempty"`
	PaymentReference string          `json:"payment_reference,omitempty"`
	Items            []itemResponse  `json:"items"`
}

type itemResponse struct {
	ID           string           `json:"id"`
	Kind         billing.ItemKind `json:"kind"`
	Description  string           `json:"description"`
	Unit         string           `json:"unit"`
	Quantity     decimal.Decimal  `json:"quantity"`
	UnitPrice    decimal.Decimal  `json:"unit_price"`
	Total        decimal.Decimal  `json:"total"`
	MeterID      string           `json:"meter_id,omitempty"`
	Zone         string           `json:"zone,omitempty"`
	TariffZoneID string           `json:"tariff_zone_id,omitempty"`
	Snapshot     billing.Snapshot `json:"snapshot"`
}

func newInvoiceResponse(inv *billing.Invoice) invoiceResponse {
	resp := invoiceResponse{
		ID:               inv.ID,
		TenantID:         inv.TenantID,
		PropertyID:       inv.PropertyID,
		PeriodStart:      inv.PeriodStart,
		PeriodEnd:        inv.PeriodEnd,
		Status:           inv.Status,
		Currency:         inv.Currency,
		TotalAmount:      inv.TotalAmount,
		SnapshotHash:     inv.SnapshotHash,
		CreatedAt:        inv.CreatedAt,
		UpdatedAt:        inv.UpdatedAt,
		PaymentReference: inv.PaymentReference,
		Items:            make([]itemResponse, 0, len(inv.Items)),
	}
	if !inv.FinalizedAt.IsZero() {
		at := inv.FinalizedAt
		resp.FinalizedAt = &at
	}
	if !inv.PaidAt.IsZero() {
		at := inv.PaidAt
		amount := inv.PaidAmount.StringFixed(2)
		resp.PaidAt = &at
		resp.PaidAmount = &amount
	}
	for _, item := range inv.Items {
		resp.Items = append(resp.Items, itemResponse{
			ID:           item.ID,
			Kind:         item.Kind,
			Description:  item.Description,
			Unit:         item.Unit,
			Quantity:     item.Quantity,
			UnitPrice:    item.UnitPrice,
			Total:        item.Total,
			MeterID:      item.MeterID,
			Zone:         item.Zone,
			TariffZoneID: item.TariffZoneID,
			Snapshot:     item.Snapshot,
		})
	}
	return resp
}
