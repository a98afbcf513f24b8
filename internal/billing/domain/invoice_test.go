package billing

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func draft(t *testing.T) *Invoice {
	t.Helper()
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	inv, err := NewDraft("inv-1", "tenant-1", "prop-1", now.AddDate(0, -1, 0), now.Add(-time.Second), "EUR", now)
	if err != nil {
		t.Fatalf("new draft: %v", err)
	}
	item, err := NewItem("item-1", ItemConsumption, "Electricity", "kWh", decimal.NewFromInt(40), decimal.RequireFromString("0.20"))
	if err != nil {
		t.Fatalf("new item: %v", err)
	}
	if err := inv.AddItem(item, now); err != nil {
		t.Fatalf("add item: %v", err)
	}
	return inv
}

func TestInvoiceLifecycle(t *testing.T) {
	inv := draft(t)
	now := inv.CreatedAt
	if inv.TotalAmount.StringFixed(2) != "8.00" {
		t.Fatalf("expected total 8.00, got %s", inv.TotalAmount)
	}
	if err := inv.MarkPaid(decimal.NewFromInt(8), "ref", now); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected draft -> paid rejected, got %v", err)
	}
	if err := inv.Finalize("hash", now); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if inv.Items[0].Snapshot.FrozenAt.IsZero() {
		t.Fatalf("expected snapshot frozen")
	}
	if err := inv.Finalize("hash", now); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected double finalize rejected, got %v", err)
	}
	if err := inv.CanDelete(); !errors.Is(err, ErrNotDraft) {
		t.Fatalf("expected finalized invoice not deletable, got %v", err)
	}
	if err := inv.MarkPaid(decimal.Zero, "ref", now); !errors.Is(err, ErrInvalidPayment) {
		t.Fatalf("expected zero payment rejected, got %v", err)
	}
	if err := inv.MarkPaid(decimal.NewFromInt(8), "ref", now); err != nil {
		t.Fatalf("mark paid: %v", err)
	}
	if err := inv.Finalize("hash", now); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected paid -> finalized rejected, got %v", err)
	}
}

func TestEditsOnlyInDraft(t *testing.T) {
	inv := draft(t)
	now := inv.CreatedAt
	if err := inv.UpdateItem("item-1", decimal.NewFromInt(50), decimal.RequireFromString("0.20"), now); err != nil {
		t.Fatalf("update item: %v", err)
	}
	if inv.TotalAmount.StringFixed(2) != "10.00" {
		t.Fatalf("expected total 10.00, got %s", inv.TotalAmount)
	}
	if err := inv.RemoveItem("missing", now); !errors.Is(err, ErrItemNotFound) {
		t.Fatalf("expected ErrItemNotFound, got %v", err)
	}
	if err := inv.Finalize("hash", now); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if err := inv.RemoveItem("item-1", now); !errors.Is(err, ErrNotDraft) {
		t.Fatalf("expected ErrNotDraft, got %v", err)
	}
	extra, _ := NewItem("item-2", ItemManual, "Adjustment", "pcs", decimal.NewFromInt(1), decimal.NewFromInt(1))
	if err := inv.AddItem(extra, now); !errors.Is(err, ErrNotDraft) {
		t.Fatalf("expected ErrNotDraft, got %v", err)
	}
}

func TestCloneIsIndependent(t *testing.T) {
	inv := draft(t)
	inv.Items[0].Snapshot.Tariff = &TariffSnapshot{TariffID: "t-1"}
	clone := inv.Clone()
	clone.Items[0].Snapshot.Tariff.TariffID = "changed"
	clone.Items[0].Quantity = decimal.NewFromInt(1)
	if inv.Items[0].Snapshot.Tariff.TariffID != "t-1" || !inv.Items[0].Quantity.Equal(decimal.NewFromInt(40)) {
		t.Fatalf("clone shares state with original")
	}
}

func TestDuplicateInvoiceErrorMatches(t *testing.T) {
	var err error = &DuplicateInvoiceError{ExistingID: "inv-9"}
	if !errors.Is(err, ErrDuplicateInvoice) {
		t.Fatalf("expected errors.Is to match ErrDuplicateInvoice")
	}
	var dup *DuplicateInvoiceError
	if !errors.As(err, &dup) || dup.ExistingID != "inv-9" {
		t.Fatalf("expected existing id, got %v", err)
	}
}
