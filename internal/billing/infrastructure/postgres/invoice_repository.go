package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgconn"

	billing "utility-billing/internal/billing/domain"
)

const (
	tableInvoices     = "invoices"
	tableInvoiceItems = "invoice_items"

	uniqueViolation = "23505"
)

var (
	invoiceColumns = []string{
		"id", "tenant_id", "property_id", "period_start", "period_end", "status", "currency",
		"total_amount", "snapshot_hash", "created_at", "updated_at", "finalized_at", "paid_at",
		"paid_amount", "payment_reference",
	}
	itemColumns = []string{
		"id", "invoice_id", "position", "kind", "description", "unit", "quantity", "unit_price",
		"total", "meter_id", "zone", "tariff_zone_id", "snapshot",
	}
)

func builder() sq.StatementBuilderType {
	return sq.StatementBuilder.PlaceholderFormat(sq.Dollar)
}

// InvoiceRepository persists invoices and their items.
type InvoiceRepository struct {
	db *sql.DB
}

// NewInvoiceRepository constructs a repository.
func NewInvoiceRepository(db *sql.DB) *InvoiceRepository {
	return &InvoiceRepository{db: db}
}

// ExistingInvoice returns the invoice for exactly this tenant and period, or nil.
func (r *InvoiceRepository) ExistingInvoice(ctx context.Context, tenantID string, start, end time.Time) (*billing.Invoice, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("invoice repo: nil db")
	}
	query, args, err := builder().Select(invoiceColumns...).
		From(tableInvoices).
		Where(sq.Eq{"tenant_id": tenantID, "period_start": start, "period_end": end}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, err
	}
	inv, err := scanInvoice(r.db.QueryRowContext(ctx, query, args...))
	if err != nil || inv == nil {
		return nil, err
	}
	inv.Items, err = r.listItems(ctx, inv.ID)
	if err != nil {
		return nil, err
	}
	return inv, nil
}

// Save inserts an invoice with its items in one transaction.
func (r *InvoiceRepository) Save(ctx context.Context, inv *billing.Invoice) error {
	if r == nil || r.db == nil {
		return errors.New("invoice repo: nil db")
	}
	if inv == nil {
		return billing.ErrNilInvoice
	}
	query, args, err := builder().Insert(tableInvoices).
		Columns(invoiceColumns...).
		Values(invoiceValues(inv)...).
		ToSql()
	if err != nil {
		return err
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		_ = tx.Rollback()
		return r.mapInsertError(ctx, inv, err)
	}
	if err := insertItems(ctx, tx, inv); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// Get fetches an invoice with items, or nil.
func (r *InvoiceRepository) Get(ctx context.Context, id string) (*billing.Invoice, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("invoice repo: nil db")
	}
	query, args, err := builder().Select(invoiceColumns...).
		From(tableInvoices).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, err
	}
	inv, err := scanInvoice(r.db.QueryRowContext(ctx, query, args...))
	if err != nil || inv == nil {
		return nil, err
	}
	inv.Items, err = r.listItems(ctx, inv.ID)
	if err != nil {
		return nil, err
	}
	return inv, nil
}

// Update rewrites an invoice whose stored status is still from.
func (r *InvoiceRepository) Update(ctx context.Context, inv *billing.Invoice, from billing.Status) error {
	if r == nil || r.db == nil {
		return errors.New("invoice repo: nil db")
	}
	if inv == nil {
		return billing.ErrNilInvoice
	}
	query, args, err := builder().Update(tableInvoices).
		SetMap(map[string]any{
			"status":            string(inv.Status),
			"currency":          inv.Currency,
			"total_amount":      inv.TotalAmount,
			"snapshot_hash":     nullString(inv.SnapshotHash),
			"updated_at":        inv.UpdatedAt,
			"finalized_at":      nullTime(inv.FinalizedAt),
			"paid_at":           nullTime(inv.PaidAt),
			"paid_amount":       inv.PaidAmount,
			"payment_reference": nullString(inv.PaymentReference),
		}).
		Where(sq.Eq{"id": inv.ID, "status": string(from)}).
		ToSql()
	if err != nil {
		return err
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	if n, err := res.RowsAffected(); err != nil || n == 0 {
		_ = tx.Rollback()
		if err != nil {
			return err
		}
		return r.staleError(ctx, inv.ID, from)
	}
	if from == billing.StatusDraft {
		del, delArgs, err := builder().Delete(tableInvoiceItems).Where(sq.Eq{"invoice_id": inv.ID}).ToSql()
		if err != nil {
			_ = tx.Rollback()
			return err
		}
		if _, err := tx.ExecContext(ctx, del, delArgs...); err != nil {
			_ = tx.Rollback()
			return err
		}
		if err := insertItems(ctx, tx, inv); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// Delete removes a draft invoice; items cascade.
func (r *InvoiceRepository) Delete(ctx context.Context, id string) error {
	if r == nil || r.db == nil {
		return errors.New("invoice repo: nil db")
	}
	query, args, err := builder().Delete(tableInvoices).
		Where(sq.Eq{"id": id, "status": string(billing.StatusDraft)}).
		ToSql()
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		inv, err := r.Get(ctx, id)
		if err != nil {
			return err
		}
		if inv == nil {
			return billing.ErrInvoiceNotFound
		}
		return billing.ErrNotDraft
	}
	return nil
}

// DraftCount returns the number of draft invoices.
func (r *InvoiceRepository) DraftCount(ctx context.Context) (int, error) {
	if r == nil || r.db == nil {
		return 0, errors.New("invoice repo: nil db")
	}
	query, args, err := builder().Select("COUNT(*)").
		From(tableInvoices).
		Where(sq.Eq{"status": string(billing.StatusDraft)}).
		ToSql()
	if err != nil {
		return 0, err
	}
	var n int
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (r *InvoiceRepository) mapInsertError(ctx context.Context, inv *billing.Invoice, err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != uniqueViolation {
		return err
	}
	existing, lookupErr := r.ExistingInvoice(ctx, inv.TenantID, inv.PeriodStart, inv.PeriodEnd)
	if lookupErr != nil || existing == nil {
		return &billing.DuplicateInvoiceError{}
	}
	return &billing.DuplicateInvoiceError{ExistingID: existing.ID}
}

func (r *InvoiceRepository) staleError(ctx context.Context, id string, from billing.Status) error {
	current, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	if current == nil {
		return billing.ErrInvoiceNotFound
	}
	return fmt.Errorf("%w: stored status %s, expected %s", billing.ErrInvalidTransition, current.Status, from)
}

func (r *InvoiceRepository) listItems(ctx context.Context, invoiceID string) ([]billing.InvoiceItem, error) {
	query, args, err := builder().Select("id", "kind", "description", "unit", "quantity", "unit_price", "total",
		"meter_id", "zone", "tariff_zone_id", "snapshot").
		From(tableInvoiceItems).
		Where(sq.Eq{"invoice_id": invoiceID}).
		OrderBy("position ASC").
		ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []billing.InvoiceItem
	for rows.Next() {
		var item billing.InvoiceItem
		var kind string
		var unit, meterID, zone, tariffZone sql.NullString
		var snapshot []byte
		if err := rows.Scan(&item.ID, &kind, &item.Description, &unit, &item.Quantity, &item.UnitPrice, &item.Total,
			&meterID, &zone, &tariffZone, &snapshot); err != nil {
			return nil, err
		}
		item.Kind = billing.ItemKind(kind)
		item.Unit = unit.String
		item.MeterID = meterID.String
		item.Zone = zone.String
		item.TariffZoneID = tariffZone.String
		if len(snapshot) > 0 {
			if err := json.Unmarshal(snapshot, &item.Snapshot); err != nil {
				return nil, fmt.Errorf("invoice repo: decode snapshot of item %s: %w", item.ID, err)
			}
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func insertItems(ctx context.Context, tx *sql.Tx, inv *billing.Invoice) error {
	if len(inv.Items) == 0 {
		return nil
	}
	insert := builder().Insert(tableInvoiceItems).Columns(itemColumns...)
	for pos, item := range inv.Items {
		snapshot, err := json.Marshal(item.Snapshot)
		if err != nil {
			return err
		}
		insert = insert.Values(item.ID, inv.ID, pos, string(item.Kind), item.Description, nullString(item.Unit),
			item.Quantity, item.UnitPrice, item.Total, nullString(item.MeterID), nullString(item.Zone),
			nullString(item.TariffZoneID), snapshot)
	}
	query, args, err := insert.ToSql()
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, query, args...)
	return err
}

func invoiceValues(inv *billing.Invoice) []any {
	return []any{
		inv.ID, inv.TenantID, inv.PropertyID, inv.PeriodStart, inv.PeriodEnd, string(inv.Status), inv.Currency,
		inv.TotalAmount, nullString(inv.SnapshotHash), inv.CreatedAt, inv.UpdatedAt, nullTime(inv.FinalizedAt),
		nullTime(inv.PaidAt), inv.PaidAmount, nullString(inv.PaymentReference),
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInvoice(row rowScanner) (*billing.Invoice, error) {
	var inv billing.Invoice
	var status string
	var hash, reference sql.NullString
	var finalizedAt, paidAt sql.NullTime
	err := row.Scan(
		&inv.ID,
		&inv.TenantID,
		&inv.PropertyID,
		&inv.PeriodStart,
		&inv.PeriodEnd,
		&status,
		&inv.Currency,
		&inv.TotalAmount,
		&hash,
		&inv.CreatedAt,
		&inv.UpdatedAt,
		&finalizedAt,
		&paidAt,
		&inv.PaidAmount,
		&reference,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	inv.Status = billing.Status(status)
	inv.SnapshotHash = hash.String
	inv.PaymentReference = reference.String
	if finalizedAt.Valid {
		inv.FinalizedAt = finalizedAt.Time.UTC()
	}
	if paidAt.Valid {
		inv.PaidAt = paidAt.Time.UTC()
	}
	inv.PeriodStart = inv.PeriodStart.UTC()
	inv.PeriodEnd = inv.PeriodEnd.UTC()
	inv.CreatedAt = inv.CreatedAt.UTC()
	inv.UpdatedAt = inv.UpdatedAt.UTC()
	return &inv, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
