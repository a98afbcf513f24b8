package interfaces

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	billing "utility-billing/internal/billing/domain"
)

// BuildInvoicePDF renders a plain PDF for an invoice.
func BuildInvoicePDF(inv *billing.Invoice) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Invoice "+inv.ID)
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	header := []string{
		"Tenant: " + inv.TenantID,
		"Property: " + inv.PropertyID,
		fmt.Sprintf("Period: %s - %s", inv.PeriodStart.Format("2006-01-02"), inv.PeriodEnd.Format("2006-01-02")),
		"Status: " + string(inv.Status),
		"Created: " + inv.CreatedAt.Format(time.RFC3339),
	}
	if !inv.FinalizedAt.IsZero() {
		header = append(header, "Finalized: "+inv.FinalizedAt.Format(time.RFC3339))
	}
	if inv.SnapshotHash != "" {
		header = append(header, "Snapshot: "+inv.SnapshotHash)
	}
	for _, line := range header {
		pdf.Cell(0, 6, line)
		pdf.Ln(5)
	}
	pdf.Ln(4)

	pdf.SetFont("Arial", "B", 9)
	pdf.CellFormat(80, 6, "Description", "1", 0, "L", false, 0, "")
	pdf.CellFormat(25, 6, "Quantity", "1", 0, "C", false, 0, "")
	pdf.CellFormat(15, 6, "Unit", "1", 0, "C", false, 0, "")
	pdf.CellFormat(30, 6, "Unit price", "1", 0, "C", false, 0, "")
	pdf.CellFormat(30, 6, "Total", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 9)
	for _, item := range inv.Items {
		pdf.CellFormat(80, 6, item.Description, "1", 0, "L", false, 0, "")
		pdf.CellFormat(25, 6, item.Quantity.String(), "1", 0, "R", false, 0, "")
		pdf.CellFormat(15, 6, item.Unit, "1", 0, "C", false, 0, "")
		pdf.CellFormat(30, 6, item.UnitPrice.String(), "1", 0, "R", false, 0, "")
		pdf.CellFormat(30, 6, item.Total.StringFixed(2), "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}
	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(150, 7, "Total ("+inv.Currency+")", "1", 0, "R", false, 0, "")
	pdf.CellFormat(30, 7, inv.TotalAmount.StringFixed(2), "1", 0, "R", false, 0, "")
	pdf.Ln(-1)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildInvoiceXLSX renders an invoice workbook with a summary and an items sheet.
func BuildInvoiceXLSX(inv *billing.Invoice) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()
	summarySheet := "summary"
	itemsSheet := "items"
	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(itemsSheet); err != nil {
		return nil, err
	}

	summary := [][2]any{
		{"Invoice", inv.ID},
		{"Tenant", inv.TenantID},
		{"Property", inv.PropertyID},
		{"Period start", inv.PeriodStart.Format("2006-01-02")},
		{"Period end", inv.PeriodEnd.Format("2006-01-02")},
		{"Status", string(inv.Status)},
		{"Currency", inv.Currency},
		{"Total", inv.TotalAmount.InexactFloat64()},
		{"Snapshot hash", inv.SnapshotHash},
	}
	for i, row := range summary {
		n := i + 1
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("A%d", n), row[0])
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("B%d", n), row[1])
	}

	headers := []string{"Kind", "Description", "Meter", "Zone", "Quantity", "Unit", "Unit price", "Total"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(itemsSheet, cell, h)
	}
	for i, item := range inv.Items {
		row := i + 2
		values := []any{
			string(item.Kind),
			item.Description,
			item.MeterID,
			item.Zone,
			item.Quantity.InexactFloat64(),
			item.Unit,
			item.UnitPrice.InexactFloat64(),
			item.Total.InexactFloat64(),
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			_ = f.SetCellValue(itemsSheet, cell, v)
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
