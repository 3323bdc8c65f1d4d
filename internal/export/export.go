// Package export renders bill and payment history as flat tables,
// one row per bill, matching the financial export convention used by
// the surrounding system.
package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/paylane/billflow/internal/models"
	"github.com/paylane/billflow/internal/port"
)

// Header is the fixed column order of the export
var Header = []string{"Name", "Type", "Amount", "Paid", "Remaining", "Status", "Due Date", "Year", "Quarter"}

// Row is one exported bill
type Row struct {
	Name      string
	Type      string
	Amount    decimal.Decimal
	Paid      decimal.Decimal
	Remaining decimal.Decimal
	Status    models.BillStatus
	DueDate   string
	Year      int
	Quarter   int
}

func (r Row) record() []string {
	return []string{
		r.Name,
		r.Type,
		r.Amount.StringFixed(2),
		r.Paid.StringFixed(2),
		r.Remaining.StringFixed(2),
		r.Status.String(),
		r.DueDate,
		fmt.Sprintf("%d", r.Year),
		fmt.Sprintf("Q%d", r.Quarter),
	}
}

// Exporter builds export rows from repositories
type Exporter struct {
	bills    port.BillRepository
	vendors  port.VendorRepository
	payments port.PaymentRepository
}

// NewExporter creates a new exporter
func NewExporter(bills port.BillRepository, vendors port.VendorRepository, payments port.PaymentRepository) *Exporter {
	return &Exporter{
		bills:    bills,
		vendors:  vendors,
		payments: payments,
	}
}

// Rows collects one row per bill of the organization. Paid is the sum of
// completed payment attempts; Remaining is the unpaid balance.
func (e *Exporter) Rows(ctx context.Context, orgID string, limit, offset int) ([]Row, error) {
	bills, err := e.bills.List(ctx, orgID, limit, offset)
	if err != nil {
		return nil, err
	}

	vendorNames := make(map[int64]string)

	var rows []Row
	for _, bill := range bills {
		name, ok := vendorNames[bill.VendorID]
		if !ok {
			vendor, err := e.vendors.GetByID(ctx, bill.VendorID)
			if err != nil {
				return nil, err
			}
			name = vendor.Name
			vendorNames[bill.VendorID] = name
		}

		paid := decimal.Zero
		attempts, err := e.payments.ListForBill(ctx, bill.ID)
		if err != nil {
			return nil, err
		}
		for _, p := range attempts {
			if p.Status == models.PaymentStatusCompleted {
				paid = paid.Add(p.Amount)
			}
		}

		remaining := bill.Amount.Sub(paid)
		if remaining.IsNegative() {
			remaining = decimal.Zero
		}

		rows = append(rows, Row{
			Name:      name,
			Type:      bill.Category,
			Amount:    bill.Amount,
			Paid:      paid,
			Remaining: remaining,
			Status:    bill.Status,
			DueDate:   bill.DueDate.Format("2006-01-02"),
			Year:      bill.DueDate.Year(),
			Quarter:   (int(bill.DueDate.Month())-1)/3 + 1,
		})
	}

	return rows, nil
}

// WriteCSV writes the rows as CSV, header first
func WriteCSV(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}
	for _, row := range rows {
		if err := cw.Write(row.record()); err != nil {
			return fmt.Errorf("failed to write csv row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// WriteXLSX writes the rows as a spreadsheet with a single "Bills" sheet
func WriteXLSX(w io.Writer, rows []Row) error {
	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Bills"
	index, err := f.NewSheet(sheet)
	if err != nil {
		return fmt.Errorf("failed to create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("failed to remove default sheet: %w", err)
	}

	for col, title := range Header {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, title); err != nil {
			return fmt.Errorf("failed to write header cell: %w", err)
		}
	}

	for i, row := range rows {
		for col, value := range row.record() {
			cell, err := excelize.CoordinatesToCellName(col+1, i+2)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheet, cell, value); err != nil {
				return fmt.Errorf("failed to write cell: %w", err)
			}
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write spreadsheet: %w", err)
	}
	return nil
}
