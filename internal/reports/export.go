package reports

import (
	"fmt"
	"io"
	"time"

	"github.com/go-pdf/fpdf"
	"github.com/xuri/excelize/v2"
)

var exportColumns = []string{"Order", "Customer", "Phone", "Address", "Total", "Units", "Avg/unit", "Created"}

// centavos renders an integer minor-unit amount as a decimal string.
func centavos(v int64) string {
	return fmt.Sprintf("%d.%02d", v/100, v%100)
}

// WriteXLSX renders the sales rows as a spreadsheet.
func WriteXLSX(w io.Writer, rows []OrderRow) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	const sheet = "Sales"
	idx, err := f.NewSheet(sheet)
	if err != nil {
		return err
	}
	f.SetActiveSheet(idx)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return err
	}

	for col, name := range exportColumns {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, name); err != nil {
			return err
		}
	}

	for i, row := range rows {
		values := []any{
			row.ID,
			row.CustomerName,
			row.Phone,
			row.Address,
			centavos(row.Total),
			row.TotalItems,
			centavos(row.AveragePer),
			row.CreatedAt.Format(time.RFC3339),
		}
		for col, value := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, i+2)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheet, cell, value); err != nil {
				return err
			}
		}
	}

	return f.Write(w)
}

// WritePDF renders the sales rows as a simple tabular PDF.
func WritePDF(w io.Writer, rows []OrderRow) error {
	pdf := fpdf.New("L", "mm", "A4", "")
	pdf.SetFont("Helvetica", "", 9)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 10, "Sales report")
	pdf.Ln(12)

	widths := []float64{52, 40, 28, 60, 22, 16, 22, 36}

	pdf.SetFont("Helvetica", "B", 9)
	for i, name := range exportColumns {
		pdf.CellFormat(widths[i], 7, name, "1", 0, "L", false, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Helvetica", "", 8)
	for _, row := range rows {
		values := []string{
			row.ID,
			row.CustomerName,
			row.Phone,
			row.Address,
			centavos(row.Total),
			fmt.Sprintf("%d", row.TotalItems),
			centavos(row.AveragePer),
			row.CreatedAt.Format("2006-01-02 15:04"),
		}
		for i, value := range values {
			pdf.CellFormat(widths[i], 6, value, "1", 0, "L", false, 0, "")
		}
		pdf.Ln(-1)
	}

	return pdf.Output(w)
}
