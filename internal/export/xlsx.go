// Package export renders extraction results into an XLSX review sheet.
// This is a convenience surface for humans checking a batch; the canonical
// downstream consumer receives the Result structure itself.
package export

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/invoicetools/template-engine/internal/engine"
)

// Row pairs a document name with its extraction result.
type Row struct {
	Document string
	Result   *engine.Result
}

// Service produces XLSX bytes for a batch of extraction results.
type Service struct {
	logger *slog.Logger
}

func NewService(logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{logger: logger}
}

// ResultsXLSX returns an XLSX workbook (as bytes) with one row per
// document: template used, quality, the key invoice fields, and what is
// still missing.
func (s *Service) ResultsXLSX(results []Row) ([]byte, error) {
	start := time.Now()

	f := excelize.NewFile()
	const sheet = "Extractions"
	if index, _ := f.GetSheetIndex(sheet); index == -1 {
		if _, err := f.NewSheet(sheet); err != nil {
			return nil, err
		}
	}
	activeIndex, _ := f.GetSheetIndex(sheet)
	f.SetActiveSheet(activeIndex)

	headers := []string{
		"Document",
		"Template",
		"Quality",
		"Invoice Number",
		"Invoice Date",
		"Supplier",
		"Total Amount",
		"VAT Amount",
		"Line Items",
		"Missing Required",
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	row := 2
	for _, r := range results {
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(sheet, cell, v)
		}

		write(1, r.Document)
		write(2, r.Result.TemplateID)
		write(3, fmt.Sprintf("%.2f", r.Result.Quality))
		write(4, cellString(r.Result.Field("invoice_number")))
		write(5, cellString(r.Result.Field("invoice_date")))
		write(6, cellString(r.Result.Field("supplier_name")))
		write(7, cellString(r.Result.Field("total_amount")))
		write(8, cellString(r.Result.Field("vat_amount")))
		write(9, len(r.Result.LineItems))
		write(10, strings.Join(r.Result.MissingRequired, ", "))

		row++
	}

	_ = f.SetColWidth(sheet, "A", "A", 36) // document
	_ = f.SetColWidth(sheet, "B", "B", 18) // template
	_ = f.SetColWidth(sheet, "D", "F", 20)
	_ = f.SetColWidth(sheet, "J", "J", 28)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"rows", len(results),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

func cellString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case decimal.Decimal:
		return t.StringFixed(2)
	case time.Time:
		return t.Format("2006-01-02")
	default:
		return fmt.Sprintf("%v", t)
	}
}
