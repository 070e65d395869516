// Package export writes run reports for batches of processed receipts.
package export

import (
	"fmt"
	"io"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/receipt-analyzer/internal/pipeline"
)

const (
	SheetReceipts  = "Receipts"
	SheetLineItems = "Line Items"
	SheetFailures  = "Failures"

	maxErrorChars = 300
)

var (
	receiptHeaders = []string{
		"Receipt ID", "Source", "Merchant", "Date", "Total", "Currency",
		"Category", "Confidence", "Subtotal", "Tax", "Items", "Inconsistent Items", "Degraded",
	}
	itemHeaders    = []string{"Receipt ID", "Description", "Quantity", "Unit Price", "Line Total", "Inconsistent"}
	failureHeaders = []string{"Source", "Receipt ID", "Reason", "Stage", "Attempts", "Error"}
)

// ReportStats summarizes what WriteReport wrote.
type ReportStats struct {
	Succeeded int
	Failed    int
	LineItems int
}

// WriteReport writes an XLSX workbook describing results to w.
func WriteReport(w io.Writer, results []pipeline.PipelineResult, logger *slog.Logger) (ReportStats, error) {
	if logger == nil {
		logger = slog.Default()
	}
	start := time.Now()
	var stats ReportStats

	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			logger.Warn("export.report.close_failed", "error", err)
		}
	}()

	// The default "Sheet1" becomes the receipts sheet.
	if err := f.SetSheetName(f.GetSheetName(0), SheetReceipts); err != nil {
		return stats, err
	}
	for _, name := range []string{SheetLineItems, SheetFailures} {
		if _, err := f.NewSheet(name); err != nil {
			return stats, err
		}
	}

	receipts := newSheetWriter(f, SheetReceipts, receiptHeaders)
	items := newSheetWriter(f, SheetLineItems, itemHeaders)
	failures := newSheetWriter(f, SheetFailures, failureHeaders)

	for _, res := range results {
		if !res.Succeeded() || res.Receipt == nil {
			stats.Failed++
			errText := ""
			if res.Err != nil {
				errText = truncate(res.Err.Error(), maxErrorChars)
			}
			failures.row(res.Ref, res.ReceiptID, string(res.FailureReason), string(res.Stage), res.Attempts, errText)
			continue
		}

		stats.Succeeded++
		r := res.Receipt
		receipts.row(
			r.ReceiptID,
			r.SourceDocumentRef,
			r.Merchant,
			r.ISODate,
			r.TotalAmount,
			r.CurrencyCode,
			r.Category,
			r.ConfidenceScore,
			optional(r.Subtotal),
			optional(r.Tax),
			len(r.LineItems),
			r.InconsistentItems(),
			r.Degraded,
		)
		for _, li := range r.LineItems {
			stats.LineItems++
			items.row(r.ReceiptID, li.Description, li.Quantity, li.UnitPrice, li.LineTotal, li.Inconsistent)
		}
	}

	for _, sw := range []*sheetWriter{receipts, items, failures} {
		if sw.err != nil {
			return stats, fmt.Errorf("xlsx %s: %w", sw.name, sw.err)
		}
	}

	_ = f.SetColWidth(SheetReceipts, "A", "B", 38)
	_ = f.SetColWidth(SheetReceipts, "C", "C", 28)
	_ = f.SetColWidth(SheetLineItems, "A", "A", 38)
	_ = f.SetColWidth(SheetLineItems, "B", "B", 40)
	_ = f.SetColWidth(SheetFailures, "A", "B", 38)
	_ = f.SetColWidth(SheetFailures, "F", "F", 80)
	f.SetActiveSheet(0)

	if _, err := f.WriteTo(w); err != nil {
		return stats, fmt.Errorf("xlsx write: %w", err)
	}

	logger.Info("export.report.ok",
		"succeeded", stats.Succeeded,
		"failed", stats.Failed,
		"line_items", stats.LineItems,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return stats, nil
}

// sheetWriter appends rows to one sheet and keeps the first error.
type sheetWriter struct {
	f    *excelize.File
	name string
	next int
	err  error
}

func newSheetWriter(f *excelize.File, name string, headers []string) *sheetWriter {
	sw := &sheetWriter{f: f, name: name, next: 1}
	cells := make([]any, len(headers))
	for i, h := range headers {
		cells[i] = h
	}
	sw.row(cells...)
	if sw.err == nil {
		sw.err = f.SetPanes(name, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})
	}
	return sw
}

func (sw *sheetWriter) row(values ...any) {
	if sw.err != nil {
		return
	}
	cell, err := excelize.CoordinatesToCellName(1, sw.next)
	if err != nil {
		sw.err = err
		return
	}
	if err := sw.f.SetSheetRow(sw.name, cell, &values); err != nil {
		sw.err = err
		return
	}
	sw.next++
}

func optional(v *float64) any {
	if v == nil {
		return ""
	}
	return *v
}

func truncate(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n-1]) + "…"
}
