package export

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/receipt-analyzer/constants"
	"github.com/joseph-ayodele/receipt-analyzer/internal/entity"
	"github.com/joseph-ayodele/receipt-analyzer/internal/pipeline"
)

func TestWriteReport(t *testing.T) {
	tax := 1.25
	results := []pipeline.PipelineResult{
		{
			Ref:       "receipts/joe.jpg",
			Status:    constants.StatusSucceeded,
			ReceiptID: "r-1",
			Attempts:  2,
			Receipt: &entity.CanonicalReceipt{
				ReceiptID:         "r-1",
				Merchant:          "Joe's Diner",
				ISODate:           "2024-03-14",
				TotalAmount:       19.5,
				CurrencyCode:      "USD",
				Category:          "Food",
				ConfidenceScore:   0.9,
				Tax:               &tax,
				SourceDocumentRef: "receipts/joe.jpg",
				LineItems: []entity.LineItem{
					{Description: "Burger", Quantity: 1, UnitPrice: 12.5, LineTotal: 12.5},
					{Description: "Coffee", Quantity: 2, UnitPrice: 3, LineTotal: 7, Inconsistent: true},
				},
				HasDetailedItems: true,
			},
		},
		{
			Ref:           "receipts/blurry.png",
			Status:        constants.StatusFailed,
			ReceiptID:     "r-2",
			FailureReason: constants.ReasonExtractionExhausted,
			Stage:         constants.StageAnalyzing,
			Attempts:      3,
			Err:           errors.New("analyze: 3 attempts: 503"),
		},
	}

	var buf bytes.Buffer
	stats, err := WriteReport(&buf, results, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	assert.Equal(t, ReportStats{Succeeded: 1, Failed: 1, LineItems: 2}, stats)

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{SheetReceipts, SheetLineItems, SheetFailures}, f.GetSheetList())

	rows, err := f.GetRows(SheetReceipts)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, receiptHeaders, rows[0])
	assert.Equal(t, "r-1", rows[1][0])
	assert.Equal(t, "Joe's Diner", rows[1][2])
	assert.Equal(t, "19.5", rows[1][4])
	assert.Equal(t, "", rows[1][8])
	assert.Equal(t, "1.25", rows[1][9])
	assert.Equal(t, "1", rows[1][11])

	items, err := f.GetRows(SheetLineItems)
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, []string{"r-1", "Coffee", "2", "3", "7", "TRUE"}, items[2])

	failures, err := f.GetRows(SheetFailures)
	require.NoError(t, err)
	require.Len(t, failures, 2)
	assert.Equal(t, []string{"receipts/blurry.png", "r-2", "ExtractionExhausted", "ANALYZING", "3", "analyze: 3 attempts: 503"}, failures[1])
}

func TestWriteReportEmpty(t *testing.T) {
	var buf bytes.Buffer
	stats, err := WriteReport(&buf, nil, nil)
	require.NoError(t, err)
	assert.Zero(t, stats)
	assert.NotZero(t, buf.Len())
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "ab…", truncate("abcdef", 3))
	assert.Equal(t, "££…", truncate("££££", 3))
}
