package normalize

import (
	"encoding/json"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/receipt-analyzer/internal/entity"
)

func ptr[T any](v T) *T { return &v }

var testMeta = Meta{
	ReceiptID:    "4b0c2f8e-1f7e-4a43-9d55-2b7f3a1c0e11",
	ProcessedAt:  time.Date(2024, 5, 6, 10, 30, 0, 0, time.UTC),
	SourceRef:    "receipts/joes.jpg",
	OriginalText: "JOE'S DINER",
}

func TestNormalize_HappyPath(t *testing.T) {
	n := New("GBP", 0.01)
	p := entity.ParsedReceipt{
		Merchant:   ptr("  Joe's   Diner "),
		Date:       ptr("2024-03-01"),
		Total:      ptr(23.4),
		Currency:   ptr("usd"),
		Category:   ptr("restaurant"),
		Confidence: ptr(0.92),
		Tax:        ptr(1.9),
		LineItems: []entity.ParsedLineItem{
			{Description: "Burger", Quantity: ptr(2.0), UnitPrice: ptr(9.5), LineTotal: ptr(19.0)},
			{Description: "Soda", UnitPrice: ptr(2.5), LineTotal: ptr(2.5)},
		},
	}

	got := n.Normalize(p, testMeta)

	assert.Equal(t, testMeta.ReceiptID, got.ReceiptID)
	assert.Equal(t, "Joe's Diner", got.Merchant)
	assert.Equal(t, "2024-03-01", got.ISODate)
	assert.Equal(t, 23.4, got.TotalAmount)
	assert.Equal(t, "USD", got.CurrencyCode)
	assert.Equal(t, "Food", got.Category)
	assert.Equal(t, 0.92, got.ConfidenceScore)
	require.NotNil(t, got.Tax)
	assert.Equal(t, 1.9, *got.Tax)
	assert.Nil(t, got.Subtotal)
	assert.True(t, got.HasDetailedItems)
	require.Len(t, got.LineItems, 2)
	assert.Equal(t, 1.0, got.LineItems[1].Quantity)
	assert.Zero(t, got.InconsistentItems())
	assert.Equal(t, testMeta.ProcessedAt, got.CreatedAt)
	assert.Equal(t, "receipts/joes.jpg", got.SourceDocumentRef)
}

func TestNormalize_TotalAlwaysPresent(t *testing.T) {
	n := New("GBP", 0.01)
	for name, total := range map[string]*float64{
		"absent":   nil,
		"nan":      ptr(math.NaN()),
		"inf":      ptr(math.Inf(1)),
		"negative": ptr(-4.0),
	} {
		t.Run(name, func(t *testing.T) {
			got := n.Normalize(entity.ParsedReceipt{Total: total}, testMeta)
			assert.Equal(t, 0.0, got.TotalAmount)

			b, err := json.Marshal(got)
			require.NoError(t, err)
			assert.Contains(t, string(b), `"totalAmount":0`)
		})
	}

	got := n.Normalize(entity.ParsedReceipt{Total: ptr(10.126)}, testMeta)
	assert.Equal(t, 10.13, got.TotalAmount)
}

func TestNormalize_EmptyInputDefaults(t *testing.T) {
	got := New("eur", 0).Normalize(entity.ParsedReceipt{}, testMeta)

	assert.Equal(t, "", got.Merchant)
	assert.Equal(t, "2024-05-06", got.ISODate)
	assert.Equal(t, "EUR", got.CurrencyCode)
	assert.Equal(t, "Uncategorized", got.Category)
	assert.Equal(t, 0.0, got.ConfidenceScore)
	assert.NotNil(t, got.LineItems)
	assert.Empty(t, got.LineItems)
	assert.False(t, got.HasDetailedItems)
}

func TestNormalize_NoFabrication(t *testing.T) {
	n := New("GBP", 0.01)
	got := n.Normalize(entity.ParsedReceipt{Merchant: ptr("Parking Lot"), Total: ptr(12.0), LineItems: []entity.ParsedLineItem{}}, testMeta)

	assert.Empty(t, got.LineItems)
	assert.False(t, got.HasDetailedItems)
	assert.Equal(t, 12.0, got.TotalAmount)
}

func TestNormalize_InconsistentLineItem(t *testing.T) {
	n := New("GBP", 0.01)
	got := n.Normalize(entity.ParsedReceipt{
		Total: ptr(30.0),
		LineItems: []entity.ParsedLineItem{
			{Description: "Widget", Quantity: ptr(3.0), UnitPrice: ptr(5.0), LineTotal: ptr(20.0)},
			{Description: "Rounding", Quantity: ptr(3.0), UnitPrice: ptr(3.333), LineTotal: ptr(10.0)},
			{Description: "", LineTotal: ptr(0.0)},
		},
	}, testMeta)

	require.Len(t, got.LineItems, 3)
	assert.True(t, got.LineItems[0].Inconsistent)
	assert.False(t, got.LineItems[1].Inconsistent)
	assert.False(t, got.LineItems[2].Inconsistent)
	assert.Equal(t, "", got.LineItems[2].Description)
	assert.Equal(t, 1, got.InconsistentItems())
}

func TestNormalize_DiscountLinesKeepSign(t *testing.T) {
	n := New("GBP", 0.01)
	got := n.Normalize(entity.ParsedReceipt{
		Total: ptr(7.5),
		LineItems: []entity.ParsedLineItem{
			{Description: "Burger", Quantity: ptr(1.0), UnitPrice: ptr(9.5), LineTotal: ptr(9.5)},
			{Description: "Voucher", Quantity: ptr(1.0), UnitPrice: ptr(-2.0), LineTotal: ptr(-2.0)},
			{Description: "Refund", UnitPrice: ptr(-1.005), LineTotal: ptr(-5.0)},
		},
	}, testMeta)

	require.Len(t, got.LineItems, 3)
	voucher := got.LineItems[1]
	assert.Equal(t, -2.0, voucher.UnitPrice)
	assert.Equal(t, -2.0, voucher.LineTotal)
	assert.False(t, voucher.Inconsistent)

	refund := got.LineItems[2]
	assert.Equal(t, -5.0, refund.LineTotal)
	assert.True(t, refund.Inconsistent)
	assert.Equal(t, 7.5, got.TotalAmount)
}

func TestNormalize_TotalCeiling(t *testing.T) {
	n := New("GBP", 0.01)

	got := n.Normalize(entity.ParsedReceipt{Total: ptr(1_000_000.0)}, testMeta)
	assert.Equal(t, 1_000_000.0, got.TotalAmount)
	assert.False(t, got.Degraded)

	got = n.Normalize(entity.ParsedReceipt{Total: ptr(2_500_000.0)}, testMeta)
	assert.Equal(t, 0.0, got.TotalAmount)
	assert.True(t, got.Degraded)

	n.MaxTotal = 100
	got = n.Normalize(entity.ParsedReceipt{Total: ptr(150.0)}, testMeta)
	assert.Equal(t, 0.0, got.TotalAmount)
	assert.True(t, got.Degraded)
	assert.Equal(t, got, n.Normalize(entity.ParsedReceipt{Total: ptr(150.0)}, testMeta))
}

func TestNormalize_Dates(t *testing.T) {
	n := New("GBP", 0.01)
	tests := map[string]string{
		"2024-03-01":           "2024-03-01",
		"2024-03-01T18:22:00Z": "2024-03-01",
		"03/04/2024":           "2024-04-03",
		"03/15/2024":           "2024-03-15",
		"1 Mar 2024":           "2024-03-01",
		"Mar 1, 2024":          "2024-03-01",
		"yesterday":            "2024-05-06",
		"2024-13-45":           "2024-05-06",
	}
	for in, want := range tests {
		t.Run(in, func(t *testing.T) {
			got := n.Normalize(entity.ParsedReceipt{Date: ptr(in)}, testMeta)
			assert.Equal(t, want, got.ISODate)
		})
	}
}

func TestNormalize_Currency(t *testing.T) {
	n := New("GBP", 0.01)
	tests := map[string]string{
		"usd":     "USD",
		" eur":    "EUR",
		"£":       "GBP",
		"$":       "USD",
		"XXX":     "GBP",
		"":        "GBP",
		"DOLLARS": "GBP",
	}
	for in, want := range tests {
		t.Run(in, func(t *testing.T) {
			assert.Equal(t, want, n.Normalize(entity.ParsedReceipt{Currency: ptr(in)}, testMeta).CurrencyCode)
		})
	}
}

func TestNormalize_ClampsAndCaps(t *testing.T) {
	n := New("GBP", 0.01)
	got := n.Normalize(entity.ParsedReceipt{
		Merchant:   ptr(strings.Repeat("m", 300)),
		Confidence: ptr(1.7),
	}, Meta{OriginalText: strings.Repeat("é", 2500), ProcessedAt: testMeta.ProcessedAt})

	assert.Equal(t, 200, len([]rune(got.Merchant)))
	assert.Equal(t, 2000, len([]rune(got.OriginalText)))
	assert.Equal(t, 1.0, got.ConfidenceScore)

	got = n.Normalize(entity.ParsedReceipt{Confidence: ptr(-0.2)}, testMeta)
	assert.Equal(t, 0.0, got.ConfidenceScore)
}

func TestNormalize_Idempotent(t *testing.T) {
	n := New("GBP", 0.01)
	inputs := []entity.ParsedReceipt{
		{},
		{Merchant: ptr("Joe's Diner"), Total: ptr(23.4), Date: ptr("01/03/2024"), LineItems: []entity.ParsedLineItem{{Description: "Burger", Quantity: ptr(2.0), UnitPrice: ptr(9.5), LineTotal: ptr(18.0)}}},
		{Total: ptr(math.NaN()), Currency: ptr("??"), Category: ptr("parking"), Confidence: ptr(3.0)},
	}
	for i, p := range inputs {
		first, err := json.Marshal(n.Normalize(p, testMeta))
		require.NoError(t, err)
		second, err := json.Marshal(n.Normalize(p, testMeta))
		require.NoError(t, err)
		assert.Equal(t, string(first), string(second), "input %d", i)
	}
}
