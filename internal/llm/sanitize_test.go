package llm

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sanitizeToMap(t *testing.T, in string) map[string]any {
	t.Helper()
	out, _, err := SanitizeJSON([]byte(in), nil)
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(out, &m))
	return m
}

func TestSanitizeJSON_Synonyms(t *testing.T) {
	m := sanitizeToMap(t, `{
		"vendor": "Joe's Diner",
		"amount": "$23.40",
		"currency_code": "usd",
		"totalTax": 1.9,
		"hasDetailedItems": true,
		"lineItems": [{"description": "Burger", "quantity": 2, "unitPrice": "9.50", "subtotal": 19.0}]
	}`)

	assert.Equal(t, "Joe's Diner", m["merchant"])
	assert.Equal(t, 23.4, m["total"])
	assert.Equal(t, "USD", m["currency"])
	assert.Equal(t, 1.9, m["tax"])
	assert.NotContains(t, m, "hasDetailedItems")
	assert.NotContains(t, m, "vendor")

	items := m["lineItems"].([]any)
	require.Len(t, items, 1)
	item := items[0].(map[string]any)
	assert.Equal(t, 19.0, item["lineTotal"])
	assert.Equal(t, 9.5, item["unitPrice"])
	assert.NotContains(t, item, "subtotal")
}

func TestSanitizeJSON_ExplicitKeyWins(t *testing.T) {
	m := sanitizeToMap(t, `{"merchant": "Real", "vendor": "Other", "total": 5}`)
	assert.Equal(t, "Real", m["merchant"])
}

func TestSanitizeJSON_DropsNullsAndEmpties(t *testing.T) {
	m := sanitizeToMap(t, `{"total": 4, "date": null, "merchant": "  ", "tax": "n/a", "category": "null", "lineItems": [null, {"description": "Tea", "lineTotal": null}]}`)

	assert.Equal(t, 4.0, m["total"])
	for _, k := range []string{"date", "merchant", "tax", "category"} {
		assert.NotContains(t, m, k)
	}
	items := m["lineItems"].([]any)
	require.Len(t, items, 1)
	assert.Equal(t, map[string]any{"description": "Tea"}, items[0])
}

func TestSanitizeJSON_LeavesWrongTypesForValidation(t *testing.T) {
	m := sanitizeToMap(t, `{"total": true, "merchant": 42}`)
	assert.Equal(t, true, m["total"])
	assert.Equal(t, 42.0, m["merchant"])
}

func TestSanitizeJSON_InvalidInput(t *testing.T) {
	_, _, err := SanitizeJSON([]byte(`[1]`), nil)
	assert.Error(t, err)
}

func TestParseMoney(t *testing.T) {
	tests := []struct {
		in     string
		want   float64
		wantOK bool
	}{
		{"$9.50", 9.5, true},
		{"1,234.00", 1234, true},
		{"GBP 12", 12, true},
		{"4,20", 4.2, true},
		{"-3.10", -3.1, true},
		{"£", 0, false},
		{"abc", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseMoney(tt.in)
			assert.Equal(t, tt.wantOK, ok)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}
