package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateJSONAgainstSchema(t *testing.T) {
	schema := ReceiptJSONSchema()

	assert.NoError(t, ValidateJSONAgainstSchema(schema, []byte(`{"total": 1.5, "lineItems": []}`)))
	assert.Error(t, ValidateJSONAgainstSchema(schema, []byte(`{"merchant": "x"}`)))
	assert.Error(t, ValidateJSONAgainstSchema(schema, []byte(`{"total": "1.5"}`)))
	assert.Error(t, ValidateJSONAgainstSchema(schema, []byte(`not json`)))
}

func TestDropOptionalViolations(t *testing.T) {
	s, err := compiledReceiptSchema()
	require.NoError(t, err)

	doc := map[string]any{
		"merchant": 1.0,
		"tax":      "x",
		"lineItems": []any{
			map[string]any{"description": "a", "quantity": "two"},
			map[string]any{"description": "b", "quantity": 2.0},
		},
	}
	dropped, totalBad := dropOptionalViolations(doc, violations(s.Validate(doc)))

	assert.True(t, totalBad)
	assert.ElementsMatch(t, []string{"merchant", "tax", "lineItems[0]"}, dropped)
	assert.Len(t, doc["lineItems"], 1)
}

func TestSplitPointer(t *testing.T) {
	assert.Nil(t, splitPointer(""))
	assert.Equal(t, []string{"lineItems", "0", "quantity"}, splitPointer("/lineItems/0/quantity"))
	assert.Equal(t, []string{"a/b", "c~d"}, splitPointer("/a~1b/c~0d"))
}
