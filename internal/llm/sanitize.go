package llm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"regexp"
	"strconv"
	"strings"
)

var (
	// top-level synonyms the model tends to produce
	receiptRenames = [][2]string{
		{"vendor", "merchant"},
		{"merchant_name", "merchant"},
		{"store", "merchant"},
		{"business_name", "merchant"},
		{"amount", "total"},
		{"total_amount", "total"},
		{"totalAmount", "total"},
		{"currency_code", "currency"},
		{"currencyCode", "currency"},
		{"tx_date", "date"},
		{"transaction_date", "date"},
		{"totalTax", "tax"},
		{"total_tax", "tax"},
		{"line_items", "lineItems"},
		{"items", "lineItems"},
	}
	itemRenames = [][2]string{
		{"subtotal", "lineTotal"},
		{"total", "lineTotal"},
		{"line_total", "lineTotal"},
		{"amount", "lineTotal"},
		{"unit_price", "unitPrice"},
		{"price", "unitPrice"},
		{"qty", "quantity"},
		{"name", "description"},
		{"item", "description"},
	}

	receiptNumbers = []string{"total", "subtotal", "tax", "confidence"}
	receiptStrings = []string{"merchant", "date", "currency", "category"}
	itemNumbers    = []string{"quantity", "unitPrice", "lineTotal"}

	receiptKeys = keySet("merchant", "date", "total", "currency", "category", "confidence", "subtotal", "tax", "lineItems")
	itemKeys    = keySet("description", "quantity", "unitPrice", "lineTotal")

	reMoneyNoise = regexp.MustCompile(`[^0-9.,\-]`)
	reDecComma   = regexp.MustCompile(`^-?\d+,\d{1,2}$`)
)

func keySet(keys ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		m[k] = struct{}{}
	}
	return m
}

// SanitizeJSON brings a located JSON object closer to the receipt schema:
//   - renames known synonyms (vendor -> merchant, amount -> total, ...)
//   - coerces money strings ("$9.50", "1,234.00") to numbers
//   - drops nulls, empty strings and unknown keys
//   - upper-cases the currency
//
// Values with the wrong type are left alone so schema validation can flag them.
func SanitizeJSON(raw []byte, logger *slog.Logger) ([]byte, []string, error) {
	if logger == nil {
		logger = slog.Default()
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return nil, nil, fmt.Errorf("sanitize: decode: %w", err)
	}

	var changes []string
	changes = append(changes, sanitizeObject(m, "", receiptRenames, receiptNumbers, receiptStrings, receiptKeys)...)

	if cur, ok := m["currency"].(string); ok {
		m["currency"] = strings.ToUpper(cur)
	}

	if items, ok := m["lineItems"].([]any); ok {
		kept := make([]any, 0, len(items))
		for i, it := range items {
			obj, ok := it.(map[string]any)
			if !ok {
				changes = append(changes, fmt.Sprintf("lineItems[%d](not object)", i))
				continue
			}
			prefix := fmt.Sprintf("lineItems[%d].", i)
			changes = append(changes, sanitizeObject(obj, prefix, itemRenames, itemNumbers, []string{"description"}, itemKeys)...)
			kept = append(kept, obj)
		}
		m["lineItems"] = kept
	}

	out, err := json.Marshal(m)
	if err != nil {
		return nil, changes, fmt.Errorf("sanitize: encode: %w", err)
	}
	if len(changes) > 0 {
		logger.Debug("llm.extract.sanitize", "changes", changes)
	}
	return out, changes, nil
}

func sanitizeObject(m map[string]any, prefix string, renames [][2]string, numbers, strs []string, allowed map[string]struct{}) []string {
	var changes []string

	for _, r := range renames {
		from, to := r[0], r[1]
		v, ok := m[from]
		if !ok {
			continue
		}
		// an explicit key wins over its synonym
		if cur, exists := m[to]; !exists || cur == nil {
			m[to] = v
		}
		delete(m, from)
		changes = append(changes, prefix+from+"->"+to)
	}

	for k, v := range maps.Clone(m) {
		if _, ok := allowed[k]; !ok {
			delete(m, k)
			changes = append(changes, prefix+k+"(unknown)")
			continue
		}
		if v == nil {
			delete(m, k)
			changes = append(changes, prefix+k+"(null)")
		}
	}

	for _, k := range numbers {
		v, ok := m[k]
		if !ok {
			continue
		}
		switch t := v.(type) {
		case json.Number:
			if f, err := t.Float64(); err == nil {
				m[k] = f
			}
		case string:
			if f, ok := ParseMoney(t); ok {
				m[k] = f
				changes = append(changes, prefix+k+"(coerced)")
			} else {
				delete(m, k)
				changes = append(changes, prefix+k+"(unparseable)")
			}
		}
	}

	for _, k := range strs {
		s, ok := m[k].(string)
		if !ok {
			continue
		}
		s = strings.TrimSpace(s)
		if s == "" || strings.EqualFold(s, "null") {
			delete(m, k)
			changes = append(changes, prefix+k+"(empty)")
			continue
		}
		m[k] = s
	}
	return changes
}

// ParseMoney reads amounts such as "$9.50", "1,234.00", "GBP 12" or "4,20".
func ParseMoney(s string) (float64, bool) {
	s = strings.TrimSpace(reMoneyNoise.ReplaceAllString(s, ""))
	s = strings.Trim(s, ".")
	if s == "" || s == "-" {
		return 0, false
	}
	if reDecComma.MatchString(s) {
		s = strings.Replace(s, ",", ".", 1)
	} else {
		s = strings.ReplaceAll(s, ",", "")
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
