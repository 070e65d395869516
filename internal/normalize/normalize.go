// Package normalize turns a model's candidate receipt into the canonical record.
package normalize

import (
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/joseph-ayodele/receipt-analyzer/constants"
	"github.com/joseph-ayodele/receipt-analyzer/internal/entity"
)

const (
	maxMerchantRunes     = 200
	maxOriginalTextRunes = 2000
	isoDate              = "2006-01-02"

	// DefaultMaxTotal is the largest receipt total accepted as plausible.
	DefaultMaxTotal = 1_000_000.0
)

// Day-first layouts are tried before month-first, so 03/04/2024 reads as 3 April.
var dateLayouts = []string{
	isoDate,
	time.RFC3339,
	"2006/01/02",
	"02/01/2006",
	"01/02/2006",
	"02-01-2006",
	"02.01.2006",
	"2 Jan 2006",
	"2 January 2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"02/01/06",
}

// Meta carries the per-execution values the normalizer must not invent itself.
type Meta struct {
	ReceiptID    string
	ProcessedAt  time.Time
	SourceRef    string
	OriginalText string
	Degraded     bool
}

type Normalizer struct {
	DefaultCurrency string
	Tolerance       float64
	KnownCurrencies map[string]struct{}
	// MaxTotal bounds TotalAmount; larger totals read as 0 and mark the record degraded.
	MaxTotal float64
}

func New(defaultCurrency string, tolerance float64) *Normalizer {
	cur := strings.ToUpper(strings.TrimSpace(defaultCurrency))
	if cur == "" {
		cur = "GBP"
	}
	if tolerance <= 0 {
		tolerance = 0.01
	}
	return &Normalizer{DefaultCurrency: cur, Tolerance: tolerance, KnownCurrencies: iso4217, MaxTotal: DefaultMaxTotal}
}

// Normalize never fails. Its output depends only on p and meta.
func (n *Normalizer) Normalize(p entity.ParsedReceipt, meta Meta) entity.CanonicalReceipt {
	items := n.lineItems(p.LineItems)
	total, plausible := n.total(p.Total)

	return entity.CanonicalReceipt{
		ReceiptID:         meta.ReceiptID,
		Merchant:          merchant(p.Merchant),
		ISODate:           isoDateOr(p.Date, meta.ProcessedAt),
		TotalAmount:       total,
		CurrencyCode:      n.currency(p.Currency),
		Category:          string(category(p.Category)),
		ConfidenceScore:   clamp01(p.Confidence),
		Subtotal:          optionalAmount(p.Subtotal),
		Tax:               optionalAmount(p.Tax),
		LineItems:         items,
		HasDetailedItems:  len(items) > 0,
		Degraded:          meta.Degraded || !plausible,
		OriginalText:      truncateRunes(meta.OriginalText, maxOriginalTextRunes),
		CreatedAt:         meta.ProcessedAt.UTC(),
		SourceDocumentRef: meta.SourceRef,
	}
}

func (n *Normalizer) lineItems(in []entity.ParsedLineItem) []entity.LineItem {
	out := make([]entity.LineItem, 0, len(in))
	for _, it := range in {
		qty := 1.0
		if it.Quantity != nil && finite(*it.Quantity) && *it.Quantity > 0 {
			qty = *it.Quantity
		}
		// discounts and refunds are negative; keep them
		unit := signedAmount(it.UnitPrice)
		total := signedAmount(it.LineTotal)

		out = append(out, entity.LineItem{
			Description:  collapseSpace(it.Description),
			Quantity:     qty,
			UnitPrice:    unit,
			LineTotal:    total,
			Inconsistent: math.Abs(round2(qty*unit)-total) > n.Tolerance+1e-9,
		})
	}
	return out
}

func (n *Normalizer) currency(c *string) string {
	if c == nil {
		return n.DefaultCurrency
	}
	code := strings.ToUpper(strings.TrimSpace(*c))
	if sym, ok := currencySymbols[code]; ok {
		return sym
	}
	known := n.KnownCurrencies
	if known == nil {
		known = iso4217
	}
	if _, ok := known[code]; ok {
		return code
	}
	return n.DefaultCurrency
}

func merchant(m *string) string {
	if m == nil {
		return ""
	}
	return truncateRunes(collapseSpace(*m), maxMerchantRunes)
}

func category(c *string) constants.Category {
	if c == nil {
		return constants.Uncategorized
	}
	cat, _ := constants.Canonicalize(*c)
	return cat
}

func isoDateOr(d *string, processedAt time.Time) string {
	if d != nil {
		s := strings.TrimSpace(*d)
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t.Format(isoDate)
			}
		}
	}
	return processedAt.UTC().Format(isoDate)
}

// total reports false only when a readable total is above MaxTotal.
func (n *Normalizer) total(v *float64) (float64, bool) {
	limit := n.MaxTotal
	if limit <= 0 {
		limit = DefaultMaxTotal
	}
	if v == nil || !finite(*v) || *v < 0 {
		return 0, true
	}
	t := round2(*v)
	if t > limit {
		return 0, false
	}
	return t, true
}

func signedAmount(v *float64) float64 {
	if v == nil || !finite(*v) {
		return 0
	}
	return round2(*v)
}

func optionalAmount(v *float64) *float64 {
	if v == nil || !finite(*v) {
		return nil
	}
	r := round2(*v)
	return &r
}

func clamp01(v *float64) float64 {
	if v == nil || !finite(*v) {
		return 0
	}
	return math.Min(1, math.Max(0, *v))
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncateRunes(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	return string([]rune(s)[:limit])
}
