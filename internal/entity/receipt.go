package entity

import (
	"time"
)

// ParsedReceipt is the model's candidate output before normalization.
// Every field is optional; nil means the model did not supply a usable value.
type ParsedReceipt struct {
	Merchant   *string          `json:"merchant,omitempty"`
	Date       *string          `json:"date,omitempty"`
	Total      *float64         `json:"total,omitempty"`
	Currency   *string          `json:"currency,omitempty"`
	Category   *string          `json:"category,omitempty"`
	Confidence *float64         `json:"confidence,omitempty"`
	Subtotal   *float64         `json:"subtotal,omitempty"`
	Tax        *float64         `json:"tax,omitempty"`
	LineItems  []ParsedLineItem `json:"lineItems,omitempty"`
}

type ParsedLineItem struct {
	Description string   `json:"description"`
	Quantity    *float64 `json:"quantity,omitempty"`
	UnitPrice   *float64 `json:"unitPrice,omitempty"`
	LineTotal   *float64 `json:"lineTotal,omitempty"`
}

// CanonicalReceipt is the persisted record. TotalAmount is always present and
// LineItems is never nil.
type CanonicalReceipt struct {
	ReceiptID         string     `json:"receiptId"`
	Merchant          string     `json:"merchant"`
	ISODate           string     `json:"isoDate"`
	TotalAmount       float64    `json:"totalAmount"`
	CurrencyCode      string     `json:"currencyCode"`
	Category          string     `json:"category"`
	ConfidenceScore   float64    `json:"confidenceScore"`
	Subtotal          *float64   `json:"subtotal,omitempty"`
	Tax               *float64   `json:"tax,omitempty"`
	LineItems         []LineItem `json:"lineItems"`
	HasDetailedItems  bool       `json:"hasDetailedItems"`
	Degraded          bool       `json:"degraded"`
	OriginalText      string     `json:"originalText,omitempty"`
	CreatedAt         time.Time  `json:"createdAt"`
	SourceDocumentRef string     `json:"sourceDocumentRef"`
}

type LineItem struct {
	Description  string  `json:"description"`
	Quantity     float64 `json:"quantity"`
	UnitPrice    float64 `json:"unitPrice"`
	LineTotal    float64 `json:"lineTotal"`
	Inconsistent bool    `json:"inconsistent"`
}

// InconsistentItems counts line items whose arithmetic did not check out.
func (r CanonicalReceipt) InconsistentItems() int {
	n := 0
	for _, li := range r.LineItems {
		if li.Inconsistent {
			n++
		}
	}
	return n
}
