package llm

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/joseph-ayodele/receipt-analyzer/constants"
)

// Prompt is the request sent to the model. Build is deterministic so the
// same lines always produce byte-identical prompts.
type Prompt struct {
	System string
	User   string
}

// Text joins both parts; used for cache keys.
func (p Prompt) Text() string {
	return p.System + "\n\n" + p.User
}

type PromptBuilder struct {
	MaxChars        int
	HeadLines       int
	TailLines       int
	Categories      []string
	DefaultCurrency string
}

func NewPromptBuilder(maxChars, headLines, tailLines int, defaultCurrency string) PromptBuilder {
	return PromptBuilder{
		MaxChars:        maxChars,
		HeadLines:       headLines,
		TailLines:       tailLines,
		Categories:      constants.AsStringSlice(),
		DefaultCurrency: defaultCurrency,
	}
}

func (b PromptBuilder) Build(lines []string) Prompt {
	return Prompt{
		System: b.systemPrompt(),
		User:   "RECEIPT TEXT:\n" + b.fitText(lines),
	}
}

func (b PromptBuilder) systemPrompt() string {
	cats := b.Categories
	if len(cats) == 0 {
		cats = constants.AsStringSlice()
	}
	cur := strings.ToUpper(strings.TrimSpace(b.DefaultCurrency))
	if cur == "" {
		cur = "GBP"
	}

	parts := []string{
		"You are a receipts parser. Analyze the receipt text and return ONLY one JSON object, no markdown, no explanation.",
		`Keys: "merchant" (business name, ignore handwritten notes), "date" (YYYY-MM-DD), "total" (the final amount the customer paid, a number), "currency" (3-letter ISO 4217 code), "category", "confidence" (0.0-1.0, based on text clarity and completeness), "subtotal" (number), "tax" (number), "lineItems" (array of {"description", "quantity", "unitPrice", "lineTotal"}).`,
		"Category MUST be exactly one of: " + strings.Join(cats, ", ") + ". If uncertain, use Other.",
		"If the currency is not visible, use " + cur + ".",
		"Only include line items that are clearly visible on the receipt. If none are visible, return an empty lineItems array. Never invent line items.",
		"Omit fields that are not present. Never output null.",
	}
	return strings.Join(parts, "\n")
}

// fitText joins lines and, when over MaxChars, keeps the head and tail of the
// receipt with a marker for the omitted middle.
func (b PromptBuilder) fitText(lines []string) string {
	joined := strings.Join(lines, "\n")
	if b.MaxChars <= 0 || utf8.RuneCountInString(joined) <= b.MaxChars {
		return joined
	}

	n := len(lines)
	head := min(max(b.HeadLines, 0), n)
	tail := min(max(b.TailLines, 0), n-head)

	render := func() string {
		omitted := n - head - tail
		out := make([]string, 0, head+tail+1)
		out = append(out, lines[:head]...)
		if omitted > 0 {
			out = append(out, fmt.Sprintf("…(%d lines truncated)", omitted))
		}
		out = append(out, lines[n-tail:]...)
		return strings.Join(out, "\n")
	}

	text := render()
	for utf8.RuneCountInString(text) > b.MaxChars && head > 0 {
		head--
		text = render()
	}
	for utf8.RuneCountInString(text) > b.MaxChars && tail > 0 {
		tail--
		text = render()
	}
	if utf8.RuneCountInString(text) > b.MaxChars {
		text = string([]rune(text)[:b.MaxChars])
	}
	return text
}
