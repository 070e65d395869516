package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/receipt-analyzer/internal/common"
	"github.com/joseph-ayodele/receipt-analyzer/internal/entity"
)

// StructuredExtractor calls the model once and turns its answer into a
// ParsedReceipt. It never retries; the pipeline owns retry policy.
type StructuredExtractor struct {
	invoker Invoker
	logger  *slog.Logger
}

func NewStructuredExtractor(invoker Invoker, logger *slog.Logger) *StructuredExtractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &StructuredExtractor{invoker: invoker, logger: logger}
}

var _ Analyzer = (*StructuredExtractor)(nil)

func (x *StructuredExtractor) Extract(ctx context.Context, p Prompt) (entity.ParsedReceipt, error) {
	rid := uuid.New().String()
	ctx = common.WithRequestID(ctx, rid)
	start := time.Now()

	x.logger.Debug("llm.extract.start",
		"req_id", rid,
		"ref", common.DocumentRefFromContext(ctx),
		"model", x.invoker.Model(),
		"prompt_chars", len(p.User),
	)

	resp, err := x.invoker.Invoke(ctx, p)
	if err != nil {
		kind := classifyCall(err)
		x.logger.Warn("llm.extract.call_failed",
			"req_id", rid,
			"kind", kind.String(),
			"error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return entity.ParsedReceipt{}, &ExtractionError{Kind: kind, Err: err}
	}

	raw, ok := LocateJSON(resp)
	if !ok {
		x.logger.Warn("llm.extract.no_json",
			"req_id", rid,
			"response_chars", len(resp),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		if strings.TrimSpace(resp) == "" {
			return entity.ParsedReceipt{}, &ExtractionError{Kind: KindMalformed, Err: ErrEmptyResponse}
		}
		return entity.ParsedReceipt{}, &ExtractionError{Kind: KindMalformed, Err: ErrNoJSON}
	}

	clean, _, err := SanitizeJSON(raw, x.logger)
	if err != nil {
		return entity.ParsedReceipt{}, &ExtractionError{Kind: KindMalformed, Err: err}
	}

	parsed, err := validateReceipt(clean, x.logger)
	if err != nil {
		x.logger.Warn("llm.extract.schema_violation",
			"req_id", rid,
			"error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return entity.ParsedReceipt{}, err
	}

	x.logger.Info("llm.extract.ok",
		"req_id", rid,
		"has_total", parsed.Total != nil,
		"line_items", len(parsed.LineItems),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return parsed, nil
}

func classifyCall(err error) ErrorKind {
	var ce *CallError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return ClassifyTransport(err)
}

// validateReceipt checks the sanitized document against the receipt schema.
// Optional offenders are dropped and the document re-validated; a missing or
// mistyped total yields a SchemaViolation carrying the rest as Candidate.
func validateReceipt(clean []byte, logger *slog.Logger) (entity.ParsedReceipt, error) {
	schema, err := compiledReceiptSchema()
	if err != nil {
		return entity.ParsedReceipt{}, &ExtractionError{Kind: KindPermanent, Err: err}
	}

	var doc map[string]any
	if err := json.Unmarshal(clean, &doc); err != nil {
		return entity.ParsedReceipt{}, &ExtractionError{Kind: KindMalformed, Err: err}
	}

	verr := schema.Validate(doc)
	if verr == nil {
		return decodeCandidate(doc)
	}

	dropped, totalBad := dropOptionalViolations(doc, violations(verr))
	if len(dropped) > 0 {
		logger.Warn("llm.extract.lenient_sanitize_applied", "dropped", dropped)
	}
	if totalBad {
		delete(doc, "total")
	}

	if rest := remainingViolations(schema.Validate(doc)); len(rest) > 0 {
		// nothing more can be salvaged structurally
		cand, _ := decodeCandidate(doc)
		return entity.ParsedReceipt{}, &ExtractionError{
			Kind:      KindSchemaViolation,
			Candidate: &cand,
			Err:       fmt.Errorf("schema validation failed: %w", verr),
		}
	}
	cand, err := decodeCandidate(doc)
	if err != nil {
		return entity.ParsedReceipt{}, &ExtractionError{Kind: KindMalformed, Err: err}
	}
	if totalBad {
		return entity.ParsedReceipt{}, &ExtractionError{
			Kind:      KindSchemaViolation,
			Candidate: &cand,
			Err:       fmt.Errorf("schema validation failed: %w", verr),
		}
	}
	return cand, nil
}

// remainingViolations ignores the missing-total failure, which has already
// been accounted for.
func remainingViolations(err error) []violation {
	if err == nil {
		return nil
	}
	var rest []violation
	for _, v := range violations(err) {
		if len(v.path) == 0 && v.required {
			continue
		}
		rest = append(rest, v)
	}
	if rest == nil && len(violations(err)) == 0 {
		// not a ValidationError
		return []violation{{}}
	}
	return rest
}

func decodeCandidate(doc map[string]any) (entity.ParsedReceipt, error) {
	b, err := json.Marshal(doc)
	if err != nil {
		return entity.ParsedReceipt{}, err
	}
	var out entity.ParsedReceipt
	if err := json.Unmarshal(b, &out); err != nil {
		return entity.ParsedReceipt{}, fmt.Errorf("decode receipt: %w", err)
	}
	return out, nil
}
