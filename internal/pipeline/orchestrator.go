// Package pipeline runs one receipt document through text extraction, model
// analysis, normalization and persistence.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/joseph-ayodele/receipt-analyzer/constants"
	"github.com/joseph-ayodele/receipt-analyzer/internal/common"
	"github.com/joseph-ayodele/receipt-analyzer/internal/entity"
	"github.com/joseph-ayodele/receipt-analyzer/internal/llm"
	"github.com/joseph-ayodele/receipt-analyzer/internal/normalize"
	"github.com/joseph-ayodele/receipt-analyzer/internal/ocr"
	"github.com/joseph-ayodele/receipt-analyzer/internal/source"
	"github.com/joseph-ayodele/receipt-analyzer/internal/store"
)

const tracerName = "github.com/joseph-ayodele/receipt-analyzer/internal/pipeline"

var (
	ErrDeadlineExceeded = errors.New("document deadline exceeded")
	ErrNoText           = errors.New("no text recognized in document")
)

// Config is the retry and deadline policy applied to every document.
type Config struct {
	LLMMaxAttempts   int
	StoreMaxAttempts int
	BaseDelay        time.Duration
	MaxDelay         time.Duration
	DocumentDeadline time.Duration
	// CallTimeout bounds a single OCR, analyzer or store call. The remaining
	// document deadline wins when it is shorter.
	CallTimeout time.Duration

	RetryOCR       bool
	OCRMaxAttempts int
}

func DefaultConfig() Config {
	return Config{
		LLMMaxAttempts:   3,
		StoreMaxAttempts: 3,
		BaseDelay:        500 * time.Millisecond,
		MaxDelay:         10 * time.Second,
		DocumentDeadline: 300 * time.Second,
		CallTimeout:      60 * time.Second,
		OCRMaxAttempts:   2,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.LLMMaxAttempts <= 0 {
		c.LLMMaxAttempts = d.LLMMaxAttempts
	}
	if c.StoreMaxAttempts <= 0 {
		c.StoreMaxAttempts = d.StoreMaxAttempts
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = d.BaseDelay
	}
	if c.MaxDelay < c.BaseDelay {
		c.MaxDelay = max(d.MaxDelay, c.BaseDelay)
	}
	if c.DocumentDeadline <= 0 {
		c.DocumentDeadline = d.DocumentDeadline
	}
	if c.OCRMaxAttempts <= 0 {
		c.OCRMaxAttempts = 1
	}
	return c
}

// Deps are the collaborators of an Orchestrator. All are required.
type Deps struct {
	Source     source.DocumentSource
	Extractor  ocr.TextExtractor
	Prompts    llm.PromptBuilder
	Analyzer   llm.Analyzer
	Normalizer *normalize.Normalizer
	Store      store.RecordStore
}

// Orchestrator drives executions. It holds no per-document state, so one
// instance serves any number of concurrent Process calls.
type Orchestrator struct {
	deps    Deps
	cfg     Config
	logger  *slog.Logger
	metrics *Metrics
	tracer  trace.Tracer

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
	newID func() string
}

type Option func(*Orchestrator)

func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

func WithMetrics(m *Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

func WithTracer(t trace.Tracer) Option {
	return func(o *Orchestrator) {
		if t != nil {
			o.tracer = t
		}
	}
}

// WithClock replaces the wall clock and the backoff sleep.
func WithClock(now func() time.Time, sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
		if sleep != nil {
			o.sleep = sleep
		}
	}
}

func WithIDGenerator(f func() string) Option {
	return func(o *Orchestrator) {
		if f != nil {
			o.newID = f
		}
	}
}

func New(deps Deps, cfg Config, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		deps:   deps,
		cfg:    cfg.withDefaults(),
		logger: slog.Default(),
		tracer: otel.Tracer(tracerName),
		now:    time.Now,
		sleep:  sleepContext,
		newID:  func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.deps.Normalizer == nil {
		o.deps.Normalizer = normalize.New("", 0)
	}
	return o
}

// Process runs one document to a terminal state. It never panics on
// collaborator errors and always returns a result; Err is set on failure.
func (o *Orchestrator) Process(ctx context.Context, ref string) PipelineResult {
	start := o.now()
	deadline := start.Add(o.cfg.DocumentDeadline)
	ctx, cancel := context.WithTimeout(ctx, o.cfg.DocumentDeadline)
	defer cancel()
	ctx = common.WithDocumentRef(ctx, ref)

	ex := &Execution{Ref: ref, ReceiptID: o.newID()}
	ctx, span := o.tracer.Start(ctx, "pipeline.process", trace.WithAttributes(
		attribute.String("receipt.ref", ref),
		attribute.String("receipt.id", ex.ReceiptID),
	))
	defer span.End()

	res := o.run(ctx, ex, start, deadline)
	res.Duration = o.now().Sub(start)

	terminal := constants.StageSucceeded
	if !res.Succeeded() {
		terminal = constants.StageFailed
	}
	attrs := []any{
		"ref", ref,
		"receipt_id", ex.ReceiptID,
		"from", ex.Stage,
		"to", terminal,
		"attempts", res.Attempts,
		"elapsed_ms", res.Duration.Milliseconds(),
	}
	span.SetAttributes(
		attribute.String("pipeline.status", string(res.Status)),
		attribute.Int("pipeline.attempts", res.Attempts),
		attribute.Bool("receipt.degraded", res.Degraded),
	)
	if res.Succeeded() {
		span.SetStatus(codes.Ok, "")
		o.logger.Info("pipeline.stage", append(attrs, "degraded", res.Degraded)...)
	} else {
		span.RecordError(res.Err)
		span.SetStatus(codes.Error, string(res.FailureReason))
		o.logger.Warn("pipeline.stage", append(attrs,
			"reason", res.FailureReason,
			"last_error_kind", ex.LastErrorKind,
			"error", res.Err,
		)...)
	}
	o.metrics.observe(res)
	return res
}

func (o *Orchestrator) run(ctx context.Context, ex *Execution, start, deadline time.Time) PipelineResult {
	sctx, span := o.enter(ctx, ex, constants.StageExtracting)
	doc, err := o.deps.Source.Fetch(sctx, ex.Ref)
	if err != nil {
		endSpan(span, err)
		return ex.fail(constants.ReasonSourceError, fmt.Errorf("fetch %s: %w", ex.Ref, err))
	}
	lines, reason, err := o.extract(sctx, ex, doc, deadline)
	endSpan(span, err)
	if err != nil {
		return ex.fail(reason, err)
	}

	_, span = o.enter(ctx, ex, constants.StagePrompting)
	prompt := o.deps.Prompts.Build(lines)
	span.SetAttributes(attribute.Int("prompt.chars", len(prompt.User)))
	span.End()

	sctx, span = o.enter(ctx, ex, constants.StageAnalyzing)
	parsed, reason, err := o.analyze(sctx, ex, prompt, deadline)
	endSpan(span, err)
	if err != nil {
		return ex.fail(reason, err)
	}

	_, span = o.enter(ctx, ex, constants.StageNormalizing)
	rec := o.deps.Normalizer.Normalize(parsed, normalize.Meta{
		ReceiptID:    ex.ReceiptID,
		ProcessedAt:  start,
		SourceRef:    ex.Ref,
		OriginalText: strings.Join(lines, "\n"),
		Degraded:     ex.Degraded,
	})
	ex.Degraded = rec.Degraded
	span.End()

	sctx, span = o.enter(ctx, ex, constants.StagePersisting)
	reason, err = o.persist(sctx, ex, rec, deadline)
	endSpan(span, err)
	if err != nil {
		return ex.fail(reason, err)
	}
	return ex.succeed(rec)
}

func (o *Orchestrator) enter(ctx context.Context, ex *Execution, s constants.Stage) (context.Context, trace.Span) {
	o.logger.Info("pipeline.stage",
		"ref", ex.Ref,
		"receipt_id", ex.ReceiptID,
		"from", ex.Stage,
		"to", s,
		"attempts", ex.Attempts,
	)
	ex.Stage = s
	return o.tracer.Start(ctx, "pipeline."+strings.ToLower(string(s)))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func (o *Orchestrator) extract(ctx context.Context, ex *Execution, doc entity.RawDocument, deadline time.Time) ([]string, constants.FailureReason, error) {
	maxAttempts := 1
	if o.cfg.RetryOCR {
		maxAttempts = o.cfg.OCRMaxAttempts
	}
	sched := newSchedule(o.cfg.BaseDelay, o.cfg.MaxDelay)
	for attempt := 1; ; attempt++ {
		callCtx, cancel, ok := o.callContext(ctx, deadline)
		if !ok {
			return nil, constants.ReasonDeadlineExceeded, ErrDeadlineExceeded
		}
		lines, err := o.deps.Extractor.ExtractText(callCtx, doc.Data, doc.ContentType)
		cancel()
		if err == nil {
			if len(lines) == 0 {
				return nil, constants.ReasonTextExtractionError, ErrNoText
			}
			return lines, constants.ReasonNone, nil
		}

		var re *ocr.RecognitionError
		transient := errors.As(err, &re) && re.Transient
		if !transient || attempt >= maxAttempts {
			return nil, constants.ReasonTextExtractionError, err
		}
		if o.expired(ctx, deadline) {
			return nil, constants.ReasonDeadlineExceeded, fmt.Errorf("%w: %v", ErrDeadlineExceeded, err)
		}
		if werr := o.wait(ctx, ex, sched, deadline, attempt, err); werr != nil {
			return nil, constants.ReasonDeadlineExceeded, werr
		}
	}
}

func (o *Orchestrator) analyze(ctx context.Context, ex *Execution, p llm.Prompt, deadline time.Time) (entity.ParsedReceipt, constants.FailureReason, error) {
	sched := newSchedule(o.cfg.BaseDelay, o.cfg.MaxDelay)
	for attempt := 1; ; attempt++ {
		callCtx, cancel, ok := o.callContext(ctx, deadline)
		if !ok {
			return entity.ParsedReceipt{}, constants.ReasonDeadlineExceeded, ErrDeadlineExceeded
		}
		ex.Attempts++
		parsed, err := o.deps.Analyzer.Extract(callCtx, p)
		cancel()
		if err == nil {
			return parsed, constants.ReasonNone, nil
		}

		kind, candidate := analyzerKind(err)
		ex.LastErrorKind = kind.String()
		switch kind {
		case llm.KindSchemaViolation:
			ex.Degraded = true
			o.logger.Warn("pipeline.analyze.degraded", "ref", ex.Ref, "receipt_id", ex.ReceiptID, "error", err)
			if candidate == nil {
				return entity.ParsedReceipt{}, constants.ReasonNone, nil
			}
			return *candidate, constants.ReasonNone, nil
		case llm.KindTransient:
			if o.expired(ctx, deadline) {
				return entity.ParsedReceipt{}, constants.ReasonDeadlineExceeded, fmt.Errorf("%w: %v", ErrDeadlineExceeded, err)
			}
			if attempt >= o.cfg.LLMMaxAttempts {
				return entity.ParsedReceipt{}, constants.ReasonExtractionExhausted, fmt.Errorf("analyze: %d attempts: %w", attempt, err)
			}
			if werr := o.wait(ctx, ex, sched, deadline, attempt, err); werr != nil {
				return entity.ParsedReceipt{}, constants.ReasonDeadlineExceeded, werr
			}
		default:
			return entity.ParsedReceipt{}, constants.ReasonExtractionError, err
		}
	}
}

func (o *Orchestrator) persist(ctx context.Context, ex *Execution, rec entity.CanonicalReceipt, deadline time.Time) (constants.FailureReason, error) {
	sched := newSchedule(o.cfg.BaseDelay, o.cfg.MaxDelay)
	for attempt := 1; ; attempt++ {
		callCtx, cancel, ok := o.callContext(ctx, deadline)
		if !ok {
			return constants.ReasonDeadlineExceeded, ErrDeadlineExceeded
		}
		ex.Attempts++
		err := o.deps.Store.Put(callCtx, ex.ReceiptID, rec)
		cancel()
		if err == nil {
			return constants.ReasonNone, nil
		}

		if !storeTransient(err) {
			ex.LastErrorKind = store.Permanent.String()
			return constants.ReasonPersistenceExhausted, err
		}
		ex.LastErrorKind = store.Transient.String()
		if o.expired(ctx, deadline) {
			return constants.ReasonDeadlineExceeded, fmt.Errorf("%w: %v", ErrDeadlineExceeded, err)
		}
		if attempt >= o.cfg.StoreMaxAttempts {
			return constants.ReasonPersistenceExhausted, fmt.Errorf("persist: %d attempts: %w", attempt, err)
		}
		if werr := o.wait(ctx, ex, sched, deadline, attempt, err); werr != nil {
			return constants.ReasonDeadlineExceeded, werr
		}
	}
}

// callContext derives the context for one external call. ok is false when
// the document deadline has already passed.
func (o *Orchestrator) callContext(ctx context.Context, deadline time.Time) (context.Context, context.CancelFunc, bool) {
	remaining := deadline.Sub(o.now())
	if remaining <= 0 || ctx.Err() != nil {
		return nil, nil, false
	}
	timeout := remaining
	if o.cfg.CallTimeout > 0 && o.cfg.CallTimeout < remaining {
		timeout = o.cfg.CallTimeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	return callCtx, cancel, true
}

func (o *Orchestrator) expired(ctx context.Context, deadline time.Time) bool {
	return ctx.Err() != nil || !o.now().Before(deadline)
}

// wait sleeps for the next backoff delay unless that would run past the
// document deadline.
func (o *Orchestrator) wait(ctx context.Context, ex *Execution, sched *backoff.ExponentialBackOff, deadline time.Time, attempt int, cause error) error {
	delay := sched.NextBackOff()
	if !o.now().Add(delay).Before(deadline) {
		return fmt.Errorf("%w: retry in %s: %v", ErrDeadlineExceeded, delay, cause)
	}
	o.metrics.retry(ex.Stage)
	o.logger.Warn("pipeline."+strings.ToLower(string(ex.Stage))+".retry",
		"ref", ex.Ref,
		"receipt_id", ex.ReceiptID,
		"attempt", attempt,
		"delay_ms", delay.Milliseconds(),
		"error", cause,
	)
	if err := o.sleep(ctx, delay); err != nil {
		return fmt.Errorf("%w: %v", ErrDeadlineExceeded, err)
	}
	return nil
}

func analyzerKind(err error) (llm.ErrorKind, *entity.ParsedReceipt) {
	var xe *llm.ExtractionError
	if errors.As(err, &xe) {
		return xe.Kind, xe.Candidate
	}
	var ce *llm.CallError
	if errors.As(err, &ce) {
		return ce.Kind, nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return llm.KindTransient, nil
	}
	return llm.KindPermanent, nil
}

func storeTransient(err error) bool {
	var se *store.Error
	if errors.As(err, &se) {
		return se.Kind == store.Transient
	}
	return errors.Is(err, context.DeadlineExceeded)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
