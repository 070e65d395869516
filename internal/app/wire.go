// Package app assembles the pipeline from configuration for the binaries.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/joseph-ayodele/receipt-analyzer/internal/common"
	"github.com/joseph-ayodele/receipt-analyzer/internal/llm"
	"github.com/joseph-ayodele/receipt-analyzer/internal/llm/gemini"
	"github.com/joseph-ayodele/receipt-analyzer/internal/llm/openai"
	"github.com/joseph-ayodele/receipt-analyzer/internal/normalize"
	"github.com/joseph-ayodele/receipt-analyzer/internal/ocr"
	"github.com/joseph-ayodele/receipt-analyzer/internal/pipeline"
	"github.com/joseph-ayodele/receipt-analyzer/internal/source"
	"github.com/joseph-ayodele/receipt-analyzer/internal/store"
)

// Cleanup releases resources acquired while wiring. It is never nil.
type Cleanup func()

func PipelineConfig(c common.PipelineConfig) pipeline.Config {
	return pipeline.Config{
		LLMMaxAttempts:   c.LLMMaxAttempts,
		StoreMaxAttempts: c.StoreMaxAttempts,
		BaseDelay:        c.BaseDelay,
		MaxDelay:         c.MaxDelay,
		DocumentDeadline: c.DocumentDeadline,
		CallTimeout:      c.CallTimeout,
		RetryOCR:         c.RetryOCR,
		OCRMaxAttempts:   c.OCRMaxAttempts,
	}
}

func StoreConfig(c common.StoreConfig) store.Config {
	return store.Config{
		Driver:           c.Driver,
		DSN:              c.DSN,
		MaxConns:         c.MaxConns,
		MinConns:         c.MinConns,
		MaxConnLifetime:  c.MaxConnLifetime,
		MaxConnIdleTime:  c.MaxConnIdleTime,
		DialTimeout:      c.DialTimeout,
		StatementTimeout: c.StatementTimeout,
	}
}

func OCRConfig(c common.OCRConfig) ocr.Config {
	return ocr.Config{
		Tesseract:     c.Tesseract,
		TesseractLang: c.Language,
		TessdataDir:   c.TessdataDir,
		HeicConverter: c.HeicConverter,
		DPI:           c.DPI,
		MaxPages:      c.MaxPages,
	}
}

// NewSource opens the configured document source.
func NewSource(ctx context.Context, c common.SourceConfig, logger *slog.Logger) (source.DocumentSource, error) {
	switch c.Kind {
	case "", "fs":
		fs, err := source.NewFS(c.Root, logger)
		if err != nil {
			return nil, err
		}
		return fs, nil
	case "minio":
		m, err := source.NewMinIO(ctx, source.MinIOConfig{
			Endpoint:  c.MinIO.Endpoint,
			AccessKey: c.MinIO.AccessKey,
			SecretKey: c.MinIO.SecretKey,
			Bucket:    c.MinIO.Bucket,
			UseSSL:    c.MinIO.UseSSL,
		}, logger)
		if err != nil {
			return nil, err
		}
		return m, nil
	default:
		return nil, fmt.Errorf("unknown source kind %q", c.Kind)
	}
}

// NewInvoker builds the configured provider, wrapped in the Redis response
// cache when REDIS_ADDR is set.
func NewInvoker(ctx context.Context, cfg *common.Config, logger *slog.Logger) (llm.Invoker, Cleanup, error) {
	var (
		inv     llm.Invoker
		closers []func()
	)
	switch cfg.LLM.Provider {
	case "", "openai":
		inv = openai.NewClient(openai.Config{
			APIKey:      cfg.LLM.APIKey,
			BaseURL:     cfg.LLM.BaseURL,
			Model:       cfg.LLM.Model,
			Temperature: cfg.LLM.Temperature,
			Timeout:     cfg.LLM.Timeout,
		}, logger)
	case "gemini":
		g, err := gemini.NewClient(ctx, gemini.Config{
			APIKey:      cfg.LLM.GeminiAPIKey,
			Model:       cfg.LLM.Model,
			Temperature: cfg.LLM.Temperature,
		}, logger)
		if err != nil {
			return nil, nil, err
		}
		closers = append(closers, func() {
			if err := g.Close(); err != nil {
				logger.Warn("app.gemini.close_failed", "error", err)
			}
		})
		inv = g
	default:
		return nil, nil, fmt.Errorf("unknown LLM provider %q", cfg.LLM.Provider)
	}

	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if cfg.Redis.Addr != "" {
		rdb, err := llm.NewRedisClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			// The cache is optional; run uncached rather than refuse to start.
			logger.Warn("app.redis.unavailable", "addr", cfg.Redis.Addr, "error", err)
		} else {
			closers = append(closers, func() { _ = rdb.Close() })
			inv = llm.NewCachingInvoker(inv, llm.NewRedisCache(rdb, cfg.LLM.CacheTTL), logger)
			logger.Info("app.llm.cache_enabled", "addr", cfg.Redis.Addr, "ttl", cfg.LLM.CacheTTL)
		}
	}

	logger.Info("app.llm.ready", "provider", cfg.LLM.Provider, "model", inv.Model())
	return inv, cleanup, nil
}

// Components bundles what NewOrchestrator wired, for callers that also need
// the store (readiness checks, reports).
type Components struct {
	Orchestrator *pipeline.Orchestrator
	Store        store.RecordStore
	Source       source.DocumentSource
}

// NewOrchestrator wires source, OCR, analyzer, normalizer and store from cfg.
// A nil reg skips metrics registration.
func NewOrchestrator(ctx context.Context, cfg *common.Config, reg prometheus.Registerer, logger *slog.Logger) (*Components, Cleanup, error) {
	var cleanups []func()
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	src, err := NewSource(ctx, cfg.Source, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("source: %w", err)
	}

	rs, closeStore, err := store.Open(ctx, StoreConfig(cfg.Store), logger)
	if err != nil {
		return nil, nil, fmt.Errorf("store: %w", err)
	}
	cleanups = append(cleanups, closeStore)

	inv, closeInv, err := NewInvoker(ctx, cfg, logger)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("llm: %w", err)
	}
	cleanups = append(cleanups, closeInv)

	opts := []pipeline.Option{pipeline.WithLogger(logger)}
	if reg != nil {
		m, err := pipeline.NewMetrics(reg)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("metrics: %w", err)
		}
		opts = append(opts, pipeline.WithMetrics(m))
	}

	orch := pipeline.New(pipeline.Deps{
		Source:    src,
		Extractor: NewTextExtractor(cfg.OCR, logger),
		Prompts: llm.NewPromptBuilder(
			cfg.Prompt.MaxChars,
			cfg.Prompt.HeadLines,
			cfg.Prompt.TailLines,
			cfg.Normalize.DefaultCurrency,
		),
		Analyzer:   llm.NewStructuredExtractor(inv, logger),
		Normalizer: normalizer(cfg.Normalize),
		Store:      rs,
	}, PipelineConfig(cfg.Pipeline), opts...)

	logger.Info("app.pipeline.ready",
		"llm_max_attempts", cfg.Pipeline.LLMMaxAttempts,
		"store_max_attempts", cfg.Pipeline.StoreMaxAttempts,
		"backoff", pipeline.Delays(cfg.Pipeline.BaseDelay, cfg.Pipeline.MaxDelay, max(cfg.Pipeline.LLMMaxAttempts-1, 0)),
		"deadline", cfg.Pipeline.DocumentDeadline,
	)
	return &Components{Orchestrator: orch, Store: rs, Source: src}, cleanup, nil
}

func normalizer(c common.NormalizeConfig) *normalize.Normalizer {
	n := normalize.New(c.DefaultCurrency, c.LineItemTolerance)
	if c.MaxTotal > 0 {
		n.MaxTotal = c.MaxTotal
	}
	return n
}
