package app

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/receipt-analyzer/internal/common"
	"github.com/joseph-ayodele/receipt-analyzer/internal/source"
	"github.com/joseph-ayodele/receipt-analyzer/internal/store"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPipelineConfigMapping(t *testing.T) {
	got := PipelineConfig(common.PipelineConfig{
		LLMMaxAttempts:   4,
		StoreMaxAttempts: 2,
		BaseDelay:        time.Second,
		MaxDelay:         8 * time.Second,
		DocumentDeadline: time.Minute,
		CallTimeout:      10 * time.Second,
		RetryOCR:         true,
		OCRMaxAttempts:   3,
	})
	assert.Equal(t, 4, got.LLMMaxAttempts)
	assert.Equal(t, 2, got.StoreMaxAttempts)
	assert.Equal(t, time.Minute, got.DocumentDeadline)
	assert.True(t, got.RetryOCR)
}

func TestNormalizerMapping(t *testing.T) {
	n := normalizer(common.NormalizeConfig{DefaultCurrency: "usd", LineItemTolerance: 0.02, MaxTotal: 5000})
	assert.Equal(t, "USD", n.DefaultCurrency)
	assert.Equal(t, 0.02, n.Tolerance)
	assert.Equal(t, 5000.0, n.MaxTotal)

	n = normalizer(common.NormalizeConfig{DefaultCurrency: "GBP"})
	assert.Equal(t, 1_000_000.0, n.MaxTotal)
}

func TestNewSource(t *testing.T) {
	src, err := NewSource(context.Background(), common.SourceConfig{Kind: "fs", Root: t.TempDir()}, quietLogger())
	require.NoError(t, err)
	assert.IsType(t, &source.FS{}, src)

	_, err = NewSource(context.Background(), common.SourceConfig{Kind: "ftp"}, quietLogger())
	assert.Error(t, err)
}

func TestNewInvokerUnknownProvider(t *testing.T) {
	cfg := common.LoadConfig()
	cfg.LLM.Provider = "carrier-pigeon"
	_, _, err := NewInvoker(context.Background(), cfg, quietLogger())
	assert.Error(t, err)
}

func TestNewOrchestratorInMemory(t *testing.T) {
	cfg := common.LoadConfig()
	cfg.Store.Driver = "memory"
	cfg.Source.Root = t.TempDir()
	cfg.LLM.Provider = "openai"
	cfg.LLM.APIKey = "sk-test"
	cfg.Redis.Addr = ""

	reg := prometheus.NewRegistry()
	c, cleanup, err := NewOrchestrator(context.Background(), cfg, reg, quietLogger())
	require.NoError(t, err)
	defer cleanup()

	assert.NotNil(t, c.Orchestrator)
	assert.IsType(t, &store.Memory{}, c.Store)
	assert.NoError(t, c.Store.Ping(context.Background()))

	// Registering the pipeline collectors twice on one registry fails.
	_, _, err = NewOrchestrator(context.Background(), cfg, reg, quietLogger())
	assert.Error(t, err)
}
