package common

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg := LoadConfig()

	assert.Equal(t, 3, cfg.Pipeline.LLMMaxAttempts)
	assert.Equal(t, 300*time.Second, cfg.Pipeline.DocumentDeadline)
	assert.Equal(t, "GBP", cfg.Normalize.DefaultCurrency)
	assert.Equal(t, 1_000_000.0, cfg.Normalize.MaxTotal)
	assert.Equal(t, "receipts/", cfg.Trigger.Prefix)
	assert.False(t, cfg.Pipeline.RetryOCR)
	assert.False(t, cfg.Telemetry.Enabled)
}

func TestLoadConfig_FromEnv(t *testing.T) {
	t.Setenv("PIPELINE_LLM_MAX_ATTEMPTS", "5")
	t.Setenv("PIPELINE_BASE_DELAY", "250ms")
	t.Setenv("DEFAULT_CURRENCY", "usd")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,,")
	t.Setenv("MINIO_USE_SSL", "true")
	t.Setenv("LINE_ITEM_TOLERANCE", "0.05")

	cfg := LoadConfig()

	assert.Equal(t, 5, cfg.Pipeline.LLMMaxAttempts)
	assert.Equal(t, 250*time.Millisecond, cfg.Pipeline.BaseDelay)
	assert.Equal(t, "USD", cfg.Normalize.DefaultCurrency)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Trigger.KafkaBrokers)
	assert.True(t, cfg.Source.MinIO.UseSSL)
	assert.InDelta(t, 0.05, cfg.Normalize.LineItemTolerance, 1e-9)
}

func TestGetEnvHelpers_InvalidFallsBack(t *testing.T) {
	t.Setenv("TEST_INT_VAR", "nope")
	t.Setenv("TEST_DUR_VAR", "soon")
	t.Setenv("TEST_BOOL_VAR", "maybe")

	assert.Equal(t, 10, getEnvAsInt("TEST_INT_VAR", 10))
	assert.Equal(t, time.Second, getEnvAsDuration("TEST_DUR_VAR", time.Second))
	assert.True(t, getEnvAsBool("TEST_BOOL_VAR", true))
	assert.Nil(t, getEnvAsList("TEST_UNSET_LIST"))
}

func TestConfigValidate(t *testing.T) {
	t.Run("valid memory config", func(t *testing.T) {
		cfg := LoadConfig()
		cfg.Store.Driver = "memory"
		cfg.LLM.APIKey = "sk-test"
		require.NoError(t, cfg.Validate())
	})

	t.Run("missing key and dsn", func(t *testing.T) {
		cfg := LoadConfig()
		cfg.LLM.APIKey = ""
		cfg.Store.DSN = ""

		err := cfg.Validate()
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrInvalidInput))
		assert.Contains(t, err.Error(), "OPENAI_API_KEY")
		assert.Contains(t, err.Error(), "DB_URL")
	})

	t.Run("bad enum and currency", func(t *testing.T) {
		cfg := LoadConfig()
		cfg.Store.Driver = "memory"
		cfg.LLM.Provider = "bedrock"
		cfg.Normalize.DefaultCurrency = "pounds"

		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "LLM_PROVIDER")
		assert.Contains(t, err.Error(), "DEFAULT_CURRENCY")
	})

	t.Run("gemini needs its own key", func(t *testing.T) {
		cfg := LoadConfig()
		cfg.Store.Driver = "memory"
		cfg.LLM.Provider = "gemini"

		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "GEMINI_API_KEY")
	})
}
