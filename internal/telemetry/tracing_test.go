package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/receipt-analyzer/internal/common"
)

func TestInitDisabled(t *testing.T) {
	shutdown, err := Init(context.Background(), common.TelemetryConfig{Enabled: false}, nil)
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestInitUnsupportedProtocolDegrades(t *testing.T) {
	shutdown, err := Init(context.Background(), common.TelemetryConfig{
		Enabled:     true,
		ServiceName: "receipt-analyzer-test",
		Protocol:    "carrier-pigeon",
		SampleRatio: 1,
	}, nil)
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestSampler(t *testing.T) {
	assert.Contains(t, Sampler(1).Description(), "AlwaysOnSampler")
	assert.Contains(t, Sampler(0).Description(), "AlwaysOffSampler")
	assert.Contains(t, Sampler(0.25).Description(), "TraceIDRatioBased{0.25}")
}
