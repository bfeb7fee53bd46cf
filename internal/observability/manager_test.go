package observability

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap"

	"github.com/Additional-Code/storefront/internal/config"
)

func TestNewManager_Disabled(t *testing.T) {
	mgr, err := NewManager(fxtest.NewLifecycle(t), config.Config{}, zap.NewNop())
	require.NoError(t, err)

	assert.False(t, mgr.TracingEnabled())
	assert.False(t, mgr.MetricsEnabled())
	assert.Nil(t, mgr.MetricsHandler())
}

func TestNewManager_StdoutTracing(t *testing.T) {
	cfg := config.Config{Observability: config.Observability{
		ServiceName:      "storefront",
		EnableTracing:    true,
		TraceExporter:    "stdout",
		TraceSampleRatio: 1,
	}}

	lc := fxtest.NewLifecycle(t)
	mgr, err := NewManager(lc, cfg, zap.NewNop())
	require.NoError(t, err)
	assert.True(t, mgr.TracingEnabled())

	lc.RequireStart().RequireStop()
}

func TestNewManager_UnknownExportersDisable(t *testing.T) {
	cfg := config.Config{Observability: config.Observability{
		EnableTracing:   true,
		TraceExporter:   "zipkin",
		EnableMetrics:   true,
		MetricsExporter: "statsd",
	}}

	mgr, err := NewManager(fxtest.NewLifecycle(t), cfg, zap.NewNop())
	require.NoError(t, err)
	assert.False(t, mgr.TracingEnabled())
	assert.False(t, mgr.MetricsEnabled())
}

func TestNewManager_OTLPRequiresEndpoint(t *testing.T) {
	cfg := config.Config{Observability: config.Observability{EnableTracing: true, TraceExporter: "otlp"}}

	_, err := NewManager(fxtest.NewLifecycle(t), cfg, zap.NewNop())
	assert.ErrorContains(t, err, "OBS_OTLP_ENDPOINT")
}

func TestSampleRatioClamped(t *testing.T) {
	for in, want := range map[float64]float64{-1: 0, 0: 0, 0.25: 0.25, 3: 1} {
		m := &Manager{cfg: config.Observability{TraceSampleRatio: in}}
		assert.Equal(t, want, m.sampleRatio(), "ratio %v", in)
	}
}
