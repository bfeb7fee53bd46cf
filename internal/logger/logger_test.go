package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap/zapcore"

	"github.com/Additional-Code/storefront/internal/config"
)

func TestNew_Level(t *testing.T) {
	lc := fxtest.NewLifecycle(t)
	cfg := config.Config{Observability: config.Observability{LogLevel: "WARN", LogEncoding: "json", ServiceName: "storefront"}}

	log, err := New(lc, cfg, NewLevel(cfg))
	require.NoError(t, err)
	assert.False(t, log.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, log.Core().Enabled(zapcore.WarnLevel))
}

func TestNew_UnknownLevelFallsBackToInfo(t *testing.T) {
	lc := fxtest.NewLifecycle(t)
	cfg := config.Config{Observability: config.Observability{LogLevel: "chatty", LogEncoding: "console"}}

	level := NewLevel(cfg)
	assert.Equal(t, zapcore.InfoLevel, level.Level())

	log, err := New(lc, cfg, level)
	require.NoError(t, err)
	assert.True(t, log.Core().Enabled(zapcore.InfoLevel))
	assert.False(t, log.Core().Enabled(zapcore.DebugLevel))
}

func TestNew_LevelChangesAtRuntime(t *testing.T) {
	lc := fxtest.NewLifecycle(t)
	cfg := config.Config{Observability: config.Observability{LogLevel: "info", LogEncoding: "json"}}
	level := NewLevel(cfg)

	log, err := New(lc, cfg, level)
	require.NoError(t, err)
	require.False(t, log.Core().Enabled(zapcore.DebugLevel))

	level.SetLevel(zapcore.DebugLevel)
	assert.True(t, log.Core().Enabled(zapcore.DebugLevel))

	lc.RequireStart().RequireStop()
}

func TestZapConfig_Encoding(t *testing.T) {
	level := NewLevel(config.Config{})
	assert.Equal(t, "json", zapConfig("json", level).Encoding)
	assert.Equal(t, "console", zapConfig("console", level).Encoding)
	assert.True(t, zapConfig("console", level).Development)
}
