package logger

import (
	"context"
	"strings"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Additional-Code/storefront/internal/config"
)

// Module exposes the Zap logger and its runtime-adjustable level to the Fx container.
var Module = fx.Provide(NewLevel, New)

// NewLevel parses the configured level. Unknown names fall back to info.
func NewLevel(cfg config.Config) zap.AtomicLevel {
	level, err := zapcore.ParseLevel(strings.ToLower(cfg.Observability.LogLevel))
	if err != nil {
		level = zapcore.InfoLevel
	}
	return zap.NewAtomicLevelAt(level)
}

// New builds the service logger on top of level, so operators can change verbosity
// without a restart. Every entry carries the service, environment and storage drivers.
func New(lc fx.Lifecycle, cfg config.Config, level zap.AtomicLevel) (*zap.Logger, error) {
	obs := cfg.Observability

	logger, err := zapConfig(obs.LogEncoding, level).Build()
	if err != nil {
		return nil, err
	}
	logger = logger.With(
		zap.String("service", obs.ServiceName),
		zap.String("environment", obs.Environment),
		zap.String("db_driver", cfg.Database.Driver),
		zap.String("cache_driver", cfg.Cache.Driver),
	)

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			// stderr/stdout sync fails on some terminals; nothing is lost.
			_ = logger.Sync()
			return nil
		},
	})
	return logger, nil
}

func zapConfig(encoding string, level zap.AtomicLevel) zap.Config {
	if encoding == "console" {
		zc := zap.NewDevelopmentConfig()
		zc.Level = level
		zc.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout(time.RFC3339)
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		return zc
	}

	zc := zap.NewProductionConfig()
	zc.Level = level
	zc.Encoding = "json"
	zc.EncoderConfig.TimeKey = "ts"
	zc.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout(time.RFC3339Nano)
	zc.EncoderConfig.EncodeDuration = zapcore.StringDurationEncoder
	zc.EncoderConfig.EncodeLevel = zapcore.LowercaseLevelEncoder
	return zc
}
