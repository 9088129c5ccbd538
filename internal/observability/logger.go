package observability

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/shubhsaxena/nearby-assistant/internal/config"
)

// NewLogger builds the JSON production logger tagged with the service name.
// Unknown or empty levels fall back to info.
func NewLogger(cfg config.ObservabilityConfig) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil || cfg.LogLevel == "" {
		lvl = zapcore.InfoLevel
	}

	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(lvl)
	zcfg.EncoderConfig.TimeKey = "timestamp"
	zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if cfg.ServiceName != "" {
		zcfg.InitialFields = map[string]any{"service": cfg.ServiceName}
	}

	return zcfg.Build()
}
