package logger

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"data-chopper/internal/pkg/config"
)

// NewLogger создает и настраивает новый логгер.
// level принимает значения none, info и verbose.
func NewLogger(isDevelopment bool, level string) (*zap.Logger, error) {
	if level == config.LogLevelNone {
		return zap.NewNop(), nil
	}

	zapLevel, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}

	var cfg zap.Config

	if isDevelopment {
		// Для разработки используем более читаемый формат
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		// Для продакшна используем JSON формат
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	cfg.Level = zap.NewAtomicLevelAt(zapLevel)
	cfg.DisableStacktrace = !isDevelopment

	return cfg.Build()
}

// ParseLevel переводит уровень из настроек в уровень zap
func ParseLevel(level string) (zapcore.Level, error) {
	switch level {
	case config.LogLevelInfo, "":
		return zapcore.InfoLevel, nil
	case config.LogLevelVerbose:
		return zapcore.DebugLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("unknown log level: %s", level)
	}
}
