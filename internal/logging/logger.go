// Package logging provides zap logger helpers.
package logging

import (
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var levelNames = map[string]zapcore.Level{
	"NOTSET":   zapcore.DebugLevel,
	"DEBUG":    zapcore.DebugLevel,
	"INFO":     zapcore.InfoLevel,
	"WARN":     zapcore.WarnLevel,
	"WARNING":  zapcore.WarnLevel,
	"ERROR":    zapcore.ErrorLevel,
	"CRITICAL": zapcore.DPanicLevel,
	"FATAL":    zapcore.FatalLevel,
}

var levelNumbers = map[int]zapcore.Level{
	0:  zapcore.DebugLevel,
	10: zapcore.DebugLevel,
	20: zapcore.InfoLevel,
	30: zapcore.WarnLevel,
	40: zapcore.ErrorLevel,
	50: zapcore.DPanicLevel,
}

// ParseLevel accepts a level name (case-insensitive) or a non-negative
// numeric level that is a multiple of ten. Numbers above 50 are fatal-only.
func ParseLevel(raw string) (zapcore.Level, error) {
	token := strings.TrimSpace(raw)
	if token == "" {
		return zapcore.InfoLevel, nil
	}
	if lvl, ok := levelNames[strings.ToUpper(token)]; ok {
		return lvl, nil
	}
	if n, err := strconv.Atoi(token); err == nil {
		if lvl, ok := levelNumbers[n]; ok {
			return lvl, nil
		}
		if n > 50 && n%10 == 0 {
			return zapcore.FatalLevel, nil
		}
	}
	return zapcore.InfoLevel, fmt.Errorf("invalid log level %q", raw)
}

// New builds a zap.Logger configured for development or production at level.
func New(level zapcore.Level, development bool) (*zap.Logger, error) {
	if development {
		cfg := zap.NewDevelopmentConfig()
		cfg.Level = zap.NewAtomicLevelAt(level)
		cfg.EncoderConfig.TimeKey = "ts"
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		logger, err := cfg.Build()
		if err != nil {
			return nil, fmt.Errorf("build dev logger: %w", err)
		}
		return logger, nil
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.DisableStacktrace = false
	cfg.EncoderConfig.TimeKey = "ts"
	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build prod logger: %w", err)
	}
	return logger, nil
}
