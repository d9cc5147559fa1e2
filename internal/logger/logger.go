package logger

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Logger is a key/value logger backed by zap's sugared API.
type Logger struct {
	sugar *zap.SugaredLogger
}

// New builds a logger for the given mode. "production" emits JSON, anything
// else uses zap's human readable development encoder.
func New(mode string) (*Logger, error) {
	var (
		base *zap.Logger
		err  error
	)
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "production", "prod":
		base, err = zap.NewProduction()
	default:
		base, err = zap.NewDevelopment()
	}
	if err != nil {
		return nil, fmt.Errorf("build zap logger: %w", err)
	}
	return &Logger{sugar: base.Sugar()}, nil
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{sugar: zap.NewNop().Sugar()}
}

// With returns a child logger carrying the supplied key/value pairs.
func (l *Logger) With(kv ...interface{}) *Logger {
	return &Logger{sugar: l.sugar.With(kv...)}
}

func (l *Logger) Debug(msg string, kv ...interface{}) { l.sugar.Debugw(msg, kv...) }
func (l *Logger) Info(msg string, kv ...interface{})  { l.sugar.Infow(msg, kv...) }
func (l *Logger) Warn(msg string, kv ...interface{})  { l.sugar.Warnw(msg, kv...) }
func (l *Logger) Error(msg string, kv ...interface{}) { l.sugar.Errorw(msg, kv...) }

// Sync flushes buffered entries.
func (l *Logger) Sync() error {
	return l.sugar.Sync()
}

// FromZap wraps an existing zap logger.
func FromZap(base *zap.Logger) *Logger {
	return &Logger{sugar: base.Sugar()}
}
