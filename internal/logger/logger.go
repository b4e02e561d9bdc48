// Package logger builds the process-wide zap logger.
package logger

import (
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New returns a production JSON logger writing to stderr at the given level.
func New(level string) (*zap.Logger, error) {
	lvl, err := parseLevel(level)
	if err != nil {
		return nil, err
	}
	config := zap.NewProductionConfig()
	config.Level = zap.NewAtomicLevelAt(lvl)
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return config.Build()
}

// NewWithWriter returns a logger with the production encoder writing to w.
func NewWithWriter(w io.Writer, level string) (*zap.Logger, error) {
	lvl, err := parseLevel(level)
	if err != nil {
		return nil, err
	}
	enc := zap.NewProductionEncoderConfig()
	enc.TimeKey = "timestamp"
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewJSONEncoder(enc), zapcore.AddSync(w), lvl)
	return zap.New(core), nil
}

func parseLevel(level string) (zapcore.Level, error) {
	if strings.TrimSpace(level) == "" {
		return zapcore.InfoLevel, nil
	}
	lvl, err := zapcore.ParseLevel(strings.ToLower(level))
	if err != nil {
		return zapcore.InfoLevel, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	return lvl, nil
}

// Leveled adapts a zap logger to the LeveledLogger interface of
// hashicorp/go-retryablehttp, which logs a message plus alternating key/value pairs.
type Leveled struct {
	l *zap.SugaredLogger
}

// NewLeveled wraps l. A nil l discards everything.
func NewLeveled(l *zap.Logger) *Leveled {
	if l == nil {
		l = zap.NewNop()
	}
	return &Leveled{l: l.Sugar()}
}

func (a *Leveled) Error(msg string, keysAndValues ...interface{}) { a.l.Errorw(msg, keysAndValues...) }
func (a *Leveled) Info(msg string, keysAndValues ...interface{})  { a.l.Infow(msg, keysAndValues...) }
func (a *Leveled) Debug(msg string, keysAndValues ...interface{}) { a.l.Debugw(msg, keysAndValues...) }
func (a *Leveled) Warn(msg string, keysAndValues ...interface{})  { a.l.Warnw(msg, keysAndValues...) }
