package logger

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/tgienger/taskmanager/internal/trace"
)

// New builds a zap logger. Production JSON output unless development is set.
// Unknown levels fall back to info.
func New(level string, development bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if development {
		cfg = zap.NewDevelopmentConfig()
	}

	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	return cfg.Build()
}

// NewFile builds a production logger writing to path. The terminal client
// uses it because anything written to stdout would corrupt the screen.
func NewFile(path, level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{path}
	cfg.ErrorOutputPaths = []string{path}

	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	return cfg.Build()
}

// WithTrace adds the trace id from ctx to the logger, if there is one.
func WithTrace(ctx context.Context, log *zap.Logger) *zap.Logger {
	if id := trace.FromContext(ctx); id != "" {
		return log.With(zap.String("trace_id", id))
	}
	return log
}
