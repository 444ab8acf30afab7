package observability

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ZapLogger adapts a zap.Logger to the Logger interface.
type ZapLogger struct {
	log *zap.Logger
}

// NewZapLogger wraps an existing zap logger, namespacing it under the pool
// component.
func NewZapLogger(log *zap.Logger) *ZapLogger {
	if log == nil {
		log = zap.NewNop()
	}
	return &ZapLogger{log: log.Named("pool")}
}

// BuildZapLogger constructs a production or development zap logger at the
// requested level and wraps it.
func BuildZapLogger(level string, development bool) (*ZapLogger, error) {
	cfg := zap.NewProductionConfig()
	if development {
		cfg = zap.NewDevelopmentConfig()
	}
	parsed, err := zapcore.ParseLevel(level)
	if err != nil {
		parsed = zapcore.InfoLevel
	}
	cfg.Level = zap.NewAtomicLevelAt(parsed)
	log, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return NewZapLogger(log), nil
}

func (z *ZapLogger) Debug(msg string, fields ...Field) { z.log.Debug(msg, zapFields(fields)...) }

func (z *ZapLogger) Info(msg string, fields ...Field) { z.log.Info(msg, zapFields(fields)...) }

func (z *ZapLogger) Error(msg string, fields ...Field) { z.log.Error(msg, zapFields(fields)...) }

// Sync flushes buffered log entries.
func (z *ZapLogger) Sync() error { return z.log.Sync() }

func zapFields(fields []Field) []zap.Field {
	out := make([]zap.Field, 0, len(fields))
	for _, f := range fields {
		switch v := f.Value.(type) {
		case string:
			out = append(out, zap.String(f.Key, v))
		case int:
			out = append(out, zap.Int(f.Key, v))
		case error:
			out = append(out, zap.NamedError(f.Key, v))
		default:
			out = append(out, zap.Any(f.Key, v))
		}
	}
	return out
}
