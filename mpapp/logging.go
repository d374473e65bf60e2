package mpapp

import (
	"github.com/advdv/mphttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger creates a zap logger configured from the environment.
// Uses JSON encoding with ISO8601 timestamps. MP_LOG_LEVEL controls the level.
func NewLogger(env Environment) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(env.base().LogLevel)
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}

type zapLogger struct{ *zap.Logger }

// LogRequest logs client faults at info and server faults at error level.
func (l zapLogger) LogRequest(rec mphttp.RequestRecord) {
	fields := []zap.Field{
		zap.String("method", string(rec.Method)),
		zap.String("path", rec.Path),
		zap.String("pattern", rec.Pattern),
		zap.Int("status", rec.Status),
		zap.Int64("written", rec.Written),
		zap.Duration("duration", rec.Duration),
	}

	if rec.Fault != "" {
		fields = append(fields, zap.String("fault", string(rec.Fault)))
	}

	if rec.Err != nil && rec.Status >= 500 {
		l.Logger.Error("request failed", append(fields, zap.Error(rec.Err))...)
		return
	}

	l.Logger.Info("request served", fields...)
}

func (l zapLogger) LogUnhandledServeError(err error) {
	l.Logger.Error("unhandled server error", zap.Error(err))
}

func (l zapLogger) LogWriteError(err error) {
	l.Logger.Error("error while writing response", zap.Error(err))
}

// NewZapLogger adapts a zap logger to the [mphttp.Logger] interface.
func NewZapLogger(l *zap.Logger) mphttp.Logger {
	return zapLogger{l.Named("mphttp")}
}
