package mpapp

import (
	"context"
	"testing"
	"time"

	"github.com/advdv/mphttp"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewLogger(t *testing.T) {
	for _, level := range []zapcore.Level{zapcore.DebugLevel, zapcore.InfoLevel, zapcore.WarnLevel, zapcore.ErrorLevel} {
		t.Run(level.String(), func(t *testing.T) {
			logger, err := NewLogger(BaseEnvironment{LogLevel: level})
			require.NoError(t, err)
			assert.True(t, logger.Core().Enabled(level))
			assert.False(t, logger.Core().Enabled(level-1))
		})
	}
}

func TestZapLoggerLogRequest(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := NewZapLogger(zap.New(core))

	l.LogRequest(mphttp.RequestRecord{
		Method: mphttp.MethodGet, Path: "/items/1", Pattern: "/items/{id}",
		Status: 200, Written: 12, Duration: time.Millisecond,
	})
	l.LogRequest(mphttp.RequestRecord{
		Method: mphttp.MethodGet, Path: "/items/x", Status: 404, Fault: mphttp.KindNotFound,
		Err: mphttp.NotFound("no item x"),
	})
	l.LogRequest(mphttp.RequestRecord{
		Method: mphttp.MethodGet, Path: "/boom", Status: 500, Fault: mphttp.KindInternalError,
		Err: errors.New("db down"),
	})

	entries := logs.All()
	require.Len(t, entries, 3)

	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	assert.Equal(t, "mphttp", entries[0].LoggerName)
	assert.Equal(t, "/items/{id}", entries[0].ContextMap()["pattern"])
	assert.EqualValues(t, 200, entries[0].ContextMap()["status"])

	assert.Equal(t, zapcore.InfoLevel, entries[1].Level, "client faults are not errors")
	assert.Equal(t, "NotFound", entries[1].ContextMap()["fault"])

	assert.Equal(t, zapcore.ErrorLevel, entries[2].Level)
	assert.Equal(t, "db down", entries[2].ContextMap()["error"])
}

func TestZapLoggerErrors(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := NewZapLogger(zap.New(core))

	l.LogWriteError(errors.New("broken pipe"))
	l.LogUnhandledServeError(errors.New("accept failed"))

	assert.Equal(t, 1, logs.FilterMessage("error while writing response").Len())
	assert.Equal(t, 1, logs.FilterMessage("unhandled server error").Len())
}

func TestLogIncludesRequestID(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)

	var seen string
	res, err := serveWith(withRequestDep(zap.New(core)), func(ctx context.Context, _ *mphttp.Request, _ mphttp.Params) (mphttp.Result, error) {
		seen = RequestID(ctx)
		Log(ctx).Info("handling")
		return mphttp.JSON("ok"), nil
	}, newReq(t, "/"))
	require.NoError(t, err)

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, seen, logs.All()[0].ContextMap()["request_id"])
	assert.Equal(t, seen, res.Headers().Get(RequestIDHeader))
}
