package mpapp

import (
	"context"
	"testing"

	"github.com/advdv/mphttp"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRequestID(t *testing.T) {
	mw := withRequestDep(zap.NewNop())

	captureID := func(t *testing.T, req *mphttp.Request) (string, mphttp.Result) {
		t.Helper()

		var id string
		res, err := serveWith(mw, func(ctx context.Context, _ *mphttp.Request, _ mphttp.Params) (mphttp.Result, error) {
			id = RequestID(ctx)
			return mphttp.JSON("ok"), nil
		}, req)
		require.NoError(t, err)

		return id, res
	}

	t.Run("generated", func(t *testing.T) {
		id, res := captureID(t, newReq(t, "/"))
		_, err := uuid.Parse(id)
		require.NoError(t, err)
		assert.Equal(t, id, res.Headers().Get(RequestIDHeader))
	})

	t.Run("client uuid is reused", func(t *testing.T) {
		given := uuid.NewString()
		id, _ := captureID(t, newReq(t, "/", RequestIDHeader, given))
		assert.Equal(t, given, id)
	})

	t.Run("invalid client id is replaced", func(t *testing.T) {
		id, _ := captureID(t, newReq(t, "/", RequestIDHeader, "<script>"))
		assert.NotEqual(t, "<script>", id)
	})

	t.Run("not echoed on faults", func(t *testing.T) {
		res, err := serveWith(mw, func(context.Context, *mphttp.Request, mphttp.Params) (mphttp.Result, error) {
			return mphttp.Result{}, mphttp.NotFound("nope")
		}, newReq(t, "/"))
		require.Error(t, err)
		assert.Empty(t, res.Headers().Get(RequestIDHeader))
	})
}

func TestLogWithoutMiddlewarePanics(t *testing.T) {
	assert.PanicsWithValue(t, "mpapp: requestDep not found in context; is the middleware configured?", func() {
		Log(context.Background())
	})
}

func TestSpanWithoutTracing(t *testing.T) {
	assert.False(t, Span(context.Background()).SpanContext().IsValid())
	assert.Empty(t, traceFields(context.Background()))
}
