package mpapp

import (
	"context"

	"github.com/advdv/mphttp"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ctxKey is the key type for context values.
type ctxKey int

const ctxKeyRequestDep ctxKey = iota

// RequestIDHeader carries the request id. A valid UUID sent by the client is reused, otherwise a
// new one is generated. The id is echoed on successful responses.
const RequestIDHeader = "X-Request-Id"

// requestDep holds request-scoped dependencies available via context.
// App-scoped dependencies (env, registry, secrets) are accessed via Runtime instead.
type requestDep struct {
	logger    *zap.Logger
	requestID string
}

// withRequestDep injects the request-scoped logger and request id into the context.
func withRequestDep(logger *zap.Logger) mphttp.Middleware {
	return func(next mphttp.Handler) mphttp.Handler {
		return mphttp.HandlerFunc(func(ctx context.Context, r *mphttp.Request, p mphttp.Params) (mphttp.Result, error) {
			id := r.HeaderValue(RequestIDHeader)
			if _, err := uuid.Parse(id); err != nil {
				id = uuid.NewString()
			}

			ctx = context.WithValue(ctx, ctxKeyRequestDep, &requestDep{
				logger:    logger.With(zap.String("request_id", id)),
				requestID: id,
			})

			res, err := next.ServeMP(ctx, r, p)
			if err != nil {
				return res, err
			}

			return res.WithHeader(RequestIDHeader, id), nil
		})
	}
}

func requestDepFromContext(ctx context.Context) *requestDep {
	d, ok := ctx.Value(ctxKeyRequestDep).(*requestDep)
	if !ok {
		panic("mpapp: requestDep not found in context; is the middleware configured?")
	}

	return d
}

// Log returns a request and trace correlated zap logger from the context.
func Log(ctx context.Context) *zap.Logger {
	d := requestDepFromContext(ctx)
	return d.logger.With(traceFields(ctx)...)
}

// RequestID returns the id of the current request.
func RequestID(ctx context.Context) string {
	return requestDepFromContext(ctx).requestID
}

// Span returns the current trace span from the context.
func Span(ctx context.Context) trace.Span {
	return trace.SpanFromContext(ctx)
}

// traceFields extracts trace_id and span_id from the context for log correlation.
func traceFields(ctx context.Context) []zap.Field {
	span := trace.SpanFromContext(ctx)
	if !span.SpanContext().IsValid() {
		return nil
	}

	sc := span.SpanContext()

	return []zap.Field{
		zap.String("trace_id", sc.TraceID().String()),
		zap.String("span_id", sc.SpanID().String()),
	}
}
