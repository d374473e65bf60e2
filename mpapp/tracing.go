package mpapp

import (
	"context"
	"time"

	"github.com/advdv/mphttp"
	"github.com/aws-observability/aws-otel-go/exporters/xrayudp"
	"github.com/cockroachdb/errors"
	"github.com/samber/lo"
	"go.opentelemetry.io/contrib/propagators/aws/xray"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
)

const tracingInitTimeout = 5 * time.Second

const tracerName = "github.com/advdv/mphttp/mpapp"

// NewTracerProvider creates and configures the OpenTelemetry TracerProvider.
// Supported exporters via MP_OTEL_EXPORTER: "stdout" (default), "xrayudp" and "none".
// Shutdown is handled automatically via fx.Lifecycle.
func NewTracerProvider(lc fx.Lifecycle, env Environment) (trace.TracerProvider, error) {
	ctx, cancel := context.WithTimeout(context.Background(), tracingInitTimeout)
	defer cancel()

	exporterType := env.base().OtelExporter

	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(env.base().ServiceName),
		)),
	}

	exporter, err := newExporter(ctx, exporterType)
	if err != nil {
		return nil, err
	}

	if exporter != nil {
		opts = append(opts, sdktrace.WithSpanProcessor(sdktrace.NewSimpleSpanProcessor(exporter)))
	}

	if exporterType == "xrayudp" {
		opts = append(opts, sdktrace.WithIDGenerator(xray.NewIDGenerator()))
	}

	tp := sdktrace.NewTracerProvider(opts...)

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return tp.Shutdown(ctx)
		},
	})

	return tp, nil
}

// NewPropagator creates a TextMapPropagator based on the exporter type.
// For xrayudp: uses the X-Ray propagator.
// Otherwise: uses W3C TraceContext + Baggage composite propagator.
func NewPropagator(env Environment) propagation.TextMapPropagator {
	if env.base().OtelExporter == "xrayudp" {
		return xray.Propagator{}
	}

	return propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	)
}

// newExporter creates a span exporter based on the exporter type. "none" records spans without
// exporting them.
func newExporter(ctx context.Context, exporterType string) (sdktrace.SpanExporter, error) {
	switch exporterType {
	case "stdout", "":
		return stdouttrace.New(stdouttrace.WithPrettyPrint())
	case "xrayudp":
		return xrayudp.NewSpanExporter(ctx)
	case "none":
		return nil, nil
	default:
		return nil, errors.Newf("unsupported MP_OTEL_EXPORTER: %q (supported: stdout, xrayudp, none)", exporterType)
	}
}

// headerCarrier exposes request headers to a propagator.
type headerCarrier struct{ h *mphttp.Headers }

func (c headerCarrier) Get(key string) string { return c.h.Get(key) }
func (c headerCarrier) Set(key, value string) { c.h.Set(key, value) }
func (c headerCarrier) Keys() []string        { return c.h.Keys() }

var _ propagation.TextMapCarrier = headerCarrier{}

// WithTracing starts a server span for every routed request, continuing the trace found in the
// request headers. Requests to excludePaths are not traced.
// The TracerProvider and Propagator are explicitly injected to avoid global state.
func WithTracing(tp trace.TracerProvider, prop propagation.TextMapPropagator, excludePaths ...string) mphttp.Middleware {
	tracer := tp.Tracer(tracerName)
	excluded := lo.SliceToMap(excludePaths, func(p string) (string, struct{}) { return p, struct{}{} })

	return func(next mphttp.Handler) mphttp.Handler {
		return mphttp.HandlerFunc(func(ctx context.Context, r *mphttp.Request, p mphttp.Params) (mphttp.Result, error) {
			if _, ok := excluded[r.Path()]; ok {
				return next.ServeMP(ctx, r, p)
			}

			hdrs := r.Header()
			ctx = prop.Extract(ctx, headerCarrier{&hdrs})

			ctx, span := tracer.Start(ctx, string(r.Method())+" "+r.Path(),
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					semconv.HTTPRequestMethodKey.String(string(r.Method())),
					semconv.URLPath(r.Path()),
				))
			defer span.End()

			res, err := next.ServeMP(ctx, r, p)
			if err != nil {
				f := mphttp.FaultOf(err)
				span.SetAttributes(semconv.HTTPResponseStatusCode(int(f.Code())))

				if f.Code() >= mphttp.CodeInternalServerError {
					span.RecordError(err)
					span.SetStatus(codes.Error, f.Kind().Humanized())
				}

				return res, err
			}

			span.SetAttributes(semconv.HTTPResponseStatusCode(res.Status()))

			return res, nil
		})
	}
}
