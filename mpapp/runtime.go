package mpapp

import (
	"context"
	"net/http"

	"github.com/advdv/mphttp"
	"github.com/carlmjohnson/requests"
	"github.com/cockroachdb/errors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// Runtime provides access to app-scoped dependencies.
// Inject this into handler constructors via fx instead of pulling from context.
//
// Example:
//
//	type Handlers struct {
//	    rt  *mpapp.Runtime[Env]
//	    lib source.Library
//	}
//
//	func NewHandlers(rt *mpapp.Runtime[Env], lib source.Library) *Handlers {
//	    return &Handlers{rt: rt, lib: lib}
//	}
//
//	func (h *Handlers) GetItem(ctx context.Context, r *mphttp.Request, p mphttp.Params) (mphttp.Result, error) {
//	    self, _ := h.rt.Reverse("get-item", r.PathValue("id"))
//	    // ...
//	}
type Runtime[E Environment] struct {
	env          E
	reg          *mphttp.Registry
	secretReader SecretReader
	settings     *Settings
	transport    http.RoundTripper
}

// RuntimeParams holds optional dependencies for Runtime.
type RuntimeParams struct {
	SecretReader SecretReader
	Settings     *Settings
	Transport    http.RoundTripper
}

// NewRuntime creates a new Runtime with the given dependencies.
func NewRuntime[E Environment](env E, reg *mphttp.Registry, params RuntimeParams) *Runtime[E] {
	return &Runtime[E]{
		env:          env,
		reg:          reg,
		secretReader: params.SecretReader,
		settings:     params.Settings,
		transport:    params.Transport,
	}
}

// Env returns the environment configuration.
func (r *Runtime[E]) Env() E {
	return r.env
}

// Reverse returns the path for a named route with the given parameters.
func (r *Runtime[E]) Reverse(name string, params ...string) (string, error) {
	return r.reg.Reverse(name, params...)
}

// Secret retrieves a secret value from AWS Secrets Manager.
//
// If jsonPath is provided, the secret is parsed as JSON and the path is extracted
// using gjson syntax (e.g., "database.password", "api.keys.0").
// If jsonPath is omitted, the raw secret string is returned.
func (r *Runtime[E]) Secret(ctx context.Context, secretID string, jsonPath ...string) (string, error) {
	if r.secretReader == nil {
		return "", errors.New("mpapp: secret reader not configured")
	}

	return secretFromReader(ctx, r.secretReader, secretID, jsonPath...)
}

// Setting returns the current value of a runtime setting.
func (r *Runtime[E]) Setting(name string) (string, bool) {
	if r.settings == nil {
		return "", false
	}

	return r.settings.Get(name)
}

// NewRequest returns a request builder for baseURL whose requests are traced.
func (r *Runtime[E]) NewRequest(baseURL string) *requests.Builder {
	t := r.transport
	if t == nil {
		t = http.DefaultTransport
	}

	return requests.New().Transport(t).BaseURL(baseURL)
}

// NewHTTPTransport returns the transport for calls to upstream services such as a remote media
// server. Every call becomes a client span named after the method and upstream host, and carries the
// trace context of the request that made it.
func NewHTTPTransport(tp trace.TracerProvider, prop propagation.TextMapPropagator) http.RoundTripper {
	return otelhttp.NewTransport(http.DefaultTransport,
		otelhttp.WithTracerProvider(tp),
		otelhttp.WithPropagators(prop),
		otelhttp.WithSpanNameFormatter(upstreamSpanName),
	)
}

func upstreamSpanName(_ string, r *http.Request) string {
	return "upstream " + r.Method + " " + r.URL.Host
}
