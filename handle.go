package mphttp

import (
	"context"
	"io"
	"net/http"

	"github.com/advdv/mphttp/render"
)

// ResponseKind is the kind of response a handler declares to produce.
type ResponseKind int

const (
	ResponseJSON ResponseKind = iota + 1
	ResponseStream
	ResponseHTML
)

func (k ResponseKind) String() string {
	switch k {
	case ResponseJSON:
		return "json"
	case ResponseStream:
		return "stream"
	case ResponseHTML:
		return "html"
	default:
		return "unset"
	}
}

// Result is what a handler produces. Construct it with [JSON], [HTML], [HTMLText] or [Stream].
type Result struct {
	kind    ResponseKind
	status  int
	headers Headers

	value any // json

	template string // html
	args     render.Args
	text     string

	mime string // stream
	body io.Reader
	size int64
}

// JSON returns a result that encodes v as JSON.
func JSON(v any) Result {
	return Result{kind: ResponseJSON, value: v}
}

// HTML returns a result that renders the named template with args.
func HTML(template string, args render.Args) Result {
	return Result{kind: ResponseHTML, template: template, args: args}
}

// HTMLText returns an HTML result with a pre-rendered document.
func HTMLText(doc string) Result {
	return Result{kind: ResponseHTML, text: doc}
}

// Stream returns a result that copies body to the client. A size of -1 means the length is not known
// upfront and the response is sent in chunks. If body implements io.Closer it is closed once written.
func Stream(mime string, body io.Reader, size int64) Result {
	if mime == "" {
		mime = ContentTypeOctetStream
	}

	return Result{kind: ResponseStream, mime: mime, body: body, size: size}
}

// Kind returns the kind of response.
func (r Result) Kind() ResponseKind { return r.kind }

// Value returns the value of a JSON result.
func (r Result) Value() any { return r.value }

// Status returns the status code, 200 unless set otherwise.
func (r Result) Status() int {
	if r.status == 0 {
		return http.StatusOK
	}

	return r.status
}

// WithStatus returns a copy with a different success status code.
func (r Result) WithStatus(code int) Result {
	r.status = code
	return r
}

// Headers returns the extra response headers.
func (r Result) Headers() Headers { return r.headers.Clone() }

// WithHeader returns a copy with an extra response header.
func (r Result) WithHeader(name, value string) Result {
	r.headers = append(r.headers.Clone(), NewHeader(name, value))
	return r
}

// Handler serves a routed request. The params hold the validated values of the parameters declared on
// the route.
type Handler interface {
	ServeMP(ctx context.Context, r *Request, p Params) (Result, error)
}

// HandlerFunc allow casting a function to implement [Handler].
type HandlerFunc func(ctx context.Context, r *Request, p Params) (Result, error)

// ServeMP implements the [Handler] interface.
func (f HandlerFunc) ServeMP(ctx context.Context, r *Request, p Params) (Result, error) {
	return f(ctx, r, p)
}

// withParams returns a handler that validates the declared parameters before calling next. The
// parameters handed to it by middleware are ignored.
func withParams(decl []Param, next Handler) Handler {
	return HandlerFunc(func(ctx context.Context, r *Request, _ Params) (Result, error) {
		ps, err := validateParams(decl, r)
		if err != nil {
			return Result{}, err
		}

		return next.ServeMP(ctx, r, ps)
	})
}
