package mphttp

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/advdv/mphttp/render"
	"github.com/cockroachdb/errors"
	"github.com/samber/lo"
)

// Rule is consulted for every request before routing. A rule that handles the request writes the
// complete response and returns true. A rule that returns an error before writing anything is
// answered with the fault page for that error.
type Rule interface {
	Apply(req *Request, w *ResponseWriter) (bool, error)
}

// RuleFunc allows a function to be used as a [Rule].
type RuleFunc func(req *Request, w *ResponseWriter) (bool, error)

// Apply implements [Rule].
func (f RuleFunc) Apply(req *Request, w *ResponseWriter) (bool, error) { return f(req, w) }

// RedirectRule redirects every path below From to the same path below To.
type RedirectRule struct {
	From      string
	To        string
	Permanent bool
}

// Apply implements [Rule].
func (rr RedirectRule) Apply(req *Request, w *ResponseWriter) (bool, error) {
	from := strings.TrimSuffix(rr.From, "/")
	rest, ok := (&mounted{prefix: from}).strip(req.path)
	if !ok {
		return false, nil
	}

	loc := joinPath(strings.TrimSuffix(rr.To, "/"), rest)
	if loc == "" {
		loc = "/"
	}

	if q := req.query.Encode(); q != "" {
		loc += "?" + q
	}

	status := http.StatusFound
	if rr.Permanent {
		status = http.StatusMovedPermanently
	}

	w.Header().Set("Location", loc)
	if err := w.WriteHeader(status, 0); err != nil {
		return true, err
	}

	return true, w.Finish()
}

// Dispatcher routes parsed requests to handlers and writes their results or faults. All collaborators
// are injected; it holds no other state and serves concurrent requests.
type Dispatcher struct {
	registry  *Registry
	templates *render.Manager
	faults    *FaultRenderer
	logs      Logger
	rules     []Rule
}

// NewDispatcher inits a dispatcher.
func NewDispatcher(
	reg *Registry,
	templates *render.Manager,
	faults *FaultRenderer,
	logs Logger,
	rules ...Rule,
) *Dispatcher {
	return &Dispatcher{registry: reg, templates: templates, faults: faults, logs: logs, rules: rules}
}

// Serve handles one request and writes the complete response. The returned error is a transport or
// contract error after which the connection cannot be reused.
func (d *Dispatcher) Serve(ctx context.Context, req *Request, w *ResponseWriter) error {
	start := time.Now()
	rec := RequestRecord{Method: req.method, Path: req.path}

	err := d.serve(ctx, req, w, &rec)

	rec.Status, rec.Written, rec.Duration = w.Status(), w.Written(), time.Since(start)
	d.logs.LogRequest(rec)

	return err
}

func (d *Dispatcher) serve(ctx context.Context, req *Request, w *ResponseWriter, rec *RequestRecord) error {
	for _, rule := range d.rules {
		handled, err := rule.Apply(req, w)
		if err != nil && !w.HeadersWritten() {
			return d.writeFault(w, req, ResponseHTML, err, rec)
		}

		if handled {
			return err
		}
	}

	res, err := d.registry.Resolve(req)
	if err != nil {
		return d.writeFault(w, req, ResponseHTML, err, rec)
	}

	rec.Pattern = res.Descriptor.Pattern

	result, err := d.invoke(ctx, res)
	if err == nil && result.Kind() != res.Descriptor.Kind {
		err = Internal(errors.Newf("handler for %s %s produced a %s result, declared %s",
			res.Descriptor.Method, res.Descriptor.Pattern, result.Kind(), res.Descriptor.Kind))
	}

	if err != nil {
		closeBody(result)
		return d.writeFault(w, req, res.Descriptor.Kind, err, rec)
	}

	if err := d.writeResult(w, result); err != nil {
		if w.HeadersWritten() {
			d.logs.LogWriteError(err)
			rec.Err = err
			w.SetClose()

			return err
		}

		return d.writeFault(w, req, res.Descriptor.Kind, err, rec)
	}

	return nil
}

// invoke runs the handler chain. A panic is recovered and becomes an internal error.
func (d *Dispatcher) invoke(ctx context.Context, res Resolution) (result Result, err error) {
	defer func() {
		if v := recover(); v != nil {
			result, err = Result{}, Internal(errors.Newf("panic in handler: %v\n%s", v, debug.Stack()))
		}
	}()

	return res.Serve(ctx)
}

func (d *Dispatcher) writeResult(w *ResponseWriter, res Result) error {
	defer closeBody(res)

	var body []byte
	switch res.kind {
	case ResponseJSON:
		b, err := json.Marshal(res.value)
		if err != nil {
			return Internal(errors.Wrap(err, "failed to encode json result"))
		}

		body = b
		w.Header().Set("Content-Type", ContentTypeJSON)
	case ResponseHTML:
		doc := res.text
		if res.template != "" {
			if d.templates == nil {
				return Internal(errors.New("no template manager configured"))
			}

			var err error
			if doc, err = d.templates.Render(res.template, res.args); err != nil {
				return Internal(errors.Wrapf(err, "failed to render %q", res.template))
			}
		}

		body = []byte(doc)
		w.Header().Set("Content-Type", ContentTypeHTML)
	case ResponseStream:
		w.Header().Set("Content-Type", res.mime)
	}

	for _, h := range res.headers {
		w.Header().Add(h.Name, h.Value)
	}

	if res.kind != ResponseStream {
		if err := w.WriteHeader(res.Status(), int64(len(body))); err != nil {
			return err
		}

		if _, err := w.Write(body); err != nil {
			return err
		}

		return w.Finish()
	}

	size := res.size
	if size < 0 {
		size = UnknownLength
	}

	if err := w.WriteHeader(res.Status(), size); err != nil {
		return err
	}

	if res.body != nil && !w.head {
		if _, err := io.Copy(w, res.body); err != nil {
			return errors.Wrap(err, "failed to copy stream")
		}
	}

	return w.Finish()
}

func (d *Dispatcher) writeFault(w *ResponseWriter, req *Request, kind ResponseKind, err error, rec *RequestRecord) error {
	f := FaultOf(err)
	rec.Fault, rec.Err = f.Kind(), err

	if f.Kind() == KindInternalError {
		d.logs.LogUnhandledServeError(err)
	}

	if !w.HeadersWritten() {
		*w.Header() = nil // drop headers set for the abandoned result
	}

	return d.renderFault(w, wantsJSON(req, kind), err)
}

// WriteFault writes the error page for a request that never reached routing, e.g. because it could not
// be parsed. The request may be nil.
func (d *Dispatcher) WriteFault(w *ResponseWriter, req *Request, err error) error {
	rec := RequestRecord{}
	if req != nil {
		rec.Method, rec.Path = req.method, req.path
	}

	start := time.Now()
	werr := d.writeFault(w, req, ResponseHTML, err, &rec)

	rec.Status, rec.Written, rec.Duration = w.Status(), w.Written(), time.Since(start)
	d.logs.LogRequest(rec)

	return werr
}

func (d *Dispatcher) renderFault(w *ResponseWriter, asJSON bool, err error) error {
	rf := d.faults.Render(err, asJSON)

	w.Header().Set("Content-Type", rf.ContentType)
	if len(rf.Allow) > 0 {
		w.Header().Set("Allow", strings.Join(lo.Map(rf.Allow, func(m Method, _ int) string { return string(m) }), ", "))
	}

	if rf.Status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `APIKey realm="mphttp"`)
	}

	if werr := w.WriteHeader(rf.Status, int64(len(rf.Body))); werr != nil {
		return werr
	}

	if _, werr := w.Write(rf.Body); werr != nil {
		return werr
	}

	return w.Finish()
}

func closeBody(res Result) {
	if c, ok := res.body.(io.Closer); ok {
		c.Close()
	}
}
