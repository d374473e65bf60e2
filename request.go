package mphttp

import (
	"io"
	"net/url"
	"strings"
)

// Method is an HTTP request method. Only the methods declared here are accepted by the parser.
type Method string

const (
	MethodGet     Method = "GET"
	MethodHead    Method = "HEAD"
	MethodPost    Method = "POST"
	MethodPut     Method = "PUT"
	MethodDelete  Method = "DELETE"
	MethodPatch   Method = "PATCH"
	MethodOptions Method = "OPTIONS"
)

var methods = []Method{MethodGet, MethodHead, MethodPost, MethodPut, MethodDelete, MethodPatch, MethodOptions}

// ParseMethod returns the method for the (case-sensitive) token s.
func ParseMethod(s string) (Method, bool) {
	for _, m := range methods {
		if string(m) == s {
			return m, true
		}
	}

	return "", false
}

// Protocol versions understood by the parser.
const (
	HTTP10 = "HTTP/1.0"
	HTTP11 = "HTTP/1.1"
)

// Header is a single parsed header field.
type Header struct {
	Name  string
	Value string
}

// NewHeader inits a header. Both name and value must be non-empty, anything else is a programming
// error and panics.
func NewHeader(name, value string) Header {
	if name == "" || value == "" {
		panic("mphttp: header name and value must be non-empty")
	}

	return Header{Name: name, Value: value}
}

// Headers is an ordered header collection. Lookups are case-insensitive and duplicate names are kept in
// arrival order.
type Headers []Header

// Get returns the first value for name, or the empty string.
func (h Headers) Get(name string) string {
	for _, f := range h {
		if strings.EqualFold(f.Name, name) {
			return f.Value
		}
	}

	return ""
}

// Values returns all values for name in arrival order.
func (h Headers) Values(name string) []string {
	var vals []string
	for _, f := range h {
		if strings.EqualFold(f.Name, name) {
			vals = append(vals, f.Value)
		}
	}

	return vals
}

// Has reports whether a header with the given name is present.
func (h Headers) Has(name string) bool {
	for _, f := range h {
		if strings.EqualFold(f.Name, name) {
			return true
		}
	}

	return false
}

// Add appends a header, keeping existing headers of the same name.
func (h *Headers) Add(name, value string) {
	*h = append(*h, Header{Name: name, Value: value})
}

// Set replaces every header of the given name with a single one.
func (h *Headers) Set(name, value string) {
	h.Del(name)
	h.Add(name, value)
}

// Del removes every header of the given name.
func (h *Headers) Del(name string) {
	kept := (*h)[:0]
	for _, f := range *h {
		if !strings.EqualFold(f.Name, name) {
			kept = append(kept, f)
		}
	}

	*h = kept
}

// Keys returns the distinct header names in first-arrival order.
func (h Headers) Keys() []string {
	seen := make(map[string]struct{}, len(h))
	keys := make([]string, 0, len(h))
	for _, f := range h {
		lk := strings.ToLower(f.Name)
		if _, ok := seen[lk]; ok {
			continue
		}

		seen[lk] = struct{}{}
		keys = append(keys, f.Name)
	}

	return keys
}

// Clone returns a copy that shares no memory with h.
func (h Headers) Clone() Headers {
	if h == nil {
		return nil
	}

	return append(Headers(nil), h...)
}

// hasToken reports whether the comma separated header contains token (case-insensitive).
func (h Headers) hasToken(name, token string) bool {
	for _, v := range h.Values(name) {
		for _, part := range strings.Split(v, ",") {
			if strings.EqualFold(strings.TrimSpace(part), token) {
				return true
			}
		}
	}

	return false
}

// Request is a parsed HTTP request. It is immutable once parsing completes: accessors hand out copies.
type Request struct {
	method   Method
	target   string
	path     string
	proto    string
	headers  Headers
	query    url.Values
	body     io.Reader
	captures map[string]string
	rest     string
}

func (r *Request) Method() Method { return r.method }

// Target returns the raw request target as it appeared on the request line.
func (r *Request) Target() string { return r.target }

// Path returns the percent-decoded path of the request target.
func (r *Request) Path() string { return r.path }

// Proto returns the protocol version, e.g. "HTTP/1.1".
func (r *Request) Proto() string { return r.proto }

// Header returns a copy of the request headers.
func (r *Request) Header() Headers { return r.headers.Clone() }

// HeaderValue is shorthand for Header().Get(name) without the copy.
func (r *Request) HeaderValue(name string) string { return r.headers.Get(name) }

// Query returns a copy of the multi-valued query parameters.
func (r *Request) Query() url.Values {
	q := make(url.Values, len(r.query))
	for k, v := range r.query {
		q[k] = append([]string(nil), v...)
	}

	return q
}

// Body returns the body reader. It is never nil; requests without a body return an empty reader. The
// body is only read from the connection when the handler reads it.
func (r *Request) Body() io.Reader {
	if r.body == nil {
		return strings.NewReader("")
	}

	return r.body
}

// PathValue returns the value captured by the {name} segment of the matched route.
func (r *Request) PathValue(name string) string { return r.captures[name] }

// Rest returns the path remainder matched by a trailing wildcard, without leading slash.
func (r *Request) Rest() string { return r.rest }

// keepAlive reports whether the connection may serve another request after this one.
func (r *Request) keepAlive() bool {
	if r.headers.hasToken("Connection", "close") {
		return false
	}

	if r.proto == HTTP10 {
		return r.headers.hasToken("Connection", "keep-alive")
	}

	return true
}

// withRoute returns a shallow copy carrying the captures of a matched route.
func (r *Request) withRoute(captures map[string]string, rest string) *Request {
	cp := *r
	cp.captures = captures
	cp.rest = rest

	return &cp
}

// withPath returns a copy with a different path, used when dispatching into mounted registries.
func (r *Request) withPath(path string) *Request {
	cp := *r
	cp.path = path

	return &cp
}

// NewRequest builds a request without parsing, mostly useful in tests and for handlers invoked directly.
func NewRequest(method Method, target string, headers Headers, body io.Reader) (*Request, error) {
	u, err := url.ParseRequestURI(target)
	if err != nil {
		return nil, BadRequest("invalid request target %q", target)
	}

	return &Request{
		method:  method,
		target:  target,
		path:    u.Path,
		proto:   HTTP11,
		headers: headers.Clone(),
		query:   u.Query(),
		body:    body,
	}, nil
}
