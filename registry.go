package mphttp

import (
	"context"
	"fmt"
	"strings"

	"github.com/advdv/mphttp/internal/pattern"
	"github.com/samber/lo"
)

// Descriptor describes a registered handler. It is read-only once registered.
type Descriptor struct {
	Method  Method
	Pattern string
	Kind    ResponseKind
	Params  []Param
	Name    string // optional, for reversing
	Summary string // optional, for the catalog
}

type route struct {
	desc    Descriptor
	pat     *pattern.Pattern
	handler Handler
}

// Registry maps verb and path pattern to handlers. Registration happens at startup, afterwards the
// registry is only read and may be used by many connections at once.
type Registry struct {
	reverser    *Reverser
	routes      []*route
	mounts      []*mounted
	middlewares struct {
		captured bool
		list     []Middleware
	}
}

// NewRegistry inits an empty registry.
func NewRegistry() *Registry {
	return &Registry{reverser: NewReverser()}
}

// Use allows providing of middleware. It must be called before any handler is registered.
func (reg *Registry) Use(mw ...Middleware) {
	reg.ensureNoUseAfterHandle()
	reg.middlewares.list = append(reg.middlewares.list, mw...)
}

// HandleFunc registers a handler function.
func (reg *Registry) HandleFunc(d Descriptor, h HandlerFunc) {
	reg.Handle(d, h)
}

// Handle registers h for the descriptor. Invalid descriptors are programming errors and panic.
func (reg *Registry) Handle(d Descriptor, h Handler) {
	if h == nil {
		panic(fmt.Sprintf("mphttp: nil handler for %s %s", d.Method, d.Pattern))
	}

	if _, ok := ParseMethod(string(d.Method)); !ok {
		panic(fmt.Sprintf("mphttp: unsupported method %q for %s", d.Method, d.Pattern))
	}

	pat, err := pattern.Parse(d.Pattern)
	if err != nil {
		panic("mphttp: " + err.Error())
	}

	switch d.Kind {
	case ResponseJSON, ResponseStream, ResponseHTML:
	default:
		panic(fmt.Sprintf("mphttp: no response kind for %s %s", d.Method, d.Pattern))
	}

	if err := checkParamDecl(d.Params, pat.Captures()); err != nil {
		panic(fmt.Sprintf("mphttp: %s %s: %s", d.Method, d.Pattern, err))
	}

	for _, rt := range reg.routes {
		if rt.desc.Method == d.Method && rt.pat.String() == pat.String() {
			panic(fmt.Sprintf("mphttp: %s %s is already registered", d.Method, d.Pattern))
		}
	}

	reg.middlewares.captured = true

	if d.Name != "" {
		reg.reverser.Named(d.Name, d.Pattern)
	}

	d.Params = append([]Param(nil), d.Params...)
	reg.routes = append(reg.routes, &route{
		desc:    d,
		pat:     pat,
		handler: Wrap(withParams(d.Params, h), reg.middlewares.list...),
	})
}

// Reverse returns the url based on the name and parameter values. Names of mounted registries are
// resolved too, with the mount prefix prepended.
func (reg *Registry) Reverse(name string, vals ...string) (string, error) {
	if !reg.reverser.Has(name) {
		for _, mnt := range reg.mounts {
			if !mnt.sub.hasName(name) {
				continue
			}

			sub, err := mnt.sub.Reverse(name, vals...)
			if err != nil {
				return "", err
			}

			return mnt.join(sub), nil
		}
	}

	return reg.reverser.Reverse(name, vals...)
}

func (reg *Registry) hasName(name string) bool {
	return reg.reverser.Has(name) || lo.SomeBy(reg.mounts, func(m *mounted) bool { return m.sub.hasName(name) })
}

// Routes returns the descriptors of all registered handlers in registration order, followed by the
// routes of mounted registries with their patterns prefixed.
func (reg *Registry) Routes() []Descriptor {
	descs := lo.Map(reg.routes, func(rt *route, _ int) Descriptor {
		d := rt.desc
		d.Params = append([]Param(nil), d.Params...)

		return d
	})

	for _, mnt := range reg.mounts {
		for _, d := range mnt.sub.Routes() {
			d.Pattern = mnt.join(d.Pattern)
			descs = append(descs, d)
		}
	}

	return descs
}

// Resolution is the outcome of a successful lookup.
type Resolution struct {
	Descriptor Descriptor
	Handler    Handler
	Request    *Request // the request as the handler chain sees it
}

// Serve runs the resolved handler chain.
func (res Resolution) Serve(ctx context.Context) (Result, error) {
	return res.Handler.ServeMP(ctx, res.Request, Params{})
}

// Resolve finds the handler for the request. Among routes matching the path the most specific one
// wins, ties go to the route registered first. No match at all is a NotFound fault; a path that is
// known for other methods only is a MethodNotAllowed fault listing them. HEAD requests are served by
// GET routes unless a HEAD route exists.
func (reg *Registry) Resolve(req *Request) (Resolution, error) {
	res, allowed, ok := reg.resolve(req.method, req.path, req)
	if ok {
		return res, nil
	}

	if len(allowed) > 0 {
		return Resolution{}, MethodNotAllowed(req.method, allowed...)
	}

	return Resolution{}, NotFound("Resource not found: %s", req.path)
}

type routeMatch struct {
	rt *route
	m  pattern.Match
}

func (reg *Registry) resolve(method Method, path string, req *Request) (Resolution, []Method, bool) {
	var matched []routeMatch
	for _, rt := range reg.routes {
		if m, ok := rt.pat.Match(path); ok {
			matched = append(matched, routeMatch{rt, m})
		}
	}

	best, found := bestMatch(matched, method)
	if !found && method == MethodHead {
		best, found = bestMatch(matched, MethodGet)
	}

	if found && !best.rt.pat.HasWildcard() {
		return best.resolution(req), nil, true
	}

	allow := lo.Map(matched, func(rm routeMatch, _ int) Method { return rm.rt.desc.Method })
	for _, mnt := range reg.mounts {
		rest, ok := mnt.strip(path)
		if !ok {
			continue
		}

		sub, subAllowed, ok := mnt.sub.resolve(method, rest, req.withPath(rest))
		if ok {
			return reg.mountResolution(mnt, sub, req), nil, true
		}

		allow = append(allow, subAllowed...)
	}

	if found {
		return best.resolution(req), nil, true
	}

	if lo.Contains(allow, MethodGet) {
		allow = append(allow, MethodHead)
	}

	// canonical order without duplicates
	return Resolution{}, lo.Filter(methods, func(m Method, _ int) bool { return lo.Contains(allow, m) }), false
}

// bestMatch picks the most specific route for the method; earlier routes win ties.
func bestMatch(matched []routeMatch, method Method) (routeMatch, bool) {
	var best routeMatch
	found := false
	for _, rm := range matched {
		if rm.rt.desc.Method != method {
			continue
		}

		if !found || pattern.Compare(rm.rt.pat, best.rt.pat) > 0 {
			best, found = rm, true
		}
	}

	return best, found
}

func (rm routeMatch) resolution(req *Request) Resolution {
	d := rm.rt.desc
	d.Params = append([]Param(nil), d.Params...)

	return Resolution{
		Descriptor: d,
		Handler:    rm.rt.handler,
		Request:    req.withRoute(rm.m.Captures, rm.m.Rest),
	}
}

// mountResolution wraps the sub registry's chain with our middleware. Our middleware sees the original
// path, the mounted handler sees the stripped one.
func (reg *Registry) mountResolution(mnt *mounted, sub Resolution, req *Request) Resolution {
	sub.Descriptor.Pattern = mnt.join(sub.Descriptor.Pattern)
	inner := HandlerFunc(func(ctx context.Context, _ *Request, p Params) (Result, error) {
		return sub.Handler.ServeMP(ctx, sub.Request, p)
	})

	return Resolution{
		Descriptor: sub.Descriptor,
		Handler:    Wrap(inner, reg.middlewares.list...),
		Request:    req,
	}
}

func (reg *Registry) ensureNoUseAfterHandle() {
	if reg.middlewares.captured {
		panic("mphttp: cannot call Use() after calling Handle")
	}
}

// joinPath prefixes p with prefix, which has no trailing slash.
func joinPath(prefix, p string) string {
	if p == "/" {
		return prefix
	}

	return prefix + "/" + strings.TrimPrefix(p, "/")
}
