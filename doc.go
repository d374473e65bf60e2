// Package mphttp is a small embedded HTTP/1.x server for media applications.
//
// # Overview
//
// mphttp owns the whole request pipeline instead of sitting on top of net/http. Bytes read from a
// connection are fed to an incremental [Parser], the parsed [Request] is routed by a [Registry] and
// the handler's typed [Result] is written by a [ResponseWriter] that enforces the framing rules
// of the protocol. Every failure along the way is a [Fault] that is rendered into an error page.
//
// A minimal example:
//
//	reg := mphttp.NewRegistry()
//	reg.HandleFunc(mphttp.Descriptor{
//	    Method: mphttp.MethodGet, Pattern: "/items/{id}", Kind: mphttp.ResponseJSON, Name: "get-item",
//	}, func(ctx context.Context, r *mphttp.Request, p mphttp.Params) (mphttp.Result, error) {
//	    item, err := db.GetItem(r.PathValue("id"))
//	    if err != nil {
//	        return mphttp.Result{}, mphttp.NotFound("no item %s", r.PathValue("id"))
//	    }
//	    return mphttp.JSON(item), nil
//	})
//
//	tmpls := render.NewDefaultManager()
//	disp := mphttp.NewDispatcher(reg, tmpls, mphttp.NewFaultRenderer(tmpls, mphttp.DiscloseDefault, "mp"), logs)
//	srv := mphttp.NewServer(mphttp.ServerConfig{Addr: ":8080"}, disp, logs)
//	err := srv.ListenAndServe()
//
// # Handlers and Results
//
// Handlers receive the context, the request and the validated [Params] and return a [Result] or an
// error. Every route declares the kind of result it produces in its [Descriptor]:
//
//   - [JSON] encodes a value
//   - [HTML] renders a named template, [HTMLText] sends a prepared document
//   - [Stream] copies a reader with a known or unknown length
//
// A handler that returns a result of another kind is reported as an internal error.
//
// # Faults
//
// Errors are classified with [FaultOf]. A [*Fault] carries a [Kind] that maps to a status [Code]
// and a message that is shown to the client only for client errors. Any other error becomes an
// internal error, it is logged with its cause while the client sees a generic page:
//
//	return mphttp.Result{}, mphttp.BadRequest("limit must be positive")
//	return mphttp.Result{}, mphttp.Forbidden("not your library")
//	return mphttp.Result{}, errors.Wrap(err, "load library") // 500, cause withheld
//
// # Routing
//
// Patterns consist of literal segments, {name} captures and a trailing * wildcard. The most specific
// pattern wins, ties go to the route registered first. A path that matches only routes of other
// methods is answered with 405 and an Allow header, HEAD is served by GET routes.
//
// [Registry.Mount] attaches a registry under a literal prefix. Its handlers see the path below the
// prefix while the middleware of the parent still sees the full path.
//
// # Middleware
//
// Middleware wraps handlers and must be registered before the first route. The first middleware is
// the outermost. Declared parameters are validated after all middleware ran so middleware may answer
// requests that carry invalid parameters, for example with a redirect or a 401.
//
// # Named Routes and URL Reversing
//
// Routes with a Name can be reversed into paths:
//
//	loc, err := reg.Reverse("get-item", "123") // returns "/items/123"
//
// # Connections
//
// [Server] serves each connection from its own goroutine. Requests on a connection are served one at
// a time so pipelined responses keep their order. Unread request bodies are drained before the next
// request is read. A request that cannot be parsed is answered and the connection is closed.
package mphttp
