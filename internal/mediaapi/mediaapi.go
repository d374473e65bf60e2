// Package mediaapi serves a media library over mphttp: a JSON catalog of items, the bytes of each
// item, a status page and static files.
package mediaapi

import (
	"context"
	"time"

	"github.com/advdv/mphttp"
	"github.com/advdv/mphttp/apidoc"
	"github.com/advdv/mphttp/render"
	"github.com/advdv/mphttp/source"
	"github.com/cockroachdb/errors"
	"github.com/samber/lo"
)

// Route names, for reversing.
const (
	RouteListItems  = "list-items"
	RouteGetItem    = "get-item"
	RouteStreamItem = "stream-item"
	RouteStatus     = "status"
	RouteStatic     = "static"
	RouteCatalog    = "catalog"
)

// StatusTemplate is the name of the status page template.
const StatusTemplate = "status.html"

const statusSource = `<!DOCTYPE html>
<html>
<head><title>{{ server }} status</title></head>
<body>
<h1>{{ server }}</h1>
<p>{{ items }} items, up since {{ started }}.</p>
{{> error.footer.html }}
</body>
</html>
`

// Config holds the collaborators of the API. Nil sources are allowed, their routes answer with 503.
type Config struct {
	Library    source.Library
	Media      source.ByteSource
	Static     source.ByteSource
	ServerName string
	Info       apidoc.Info
	Now        func() time.Time
}

// API implements the media routes.
type API struct {
	lib     source.Library
	media   source.ByteSource
	static  source.ByteSource
	server  string
	info    apidoc.Info
	started time.Time
}

// New inits the API.
func New(cfg Config) *API {
	now := lo.Ternary(cfg.Now != nil, cfg.Now, time.Now)

	return &API{
		lib:     cfg.Library,
		media:   cfg.Media,
		static:  cfg.Static,
		server:  cfg.ServerName,
		info:    cfg.Info,
		started: now(),
	}
}

// RegisterTemplates adds the templates the API renders.
func RegisterTemplates(m *render.Manager) error {
	return m.Register(StatusTemplate, statusSource)
}

// Register adds the routes to reg.
func (a *API) Register(reg *mphttp.Registry) {
	reg.HandleFunc(mphttp.Descriptor{
		Method:  mphttp.MethodGet,
		Pattern: "/api/items",
		Kind:    mphttp.ResponseJSON,
		Name:    RouteListItems,
		Summary: "Lists media items",
		Params: []mphttp.Param{
			{Name: "kind", Doc: "only items of this kind"},
			{Name: "limit", Type: mphttp.TypeInt, Doc: "maximum number of items"},
		},
	}, a.ListItems)

	reg.HandleFunc(mphttp.Descriptor{
		Method:  mphttp.MethodGet,
		Pattern: "/api/items/{id}",
		Kind:    mphttp.ResponseJSON,
		Name:    RouteGetItem,
		Summary: "Returns one media item",
		Params:  []mphttp.Param{{Name: "id", In: mphttp.InPath, Required: true}},
	}, a.GetItem)

	reg.HandleFunc(mphttp.Descriptor{
		Method:  mphttp.MethodGet,
		Pattern: "/api/items/{id}/stream",
		Kind:    mphttp.ResponseStream,
		Name:    RouteStreamItem,
		Summary: "Streams the bytes of a media item",
		Params:  []mphttp.Param{{Name: "id", In: mphttp.InPath, Required: true}},
	}, a.StreamItem)

	reg.HandleFunc(mphttp.Descriptor{
		Method:  mphttp.MethodGet,
		Pattern: "/status",
		Kind:    mphttp.ResponseHTML,
		Name:    RouteStatus,
		Summary: "Shows the server status",
	}, a.Status)

	reg.HandleFunc(mphttp.Descriptor{
		Method:  mphttp.MethodGet,
		Pattern: "/static/*",
		Kind:    mphttp.ResponseStream,
		Name:    RouteStatic,
		Summary: "Serves static files",
	}, a.Static)

	reg.HandleFunc(mphttp.Descriptor{
		Method:  mphttp.MethodGet,
		Pattern: "/openapi.json",
		Kind:    mphttp.ResponseJSON,
		Name:    RouteCatalog,
		Summary: "Describes this API",
	}, apidoc.Handler(reg, a.info))
}

// ListItems returns the items matching the kind and limit parameters.
func (a *API) ListItems(ctx context.Context, _ *mphttp.Request, p mphttp.Params) (mphttp.Result, error) {
	if a.lib == nil {
		return mphttp.Result{}, unconfigured("media library")
	}

	limit := p.Int("limit")
	if limit < 0 {
		return mphttp.Result{}, mphttp.BadRequest("parameter %q: must not be negative", "limit")
	}

	items, err := a.lib.List(ctx, source.Query{Kind: p.String("kind"), Limit: int(limit)})
	if err != nil {
		return mphttp.Result{}, errors.Wrap(err, "list items")
	}

	if items == nil {
		items = []source.Item{}
	}

	return mphttp.JSON(map[string]any{"items": items}), nil
}

// GetItem returns one item.
func (a *API) GetItem(ctx context.Context, r *mphttp.Request, _ mphttp.Params) (mphttp.Result, error) {
	it, err := a.item(ctx, r.PathValue("id"))
	if err != nil {
		return mphttp.Result{}, err
	}

	return mphttp.JSON(it), nil
}

// StreamItem sends the bytes of an item. The stream outlives the handler, so it is opened without the
// request's cancellation and bounded by the connection's write timeout instead.
func (a *API) StreamItem(ctx context.Context, r *mphttp.Request, _ mphttp.Params) (mphttp.Result, error) {
	if a.media == nil {
		return mphttp.Result{}, unconfigured("media store")
	}

	it, err := a.item(ctx, r.PathValue("id"))
	if err != nil {
		return mphttp.Result{}, err
	}

	st, err := a.media.Open(context.WithoutCancel(ctx), it.Key)
	if errors.Is(err, source.ErrNotFound) {
		return mphttp.Result{}, mphttp.NotFound("item %q has no media", it.ID)
	} else if err != nil {
		return mphttp.Result{}, errors.Wrapf(err, "open media of item %q", it.ID)
	}

	return mphttp.Stream(lo.CoalesceOrEmpty(it.MIME, st.MIME), st.Body, st.Size), nil
}

// Status renders the status page.
func (a *API) Status(ctx context.Context, _ *mphttp.Request, _ mphttp.Params) (mphttp.Result, error) {
	var count any = "unknown"
	if a.lib != nil {
		items, err := a.lib.List(ctx, source.Query{})
		if err != nil {
			return mphttp.Result{}, errors.Wrap(err, "count items")
		}

		count = len(items)
	}

	return mphttp.HTML(StatusTemplate, render.Args{
		"server":  lo.CoalesceOrEmpty(a.server, "mphttp"),
		"items":   count,
		"started": a.started.UTC().Format(time.RFC3339),
	}), nil
}

// Static serves the file below /static/.
func (a *API) Static(ctx context.Context, r *mphttp.Request, _ mphttp.Params) (mphttp.Result, error) {
	if a.static == nil {
		return mphttp.Result{}, unconfigured("static files")
	}

	st, err := a.static.Open(context.WithoutCancel(ctx), r.Rest())
	if errors.Is(err, source.ErrNotFound) {
		return mphttp.Result{}, mphttp.NotFound("Resource not found: %s", r.Path())
	} else if err != nil {
		return mphttp.Result{}, errors.Wrapf(err, "open static file %q", r.Rest())
	}

	return mphttp.Stream(st.MIME, st.Body, st.Size).WithHeader("Cache-Control", "public, max-age=3600"), nil
}

func (a *API) item(ctx context.Context, id string) (source.Item, error) {
	if a.lib == nil {
		return source.Item{}, unconfigured("media library")
	}

	it, err := a.lib.Get(ctx, id)
	if errors.Is(err, source.ErrNotFound) {
		return source.Item{}, mphttp.NotFound("item %q does not exist", id)
	} else if err != nil {
		return source.Item{}, errors.Wrapf(err, "get item %q", id)
	}

	return it, nil
}

func unconfigured(what string) error {
	return mphttp.ServiceUnavailable("no "+what+" is configured", nil)
}
