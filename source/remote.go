package source

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/carlmjohnson/requests"
	"github.com/cockroachdb/errors"
)

// Remote is a library and byte source backed by another media server. Items are read from
// "items" and "items/{id}" below the base URL, media bytes from "media/{key}".
type Remote struct {
	base   string
	client *http.Client
}

// NewRemote inits a remote source. The transport is usually instrumented for tracing.
func NewRemote(baseURL string, transport http.RoundTripper) *Remote {
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}

	return &Remote{base: baseURL, client: &http.Client{Transport: transport}}
}

func (r *Remote) builder() *requests.Builder {
	return requests.URL(r.base).Client(r.client)
}

// List implements [Library].
func (r *Remote) List(ctx context.Context, q Query) ([]Item, error) {
	var items []Item

	b := r.builder().Path("items").ToJSON(&items)
	if q.Kind != "" {
		b.Param("kind", q.Kind)
	}

	if q.Limit > 0 {
		b.Param("limit", strconv.Itoa(q.Limit))
	}

	if err := b.Fetch(ctx); err != nil {
		return nil, remoteErr(err, "list items")
	}

	return limit(items, q.Limit), nil
}

// Get implements [Library].
func (r *Remote) Get(ctx context.Context, id string) (it Item, err error) {
	if err := r.builder().Path("items/" + url.PathEscape(id)).ToJSON(&it).Fetch(ctx); err != nil {
		return Item{}, remoteErr(err, "get item "+strconv.Quote(id))
	}

	return it, nil
}

// Open implements [ByteSource]. The body streams straight from the remote response.
func (r *Remote) Open(ctx context.Context, key string) (Stream, error) {
	segs := strings.Split(key, "/")
	for i, s := range segs {
		segs[i] = url.PathEscape(s)
	}

	req, err := r.builder().Path("media/" + strings.Join(segs, "/")).Request(ctx)
	if err != nil {
		return Stream{}, errors.Wrapf(err, "build request for %q", key)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return Stream{}, errors.Wrapf(err, "fetch %q", key)
	}

	if err := requests.CheckStatus(http.StatusOK)(resp); err != nil {
		resp.Body.Close()
		return Stream{}, remoteErr(err, "fetch "+strconv.Quote(key))
	}

	ctype := resp.Header.Get("Content-Type")
	if ctype == "" {
		ctype = defaultMIME
	}

	return Stream{Body: resp.Body, MIME: ctype, Size: resp.ContentLength}, nil
}

func remoteErr(err error, msg string) error {
	if requests.HasStatusErr(err, http.StatusNotFound) {
		return errors.Wrap(ErrNotFound, msg)
	}

	return errors.Wrap(err, msg)
}
