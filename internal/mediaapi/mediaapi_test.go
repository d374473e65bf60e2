package mediaapi_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/advdv/mphttp"
	"github.com/advdv/mphttp/apidoc"
	"github.com/advdv/mphttp/internal/mediaapi"
	"github.com/advdv/mphttp/mpapp"
	"github.com/advdv/mphttp/render"
	"github.com/advdv/mphttp/source"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var started = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type harness struct {
	disp *mphttp.Dispatcher
	logs *mphttp.TestLogger
}

func newHarness(t *testing.T, cfg mediaapi.Config, mws ...mphttp.Middleware) *harness {
	t.Helper()

	cfg.Now = func() time.Time { return started }
	if cfg.ServerName == "" {
		cfg.ServerName = "mp-test"
	}

	tmpls := render.NewDefaultManager()
	require.NoError(t, mediaapi.RegisterTemplates(tmpls))

	reg := mphttp.NewRegistry()
	reg.Use(mws...)
	mediaapi.New(cfg).Register(reg)

	logs := mphttp.NewTestLogger(t)

	return &harness{
		disp: mphttp.NewDispatcher(reg, tmpls, mphttp.NewFaultRenderer(tmpls, mphttp.DiscloseDefault, "mp-test"), logs),
		logs: logs,
	}
}

func (h *harness) do(t *testing.T, method mphttp.Method, target string) (*http.Response, string) {
	t.Helper()

	req, err := mphttp.NewRequest(method, target, nil, nil)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, h.disp.Serve(context.Background(), req, mphttp.NewResponseWriter(&buf, req, mphttp.ResponseConfig{Strict: true})))

	resp, err := http.ReadResponse(bufio.NewReader(&buf), &http.Request{Method: string(method)})
	require.NoError(t, err)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp, string(body)
}

func library() *source.MemoryLibrary {
	return source.NewMemoryLibrary(
		source.Item{ID: "a1", Title: "Intro", Kind: "audio", MIME: "audio/mpeg", Key: "audio/a1.mp3"},
		source.Item{ID: "a2", Title: "Outro", Kind: "audio", Key: "audio/a2.ogg"},
		source.Item{ID: "v1", Title: "Trailer", Kind: "video", MIME: "video/mp4", Key: "video/missing.mp4"},
	)
}

func mediaDir(t *testing.T, files map[string]string) *source.Filesystem {
	t.Helper()

	dir := t.TempDir()
	for name, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o700))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	}

	fs, err := source.NewFilesystem(dir)
	require.NoError(t, err)
	t.Cleanup(func() { fs.Close() })

	return fs
}

func decode[T any](t *testing.T, body string) T {
	t.Helper()

	var v T
	require.NoError(t, json.Unmarshal([]byte(body), &v))

	return v
}

type itemList struct {
	Items []source.Item `json:"items"`
}

func itemIDs(l itemList) []string {
	ids := make([]string, 0, len(l.Items))
	for _, it := range l.Items {
		ids = append(ids, it.ID)
	}

	return ids
}

func TestListItems(t *testing.T) {
	h := newHarness(t, mediaapi.Config{Library: library()})

	resp, body := h.do(t, mphttp.MethodGet, "/api/items")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{"a1", "a2", "v1"}, itemIDs(decode[itemList](t, body)))

	_, body = h.do(t, mphttp.MethodGet, "/api/items?kind=audio&limit=1")
	assert.Equal(t, []string{"a1"}, itemIDs(decode[itemList](t, body)))

	_, body = h.do(t, mphttp.MethodGet, "/api/items?kind=image")
	assert.JSONEq(t, `{"items":[]}`, body)

	for target, detail := range map[string]string{
		"/api/items?limit=ten": `parameter "limit": "ten" is not a valid integer`,
		"/api/items?limit=-1":  `parameter "limit": must not be negative`,
	} {
		resp, body := h.do(t, mphttp.MethodGet, target)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, target)
		assert.Equal(t, detail, decode[map[string]any](t, body)["detail"], target)
	}
}

func TestGetItem(t *testing.T) {
	h := newHarness(t, mediaapi.Config{Library: library()})

	resp, body := h.do(t, mphttp.MethodGet, "/api/items/a1")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Intro", decode[source.Item](t, body).Title)

	resp, body = h.do(t, mphttp.MethodGet, "/api/items/nope")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "application/json; charset=UTF-8", resp.Header.Get("Content-Type"))
	assert.Equal(t, `item "nope" does not exist`, decode[map[string]any](t, body)["detail"])
}

func TestStreamItem(t *testing.T) {
	h := newHarness(t, mediaapi.Config{
		Library: library(),
		Media:   mediaDir(t, map[string]string{"audio/a1.mp3": "ID3-bytes", "audio/a2.ogg": "OggS"}),
	})

	resp, body := h.do(t, mphttp.MethodGet, "/api/items/a1/stream")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ID3-bytes", body)
	assert.Equal(t, "audio/mpeg", resp.Header.Get("Content-Type"), "item MIME wins")
	assert.EqualValues(t, len("ID3-bytes"), resp.ContentLength)

	resp, _ = h.do(t, mphttp.MethodGet, "/api/items/a2/stream")
	assert.NotEmpty(t, resp.Header.Get("Content-Type"), "falls back to the source MIME")

	resp, body = h.do(t, mphttp.MethodHead, "/api/items/a1/stream")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, body)

	resp, body = h.do(t, mphttp.MethodGet, "/api/items/v1/stream")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, body, "has no media")
}

// ctxSource opens streams that fail reads once the context it was opened with is done.
type ctxSource struct{ data string }

func (s ctxSource) Open(ctx context.Context, _ string) (source.Stream, error) {
	return source.Stream{Body: io.NopCloser(&ctxReader{ctx: ctx, r: strings.NewReader(s.data)}), Size: -1}, nil
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (r *ctxReader) Read(p []byte) (int, error) {
	if err := r.ctx.Err(); err != nil {
		return 0, err
	}

	return r.r.Read(p)
}

func TestStreamOutlivesRequestDeadline(t *testing.T) {
	h := newHarness(t, mediaapi.Config{Library: library(), Media: ctxSource{data: "long media"}},
		mpapp.WithRequestDeadline(time.Minute))

	resp, body := h.do(t, mphttp.MethodGet, "/api/items/a1/stream")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{"chunked"}, resp.TransferEncoding)
	assert.Equal(t, "long media", body)
}

func TestStatus(t *testing.T) {
	h := newHarness(t, mediaapi.Config{Library: library(), ServerName: "MediaPortal"})

	resp, body := h.do(t, mphttp.MethodGet, "/status")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/html; charset=UTF-8", resp.Header.Get("Content-Type"))
	assert.Contains(t, body, "<title>MediaPortal status</title>")
	assert.Contains(t, body, "3 items, up since 2024-03-01T12:00:00Z")
}

func TestStatic(t *testing.T) {
	h := newHarness(t, mediaapi.Config{Static: mediaDir(t, map[string]string{"css/site.css": "body{}"})})

	resp, body := h.do(t, mphttp.MethodGet, "/static/css/site.css")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "body{}", body)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/css")
	assert.Equal(t, "public, max-age=3600", resp.Header.Get("Cache-Control"))

	resp, body = h.do(t, mphttp.MethodGet, "/static/css/nope.css")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, body, "Resource not found: /static/css/nope.css")

	resp, _ = h.do(t, mphttp.MethodGet, "/static/css")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode, "directories are not served")
}

func TestUnconfiguredCollaborators(t *testing.T) {
	h := newHarness(t, mediaapi.Config{})

	for _, target := range []string{"/api/items", "/api/items/a1", "/api/items/a1/stream", "/static/x.css"} {
		resp, _ := h.do(t, mphttp.MethodGet, target)
		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode, target)
	}

	_, body := h.do(t, mphttp.MethodGet, "/status")
	assert.Contains(t, body, "unknown items")
}

type failingLibrary struct{ source.Library }

func (failingLibrary) List(context.Context, source.Query) ([]source.Item, error) {
	return nil, errors.New("table scan throttled")
}

func TestLibraryFailureIsWithheld(t *testing.T) {
	h := newHarness(t, mediaapi.Config{Library: failingLibrary{}})

	resp, body := h.do(t, mphttp.MethodGet, "/api/items")
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.NotContains(t, body, "throttled")

	recs := h.logs.Records()
	require.NotEmpty(t, recs)
	assert.ErrorContains(t, recs[len(recs)-1].Err, "throttled")
}

func TestCatalog(t *testing.T) {
	h := newHarness(t, mediaapi.Config{Info: apidoc.Info{Title: "media", Version: "1.0.0"}})

	resp, body := h.do(t, mphttp.MethodGet, "/openapi.json")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	doc := decode[map[string]any](t, body)
	paths, ok := doc["paths"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, paths, "/api/items/{id}/stream")
	assert.Contains(t, paths, "/static/{rest}")
	assert.Equal(t, "media", doc["info"].(map[string]any)["title"])
}
