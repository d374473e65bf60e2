package mpapptest

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"net/http"

	"github.com/advdv/mphttp"
	"github.com/advdv/mphttp/render"
)

// CallHandler serves req with handler registered under desc and returns the response as a client
// would read it. The body is fully read and can be consumed again. It handles the boilerplate of
// building a registry, a dispatcher and a response writer around a buffer.
func CallHandler(handler mphttp.HandlerFunc, desc mphttp.Descriptor, req *mphttp.Request) *http.Response {
	reg := mphttp.NewRegistry()
	reg.HandleFunc(desc, handler)

	tmpls := render.NewDefaultManager()
	disp := mphttp.NewDispatcher(reg, tmpls,
		mphttp.NewFaultRenderer(tmpls, mphttp.DiscloseDefault, "mpapptest"), discardLogger{})

	var buf bytes.Buffer
	w := mphttp.NewResponseWriter(&buf, req, mphttp.ResponseConfig{ServerName: "mpapptest", Strict: true})

	if err := disp.Serve(context.Background(), req, w); err != nil {
		panic("mpapptest: serve failed: " + err.Error())
	}

	resp, err := http.ReadResponse(bufio.NewReader(&buf), nil)
	if err != nil {
		panic("mpapptest: invalid response: " + err.Error())
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		panic("mpapptest: invalid response body: " + err.Error())
	}

	resp.Body = io.NopCloser(bytes.NewReader(body))

	return resp
}

type discardLogger struct{}

func (discardLogger) LogRequest(mphttp.RequestRecord) {}
func (discardLogger) LogUnhandledServeError(error)    {}
func (discardLogger) LogWriteError(error)             {}
