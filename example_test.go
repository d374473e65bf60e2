package mphttp_test

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"

	"github.com/advdv/mphttp"
	"github.com/advdv/mphttp/render"
)

func Example() {
	reg := mphttp.NewRegistry()
	reg.HandleFunc(mphttp.Descriptor{
		Method: mphttp.MethodGet, Pattern: "/items/{id}", Kind: mphttp.ResponseJSON, Name: "get-item",
		Params: []mphttp.Param{{Name: "id", In: mphttp.InPath, Type: mphttp.TypeInt, Required: true}},
	}, func(_ context.Context, _ *mphttp.Request, p mphttp.Params) (mphttp.Result, error) {
		return mphttp.JSON(map[string]any{"id": p.Int("id"), "name": "Example Item"}), nil
	})

	// Generate a path by route name
	loc, _ := reg.Reverse("get-item", "123")
	fmt.Println("Path:", loc)

	tmpls := render.NewDefaultManager()
	disp := mphttp.NewDispatcher(reg, tmpls,
		mphttp.NewFaultRenderer(tmpls, mphttp.DiscloseDefault, "example"),
		mphttp.NewStdLogger(log.New(io.Discard, "", 0)))

	for _, raw := range []string{
		"GET /items/42 HTTP/1.1\r\n\r\n",
		"GET /items/abc HTTP/1.1\r\nAccept: application/json\r\n\r\n",
	} {
		req, _ := mphttp.ReadRequest(bufio.NewReader(strings.NewReader(raw)), 0, nil)

		var buf bytes.Buffer
		disp.Serve(context.Background(), req, mphttp.NewResponseWriter(&buf, req, mphttp.ResponseConfig{})) //nolint:errcheck

		resp, _ := http.ReadResponse(bufio.NewReader(&buf), nil)
		io.Copy(os.Stdout, io.MultiReader(strings.NewReader(resp.Status+" "), resp.Body, strings.NewReader("\n"))) //nolint:errcheck
	}
	// Output:
	// Path: /items/123
	// 200 OK {"id":42,"name":"Example Item"}
	// 400 Bad Request {"code":400,"name":"Bad Request","detail":"parameter \"id\": \"abc\" is not a valid integer"}
}
