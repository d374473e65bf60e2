package mpapp

import (
	"context"
	"testing"

	"github.com/advdv/mphttp"
	"github.com/stretchr/testify/require"
)

// newReq builds a GET request with the given header name/value pairs.
func newReq(t *testing.T, target string, kv ...string) *mphttp.Request {
	t.Helper()

	var hdrs mphttp.Headers
	for i := 0; i+1 < len(kv); i += 2 {
		hdrs.Add(kv[i], kv[i+1])
	}

	req, err := mphttp.NewRequest(mphttp.MethodGet, target, hdrs, nil)
	require.NoError(t, err)

	return req
}

func okHandler(context.Context, *mphttp.Request, mphttp.Params) (mphttp.Result, error) {
	return mphttp.JSON("ok"), nil
}

// serveWith runs h wrapped by mw.
func serveWith(mw mphttp.Middleware, h mphttp.HandlerFunc, req *mphttp.Request) (mphttp.Result, error) {
	return mw(h).ServeMP(context.Background(), req, mphttp.Params{})
}
