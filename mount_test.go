package mphttp_test

import (
	"context"
	"testing"

	"github.com/advdv/mphttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type ctxKey string

func apiRegistry() *mphttp.Registry {
	api := mphttp.NewRegistry()
	api.HandleFunc(get("/*"), named("api"))
	api.HandleFunc(get("/users/{id}"), named("user"))

	return api
}

func resolveValue(t *testing.T, reg *mphttp.Registry, target string) map[string]string {
	t.Helper()

	res, err := reg.Resolve(newRequest(t, mphttp.MethodGet, target))
	require.NoError(t, err)

	out, err := res.Serve(context.Background())
	require.NoError(t, err)

	return resultValue(t, out)
}

func TestMountSubPath(t *testing.T) {
	reg := mphttp.NewRegistry()
	reg.Mount("/api", apiRegistry())

	for target, path := range map[string]string{
		"/api/users":        "/users",
		"/api":              "/",
		"/api/":             "/",
		"/api/v1/users/123": "/v1/users/123",
	} {
		v := resolveValue(t, reg, target)
		assert.Equal(t, "api", v["handler"], target)
		assert.Equal(t, path, v["path"], target)
	}

	v := resolveValue(t, reg, "/api/users/7")
	assert.Equal(t, "user", v["handler"])
	assert.Equal(t, "/users/7", v["path"])

	_, err := reg.Resolve(newRequest(t, mphttp.MethodGet, "/apiary"))
	require.Equal(t, mphttp.CodeNotFound, mphttp.CodeOf(err))
}

func TestMountPrecedence(t *testing.T) {
	api := mphttp.NewRegistry()
	api.HandleFunc(get("/users"), named("api-users"))

	reg := mphttp.NewRegistry()
	reg.HandleFunc(get("/*"), named("fallback"))
	reg.HandleFunc(get("/api/health"), named("health"))
	reg.Mount("/api", api)

	assert.Equal(t, "health", resolveValue(t, reg, "/api/health")["handler"], "exact routes beat mounts")
	assert.Equal(t, "api-users", resolveValue(t, reg, "/api/users")["handler"], "mounts beat wildcards")
	assert.Equal(t, "fallback", resolveValue(t, reg, "/api/other")["handler"], "wildcards serve what mounts don't")
}

func TestMountMethodNotAllowed(t *testing.T) {
	reg := mphttp.NewRegistry()
	reg.Mount("/api", apiRegistry())

	_, err := reg.Resolve(newRequest(t, mphttp.MethodPost, "/api/users/1"))
	require.Equal(t, mphttp.CodeMethodNotAllowed, mphttp.CodeOf(err))
	assert.Equal(t, []mphttp.Method{mphttp.MethodGet, mphttp.MethodHead}, mphttp.FaultOf(err).Allowed())
}

func TestMountMiddlewareSeesOriginalPath(t *testing.T) {
	reg := mphttp.NewRegistry()
	reg.Use(func(next mphttp.Handler) mphttp.Handler {
		return mphttp.HandlerFunc(func(ctx context.Context, r *mphttp.Request, p mphttp.Params) (mphttp.Result, error) {
			return next.ServeMP(context.WithValue(ctx, ctxKey("mw_path"), r.Path()), r, p)
		})
	})

	api := mphttp.NewRegistry()
	api.HandleFunc(get("/users"), func(ctx context.Context, r *mphttp.Request, _ mphttp.Params) (mphttp.Result, error) {
		return mphttp.JSON(map[string]string{
			"handler": ctx.Value(ctxKey("mw_path")).(string),
			"path":    r.Path(),
		}), nil
	})
	reg.Mount("/api", api)

	v := resolveValue(t, reg, "/api/users")
	assert.Equal(t, "/api/users", v["handler"])
	assert.Equal(t, "/users", v["path"])
}

func TestMountValidation(t *testing.T) {
	reg := mphttp.NewRegistry()
	reg.Mount("/api", mphttp.NewRegistry())

	assert.Contains(t, panicMessage(func() { reg.Mount("/api", mphttp.NewRegistry()) }), "already mounted")
	assert.Contains(t, panicMessage(func() { reg.Mount("/", mphttp.NewRegistry()) }), "root path")
	assert.Contains(t, panicMessage(func() { reg.Mount("/{x}", mphttp.NewRegistry()) }), "literal segments")
	assert.Contains(t, panicMessage(func() { reg.Mount("/self", reg) }), "invalid registry")
	assert.Contains(t, panicMessage(func() { reg.Use() }), "cannot call Use()")
}
