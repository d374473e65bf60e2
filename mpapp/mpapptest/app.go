// Package mpapptest provides test helpers for mpapp applications.
//
// It constructs the identical DI graph as [mpapp.NewApp] but uses
// [fxtest.App] which fails the test immediately on DI errors.
//
// Example:
//
//	mpapptest.SetBaseEnv(t, 18081)
//	app := mpapptest.New[TestEnv](t, routing, mpapp.WithAWSClient(...))
//	app.RequireStart()
//	t.Cleanup(app.RequireStop)
package mpapptest

import (
	"testing"

	"github.com/advdv/mphttp/mpapp"
	"go.uber.org/fx/fxtest"
)

// App embeds *fxtest.App for testing mpapp applications.
type App struct {
	*fxtest.App
}

// New creates a test app with the same DI graph as [mpapp.NewApp].
func New[E mpapp.Environment](t testing.TB, routing any, opts ...mpapp.Option) *App {
	return &App{App: fxtest.New(t, mpapp.FxOptions[E](routing, opts...)...)}
}
