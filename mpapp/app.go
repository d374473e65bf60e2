package mpapp

import (
	"context"
	"net/http"

	"github.com/advdv/mphttp"
	"github.com/aws/aws-sdk-go-v2/aws"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// App wraps an fx.App for lifecycle management.
type App struct {
	app *fx.App
}

// AppConfig holds configuration for the app.
type AppConfig struct {
	ServerConfig
	FxOptions []fx.Option
}

// Option configures the App.
type Option func(*AppConfig)

type runtimeProviderParams[E Environment] struct {
	fx.In

	Env          E
	Registry     *mphttp.Registry
	SecretReader SecretReader
	Settings     *Settings
	Transport    http.RoundTripper
}

// WithAWSClient registers an AWS SDK v2 client for dependency injection.
// Clients are injected directly into handler constructors via fx.
//
// By default, clients target the local region (AWS_REGION env var):
//
//	mpapp.WithAWSClient(func(cfg aws.Config) *dynamodb.Client {
//	    return dynamodb.NewFromConfig(cfg)
//	})
//
// For a fixed region, wrap with InRegion[T] and use ForRegion():
//
//	mpapp.WithAWSClient(func(cfg aws.Config) *mpapp.InRegion[s3.Client] {
//	    return mpapp.NewInRegion(s3.NewFromConfig(cfg), "eu-west-1")
//	}, mpapp.ForRegion("eu-west-1"))
func WithAWSClient[T any](factory func(aws.Config) T, opts ...ClientOption) Option {
	return func(c *AppConfig) {
		c.FxOptions = append(c.FxOptions, fx.Provide(awsClientFactory(factory, opts...)))
	}
}

// WithFx adds fx options for dependency injection.
func WithFx(fxOpts ...fx.Option) Option {
	return func(c *AppConfig) {
		c.FxOptions = append(c.FxOptions, fxOpts...)
	}
}

// WithHealthHandler sets a custom health check handler.
// If not set, a handler answering {"status":"ok"} is used.
func WithHealthHandler(h mphttp.HandlerFunc) Option {
	return func(c *AppConfig) {
		c.HealthHandler = h
	}
}

// WithRules adds rules that run before routing.
func WithRules(rules ...mphttp.Rule) Option {
	return func(c *AppConfig) {
		c.Rules = append(c.Rules, rules...)
	}
}

// FxOptions returns the fx options NewApp builds its app from. Tests use it to build an fxtest app.
func FxOptions[E Environment](routing any, opts ...Option) []fx.Option {
	var cfg AppConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	baseOpts := make([]fx.Option, 0, 18+len(cfg.FxOptions))
	baseOpts = append(baseOpts, []fx.Option{
		fx.NopLogger,
		fx.Provide(ParseEnv[E]()),
		fx.Provide(func(e E) Environment { return e }),
		fx.Provide(mphttp.NewRegistry),
		fx.Provide(func(e E) (*zap.Logger, error) { return NewLogger(e) }),
		fx.Provide(NewTracerProvider),
		fx.Provide(NewPropagator),
		fx.Provide(provideAWSConfig),
		fx.Provide(func(cfg aws.Config) (SecretReader, error) {
			return NewAWSSecretReader(cfg)
		}),
		fx.Provide(NewTemplates),
		fx.Provide(provideSettings),
		fx.Provide(provideSQSSink),
		fx.Provide(NewHTTPTransport),
		fx.Supply(cfg.ServerConfig),
		fx.Provide(NewServer),
		fx.Provide(func(p runtimeProviderParams[E]) *Runtime[E] {
			return NewRuntime(p.Env, p.Registry, RuntimeParams{
				SecretReader: p.SecretReader,
				Settings:     p.Settings,
				Transport:    p.Transport,
			})
		}),
		fx.Invoke(startServerHook),
		fx.Invoke(routing),
	}...)

	return append(baseOpts, cfg.FxOptions...)
}

// NewApp creates a batteries-included app with dependency injection.
//
// The routing function can request any types that are provided via fx options.
// At minimum, it should accept *mphttp.Registry for routing.
//
// Example:
//
//	mpapp.NewApp[Env](func(reg *mphttp.Registry, h *Handlers) {
//	    reg.HandleFunc(mphttp.Descriptor{
//	        Method: mphttp.MethodGet, Pattern: "/items", Kind: mphttp.ResponseJSON, Name: "list-items",
//	    }, h.ListItems)
//	},
//	    mpapp.WithAWSClient(func(cfg aws.Config) *dynamodb.Client {
//	        return dynamodb.NewFromConfig(cfg)
//	    }),
//	    mpapp.WithFx(fx.Provide(NewHandlers)),
//	).Run()
func NewApp[E Environment](routing any, opts ...Option) *App {
	return &App{app: fx.New(FxOptions[E](routing, opts...)...)}
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() {
	a.app.Run()
}

// Err returns an error that occurred while building the app.
func (a *App) Err() error {
	return a.app.Err()
}

// Start starts the application and stops it once ctx is done.
func (a *App) Start(ctx context.Context) error {
	if err := a.app.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.app.StopTimeout())
	defer cancel()

	return a.app.Stop(stopCtx)
}
