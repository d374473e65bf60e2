package mpapp

import (
	"context"
	"net"
	"os"

	"github.com/advdv/mphttp"
	"github.com/advdv/mphttp/render"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/cockroachdb/errors"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// ServerConfig holds optional configuration for the server.
type ServerConfig struct {
	// HealthHandler answers the health check, it must produce a JSON result.
	HealthHandler mphttp.HandlerFunc
	// Rules run before routing, after the maintenance rule.
	Rules []mphttp.Rule
}

// ServerParams holds the dependencies for creating a server.
type ServerParams struct {
	fx.In

	Env          Environment
	Registry     *mphttp.Registry
	Logger       *zap.Logger
	Templates    *render.Manager
	TracerProv   trace.TracerProvider
	Propagator   propagation.TextMapPropagator
	SecretReader SecretReader
	Settings     *Settings
	Sink         *SQSSink
}

// NewServer creates a server with all middleware configured. It must run before any route is
// registered since middleware cannot be added afterwards.
func NewServer(params ServerParams, cfg ServerConfig) *mphttp.Server {
	env := params.Env.base()
	reg := params.Registry

	reg.Use(withRequestDep(params.Logger))
	reg.Use(WithTracing(params.TracerProv, params.Propagator, env.HealthPath))
	reg.Use(WithRequestDeadline(env.RequestTimeout))

	if env.APIKeySecret != "" {
		reg.Use(WithAPIKey(params.SecretReader, APIKeyConfig{
			SecretID: env.APIKeySecret,
			JSONPath: env.APIKeyPath,
			Exempt:   []string{env.HealthPath},
		}))
	}

	health := cfg.HealthHandler
	if health == nil {
		health = defaultHealthHandler
	}

	reg.HandleFunc(mphttp.Descriptor{
		Method:  mphttp.MethodGet,
		Pattern: env.HealthPath,
		Kind:    mphttp.ResponseJSON,
		Name:    "health",
		Summary: "Reports that the server is up",
	}, health)

	logs := NewZapLogger(params.Logger)
	if params.Sink != nil {
		logs = mphttp.MultiLogger{logs, params.Sink}
	}

	policy := mphttp.DiscloseDefault
	if !env.DiscloseFaults {
		policy = mphttp.DiscloseNever
	}

	rules := append([]mphttp.Rule{params.Settings.MaintenanceRule(env.HealthPath)}, cfg.Rules...)
	disp := mphttp.NewDispatcher(reg, params.Templates,
		mphttp.NewFaultRenderer(params.Templates, policy, env.ServerName), logs, rules...)

	return mphttp.NewServer(mphttp.ServerConfig{
		Addr:              env.Addr,
		MaxConns:          env.MaxConns,
		MaxHeaderBytes:    env.MaxHeaderBytes,
		ReadHeaderTimeout: env.ReadHeaderTimeout,
		IdleTimeout:       env.IdleTimeout,
		WriteTimeout:      env.WriteTimeout,
		Response: mphttp.ResponseConfig{
			ServerName: env.ServerName,
			Strict:     env.Development,
		},
	}, disp, logs)
}

// NewTemplates returns the built-in error templates plus the bundle named by MP_TEMPLATE_BUNDLE.
func NewTemplates(env Environment) (*render.Manager, error) {
	m := render.NewDefaultManager()

	path := env.base().TemplateBundle
	if path == "" {
		return m, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open template bundle")
	}
	defer f.Close()

	if err := m.LoadBundle(f); err != nil {
		return nil, errors.Wrapf(err, "load template bundle %q", path)
	}

	return m, nil
}

// provideSettings reads the runtime settings on start and keeps refreshing them until stop.
func provideSettings(lc fx.Lifecycle, env Environment, cfg aws.Config, logger *zap.Logger) *Settings {
	base := env.base()
	if base.SettingsPrefix == "" {
		return NewSettings(nil, "")
	}

	settings := NewSettings(ssm.NewFromConfig(cfg), base.SettingsPrefix)
	ctx, cancel := context.WithCancel(context.Background())

	lc.Append(fx.Hook{
		OnStart: func(startCtx context.Context) error {
			if err := settings.Refresh(startCtx); err != nil {
				return err
			}

			go settings.Run(ctx, base.SettingsRefresh, logger)

			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})

	return settings
}

// provideSQSSink returns nil when no access log queue is configured.
func provideSQSSink(lc fx.Lifecycle, env Environment, cfg aws.Config, logger *zap.Logger) *SQSSink {
	queueURL := env.base().AccessLogQueueURL
	if queueURL == "" {
		return nil
	}

	sink := NewSQSSink(sqs.NewFromConfig(cfg), queueURL, logger.Named("accesslog"), 1024)
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			sink.Start()
			return nil
		},
		OnStop: sink.Close,
	})

	return sink
}

// startServerHook registers lifecycle hooks for the server. Listening happens on start so address
// errors fail the start. Templates can no longer be registered once the server runs.
func startServerHook(
	lc fx.Lifecycle, server *mphttp.Server, templates *render.Manager, env Environment, logger *zap.Logger,
) {
	addr := env.base().Addr

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			templates.Freeze()

			ln, err := (&net.ListenConfig{}).Listen(ctx, "tcp", addr)
			if err != nil {
				return errors.Wrapf(err, "listen on %q", addr)
			}

			logger.Info("starting server", zap.String("addr", ln.Addr().String()))

			go func() {
				if err := server.Serve(ln); err != nil && !errors.Is(err, mphttp.ErrServerClosed) {
					logger.Error("server error", zap.Error(err))
				}
			}()

			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("stopping server")
			return server.Shutdown(ctx)
		},
	})
}

func defaultHealthHandler(context.Context, *mphttp.Request, mphttp.Params) (mphttp.Result, error) {
	return mphttp.JSON(map[string]string{"status": "ok"}), nil
}
