package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/advdv/mphttp"
	"github.com/advdv/mphttp/apidoc"
	"github.com/advdv/mphttp/internal/mediaapi"
	"github.com/advdv/mphttp/mpapp"
	"github.com/advdv/mphttp/render"
	"github.com/advdv/mphttp/source"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

// Env configures where the media comes from. Without any source the API answers with 503.
type Env struct {
	mpapp.BaseEnvironment

	// LibraryTable is a DynamoDB table of media items.
	LibraryTable string `env:"MP_LIBRARY_TABLE"`
	// LibraryFile is a YAML file of media items, used when no table is set.
	LibraryFile string `env:"MP_LIBRARY_FILE"`
	// MediaBucket holds the media bytes in S3, below MediaPrefix.
	MediaBucket string `env:"MP_MEDIA_BUCKET"`
	MediaPrefix string `env:"MP_MEDIA_PREFIX"`
	// MediaRoot holds the media bytes on disk, used when no bucket is set.
	MediaRoot string `env:"MP_MEDIA_ROOT"`
	// RemoteMediaURL is another media server that serves as library and media store when nothing
	// else is configured.
	RemoteMediaURL string `env:"MP_REMOTE_MEDIA_URL"`
	// StaticRoot is served below /static/.
	StaticRoot string `env:"MP_STATIC_ROOT"`
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the media API until interrupted",
		Long: `Serve the media API until interrupted.

The server is configured through environment variables, e.g.:

  MP_SERVICE_NAME=media AWS_REGION=eu-west-1 MP_MEDIA_ROOT=./media MP_LIBRARY_FILE=library.yaml mpserve serve`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			app := mpapp.NewApp[Env](routing, appOptions()...)
			if err := app.Err(); err != nil {
				return err
			}

			return app.Start(ctx)
		},
	}
}

func appOptions() []mpapp.Option {
	return []mpapp.Option{
		mpapp.WithAWSClient(func(cfg aws.Config) *dynamodb.Client { return dynamodb.NewFromConfig(cfg) }),
		mpapp.WithAWSClient(func(cfg aws.Config) *s3.Client { return s3.NewFromConfig(cfg) }),
		mpapp.WithFx(fx.Provide(newAPI)),
	}
}

func routing(reg *mphttp.Registry, api *mediaapi.API) {
	api.Register(reg)
}

type apiParams struct {
	fx.In

	Lc        fx.Lifecycle
	Env       Env
	Dynamo    *dynamodb.Client
	S3        *s3.Client
	Transport http.RoundTripper
	Templates *render.Manager
}

func newAPI(p apiParams) (*mediaapi.API, error) {
	if err := mediaapi.RegisterTemplates(p.Templates); err != nil {
		return nil, err
	}

	srcs, err := openSources(p.Env, p.Dynamo, p.S3, p.Transport)
	if err != nil {
		return nil, err
	}

	p.Lc.Append(fx.Hook{OnStop: func(context.Context) error { return srcs.Close() }})

	return mediaapi.New(mediaapi.Config{
		Library:    srcs.library,
		Media:      srcs.media,
		Static:     srcs.static,
		ServerName: p.Env.ServerName,
		Info:       apidoc.Info{Title: p.Env.ServiceName, Version: version},
	}), nil
}

type sources struct {
	library source.Library
	media   source.ByteSource
	static  source.ByteSource
	closers []func() error
}

func (s *sources) Close() error {
	var errs []error
	for _, c := range s.closers {
		errs = append(errs, c())
	}

	return errors.Join(errs...)
}

// openSources picks the library and media store from the environment.
func openSources(env Env, dynamo source.DynamoAPI, s3c source.S3API, transport http.RoundTripper) (*sources, error) {
	srcs := &sources{}

	var remote *source.Remote
	if env.RemoteMediaURL != "" {
		remote = source.NewRemote(env.RemoteMediaURL, transport)
	}

	switch {
	case env.LibraryTable != "":
		srcs.library = source.NewDynamoLibrary(dynamo, env.LibraryTable)
	case env.LibraryFile != "":
		lib, err := loadLibraryFile(env.LibraryFile)
		if err != nil {
			return nil, err
		}

		srcs.library = lib
	case remote != nil:
		srcs.library = remote
	}

	switch {
	case env.MediaBucket != "":
		srcs.media = source.NewS3Source(s3c, env.MediaBucket, env.MediaPrefix)
	case env.MediaRoot != "":
		fs, err := source.NewFilesystem(env.MediaRoot)
		if err != nil {
			return nil, err
		}

		srcs.media = fs
		srcs.closers = append(srcs.closers, fs.Close)
	case remote != nil:
		srcs.media = remote
	}

	if env.StaticRoot != "" {
		fs, err := source.NewFilesystem(env.StaticRoot)
		if err != nil {
			return nil, errors.Join(err, srcs.Close())
		}

		srcs.static = fs
		srcs.closers = append(srcs.closers, fs.Close)
	}

	return srcs, nil
}

func loadLibraryFile(path string) (*source.MemoryLibrary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open library file")
	}
	defer f.Close()

	lib, err := source.LoadLibrary(f)
	if err != nil {
		return nil, errors.Wrapf(err, "load library file %q", path)
	}

	return lib, nil
}
