// Package mpapp provides a batteries-included application around an mphttp server.
//
// # Overview
//
// mpapp handles the boilerplate of running an mphttp server as a service:
// environment parsing, structured logging, OpenTelemetry tracing, AWS SDK clients,
// runtime settings and graceful shutdown. A complete application can be created in a single call:
//
//	mpapp.NewApp[Env](func(reg *mphttp.Registry, h *Handlers) {
//	    reg.HandleFunc(mphttp.Descriptor{
//	        Method: mphttp.MethodGet, Pattern: "/items/{id}", Kind: mphttp.ResponseJSON, Name: "get-item",
//	    }, h.GetItem)
//	},
//	    mpapp.WithAWSClient(dynamodb.NewFromConfig),
//	    mpapp.WithFx(fx.Provide(NewHandlers)),
//	).Run()
//
// # Environment Configuration
//
// Define your environment by embedding [BaseEnvironment]:
//
//	type Env struct {
//	    mpapp.BaseEnvironment
//	    LibraryTable string `env:"MP_LIBRARY_TABLE,required"`
//	}
//
// BaseEnvironment provides the following environment variables:
//
//	| Variable                 | Required | Default | Description                                        |
//	|--------------------------|----------|---------|----------------------------------------------------|
//	| MP_SERVICE_NAME          | Yes      | -       | Service name for logging and tracing               |
//	| AWS_REGION               | Yes      | -       | Region of the AWS clients                          |
//	| MP_ADDR                  | No       | :8080   | Address the server listens on                      |
//	| MP_SERVER_NAME           | No       | mphttp  | Value of the Server header and error pages         |
//	| MP_HEALTH_PATH           | No       | /health | Health check path, never traced or authenticated   |
//	| MP_LOG_LEVEL             | No       | info    | Log level (debug, info, warn, error)               |
//	| MP_DEVELOPMENT           | No       | false   | Panic on response framing mistakes                 |
//	| MP_DISCLOSE_FAULTS       | No       | true    | Show client fault messages on error pages          |
//	| MP_OTEL_EXPORTER         | No       | stdout  | Trace exporter: "stdout", "xrayudp" or "none"      |
//	| MP_MAX_CONNS             | No       | 256     | Connections served at once                         |
//	| MP_MAX_HEADER_BYTES      | No       | 16384   | Limit of the request line and headers              |
//	| MP_READ_HEADER_TIMEOUT   | No       | 10s     | Time to read a request head                        |
//	| MP_IDLE_TIMEOUT          | No       | 60s     | Time a kept-alive connection may idle              |
//	| MP_WRITE_TIMEOUT         | No       | 5m      | Time to write a response, including streams        |
//	| MP_REQUEST_TIMEOUT       | No       | 30s     | Budget of a handler                                |
//	| MP_TEMPLATE_BUNDLE       | No       | -       | YAML template bundle to load                       |
//	| MP_API_KEY_SECRET        | No       | -       | Secret holding the API key, enables the key check  |
//	| MP_API_KEY_PATH          | No       | -       | gjson path of the key inside the secret            |
//	| MP_SETTINGS_PREFIX       | No       | -       | SSM path of the runtime settings                   |
//	| MP_SETTINGS_REFRESH      | No       | 1m      | Interval between settings refreshes                |
//	| MP_ACCESS_LOG_QUEUE_URL  | No       | -       | SQS queue receiving access records                 |
//
// # Runtime
//
// [Runtime] provides access to app-scoped dependencies and should be injected into
// handler constructors via fx:
//
//   - [Runtime.Env] returns the typed environment configuration
//   - [Runtime.Reverse] generates paths for named routes
//   - [Runtime.Secret] retrieves secrets from AWS Secrets Manager
//   - [Runtime.Setting] reads a runtime setting
//   - [Runtime.NewRequest] builds traced outgoing requests
//
// # Context
//
// Use the package-level functions to access request-scoped values:
//
//   - [Log] - request and trace correlated zap logger
//   - [RequestID] - id of the request, echoed in the X-Request-Id header
//   - [Span] - current OpenTelemetry span for custom instrumentation
//   - [RequestRemainingTime] - time left before the request deadline
//
// # Middleware
//
// Every app runs the same middleware, outermost first: request id and logger, tracing, the request
// deadline and, when MP_API_KEY_SECRET is set, the API key check. Before routing, the maintenance
// rule answers with 503 while the "maintenance" setting is not empty.
//
// # Testing
//
// The mpapptest package builds the same graph on top of fxtest.
package mpapp
