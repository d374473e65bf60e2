package mpapp

import (
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/cockroachdb/errors"
	"go.uber.org/zap/zapcore"
)

// Environment defines the interface that all environment configurations must implement.
// Embed BaseEnvironment in your struct to satisfy this interface.
type Environment interface {
	base() BaseEnvironment
}

// BaseEnvironment contains the environment variables every mphttp application reads.
// Embed this in your custom environment struct.
type BaseEnvironment struct {
	Addr        string        `env:"MP_ADDR" envDefault:":8080"`
	ServiceName string        `env:"MP_SERVICE_NAME,required"`
	ServerName  string        `env:"MP_SERVER_NAME" envDefault:"mphttp"`
	HealthPath  string        `env:"MP_HEALTH_PATH" envDefault:"/health"`
	LogLevel    zapcore.Level `env:"MP_LOG_LEVEL" envDefault:"info"`
	// Development makes response writers panic on framing mistakes.
	Development    bool   `env:"MP_DEVELOPMENT"`
	DiscloseFaults bool   `env:"MP_DISCLOSE_FAULTS" envDefault:"true"`
	OtelExporter   string `env:"MP_OTEL_EXPORTER" envDefault:"stdout"`
	AWSRegion      string `env:"AWS_REGION,required"`

	MaxConns          int           `env:"MP_MAX_CONNS" envDefault:"256"`
	MaxHeaderBytes    int           `env:"MP_MAX_HEADER_BYTES" envDefault:"16384"`
	ReadHeaderTimeout time.Duration `env:"MP_READ_HEADER_TIMEOUT" envDefault:"10s"`
	IdleTimeout       time.Duration `env:"MP_IDLE_TIMEOUT" envDefault:"60s"`
	WriteTimeout      time.Duration `env:"MP_WRITE_TIMEOUT" envDefault:"5m"`
	RequestTimeout    time.Duration `env:"MP_REQUEST_TIMEOUT" envDefault:"30s"`

	// TemplateBundle is a YAML template bundle loaded next to the built-in error pages.
	TemplateBundle string `env:"MP_TEMPLATE_BUNDLE"`
	// APIKeySecret names the Secrets Manager secret holding the API key. Empty disables the check.
	APIKeySecret string `env:"MP_API_KEY_SECRET"`
	// APIKeyPath is the gjson path of the key inside a JSON secret.
	APIKeyPath string `env:"MP_API_KEY_PATH"`
	// SettingsPrefix is the SSM parameter path holding runtime settings. Empty disables them.
	SettingsPrefix  string        `env:"MP_SETTINGS_PREFIX"`
	SettingsRefresh time.Duration `env:"MP_SETTINGS_REFRESH" envDefault:"1m"`
	// AccessLogQueueURL receives one message per served request when set.
	AccessLogQueueURL string `env:"MP_ACCESS_LOG_QUEUE_URL"`
}

func (e BaseEnvironment) base() BaseEnvironment { return e }

var _ Environment = BaseEnvironment{}

// ParseEnv parses environment variables into the given Environment type.
func ParseEnv[E Environment]() func() (E, error) {
	return func() (e E, err error) {
		if err := env.Parse(&e); err != nil {
			return e, errors.Wrap(err, "failed to parse environment")
		}

		return e, nil
	}
}
