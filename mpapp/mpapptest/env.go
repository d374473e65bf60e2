package mpapptest

import (
	"strconv"
	"testing"
)

// Env provides a chainable builder for setting [mpapp.BaseEnvironment] env vars
// via t.Setenv. Create one with [SetBaseEnv].
type Env struct {
	t testing.TB
}

// SetBaseEnv sets all [mpapp.BaseEnvironment] env vars to sensible test defaults.
// Port is required because each test must use a unique port to avoid collisions.
//
// Defaults:
//   - MP_ADDR: "127.0.0.1:<port>"
//   - MP_SERVICE_NAME: "test"
//   - MP_OTEL_EXPORTER: "none"
//   - MP_DEVELOPMENT: "true"
//   - AWS_REGION: "us-east-1"
//   - AWS_ACCESS_KEY_ID: "test"
//   - AWS_SECRET_ACCESS_KEY: "test"
//
// Use the returned [Env] to override individual values:
//
//	mpapptest.SetBaseEnv(t, 18085).HealthPath("/ready").RequestTimeout("2s")
func SetBaseEnv(t testing.TB, port int) *Env {
	t.Helper()
	t.Setenv("MP_ADDR", "127.0.0.1:"+strconv.Itoa(port))
	t.Setenv("MP_SERVICE_NAME", "test")
	t.Setenv("MP_OTEL_EXPORTER", "none")
	t.Setenv("MP_DEVELOPMENT", "true")
	t.Setenv("AWS_REGION", "us-east-1")
	t.Setenv("AWS_ACCESS_KEY_ID", "test")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "test")
	return &Env{t: t}
}

// ServiceName overrides MP_SERVICE_NAME.
func (e *Env) ServiceName(name string) *Env {
	e.t.Helper()
	e.t.Setenv("MP_SERVICE_NAME", name)
	return e
}

// HealthPath overrides MP_HEALTH_PATH.
func (e *Env) HealthPath(path string) *Env {
	e.t.Helper()
	e.t.Setenv("MP_HEALTH_PATH", path)
	return e
}

// AWSRegion overrides AWS_REGION.
func (e *Env) AWSRegion(region string) *Env {
	e.t.Helper()
	e.t.Setenv("AWS_REGION", region)
	return e
}

// RequestTimeout overrides MP_REQUEST_TIMEOUT.
func (e *Env) RequestTimeout(d string) *Env {
	e.t.Helper()
	e.t.Setenv("MP_REQUEST_TIMEOUT", d)
	return e
}

// TemplateBundle overrides MP_TEMPLATE_BUNDLE.
func (e *Env) TemplateBundle(path string) *Env {
	e.t.Helper()
	e.t.Setenv("MP_TEMPLATE_BUNDLE", path)
	return e
}

// DiscloseFaults overrides MP_DISCLOSE_FAULTS.
func (e *Env) DiscloseFaults(disclose bool) *Env {
	e.t.Helper()
	e.t.Setenv("MP_DISCLOSE_FAULTS", strconv.FormatBool(disclose))
	return e
}
