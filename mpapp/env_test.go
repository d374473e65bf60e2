package mpapp_test

import (
	"testing"
	"time"

	"github.com/advdv/mphttp/mpapp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestParseEnvDefaults(t *testing.T) {
	t.Setenv("MP_SERVICE_NAME", "media")
	t.Setenv("AWS_REGION", "eu-west-1")

	env, err := mpapp.ParseEnv[TestEnv]()()
	require.NoError(t, err)

	assert.Equal(t, ":8080", env.Addr)
	assert.Equal(t, "mphttp", env.ServerName)
	assert.Equal(t, "/health", env.HealthPath)
	assert.Equal(t, zapcore.InfoLevel, env.LogLevel)
	assert.True(t, env.DiscloseFaults)
	assert.Equal(t, 256, env.MaxConns)
	assert.Equal(t, 16384, env.MaxHeaderBytes)
	assert.Equal(t, 5*time.Minute, env.WriteTimeout)
	assert.Equal(t, 30*time.Second, env.RequestTimeout)
	assert.Equal(t, time.Minute, env.SettingsRefresh)
	assert.Empty(t, env.APIKeySecret)
	assert.Equal(t, "demo", env.LibraryName)
}

func TestParseEnvOverrides(t *testing.T) {
	t.Setenv("MP_SERVICE_NAME", "media")
	t.Setenv("AWS_REGION", "eu-west-1")
	t.Setenv("MP_LOG_LEVEL", "debug")
	t.Setenv("MP_REQUEST_TIMEOUT", "1500ms")
	t.Setenv("MP_DISCLOSE_FAULTS", "false")

	env, err := mpapp.ParseEnv[TestEnv]()()
	require.NoError(t, err)

	assert.Equal(t, zapcore.DebugLevel, env.LogLevel)
	assert.Equal(t, 1500*time.Millisecond, env.RequestTimeout)
	assert.False(t, env.DiscloseFaults)
}

func TestParseEnvRequired(t *testing.T) {
	t.Setenv("AWS_REGION", "eu-west-1")

	_, err := mpapp.ParseEnv[TestEnv]()()
	require.ErrorContains(t, err, "MP_SERVICE_NAME")
}
