package mpapp

import (
	"context"
	"testing"

	"github.com/advdv/mphttp"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockSecretReader implements SecretReader for testing.
type mockSecretReader struct {
	secrets map[string]string
	err     error
	calls   int
}

func (m *mockSecretReader) GetSecretString(_ context.Context, secretID string) (string, error) {
	m.calls++
	if m.err != nil {
		return "", m.err
	}

	secret, ok := m.secrets[secretID]
	if !ok {
		return "", errors.Errorf("secret %q not found", secretID)
	}

	return secret, nil
}

func TestSecretFromReader(t *testing.T) {
	tests := []struct {
		name      string
		secrets   map[string]string
		readerErr error
		secretID  string
		jsonPath  []string
		want      string
		wantErr   string
	}{
		{
			name:     "read raw string secret",
			secrets:  map[string]string{"my-api-key": "secret-key-value"},
			secretID: "my-api-key",
			want:     "secret-key-value",
		},
		{
			name:     "read JSON secret with simple path",
			secrets:  map[string]string{"my-db-creds": `{"database": {"password": "secret123"}}`},
			secretID: "my-db-creds",
			jsonPath: []string{"database.password"},
			want:     "secret123",
		},
		{
			name:     "read JSON secret with nested array",
			secrets:  map[string]string{"my-config": `{"items": [{"name": "first"}, {"name": "second"}]}`},
			secretID: "my-config",
			jsonPath: []string{"items.1.name"},
			want:     "second",
		},
		{
			name:     "empty path returns raw secret",
			secrets:  map[string]string{"raw": `{"a":1}`},
			secretID: "raw",
			jsonPath: []string{""},
			want:     `{"a":1}`,
		},
		{
			name:     "path not found in JSON secret",
			secrets:  map[string]string{"my-secret": `{"foo": "bar"}`},
			secretID: "my-secret",
			jsonPath: []string{"missing.path"},
			wantErr:  `secret path "missing.path" not found`,
		},
		{
			name:      "secret reader error",
			readerErr: errors.New("AWS error"),
			secretID:  "any-secret",
			wantErr:   "AWS error",
		},
		{
			name:     "too many paths",
			secretID: "any-secret",
			jsonPath: []string{"a", "b"},
			wantErr:  "at most one jsonPath",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reader := &mockSecretReader{secrets: tt.secrets, err: tt.readerErr}

			got, err := secretFromReader(context.Background(), reader, tt.secretID, tt.jsonPath...)
			if tt.wantErr != "" {
				require.ErrorContains(t, err, tt.wantErr)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRuntimeSecretWithoutReader(t *testing.T) {
	rt := NewRuntime(BaseEnvironment{}, mphttp.NewRegistry(), RuntimeParams{})

	_, err := rt.Secret(context.Background(), "x")
	require.ErrorContains(t, err, "secret reader not configured")
}

func TestWithAPIKey(t *testing.T) {
	reader := &mockSecretReader{secrets: map[string]string{"api": `{"key":"s3cret"}`}}
	mw := WithAPIKey(reader, APIKeyConfig{SecretID: "api", JSONPath: "key", Exempt: []string{"/health"}})

	tests := []struct {
		name   string
		req    *mphttp.Request
		status mphttp.Code
	}{
		{"missing key", newReq(t, "/items"), mphttp.CodeUnauthorized},
		{"wrong key", newReq(t, "/items", APIKeyHeader, "guess"), mphttp.CodeForbidden},
		{"valid header", newReq(t, "/items", APIKeyHeader, "s3cret"), mphttp.CodeUnknown},
		{"valid authorization", newReq(t, "/items", "Authorization", "apikey s3cret"), mphttp.CodeUnknown},
		{"other scheme", newReq(t, "/items", "Authorization", "Bearer s3cret"), mphttp.CodeUnauthorized},
		{"exempt path", newReq(t, "/health"), mphttp.CodeUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := serveWith(mw, okHandler, tt.req)
			assert.Equal(t, tt.status, mphttp.CodeOf(err))
		})
	}

	t.Run("unreadable secret", func(t *testing.T) {
		mw := WithAPIKey(&mockSecretReader{err: errors.New("throttled")}, APIKeyConfig{SecretID: "api"})

		_, err := serveWith(mw, okHandler, newReq(t, "/items", APIKeyHeader, "s3cret"))
		assert.Equal(t, mphttp.CodeServiceUnavailable, mphttp.CodeOf(err))
		assert.ErrorContains(t, err, "throttled", "cause is kept for the logs")
	})

	t.Run("secret is not read without a key", func(t *testing.T) {
		reader := &mockSecretReader{}
		_, _ = serveWith(WithAPIKey(reader, APIKeyConfig{SecretID: "api"}), okHandler, newReq(t, "/items"))
		assert.Zero(t, reader.calls)
	})
}
