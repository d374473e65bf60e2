package mpapp

import (
	"context"
	"crypto/subtle"
	"strings"

	"github.com/advdv/mphttp"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-secretsmanager-caching-go/v2/secretcache"
	"github.com/cockroachdb/errors"
	"github.com/tidwall/gjson"
)

// SecretReader abstracts secret retrieval for testability and flexibility.
type SecretReader interface {
	GetSecretString(ctx context.Context, secretID string) (string, error)
}

// AWSSecretReader implements SecretReader using AWS Secrets Manager caching client.
type AWSSecretReader struct {
	cache *secretcache.Cache
}

// NewAWSSecretReader creates a new AWSSecretReader using the provided AWS config.
func NewAWSSecretReader(cfg aws.Config) (*AWSSecretReader, error) {
	client := secretsmanager.NewFromConfig(cfg)

	cache, err := secretcache.New(
		func(c *secretcache.Cache) {
			c.Client = client
		},
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create secret cache")
	}

	return &AWSSecretReader{cache: cache}, nil
}

// GetSecretString retrieves a secret value from AWS Secrets Manager with caching.
func (r *AWSSecretReader) GetSecretString(ctx context.Context, secretID string) (string, error) {
	secret, err := r.cache.GetSecretStringWithContext(ctx, secretID)
	if err != nil {
		return "", errors.Wrapf(err, "failed to get secret %q", secretID)
	}

	return secret, nil
}

// secretFromReader retrieves a secret value, optionally extracting a JSON path.
// If jsonPath is provided, the secret is parsed as JSON and the path is extracted.
// If jsonPath is empty, the raw secret string is returned.
func secretFromReader(ctx context.Context, reader SecretReader, secretID string, jsonPath ...string) (string, error) {
	if len(jsonPath) > 1 {
		return "", errors.New("mpapp: Secret accepts at most one jsonPath argument")
	}

	secret, err := reader.GetSecretString(ctx, secretID)
	if err != nil {
		return "", err
	}

	if len(jsonPath) == 0 || jsonPath[0] == "" {
		return secret, nil
	}

	path := jsonPath[0]

	result := gjson.Get(secret, path)
	if !result.Exists() {
		return "", errors.Errorf("secret path %q not found in secret %q", path, secretID)
	}

	return result.String(), nil
}

// APIKeyHeader carries the API key of a client. "Authorization: APIKey <key>" is accepted too.
const APIKeyHeader = "X-API-Key"

// APIKeyConfig configures [WithAPIKey].
type APIKeyConfig struct {
	// SecretID names the secret holding the expected key.
	SecretID string
	// JSONPath selects the key inside a JSON secret, empty uses the raw secret.
	JSONPath string
	// Exempt paths are served without a key, e.g. the health check.
	Exempt []string
}

// WithAPIKey returns middleware that requires every request to present the API key stored in a
// secret. A missing key is answered with 401, a wrong key with 403. When the secret cannot be read
// the request is answered with 503.
func WithAPIKey(reader SecretReader, cfg APIKeyConfig) mphttp.Middleware {
	exempt := make(map[string]bool, len(cfg.Exempt))
	for _, p := range cfg.Exempt {
		exempt[p] = true
	}

	return func(next mphttp.Handler) mphttp.Handler {
		return mphttp.HandlerFunc(func(ctx context.Context, r *mphttp.Request, p mphttp.Params) (mphttp.Result, error) {
			if exempt[r.Path()] {
				return next.ServeMP(ctx, r, p)
			}

			given := presentedKey(r)
			if given == "" {
				return mphttp.Result{}, mphttp.Unauthorized("an API key is required")
			}

			want, err := secretFromReader(ctx, reader, cfg.SecretID, cfg.JSONPath)
			if err != nil {
				return mphttp.Result{}, mphttp.ServiceUnavailable("API keys cannot be verified right now", err)
			}

			if subtle.ConstantTimeCompare([]byte(given), []byte(want)) != 1 {
				return mphttp.Result{}, mphttp.Forbidden("the API key is not valid")
			}

			return next.ServeMP(ctx, r, p)
		})
	}
}

func presentedKey(r *mphttp.Request) string {
	if k := r.HeaderValue(APIKeyHeader); k != "" {
		return k
	}

	scheme, key, ok := strings.Cut(r.HeaderValue("Authorization"), " ")
	if ok && strings.EqualFold(scheme, "APIKey") {
		return strings.TrimSpace(key)
	}

	return ""
}
