package mpapp

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/advdv/mphttp"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

// MaintenanceSetting is the name of the setting that, when not empty, puts the server in
// maintenance mode. Its value is shown to clients.
const MaintenanceSetting = "maintenance"

// SSMAPI is the part of the SSM client used by [Settings].
type SSMAPI interface {
	GetParametersByPath(
		ctx context.Context, in *ssm.GetParametersByPathInput, opts ...func(*ssm.Options),
	) (*ssm.GetParametersByPathOutput, error)
}

// Settings are deployment toggles read from SSM parameters below a prefix. They can change while
// the server runs, see [Settings.Refresh]. A Settings without client holds no values.
type Settings struct {
	client SSMAPI
	prefix string

	mu     sync.RWMutex
	values map[string]string
}

// NewSettings inits settings for the parameters below prefix.
func NewSettings(client SSMAPI, prefix string) *Settings {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	return &Settings{client: client, prefix: prefix, values: map[string]string{}}
}

// Refresh reloads all parameters. On error the previous values are kept.
func (s *Settings) Refresh(ctx context.Context) error {
	if s.client == nil {
		return nil
	}

	values := map[string]string{}
	pages := ssm.NewGetParametersByPathPaginator(s.client, &ssm.GetParametersByPathInput{
		Path:           aws.String(s.prefix),
		Recursive:      aws.Bool(true),
		WithDecryption: aws.Bool(true),
	})

	for pages.HasMorePages() {
		page, err := pages.NextPage(ctx)
		if err != nil {
			return errors.Wrapf(err, "read settings below %q", s.prefix)
		}

		for _, p := range page.Parameters {
			values[strings.TrimPrefix(aws.ToString(p.Name), s.prefix)] = aws.ToString(p.Value)
		}
	}

	s.mu.Lock()
	s.values = values
	s.mu.Unlock()

	return nil
}

// Run refreshes the settings every interval until ctx is done. Failures are logged.
func (s *Settings) Run(ctx context.Context, every time.Duration, logger *zap.Logger) {
	if s.client == nil || every <= 0 {
		return
	}

	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Refresh(ctx); err != nil {
				logger.Warn("failed to refresh settings", zap.Error(err))
			}
		}
	}
}

// Get returns the value of the setting with the given name, relative to the prefix.
func (s *Settings) Get(name string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.values[name]

	return v, ok
}

// MaintenanceRule answers every request except those to exempt paths with 503 while the
// maintenance setting is not empty.
func (s *Settings) MaintenanceRule(exempt ...string) mphttp.Rule {
	return mphttp.RuleFunc(func(req *mphttp.Request, _ *mphttp.ResponseWriter) (bool, error) {
		msg, _ := s.Get(MaintenanceSetting)
		if msg == "" {
			return false, nil
		}

		for _, p := range exempt {
			if req.Path() == p {
				return false, nil
			}
		}

		return true, mphttp.ServiceUnavailable(msg, nil)
	})
}
