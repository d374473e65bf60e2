package mpapp

import (
	"context"
	"time"

	"github.com/advdv/mphttp"
	"github.com/cockroachdb/errors"
)

// DeadlineHeader lets a client shorten the time budget of its request. The value is a Go duration
// such as "1500ms". Budgets longer than the server's own are ignored.
const DeadlineHeader = "X-Request-Timeout"

// WithRequestDeadline returns middleware that bounds every request by timeout, or by the shorter
// budget a client asked for. Without a server timeout the client's budget applies as is. Handlers
// that give up because the deadline passed are answered with 503 Service Unavailable.
func WithRequestDeadline(timeout time.Duration) mphttp.Middleware {
	return func(next mphttp.Handler) mphttp.Handler {
		return mphttp.HandlerFunc(func(ctx context.Context, r *mphttp.Request, p mphttp.Params) (mphttp.Result, error) {
			budget := timeout
			if d, err := time.ParseDuration(r.HeaderValue(DeadlineHeader)); err == nil && d > 0 {
				if budget <= 0 || d < budget {
					budget = d
				}
			}

			if budget <= 0 {
				return next.ServeMP(ctx, r, p)
			}

			ctx, cancel := context.WithTimeout(ctx, budget)
			defer cancel()

			res, err := next.ServeMP(ctx, r, p)
			if err != nil && errors.Is(err, context.DeadlineExceeded) && mphttp.FaultOf(err).Kind() == mphttp.KindInternalError {
				return res, mphttp.ServiceUnavailable("request did not complete in time", err)
			}

			return res, err
		})
	}
}

// RequestRemainingTime returns the duration until the request context deadline.
// Returns 0 if no deadline is set or if the deadline has passed.
func RequestRemainingTime(ctx context.Context) time.Duration {
	deadline, ok := ctx.Deadline()
	if !ok {
		return 0
	}

	return max(time.Until(deadline), 0)
}
