package middleware

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"mini-bidi/message"
)

// RateLimitMiddleware paces outgoing commands with a token bucket. Callers
// wait for a token instead of being rejected; a context that ends first
// fails the command.
func RateLimitMiddleware(r float64, burst int) Middleware {
	limiter := rate.NewLimiter(rate.Limit(r), burst)
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, cmd *message.Command) (*message.Inbound, error) {
			if err := limiter.Wait(ctx); err != nil {
				return nil, fmt.Errorf("rate limit %s: %w", cmd.Method, err)
			}
			return next(ctx, cmd)
		}
	}
}
