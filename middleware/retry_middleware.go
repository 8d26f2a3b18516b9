package middleware

import (
	"context"
	"errors"
	"time"

	"mini-bidi/log"
	"mini-bidi/message"
)

// RetryMiddleware reissues a command that timed out, backing off
// exponentially from baseDelay. Remote errors and closed connections are
// never retried.
func RetryMiddleware(maxRetries int, baseDelay time.Duration, logger *log.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, cmd *message.Command) (*message.Inbound, error) {
			resp, err := next(ctx, cmd)
			for i := 0; i < maxRetries; i++ {
				if !errors.Is(err, message.ErrTimeout) {
					return resp, err
				}
				delay := baseDelay * time.Duration(1<<i)
				logger.Infof("middleware", "retry %d for %s in %s: %v", i+1, cmd.Method, delay, err)

				timer := time.NewTimer(delay)
				select {
				case <-ctx.Done():
					timer.Stop()
					return nil, err
				case <-timer.C:
				}
				resp, err = next(ctx, cmd)
			}
			return resp, err
		}
	}
}
