package middleware

import (
	"context"
	"time"

	"mini-bidi/log"
	"mini-bidi/message"
)

func LoggingMiddleware(logger *log.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, cmd *message.Command) (*message.Inbound, error) {
			start := time.Now()
			resp, err := next(ctx, cmd)
			elapsed := time.Since(start)
			switch {
			case err != nil:
				logger.Warnf("middleware", "%s failed after %s: %v", cmd.Method, elapsed, err)
			case resp != nil && resp.Error != nil:
				logger.Debugf("middleware", "%s rejected after %s: %v", cmd.Method, elapsed, resp.Error)
			default:
				logger.Debugf("middleware", "%s done in %s", cmd.Method, elapsed)
			}
			return resp, err
		}
	}
}
