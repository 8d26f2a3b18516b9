package middleware

import (
	"context"
	"errors"
	"time"

	"mini-bidi/message"
)

// TimeoutMiddleware bounds the whole round trip, including any retries below
// it in the chain. The pending entry is removed by the transport once ctx
// expires. Only an expired deadline is reported as ErrTimeout; a cancelled
// parent context comes back as its own error.
func TimeoutMiddleware(timeout time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, cmd *message.Command) (*message.Inbound, error) {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			type result struct {
				resp *message.Inbound
				err  error
			}
			done := make(chan result, 1)
			go func() {
				resp, err := next(ctx, cmd)
				done <- result{resp, err}
			}()

			select {
			case r := <-done:
				return r.resp, r.err
			case <-ctx.Done():
				if errors.Is(ctx.Err(), context.DeadlineExceeded) {
					return nil, message.ErrTimeout
				}
				return nil, ctx.Err()
			}
		}
	}
}
