// Package middleware wraps the command round trip of a transport.
//
// The innermost HandlerFunc assigns the id, sends the command and waits for
// its response, so a middleware that calls next twice issues two commands
// with two ids.
package middleware

import (
	"context"

	"mini-bidi/message"
)

// HandlerFunc performs one command round trip. A remote ErrorResponse comes
// back as an Inbound of type error, not as err.
type HandlerFunc func(ctx context.Context, cmd *message.Command) (*message.Inbound, error)

type Middleware func(next HandlerFunc) HandlerFunc

// Chain composes middlewares so the first one is the outermost.
func Chain(middlewares ...Middleware) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}
