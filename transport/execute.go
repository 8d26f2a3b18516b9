package transport

import (
	"context"
	"fmt"

	"mini-bidi/codec"
	"mini-bidi/message"
)

// Commander issues one command and returns its raw response. *Transport
// implements it; modules depend on Commander so they can be tested without a
// connection.
type Commander interface {
	ExecuteCommand(ctx context.Context, method string, params any, opts ...CallOption) (*message.Inbound, error)
}

// Result is the outcome of a command the remote end answered. Exactly one of
// Value (on success) and Error is meaningful.
type Result[T any] struct {
	Value T
	Error *message.ErrorResponse
}

// OK reports whether the remote end accepted the command.
func (r Result[T]) OK() bool {
	return r.Error == nil
}

// Unwrap returns Value, or Error as a Go error when the command failed
// remotely.
func (r Result[T]) Unwrap() (T, error) {
	if r.Error != nil {
		var zero T
		return zero, r.Error
	}
	return r.Value, nil
}

// Execute runs method and decodes a success result with dec. A remote error
// is data in Result.Error; err covers timeouts, closed connections and
// results that fail to decode.
func Execute[T any](ctx context.Context, c Commander, method string, params any, dec codec.Decoder[T], opts ...CallOption) (Result[T], error) {
	var res Result[T]
	msg, err := c.ExecuteCommand(ctx, method, params, opts...)
	if err != nil {
		return res, err
	}
	switch {
	case msg == nil:
		return res, fmt.Errorf("%s: empty response", method)
	case msg.Error != nil:
		res.Error = msg.Error
		return res, nil
	case msg.Response == nil:
		return res, fmt.Errorf("%s: unexpected %s message", method, msg.Type)
	}

	v, err := dec(msg.Response.Result)
	if err != nil {
		return res, fmt.Errorf("%s result: %w", method, err)
	}
	res.Value = v
	return res, nil
}

// Call is Execute folded into one error: remote errors come back as
// *message.ErrorResponse.
func Call[T any](ctx context.Context, c Commander, method string, params any, dec codec.Decoder[T], opts ...CallOption) (T, error) {
	res, err := Execute(ctx, c, method, params, dec, opts...)
	if err != nil {
		var zero T
		return zero, err
	}
	return res.Unwrap()
}
