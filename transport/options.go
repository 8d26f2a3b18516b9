package transport

import (
	"context"
	"time"

	"mini-bidi/log"
	"mini-bidi/metrics"
	"mini-bidi/middleware"
	"mini-bidi/protocol"
)

// DefaultTimeout bounds a command when Options.Timeout is zero.
const DefaultTimeout = 60 * time.Second

// Options configure a Transport. The zero value is usable.
type Options struct {
	Codec       protocol.CodecType
	Timeout     time.Duration // per command; negative disables the bound
	Logger      *log.Logger   // nil discards
	Metrics     *metrics.Collector
	Middlewares []middleware.Middleware
}

func (o Options) withDefaults() Options {
	if o.Timeout == 0 {
		o.Timeout = DefaultTimeout
	}
	if o.Timeout < 0 {
		o.Timeout = 0
	}
	return o
}

// CallOption tunes a single command.
type CallOption func(*callOptions)

type callOptions struct {
	timeout time.Duration
}

// WithTimeout overrides the transport timeout for one command. Zero or less
// leaves the command bounded only by its context.
func WithTimeout(d time.Duration) CallOption {
	return func(o *callOptions) {
		if d < 0 {
			d = 0
		}
		o.timeout = d
	}
}

type callOptionsKey struct{}

func withCallOptions(ctx context.Context, o callOptions) context.Context {
	return context.WithValue(ctx, callOptionsKey{}, o)
}

// callOptionsFrom recovers the options ExecuteCommand stored in ctx. Handlers
// reached without ExecuteCommand get the transport default.
func callOptionsFrom(ctx context.Context, timeout time.Duration) callOptions {
	if o, ok := ctx.Value(callOptionsKey{}).(callOptions); ok {
		return o
	}
	return callOptions{timeout: timeout}
}
