package middleware

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"mini-bidi/message"
)

const tracerName = "mini-bidi/middleware"

var (
	AttrMethod    = attribute.Key("bidi.method")
	AttrCommandID = attribute.Key("bidi.command.id")
	AttrErrorCode = attribute.Key("bidi.error.code")
)

// TracingMiddleware opens one client span per command. A nil provider uses
// the global one.
func TracingMiddleware(tp trace.TracerProvider) Middleware {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	tracer := tp.Tracer(tracerName)
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, cmd *message.Command) (*message.Inbound, error) {
			ctx, span := tracer.Start(ctx, cmd.Method,
				trace.WithSpanKind(trace.SpanKindClient),
				trace.WithAttributes(
					attribute.String("rpc.system", "webdriver-bidi"),
					AttrMethod.String(cmd.Method),
				),
			)
			defer span.End()

			resp, err := next(ctx, cmd)
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				return resp, err
			}
			if resp == nil {
				return nil, nil
			}
			if id, ok := resp.ID(); ok {
				span.SetAttributes(AttrCommandID.Int64(id))
			}
			if resp.Error != nil {
				span.SetAttributes(AttrErrorCode.String(resp.Error.Code))
				span.SetStatus(codes.Error, resp.Error.Message)
			}
			return resp, nil
		}
	}
}
