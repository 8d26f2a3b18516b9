package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"mini-bidi/log"
	"mini-bidi/message"
)

func success(id int64) *message.Inbound {
	return &message.Inbound{
		Type:     message.TypeSuccess,
		Response: &message.Response{ID: id, Result: json.RawMessage(`{"ready":true}`)},
	}
}

// echoHandler answers every command at once.
func echoHandler(ctx context.Context, cmd *message.Command) (*message.Inbound, error) {
	return success(cmd.ID), nil
}

// slowHandler answers after 200ms unless ctx ends first.
func slowHandler(ctx context.Context, cmd *message.Command) (*message.Inbound, error) {
	select {
	case <-time.After(200 * time.Millisecond):
		return success(cmd.ID), nil
	case <-ctx.Done():
		return nil, message.ErrTimeout
	}
}

func rejectHandler(ctx context.Context, cmd *message.Command) (*message.Inbound, error) {
	id := cmd.ID
	return &message.Inbound{
		Type:  message.TypeError,
		Error: &message.ErrorResponse{ID: &id, Code: "no such frame", Message: "gone"},
	}, nil
}

func TestLogging(t *testing.T) {
	var buf bytes.Buffer
	logger, err := log.NewFromLevel(&buf, "debug", "")
	require.NoError(t, err)

	handler := LoggingMiddleware(logger)(echoHandler)
	resp, err := handler(context.Background(), &message.Command{ID: 1, Method: "session.status"})
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.Contains(t, buf.String(), "session.status done in")

	buf.Reset()
	_, err = LoggingMiddleware(logger)(rejectHandler)(context.Background(), &message.Command{ID: 2, Method: "browsingContext.close"})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "no such frame: gone")
}

func TestTimeoutPass(t *testing.T) {
	handler := TimeoutMiddleware(500 * time.Millisecond)(echoHandler)
	resp, err := handler(context.Background(), &message.Command{ID: 1, Method: "session.status"})
	require.NoError(t, err)
	assert.Equal(t, message.TypeSuccess, resp.Type)
}

func TestTimeoutExceeded(t *testing.T) {
	handler := TimeoutMiddleware(50 * time.Millisecond)(slowHandler)
	start := time.Now()
	_, err := handler(context.Background(), &message.Command{ID: 1, Method: "session.status"})
	assert.ErrorIs(t, err, message.ErrTimeout)
	assert.Less(t, time.Since(start), 190*time.Millisecond)
}

func TestTimeoutCallerCancel(t *testing.T) {
	blocked := func(ctx context.Context, cmd *message.Command) (*message.Inbound, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(10*time.Millisecond, cancel)

	_, err := TimeoutMiddleware(time.Minute)(blocked)(ctx, &message.Command{ID: 1, Method: "session.status"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, message.ErrTimeout)
}

func TestRetryOnTimeout(t *testing.T) {
	var calls atomic.Int32
	flaky := func(ctx context.Context, cmd *message.Command) (*message.Inbound, error) {
		if calls.Add(1) < 3 {
			return nil, message.ErrTimeout
		}
		return success(cmd.ID), nil
	}

	handler := RetryMiddleware(3, time.Millisecond, log.NewNullLogger())(flaky)
	resp, err := handler(context.Background(), &message.Command{ID: 1, Method: "session.status"})
	require.NoError(t, err)
	assert.NotNil(t, resp)
	assert.EqualValues(t, 3, calls.Load())
}

func TestRetryGivesUp(t *testing.T) {
	var calls atomic.Int32
	never := func(ctx context.Context, cmd *message.Command) (*message.Inbound, error) {
		calls.Add(1)
		return nil, message.ErrTimeout
	}
	_, err := RetryMiddleware(2, time.Millisecond, nil)(never)(context.Background(), &message.Command{Method: "a.b"})
	assert.ErrorIs(t, err, message.ErrTimeout)
	assert.EqualValues(t, 3, calls.Load())
}

func TestRetrySkipsOtherErrors(t *testing.T) {
	var calls atomic.Int32
	closed := func(ctx context.Context, cmd *message.Command) (*message.Inbound, error) {
		calls.Add(1)
		return nil, message.ErrConnectionClosed
	}
	_, err := RetryMiddleware(5, time.Millisecond, nil)(closed)(context.Background(), &message.Command{Method: "a.b"})
	assert.ErrorIs(t, err, message.ErrConnectionClosed)
	assert.EqualValues(t, 1, calls.Load())

	calls.Store(0)
	rejected := func(ctx context.Context, cmd *message.Command) (*message.Inbound, error) {
		calls.Add(1)
		return rejectHandler(ctx, cmd)
	}
	resp, err := RetryMiddleware(5, time.Millisecond, nil)(rejected)(context.Background(), &message.Command{Method: "a.b"})
	require.NoError(t, err)
	assert.NotNil(t, resp.Error)
	assert.EqualValues(t, 1, calls.Load())
}

func TestRateLimit(t *testing.T) {
	// 20 per second with a burst of 2: the third command waits about 50ms
	handler := RateLimitMiddleware(20, 2)(echoHandler)
	cmd := &message.Command{Method: "session.status"}

	start := time.Now()
	for i := 0; i < 3; i++ {
		_, err := handler(context.Background(), cmd)
		require.NoError(t, err)
	}
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestRateLimitContextEnds(t *testing.T) {
	handler := RateLimitMiddleware(0.001, 1)(echoHandler)
	cmd := &message.Command{Method: "session.status"}
	_, err := handler(context.Background(), cmd)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = handler(ctx, cmd)
	assert.Error(t, err)
}

func TestTracing(t *testing.T) {
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	mw := TracingMiddleware(tp)
	_, err := mw(echoHandler)(context.Background(), &message.Command{ID: 4, Method: "session.status"})
	require.NoError(t, err)
	_, err = mw(rejectHandler)(context.Background(), &message.Command{ID: 5, Method: "browsingContext.close"})
	require.NoError(t, err)
	failing := func(context.Context, *message.Command) (*message.Inbound, error) {
		return nil, errors.New("boom")
	}
	_, err = mw(failing)(context.Background(), &message.Command{ID: 6, Method: "script.evaluate"})
	require.Error(t, err)

	spans := exp.GetSpans()
	require.Len(t, spans, 3)

	assert.Equal(t, "session.status", spans[0].Name)
	assert.Equal(t, codes.Unset, spans[0].Status.Code)
	assert.Contains(t, spans[0].Attributes, AttrCommandID.Int64(4))

	assert.Equal(t, codes.Error, spans[1].Status.Code)
	assert.Contains(t, spans[1].Attributes, AttrErrorCode.String("no such frame"))

	assert.Equal(t, codes.Error, spans[2].Status.Code)
	assert.Equal(t, "boom", spans[2].Status.Description)
	assert.Contains(t, spans[2].Attributes, attribute.String("rpc.system", "webdriver-bidi"))
}

func TestChain(t *testing.T) {
	var order []string
	mark := func(name string) Middleware {
		return func(next HandlerFunc) HandlerFunc {
			return func(ctx context.Context, cmd *message.Command) (*message.Inbound, error) {
				order = append(order, name)
				return next(ctx, cmd)
			}
		}
	}

	handler := Chain(mark("outer"), TimeoutMiddleware(500*time.Millisecond), mark("inner"))(echoHandler)
	resp, err := handler(context.Background(), &message.Command{ID: 1, Method: "session.status"})
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, []string{"outer", "inner"}, order)
}
