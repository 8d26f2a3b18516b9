// Package biditest wires a Transport to an in-process remote end for tests
// of the BiDi modules.
package biditest

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"mini-bidi/connection"
	"mini-bidi/event"
	"mini-bidi/log"
	"mini-bidi/server"
	"mini-bidi/transport"
)

type Env struct {
	Server    *server.Server
	Session   *server.Session
	Transport *transport.Transport
	Events    *event.Registry
	URL       string
}

// Start serves a fresh remote end over httptest and connects a Transport to
// it. Everything is torn down when t finishes.
func Start(t testing.TB) *Env {
	t.Helper()
	srv := server.NewServer(log.NewNullLogger())
	sessions := make(chan *server.Session, 1)
	srv.OnSession(func(s *server.Session) { sessions <- s })
	ts := httptest.NewServer(srv)
	t.Cleanup(func() {
		ts.Close()
		_ = srv.Shutdown(time.Second)
	})

	env := &Env{
		Server: srv,
		Events: event.NewRegistry(),
		URL:    "ws" + strings.TrimPrefix(ts.URL, "http"),
	}
	env.Transport = transport.New(connection.NewWebSocketConnection(connection.Options{}), env.Events,
		transport.Options{Timeout: 5 * time.Second, Logger: log.NewNullLogger()})
	if err := env.Transport.Start(context.Background(), env.URL); err != nil {
		t.Fatalf("start transport: %v", err)
	}
	t.Cleanup(func() {
		_ = env.Transport.Stop()
		<-env.Transport.Done()
	})

	select {
	case env.Session = <-sessions:
	case <-time.After(2 * time.Second):
		t.Fatal("remote end saw no session")
	}
	return env
}

// Reply answers method with a fixed result.
func (e *Env) Reply(method string, result any) {
	e.Server.Handle(method, func(context.Context, *server.Session, json.RawMessage) (any, error) {
		return result, nil
	})
}

// Capture answers method with result and hands over the params of every
// call.
func (e *Env) Capture(method string, result any) <-chan json.RawMessage {
	ch := make(chan json.RawMessage, 16)
	e.Server.Handle(method, func(_ context.Context, _ *server.Session, params json.RawMessage) (any, error) {
		ch <- params
		return result, nil
	})
	return ch
}

// Await waits for one value on ch.
func Await[T any](t testing.TB, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		var zero T
		return zero
	}
}
