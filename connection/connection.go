// Package connection owns the raw duplex channel to a BiDi remote end.
//
// A Connection moves opaque text frames. It knows nothing about ids, methods
// or events; the transport layer on top of it does the correlation.
//
//	Start(url) ──> dial ──> recvLoop ──> DataReceived() (arrival order)
//	SendData   ──> write lock ──> socket
//	Stop       ──> close frame ──> DataReceived() closed
//
//go:generate mockgen -package=mock -destination=mock/mock_connection.go mini-bidi/connection Connection
package connection

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

var (
	// ErrClosed is returned by SendData once the connection is stopped or
	// the remote end went away.
	ErrClosed         = errors.New("connection closed")
	ErrNotStarted     = errors.New("connection not started")
	ErrAlreadyStarted = errors.New("connection already started")
)

// LogMessage is a diagnostic raised by a connection implementation.
type LogMessage struct {
	Level     logrus.Level
	Component string
	Message   string
}

// Connection is a duplex text channel.
//
// DataReceived delivers frames in arrival order and is closed when the
// channel ends, whether by Stop or by the remote end. Err then reports why it
// ended; it stays nil after a local Stop.
type Connection interface {
	Start(ctx context.Context, url string) error
	SendData(ctx context.Context, data []byte) error
	Stop() error
	DataReceived() <-chan []byte
	OnLog(fn func(LogMessage))
	Err() error
}

// Options tune the underlying socket. Zero values fall back to defaults.
type Options struct {
	HandshakeTimeout time.Duration
	WriteBufferSize  int
	ReadLimit        int64
	PingInterval     time.Duration // 0 disables the heartbeat
	PingTimeout      time.Duration
	Header           http.Header
}

const (
	defaultHandshakeTimeout = 60 * time.Second
	defaultWriteBufferSize  = 1 << 20
	defaultReadLimit        = 64 << 20
	defaultPingTimeout      = 5 * time.Second
	closeTimeout            = 5 * time.Second
)

func (o Options) withDefaults() Options {
	if o.HandshakeTimeout <= 0 {
		o.HandshakeTimeout = defaultHandshakeTimeout
	}
	if o.WriteBufferSize <= 0 {
		o.WriteBufferSize = defaultWriteBufferSize
	}
	if o.ReadLimit <= 0 {
		o.ReadLimit = defaultReadLimit
	}
	if o.PingTimeout <= 0 {
		o.PingTimeout = defaultPingTimeout
	}
	return o
}

// base carries the lifecycle shared by every implementation.
//
// data is closed exactly once: by the receive loop when one was started, by
// Stop when Start never ran, or by Start when Stop raced a dial in flight.
type base struct {
	component string
	data      chan []byte
	done      chan struct{}
	stopOnce  sync.Once

	mu       sync.Mutex
	started  bool
	running  bool
	stopped  bool
	closer   func() error
	onLog    func(LogMessage)
	closeErr error
}

func newBase(component string) base {
	return base{
		component: component,
		data:      make(chan []byte),
		done:      make(chan struct{}),
	}
}

func (b *base) DataReceived() <-chan []byte {
	return b.data
}

func (b *base) OnLog(fn func(LogMessage)) {
	b.mu.Lock()
	b.onLog = fn
	b.mu.Unlock()
}

func (b *base) Err() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closeErr
}

func (b *base) logf(level logrus.Level, format string, args ...any) {
	b.mu.Lock()
	fn := b.onLog
	b.mu.Unlock()
	if fn != nil {
		fn(LogMessage{Level: level, Component: b.component, Message: fmt.Sprintf(format, args...)})
	}
}

func (b *base) begin() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch {
	case b.stopped:
		return ErrClosed
	case b.started:
		return ErrAlreadyStarted
	}
	b.started = true
	return nil
}

// attach records a dialled socket. It returns false when Stop won the race,
// in which case the caller must discard the socket.
func (b *base) attach(closer func() error) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stopped {
		close(b.data)
		return false
	}
	b.running = true
	b.closer = closer
	return true
}

// abort undoes begin after a failed dial.
func (b *base) abort() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.started = false
	if b.stopped {
		close(b.data)
	}
}

func (b *base) isStopped() bool {
	select {
	case <-b.done:
		return true
	default:
		return false
	}
}

// fail records why the channel ended unless it was stopped locally.
func (b *base) fail(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closeErr == nil && !b.stopped {
		b.closeErr = err
	}
}

// deliver hands one frame to the reader. It gives up once stopped.
func (b *base) deliver(frame []byte) bool {
	select {
	case b.data <- frame:
		return true
	case <-b.done:
		return false
	}
}

func (b *base) stop() error {
	var err error
	b.stopOnce.Do(func() {
		b.mu.Lock()
		b.stopped = true
		closer, running, dialing := b.closer, b.running, b.started && !b.running
		b.mu.Unlock()

		close(b.done)
		if closer != nil {
			err = closer()
		}
		if !running && !dialing {
			close(b.data)
		}
	})
	return err
}
