// Package transport multiplexes BiDi commands and events over one Connection.
//
// Every command gets a unique, strictly increasing id and a pending entry
// holding a one-shot reply channel. A single pump goroutine reads inbound
// frames in arrival order and either completes the pending entry whose id
// matches or hands the event to the registry:
//
//	goroutine-1 ──Execute(id=1)──┐
//	goroutine-2 ──Execute(id=2)──┼──→ Connection ──→ remote end
//	goroutine-3 ──Execute(id=3)──┘
//
//	pump: ←── {"type":"success","id":2} → pending[2] → goroutine-2 wakes up
//	      ←── {"type":"event","method":"log.entryAdded"} → registry (awaited)
//
// The pump awaits the full observer fan-out of one event before it takes the
// next frame, so a slow observer backpressures the connection.
package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"mini-bidi/connection"
	"mini-bidi/event"
	"mini-bidi/log"
	"mini-bidi/message"
	"mini-bidi/metrics"
	"mini-bidi/middleware"
	"mini-bidi/protocol"
)

// Transport failures, shared with the middleware package.
var (
	ErrTimeout          = message.ErrTimeout
	ErrConnectionClosed = message.ErrConnectionClosed
	ErrNotStarted       = message.ErrNotStarted
	ErrAlreadyStarted   = errors.New("transport already started")
)

// State is the lifecycle of a Transport: Idle → Started → Stopped.
type State int32

const (
	StateIdle State = iota
	StateStarted
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarted:
		return "started"
	}
	return "stopped"
}

type reply struct {
	msg *message.Inbound
	err error
}

type pending struct {
	method string
	sent   time.Time
	done   chan reply // buffered, written at most once
}

// Transport owns the pending-command map and the id counter of one
// connection. It is safe for concurrent use.
type Transport struct {
	conn    connection.Connection
	codec   protocol.Codec
	events  *event.Registry
	logger  *log.Logger
	metrics *metrics.Collector
	timeout time.Duration

	startMu sync.Mutex // serializes Start against Start

	mu      sync.Mutex // guards everything below
	state   State
	nextID  int64
	pending map[int64]*pending
	mws     []middleware.Middleware
	handler middleware.HandlerFunc

	done chan struct{} // closed when the pump exits
}

// New wraps conn. The transport does nothing until Start.
func New(conn connection.Connection, events *event.Registry, opts Options) *Transport {
	opts = opts.withDefaults()
	if events == nil {
		events = event.NewRegistry()
	}
	t := &Transport{
		conn:    conn,
		codec:   protocol.GetCodec(opts.Codec),
		events:  events,
		logger:  opts.Logger,
		metrics: opts.Metrics,
		timeout: opts.Timeout,
		pending: make(map[int64]*pending),
		done:    make(chan struct{}),
	}
	t.Use(opts.Middlewares...)
	return t
}

// Events returns the registry inbound events are dispatched to.
func (t *Transport) Events() *event.Registry {
	return t.events
}

func (t *Transport) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Use appends middlewares around every later command. The first middleware
// ever added is the outermost.
func (t *Transport) Use(mws ...middleware.Middleware) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.mws = append(t.mws, mws...)
	t.handler = middleware.Chain(t.mws...)(t.roundTrip)
}

// Start connects to url and starts the inbound pump.
func (t *Transport) Start(ctx context.Context, url string) error {
	t.startMu.Lock()
	defer t.startMu.Unlock()

	switch t.State() {
	case StateStarted:
		return ErrAlreadyStarted
	case StateStopped:
		return fmt.Errorf("start: %w", ErrConnectionClosed)
	}

	t.conn.OnLog(func(m connection.LogMessage) {
		t.logger.Logf(m.Level, "connection", "%s: %s", m.Component, m.Message)
	})
	if err := t.conn.Start(ctx, url); err != nil {
		return fmt.Errorf("start %s: %w", url, err)
	}

	t.mu.Lock()
	if t.state == StateStopped {
		// Stop ran while the connection was dialing and already closed done.
		t.mu.Unlock()
		_ = t.conn.Stop()
		return fmt.Errorf("start: %w", ErrConnectionClosed)
	}
	t.state = StateStarted
	t.mu.Unlock()

	t.logger.Debugf("transport", "started on %s", url)
	go t.pump(t.conn.DataReceived())
	return nil
}

// Stop closes the connection and fails every pending command with
// ErrConnectionClosed. It is idempotent and safe to call from an observer;
// it does not wait for the pump, use Done for that.
func (t *Transport) Stop() error {
	t.mu.Lock()
	prev := t.state
	t.state = StateStopped
	t.mu.Unlock()

	if prev == StateStopped {
		return nil
	}
	if prev == StateIdle {
		close(t.done)
	}
	err := t.conn.Stop()
	t.failAll(fmt.Errorf("transport stopped: %w", ErrConnectionClosed))
	t.logger.Debugf("transport", "stopped")
	return err
}

// Done is closed once the inbound pump has exited.
func (t *Transport) Done() <-chan struct{} {
	return t.done
}

// Pending reports how many commands await a response.
func (t *Transport) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}

// ExecuteCommand sends method with params through the middleware chain and
// waits for its response. A remote failure is returned as an Inbound of type
// error with a nil err; err is reserved for transport failures.
func (t *Transport) ExecuteCommand(ctx context.Context, method string, params any, opts ...CallOption) (*message.Inbound, error) {
	call := callOptions{timeout: t.timeout}
	for _, opt := range opts {
		opt(&call)
	}
	ctx = withCallOptions(ctx, call)

	t.mu.Lock()
	h := t.handler
	t.mu.Unlock()
	return h(ctx, &message.Command{Method: method, Params: params})
}

// roundTrip is the innermost handler: it assigns the id, sends the command
// and waits for the reply, the timeout or the end of the connection.
func (t *Transport) roundTrip(ctx context.Context, cmd *message.Command) (resp *message.Inbound, err error) {
	call := callOptionsFrom(ctx, t.timeout)
	if call.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, call.timeout)
		defer cancel()
	}

	p := &pending{method: cmd.Method, sent: time.Now(), done: make(chan reply, 1)}
	t.mu.Lock()
	switch t.state {
	case StateIdle:
		t.mu.Unlock()
		return nil, ErrNotStarted
	case StateStopped:
		t.mu.Unlock()
		return nil, fmt.Errorf("%s: %w", cmd.Method, ErrConnectionClosed)
	}
	t.nextID++
	id := t.nextID
	t.pending[id] = p
	t.mu.Unlock()

	t.metrics.CommandSent()
	defer func() {
		t.metrics.CommandDone(cmd.Method, outcomeOf(resp, err), time.Since(p.sent))
	}()

	out := *cmd
	out.ID = id
	data, err := t.codec.Encode(&out)
	if err != nil {
		if t.remove(id) {
			return nil, fmt.Errorf("encode %s: %w", cmd.Method, err)
		}
		return t.await(p)
	}

	t.logger.Debugf("bidi:send", "%s", data)
	if err := t.conn.SendData(ctx, data); err != nil {
		if !t.remove(id) {
			return t.await(p)
		}
		if errors.Is(err, connection.ErrClosed) || errors.Is(err, connection.ErrNotStarted) {
			return nil, fmt.Errorf("send %s (id %d): %w", cmd.Method, id, ErrConnectionClosed)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, t.ctxError(cmd.Method, id, p, ctxErr)
		}
		return nil, fmt.Errorf("send %s (id %d): %w", cmd.Method, id, err)
	}

	select {
	case r := <-p.done:
		return r.msg, r.err
	case <-ctx.Done():
		if !t.remove(id) {
			// The reply won the race against the deadline.
			return t.await(p)
		}
		err := t.ctxError(cmd.Method, id, p, ctx.Err())
		t.logger.Debugf("transport", "%v", err)
		return nil, err
	}
}

func (t *Transport) await(p *pending) (*message.Inbound, error) {
	r := <-p.done
	return r.msg, r.err
}

func (t *Transport) ctxError(method string, id int64, p *pending, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s (id %d) after %s: %w", method, id, time.Since(p.sent).Round(time.Millisecond), ErrTimeout)
	}
	return fmt.Errorf("%s (id %d): %w", method, id, err)
}

// remove drops the pending entry for id. It reports false when the entry was
// already resolved, in which case its reply is waiting in the channel.
func (t *Transport) remove(id int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.pending[id]; !ok {
		return false
	}
	delete(t.pending, id)
	return true
}

// resolve completes the pending entry for id, reporting whether one existed.
func (t *Transport) resolve(id int64, r reply) bool {
	t.mu.Lock()
	p, ok := t.pending[id]
	delete(t.pending, id)
	t.mu.Unlock()
	if ok {
		p.done <- r
	}
	return ok
}

func (t *Transport) failAll(err error) {
	t.mu.Lock()
	entries := t.pending
	t.pending = make(map[int64]*pending)
	t.mu.Unlock()

	for id, p := range entries {
		p.done <- reply{err: fmt.Errorf("%s (id %d): %w", p.method, id, err)}
	}
}

// pump processes inbound frames one at a time until the connection ends.
func (t *Transport) pump(data <-chan []byte) {
	defer close(t.done)
	for frame := range data {
		t.handle(frame)
	}

	t.mu.Lock()
	wasRunning := t.state == StateStarted
	t.state = StateStopped
	t.mu.Unlock()

	closed := ErrConnectionClosed
	if cause := t.conn.Err(); cause != nil {
		closed = fmt.Errorf("%w: %w", ErrConnectionClosed, cause)
	}
	if wasRunning {
		t.logger.Warnf("transport", "connection ended: %v", closed)
	}
	t.failAll(closed)
}

func (t *Transport) handle(frame []byte) {
	t.logger.Debugf("bidi:recv", "%s", frame)

	msg, err := t.codec.Decode(frame)
	if err != nil {
		var me *protocol.MessageError
		if errors.As(err, &me) && me.Header != nil && me.Header.HasID && me.Header.MsgType != protocol.MsgTypeEvent {
			if t.resolve(me.Header.ID, reply{err: err}) {
				return
			}
		}
		t.logger.Warnf("transport", "dropping %v", err)
		t.metrics.Dropped(metrics.DropMalformed)
		return
	}

	if msg.Type == message.TypeEvent {
		t.dispatch(msg.Event)
		return
	}

	id, ok := msg.ID()
	if !ok {
		t.logger.Warnf("transport", "remote error without command id: %v", msg.Error)
		t.metrics.Dropped(metrics.DropOrphan)
		return
	}
	if !t.resolve(id, reply{msg: msg}) {
		t.logger.Warnf("transport", "dropping %s for unknown command id %d", msg.Type, id)
		t.metrics.Dropped(metrics.DropUnmatched)
	}
}

func (t *Transport) dispatch(ev *message.Event) {
	handled, err := t.events.Dispatch(context.Background(), ev.Method, ev.Params)
	t.metrics.Event(ev.Method, handled)
	if !handled {
		t.logger.Tracef("event", "no observers for %s", ev.Method)
		return
	}
	if err != nil {
		t.metrics.EventFailed(ev.Method)
		t.logger.Warnf("event", "%s: %v", ev.Method, err)
	}
}

func outcomeOf(resp *message.Inbound, err error) string {
	switch {
	case err == nil && resp != nil && resp.Type == message.TypeError:
		return metrics.OutcomeRemoteError
	case err == nil:
		return metrics.OutcomeSuccess
	case errors.Is(err, ErrTimeout):
		return metrics.OutcomeTimeout
	case errors.Is(err, ErrConnectionClosed):
		return metrics.OutcomeClosed
	}
	return metrics.OutcomeFailed
}
