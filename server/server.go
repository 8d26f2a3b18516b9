// Package server implements an in-process WebDriver BiDi remote end.
//
// It speaks the wire protocol of a real browser closely enough to drive the
// client end to end: commands are answered by explicit handlers or by
// reflected module receivers, and events can be pushed at any time.
//
// Request processing pipeline:
//
//	Upgrade → handleConn (single goroutine reads frames)
//	  → for each command: go handleCommand (parallel processing)
//	    → decode → handler → encode → write under the session write lock
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"reflect"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/oklog/ulid/v2"
	"github.com/tidwall/gjson"

	"mini-bidi/codec"
	"mini-bidi/log"
	"mini-bidi/message"
	"mini-bidi/registry"
)

// ErrNoReply makes the server swallow a command instead of answering it.
var ErrNoReply = errors.New("no reply")

// HandlerFunc answers one command. A *message.ErrorResponse error is sent
// with its code; any other error is sent as "unknown error".
type HandlerFunc func(ctx context.Context, sess *Session, params json.RawMessage) (any, error)

// Server is a BiDi remote end. It implements http.Handler.
type Server struct {
	upgrader websocket.Upgrader
	logger   *log.Logger

	mu       sync.RWMutex
	handlers map[string]HandlerFunc
	sessions map[string]*Session
	onOpen   func(*Session)

	wg       sync.WaitGroup // in-flight commands
	conns    sync.WaitGroup // open sessions
	shutdown atomic.Bool
	httpSrv  *http.Server

	registry     registry.Registry
	service      string
	advertiseURL string
}

func NewServer(logger *log.Logger) *Server {
	s := &Server{
		logger:   logger,
		handlers: make(map[string]HandlerFunc),
		sessions: make(map[string]*Session),
		service:  "bidi",
	}
	s.upgrader.CheckOrigin = func(*http.Request) bool { return true }
	s.registerBuiltins()
	return s
}

// Handle answers method with fn, replacing any earlier handler.
func (s *Server) Handle(method string, fn HandlerFunc) {
	s.mu.Lock()
	s.handlers[method] = fn
	s.mu.Unlock()
}

// Register exposes every method of rcvr shaped Method(*Args, *Reply) error
// as "<module>.<method>", e.g. Status on module "session" answers
// "session.status". An empty module uses the lower-cased type name.
func (s *Server) Register(module string, rcvr any) error {
	svc, err := newService(module, rcvr)
	if err != nil {
		return err
	}
	for name, mt := range svc.commands() {
		s.Handle(name, svc.handler(mt))
	}
	return nil
}

func (svc *service) handler(mt *methodType) HandlerFunc {
	return func(_ context.Context, _ *Session, params json.RawMessage) (any, error) {
		argv := reflect.New(mt.ArgType)
		replyv := reflect.New(mt.ReplyType)
		if len(params) > 0 {
			if err := json.Unmarshal(params, argv.Interface()); err != nil {
				return nil, &message.ErrorResponse{Code: "invalid argument", Message: err.Error()}
			}
		}
		if err := svc.call(mt, argv, replyv); err != nil {
			return nil, err
		}
		return replyv.Interface(), nil
	}
}

// Methods lists the commands the server answers.
func (s *Server) Methods() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.handlers))
	for m := range s.handlers {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

// SetService changes the service name used for registry registration. Call
// it before Serve.
func (s *Server) SetService(name string) {
	s.mu.Lock()
	s.service = name
	s.mu.Unlock()
}

// OnSession is called with every new session before its first frame is read.
func (s *Server) OnSession(fn func(*Session)) {
	s.mu.Lock()
	s.onOpen = fn
	s.mu.Unlock()
}

func (s *Server) Sessions() []*Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess)
	}
	return out
}

// Emit sends an event to every open session.
func (s *Server) Emit(method string, params any) error {
	var errs []error
	for _, sess := range s.Sessions() {
		if err := sess.Emit(method, params); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if s.shutdown.Load() {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warnf("server", "upgrade: %v", err)
		return
	}
	s.conns.Add(1)
	defer s.conns.Done()
	s.handleConn(conn)
}

// Serve listens on address and blocks until Shutdown. With a non-nil reg
// the remote end is registered under advertiseURL, which differs from the
// listen address because ":9222" is not routable.
func (s *Server) Serve(address, advertiseURL string, reg registry.Registry) error {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return err
	}
	return s.ServeListener(listener, advertiseURL, reg)
}

func (s *Server) ServeListener(listener net.Listener, advertiseURL string, reg registry.Registry) error {
	s.mu.Lock()
	if s.shutdown.Load() {
		s.mu.Unlock()
		return listener.Close()
	}
	s.httpSrv = &http.Server{Handler: s, ReadHeaderTimeout: 10 * time.Second}
	s.registry = reg
	s.advertiseURL = advertiseURL
	srv, service := s.httpSrv, s.service
	s.mu.Unlock()

	if reg != nil {
		ep := registry.Endpoint{URL: advertiseURL, Weight: 1, Browser: "mini-bidi", Version: "1.0"}
		if err := reg.Register(context.Background(), service, ep, 10); err != nil {
			_ = listener.Close()
			return fmt.Errorf("register %s: %w", advertiseURL, err)
		}
	}
	s.logger.Infof("server", "serving BiDi on %s", listener.Addr())

	err := srv.Serve(listener)
	if s.shutdown.Load() && errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// handleConn reads frames sequentially and answers each command on its own
// goroutine so a slow handler never blocks the next command.
func (s *Server) handleConn(conn *websocket.Conn) {
	sess := newSession(s, conn)
	s.mu.Lock()
	s.sessions[sess.ID] = sess
	onOpen := s.onOpen
	s.mu.Unlock()
	s.logger.Debugf("server", "session %s opened", sess.ID)

	defer func() {
		sess.close()
		s.mu.Lock()
		delete(s.sessions, sess.ID)
		s.mu.Unlock()
		s.logger.Debugf("server", "session %s closed", sess.ID)
	}()

	if onOpen != nil {
		onOpen(sess)
	}
	for {
		typ, buf, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if typ != websocket.TextMessage {
			continue
		}
		s.wg.Add(1)
		go s.handleCommand(sess, buf)
	}
}

type wireCommand struct {
	ID     *int64
	Method string
	Params json.RawMessage
}

var commandShape = codec.Shape("Command", func(r *codec.Reader) wireCommand {
	var cmd wireCommand
	if id, ok := r.OptionalInt("id"); ok {
		cmd.ID = &id
	}
	cmd.Method = r.String("method")
	if _, ok := r.OptionalObject("params"); ok {
		cmd.Params, _ = r.OptionalRaw("params")
	}
	return cmd
})

func (s *Server) handleCommand(sess *Session, buf []byte) {
	defer s.wg.Done()

	cmd, err := commandShape(buf)
	if err != nil || cmd.ID == nil {
		if err == nil {
			err = errors.New("missing id")
		}
		var id *int64
		if v := gjson.GetBytes(buf, "id"); v.Type == gjson.Number {
			n := v.Int()
			id = &n
		}
		_ = sess.send(errorFrame{Type: "error", ID: id, Error: "invalid argument", Message: err.Error()})
		return
	}

	if _, _, ok := splitMethod(cmd.Method); !ok {
		_ = sess.send(errorFrame{Type: "error", ID: cmd.ID, Error: "invalid argument", Message: "method must be <module>.<command>: " + cmd.Method})
		return
	}
	s.mu.RLock()
	fn, ok := s.handlers[cmd.Method]
	s.mu.RUnlock()
	if !ok {
		_ = sess.send(errorFrame{Type: "error", ID: cmd.ID, Error: "unknown command", Message: cmd.Method})
		return
	}

	result, err := fn(sess.ctx, sess, cmd.Params)
	switch {
	case errors.Is(err, ErrNoReply):
		return
	case err != nil:
		frame := errorFrame{Type: "error", ID: cmd.ID, Error: "unknown error", Message: err.Error()}
		var remote *message.ErrorResponse
		if errors.As(err, &remote) {
			frame.Error, frame.Message, frame.Stacktrace = remote.Code, remote.Message, remote.Stacktrace
		}
		err = sess.send(frame)
	default:
		if result == nil {
			result = struct{}{}
		}
		err = sess.send(successFrame{Type: "success", ID: *cmd.ID, Result: result})
	}
	if err != nil {
		s.logger.Debugf("server", "reply to %s: %v", cmd.Method, err)
	}
}

// Shutdown deregisters the remote end, stops accepting sessions, closes the
// open ones and waits up to timeout for in-flight commands.
func (s *Server) Shutdown(timeout time.Duration) error {
	s.mu.Lock()
	s.shutdown.Store(true)
	reg, url, srv, service := s.registry, s.advertiseURL, s.httpSrv, s.service
	s.mu.Unlock()

	if reg != nil {
		_ = reg.Deregister(context.Background(), service, url)
	}

	if srv != nil {
		_ = srv.Close()
	}
	for _, sess := range s.Sessions() {
		sess.close()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		s.conns.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("timeout waiting for ongoing commands to finish")
	}
}

func (s *Server) registerBuiltins() {
	s.Handle("session.status", func(context.Context, *Session, json.RawMessage) (any, error) {
		return map[string]any{"ready": true, "message": "ready"}, nil
	})
	s.Handle("session.new", func(_ context.Context, sess *Session, params json.RawMessage) (any, error) {
		caps := map[string]any{
			"acceptInsecureCerts": false,
			"browserName":         "mini-bidi",
			"browserVersion":      "1.0",
			"platformName":        "go",
			"setWindowRect":       false,
			"userAgent":           "mini-bidi/1.0",
		}
		// The requested proxy is echoed back as matched.
		if proxy := gjson.GetBytes(params, "capabilities.alwaysMatch.proxy"); proxy.IsObject() {
			caps["proxy"] = json.RawMessage(proxy.Raw)
		}
		return map[string]any{"sessionId": sess.ID, "capabilities": caps}, nil
	})
	s.Handle("session.end", func(context.Context, *Session, json.RawMessage) (any, error) {
		return struct{}{}, nil
	})
	s.Handle("session.subscribe", func(_ context.Context, sess *Session, params json.RawMessage) (any, error) {
		var p struct {
			Events []string `json:"events"`
		}
		if err := json.Unmarshal(params, &p); err != nil || len(p.Events) == 0 {
			return nil, &message.ErrorResponse{Code: "invalid argument", Message: "events must be a non-empty list"}
		}
		return map[string]any{"subscription": sess.subscribe(p.Events)}, nil
	})
	s.Handle("session.unsubscribe", func(_ context.Context, sess *Session, params json.RawMessage) (any, error) {
		var p struct {
			Subscriptions []string `json:"subscriptions"`
		}
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, &message.ErrorResponse{Code: "invalid argument", Message: err.Error()}
		}
		for _, id := range p.Subscriptions {
			if !sess.unsubscribe(id) {
				return nil, &message.ErrorResponse{Code: "invalid argument", Message: "no such subscription " + id}
			}
		}
		return struct{}{}, nil
	})
}

type successFrame struct {
	Type   string `json:"type"`
	ID     int64  `json:"id"`
	Result any    `json:"result"`
}

type errorFrame struct {
	Type       string `json:"type"`
	ID         *int64 `json:"id"`
	Error      string `json:"error"`
	Message    string `json:"message"`
	Stacktrace string `json:"stacktrace,omitempty"`
}

type eventFrame struct {
	Type   string `json:"type"`
	Method string `json:"method"`
	Params any    `json:"params"`
}

// Session is one client connection.
type Session struct {
	ID string

	server  *Server
	conn    *websocket.Conn
	writeMu sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc

	subMu         sync.Mutex
	subscriptions map[string][]string
	closeOnce     sync.Once
}

func newSession(s *Server, conn *websocket.Conn) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		ID:            ulid.Make().String(),
		server:        s,
		conn:          conn,
		ctx:           ctx,
		cancel:        cancel,
		subscriptions: make(map[string][]string),
	}
}

// Emit pushes an event to this session.
func (sess *Session) Emit(method string, params any) error {
	if params == nil {
		params = struct{}{}
	}
	return sess.send(eventFrame{Type: "event", Method: method, Params: params})
}

// SendRaw writes frame unchanged, for feeding the client malformed or
// unsolicited messages.
func (sess *Session) SendRaw(frame []byte) error {
	sess.writeMu.Lock()
	defer sess.writeMu.Unlock()
	return sess.conn.WriteMessage(websocket.TextMessage, frame)
}

func (sess *Session) send(v any) error {
	buf, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return sess.SendRaw(buf)
}

// Subscriptions returns the events of every live subscription.
func (sess *Session) Subscriptions() map[string][]string {
	sess.subMu.Lock()
	defer sess.subMu.Unlock()
	out := make(map[string][]string, len(sess.subscriptions))
	for id, events := range sess.subscriptions {
		out[id] = append([]string(nil), events...)
	}
	return out
}

func (sess *Session) subscribe(events []string) string {
	id := uuid.NewString()
	sess.subMu.Lock()
	sess.subscriptions[id] = append([]string(nil), events...)
	sess.subMu.Unlock()
	return id
}

func (sess *Session) unsubscribe(id string) bool {
	sess.subMu.Lock()
	defer sess.subMu.Unlock()
	if _, ok := sess.subscriptions[id]; !ok {
		return false
	}
	delete(sess.subscriptions, id)
	return true
}

// Close drops the connection without a close handshake.
func (sess *Session) Close() {
	sess.close()
}

func (sess *Session) close() {
	sess.closeOnce.Do(func() {
		sess.cancel()
		_ = sess.conn.Close()
	})
}
