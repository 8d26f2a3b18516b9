package connection

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// WebSocketConnection is a Connection over gorilla/websocket.
type WebSocketConnection struct {
	base
	opts Options

	conn    *websocket.Conn
	writeMu sync.Mutex // gorilla allows one concurrent writer
}

var _ Connection = (*WebSocketConnection)(nil)

func NewWebSocketConnection(opts Options) *WebSocketConnection {
	return &WebSocketConnection{
		base: newBase("websocket"),
		opts: opts.withDefaults(),
	}
}

func (c *WebSocketConnection) Start(ctx context.Context, url string) error {
	if err := c.begin(); err != nil {
		return err
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: c.opts.HandshakeTimeout,
		Proxy:            http.ProxyFromEnvironment,
		WriteBufferSize:  c.opts.WriteBufferSize,
	}
	conn, resp, err := dialer.DialContext(ctx, url, c.opts.Header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		c.abort()
		return fmt.Errorf("dial %s: %w", url, err)
	}
	conn.SetReadLimit(c.opts.ReadLimit)

	c.writeMu.Lock()
	c.conn = conn
	c.writeMu.Unlock()

	if !c.attach(func() error { return c.closeConn(conn) }) {
		_ = conn.Close()
		return ErrClosed
	}

	go c.recvLoop(conn)
	if c.opts.PingInterval > 0 {
		go c.heartbeatLoop(conn, c.opts.PingInterval)
	}
	c.logf(logrus.DebugLevel, "connected to %s", url)
	return nil
}

func (c *WebSocketConnection) SendData(ctx context.Context, data []byte) error {
	if c.isStopped() {
		return ErrClosed
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.conn == nil {
		return ErrNotStarted
	}

	deadline, _ := ctx.Deadline()
	_ = c.conn.SetWriteDeadline(deadline)
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		if c.isStopped() {
			return ErrClosed
		}
		return fmt.Errorf("send: %w", err)
	}
	return nil
}

// Stop sends a normal closure frame and releases the socket.
func (c *WebSocketConnection) Stop() error {
	return c.stop()
}

func (c *WebSocketConnection) closeConn(conn *websocket.Conn) error {
	err := conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(closeTimeout),
	)
	if cerr := conn.Close(); err == nil {
		err = cerr
	}
	if err == websocket.ErrCloseSent {
		err = nil
	}
	return err
}

func (c *WebSocketConnection) recvLoop(conn *websocket.Conn) {
	defer close(c.data)
	for {
		typ, buf, err := conn.ReadMessage()
		if err != nil {
			c.handleIOError(err)
			return
		}
		if typ != websocket.TextMessage {
			c.logf(logrus.WarnLevel, "dropping %d byte binary frame", len(buf))
			continue
		}
		if !c.deliver(buf) {
			return
		}
	}
}

func (c *WebSocketConnection) handleIOError(err error) {
	if c.isStopped() {
		return
	}
	if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		c.logf(logrus.ErrorLevel, "unexpected close: %v", err)
	} else {
		c.logf(logrus.DebugLevel, "remote end closed: %v", err)
	}
	c.fail(fmt.Errorf("%w: %v", ErrClosed, err))
	_ = c.stop()
}

func (c *WebSocketConnection) heartbeatLoop(conn *websocket.Conn, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.opts.PingTimeout))
			if err != nil {
				c.logf(logrus.WarnLevel, "ping: %v", err)
				return
			}
		}
	}
}
