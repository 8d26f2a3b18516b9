package connection

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"nhooyr.io/websocket"
)

// NhooyrConnection is a Connection over nhooyr.io/websocket. Unlike gorilla,
// its writes are safe for concurrent use and honour the caller's context.
type NhooyrConnection struct {
	base
	opts Options

	connMu sync.Mutex
	conn   *websocket.Conn
	ctx    context.Context // lives until Stop
	cancel context.CancelFunc
}

var _ Connection = (*NhooyrConnection)(nil)

func NewNhooyrConnection(opts Options) *NhooyrConnection {
	ctx, cancel := context.WithCancel(context.Background())
	return &NhooyrConnection{
		base:   newBase("nhooyr"),
		opts:   opts.withDefaults(),
		ctx:    ctx,
		cancel: cancel,
	}
}

func (c *NhooyrConnection) Start(ctx context.Context, url string) error {
	if err := c.begin(); err != nil {
		return err
	}

	dialCtx, cancel := context.WithTimeout(ctx, c.opts.HandshakeTimeout)
	defer cancel()
	conn, _, err := websocket.Dial(dialCtx, url, &websocket.DialOptions{HTTPHeader: c.opts.Header})
	if err != nil {
		c.abort()
		return fmt.Errorf("dial %s: %w", url, err)
	}
	conn.SetReadLimit(c.opts.ReadLimit)

	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()

	if !c.attach(func() error { return c.closeConn(conn) }) {
		_ = conn.Close(websocket.StatusGoingAway, "stopped")
		return ErrClosed
	}

	go c.recvLoop(conn)
	if c.opts.PingInterval > 0 {
		go c.heartbeatLoop(conn, c.opts.PingInterval)
	}
	c.logf(logrus.DebugLevel, "connected to %s", url)
	return nil
}

func (c *NhooyrConnection) SendData(ctx context.Context, data []byte) error {
	if c.isStopped() {
		return ErrClosed
	}
	c.connMu.Lock()
	conn := c.conn
	c.connMu.Unlock()
	if conn == nil {
		return ErrNotStarted
	}

	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		if c.isStopped() {
			return ErrClosed
		}
		return fmt.Errorf("send: %w", err)
	}
	return nil
}

func (c *NhooyrConnection) Stop() error {
	err := c.stop()
	c.cancel()
	return err
}

func (c *NhooyrConnection) closeConn(conn *websocket.Conn) error {
	defer c.cancel()
	err := conn.Close(websocket.StatusNormalClosure, "")
	var ce websocket.CloseError
	if errors.As(err, &ce) || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (c *NhooyrConnection) recvLoop(conn *websocket.Conn) {
	defer close(c.data)
	for {
		typ, buf, err := conn.Read(c.ctx)
		if err != nil {
			c.handleIOError(err)
			return
		}
		if typ != websocket.MessageText {
			c.logf(logrus.WarnLevel, "dropping %d byte binary frame", len(buf))
			continue
		}
		if !c.deliver(buf) {
			return
		}
	}
}

func (c *NhooyrConnection) handleIOError(err error) {
	if c.isStopped() {
		return
	}
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		c.logf(logrus.DebugLevel, "remote end closed: %v", err)
	default:
		c.logf(logrus.ErrorLevel, "unexpected close: %v", err)
	}
	c.fail(fmt.Errorf("%w: %v", ErrClosed, err))
	_ = c.stop()
}

func (c *NhooyrConnection) heartbeatLoop(conn *websocket.Conn, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(c.ctx, c.opts.PingTimeout)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				c.logf(logrus.WarnLevel, "ping: %v", err)
				return
			}
		}
	}
}
