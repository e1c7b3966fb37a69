package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	wsPingInterval = 25 * time.Second
	wsCloseTimeout = time.Second
)

// WebSocketConn presents a WebSocket as a byte stream. Each Write is sent
// as one binary message; Read concatenates incoming binary messages, so
// message boundaries carry no meaning.
type WebSocketConn struct {
	conn *websocket.Conn
	cur  io.Reader // current incoming message
	wmu  sync.Mutex

	done      chan struct{}
	closeOnce sync.Once
}

func newWebSocketConn(conn *websocket.Conn) *WebSocketConn {
	c := &WebSocketConn{conn: conn, done: make(chan struct{})}
	go c.pingLoop()
	return c
}

// DialWebSocket connects to a WebSocket listener at url, for example
// "ws://host:7000/stream".
func DialWebSocket(ctx context.Context, url string) (*WebSocketConn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial: %w", err)
	}
	logrus.WithFields(logrus.Fields{
		"function": "DialWebSocket",
		"url":      url,
	}).Info("connected")
	return newWebSocketConn(conn), nil
}

func (c *WebSocketConn) Read(p []byte) (int, error) {
	for {
		if c.cur == nil {
			typ, r, err := c.conn.NextReader()
			if err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					return 0, io.EOF
				}
				return 0, err
			}
			if typ != websocket.BinaryMessage {
				return 0, fmt.Errorf("%w: websocket message type %d", ErrCorruptFrame, typ)
			}
			c.cur = r
		}
		n, err := c.cur.Read(p)
		if errors.Is(err, io.EOF) {
			c.cur = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

func (c *WebSocketConn) Write(p []byte) (int, error) {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if err := c.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// SetDeadline sets read and write deadlines. A read that times out leaves
// the connection unusable.
func (c *WebSocketConn) SetDeadline(t time.Time) error {
	if err := c.conn.SetReadDeadline(t); err != nil {
		return err
	}
	return c.conn.SetWriteDeadline(t)
}

// Close sends a close message and shuts the connection down.
func (c *WebSocketConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(wsCloseTimeout))
		err = c.conn.Close()
	})
	return err
}

func (c *WebSocketConn) pingLoop() {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsCloseTimeout)); err != nil {
				return
			}
		}
	}
}

// WebSocketListener upgrades HTTP requests on one path and hands out at
// most one live stream at a time. Further upgrade attempts get 503.
type WebSocketListener struct {
	ln       net.Listener
	srv      *http.Server
	upgrader websocket.Upgrader
	conns    chan *WebSocketConn
	busy     atomic.Bool
}

// ListenWebSocket serves WebSocket upgrades for path on addr.
func ListenWebSocket(addr, path string) (*WebSocketListener, error) {
	if path == "" {
		path = "/"
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("websocket listen: %w", err)
	}
	l := &WebSocketListener{
		ln: ln,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  DefaultReadBufferSize,
			WriteBufferSize: DefaultReadBufferSize,
		},
		conns: make(chan *WebSocketConn, 1),
	}
	mux := http.NewServeMux()
	mux.HandleFunc(path, l.handle)
	l.srv = &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		if err := l.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.WithError(err).WithField("function", "ListenWebSocket").Error("http server stopped")
		}
	}()
	logrus.WithFields(logrus.Fields{
		"function": "ListenWebSocket",
		"addr":     ln.Addr().String(),
		"path":     path,
	}).Info("listening")
	return l, nil
}

func (l *WebSocketListener) handle(w http.ResponseWriter, r *http.Request) {
	if !l.busy.CompareAndSwap(false, true) {
		http.Error(w, "stream already connected", http.StatusServiceUnavailable)
		return
	}
	conn, err := l.upgrader.Upgrade(w, r, nil)
	if err != nil {
		l.busy.Store(false)
		logrus.WithError(err).WithField("function", "handle").Warn("websocket upgrade")
		return
	}
	logrus.WithFields(logrus.Fields{
		"function": "handle",
		"remote":   r.RemoteAddr,
	}).Info("peer connected")
	l.conns <- newWebSocketConn(conn)
}

// Accept waits for the next upgraded stream or for ctx to be done.
func (l *WebSocketListener) Accept(ctx context.Context) (io.ReadWriteCloser, error) {
	select {
	case c := <-l.conns:
		return &releasingConn{WebSocketConn: c, release: func() { l.busy.Store(false) }}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Addr returns the bound address.
func (l *WebSocketListener) Addr() net.Addr { return l.ln.Addr() }

// Close stops the HTTP server. Accepted streams stay open.
func (l *WebSocketListener) Close() error { return l.srv.Close() }

// releasingConn frees the listener slot when the stream is closed.
type releasingConn struct {
	*WebSocketConn
	once    sync.Once
	release func()
}

func (c *releasingConn) Close() error {
	err := c.WebSocketConn.Close()
	c.once.Do(c.release)
	return err
}
