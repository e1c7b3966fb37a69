package transport

import (
	"context"
	"fmt"
	"io"
	"net"

	"github.com/sirupsen/logrus"
)

// TCPListener accepts framed streams over TCP.
type TCPListener struct {
	ln net.Listener
}

// ListenTCP listens on addr, for example ":7000" or "127.0.0.1:0".
func ListenTCP(addr string) (*TCPListener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("tcp listen: %w", err)
	}
	logrus.WithFields(logrus.Fields{
		"function": "ListenTCP",
		"addr":     ln.Addr().String(),
	}).Info("listening")
	return &TCPListener{ln: ln}, nil
}

// Accept waits for the next connection or for ctx to be done. A cancelled
// Accept closes the listener.
func (l *TCPListener) Accept(ctx context.Context) (io.ReadWriteCloser, error) {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			l.ln.Close()
		case <-done:
		}
	}()

	conn, err := l.ln.Accept()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("tcp accept: %w", err)
	}
	if tc, ok := conn.(*net.TCPConn); ok {
		_ = tc.SetNoDelay(true)
	}
	logrus.WithFields(logrus.Fields{
		"function": "Accept",
		"remote":   conn.RemoteAddr().String(),
	}).Info("peer connected")
	return conn, nil
}

// Addr returns the bound address.
func (l *TCPListener) Addr() net.Addr { return l.ln.Addr() }

// Close stops listening. Accepted connections stay open.
func (l *TCPListener) Close() error { return l.ln.Close() }

// DialTCP connects to a TCP listener.
func DialTCP(ctx context.Context, addr string) (net.Conn, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("tcp dial: %w", err)
	}
	logrus.WithFields(logrus.Fields{
		"function": "DialTCP",
		"remote":   conn.RemoteAddr().String(),
	}).Info("connected")
	return conn, nil
}
