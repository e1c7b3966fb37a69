// Package transport carries encoded frames over a reliable byte stream.
//
// Frames are self-delimiting: the first four bytes of an encoded frame are
// its little-endian total length. The Framer turns any io.ReadWriteCloser
// (TCP, WebSocket or an in-process loopback) into a frame stream.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/junsooki/telecom3d/internal/codec"
)

var (
	// ErrOversizedFrame reports a length header above the configured maximum.
	ErrOversizedFrame = errors.New("frame exceeds maximum size")
	// ErrCorruptFrame reports malformed stream data. Framing is lost.
	ErrCorruptFrame = codec.ErrCorruptFrame
	// ErrPeerClosed reports an orderly or zero-byte end of the stream.
	ErrPeerClosed = errors.New("peer closed connection")
	// ErrHandshake reports an incompatible or malformed peer hello.
	ErrHandshake = errors.New("handshake failed")
	// ErrUnknownTransport reports an unsupported transport kind.
	ErrUnknownTransport = errors.New("unknown transport")
)

// DefaultMaxFrameSize bounds a single encoded frame on the wire.
const DefaultMaxFrameSize = 50 << 20

// Transport kinds.
const (
	KindTCP       = "tcp"
	KindWebSocket = "ws"
)

// FrameSender sends encoded frames.
type FrameSender interface {
	SendFrame(data []byte) error
}

// Listener accepts stream connections.
type Listener interface {
	Accept(ctx context.Context) (io.ReadWriteCloser, error)
	Addr() net.Addr
	Close() error
}

// Listen opens a listener of the given kind. wsPath is only used for
// WebSocket listeners.
func Listen(kind, addr, wsPath string) (Listener, error) {
	switch kind {
	case KindTCP, "":
		ln, err := ListenTCP(addr)
		if err != nil {
			return nil, err
		}
		return ln, nil
	case KindWebSocket:
		ln, err := ListenWebSocket(addr, wsPath)
		if err != nil {
			return nil, err
		}
		return ln, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownTransport, kind)
	}
}

// Dial connects to a peer listening with the given kind.
func Dial(ctx context.Context, kind, addr, wsPath string) (io.ReadWriteCloser, error) {
	switch kind {
	case KindTCP, "":
		return DialTCP(ctx, addr)
	case KindWebSocket:
		conn, err := DialWebSocket(ctx, "ws://"+addr+wsPath)
		if err != nil {
			return nil, err
		}
		return conn, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownTransport, kind)
	}
}

// writeFull writes all of p, retrying short writes.
func writeFull(w io.Writer, p []byte) (int, error) {
	total := 0
	for len(p) > 0 {
		n, err := w.Write(p)
		total += n
		if err != nil {
			return total, err
		}
		if n == 0 {
			return total, io.ErrShortWrite
		}
		p = p[n:]
	}
	return total, nil
}
