package transport

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ProtocolVersion is bumped on incompatible wire changes.
const ProtocolVersion = 1

const maxHelloSize = 4 << 10

// Role is the connection type of a peer.
type Role string

const (
	RoleServer Role = "server"
	RoleClient Role = "client"
	RoleDebug  Role = "debug"
)

// Hello is exchanged by both peers before any frame.
type Hello struct {
	Version     int       `json:"version"`
	StreamID    uuid.UUID `json:"stream_id"`
	Role        Role      `json:"role"`
	Compression string    `json:"compression"`
}

// NewHello returns a Hello for a fresh stream.
func NewHello(role Role, compression string) Hello {
	return Hello{
		Version:     ProtocolVersion,
		StreamID:    uuid.New(),
		Role:        role,
		Compression: compression,
	}
}

func (h Hello) compatible(peer Hello) error {
	if peer.Version != h.Version {
		return fmt.Errorf("%w: protocol version %d, want %d", ErrHandshake, peer.Version, h.Version)
	}
	if peer.Compression != h.Compression {
		return fmt.Errorf("%w: peer compresses with %q, local %q", ErrHandshake, peer.Compression, h.Compression)
	}
	want := map[Role]Role{RoleServer: RoleClient, RoleClient: RoleServer, RoleDebug: RoleDebug}[h.Role]
	if peer.Role != want {
		return fmt.Errorf("%w: %s cannot talk to %q", ErrHandshake, h.Role, peer.Role)
	}
	return nil
}

type deadliner interface {
	SetDeadline(t time.Time) error
}

// Handshake sends local and reads the peer's Hello. Both directions run
// concurrently so unbuffered streams do not deadlock. On error the caller
// must close conn.
func Handshake(ctx context.Context, conn io.ReadWriter, local Hello) (Hello, error) {
	d, hasDeadline := conn.(deadliner)
	if hasDeadline {
		if dl, ok := ctx.Deadline(); ok {
			_ = d.SetDeadline(dl)
		}
		defer d.SetDeadline(time.Time{})
	}

	type result struct {
		hello Hello
		err   error
	}
	writeErr := make(chan error, 1)
	readRes := make(chan result, 1)
	go func() { writeErr <- writeHello(conn, local) }()
	go func() {
		h, err := readHello(conn)
		readRes <- result{h, err}
	}()

	var peer Hello
	for pending := 2; pending > 0; pending-- {
		select {
		case err := <-writeErr:
			if err != nil {
				return Hello{}, fmt.Errorf("%w: send hello: %v", ErrHandshake, err)
			}
		case res := <-readRes:
			if res.err != nil {
				return Hello{}, res.err
			}
			peer = res.hello
		case <-ctx.Done():
			if hasDeadline {
				_ = d.SetDeadline(time.Now())
			}
			return Hello{}, fmt.Errorf("%w: %v", ErrHandshake, ctx.Err())
		}
	}

	if err := local.compatible(peer); err != nil {
		return Hello{}, err
	}
	logrus.WithFields(logrus.Fields{
		"function":    "Handshake",
		"role":        local.Role,
		"stream":      local.StreamID,
		"peer_stream": peer.StreamID,
		"compression": local.Compression,
	}).Info("handshake complete")
	return peer, nil
}

func writeHello(w io.Writer, h Hello) error {
	body, err := json.Marshal(h)
	if err != nil {
		return err
	}
	msg := binary.LittleEndian.AppendUint32(make([]byte, 0, lengthPrefixSize+len(body)), uint32(len(body)))
	msg = append(msg, body...)
	_, err = writeFull(w, msg)
	return err
}

func readHello(r io.Reader) (Hello, error) {
	var hdr [lengthPrefixSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return Hello{}, fmt.Errorf("%w: read hello: %v", ErrHandshake, err)
	}
	n := binary.LittleEndian.Uint32(hdr[:])
	if n == 0 || n > maxHelloSize {
		return Hello{}, fmt.Errorf("%w: hello of %d bytes", ErrHandshake, n)
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return Hello{}, fmt.Errorf("%w: read hello: %v", ErrHandshake, err)
	}
	var h Hello
	if err := json.Unmarshal(body, &h); err != nil {
		return Hello{}, fmt.Errorf("%w: decode hello: %v", ErrHandshake, err)
	}
	return h, nil
}
