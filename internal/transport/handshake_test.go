package transport

import (
	"context"
	"encoding/binary"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/junsooki/telecom3d/internal/codec"
)

type handshakeResult struct {
	peer Hello
	err  error
}

func handshakePair(t *testing.T, server, client Hello) (handshakeResult, handshakeResult) {
	t.Helper()
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan handshakeResult, 1)
	go func() {
		peer, err := Handshake(ctx, b, client)
		done <- handshakeResult{peer, err}
	}()
	peer, err := Handshake(ctx, a, server)
	return handshakeResult{peer, err}, <-done
}

func TestHandshake(t *testing.T) {
	server := NewHello(RoleServer, codec.CompressionZlib)
	client := NewHello(RoleClient, codec.CompressionZlib)
	assert.NotEqual(t, server.StreamID, client.StreamID)

	s, c := handshakePair(t, server, client)
	require.NoError(t, s.err)
	require.NoError(t, c.err)
	assert.Equal(t, client, s.peer)
	assert.Equal(t, server, c.peer)
}

func TestHandshakeMismatch(t *testing.T) {
	tests := []struct {
		name           string
		server, client Hello
	}{
		{
			name:   "compression",
			server: NewHello(RoleServer, codec.CompressionZlib),
			client: NewHello(RoleClient, codec.CompressionZstd),
		},
		{
			name:   "roles",
			server: NewHello(RoleServer, codec.CompressionZlib),
			client: NewHello(RoleServer, codec.CompressionZlib),
		},
		{
			name:   "version",
			server: NewHello(RoleServer, codec.CompressionZlib),
			client: Hello{Version: ProtocolVersion + 1, Role: RoleClient, Compression: codec.CompressionZlib},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, c := handshakePair(t, tt.server, tt.client)
			assert.ErrorIs(t, s.err, ErrHandshake)
			assert.ErrorIs(t, c.err, ErrHandshake)
		})
	}
}

func TestHandshakeLoopback(t *testing.T) {
	lb := Loopback()
	defer lb.Close()
	local := NewHello(RoleDebug, codec.CompressionZlib)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	peer, err := Handshake(ctx, lb, local)
	require.NoError(t, err)
	assert.Equal(t, local, peer)
}

func TestHandshakeGarbage(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()
	go func() {
		_, _ = b.Write(binary.LittleEndian.AppendUint32(nil, 1<<20))
		_, _ = io.Copy(io.Discard, b)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := Handshake(ctx, a, NewHello(RoleServer, codec.CompressionZlib))
	assert.ErrorIs(t, err, ErrHandshake)
}

func TestHandshakeTimeout(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err := Handshake(ctx, a, NewHello(RoleClient, codec.CompressionZlib))
	assert.ErrorIs(t, err, ErrHandshake)
	assert.Less(t, time.Since(start), 5*time.Second)
}
