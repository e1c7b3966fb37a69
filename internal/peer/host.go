package peer

import (
	"context"
	"fmt"
	"net"

	"github.com/junsooki/telecom3d/internal/config"
	"github.com/junsooki/telecom3d/internal/transport"
)

// Host is the accepting side of a stream.
type Host struct {
	cfg *config.Config
	ln  transport.Listener
}

// NewHost starts listening on the configured address and transport.
func NewHost(cfg *config.Config) (*Host, error) {
	ln, err := transport.Listen(cfg.Network.Transport, cfg.Network.Listen, cfg.Network.WSPath)
	if err != nil {
		return nil, fmt.Errorf("listen: %w", err)
	}
	return &Host{cfg: cfg, ln: ln}, nil
}

// Addr returns the listening address.
func (h *Host) Addr() net.Addr { return h.ln.Addr() }

// Accept waits for one peer, performs the server side of the handshake and
// returns its session.
func (h *Host) Accept(ctx context.Context, opts Options) (*Session, error) {
	conn, err := h.ln.Accept(ctx)
	if err != nil {
		return nil, fmt.Errorf("accept: %w", err)
	}
	local, peer, err := handshake(ctx, h.cfg, conn, transport.RoleServer)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return NewSession(h.cfg, conn, local, peer, opts)
}

// Close stops listening. Accepted sessions are not affected.
func (h *Host) Close() error {
	return h.ln.Close()
}
