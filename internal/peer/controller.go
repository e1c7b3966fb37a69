package peer

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/junsooki/telecom3d/internal/config"
	"github.com/junsooki/telecom3d/internal/transport"
)

// Controller is the dialing side of a stream.
type Controller struct {
	cfg *config.Config
}

// NewController creates a controller for the configured peer.
func NewController(cfg *config.Config) *Controller {
	return &Controller{cfg: cfg}
}

// Connect dials the peer, performs the client side of the handshake and
// returns its session.
func (c *Controller) Connect(ctx context.Context, opts Options) (*Session, error) {
	log := logrus.WithFields(logrus.Fields{
		"function":  "Connect",
		"peer":      c.cfg.Network.Peer,
		"transport": c.cfg.Network.Transport,
	})
	log.Info("connecting")

	conn, err := transport.Dial(ctx, c.cfg.Network.Transport, c.cfg.Network.Peer, c.cfg.Network.WSPath)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", c.cfg.Network.Peer, err)
	}
	local, peer, err := handshake(ctx, c.cfg, conn, transport.RoleClient)
	if err != nil {
		conn.Close()
		return nil, err
	}
	log.WithField("stream", peer.StreamID).Info("connected")
	return NewSession(c.cfg, conn, local, peer, opts)
}
