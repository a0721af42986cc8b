package nettransport

import (
	"context"
	"errors"
	"fmt"

	pkgerrors "github.com/pkg/errors"

	"github.com/mbrt/pieceswarm/pieceswarm"
	"github.com/mbrt/pieceswarm/wire"
)

// Connector dials outbound peer connections and performs the handshake
// that tells the remote side which SharedFile the session concerns.
type Connector struct {
	self   pieceswarm.PeerID
	dialer Dialer
}

// NewConnector builds a Connector that dials through dialer, which has
// its network already baked in (see NetworkDialer).
func NewConnector(self pieceswarm.PeerID, dialer Dialer) *Connector {
	return &Connector{self: self, dialer: dialer}
}

// NewTCPConnector is a convenience constructor for the common case of
// dialing plain TCP with the standard library's dialer.
func NewTCPConnector(self pieceswarm.PeerID) *Connector {
	return NewConnector(self, NetworkDialer{Net: "tcp", Dialer: DefaultDialer})
}

// Connect dials host, sends the handshake for file, and waits for the
// remote side's handshake reply before returning a usable Peer.
func (c *Connector) Connect(ctx context.Context, file *pieceswarm.SharedFile, host string) (pieceswarm.Peer, error) {
	conn, err := c.dialer.Dial(ctx, host)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: dialing %q: %v", pieceswarm.ErrDialTimeout, host, err)
		}
		return nil, pkgerrors.Wrapf(err, "dialing %q", host)
	}

	hs := wire.Message{Kind: wire.KindHandshake, Handshake: wire.Handshake{PeerID: c.self, FileHash: file.Hash}}
	if err := wire.WriteMessage(conn, hs); err != nil {
		conn.Close()
		return nil, pkgerrors.Wrap(err, "sending handshake")
	}

	reply, err := wire.ReadMessage(conn)
	if err != nil {
		conn.Close()
		return nil, pkgerrors.Wrap(err, "reading handshake reply")
	}
	if reply.Kind != wire.KindHandshake {
		conn.Close()
		return nil, fmt.Errorf("nettransport: expected handshake reply, got %v", reply.Kind)
	}

	pc := &pieceswarm.Context{SharedFile: file}
	return NewPeer(conn, pc), nil
}
