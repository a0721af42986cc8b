package nettransport

import (
	"context"
	"fmt"
	"net"
	"time"

	g "github.com/anacrolix/generics"
	"github.com/pkg/errors"

	"github.com/mbrt/pieceswarm/merkle"
	"github.com/mbrt/pieceswarm/pieceswarm"
	"github.com/mbrt/pieceswarm/wire"
)

// Resolver looks up the SharedFile a handshake's file hash names. It
// returns ok == false for a file the server doesn't know about.
type Resolver func(fileHash merkle.Hash) (*pieceswarm.SharedFile, bool)

// Server accepts inbound peer connections over a net.Listener, performs
// the one-shot handshake that tells it which SharedFile the session
// concerns, and hands back a pieceswarm.Peer.
type Server struct {
	listener net.Listener
	resolve  Resolver
}

// NewServer builds a Server over an already-listening socket.
func NewServer(listener net.Listener, resolve Resolver) *Server {
	return &Server{listener: listener, resolve: resolve}
}

// Accept waits for the next inbound connection, reads its handshake, and
// resolves it to a SharedFile. downloading is ignored: this
// implementation does not interpret the hint, which is opaque at the
// server level.
func (s *Server) Accept(ctx context.Context, self pieceswarm.PeerID, downloading g.Option[merkle.Hash]) (pieceswarm.Peer, error) {
	conn, err := acceptWithContext(ctx, s.listener)
	if err != nil {
		return nil, errors.Wrap(err, "accepting connection")
	}

	msg, err := wire.ReadMessage(conn)
	if err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "reading handshake")
	}
	if msg.Kind != wire.KindHandshake {
		conn.Close()
		return nil, fmt.Errorf("nettransport: expected handshake, got %v", msg.Kind)
	}

	file, ok := s.resolve(msg.Handshake.FileHash)
	if !ok {
		conn.Close()
		return nil, fmt.Errorf("nettransport: unknown file %v", msg.Handshake.FileHash)
	}

	reply := wire.Message{Kind: wire.KindHandshake, Handshake: wire.Handshake{PeerID: self, FileHash: file.Hash}}
	if err := wire.WriteMessage(conn, reply); err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "sending handshake reply")
	}

	pc := &pieceswarm.Context{SharedFile: file}
	return NewPeer(conn, pc), nil
}

// acceptWithContext waits for the listener's next connection, unblocking
// early if ctx is cancelled and the listener supports a deadline (as
// *net.TCPListener does).
func acceptWithContext(ctx context.Context, l net.Listener) (net.Conn, error) {
	type deadliner interface {
		SetDeadline(time.Time) error
	}
	if dl, ok := l.(deadliner); ok {
		stop := make(chan struct{})
		defer close(stop)
		go func() {
			select {
			case <-ctx.Done():
				dl.SetDeadline(time.Now())
			case <-stop:
			}
		}()
	}
	conn, err := l.Accept()
	if err != nil && ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return conn, err
}
