// Package pieceswarm implements the piece exchanger: the session-level
// orchestrator that drives inbound (serving) and outbound (downloading)
// peer interactions concurrently over the two-level Merkle piece
// commitment in package merkle.
package pieceswarm

import (
	"context"

	g "github.com/anacrolix/generics"

	"github.com/mbrt/pieceswarm/hashtree"
	"github.com/mbrt/pieceswarm/merkle"
	"github.com/mbrt/pieceswarm/pieceio"
	"github.com/mbrt/pieceswarm/wire"
)

// SharedFile is the identity and local state of one file being
// distributed: its root hash, the Merkle tree tracking which pieces are
// held, the piece length, and the on-disk store backing piece bytes.
type SharedFile struct {
	Hash     merkle.Hash
	HashTree *merkle.Tree
	PieceLen int
	Store    *pieceio.Store
}

// Context is the per-session state a Peer carries and a Handler receives
// by borrow: which SharedFile this session concerns.
type Context struct {
	SharedFile *SharedFile
}

// Peer is a live session bound to one remote endpoint.
type Peer interface {
	Send(ctx context.Context, msg wire.Message) error
	Receive(ctx context.Context) (wire.Message, error)
	Close() error
	Closed() bool
	Context() *Context
}

// Server accepts inbound peer sessions. downloading is the exchanger's
// current download target, passed through as an opaque hint the server
// may use for peer advertisement; it is not a filter on what gets served.
type Server interface {
	Accept(ctx context.Context, self PeerID, downloading g.Option[merkle.Hash]) (Peer, error)
}

// Connector dials outbound peer sessions.
type Connector interface {
	Connect(ctx context.Context, file *SharedFile, host string) (Peer, error)
}

// Repository is the subset of hashtree.Repository the exchanger depends
// on, named here so callers can substitute a fake in tests.
type Repository interface {
	CreateOrReplace(ctx context.Context, t *merkle.Tree) error
	Load(ctx context.Context, rootHash merkle.Hash) (*merkle.Tree, bool, error)
}

var _ Repository = (*hashtree.Repository)(nil)
