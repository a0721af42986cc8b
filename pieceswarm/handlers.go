package pieceswarm

import (
	"context"

	"github.com/pkg/errors"

	"github.com/mbrt/pieceswarm/merkle"
	"github.com/mbrt/pieceswarm/wire"
)

// Handler reacts to one inbound message kind and optionally produces a
// reply to send back on the same connection.
type Handler interface {
	Handle(ctx context.Context, pc *Context, msg wire.Message) (reply wire.Message, send bool, err error)
}

// HandlerResolver maps a wire.Kind to the Handler that serves it, mirroring
// the teacher's mainReadLoop switch over message type but as a table so
// new message kinds register without the exchanger's session loops
// needing to know about them.
type HandlerResolver struct {
	handlers map[wire.Kind]Handler
}

// NewHandlerResolver returns a resolver with the two canonical handlers
// already registered.
func NewHandlerResolver() *HandlerResolver {
	r := &HandlerResolver{handlers: make(map[wire.Kind]Handler)}
	r.Register(wire.KindPieceRequest, PieceRequestHandler{})
	r.Register(wire.KindPieceResponse, PieceResponseHandler{})
	return r
}

// Register installs h as the handler for kind, replacing any prior one.
func (r *HandlerResolver) Register(kind wire.Kind, h Handler) {
	r.handlers[kind] = h
}

// Resolve returns the handler registered for kind, if any.
func (r *HandlerResolver) Resolve(kind wire.Kind) (Handler, bool) {
	h, ok := r.handlers[kind]
	return h, ok
}

// PieceRequestHandler serves a requested piece from the local store, if
// held, along with the Merkle path the requester needs to verify it.
type PieceRequestHandler struct{}

func (PieceRequestHandler) Handle(_ context.Context, pc *Context, msg wire.Message) (wire.Message, bool, error) {
	i := int(msg.PieceRequest.Index)
	tree := pc.SharedFile.HashTree
	hash := tree.GetPieceHash(i)
	if hash.IsEmpty() {
		return wire.Message{}, false, nil
	}
	bytes, err := pc.SharedFile.Store.ReadPiece(i)
	if err != nil {
		return wire.Message{}, false, errors.Wrapf(err, "reading piece %d", i)
	}
	reply := wire.Message{
		Kind: wire.KindPieceResponse,
		PieceResponse: wire.PieceResponse{
			Index:    msg.PieceRequest.Index,
			Bytes:    bytes,
			LeafHash: hash,
			Path:     tree.GetPath(i),
		},
	}
	return reply, true, nil
}

// PieceResponseHandler verifies an incoming piece against the local tree
// and, only if it checks out, writes it to the local store. A piece that
// fails verification is dropped silently: that's VerificationFailure from
// the error-kind table, not an error this handler surfaces.
type PieceResponseHandler struct{}

func (PieceResponseHandler) Handle(_ context.Context, pc *Context, msg wire.Message) (wire.Message, bool, error) {
	i := int(msg.PieceResponse.Index)
	tree := pc.SharedFile.HashTree
	itemHash := merkle.Sum(msg.PieceResponse.Bytes)
	if !tree.TryAdd(i, itemHash, msg.PieceResponse.Path) {
		return wire.Message{}, false, nil
	}
	if err := pc.SharedFile.Store.WritePiece(i, msg.PieceResponse.Bytes); err != nil {
		return wire.Message{}, false, errors.Wrapf(err, "writing piece %d", i)
	}
	return wire.Message{}, false, nil
}
