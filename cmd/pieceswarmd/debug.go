package main

import (
	"context"

	"github.com/davecgh/go-spew/spew"

	"github.com/mbrt/pieceswarm/pieceswarm"
	"github.com/mbrt/pieceswarm/wire"
)

// debugHandler wraps a Handler to spew.Dump every message it sees, for
// --debug runs.
type debugHandler struct {
	inner pieceswarm.Handler
}

func (d debugHandler) Handle(ctx context.Context, pc *pieceswarm.Context, msg wire.Message) (wire.Message, bool, error) {
	spew.Dump(msg)
	return d.inner.Handle(ctx, pc, msg)
}

// debugResolver returns the default HandlerResolver, wrapping both
// handlers in debugHandler when debug is set.
func debugResolver(debug bool) *pieceswarm.HandlerResolver {
	r := pieceswarm.NewHandlerResolver()
	if debug {
		r.Register(wire.KindPieceRequest, debugHandler{pieceswarm.PieceRequestHandler{}})
		r.Register(wire.KindPieceResponse, debugHandler{pieceswarm.PieceResponseHandler{}})
	}
	return r
}
