package pieceswarm

import (
	"context"
	"errors"
	"io"
	"net"

	"github.com/anacrolix/log"
	"golang.org/x/sync/errgroup"

	"github.com/mbrt/pieceswarm/wire"
)

// handleDownloadingPeer runs one full download session against peer: a
// receive loop dispatching inbound messages, concurrently with a sender
// that requests every piece the local tree is still missing. Whichever
// finishes first cancels the session context so the other unwinds, and
// the session only returns once both have (the concurrency-join pattern).
func (e *Exchanger) handleDownloadingPeer(ctx context.Context, peer Peer) {
	sessionCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	grp, gctx := errgroup.WithContext(sessionCtx)
	grp.Go(func() error {
		e.receiveLoop(gctx, peer)
		cancel()
		return nil
	})
	grp.Go(func() error {
		e.sendRequests(gctx, peer)
		cancel()
		return nil
	})
	grp.Wait()
}

// startReceiving runs a serve session against peer: a single receive loop
// that dispatches every inbound message until the peer closes, the
// connection errors terminally, or ctx fires. ReceiveError elements are
// logged and the loop continues; they never end the session on their own.
func (e *Exchanger) startReceiving(ctx context.Context, peer Peer) {
	e.receiveLoop(ctx, peer)
	if err := e.repo.CreateOrReplace(ctx, peer.Context().SharedFile.HashTree); err != nil {
		e.logger.Levelf(log.Warning, "persisting hash tree: %v", err)
	}
}

// receiveLoop is the single dispatch point for inbound traffic, shared by
// both the serving and the downloading role; only the outbound request
// task that runs alongside it in handleDownloadingPeer differs between
// the two.
func (e *Exchanger) receiveLoop(ctx context.Context, peer Peer) {
	pc := peer.Context()
	for {
		if ctx.Err() != nil {
			return
		}
		msg, err := peer.Receive(ctx)
		if err != nil {
			if peer.Closed() || errors.Is(err, context.Canceled) {
				return
			}
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, net.ErrClosed) {
				return
			}
			e.logger.Levelf(log.Warning, "receive error: %v", err)
			continue
		}
		e.dispatch(ctx, pc, peer, msg)
	}
}

func (e *Exchanger) dispatch(ctx context.Context, pc *Context, peer Peer, msg wire.Message) {
	handler, ok := e.resolver.Resolve(msg.Kind)
	if !ok {
		return
	}
	reply, send, err := handler.Handle(ctx, pc, msg)
	if err != nil {
		e.logger.Levelf(log.Warning, "handler error for %v: %v", msg.Kind, err)
		return
	}
	if !send {
		return
	}
	if err := peer.Send(ctx, reply); err != nil {
		e.logger.Levelf(log.Warning, "sending reply: %v", err)
	}
}

// sendRequests asks peer for every piece the local tree does not yet
// have, in ascending piece-index order, then closes the connection once
// every request has been sent (unless it's already closed).
func (e *Exchanger) sendRequests(ctx context.Context, peer Peer) {
	tree := peer.Context().SharedFile.HashTree
	states := tree.GetLeafStates()
	for i := 0; i < tree.N(); i++ {
		if ctx.Err() != nil {
			return
		}
		if states.Contains(i) {
			continue
		}
		req := wire.Message{Kind: wire.KindPieceRequest, PieceRequest: wire.PieceRequest{Index: uint64(i)}}
		if err := peer.Send(ctx, req); err != nil {
			e.logger.Levelf(log.Warning, "sending piece request %d: %v", i, err)
			return
		}
	}
	if !peer.Closed() {
		if err := peer.Close(); err != nil {
			e.logger.Levelf(log.Warning, "closing peer: %v", err)
		}
	}
}
