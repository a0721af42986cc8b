package nettransport

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/anacrolix/chansync"

	"github.com/mbrt/pieceswarm/pieceswarm"
	"github.com/mbrt/pieceswarm/wire"
)

// Peer is a pieceswarm.Peer backed by a plain net.Conn, framed with the
// wire package's length-prefixed gob codec.
type Peer struct {
	conn   net.Conn
	pc     *pieceswarm.Context
	closed chansync.SetOnce
	sendMu sync.Mutex
}

// NewPeer wraps an already-connected conn (post-handshake) as a Peer
// carrying pc.
func NewPeer(conn net.Conn, pc *pieceswarm.Context) *Peer {
	return &Peer{conn: conn, pc: pc}
}

// Send writes msg to the connection, honouring ctx's deadline and
// cancellation.
func (p *Peer) Send(ctx context.Context, msg wire.Message) error {
	p.sendMu.Lock()
	defer p.sendMu.Unlock()
	return withDeadline(ctx, p.conn.SetWriteDeadline, func() error {
		return wire.WriteMessage(p.conn, msg)
	})
}

// Receive reads the next message from the connection, honouring ctx's
// deadline and cancellation.
func (p *Peer) Receive(ctx context.Context) (wire.Message, error) {
	var msg wire.Message
	err := withDeadline(ctx, p.conn.SetReadDeadline, func() error {
		m, err := wire.ReadMessage(p.conn)
		msg = m
		return err
	})
	return msg, err
}

// Close marks the peer closed and closes the underlying connection.
func (p *Peer) Close() error {
	p.closed.Set()
	return p.conn.Close()
}

// Closed reports whether Close has been called.
func (p *Peer) Closed() bool {
	return p.closed.IsSet()
}

// Context returns the per-session state this peer carries.
func (p *Peer) Context() *pieceswarm.Context {
	return p.pc
}

// withDeadline runs op against conn, translating ctx's deadline (if any)
// into a connection deadline and racing ctx.Done() against op so
// cancellation without a deadline still unblocks a pending read or write.
func withDeadline(ctx context.Context, setDeadline func(time.Time) error, op func() error) error {
	if dl, ok := ctx.Deadline(); ok {
		setDeadline(dl)
	} else {
		setDeadline(time.Time{})
	}

	done := make(chan error, 1)
	go func() { done <- op() }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		setDeadline(time.Now())
		<-done
		return ctx.Err()
	}
}
