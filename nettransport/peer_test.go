package nettransport

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbrt/pieceswarm/pieceswarm"
	"github.com/mbrt/pieceswarm/wire"
)

func TestPeerSendReceiveRoundTrip(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	pa := NewPeer(a, &pieceswarm.Context{})
	pb := NewPeer(b, &pieceswarm.Context{})

	msg := wire.Message{Kind: wire.KindPieceRequest, PieceRequest: wire.PieceRequest{Index: 7}}

	errCh := make(chan error, 1)
	go func() { errCh <- pa.Send(context.Background(), msg) }()

	got, err := pb.Receive(context.Background())
	require.NoError(t, err)
	require.NoError(t, <-errCh)
	assert.Equal(t, msg, got)
}

func TestPeerReceiveUnblocksOnContextCancel(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	pb := NewPeer(b, &pieceswarm.Context{})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		_, err := pb.Receive(ctx)
		done <- err
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("Receive did not unblock after context cancellation")
	}
}

func TestPeerClosedReportsTrueAfterClose(t *testing.T) {
	a, b := net.Pipe()
	defer b.Close()

	pa := NewPeer(a, &pieceswarm.Context{})
	assert.False(t, pa.Closed())
	require.NoError(t, pa.Close())
	assert.True(t, pa.Closed())
}
