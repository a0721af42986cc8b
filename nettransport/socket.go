package nettransport

import (
	"context"
	"net"
)

// Socket pairs a listener with a dialer so a single value can both accept
// incoming peer connections and dial outgoing ones on the same network.
type Socket struct {
	net.Listener
	dialer WithContext
}

// NewSocket builds a Socket from a listener and the dialer used to reach
// other peers on the listener's network.
func NewSocket(l net.Listener, d WithContext) Socket {
	return Socket{Listener: l, dialer: d}
}

// Dial reaches addr over the socket's network.
func (s Socket) Dial(ctx context.Context, addr string) (net.Conn, error) {
	return s.dialer.DialContext(ctx, s.Network(), addr)
}

// Network returns the network the socket listens and dials on, so a
// Socket satisfies Dialer as well as net.Listener.
func (s Socket) Network() string {
	return s.Listener.Addr().Network()
}

// Listen opens a TCP socket bound to addr, suitable for both accepting
// connections and dialing peers.
func Listen(addr string) (Socket, error) {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return Socket{}, err
	}
	return NewSocket(l, DefaultDialer), nil
}
