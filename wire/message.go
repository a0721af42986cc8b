// Package wire defines the messages exchanged between peers and a simple
// length-prefixed gob framing for them. The wire encoding is explicitly
// unspecified by the system this implements; gob is chosen because it is
// the standard library's own answer to "opaque framing for an internal
// protocol", the same choice made elsewhere in the example pack for an
// equally out-of-scope RPC layer.
package wire

import "github.com/mbrt/pieceswarm/merkle"

// Kind tags the payload carried by a Message.
type Kind uint8

const (
	KindHandshake Kind = iota
	KindPieceRequest
	KindPieceResponse
)

func (k Kind) String() string {
	switch k {
	case KindHandshake:
		return "handshake"
	case KindPieceRequest:
		return "piece_request"
	case KindPieceResponse:
		return "piece_response"
	default:
		return "unknown"
	}
}

// Message is the single wire type exchanged over a Peer connection. Only
// the field matching Kind is meaningful; the others are zero.
type Message struct {
	Kind          Kind
	Handshake     Handshake
	PieceRequest  PieceRequest
	PieceResponse PieceResponse
}

// Handshake is sent once, immediately after a connection is established,
// so the accepting side knows which shared file the session concerns and
// who it's talking to.
type Handshake struct {
	PeerID   [16]byte
	FileHash merkle.Hash
}

// PieceRequest asks the peer for the piece at Index.
type PieceRequest struct {
	Index uint64
}

// PieceResponse carries one verified-by-sender piece along with the proof
// the receiver needs to verify it locally.
type PieceResponse struct {
	Index    uint64
	Bytes    []byte
	LeafHash merkle.Hash
	Path     []merkle.Hash
}
