package pieceswarm

import (
	"encoding/hex"

	"github.com/google/uuid"
)

// PeerID uniquely identifies a node for the lifetime of one process. A
// random 128-bit value is globally unique within any reasonable horizon.
type PeerID [16]byte

// NewPeerID generates a fresh random peer id.
func NewPeerID() PeerID {
	var id PeerID
	u := uuid.New()
	copy(id[:], u[:])
	return id
}

func (id PeerID) String() string {
	return hex.EncodeToString(id[:])
}
