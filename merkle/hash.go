// Package merkle implements the two-level Merkle piece commitment: a
// fixed-width hash primitive (Hash) and the tree structure (Tree) that
// commits to a piece count that need not be a power of two, verifies
// individual pieces against sibling paths, and tracks which pieces the
// local node already holds.
package merkle

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Size is the width of a Hash in bytes.
const Size = sha256.Size

// Hash is an opaque, fixed-width digest. The zero value is the empty
// sentinel and is distinct from any digest a real Concat can produce.
type Hash [Size]byte

// Empty is the sentinel value for "no piece held yet". Concat never
// receives it as an operand on a successful tryAdd path; callers must not
// feed it the empty sentinel.
var Empty Hash

// IsEmpty reports whether h is the empty sentinel.
func (h Hash) IsEmpty() bool {
	return h == Empty
}

// Equal reports whether h and other are the same digest.
func (h Hash) Equal(other Hash) bool {
	return h == other
}

// Concat returns H(h‖other), the hash of the byte concatenation of the two
// digests. Used to combine a node's two children into their parent.
func (h Hash) Concat(other Hash) Hash {
	buf := make([]byte, 0, 2*Size)
	buf = append(buf, h[:]...)
	buf = append(buf, other[:]...)
	return SumBytes(buf)
}

// Sum hashes b and returns the resulting digest. Used to hash raw piece
// bytes into a leaf hash.
func Sum(b []byte) Hash {
	return SumBytes(b)
}

// SumBytes hashes an arbitrary byte slice under the package's chosen hash
// function (SHA-256).
func SumBytes(b []byte) (h Hash) {
	sum := sha256.Sum256(b)
	return Hash(sum)
}

// ParseHash parses the hex encoding String produces, as accepted from CLI
// flags and config files.
func ParseHash(s string) (Hash, error) {
	var h Hash
	b, err := hex.DecodeString(s)
	if err != nil {
		return h, fmt.Errorf("merkle: parsing hash %q: %w", s, err)
	}
	if len(b) != Size {
		return h, fmt.Errorf("merkle: hash %q has %d bytes, want %d", s, len(b), Size)
	}
	copy(h[:], b)
	return h, nil
}

func (h Hash) String() string {
	const hextable = "0123456789abcdef"
	buf := make([]byte, 2*Size)
	for i, b := range h {
		buf[i*2] = hextable[b>>4]
		buf[i*2+1] = hextable[b&0xf]
	}
	return string(buf)
}
