package wire

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"io"

	"github.com/pkg/errors"
)

// maxMessageSize bounds a single frame so a misbehaving peer can't make a
// receiver allocate unboundedly from a forged length prefix.
const maxMessageSize = 64 << 20

// WriteMessage frames m as a 4-byte big-endian length prefix followed by
// its gob encoding, and writes it to w.
func WriteMessage(w io.Writer, m Message) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(m); err != nil {
		return errors.Wrap(err, "encoding message")
	}
	if buf.Len() > maxMessageSize {
		return fmt.Errorf("wire: encoded message too large: %d bytes", buf.Len())
	}
	var lenPrefix [4]byte
	binary.BigEndian.PutUint32(lenPrefix[:], uint32(buf.Len()))
	if _, err := w.Write(lenPrefix[:]); err != nil {
		return errors.Wrap(err, "writing length prefix")
	}
	if _, err := w.Write(buf.Bytes()); err != nil {
		return errors.Wrap(err, "writing message body")
	}
	return nil
}

// ReadMessage reads one length-prefixed gob-encoded Message from r.
func ReadMessage(r io.Reader) (Message, error) {
	var lenPrefix [4]byte
	if _, err := io.ReadFull(r, lenPrefix[:]); err != nil {
		return Message{}, err
	}
	n := binary.BigEndian.Uint32(lenPrefix[:])
	if n > maxMessageSize {
		return Message{}, fmt.Errorf("wire: frame too large: %d bytes", n)
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return Message{}, errors.Wrap(err, "reading message body")
	}
	var m Message
	if err := gob.NewDecoder(bytes.NewReader(body)).Decode(&m); err != nil {
		return Message{}, errors.Wrap(err, "decoding message")
	}
	return m, nil
}
