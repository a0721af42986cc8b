// Package pieceio is the local on-disk backing store for piece bytes,
// adapted from the file-based storage backend in the example pack down to
// the single fixed-length-piece file this system needs; disk layout of
// piece data is otherwise out of scope.
package pieceio

import (
	"os"

	"github.com/pkg/errors"
)

// Store reads and writes fixed-length pieces of a single file on disk,
// identified by piece index. The file is pre-sized to its final length on
// open so ReadPiece/WritePiece never need to grow it.
type Store struct {
	f          *os.File
	pieceLen   int
	totalLen   int64
	pieceCount int
}

// Open opens (creating if necessary) the file at path, sized to hold
// pieceCount pieces of pieceLen bytes each (the final piece may be
// shorter; totalLen is the real file size).
func Open(path string, pieceCount, pieceLen int, totalLen int64) (*Store, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0600)
	if err != nil {
		return nil, errors.Wrap(err, "opening piece store")
	}
	if err := f.Truncate(totalLen); err != nil {
		f.Close()
		return nil, errors.Wrap(err, "sizing piece store")
	}
	return &Store{f: f, pieceLen: pieceLen, totalLen: totalLen, pieceCount: pieceCount}, nil
}

// Close releases the underlying file handle.
func (s *Store) Close() error {
	return s.f.Close()
}

func (s *Store) pieceBounds(i int) (offset int64, length int) {
	offset = int64(i) * int64(s.pieceLen)
	length = s.pieceLen
	if remaining := s.totalLen - offset; remaining < int64(length) {
		length = int(remaining)
	}
	return offset, length
}

// ReadPiece returns the bytes of piece i.
func (s *Store) ReadPiece(i int) ([]byte, error) {
	offset, length := s.pieceBounds(i)
	buf := make([]byte, length)
	if _, err := s.f.ReadAt(buf, offset); err != nil {
		return nil, errors.Wrapf(err, "reading piece %d", i)
	}
	return buf, nil
}

// WritePiece writes b as the bytes of piece i. b's length must match the
// piece's expected length (pieceLen, except possibly for the final
// piece).
func (s *Store) WritePiece(i int, b []byte) error {
	offset, length := s.pieceBounds(i)
	if len(b) != length {
		return errors.Errorf("piece %d: got %d bytes, want %d", i, len(b), length)
	}
	if _, err := s.f.WriteAt(b, offset); err != nil {
		return errors.Wrapf(err, "writing piece %d", i)
	}
	return nil
}
