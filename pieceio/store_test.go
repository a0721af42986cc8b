package pieceio

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteThenReadPiece(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(filepath.Join(dir, "file.bin"), 3, 4, 10)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	require.NoError(t, store.WritePiece(0, []byte("abcd")))
	require.NoError(t, store.WritePiece(1, []byte("efgh")))
	require.NoError(t, store.WritePiece(2, []byte("ij")))

	b, err := store.ReadPiece(0)
	require.NoError(t, err)
	assert.Equal(t, []byte("abcd"), b)

	b, err = store.ReadPiece(2)
	require.NoError(t, err)
	assert.Equal(t, []byte("ij"), b)
}

func TestWritePieceRejectsWrongLength(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(filepath.Join(dir, "file.bin"), 1, 4, 4)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	err = store.WritePiece(0, []byte("abc"))
	assert.Error(t, err)
}
