package hashtree

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbrt/pieceswarm/merkle"
)

func openTestRepo(t *testing.T) *Repository {
	t.Helper()
	dir := t.TempDir()
	repo, err := Open(filepath.Join(dir, "hashtree.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestCreateOrReplaceThenLoad(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	hashes := []merkle.Hash{merkle.Sum([]byte("a")), merkle.Sum([]byte("b")), merkle.Sum([]byte("c"))}
	tree := merkle.NewFromPieceHashes(hashes)

	require.NoError(t, repo.CreateOrReplace(ctx, tree))

	loaded, ok, err := repo.Load(ctx, tree.RootHash())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, tree.N(), loaded.N())
	assert.Equal(t, tree.RootHash(), loaded.RootHash())
	for i := range hashes {
		assert.Equal(t, hashes[i], loaded.GetPieceHash(i))
	}
	assert.Equal(t, 3, loaded.GetLeafStates().Len())
}

func TestLoadMissingReturnsNotOK(t *testing.T) {
	repo := openTestRepo(t)
	_, ok, err := repo.Load(context.Background(), merkle.Sum([]byte("nope")))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCreateOrReplaceOverwritesSameKey(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	downloader := merkle.NewFromRoot(3, merkle.NewFromPieceHashes([]merkle.Hash{
		merkle.Sum([]byte("a")), merkle.Sum([]byte("b")), merkle.Sum([]byte("c")),
	}).RootHash())
	require.NoError(t, repo.CreateOrReplace(ctx, downloader))

	loaded, ok, err := repo.Load(ctx, downloader.RootHash())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 0, loaded.GetLeafStates().Len())

	full := merkle.NewFromPieceHashes([]merkle.Hash{
		merkle.Sum([]byte("a")), merkle.Sum([]byte("b")), merkle.Sum([]byte("c")),
	})
	require.NoError(t, repo.CreateOrReplace(ctx, full))

	loaded, ok, err = repo.Load(ctx, full.RootHash())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 3, loaded.GetLeafStates().Len())
}
