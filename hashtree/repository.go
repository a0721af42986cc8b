// Package hashtree persists merkle.Tree snapshots keyed by their root
// hash in a single embedded bbolt database, so a downloading or seeding
// node can restart without re-verifying pieces it already holds.
package hashtree

import (
	"bytes"
	"context"
	"encoding/gob"
	"time"

	"github.com/pkg/errors"
	"go.etcd.io/bbolt"

	"github.com/mbrt/pieceswarm/merkle"
)

var treesBucket = []byte("trees")

// record is the gob-serialized form of a Tree snapshot.
type record struct {
	N        int
	RootHash merkle.Hash
	Pieces   []merkle.Hash
}

// Repository is a durable create-or-replace store of hash trees, keyed by
// their root hash. A single bbolt.DB transaction backs each call, so
// concurrent callers for the same key serialize and the last writer wins,
// and the repository is safe to share across concurrently running peer
// sessions without an additional lock.
type Repository struct {
	db *bbolt.DB
}

// Open opens (creating if necessary) the bbolt database at path and
// ensures the trees bucket exists.
func Open(path string) (*Repository, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, errors.Wrap(err, "opening hash-tree database")
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(treesBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "creating trees bucket")
	}
	return &Repository{db: db}, nil
}

// Close releases the underlying database handle.
func (r *Repository) Close() error {
	return r.db.Close()
}

// CreateOrReplace atomically persists t keyed by its root hash.
func (r *Repository) CreateOrReplace(ctx context.Context, t *merkle.Tree) error {
	pieces := make([]merkle.Hash, t.N())
	for i := range pieces {
		pieces[i] = t.GetPieceHash(i)
	}
	rec := record{N: t.N(), RootHash: t.RootHash(), Pieces: pieces}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(rec); err != nil {
		return errors.Wrap(err, "encoding tree snapshot")
	}

	key := rootHashKey(t.RootHash())
	return r.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(treesBucket).Put(key, buf.Bytes())
	})
}

// Load returns the persisted tree for rootHash, or ok == false if none
// has been stored.
func (r *Repository) Load(ctx context.Context, rootHash merkle.Hash) (t *merkle.Tree, ok bool, err error) {
	key := rootHashKey(rootHash)
	var raw []byte
	err = r.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(treesBucket).Get(key)
		if v != nil {
			raw = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, false, errors.Wrap(err, "reading tree snapshot")
	}
	if raw == nil {
		return nil, false, nil
	}
	var rec record
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&rec); err != nil {
		return nil, false, errors.Wrap(err, "decoding tree snapshot")
	}
	return merkle.Restore(rec.N, rec.RootHash, rec.Pieces), true, nil
}

func rootHashKey(h merkle.Hash) []byte {
	return []byte(h.String())
}
