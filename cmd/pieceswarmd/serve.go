package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/anacrolix/log"

	"github.com/mbrt/pieceswarm/hashtree"
	"github.com/mbrt/pieceswarm/merkle"
	"github.com/mbrt/pieceswarm/nettransport"
	"github.com/mbrt/pieceswarm/pieceio"
	"github.com/mbrt/pieceswarm/pieceswarm"
)

// ServeCmd seeds a single file: it hashes it into the two-level Merkle
// tree, opens it as the local piece store, and accepts connections until
// interrupted.
type ServeCmd struct {
	Addr     string `arg:"required" help:"listen address, e.g. :42070"`
	PieceLen int    `arg:"--piece-len" default:"262144" help:"piece size in bytes"`
	HashDB   string `help:"path to the hash-tree repository (default: <file>.hashtree)"`
	File     string `arg:"positional" help:"path of the file to seed"`
}

func serveErr(cmd ServeCmd, debug bool) error {
	file, err := buildSeederFile(cmd.File, cmd.PieceLen)
	if err != nil {
		return fmt.Errorf("building shared file: %w", err)
	}
	defer file.Store.Close()

	hashDB := cmd.HashDB
	if hashDB == "" {
		hashDB = cmd.File + ".hashtree"
	}
	repo, err := hashtree.Open(hashDB)
	if err != nil {
		return fmt.Errorf("opening hash-tree repository: %w", err)
	}
	defer repo.Close()
	if err := repo.CreateOrReplace(context.Background(), file.HashTree); err != nil {
		return fmt.Errorf("persisting hash tree: %w", err)
	}

	sock, err := nettransport.Listen(cmd.Addr)
	if err != nil {
		return fmt.Errorf("listening on %q: %w", cmd.Addr, err)
	}
	defer sock.Close()

	server := nettransport.NewServer(sock, func(h merkle.Hash) (*pieceswarm.SharedFile, bool) {
		if h == file.Hash {
			return file, true
		}
		return nil, false
	})

	self := pieceswarm.NewPeerID()
	cfg := pieceswarm.Config{Resolver: debugResolver(debug)}
	e := pieceswarm.NewExchanger(server, nettransport.NewConnector(self, sock), repo, cfg)

	fmt.Printf("seeding %q (%v): peer id %v, root %v, listening on %v\n",
		cmd.File, file.Hash, e.Self(), file.Hash, sock.Addr())

	ctx, cancel := context.WithCancel(context.Background())
	go waitForInterrupt(cancel)
	e.StartDistributing(ctx)
	return nil
}

// buildSeederFile hashes every piece of path on disk and opens it as a
// read/write piece store, producing a SharedFile that already holds every
// piece.
func buildSeederFile(path string, pieceLen int) (*pieceswarm.SharedFile, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %q: %w", path, err)
	}
	totalLen := info.Size()
	pieceCount := int((totalLen + int64(pieceLen) - 1) / int64(pieceLen))
	if pieceCount == 0 {
		pieceCount = 1
	}

	store, err := pieceio.Open(path, pieceCount, pieceLen, totalLen)
	if err != nil {
		return nil, fmt.Errorf("opening piece store: %w", err)
	}

	hashes := make([]merkle.Hash, pieceCount)
	for i := range hashes {
		b, err := store.ReadPiece(i)
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("reading piece %d: %w", i, err)
		}
		hashes[i] = merkle.Sum(b)
	}
	tree := merkle.NewFromPieceHashes(hashes)

	return &pieceswarm.SharedFile{
		Hash:     tree.RootHash(),
		HashTree: tree,
		PieceLen: pieceLen,
		Store:    store,
	}, nil
}

func waitForInterrupt(cancel context.CancelFunc) {
	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
	sig := <-c
	log.Printf("received %v, shutting down", sig)
	cancel()
}
