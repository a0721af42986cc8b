package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/mbrt/pieceswarm/hashtree"
	"github.com/mbrt/pieceswarm/merkle"
	"github.com/mbrt/pieceswarm/nettransport"
	"github.com/mbrt/pieceswarm/pieceio"
	"github.com/mbrt/pieceswarm/pieceswarm"
)

// FetchCmd downloads a single file identified by its Merkle root hash
// from a list of candidate hosts, tried in order, falling back to the
// next on a dial timeout or any other per-host failure.
type FetchCmd struct {
	Addr     string `help:"also listen on this address and serve pieces back while fetching"`
	PieceLen int    `arg:"--piece-len" default:"262144" help:"piece size in bytes"`
	Pieces   int    `arg:"required" help:"number of pieces in the file"`
	Length   int64  `arg:"required" help:"total byte length of the file"`
	HashDB   string `help:"path to the hash-tree repository (default: <out>.hashtree)"`
	Progress bool   `default:"true"`

	RootHash string   `arg:"positional" help:"hex Merkle root hash of the file to fetch"`
	Out      string   `arg:"positional" help:"output file path"`
	Hosts    []string `arg:"positional" arity:"+" help:"peer addresses to try, in order"`
}

func fetchErr(cmd FetchCmd, debug bool) error {
	rootHash, err := merkle.ParseHash(cmd.RootHash)
	if err != nil {
		return fmt.Errorf("parsing root hash: %w", err)
	}

	hashDB := cmd.HashDB
	if hashDB == "" {
		hashDB = cmd.Out + ".hashtree"
	}
	repo, err := hashtree.Open(hashDB)
	if err != nil {
		return fmt.Errorf("opening hash-tree repository: %w", err)
	}
	defer repo.Close()

	tree, ok, err := repo.Load(context.Background(), rootHash)
	if err != nil {
		return fmt.Errorf("loading hash tree: %w", err)
	}
	if !ok {
		tree = merkle.NewFromRoot(cmd.Pieces, rootHash)
	}

	store, err := pieceio.Open(cmd.Out, cmd.Pieces, cmd.PieceLen, cmd.Length)
	if err != nil {
		return fmt.Errorf("opening piece store: %w", err)
	}
	defer store.Close()

	file := &pieceswarm.SharedFile{Hash: rootHash, HashTree: tree, PieceLen: cmd.PieceLen, Store: store}

	self := pieceswarm.NewPeerID()
	var server pieceswarm.Server
	connector := nettransport.NewConnector(self, nettransport.NetworkDialer{Net: "tcp", Dialer: nettransport.DefaultDialer})
	if cmd.Addr != "" {
		sock, err := nettransport.Listen(cmd.Addr)
		if err != nil {
			return fmt.Errorf("listening on %q: %w", cmd.Addr, err)
		}
		defer sock.Close()
		server = nettransport.NewServer(sock, func(h merkle.Hash) (*pieceswarm.SharedFile, bool) {
			if h == file.Hash {
				return file, true
			}
			return nil, false
		})
		connector = nettransport.NewConnector(self, sock)
	}

	cfg := pieceswarm.Config{Resolver: debugResolver(debug)}
	e := pieceswarm.NewExchanger(server, connector, repo, cfg)

	fmt.Printf("fetching %v into %q: peer id %v, %d hosts to try\n", rootHash, cmd.Out, e.Self(), len(cmd.Hosts))

	ctx, cancel := context.WithCancel(context.Background())
	go waitForInterrupt(cancel)

	if server != nil {
		go e.StartDistributing(ctx)
	}
	if cmd.Progress {
		go progressBar(ctx, file)
	}

	e.StartDownloading(ctx, cmd.Hosts, file)
	waitForDownloadDone(ctx, e)

	if file.HashTree.GetLeafStates().Len() == file.HashTree.N() {
		fmt.Printf("%q: all %d pieces fetched\n", cmd.Out, file.HashTree.N())
		return nil
	}
	return fmt.Errorf("%q: only %d/%d pieces fetched across %d hosts", cmd.Out,
		file.HashTree.GetLeafStates().Len(), file.HashTree.N(), len(cmd.Hosts))
}

// waitForDownloadDone polls the exchanger's download-target slot until it
// clears, which tryDownload guarantees happens once it's done walking
// hosts, however it exits.
func waitForDownloadDone(ctx context.Context, e *pieceswarm.Exchanger) {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !e.GetDownloadingFile().Ok {
				return
			}
		}
	}
}

func progressBar(ctx context.Context, file *pieceswarm.SharedFile) {
	start := time.Now()
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			got := file.HashTree.GetLeafStates().Len()
			total := file.HashTree.N()
			fmt.Fprintf(os.Stdout, "%v: %d/%d pieces (%s)\n",
				time.Since(start).Round(time.Second), got, total,
				humanize.Bytes(uint64(got)*uint64(file.PieceLen)))
			if got == total {
				return
			}
		}
	}
}
