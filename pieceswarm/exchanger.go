package pieceswarm

import (
	"context"

	g "github.com/anacrolix/generics"
	"github.com/anacrolix/log"
	anasync "github.com/anacrolix/sync"

	"github.com/mbrt/pieceswarm/merkle"
)

// sessionCell is the exchanger's single logical unit of mutable state: the
// currently running download task's cancellation handle, the channel that
// closes when that task has fully drained, and the root hash it's
// targeting. It is mutated only by StartDownloading and tryDownload's
// terminal cleanup. StartDownloading calls serialise through retargetMu,
// and each one awaits the prior task's done channel, which closes only
// after that task's cleanup has run.
type sessionCell struct {
	cancel   context.CancelFunc
	done     <-chan struct{}
	fileHash g.Option[merkle.Hash]
}

// Exchanger is the session-level orchestrator: it drives the serving loop
// (StartDistributing) and the downloading loop (StartDownloading) over a
// Server, a Connector, and a hash-tree Repository.
type Exchanger struct {
	self      PeerID
	server    Server
	connector Connector
	repo      Repository
	resolver  *HandlerResolver
	logger    log.Logger

	// retargetMu serialises StartDownloading calls against each other so
	// the read-cancel-await-publish sequence in a retarget never races
	// with a second concurrent retarget.
	retargetMu anasync.Mutex
	// mu guards sessionCell, the exchanger's single shared-state cell.
	mu    anasync.Mutex
	state sessionCell
}

// NewExchanger builds an Exchanger with a freshly generated peer id.
func NewExchanger(server Server, connector Connector, repo Repository, cfg Config) *Exchanger {
	cfg = cfg.withDefaults()
	return &Exchanger{
		self:      NewPeerID(),
		server:    server,
		connector: connector,
		repo:      repo,
		resolver:  cfg.Resolver,
		logger:    cfg.Logger,
	}
}

// Self returns the exchanger's peer id.
func (e *Exchanger) Self() PeerID {
	return e.self
}

// GetDownloadingFile returns the current download target's root hash, or
// none if no download is in progress.
func (e *Exchanger) GetDownloadingFile() g.Option[merkle.Hash] {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.fileHash
}

// StartDistributing runs the serving loop until ctx is cancelled:
// repeatedly accepts peers from the Server and spawns a detached serve
// session per peer. Serving sessions are fire-and-forget; only the
// downloading loop joins its sessions.
func (e *Exchanger) StartDistributing(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		downloading := e.GetDownloadingFile()
		peer, err := e.server.Accept(ctx, e.self, downloading)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			e.logger.Levelf(log.Warning, "accepting peer: %v", err)
			continue
		}
		go e.startReceiving(ctx, peer)
	}
}

// StartDownloading idempotently retargets the download: if a prior
// download task is live, it is cancelled and awaited before the new one
// is installed and launched. It returns as soon as the new task is
// scheduled, without waiting for it to complete.
func (e *Exchanger) StartDownloading(ctx context.Context, hosts []string, file *SharedFile) {
	e.retargetMu.Lock()
	defer e.retargetMu.Unlock()

	e.mu.Lock()
	prevCancel := e.state.cancel
	prevDone := e.state.done
	e.mu.Unlock()

	if prevCancel != nil {
		prevCancel()
	}
	if prevDone != nil {
		<-prevDone
	}

	taskCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	e.mu.Lock()
	e.state = sessionCell{cancel: cancel, done: done, fileHash: g.Some(file.Hash)}
	e.mu.Unlock()

	go func() {
		defer close(done)
		e.tryDownload(taskCtx, hosts, file)
	}()
}

// tryDownload walks hosts in order, running a full download session
// against whichever connects, persisting the tree after each session. A
// dial timeout just moves on to the next host; every other per-peer
// failure is logged, not surfaced. It always clears the shared session
// cell before returning, however it exits the loop.
func (e *Exchanger) tryDownload(ctx context.Context, hosts []string, file *SharedFile) {
	defer e.clearDownloadingState()

	for _, host := range hosts {
		if ctx.Err() != nil {
			break
		}
		peer, err := e.connector.Connect(ctx, file, host)
		if err != nil {
			e.logger.Levelf(log.Warning, "connecting to %q: %v", host, err)
			continue
		}
		e.handleDownloadingPeer(ctx, peer)
		if err := e.repo.CreateOrReplace(ctx, file.HashTree); err != nil {
			e.logger.Levelf(log.Warning, "persisting hash tree for %v: %v", file.Hash, err)
		}
	}
}

func (e *Exchanger) clearDownloadingState() {
	e.mu.Lock()
	e.state = sessionCell{}
	e.mu.Unlock()
}
