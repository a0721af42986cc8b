package pieceswarm

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbrt/pieceswarm/hashtree"
	"github.com/mbrt/pieceswarm/merkle"
	"github.com/mbrt/pieceswarm/pieceio"
	"github.com/mbrt/pieceswarm/wire"
)

// fakePeer is an in-memory Peer for exercising the exchanger without a
// real network connection.
type fakePeer struct {
	pc     *Context
	inbox  chan wire.Message
	outbox chan wire.Message
	mu     sync.Mutex
	closed bool
}

func newFakePeer(pc *Context) *fakePeer {
	return &fakePeer{pc: pc, inbox: make(chan wire.Message, 64), outbox: make(chan wire.Message, 64)}
}

func (p *fakePeer) Send(ctx context.Context, msg wire.Message) error {
	select {
	case p.outbox <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *fakePeer) Receive(ctx context.Context) (wire.Message, error) {
	select {
	case msg, ok := <-p.inbox:
		if !ok {
			return wire.Message{}, context.Canceled
		}
		return msg, nil
	case <-ctx.Done():
		return wire.Message{}, ctx.Err()
	}
}

func (p *fakePeer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		p.closed = true
		close(p.inbox)
	}
	return nil
}

func (p *fakePeer) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *fakePeer) Context() *Context { return p.pc }

// fakeConnector records every host it is asked to dial, in order. It
// blocks until ctx is cancelled for hosts listed in blockHosts (simulating
// a host that's still "live" when a retarget comes in), simulates a dial
// timeout for hosts listed in timeoutHosts, hands back the pre-wired peer
// registered for a host in peers, and fails with context.DeadlineExceeded
// for any other host.
type fakeConnector struct {
	mu           sync.Mutex
	peers        map[string]*fakePeer
	timeoutHosts map[string]bool
	blockHosts   map[string]bool
	dialed       []string
}

func (c *fakeConnector) Connect(ctx context.Context, file *SharedFile, host string) (Peer, error) {
	c.mu.Lock()
	c.dialed = append(c.dialed, host)
	c.mu.Unlock()
	if c.blockHosts[host] {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if c.timeoutHosts[host] {
		return nil, ErrDialTimeout
	}
	if p, ok := c.peers[host]; ok {
		return p, nil
	}
	return nil, context.DeadlineExceeded
}

func openTestRepo(t *testing.T) *hashtree.Repository {
	t.Helper()
	dir := t.TempDir()
	repo, err := hashtree.Open(filepath.Join(dir, "hashtree.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func testSharedFile(n int) (*SharedFile, []merkle.Hash) {
	hashes := make([]merkle.Hash, n)
	for i := range hashes {
		hashes[i] = merkle.Sum([]byte{byte(i + 1)})
	}
	full := merkle.NewFromPieceHashes(hashes)
	downloader := merkle.NewFromRoot(n, full.RootHash())
	return &SharedFile{Hash: full.RootHash(), HashTree: downloader}, hashes
}

// testSeederFile builds a SharedFile that actually holds every piece's
// bytes on disk, for tests exercising PieceRequestHandler.
func testSeederFile(t *testing.T, pieceLen int, pieces [][]byte) *SharedFile {
	t.Helper()
	hashes := make([]merkle.Hash, len(pieces))
	for i, b := range pieces {
		hashes[i] = merkle.Sum(b)
	}
	tree := merkle.NewFromPieceHashes(hashes)

	var totalLen int64
	for _, b := range pieces {
		totalLen += int64(len(b))
	}
	store, err := pieceio.Open(filepath.Join(t.TempDir(), "seed.data"), len(pieces), pieceLen, totalLen)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	for i, b := range pieces {
		require.NoError(t, store.WritePiece(i, b))
	}

	return &SharedFile{Hash: tree.RootHash(), HashTree: tree, PieceLen: pieceLen, Store: store}
}

func TestGetDownloadingFileStartsEmpty(t *testing.T) {
	repo := openTestRepo(t)
	e := NewExchanger(nil, &fakeConnector{}, repo, Config{})
	opt := e.GetDownloadingFile()
	assert.False(t, opt.Ok)
}

// TestRetargetIdempotence covers P4: starting a second download
// immediately cancels and awaits the first before installing the new
// target.
func TestRetargetIdempotence(t *testing.T) {
	repo := openTestRepo(t)
	connector := &fakeConnector{blockHosts: map[string]bool{"stuck-host": true}}
	e := NewExchanger(nil, connector, repo, Config{})

	fileA, _ := testSharedFile(2)
	fileB, _ := testSharedFile(3)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	e.StartDownloading(ctx, []string{"stuck-host"}, fileA)
	e.StartDownloading(ctx, []string{"stuck-host"}, fileB)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		opt := e.GetDownloadingFile()
		if opt.Ok && opt.Value == fileB.Hash {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	opt := e.GetDownloadingFile()
	require.True(t, opt.Ok)
	assert.Equal(t, fileB.Hash, opt.Value)
}

// TestDialFallbackOrder covers P5/P6's host-ordering half: every host in
// the list is attempted exactly once, in order, and a dial timeout on one
// host doesn't stop the walk from reaching the rest.
func TestDialFallbackOrder(t *testing.T) {
	repo := openTestRepo(t)
	file, hashes := testSharedFile(2)
	_ = hashes

	servingPeer := newFakePeer(&Context{SharedFile: file})
	servingPeer.Close()

	connector := &fakeConnector{
		timeoutHosts: map[string]bool{"h1": true},
		peers:        map[string]*fakePeer{"h2": servingPeer},
	}
	e := NewExchanger(nil, connector, repo, Config{})

	done := make(chan struct{})
	e.StartDownloading(context.Background(), []string{"h1", "h2", "h3"}, file)
	go func() {
		for {
			opt := e.GetDownloadingFile()
			if !opt.Ok {
				close(done)
				return
			}
			time.Sleep(5 * time.Millisecond)
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("download never completed")
	}

	connector.mu.Lock()
	defer connector.mu.Unlock()
	// tryDownload walks the whole host list, not just until the first
	// success: h3 fails to connect too (no peer registered for it), but
	// every host gets exactly one dial attempt, in order.
	assert.Equal(t, []string{"h1", "h2", "h3"}, connector.dialed)
}
