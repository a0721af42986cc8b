package merkle

import (
	"math/bits"

	"github.com/anacrolix/missinggo/v2/panicif"
)

// node is one slot of a binTree: either a leaf (left == -1 and right == -1)
// or an internal node whose hash is the concatenation of its two children.
type node struct {
	hash  Hash
	known bool
	left  int
	right int
}

// binTree is a binary tree built by repeatedly pairing adjacent elements of
// the current level and, when a level has an odd element left over,
// carrying it into the next level unchanged rather than padding it with a
// duplicate. Every internal node has exactly two children, so a tree over m
// leaves always has exactly 2m-1 nodes regardless of how unbalanced the
// pairing leaves it.
type binTree struct {
	nodes  []node
	parent []int
	root   int
	leaves []int
}

func buildPairTree(leafCount int) *binTree {
	panicif.LessThan(leafCount, 1)
	nodes := make([]node, leafCount)
	for i := range nodes {
		nodes[i] = node{left: -1, right: -1}
	}
	leaves := make([]int, leafCount)
	level := make([]int, leafCount)
	for i := range level {
		leaves[i] = i
		level[i] = i
	}
	for len(level) > 1 {
		next := make([]int, 0, (len(level)+1)/2)
		i := 0
		for i+1 < len(level) {
			l, r := level[i], level[i+1]
			idx := len(nodes)
			nodes = append(nodes, node{left: l, right: r})
			next = append(next, idx)
			i += 2
		}
		if i < len(level) {
			next = append(next, level[i])
		}
		level = next
	}
	parent := make([]int, len(nodes))
	for i := range parent {
		parent[i] = -1
	}
	for idx, n := range nodes {
		if n.left != -1 {
			parent[n.left] = idx
			parent[n.right] = idx
		}
	}
	return &binTree{nodes: nodes, parent: parent, root: level[0], leaves: leaves}
}

// walkStep describes one edge climbed on the way from a piece's leaf to the
// overall root: the tree it belongs to (a subtree or the root tree), the
// node being climbed from, its sibling, their parent, and which side the
// climbed-from node sits on.
type walkStep struct {
	tree       *binTree
	curIdx     int
	siblingIdx int
	parentIdx  int
	curIsLeft  bool
}

// Tree is the two-level Merkle commitment over a piece count N that need
// not be a power of two. N is decomposed into leafCounts, one power-of-two
// subtree per set bit of N, and the subtree roots are combined by rootTree
// into a single overall root.
type Tree struct {
	n          int
	leafCounts []int
	offsets    []int
	subtrees   []*binTree
	rootTree   *binTree
	rootHash   Hash
	pieces     []Hash
	present    LeafSet
}

// decompose splits n into the descending sequence of powers of two that
// sum to it, one per set bit of n from most to least significant.
func decompose(n int) []int {
	panicif.LessThan(n, 1)
	var counts []int
	for n > 0 {
		p := 1 << (bits.Len(uint(n)) - 1)
		counts = append(counts, p)
		n -= p
	}
	return counts
}

func newShape(n int) *Tree {
	leafCounts := decompose(n)
	offsets := make([]int, len(leafCounts))
	off := 0
	for i, lc := range leafCounts {
		offsets[i] = off
		off += lc
	}
	subtrees := make([]*binTree, len(leafCounts))
	for i, lc := range leafCounts {
		subtrees[i] = buildPairTree(lc)
	}
	return &Tree{
		n:          n,
		leafCounts: leafCounts,
		offsets:    offsets,
		subtrees:   subtrees,
		rootTree:   buildPairTree(len(leafCounts)),
		pieces:     make([]Hash, n),
	}
}

// NewFromRoot builds an empty downloader-side Tree: it knows the piece
// count and the published root but holds no piece data yet. TryAdd is used
// to fill it in as pieces arrive.
func NewFromRoot(n int, root Hash) *Tree {
	t := newShape(n)
	t.rootHash = root
	return t
}

// NewFromPieceHashes builds a fully-populated seeder-side Tree from the
// hash of every piece, computing its root (available via RootHash).
func NewFromPieceHashes(pieceHashes []Hash) *Tree {
	t := newShape(len(pieceHashes))
	for k, st := range t.subtrees {
		off := t.offsets[k]
		for local := 0; local < t.leafCounts[k]; local++ {
			leaf := st.leaves[local]
			st.nodes[leaf].hash = pieceHashes[off+local]
			st.nodes[leaf].known = true
		}
		for idx := t.leafCounts[k]; idx < len(st.nodes); idx++ {
			n := &st.nodes[idx]
			n.hash = st.nodes[n.left].hash.Concat(st.nodes[n.right].hash)
			n.known = true
		}
	}
	rt := t.rootTree
	for k, st := range t.subtrees {
		leaf := rt.leaves[k]
		rt.nodes[leaf].hash = st.nodes[st.root].hash
		rt.nodes[leaf].known = true
	}
	for idx := len(t.subtrees); idx < len(rt.nodes); idx++ {
		n := &rt.nodes[idx]
		n.hash = rt.nodes[n.left].hash.Concat(rt.nodes[n.right].hash)
		n.known = true
	}
	t.rootHash = rt.nodes[rt.root].hash
	copy(t.pieces, pieceHashes)
	for i := range t.pieces {
		t.present.Add(i)
	}
	return t
}

// Restore rebuilds a downloader-side Tree from a persisted snapshot: the
// piece count, the published root, and the flat array of piece hashes
// (empty slots included). It restores pieces and leaf states exactly, but
// does not recompute any internal node of the subtrees or the root tree,
// so GetPath on a restored piece returns empty sibling hashes until a
// successful TryAdd of that piece writes its path back in.
func Restore(n int, root Hash, pieceHashes []Hash) *Tree {
	panicif.NotEq(len(pieceHashes), n)
	t := newShape(n)
	t.rootHash = root
	for i, h := range pieceHashes {
		if h.IsEmpty() {
			continue
		}
		t.pieces[i] = h
		t.present.Add(i)
	}
	return t
}

// N returns the piece count the tree commits to.
func (t *Tree) N() int {
	return t.n
}

// RootHash returns the overall root this tree verifies pieces against.
func (t *Tree) RootHash() Hash {
	return t.rootHash
}

func (t *Tree) checkRange(i int) {
	panicif.True(i < 0 || i >= t.n)
}

func (t *Tree) locate(i int) (k, local int) {
	for k, lc := range t.leafCounts {
		off := t.offsets[k]
		if i < off+lc {
			return k, i - off
		}
	}
	panic("merkle: piece index out of range")
}

func sibling(tr *binTree, idx, parentIdx int) int {
	if tr.nodes[parentIdx].left == idx {
		return tr.nodes[parentIdx].right
	}
	return tr.nodes[parentIdx].left
}

func (t *Tree) walk(i int) []walkStep {
	k, local := t.locate(i)
	st := t.subtrees[k]
	var steps []walkStep
	idx := st.leaves[local]
	for idx != st.root {
		p := st.parent[idx]
		isLeft := st.nodes[p].left == idx
		steps = append(steps, walkStep{tree: st, curIdx: idx, siblingIdx: sibling(st, idx, p), parentIdx: p, curIsLeft: isLeft})
		idx = p
	}
	rt := t.rootTree
	idx2 := rt.leaves[k]
	for idx2 != rt.root {
		p := rt.parent[idx2]
		isLeft := rt.nodes[p].left == idx2
		steps = append(steps, walkStep{tree: rt, curIdx: idx2, siblingIdx: sibling(rt, idx2, p), parentIdx: p, curIsLeft: isLeft})
		idx2 = p
	}
	return steps
}

// GetPieceHash returns the verified hash of piece i, or the empty sentinel
// if it has not been added yet.
func (t *Tree) GetPieceHash(i int) Hash {
	t.checkRange(i)
	return t.pieces[i]
}

// GetLeafStates returns the set of piece indices currently held.
func (t *Tree) GetLeafStates() *LeafSet {
	return t.present.Clone()
}

// GetPath returns the sibling hashes along the path from piece i's leaf to
// the overall root, in the order TryAdd expects them back. The tree must
// already know every node on that path, which holds for any tree built via
// NewFromPieceHashes or fully filled in by prior TryAdd calls.
func (t *Tree) GetPath(i int) []Hash {
	t.checkRange(i)
	steps := t.walk(i)
	path := make([]Hash, len(steps))
	for idx, s := range steps {
		path[idx] = s.tree.nodes[s.siblingIdx].hash
	}
	return path
}

// TryAdd verifies itemHash against path by recomputing the root and, only
// if the recomputed root equals the tree's published root, commits
// itemHash into piece i and every internal node visited along the way. On
// a length mismatch or a verification failure it returns false without
// mutating any state.
func (t *Tree) TryAdd(i int, itemHash Hash, path []Hash) bool {
	t.checkRange(i)
	k, local := t.locate(i)
	st := t.subtrees[k]
	leafIdx := st.leaves[local]
	steps := t.walk(i)
	if len(path) != len(steps) {
		return false
	}

	type write struct {
		tree *binTree
		idx  int
		hash Hash
	}
	pending := []write{{st, leafIdx, itemHash}}
	cur := itemHash
	for idx, s := range steps {
		sib := path[idx]
		pending = append(pending, write{s.tree, s.siblingIdx, sib})
		var parentHash Hash
		if s.curIsLeft {
			parentHash = cur.Concat(sib)
		} else {
			parentHash = sib.Concat(cur)
		}
		pending = append(pending, write{s.tree, s.parentIdx, parentHash})
		cur = parentHash
	}
	if !cur.Equal(t.rootHash) {
		return false
	}
	pending = append(pending, write{t.rootTree, t.rootTree.root, cur})

	for _, w := range pending {
		w.tree.nodes[w.idx].hash = w.hash
		w.tree.nodes[w.idx].known = true
	}
	t.pieces[i] = itemHash
	t.present.Add(i)
	return true
}
