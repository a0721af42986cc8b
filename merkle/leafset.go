package merkle

import "github.com/RoaringBitmap/roaring"

// LeafSet tracks which piece indices of a Tree are currently held and
// verified. It is a thin, piece-index-typed wrapper around a roaring
// bitmap, adapted from the project's typed bitmap helper to a single
// concrete index type rather than a generic constraint.
type LeafSet struct {
	bm roaring.Bitmap
}

// Add marks piece index i as held.
func (s *LeafSet) Add(i int) {
	s.bm.Add(uint32(i))
}

// Contains reports whether piece index i is held.
func (s *LeafSet) Contains(i int) bool {
	return s.bm.Contains(uint32(i))
}

// Len reports the number of held pieces.
func (s *LeafSet) Len() int {
	return int(s.bm.GetCardinality())
}

// Iterate calls f for every held piece index in ascending order, stopping
// early if f returns false.
func (s *LeafSet) Iterate(f func(i int) bool) {
	s.bm.Iterate(func(x uint32) bool {
		return f(int(x))
	})
}

// Clone returns an independent copy of s.
func (s *LeafSet) Clone() *LeafSet {
	return &LeafSet{bm: *s.bm.Clone()}
}
