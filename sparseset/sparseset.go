// Package sparseset implements a sparse integer set over a dense universe of
// entity IDs. Membership tests, insertion, and removal are O(1); iteration is
// O(n) over the dense array. Insertion order is not preserved across Remove.
package sparseset

import (
	"pkg.world.dev/lattice/types"
)

const absent int32 = -1

// Set holds entity IDs drawn from the universe [0, U). The dense array lists
// the members; sparse[i] is the index of i in dense, or absent.
type Set struct {
	dense  []types.EntityID
	sparse []int32
}

// New returns an empty set over the universe [0, universe).
func New(universe int) *Set {
	s := &Set{
		dense:  make([]types.EntityID, 0, 16),
		sparse: make([]int32, universe),
	}
	for i := range s.sparse {
		s.sparse[i] = absent
	}
	return s
}

// Contains reports whether id is a member.
func (s *Set) Contains(id types.EntityID) bool {
	return int(id) < len(s.sparse) && s.sparse[id] != absent
}

// Add inserts id and reports whether it was newly added.
func (s *Set) Add(id types.EntityID) bool {
	if int(id) >= len(s.sparse) {
		s.growSparse(int(id) + 1)
	}
	if s.sparse[id] != absent {
		return false
	}
	s.sparse[id] = int32(len(s.dense))
	s.dense = append(s.dense, id)
	return true
}

// Remove deletes id by swapping the last dense element into its slot. Reports
// whether id was a member.
func (s *Set) Remove(id types.EntityID) bool {
	if !s.Contains(id) {
		return false
	}
	idx := s.sparse[id]
	last := s.dense[len(s.dense)-1]
	s.dense[idx] = last
	s.sparse[last] = idx
	s.dense = s.dense[:len(s.dense)-1]
	s.sparse[id] = absent
	return true
}

// Len returns the number of members.
func (s *Set) Len() int {
	return len(s.dense)
}

// At returns the member at dense index i. The ordering is arbitrary but
// stable between mutations.
func (s *Set) At(i int) types.EntityID {
	return s.dense[i]
}

// Dense exposes the dense member slice. Callers must not mutate it.
func (s *Set) Dense() []types.EntityID {
	return s.dense
}

// Each calls fn for every member. fn must not mutate the set.
func (s *Set) Each(fn func(types.EntityID)) {
	for _, id := range s.dense {
		fn(id)
	}
}

// Reset removes every member, retaining capacity.
func (s *Set) Reset() {
	for _, id := range s.dense {
		s.sparse[id] = absent
	}
	s.dense = s.dense[:0]
}

// Universe returns the current universe size.
func (s *Set) Universe() int {
	return len(s.sparse)
}

// Grow widens the universe to at least universe IDs.
func (s *Set) Grow(universe int) {
	if universe > len(s.sparse) {
		s.growSparse(universe)
	}
}

func (s *Set) growSparse(minLen int) {
	newLen := len(s.sparse) * 2
	if newLen < minLen {
		newLen = minLen
	}
	grown := make([]int32, newLen)
	copy(grown, s.sparse)
	for i := len(s.sparse); i < newLen; i++ {
		grown[i] = absent
	}
	s.sparse = grown
}
