package sparseset_test

import (
	"testing"

	"pkg.world.dev/lattice/assert"
	"pkg.world.dev/lattice/sparseset"
	"pkg.world.dev/lattice/types"
)

func TestAddContainsRemove(t *testing.T) {
	s := sparseset.New(16)

	assert.Check(t, s.Add(3))
	assert.Check(t, s.Add(7))
	assert.Check(t, !s.Add(3), "second add of same id is a no-op")
	assert.Equal(t, 2, s.Len())
	assert.Check(t, s.Contains(3))
	assert.Check(t, s.Contains(7))
	assert.Check(t, !s.Contains(4))

	assert.Check(t, s.Remove(3))
	assert.Check(t, !s.Remove(3), "second remove of same id is a no-op")
	assert.Equal(t, 1, s.Len())
	assert.Check(t, !s.Contains(3))
	assert.Check(t, s.Contains(7))
}

// The dense/sparse pairing seen through the public API: after adds and
// swap-removes, every dense entry is a distinct member that Contains
// reports, and Len equals the number of members.
func TestDenseSparseInvariant(t *testing.T) {
	s := sparseset.New(64)
	members := []types.EntityID{0, 5, 9, 13, 21, 63}
	for _, id := range members {
		s.Add(id)
	}
	s.Remove(9)
	s.Remove(0)
	s.Add(40)

	seen := map[types.EntityID]bool{}
	for i := 0; i < s.Len(); i++ {
		id := s.At(i)
		assert.Check(t, !seen[id], "duplicate member %d", id)
		seen[id] = true
		assert.Check(t, s.Contains(id))
	}
	assert.Equal(t, 5, s.Len())
}

func TestEachVisitsAllMembers(t *testing.T) {
	s := sparseset.New(8)
	for _, id := range []types.EntityID{1, 2, 5} {
		s.Add(id)
	}

	visited := map[types.EntityID]int{}
	s.Each(func(id types.EntityID) {
		visited[id]++
	})
	assert.Equal(t, 3, len(visited))
	for _, count := range visited {
		assert.Equal(t, 1, count)
	}
}

func TestReset(t *testing.T) {
	s := sparseset.New(8)
	s.Add(1)
	s.Add(6)
	s.Reset()

	assert.Equal(t, 0, s.Len())
	assert.Check(t, !s.Contains(1))
	assert.Check(t, !s.Contains(6))

	// The set must be reusable after Reset.
	assert.Check(t, s.Add(6))
	assert.Equal(t, 1, s.Len())
}

func TestGrowBeyondUniverse(t *testing.T) {
	s := sparseset.New(4)
	assert.Check(t, s.Add(100), "add beyond the initial universe widens it")
	assert.Check(t, s.Contains(100))
	assert.Check(t, !s.Contains(50))
	assert.Check(t, s.Universe() >= 101)
}
