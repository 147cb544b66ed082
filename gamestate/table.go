// Package gamestate holds the engine's entity table: per-ID component
// bitsets, generation counters, and the free list that recycles IDs.
package gamestate

import (
	"github.com/rotisserie/eris"

	"pkg.world.dev/lattice/sparseset"
	"pkg.world.dev/lattice/types"
)

var (
	// ErrCapacityExhausted is returned by Create in fixed-capacity mode when
	// the table is full.
	ErrCapacityExhausted = eris.New("entity capacity exhausted")

	// ErrEntityDoesNotExist is returned for operations on IDs that are out of
	// range or not alive.
	ErrEntityDoesNotExist = eris.New("entity does not exist")
)

type entityMeta struct {
	bitset     types.Bitset
	generation types.Generation
}

// Table owns entity metadata. An ID is alive iff it is in range and not in
// the free set. Bitsets and generations are only mutated between system
// executions (step-proxy critical operations and the refresh pipeline).
type Table struct {
	meta    []entityMeta
	free    *sparseset.Set
	dynamic bool
	alive   int
}

// NewTable returns a table with the given starting capacity. In dynamic mode
// the table doubles when the free list runs dry; in fixed mode Create fails
// with ErrCapacityExhausted instead.
func NewTable(capacity int, dynamic bool) *Table {
	if capacity < 1 {
		capacity = 1
	}
	t := &Table{
		meta:    make([]entityMeta, capacity),
		free:    sparseset.New(capacity),
		dynamic: dynamic,
	}
	for id := capacity - 1; id >= 0; id-- {
		t.free.Add(types.EntityID(id))
	}
	return t
}

// Create pops a free ID and marks it alive.
func (t *Table) Create() (types.EntityID, error) {
	if t.free.Len() == 0 {
		if !t.dynamic {
			return types.InvalidEntityID, eris.Wrapf(ErrCapacityExhausted,
				"fixed capacity %d", len(t.meta))
		}
		t.grow()
	}
	id := t.free.At(t.free.Len() - 1)
	t.free.Remove(id)
	t.alive++
	return id, nil
}

// Reclaim returns id to the free list, clears its bitset, and bumps its
// generation so outstanding handles stop resolving. Reclaiming a dead or
// out-of-range ID is a no-op.
func (t *Table) Reclaim(id types.EntityID) {
	if !t.Alive(id) {
		return
	}
	t.meta[id].bitset = types.Bitset{}
	t.meta[id].generation++
	t.free.Add(id)
	t.alive--
}

// Alive reports whether id is currently allocated.
func (t *Table) Alive(id types.EntityID) bool {
	return id >= 0 && int(id) < len(t.meta) && !t.free.Contains(id)
}

// Bitset returns the component bitset of id.
func (t *Table) Bitset(id types.EntityID) types.Bitset {
	return t.meta[id].bitset
}

// SetBit marks component kind as present on id.
func (t *Table) SetBit(id types.EntityID, kind types.ComponentID) {
	t.meta[id].bitset.Set(kind)
}

// ClearBit marks component kind as absent on id.
func (t *Table) ClearBit(id types.EntityID, kind types.ComponentID) {
	t.meta[id].bitset.Clear(kind)
}

// HasBit reports whether component kind is present on id.
func (t *Table) HasBit(id types.EntityID, kind types.ComponentID) bool {
	return t.meta[id].bitset.Has(kind)
}

// Generation returns the current generation of id.
func (t *Table) Generation(id types.EntityID) types.Generation {
	return t.meta[id].generation
}

// Capacity returns the current table capacity.
func (t *Table) Capacity() int {
	return len(t.meta)
}

// AliveCount returns the number of currently allocated IDs.
func (t *Table) AliveCount() int {
	return t.alive
}

// EachAlive calls fn for every allocated ID in ascending order.
func (t *Table) EachAlive(fn func(types.EntityID)) {
	for id := 0; id < len(t.meta); id++ {
		eid := types.EntityID(id)
		if !t.free.Contains(eid) {
			fn(eid)
		}
	}
}

func (t *Table) grow() {
	oldCap := len(t.meta)
	newCap := oldCap * 2
	grown := make([]entityMeta, newCap)
	copy(grown, t.meta)
	t.meta = grown
	t.free.Grow(newCap)
	for id := newCap - 1; id >= oldCap; id-- {
		t.free.Add(types.EntityID(id))
	}
}
