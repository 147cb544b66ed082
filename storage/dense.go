package storage

import (
	"github.com/rotisserie/eris"

	"pkg.world.dev/lattice/types"
)

// Dense stores one T per entity ID in a contiguous buffer. Presence is
// tracked separately so contract violations surface as errors rather than
// silently handing out stale values.
type Dense[T any] struct {
	data    []T
	present []bool
	count   int
}

var _ Store = &Dense[int]{}

// NewDense returns a dense store covering IDs in [0, capacity).
func NewDense[T any](capacity int) *Dense[T] {
	return &Dense[T]{
		data:    make([]T, capacity),
		present: make([]bool, capacity),
	}
}

func (s *Dense[T]) Add(id types.EntityID) error {
	if int(id) >= len(s.data) {
		s.Grow(int(id) + 1)
	}
	if s.present[id] {
		return eris.Wrapf(ErrDoubleAdd, "entity %d", id)
	}
	var zero T
	s.data[id] = zero
	s.present[id] = true
	s.count++
	return nil
}

func (s *Dense[T]) Remove(id types.EntityID) error {
	if int(id) >= len(s.data) || !s.present[id] {
		return eris.Wrapf(ErrDoubleRemove, "entity %d", id)
	}
	var zero T
	s.data[id] = zero
	s.present[id] = false
	s.count--
	return nil
}

func (s *Dense[T]) Has(id types.EntityID) bool {
	return int(id) < len(s.present) && s.present[id]
}

func (s *Dense[T]) Ref(id types.EntityID) (*T, error) {
	if !s.Has(id) {
		return nil, eris.Wrapf(ErrMissingComponent, "entity %d", id)
	}
	return &s.data[id], nil
}

func (s *Dense[T]) Grow(capacity int) {
	if capacity <= len(s.data) {
		return
	}
	newCap := len(s.data) * 2
	if newCap < capacity {
		newCap = capacity
	}
	data := make([]T, newCap)
	copy(data, s.data)
	present := make([]bool, newCap)
	copy(present, s.present)
	s.data = data
	s.present = present
}

func (s *Dense[T]) Len() int {
	return s.count
}
