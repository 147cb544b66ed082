package storage

import (
	"github.com/rotisserie/eris"

	"pkg.world.dev/lattice/types"
)

// Map stores values sparsely, keyed by entity ID. Suited to large components
// held by few entities, where a dense buffer would waste memory.
type Map[T any] struct {
	values map[types.EntityID]*T
}

var _ Store = &Map[int]{}

// NewMap returns an empty map store.
func NewMap[T any]() *Map[T] {
	return &Map[T]{values: make(map[types.EntityID]*T)}
}

func (s *Map[T]) Add(id types.EntityID) error {
	if _, ok := s.values[id]; ok {
		return eris.Wrapf(ErrDoubleAdd, "entity %d", id)
	}
	s.values[id] = new(T)
	return nil
}

func (s *Map[T]) Remove(id types.EntityID) error {
	if _, ok := s.values[id]; !ok {
		return eris.Wrapf(ErrDoubleRemove, "entity %d", id)
	}
	delete(s.values, id)
	return nil
}

func (s *Map[T]) Has(id types.EntityID) bool {
	_, ok := s.values[id]
	return ok
}

func (s *Map[T]) Ref(id types.EntityID) (*T, error) {
	v, ok := s.values[id]
	if !ok {
		return nil, eris.Wrapf(ErrMissingComponent, "entity %d", id)
	}
	return v, nil
}

// Grow is a no-op; map stores have no positional capacity.
func (s *Map[T]) Grow(int) {}

func (s *Map[T]) Len() int {
	return len(s.values)
}
