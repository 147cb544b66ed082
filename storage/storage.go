// Package storage provides the per-kind component stores. Two strategies are
// available: a dense array indexed by entity ID (the default), and a hash map
// for rarely-present large components. The engine reaches stores through the
// Store contract and stays storage-agnostic otherwise.
package storage

import (
	"github.com/rotisserie/eris"

	"pkg.world.dev/lattice/types"
)

var (
	// ErrDoubleAdd is returned when a component is added to an entity that
	// already holds it.
	ErrDoubleAdd = eris.New("component already present on entity")

	// ErrDoubleRemove is returned when a component is removed from an entity
	// that does not hold it.
	ErrDoubleRemove = eris.New("component not present on entity")

	// ErrMissingComponent is returned by reads of a component the entity does
	// not hold.
	ErrMissingComponent = eris.New("component missing on entity")
)

// Store is the untyped contract the engine drives stores through. Typed
// access goes through RefStore at the proxy layer.
type Store interface {
	// Add constructs the zero value for id. The entity must not already hold
	// the component.
	Add(id types.EntityID) error

	// Remove discards the value for id. The entity must hold the component.
	Remove(id types.EntityID) error

	// Has reports whether a value is present for id.
	Has(id types.EntityID) bool

	// Grow widens the store to cover IDs up to capacity, for dynamic entity
	// tables. Map stores ignore it.
	Grow(capacity int)

	// Len returns the number of present values.
	Len() int
}

// RefStore is the typed face of a store. Both strategies implement it; the
// data proxy downcasts to it at the entry point of a user closure.
type RefStore[T any] interface {
	Store

	// Ref returns a pointer to the value for id, or ErrMissingComponent.
	Ref(id types.EntityID) (*T, error)
}
