package lattice

import (
	"github.com/rotisserie/eris"

	"pkg.world.dev/lattice/enginestage"
	"pkg.world.dev/lattice/storage"
	"pkg.world.dev/lattice/types"
)

// Component is the interface every component kind must implement. Name must
// be unique within one engine and stable for the engine's lifetime.
type Component interface {
	Name() string
}

// ComponentRef names a component kind in a system declaration's read or
// write list. Obtain one with Comp.
type ComponentRef struct {
	name string
}

// Comp returns a ComponentRef for the component type T, for use in
// SystemConfig read/write lists.
func Comp[T Component]() ComponentRef {
	var t T
	return ComponentRef{name: t.Name()}
}

type componentMetadata struct {
	id    types.ComponentID
	name  string
	store storage.Store
}

type componentOptions struct {
	useMapStorage bool
}

// ComponentOption configures the storage strategy of one component kind.
type ComponentOption func(*componentOptions)

// WithMapStorage selects sparse hash-map storage instead of the default
// dense array. Suited to large components held by few entities.
func WithMapStorage() ComponentOption {
	return func(o *componentOptions) {
		o.useMapStorage = true
	}
}

// RegisterComponent declares the component kind T on the engine. The set of
// kinds is closed once Finalize is called.
func RegisterComponent[T Component](e *Engine, opts ...ComponentOption) error {
	if e.stage.Current() != enginestage.Init {
		return eris.Wrapf(ErrEngineState, "cannot register components in stage %s", e.stage.Current())
	}

	var t T
	name := t.Name()
	if name == "" {
		return eris.Wrap(ErrConfiguration, "component name must not be empty")
	}
	if _, ok := e.componentByName[name]; ok {
		return eris.Wrapf(ErrConfiguration, "component %q is already registered", name)
	}
	if len(e.components) >= types.MaxComponentKinds {
		return eris.Wrapf(ErrConfiguration, "component kind limit %d exceeded", types.MaxComponentKinds)
	}

	var store storage.Store
	options := componentOptions{}
	for _, opt := range opts {
		opt(&options)
	}
	if options.useMapStorage {
		store = storage.NewMap[T]()
	} else {
		store = storage.NewDense[T](e.table.Capacity())
	}

	id := types.ComponentID(len(e.components))
	e.components = append(e.components, &componentMetadata{
		id:    id,
		name:  name,
		store: store,
	})
	e.componentByName[name] = id

	e.logger.Debug().Str("component", name).Uint8("component_id", uint8(id)).
		Msg("registered component")
	return nil
}

// componentKind resolves the metadata for component type T, failing if T was
// never registered.
func componentKind[T Component](e *Engine) (*componentMetadata, error) {
	var t T
	id, ok := e.componentByName[t.Name()]
	if !ok {
		return nil, eris.Wrapf(ErrConfiguration, "component %q is not registered", t.Name())
	}
	return e.components[id], nil
}

// refStoreFor downcasts a component store to its typed face. The id-to-type
// binding is fixed at registration, so a mismatch here is a programmer error
// surfaced as ErrConfiguration.
func refStoreFor[T Component](meta *componentMetadata) (storage.RefStore[T], error) {
	rs, ok := meta.store.(storage.RefStore[T])
	if !ok {
		return nil, eris.Wrapf(ErrConfiguration, "component %q store does not hold the requested type", meta.name)
	}
	return rs, nil
}
