package lattice

import (
	"context"

	"github.com/rotisserie/eris"

	"pkg.world.dev/lattice/sparseset"
	"pkg.world.dev/lattice/types"
)

// Step is the proxy handed to the user step body and to deferred closures
// during refresh. It permits immediate critical operations: entity creation
// and kill marking, component add/remove, handle minting, and starting DAG
// execution. It is not safe for concurrent use; systems running inside
// ExecuteSystems use their DataProxy instead.
type Step struct {
	engine *Engine
	ctx    context.Context

	// Refresh bookkeeping: IDs marked dead and IDs whose bitset changed (or
	// that were just created) since the last refresh.
	toKill    *sparseset.Set
	toRematch *sparseset.Set

	// refreshing is set while the refresh pipeline drains deferred closures;
	// DAG execution is rejected in that window.
	refreshing bool

	hooks stepHooks
}

type stepHooks struct {
	onSubscribe   func(system string, id types.EntityID)
	onUnsubscribe func(system string, id types.EntityID)
	onReclaim     func(id types.EntityID)
}

// StepOption registers refresh event handlers for one step.
type StepOption func(*stepHooks)

// WithOnSubscribe fires whenever refresh adds an entity to a system's
// subscription set. The handler runs on the goroutine doing the mutation;
// handlers for different systems may run concurrently.
func WithOnSubscribe(fn func(system string, id types.EntityID)) StepOption {
	return func(h *stepHooks) {
		h.onSubscribe = fn
	}
}

// WithOnUnsubscribe fires whenever refresh removes an entity from a system's
// subscription set. Same threading as WithOnSubscribe.
func WithOnUnsubscribe(fn func(system string, id types.EntityID)) StepOption {
	return func(h *stepHooks) {
		h.onUnsubscribe = fn
	}
}

// WithOnReclaim fires when refresh reclaims a dead entity's ID.
func WithOnReclaim(fn func(id types.EntityID)) StepOption {
	return func(h *stepHooks) {
		h.onReclaim = fn
	}
}

func newStep(e *Engine, ctx context.Context, opts ...StepOption) *Step {
	st := &Step{
		engine:    e,
		ctx:       ctx,
		toKill:    sparseset.New(e.table.Capacity()),
		toRematch: sparseset.New(e.table.Capacity()),
	}
	for _, opt := range opts {
		opt(&st.hooks)
	}
	return st
}

// CreateEntity allocates a fresh entity with an empty bitset. The entity is
// matched against system subscriptions at the next refresh.
func (st *Step) CreateEntity() (types.EntityID, error) {
	id, err := st.engine.table.Create()
	if err != nil {
		return types.InvalidEntityID, err
	}
	st.toRematch.Add(id)
	return id, nil
}

// KillEntity marks id for reclamation during the next refresh. The entity
// stays alive, and its handles valid, until then.
func (st *Step) KillEntity(id types.EntityID) error {
	if !st.engine.table.Alive(id) {
		return eris.Wrapf(ErrEntityDoesNotExist, "kill of entity %d", id)
	}
	st.toKill.Add(id)
	return nil
}

// AddComponent attaches a zero-valued T to the entity and returns a pointer
// to it. The component bit must not already be set.
func AddComponent[T Component](st *Step, id types.EntityID) (*T, error) {
	meta, err := componentKind[T](st.engine)
	if err != nil {
		return nil, err
	}
	if !st.engine.table.Alive(id) {
		return nil, eris.Wrapf(ErrEntityDoesNotExist, "add %q to entity %d", meta.name, id)
	}
	if st.engine.table.HasBit(id, meta.id) {
		return nil, eris.Wrapf(ErrDoubleAdd, "component %q on entity %d", meta.name, id)
	}
	if err := meta.store.Add(id); err != nil {
		return nil, err
	}
	st.engine.table.SetBit(id, meta.id)
	st.toRematch.Add(id)

	rs, err := refStoreFor[T](meta)
	if err != nil {
		return nil, err
	}
	return rs.Ref(id)
}

// RemoveComponent detaches T from the entity. The component bit must be set.
func RemoveComponent[T Component](st *Step, id types.EntityID) error {
	meta, err := componentKind[T](st.engine)
	if err != nil {
		return err
	}
	if !st.engine.table.Alive(id) {
		return eris.Wrapf(ErrEntityDoesNotExist, "remove %q from entity %d", meta.name, id)
	}
	if !st.engine.table.HasBit(id, meta.id) {
		return eris.Wrapf(ErrDoubleRemove, "component %q on entity %d", meta.name, id)
	}
	if err := meta.store.Remove(id); err != nil {
		return err
	}
	st.engine.table.ClearBit(id, meta.id)
	st.toRematch.Add(id)
	return nil
}

// GetComponent reads a component value in step context. Convenience for
// setup and inspection; systems use their DataProxy accessors.
func GetComponent[T Component](st *Step, id types.EntityID) (*T, error) {
	meta, err := componentKind[T](st.engine)
	if err != nil {
		return nil, err
	}
	if !st.engine.table.Alive(id) {
		return nil, eris.Wrapf(ErrEntityDoesNotExist, "get %q of entity %d", meta.name, id)
	}
	rs, err := refStoreFor[T](meta)
	if err != nil {
		return nil, err
	}
	return rs.Ref(id)
}

// CreateHandle mints a handle for a live entity.
func (st *Step) CreateHandle(id types.EntityID) (types.Handle, error) {
	if !st.engine.table.Alive(id) {
		return types.InvalidHandle(), eris.Wrapf(ErrEntityDoesNotExist, "handle for entity %d", id)
	}
	return types.Handle{ID: id, Generation: st.engine.table.Generation(id)}, nil
}

// ValidHandle reports whether h still resolves: the entity is alive and its
// generation matches.
func (st *Step) ValidHandle(h types.Handle) bool {
	return h.ID != types.InvalidEntityID &&
		st.engine.table.Alive(h.ID) &&
		st.engine.table.Generation(h.ID) == h.Generation
}

// Access resolves h to its entity ID, or returns ErrInvalidHandle.
func (st *Step) Access(h types.Handle) (types.EntityID, error) {
	if !st.ValidHandle(h) {
		return types.InvalidEntityID, eris.Wrapf(ErrInvalidHandle, "handle (%d, %d)", h.ID, h.Generation)
	}
	return h.ID, nil
}

// ExecuteSystems runs the whole DAG: every system is reachable from the
// in-degree-zero roots.
func (st *Step) ExecuteSystems() error {
	if st.refreshing {
		return eris.Wrap(ErrEngineState, "cannot execute systems from a deferred closure")
	}
	return st.engine.executeSystemsFrom(st.ctx, st.engine.rootIDs)
}

// ExecuteSystemsFrom runs the DAG subgraph reachable from the named roots.
// An empty root list returns immediately without touching any system state.
func (st *Step) ExecuteSystemsFrom(roots ...string) error {
	if st.refreshing {
		return eris.Wrap(ErrEngineState, "cannot execute systems from a deferred closure")
	}
	ids, err := st.engine.resolveSystemIDs(roots)
	if err != nil {
		return err
	}
	return st.engine.executeSystemsFrom(st.ctx, ids)
}
