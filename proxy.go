package lattice

import (
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"

	ecslog "pkg.world.dev/lattice/log"
	"pkg.world.dev/lattice/types"
)

// DataProxy is handed to a system's processing function. It scopes access to
// one contiguous slice of the system's subscribed entities, the system's
// declared component kinds, and this subtask's isolated output, kill-set,
// and deferred buffers. A proxy is only valid for the duration of its
// subtask.
type DataProxy struct {
	engine  *Engine
	sys     *systemInstance
	subtask int
	begin   int
	end     int
	state   *subtaskState
	logger  *zerolog.Logger
}

func newDataProxy(e *Engine, sys *systemInstance, subtask, begin, end int) *DataProxy {
	return &DataProxy{
		engine:  e,
		sys:     sys,
		subtask: subtask,
		begin:   begin,
		end:     end,
		state:   &sys.states[subtask],
		logger:  ecslog.CreateSystemLogger(&e.logger, sys.name),
	}
}

// EachEntity iterates the subtask's slice of subscribed entity IDs.
func (p *DataProxy) EachEntity(fn func(id types.EntityID)) {
	dense := p.sys.subscribed.Dense()
	for _, id := range dense[p.begin:p.end] {
		fn(id)
	}
}

// EntityCount returns the size of this subtask's entity slice.
func (p *DataProxy) EntityCount() int {
	return p.end - p.begin
}

// Subtask returns this subtask's index within the system's execution.
func (p *DataProxy) Subtask() int {
	return p.subtask
}

// KillEntity adds id to this subtask's kill set; the entity is reclaimed
// during refresh.
func (p *DataProxy) KillEntity(id types.EntityID) {
	p.state.killSet.Add(id)
}

// Defer queues fn for sequential execution with a step proxy during refresh.
func (p *DataProxy) Defer(fn DeferredFn) {
	p.state.deferred = append(p.state.deferred, fn)
}

// Logger returns a logger tagged with the system name.
func (p *DataProxy) Logger() *zerolog.Logger {
	return p.logger
}

// Get reads component T of an entity. T must be in the system's declared
// read or write set.
func Get[T Component](p *DataProxy, id types.EntityID) (*T, error) {
	meta, err := componentKind[T](p.engine)
	if err != nil {
		return nil, err
	}
	if !p.sys.readBits.Has(meta.id) && !p.sys.writeBits.Has(meta.id) {
		return nil, eris.Wrapf(ErrComponentAccess,
			"system %q does not declare %q", p.sys.name, meta.name)
	}
	rs, err := refStoreFor[T](meta)
	if err != nil {
		return nil, err
	}
	return rs.Ref(id)
}

// Mut returns a mutable reference to component T of an entity. T must be in
// the system's declared write set.
func Mut[T Component](p *DataProxy, id types.EntityID) (*T, error) {
	meta, err := componentKind[T](p.engine)
	if err != nil {
		return nil, err
	}
	if !p.sys.writeBits.Has(meta.id) {
		return nil, eris.Wrapf(ErrComponentAccess,
			"system %q does not declare %q writable", p.sys.name, meta.name)
	}
	rs, err := refStoreFor[T](meta)
	if err != nil {
		return nil, err
	}
	return rs.Ref(id)
}

// Output returns this subtask's output buffer as *O.
func Output[O any](p *DataProxy) (*O, error) {
	if p.state.output == nil {
		return nil, eris.Wrapf(ErrConfiguration, "system %q declares no output", p.sys.name)
	}
	out, ok := p.state.output.(*O)
	if !ok {
		return nil, eris.Wrapf(ErrConfiguration,
			"system %q output is %T, not the requested type", p.sys.name, p.state.output)
	}
	return out, nil
}

// EachOutput visits the subtask outputs of a completed dependency, in subtask
// order. Subtasks without an output buffer are skipped; allocated buffers are
// visited even when the subtask left them empty. dep must be in this system's declared dependency list;
// the dependency's outputs are immutable by the time any dependent runs.
func EachOutput[O any](p *DataProxy, dep string, fn func(out *O) error) error {
	dsys, err := p.dependency(dep)
	if err != nil {
		return err
	}
	for i := range dsys.states {
		raw := dsys.states[i].output
		if raw == nil {
			continue
		}
		out, ok := raw.(*O)
		if !ok {
			return eris.Wrapf(ErrConfiguration,
				"system %q output is %T, not the requested type", dep, raw)
		}
		if err := fn(out); err != nil {
			return err
		}
	}
	return nil
}

// DependencyState returns read-only access to a dependency system's user
// value.
func DependencyState[S any](p *DataProxy, dep string) (*S, error) {
	dsys, err := p.dependency(dep)
	if err != nil {
		return nil, err
	}
	value, ok := dsys.value.(*S)
	if !ok {
		return nil, eris.Wrapf(ErrConfiguration,
			"system %q state is %T, not the requested type", dep, dsys.value)
	}
	return value, nil
}

func (p *DataProxy) dependency(dep string) (*systemInstance, error) {
	sid, ok := p.engine.systemByName[dep]
	if !ok {
		return nil, eris.Wrapf(ErrConfiguration, "unknown system %q", dep)
	}
	for _, declared := range p.sys.deps {
		if declared == sid {
			return p.engine.systems[sid], nil
		}
	}
	return nil, eris.Wrapf(ErrNotADependency, "system %q does not depend on %q", p.sys.name, dep)
}
