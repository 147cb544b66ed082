package lattice

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"pkg.world.dev/lattice/codec"
	"pkg.world.dev/lattice/enginestage"
	"pkg.world.dev/lattice/gamestate"
	ecslog "pkg.world.dev/lattice/log"
	"pkg.world.dev/lattice/pool"
	"pkg.world.dev/lattice/sparseset"
	"pkg.world.dev/lattice/statsd"
	"pkg.world.dev/lattice/types"
)

// Engine owns the component stores, the entity table, the system instances,
// the worker pool, and the scheduler state. Multiple engines are independent.
type Engine struct {
	instanceID string
	logger     zerolog.Logger
	tracer     trace.Tracer

	cfg   Config
	stage *enginestage.Manager

	table *gamestate.Table
	pool  *pool.Pool

	components      []*componentMetadata
	componentByName map[string]types.ComponentID

	systems      []*systemInstance
	systemByName map[string]types.SystemID
	rootIDs      []types.SystemID

	// First-error slot for the execution in flight.
	execFailed atomic.Bool
	execMu     sync.Mutex
	execErr    error
}

// NewEngine builds an engine from the environment-derived Config overlaid
// with the given options. Component and system registration stays open until
// Finalize.
func NewEngine(opts ...EngineOption) (*Engine, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, err
	}

	e := &Engine{
		instanceID:      uuid.New().String(),
		logger:          zerolog.Nop(),
		tracer:          otel.Tracer("lattice"),
		cfg:             cfg,
		stage:           enginestage.NewManager(),
		componentByName: make(map[string]types.ComponentID),
		systemByName:    make(map[string]types.SystemID),
	}
	for _, opt := range opts {
		opt(e)
	}
	if err := e.cfg.Validate(); err != nil {
		return nil, err
	}

	e.logger = e.logger.With().Str("engine_id", e.instanceID).Logger()
	e.table = gamestate.NewTable(e.cfg.EntityCapacity, e.cfg.DynamicCapacity)

	if e.cfg.StatsdAddress != "" {
		var tags []string
		if e.cfg.StatsdTags != "" {
			tags = strings.Split(e.cfg.StatsdTags, ",")
		}
		if err := statsd.Init(e.cfg.StatsdAddress, tags); err != nil {
			e.logger.Warn().Err(err).Msg("failed to initialize statsd client")
		}
	}

	return e, nil
}

// Finalize closes registration, validates the declaration, precomputes the
// schedule, and starts the worker pool. It must be called exactly once
// before the first Step.
func (e *Engine) Finalize() error {
	if e.stage.Current() != enginestage.Init {
		return eris.Wrapf(ErrEngineState, "cannot finalize in stage %s", e.stage.Current())
	}

	if err := e.resolveSystems(); err != nil {
		return err
	}
	if err := e.checkAcyclic(); err != nil {
		return err
	}
	e.computeReachability()
	if err := e.checkConflicts(); err != nil {
		return err
	}

	for _, sys := range e.systems {
		sys.subscribed = sparseset.New(e.table.Capacity())
		if len(sys.deps) == 0 {
			e.rootIDs = append(e.rootIDs, sys.id)
		}
	}

	e.pool = pool.New(e.cfg.NumWorkers)

	if !e.stage.CompareAndSwap(enginestage.Init, enginestage.Ready) {
		e.pool.Shutdown()
		return eris.Wrap(ErrEngineState, "concurrent finalize")
	}

	ecslog.Declaration(&e.logger, e, zerolog.DebugLevel)
	e.logger.Info().Int("workers", e.pool.Workers()).
		Int("entity_capacity", e.table.Capacity()).
		Bool("dynamic_capacity", e.cfg.DynamicCapacity).
		Msg("engine finalized")
	return nil
}

// resolveSystems binds component refs, dependency names, and adapters.
func (e *Engine) resolveSystems() error {
	for _, sys := range e.systems {
		if sys.run == nil {
			return eris.Wrapf(ErrConfiguration, "system %q has no processing function", sys.name)
		}

		for _, ref := range sys.readRefs {
			id, ok := e.componentByName[ref.name]
			if !ok {
				return eris.Wrapf(ErrConfiguration,
					"system %q reads unknown component %q", sys.name, ref.name)
			}
			sys.readBits.Set(id)
		}
		for _, ref := range sys.writeRefs {
			id, ok := e.componentByName[ref.name]
			if !ok {
				return eris.Wrapf(ErrConfiguration,
					"system %q writes unknown component %q", sys.name, ref.name)
			}
			sys.writeBits.Set(id)
		}
		sys.required = sys.readBits.Union(sys.writeBits)

		sys.deps = sys.deps[:0]
		seen := make(map[types.SystemID]bool, len(sys.depNames))
		for _, depName := range sys.depNames {
			depID, ok := e.systemByName[depName]
			if !ok {
				return eris.Wrapf(ErrConfiguration,
					"system %q depends on unknown system %q", sys.name, depName)
			}
			if depID == sys.id {
				return eris.Wrapf(ErrConfiguration, "system %q depends on itself", sys.name)
			}
			if seen[depID] {
				continue
			}
			seen[depID] = true
			sys.deps = append(sys.deps, depID)
		}
	}

	for _, sys := range e.systems {
		sys.dependents = sys.dependents[:0]
	}
	for _, sys := range e.systems {
		for _, dep := range sys.deps {
			e.systems[dep].dependents = append(e.systems[dep].dependents, sys.id)
		}
	}
	return nil
}

// checkAcyclic runs Kahn's algorithm over the dependency edges.
func (e *Engine) checkAcyclic() error {
	indeg := make([]int, len(e.systems))
	for _, sys := range e.systems {
		indeg[sys.id] = len(sys.deps)
	}
	queue := make([]types.SystemID, 0, len(e.systems))
	for _, sys := range e.systems {
		if indeg[sys.id] == 0 {
			queue = append(queue, sys.id)
		}
	}
	visited := 0
	for len(queue) > 0 {
		sid := queue[0]
		queue = queue[1:]
		visited++
		for _, dsid := range e.systems[sid].dependents {
			indeg[dsid]--
			if indeg[dsid] == 0 {
				queue = append(queue, dsid)
			}
		}
	}
	if visited != len(e.systems) {
		return eris.Wrap(ErrConfiguration, "system dependency graph has a cycle")
	}
	return nil
}

// computeReachability fills each system's forward-reachable mask (itself
// plus transitive dependents), in reverse topological order so every
// dependent's mask is complete before it is merged.
func (e *Engine) computeReachability() {
	order := e.topoOrder()
	for i := len(order) - 1; i >= 0; i-- {
		sys := e.systems[order[i]]
		sys.reach = newSysMask(len(e.systems))
		sys.reach.set(sys.id)
		for _, dsid := range sys.dependents {
			sys.reach.union(e.systems[dsid].reach)
		}
	}
}

func (e *Engine) topoOrder() []types.SystemID {
	indeg := make([]int, len(e.systems))
	for _, sys := range e.systems {
		indeg[sys.id] = len(sys.deps)
	}
	order := make([]types.SystemID, 0, len(e.systems))
	for _, sys := range e.systems {
		if indeg[sys.id] == 0 {
			order = append(order, sys.id)
		}
	}
	for i := 0; i < len(order); i++ {
		for _, dsid := range e.systems[order[i]].dependents {
			indeg[dsid]--
			if indeg[dsid] == 0 {
				order = append(order, dsid)
			}
		}
	}
	return order
}

// checkConflicts verifies that any two systems without a dependency path
// between them have non-conflicting static access sets: neither may write a
// component kind the other reads or writes.
func (e *Engine) checkConflicts() error {
	for i := 0; i < len(e.systems); i++ {
		for j := i + 1; j < len(e.systems); j++ {
			u, v := e.systems[i], e.systems[j]
			if u.reach.has(v.id) || v.reach.has(u.id) {
				continue
			}
			uWrites := u.writeBits.Intersect(v.readBits.Union(v.writeBits))
			vWrites := v.writeBits.Intersect(u.readBits.Union(u.writeBits))
			if !uWrites.IsZero() || !vWrites.IsZero() {
				return eris.Wrapf(ErrConfiguration,
					"systems %q and %q share no dependency path but conflict on components %s",
					u.name, v.name, uWrites.Union(vWrites))
			}
		}
	}
	return nil
}

// Step runs body with a step proxy, then runs the refresh pipeline. Any user
// error, scheduler error, or refresh error surfaces here; the engine's
// invariants hold afterwards either way.
func (e *Engine) Step(body func(*Step) error, opts ...StepOption) error {
	if !e.stage.CompareAndSwap(enginestage.Ready, enginestage.Stepping) {
		return eris.Wrapf(ErrEngineState, "cannot step in stage %s", e.stage.Current())
	}
	defer e.stage.CompareAndSwap(enginestage.Stepping, enginestage.Ready)

	ctx, span := e.tracer.Start(context.Background(), "step")
	defer span.End()

	st := newStep(e, ctx, opts...)

	stepStart := time.Now()
	bodyErr := e.runStepBody(ctx, body, st)
	statsd.EmitStepStat(stepStart, "body")

	refreshStart := time.Now()
	refreshErr := e.refresh(ctx, st)
	statsd.EmitStepStat(refreshStart, "refresh")
	statsd.EmitStepStat(stepStart, "full_step")

	if bodyErr != nil {
		span.SetStatus(codes.Error, eris.ToString(bodyErr, true))
		span.RecordError(bodyErr)
		return bodyErr
	}
	if refreshErr != nil {
		span.SetStatus(codes.Error, eris.ToString(refreshErr, true))
		span.RecordError(refreshErr)
		return refreshErr
	}
	return nil
}

func (e *Engine) runStepBody(ctx context.Context, body func(*Step) error, st *Step) (err error) {
	_, span := e.tracer.Start(ctx, "step.body")
	defer span.End()
	defer func() {
		if r := recover(); r != nil {
			err = eris.Wrapf(ErrUserSystem, "panic in step body: %v", r)
		}
	}()
	return body(st)
}

// Shutdown joins the worker pool and makes the engine inert. Idempotent.
func (e *Engine) Shutdown() {
	current := e.stage.Swap(enginestage.ShuttingDown)
	if current == enginestage.ShuttingDown || current == enginestage.ShutDown {
		e.stage.Store(enginestage.ShutDown)
		return
	}
	if e.pool != nil {
		e.pool.Shutdown()
	}
	e.stage.Store(enginestage.ShutDown)
	e.logger.Info().Msg("engine shut down")
}

// InstanceID returns the engine's unique identifier.
func (e *Engine) InstanceID() string {
	return e.instanceID
}

// WorkerCount returns the pool size. Valid after Finalize.
func (e *Engine) WorkerCount() int {
	if e.pool == nil {
		return 0
	}
	return e.pool.Workers()
}

// AliveCount returns the number of currently allocated entities.
func (e *Engine) AliveCount() int {
	return e.table.AliveCount()
}

// SubscriberCount returns the size of a system's subscription set.
func (e *Engine) SubscriberCount(system string) (int, error) {
	sid, ok := e.systemByName[system]
	if !ok {
		return 0, eris.Wrapf(ErrConfiguration, "unknown system %q", system)
	}
	sub := e.systems[sid].subscribed
	if sub == nil {
		return 0, nil
	}
	return sub.Len(), nil
}

// GetRegisteredComponents implements log.Loggable.
func (e *Engine) GetRegisteredComponents() []types.ComponentInfo {
	infos := make([]types.ComponentInfo, len(e.components))
	for i, meta := range e.components {
		infos[i] = types.ComponentInfo{ID: meta.id, Name: meta.name}
	}
	return infos
}

// GetRegisteredSystems implements log.Loggable.
func (e *Engine) GetRegisteredSystems() []string {
	names := make([]string, len(e.systems))
	for i, sys := range e.systems {
		names[i] = sys.name
	}
	return names
}

type declarationDump struct {
	EngineID   string                `json:"engine_id"`
	Components []types.ComponentInfo `json:"components"`
	Systems    []systemDump          `json:"systems"`
}

type systemDump struct {
	ID          int      `json:"id"`
	Name        string   `json:"name"`
	Reads       []string `json:"reads,omitempty"`
	Writes      []string `json:"writes,omitempty"`
	DependsOn   []string `json:"depends_on,omitempty"`
	Parallelism string   `json:"parallelism"`
	HasOutput   bool     `json:"has_output"`
}

// DebugDeclaration renders the full declaration (components, systems, edges,
// policies) as JSON for diagnostics.
func (e *Engine) DebugDeclaration() ([]byte, error) {
	dump := declarationDump{
		EngineID:   e.instanceID,
		Components: e.GetRegisteredComponents(),
	}
	for _, sys := range e.systems {
		sd := systemDump{
			ID:          int(sys.id),
			Name:        sys.name,
			DependsOn:   sys.depNames,
			Parallelism: sys.policy.String(),
			HasOutput:   sys.newOutput != nil,
		}
		for _, ref := range sys.readRefs {
			sd.Reads = append(sd.Reads, ref.name)
		}
		for _, ref := range sys.writeRefs {
			sd.Writes = append(sd.Writes, ref.name)
		}
		dump.Systems = append(dump.Systems, sd)
	}
	return codec.Encode(dump)
}

// Logger returns the engine's logger.
func (e *Engine) Logger() *zerolog.Logger {
	return &e.logger
}
