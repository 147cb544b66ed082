package lattice_test

import (
	"testing"

	"pkg.world.dev/lattice"
	"pkg.world.dev/lattice/assert"
	"pkg.world.dev/lattice/codec"
)

func noop(_ *emptyState, _ *lattice.DataProxy) error { return nil }

func TestFinalizeRejectsCycle(t *testing.T) {
	e := newTestEngine(t)
	assert.NilError(t, lattice.RegisterSystem(e, lattice.SystemConfig{
		Name: "A", DependsOn: []string{"B"},
	}, noop))
	assert.NilError(t, lattice.RegisterSystem(e, lattice.SystemConfig{
		Name: "B", DependsOn: []string{"A"},
	}, noop))

	err := e.Finalize()
	assert.ErrorIs(t, err, lattice.ErrConfiguration)
	assert.ErrorContains(t, err, "cycle")
}

func TestFinalizeRejectsSelfDependency(t *testing.T) {
	e := newTestEngine(t)
	assert.NilError(t, lattice.RegisterSystem(e, lattice.SystemConfig{
		Name: "A", DependsOn: []string{"A"},
	}, noop))

	err := e.Finalize()
	assert.ErrorIs(t, err, lattice.ErrConfiguration)
}

func TestFinalizeRejectsUnknownComponentTag(t *testing.T) {
	e := newTestEngine(t)
	assert.NilError(t, lattice.RegisterSystem(e, lattice.SystemConfig{
		Name:  "A",
		Reads: []lattice.ComponentRef{lattice.Comp[Position]()},
	}, noop))

	err := e.Finalize()
	assert.ErrorIs(t, err, lattice.ErrConfiguration)
	assert.ErrorContains(t, err, "unknown component")
}

func TestFinalizeRejectsUnknownDependency(t *testing.T) {
	e := newTestEngine(t)
	assert.NilError(t, lattice.RegisterSystem(e, lattice.SystemConfig{
		Name: "A", DependsOn: []string{"DoesNotExist"},
	}, noop))

	err := e.Finalize()
	assert.ErrorIs(t, err, lattice.ErrConfiguration)
	assert.ErrorContains(t, err, "unknown system")
}

// Two systems without a dependency path between them must not conflict on
// any component kind.
func TestFinalizeRejectsConflictingIndependentSystems(t *testing.T) {
	e := newTestEngine(t)
	assert.NilError(t, lattice.RegisterComponent[Position](e))
	assert.NilError(t, lattice.RegisterSystem(e, lattice.SystemConfig{
		Name:   "Writer",
		Writes: []lattice.ComponentRef{lattice.Comp[Position]()},
	}, noop))
	assert.NilError(t, lattice.RegisterSystem(e, lattice.SystemConfig{
		Name:  "Reader",
		Reads: []lattice.ComponentRef{lattice.Comp[Position]()},
	}, noop))

	err := e.Finalize()
	assert.ErrorIs(t, err, lattice.ErrConfiguration)
	assert.ErrorContains(t, err, "conflict")
}

func TestFinalizeAcceptsConflictResolvedByDependency(t *testing.T) {
	e := newTestEngine(t)
	assert.NilError(t, lattice.RegisterComponent[Position](e))
	assert.NilError(t, lattice.RegisterSystem(e, lattice.SystemConfig{
		Name:   "Writer",
		Writes: []lattice.ComponentRef{lattice.Comp[Position]()},
	}, noop))
	assert.NilError(t, lattice.RegisterSystem(e, lattice.SystemConfig{
		Name:      "Reader",
		Reads:     []lattice.ComponentRef{lattice.Comp[Position]()},
		DependsOn: []string{"Writer"},
	}, noop))

	finalize(t, e)
}

func TestFinalizeAcceptsIndependentReaders(t *testing.T) {
	e := newTestEngine(t)
	assert.NilError(t, lattice.RegisterComponent[Position](e))
	assert.NilError(t, lattice.RegisterSystem(e, lattice.SystemConfig{
		Name:  "ReaderA",
		Reads: []lattice.ComponentRef{lattice.Comp[Position]()},
	}, noop))
	assert.NilError(t, lattice.RegisterSystem(e, lattice.SystemConfig{
		Name:  "ReaderB",
		Reads: []lattice.ComponentRef{lattice.Comp[Position]()},
	}, noop))

	finalize(t, e)
}

func TestFinalizeRejectsSystemWithoutProcessingFunction(t *testing.T) {
	e := newTestEngine(t)
	assert.NilError(t, lattice.RegisterSystem[emptyState](e, lattice.SystemConfig{
		Name: "A",
	}, nil))

	err := e.Finalize()
	assert.ErrorIs(t, err, lattice.ErrConfiguration)
	assert.ErrorContains(t, err, "no processing function")
}

func TestDuplicateRegistrationsRejected(t *testing.T) {
	e := newTestEngine(t)
	assert.NilError(t, lattice.RegisterComponent[Position](e))
	err := lattice.RegisterComponent[Position](e)
	assert.ErrorIs(t, err, lattice.ErrConfiguration)

	assert.NilError(t, lattice.RegisterSystem(e, lattice.SystemConfig{Name: "A"}, noop))
	err = lattice.RegisterSystem(e, lattice.SystemConfig{Name: "A"}, noop)
	assert.ErrorIs(t, err, lattice.ErrConfiguration)
}

func TestLifecycleGuards(t *testing.T) {
	e := newTestEngine(t)

	// Step before finalize.
	err := e.Step(func(_ *lattice.Step) error { return nil })
	assert.ErrorIs(t, err, lattice.ErrEngineState)

	finalize(t, e)

	// Registration after finalize.
	err = lattice.RegisterComponent[Position](e)
	assert.ErrorIs(t, err, lattice.ErrEngineState)
	err = lattice.RegisterSystem(e, lattice.SystemConfig{Name: "Late"}, noop)
	assert.ErrorIs(t, err, lattice.ErrEngineState)

	// Double finalize.
	err = e.Finalize()
	assert.ErrorIs(t, err, lattice.ErrEngineState)

	// Step after shutdown.
	e.Shutdown()
	e.Shutdown() // idempotent
	err = e.Step(func(_ *lattice.Step) error { return nil })
	assert.ErrorIs(t, err, lattice.ErrEngineState)
}

func TestDebugDeclaration(t *testing.T) {
	e := newTestEngine(t)
	assert.NilError(t, lattice.RegisterComponent[Position](e))
	assert.NilError(t, lattice.RegisterComponent[Velocity](e))
	assert.NilError(t, lattice.RegisterSystem(e, lattice.SystemConfig{
		Name:        "Movement",
		Reads:       []lattice.ComponentRef{lattice.Comp[Velocity]()},
		Writes:      []lattice.ComponentRef{lattice.Comp[Position]()},
		Parallelism: lattice.SplitEvenlyCores(),
	}, noop))
	finalize(t, e)

	bz, err := e.DebugDeclaration()
	assert.NilError(t, err)

	dump, err := codec.Decode[map[string]any](bz)
	assert.NilError(t, err)
	assert.Equal(t, e.InstanceID(), dump["engine_id"])

	out := string(bz)
	assert.Contains(t, out, `"position"`)
	assert.Contains(t, out, `"Movement"`)
	assert.Contains(t, out, "split_evenly_cores")
}

func TestSubscriberCountUnknownSystem(t *testing.T) {
	e := newTestEngine(t)
	finalize(t, e)
	_, err := e.SubscriberCount("Nope")
	assert.ErrorIs(t, err, lattice.ErrConfiguration)
}

func TestRegisteredIntrospection(t *testing.T) {
	e := newTestEngine(t)
	assert.NilError(t, lattice.RegisterComponent[Position](e))
	assert.NilError(t, lattice.RegisterSystem(e, lattice.SystemConfig{Name: "A"}, noop))

	comps := e.GetRegisteredComponents()
	assert.Len(t, comps, 1)
	assert.Equal(t, "position", comps[0].Name)
	assert.DeepEqual(t, []string{"A"}, e.GetRegisteredSystems())
}
