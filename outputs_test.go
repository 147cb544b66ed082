package lattice_test

import (
	"sync/atomic"
	"testing"

	"github.com/rotisserie/eris"

	"pkg.world.dev/lattice"
	"pkg.world.dev/lattice/assert"
	"pkg.world.dev/lattice/types"
)

type contactList struct {
	Pairs [][2]types.EntityID
}

type gridState struct {
	Cells int
}

// Scenario: a producer fills per-subtask output buffers; a dependent
// consumer visits them and sees every produced element, strictly after all
// producer subtasks finished.
func TestProducerConsumerOutputs(t *testing.T) {
	e := newTestEngine(t)
	assert.NilError(t, lattice.RegisterComponent[Tag](e))

	var producerDone atomic.Int64
	assert.NilError(t, lattice.RegisterSystem(e, lattice.SystemConfig{
		Name:        "Producer",
		Reads:       []lattice.ComponentRef{lattice.Comp[Tag]()},
		Parallelism: lattice.SplitN(3),
		NewOutput:   func() any { return &contactList{} },
	}, func(state *gridState, p *lattice.DataProxy) error {
		out, err := lattice.Output[contactList](p)
		if err != nil {
			return err
		}
		p.EachEntity(func(id types.EntityID) {
			out.Pairs = append(out.Pairs, [2]types.EntityID{id, id})
		})
		state.Cells = 64
		producerDone.Add(1)
		return nil
	}))

	var consumedTotal atomic.Int64
	var producerSubtasksSeen atomic.Int64
	assert.NilError(t, lattice.RegisterSystem(e, lattice.SystemConfig{
		Name:      "Consumer",
		DependsOn: []string{"Producer"},
	}, func(_ *emptyState, p *lattice.DataProxy) error {
		producerSubtasksSeen.Store(producerDone.Load())
		var total int64
		err := lattice.EachOutput(p, "Producer", func(out *contactList) error {
			total += int64(len(out.Pairs))
			return nil
		})
		if err != nil {
			return err
		}
		consumedTotal.Store(total)

		// Read-only access to the dependency's user state.
		grid, err := lattice.DependencyState[gridState](p, "Producer")
		if err != nil {
			return err
		}
		if grid.Cells != 64 {
			return eris.New("producer state not visible to dependent")
		}
		return nil
	}))
	finalize(t, e)

	assert.NilError(t, e.Step(func(st *lattice.Step) error {
		for i := 0; i < 10; i++ {
			id, err := st.CreateEntity()
			if err != nil {
				return err
			}
			if _, err := lattice.AddComponent[Tag](st, id); err != nil {
				return err
			}
		}
		return nil
	}))

	assert.NilError(t, e.Step(func(st *lattice.Step) error {
		return st.ExecuteSystems()
	}))

	assert.Equal(t, int64(10), consumedTotal.Load(),
		"consumer must see the union of all producer subtask outputs")
	assert.Equal(t, int64(3), producerSubtasksSeen.Load(),
		"all producer subtasks must finish before the consumer starts")
}

// Reading outputs of a system that is not a declared dependency fails.
func TestOutputsRequireDeclaredDependency(t *testing.T) {
	e := newTestEngine(t)

	assert.NilError(t, lattice.RegisterSystem(e, lattice.SystemConfig{
		Name:      "Producer",
		NewOutput: func() any { return &contactList{} },
	}, func(_ *emptyState, p *lattice.DataProxy) error {
		return nil
	}))

	var gotErr error
	assert.NilError(t, lattice.RegisterSystem(e, lattice.SystemConfig{
		Name: "Stranger",
	}, func(_ *emptyState, p *lattice.DataProxy) error {
		gotErr = lattice.EachOutput(p, "Producer", func(out *contactList) error {
			return nil
		})
		return nil
	}))
	finalize(t, e)

	assert.NilError(t, e.Step(func(st *lattice.Step) error {
		return st.ExecuteSystemsFrom("Stranger")
	}))
	assert.ErrorIs(t, gotErr, lattice.ErrNotADependency)
}

// A system that declares no output gets an error from Output.
func TestOutputUndeclared(t *testing.T) {
	e := newTestEngine(t)
	var gotErr error
	assert.NilError(t, lattice.RegisterSystem(e, lattice.SystemConfig{
		Name: "Mute",
	}, func(_ *emptyState, p *lattice.DataProxy) error {
		_, gotErr = lattice.Output[contactList](p)
		return nil
	}))
	finalize(t, e)

	assert.NilError(t, e.Step(func(st *lattice.Step) error {
		return st.ExecuteSystems()
	}))
	assert.ErrorIs(t, gotErr, lattice.ErrConfiguration)
}
