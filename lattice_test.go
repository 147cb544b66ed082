package lattice_test

import (
	"testing"

	"pkg.world.dev/lattice"
	"pkg.world.dev/lattice/assert"
)

// Shared test component kinds.

type Position struct {
	X, Y float64
}

func (Position) Name() string { return "position" }

type Velocity struct {
	DX, DY float64
}

func (Velocity) Name() string { return "velocity" }

type Health struct {
	HP int
}

func (Health) Name() string { return "health" }

type Tag struct {
	Value int
}

func (Tag) Name() string { return "tag" }

// emptyState is for systems that carry no user state.
type emptyState struct{}

func newTestEngine(t *testing.T, opts ...lattice.EngineOption) *lattice.Engine {
	t.Helper()
	e, err := lattice.NewEngine(opts...)
	assert.NilError(t, err)
	t.Cleanup(e.Shutdown)
	return e
}

// finalize registers nothing extra and finalizes, failing the test on error.
func finalize(t *testing.T, e *lattice.Engine) {
	t.Helper()
	assert.NilError(t, e.Finalize())
}
