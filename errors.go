package lattice

import (
	"github.com/rotisserie/eris"

	"pkg.world.dev/lattice/gamestate"
	"pkg.world.dev/lattice/storage"
)

var (
	// ErrConfiguration covers every declaration defect caught at engine
	// construction: cyclic dependencies, read/write conflicts between
	// non-dependent systems, unknown component or system tags, and systems
	// without a bound processing function. Fatal.
	ErrConfiguration = eris.New("engine configuration error")

	// ErrInvalidHandle is returned by Access for handles that no longer
	// resolve.
	ErrInvalidHandle = eris.New("invalid entity handle")

	// ErrUserSystem is the cause of the error built from a panic in a user
	// system closure or in the step body. Errors returned by user closures
	// are wrapped with context but keep their own cause. The first error
	// recorded per execution is surfaced from the step call.
	ErrUserSystem = eris.New("user system error")

	// ErrEngineState is returned when the engine is driven outside its
	// lifecycle: stepping before Finalize, finalizing twice, stepping after
	// Shutdown, or overlapping Step calls.
	ErrEngineState = eris.New("engine lifecycle error")

	// ErrComponentAccess is returned by data-proxy component access outside
	// the system's declared read/write sets.
	ErrComponentAccess = eris.New("component access outside declared read/write set")

	// ErrNotADependency is returned when a system asks for the outputs or
	// state of a system it does not declare a dependency on.
	ErrNotADependency = eris.New("system is not a declared dependency")

	// ErrCapacityExhausted is returned by entity creation in fixed-capacity
	// mode with a full table.
	ErrCapacityExhausted = gamestate.ErrCapacityExhausted

	// ErrEntityDoesNotExist is returned for operations on dead or
	// out-of-range entity IDs.
	ErrEntityDoesNotExist = gamestate.ErrEntityDoesNotExist

	// Component store contract violations.
	ErrDoubleAdd        = storage.ErrDoubleAdd
	ErrDoubleRemove     = storage.ErrDoubleRemove
	ErrMissingComponent = storage.ErrMissingComponent
)
