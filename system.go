package lattice

import (
	"fmt"
	"sync/atomic"

	"github.com/rotisserie/eris"

	"pkg.world.dev/lattice/enginestage"
	"pkg.world.dev/lattice/sparseset"
	"pkg.world.dev/lattice/types"
)

type policyKind int

const (
	policyNone policyKind = iota
	policySplitN
	policySplitCores
	policyThreshold
)

// InnerPolicy decides how a system's subscribed entity set is sliced into
// subtasks. The zero value is NoSplit.
type InnerPolicy struct {
	kind      policyKind
	n         int
	threshold int
	inner     *InnerPolicy
}

// NoSplit runs the system as a single subtask on the scheduling thread.
func NoSplit() InnerPolicy {
	return InnerPolicy{kind: policyNone}
}

// SplitN slices the subscribed set into at most n roughly equal contiguous
// ranges.
func SplitN(n int) InnerPolicy {
	return InnerPolicy{kind: policySplitN, n: n}
}

// SplitEvenlyCores slices the subscribed set into at most one range per pool
// worker.
func SplitEvenlyCores() InnerPolicy {
	return InnerPolicy{kind: policySplitCores}
}

// SplitThreshold uses a single subtask while the subscribed set holds fewer
// than threshold entities, and delegates to inner otherwise.
func SplitThreshold(threshold int, inner InnerPolicy) InnerPolicy {
	return InnerPolicy{kind: policyThreshold, threshold: threshold, inner: &inner}
}

// subtaskCount returns k for a subscribed set of size n. k is never larger
// than max(1, n): with fewer entities than slices each subtask gets one
// entity, and an empty set still yields one zero-range subtask.
func (p InnerPolicy) subtaskCount(n, workers int) int {
	switch p.kind {
	case policySplitN:
		return clampSubtasks(p.n, n)
	case policySplitCores:
		return clampSubtasks(workers, n)
	case policyThreshold:
		if n < p.threshold {
			return 1
		}
		return p.inner.subtaskCount(n, workers)
	default:
		return 1
	}
}

func clampSubtasks(m, n int) int {
	k := n
	if k < 1 {
		k = 1
	}
	if m < k {
		k = m
	}
	if k < 1 {
		k = 1
	}
	return k
}

func (p InnerPolicy) String() string {
	switch p.kind {
	case policySplitN:
		return fmt.Sprintf("split_n(%d)", p.n)
	case policySplitCores:
		return "split_evenly_cores"
	case policyThreshold:
		return fmt.Sprintf("none_below_threshold(%d,%s)", p.threshold, p.inner)
	default:
		return "none"
	}
}

// DeferredFn is a closure queued inside a subtask and executed sequentially
// with a step proxy during refresh.
type DeferredFn func(*Step) error

// SystemConfig is the static declaration of one system.
type SystemConfig struct {
	// Name identifies the system for dependency declarations and logging.
	Name string

	// Reads and Writes are the component kinds the system touches. Their
	// union is the required bitset that drives subscription.
	Reads  []ComponentRef
	Writes []ComponentRef

	// DependsOn lists systems that must complete before this one starts
	// within a step.
	DependsOn []string

	// Parallelism is the inner-parallelism policy. Zero value: no split.
	Parallelism InnerPolicy

	// NewOutput, when set, allocates a fresh per-subtask output buffer at the
	// start of each execution.
	NewOutput func() any
}

// subtaskState is the isolated mutable state of one subtask: its output
// buffer, its kill set, and its deferred closure queue. Subtasks never touch
// each other's state.
type subtaskState struct {
	output   any
	killSet  *sparseset.Set
	deferred []DeferredFn
}

type systemInstance struct {
	id   types.SystemID
	name string

	readBits  types.Bitset
	writeBits types.Bitset
	required  types.Bitset

	readRefs  []ComponentRef
	writeRefs []ComponentRef
	depNames  []string

	deps       []types.SystemID
	dependents []types.SystemID

	policy    InnerPolicy
	newOutput func() any

	value any
	run   func(p *DataProxy) error

	subscribed *sparseset.Set
	states     []subtaskState

	// reach is this system's forward-reachable set (itself plus transitive
	// dependents), precomputed at Finalize.
	reach sysMask

	// Per-execution scheduling state.
	remaining atomic.Int32
	completed atomic.Bool
}

// prepareSubtaskStates clears and sizes the per-subtask states for a run
// with k slices.
func (s *systemInstance) prepareSubtaskStates(k, universe int) {
	for len(s.states) < k {
		s.states = append(s.states, subtaskState{})
	}
	s.states = s.states[:k]
	for i := range s.states {
		st := &s.states[i]
		if st.killSet == nil {
			st.killSet = sparseset.New(universe)
		} else {
			st.killSet.Reset()
		}
		st.deferred = st.deferred[:0]
		if s.newOutput != nil {
			st.output = s.newOutput()
		} else {
			st.output = nil
		}
	}
}

func (s *systemInstance) clearSubtaskStates() {
	for i := range s.states {
		st := &s.states[i]
		if st.killSet != nil {
			st.killSet.Reset()
		}
		st.deferred = st.deferred[:0]
		st.output = nil
	}
	s.states = s.states[:0]
}

// RegisterSystem declares a system with user state type S and binds its
// processing function. The function is the adapter for this system; every
// system must have exactly one, which Finalize verifies.
func RegisterSystem[S any](e *Engine, cfg SystemConfig, fn func(state *S, p *DataProxy) error) error {
	if e.stage.Current() != enginestage.Init {
		return eris.Wrapf(ErrEngineState, "cannot register systems in stage %s", e.stage.Current())
	}
	if cfg.Name == "" {
		return eris.Wrap(ErrConfiguration, "system name must not be empty")
	}
	if _, ok := e.systemByName[cfg.Name]; ok {
		return eris.Wrapf(ErrConfiguration, "system %q is already registered", cfg.Name)
	}

	value := new(S)
	sys := &systemInstance{
		id:        types.SystemID(len(e.systems)),
		name:      cfg.Name,
		readRefs:  cfg.Reads,
		writeRefs: cfg.Writes,
		depNames:  cfg.DependsOn,
		policy:    cfg.Parallelism,
		newOutput: cfg.NewOutput,
		value:     value,
	}
	if fn != nil {
		sys.run = func(p *DataProxy) error {
			return fn(value, p)
		}
	}

	e.systems = append(e.systems, sys)
	e.systemByName[cfg.Name] = sys.id

	e.logger.Debug().Str("system", cfg.Name).Int("system_id", int(sys.id)).
		Str("parallelism", cfg.Parallelism.String()).
		Msg("registered system")
	return nil
}

// sysMask is a bitset over system IDs, used for reachability.
type sysMask []uint64

func newSysMask(n int) sysMask {
	return make(sysMask, (n+63)/64)
}

func (m sysMask) set(id types.SystemID) {
	m[id>>6] |= uint64(1) << uint64(id&63)
}

func (m sysMask) has(id types.SystemID) bool {
	return m[id>>6]&(uint64(1)<<uint64(id&63)) != 0
}

func (m sysMask) union(other sysMask) {
	for i := range m {
		m[i] |= other[i]
	}
}

func (m sysMask) count() int {
	total := 0
	for _, w := range m {
		for ; w != 0; w &= w - 1 {
			total++
		}
	}
	return total
}
