package lattice

import (
	"context"

	"github.com/rotisserie/eris"

	"pkg.world.dev/lattice/pool"
	"pkg.world.dev/lattice/types"
)

// executeSystemsFrom drives the DAG subgraph reachable from roots. It resets
// the per-task dependency counters, fans out the roots on the worker pool,
// and blocks until every reachable system has completed or been skipped due
// to an earlier error.
func (e *Engine) executeSystemsFrom(ctx context.Context, roots []types.SystemID) error {
	if len(roots) == 0 {
		return nil
	}

	ctx, span := e.tracer.Start(ctx, "step.systems")
	defer span.End()

	// Union of the precomputed per-root forward-reachability masks.
	reach := newSysMask(len(e.systems))
	uniqueRoots := roots[:0:0]
	for _, r := range roots {
		if !containsSystem(uniqueRoots, r) {
			uniqueRoots = append(uniqueRoots, r)
		}
		reach.union(e.systems[r].reach)
	}

	reachableCount := 0
	for _, sys := range e.systems {
		if !reach.has(sys.id) {
			continue
		}
		reachableCount++
		indeg := int32(0)
		for _, dep := range sys.deps {
			if reach.has(dep) {
				indeg++
			}
		}
		sys.remaining.Store(indeg)
		sys.completed.Store(false)
	}

	e.execMu.Lock()
	e.execErr = nil
	e.execMu.Unlock()
	e.execFailed.Store(false)

	latch := pool.NewLatch(reachableCount)
	latch.ExecuteAndWait(func() {
		for _, r := range uniqueRoots {
			// A "root" that is reachable from another root via dependency
			// edges is scheduled by its dependencies instead.
			if e.systems[r].remaining.Load() > 0 {
				continue
			}
			root := r
			e.pool.Submit(func() {
				e.runTask(ctx, root, reach, latch)
			})
		}
	})

	e.execMu.Lock()
	defer e.execMu.Unlock()
	return e.execErr
}

// runTask executes one system then unblocks its dependents. After an error
// has been recorded, remaining tasks are scheduled as empty: counters still
// reach zero so the outer latch terminates, but no user code runs.
func (e *Engine) runTask(ctx context.Context, sid types.SystemID, reach sysMask, latch *pool.Latch) {
	sys := e.systems[sid]

	if !e.execFailed.Load() {
		if err := e.runSystem(ctx, sys); err != nil {
			e.recordExecError(err)
		} else {
			sys.completed.Store(true)
		}
	}

	latch.Done()

	for _, dsid := range sys.dependents {
		if !reach.has(dsid) {
			continue
		}
		if e.systems[dsid].remaining.Add(-1) == 0 {
			dep := dsid
			e.pool.Submit(func() {
				e.runTask(ctx, dep, reach, latch)
			})
		}
	}
}

// recordExecError keeps the first error by thread arrival.
func (e *Engine) recordExecError(err error) {
	e.execMu.Lock()
	if e.execErr == nil {
		e.execErr = err
	}
	e.execMu.Unlock()
	e.execFailed.Store(true)
}

func (e *Engine) resolveSystemIDs(names []string) ([]types.SystemID, error) {
	ids := make([]types.SystemID, 0, len(names))
	for _, name := range names {
		sid, ok := e.systemByName[name]
		if !ok {
			return nil, eris.Wrapf(ErrConfiguration, "unknown system %q", name)
		}
		ids = append(ids, sid)
	}
	return ids, nil
}

func containsSystem(ids []types.SystemID, id types.SystemID) bool {
	for _, existing := range ids {
		if existing == id {
			return true
		}
	}
	return false
}
