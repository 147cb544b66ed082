package lattice

import (
	"context"

	"golang.org/x/sync/errgroup"

	"pkg.world.dev/lattice/types"
)

// refresh integrates the step's deferred mutations and restores the
// subscription invariants. It runs synchronously after the step body:
// deferred closures drain sequentially (R1), killed entities are reclaimed
// (R2), and changed entities are re-matched against every system (R3). R2
// and R3 fan out across systems because each mutates only its own
// subscription set.
func (e *Engine) refresh(ctx context.Context, st *Step) error {
	_, span := e.tracer.Start(ctx, "step.refresh")
	defer span.End()

	st.refreshing = true
	defer func() { st.refreshing = false }()

	deferredErr := e.drainDeferred(st)
	e.reclaimDead(st)
	e.rematchChanged(st)

	for _, sys := range e.systems {
		sys.clearSubtaskStates()
		sys.completed.Store(false)
	}
	st.toKill.Reset()
	st.toRematch.Reset()

	return deferredErr
}

// drainDeferred executes queued closures with the step proxy: systems in
// declaration order, subtasks in index order, closures in push order.
// Closures of systems that did not complete are discarded. Draining stops at
// the first closure error; R2/R3 still run so the data structures stay
// consistent.
func (e *Engine) drainDeferred(st *Step) error {
	for _, sys := range e.systems {
		if !sys.completed.Load() {
			continue
		}
		for i := range sys.states {
			for _, fn := range sys.states[i].deferred {
				if err := fn(st); err != nil {
					e.logger.Error().Err(err).Str("system", sys.name).
						Msg("deferred closure failed; remaining closures dropped")
					return err
				}
			}
		}
	}
	return nil
}

// reclaimDead unions the subtask kill sets into the step's kill set, drops
// the dead IDs from every subscription set in parallel, then reclaims them.
func (e *Engine) reclaimDead(st *Step) {
	for _, sys := range e.systems {
		if !sys.completed.Load() {
			continue
		}
		for i := range sys.states {
			sys.states[i].killSet.Each(func(id types.EntityID) {
				st.toKill.Add(id)
			})
		}
	}
	if st.toKill.Len() == 0 {
		return
	}

	killIDs := st.toKill.Dense()
	var g errgroup.Group
	for _, sys := range e.systems {
		sys := sys
		g.Go(func() error {
			for _, id := range killIDs {
				if sys.subscribed.Remove(id) && st.hooks.onUnsubscribe != nil {
					st.hooks.onUnsubscribe(sys.name, id)
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	for _, id := range killIDs {
		if !e.table.Alive(id) {
			continue
		}
		// Drop the entity's component values so every store holds data
		// exactly for the bits still set somewhere.
		e.table.Bitset(id).Each(func(kind types.ComponentID) {
			if err := e.components[kind].store.Remove(id); err != nil {
				e.logger.Error().Err(err).Int32("entity_id", int32(id)).
					Str("component", e.components[kind].name).
					Msg("store cleanup failed during reclaim")
			}
		})
		e.table.Reclaim(id)
		if st.hooks.onReclaim != nil {
			st.hooks.onReclaim(id)
		}
	}
}

// rematchChanged re-evaluates every changed or created entity against every
// system's required bitset, in parallel across systems. The pass is
// idempotent: applying it twice with no intervening mutation leaves the
// subscription sets unchanged.
func (e *Engine) rematchChanged(st *Step) {
	if st.toRematch.Len() == 0 {
		return
	}
	rematchIDs := st.toRematch.Dense()

	var g errgroup.Group
	for _, sys := range e.systems {
		sys := sys
		g.Go(func() error {
			for _, id := range rematchIDs {
				if e.table.Alive(id) && e.table.Bitset(id).ContainsAll(sys.required) {
					if sys.subscribed.Add(id) && st.hooks.onSubscribe != nil {
						st.hooks.onSubscribe(sys.name, id)
					}
				} else {
					if sys.subscribed.Remove(id) && st.hooks.onUnsubscribe != nil {
						st.hooks.onUnsubscribe(sys.name, id)
					}
				}
			}
			return nil
		})
	}
	_ = g.Wait()
}
