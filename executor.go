package lattice

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"

	"pkg.world.dev/lattice/pool"
	"pkg.world.dev/lattice/statsd"
)

// runSystem slices the system's subscribed set according to its inner
// policy, fans the slices out as subtasks, runs one slice on the calling
// thread, and waits for the rest. Subtasks within one system are unordered.
func (e *Engine) runSystem(ctx context.Context, sys *systemInstance) error {
	_, span := e.tracer.Start(ctx, "system.run."+sys.name)
	defer span.End()
	start := time.Now()
	defer statsd.EmitStepStat(start, sys.name)

	n := sys.subscribed.Len()
	k := 1
	if !e.cfg.DisallowInnerParallelism {
		k = sys.policy.subtaskCount(n, e.pool.Workers())
	}
	sys.prepareSubtaskStates(k, e.table.Capacity())

	var (
		errMu    sync.Mutex
		firstErr error
	)
	record := func(err error) {
		errMu.Lock()
		if firstErr == nil {
			firstErr = err
		}
		errMu.Unlock()
	}

	latch := pool.NewLatch(k)
	closures := make([]pool.Task, k)
	base, rem := n/k, n%k
	begin := 0
	for i := 0; i < k; i++ {
		size := base
		if i < rem {
			size++
		}
		subtask, sliceBegin, sliceEnd := i, begin, begin+size
		begin += size
		closures[i] = func() {
			defer latch.Done()
			defer func() {
				if r := recover(); r != nil {
					record(eris.Wrapf(ErrUserSystem,
						"panic in system %q subtask %d: %v", sys.name, subtask, r))
				}
			}()
			proxy := newDataProxy(e, sys, subtask, sliceBegin, sliceEnd)
			if err := sys.run(proxy); err != nil {
				record(eris.Wrapf(err, "system %q subtask %d", sys.name, subtask))
			}
		}
	}

	for i := 1; i < k; i++ {
		e.pool.Submit(closures[i])
	}
	closures[0]()

	// Help drain the queue while waiting so nested fan-out cannot deadlock a
	// saturated pool.
	for !latch.Settled() {
		if !e.pool.TryRunOne() {
			latch.Wait()
			break
		}
	}

	return firstErr
}
