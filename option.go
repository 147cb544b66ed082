package lattice

import (
	"github.com/rs/zerolog"
)

// EngineOption overrides the environment-derived Config at construction.
type EngineOption func(*Engine)

// WithLogger replaces the default Nop logger.
func WithLogger(logger zerolog.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithConfig replaces the entire loaded Config.
func WithConfig(cfg Config) EngineOption {
	return func(e *Engine) {
		e.cfg = cfg
	}
}

// WithWorkerCount fixes the worker pool size. Zero means one worker per
// logical CPU.
func WithWorkerCount(workers int) EngineOption {
	return func(e *Engine) {
		e.cfg.NumWorkers = workers
	}
}

// WithFixedEntityCapacity selects a fixed-size entity table. Creation fails
// with ErrCapacityExhausted when full, and ID allocation skips growth
// checks.
func WithFixedEntityCapacity(capacity int) EngineOption {
	return func(e *Engine) {
		e.cfg.EntityCapacity = capacity
		e.cfg.DynamicCapacity = false
	}
}

// WithDynamicEntityCapacity selects a growable entity table with the given
// initial size hint.
func WithDynamicEntityCapacity(hint int) EngineOption {
	return func(e *Engine) {
		e.cfg.EntityCapacity = hint
		e.cfg.DynamicCapacity = true
	}
}

// WithInnerParallelism toggles inner parallelism globally. When disallowed,
// every system runs as a single subtask regardless of its declared policy.
func WithInnerParallelism(allow bool) EngineOption {
	return func(e *Engine) {
		e.cfg.DisallowInnerParallelism = !allow
	}
}
