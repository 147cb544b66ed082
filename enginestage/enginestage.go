// Package enginestage tracks an engine's lifecycle stage with atomic
// transitions, so misuse like stepping before Finalize or after Shutdown is
// caught at the API boundary.
package enginestage

import (
	"sync/atomic"
)

type Stage string

const (
	Init         Stage = "Init"         // The default stage: registration is open
	Ready        Stage = "Ready"        // Finalize succeeded; the engine can step
	Stepping     Stage = "Stepping"     // A step is in flight
	ShuttingDown Stage = "ShuttingDown" // Shutdown was called
	ShutDown     Stage = "ShutDown"     // Workers joined; the engine is inert
)

type Manager struct {
	current *atomic.Value
}

func NewManager() *Manager {
	m := &Manager{
		current: &atomic.Value{},
	}
	m.Store(Init)
	return m
}

func (m *Manager) CompareAndSwap(oldStage, newStage Stage) (swapped bool) {
	return m.current.CompareAndSwap(oldStage, newStage)
}

func (m *Manager) Current() Stage {
	return m.current.Load().(Stage)
}

func (m *Manager) Store(val Stage) {
	m.current.Store(val)
}

func (m *Manager) Swap(newStage Stage) (oldStage Stage) {
	return m.current.Swap(newStage).(Stage)
}
