// Package log provides zerolog helpers that dump an engine's declaration
// (component kinds and system names) into structured events.
package log

import (
	"sort"

	"github.com/rs/zerolog"

	"pkg.world.dev/lattice/types"
)

// Loggable is the slice of the engine the helpers need.
type Loggable interface {
	GetRegisteredComponents() []types.ComponentInfo
	GetRegisteredSystems() []string
}

func loadComponentIntoArrayLogger(
	component types.ComponentInfo,
	arrayLogger *zerolog.Array,
) *zerolog.Array {
	dictLogger := zerolog.Dict()
	dictLogger = dictLogger.Int("component_id", int(component.ID))
	dictLogger = dictLogger.Str("component_name", component.Name)
	return arrayLogger.Dict(dictLogger)
}

func loadComponentsToEvent(zeroLoggerEvent *zerolog.Event, target Loggable) *zerolog.Event {
	components := target.GetRegisteredComponents()
	sort.Slice(components, func(i, j int) bool {
		return components[i].ID < components[j].ID
	})
	zeroLoggerEvent.Int("total_components", len(components))
	arrayLogger := zerolog.Arr()
	for _, component := range components {
		arrayLogger = loadComponentIntoArrayLogger(component, arrayLogger)
	}
	return zeroLoggerEvent.Array("components", arrayLogger)
}

func loadSystemsToEvent(zeroLoggerEvent *zerolog.Event, target Loggable) *zerolog.Event {
	zeroLoggerEvent.Int("total_systems", len(target.GetRegisteredSystems()))
	arrayLogger := zerolog.Arr()
	for _, sysName := range target.GetRegisteredSystems() {
		arrayLogger = arrayLogger.Str(sysName)
	}
	return zeroLoggerEvent.Array("systems", arrayLogger)
}

// Components logs all registered component kinds.
func Components(logger *zerolog.Logger, target Loggable, level zerolog.Level) {
	zeroLoggerEvent := logger.WithLevel(level)
	zeroLoggerEvent = loadComponentsToEvent(zeroLoggerEvent, target)
	zeroLoggerEvent.Send()
}

// Systems logs all registered systems.
func Systems(logger *zerolog.Logger, target Loggable, level zerolog.Level) {
	zeroLoggerEvent := logger.WithLevel(level)
	zeroLoggerEvent = loadSystemsToEvent(zeroLoggerEvent, target)
	zeroLoggerEvent.Send()
}

// Declaration logs everything about the engine declaration (components and
// systems).
func Declaration(logger *zerolog.Logger, target Loggable, level zerolog.Level) {
	zeroLoggerEvent := logger.WithLevel(level)
	zeroLoggerEvent = loadComponentsToEvent(zeroLoggerEvent, target)
	zeroLoggerEvent = loadSystemsToEvent(zeroLoggerEvent, target)
	zeroLoggerEvent.Send()
}

// CreateSystemLogger creates a sub logger with the entry {"system": name}.
func CreateSystemLogger(logger *zerolog.Logger, systemName string) *zerolog.Logger {
	newLogger := logger.With().Str("system", systemName).Logger()
	return &newLogger
}
