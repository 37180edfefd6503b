// Package engine defines the contract between a session and the
// JavaScript backends that execute its units.
package engine

import (
	"context"

	"github.com/shiroyk/runjs/script"
)

// Capabilities describes what a backend supports.
type Capabilities struct {
	// Precompile reports support for the PrecompileOnly and CompileOnly modes.
	Precompile bool
	// FromMemory reports that sources are executed from memory. Backends
	// without it read libraries from files.
	FromMemory bool
}

// Mode selects how far a run proceeds.
type Mode uint8

const (
	// Execute runs the unit and returns its result.
	Execute Mode = iota
	// PrecompileOnly stops after the precompilation phase.
	PrecompileOnly
	// CompileOnly stops after the compilation phase.
	CompileOnly
)

func (m Mode) String() string {
	switch m {
	case PrecompileOnly:
		return "precompile"
	case CompileOnly:
		return "compile"
	default:
		return "execute"
	}
}

// Backend executes units in a JavaScript engine.
//
// Execute returns the decoded result for the Execute mode, and the ordered
// names of the compiled sources for the two compile modes. Errors are
// *errs.Error values.
type Backend interface {
	Name() string
	Capabilities() Capabilities
	Execute(ctx context.Context, unit *script.Unit, mode Mode) (any, error)
}

// CompiledNames returns the names of the unit's sources in order, the
// result of the compile modes.
func CompiledNames(unit *script.Unit) []any {
	sources := unit.Sources()
	names := make([]any, len(sources))
	for i, src := range sources {
		names[i] = src.Name
	}
	return names
}
