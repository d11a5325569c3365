// Package lua evaluates declaration scripts. A script declares resources
// through the "lm" module and may log through the "log" module.
package lua

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog/log"
	lua "github.com/yuin/gopher-lua"

	"github.com/dokzlo13/lmsync/internal/declare"
	"github.com/dokzlo13/lmsync/internal/lua/modules"
)

// Runtime wraps one Lua VM. It is not safe for concurrent use; a fresh
// runtime is created per evaluation so scripts see no state from earlier
// passes.
type Runtime struct {
	L *lua.LState

	declareModule *modules.DeclareModule
}

// NewRuntime creates a Lua runtime with the declaration modules preloaded.
// name tags log entries written by the script.
func NewRuntime(name string) *Runtime {
	r := &Runtime{
		L:             lua.NewState(),
		declareModule: modules.NewDeclareModule(),
	}

	r.L.PreloadModule("log", modules.NewLogModule(name).Loader)
	r.L.PreloadModule("lm", r.declareModule.Loader)

	return r
}

// Close closes the Lua state.
func (r *Runtime) Close() {
	r.L.Close()
}

// LoadScript executes the script at path.
func (r *Runtime) LoadScript(ctx context.Context, path string) error {
	r.L.SetContext(ctx)
	if err := r.L.DoFile(path); err != nil {
		return fmt.Errorf("failed to execute Lua script: %w", err)
	}
	return nil
}

// LoadString executes src as a chunk.
func (r *Runtime) LoadString(ctx context.Context, src string) error {
	r.L.SetContext(ctx)
	if err := r.L.DoString(src); err != nil {
		return fmt.Errorf("failed to execute Lua script: %w", err)
	}
	return nil
}

// Declarations returns the resources declared so far.
func (r *Runtime) Declarations() declare.Set {
	return r.declareModule.Declarations()
}

// Evaluate runs the script at path in a fresh runtime and returns what it declared.
func Evaluate(ctx context.Context, path string) (declare.Set, error) {
	r := NewRuntime(filepath.Base(path))
	defer r.Close()

	log.Debug().Str("path", path).Msg("Evaluating Lua declarations")

	if err := r.LoadScript(ctx, path); err != nil {
		return nil, err
	}

	set := r.Declarations()
	log.Debug().Str("path", path).Int("declarations", len(set)).Msg("Lua declarations evaluated")
	return set, nil
}
