package runjs

import (
	"context"
	"encoding/json"
	"os"
	"reflect"
	"strconv"
	"time"

	"github.com/shiroyk/runjs/cache"
	"github.com/shiroyk/runjs/engine"
	"github.com/shiroyk/runjs/errs"
	"github.com/shiroyk/runjs/lib/utils"
	"github.com/shiroyk/runjs/script"
	"github.com/shiroyk/runjs/value"
	"golang.org/x/exp/slog"
)

// Options the Session construction parameters
type Options struct {
	// Main is the main code, run after every library.
	Main string
	// LibraryPaths are library files, run in order before the inline
	// libraries. The path is the library name.
	LibraryPaths []string
	// Libraries are named inline libraries, run in order.
	Libraries []script.Source
	// Globals is an optional mapping of initial global variables.
	Globals any
	// ASCIIKeys folds non-ASCII keys of host values to ASCII.
	ASCIIKeys bool
	// Cache stores results of runs, keyed by the backend and the unit.
	Cache cache.Cache
	// CacheTimeout is the lifetime of cached results, zero keeps them.
	CacheTimeout time.Duration
	Logger       *slog.Logger
}

// Call selects what a Run does.
type Call struct {
	// Function is an identifier path such as "add5" or "lib.sum". When
	// empty the result is the completion value of the main code.
	Function string
	// Args must be nil or a slice or array.
	Args any
	// PrecompileOnly stops after the precompilation phase and takes
	// precedence over CompileOnly.
	PrecompileOnly bool
	// CompileOnly stops after the compilation phase.
	CompileOnly bool
}

func (c Call) mode() engine.Mode {
	switch {
	case c.PrecompileOnly:
		return engine.PrecompileOnly
	case c.CompileOnly:
		return engine.CompileOnly
	default:
		return engine.Execute
	}
}

// Session holds a program and runs it on one backend.
// A Session is not safe for concurrent mutation.
type Session struct {
	backend   engine.Backend
	program   script.Program
	normalize []value.Option
	cache     cache.Cache
	timeout   time.Duration
	logger    *slog.Logger
}

// asciiKeyer is implemented by backends configured to fold keys.
type asciiKeyer interface {
	ASCIIKeys() bool
}

// NewSession returns a Session on the backend. Library files are checked
// here and read for backends running from memory.
func NewSession(backend engine.Backend, opt Options) (*Session, error) {
	if backend == nil {
		return nil, errs.New(errs.ArgumentError, "backend is nil")
	}
	s := &Session{
		backend: backend,
		program: script.Program{Main: opt.Main, Globals: new(value.Object)},
		cache:   opt.Cache,
		timeout: opt.CacheTimeout,
		logger:  opt.Logger,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if k, ok := backend.(asciiKeyer); opt.ASCIIKeys || (ok && k.ASCIIKeys()) {
		s.normalize = append(s.normalize, value.WithASCIIKeys())
	}

	seen := make(map[string]struct{}, len(opt.LibraryPaths)+len(opt.Libraries))
	unique := func(name string) error {
		if _, ok := seen[name]; ok {
			return errs.New(errs.ArgumentError, "duplicate library %q", name)
		}
		seen[name] = struct{}{}
		return nil
	}

	fromMemory := backend.Capabilities().FromMemory
	for _, path := range opt.LibraryPaths {
		if err := unique(path); err != nil {
			return nil, err
		}
		lib, err := readLibrary(path, fromMemory)
		if err != nil {
			return nil, err
		}
		s.program.Libraries = append(s.program.Libraries, lib)
	}
	for _, lib := range opt.Libraries {
		if lib.Name == "" {
			return nil, errs.New(errs.ArgumentError, "inline library without a name")
		}
		if err := unique(lib.Name); err != nil {
			return nil, err
		}
		s.program.Libraries = append(s.program.Libraries, script.Source{Name: lib.Name, Code: lib.Code})
	}

	if opt.Globals != nil {
		if err := s.SetGlobalVariables(opt.Globals); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func readLibrary(path string, read bool) (script.Source, error) {
	lib := script.Source{Name: path, Path: path}
	fi, err := os.Stat(path)
	if err != nil {
		return lib, errs.Wrap(errs.ResourceError, err, "library %s", path)
	}
	if !fi.Mode().IsRegular() {
		return lib, errs.New(errs.ResourceError, "library %s is not a regular file", path)
	}
	if read {
		code, err := os.ReadFile(path)
		if err != nil {
			return lib, errs.Wrap(errs.ResourceError, err, "library %s", path)
		}
		lib.Code = string(code)
	}
	return lib, nil
}

// Backend returns the backend of the session.
func (s *Session) Backend() engine.Backend { return s.backend }

// Libraries returns the names of the libraries in execution order.
func (s *Session) Libraries() []string {
	names := make([]string, len(s.program.Libraries))
	for i, lib := range s.program.Libraries {
		names[i] = lib.Name
	}
	return names
}

// Globals returns a copy of the global variables.
func (s *Session) Globals() *value.Object {
	return s.program.Globals.Clone()
}

// SetGlobalVariable sets the global variable to the normalized value.
func (s *Session) SetGlobalVariable(name string, v any) error {
	if err := script.CheckGlobalName(name); err != nil {
		return err
	}
	normalized, err := value.Normalize(v, s.normalize...)
	if err != nil {
		return err
	}
	s.program.Globals.Set(name, normalized)
	return nil
}

// SetGlobalVariables sets every entry of the mapping, a map, a struct or
// a *value.Object. Nothing is set when any entry is invalid.
func (s *Session) SetGlobalVariables(mapping any) error {
	switch reflect.Indirect(reflect.ValueOf(mapping)).Kind() {
	case reflect.Map, reflect.Struct:
	default:
		return errs.New(errs.ArgumentError, "global variables must be a mapping, got %T", mapping)
	}
	// names are not folded, they are checked as identifiers
	normalized, err := value.Normalize(mapping)
	if err != nil {
		return err
	}
	obj, ok := normalized.(*value.Object)
	if !ok {
		return errs.New(errs.ArgumentError, "global variables must be a mapping, got %T", mapping)
	}

	globals := make([]any, 0, obj.Len())
	var failed error
	obj.Range(func(name string, v any) bool {
		if failed = script.CheckGlobalName(name); failed != nil {
			return false
		}
		if len(s.normalize) > 0 {
			if v, failed = value.Normalize(v, s.normalize...); failed != nil {
				return false
			}
		}
		globals = append(globals, v)
		return true
	})
	if failed != nil {
		return failed
	}
	for i, name := range obj.Keys() {
		s.program.Globals.Set(name, globals[i])
	}
	return nil
}

// DeleteGlobalVariable removes the global variable.
// An unknown name is an errs.ArgumentError.
func (s *Session) DeleteGlobalVariable(name string) error {
	return s.DeleteGlobalVariables(name)
}

// DeleteGlobalVariables removes the global variables. Nothing is removed
// when any name is unknown.
func (s *Session) DeleteGlobalVariables(names ...string) error {
	for _, name := range names {
		if !s.program.Globals.Has(name) {
			return errs.New(errs.ArgumentError, "unknown global variable %q", name)
		}
	}
	for _, name := range names {
		s.program.Globals.Delete(name)
	}
	return nil
}

// Call runs the function with the arguments.
func (s *Session) Call(ctx context.Context, fn string, args ...any) (any, error) {
	if args == nil {
		args = []any{}
	}
	return s.Run(ctx, Call{Function: fn, Args: args})
}

// Run executes the program. For the compile modes the result is the
// ordered list of compiled source names.
func (s *Session) Run(ctx context.Context, call Call) (any, error) {
	mode := call.mode()
	if mode != engine.Execute && !s.backend.Capabilities().Precompile {
		return nil, errs.New(errs.ArgumentError, "%s backend cannot %s", s.backend.Name(), mode)
	}
	unit, err := s.build(call)
	if err != nil {
		return nil, err
	}

	var key string
	if s.cache != nil && mode == engine.Execute {
		key = s.cacheKey(unit)
		if ret, ok := s.cached(ctx, key); ok {
			return ret, nil
		}
	}

	ret, err := s.backend.Execute(ctx, unit, mode)
	if err != nil {
		return nil, err
	}
	if key != "" {
		s.store(ctx, key, ret)
	}
	return ret, nil
}

// Render returns the program the call would run as a single script.
func (s *Session) Render(call Call) (string, error) {
	unit, err := s.build(call)
	if err != nil {
		return "", err
	}
	return unit.Render(script.Inline{}), nil
}

func (s *Session) build(call Call) (*script.Unit, error) {
	return script.Build(s.program, call.Function, call.Args, script.WithNormalize(s.normalize...))
}

// cacheKey identifies a unit on the backend. Libraries known by path add
// their size and modification time.
func (s *Session) cacheKey(unit *script.Unit) string {
	parts := []string{s.backend.Name(), unit.Render(script.Inline{})}
	for _, lib := range unit.Libraries {
		if lib.Code != "" || lib.Path == "" {
			continue
		}
		if fi, err := os.Stat(lib.Path); err == nil {
			parts = append(parts, strconv.FormatInt(fi.Size(), 10), fi.ModTime().UTC().String())
		}
	}
	return "runjs:" + utils.HashKey(parts...)
}

func (s *Session) cached(ctx context.Context, key string) (any, bool) {
	data, err := s.cache.Get(ctx, key)
	if err != nil {
		s.logger.Warn("cache get failed", "key", key, "error", err)
		return nil, false
	}
	if data == nil {
		return nil, false
	}
	if data, err = cache.Decompress(data); err != nil {
		s.logger.Warn("cache entry corrupt", "key", key, "error", err)
		return nil, false
	}
	ret, err := value.ParseJSON(data)
	if err != nil {
		s.logger.Warn("cache entry corrupt", "key", key, "error", err)
		return nil, false
	}
	s.logger.Debug("cache hit", "key", key)
	return ret, true
}

func (s *Session) store(ctx context.Context, key string, ret any) {
	data, err := json.Marshal(ret)
	if err == nil {
		data, err = cache.Compress(data)
	}
	if err == nil {
		err = s.cache.Set(cache.WithTimeout(ctx, s.timeout), key, data)
	}
	if err != nil {
		s.logger.Warn("cache set failed", "key", key, "error", err)
	}
}
