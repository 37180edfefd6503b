// Package js implements the embedded backend on the goja runtime.
package js

import (
	"bytes"
	"context"
	"fmt"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"

	"github.com/dop251/goja"
	"github.com/dop251/goja/ast"
	"github.com/shiroyk/runjs/engine"
	"github.com/shiroyk/runjs/errs"
	"github.com/shiroyk/runjs/lib/utils"
	"github.com/shiroyk/runjs/script"
	"golang.org/x/exp/slog"
)

// Name the backend name
const Name = "embedded"

// DefaultProgramCacheSize the default number of compiled programs kept
const DefaultProgramCacheSize = 64

// Options the embedded backend configuration
type Options struct {
	Logger *slog.Logger `yaml:"-"`
	// ProgramCacheSize is the number of compiled programs kept between
	// runs. Negative disables the cache.
	ProgramCacheSize int `yaml:"program-cache-size"`
	// Strict compiles every source in strict mode.
	Strict bool `yaml:"strict"`
	// ASCIIKeys folds non-ASCII property names of host values.
	ASCIIKeys bool `yaml:"ascii-keys"`
	// MaxArrayLength is the largest array length of a result, zero means
	// DefaultMaxArrayLength.
	MaxArrayLength int `yaml:"max-array-length"`
}

// Backend runs units in a fresh goja runtime. Runs are serialized, the
// whole parse, compile and execute sequence holds one lock.
type Backend struct {
	mu       sync.Mutex
	opt      Options
	logger   *slog.Logger
	programs *utils.LRUCache[string, *goja.Program]
}

// New returns the embedded backend.
func New(opt Options) *Backend {
	b := &Backend{opt: opt, logger: opt.Logger}
	if b.logger == nil {
		b.logger = slog.Default()
	}
	size := utils.ZeroOr(opt.ProgramCacheSize, DefaultProgramCacheSize)
	if size > 0 {
		b.programs = utils.NewLRUCache[string, *goja.Program](size)
	}
	return b
}

// Name returns "embedded".
func (b *Backend) Name() string { return Name }

// Capabilities the embedded backend compiles ahead and runs from memory.
func (b *Backend) Capabilities() engine.Capabilities {
	return engine.Capabilities{Precompile: true, FromMemory: true}
}

// ASCIIKeys reports whether host keys should be folded to ASCII.
func (b *Backend) ASCIIKeys() bool { return b.opt.ASCIIKeys }

// Execute runs the unit.
func (b *Backend) Execute(ctx context.Context, unit *script.Unit, mode engine.Mode) (any, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	tracker := engine.NewTracker(b.logger, Name)
	programs, err := b.compile(ctx, tracker, unit, mode)
	if err != nil {
		return nil, tracker.Fail(ctx, err)
	}
	if mode != engine.Execute {
		tracker.Done(ctx)
		return engine.CompiledNames(unit), nil
	}

	ret, err := b.run(ctx, tracker, unit, programs)
	if err != nil {
		return nil, tracker.Fail(ctx, err)
	}
	tracker.Done(ctx)
	return ret, nil
}

// compile parses and compiles the sources in order. Programs found in the
// cache skip both phases.
func (b *Backend) compile(ctx context.Context, tracker *engine.Tracker, unit *script.Unit, mode engine.Mode) ([]*goja.Program, error) {
	sources := unit.Sources()
	programs := make([]*goja.Program, len(sources))
	keys := make([]string, len(sources))
	parsed := make([]*ast.Program, len(sources))

	tracker.Enter(ctx, engine.Precompiling)
	for i, src := range sources {
		keys[i] = utils.HashKey(src.Name, strconv.FormatBool(b.opt.Strict), src.Code)
		if b.programs != nil {
			if p, ok := b.programs.Get(keys[i]); ok {
				programs[i] = p
				continue
			}
		}
		p, err := goja.Parse(src.Name, src.Code)
		if err != nil {
			return nil, exceptionError(err)
		}
		parsed[i] = p
	}
	if mode == engine.PrecompileOnly {
		return programs, nil
	}

	tracker.Enter(ctx, engine.Compiling)
	for i, p := range parsed {
		if p == nil {
			continue
		}
		program, err := goja.CompileAST(p, b.opt.Strict)
		if err != nil {
			return nil, exceptionError(err)
		}
		programs[i] = program
		if b.programs != nil {
			b.programs.Add(keys[i], program)
		}
	}
	return programs, nil
}

func (b *Backend) run(ctx context.Context, tracker *engine.Tracker, unit *script.Unit, programs []*goja.Program) (ret any, err error) {
	tracker.Enter(ctx, engine.Executing)
	rt := goja.New()
	EnableConsole(ctx, rt, tracker.Logger())

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			// Interrupt running JavaScript.
			rt.Interrupt(ctx.Err())
		case <-done:
		}
	}()

	defer func() {
		if r := recover(); r != nil {
			stack := rt.CaptureCallStack(20, nil)
			buf := new(bytes.Buffer)
			for _, frame := range stack {
				frame.Write(buf)
				buf.WriteByte('\n')
			}
			tracker.Logger().Error(fmt.Sprintf("vm run error %s", r),
				"stack", string(debug.Stack()), "js stack", buf.String())
			err = errs.Runtime(fmt.Sprint(r), buf.String())
		}
	}()

	for _, g := range unit.Globals {
		v, err := ToValue(rt, g.Value)
		if err != nil {
			return nil, err
		}
		if err = rt.Set(g.Name, v); err != nil {
			return nil, &errs.Error{Kind: errs.ConversionError, Message: "bind global " + g.Name, Err: err}
		}
	}

	var result goja.Value
	for _, p := range programs {
		if result, err = rt.RunProgram(p); err != nil {
			return nil, exceptionError(err)
		}
	}

	if unit.Call != nil {
		if result, err = call(rt, unit.Call); err != nil {
			return nil, err
		}
	}

	tracker.Enter(ctx, engine.DecodingResult)
	return Export(rt, result, WithContext(ctx), WithMaxArrayLength(b.opt.MaxArrayLength))
}

// call looks up the function by its identifier path and calls it with the
// receiver it was found on.
func call(rt *goja.Runtime, inv *script.Invocation) (goja.Value, error) {
	root, rest, _ := strings.Cut(inv.Function, ".")

	kind, err := rt.RunString("typeof " + root)
	if err != nil {
		return nil, exceptionError(err)
	}
	if kind.String() == "undefined" {
		return nil, errs.New(errs.FunctionNotFound, "%s is not defined", inv.Function)
	}
	v, err := rt.RunString(root)
	if err != nil {
		return nil, exceptionError(err)
	}

	receiver := goja.Undefined()
	if rest != "" {
		for _, name := range strings.Split(rest, ".") {
			if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
				return nil, errs.New(errs.FunctionNotFound, "%s is not defined", inv.Function)
			}
			obj := v.ToObject(rt)
			receiver, v = obj, obj.Get(name)
		}
	}

	fn, ok := goja.AssertFunction(v)
	if !ok {
		return nil, errs.New(errs.FunctionNotFound, "%s is not a function", inv.Function)
	}

	args := make([]goja.Value, len(inv.Args))
	for i, arg := range inv.Args {
		if args[i], err = ToValue(rt, arg); err != nil {
			return nil, err
		}
	}
	ret, err := fn(receiver, args...)
	if err != nil {
		return nil, exceptionError(err)
	}
	return ret, nil
}
