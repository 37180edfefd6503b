//go:build v8

// Package v8 implements a backend on the V8 engine through v8go. It is
// built only with the v8 build tag, since it links the V8 library.
package v8

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/shiroyk/runjs/engine"
	"github.com/shiroyk/runjs/errs"
	"github.com/shiroyk/runjs/lib/utils"
	"github.com/shiroyk/runjs/script"
	"github.com/shiroyk/runjs/value"
	"golang.org/x/exp/slog"
	v8go "rogchap.com/v8go"
)

// Name the backend name
const Name = "v8"

// DefaultCodeCacheSize the default number of code caches kept
const DefaultCodeCacheSize = 64

// Options the v8 backend configuration
type Options struct {
	Logger *slog.Logger `yaml:"-"`
	// CodeCacheSize is the number of code caches kept between runs.
	// Negative disables the cache.
	CodeCacheSize int `yaml:"code-cache-size"`
}

// Backend runs units in a fresh isolate. Runs are serialized.
type Backend struct {
	mu     sync.Mutex
	opt    Options
	logger *slog.Logger
	caches *utils.LRUCache[string, []byte]
}

// New returns the v8 backend.
func New(opt Options) *Backend {
	b := &Backend{opt: opt, logger: opt.Logger}
	if b.logger == nil {
		b.logger = slog.Default()
	}
	if size := utils.ZeroOr(opt.CodeCacheSize, DefaultCodeCacheSize); size > 0 {
		b.caches = utils.NewLRUCache[string, []byte](size)
	}
	return b
}

// Name returns "v8".
func (b *Backend) Name() string { return Name }

// Capabilities v8 precompiles to code caches and runs from memory.
func (b *Backend) Capabilities() engine.Capabilities {
	return engine.Capabilities{Precompile: true, FromMemory: true}
}

// Execute runs the unit.
func (b *Backend) Execute(ctx context.Context, unit *script.Unit, mode engine.Mode) (ret any, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	tracker := engine.NewTracker(b.logger, Name)
	iso := v8go.NewIsolate()
	defer iso.Dispose()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			iso.TerminateExecution()
		case <-done:
		}
	}()

	r := &run{ctx: ctx, iso: iso, tracker: tracker, caches: b.caches}
	scripts, err := r.compile(unit, mode)
	if err == nil && mode == engine.Execute {
		ret, err = r.execute(unit, scripts)
	} else if err == nil {
		ret = engine.CompiledNames(unit)
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = &errs.Error{Kind: errs.RuntimeFailure, Message: "execution interrupted", Err: ctxErr}
		}
		return nil, tracker.Fail(ctx, err)
	}
	tracker.Done(ctx)
	return ret, nil
}

type run struct {
	ctx     context.Context
	iso     *v8go.Isolate
	v8ctx   *v8go.Context
	tracker *engine.Tracker
	caches  *utils.LRUCache[string, []byte]
}

// compile compiles every source. The precompile phase produces a code
// cache per source, the compile phase consumes it.
func (r *run) compile(unit *script.Unit, mode engine.Mode) ([]*v8go.UnboundScript, error) {
	sources := unit.Sources()
	data := make([][]byte, len(sources))

	r.tracker.Enter(r.ctx, engine.Precompiling)
	for i, src := range sources {
		key := utils.HashKey(src.Name, src.Code)
		if r.caches != nil {
			if cached, ok := r.caches.Get(key); ok {
				data[i] = cached
				continue
			}
		}
		s, err := r.iso.CompileUnboundScript(src.Code, src.Name, v8go.CompileOptions{})
		if err != nil {
			return nil, jsError(err)
		}
		data[i] = s.CreateCodeCache().Bytes
		if r.caches != nil {
			r.caches.Add(key, data[i])
		}
	}
	if mode == engine.PrecompileOnly {
		return nil, nil
	}

	r.tracker.Enter(r.ctx, engine.Compiling)
	scripts := make([]*v8go.UnboundScript, len(sources))
	for i, src := range sources {
		opts := v8go.CompileOptions{CachedData: &v8go.CompilerCachedData{Bytes: data[i]}}
		s, err := r.iso.CompileUnboundScript(src.Code, src.Name, opts)
		if err != nil {
			return nil, jsError(err)
		}
		if opts.CachedData.Rejected {
			r.tracker.Logger().Debug("code cache rejected", "source", src.Name)
		}
		scripts[i] = s
	}
	return scripts, nil
}

func (r *run) execute(unit *script.Unit, scripts []*v8go.UnboundScript) (any, error) {
	r.tracker.Enter(r.ctx, engine.Executing)
	global := v8go.NewObjectTemplate(r.iso)
	if err := global.Set("console", consoleTemplate(r.ctx, r.iso, r.tracker.Logger())); err != nil {
		return nil, &errs.Error{Kind: errs.ResourceError, Message: "bind console", Err: err}
	}
	r.v8ctx = v8go.NewContext(r.iso, global)
	defer r.v8ctx.Close()

	for _, g := range unit.Globals {
		v, err := r.literal(g.Literal)
		if err != nil {
			return nil, err
		}
		if err = r.v8ctx.Global().Set(g.Name, v); err != nil {
			return nil, &errs.Error{Kind: errs.ConversionError, Message: "bind global " + g.Name, Err: err}
		}
	}

	var (
		result *v8go.Value
		err    error
	)
	for _, s := range scripts {
		if result, err = s.Run(r.v8ctx); err != nil {
			return nil, jsError(err)
		}
	}
	if unit.Call != nil {
		if result, err = r.call(unit.Call); err != nil {
			return nil, err
		}
	}
	if result, err = r.settle(result); err != nil {
		return nil, err
	}

	r.tracker.Enter(r.ctx, engine.DecodingResult)
	return r.decode(result)
}

// literal evaluates a value literal in the run context.
func (r *run) literal(lit string) (*v8go.Value, error) {
	v, err := r.v8ctx.RunScript("("+lit+")", "literal")
	if err != nil {
		return nil, &errs.Error{Kind: errs.ConversionError, Message: "evaluate literal", Err: jsError(err)}
	}
	return v, nil
}

// call looks up the function by its identifier path and calls it with the
// receiver it was found on.
func (r *run) call(inv *script.Invocation) (*v8go.Value, error) {
	root, rest, _ := strings.Cut(inv.Function, ".")
	kind, err := r.v8ctx.RunScript("typeof "+root, "lookup")
	if err != nil {
		return nil, jsError(err)
	}
	if kind.String() == "undefined" {
		return nil, errs.New(errs.FunctionNotFound, "%s is not defined", inv.Function)
	}
	v, err := r.v8ctx.RunScript(root, "lookup")
	if err != nil {
		return nil, jsError(err)
	}

	receiver := v8go.Undefined(r.iso)
	if rest != "" {
		for _, name := range strings.Split(rest, ".") {
			if v == nil || v.IsNullOrUndefined() || !v.IsObject() {
				return nil, errs.New(errs.FunctionNotFound, "%s is not defined", inv.Function)
			}
			obj, err := v.AsObject()
			if err != nil {
				return nil, errs.New(errs.FunctionNotFound, "%s is not defined", inv.Function)
			}
			receiver = obj.Value
			if v, err = obj.Get(name); err != nil {
				return nil, jsError(err)
			}
		}
	}
	if v == nil || !v.IsFunction() {
		return nil, errs.New(errs.FunctionNotFound, "%s is not a function", inv.Function)
	}
	fn, err := v.AsFunction()
	if err != nil {
		return nil, errs.New(errs.FunctionNotFound, "%s is not a function", inv.Function)
	}

	args := make([]v8go.Valuer, len(inv.Literals))
	for i, lit := range inv.Literals {
		if args[i], err = r.literal(lit); err != nil {
			return nil, err
		}
	}
	ret, err := fn.Call(receiver, args...)
	if err != nil {
		return nil, jsError(err)
	}
	return ret, nil
}

// settle drains the microtask queue until a promise result settles.
func (r *run) settle(v *v8go.Value) (*v8go.Value, error) {
	if v == nil || !v.IsPromise() {
		return v, nil
	}
	p, err := v.AsPromise()
	if err != nil {
		return nil, jsError(err)
	}
	for p.State() == v8go.Pending {
		if err = r.ctx.Err(); err != nil {
			return nil, &errs.Error{Kind: errs.RuntimeFailure, Message: "execution interrupted", Err: err}
		}
		r.v8ctx.PerformMicrotaskCheckpoint()
		if p.State() == v8go.Pending {
			return nil, errs.Runtime("promise never settled", "")
		}
	}
	if p.State() == v8go.Rejected {
		reason := p.Result()
		stack := ""
		if reason.IsObject() {
			if obj, err := reason.AsObject(); err == nil {
				if s, err := obj.Get("stack"); err == nil && !s.IsUndefined() {
					stack = s.String()
				}
			}
		}
		return nil, errs.Runtime(reason.String(), stack)
	}
	return p.Result(), nil
}

// decode converts the result with JSON.stringify. Values JSON drops decode
// to nil.
func (r *run) decode(v *v8go.Value) (any, error) {
	if v == nil || v.IsUndefined() || v.IsFunction() || v.IsSymbol() {
		return nil, nil
	}
	text, err := v8go.JSONStringify(r.v8ctx, v)
	if err != nil {
		return nil, &errs.Error{Kind: errs.ConversionError, Message: "stringify result", Err: jsError(err)}
	}
	if text == "" || text == "undefined" {
		return nil, nil
	}
	return value.ParseJSON([]byte(text))
}

// jsError maps a v8go error to a RuntimeFailure.
func jsError(err error) error {
	var (
		jsErr *v8go.JSError
		e     *errs.Error
	)
	switch {
	case errors.As(err, &e):
		return e
	case errors.As(err, &jsErr):
		stack := jsErr.StackTrace
		if stack == "" && jsErr.Location != "" {
			stack = "at " + jsErr.Location
		}
		return errs.Runtime(jsErr.Message, stack)
	default:
		return &errs.Error{Kind: errs.RuntimeFailure, Message: err.Error(), Err: err}
	}
}

// consoleTemplate returns a console object whose methods write to the logger.
func consoleTemplate(ctx context.Context, iso *v8go.Isolate, logger *slog.Logger) *v8go.ObjectTemplate {
	logger = logger.With(slog.String("source", "js"))
	console := v8go.NewObjectTemplate(iso)
	for name, level := range map[string]slog.Level{
		"log":   slog.LevelInfo,
		"info":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
		"debug": slog.LevelDebug,
	} {
		level := level
		_ = console.Set(name, v8go.NewFunctionTemplate(iso, func(info *v8go.FunctionCallbackInfo) *v8go.Value {
			args := info.Args()
			parts := make([]string, len(args))
			for i, arg := range args {
				parts[i] = arg.String()
			}
			logger.Log(ctx, level, strings.Join(parts, " "))
			return nil
		}))
	}
	return console
}

