// Package script assembles the execution unit of a run: the bootstrap shim,
// the global variable declarations, the libraries, the main code and the
// optional function call, in that order.
package script

import (
	"reflect"
	"strings"

	"github.com/shiroyk/runjs/errs"
	"github.com/shiroyk/runjs/value"
)

// MainName is the source name of the main code.
const MainName = "main.js"

// Source is a named piece of JavaScript.
type Source struct {
	Name string
	// Code is the source text. It is empty for libraries that are only
	// known by Path.
	Code string
	// Path is the file the source lives in, if any.
	Path string
}

// Global is a global variable declaration.
type Global struct {
	Name  string
	Value any
	// Literal is Value rendered as JavaScript.
	Literal string
}

// Invocation is the function call that produces the result of a run.
type Invocation struct {
	// Function is an identifier path such as "add5" or "lib.sum".
	Function string
	Args     []any
	Literals []string
}

// Unit is everything a backend needs to perform one run.
type Unit struct {
	Shim      string
	Globals   []Global
	Libraries []Source
	Main      Source
	// Call is nil when the run evaluates the main code only.
	Call *Invocation
}

// Sources returns the libraries followed by the main code.
func (u *Unit) Sources() []Source {
	sources := make([]Source, 0, len(u.Libraries)+1)
	sources = append(sources, u.Libraries...)
	return append(sources, u.Main)
}

// Program is the accumulated state a Unit is built from.
type Program struct {
	Main      string
	Libraries []Source
	// Globals holds normalized values by name.
	Globals *value.Object
}

// Option configures Build.
type Option func(*builder)

// WithShim prepends bootstrap code to the unit.
func WithShim(code string) Option {
	return func(b *builder) { b.shim = code }
}

// WithNormalize sets the options used to normalize call arguments.
func WithNormalize(opts ...value.Option) Option {
	return func(b *builder) { b.normalize = opts }
}

type builder struct {
	shim      string
	normalize []value.Option
}

// Build validates the call and assembles the Unit of a run.
//
// fn is empty or an identifier path, args is nil or an ordered sequence.
// Anything else is an errs.ArgumentError, reported before any engine work.
func Build(p Program, fn string, args any, opts ...Option) (*Unit, error) {
	b := new(builder)
	for _, opt := range opts {
		opt(b)
	}

	unit := &Unit{
		Shim:      b.shim,
		Libraries: append([]Source(nil), p.Libraries...),
		Main:      Source{Name: MainName, Code: p.Main},
	}

	var err error
	if fn != "" {
		if unit.Call, err = b.invocation(fn, args); err != nil {
			return nil, err
		}
	} else if args != nil {
		return nil, errs.New(errs.ArgumentError, "arguments given without a function name")
	}

	var failed error
	p.Globals.Range(func(name string, v any) bool {
		if failed = CheckGlobalName(name); failed != nil {
			return false
		}
		var lit string
		if lit, failed = value.Literal(v); failed != nil {
			return false
		}
		unit.Globals = append(unit.Globals, Global{Name: name, Value: v, Literal: lit})
		return true
	})
	if failed != nil {
		return nil, failed
	}
	return unit, nil
}

func (b *builder) invocation(fn string, args any) (*Invocation, error) {
	if !IsIdentifierPath(fn) {
		return nil, errs.New(errs.ArgumentError, "invalid function name %q", fn)
	}
	call := &Invocation{Function: fn}
	if args == nil {
		return call, nil
	}

	switch rv := reflect.ValueOf(args); rv.Kind() {
	case reflect.Slice, reflect.Array:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return nil, errs.New(errs.ArgumentError, "arguments must be an ordered sequence, got %T", args)
		}
	default:
		return nil, errs.New(errs.ArgumentError, "arguments must be an ordered sequence, got %T", args)
	}

	normalized, err := value.Normalize(args, b.normalize...)
	if err != nil {
		return nil, err
	}
	call.Args, _ = normalized.([]any)
	call.Literals = make([]string, len(call.Args))
	for i, arg := range call.Args {
		if call.Literals[i], err = value.Literal(arg); err != nil {
			return nil, err
		}
	}
	return call, nil
}

// Dialect renders the parts of a Unit as program text.
type Dialect interface {
	Declare(b *strings.Builder, g Global)
	Library(b *strings.Builder, src Source)
	Main(b *strings.Builder, src Source)
	Invoke(b *strings.Builder, call *Invocation)
}

// Render concatenates the Unit in execution order using the dialect.
func (u *Unit) Render(d Dialect) string {
	var b strings.Builder
	if u.Shim != "" {
		b.WriteString(u.Shim)
		b.WriteString("\n")
	}
	if len(u.Globals) > 0 {
		b.WriteString("// ==== Global JS variables\n")
		for _, g := range u.Globals {
			d.Declare(&b, g)
		}
	}
	if len(u.Libraries) > 0 {
		b.WriteString("// ==== JS libraries\n")
		for _, src := range u.Libraries {
			d.Library(&b, src)
		}
	}
	b.WriteString("// ==== MAIN JS code\n")
	d.Main(&b, u.Main)
	if u.Call != nil {
		b.WriteString("// ==== Call\n")
		d.Invoke(&b, u.Call)
	}
	return b.String()
}

// Inline renders a self-contained program whose completion value is the
// result of the run.
type Inline struct{}

// Declare writes `var name = literal;`.
func (Inline) Declare(b *strings.Builder, g Global) {
	b.WriteString("var ")
	b.WriteString(g.Name)
	b.WriteString(" = ")
	b.WriteString(g.Literal)
	b.WriteString(";\n")
}

// Library writes the library code, or a reference to its path when the
// code was never loaded.
func (i Inline) Library(b *strings.Builder, src Source) {
	b.WriteString("// ")
	b.WriteString(src.Name)
	b.WriteString("\n")
	if src.Code == "" && src.Path != "" {
		b.WriteString("// include ")
		b.WriteString(src.Path)
		b.WriteString("\n")
		return
	}
	i.Main(b, src)
}

// Main writes the code followed by an empty statement, so a following
// section cannot be parsed as a continuation of the last expression.
func (Inline) Main(b *strings.Builder, src Source) {
	b.WriteString(src.Code)
	b.WriteString("\n;\n")
}

// Invoke writes `fn(args...);`.
func (Inline) Invoke(b *strings.Builder, call *Invocation) {
	b.WriteString(call.Function)
	b.WriteByte('(')
	b.WriteString(strings.Join(call.Literals, ", "))
	b.WriteString(");\n")
}
