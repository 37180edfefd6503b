package runjs

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/shiroyk/runjs/cache"
	"github.com/shiroyk/runjs/engine"
	"github.com/shiroyk/runjs/js"
	"github.com/shiroyk/runjs/script"
	"github.com/shiroyk/runjs/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fileBackend records the units it is given and answers like a backend
// reading libraries from files.
type fileBackend struct {
	calls atomic.Int32
	last  *script.Unit
	ret   any
}

func (b *fileBackend) Name() string                       { return "file" }
func (b *fileBackend) Capabilities() engine.Capabilities { return engine.Capabilities{} }
func (b *fileBackend) Execute(_ context.Context, unit *script.Unit, _ engine.Mode) (any, error) {
	b.calls.Add(1)
	b.last = unit
	return b.ret, nil
}

func newSession(t *testing.T, opt Options) *Session {
	t.Helper()
	s, err := NewRegistry(js.New(js.Options{})).New(js.Name, opt)
	require.NoError(t, err)
	return s
}

func TestSessionCall(t *testing.T) {
	t.Parallel()
	s := newSession(t, Options{Main: `
function add5(v) { return v + 5; }
function sumList(l) { var s=0; for (var i=0;i<l.length;i++) s+=l[i]; return s; }
function echo(v) { return v }
1 + 1`})
	ctx := context.Background()

	testCases := []struct {
		fn   string
		args []any
		want any
	}{
		{"add5", []any{125}, int64(130)},
		{"sumList", []any{[]int{10, 11, 12, 13, 14, 15, 16}}, int64(91)},
		{"echo", []any{map[string]any{"b": 1, "a": []any{"x", nil, true, 1.5}}},
			value.NewObject("a", []any{"x", nil, true, 1.5}, "b", int64(1))},
		{"echo", []any{value.NewObject("z", 1, "y", 2)}, value.NewObject("z", int64(1), "y", int64(2))},
	}
	for _, c := range testCases {
		ret, err := s.Call(ctx, c.fn, c.args...)
		require.NoError(t, err, c.fn)
		assert.Equal(t, c.want, ret, c.fn)
	}

	ret, err := s.Run(ctx, Call{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), ret)

	_, err = s.Call(ctx, "doesNotExist")
	assert.ErrorIs(t, err, ErrFunctionNotFound)
}

func TestSessionArguments(t *testing.T) {
	t.Parallel()
	s := newSession(t, Options{Main: "function f(a) { return a }"})
	ctx := context.Background()

	testCases := []Call{
		{Function: "f", Args: "not-a-list"},
		{Function: "f", Args: 5},
		{Function: "f", Args: []byte("bytes")},
		{Function: "f(1)"},
		{Args: []any{1}},
	}
	for _, c := range testCases {
		_, err := s.Run(ctx, c)
		assert.ErrorIs(t, err, ErrArgument, "%+v", c)
	}

	_, err := s.Call(ctx, "f", make(chan int))
	assert.ErrorIs(t, err, ErrConversion)
}

func TestSessionGlobals(t *testing.T) {
	t.Parallel()
	s := newSession(t, Options{
		Main:    "function f() { return x + 1; } function g() { return [typeof y, cfg.name] }",
		Globals: map[string]any{"cfg": map[string]string{"name": "runjs"}},
	})
	ctx := context.Background()

	require.NoError(t, s.SetGlobalVariable("x", 5))
	ret, err := s.Call(ctx, "f")
	require.NoError(t, err)
	assert.Equal(t, int64(6), ret)

	require.NoError(t, s.SetGlobalVariables(struct {
		X int
		Y string
	}{41, "set"}))
	ret, err = s.Call(ctx, "f")
	require.NoError(t, err)
	assert.Equal(t, int64(42), ret)

	ret, err = s.Call(ctx, "g")
	require.NoError(t, err)
	assert.Equal(t, []any{"string", "runjs"}, ret)

	assert.ErrorIs(t, s.SetGlobalVariable("var", 1), ErrArgument)
	assert.ErrorIs(t, s.SetGlobalVariable("a.b", 1), ErrArgument)
	assert.ErrorIs(t, s.SetGlobalVariables([]int{1}), ErrArgument)
	assert.ErrorIs(t, s.SetGlobalVariables(map[string]any{"ok": 1, "1bad": 2}), ErrArgument)
	assert.False(t, s.Globals().Has("ok"))

	assert.ErrorIs(t, s.DeleteGlobalVariables("y", "missing"), ErrArgument)
	assert.True(t, s.Globals().Has("y"))
	require.NoError(t, s.DeleteGlobalVariables("y"))
	require.NoError(t, s.DeleteGlobalVariable("x"))
	assert.ErrorIs(t, s.DeleteGlobalVariable("x"), ErrArgument)
	assert.Equal(t, []string{"cfg"}, s.Globals().Keys())

	ret, err = s.Call(ctx, "g")
	require.NoError(t, err)
	assert.Equal(t, []any{"undefined", "runjs"}, ret)

	_, err = s.Call(ctx, "f")
	assert.ErrorIs(t, err, ErrRuntime)
}

func TestSessionLibraries(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	a := filepath.Join(dir, "a.js")
	require.NoError(t, os.WriteFile(a, []byte("function fromA() { return ['a'] }"), 0o600))

	s := newSession(t, Options{
		LibraryPaths: []string{a},
		Libraries: []script.Source{
			{Name: "b.js", Code: "function fromB() { return fromA().concat('b') }"},
		},
		Main: "function run() { return fromB().concat('main') }",
	})
	assert.Equal(t, []string{a, "b.js"}, s.Libraries())

	ret, err := s.Call(context.Background(), "run")
	require.NoError(t, err)
	assert.Equal(t, []any{"a", "b", "main"}, ret)

	registry := NewRegistry(js.New(js.Options{}))
	_, err = registry.New(js.Name, Options{LibraryPaths: []string{filepath.Join(dir, "missing.js")}})
	assert.ErrorIs(t, err, ErrResource)
	_, err = registry.New(js.Name, Options{LibraryPaths: []string{dir}})
	assert.ErrorIs(t, err, ErrResource)
	_, err = registry.New(js.Name, Options{Libraries: []script.Source{{Name: "a"}, {Name: "a"}}})
	assert.ErrorIs(t, err, ErrArgument)
	_, err = registry.New(js.Name, Options{Libraries: []script.Source{{Code: "1"}}})
	assert.ErrorIs(t, err, ErrArgument)
	_, err = registry.New("rhino", Options{})
	assert.ErrorIs(t, err, ErrArgument)
}

func TestSessionFileBackend(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	a := filepath.Join(dir, "a.js")
	require.NoError(t, os.WriteFile(a, []byte("var a = 1"), 0o600))

	b := &fileBackend{ret: int64(1)}
	s, err := NewSession(b, Options{LibraryPaths: []string{a}})
	require.NoError(t, err)

	_, err = s.Run(context.Background(), Call{})
	require.NoError(t, err)
	require.Len(t, b.last.Libraries, 1)
	assert.Equal(t, script.Source{Name: a, Path: a}, b.last.Libraries[0], "file backends keep the path")

	_, err = s.Run(context.Background(), Call{CompileOnly: true})
	assert.ErrorIs(t, err, ErrArgument)
}

func TestSessionCompileModes(t *testing.T) {
	t.Parallel()
	s := newSession(t, Options{
		Libraries: []script.Source{{Name: "lib.js", Code: "var a = 1"}},
		Main:      "a",
	})
	ctx := context.Background()
	for _, c := range []Call{{PrecompileOnly: true}, {CompileOnly: true}, {PrecompileOnly: true, CompileOnly: true}} {
		ret, err := s.Run(ctx, c)
		require.NoError(t, err)
		assert.Equal(t, []any{"lib.js", script.MainName}, ret)
	}

	broken := newSession(t, Options{Main: "function ("})
	_, err := broken.Run(ctx, Call{PrecompileOnly: true})
	assert.ErrorIs(t, err, ErrRuntime)
}

func TestSessionCache(t *testing.T) {
	t.Parallel()
	b := &fileBackend{ret: value.NewObject("b", int64(1), "a", []any{"x"})}
	s, err := NewSession(b, Options{Main: "main()", Cache: cache.NewMemory()})
	require.NoError(t, err)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ret, err := s.Run(ctx, Call{})
		require.NoError(t, err)
		assert.Equal(t, b.ret, ret)
	}
	assert.EqualValues(t, 1, b.calls.Load())

	require.NoError(t, s.SetGlobalVariable("x", 1))
	_, err = s.Run(ctx, Call{})
	require.NoError(t, err)
	assert.EqualValues(t, 2, b.calls.Load(), "globals are part of the key")
}

func TestSessionRender(t *testing.T) {
	t.Parallel()
	s := newSession(t, Options{
		Main:    "function f(a) { return a }",
		Globals: value.NewObject("x", 1),
	})
	text, err := s.Render(Call{Function: "f", Args: []any{"a"}})
	require.NoError(t, err)
	assert.Equal(t, `// ==== Global JS variables
var x = 1;
// ==== MAIN JS code
function f(a) { return a }
;
// ==== Call
f("a");
`, text)
}

func TestRegistry(t *testing.T) {
	t.Parallel()
	r := NewRegistry(js.New(js.Options{}), &fileBackend{})
	assert.Equal(t, []string{js.Name, "file"}, r.Names())
	b, ok := r.Get("file")
	assert.True(t, ok)
	assert.Equal(t, "file", b.Name())
	assert.Panics(t, func() { r.Register(nil) })
}
