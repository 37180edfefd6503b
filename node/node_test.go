package node

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/shiroyk/runjs/engine"
	"github.com/shiroyk/runjs/errs"
	"github.com/shiroyk/runjs/script"
	"github.com/shiroyk/runjs/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requireNode(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath(DefaultCommand); err != nil {
		t.Skip("node is not installed")
	}
}

func build(t *testing.T, prog script.Program, fn string, args any) *script.Unit {
	t.Helper()
	unit, err := script.Build(prog, fn, args)
	require.NoError(t, err)
	return unit
}

func assertEmptyDir(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "run directory was not removed")
}

func TestNode(t *testing.T) {
	t.Parallel()
	requireNode(t)
	tmp := t.TempDir()
	b := New(Options{TempDir: tmp})

	lib := filepath.Join(t.TempDir(), "a.js")
	require.NoError(t, os.WriteFile(lib, []byte("var order = ['a']"), 0o600))

	prog := script.Program{
		Libraries: []script.Source{
			{Name: "a.js", Path: lib},
			{Name: "b.js", Code: "order.push('b')"},
		},
		Globals: value.NewObject("x", int64(120), "cfg", value.NewObject("z", true, "a", []any{1.5})),
		Main: `
order.push('main');
console.log('hello from main');
function add5(n) { return n + 5 }
function sumList(list) { return list.reduce((a, b) => a + b, 0) }
function get() { return order }
function globals() { return [x, cfg] }
async function later(v) { return v * 2 }
function cyclic() { var a = {}; a.a = a; return a }
const obj = { k: 3, f(n) { return this.k * n } }
1 + 1`,
	}

	testCases := []struct {
		fn   string
		args any
		want any
	}{
		{"", nil, int64(2)},
		{"add5", []int{125}, int64(130)},
		{"sumList", []any{[]int{1, 2, 3}}, int64(6)},
		{"get", nil, []any{"a", "b", "main"}},
		{"globals", nil, []any{int64(120), value.NewObject("z", true, "a", []any{1.5})}},
		{"later", []int{21}, int64(42)},
		{"obj.f", []int{2}, int64(6)},
	}
	for _, c := range testCases {
		v, err := b.Execute(context.Background(), build(t, prog, c.fn, c.args), engine.Execute)
		require.NoError(t, err, c.fn)
		assert.Equal(t, c.want, v, c.fn)
	}

	for _, fn := range []string{"missing", "obj.missing", "obj.k", "obj.nope.c.d", "missing.deep"} {
		_, err := b.Execute(context.Background(), build(t, prog, fn, nil), engine.Execute)
		assert.ErrorIs(t, err, errs.FunctionNotFound, fn)
	}

	_, err := b.Execute(context.Background(), build(t, prog, "cyclic", nil), engine.Execute)
	assert.ErrorIs(t, err, errs.ConversionError)

	assertEmptyDir(t, tmp)
}

func TestNodeRuntimeFailure(t *testing.T) {
	t.Parallel()
	requireNode(t)
	tmp := t.TempDir()
	b := New(Options{TempDir: tmp})

	_, err := b.Execute(context.Background(), build(t, script.Program{
		Main: "function fail() { throw new TypeError('boom') }",
	}, "fail", nil), engine.Execute)
	require.ErrorIs(t, err, errs.RuntimeFailure)
	var e *errs.Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, "TypeError: boom", e.Message)
	assert.Contains(t, e.Stack, "at fail")

	_, err = b.Execute(context.Background(), build(t, script.Program{Main: "console.error('warned')"}, "", nil), engine.Execute)
	assert.ErrorIs(t, err, errs.RuntimeFailure)
	assert.ErrorContains(t, err, "warned")

	_, err = b.Execute(context.Background(), build(t, script.Program{Main: "process.exit(0)"}, "", nil), engine.Execute)
	assert.ErrorIs(t, err, errs.RuntimeFailure)

	assertEmptyDir(t, tmp)
}

func TestNodeTimeout(t *testing.T) {
	t.Parallel()
	requireNode(t)
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	_, err := New(Options{TempDir: t.TempDir()}).Execute(ctx, build(t, script.Program{Main: "while(true){}"}, "", nil), engine.Execute)
	assert.ErrorIs(t, err, errs.RuntimeFailure)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNodeResourceErrors(t *testing.T) {
	t.Parallel()
	tmp := t.TempDir()

	_, err := New(Options{Command: "runjs-missing-node", TempDir: tmp}).
		Execute(context.Background(), build(t, script.Program{Main: "1"}, "", nil), engine.Execute)
	assert.ErrorIs(t, err, errs.ResourceError)

	_, err = New(Options{TempDir: tmp}).Execute(context.Background(), build(t, script.Program{
		Libraries: []script.Source{{Name: "gone.js", Path: filepath.Join(tmp, "gone.js")}},
	}, "", nil), engine.Execute)
	assert.ErrorIs(t, err, errs.ResourceError)

	assertEmptyDir(t, tmp)
}

func TestNodeCompileModes(t *testing.T) {
	t.Parallel()
	b := New(Options{})
	assert.False(t, b.Capabilities().Precompile)
	for _, mode := range []engine.Mode{engine.PrecompileOnly, engine.CompileOnly} {
		_, err := b.Execute(context.Background(), build(t, script.Program{Main: "1"}, "", nil), mode)
		assert.ErrorIs(t, err, errs.ArgumentError)
	}
}
