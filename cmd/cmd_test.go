package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shiroyk/runjs/errs"
	"github.com/shiroyk/runjs/js"
	"github.com/shiroyk/runjs/lib/config"
	"github.com/shiroyk/runjs/node"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestApp(t *testing.T) *app {
	t.Helper()
	cfg := *config.DefaultConfig()
	cfg.Cache.Type = "memory"
	a, err := newApp(cfg, new(bytes.Buffer))
	require.NoError(t, err)
	return a
}

func TestParseGlobal(t *testing.T) {
	t.Parallel()
	testCases := []struct {
		flag string
		name string
		want any
	}{
		{`x=5`, "x", int64(5)},
		{`x=[1,"a"]`, "x", []any{int64(1), "a"}},
		{`s:string=5`, "s", "5"},
		{`i:int=42`, "i", int64(42)},
		{`f:float=1.5`, "f", 1.5},
		{`b:bool=true`, "b", true},
		{`d:duration=1s`, "d", int64(1000)},
		{`eq:string=a=b`, "eq", "a=b"},
	}
	for _, c := range testCases {
		name, v, err := parseGlobal(c.flag)
		require.NoError(t, err, c.flag)
		assert.Equal(t, c.name, name, c.flag)
		assert.Equal(t, c.want, v, c.flag)
	}

	for _, flag := range []string{"novalue", "x:int=abc", "x:date=1", "x={"} {
		_, _, err := parseGlobal(flag)
		assert.ErrorIs(t, err, errs.ArgumentError, flag)
	}
}

func TestParseArg(t *testing.T) {
	t.Parallel()
	testCases := []struct {
		flag string
		want any
	}{
		{`125`, int64(125)},
		{`"a:b"`, "a:b"},
		{`string:a:b`, "a:b"},
		{`int:7`, int64(7)},
		{`{"b":1}`, nil},
	}
	for _, c := range testCases {
		v, err := parseArg(c.flag)
		require.NoError(t, err, c.flag)
		if c.want != nil {
			assert.Equal(t, c.want, v, c.flag)
		}
	}
	_, err := parseArg("not json")
	assert.ErrorIs(t, err, errs.ArgumentError)
}

func TestRun(t *testing.T) {
	t.Parallel()
	a := newTestApp(t)
	dir := t.TempDir()
	lib := filepath.Join(dir, "lib.js")
	require.NoError(t, os.WriteFile(lib, []byte("function sumList(l) { return l.reduce((a, b) => a + b, 0) }"), 0o600))
	file := filepath.Join(dir, "main.js")
	require.NoError(t, os.WriteFile(file, []byte("function add5(v) { return v + 5 + offset }"), 0o600))

	testCases := []struct {
		name  string
		flags runFlags
		args  []string
		stdin string
		want  string
	}{
		{"file", runFlags{function: "add5", args: []string{"125"}, globals: []string{"offset=0"}},
			[]string{file}, "", "130"},
		{"stdin", runFlags{function: "add5", args: []string{"int:1"}, globals: []string{"offset:int=2"}},
			[]string{"-"}, "function add5(v) { return v + 5 + offset }", "8"},
		{"library", runFlags{eval: "sumList(list)", libs: []string{lib}, globals: []string{"list=[10,11,12,13,14,15,16]"}},
			nil, "", "91"},
		{"select", runFlags{eval: "({a: {b: [1, 2]}})", selector: "$.a.b[1]"}, nil, "", "2"},
		{"compile", runFlags{eval: "1", compile: true}, nil, "", "[\n\t\"main.js\"\n]"},
		{"print", runFlags{eval: "f(x)", globals: []string{"x=1"}, print: true}, nil, "",
			"// ==== Global JS variables\nvar x = 1;\n// ==== MAIN JS code\nf(x)\n;"},
	}
	for _, c := range testCases {
		t.Run(c.name, func(t *testing.T) {
			out := new(bytes.Buffer)
			err := run(context.Background(), a, c.flags, c.args, strings.NewReader(c.stdin), out)
			require.NoError(t, err)
			assert.Equal(t, c.want, strings.TrimSpace(out.String()))
		})
	}

	err := run(context.Background(), a, runFlags{eval: "1", function: "missing"}, nil, nil, new(bytes.Buffer))
	assert.ErrorIs(t, err, errs.FunctionNotFound)

	err = run(context.Background(), a, runFlags{eval: "1"}, []string{file}, nil, new(bytes.Buffer))
	assert.ErrorIs(t, err, errs.ArgumentError)

	err = run(context.Background(), a, runFlags{eval: "1", backend: "rhino"}, nil, nil, new(bytes.Buffer))
	assert.ErrorIs(t, err, errs.ArgumentError)
}

func TestRunOutput(t *testing.T) {
	t.Parallel()
	a := newTestApp(t)
	output := filepath.Join(t.TempDir(), "result")

	require.NoError(t, run(context.Background(), a, runFlags{eval: "({x: 1})", output: output}, nil, nil, new(bytes.Buffer)))
	bytes, err := os.ReadFile(output + ".json")
	require.NoError(t, err)
	assert.JSONEq(t, `{"x":1}`, string(bytes))
}

func TestNewApp(t *testing.T) {
	t.Parallel()
	a := newTestApp(t)
	assert.Equal(t, js.Name, a.config.Backend)
	assert.Contains(t, a.registry.Names(), js.Name)
	assert.Contains(t, a.registry.Names(), node.Name)
	assert.NotNil(t, a.cache)
	assert.NoError(t, a.Close())

	cfg := *config.DefaultConfig()
	cfg.Cache.Type = "redis"
	_, err := newApp(cfg, new(bytes.Buffer))
	assert.Error(t, err)

	cfg = *config.DefaultConfig()
	cfg.Cache.Type = "bolt"
	cfg.Cache.Path = t.TempDir()
	a, err = newApp(cfg, new(bytes.Buffer))
	require.NoError(t, err)
	assert.NoError(t, a.Close())
}

func TestWriteDiskConfig(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, writeDiskConfig(path))
	assert.FileExists(t, path)
	assert.Error(t, writeDiskConfig(path), "existing file kept")
}
