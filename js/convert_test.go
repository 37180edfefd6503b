package js

import (
	"context"
	"math"
	"testing"

	"github.com/dop251/goja"
	"github.com/shiroyk/runjs/engine"
	"github.com/shiroyk/runjs/errs"
	"github.com/shiroyk/runjs/script"
	"github.com/shiroyk/runjs/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExport(t *testing.T) {
	t.Parallel()
	testCases := []struct {
		script string
		want   any
	}{
		{`null`, nil},
		{`NaN`, nil},
		{`-Infinity`, nil},
		{`"héllo"`, "héllo"},
		{`2 ** 60`, math.Pow(2, 60)},
		{`new Number(3)`, int64(3)},
		{`new String("s")`, "s"},
		{`new Boolean(false)`, false},
		{`Symbol("x")`, nil},
		{`({z: 1, a: 2})`, value.NewObject("z", int64(1), "a", int64(2))},
		{`({a: undefined, f() {}, s: Symbol(), b: [undefined, () => 1, 2]})`,
			value.NewObject("b", []any{nil, nil, int64(2)})},
		{`({d: new Date(0)})`, value.NewObject("d", "1970-01-01T00:00:00.000Z")},
		{`({toJSON(key) { return "as " + key }})`, "as "},
		{`var shared = {v: 1}; [shared, shared]`, []any{value.NewObject("v", int64(1)), value.NewObject("v", int64(1))}},
	}
	for _, c := range testCases {
		t.Run(c.script, func(t *testing.T) {
			rt := goja.New()
			v, err := rt.RunString(c.script)
			require.NoError(t, err)
			got, err := Export(rt, v)
			require.NoError(t, err)
			assert.Equal(t, c.want, got)
		})
	}
}

func TestExportErrors(t *testing.T) {
	t.Parallel()
	testCases := map[string]string{
		"cycle":        `var a = {}; a.self = a; a`,
		"array cycle":  `var a = [1]; a.push(a); a`,
		"getter":       `({get boom() { throw new Error("getter") }})`,
		"toJSON throw": `({toJSON() { throw new Error("nope") }})`,
	}
	for name, src := range testCases {
		src := src
		t.Run(name, func(t *testing.T) {
			rt := goja.New()
			v, err := rt.RunString(src)
			require.NoError(t, err)
			_, err = Export(rt, v)
			assert.ErrorIs(t, err, errs.ConversionError)
		})
	}
}

func TestExportArrayLength(t *testing.T) {
	t.Parallel()
	rt := goja.New()
	sparse, err := rt.RunString(`var a = []; a.length = 4294967295; a`)
	require.NoError(t, err)
	_, err = Export(rt, sparse)
	assert.ErrorIs(t, err, errs.ConversionError)

	nested, err := rt.RunString(`var b = []; b.length = 2 ** 31; ({list: [b]})`)
	require.NoError(t, err)
	_, err = Export(rt, nested)
	assert.ErrorIs(t, err, errs.ConversionError)

	short, err := rt.RunString(`[1, 2, 3]`)
	require.NoError(t, err)
	got, err := Export(rt, short, WithMaxArrayLength(3))
	require.NoError(t, err)
	assert.Equal(t, []any{int64(1), int64(2), int64(3)}, got)

	long, err := rt.RunString(`[1, 2, 3, 4]`)
	require.NoError(t, err)
	_, err = Export(rt, long, WithMaxArrayLength(3))
	assert.ErrorIs(t, err, errs.ConversionError)

	unit, err := script.Build(script.Program{Main: `var c = []; c.length = 4294967295; c`}, "", nil)
	require.NoError(t, err)
	_, err = New(Options{}).Execute(context.Background(), unit, engine.Execute)
	assert.ErrorIs(t, err, errs.ConversionError)
}

func TestExportContext(t *testing.T) {
	t.Parallel()
	rt := goja.New()
	v, err := rt.RunString(`({a: [1, 2]})`)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Export(rt, v, WithContext(ctx))
	assert.ErrorIs(t, err, errs.RuntimeFailure)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestToValue(t *testing.T) {
	t.Parallel()
	rt := goja.New()
	in := value.NewObject(
		"__proto__", "own",
		"list", []any{int64(1), 2.5, "s", nil, true},
		"nested", value.NewObject("k", "v"),
	)
	v, err := ToValue(rt, in)
	require.NoError(t, err)
	require.NoError(t, rt.Set("input", v))

	res, err := rt.RunString(`[Object.keys(input), Object.getPrototypeOf(input) === Object.prototype, Array.isArray(input.list), input.nested.k]`)
	require.NoError(t, err)
	got, err := Export(rt, res)
	require.NoError(t, err)
	assert.Equal(t, []any{[]any{"__proto__", "list", "nested"}, true, true, "v"}, got)

	back, err := Export(rt, v)
	require.NoError(t, err)
	assert.Equal(t, in, back)

	_, err = ToValue(rt, map[string]any{})
	assert.ErrorIs(t, err, errs.ConversionError)

	accented, err := ToValue(rt, value.NewObject("café", int64(1)))
	require.NoError(t, err)
	assert.Equal(t, []string{"café"}, accented.(*goja.Object).Keys())
}
