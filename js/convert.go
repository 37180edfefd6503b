package js

import (
	"context"
	"fmt"
	"math"
	"reflect"
	"strconv"

	"github.com/dop251/goja"
	"github.com/shiroyk/runjs/errs"
	"github.com/shiroyk/runjs/value"
)

var promiseType = reflect.TypeOf((*goja.Promise)(nil))

// ToValue converts a canonical value to a goja value. Arrays and objects
// are built natively so the engine sees plain JavaScript values.
func ToValue(rt *goja.Runtime, v any) (goja.Value, error) {
	switch t := v.(type) {
	case nil:
		return goja.Null(), nil
	case bool, int64, float64, string:
		return rt.ToValue(t), nil
	case []any:
		items := make([]any, len(t))
		for i, e := range t {
			item, err := ToValue(rt, e)
			if err != nil {
				return nil, err
			}
			items[i] = item
		}
		return rt.NewArray(items...), nil
	case *value.Object:
		obj := rt.NewObject()
		var failed error
		t.Range(func(key string, e any) bool {
			var item goja.Value
			if item, failed = ToValue(rt, e); failed != nil {
				return false
			}
			failed = defineProperty(obj, key, item)
			return failed == nil
		})
		if failed != nil {
			return nil, failed
		}
		return obj, nil
	default:
		return nil, errs.New(errs.ConversionError, "%T is not a normalized value", v)
	}
}

// defineProperty defines an own enumerable property. Keys are used as
// given, folding is left to value.WithASCIIKeys.
func defineProperty(obj *goja.Object, key string, v goja.Value) error {
	if err := obj.DefineDataProperty(key, v, goja.FLAG_TRUE, goja.FLAG_TRUE, goja.FLAG_TRUE); err != nil {
		return &errs.Error{Kind: errs.ConversionError, Message: fmt.Sprintf("set property %q", key), Err: err}
	}
	return nil
}

// skip marks values JSON leaves out of objects: undefined, functions and
// symbols.
type skip struct{}

// DefaultMaxArrayLength the default largest array length Export decodes
const DefaultMaxArrayLength = 1 << 22

// decoder converts goja values to the canonical tree following the
// JSON.stringify rules.
type decoder struct {
	ctx            context.Context
	rt             *goja.Runtime
	maxArrayLength int64
	visiting       map[*goja.Object]struct{}
}

// ExportOption configures Export.
type ExportOption func(*decoder)

// WithContext stops the decoding once ctx is done.
func WithContext(ctx context.Context) ExportOption {
	return func(d *decoder) { d.ctx = ctx }
}

// WithMaxArrayLength sets the largest array length decoded, arrays with a
// greater length are an errs.ConversionError. Zero keeps the default.
func WithMaxArrayLength(n int) ExportOption {
	return func(d *decoder) {
		if n > 0 {
			d.maxArrayLength = int64(n)
		}
	}
}

// Export converts a goja value to the canonical tree.
//
// Arrays keep their order and objects their own enumerable key order.
// Objects with a toJSON method are converted through it. Undefined,
// functions and symbols are dropped from objects and become nil in arrays.
// Settled promises are unwrapped. Cycles, throwing getters and arrays longer
// than the maximum length are reported as errs.ConversionError.
func Export(rt *goja.Runtime, v goja.Value, opts ...ExportOption) (ret any, err error) {
	d := &decoder{
		ctx:            context.Background(),
		rt:             rt,
		maxArrayLength: DefaultMaxArrayLength,
		visiting:       make(map[*goja.Object]struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	defer func() {
		if r := recover(); r != nil {
			if ex, ok := r.(*goja.Exception); ok {
				err = &errs.Error{Kind: errs.ConversionError, Message: "read property", Err: exceptionError(ex)}
				return
			}
			panic(r)
		}
	}()
	ret, err = d.decode("", v)
	if _, ok := ret.(skip); ok {
		ret = nil
	}
	return
}

func (d *decoder) interrupted() error {
	if err := d.ctx.Err(); err != nil {
		return &errs.Error{Kind: errs.RuntimeFailure, Message: "execution interrupted", Err: err}
	}
	return nil
}

func (d *decoder) decode(key string, v goja.Value) (any, error) {
	if v == nil || goja.IsUndefined(v) {
		return skip{}, nil
	}
	if goja.IsNull(v) {
		return nil, nil
	}
	switch t := v.(type) {
	case *goja.Object:
		return d.object(key, t)
	case *goja.Symbol:
		return skip{}, nil
	}
	return d.primitive(v.Export())
}

func (d *decoder) primitive(v any) (any, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case bool, string:
		return t, nil
	case int64:
		return t, nil
	case float64:
		return number(t), nil
	default:
		return nil, errs.New(errs.ConversionError, "unsupported value of %T", v)
	}
}

// number applies the JSON rule to non finite numbers and keeps integral
// values as int64.
func number(f float64) any {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	if f == math.Trunc(f) && math.Abs(f) <= 1<<53-1 {
		return int64(f)
	}
	return f
}

func (d *decoder) object(key string, obj *goja.Object) (any, error) {
	if _, ok := goja.AssertFunction(obj); ok {
		return skip{}, nil
	}

	if obj.ExportType() == promiseType {
		return d.promise(key, obj.Export().(*goja.Promise))
	}

	if _, ok := d.visiting[obj]; ok {
		return nil, errs.New(errs.ConversionError, "cyclic reference at key %q", key)
	}
	d.visiting[obj] = struct{}{}
	defer delete(d.visiting, obj)

	if toJSON, ok := goja.AssertFunction(obj.Get("toJSON")); ok {
		res, err := toJSON(obj, d.rt.ToValue(key))
		if err != nil {
			return nil, &errs.Error{Kind: errs.ConversionError, Message: "toJSON", Err: exceptionError(err)}
		}
		if res == obj {
			return nil, errs.New(errs.ConversionError, "toJSON of key %q returns itself", key)
		}
		return d.decode(key, res)
	}

	switch obj.ClassName() {
	case "Array":
		length := obj.Get("length").ToInteger()
		if length > d.maxArrayLength {
			return nil, errs.New(errs.ConversionError, "array length %d of key %q exceeds %d", length, key, d.maxArrayLength)
		}
		arr := make([]any, length)
		for i := range arr {
			if err := d.interrupted(); err != nil {
				return nil, err
			}
			k := strconv.Itoa(i)
			e, err := d.decode(k, obj.Get(k))
			if err != nil {
				return nil, err
			}
			if _, ok := e.(skip); ok {
				e = nil
			}
			arr[i] = e
		}
		return arr, nil
	case "Number":
		return number(obj.ToFloat()), nil
	case "String":
		return obj.String(), nil
	case "Boolean":
		return d.primitive(obj.Export())
	}

	ret := new(value.Object)
	for _, k := range obj.Keys() {
		if err := d.interrupted(); err != nil {
			return nil, err
		}
		e, err := d.decode(k, obj.Get(k))
		if err != nil {
			return nil, err
		}
		if _, ok := e.(skip); ok {
			continue
		}
		ret.Set(k, e)
	}
	return ret, nil
}

func (d *decoder) promise(key string, p *goja.Promise) (any, error) {
	switch p.State() {
	case goja.PromiseStateFulfilled:
		return d.decode(key, p.Result())
	case goja.PromiseStateRejected:
		return nil, rejection(p.Result())
	default:
		return nil, errs.Runtime("promise is still pending", "")
	}
}
