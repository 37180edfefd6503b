package value

import (
	"encoding"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shiroyk/runjs/errs"
)

var (
	objectType    = reflect.TypeOf((*Object)(nil))
	marshalerType = reflect.TypeOf((*Marshaler)(nil)).Elem()
)

// Option configures Normalize.
type Option func(*normalizer)

// WithASCIIKeys folds mapping keys to ASCII, see ASCIIKey. Two keys of one
// mapping folding to the same name are an errs.ConversionError.
func WithASCIIKeys() Option {
	return func(n *normalizer) { n.asciiKeys = true }
}

// Normalize converts a host value to the canonical tree.
//
// Integers become int64, floats float64, []byte and strings string,
// time.Time an RFC 3339 string. Slices and arrays become []any. Maps become
// *Object with keys sorted, *Object keeps its order. Structs become *Object
// of their exported fields, see FieldName. Values implementing Marshaler
// are asked for their form first, then encoding.TextMarshaler values become
// their text.
//
// Channels, functions, complex numbers, structs without exported fields and
// reference cycles are reported as errs.ConversionError.
func Normalize(v any, opts ...Option) (any, error) {
	n := &normalizer{visiting: make(map[visit]struct{})}
	for _, opt := range opts {
		opt(n)
	}
	return n.value(v)
}

type visit struct {
	ptr uintptr
	typ reflect.Type
	len int
}

// maxDepth bounds nesting that identity tracking cannot see, such as a
// value type whose MarshalJS returns itself.
const maxDepth = 10000

type normalizer struct {
	asciiKeys bool
	depth     int
	visiting  map[visit]struct{}
	path      []string
	// folds maps the folded keys of an object to their original key.
	folds map[*Object]map[string]string
}

func (n *normalizer) fail(format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	if len(n.path) > 0 {
		msg += " at $" + strings.Join(n.path, "")
	}
	return &errs.Error{Kind: errs.ConversionError, Message: msg}
}

// enter marks a reference as being on the active path.
func (n *normalizer) enter(v visit) (leave func(), err error) {
	if _, ok := n.visiting[v]; ok {
		return nil, n.fail("cyclic reference of %s", v.typ)
	}
	n.visiting[v] = struct{}{}
	return func() { delete(n.visiting, v) }, nil
}

func (n *normalizer) push(seg string) { n.path = append(n.path, seg) }

func (n *normalizer) pop() { n.path = n.path[:len(n.path)-1] }

func (n *normalizer) key(k string) string {
	if n.asciiKeys {
		if folded := ASCIIKey(k); folded != "" {
			return folded
		}
	}
	return k
}

// set stores the value under the folded key. A folded key may not meet
// another key of the object.
func (n *normalizer) set(obj *Object, k string, v any) error {
	key := n.key(k)
	if src, ok := n.folds[obj][key]; ok && src != k {
		return n.fail("keys %q and %q both fold to %q", src, k, key)
	}
	if key != k {
		if obj.Has(key) {
			return n.fail("keys %q and %q both fold to %q", key, k, key)
		}
		if n.folds == nil {
			n.folds = make(map[*Object]map[string]string)
		}
		if n.folds[obj] == nil {
			n.folds[obj] = make(map[string]string)
		}
		n.folds[obj][key] = k
	}
	obj.Set(key, v)
	return nil
}

func (n *normalizer) value(v any) (any, error) {
	n.depth++
	defer func() { n.depth-- }()
	if n.depth > maxDepth {
		return nil, n.fail("value nested deeper than %d", maxDepth)
	}

	switch t := v.(type) {
	case nil:
		return nil, nil
	case bool, string, int64, float64:
		return t, nil
	case int:
		return int64(t), nil
	case *Object:
		if t == nil {
			return nil, nil
		}
		return n.object(t)
	case json.Number:
		return parseNumber(string(t))
	case json.RawMessage:
		return ParseJSON(t)
	case time.Time:
		return t.Format(time.RFC3339Nano), nil
	case []byte:
		return string(t), nil
	case Marshaler:
		return n.marshaler(reflect.ValueOf(v), t)
	case encoding.TextMarshaler:
		return n.text(reflect.ValueOf(v), t)
	}
	return n.reflect(reflect.ValueOf(v))
}

func (n *normalizer) text(rv reflect.Value, m encoding.TextMarshaler) (any, error) {
	if rv.Kind() == reflect.Pointer && rv.IsNil() {
		return nil, nil
	}
	text, err := m.MarshalText()
	if err != nil {
		return nil, &errs.Error{Kind: errs.ConversionError, Message: "marshal " + rv.Type().String(), Err: err}
	}
	return string(text), nil
}

func (n *normalizer) marshaler(rv reflect.Value, m Marshaler) (any, error) {
	if rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil, nil
		}
		leave, err := n.enter(visit{ptr: rv.Pointer(), typ: rv.Type()})
		if err != nil {
			return nil, err
		}
		defer leave()
	}
	v, err := m.MarshalJS()
	if err != nil {
		return nil, &errs.Error{Kind: errs.ConversionError, Message: "marshal " + rv.Type().String(), Err: err}
	}
	return n.value(v)
}

// field converts a reflected value, falling back to reflection when the
// value cannot be turned into an interface.
func (n *normalizer) field(rv reflect.Value) (any, error) {
	if rv.CanInterface() {
		return n.value(rv.Interface())
	}
	return n.reflect(rv)
}

func (n *normalizer) reflect(rv reflect.Value) (any, error) {
	switch rv.Kind() {
	case reflect.Invalid:
		return nil, nil
	case reflect.Bool:
		return rv.Bool(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		if u := rv.Uint(); u <= math.MaxInt64 {
			return int64(u), nil
		}
		return float64(rv.Uint()), nil
	case reflect.Float32, reflect.Float64:
		return rv.Float(), nil
	case reflect.String:
		return rv.String(), nil
	case reflect.Pointer:
		if rv.IsNil() {
			return nil, nil
		}
		leave, err := n.enter(visit{ptr: rv.Pointer(), typ: rv.Type()})
		if err != nil {
			return nil, err
		}
		defer leave()
		return n.field(rv.Elem())
	case reflect.Interface:
		if rv.IsNil() {
			return nil, nil
		}
		return n.field(rv.Elem())
	case reflect.Slice:
		if rv.IsNil() {
			return nil, nil
		}
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return string(rv.Bytes()), nil
		}
		if rv.Len() > 0 {
			leave, err := n.enter(visit{ptr: rv.Pointer(), typ: rv.Type(), len: rv.Len()})
			if err != nil {
				return nil, err
			}
			defer leave()
		}
		return n.sequence(rv)
	case reflect.Array:
		return n.sequence(rv)
	case reflect.Map:
		if rv.IsNil() {
			return nil, nil
		}
		leave, err := n.enter(visit{ptr: rv.Pointer(), typ: rv.Type()})
		if err != nil {
			return nil, err
		}
		defer leave()
		return n.mapping(rv)
	case reflect.Struct:
		if !hasExportedFields(rv.Type()) {
			return nil, n.fail("%s has no exported fields", rv.Type())
		}
		obj := new(Object)
		if err := n.record(obj, rv); err != nil {
			return nil, err
		}
		return obj, nil
	default:
		return nil, n.fail("unsupported type %s", rv.Type())
	}
}

func (n *normalizer) sequence(rv reflect.Value) (any, error) {
	s := make([]any, rv.Len())
	for i := range s {
		n.push("[" + strconv.Itoa(i) + "]")
		v, err := n.field(rv.Index(i))
		n.pop()
		if err != nil {
			return nil, err
		}
		s[i] = v
	}
	return s, nil
}

func (n *normalizer) mapping(rv reflect.Value) (any, error) {
	type pair struct {
		key string
		val reflect.Value
	}
	pairs := make([]pair, 0, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		k, err := n.mapKey(iter.Key())
		if err != nil {
			return nil, err
		}
		pairs = append(pairs, pair{k, iter.Value()})
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].key < pairs[j].key })

	obj := &Object{values: make(map[string]any, len(pairs))}
	for _, p := range pairs {
		n.push("." + p.key)
		v, err := n.field(p.val)
		n.pop()
		if err != nil {
			return nil, err
		}
		if err = n.set(obj, p.key, v); err != nil {
			return nil, err
		}
	}
	return obj, nil
}

func (n *normalizer) mapKey(k reflect.Value) (string, error) {
	switch k.Kind() {
	case reflect.String:
		return k.String(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(k.Int(), 10), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return strconv.FormatUint(k.Uint(), 10), nil
	case reflect.Interface:
		if !k.IsNil() {
			return n.mapKey(k.Elem())
		}
	}
	return "", n.fail("unsupported map key type %s", k.Type())
}

func (n *normalizer) object(o *Object) (any, error) {
	leave, err := n.enter(visit{ptr: reflect.ValueOf(o).Pointer(), typ: objectType})
	if err != nil {
		return nil, err
	}
	defer leave()

	obj := &Object{values: make(map[string]any, o.Len())}
	for _, k := range o.keys {
		n.push("." + k)
		v, err := n.value(o.values[k])
		n.pop()
		if err != nil {
			return nil, err
		}
		if err = n.set(obj, k, v); err != nil {
			return nil, err
		}
	}
	return obj, nil
}

func (n *normalizer) record(obj *Object, rv reflect.Value) error {
	t := rv.Type()
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if f.Anonymous {
			if _, tagged := f.Tag.Lookup("js"); !tagged {
				fv := rv.Field(i)
				if fv.Kind() == reflect.Pointer {
					if fv.IsNil() || fv.Type().Elem().Kind() != reflect.Struct {
						continue
					}
					fv = fv.Elem()
				}
				if fv.Kind() == reflect.Struct && !fv.Type().Implements(marshalerType) {
					if err := n.record(obj, fv); err != nil {
						return err
					}
					continue
				}
			}
		}
		if !f.IsExported() || f.Type.Kind() == reflect.Func || f.Type.Kind() == reflect.Chan {
			continue
		}
		name, omitEmpty := FieldName(f)
		if name == "" {
			continue
		}
		fv := rv.Field(i)
		if omitEmpty && fv.IsZero() {
			continue
		}
		n.push("." + name)
		v, err := n.field(fv)
		n.pop()
		if err != nil {
			return err
		}
		if err = n.set(obj, name, v); err != nil {
			return err
		}
	}
	return nil
}

// hasExportedFields reports whether the struct has an exported field,
// directly or through an embedded struct.
func hasExportedFields(t reflect.Type) bool {
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if f.IsExported() {
			return true
		}
		ft := f.Type
		if ft.Kind() == reflect.Pointer {
			ft = ft.Elem()
		}
		if f.Anonymous && ft.Kind() == reflect.Struct && hasExportedFields(ft) {
			return true
		}
	}
	return false
}

// FieldName returns the property name of a struct field. The `js` tag
// names the property, "-" hides it and an ",omitempty" suffix skips zero
// values. Untagged fields use the Go name with its first letter lowered.
func FieldName(f reflect.StructField) (name string, omitEmpty bool) {
	if tag, ok := f.Tag.Lookup("js"); ok {
		if tag == "-" {
			return "", false
		}
		name, opts, _ := strings.Cut(tag, ",")
		omitEmpty = opts == "omitempty"
		if name != "" {
			return name, omitEmpty
		}
	}
	return strings.ToLower(f.Name[0:1]) + f.Name[1:], omitEmpty
}
