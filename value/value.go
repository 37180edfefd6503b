// Package value converts host values to and from the canonical tree shared
// by every JavaScript backend.
//
// The canonical tree is built from nil, bool, int64, float64, string,
// []any and *Object. Normalize maps arbitrary Go values onto it, Literal
// renders it as JavaScript source and ParseJSON reads it back from the
// JSON an engine produces.
package value

import (
	"bytes"
	"encoding/json"
	"sort"
)

// Marshaler is implemented by host types that describe their own
// JavaScript form. The returned value is normalized again.
type Marshaler interface {
	MarshalJS() (any, error)
}

// Object is a string keyed mapping that keeps keys in insertion order.
// The zero value is ready to use.
type Object struct {
	keys   []string
	values map[string]any
}

// NewObject returns an Object holding the key value pairs in order.
func NewObject(kv ...any) *Object {
	o := new(Object)
	for i := 0; i+1 < len(kv); i += 2 {
		key, _ := kv[i].(string)
		o.Set(key, kv[i+1])
	}
	return o
}

// FromMap returns an Object with the map entries ordered by key.
func FromMap(m map[string]any) *Object {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	o := &Object{keys: keys, values: make(map[string]any, len(m))}
	for _, k := range keys {
		o.values[k] = m[k]
	}
	return o
}

// Set sets the key to v. A new key is appended, an existing key keeps its
// position.
func (o *Object) Set(key string, v any) {
	if o.values == nil {
		o.values = make(map[string]any)
	}
	if _, ok := o.values[key]; !ok {
		o.keys = append(o.keys, key)
	}
	o.values[key] = v
}

// Get returns the value of the key.
func (o *Object) Get(key string) (v any, ok bool) {
	if o == nil {
		return nil, false
	}
	v, ok = o.values[key]
	return
}

// Has reports whether the key is present.
func (o *Object) Has(key string) bool {
	_, ok := o.Get(key)
	return ok
}

// Delete removes the key and reports whether it was present.
func (o *Object) Delete(key string) bool {
	if _, ok := o.Get(key); !ok {
		return false
	}
	delete(o.values, key)
	for i, k := range o.keys {
		if k == key {
			o.keys = append(o.keys[:i], o.keys[i+1:]...)
			break
		}
	}
	return true
}

// Keys returns a copy of the keys in order.
func (o *Object) Keys() []string {
	if o == nil {
		return nil
	}
	return append([]string(nil), o.keys...)
}

// Len returns the number of keys.
func (o *Object) Len() int {
	if o == nil {
		return 0
	}
	return len(o.keys)
}

// Range calls fn for each pair in order until fn returns false.
func (o *Object) Range(fn func(key string, v any) bool) {
	if o == nil {
		return
	}
	for _, k := range o.keys {
		if !fn(k, o.values[k]) {
			return
		}
	}
}

// Clone returns a shallow copy.
func (o *Object) Clone() *Object {
	c := &Object{
		keys:   o.Keys(),
		values: make(map[string]any, o.Len()),
	}
	o.Range(func(k string, v any) bool {
		c.values[k] = v
		return true
	})
	return c
}

// ToMap returns the Object as a plain map, converting nested Objects.
func (o *Object) ToMap() map[string]any {
	m := make(map[string]any, o.Len())
	o.Range(func(k string, v any) bool {
		m[k] = Plain(v)
		return true
	})
	return m
}

// MarshalJSON writes the keys in order.
func (o *Object) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range o.Keys() {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := json.Marshal(o.values[k])
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads a JSON object keeping the document key order.
func (o *Object) UnmarshalJSON(data []byte) error {
	v, err := ParseJSON(data)
	if err != nil {
		return err
	}
	obj, ok := v.(*Object)
	if !ok {
		return &json.UnmarshalTypeError{Value: "non-object", Type: objectType}
	}
	*o = *obj
	return nil
}

// Plain converts Objects inside a canonical value to map[string]any.
func Plain(v any) any {
	switch t := v.(type) {
	case *Object:
		return t.ToMap()
	case []any:
		s := make([]any, len(t))
		for i, e := range t {
			s[i] = Plain(e)
		}
		return s
	default:
		return v
	}
}
