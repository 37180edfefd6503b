package cmd

import (
	"strings"

	"github.com/shiroyk/runjs/errs"
	"github.com/shiroyk/runjs/value"
	"github.com/spf13/cast"
)

// casters convert the text of a --global or --arg flag to a value.
var casters = map[string]func(string) (any, error){
	"json": func(s string) (any, error) {
		return value.ParseJSON([]byte(s))
	},
	"string": func(s string) (any, error) { return s, nil },
	"int":    func(s string) (any, error) { return cast.ToInt64E(s) },
	"float":  func(s string) (any, error) { return cast.ToFloat64E(s) },
	"bool":   func(s string) (any, error) { return cast.ToBoolE(s) },
	"duration": func(s string) (any, error) {
		d, err := cast.ToDurationE(s)
		return d.Milliseconds(), err
	},
}

func castValue(typ, raw string) (any, error) {
	caster, ok := casters[typ]
	if !ok {
		return nil, errs.New(errs.ArgumentError, "unknown value type %q", typ)
	}
	v, err := caster(raw)
	if err != nil {
		return nil, errs.Wrap(errs.ArgumentError, err, "invalid %s value %q", typ, raw)
	}
	return v, nil
}

// parseGlobal parses "name[:type]=value". The default type is json.
func parseGlobal(s string) (name string, v any, err error) {
	decl, raw, ok := strings.Cut(s, "=")
	if !ok {
		return "", nil, errs.New(errs.ArgumentError, "global %q is not name[:type]=value", s)
	}
	name, typ, ok := strings.Cut(decl, ":")
	if !ok {
		typ = "json"
	}
	v, err = castValue(typ, raw)
	return
}

// parseArg parses "[type:]value". Without a known type prefix the whole
// text is json.
func parseArg(s string) (any, error) {
	if typ, raw, ok := strings.Cut(s, ":"); ok {
		if _, known := casters[typ]; known {
			return castValue(typ, raw)
		}
	}
	return castValue("json", s)
}
