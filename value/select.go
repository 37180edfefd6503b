package value

import (
	"github.com/ohler55/ojg/jp"
	"github.com/shiroyk/runjs/errs"
)

// Select evaluates a JSONPath expression against a canonical value.
//
// A single match is returned as is, several matches as []any and no match
// as nil. Objects in the result are plain maps.
//
//	Select(result, "$.items[*].name")
func Select(v any, path string) (any, error) {
	expr, err := jp.ParseString(path)
	if err != nil {
		return nil, &errs.Error{Kind: errs.ArgumentError, Message: "invalid JSONPath " + path, Err: err}
	}
	matches := expr.Get(Plain(v))
	switch len(matches) {
	case 0:
		return nil, nil
	case 1:
		return matches[0], nil
	default:
		return matches, nil
	}
}
