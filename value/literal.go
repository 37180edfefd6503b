package value

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/shiroyk/runjs/errs"
)

// Literal renders a canonical value as JavaScript source text.
//
// The output is JSON compatible except for the non finite numbers, which
// are written as NaN, Infinity and -Infinity. An object holding a
// "__proto__" key is emitted through JSON.parse so the key stays an own
// property instead of replacing the prototype.
func Literal(v any) (string, error) {
	var b strings.Builder
	if err := writeLiteral(&b, v); err != nil {
		return "", err
	}
	return b.String(), nil
}

func writeLiteral(b *strings.Builder, v any) error {
	switch t := v.(type) {
	case nil:
		b.WriteString("null")
	case bool:
		b.WriteString(strconv.FormatBool(t))
	case int64:
		b.WriteString(strconv.FormatInt(t, 10))
	case float64:
		b.WriteString(formatFloat(t))
	case string:
		b.WriteString(Quote(t))
	case []any:
		b.WriteByte('[')
		for i, e := range t {
			if i > 0 {
				b.WriteByte(',')
			}
			if err := writeLiteral(b, e); err != nil {
				return err
			}
		}
		b.WriteByte(']')
	case *Object:
		if t.Has("__proto__") {
			data, err := json.Marshal(t)
			if err != nil {
				return &errs.Error{Kind: errs.ConversionError, Message: "encode object with __proto__ key", Err: err}
			}
			b.WriteString("JSON.parse(")
			b.WriteString(Quote(string(data)))
			b.WriteByte(')')
			return nil
		}
		b.WriteByte('{')
		for i, k := range t.keys {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(Quote(k))
			b.WriteByte(':')
			if err := writeLiteral(b, t.values[k]); err != nil {
				return err
			}
		}
		b.WriteByte('}')
	default:
		return errs.New(errs.ConversionError, "%T is not a normalized value", v)
	}
	return nil
}

func formatFloat(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	}
	abs := math.Abs(f)
	format := byte('f')
	if abs != 0 && (abs < 1e-6 || abs >= 1e21) {
		format = 'e'
	}
	return strconv.FormatFloat(f, format, -1, 64)
}

// Quote returns s as a double-quoted JavaScript string literal.
func Quote(s string) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	// strings always encode
	_ = enc.Encode(s)
	return string(bytes.TrimSuffix(buf.Bytes(), []byte{'\n'}))
}
