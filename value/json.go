package value

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/shiroyk/runjs/errs"
)

// maxSafeInteger is Number.MAX_SAFE_INTEGER.
const maxSafeInteger = 1<<53 - 1

// ParseJSON decodes a JSON document to the canonical tree. Objects keep
// the document key order. Integral numbers that fit int64 decode to int64,
// all other numbers to float64.
func ParseJSON(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	v, err := decodeJSON(dec)
	if err != nil {
		return nil, &errs.Error{Kind: errs.ConversionError, Message: "decode json", Err: err}
	}
	if _, err = dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errs.New(errs.ConversionError, "decode json: trailing data after offset %d", dec.InputOffset())
	}
	return v, nil
}

func decodeJSON(dec *json.Decoder) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			obj := new(Object)
			for dec.More() {
				tok, err = dec.Token()
				if err != nil {
					return nil, err
				}
				key, _ := tok.(string)
				v, err := decodeJSON(dec)
				if err != nil {
					return nil, err
				}
				obj.Set(key, v)
			}
			if _, err = dec.Token(); err != nil {
				return nil, err
			}
			return obj, nil
		case '[':
			arr := make([]any, 0)
			for dec.More() {
				v, err := decodeJSON(dec)
				if err != nil {
					return nil, err
				}
				arr = append(arr, v)
			}
			if _, err = dec.Token(); err != nil {
				return nil, err
			}
			return arr, nil
		}
		return nil, errors.New("unexpected delimiter " + t.String())
	case json.Number:
		return parseNumber(t.String())
	default:
		return t, nil
	}
}

func parseNumber(s string) (any, error) {
	if !strings.ContainsAny(s, ".eE") {
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return i, nil
		}
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, &errs.Error{Kind: errs.ConversionError, Message: "invalid number " + s, Err: err}
	}
	if f == math.Trunc(f) && math.Abs(f) <= maxSafeInteger {
		return int64(f), nil
	}
	return f, nil
}
