package api

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shiroyk/runjs"
	"github.com/shiroyk/runjs/errs"
	"github.com/shiroyk/runjs/script"
	"github.com/shiroyk/runjs/value"
)

// maxBodySize the maximum size of a run request
const maxBodySize = 8 << 20

// runRequest the body of POST /v1/run
type runRequest struct {
	Backend   string
	Code      string
	Libraries []script.Source
	Globals   *value.Object
	Call      runjs.Call
	Select    string
}

// runResponse the body of a successful run
type runResponse struct {
	Result any `json:"result"`
}

type runner struct {
	opt      Options
	registry *runjs.Registry
	metrics  *metrics
}

func (r *runner) run(c echo.Context) (err error) {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxBodySize))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	req, err := parseRunRequest(body)
	if err != nil {
		return err
	}
	if req.Backend == "" {
		req.Backend = r.opt.Backend
	}

	var globals any
	if req.Globals != nil {
		globals = req.Globals
	}
	session, err := r.registry.New(req.Backend, runjs.Options{
		Main:         req.Code,
		Libraries:    req.Libraries,
		Globals:      globals,
		Cache:        r.opt.Cache,
		CacheTimeout: r.opt.CacheTimeout,
		Logger:       r.opt.Logger,
	})
	if err != nil {
		return err
	}

	ctx := c.Request().Context()
	if r.opt.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.opt.Timeout)
		defer cancel()
	}

	start := time.Now()
	result, err := session.Run(ctx, req.Call)
	r.metrics.observe(req.Backend, start, err)
	if err != nil {
		return err
	}
	if req.Select != "" {
		if result, err = value.Select(result, req.Select); err != nil {
			return err
		}
	}
	return c.JSON(http.StatusOK, runResponse{Result: result})
}

// parseRunRequest decodes the request keeping the key order of globals
// and arguments.
func parseRunRequest(body []byte) (*runRequest, error) {
	v, err := value.ParseJSON(body)
	if err != nil {
		return nil, errs.Wrap(errs.ArgumentError, err, "invalid request body")
	}
	obj, ok := v.(*value.Object)
	if !ok {
		return nil, errs.New(errs.ArgumentError, "request body must be an object")
	}

	req := new(runRequest)
	fields := []struct {
		key string
		set func(any) bool
	}{
		{"backend", stringField(&req.Backend)},
		{"code", stringField(&req.Code)},
		{"function", stringField(&req.Call.Function)},
		{"select", stringField(&req.Select)},
		{"precompileOnly", boolField(&req.Call.PrecompileOnly)},
		{"compileOnly", boolField(&req.Call.CompileOnly)},
		{"globals", func(v any) bool {
			req.Globals, ok = v.(*value.Object)
			return ok
		}},
		{"args", func(v any) bool {
			req.Call.Args, ok = v.([]any)
			return ok
		}},
		{"libraries", func(v any) bool {
			libs, ok := v.([]any)
			if !ok {
				return false
			}
			for _, lib := range libs {
				o, ok := lib.(*value.Object)
				if !ok {
					return false
				}
				var src script.Source
				name, _ := o.Get("name")
				code, _ := o.Get("code")
				if src.Name, ok = name.(string); !ok {
					return false
				}
				if src.Code, ok = code.(string); !ok {
					return false
				}
				req.Libraries = append(req.Libraries, src)
			}
			return true
		}},
	}
	for _, f := range fields {
		v, ok := obj.Get(f.key)
		if !ok || v == nil {
			continue
		}
		if !f.set(v) {
			return nil, errs.New(errs.ArgumentError, "invalid %s: %s", f.key, typeName(v))
		}
	}
	return req, nil
}

func stringField(dst *string) func(any) bool {
	return func(v any) (ok bool) {
		*dst, ok = v.(string)
		return
	}
}

func boolField(dst *bool) func(any) bool {
	return func(v any) (ok bool) {
		*dst, ok = v.(bool)
		return
	}
}

// typeName names a decoded JSON value.
func typeName(v any) string {
	switch v.(type) {
	case string:
		return "string"
	case bool:
		return "boolean"
	case int64, float64:
		return "number"
	case []any:
		return "array"
	case *value.Object:
		return "object"
	default:
		return "null"
	}
}
