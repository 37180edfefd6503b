package js

import (
	"bytes"
	"context"
	"encoding/json"
	"reflect"

	"github.com/dop251/goja"
	"golang.org/x/exp/slog"
)

// EnableConsole binds a console object whose methods write to the logger.
func EnableConsole(ctx context.Context, rt *goja.Runtime, logger *slog.Logger) {
	c := &console{ctx: ctx, logger: logger.With(slog.String("source", "js"))}
	obj := rt.NewObject()
	_ = obj.Set("log", c.log)
	_ = obj.Set("info", c.info)
	_ = obj.Set("warn", c.warn)
	_ = obj.Set("error", c.error)
	_ = obj.Set("debug", c.debug)
	_ = rt.Set("console", obj)
}

// console implements the js console
type console struct {
	ctx    context.Context
	logger *slog.Logger
}

func (c *console) output(level slog.Level, call goja.FunctionCall, rt *goja.Runtime) goja.Value {
	var args []goja.Value
	if len(call.Arguments) > 1 {
		args = call.Arguments[1:]
	}
	c.logger.Log(c.ctx, level, Format(rt, call.Argument(0), args...).String())
	return goja.Undefined()
}

// log calls slog.Log.
func (c *console) log(call goja.FunctionCall, rt *goja.Runtime) goja.Value {
	return c.output(slog.LevelInfo, call, rt)
}

// info calls slog.Info.
func (c *console) info(call goja.FunctionCall, rt *goja.Runtime) goja.Value {
	return c.output(slog.LevelInfo, call, rt)
}

// warn calls slog.Warn.
func (c *console) warn(call goja.FunctionCall, rt *goja.Runtime) goja.Value {
	return c.output(slog.LevelWarn, call, rt)
}

// error calls slog.Error.
func (c *console) error(call goja.FunctionCall, rt *goja.Runtime) goja.Value {
	return c.output(slog.LevelError, call, rt)
}

// debug calls slog.Debug.
func (c *console) debug(call goja.FunctionCall, rt *goja.Runtime) goja.Value {
	return c.output(slog.LevelDebug, call, rt)
}

func runeFormat(rt *goja.Runtime, f rune, val goja.Value, w *bytes.Buffer) bool {
	switch f {
	case 's':
		w.WriteString(val.String())
	case 'd':
		w.WriteString(val.ToNumber().String())
	case 'j':
		if j, ok := rt.Get("JSON").(*goja.Object); ok {
			if stringify, ok := goja.AssertFunction(j.Get("stringify")); ok {
				res, err := stringify(j, val)
				if err != nil {
					panic(err)
				}
				w.WriteString(res.String())
			}
		}
	case '%':
		w.WriteByte('%')
		return false
	default:
		w.WriteByte('%')
		w.WriteRune(f)
		return false
	}
	return true
}

func bufferFormat(rt *goja.Runtime, b *bytes.Buffer, f string, args ...goja.Value) {
	pct := false
	argNum := 0
	for _, chr := range f {
		if pct { //nolint:nestif
			if argNum < len(args) {
				if runeFormat(rt, chr, args[argNum], b) {
					argNum++
				}
			} else {
				b.WriteByte('%')
				b.WriteRune(chr)
			}
			pct = false
		} else {
			if chr == '%' {
				pct = true
			} else {
				b.WriteRune(chr)
			}
		}
	}

	for _, arg := range args[argNum:] {
		b.WriteByte(' ')
		b.WriteString(valueString(arg))
	}
}

func valueString(v goja.Value) string {
	if m, ok := v.(json.Marshaler); ok {
		data, err := m.MarshalJSON()
		if err == nil {
			return string(data)
		}
	}
	return v.String()
}

// Format implements js format
func Format(rt *goja.Runtime, msg goja.Value, args ...goja.Value) goja.Value {
	if goja.IsUndefined(msg) {
		return goja.Undefined()
	}

	if msg.ExportType() != nil && msg.ExportType().Kind() == reflect.String {
		s := msg.String()
		if len(args) > 0 {
			var b bytes.Buffer
			bufferFormat(rt, &b, s, args...)
			s = b.String()
		}
		return rt.ToValue(s)
	}

	var b bytes.Buffer
	b.WriteString(valueString(msg))
	for _, arg := range args {
		b.WriteRune(' ')
		b.WriteString(valueString(arg))
	}
	return rt.ToValue(b.String())
}
