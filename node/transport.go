package node

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/shiroyk/runjs/errs"
	"github.com/shiroyk/runjs/script"
	"github.com/shiroyk/runjs/value"
)

// marker prefixes the line carrying the result envelope on stdout.
// Everything before it is console output.
const marker = "\x1erunjs:"

// Render returns the entry script of a unit: the bootstrap, the global
// declarations, the library includes, the main code, the call and the
// statement emitting the result.
func Render(unit *script.Unit) string {
	return unit.Render(dialect{}) + "__runjs.finish();\n"
}

// dialect renders units for the include.js bootstrap.
type dialect struct{}

func (dialect) Declare(b *strings.Builder, g script.Global) {
	b.WriteString("globalThis[")
	b.WriteString(value.Quote(g.Name))
	b.WriteString("] = ")
	b.WriteString(g.Literal)
	b.WriteString(";\n")
}

func (dialect) Library(b *strings.Builder, src script.Source) {
	b.WriteString("__runjs.include(")
	b.WriteString(value.Quote(src.Path))
	b.WriteString(");\n")
}

func (dialect) Main(b *strings.Builder, src script.Source) {
	b.WriteString("__runjs.main(")
	b.WriteString(value.Quote(src.Code))
	b.WriteString(", ")
	b.WriteString(value.Quote(src.Name))
	b.WriteString(");\n")
}

func (dialect) Invoke(b *strings.Builder, call *script.Invocation) {
	b.WriteString("__runjs.invoke(")
	b.WriteString(value.Quote(call.Function))
	b.WriteString(", [")
	b.WriteString(strings.Join(call.Literals, ", "))
	b.WriteString("]);\n")
}

// envelope is the result record written by the bootstrap.
type envelope struct {
	Value      json.RawMessage `json:"value"`
	Missing    *string         `json:"missing"`
	Conversion *string         `json:"conversion"`
}

func (e *envelope) decode() (any, error) {
	switch {
	case e.Missing != nil:
		return nil, errs.New(errs.FunctionNotFound, "%s is not defined or not a function", *e.Missing)
	case e.Conversion != nil:
		return nil, errs.New(errs.ConversionError, "%s", *e.Conversion)
	case len(e.Value) == 0:
		return nil, nil
	default:
		return value.ParseJSON(e.Value)
	}
}

// split separates console output from the result envelope.
func split(stdout []byte) (output []byte, env *envelope, err error) {
	idx := bytes.LastIndex(stdout, []byte(marker))
	if idx < 0 {
		return stdout, nil, errs.Runtime("script exited without producing a result", "")
	}
	env = new(envelope)
	line := bytes.TrimSpace(stdout[idx+len(marker):])
	if err = json.Unmarshal(line, env); err != nil {
		return stdout[:idx], nil, &errs.Error{Kind: errs.ConversionError, Message: "decode result envelope", Err: err}
	}
	return stdout[:idx], env, nil
}

// failure builds the RuntimeFailure of a failed process. The stack holds
// stderr verbatim, the message its error line.
func failure(stderr string, exitErr error) error {
	stack := strings.TrimSpace(stderr)
	if stack == "" {
		return &errs.Error{Kind: errs.RuntimeFailure, Message: "node exited with an error", Err: exitErr}
	}
	return &errs.Error{Kind: errs.RuntimeFailure, Message: summary(stack), Stack: stack, Err: exitErr}
}

// summary returns the first "SomethingError: message" line of a node
// error report, or its first line.
func summary(report string) string {
	lines := strings.Split(report, "\n")
	for _, line := range lines {
		line = strings.TrimSpace(line)
		name, _, ok := strings.Cut(line, ":")
		if ok && (strings.HasSuffix(name, "Error") || strings.HasSuffix(name, "Exception")) && !strings.ContainsAny(name, " /\\") {
			return line
		}
	}
	return strings.TrimSpace(lines[0])
}
