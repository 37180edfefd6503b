package js

import (
	"errors"
	"strings"

	"github.com/dop251/goja"
	"github.com/shiroyk/runjs/errs"
)

// exceptionError normalizes an error returned by goja to a RuntimeFailure
// carrying the exception message and the JavaScript stack.
func exceptionError(err error) error {
	if err == nil {
		return nil
	}
	var (
		interrupted *goja.InterruptedError
		exception   *goja.Exception
		syntax      *goja.CompilerSyntaxError
		reference   *goja.CompilerReferenceError
		e           *errs.Error
	)
	switch {
	case errors.As(err, &e):
		return e
	case errors.As(err, &interrupted):
		return &errs.Error{Kind: errs.RuntimeFailure, Message: "execution interrupted", Err: interrupted.Unwrap()}
	case errors.As(err, &exception):
		msg := exception.Error()
		if v := exception.Value(); v != nil {
			msg = v.String()
		}
		return errs.Runtime(msg, strings.TrimSpace(exception.String()))
	case errors.As(err, &syntax):
		return errs.Runtime("SyntaxError: "+syntax.Message, "")
	case errors.As(err, &reference):
		return errs.Runtime("ReferenceError: "+reference.Message, "")
	default:
		return &errs.Error{Kind: errs.RuntimeFailure, Message: err.Error(), Err: err}
	}
}

// rejection returns the RuntimeFailure of a rejected promise.
func rejection(reason goja.Value) error {
	if reason == nil {
		return errs.Runtime("promise rejected", "")
	}
	if obj, ok := reason.(*goja.Object); ok {
		if stack := obj.Get("stack"); stack != nil && !goja.IsUndefined(stack) {
			return errs.Runtime(reason.String(), stack.String())
		}
	}
	return errs.Runtime(reason.String(), "")
}
