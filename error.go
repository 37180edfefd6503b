package runjs

import "github.com/shiroyk/runjs/errs"

// Error kinds, usable as errors.Is targets.
var (
	ErrArgument         error = errs.ArgumentError
	ErrFunctionNotFound error = errs.FunctionNotFound
	ErrConversion       error = errs.ConversionError
	ErrRuntime          error = errs.RuntimeFailure
	ErrResource         error = errs.ResourceError
)

// Error is the error type returned by runjs.
type Error = errs.Error
