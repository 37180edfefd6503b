package errs

import (
	"errors"
	"fmt"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorIs(t *testing.T) {
	t.Parallel()
	err := fmt.Errorf("call: %w", New(FunctionNotFound, "%q", "add5"))

	assert.ErrorIs(t, err, FunctionNotFound)
	assert.NotErrorIs(t, err, RuntimeFailure)

	kind, ok := KindOf(err)
	assert.True(t, ok)
	assert.Equal(t, FunctionNotFound, kind)

	_, ok = KindOf(errors.New("plain"))
	assert.False(t, ok)
}

func TestErrorMessage(t *testing.T) {
	t.Parallel()
	testCases := []struct {
		err  error
		want string
	}{
		{New(ArgumentError, "args must be a sequence"), "argument error: args must be a sequence"},
		{Wrap(ResourceError, fs.ErrNotExist, "read library %s", "a.js"), "resource error: read library a.js: file does not exist"},
		{Runtime("ReferenceError: x is not defined", "at main.js:1:1"), "runtime failure: ReferenceError: x is not defined"},
		{&Error{Kind: ConversionError}, "conversion error"},
	}
	for _, testCase := range testCases {
		t.Run(testCase.want, func(t *testing.T) {
			assert.EqualError(t, testCase.err, testCase.want)
		})
	}
}

func TestErrorUnwrap(t *testing.T) {
	t.Parallel()
	err := Wrap(ResourceError, fs.ErrPermission, "open")
	assert.ErrorIs(t, err, fs.ErrPermission)
	assert.ErrorIs(t, err, ResourceError)
}
