package script

import (
	"strings"

	"github.com/dlclark/regexp2"
	"github.com/shiroyk/runjs/errs"
)

const identifier = `[\p{L}\p{Nl}$_][\p{L}\p{Nl}\p{Mn}\p{Mc}\p{Nd}\p{Pc}$_\u200C\u200D]*`

var (
	identifierRe     = regexp2.MustCompile(`\A`+identifier+`\z`, regexp2.None)
	identifierPathRe = regexp2.MustCompile(`\A`+identifier+`(?:\.`+identifier+`)*\z`, regexp2.None)
)

var reserved = map[string]struct{}{}

func init() {
	for _, word := range strings.Fields(`break case catch class const continue debugger default delete do
		else enum export extends false finally for function if import in instanceof new null return
		super switch this throw true try typeof var void while with yield let static implements
		interface package private protected public await`) {
		reserved[word] = struct{}{}
	}
}

// IsIdentifier reports whether name can be declared as a global variable.
func IsIdentifier(name string) bool {
	if _, ok := reserved[name]; ok {
		return false
	}
	ok, err := identifierRe.MatchString(name)
	return err == nil && ok
}

// IsIdentifierPath reports whether path is a dotted property path such as
// "add5" or "utils.math.sum".
func IsIdentifierPath(path string) bool {
	ok, err := identifierPathRe.MatchString(path)
	if err != nil || !ok {
		return false
	}
	// property names may be reserved words, the base binding may not
	root, _, _ := strings.Cut(path, ".")
	_, ok = reserved[root]
	return !ok
}

// CheckGlobalName returns an ArgumentError if name is not a valid global
// variable name.
func CheckGlobalName(name string) error {
	if !IsIdentifier(name) {
		return errs.New(errs.ArgumentError, "invalid global variable name %q", name)
	}
	return nil
}
