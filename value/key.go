package value

import (
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// ASCIIKey folds a property name to ASCII. The name is decomposed with
// NFKD and the remaining non-ASCII runes are dropped, so "café" becomes
// "cafe". Engines that reject non-ASCII property names use it as a fallback.
func ASCIIKey(key string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.Predicate(func(r rune) bool {
		return r > unicode.MaxASCII
	})))
	folded, _, err := transform.String(t, key)
	if err != nil {
		return key
	}
	return folded
}
