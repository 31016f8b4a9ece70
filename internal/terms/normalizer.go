package terms

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Normalizer canonicalizes surface strings before they are indexed or looked up.
type Normalizer interface {
	Normalize(s string) string
}

// NormalizerFunc adapts a plain function to the Normalizer interface.
type NormalizerFunc func(string) string

// Normalize calls f(s).
func (f NormalizerFunc) Normalize(s string) string { return f(s) }

// DefaultNormalizer applies NFKC composition, Unicode case folding and
// collapses runs of whitespace into a single space.
type DefaultNormalizer struct{}

// Normalize returns the canonical form of s.
func (DefaultNormalizer) Normalize(s string) string {
	s = norm.NFKC.String(s)
	// A Caser carries state and is not safe to share, so one is built per call.
	s = cases.Fold().String(s)
	return strings.Join(strings.Fields(s), " ")
}
