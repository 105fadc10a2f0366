package filter

import (
	"slices"
)

// Fingerprint returns the canonical encoding of def. Structurally equal
// definitions share a fingerprint: terms are a sorted set and map keys are
// written in order. Definitions with no encoding fail with a
// *SerializationError.
func Fingerprint(def Definition) (string, error) {
	if t, ok := def.(TermsFilter); ok {
		t.Terms = normalizeTerms(t.Terms)
		def = t
	}
	data, err := Marshal(def)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func normalizeTerms(terms []string) []string {
	if len(terms) == 0 {
		return nil
	}
	out := slices.Clone(terms)
	slices.Sort(out)
	return slices.Compact(out)
}
