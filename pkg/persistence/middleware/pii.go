package middleware

import (
	"context"
	"maps"
	"regexp"

	"github.com/aretw0/strata/pkg/domain"
	"github.com/aretw0/strata/pkg/filter"
	"github.com/aretw0/strata/pkg/ports"
)

// Mask replaces redacted values.
const Mask = "***"

type piiMiddleware struct {
	next     ports.StackStore
	patterns []*regexp.Regexp
}

// NewPIIMiddleware masks filter values that could carry personal data before
// they reach the store: the terms of terms filters whose field matches one of
// the patterns, and topology arguments whose name matches. Stored snapshots
// keep their shape but no longer round-trip exactly.
func NewPIIMiddleware(patternStrings []string) Middleware {
	patterns := make([]*regexp.Regexp, len(patternStrings))
	for i, p := range patternStrings {
		patterns[i] = regexp.MustCompile(p)
	}
	return func(next ports.StackStore) ports.StackStore {
		return &piiMiddleware{next: next, patterns: patterns}
	}
}

func (m *piiMiddleware) Save(ctx context.Context, sessionID string, snap *domain.Snapshot) error {
	masked := snap.Clone()
	for i, def := range masked.Stack.Past {
		masked.Stack.Past[i] = m.mask(def)
	}
	for i, def := range masked.Stack.Future {
		masked.Stack.Future[i] = m.mask(def)
	}
	return m.next.Save(ctx, sessionID, masked)
}

func (m *piiMiddleware) Load(ctx context.Context, sessionID string) (*domain.Snapshot, error) {
	return m.next.Load(ctx, sessionID)
}

func (m *piiMiddleware) Delete(ctx context.Context, sessionID string) error {
	return m.next.Delete(ctx, sessionID)
}

func (m *piiMiddleware) List(ctx context.Context) ([]string, error) {
	return m.next.List(ctx)
}

func (m *piiMiddleware) matches(name string) bool {
	for _, p := range m.patterns {
		if p.MatchString(name) {
			return true
		}
	}
	return false
}

// mask returns a redacted copy of def; the input is never modified.
func (m *piiMiddleware) mask(def filter.Definition) filter.Definition {
	switch f := def.(type) {
	case filter.TermsFilter:
		if m.matches(f.Field) && len(f.Terms) > 0 {
			f.Terms = []string{Mask}
		}
		return f
	case filter.TopologicalFilter:
		if len(f.Arguments) == 0 {
			return f
		}
		args := maps.Clone(f.Arguments)
		for k := range args {
			if m.matches(k) {
				args[k] = Mask
			}
		}
		f.Arguments = args
		return f
	default:
		return def
	}
}
