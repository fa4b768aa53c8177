package walker

import "strings"

// SkipPolicy excludes every folder whose full path contains one of its
// patterns, compared case-insensitively. The zero value skips nothing.
type SkipPolicy struct {
	patterns []string
}

// NewSkipPolicy builds a policy from patterns in match order. Empty
// patterns are ignored.
func NewSkipPolicy(patterns ...string) SkipPolicy {
	p := SkipPolicy{}
	for _, pat := range patterns {
		pat = strings.ToLower(strings.TrimSpace(pat))
		if pat != "" {
			p.patterns = append(p.patterns, pat)
		}
	}
	return p
}

// Match returns the first pattern contained in path.
func (p SkipPolicy) Match(path string) (string, bool) {
	lower := strings.ToLower(path)
	for _, pat := range p.patterns {
		if strings.Contains(lower, pat) {
			return pat, true
		}
	}
	return "", false
}

// Patterns returns a copy of the normalized patterns.
func (p SkipPolicy) Patterns() []string {
	return append([]string(nil), p.patterns...)
}
