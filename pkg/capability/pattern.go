// Package capability computes child capability manifests under the
// decay/inherit/explicit spawn modes and matches tool/domain patterns
// against requested actions and resources (spec §4.2).
package capability

import "strings"

// MatchTool reports whether pattern matches action. Supported forms: "*"
// (match everything), "foo*" (prefix), "*bar" (suffix), and exact match.
func MatchTool(pattern, action string) bool {
	if pattern == "*" {
		return true
	}
	if strings.HasSuffix(pattern, "*") && strings.HasPrefix(pattern, "*") && len(pattern) > 1 {
		return strings.Contains(action, pattern[1:len(pattern)-1])
	}
	if strings.HasSuffix(pattern, "*") {
		return strings.HasPrefix(action, pattern[:len(pattern)-1])
	}
	if strings.HasPrefix(pattern, "*") {
		return strings.HasSuffix(action, pattern[1:])
	}
	return pattern == action
}

// MatchDomain reports whether pattern matches domain. In addition to the
// MatchTool forms, a leading "*.x.y" pattern matches the bare domain "x.y"
// and any subdomain of it.
func MatchDomain(pattern, domain string) bool {
	if strings.HasPrefix(pattern, "*.") {
		base := pattern[2:]
		if domain == base {
			return true
		}
		if strings.HasSuffix(domain, "."+base) {
			return true
		}
		return false
	}
	return MatchTool(pattern, domain)
}

// MatchAny reports whether action matches any pattern in patterns, using
// MatchTool semantics.
func MatchAny(patterns []string, action string) bool {
	for _, p := range patterns {
		if MatchTool(p, action) {
			return true
		}
	}
	return false
}

// MatchAnyDomain reports whether domain matches any pattern in patterns,
// using MatchDomain semantics.
func MatchAnyDomain(patterns []string, domain string) bool {
	for _, p := range patterns {
		if MatchDomain(p, domain) {
			return true
		}
	}
	return false
}
