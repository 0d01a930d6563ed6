package policy

import (
	"path"
	"strings"
)

const fsPrefix = "fs://workspace/"

// MatchesURIPattern reports whether uri matches pattern under TA's
// scheme-aware glob rules:
//
//   - A pattern with no "://" is bare: it is auto-prefixed with
//     "fs://workspace/" and only ever matches fs:// URIs.
//   - A pattern with a scheme must match the URI's scheme exactly before
//     the remainder is glob-matched.
//   - "**" crosses path separators (matches zero or more segments); "*"
//     matches exactly one segment and never crosses "/".
//   - An invalid pattern never matches (fail closed).
func MatchesURIPattern(pattern, uri string) bool {
	patternScheme, patternRest, patternHasScheme := splitScheme(pattern)
	uriScheme, uriRest, uriHasScheme := splitScheme(uri)
	if !uriHasScheme {
		return false
	}

	if !patternHasScheme {
		if uriScheme != "fs" {
			return false
		}
		return globMatch("workspace/"+pattern, uriRest)
	}

	if patternScheme != uriScheme {
		return false
	}
	return globMatch(patternRest, uriRest)
}

func splitScheme(uri string) (scheme, rest string, hasScheme bool) {
	idx := strings.Index(uri, "://")
	if idx < 0 {
		return "", uri, false
	}
	return uri[:idx], uri[idx+3:], true
}

// globMatch implements segment-wise glob matching where "*" matches a
// single path segment and "**" matches any number of segments, including
// zero.
func globMatch(pattern, s string) bool {
	patSegs := splitSegments(pattern)
	strSegs := splitSegments(s)
	return matchSegments(patSegs, strSegs)
}

func splitSegments(s string) []string {
	s = strings.Trim(s, "/")
	if s == "" {
		return nil
	}
	return strings.Split(s, "/")
}

func matchSegments(pat, s []string) bool {
	if len(pat) == 0 {
		return len(s) == 0
	}

	if pat[0] == "**" {
		if matchSegments(pat[1:], s) {
			return true
		}
		if len(s) > 0 && matchSegments(pat, s[1:]) {
			return true
		}
		return false
	}

	if len(s) == 0 {
		return false
	}

	ok, err := path.Match(pat[0], s[0])
	if err != nil || !ok {
		return false
	}
	return matchSegments(pat[1:], s[1:])
}

// ContainsPathTraversal reports whether uri has a ".." path component
// anywhere after its scheme, which is always rejected before matching
// (spec invariant 7).
func ContainsPathTraversal(uri string) bool {
	_, rest, _ := splitScheme(uri)
	for _, seg := range strings.Split(rest, "/") {
		if seg == ".." {
			return true
		}
	}
	return false
}
