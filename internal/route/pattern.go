package route

import (
	"fmt"
	"strings"
)

// Pattern is a compiled path_pattern: literal segments separated by '/',
// '*' matching exactly one non-'/' segment, and '**' matching zero or more
// trailing segments. '**' must be the final token.
type Pattern struct {
	raw      string
	segments []string // literal or "*"; final may be "**"
	wildTail bool     // true if the final segment is "**"
}

// CompilePattern parses a path_pattern, rejecting a non-trailing "**".
func CompilePattern(pattern string) (*Pattern, error) {
	trimmed := strings.TrimPrefix(pattern, "/")
	var segs []string
	if trimmed != "" {
		segs = strings.Split(trimmed, "/")
	}
	wildTail := false
	for i, s := range segs {
		if s == "**" {
			if i != len(segs)-1 {
				return nil, fmt.Errorf("pattern %q: ** must be the final segment", pattern)
			}
			wildTail = true
		}
	}
	return &Pattern{raw: pattern, segments: segs, wildTail: wildTail}, nil
}

// Match reports whether path satisfies the pattern.
func (p *Pattern) Match(path string) bool {
	trimmed := strings.TrimPrefix(path, "/")
	var pathSegs []string
	if trimmed != "" {
		pathSegs = strings.Split(trimmed, "/")
	}

	segs := p.segments
	if p.wildTail {
		segs = segs[:len(segs)-1]
	}

	if len(pathSegs) < len(segs) {
		return false
	}
	if !p.wildTail && len(pathSegs) != len(segs) {
		return false
	}

	for i, s := range segs {
		if s == "*" {
			continue
		}
		if s != pathSegs[i] {
			return false
		}
	}
	return true
}

// String returns the raw pattern text, for documentation/debugging; the
// matcher itself never ranks patterns — route order in the table is the
// sole tie-break.
func (p *Pattern) String() string { return p.raw }
