// Package route holds the immutable Route descriptor and the pattern
// compiler/matcher described by the matcher contract: match(method, path)
// -> Route | NoMatch, evaluated by linear scan over a pre-sorted table
// rather than a trie (route counts are O(hundreds); a sorted slice keeps
// priority/source/id ordering trivially auditable).
package route

import (
	"fmt"
	"strings"
)

// Source distinguishes where a route was declared.
type Source int

const (
	SourceRemote Source = iota
	SourceLocal
)

func (s Source) String() string {
	if s == SourceLocal {
		return "local"
	}
	return "remote"
}

// AuthConfig governs whether the Authentication plugin applies to a route.
type AuthConfig struct {
	RequireAuth   bool
	AuthServiceID string
	PublicPaths   []*Pattern
	LoginRedirect string
}

// IsPublic reports whether path matches one of the configured public
// path patterns, which bypass auth regardless of RequireAuth.
func (a *AuthConfig) IsPublic(path string) bool {
	for _, p := range a.PublicPaths {
		if p.Match(path) {
			return true
		}
	}
	return false
}

// Route is immutable once installed into a RouteTable.
type Route struct {
	RouteID     string
	PathPattern string
	compiled    *Pattern
	Methods     map[string]bool // nil/empty means wildcard (all methods)
	Priority    int32
	DirectURL   string // set iff ServiceID == ""
	ServiceID   string // set iff DirectURL == ""
	StripPrefix bool
	StripPath   string
	Auth        AuthConfig
	Source      Source
}

// Compile parses PathPattern, returning an error if any invariant is
// violated: the pattern must compile, and exactly one of
// DirectURL/ServiceID must be set. Auth.PublicPaths are compiled earlier,
// by build.go's FromEntry, since they come from the wire auth_config
// block rather than from the Route itself.
func (r *Route) Compile() error {
	if r.PathPattern == "" {
		return fmt.Errorf("route %q: empty path_pattern", r.RouteID)
	}
	p, err := CompilePattern(r.PathPattern)
	if err != nil {
		return fmt.Errorf("route %q: %w", r.RouteID, err)
	}
	r.compiled = p

	hasDirect := r.DirectURL != ""
	hasService := r.ServiceID != ""
	if hasDirect == hasService {
		return fmt.Errorf("route %q: exactly one of direct_url/service_id must be set", r.RouteID)
	}

	return nil
}

// CompiledPattern returns the compiled path pattern; Compile must run first.
func (r *Route) CompiledPattern() *Pattern { return r.compiled }

// AllowsMethod reports whether method is admitted by this route.
func (r *Route) AllowsMethod(method string) bool {
	if len(r.Methods) == 0 {
		return true
	}
	return r.Methods[strings.ToUpper(method)]
}

// MethodSet builds a Methods set from a "*" or an explicit list.
func MethodSet(methods []string) map[string]bool {
	if len(methods) == 0 {
		return nil
	}
	if len(methods) == 1 && methods[0] == "*" {
		return nil
	}
	set := make(map[string]bool, len(methods))
	for _, m := range methods {
		set[strings.ToUpper(m)] = true
	}
	return set
}
