package route

import (
	"fmt"

	"github.com/hermesgw/hermes/internal/config"
)

// FromEntry converts one wire RouteEntry (routes.yaml or registry response)
// into a compiled Route. boost is added to Priority when source is local,
// per the priority_boost invariant (spec §3/§9 glossary).
func FromEntry(e config.RouteEntry, src Source, boost int32, defaultAuth *config.AuthEntryConfig) (*Route, error) {
	r := &Route{
		RouteID:     e.RouteID,
		PathPattern: e.PathPattern,
		Methods:     MethodSet(methodsOf(e.Methods)),
		Priority:    e.Priority,
		DirectURL:   e.TargetURL,
		ServiceID:   e.TargetServiceID,
		StripPrefix: e.StripPrefix,
		StripPath:   e.StripPath,
		Source:      src,
	}
	if src == SourceLocal {
		r.Priority += boost
	}

	auth := e.AuthConfig
	if auth == nil {
		auth = defaultAuth
	}
	if auth != nil {
		pats := make([]*Pattern, 0, len(auth.PublicPaths))
		for _, p := range auth.PublicPaths {
			cp, err := CompilePattern(p)
			if err != nil {
				return nil, fmt.Errorf("route %q: public_paths: %w", e.RouteID, err)
			}
			pats = append(pats, cp)
		}
		r.Auth = AuthConfig{
			RequireAuth:   auth.RequireAuth,
			AuthServiceID: auth.AuthServiceID,
			PublicPaths:   pats,
			LoginRedirect: auth.LoginRedirect,
		}
	}

	if err := r.Compile(); err != nil {
		return nil, err
	}
	return r, nil
}

func methodsOf(v any) []string {
	switch m := v.(type) {
	case nil:
		return nil
	case string:
		if m == "*" || m == "" {
			return nil
		}
		return []string{m}
	case []string:
		return m
	case []any:
		out := make([]string, 0, len(m))
		for _, e := range m {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// Merge combines remote and local entries into a sorted Table. Malformed
// entries are dropped; callers should log each dropped entry's error.
func Merge(remote, local []config.RouteEntry, boost int32, defaultAuth *config.AuthEntryConfig) (*Table, []error) {
	var routes []*Route
	var errs []error

	for _, e := range remote {
		r, err := FromEntry(e, SourceRemote, 0, defaultAuth)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		routes = append(routes, r)
	}
	for _, e := range local {
		r, err := FromEntry(e, SourceLocal, boost, defaultAuth)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		routes = append(routes, r)
	}

	return NewTable(routes), errs
}
