// Package plugin implements the ordered, short-circuiting filter pipeline
// of spec §4.4. It is a fresh design: the teacher repo's middleware chain
// is a simple func(http.Handler) http.Handler composition and cannot
// express the before/after-phase, short-circuiting, priority-ordered
// contract this pipeline needs.
package plugin

import (
	"net/http"
	"sort"

	"github.com/hermesgw/hermes/internal/hermesctx"
)

// Outcome is the result of a plugin's before hook.
type Outcome struct {
	Halt     bool // true means RespondNow: stop the before traversal
	Response *Response
}

// Response is a plugin-synthesized response (auth redirect, 429, 503, ...).
type Response struct {
	Status  int
	Headers http.Header
	Body    []byte
}

// Continue is the zero Outcome: proceed to the next plugin / the route.
var Continue = Outcome{}

// RespondNow builds a halting Outcome carrying resp.
func RespondNow(resp *Response) Outcome {
	return Outcome{Halt: true, Response: resp}
}

// Plugin is the capability set spec §4.4/§9 describes: before/after hooks
// plus identity and ordering. Implementations must be safe for concurrent
// use; any mutable state is component-local (e.g. held inside the
// rate limiter / breaker manager a plugin wraps), never on the Plugin
// value itself.
type Plugin interface {
	Name() string
	Priority() int
	Enabled() bool
	Before(ctx *hermesctx.Context, r *http.Request) Outcome
	After(ctx *hermesctx.Context, r *http.Request, resp *Response) *Response
}

// Chain holds the fixed, startup-composed plugin list (spec §4.4: "chain
// composition is fixed at startup; enabling/disabling is per-plugin
// configuration").
type Chain struct {
	ascending  []Plugin // before order: ascending priority
	descending []Plugin // after order: descending priority
}

// NewChain sorts plugins once by priority in both directions.
func NewChain(plugins []Plugin) *Chain {
	asc := make([]Plugin, 0, len(plugins))
	for _, p := range plugins {
		if p.Enabled() {
			asc = append(asc, p)
		}
	}
	sort.SliceStable(asc, func(i, j int) bool { return asc[i].Priority() < asc[j].Priority() })

	desc := make([]Plugin, len(asc))
	copy(desc, asc)
	sort.SliceStable(desc, func(i, j int) bool { return desc[i].Priority() > desc[j].Priority() })

	return &Chain{ascending: asc, descending: desc}
}

// RunBefore invokes Before in ascending-priority order. It returns the
// halting Outcome (if any) plus the slice of plugins whose Before actually
// ran, so After can be invoked symmetrically only for those (spec §4.4:
// "after still runs for plugins whose before was invoked").
func (c *Chain) RunBefore(ctx *hermesctx.Context, r *http.Request) (Outcome, []Plugin) {
	invoked := make([]Plugin, 0, len(c.ascending))
	for _, p := range c.ascending {
		invoked = append(invoked, p)
		out := p.Before(ctx, r)
		if out.Halt {
			return out, invoked
		}
	}
	return Continue, invoked
}

// RunAfter invokes After in descending priority, restricted to invoked
// (the plugins whose Before ran), and symmetric (reverse order).
func (c *Chain) RunAfter(ctx *hermesctx.Context, r *http.Request, resp *Response, invoked []Plugin) *Response {
	invokedSet := make(map[string]bool, len(invoked))
	for _, p := range invoked {
		invokedSet[p.Name()] = true
	}
	for _, p := range c.descending {
		if !invokedSet[p.Name()] {
			continue
		}
		resp = p.After(ctx, r, resp)
	}
	return resp
}
