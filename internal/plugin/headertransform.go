package plugin

import (
	"net/http"

	"github.com/hermesgw/hermes/internal/hermesctx"
)

// HeaderRules is a static add/set/remove transform, simplified from the
// teacher's variable-template header transformer to plain literal values
// (spec has no transform DSL — it is an explicit non-goal of §1).
type HeaderRules struct {
	RequestAdd     map[string]string
	RequestSet     map[string]string
	RequestRemove  []string
	ResponseAdd    map[string]string
	ResponseSet    map[string]string
	ResponseRemove []string
}

// HeaderTransformPlugin applies static header rewriting to both legs of a
// request (spec §4.4 built-ins; priority 300, last of the four).
type HeaderTransformPlugin struct {
	enabled bool
	rules   HeaderRules
}

// NewHeaderTransformPlugin builds the HeaderTransform plugin.
func NewHeaderTransformPlugin(enabled bool, rules HeaderRules) *HeaderTransformPlugin {
	return &HeaderTransformPlugin{enabled: enabled, rules: rules}
}

func (p *HeaderTransformPlugin) Name() string  { return "header_transform" }
func (p *HeaderTransformPlugin) Priority() int { return 300 }
func (p *HeaderTransformPlugin) Enabled() bool { return p.enabled }

func (p *HeaderTransformPlugin) Before(ctx *hermesctx.Context, r *http.Request) Outcome {
	for k, v := range p.rules.RequestAdd {
		r.Header.Add(k, v)
	}
	for k, v := range p.rules.RequestSet {
		r.Header.Set(k, v)
	}
	for _, k := range p.rules.RequestRemove {
		r.Header.Del(k)
	}
	return Continue
}

func (p *HeaderTransformPlugin) After(ctx *hermesctx.Context, r *http.Request, resp *Response) *Response {
	if resp == nil {
		return resp
	}
	if resp.Headers == nil {
		resp.Headers = make(http.Header)
	}
	for k, v := range p.rules.ResponseAdd {
		resp.Headers.Add(k, v)
	}
	for k, v := range p.rules.ResponseSet {
		resp.Headers.Set(k, v)
	}
	for _, k := range p.rules.ResponseRemove {
		resp.Headers.Del(k)
	}
	return resp
}
