package plugin

import (
	"errors"
	"net/http"

	"github.com/sony/gobreaker/v2"

	"github.com/hermesgw/hermes/internal/circuitbreaker"
	gwerrors "github.com/hermesgw/hermes/internal/errors"
	"github.com/hermesgw/hermes/internal/hermesctx"
)

// CircuitBreakerPlugin gates requests on the per-target breaker state
// (spec §4.6). It admits in Before and reports the outcome in After, since
// the breaker needs the proxy's result (status or transport error) to know
// whether the probe succeeded.
type CircuitBreakerPlugin struct {
	enabled bool
	manager *circuitbreaker.Manager
}

// NewCircuitBreakerPlugin builds the CircuitBreaker plugin (priority 200).
func NewCircuitBreakerPlugin(enabled bool, manager *circuitbreaker.Manager) *CircuitBreakerPlugin {
	return &CircuitBreakerPlugin{enabled: enabled, manager: manager}
}

func (p *CircuitBreakerPlugin) Name() string  { return "circuit_breaker" }
func (p *CircuitBreakerPlugin) Priority() int { return 200 }
func (p *CircuitBreakerPlugin) Enabled() bool { return p.enabled }

func (p *CircuitBreakerPlugin) Before(ctx *hermesctx.Context, r *http.Request) Outcome {
	route := ctx.MatchedRoute
	if route == nil {
		return Continue
	}
	target := route.ServiceID
	if target == "" {
		target = route.DirectURL
	}

	probe, err := p.manager.Allow(target)
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return RespondNow(&Response{
				Status: gwerrors.CircuitOpen.Code,
				Body:   gwerrors.CircuitOpen.Bytes(),
			})
		}
		return Continue
	}

	scratch := ctx.Scratch(p.Name())
	scratch["probe"] = probe
	return Continue
}

func (p *CircuitBreakerPlugin) After(ctx *hermesctx.Context, r *http.Request, resp *Response) *Response {
	scratch := ctx.Scratch(p.Name())
	v, ok := scratch["probe"]
	if !ok {
		return resp
	}
	probe, ok := v.(*circuitbreaker.Probe)
	if !ok {
		return resp
	}

	// A failure is any upstream response with 5xx or a transport error
	// (the server reports a transport error or timeout here as a
	// synthesized 502/504 response; a nil response also counts as a
	// failure); 4xx is a success for the breaker (spec §4.6).
	if resp == nil || resp.Status >= 500 {
		probe.Failure()
	} else {
		probe.Success()
	}
	return resp
}
