package plugin

import (
	"net/http"
	"strconv"

	gwerrors "github.com/hermesgw/hermes/internal/errors"
	"github.com/hermesgw/hermes/internal/hermesctx"
	"github.com/hermesgw/hermes/internal/ratelimit"
)

// RateLimitPlugin enforces the three-scope token bucket (spec §4.5).
type RateLimitPlugin struct {
	enabled bool
	limiter *ratelimit.Limiter
}

// NewRateLimitPlugin builds the RateLimit plugin (priority 100).
func NewRateLimitPlugin(enabled bool, limiter *ratelimit.Limiter) *RateLimitPlugin {
	return &RateLimitPlugin{enabled: enabled, limiter: limiter}
}

func (p *RateLimitPlugin) Name() string  { return "rate_limit" }
func (p *RateLimitPlugin) Priority() int { return 100 }
func (p *RateLimitPlugin) Enabled() bool { return p.enabled }

func (p *RateLimitPlugin) Before(ctx *hermesctx.Context, r *http.Request) Outcome {
	routeID := ""
	if ctx.MatchedRoute != nil {
		routeID = ctx.MatchedRoute.RouteID
	}

	decision := p.limiter.Allow(routeID, ctx.ClientIP)
	if decision.Allowed {
		return Continue
	}

	h := make(http.Header)
	h.Set("Retry-After", strconv.Itoa(int(decision.RetryAfter.Seconds())))
	return RespondNow(&Response{
		Status:  gwerrors.RateLimited.Code,
		Headers: h,
		Body:    gwerrors.RateLimited.Bytes(),
	})
}

func (p *RateLimitPlugin) After(ctx *hermesctx.Context, r *http.Request, resp *Response) *Response {
	return resp
}
