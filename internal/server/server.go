// Package server wires the HTTP listener: request-id/recovery/access-log
// middleware, then the reserved-path dispatch (/health, /metrics) ahead of
// the catch-all proxy pipeline (matcher -> plugin before -> balancer ->
// proxy -> plugin after), per spec §2 and §6.
package server

import (
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	gwerrors "github.com/hermesgw/hermes/internal/errors"
	"github.com/hermesgw/hermes/internal/hermesctx"
	"github.com/hermesgw/hermes/internal/loadbalancer"
	"github.com/hermesgw/hermes/internal/metrics"
	"github.com/hermesgw/hermes/internal/plugin"
	"github.com/hermesgw/hermes/internal/proxy"
	"github.com/hermesgw/hermes/internal/retry"
	"github.com/hermesgw/hermes/internal/route"
)

// Gateway holds every wired component and implements http.Handler.
type Gateway struct {
	cache       *route.Cache
	chain       *plugin.Chain
	balancer    loadbalancer.Balancer
	backendSet  *loadbalancer.BackendSet
	proxy       *proxy.Proxy
	retryPolicy retry.Policy
	proxyTimeout time.Duration
	metrics     metrics.Collector

	reserved *httprouter.Router
	handler  http.Handler
}

// Options gathers the dependencies Gateway needs.
type Options struct {
	Cache        *route.Cache
	Chain        *plugin.Chain
	Balancer     loadbalancer.Balancer
	BackendSet   *loadbalancer.BackendSet
	Proxy        *proxy.Proxy
	RetryPolicy  retry.Policy
	ProxyTimeout time.Duration
	Metrics      metrics.Collector
	PromHandler  http.Handler // optional; serves GET /metrics
}

// New builds a Gateway and wires the reserved-path router.
func New(opts Options) *Gateway {
	g := &Gateway{
		cache:        opts.Cache,
		chain:        opts.Chain,
		balancer:     opts.Balancer,
		backendSet:   opts.BackendSet,
		proxy:        opts.Proxy,
		retryPolicy:  opts.RetryPolicy,
		proxyTimeout: opts.ProxyTimeout,
		metrics:      opts.Metrics,
	}
	if g.metrics == nil {
		g.metrics = metrics.NoopCollector{}
	}

	reserved := httprouter.New()
	reserved.GET("/health", func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})
	if opts.PromHandler != nil {
		reserved.Handler(http.MethodGet, "/metrics", opts.PromHandler)
	} else {
		reserved.Handler(http.MethodGet, "/metrics", promhttp.Handler())
	}
	g.reserved = reserved

	g.handler = Chain(http.HandlerFunc(g.serveProxied), RequestID(), Recovery(), AccessLog())
	return g
}

// ServeHTTP dispatches reserved paths ahead of the proxy pipeline, per
// spec §6: "Reserved paths take precedence over routing."
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/health" || r.URL.Path == "/metrics" {
		h, params, _ := g.reserved.Lookup(r.Method, r.URL.Path)
		if h != nil {
			h(w, r, params)
			return
		}
	}
	g.handler.ServeHTTP(w, r)
}

func (g *Gateway) serveProxied(w http.ResponseWriter, r *http.Request) {
	clientIP := clientIPOf(r)
	ctx := hermesctx.New(r, r.Header.Get(requestIDHeader), clientIP)
	defer hermesctx.Release(ctx)
	r = hermesctx.WithContext(r, ctx)

	table := g.cache.Current()
	matched, ok := table.Match(r.Method, r.URL.Path)
	if !ok {
		g.metrics.RouteNotMatched()
		gwerrors.NoMatch.WithPath(r.URL.Path).WriteJSON(w)
		return
	}
	ctx.MatchedRoute = matched
	g.metrics.RouteMatched(matched.RouteID)

	outcome, invoked := g.chain.RunBefore(ctx, r)
	if outcome.Halt {
		final := g.chain.RunAfter(ctx, r, outcome.Response, invoked)
		writeResponse(w, final)
		return
	}

	target, backends := g.resolveTarget(matched)
	pick := func() (string, func(), error) {
		b, err := g.balancer.Pick(target, backends)
		if err != nil {
			return "", nil, err
		}
		return b.BaseURL, func() { g.balancer.Release(b) }, nil
	}

	pathOverride := ""
	if matched.StripPrefix {
		prefix := matched.StripPath
		if prefix == "" {
			prefix = literalPrefix(matched.PathPattern)
		}
		pathOverride = proxy.StripPath(r.URL.Path, prefix)
	}

	intercept := &afterInterceptor{ResponseWriter: w, chain: g.chain, ctx: ctx, r: r, invoked: invoked}
	result := g.proxy.Forward(r.Context(), r, pathOverride, g.proxyTimeout, g.retryPolicy, pick, intercept)
	g.metrics.ProxyAttempt(matched.RouteID, result.StatusCode, result.Retried)

	if !intercept.wrote {
		var kind *gwerrors.GatewayError
		switch {
		case result.Timeout:
			g.metrics.ProxyTimeout(matched.RouteID)
			kind = gwerrors.UpstreamTimeout
		case result.Transport:
			kind = gwerrors.UpstreamTransport
		default:
			kind = gwerrors.NoHealthyInstance
		}
		errResp := &plugin.Response{Status: kind.Code, Body: kind.Bytes()}
		final := g.chain.RunAfter(ctx, r, errResp, invoked)
		writeResponse(w, final)
	}
}

// resolveTarget returns the breaker/balancer target key and the candidate
// backend set for matched's target (spec §3: direct_url xor service_id).
// The backend set is the snapshot the registry's poll loop last refreshed;
// this never issues a registry round-trip on the request path.
func (g *Gateway) resolveTarget(r *route.Route) (string, []*loadbalancer.Backend) {
	if r.DirectURL != "" {
		return r.DirectURL, []*loadbalancer.Backend{{InstanceID: r.DirectURL, BaseURL: r.DirectURL, Healthy: true}}
	}
	return r.ServiceID, g.backendSet.Snapshot(r.ServiceID)
}

func literalPrefix(pattern string) string {
	idx := strings.IndexAny(pattern, "*")
	if idx < 0 {
		return pattern
	}
	prefix := pattern[:idx]
	return strings.TrimSuffix(prefix, "/")
}

func clientIPOf(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeResponse(w http.ResponseWriter, resp *plugin.Response) {
	if resp == nil {
		resp = &plugin.Response{Status: http.StatusInternalServerError}
	}
	h := w.Header()
	for k, v := range resp.Headers {
		h[k] = v
	}
	if resp.Body != nil && h.Get("Content-Type") == "" {
		h.Set("Content-Type", "application/json")
	}
	w.WriteHeader(resp.Status)
	if resp.Body != nil {
		w.Write(resp.Body)
	}
}
