package server

import (
	"net/http"

	"github.com/hermesgw/hermes/internal/hermesctx"
	"github.com/hermesgw/hermes/internal/plugin"
)

// afterInterceptor sits between the proxy and the real ResponseWriter. The
// proxy writes the upstream response through it; on the first WriteHeader
// call the plugin chain's after phase runs against the about-to-be-sent
// status/headers (header_transform rewrites them; circuit_breaker reports
// the outcome), and the real WriteHeader only fires once that's settled.
// Mirrors the teacher's transformResponseWriter pattern.
type afterInterceptor struct {
	http.ResponseWriter
	chain   *plugin.Chain
	ctx     *hermesctx.Context
	r       *http.Request
	invoked []plugin.Plugin
	wrote   bool
}

func (a *afterInterceptor) WriteHeader(status int) {
	if a.wrote {
		return
	}
	a.wrote = true

	resp := &plugin.Response{Status: status, Headers: a.ResponseWriter.Header().Clone()}
	resp = a.chain.RunAfter(a.ctx, a.r, resp, a.invoked)

	h := a.ResponseWriter.Header()
	for k := range h {
		delete(h, k)
	}
	for k, v := range resp.Headers {
		h[k] = v
	}
	a.ResponseWriter.WriteHeader(resp.Status)
}

func (a *afterInterceptor) Write(b []byte) (int, error) {
	if !a.wrote {
		a.WriteHeader(http.StatusOK)
	}
	return a.ResponseWriter.Write(b)
}

func (a *afterInterceptor) Flush() {
	if f, ok := a.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
