// Package hermesctx holds the per-request pipeline context threaded through
// the plugin chain, matcher, balancer, and proxy.
package hermesctx

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/hermesgw/hermes/internal/route"
)

// Context is the configuration-like record carried through one request's
// lifecycle. PluginScratch is the only mutable slot shared across plugins,
// keyed by plugin name so one plugin never clobbers another's state.
type Context struct {
	RequestID     string
	ClientIP      string
	Method        string
	Path          string
	Headers       http.Header
	MatchedRoute  *route.Route // nil until the matcher runs
	StartTime     time.Time
	Deadline      time.Time
	PluginScratch map[string]any
}

type ctxKey struct{}

var pool = sync.Pool{
	New: func() any { return &Context{} },
}

// New allocates a Context from the pool, populated from the inbound request.
func New(r *http.Request, requestID, clientIP string) *Context {
	c := pool.Get().(*Context)
	c.RequestID = requestID
	c.ClientIP = clientIP
	c.Method = r.Method
	c.Path = r.URL.Path
	c.Headers = r.Header
	c.MatchedRoute = nil
	c.StartTime = time.Now()
	c.Deadline = time.Time{}
	if c.PluginScratch == nil {
		c.PluginScratch = make(map[string]any, 4)
	} else {
		clear(c.PluginScratch)
	}
	return c
}

// Release returns a Context to the pool. Callers must not use c afterward.
func Release(c *Context) {
	if c == nil {
		return
	}
	pool.Put(c)
}

// WithContext attaches c to r's context and returns the derived request.
func WithContext(r *http.Request, c *Context) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), ctxKey{}, c))
}

// FromRequest extracts the Context previously attached by WithContext.
// Returns nil if none is present (e.g. in unit tests that bypass the server).
func FromRequest(r *http.Request) *Context {
	c, _ := r.Context().Value(ctxKey{}).(*Context)
	return c
}

// Scratch returns the plugin's private scratch slot, creating it on first use.
func (c *Context) Scratch(pluginName string) map[string]any {
	if v, ok := c.PluginScratch[pluginName]; ok {
		if m, ok := v.(map[string]any); ok {
			return m
		}
	}
	m := make(map[string]any)
	c.PluginScratch[pluginName] = m
	return m
}
