// Package proxy implements the reverse proxy contract of spec §4.7:
// forward(route, instance_url, client_request) -> upstream_response, with
// hop-by-hop header stripping, X-Forwarded-* headers, prefix stripping,
// streaming body copy, and bounded retries sharing one timeout budget.
package proxy

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/hermesgw/hermes/internal/retry"
)

// hopHeaders are stripped before forwarding, per RFC 7230 and spec §4.7.
var hopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// streamThreshold is the 1 MiB body-size threshold of spec §4.7. Forward
// does not consult it: the request body is passed to the upstream request
// as-is and is never buffered, whatever its size.
const streamThreshold = 1 << 20

// Result carries the outcome of one forward call for logging/metrics.
type Result struct {
	StatusCode int
	Attempts   int
	Retried    bool
	Timeout    bool
	Transport  bool
}

// Proxy forwards requests to resolved backend URLs.
type Proxy struct {
	transport *http.Transport
}

// New builds a Proxy with a shared, pooled transport.
func New() *Proxy {
	return &Proxy{
		transport: &http.Transport{
			MaxIdleConns:        200,
			MaxIdleConnsPerHost: 50,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}

// PickFunc resolves a fresh backend base URL for one attempt (a balancer
// pick). release is called when that attempt's connection has finished
// being used, regardless of outcome.
type PickFunc func() (baseURL string, release func(), err error)

// Forward issues the request against successive picks from pick, retrying
// per policy. w is a writer the final response body (or only response
// body, on success) is streamed to; the caller's ResponseWriter satisfies
// it directly. pathOverride, if non-empty, replaces r.URL.Path (after
// prefix stripping has already been applied by the caller).
func (p *Proxy) Forward(ctx context.Context, r *http.Request, pathOverride string, timeout time.Duration, policy retry.Policy, pick PickFunc, w http.ResponseWriter) Result {
	deadline := time.Now().Add(timeout)
	attemptCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	bo := policy.NewBackOff()

	var lastResult Result
	attempts := 0

	for {
		attempts++
		base, release, err := pick()
		if err != nil {
			lastResult = Result{Attempts: attempts}
			break
		}

		upstreamReq, buildErr := p.buildRequest(attemptCtx, r, base, pathOverride)
		if buildErr != nil {
			release()
			lastResult = Result{Attempts: attempts}
			break
		}

		resp, rtErr := p.transport.RoundTrip(upstreamReq)
		if rtErr != nil {
			release()
			timedOut := errors.Is(rtErr, context.DeadlineExceeded)
			lastResult = Result{Attempts: attempts, Timeout: timedOut, Transport: !timedOut}

			if attempts > policy.MaxRetries || attemptCtx.Err() != nil || !policy.Eligible(r.Method, 0, true) {
				break
			}
			if !wait(bo, attemptCtx) {
				break
			}
			continue
		}

		status := resp.StatusCode
		retryable := policy.Eligible(r.Method, status, false) && attempts <= policy.MaxRetries && attemptCtx.Err() == nil

		if retryable {
			resp.Body.Close()
			release()
			lastResult = Result{Attempts: attempts, StatusCode: status, Retried: true}
			if !wait(bo, attemptCtx) {
				break
			}
			continue
		}

		copyResponse(w, resp)
		resp.Body.Close()
		release()
		return Result{Attempts: attempts, StatusCode: status, Retried: attempts > 1}
	}

	return lastResult
}

// wait sleeps for the backoff's next interval, bounded by ctx, and reports
// whether the caller should retry (false if the backoff sequence or the
// context has been exhausted).
func wait(bo backoff.BackOff, ctx context.Context) bool {
	d := bo.NextBackOff()
	if d == backoff.Stop {
		return false
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func (p *Proxy) buildRequest(ctx context.Context, r *http.Request, baseURL, pathOverride string) (*http.Request, error) {
	target, err := url.Parse(baseURL)
	if err != nil {
		return nil, err
	}

	upstreamURL := *r.URL
	upstreamURL.Scheme = target.Scheme
	upstreamURL.Host = target.Host
	if pathOverride != "" {
		upstreamURL.Path = singleJoiningSlash(target.Path, pathOverride)
	} else {
		upstreamURL.Path = singleJoiningSlash(target.Path, r.URL.Path)
	}

	var body io.ReadCloser = r.Body
	req, err := http.NewRequestWithContext(ctx, r.Method, upstreamURL.String(), body)
	if err != nil {
		return nil, err
	}
	req.ContentLength = r.ContentLength

	req.Header = cloneHeader(r.Header)
	removeHopHeaders(req.Header)

	clientIP, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		clientIP = r.RemoteAddr
	}
	if prior := req.Header.Get("X-Forwarded-For"); prior != "" {
		req.Header.Set("X-Forwarded-For", prior+", "+clientIP)
	} else {
		req.Header.Set("X-Forwarded-For", clientIP)
	}
	proto := "http"
	if r.TLS != nil {
		proto = "https"
	}
	req.Header.Set("X-Forwarded-Proto", proto)
	req.Header.Set("X-Forwarded-Host", r.Host)
	if req.Header.Get("X-Request-ID") == "" {
		req.Header.Set("X-Request-ID", uuid.NewString())
	}

	return req, nil
}

func cloneHeader(h http.Header) http.Header {
	out := make(http.Header, len(h))
	for k, v := range h {
		vv := make([]string, len(v))
		copy(vv, v)
		out[k] = vv
	}
	return out
}

func removeHopHeaders(h http.Header) {
	// Headers named in a Connection header are also hop-by-hop (RFC 7230 6.1).
	// Read it before the fixed list below deletes Connection itself.
	if conn := h.Get("Connection"); conn != "" {
		for _, f := range strings.Split(conn, ",") {
			h.Del(strings.TrimSpace(f))
		}
	}
	for _, name := range hopHeaders {
		h.Del(name)
	}
}

func singleJoiningSlash(a, b string) string {
	aslash := strings.HasSuffix(a, "/")
	bslash := strings.HasPrefix(b, "/")
	switch {
	case aslash && bslash:
		return a + b[1:]
	case !aslash && !bslash:
		return a + "/" + b
	default:
		return a + b
	}
}

// copyResponse writes resp's status, headers, and streamed body to w.
func copyResponse(w http.ResponseWriter, resp *http.Response) {
	dst := w.Header()
	for k, v := range resp.Header {
		dst[k] = v
	}
	removeHopHeaders(dst)
	w.WriteHeader(resp.StatusCode)

	if flusher, ok := w.(http.Flusher); ok {
		buf := make([]byte, 32*1024)
		for {
			n, err := resp.Body.Read(buf)
			if n > 0 {
				w.Write(buf[:n])
				flusher.Flush()
			}
			if err != nil {
				break
			}
		}
		return
	}

	br := bufio.NewReaderSize(resp.Body, 32*1024)
	io.Copy(w, br)
}

// StripPath removes prefix from path if present, returning the original
// path unchanged otherwise (spec §4.7 path rewriting).
func StripPath(path, prefix string) string {
	if prefix == "" {
		return path
	}
	if strings.HasPrefix(path, prefix) {
		rest := path[len(prefix):]
		if rest == "" {
			return "/"
		}
		if !strings.HasPrefix(rest, "/") {
			rest = "/" + rest
		}
		return rest
	}
	return path
}
