// Package retry implements the reverse proxy's retry policy (spec §4.7):
// bounded retries on transport error or 502/503/504, a fresh balancer pick
// each attempt, non-idempotent methods excluded unless opted in, and a
// shared timeout budget that is not reset per attempt.
package retry

import (
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// DefaultRetryableStatuses are the upstream statuses that trigger a retry.
var DefaultRetryableStatuses = map[int]bool{502: true, 503: true, 504: true}

// DefaultRetryableMethods are idempotent by default (spec §9: PUT/DELETE
// are treated as non-idempotent-by-default, requiring explicit opt-in).
var DefaultRetryableMethods = map[string]bool{
	http.MethodGet:     true,
	http.MethodHead:    true,
	http.MethodOptions: true,
}

// Policy configures retry behavior. The gateway holds a single Policy and
// applies it to every route; there is no per-route policy.
type Policy struct {
	MaxRetries        int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64

	// AllowNonIdempotent opts POST/PUT/PATCH/DELETE requests into retries
	// (off by default). It applies to every route the Policy serves; a
	// route cannot opt in on its own.
	AllowNonIdempotent bool
}

// DefaultPolicy returns the documented defaults.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:        2,
		InitialBackoff:    50 * time.Millisecond,
		MaxBackoff:        2 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// Eligible reports whether method/status combination warrants a retry.
func (p Policy) Eligible(method string, status int, transportErr bool) bool {
	if !transportErr && !DefaultRetryableStatuses[status] {
		return false
	}
	if DefaultRetryableMethods[method] {
		return true
	}
	return p.AllowNonIdempotent
}

// NewBackOff builds a backoff.BackOff bounded to MaxRetries attempts, used
// to space out attempts 2..N (the first attempt carries no delay).
func (p Policy) NewBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialBackoff
	b.MaxInterval = p.MaxBackoff
	b.Multiplier = p.BackoffMultiplier
	b.MaxElapsedTime = 0 // the proxy's own deadline governs total elapsed time
	b.Reset()            // start the sequence from InitialBackoff, not the library default
	return backoff.WithMaxRetries(b, uint64(p.MaxRetries))
}
