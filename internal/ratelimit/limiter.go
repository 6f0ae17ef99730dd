// Package ratelimit implements the three-scope token-bucket limiter (spec
// §4.5): global -> per-route -> per-IP, all three must admit. Per-IP
// buckets live in an LRU bounded at a configured capacity.
package ratelimit

import (
	"math"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"
)

// Limiter evaluates the global/route/IP bucket chain for one request.
type Limiter struct {
	globalQPS   float64
	routeQPS    float64
	ipQPS       float64

	global *bucket

	routeMu sync.Mutex
	routes  map[string]*bucket

	ipMu sync.Mutex
	ips  *lru.Cache[string, *bucket]
}

// Decision reports the outcome of an Allow call.
type Decision struct {
	Allowed    bool
	Scope      string // "global", "route", "ip" — which bucket denied, if any
	RetryAfter time.Duration
}

// New builds a Limiter. ipCapacity bounds the per-IP LRU (default 10000
// per spec §4.5).
func New(globalQPS, routeQPS, ipQPS float64, ipCapacity int) *Limiter {
	if ipCapacity <= 0 {
		ipCapacity = 10000
	}
	cache, _ := lru.New[string, *bucket](ipCapacity)
	return &Limiter{
		globalQPS: globalQPS,
		routeQPS:  routeQPS,
		ipQPS:     ipQPS,
		global:    newBucket(globalQPS),
		routes:    make(map[string]*bucket),
		ips:       cache,
	}
}

// Allow evaluates global, then per-route, then per-IP buckets in order. If
// the global bucket rejects, the other two are never consulted or charged
// (spec §4.5 "Buckets and evaluation order").
func (l *Limiter) Allow(routeID, clientIP string) Decision {
	if ok, retry := l.global.take(); !ok {
		return Decision{Allowed: false, Scope: "global", RetryAfter: retry}
	}

	rb := l.routeBucket(routeID)
	if ok, retry := rb.take(); !ok {
		return Decision{Allowed: false, Scope: "route", RetryAfter: retry}
	}

	ib := l.ipBucket(clientIP)
	if ok, retry := ib.take(); !ok {
		return Decision{Allowed: false, Scope: "ip", RetryAfter: retry}
	}

	return Decision{Allowed: true}
}

func (l *Limiter) routeBucket(routeID string) *bucket {
	l.routeMu.Lock()
	defer l.routeMu.Unlock()
	b, ok := l.routes[routeID]
	if !ok {
		b = newBucket(l.routeQPS)
		l.routes[routeID] = b
	}
	return b
}

func (l *Limiter) ipBucket(ip string) *bucket {
	l.ipMu.Lock()
	defer l.ipMu.Unlock()
	b, ok := l.ips.Get(ip)
	if !ok {
		// A freshly evicted key returns to full capacity on re-insert; this
		// is acceptable per spec §4.5 (attacker cost of forcing eviction
		// exceeds the benefit of a bonus bucket).
		b = newBucket(l.ipQPS)
		l.ips.Add(ip, b)
	}
	return b
}

// bucket wraps golang.org/x/time/rate.Limiter: its internal token math
// matches the capacity/refill_rate/tokens/last_refill model of spec §3
// directly, and Reservation.Delay() gives the exact Retry-After value
// ceil((1 - tokens) / refill_rate) without reimplementing the arithmetic.
type bucket struct {
	lim *rate.Limiter
}

func newBucket(qps float64) *bucket {
	burst := int(math.Ceil(qps))
	if burst < 1 {
		burst = 1
	}
	return &bucket{lim: rate.NewLimiter(rate.Limit(qps), burst)}
}

// take attempts to consume one token. On denial it returns the wait
// duration until the next token would be available, rounded up to whole
// seconds per the Retry-After contract.
func (b *bucket) take() (bool, time.Duration) {
	r := b.lim.Reserve()
	if !r.OK() {
		return false, time.Second
	}
	delay := r.Delay()
	if delay == 0 {
		return true, 0
	}
	r.Cancel()
	return false, ceilSeconds(delay)
}

func ceilSeconds(d time.Duration) time.Duration {
	secs := math.Ceil(d.Seconds())
	return time.Duration(secs) * time.Second
}
