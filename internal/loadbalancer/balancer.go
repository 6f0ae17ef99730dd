// Package loadbalancer picks one backend instance per request from a
// service's instance set (spec §4.3), tracking active_conn_count so
// least_conn has live data and every completion path restores the count.
package loadbalancer

import (
	"errors"
	"sync"
	"sync/atomic"
)

// ErrNoHealthyInstance is returned when a service has no healthy backend.
var ErrNoHealthyInstance = errors.New("no healthy instance")

// Backend is one instance of a service, with a process-local active
// request counter maintained by Pick/Release.
type Backend struct {
	InstanceID string
	BaseURL    string
	Healthy    bool

	active int64
}

func (b *Backend) incrActive() int64 { return atomic.AddInt64(&b.active, 1) }
func (b *Backend) decrActive()       { atomic.AddInt64(&b.active, -1) }
func (b *Backend) getActive() int64  { return atomic.LoadInt64(&b.active) }

// Balancer picks and releases backends for one service_id.
type Balancer interface {
	// Pick selects a healthy backend snapshot at call time and increments
	// its active count; Release must be called exactly once per Pick that
	// succeeds.
	Pick(serviceID string, backends []*Backend) (*Backend, error)
	Release(b *Backend)
}

// Strategy names the three load-balancing algorithms spec §4.3/§6 allow.
type Strategy string

const (
	RoundRobin    Strategy = "round_robin"
	Random        Strategy = "random"
	LeastConn     Strategy = "least_conn"
)

// New builds a Balancer for the given strategy.
func New(strategy Strategy) Balancer {
	switch strategy {
	case Random:
		return &randomBalancer{}
	case LeastConn:
		return &leastConnBalancer{}
	default:
		return &roundRobinBalancer{counters: make(map[string]*uint64), mu: sync.Mutex{}}
	}
}

// healthySnapshot returns only the healthy backends, preserving order. All
// three strategies operate on this snapshot taken at pick time (spec §4.3).
func healthySnapshot(backends []*Backend) []*Backend {
	out := make([]*Backend, 0, len(backends))
	for _, b := range backends {
		if b.Healthy {
			out = append(out, b)
		}
	}
	return out
}

// releaseBackend decrements the backend's active count. Shared by every
// Balancer implementation's Release method since the counter lives on
// Backend itself.
func releaseBackend(b *Backend) {
	if b != nil {
		b.decrActive()
	}
}
