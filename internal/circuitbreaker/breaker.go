// Package circuitbreaker implements the per-target Closed/Open/HalfOpen
// state machine (spec §4.6) as a thin wrapper over
// github.com/sony/gobreaker/v2's TwoStepCircuitBreaker: MaxRequests: 1
// enforces "exactly one half-open probe" directly, rather than hand-rolling
// the counters the teacher's breaker.go tracked manually.
package circuitbreaker

import (
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
)

// Manager owns one breaker per target key (service_id or direct_url).
type Manager struct {
	failureThreshold uint32
	resetTimeout     time.Duration

	mu       sync.Mutex
	breakers map[string]*gobreaker.TwoStepCircuitBreaker[struct{}]

	onStateChange func(target, state string)
}

// New builds a Manager. onStateChange, if non-nil, is invoked on every
// transition (used to feed metrics.Collector.BreakerStateChange).
func New(failureThreshold uint32, resetTimeout time.Duration, onStateChange func(target, state string)) *Manager {
	return &Manager{
		failureThreshold: failureThreshold,
		resetTimeout:     resetTimeout,
		breakers:         make(map[string]*gobreaker.TwoStepCircuitBreaker[struct{}]),
		onStateChange:    onStateChange,
	}
}

// Probe is the live handle for one admitted request: Success/Failure must
// be called exactly once on every exit path (spec §5 cancellation rule).
type Probe struct {
	done func(success bool)
}

// Success reports the guarded call as the breaker-level success: any
// non-5xx/non-transport-error outcome (spec §4.6: "4xx is a success for
// the breaker").
func (p *Probe) Success() { p.done(true) }

// Failure reports a 5xx or transport error.
func (p *Probe) Failure() { p.done(false) }

// ErrOpen is returned by Allow when the breaker is open.
var ErrOpen = gobreaker.ErrOpenState

// Allow checks whether a request to target may proceed. In Open state it
// returns ErrOpen immediately without reaching the proxy (spec §4.6). In
// HalfOpen, gobreaker's own MaxRequests: 1 gate admits exactly one probe
// and rejects the rest with ErrTooManyRequests.
func (m *Manager) Allow(target string) (*Probe, error) {
	b := m.breakerFor(target)
	done, err := b.Allow()
	if err != nil {
		return nil, err
	}
	return &Probe{done: done}, nil
}

func (m *Manager) breakerFor(target string) *gobreaker.TwoStepCircuitBreaker[struct{}] {
	m.mu.Lock()
	defer m.mu.Unlock()

	if b, ok := m.breakers[target]; ok {
		return b
	}

	threshold := m.failureThreshold
	settings := gobreaker.Settings{
		Name:        target,
		MaxRequests: 1,
		Interval:    0, // never reset Closed-state counters on a timer; only on success
		Timeout:     m.resetTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
	}
	if m.onStateChange != nil {
		settings.OnStateChange = func(name string, from, to gobreaker.State) {
			m.onStateChange(name, stateName(to))
		}
	}

	b := gobreaker.NewTwoStepCircuitBreaker[struct{}](settings)
	m.breakers[target] = b
	return b
}

func stateName(s gobreaker.State) string {
	switch s {
	case gobreaker.StateOpen:
		return "open"
	case gobreaker.StateHalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}
