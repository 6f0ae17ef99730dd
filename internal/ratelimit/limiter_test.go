package ratelimit

import "testing"

func TestRateLimitTriple(t *testing.T) {
	// Scenario 3: global=10, route=5, ip=3. 4 requests from one IP to one
	// route within a second: first 3 pass, 4th is denied.
	l := New(10, 5, 3, 100)

	allowed := 0
	var lastDenied Decision
	for i := 0; i < 4; i++ {
		d := l.Allow("route-a", "1.2.3.4")
		if d.Allowed {
			allowed++
		} else {
			lastDenied = d
		}
	}

	if allowed != 3 {
		t.Fatalf("expected 3 allowed requests, got %d", allowed)
	}
	if lastDenied.Scope != "ip" {
		t.Fatalf("expected the 4th request to be denied at ip scope, got %q", lastDenied.Scope)
	}
}

func TestGlobalDenialSkipsOtherScopes(t *testing.T) {
	l := New(1, 100, 100, 100)
	// First request consumes the single global token.
	if d := l.Allow("r", "ip1"); !d.Allowed {
		t.Fatal("expected first request to be allowed")
	}
	// Second request, different route/IP, should still be denied at the
	// global scope since nothing else should matter.
	d := l.Allow("other-route", "ip2")
	if d.Allowed {
		t.Fatal("expected denial once the global bucket is exhausted")
	}
	if d.Scope != "global" {
		t.Fatalf("expected denial scope=global, got %q", d.Scope)
	}
}

func TestPerRouteBucketsAreIndependent(t *testing.T) {
	l := New(1000, 1, 1000, 100)
	if d := l.Allow("route-a", "ip1"); !d.Allowed {
		t.Fatal("expected route-a's first request to be allowed")
	}
	if d := l.Allow("route-a", "ip2"); d.Allowed {
		t.Fatal("expected route-a's second request (different IP) to be denied by the route bucket")
	}
	if d := l.Allow("route-b", "ip1"); !d.Allowed {
		t.Fatal("expected route-b to have its own independent bucket")
	}
}
