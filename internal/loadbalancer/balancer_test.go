package loadbalancer

import "testing"

func TestLeastConnPicksMinActive(t *testing.T) {
	// Scenario 6: I1(active=2), I2(active=0), I3(active=1); pick returns I2.
	i1 := &Backend{InstanceID: "I1", Healthy: true, active: 2}
	i2 := &Backend{InstanceID: "I2", Healthy: true, active: 0}
	i3 := &Backend{InstanceID: "I3", Healthy: true, active: 1}

	lb := New(LeastConn)
	picked, err := lb.Pick("svc", []*Backend{i1, i2, i3})
	if err != nil {
		t.Fatal(err)
	}
	if picked.InstanceID != "I2" {
		t.Fatalf("expected I2, got %s", picked.InstanceID)
	}

	priorActive := i2.getActive() - 1 // the value before Pick's increment
	lb.Release(picked)
	if i2.getActive() != priorActive {
		t.Fatalf("expected active count restored to %d, got %d", priorActive, i2.getActive())
	}
}

func TestLeastConnSkipsUnhealthy(t *testing.T) {
	i1 := &Backend{InstanceID: "I1", Healthy: false, active: 0}
	i2 := &Backend{InstanceID: "I2", Healthy: true, active: 5}

	lb := New(LeastConn)
	picked, err := lb.Pick("svc", []*Backend{i1, i2})
	if err != nil {
		t.Fatal(err)
	}
	if picked.InstanceID != "I2" {
		t.Fatal("expected the only healthy instance to be picked even though it has more active connections")
	}
}

func TestNoHealthyInstanceFailsFast(t *testing.T) {
	i1 := &Backend{InstanceID: "I1", Healthy: false}
	for _, strategy := range []Strategy{RoundRobin, Random, LeastConn} {
		lb := New(strategy)
		if _, err := lb.Pick("svc", []*Backend{i1}); err != ErrNoHealthyInstance {
			t.Fatalf("strategy %s: expected ErrNoHealthyInstance, got %v", strategy, err)
		}
	}
}

func TestRoundRobinCyclesHealthyInstances(t *testing.T) {
	backends := []*Backend{
		{InstanceID: "I1", Healthy: true},
		{InstanceID: "I2", Healthy: true},
	}
	lb := New(RoundRobin)

	seen := make(map[string]int)
	for i := 0; i < 10; i++ {
		b, err := lb.Pick("svc", backends)
		if err != nil {
			t.Fatal(err)
		}
		seen[b.InstanceID]++
		lb.Release(b)
	}
	if seen["I1"] == 0 || seen["I2"] == 0 {
		t.Fatalf("expected both instances to be picked over 10 rounds, got %v", seen)
	}
}

func TestActiveCountRestoredOnRelease(t *testing.T) {
	b := &Backend{InstanceID: "I1", Healthy: true}
	lb := New(LeastConn)

	picked, err := lb.Pick("svc", []*Backend{b})
	if err != nil {
		t.Fatal(err)
	}
	if b.getActive() != 1 {
		t.Fatalf("expected active=1 after pick, got %d", b.getActive())
	}
	lb.Release(picked)
	if b.getActive() != 0 {
		t.Fatalf("expected active to return to 0 on release, got %d", b.getActive())
	}
}
