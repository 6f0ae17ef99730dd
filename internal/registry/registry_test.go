package registry

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hermesgw/hermes/internal/config"
	"github.com/hermesgw/hermes/internal/loadbalancer"
	"github.com/hermesgw/hermes/internal/route"
)

func TestBootstrapInstallsRemoteRoutes(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		entries := []config.RouteEntry{{RouteID: "r1", PathPattern: "/api/*", TargetURL: "http://up"}}
		json.NewEncoder(w).Encode(entries)
	}))
	defer upstream.Close()

	cache := route.NewCache()
	c := New(Options{BaseURL: upstream.URL, BootTimeout: time.Second, FallbackToLocal: true}, cache)

	c.Bootstrap(context.Background())

	table := cache.Current()
	if table.Len() != 1 {
		t.Fatalf("expected 1 route installed, got %d", table.Len())
	}
}

func TestBootstrapFallsBackToLocalWhenRegistryUnreachable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "routes.yaml")
	content := "routes:\n  - route_id: local1\n    path_pattern: /local/*\n    target_url: http://localhost:9999\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cache := route.NewCache()
	c := New(Options{
		BaseURL:         "http://127.0.0.1:1", // nothing listening
		BootTimeout:     50 * time.Millisecond,
		FallbackToLocal: true,
		LocalRoutesFile: path,
	}, cache)

	c.Bootstrap(context.Background())

	table := cache.Current()
	if table.Len() != 1 {
		t.Fatalf("expected the local-only route installed, got %d routes", table.Len())
	}
}

func TestRefreshRetainsPreviousTableWhenFallbackDisabled(t *testing.T) {
	cache := route.NewCache()

	// Seed the cache with a known table via a working registry first.
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		entries := []config.RouteEntry{{RouteID: "seed", PathPattern: "/seed/*", TargetURL: "http://up"}}
		json.NewEncoder(w).Encode(entries)
	}))
	c := New(Options{BaseURL: upstream.URL, BootTimeout: time.Second, FallbackToLocal: false}, cache)
	c.Bootstrap(context.Background())
	upstream.Close()

	if cache.Current().Len() != 1 {
		t.Fatalf("expected seed route installed before the registry goes away")
	}

	// Now the registry is gone; refresh should retain, not clear, the table.
	c.refresh(context.Background())

	if cache.Current().Len() != 1 {
		t.Fatalf("expected the previous table to be retained when fallback_to_local is false")
	}
}

// TestPollLoopRefreshesBackendSet exercises the producer side of the
// BackendSet: a route referencing service_id "svc" should, after a
// refresh, leave svc's instances populated in the shared BackendSet —
// with no Instances() call required on the request path.
func TestPollLoopRefreshesBackendSet(t *testing.T) {
	var fail bool
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/api/v1/gateway/routes":
			entries := []config.RouteEntry{{RouteID: "r1", PathPattern: "/api/*", TargetServiceID: "svc"}}
			json.NewEncoder(w).Encode(entries)
		case r.URL.Path == "/api/v1/services/svc/instances":
			if fail {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			entries := []config.InstanceEntry{{InstanceID: "i1", BaseURL: "http://a", Healthy: true}}
			json.NewEncoder(w).Encode(entries)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer upstream.Close()

	cache := route.NewCache()
	backends := loadbalancer.NewBackendSet()
	c := New(Options{BaseURL: upstream.URL, BootTimeout: time.Second, FallbackToLocal: true, Backends: backends}, cache)

	c.Bootstrap(context.Background())

	snap := backends.Snapshot("svc")
	if len(snap) != 1 || snap[0].InstanceID != "i1" {
		t.Fatalf("expected svc's backend set populated from the poll loop, got %v", snap)
	}

	// A transient instance-fetch failure must retain the existing entries,
	// not clear them (spec §4.2/§7: graceful degradation).
	fail = true
	c.refresh(context.Background())

	snap = backends.Snapshot("svc")
	if len(snap) != 1 || snap[0].InstanceID != "i1" {
		t.Fatalf("expected the previously cached instance retained on fetch failure, got %v", snap)
	}
}
