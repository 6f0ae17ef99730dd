package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseAppliesDefaultsAndOverrides(t *testing.T) {
	l := NewLoader()
	cfg, err := l.Parse([]byte("port: 9090\nload_balance_strategy: least_conn\n"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Port != 9090 {
		t.Fatalf("expected overridden port 9090, got %d", cfg.Port)
	}
	if cfg.LoadBalanceStrategy != "least_conn" {
		t.Fatalf("expected overridden strategy, got %q", cfg.LoadBalanceStrategy)
	}
	// Untouched fields should keep Default()'s values.
	if cfg.ProxyMaxRetries != Default().ProxyMaxRetries {
		t.Fatalf("expected default proxy_max_retries to survive, got %d", cfg.ProxyMaxRetries)
	}
}

func TestParseExpandsEnvVars(t *testing.T) {
	t.Setenv("HERMES_TEST_URL", "http://registry.internal:9000")
	l := NewLoader()
	cfg, err := l.Parse([]byte("registry_url: ${HERMES_TEST_URL}\n"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.RegistryURL != "http://registry.internal:9000" {
		t.Fatalf("expected expanded registry_url, got %q", cfg.RegistryURL)
	}
}

func TestParseLeavesUnsetEnvVarLiteral(t *testing.T) {
	l := NewLoader()
	cfg, err := l.Parse([]byte("registry_url: ${HERMES_UNSET_VAR_XYZ}\n"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.RegistryURL != "${HERMES_UNSET_VAR_XYZ}" {
		t.Fatalf("expected literal placeholder to survive, got %q", cfg.RegistryURL)
	}
}

func TestParseRejectsInvalidPort(t *testing.T) {
	l := NewLoader()
	if _, err := l.Parse([]byte("port: 70000\n")); err == nil {
		t.Fatal("expected an out-of-range port to be rejected")
	}
}

func TestParseRejectsUnknownLoadBalanceStrategy(t *testing.T) {
	l := NewLoader()
	if _, err := l.Parse([]byte("load_balance_strategy: weighted\n")); err == nil {
		t.Fatal("expected an unknown strategy to be rejected")
	}
}

func TestParseRejectsMalformedYAML(t *testing.T) {
	l := NewLoader()
	if _, err := l.Parse([]byte("port: [this is not, a port\n")); err == nil {
		t.Fatal("expected malformed top-level YAML to be a fatal error")
	}
}

func TestLoadRoutesParsesLocalRouteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "routes.yaml")
	content := "routes:\n  - route_id: r1\n    path_pattern: /api/v1/things\n    methods: [GET]\n    target_url: http://localhost:9001\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	l := NewLoader()
	rf, err := l.LoadRoutes(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(rf.Routes) != 1 || rf.Routes[0].RouteID != "r1" {
		t.Fatalf("expected one route r1, got %+v", rf.Routes)
	}
}
