package proxy

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hermesgw/hermes/internal/retry"
)

func TestRemoveHopHeaders(t *testing.T) {
	h := http.Header{}
	h.Set("Connection", "X-Custom-Hop")
	h.Set("X-Custom-Hop", "drop-me")
	h.Set("Keep-Alive", "timeout=5")
	h.Set("X-Request-ID", "keep-me")

	removeHopHeaders(h)

	if h.Get("Connection") != "" || h.Get("Keep-Alive") != "" || h.Get("X-Custom-Hop") != "" {
		t.Fatalf("expected hop headers stripped, got %v", h)
	}
	if h.Get("X-Request-ID") != "keep-me" {
		t.Fatal("expected non-hop header to survive")
	}
}

func TestSingleJoiningSlash(t *testing.T) {
	cases := []struct{ a, b, want string }{
		{"http://host/", "/path", "http://host/path"},
		{"http://host", "/path", "http://host/path"},
		{"http://host/", "path", "http://host/path"},
		{"http://host", "path", "http://host/path"},
	}
	for _, c := range cases {
		if got := singleJoiningSlash(c.a, c.b); got != c.want {
			t.Fatalf("singleJoiningSlash(%q,%q) = %q, want %q", c.a, c.b, got, c.want)
		}
	}
}

func TestStripPath(t *testing.T) {
	cases := []struct{ path, prefix, want string }{
		{"/api/v1/users", "/api/v1", "/users"},
		{"/api/v1", "/api/v1", "/"},
		{"/other", "/api/v1", "/other"},
		{"/api/v1users", "/api/v1", "/users"},
	}
	for _, c := range cases {
		if got := StripPath(c.path, c.prefix); got != c.want {
			t.Fatalf("StripPath(%q,%q) = %q, want %q", c.path, c.prefix, got, c.want)
		}
	}
}

func TestForwardRetriesOn503ThenSucceeds(t *testing.T) {
	var calls int64
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt64(&calls, 1)
		if n == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}))
	defer upstream.Close()

	p := New()
	policy := retry.DefaultPolicy()
	policy.InitialBackoff = time.Millisecond
	policy.MaxBackoff = 2 * time.Millisecond

	req := httptest.NewRequest(http.MethodGet, "/thing", nil)
	rec := httptest.NewRecorder()

	pick := func() (string, func(), error) { return upstream.URL, func() {}, nil }

	result := p.Forward(context.Background(), req, "", time.Second, policy, pick, rec)

	if result.StatusCode != http.StatusOK {
		t.Fatalf("expected final status 200, got %d", result.StatusCode)
	}
	if result.Attempts != 2 {
		t.Fatalf("expected 2 attempts, got %d", result.Attempts)
	}
	if !result.Retried {
		t.Fatal("expected Retried to be true")
	}
}

func TestForwardDoesNotRetryNonIdempotentByDefault(t *testing.T) {
	var calls int64
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer upstream.Close()

	p := New()
	policy := retry.DefaultPolicy()

	req := httptest.NewRequest(http.MethodPost, "/thing", nil)
	rec := httptest.NewRecorder()
	pick := func() (string, func(), error) { return upstream.URL, func() {}, nil }

	result := p.Forward(context.Background(), req, "", time.Second, policy, pick, rec)

	if result.Attempts != 1 {
		t.Fatalf("expected exactly 1 attempt for a non-idempotent method, got %d", result.Attempts)
	}
	if atomic.LoadInt64(&calls) != 1 {
		t.Fatalf("expected exactly 1 upstream call, got %d", calls)
	}
}

func TestRetryEligibility(t *testing.T) {
	p := retry.DefaultPolicy()

	if !p.Eligible(http.MethodGet, http.StatusServiceUnavailable, false) {
		t.Fatal("expected GET+503 eligible")
	}
	if p.Eligible(http.MethodGet, http.StatusOK, false) {
		t.Fatal("expected GET+200 not eligible")
	}
	if p.Eligible(http.MethodPost, http.StatusServiceUnavailable, false) {
		t.Fatal("expected POST+503 not eligible by default")
	}
	if !p.Eligible(http.MethodGet, 0, true) {
		t.Fatal("expected a transport error on GET to be eligible")
	}
}
