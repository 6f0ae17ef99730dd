package plugin

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hermesgw/hermes/internal/hermesctx"
)

func TestHeaderTransformPluginRequestRules(t *testing.T) {
	p := NewHeaderTransformPlugin(true, HeaderRules{
		RequestSet:    map[string]string{"X-Env": "prod"},
		RequestRemove: []string{"X-Debug"},
	})

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("X-Debug", "1")
	ctx := hermesctx.New(req, "rid", "1.2.3.4")
	defer hermesctx.Release(ctx)

	p.Before(ctx, req)

	if req.Header.Get("X-Env") != "prod" {
		t.Fatal("expected X-Env to be set")
	}
	if req.Header.Get("X-Debug") != "" {
		t.Fatal("expected X-Debug to be removed")
	}
}

func TestHeaderTransformPluginResponseRules(t *testing.T) {
	p := NewHeaderTransformPlugin(true, HeaderRules{
		ResponseAdd:    map[string]string{"X-Served-By": "hermes"},
		ResponseRemove: []string{"X-Internal"},
	})

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	ctx := hermesctx.New(req, "rid", "1.2.3.4")
	defer hermesctx.Release(ctx)

	resp := &Response{Status: http.StatusOK, Headers: http.Header{"X-Internal": []string{"secret"}}}
	out := p.After(ctx, req, resp)

	if out.Headers.Get("X-Served-By") != "hermes" {
		t.Fatal("expected X-Served-By to be added")
	}
	if out.Headers.Get("X-Internal") != "" {
		t.Fatal("expected X-Internal to be stripped")
	}
}
