package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/contentpress/bakerd/internal/api/middleware"
)

func TestCorrelationID_EchoesSuppliedHeader(t *testing.T) {
	var seen string
	h := middleware.CorrelationID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = middleware.GetCorrelationID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Correlation-ID", "probe-7")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if seen != "probe-7" {
		t.Fatalf("expected caller id on the context, got %q", seen)
	}
	if got := rec.Header().Get("X-Correlation-ID"); got != "probe-7" {
		t.Fatalf("expected caller id echoed in response, got %q", got)
	}
}

func TestCorrelationID_MintsWhenAbsent(t *testing.T) {
	var seen string
	h := middleware.CorrelationID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = middleware.GetCorrelationID(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if seen == "" {
		t.Fatal("expected a generated correlation id on the context")
	}
	if got := rec.Header().Get("X-Correlation-ID"); got != seen {
		t.Fatalf("expected response header %q to match context id %q", got, seen)
	}
}

func TestGetCorrelationID_WithoutMiddleware(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	if got := middleware.GetCorrelationID(req.Context()); got != "" {
		t.Fatalf("expected empty id without the middleware, got %q", got)
	}
}
