package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCanonicalHost_Redirects(t *testing.T) {
	h := CanonicalHost("www.example.com")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	r := httptest.NewRequest(http.MethodGet, "http://example.com/search?q=ana", nil)
	r.Header.Set("X-Forwarded-Proto", "https")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	if w.Code != http.StatusPermanentRedirect {
		t.Fatalf("expected 308, got %d", w.Code)
	}
	if got := w.Header().Get("Location"); got != "https://www.example.com/search?q=ana" {
		t.Fatalf("unexpected location %q", got)
	}
}

func TestCanonicalHost_PassesCanonicalRequests(t *testing.T) {
	h := CanonicalHost("www.example.com")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	r := httptest.NewRequest(http.MethodGet, "http://WWW.example.com:8080/api/x", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestCanonicalHost_EmptyDisables(t *testing.T) {
	h := CanonicalHost("")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "http://anything/", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}
