package web

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func serve(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()
	h, err := SPAHandler()
	if err != nil {
		t.Fatalf("SPAHandler: %v", err)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestServesIndex(t *testing.T) {
	rec := serve(t, "/")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Multi-Tool AI Assistant") {
		t.Error("expected page title in index.html")
	}
}

func TestFallsBackToIndexForClientRoutes(t *testing.T) {
	rec := serve(t, "/some/client/route")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "<html") {
		t.Error("expected index.html body")
	}
}

func TestServesAssets(t *testing.T) {
	rec := serve(t, "/app.js")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "/ws/chat") {
		t.Error("expected chat script")
	}
}

func TestUnknownAPIPathIsNotFound(t *testing.T) {
	if rec := serve(t, "/api/nope"); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}
