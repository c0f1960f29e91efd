package health

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
)

func newProbeRouter(required, optional Status) *mux.Router {
	agg := NewAggregator()
	agg.Register("cache", fixed(required))
	agg.RegisterOptional("remote", fixed(optional))

	r := mux.NewRouter()
	Routes(r, agg)
	return r
}

func serve(r http.Handler, method, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestLivenessHandler(t *testing.T) {
	rec := serve(newProbeRouter(StatusUnhealthy, StatusUnhealthy), http.MethodGet, "/healthz")
	if rec.Code != http.StatusOK || rec.Body.String() != "OK" {
		t.Errorf("/healthz = %d %q, want 200 OK", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/plain" {
		t.Errorf("Content-Type = %q", ct)
	}
}

func TestReadinessHandler(t *testing.T) {
	tests := []struct {
		name     string
		required Status
		optional Status
		code     int
		body     string
	}{
		{"healthy", StatusHealthy, StatusHealthy, http.StatusOK, "OK"},
		{"remote down", StatusHealthy, StatusUnhealthy, http.StatusOK, "DEGRADED"},
		{"cache down", StatusUnhealthy, StatusHealthy, http.StatusServiceUnavailable, "UNHEALTHY"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(newProbeRouter(tt.required, tt.optional), http.MethodGet, "/readyz")
			if rec.Code != tt.code || rec.Body.String() != tt.body {
				t.Errorf("/readyz = %d %q, want %d %q", rec.Code, rec.Body.String(), tt.code, tt.body)
			}
		})
	}
}

func TestDetailedHandler(t *testing.T) {
	rec := serve(newProbeRouter(StatusHealthy, StatusUnhealthy), http.MethodGet, "/health")
	if rec.Code != http.StatusOK {
		t.Fatalf("/health code = %d", rec.Code)
	}

	var resp ReportResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "degraded" {
		t.Errorf("status = %q, want degraded", resp.Status)
	}
	if resp.Checks["remote"].Status != "unhealthy" || resp.Checks["cache"].Status != "healthy" {
		t.Errorf("checks = %+v", resp.Checks)
	}
	if resp.Timestamp == "" {
		t.Error("timestamp missing")
	}
}

func TestCheckHandler(t *testing.T) {
	r := newProbeRouter(StatusHealthy, StatusUnhealthy)

	rec := serve(r, http.MethodGet, "/health/cache")
	if rec.Code != http.StatusOK {
		t.Errorf("/health/cache code = %d", rec.Code)
	}
	var resp CheckResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "healthy" {
		t.Errorf("status = %q", resp.Status)
	}

	if rec := serve(r, http.MethodGet, "/health/remote"); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("/health/remote code = %d, want 503", rec.Code)
	}
	if rec := serve(r, http.MethodGet, "/health/missing"); rec.Code != http.StatusNotFound {
		t.Errorf("/health/missing code = %d, want 404", rec.Code)
	}
}

func TestRoutes_MethodNotAllowed(t *testing.T) {
	rec := serve(newProbeRouter(StatusHealthy, StatusHealthy), http.MethodPost, "/health")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST /health code = %d, want 405", rec.Code)
	}
}
