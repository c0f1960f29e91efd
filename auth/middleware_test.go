package auth

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jonwraymond/tiercache/observe"
)

func TestMiddleware(t *testing.T) {
	a := newTestAuthenticator(t, JWTConfig{})
	admin, _ := a.Issue("ops", []string{"admin"}, time.Hour)
	viewer, _ := a.Issue("intern", []string{"viewer"}, time.Hour)

	var seen string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = SubjectFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
	var logs bytes.Buffer
	h := Middleware(a, "admin", observe.NewLoggerWithWriter("debug", &logs))(next)

	tests := []struct {
		name   string
		header string
		code   int
	}{
		{"no token", "", http.StatusUnauthorized},
		{"bad token", "Bearer junk", http.StatusUnauthorized},
		{"missing role", "Bearer " + viewer, http.StatusForbidden},
		{"admin", "Bearer " + admin, http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = ""
			req := httptest.NewRequest(http.MethodPost, "/admin/clear", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tt.code {
				t.Fatalf("code = %d, want %d (%s)", rec.Code, tt.code, rec.Body.String())
			}
			if tt.code == http.StatusNoContent && seen != "ops" {
				t.Errorf("subject in context = %q, want ops", seen)
			}
			if tt.code == http.StatusUnauthorized && rec.Header().Get("WWW-Authenticate") == "" {
				t.Error("WWW-Authenticate header missing")
			}
		})
	}

	if !strings.Contains(logs.String(), "admin request forbidden") {
		t.Errorf("forbidden request not logged: %s", logs.String())
	}
}

func TestMiddleware_NoRoleRequired(t *testing.T) {
	a := newTestAuthenticator(t, JWTConfig{})
	token, _ := a.Issue("intern", nil, time.Hour)

	h := Middleware(a, "", nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	req := httptest.NewRequest(http.MethodGet, "/admin/stats", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("code = %d, want 200", rec.Code)
	}
}

func TestIdentityContext(t *testing.T) {
	ctx := context.Background()
	if IdentityFromContext(ctx) != nil || SubjectFromContext(ctx) != "" {
		t.Error("empty context should carry no identity")
	}
	ctx = WithIdentity(ctx, &Identity{Subject: "ops"})
	if SubjectFromContext(ctx) != "ops" {
		t.Errorf("SubjectFromContext() = %q", SubjectFromContext(ctx))
	}
	var nilID *Identity
	if nilID.HasRole("admin") {
		t.Error("nil identity has no roles")
	}
}
