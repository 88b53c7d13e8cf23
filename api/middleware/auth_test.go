package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/guildworks/guildworks-backend/pkg/config"
)

func TestAuthRejectsMissingToken(t *testing.T) {
	mw := Auth(config.UpstreamConfig{APIToken: "secret"}, nil)
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run without credentials")
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/treasury/balance", nil)
	resp := httptest.NewRecorder()
	mw(handler).ServeHTTP(resp, req)

	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestAuthRejectsWrongToken(t *testing.T) {
	mw := Auth(config.UpstreamConfig{APIToken: "secret"}, nil)
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run with a bad token")
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/treasury/balance", nil)
	req.Header.Set("Authorization", "Bearer guessed")
	resp := httptest.NewRecorder()
	mw(handler).ServeHTTP(resp, req)

	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestAuthSeedsMembershipContext(t *testing.T) {
	mw := Auth(config.UpstreamConfig{APIToken: "secret"}, nil)
	membershipID := uuid.New()

	var seen string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = MembershipIDFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/treasury/balance", nil)
	req.Header.Set("Authorization", "Bearer secret")
	req.Header.Set(membershipIDHeader, membershipID.String())
	resp := httptest.NewRecorder()
	mw(handler).ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if seen != membershipID.String() {
		t.Fatalf("expected membership %s in context, got %q", membershipID, seen)
	}
}

func TestAuthRejectsMalformedMembershipHeader(t *testing.T) {
	mw := Auth(config.UpstreamConfig{APIToken: "secret"}, nil)
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run with a malformed membership header")
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/treasury/balance", nil)
	req.Header.Set("Authorization", "Bearer secret")
	req.Header.Set(membershipIDHeader, "not-a-uuid")
	resp := httptest.NewRecorder()
	mw(handler).ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}
