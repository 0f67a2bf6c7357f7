package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

const testSecret = "test-hmac-secret"

func signToken(t *testing.T, claims map[string]any) string {
	t.Helper()
	builder := jwt.NewBuilder().Expiration(time.Now().Add(time.Hour))
	for k, v := range claims {
		builder = builder.Claim(k, v)
	}
	token, err := builder.Build()
	if err != nil {
		t.Fatalf("build token: %v", err)
	}
	signed, err := jwt.Sign(token, jwt.WithKey(jwa.HS256, []byte(testSecret)))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return string(signed)
}

func TestVerifyValidHMACToken(t *testing.T) {
	v, err := NewVerifier(context.Background(), "", testSecret, "")
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}

	raw := signToken(t, map[string]any{"sub": "user-1", "tenant_id": "tenant-a"})
	id, err := v.Verify(context.Background(), raw)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if id.UserID != "user-1" || id.TenantID != "tenant-a" {
		t.Errorf("unexpected identity: %+v", id)
	}
}

func TestVerifyUsesCustomClaimKey(t *testing.T) {
	v, err := NewVerifier(context.Background(), "", testSecret, "user_id")
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}

	raw := signToken(t, map[string]any{"sub": "fallback", "user_id": "custom-user"})
	id, err := v.Verify(context.Background(), raw)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if id.UserID != "custom-user" {
		t.Errorf("expected claim_user_key to win, got %q", id.UserID)
	}
}

func TestVerifyRejectsBadSignature(t *testing.T) {
	v, err := NewVerifier(context.Background(), "", testSecret, "")
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}

	token, err := jwt.NewBuilder().Claim("sub", "user-1").Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	signed, err := jwt.Sign(token, jwt.WithKey(jwa.HS256, []byte("wrong-secret")))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	if _, err := v.Verify(context.Background(), string(signed)); err == nil {
		t.Fatal("expected signature mismatch to be rejected")
	}
}

func TestMiddlewareRequireAuthRejectsMissingToken(t *testing.T) {
	v, err := NewVerifier(context.Background(), "", testSecret, "")
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}
	called := false
	handler := Middleware(v, true)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	req := httptest.NewRequest(http.MethodPost, "/v1/chat", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
	if called {
		t.Error("expected handler not to run without a token")
	}
}

func TestMiddlewareOptionalAuthPassesThroughUnauthenticated(t *testing.T) {
	v, err := NewVerifier(context.Background(), "", testSecret, "")
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}
	var sawIdentity bool
	handler := Middleware(v, false)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, sawIdentity = IdentityFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodPost, "/v1/chat", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected request to pass through, got %d", rec.Code)
	}
	if sawIdentity {
		t.Error("expected no identity to be set for an unauthenticated pass-through request")
	}
}

func TestMiddlewareAttachesIdentityOnValidToken(t *testing.T) {
	v, err := NewVerifier(context.Background(), "", testSecret, "")
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}
	var gotID Identity
	handler := Middleware(v, true)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotID, _ = IdentityFromContext(r.Context())
	}))

	raw := signToken(t, map[string]any{"sub": "user-2"})
	req := httptest.NewRequest(http.MethodPost, "/v1/chat", nil)
	req.Header.Set("Authorization", "Bearer "+raw)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if gotID.UserID != "user-2" {
		t.Errorf("expected identity to be attached, got %+v", gotID)
	}
}
