// Package auth implements ambient bearer-token validation (SPEC_FULL.md
// §4.9a): it authenticates the caller of an already-issued JWT and
// populates the request context with their identity. Token issuance is out
// of scope — this module only ever verifies tokens minted elsewhere.
package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

// Identity is the caller identity extracted from a validated token.
type Identity struct {
	UserID   string
	TenantID string
}

type identityKey struct{}

// WithIdentity returns a context carrying id, for handlers downstream of
// the auth middleware.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFromContext returns the caller identity stored by the auth
// middleware, or the zero value if none is present (unauthenticated mode).
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}

// Verifier validates bearer tokens against either a remote JWKS endpoint or
// a shared HMAC secret — whichever the config supplies.
type Verifier struct {
	jwksURL      string
	cache        *jwk.Cache
	hmacSecret   []byte
	claimUserKey string
}

// NewVerifier builds a Verifier. Exactly one of jwksURL/hmacSecret is
// normally set; if both are empty, auth is not required and the caller
// should not construct a Verifier at all (see config.AuthConfig.Validate).
func NewVerifier(ctx context.Context, jwksURL, hmacSecret, claimUserKey string) (*Verifier, error) {
	v := &Verifier{jwksURL: jwksURL, hmacSecret: []byte(hmacSecret), claimUserKey: claimUserKey}
	if jwksURL != "" {
		cache := jwk.NewCache(ctx)
		if err := cache.Register(jwksURL); err != nil {
			return nil, fmt.Errorf("auth: register jwks %s: %w", jwksURL, err)
		}
		if _, err := cache.Refresh(ctx, jwksURL); err != nil {
			return nil, fmt.Errorf("auth: initial jwks fetch %s: %w", jwksURL, err)
		}
		v.cache = cache
	}
	return v, nil
}

// Verify parses and validates a bearer token, returning the caller
// identity built from its claims.
func (v *Verifier) Verify(ctx context.Context, rawToken string) (Identity, error) {
	var opts []jwt.ParseOption
	switch {
	case v.cache != nil:
		set := jwk.NewCachedSet(v.cache, v.jwksURL)
		opts = append(opts, jwt.WithKeySet(set))
	case len(v.hmacSecret) > 0:
		key, err := jwk.FromRaw(v.hmacSecret)
		if err != nil {
			return Identity{}, fmt.Errorf("auth: build hmac key: %w", err)
		}
		opts = append(opts, jwt.WithKey(jwa.HS256, key))
	default:
		return Identity{}, fmt.Errorf("auth: no key source configured")
	}

	token, err := jwt.ParseString(rawToken, opts...)
	if err != nil {
		return Identity{}, fmt.Errorf("auth: invalid token: %w", err)
	}

	userKey := v.claimUserKey
	if userKey == "" {
		userKey = "sub"
	}
	var userID string
	if err := token.Get(userKey, &userID); err != nil || userID == "" {
		userID = token.Subject()
	}
	var tenantID string
	_ = token.Get("tenant_id", &tenantID)

	if userID == "" {
		return Identity{}, fmt.Errorf("auth: token carries no caller identity")
	}
	return Identity{UserID: userID, TenantID: tenantID}, nil
}

// Middleware validates the Authorization header's bearer token and
// attaches the resulting Identity to the request context. requireAuth
// controls whether a missing/invalid token is rejected (401) or simply
// leaves the request unauthenticated, for deployments that front this
// service with their own gateway-level auth.
func Middleware(verifier *Verifier, requireAuth bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" {
				if requireAuth {
					http.Error(w, "missing bearer token", http.StatusUnauthorized)
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			id, err := verifier.Verify(r.Context(), token)
			if err != nil {
				if requireAuth {
					http.Error(w, "invalid bearer token", http.StatusUnauthorized)
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}
