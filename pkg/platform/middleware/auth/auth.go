// Package auth attaches the authenticated principal to the request context.
//
// This is the authentication collaborator seen by the rate limiter: it only
// needs a principal identifier and a subscription tier. Token issuance and
// credential checks live elsewhere.
package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Tier is the subscription tier carried by an authenticated principal.
type Tier string

const (
	TierStandard Tier = "standard"
	TierPremium  Tier = "premium"
)

// Principal identifies an authenticated caller.
type Principal struct {
	ID   string
	Tier Tier
}

type contextKeyPrincipal struct{}

// Middleware parses a Bearer token from the Authorization header and, when it
// verifies, attaches the principal to the context. Requests without a valid
// token pass through anonymous; rejecting them is the resource handlers' job,
// not the rate limiter's.
func Middleware(signingKey []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := bearerToken(r)
			if raw == "" {
				next.ServeHTTP(w, r)
				return
			}

			var claims struct {
				Tier string `json:"tier"`
				jwt.RegisteredClaims
			}
			token, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return signingKey, nil
			})
			if err != nil || !token.Valid || claims.Subject == "" {
				next.ServeHTTP(w, r)
				return
			}

			p := Principal{ID: claims.Subject, Tier: TierStandard}
			if Tier(claims.Tier) == TierPremium {
				p.Tier = TierPremium
			}
			ctx := context.WithValue(r.Context(), contextKeyPrincipal{}, p)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetPrincipal retrieves the authenticated principal from the context.
// The second return is false for anonymous requests.
func GetPrincipal(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(contextKeyPrincipal{}).(Principal)
	return p, ok
}

// WithPrincipal injects a principal into a context, for tests that skip the
// HTTP middleware chain.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, contextKeyPrincipal{}, p)
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}
