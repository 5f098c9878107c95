// Package auth resolves the caller into a workflow.Actor from a signed
// bearer token. Session management lives upstream; this is only the
// actor/role resolver the workflow engine consumes.
package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/RFarrand/commis/internal/workflow"
)

type contextKey struct{}

// Claims is the token payload we accept. Human distinguishes a person
// from a service principal; some transitions require a human.
type Claims struct {
	Roles []string `json:"roles"`
	Human bool     `json:"human"`
	jwt.RegisteredClaims
}

// FromContext returns the resolved actor, if any.
func FromContext(ctx context.Context) (workflow.Actor, bool) {
	a, ok := ctx.Value(contextKey{}).(workflow.Actor)
	return a, ok
}

// WithActor is for tests and internal callers.
func WithActor(ctx context.Context, a workflow.Actor) context.Context {
	return context.WithValue(ctx, contextKey{}, a)
}

// Middleware parses the Authorization header and puts the actor on the
// request context. Requests without a valid token are rejected.
func Middleware(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, err := resolve(r, secret)
			if err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
		})
	}
}

func resolve(r *http.Request, secret string) (workflow.Actor, error) {
	header := r.Header.Get("Authorization")

	raw, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || raw == "" {
		return workflow.Actor{}, fmt.Errorf("missing bearer token")
	}

	var claims Claims

	token, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}

		return []byte(secret), nil
	})
	if err != nil {
		return workflow.Actor{}, fmt.Errorf("parsing token: %w", err)
	}

	if !token.Valid || claims.Subject == "" {
		return workflow.Actor{}, fmt.Errorf("invalid token")
	}

	roles := make([]workflow.Role, 0, len(claims.Roles))
	for _, r := range claims.Roles {
		roles = append(roles, workflow.Role(r))
	}

	return workflow.Actor{ID: claims.Subject, Roles: roles, Human: claims.Human}, nil
}
