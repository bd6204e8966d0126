package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/dreadnought-systems/airwatch/internal/apierr"
	"github.com/dreadnought-systems/airwatch/internal/auth"
	"github.com/dreadnought-systems/airwatch/internal/model"
)

type contextKey int

const claimsContextKey contextKey = 0

// requireAuth extracts and validates the bearer token, attaching its
// claims to the request context for downstream handlers.
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		const prefix = "Bearer "
		if !strings.HasPrefix(header, prefix) {
			writeError(w, apierr.New(apierr.Unauthenticated, "missing bearer token"))
			return
		}

		claims, err := s.issuer.Validate(strings.TrimPrefix(header, prefix))
		if err != nil {
			writeError(w, err)
			return
		}

		ctx := context.WithValue(r.Context(), claimsContextKey, claims)
		next(w, r.WithContext(ctx))
	}
}

// requireAdmin gates a route to the admin role, concretizing spec.md
// §4.7's "bearer + admin role" column. Must run after requireAuth.
func (s *Server) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims := claimsFrom(r)
		if claims == nil || !auth.RequireRole(claims, model.RoleAdmin) {
			writeError(w, apierr.New(apierr.Unauthorized, "admin role required"))
			return
		}
		next(w, r)
	}
}

func claimsFrom(r *http.Request) *auth.Claims {
	claims, _ := r.Context().Value(claimsContextKey).(*auth.Claims)
	return claims
}
