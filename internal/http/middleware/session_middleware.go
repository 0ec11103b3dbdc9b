package middleware

import (
	"context"
	"net/http"
	"slices"
	"strings"

	"github.com/sandeepkv93/credential-manager-go/internal/http/response"
	"github.com/sandeepkv93/credential-manager-go/internal/observability"
	"github.com/sandeepkv93/credential-manager-go/internal/security"
)

type contextKey string

const ClaimsContextKey contextKey = "session_claims"

type SessionParser interface {
	Parse(raw string) (*security.SessionClaims, error)
}

// SessionAuth requires a valid bearer session. When types are given the
// token's typ claim must be one of them.
func SessionAuth(parser SessionParser, types ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := bearerToken(r)
			if raw == "" {
				observability.RecordSessionValidation(r.Context(), "missing")
				response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing session token", nil)
				return
			}
			claims, err := parser.Parse(raw)
			if err != nil {
				observability.RecordSessionValidation(r.Context(), "invalid")
				response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "invalid session token", nil)
				return
			}
			if len(types) > 0 && !slices.Contains(types, claims.TokenType) {
				observability.RecordSessionValidation(r.Context(), "wrong_type")
				response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "invalid session token", nil)
				return
			}
			observability.RecordSessionValidation(r.Context(), "valid")
			ctx := context.WithValue(r.Context(), ClaimsContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func ClaimsFromContext(ctx context.Context) (*security.SessionClaims, bool) {
	c, ok := ctx.Value(ClaimsContextKey).(*security.SessionClaims)
	return c, ok
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(auth, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
