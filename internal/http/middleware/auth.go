package middleware

import (
	"context"
	"net/http"
	"strings"

	"electra/internal/auth"
	"electra/internal/service"
)

type contextKey string

const identityKey contextKey = "identity"

// AuthMiddleware validates the bearer token and stores the caller
// identity in the request context.
func AuthMiddleware(tokens *service.TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, ok := identityFromRequest(tokens, r)
			if !ok {
				http.Error(w, "invalid or missing token", http.StatusUnauthorized)
				return
			}
			ctx := context.WithValue(r.Context(), identityKey, identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func identityFromRequest(tokens *service.TokenService, r *http.Request) (auth.Identity, bool) {
	header := r.Header.Get("Authorization")
	tokenStr := ""
	if parts := strings.SplitN(header, " ", 2); len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		tokenStr = strings.TrimSpace(parts[1])
	}
	// Browser websocket clients cannot set headers; fall back to a query token.
	if tokenStr == "" {
		tokenStr = r.URL.Query().Get("token")
	}
	if tokenStr == "" {
		return auth.Identity{}, false
	}
	identity, err := tokens.ValidateToken(tokenStr)
	if err != nil {
		return auth.Identity{}, false
	}
	return identity, true
}

// IdentityFromContext retrieves the caller identity stored by
// AuthMiddleware.
func IdentityFromContext(ctx context.Context) (auth.Identity, bool) {
	val := ctx.Value(identityKey)
	if val == nil {
		return auth.Identity{}, false
	}
	identity, ok := val.(auth.Identity)
	return identity, ok
}
