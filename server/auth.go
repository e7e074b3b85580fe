package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/aimo-network/aimo/keys"
)

type contextKey string

// secretKeyContextKey carries the verified credential payload to downstream
// handlers.
const secretKeyContextKey contextKey = "aimo.secret-key"

func bearerToken(r *http.Request) (string, bool) {
	auth := r.Header.Get("Authorization")
	token := strings.TrimPrefix(auth, "Bearer ")
	if auth == "" || token == auth {
		return "", false
	}
	return token, true
}

// authMiddleware validates the bearer secret key and attaches its payload to
// the request context. Order matters: decode, scope-tag policy, revocation,
// then the signature and expiry check.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			handleError(w, "missing bearer token", http.StatusUnauthorized)
			return
		}
		tag, key, err := keys.Decode(token)
		if err != nil {
			handleError(w, "failed to decode secret key payload", http.StatusUnauthorized)
			return
		}
		if tag != admittedScopeTag {
			handleError(w, fmt.Sprintf("scope %s not supported", tag), http.StatusUnauthorized)
			return
		}
		revoked, err := s.database.IsKeyRevoked(r.Context(), key)
		if err != nil {
			handleError(w, fmt.Sprintf("failed to check key revocation: %v", err), http.StatusInternalServerError)
			return
		}
		if revoked {
			handleError(w, "key already revoked", http.StatusUnauthorized)
			return
		}
		if err := key.Verify(); err != nil {
			handleError(w, fmt.Sprintf("failed to verify secret key: %v", err), http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), secretKeyContextKey, key)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// secretKeyFromContext returns the credential payload the auth middleware
// attached, or nil on an unauthenticated path.
func secretKeyFromContext(ctx context.Context) *keys.SecretKey {
	key, _ := ctx.Value(secretKeyContextKey).(*keys.SecretKey)
	return key
}
