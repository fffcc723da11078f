package jwt

import (
	"context"
	"net/http"
	"strings"

	"parley/internal/pkg/logx"
)

type contextKey string

// ContextAuthPayloadKey is the context key holding the parsed identity Payload.
const ContextAuthPayloadKey contextKey = "auth_payload"

// IdentityExtractor extracts and validates a Bearer token from the
// Authorization header, injecting the Payload into the request context on
// success. A missing or invalid token does NOT fail the request; the caller
// is simply treated as anonymous and each handler decides whether identity
// is required.
func IdentityExtractor(secretKey string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				next.ServeHTTP(w, r)
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" {
				next.ServeHTTP(w, r)
				return
			}

			payload, err := ParseToken(parts[1], secretKey)
			if err != nil {
				logx.Warn("invalid or expired token, treating caller as anonymous", "error", err)
				next.ServeHTTP(w, r)
				return
			}

			ctx := context.WithValue(r.Context(), ContextAuthPayloadKey, payload)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetPayloadFromContext returns the authenticated identity for the request,
// or nil when the caller is anonymous.
func GetPayloadFromContext(r *http.Request) *Payload {
	payload, ok := r.Context().Value(ContextAuthPayloadKey).(*Payload)
	if !ok {
		return nil
	}
	return payload
}
