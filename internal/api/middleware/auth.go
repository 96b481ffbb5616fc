package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/homecinema/homecinema/internal/api/response"
	"github.com/homecinema/homecinema/internal/authz"
	"github.com/homecinema/homecinema/internal/membership"
)

// Realm is the Basic authentication realm announced on 401 responses.
const Realm = "homecinema"

const principalKey contextKey = "principal"

// Authorizer decides whether credentials satisfy a policy. *authz.Gate
// satisfies it.
type Authorizer interface {
	Authorize(ctx context.Context, creds *authz.Credentials, p authz.Policy) (*membership.Principal, error)
}

// Authorize guards next with policy. Credentials are read from the HTTP
// Basic Authorization header; an absent or malformed header counts as no
// credentials. The authorized principal is stored in the request context.
func Authorize(gate Authorizer, policy authz.Policy) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := GetRequestID(r.Context())

			var creds *authz.Credentials
			if username, password, ok := r.BasicAuth(); ok {
				creds = &authz.Credentials{Username: username, Password: password}
			}

			principal, err := gate.Authorize(r.Context(), creds, policy)
			switch {
			case errors.Is(err, authz.ErrUnauthenticated):
				response.Unauthenticated(w, Realm, requestID)
				return
			case errors.Is(err, authz.ErrUnauthorized):
				response.Err(w, http.StatusForbidden, "FORBIDDEN", "Insufficient permissions", requestID)
				return
			case err != nil:
				slog.Error("authorization failed", "error", err, "requestId", requestID)
				response.Err(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Authorization failed", requestID)
				return
			}

			if principal != nil {
				r = r.WithContext(WithPrincipal(r.Context(), principal))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// WithPrincipal returns a copy of ctx carrying p.
func WithPrincipal(ctx context.Context, p *membership.Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// GetPrincipal retrieves the authorized principal from the request context.
// It is nil on public routes.
func GetPrincipal(ctx context.Context) *membership.Principal {
	if p, ok := ctx.Value(principalKey).(*membership.Principal); ok {
		return p
	}
	return nil
}
