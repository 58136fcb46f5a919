package middleware

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/ZargorNET/sponsormanager/internal/auth"
	"github.com/ZargorNET/sponsormanager/internal/services/iam"
)

// Authenticator verifies an Authorization header value.
type Authenticator interface {
	Authenticate(headerValue string) (auth.Principal, error)
}

// Authn requires a valid bearer token on every request it wraps. The
// verified principal is placed in the request context; requests without one
// never reach next.
func Authn(authenticator Authenticator, log *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, err := authenticator.Authenticate(r.Header.Get("Authorization"))
			if err != nil {
				WriteError(w, r, log, err)
				return
			}
			ctx := auth.SetPrincipalContext(r.Context(), principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin rejects requests whose principal is not ADMIN with 403. It
// must run after Authn; a missing principal is a 401.
func RequireAdmin(log *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := auth.PrincipalFromContext(r.Context())
			if !ok {
				WriteError(w, r, log, iam.Unauthenticated())
				return
			}
			if _, err := iam.RequireAdmin(principal); err != nil {
				WriteError(w, r, log, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
