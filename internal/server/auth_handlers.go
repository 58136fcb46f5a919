package server

import (
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/ZargorNET/sponsormanager/internal/auth"
	"github.com/ZargorNET/sponsormanager/internal/middleware"
	"github.com/ZargorNET/sponsormanager/internal/services/iam"
)

// LoginRequest is the body of POST /api/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse carries the session token minted by a password login.
type LoginResponse struct {
	Token string `json:"token"`
}

// HandleLogin authenticates against the directory and returns a bearer token.
func HandleLogin(svc iamService, log *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req LoginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			middleware.WriteError(w, r, log, &iam.Error{Kind: iam.KindBadRequest, Message: "invalid request body", Err: err})
			return
		}

		token, err := svc.LoginDirectory(r.Context(), req.Email, req.Password)
		if err != nil {
			middleware.WriteError(w, r, log, err)
			return
		}
		middleware.WriteJSON(w, http.StatusOK, LoginResponse{Token: token})
	}
}

// HandleFederatedLogin redirects the browser to the identity provider.
func HandleFederatedLogin(svc iamService, log *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		url, err := svc.LoginFederatedBegin(r.Context())
		if err != nil {
			middleware.WriteError(w, r, log, err)
			return
		}
		http.Redirect(w, r, url, http.StatusTemporaryRedirect)
	}
}

// HandleFederatedCallback completes the authorization-code flow, stores the
// session token in a cookie and sends the browser back to the frontend.
func HandleFederatedCallback(svc iamService, frontendURL string, cookieMaxAge time.Duration, log *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if idpErr := q.Get("error"); idpErr != "" {
			log.Infow("identity provider returned an error",
				"error", idpErr,
				"description", q.Get("error_description"),
			)
			middleware.WriteError(w, r, log, &iam.Error{Kind: iam.KindBadRequest, Message: "identity provider error: " + idpErr})
			return
		}

		token, err := svc.LoginFederatedComplete(r.Context(), q.Get("code"), q.Get("state"))
		if err != nil {
			middleware.WriteError(w, r, log, err)
			return
		}

		auth.SetSessionCookie(w, token, cookieMaxAge)
		http.Redirect(w, r, frontendURL, http.StatusTemporaryRedirect)
	}
}

// HandleWhoAmI returns the principal of the bearer token.
func HandleWhoAmI(log *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, ok := auth.PrincipalFromContext(r.Context())
		if !ok {
			middleware.WriteError(w, r, log, iam.Unauthenticated())
			return
		}
		middleware.WriteJSON(w, http.StatusOK, iam.ViewOf(principal))
	}
}

// HandleLogout expires the session cookie. Tokens are stateless, so a copy
// held elsewhere stays valid until it expires.
func HandleLogout() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		auth.ClearSessionCookie(w)
		middleware.WriteJSON(w, http.StatusOK, struct{}{})
	}
}
