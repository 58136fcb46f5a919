package server

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/ZargorNET/sponsormanager/internal/auth"
	"github.com/ZargorNET/sponsormanager/internal/middleware"
	"github.com/ZargorNET/sponsormanager/internal/services/iam"
)

// UpdateAdminsRequest is the body of PUT /api/settings/admins.
type UpdateAdminsRequest struct {
	Admins []string `json:"admins"`
}

// HandleListAdmins handles GET /api/settings/admins.
//
// Authorization: ADMIN (enforced by the RequireAdmin middleware)
// Response: JSON array of admin emails
func HandleListAdmins(svc iamService, log *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		admins, err := svc.ListAdmins(r.Context())
		if err != nil {
			middleware.WriteError(w, r, log, err)
			return
		}
		if admins == nil {
			admins = []string{}
		}
		middleware.WriteJSON(w, http.StatusOK, admins)
	}
}

// HandleUpdateAdmins handles PUT /api/settings/admins. The body replaces
// the whole admin set.
func HandleUpdateAdmins(svc iamService, log *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, ok := auth.PrincipalFromContext(r.Context())
		if !ok {
			middleware.WriteError(w, r, log, iam.Unauthenticated())
			return
		}

		var req UpdateAdminsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			middleware.WriteError(w, r, log, &iam.Error{Kind: iam.KindBadRequest, Message: "invalid request body", Err: err})
			return
		}

		if _, err := svc.UpdateAdmins(r.Context(), principal, req.Admins); err != nil {
			middleware.WriteError(w, r, log, err)
			return
		}
		middleware.WriteJSON(w, http.StatusOK, struct{}{})
	}
}
