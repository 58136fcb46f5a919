package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/ZargorNET/sponsormanager/internal/services/iam"
)

// ErrorBody is the JSON body of every error response.
type ErrorBody struct {
	Error string `json:"error"`
}

// WriteJSON encodes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError renders err as {"error": message}. Unclassified errors become a
// generic 500; their cause is logged with the request id and never sent.
func WriteError(w http.ResponseWriter, r *http.Request, log *zap.SugaredLogger, err error) {
	e := iam.AsError(err)
	status := e.Status()
	if status >= http.StatusInternalServerError && log != nil {
		log.Errorw("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", middleware.GetReqID(r.Context()),
			"error", err,
		)
	}
	WriteJSON(w, status, ErrorBody{Error: e.Message})
}
