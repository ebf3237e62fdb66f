package handlers

import (
	"net/http"
	"strings"

	"github.com/MrSnakeDoc/marks/internal/domain"
	"github.com/MrSnakeDoc/marks/internal/httpserver/deps"
	"github.com/MrSnakeDoc/marks/internal/logger"
)

type sessionRequest struct {
	PrincipalID string `json:"principal_id"`
}

type sessionResponse struct {
	domain.Principal
	Generation uint64 `json:"generation"`
	Records    int    `json:"records"`
}

func session(v deps.View) sessionResponse {
	return sessionResponse{
		Principal:  v.Principal(),
		Generation: v.Generation(),
		Records:    v.Len(),
	}
}

// GetSession returns the principal the view is scoped to.
func GetSession(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, session(d.View))
	}
}

// PutSession signs a principal in, replacing the current one.
func PutSession(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req sessionRequest
		if err := decode(r, &req); err != nil {
			writeError(w, err, http.StatusBadRequest)
			return
		}
		id := strings.TrimSpace(req.PrincipalID)
		if id == "" {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "principal_id is required"})
			return
		}

		if err := d.View.SwitchPrincipal(r.Context(), domain.Authenticated(id)); err != nil {
			d.Logger.Error("failed to switch principal",
				logger.String("principal_id", id),
				logger.Error(err))
			writeError(w, err, http.StatusBadGateway)
			return
		}
		writeJSON(w, http.StatusOK, session(d.View))
	}
}

// DeleteSession signs out.
func DeleteSession(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := d.View.SignOut(r.Context()); err != nil {
			writeError(w, err, http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
