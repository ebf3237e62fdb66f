package handlers

import (
	"errors"
	"net/http"

	"github.com/MrSnakeDoc/marks/internal/httpserver/deps"
)

var errStoreNotInitialized = errors.New("store not initialized")

type componentStatus struct {
	OK         bool    `json:"ok"`
	Mode       string  `json:"mode,omitempty"`
	Impact     string  `json:"impact,omitempty"`
	Error      string  `json:"error,omitempty"`
	Records    *int    `json:"records,omitempty"`
	Tombstones *int    `json:"tombstones,omitempty"`
	Generation *uint64 `json:"generation,omitempty"`
	Principal  string  `json:"principal,omitempty"`
}

type infraResponse struct {
	SyncMode   string                     `json:"sync_mode"`
	Components map[string]componentStatus `json:"components"`
}

// Infra reports the state of the view and of its backing store.
func Infra(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		records := d.View.Len()
		tombstones := d.View.Tombstones()
		generation := d.View.Generation()
		principal := d.View.Principal()

		view := componentStatus{
			OK:         principal.Known(),
			Records:    &records,
			Tombstones: &tombstones,
			Generation: &generation,
			Principal:  principal.ID,
		}
		if principal.Known() {
			view.Mode = "subscribed"
		} else {
			view.Mode = "anonymous"
			view.Impact = "empty-view"
		}

		components := map[string]componentStatus{
			"redis": checkStore(r, d),
			"view":  view,
		}

		writeJSON(w, http.StatusOK, infraResponse{
			SyncMode:   determineSyncMode(components),
			Components: components,
		})
	}
}

func determineSyncMode(components map[string]componentStatus) string {
	if redis, ok := components["redis"]; ok && !redis.OK {
		// Optimistic writes still show up locally but will be rejected.
		return "offline"
	}
	if view, ok := components["view"]; ok && !view.OK {
		return "idle"
	}
	return "live"
}

func checkStore(r *http.Request, d deps.Deps) componentStatus {
	if err := ping(r.Context(), d.Store); err != nil {
		return componentStatus{
			OK:     false,
			Mode:   "degraded",
			Impact: "writes-rejected",
			Error:  err.Error(),
		}
	}
	return componentStatus{OK: true, Mode: "optimal"}
}
